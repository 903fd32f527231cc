package config

import (
	"testing"

	"github.com/daniacca/graphitecore/internal/reactor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestBuildReactor(t *testing.T) {
	cfg := Default()
	m := reactor.NewManager(reactor.ManagerOptions{Radiation: cfg.NewRadiationGrid()})
	defer m.Close()

	rc := ReactorConfig{
		ID:              "alpha",
		Seed:            7,
		Consoles:        []string{"desk"},
		ControlRodDepth: 0.5,
		Rods: []RodConfig{
			{Kind: reactor.RodStarter, Slot: intPtr(3)},
			{Kind: reactor.RodFuel},
			{Kind: reactor.RodControl, ID: "ctl"},
		},
		Pipe: "main",
	}
	core, err := cfg.BuildReactor(m, rc)
	require.NoError(t, err)

	st := core.State()
	assert.Equal(t, 0.5, st.ControlRodDepth)
	assert.Equal(t, 1, st.ConnectedConsoles)
	require.NotNil(t, st.Pipe)
	assert.Equal(t, "main", st.Pipe.ID)
	require.Len(t, st.Rods, 3)
	assert.Equal(t, reactor.RodStarter, slotRod(st, 3).Kind)
	assert.Equal(t, "alpha-fuel-1", slotRod(st, 0).ID)
	assert.Equal(t, "ctl", slotRod(st, 1).ID)
	assert.InDelta(t, cfg.Coolant.Temperature, st.Temperature, 1e-9)
}

func TestBuildReactor_PopulateFailureRemovesReactor(t *testing.T) {
	cfg := Default()
	m := reactor.NewManager(reactor.ManagerOptions{})
	defer m.Close()

	// no console: the starter rod is refused
	_, err := cfg.BuildReactor(m, ReactorConfig{ID: "beta", Rods: []RodConfig{{Kind: reactor.RodStarter}}})
	require.ErrorIs(t, err, reactor.ErrStarterNotReady)
	_, ok := m.Get("beta")
	assert.False(t, ok)
}

func TestReactorOptions_UsesOwnCoolant(t *testing.T) {
	cfg := Default()
	opts := cfg.ReactorOptions(ReactorConfig{
		ID:      "gamma",
		Coolant: &CoolantConfig{Moles: 10, MolarHeatCapacity: 2, Temperature: 400},
	})
	assert.Equal(t, reactor.ReactorID("gamma"), opts.ID)
	assert.Equal(t, cfg.Reactor, opts.Params)
	assert.Equal(t, 10.0, opts.Fluid.TotalMoles())
	assert.InDelta(t, 400, opts.Fluid.Temperature(), 1e-9)
}

// slotRod returns the rod in slot, or nil.
func slotRod(st reactor.Status, slot int) *reactor.Rod {
	for _, sv := range st.Rods {
		if sv.Slot == slot {
			return sv.Rod
		}
	}
	return nil
}
