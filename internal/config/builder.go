package config

import (
	"fmt"

	"github.com/daniacca/graphitecore/internal/reactor"
)

// NewCoolant builds the coolant mix described by cc.
func NewCoolant(cc CoolantConfig) *reactor.CoolantMix {
	return reactor.NewCoolantMix(cc.Moles, cc.MolarHeatCapacity, cc.Temperature)
}

// NewRadiationGrid builds the plant-wide radiation grid.
func (c *Config) NewRadiationGrid() *reactor.RadiationGrid {
	return reactor.NewRadiationGrid(c.Radiation.Coupling, c.Radiation.Background)
}

// ReactorOptions turns a reactor declaration into core options. Radiation
// and demolisher are left for the manager to wire.
func (c *Config) ReactorOptions(rc ReactorConfig) reactor.Options {
	return reactor.Options{
		ID:       reactor.ReactorID(rc.ID),
		Params:   c.Reactor,
		Seed:     rc.Seed,
		Position: rc.Position,
		Fluid:    NewCoolant(c.CoolantFor(rc)),
		Consoles: reactor.NewConsoleBank(rc.Consoles...),
	}
}

// Populate loads the declared rods, pipe and control rod depth into core.
func (c *Config) Populate(core *reactor.Core, rc ReactorConfig) error {
	if rc.ControlRodDepth != 0 {
		if _, err := core.SetControlRodDepth(rc.ControlRodDepth); err != nil {
			return err
		}
	}
	for j, rodCfg := range rc.Rods {
		id := rodCfg.ID
		if id == "" {
			id = fmt.Sprintf("%s-%s-%d", rc.ID, rodCfg.Kind, j)
		}
		rod, err := c.Reactor.Rods.NewRod(rodCfg.Kind, id)
		if err != nil {
			return fmt.Errorf("rod %s: %w", id, err)
		}
		slot := reactor.AnySlot
		if rodCfg.Slot != nil {
			slot = *rodCfg.Slot
		}
		if _, err := core.InsertRod(rod, slot); err != nil {
			return fmt.Errorf("rod %s: %w", id, err)
		}
	}
	if rc.Pipe != "" {
		if err := core.InsertPipe(&reactor.Pipe{ID: rc.Pipe}); err != nil {
			return fmt.Errorf("pipe %s: %w", rc.Pipe, err)
		}
	}
	return nil
}

// BuildReactor creates the declared reactor in m and populates it. The
// reactor is removed again if it cannot be populated.
func (c *Config) BuildReactor(m *reactor.Manager, rc ReactorConfig) (*reactor.Core, error) {
	core, err := m.Create(c.ReactorOptions(rc))
	if err != nil {
		return nil, err
	}
	if err := c.Populate(core, rc); err != nil {
		_ = m.Delete(core.ID())
		return nil, fmt.Errorf("failed to populate reactor %s: %w", rc.ID, err)
	}
	if err := m.SetNotifications(core.ID(), rc.Notifications); err != nil {
		return nil, err
	}
	return core, nil
}
