package reactor

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"
)

func TestManager_CreateGetList(t *testing.T) {
	m := NewManager(ManagerOptions{})
	defer m.Close()

	for _, id := range []ReactorID{"b", "a"} {
		if _, err := m.Create(Options{ID: id, Seed: 1}); err != nil {
			t.Fatalf("Create(%s): %v", id, err)
		}
	}
	if _, err := m.Create(Options{ID: "a"}); !errors.Is(err, ErrInvalidOperation) {
		t.Errorf("Expected duplicate create refused, got %v", err)
	}

	ids := m.List()
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("List = %v, want [a b]", ids)
	}
	if c, ok := m.Get("a"); !ok || c.ID() != "a" {
		t.Errorf("Get(a) = %v, %v", c, ok)
	}
	if _, ok := m.Get("missing"); ok {
		t.Error("Expected missing reactor not found")
	}
}

func TestManager_StartStop(t *testing.T) {
	m := NewManager(ManagerOptions{})
	defer m.Close()
	c, _ := m.Create(Options{ID: "a", Seed: 1})

	if err := m.Start("missing", time.Millisecond); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := m.Start("a", 0); !errors.Is(err, ErrInvalidOperation) {
		t.Errorf("Expected invalid period refused, got %v", err)
	}
	if err := m.Start("a", 5*time.Millisecond); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !m.Running("a") {
		t.Error("Expected reactor running")
	}
	waitFor(t, time.Second, func() bool { return c.State().Tick >= 2 })

	if err := m.Stop("a"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if m.Running("a") {
		t.Error("Expected reactor stopped")
	}
	time.Sleep(20 * time.Millisecond)
	stopped := c.State().Tick
	time.Sleep(30 * time.Millisecond)
	if c.State().Tick != stopped {
		t.Error("reactor kept ticking after Stop")
	}
}

func TestManager_ExplosionDeregistersAndTearsDown(t *testing.T) {
	dem := &recordingDemolisher{}
	m := NewManager(ManagerOptions{Demolisher: dem})
	defer m.Close()

	c, err := m.Create(Options{ID: "boom", Seed: 1})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for i := 0; i < 16; i++ {
		c.InsertRod(NewFuelRod("", DefaultParams().Rods.Fuel), AnySlot)
	}
	c.mu.Lock()
	c.neutrons = 1e12
	c.mu.Unlock()

	if err := m.Start("boom", 5*time.Millisecond); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, time.Second, func() bool { return c.Destroyed() })
	waitFor(t, time.Second, func() bool { return !m.Running("boom") })

	explosions, destroys := dem.counts()
	if explosions != 1 || destroys != 1 {
		t.Errorf("Expected 1 explosion and 1 destroy, got %d and %d", explosions, destroys)
	}
	if err := m.Start("boom", time.Millisecond); !errors.Is(err, ErrInvalidOperation) {
		t.Errorf("Expected destroyed reactor refused to start, got %v", err)
	}

	st := c.State()
	if st.Phase != PhaseNormal || st.EndPhase != PhaseExploded {
		t.Errorf("Expected reset facets with end phase exploded, got phase=%s end=%s", st.Phase, st.EndPhase)
	}
	if snap := c.Snapshot(); snap.EndPhase != PhaseExploded {
		t.Errorf("Expected the snapshot to keep the end phase, got %s", snap.EndPhase)
	}
}

func TestManager_Delete(t *testing.T) {
	grid := NewRadiationGrid(0.001, 0)
	m := NewManager(ManagerOptions{Radiation: grid})
	defer m.Close()

	c, _ := m.Create(Options{ID: "a", Seed: 1})
	c.Tick()
	m.Start("a", time.Millisecond)

	if err := m.Delete("a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !c.Destroyed() {
		t.Error("Expected deleted core to be torn down")
	}
	if _, ok := m.Get("a"); ok {
		t.Error("Expected deleted core to be gone")
	}
	if len(grid.Sources()) != 0 {
		t.Errorf("Expected deleted core removed from the grid, got %v", grid.Sources())
	}
	if err := m.Delete("a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestManager_SharedRadiationCouplesCores(t *testing.T) {
	grid := NewRadiationGrid(0.01, 0)
	m := NewManager(ManagerOptions{Radiation: grid})
	defer m.Close()

	p := DefaultParams()
	p.SpontaneousLikelihood = 0
	hot, _ := m.Create(Options{ID: "hot", Params: p, Consoles: NewConsoleBank("c")})
	cold, _ := m.Create(Options{ID: "cold", Params: p})
	hot.InsertRod(NewStarterRod("s", 1e6), AnySlot)

	hot.Tick()
	if grid.Level("hot") <= 0 {
		t.Fatal("Expected the hot core to publish a leak level")
	}
	r := cold.Tick()
	want := grid.Level("hot") * 0.01
	if !approxEqual(r.Kinetics.ExternalNeutrons, want) {
		t.Errorf("cold core external neutrons = %v, want %v", r.Kinetics.ExternalNeutrons, want)
	}
}

func TestManager_ForwardsEventsToNotifiers(t *testing.T) {
	nm := NewNotificationManager(nil)
	defer nm.Close()

	var mu sync.Mutex
	var got []NotificationEvent
	mock := &mockNotifier{id: "mock", notifyFunc: func(_ context.Context, e NotificationEvent) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e)
		return nil
	}}
	if err := nm.RegisterNotifier(mock); err != nil {
		t.Fatalf("RegisterNotifier: %v", err)
	}

	m := NewManager(ManagerOptions{Notifications: nm})
	defer m.Close()
	c, _ := m.Create(Options{ID: "a", Seed: 1})

	// disabled by default
	c.InsertRod(NewControlRod("c1", 5), AnySlot)

	if err := m.SetNotifications("a", NotificationConfig{Enabled: true, Kinds: []EventKind{EventChanged}}); err != nil {
		t.Fatalf("SetNotifications: %v", err)
	}
	c.InsertRod(NewControlRod("c2", 5), AnySlot)

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})
	mu.Lock()
	defer mu.Unlock()
	if got[0].Kind != EventChanged || got[0].ReactorID != "a" {
		t.Errorf("unexpected event %+v", got[0])
	}
	if got[0].Status == nil || len(got[0].Status.Rods) != 2 {
		t.Errorf("Expected status with 2 rods, got %+v", got[0].Status)
	}
	if err := m.SetNotifications("missing", NotificationConfig{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestManager_CoreLoggerPerReactor(t *testing.T) {
	var mu sync.Mutex
	logs := make(map[ReactorID]*recordingLogger)
	m := NewManager(ManagerOptions{CoreLogger: func(id ReactorID) Logger {
		mu.Lock()
		defer mu.Unlock()
		l := &recordingLogger{}
		logs[id] = l
		return l
	}})
	defer m.Close()

	a, err := m.Create(Options{ID: "a", Seed: 1})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := m.Create(Options{ID: "b", Seed: 1, Logger: NewNoOpLogger()}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	snap := a.Snapshot()
	snap.ReactorID = "c"
	if _, err := m.Restore(snap, Options{}); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	mu.Lock()
	_, hasA := logs["a"]
	_, hasB := logs["b"]
	_, hasC := logs["c"]
	mu.Unlock()
	if !hasA || hasB || !hasC {
		t.Fatalf("core loggers built for a=%t b=%t c=%t, want a and c only", hasA, hasB, hasC)
	}

	if _, err := a.InsertRod(&Rod{ID: "hot", Kind: RodFuel, Atoms: 1e300, EnergyPerNeutron: math.MaxFloat64, NeutronYield: 1}, AnySlot); err != nil {
		t.Fatalf("InsertRod: %v", err)
	}
	a.neutrons = 100
	a.Tick()
	logs["a"].mu.Lock()
	defer logs["a"].mu.Unlock()
	if len(logs["a"].warns) == 0 {
		t.Error("Expected the energy fault logged on reactor a's own logger")
	}
}
