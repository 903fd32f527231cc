package reactor

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"
)

// ReactorID identifies one core.
type ReactorID string

// Options configures a new Core. Nil collaborators get in-memory defaults.
type Options struct {
	ID       ReactorID
	Params   Params
	Seed     int64 // 0 picks a time-based seed
	Position Position

	Fluid      ThermalFluid
	Radiation  RadiationField
	Inventory  Inventory
	Consoles   ConsoleLink
	Demolisher Demolisher
	Logger     Logger

	// Coolant is used to build the default fluid when Fluid is nil.
	Coolant CoolantState
}

// TickReport is everything one tick computed.
type TickReport struct {
	ReactorID     ReactorID      `json:"reactor_id"`
	Tick          int64          `json:"tick"`
	Skipped       bool           `json:"skipped"`
	Kinetics      KineticsResult `json:"kinetics"`
	Fission       FissionResult  `json:"fission"`
	Thermal       ThermalResult  `json:"thermal"`
	Safety        SafetyState    `json:"safety"`
	Neutrons      float64        `json:"neutrons"`
	EnergyFaulted bool           `json:"energy_faulted"`
}

// SlotView is one occupied rod slot as seen from outside.
type SlotView struct {
	Slot int  `json:"slot"`
	Rod  *Rod `json:"rod"`
}

// Status is a point-in-time view of a core.
type Status struct {
	ID                ReactorID   `json:"id"`
	Tick              int64       `json:"tick"`
	Neutrons          float64     `json:"neutrons"`
	KFactor           float64     `json:"k_factor"`
	ControlRodDepth   float64     `json:"control_rod_depth"`
	Temperature       float64     `json:"temperature"`
	Pressure          float64     `json:"pressure"`
	EnergyReleased    float64     `json:"energy_released"`
	Safety            SafetyState `json:"safety"`
	Phase             Phase       `json:"phase"`
	Rods              []SlotView  `json:"rods"`
	SlotCount         int         `json:"slot_count"`
	Pipe              *Pipe       `json:"pipe,omitempty"`
	ConnectedConsoles int         `json:"connected_consoles"`
	Destroyed         bool        `json:"destroyed"`
	// EndPhase is the phase the core was in when it was torn down.
	EndPhase          Phase       `json:"end_phase,omitempty"`
}

// Core is one graphite reactor chamber. Ticks and mutations are serialised
// by a per-core mutex; collaborator effects and observers run after it is
// released.
type Core struct {
	mu sync.Mutex

	id       ReactorID
	params   Params
	position Position

	registry  *RodRegistry
	kinetics  *NeutronKinetics
	converter FuelEnergyConverter
	thermal   *ThermalPressureCoupler
	safety    *SafetyStateMachine

	fluid      ThermalFluid
	radiation  RadiationField
	inventory  Inventory
	consoles   ConsoleLink
	demolisher Demolisher
	logger     Logger

	tick             int64
	neutrons         float64
	depth            float64
	pressure         float64
	energyReleased   float64
	last             TickReport
	destroyed        bool
	destroyRequested bool
	endPhase         Phase

	observers observerSet
}

// effects are collected under the lock and performed after it is released.
type effects struct {
	events  []Event
	explode bool
	destroy bool
}

// NewCore creates a core with every slot empty, Normal state and no neutrons.
func NewCore(opts Options) (*Core, error) {
	if opts.ID == "" {
		return nil, fmt.Errorf("%w: reactor id is required", ErrInvalidOperation)
	}
	if opts.Params.SlotCount == 0 {
		opts.Params = DefaultParams()
	}
	if err := opts.Params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid reactor params: %w", err)
	}

	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	c := &Core{
		id:         opts.ID,
		params:     opts.Params,
		position:   opts.Position,
		registry:   NewRodRegistry(opts.Params.SlotCount),
		kinetics:   newNeutronKinetics(opts.Params, rng),
		thermal:    newThermalPressureCoupler(opts.Params),
		safety:     newSafetyStateMachine(opts.Params),
		fluid:      opts.Fluid,
		radiation:  opts.Radiation,
		inventory:  opts.Inventory,
		consoles:   opts.Consoles,
		demolisher: opts.Demolisher,
		logger:     withReactor(opts.Logger, opts.ID),
		depth:      opts.Params.MaxControlRodDepth,
	}
	if c.fluid == nil {
		c.fluid = NewCoolantMixFromState(opts.Coolant)
	}
	if c.radiation == nil {
		c.radiation = noRadiation{}
	}
	if c.inventory == nil {
		c.inventory = NewBin()
	}
	if c.consoles == nil {
		c.consoles = NewConsoleBank()
	}
	if c.demolisher == nil {
		c.demolisher = noDemolisher{}
	}
	c.pressure = c.thermal.Pressure(c.fluid)
	return c, nil
}

// ID returns the core's identity.
func (c *Core) ID() ReactorID {
	return c.id
}

// Params returns the constants the core was built with.
func (c *Core) Params() Params {
	return c.params
}

// Fluid returns the coolant collaborator.
func (c *Core) Fluid() ThermalFluid {
	return c.fluid
}

// WithFluid runs fn on the coolant under the core lock, so it never
// interleaves with a tick's read-modify-write of the internal energy.
func (c *Core) WithFluid(fn func(ThermalFluid)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.fluid)
}

// Inventory returns the inventory collaborator.
func (c *Core) Inventory() Inventory {
	return c.inventory
}

// Consoles returns the console collaborator.
func (c *Core) Consoles() ConsoleLink {
	return c.consoles
}

// Position returns where the core stands.
func (c *Core) Position() Position {
	return c.position
}

// Subscribe registers an observer and returns its unsubscribe function.
func (c *Core) Subscribe(o Observer) func() {
	return c.observers.add(o)
}

func (c *Core) event(kind EventKind) Event {
	return Event{ReactorID: c.id, Tick: c.tick, Kind: kind}
}

func (c *Core) dispatch(eff effects) {
	if eff.explode {
		c.demolisher.Explode(c.position, c.params.ExplosionYield)
	}
	c.observers.publish(eff.events)
	if eff.destroy {
		c.demolisher.Destroy(c.id)
	}
}

// Tick advances the core by one cycle: kinetics, fuel conversion, thermal
// coupling, then safety evaluation. It never fails; an exploded or destroyed
// core returns a skipped report.
func (c *Core) Tick() TickReport {
	c.mu.Lock()
	report, eff := c.tickLocked()
	c.mu.Unlock()
	c.dispatch(eff)
	return report
}

func (c *Core) tickLocked() (TickReport, effects) {
	var eff effects
	if c.destroyed || c.safety.State().Exploded {
		return TickReport{ReactorID: c.id, Tick: c.tick, Skipped: true, Safety: c.safety.State()}, eff
	}

	c.tick++
	before := c.safety.State()
	prevPressure := c.pressure
	report := TickReport{ReactorID: c.id, Tick: c.tick}

	report.Kinetics = c.kinetics.Step(c.registry, kineticsInput{
		Population:   c.finite("neutron population", c.neutrons),
		Depth:        c.depth,
		MeltedDown:   before.MeltedDown,
		TotalMoles:   c.fluid.TotalMoles(),
		ExternalFlux: c.finite("external flux", c.radiation.ExternalNeutronFlux(c.id)),
	})
	c.radiation.SetLeakLevel(c.id, report.Kinetics.LeakLevel)
	c.neutrons = report.Kinetics.NeutronsAfter

	// A singular population is lost to the explosion before it reaches the rods.
	feed := c.neutrons
	if report.Kinetics.Singular {
		feed = 0
	}
	report.Fission = c.converter.Convert(feed, c.registry.FuelRods())
	c.neutrons = report.Fission.Secondaries

	energy, faulted := c.sanitizeEnergy(report.Fission.Energy)
	report.EnergyFaulted = faulted
	c.energyReleased = energy

	report.Thermal = c.thermal.Apply(c.fluid, energy, c.registry, c.safety)
	c.pressure = report.Thermal.Pressure
	if report.Thermal.EjectedPipe != nil {
		c.inventory.StorePipe(report.Thermal.EjectedPipe)
		c.logger.Warnf("pipes ruptured at pressure %.0f, pipe %s ejected", c.pressure, report.Thermal.EjectedPipe.ID)
	}
	if report.Thermal.Ruptured {
		eff.events = append(eff.events, c.event(EventPipesRuptured))
	}

	transition := c.safety.Evaluate(report.Thermal.Temperature, report.Kinetics.NeutronsAfter)
	if transition.MeltedDown {
		c.logger.Warnf("core melted down at %.1fK", report.Thermal.Temperature)
		eff.events = append(eff.events, c.event(EventMeltedDown))
	}
	if transition.Exploded {
		c.logger.Errorf("neutron singularity reached (%.3g neutrons), core exploded", report.Kinetics.NeutronsAfter)
		c.neutrons = 0
		eff.explode = true
		eff.events = append(eff.events, c.event(EventExploded))
		if !c.destroyRequested {
			c.destroyRequested = true
			eff.destroy = true
		}
	}

	report.Safety = c.safety.State()
	report.Neutrons = c.neutrons
	c.last = report

	if report.Safety != before || c.pressure != prevPressure || report.Thermal.EjectedPipe != nil {
		eff.events = append(eff.events, c.event(EventChanged))
	}
	return report, eff
}

// smallest positive normal float64
const minNormal = 2.2250738585072014e-308

func (c *Core) sanitizeEnergy(e float64) (float64, bool) {
	if e == 0 {
		return 0, false
	}
	if math.IsNaN(e) || math.IsInf(e, 0) || math.Abs(e) < minNormal {
		c.logger.Warnf("invalid energy released (%v), clamped to 0", e)
		return 0, true
	}
	return e, false
}

func (c *Core) finite(what string, v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		c.logger.Warnf("invalid %s (%v), clamped to 0", what, v)
		return 0
	}
	return v
}

func (c *Core) checkAliveLocked() error {
	if c.destroyed {
		return fmt.Errorf("%w: reactor %s is destroyed", ErrInvalidOperation, c.id)
	}
	return nil
}

// mutate runs fn under the lock and emits a changed event when it reports a change.
func (c *Core) mutate(fn func() (bool, error)) error {
	c.mu.Lock()
	if err := c.checkAliveLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	changed, err := fn()
	var eff effects
	if err == nil && changed {
		eff.events = []Event{c.event(EventChanged)}
	}
	c.mu.Unlock()
	c.dispatch(eff)
	return err
}

// InsertRod puts rod into slotHint (or the first empty slot with AnySlot) and
// returns the slot it went into. On success the core owns rod: ticks mutate it,
// so callers must not read or write it afterwards. Use State to inspect it.
func (c *Core) InsertRod(rod *Rod, slotHint int) (int, error) {
	var slot int
	err := c.mutate(func() (bool, error) {
		var err error
		slot, err = c.registry.Insert(rod, slotHint, c.consoles.ConnectedConsoleCount())
		if err != nil {
			return false, err
		}
		c.logger.Debugf("%s rod %s inserted into slot %d", rod.Kind, rod.ID, slot)
		return true, nil
	})
	return slot, err
}

// RemoveRod takes the rod out of slot and hands it to the inventory. An empty
// slot is a no-op returning nil.
func (c *Core) RemoveRod(slot int) *Rod {
	var rod *Rod
	_ = c.mutate(func() (bool, error) {
		rod = c.registry.Remove(slot)
		if rod == nil {
			return false, nil
		}
		c.inventory.StoreRod(rod)
		c.logger.Debugf("%s rod %s removed from slot %d", rod.Kind, rod.ID, slot)
		return true, nil
	})
	return rod
}

// PullRod removes the rod in the highest occupied slot. It returns -1, nil
// when the core is empty.
func (c *Core) PullRod() (int, *Rod) {
	slot, rod := -1, (*Rod)(nil)
	_ = c.mutate(func() (bool, error) {
		slot, rod = c.registry.RemoveLast()
		if rod == nil {
			return false, nil
		}
		c.inventory.StoreRod(rod)
		return true, nil
	})
	return slot, rod
}

// InsertPipe fills the pipe slot. A fresh pipe clears PipesRuptured.
func (c *Core) InsertPipe(p *Pipe) error {
	return c.mutate(func() (bool, error) {
		if err := c.registry.InsertPipe(p); err != nil {
			return false, err
		}
		if c.safety.clearRupture() {
			c.logger.Infof("pipe %s replaced, pipes sealed", p.ID)
		}
		return true, nil
	})
}

// RemovePipe takes the pipe out and hands it to the inventory. It returns nil
// when the slot is empty.
func (c *Core) RemovePipe() *Pipe {
	var p *Pipe
	_ = c.mutate(func() (bool, error) {
		p = c.registry.EjectPipe()
		if p == nil {
			return false, nil
		}
		c.inventory.StorePipe(p)
		return true, nil
	})
	return p
}

// SetControlRodDepth clamps depth into the allowed range and applies it.
func (c *Core) SetControlRodDepth(depth float64) (float64, error) {
	if math.IsNaN(depth) {
		return 0, fmt.Errorf("%w: control rod depth is NaN", ErrInvalidOperation)
	}
	var applied float64
	err := c.mutate(func() (bool, error) {
		applied = c.params.ClampDepth(depth)
		changed := applied != c.depth
		c.depth = applied
		return changed, nil
	})
	return applied, err
}

// Scram slams the control rods fully in. A melted core has no rods left to move.
func (c *Core) Scram() error {
	return c.mutate(func() (bool, error) {
		if c.safety.State().MeltedDown {
			return false, fmt.Errorf("%w: control rods are fused into the melted core", ErrInvalidOperation)
		}
		changed := c.depth != c.params.MaxControlRodDepth
		c.depth = c.params.MaxControlRodDepth
		c.logger.Infof("scram")
		return changed, nil
	})
}

// Deconstruct welds apart an intact, empty core.
func (c *Core) Deconstruct() error {
	return c.destroyWith(func() error {
		if c.safety.State().MeltedDown {
			return fmt.Errorf("%w: a melted core cannot be deconstructed", ErrInvalidOperation)
		}
		if !c.registry.Empty() {
			return fmt.Errorf("%w: inserted rods make it impossible to deconstruct", ErrInvalidOperation)
		}
		return nil
	})
}

// Demolish breaks a melted core to pieces.
func (c *Core) Demolish() error {
	return c.destroyWith(func() error {
		if !c.safety.State().MeltedDown {
			return fmt.Errorf("%w: only a melted core can be broken apart", ErrInvalidOperation)
		}
		return nil
	})
}

func (c *Core) destroyWith(guard func() error) error {
	c.mu.Lock()
	if err := c.checkAliveLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if err := guard(); err != nil {
		c.mu.Unlock()
		return err
	}
	eff := c.teardownLocked()
	if !c.destroyRequested {
		c.destroyRequested = true
		eff.destroy = true
	}
	c.mu.Unlock()
	c.dispatch(eff)
	return nil
}

// Teardown ejects every rod, resets all derived state and marks the core
// destroyed. A melted core leaves ore behind; an intact one returns its rods
// and construction material. Calling it again is a no-op.
func (c *Core) Teardown() {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	eff := c.teardownLocked()
	c.mu.Unlock()
	c.dispatch(eff)
}

func (c *Core) teardownLocked() effects {
	melted := c.safety.State().MeltedDown
	c.endPhase = c.safety.State().Phase()
	for _, rod := range c.registry.Clear() {
		if !melted {
			c.inventory.StoreRod(rod)
			continue
		}
		switch rod.Kind {
		case RodFuel:
			c.inventory.SpawnMaterial(MaterialUraniumOre, 1)
		case RodControl:
			c.inventory.SpawnMaterial(MaterialMetalOre, 1)
		case RodStarter:
		}
	}
	if !melted {
		c.inventory.SpawnMaterial(MaterialConstruction, c.params.ConstructMaterialYield)
	}
	if p := c.registry.EjectPipe(); p != nil {
		c.inventory.StorePipe(p)
	}

	c.safety.reset()
	c.neutrons = 0
	c.pressure = 0
	c.energyReleased = 0
	c.depth = c.params.MaxControlRodDepth
	c.last = TickReport{}
	c.radiation.SetLeakLevel(c.id, 0)
	c.destroyed = true
	c.logger.Infof("core torn down (melted=%t, phase=%s)", melted, c.endPhase)

	return effects{events: []Event{c.event(EventTornDown)}}
}

// KFactor computes the multiplication factor for the current rod layout.
func (c *Core) KFactor() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.kFactorLocked()
}

func (c *Core) kFactorLocked() float64 {
	p := AbsorptionProbability(c.params, c.registry, c.depth, c.safety.State().MeltedDown, c.fluid.TotalMoles())
	return c.params.KConstant * p
}

// LastReport returns the report of the most recent tick.
func (c *Core) LastReport() TickReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Destroyed reports whether the core has been torn down.
func (c *Core) Destroyed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed
}

// State returns a point-in-time view of the core.
func (c *Core) State() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{
		ID:                c.id,
		Tick:              c.tick,
		Neutrons:          c.neutrons,
		KFactor:           c.kFactorLocked(),
		ControlRodDepth:   c.depth,
		Temperature:       c.fluid.Temperature(),
		Pressure:          c.pressure,
		EnergyReleased:    c.energyReleased,
		Safety:            c.safety.State(),
		Phase:             c.safety.State().Phase(),
		Rods:              make([]SlotView, 0, c.registry.SlotCount()),
		SlotCount:         c.registry.SlotCount(),
		ConnectedConsoles: c.consoles.ConnectedConsoleCount(),
		Destroyed:         c.destroyed,
		EndPhase:          c.endPhase,
	}
	for i, rod := range c.registry.Slots() {
		if rod != nil {
			st.Rods = append(st.Rods, SlotView{Slot: i, Rod: rod.clone()})
		}
	}
	if p := c.registry.Pipe(); p != nil {
		cp := *p
		st.Pipe = &cp
	}
	return st
}
