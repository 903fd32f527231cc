package reactor

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Snapshot is a point-in-time capture of a core, enough to rebuild it.
type Snapshot struct {
	ReactorID       ReactorID     `json:"reactor_id"`
	Tick            int64         `json:"tick"`
	TakenAt         time.Time     `json:"taken_at"`
	SlotCount       int           `json:"slot_count"`
	Rods            []SlotView    `json:"rods"`
	Pipe            *Pipe         `json:"pipe,omitempty"`
	ControlRodDepth float64       `json:"control_rod_depth"`
	Neutrons        float64       `json:"neutrons"`
	Pressure        float64       `json:"pressure"`
	Safety          SafetyState   `json:"safety"`
	Destroyed       bool          `json:"destroyed"`
	EndPhase        Phase         `json:"end_phase,omitempty"`
	Coolant         *CoolantState `json:"coolant,omitempty"`
}

// coolantSnapshotter is implemented by fluids whose state can be captured.
type coolantSnapshotter interface {
	State() CoolantState
}

// Snapshot captures the core. The coolant is included when the fluid can
// report its state.
func (c *Core) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		ReactorID:       c.id,
		Tick:            c.tick,
		TakenAt:         time.Now().UTC(),
		SlotCount:       c.registry.SlotCount(),
		Rods:            make([]SlotView, 0, c.registry.Len()),
		ControlRodDepth: c.depth,
		Neutrons:        c.neutrons,
		Pressure:        c.pressure,
		Safety:          c.safety.State(),
		Destroyed:       c.destroyed,
		EndPhase:        c.endPhase,
	}
	for i, rod := range c.registry.Slots() {
		if rod != nil {
			snap.Rods = append(snap.Rods, SlotView{Slot: i, Rod: rod.clone()})
		}
	}
	if p := c.registry.Pipe(); p != nil {
		cp := *p
		snap.Pipe = &cp
	}
	if cs, ok := c.fluid.(coolantSnapshotter); ok {
		st := cs.State()
		snap.Coolant = &st
	}
	return snap
}

// ValidateSnapshot checks a snapshot against params: slot range and
// uniqueness, rod validity, depth range and finite numbers.
func ValidateSnapshot(snap Snapshot, params Params) error {
	if snap.ReactorID == "" {
		return fmt.Errorf("snapshot has empty reactor id")
	}
	if snap.SlotCount != params.SlotCount {
		return fmt.Errorf("snapshot has %d slots, reactor has %d", snap.SlotCount, params.SlotCount)
	}
	if snap.Tick < 0 {
		return fmt.Errorf("snapshot has negative tick %d", snap.Tick)
	}

	seenSlots := make(map[int]struct{}, len(snap.Rods))
	seenIDs := make(map[string]struct{}, len(snap.Rods))
	for i, sv := range snap.Rods {
		if sv.Rod == nil {
			return fmt.Errorf("rod entry %d is empty", i)
		}
		if sv.Slot < 0 || sv.Slot >= params.SlotCount {
			return fmt.Errorf("rod %s is in slot %d, outside 0..%d", sv.Rod.ID, sv.Slot, params.SlotCount-1)
		}
		if _, dup := seenSlots[sv.Slot]; dup {
			return fmt.Errorf("slot %d holds more than one rod", sv.Slot)
		}
		seenSlots[sv.Slot] = struct{}{}
		if sv.Rod.ID != "" {
			if _, dup := seenIDs[sv.Rod.ID]; dup {
				return fmt.Errorf("duplicate rod id: %s", sv.Rod.ID)
			}
			seenIDs[sv.Rod.ID] = struct{}{}
		}
		if err := sv.Rod.Validate(); err != nil {
			return fmt.Errorf("rod in slot %d: %w", sv.Slot, err)
		}
	}

	if snap.ControlRodDepth < params.MinControlRodDepth || snap.ControlRodDepth > params.MaxControlRodDepth {
		return fmt.Errorf("control rod depth %v outside [%v, %v]", snap.ControlRodDepth, params.MinControlRodDepth, params.MaxControlRodDepth)
	}
	for name, v := range map[string]float64{"neutrons": snap.Neutrons, "pressure": snap.Pressure} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("snapshot %s is not finite", name)
		}
	}
	if snap.Neutrons < 0 {
		return fmt.Errorf("snapshot has negative neutron population")
	}
	if snap.Coolant != nil && (snap.Coolant.Moles < 0 || snap.Coolant.MolarHeatCapacity < 0) {
		return fmt.Errorf("snapshot coolant has negative moles or heat capacity")
	}
	return nil
}

// Restore builds a new core from snap. opts supplies collaborators and
// params; opts.ID is replaced by the snapshot's id. When opts.Fluid is nil
// the snapshot's coolant is used.
func Restore(snap Snapshot, opts Options) (*Core, error) {
	if opts.Params.SlotCount == 0 {
		opts.Params = DefaultParams()
	}
	if err := ValidateSnapshot(snap, opts.Params); err != nil {
		return nil, fmt.Errorf("invalid snapshot: %w", err)
	}
	opts.ID = snap.ReactorID
	if opts.Fluid == nil && snap.Coolant != nil {
		opts.Fluid = NewCoolantMixFromState(*snap.Coolant)
	}

	c, err := NewCore(opts)
	if err != nil {
		return nil, err
	}
	for _, sv := range snap.Rods {
		if err := c.registry.place(sv.Slot, sv.Rod.clone()); err != nil {
			return nil, fmt.Errorf("restore slot %d: %w", sv.Slot, err)
		}
	}
	if snap.Pipe != nil {
		p := *snap.Pipe
		if err := c.registry.InsertPipe(&p); err != nil {
			return nil, fmt.Errorf("restore pipe: %w", err)
		}
	}
	c.tick = snap.Tick
	c.depth = snap.ControlRodDepth
	c.neutrons = snap.Neutrons
	c.pressure = snap.Pressure
	c.safety.restore(snap.Safety)
	c.destroyed = snap.Destroyed
	c.endPhase = snap.EndPhase
	c.destroyRequested = snap.Destroyed || snap.Safety.Exploded
	return c, nil
}

// EncodeSnapshotJSON encodes a snapshot to JSON.
func EncodeSnapshotJSON(snap Snapshot) ([]byte, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshotJSON decodes a snapshot from JSON.
func DecodeSnapshotJSON(data []byte) (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return snap, nil
}
