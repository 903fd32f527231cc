package reactor

import "fmt"

// AnySlot asks InsertRod for the first empty slot.
const AnySlot = -1

// RodRegistry is the fixed array of rod slots plus the single pipe slot.
// A rod keeps its slot index for its whole residency. The fuel and starter
// lists are caches rebuilt from the slots after every mutation.
type RodRegistry struct {
	slots    []*Rod
	pipe     *Pipe
	fuel     []*Rod
	starters []*Rod
}

// NewRodRegistry creates a registry with slotCount empty slots.
func NewRodRegistry(slotCount int) *RodRegistry {
	if slotCount <= 0 {
		slotCount = DefaultParams().SlotCount
	}
	return &RodRegistry{
		slots:    make([]*Rod, slotCount),
		fuel:     make([]*Rod, 0, slotCount),
		starters: make([]*Rod, 0, slotCount),
	}
}

// SlotCount returns the fixed number of rod slots.
func (r *RodRegistry) SlotCount() int {
	return len(r.slots)
}

// Rod returns the rod in slot, or nil when the slot is empty or out of range.
func (r *RodRegistry) Rod(slot int) *Rod {
	if slot < 0 || slot >= len(r.slots) {
		return nil
	}
	return r.slots[slot]
}

// Len returns the number of occupied rod slots.
func (r *RodRegistry) Len() int {
	n := 0
	for _, rod := range r.slots {
		if rod != nil {
			n++
		}
	}
	return n
}

// Empty reports whether every rod slot is empty.
func (r *RodRegistry) Empty() bool {
	return r.Len() == 0
}

// Insert places rod into slotHint when that slot is free, otherwise into the
// first empty slot. consoles is the number of connected control consoles,
// which gates starter rods.
func (r *RodRegistry) Insert(rod *Rod, slotHint int, consoles int) (int, error) {
	if err := rod.Validate(); err != nil {
		return 0, err
	}
	for _, existing := range r.slots {
		if existing == rod {
			return 0, fmt.Errorf("%w: rod %s is already inserted", ErrInvalidOperation, rod.ID)
		}
	}

	pos := -1
	if slotHint >= 0 && slotHint < len(r.slots) && r.slots[slotHint] == nil {
		pos = slotHint
	} else {
		for i, existing := range r.slots {
			if existing == nil {
				pos = i
				break
			}
		}
	}
	if pos == -1 {
		return 0, ErrSlotFull
	}

	switch rod.Kind {
	case RodStarter:
		if consoles <= 0 {
			return 0, ErrStarterNotReady
		}
	case RodFuel, RodControl:
	}

	r.slots[pos] = rod
	r.rebuild()
	return pos, nil
}

// place puts rod at slot unconditionally; used when restoring a snapshot.
func (r *RodRegistry) place(slot int, rod *Rod) error {
	if slot < 0 || slot >= len(r.slots) {
		return fmt.Errorf("%w: slot %d out of range", ErrInvalidOperation, slot)
	}
	if r.slots[slot] != nil {
		return fmt.Errorf("%w: slot %d already occupied", ErrInvalidOperation, slot)
	}
	if err := rod.Validate(); err != nil {
		return err
	}
	r.slots[slot] = rod
	r.rebuild()
	return nil
}

// Remove empties slot and returns its rod. An empty or out-of-range slot is a
// no-op returning nil.
func (r *RodRegistry) Remove(slot int) *Rod {
	rod := r.Rod(slot)
	if rod == nil {
		return nil
	}
	r.slots[slot] = nil
	r.rebuild()
	return rod
}

// RemoveLast empties the highest occupied slot. It returns -1, nil when the
// registry is empty.
func (r *RodRegistry) RemoveLast() (int, *Rod) {
	for i := len(r.slots) - 1; i >= 0; i-- {
		if r.slots[i] != nil {
			return i, r.Remove(i)
		}
	}
	return -1, nil
}

// Clear empties every slot and returns the rods that were inserted, in slot order.
func (r *RodRegistry) Clear() []*Rod {
	out := make([]*Rod, 0, len(r.slots))
	for i, rod := range r.slots {
		if rod != nil {
			out = append(out, rod)
			r.slots[i] = nil
		}
	}
	r.rebuild()
	return out
}

// InsertPipe fills the pipe slot.
func (r *RodRegistry) InsertPipe(p *Pipe) error {
	if p == nil {
		return fmt.Errorf("%w: nil pipe", ErrInvalidOperation)
	}
	if r.pipe != nil {
		return ErrPipeOccupied
	}
	r.pipe = p
	return nil
}

// EjectPipe empties the pipe slot and returns its occupant, or nil.
func (r *RodRegistry) EjectPipe() *Pipe {
	p := r.pipe
	r.pipe = nil
	return p
}

// Pipe returns the pipe in the pipe slot, or nil.
func (r *RodRegistry) Pipe() *Pipe {
	return r.pipe
}

// FuelRods returns the cached fuel rods in slot order. Callers must not retain it.
func (r *RodRegistry) FuelRods() []*Rod {
	return r.fuel
}

// StarterRods returns the cached starter rods in slot order. Callers must not retain it.
func (r *RodRegistry) StarterRods() []*Rod {
	return r.starters
}

// NonControlCount counts occupied slots holding anything but a control rod.
func (r *RodRegistry) NonControlCount() int {
	n := 0
	for _, rod := range r.slots {
		if rod == nil {
			continue
		}
		switch rod.Kind {
		case RodFuel, RodStarter:
			n++
		case RodControl:
		}
	}
	return n
}

// ControlAbsorption sums the absorption power of every control rod.
func (r *RodRegistry) ControlAbsorption() float64 {
	var total float64
	for _, rod := range r.slots {
		if rod == nil {
			continue
		}
		switch rod.Kind {
		case RodControl:
			total += rod.AbsorptionPower
		case RodFuel, RodStarter:
		}
	}
	return total
}

// Slots returns a copy of the slot array; empty slots are nil.
func (r *RodRegistry) Slots() []*Rod {
	out := make([]*Rod, len(r.slots))
	copy(out, r.slots)
	return out
}

func (r *RodRegistry) rebuild() {
	r.fuel = r.fuel[:0]
	r.starters = r.starters[:0]
	for _, rod := range r.slots {
		if rod == nil {
			continue
		}
		switch rod.Kind {
		case RodFuel:
			r.fuel = append(r.fuel, rod)
		case RodStarter:
			r.starters = append(r.starters, rod)
		case RodControl:
		}
	}
}
