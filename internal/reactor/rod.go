package reactor

import (
	"fmt"
	"math"
	"strings"
)

// RodKind tags the variant a Rod belongs to. Every switch over it is exhaustive.
type RodKind uint8

const (
	RodFuel RodKind = iota + 1
	RodControl
	RodStarter
)

// String returns the string representation of the rod kind
func (k RodKind) String() string {
	switch k {
	case RodFuel:
		return "fuel"
	case RodControl:
		return "control"
	case RodStarter:
		return "starter"
	default:
		return "unknown"
	}
}

// ParseRodKind parses a rod kind name (case-insensitive).
func ParseRodKind(s string) (RodKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fuel":
		return RodFuel, nil
	case "control":
		return RodControl, nil
	case "starter":
		return RodStarter, nil
	default:
		return 0, fmt.Errorf("%w: unknown rod kind %q", ErrInvalidOperation, s)
	}
}

func (k RodKind) MarshalText() ([]byte, error) {
	if k < RodFuel || k > RodStarter {
		return nil, fmt.Errorf("invalid rod kind %d", k)
	}
	return []byte(k.String()), nil
}

func (k *RodKind) UnmarshalText(text []byte) error {
	parsed, err := ParseRodKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Rod is one insertable rod. Only the fields of its Kind are meaningful:
//   - fuel: Atoms, EnergyPerNeutron, NeutronYield
//   - control: AbsorptionPower
//   - starter: NeutronsPerTick
type Rod struct {
	ID   string  `json:"id"`
	Kind RodKind `json:"kind"`

	AbsorptionPower float64 `json:"absorption_power,omitempty"`

	NeutronsPerTick float64 `json:"neutrons_per_tick,omitempty"`

	Atoms            float64 `json:"atoms,omitempty"`
	EnergyPerNeutron float64 `json:"energy_per_neutron,omitempty"`
	NeutronYield     float64 `json:"neutron_yield,omitempty"`
}

// NewFuelRod creates a fuel rod from its fission parameters.
func NewFuelRod(id string, spec FuelRodSpec) *Rod {
	return &Rod{
		ID:               id,
		Kind:             RodFuel,
		Atoms:            spec.Atoms,
		EnergyPerNeutron: spec.EnergyPerNeutron,
		NeutronYield:     spec.NeutronYield,
	}
}

// NewControlRod creates a control rod with the given absorption power.
func NewControlRod(id string, absorptionPower float64) *Rod {
	return &Rod{ID: id, Kind: RodControl, AbsorptionPower: absorptionPower}
}

// NewStarterRod creates a starter rod emitting neutronsPerTick every tick.
func NewStarterRod(id string, neutronsPerTick float64) *Rod {
	return &Rod{ID: id, Kind: RodStarter, NeutronsPerTick: neutronsPerTick}
}

// Validate checks the fields of the rod's own variant.
func (r *Rod) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil rod", ErrInvalidOperation)
	}
	switch r.Kind {
	case RodFuel:
		if !nonNegative(r.Atoms, r.EnergyPerNeutron, r.NeutronYield) {
			return fmt.Errorf("%w: fuel rod %s has negative or non-finite fission parameters", ErrInvalidOperation, r.ID)
		}
	case RodControl:
		if !nonNegative(r.AbsorptionPower) {
			return fmt.Errorf("%w: control rod %s has negative or non-finite absorption power", ErrInvalidOperation, r.ID)
		}
	case RodStarter:
		if !nonNegative(r.NeutronsPerTick) {
			return fmt.Errorf("%w: starter rod %s has negative or non-finite neutron rate", ErrInvalidOperation, r.ID)
		}
	default:
		return fmt.Errorf("%w: rod %s has unknown kind %d", ErrInvalidOperation, r.ID, r.Kind)
	}
	return nil
}

// nonNegative reports whether every value is finite and >= 0. NaN fails.
func nonNegative(values ...float64) bool {
	for _, v := range values {
		if !(v >= 0) || math.IsInf(v, 1) {
			return false
		}
	}
	return true
}

// Depleted reports whether a fuel rod has no atoms left to split.
func (r *Rod) Depleted() bool {
	return r.Kind == RodFuel && r.Atoms <= 0
}

// processHit splits up to absorbed atoms and returns the released energy and
// the secondary neutrons. Non-fuel and depleted rods release nothing.
func (r *Rod) processHit(absorbed float64) (energy, secondaries float64) {
	switch r.Kind {
	case RodFuel:
		if absorbed <= 0 || r.Atoms <= 0 {
			return 0, 0
		}
		split := math.Min(absorbed, r.Atoms)
		r.Atoms -= split
		return split * r.EnergyPerNeutron, split * r.NeutronYield
	case RodControl, RodStarter:
		return 0, 0
	default:
		return 0, 0
	}
}

func (r *Rod) clone() *Rod {
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}

// Pipe occupies the chamber's single pipe slot.
type Pipe struct {
	ID string `json:"id"`
}

// Material is what a torn-down core leaves behind.
type Material string

const (
	MaterialUraniumOre   Material = "uranium_ore"
	MaterialMetalOre     Material = "metal_ore"
	MaterialConstruction Material = "construct_material"
)

// FuelRodSpec holds the fission parameters new fuel rods are built with.
type FuelRodSpec struct {
	Atoms            float64 `yaml:"atoms" json:"atoms"`
	EnergyPerNeutron float64 `yaml:"energy_per_neutron" json:"energy_per_neutron"` // joules per split atom
	NeutronYield     float64 `yaml:"neutron_yield" json:"neutron_yield"`           // secondaries per split atom
}

// RodCatalog holds the parameters used when the host asks for a fresh rod by kind.
type RodCatalog struct {
	Fuel                   FuelRodSpec `yaml:"fuel" json:"fuel"`
	ControlAbsorptionPower float64     `yaml:"control_absorption_power" json:"control_absorption_power"`
	StarterNeutronsPerTick float64     `yaml:"starter_neutrons_per_tick" json:"starter_neutrons_per_tick"`
}

// NewRod builds a rod of the given kind from the catalog.
func (c RodCatalog) NewRod(kind RodKind, id string) (*Rod, error) {
	switch kind {
	case RodFuel:
		return NewFuelRod(id, c.Fuel), nil
	case RodControl:
		return NewControlRod(id, c.ControlAbsorptionPower), nil
	case RodStarter:
		return NewStarterRod(id, c.StarterNeutronsPerTick), nil
	default:
		return nil, fmt.Errorf("%w: unknown rod kind %d", ErrInvalidOperation, kind)
	}
}
