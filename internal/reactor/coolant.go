package reactor

import (
	"math"
	"sync"
)

// CoolantState is the serialisable state of a CoolantMix.
type CoolantState struct {
	Moles             float64 `json:"moles" yaml:"moles"`
	MolarHeatCapacity float64 `json:"molar_heat_capacity" yaml:"molar_heat_capacity"`
	InternalEnergy    float64 `json:"internal_energy" yaml:"internal_energy"`
}

// CoolantMix is an in-memory single-reagent coolant: temperature is internal
// energy over whole heat capacity.
type CoolantMix struct {
	mu    sync.RWMutex
	state CoolantState
}

// NewCoolantMix creates moles of coolant at the given temperature.
func NewCoolantMix(moles, molarHeatCapacity, temperature float64) *CoolantMix {
	c := &CoolantMix{state: CoolantState{
		Moles:             math.Max(0, moles),
		MolarHeatCapacity: math.Max(0, molarHeatCapacity),
	}}
	c.state.InternalEnergy = temperature * c.state.Moles * c.state.MolarHeatCapacity
	return c
}

// NewCoolantMixFromState rebuilds a mix from a snapshot.
func NewCoolantMixFromState(s CoolantState) *CoolantMix {
	return &CoolantMix{state: s}
}

func (c *CoolantMix) capacityLocked() float64 {
	return c.state.Moles * c.state.MolarHeatCapacity
}

// Temperature returns the temperature in kelvin; an empty mix reads 0.
func (c *CoolantMix) Temperature() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	capacity := c.capacityLocked()
	if capacity <= 0 {
		return 0
	}
	return c.state.InternalEnergy / capacity
}

// SetTemperature rescales the internal energy to reach kelvin.
func (c *CoolantMix) SetTemperature(kelvin float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.InternalEnergy = kelvin * c.capacityLocked()
}

func (c *CoolantMix) WholeHeatCapacity() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.capacityLocked()
}

func (c *CoolantMix) InternalEnergy() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.InternalEnergy
}

func (c *CoolantMix) SetInternalEnergy(joules float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.InternalEnergy = joules
}

func (c *CoolantMix) TotalMoles() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Moles
}

// RemoveMass takes moles out together with their share of internal energy,
// leaving the temperature unchanged.
func (c *CoolantMix) RemoveMass(amount float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if amount <= 0 || c.state.Moles <= 0 || math.IsNaN(amount) {
		return 0
	}
	removed := math.Min(amount, c.state.Moles)
	frac := removed / c.state.Moles
	c.state.InternalEnergy *= 1 - frac
	c.state.Moles -= removed
	return removed
}

// AddMass mixes in moles at temperature kelvin.
func (c *CoolantMix) AddMass(moles, kelvin float64) {
	if moles <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Moles += moles
	c.state.InternalEnergy += moles * c.state.MolarHeatCapacity * kelvin
}

// Exchange moves the mix toward ambient by conductance (0..1) of the
// temperature gap, as a heat exchanger loop would between ticks.
func (c *CoolantMix) Exchange(ambient, conductance float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	capacity := c.capacityLocked()
	if capacity <= 0 || conductance <= 0 {
		return 0
	}
	temp := c.state.InternalEnergy / capacity
	moved := (temp - ambient) * clamp(conductance, 0, 1) * capacity
	c.state.InternalEnergy -= moved
	return moved
}

// State returns a copy of the mix state.
func (c *CoolantMix) State() CoolantState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}
