package reactor

import "math"

// ThermalResult is the outcome of coupling one tick's energy into the coolant.
type ThermalResult struct {
	EnergyApplied float64 `json:"energy_applied"`
	Temperature   float64 `json:"temperature"`
	Pressure      float64 `json:"pressure"`
	Ruptured      bool    `json:"ruptured"` // PipesRuptured was set this tick
	EjectedPipe   *Pipe   `json:"ejected_pipe,omitempty"`
	BoiledOff     float64 `json:"boiled_off"`
}

// ThermalPressureCoupler heats the coolant, derives pressure, ruptures the
// pipes on over-pressure and vents steam while ruptured.
type ThermalPressureCoupler struct {
	params Params
}

func newThermalPressureCoupler(params Params) *ThermalPressureCoupler {
	return &ThermalPressureCoupler{params: params}
}

// Pressure derives the chamber pressure from the coolant, clamped to PressureBound.
func (c *ThermalPressureCoupler) Pressure(fluid ThermalFluid) float64 {
	p := (fluid.Temperature() - c.params.ReferenceTemperature) * fluid.TotalMoles()
	if math.IsNaN(p) {
		return 0
	}
	return clamp(p, -PressureBound, PressureBound)
}

// Apply runs the thermal stage. energy must already be finite.
func (c *ThermalPressureCoupler) Apply(fluid ThermalFluid, energy float64, reg *RodRegistry, safety *SafetyStateMachine) ThermalResult {
	res := ThermalResult{}

	if fluid.WholeHeatCapacity() != 0 {
		fluid.SetInternalEnergy(fluid.InternalEnergy() + energy)
		res.EnergyApplied = energy
	}

	res.Pressure = c.Pressure(fluid)
	if res.Pressure > c.params.MaxPressure {
		res.Ruptured = safety.markRuptured()
		res.EjectedPipe = reg.EjectPipe()
	}

	if safety.State().PipesRuptured {
		res.BoiledOff = c.boilOff(fluid)
	}
	res.Temperature = fluid.Temperature()
	return res
}

// boilOff vents the energy above the boiling point as evaporated mass.
func (c *ThermalPressureCoupler) boilOff(fluid ThermalFluid) float64 {
	capacity := fluid.WholeHeatCapacity()
	temp := fluid.Temperature()
	if capacity <= 0 || temp <= c.params.BoilingPoint {
		return 0
	}
	excess := (temp - c.params.BoilingPoint) * capacity
	return fluid.RemoveMass(excess / c.params.EnergyToEvaporate)
}
