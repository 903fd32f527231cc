package reactor

import (
	"errors"
	"fmt"
	"math"
)

// PressureBound is the largest magnitude a derived pressure is clamped to. It
// is the representable range of the high-precision accumulator pressure used to
// be stored in, not a physical limit.
const PressureBound = 7.922816251426434e28

// LeakParams shapes the saturation curve used to publish neutron leakage.
type LeakParams struct {
	Chance   float64 `yaml:"chance" json:"chance"`     // fraction of the population that leaks
	Exponent float64 `yaml:"exponent" json:"exponent"` // compression exponent of the curve
	Scale    float64 `yaml:"scale" json:"scale"`       // output range the curve is rescaled to
}

// Params are the tuned constants of one core.
type Params struct {
	SlotCount int     `yaml:"slot_count" json:"slot_count"`
	KConstant float64 `yaml:"k_constant" json:"k_constant"`

	// A spontaneous neutron appears when
	// SpontaneousLikelihood > draw/SpontaneousDrawScale, draw uniform in [0, SpontaneousDrawRange].
	SpontaneousLikelihood float64 `yaml:"spontaneous_likelihood" json:"spontaneous_likelihood"`
	SpontaneousDrawRange  int     `yaml:"spontaneous_draw_range" json:"spontaneous_draw_range"`
	SpontaneousDrawScale  float64 `yaml:"spontaneous_draw_scale" json:"spontaneous_draw_scale"`

	NeutronSingularity float64 `yaml:"neutron_singularity" json:"neutron_singularity"`
	MinControlRodDepth float64 `yaml:"min_control_rod_depth" json:"min_control_rod_depth"`
	MaxControlRodDepth float64 `yaml:"max_control_rod_depth" json:"max_control_rod_depth"`
	MeltdownPenalty    float64 `yaml:"meltdown_penalty" json:"meltdown_penalty"`

	ReferenceTemperature  float64 `yaml:"reference_temperature" json:"reference_temperature"`
	RodMeltingTemperature float64 `yaml:"rod_melting_temperature" json:"rod_melting_temperature"`
	BoilingPoint          float64 `yaml:"boiling_point" json:"boiling_point"`
	EnergyToEvaporate     float64 `yaml:"energy_to_evaporate" json:"energy_to_evaporate"`
	MaxPressure           float64 `yaml:"max_pressure" json:"max_pressure"`

	ExplosionYield         float64 `yaml:"explosion_yield" json:"explosion_yield"`
	ConstructMaterialYield int     `yaml:"construct_material_yield" json:"construct_material_yield"`

	Leak LeakParams `yaml:"leak" json:"leak"`
	Rods RodCatalog `yaml:"rods" json:"rods"`
}

// DefaultParams returns the stock graphite chamber.
func DefaultParams() Params {
	return Params{
		SlotCount: 16,
		KConstant: 0.85217022,

		SpontaneousLikelihood: 0.1,
		SpontaneousDrawRange:  10000,
		SpontaneousDrawScale:  1000,

		NeutronSingularity: 76488300000,
		MinControlRodDepth: 0.1,
		MaxControlRodDepth: 1.0,
		MeltdownPenalty:    100,

		ReferenceTemperature:  293.15,
		RodMeltingTemperature: 1100,
		BoilingPoint:          373.15,
		EnergyToEvaporate:     2000,
		MaxPressure:           120000,

		ExplosionYield:         120000,
		ConstructMaterialYield: 40,

		Leak: LeakParams{
			Chance:   0.0397,
			Exponent: 0.82,
			Scale:    36000,
		},
		Rods: RodCatalog{
			Fuel: FuelRodSpec{
				Atoms:            5e15,
				EnergyPerNeutron: 1.5e-3,
				NeutronYield:     2.5,
			},
			ControlAbsorptionPower: 5,
			StarterNeutronsPerTick: 100,
		},
	}
}

// Validate reports every constant that would make the model undefined.
func (p Params) Validate() error {
	var errs []error
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"k_constant", p.KConstant},
		{"spontaneous_likelihood", p.SpontaneousLikelihood},
		{"spontaneous_draw_scale", p.SpontaneousDrawScale},
		{"neutron_singularity", p.NeutronSingularity},
		{"min_control_rod_depth", p.MinControlRodDepth},
		{"max_control_rod_depth", p.MaxControlRodDepth},
		{"meltdown_penalty", p.MeltdownPenalty},
		{"reference_temperature", p.ReferenceTemperature},
		{"rod_melting_temperature", p.RodMeltingTemperature},
		{"boiling_point", p.BoilingPoint},
		{"energy_to_evaporate", p.EnergyToEvaporate},
		{"max_pressure", p.MaxPressure},
		{"explosion_yield", p.ExplosionYield},
		{"leak.chance", p.Leak.Chance},
		{"leak.exponent", p.Leak.Exponent},
		{"leak.scale", p.Leak.Scale},
		{"rods.fuel.atoms", p.Rods.Fuel.Atoms},
		{"rods.fuel.energy_per_neutron", p.Rods.Fuel.EnergyPerNeutron},
		{"rods.fuel.neutron_yield", p.Rods.Fuel.NeutronYield},
		{"rods.control_absorption_power", p.Rods.ControlAbsorptionPower},
		{"rods.starter_neutrons_per_tick", p.Rods.StarterNeutronsPerTick},
	} {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			errs = append(errs, fmt.Errorf("%s must be finite, got %g", f.name, f.value))
		}
	}
	if p.SlotCount <= 0 {
		errs = append(errs, fmt.Errorf("slot_count must be positive, got %d", p.SlotCount))
	}
	if p.KConstant < 0 {
		errs = append(errs, fmt.Errorf("k_constant must be non-negative, got %g", p.KConstant))
	}
	if p.SpontaneousDrawRange < 0 {
		errs = append(errs, fmt.Errorf("spontaneous_draw_range must be non-negative, got %d", p.SpontaneousDrawRange))
	}
	if p.SpontaneousDrawScale <= 0 {
		errs = append(errs, fmt.Errorf("spontaneous_draw_scale must be positive, got %g", p.SpontaneousDrawScale))
	}
	if p.NeutronSingularity <= 0 {
		errs = append(errs, fmt.Errorf("neutron_singularity must be positive, got %g", p.NeutronSingularity))
	}
	if p.MinControlRodDepth <= 0 || p.MinControlRodDepth > p.MaxControlRodDepth {
		errs = append(errs, fmt.Errorf("control rod depth range [%g, %g] is invalid", p.MinControlRodDepth, p.MaxControlRodDepth))
	}
	if p.MeltdownPenalty <= 0 {
		errs = append(errs, fmt.Errorf("meltdown_penalty must be positive, got %g", p.MeltdownPenalty))
	}
	if p.EnergyToEvaporate <= 0 {
		errs = append(errs, fmt.Errorf("energy_to_evaporate must be positive, got %g", p.EnergyToEvaporate))
	}
	if p.MaxPressure <= 0 {
		errs = append(errs, fmt.Errorf("max_pressure must be positive, got %g", p.MaxPressure))
	}
	if p.ConstructMaterialYield < 0 {
		errs = append(errs, fmt.Errorf("construct_material_yield must be non-negative, got %d", p.ConstructMaterialYield))
	}
	if p.Leak.Chance < 0 || p.Leak.Exponent <= 0 || p.Leak.Scale < 0 {
		errs = append(errs, fmt.Errorf("leak curve %+v is invalid", p.Leak))
	}
	if p.Rods.ControlAbsorptionPower < 0 || p.Rods.StarterNeutronsPerTick < 0 ||
		p.Rods.Fuel.Atoms < 0 || p.Rods.Fuel.EnergyPerNeutron < 0 || p.Rods.Fuel.NeutronYield < 0 {
		errs = append(errs, fmt.Errorf("rod catalog %+v has negative values", p.Rods))
	}
	return errors.Join(errs...)
}

// ClampDepth clamps a requested control rod depth into the allowed range.
func (p Params) ClampDepth(depth float64) float64 {
	return clamp(depth, p.MinControlRodDepth, p.MaxControlRodDepth)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
