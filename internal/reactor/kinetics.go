package reactor

import (
	"math/rand"
)

// kineticsInput is what the kinetics stage reads from outside the registry.
type kineticsInput struct {
	Population   float64
	Depth        float64
	MeltedDown   bool
	TotalMoles   float64
	ExternalFlux float64
}

// KineticsResult is the outcome of one neutron population update.
type KineticsResult struct {
	Spontaneous           bool    `json:"spontaneous"`
	StarterNeutrons       float64 `json:"starter_neutrons"`
	ExternalNeutrons      float64 `json:"external_neutrons"`
	NeutronsBefore        float64 `json:"neutrons_before"`
	AbsorptionProbability float64 `json:"absorption_probability"`
	KFactor               float64 `json:"k_factor"`
	NeutronsAfter         float64 `json:"neutrons_after"`
	LeakLevel             float64 `json:"leak_level"`
	Singular              bool    `json:"singular"`
}

// NeutronKinetics injects neutrons and multiplies the population by k.
type NeutronKinetics struct {
	params Params
	rng    *rand.Rand
}

func newNeutronKinetics(params Params, rng *rand.Rand) *NeutronKinetics {
	return &NeutronKinetics{params: params, rng: rng}
}

// AbsorptionProbability is the fraction of neutrons not captured by control
// rods. Once melted down the control rods no longer matter and the coolant's
// mole count penalises the non-control fraction instead.
func AbsorptionProbability(p Params, reg *RodRegistry, depth float64, meltedDown bool, totalMoles float64) float64 {
	slots := float64(reg.SlotCount())
	nonControl := float64(reg.NonControlCount())
	if !meltedDown {
		return nonControl / (slots + reg.ControlAbsorption()*depth)
	}
	if totalMoles < 0 {
		totalMoles = 0
	}
	return (p.MeltdownPenalty / (p.MeltdownPenalty + totalMoles)) * (nonControl / slots)
}

// spontaneous rolls the integer draw and reports whether a neutron appears.
func (k *NeutronKinetics) spontaneous() bool {
	draw := k.rng.Intn(k.params.SpontaneousDrawRange + 1)
	return k.params.SpontaneousLikelihood > float64(draw)/k.params.SpontaneousDrawScale
}

// Step runs injection, leakage and multiplication for one tick.
func (k *NeutronKinetics) Step(reg *RodRegistry, in kineticsInput) KineticsResult {
	res := KineticsResult{}
	population := in.Population

	if k.spontaneous() {
		res.Spontaneous = true
		population++
	}

	for _, starter := range reg.StarterRods() {
		res.StarterNeutrons += starter.NeutronsPerTick
	}
	population += res.StarterNeutrons

	if in.ExternalFlux > 0 {
		res.ExternalNeutrons = in.ExternalFlux
		population += in.ExternalFlux
	}

	res.NeutronsBefore = population
	res.LeakLevel = leakLevel(population, k.params.Leak)

	res.AbsorptionProbability = AbsorptionProbability(k.params, reg, in.Depth, in.MeltedDown, in.TotalMoles)
	res.KFactor = k.params.KConstant * res.AbsorptionProbability
	res.NeutronsAfter = population * res.KFactor
	res.Singular = res.NeutronsAfter > k.params.NeutronSingularity
	return res
}
