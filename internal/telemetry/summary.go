package telemetry

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary aggregates a window of rows of one run.
type Summary struct {
	Ticks int `json:"ticks"`

	NeutronMean float64 `json:"neutron_mean"`
	NeutronStd  float64 `json:"neutron_std"`
	NeutronP50  float64 `json:"neutron_p50"`
	NeutronP90  float64 `json:"neutron_p90"`
	NeutronMax  float64 `json:"neutron_max"`

	KFactorMean float64 `json:"k_factor_mean"`

	TemperatureMean float64 `json:"temperature_mean"`
	TemperatureMax  float64 `json:"temperature_max"`
	PressureMax     float64 `json:"pressure_max"`
	EnergyTotal     float64 `json:"energy_total"`
	BoiledOffTotal  float64 `json:"boiled_off_total"`
	LeakMean        float64 `json:"leak_mean"`

	SpontaneousTicks int `json:"spontaneous_ticks"`
	FaultedTicks     int `json:"faulted_ticks"`

	// First tick each facet was observed set, 0 if never.
	MeltdownTick int64 `json:"meltdown_tick"`
	RuptureTick  int64 `json:"rupture_tick"`
	ExplodedTick int64 `json:"exploded_tick"`

	FinalPhase string `json:"final_phase"`
}

// Summarize computes the summary of rows in tick order. An empty window
// yields the zero Summary.
func Summarize(rows []Row) Summary {
	var s Summary
	n := len(rows)
	if n == 0 {
		return s
	}
	s.Ticks = n

	neutrons := make([]float64, n)
	kfactors := make([]float64, n)
	temps := make([]float64, n)
	pressures := make([]float64, n)
	energies := make([]float64, n)
	boiled := make([]float64, n)
	leaks := make([]float64, n)
	for i, r := range rows {
		neutrons[i] = r.Neutrons
		kfactors[i] = r.KFactor
		temps[i] = r.Temperature
		pressures[i] = r.Pressure
		energies[i] = r.Energy
		boiled[i] = r.BoiledOff
		leaks[i] = r.LeakLevel
		if r.Spontaneous {
			s.SpontaneousTicks++
		}
		if r.EnergyFaulted {
			s.FaultedTicks++
		}
		if r.MeltedDown && s.MeltdownTick == 0 {
			s.MeltdownTick = r.Tick
		}
		if r.PipesRuptured && s.RuptureTick == 0 {
			s.RuptureTick = r.Tick
		}
		if r.Exploded && s.ExplodedTick == 0 {
			s.ExplodedTick = r.Tick
		}
	}

	s.NeutronMean, s.NeutronStd = stat.MeanStdDev(neutrons, nil)
	if n == 1 {
		s.NeutronStd = 0
	}
	s.NeutronMax = floats.Max(neutrons)
	sorted := slices.Clone(neutrons)
	slices.Sort(sorted)
	s.NeutronP50 = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	s.NeutronP90 = stat.Quantile(0.9, stat.Empirical, sorted, nil)

	s.KFactorMean = stat.Mean(kfactors, nil)
	s.TemperatureMean = stat.Mean(temps, nil)
	s.TemperatureMax = floats.Max(temps)
	s.PressureMax = floats.Max(pressures)
	s.EnergyTotal = floats.Sum(energies)
	s.BoiledOffTotal = floats.Sum(boiled)
	s.LeakMean = stat.Mean(leaks, nil)
	s.FinalPhase = rows[n-1].Phase

	for _, v := range []*float64{&s.NeutronMean, &s.NeutronStd, &s.KFactorMean, &s.TemperatureMean, &s.LeakMean} {
		if math.IsNaN(*v) {
			*v = 0
		}
	}
	return s
}
