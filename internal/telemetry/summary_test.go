package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarize_Empty(t *testing.T) {
	assert.Equal(t, Summary{}, Summarize(nil))
}

func TestSummarize_SingleRow(t *testing.T) {
	s := Summarize([]Row{{Tick: 1, Neutrons: 7, Temperature: 300, Phase: "normal"}})
	assert.Equal(t, 1, s.Ticks)
	assert.Equal(t, 7.0, s.NeutronMean)
	assert.Equal(t, 0.0, s.NeutronStd)
	assert.Equal(t, 7.0, s.NeutronP90)
}

func TestSummarize_Window(t *testing.T) {
	var rows []Row
	for i := 1; i <= 10; i++ {
		rows = append(rows, Row{
			Tick:        int64(i),
			Neutrons:    float64(11 - i),
			KFactor:     0.5,
			Temperature: 290 + float64(i),
			Pressure:    float64(i * 100),
			Energy:      2,
			Spontaneous: i%5 == 0,
			MeltedDown:  i >= 7,
			Phase:       "normal",
		})
	}
	rows[9].Phase = "melted_down"

	s := Summarize(rows)
	assert.Equal(t, 10, s.Ticks)
	assert.InDelta(t, 5.5, s.NeutronMean, 1e-9)
	assert.InDelta(t, 3.0276503540974917, s.NeutronStd, 1e-9)
	assert.Equal(t, 5.0, s.NeutronP50)
	assert.Equal(t, 9.0, s.NeutronP90)
	assert.Equal(t, 10.0, s.NeutronMax)
	assert.Equal(t, 0.5, s.KFactorMean)
	assert.Equal(t, 300.0, s.TemperatureMax)
	assert.Equal(t, 1000.0, s.PressureMax)
	assert.Equal(t, 20.0, s.EnergyTotal)
	assert.Equal(t, 2, s.SpontaneousTicks)
	assert.Equal(t, int64(7), s.MeltdownTick)
	assert.Equal(t, int64(0), s.ExplodedTick)
	assert.Equal(t, "melted_down", s.FinalPhase)
}
