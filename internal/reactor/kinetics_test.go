package reactor

import (
	"math"
	"math/rand"
	"testing"
)

const epsilon = 1e-9

func approxEqual(a, b float64) bool {
	if a == b {
		return true
	}
	return math.Abs(a-b) <= epsilon*math.Max(math.Abs(a), math.Abs(b))
}

func TestAbsorptionProbability_Normal(t *testing.T) {
	p := DefaultParams()
	r := NewRodRegistry(p.SlotCount)
	r.Insert(NewFuelRod("f", p.Rods.Fuel), AnySlot, 0)
	r.Insert(NewControlRod("c", 5), AnySlot, 0)

	got := AbsorptionProbability(p, r, 1.0, false, 1000)
	want := 1.0 / (16 + 5*1.0)
	if !approxEqual(got, want) {
		t.Errorf("AbsorptionProbability = %v, want %v", got, want)
	}

	got = AbsorptionProbability(p, r, 0.1, false, 1000)
	want = 1.0 / (16 + 5*0.1)
	if !approxEqual(got, want) {
		t.Errorf("AbsorptionProbability at depth 0.1 = %v, want %v", got, want)
	}
}

func TestAbsorptionProbability_MeltedIgnoresControlRods(t *testing.T) {
	p := DefaultParams()
	r := NewRodRegistry(p.SlotCount)
	r.Insert(NewFuelRod("f", p.Rods.Fuel), AnySlot, 0)
	r.Insert(NewControlRod("c", 5), AnySlot, 0)

	got := AbsorptionProbability(p, r, 1.0, true, 300)
	want := (100.0 / 400.0) * (1.0 / 16)
	if !approxEqual(got, want) {
		t.Errorf("melted AbsorptionProbability = %v, want %v", got, want)
	}
}

func TestNeutronKinetics_SpontaneousRate(t *testing.T) {
	k := newNeutronKinetics(DefaultParams(), rand.New(rand.NewSource(1)))
	hits := 0
	const rolls = 100000
	for i := 0; i < rolls; i++ {
		if k.spontaneous() {
			hits++
		}
	}
	// draws 0..99 out of 0..10000 succeed
	rate := float64(hits) / rolls
	if rate < 0.007 || rate > 0.013 {
		t.Errorf("spontaneous rate %.4f outside expected ~1%%", rate)
	}
}

func TestNeutronKinetics_DeterministicWithSeed(t *testing.T) {
	p := DefaultParams()
	r := NewRodRegistry(p.SlotCount)
	a := newNeutronKinetics(p, rand.New(rand.NewSource(42)))
	b := newNeutronKinetics(p, rand.New(rand.NewSource(42)))
	for i := 0; i < 1000; i++ {
		ra := a.Step(r, kineticsInput{Depth: 1})
		rb := b.Step(r, kineticsInput{Depth: 1})
		if ra != rb {
			t.Fatalf("step %d diverged: %+v vs %+v", i, ra, rb)
		}
	}
}

func TestNeutronKinetics_InjectionOrder(t *testing.T) {
	p := DefaultParams()
	p.SpontaneousLikelihood = 0
	r := NewRodRegistry(p.SlotCount)
	r.Insert(NewStarterRod("s1", 100), AnySlot, 1)
	r.Insert(NewStarterRod("s2", 50), AnySlot, 1)
	r.Insert(NewFuelRod("f", p.Rods.Fuel), AnySlot, 1)

	k := newNeutronKinetics(p, rand.New(rand.NewSource(1)))
	res := k.Step(r, kineticsInput{Population: 10, Depth: 1, ExternalFlux: 5})

	if res.Spontaneous {
		t.Error("Expected no spontaneous neutron with zero likelihood")
	}
	if res.StarterNeutrons != 150 {
		t.Errorf("StarterNeutrons = %v, want 150", res.StarterNeutrons)
	}
	if res.ExternalNeutrons != 5 {
		t.Errorf("ExternalNeutrons = %v, want 5", res.ExternalNeutrons)
	}
	if res.NeutronsBefore != 165 {
		t.Errorf("NeutronsBefore = %v, want 165", res.NeutronsBefore)
	}
	wantK := p.KConstant * 3.0 / 16
	if !approxEqual(res.KFactor, wantK) {
		t.Errorf("KFactor = %v, want %v", res.KFactor, wantK)
	}
	if !approxEqual(res.NeutronsAfter, 165*wantK) {
		t.Errorf("NeutronsAfter = %v, want %v", res.NeutronsAfter, 165*wantK)
	}
	if res.Singular {
		t.Error("Expected no singularity")
	}
}

func TestNeutronKinetics_NegativeFluxIgnored(t *testing.T) {
	p := DefaultParams()
	p.SpontaneousLikelihood = 0
	k := newNeutronKinetics(p, rand.New(rand.NewSource(1)))
	res := k.Step(NewRodRegistry(p.SlotCount), kineticsInput{Population: 10, Depth: 1, ExternalFlux: -50})
	if res.ExternalNeutrons != 0 || res.NeutronsBefore != 10 {
		t.Errorf("negative flux leaked into population: %+v", res)
	}
}

func TestLeakLevel(t *testing.T) {
	leak := DefaultParams().Leak
	if got := leakLevel(0, leak); got != 0 {
		t.Errorf("leakLevel(0) = %v, want 0", got)
	}
	if got := leakLevel(1, leak); got != 0 {
		t.Errorf("leakLevel below the curve's knee should floor at 0, got %v", got)
	}

	prev := 0.0
	for _, n := range []float64{1e3, 1e5, 1e7, 1e9, 1e11} {
		got := leakLevel(n, leak)
		if got < prev {
			t.Errorf("leakLevel(%g) = %v decreased from %v", n, got, prev)
		}
		if got >= leak.Scale {
			t.Errorf("leakLevel(%g) = %v reached the asymptote %v", n, got, leak.Scale)
		}
		prev = got
	}
}
