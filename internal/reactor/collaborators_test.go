package reactor

import (
	"math"
	"testing"
)

func TestCoolantMix(t *testing.T) {
	c := NewCoolantMix(100, 20, 300)
	if c.WholeHeatCapacity() != 2000 {
		t.Errorf("WholeHeatCapacity = %v, want 2000", c.WholeHeatCapacity())
	}
	if !approxEqual(c.Temperature(), 300) {
		t.Errorf("Temperature = %v, want 300", c.Temperature())
	}

	c.SetInternalEnergy(c.InternalEnergy() + 2000)
	if !approxEqual(c.Temperature(), 301) {
		t.Errorf("Temperature after 2000 J = %v, want 301", c.Temperature())
	}

	if got := c.RemoveMass(200); got != 100 {
		t.Errorf("RemoveMass beyond content = %v, want 100", got)
	}
	if c.TotalMoles() != 0 || c.Temperature() != 0 {
		t.Errorf("Expected empty mix to read 0 moles and 0 K, got %v and %v", c.TotalMoles(), c.Temperature())
	}
	if got := c.RemoveMass(math.NaN()); got != 0 {
		t.Errorf("RemoveMass(NaN) = %v", got)
	}

	c.AddMass(50, 400)
	if !approxEqual(c.Temperature(), 400) {
		t.Errorf("Temperature after refill = %v, want 400", c.Temperature())
	}
	moved := c.Exchange(300, 0.5)
	if !approxEqual(c.Temperature(), 350) || !approxEqual(moved, 50*50*20) {
		t.Errorf("Exchange moved %v, temperature %v", moved, c.Temperature())
	}
}

func TestRadiationGrid(t *testing.T) {
	g := NewRadiationGrid(0.5, 10)
	g.SetLeakLevel("a", 100)
	g.SetLeakLevel("b", 40)
	g.SetLeakLevel("c", math.Inf(1))

	if got := g.ExternalNeutronFlux("a"); got != 10+20 {
		t.Errorf("flux at a = %v, want 30", got)
	}
	if got := g.ExternalNeutronFlux("b"); got != 10+50 {
		t.Errorf("flux at b = %v, want 60", got)
	}
	if g.Level("c") != 0 {
		t.Errorf("non-finite level stored as %v", g.Level("c"))
	}

	g.Remove("a")
	src := g.Sources()
	if len(src) != 2 || src[0] != "b" || src[1] != "c" {
		t.Errorf("Sources = %v", src)
	}
}

func TestBin(t *testing.T) {
	b := NewBin()
	b.StoreRod(NewControlRod("c", 5))
	b.StoreRod(nil)
	b.StorePipe(&Pipe{ID: "p"})
	b.SpawnMaterial(MaterialMetalOre, 2)
	b.SpawnMaterial(MaterialMetalOre, 0)

	if rod := b.TakeRod("c"); rod == nil {
		t.Error("Expected to take rod c back")
	}
	if rod := b.TakeRod("c"); rod != nil {
		t.Error("Expected rod c to be gone")
	}
	if p := b.TakePipe(); p == nil || p.ID != "p" {
		t.Errorf("TakePipe = %v", p)
	}
	if b.TakePipe() != nil {
		t.Error("Expected no more pipes")
	}
	if b.Materials()[MaterialMetalOre] != 2 {
		t.Errorf("Materials = %v", b.Materials())
	}
}

func TestConsoleBank(t *testing.T) {
	cb := NewConsoleBank("a")
	cb.Connect("b")
	cb.Connect("b")
	if cb.ConnectedConsoleCount() != 2 {
		t.Errorf("count = %d, want 2", cb.ConnectedConsoleCount())
	}
	cb.Disconnect("a")
	cb.Disconnect("missing")
	if cb.ConnectedConsoleCount() != 1 {
		t.Errorf("count = %d, want 1", cb.ConnectedConsoleCount())
	}
}

func TestRodKindText(t *testing.T) {
	for _, k := range []RodKind{RodFuel, RodControl, RodStarter} {
		text, err := k.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%d): %v", k, err)
		}
		var back RodKind
		if err := back.UnmarshalText(text); err != nil || back != k {
			t.Errorf("round trip %s -> %s (%v)", k, back, err)
		}
	}
	if _, err := RodKind(0).MarshalText(); err == nil {
		t.Error("Expected error for zero kind")
	}
	if k, err := ParseRodKind(" Control "); err != nil || k != RodControl {
		t.Errorf("ParseRodKind = %v, %v", k, err)
	}
}

func TestRod_ProcessHitDepletes(t *testing.T) {
	rod := NewFuelRod("f", FuelRodSpec{Atoms: 10, EnergyPerNeutron: 2, NeutronYield: 3})
	e, s := rod.processHit(4)
	if e != 8 || s != 12 {
		t.Errorf("first hit = %v, %v", e, s)
	}
	e, s = rod.processHit(100)
	if e != 12 || s != 18 {
		t.Errorf("second hit should split the remaining 6 atoms, got %v, %v", e, s)
	}
	if !rod.Depleted() {
		t.Error("Expected rod to be depleted")
	}
	if e, s = rod.processHit(5); e != 0 || s != 0 {
		t.Errorf("depleted rod released %v, %v", e, s)
	}
}

func TestRodCatalog(t *testing.T) {
	cat := DefaultParams().Rods
	for _, k := range []RodKind{RodFuel, RodControl, RodStarter} {
		rod, err := cat.NewRod(k, "x")
		if err != nil {
			t.Fatalf("NewRod(%s): %v", k, err)
		}
		if rod.Kind != k || rod.Validate() != nil {
			t.Errorf("NewRod(%s) = %+v", k, rod)
		}
	}
	if _, err := cat.NewRod(RodKind(9), "x"); err == nil {
		t.Error("Expected error for unknown kind")
	}
}
