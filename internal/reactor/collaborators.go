package reactor

// Collaborators the core consumes. Implementations are called while the core
// holds its lock and must not call back into the same core.

// Position locates a core for area effects.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// ThermalFluid is the coolant mix the chamber heats.
type ThermalFluid interface {
	Temperature() float64
	SetTemperature(kelvin float64)
	WholeHeatCapacity() float64
	InternalEnergy() float64
	SetInternalEnergy(joules float64)
	TotalMoles() float64
	// RemoveMass vents amount moles and returns how much was actually removed.
	RemoveMass(amount float64) float64
}

// RadiationField is the ambient radiation shared between cores.
type RadiationField interface {
	ExternalNeutronFlux(id ReactorID) float64
	SetLeakLevel(id ReactorID, level float64)
}

// Inventory receives everything the core ejects.
type Inventory interface {
	StoreRod(rod *Rod)
	StorePipe(p *Pipe)
	SpawnMaterial(m Material, count int)
}

// ConsoleLink reports how many control consoles are wired to the core.
type ConsoleLink interface {
	ConnectedConsoleCount() int
}

// Demolisher performs the terminal effects of an explosion.
type Demolisher interface {
	Explode(at Position, yield float64)
	Destroy(id ReactorID)
}

type noRadiation struct{}

func (noRadiation) ExternalNeutronFlux(ReactorID) float64 { return 0 }
func (noRadiation) SetLeakLevel(ReactorID, float64)       {}

type noDemolisher struct{}

func (noDemolisher) Explode(Position, float64) {}
func (noDemolisher) Destroy(ReactorID)         {}
