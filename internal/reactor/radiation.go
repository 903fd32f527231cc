package reactor

import (
	"math"
	"sort"
	"sync"
)

// RadiationGrid is an in-memory RadiationField. Each core publishes its own
// leak level; the flux a core receives is the coupled sum of every other
// source plus the background.
type RadiationGrid struct {
	mu         sync.RWMutex
	levels     map[ReactorID]float64
	coupling   float64
	background float64
}

// NewRadiationGrid creates a grid; coupling scales other sources' levels into flux.
func NewRadiationGrid(coupling, background float64) *RadiationGrid {
	return &RadiationGrid{
		levels:     make(map[ReactorID]float64),
		coupling:   coupling,
		background: background,
	}
}

func (g *RadiationGrid) ExternalNeutronFlux(id ReactorID) float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	flux := g.background
	for other, level := range g.levels {
		if other == id {
			continue
		}
		flux += level * g.coupling
	}
	return flux
}

func (g *RadiationGrid) SetLeakLevel(id ReactorID, level float64) {
	if math.IsNaN(level) || math.IsInf(level, 0) {
		level = 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.levels[id] = level
}

// Level returns the last level published by id.
func (g *RadiationGrid) Level(id ReactorID) float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.levels[id]
}

// Remove drops a source, e.g. once its core is torn down.
func (g *RadiationGrid) Remove(id ReactorID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.levels, id)
}

// Sources lists the publishing cores in id order.
func (g *RadiationGrid) Sources() []ReactorID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]ReactorID, 0, len(g.levels))
	for id := range g.levels {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// leakLevel compresses the leaked fraction of population toward the
// asymptote and rescales it to [0, scale).
func leakLevel(population float64, p LeakParams) float64 {
	if population <= 0 {
		return 0
	}
	leaked := population * p.Chance
	if leaked <= 0 {
		return 0
	}
	level := (leaked/(leaked+math.Pow(leaked, p.Exponent)) - 0.5) * 2 * p.Scale
	if level < 0 || math.IsNaN(level) {
		return 0
	}
	return level
}
