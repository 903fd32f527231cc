package reactor

// Phase is the single most severe label for a SafetyState.
type Phase string

const (
	PhaseNormal        Phase = "normal"
	PhaseMeltedDown    Phase = "melted_down"
	PhasePipesRuptured Phase = "pipes_ruptured"
	PhaseExploded      Phase = "exploded"
)

// SafetyState holds the reactor-wide safety facets. MeltedDown and
// PipesRuptured may co-occur; Exploded is terminal.
type SafetyState struct {
	MeltedDown    bool `json:"melted_down"`
	PipesRuptured bool `json:"pipes_ruptured"`
	Exploded      bool `json:"exploded"`
}

// Phase reports the most severe facet that is set.
func (s SafetyState) Phase() Phase {
	switch {
	case s.Exploded:
		return PhaseExploded
	case s.MeltedDown:
		return PhaseMeltedDown
	case s.PipesRuptured:
		return PhasePipesRuptured
	default:
		return PhaseNormal
	}
}

// Transition lists the facets that were set by one evaluation.
type Transition struct {
	MeltedDown bool
	Exploded   bool
}

// Any reports whether anything changed.
func (t Transition) Any() bool {
	return t.MeltedDown || t.Exploded
}

// SafetyStateMachine owns the safety facets and evaluates their guards.
// MeltedDown and Exploded are only cleared by reset, on teardown.
type SafetyStateMachine struct {
	params Params
	state  SafetyState
}

func newSafetyStateMachine(params Params) *SafetyStateMachine {
	return &SafetyStateMachine{params: params}
}

// State returns the current facets.
func (m *SafetyStateMachine) State() SafetyState {
	return m.state
}

// Evaluate applies the end-of-tick guards: the core melts above the rod
// melting temperature and explodes once the population passed the singularity.
func (m *SafetyStateMachine) Evaluate(temperature, neutrons float64) Transition {
	var t Transition
	if m.state.Exploded {
		return t
	}
	if !m.state.MeltedDown && temperature > m.params.RodMeltingTemperature {
		m.state.MeltedDown = true
		t.MeltedDown = true
	}
	if neutrons > m.params.NeutronSingularity {
		m.state.Exploded = true
		t.Exploded = true
	}
	return t
}

// markRuptured sets PipesRuptured and reports whether it was newly set.
func (m *SafetyStateMachine) markRuptured() bool {
	if m.state.PipesRuptured {
		return false
	}
	m.state.PipesRuptured = true
	return true
}

// clearRupture is called when a fresh pipe goes in.
func (m *SafetyStateMachine) clearRupture() bool {
	was := m.state.PipesRuptured
	m.state.PipesRuptured = false
	return was
}

func (m *SafetyStateMachine) restore(s SafetyState) {
	m.state = s
}

func (m *SafetyStateMachine) reset() {
	m.state = SafetyState{}
}
