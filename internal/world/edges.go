// Package world arbitrates execution authority: a singleton state behind a
// single-writer machine, mutated only through a closed set of transitions.
package world

import "github.com/redstack/redmem/internal/model"

// Edges is the closed set of permitted transitions. Any edge not listed is
// rejected; the set is fixed at construction and never extended at runtime.
type Edges map[model.WorldState][]model.WorldState

// DefaultEdges returns the standard edge set.
//
//	DISARMED     -> ARMED_IDLE
//	ARMED_IDLE   -> ARMED_ACTIVE | DISARMED | ENDED
//	ARMED_ACTIVE -> ARMED_IDLE | FROZEN | ENDED
//	FROZEN       -> ARMED_IDLE | ENDED
//	ENDED        -> (terminal)
func DefaultEdges() Edges {
	return Edges{
		model.StateDisarmed:    {model.StateArmedIdle},
		model.StateArmedIdle:   {model.StateArmedActive, model.StateDisarmed, model.StateEnded},
		model.StateArmedActive: {model.StateArmedIdle, model.StateFrozen, model.StateEnded},
		model.StateFrozen:      {model.StateArmedIdle, model.StateEnded},
		model.StateEnded:       {},
	}
}

// Allowed reports whether from -> to is a permitted edge.
func (e Edges) Allowed(from, to model.WorldState) bool {
	for _, next := range e[from] {
		if next == to {
			return true
		}
	}
	return false
}
