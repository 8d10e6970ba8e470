package model

import "time"

// WorldState is the singleton execution-authority state of the agent.
type WorldState string

const (
	StateDisarmed    WorldState = "DISARMED"
	StateArmedIdle   WorldState = "ARMED_IDLE"
	StateArmedActive WorldState = "ARMED_ACTIVE"
	StateFrozen      WorldState = "FROZEN"
	StateEnded       WorldState = "ENDED"
)

// Valid reports whether s names a known world state.
func (s WorldState) Valid() bool {
	switch s {
	case StateDisarmed, StateArmedIdle, StateArmedActive, StateFrozen, StateEnded:
		return true
	}
	return false
}

// Terminal reports whether s has no outgoing transitions.
func (s WorldState) Terminal() bool { return s == StateEnded }

// WorldSnapshot is the current value of the singleton world-state row.
// Version increments on every transition and backs the compare-and-swap
// update that serializes writers.
type WorldSnapshot struct {
	State     WorldState `json:"state"`
	Reason    string     `json:"reason"`
	UpdatedAt time.Time  `json:"updated_at"`
	UpdatedBy string     `json:"updated_by"`
	Version   int64      `json:"version"`
}

// WorldEvent is one immutable row of the append-only transition history.
type WorldEvent struct {
	EventID   int64      `json:"event_id"`
	FromState WorldState `json:"from_state"`
	ToState   WorldState `json:"to_state"`
	Reason    string     `json:"reason"`
	Actor     string     `json:"actor"`
	CreatedAt time.Time  `json:"created_at"`
	TraceID   string     `json:"trace_id"`
}

// Entity is one observed thing in the world (a node, service, device,
// runner). Successive attribute snapshots of entities feed drift detection.
type Entity struct {
	EntityID string            `json:"entity_id"`
	Kind     string            `json:"kind"`
	Name     string            `json:"name"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Status   string            `json:"status"`
	LastSeen time.Time         `json:"last_seen"`
}
