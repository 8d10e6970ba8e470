package world

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/redstack/redmem/internal/model"
	"github.com/redstack/redmem/internal/store"
)

// Store is the persistence the machine drives: a versioned singleton row
// plus the append-only event log.
type Store interface {
	WorldSnapshot(ctx context.Context) (model.WorldSnapshot, error)
	ApplyTransition(ctx context.Context, from model.WorldSnapshot, to model.WorldState, reason, actor, traceID string) (*model.WorldEvent, error)
}

// Machine serializes transitions over the singleton world state. The mutex
// admits one in-flight transition; the store's version guard catches any
// writer that raced past a stale snapshot anyway.
type Machine struct {
	mu     sync.Mutex
	store  Store
	edges  Edges
	logger *slog.Logger
}

// NewMachine builds a machine over the given store. Nil edges means
// DefaultEdges.
func NewMachine(st Store, edges Edges, logger *slog.Logger) *Machine {
	if edges == nil {
		edges = DefaultEdges()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{store: st, edges: edges, logger: logger}
}

// Snapshot returns the current world state.
func (m *Machine) Snapshot(ctx context.Context) (model.WorldSnapshot, error) {
	return m.store.WorldSnapshot(ctx)
}

// Transition moves the world to the requested state. Reason and actor are
// mandatory. An edge outside the closed set fails with ErrConflict and
// leaves no trace: no state change, no event, no audit entry.
func (m *Machine) Transition(ctx context.Context, to model.WorldState, reason, actor, traceID string) (*model.WorldEvent, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown state %q", store.ErrValidation, to)
	}
	if strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("%w: reason is required", store.ErrValidation)
	}
	if strings.TrimSpace(actor) == "" {
		return nil, fmt.Errorf("%w: actor is required", store.ErrValidation)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cur, err := m.store.WorldSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	if cur.State.Terminal() {
		return nil, fmt.Errorf("%w: %s is terminal", store.ErrConflict, cur.State)
	}
	if !m.edges.Allowed(cur.State, to) {
		return nil, fmt.Errorf("%w: transition %s -> %s not permitted", store.ErrConflict, cur.State, to)
	}

	ev, err := m.store.ApplyTransition(ctx, cur, to, reason, actor, traceID)
	if err != nil {
		return nil, err
	}

	m.logger.Info("world transition",
		"from", ev.FromState, "to", ev.ToState,
		"actor", actor, "trace_id", traceID)
	return ev, nil
}

// CanExecute reports whether the agent is permitted to act in the current
// state. Blocked in DISARMED, FROZEN and ENDED.
func (m *Machine) CanExecute(ctx context.Context) (bool, string, error) {
	snap, err := m.store.WorldSnapshot(ctx)
	if err != nil {
		return false, "", err
	}
	switch snap.State {
	case model.StateDisarmed, model.StateFrozen, model.StateEnded:
		return false, fmt.Sprintf("execution blocked: state=%s reason=%s", snap.State, snap.Reason), nil
	}
	return true, fmt.Sprintf("execution allowed: state=%s", snap.State), nil
}
