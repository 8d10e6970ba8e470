package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/redstack/redmem/internal/model"
	"github.com/redstack/redmem/internal/store"
)

// handleHealth never fails: every subsystem reports its status inside the
// payload, reachable or not.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	subsystems := map[string]interface{}{}

	if err := s.store.Ping(); err != nil {
		subsystems["store"] = map[string]interface{}{"ok": false, "error": err.Error()}
	} else {
		subsystems["store"] = map[string]interface{}{"ok": true, "path": s.store.Path()}
	}

	subsystems["recall"] = s.gateway.Status()

	if s.control != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		if err := s.control.Ping(ctx); err != nil {
			subsystems["control_plane"] = map[string]interface{}{"ok": false, "error": err.Error()}
		} else {
			subsystems["control_plane"] = map[string]interface{}{"ok": true}
		}
		cancel()
	} else {
		subsystems["control_plane"] = map[string]interface{}{"ok": true, "configured": false}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":         true,
		"subsystems": subsystems,
	})
}

func (s *Server) handleMemoryPut(w http.ResponseWriter, r *http.Request) {
	trace := traceID(r.Context())

	var draft store.Draft
	if err := readJSON(r, &draft); err != nil {
		writeError(w, trace, err)
		return
	}
	if draft.TraceID == "" {
		draft.TraceID = trace
	}

	item, err := s.store.Put(r.Context(), draft)
	if err != nil {
		writeError(w, trace, err)
		return
	}

	if s.cfg.Features.Ingest && item.Scope == model.ScopeSemantic && s.gateway != nil {
		// Best effort, off the request path. The gateway bounds it.
		go s.gateway.Ingest(context.Background(), item)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "item": item})
}

func (s *Server) handleMemoryQuery(w http.ResponseWriter, r *http.Request) {
	trace := traceID(r.Context())

	var params store.QueryParams
	if err := readJSON(r, &params); err != nil {
		writeError(w, trace, err)
		return
	}

	items, err := s.store.Query(r.Context(), params)
	if err != nil {
		writeError(w, trace, err)
		return
	}
	if items == nil {
		items = []model.MemoryItem{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "items": items})
}

func (s *Server) handleMemoryGet(w http.ResponseWriter, r *http.Request) {
	trace := traceID(r.Context())

	item, err := s.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, trace, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "item": item})
}

func (s *Server) handleMemoryStats(w http.ResponseWriter, r *http.Request) {
	trace := traceID(r.Context())

	stats, err := s.store.Stats(r.Context())
	if err != nil {
		writeError(w, trace, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "stats": stats})
}

func (s *Server) handleAuditTail(w http.ResponseWriter, r *http.Request) {
	trace := traceID(r.Context())

	entries, err := s.store.Tail(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		writeError(w, trace, err)
		return
	}
	if entries == nil {
		entries = []model.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "entries": entries})
}

func (s *Server) handleTrace(w http.ResponseWriter, r *http.Request) {
	trace := traceID(r.Context())

	view, err := s.store.Trace(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, trace, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "trace": view})
}

// handleWorldSnapshot is shape tolerant like health: persistence trouble
// degrades to a payload field, not a 5xx.
func (s *Server) handleWorldSnapshot(w http.ResponseWriter, r *http.Request) {
	payload := map[string]interface{}{"ok": true}

	snap, err := s.machine.Snapshot(r.Context())
	if err != nil {
		payload["ok"] = false
		payload["error"] = err.Error()
		writeJSON(w, http.StatusOK, payload)
		return
	}
	payload["world"] = snap

	allowed, reason, err := s.machine.CanExecute(r.Context())
	if err == nil {
		payload["can_execute"] = allowed
		payload["execute_reason"] = reason
	}

	if events, err := s.store.WorldEvents(r.Context(), queryInt(r, "limit_events", 10)); err == nil {
		payload["events"] = events
	}
	if entities, err := s.store.ListEntities(r.Context(), queryInt(r, "limit_entities", 25)); err == nil {
		payload["entities"] = entities
	}

	writeJSON(w, http.StatusOK, payload)
}

type transitionRequest struct {
	To     model.WorldState `json:"to"`
	Reason string           `json:"reason"`
	Actor  string           `json:"actor"`
}

func (s *Server) handleWorldTransition(w http.ResponseWriter, r *http.Request) {
	trace := traceID(r.Context())

	var req transitionRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, trace, err)
		return
	}

	ev, err := s.machine.Transition(r.Context(), req.To, req.Reason, req.Actor, trace)
	if err != nil {
		writeError(w, trace, err)
		return
	}

	if s.control != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			s.control.NotifyTransition(ctx, ev)
		}()
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "event": ev})
}

func (s *Server) handleWorldEvents(w http.ResponseWriter, r *http.Request) {
	trace := traceID(r.Context())

	events, err := s.store.WorldEvents(r.Context(), queryInt(r, "limit", 25))
	if err != nil {
		writeError(w, trace, err)
		return
	}
	if events == nil {
		events = []model.WorldEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "events": events})
}

func (s *Server) handleWorldEntities(w http.ResponseWriter, r *http.Request) {
	trace := traceID(r.Context())

	entities, err := s.store.ListEntities(r.Context(), queryInt(r, "limit", 100))
	if err != nil {
		writeError(w, trace, err)
		return
	}
	if entities == nil {
		entities = []model.Entity{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "entities": entities})
}

func (s *Server) handleEntityUpsert(w http.ResponseWriter, r *http.Request) {
	trace := traceID(r.Context())

	var entity model.Entity
	if err := readJSON(r, &entity); err != nil {
		writeError(w, trace, err)
		return
	}

	saved, err := s.store.UpsertEntity(r.Context(), entity)
	if err != nil {
		writeError(w, trace, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "entity": saved})
}

// handleWorldDrift probes for drift against the last observed snapshot.
// Must never crash the surface: failures are reported in the payload.
func (s *Server) handleWorldDrift(w http.ResponseWriter, r *http.Request) {
	trace := traceID(r.Context())

	snap, err := s.store.EntitySnapshot(r.Context())
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"ok": false, "error": err.Error()})
		return
	}

	findings := s.recorder.Observe(r.Context(), snap, trace)
	payload := map[string]interface{}{"ok": true, "findings": findings}
	if findings == nil {
		payload["findings"] = []interface{}{}
	}
	writeJSON(w, http.StatusOK, payload)
}

type recallRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// handleRecall returns semantic suggestions. Degrades to an empty list,
// never an error.
func (s *Server) handleRecall(w http.ResponseWriter, r *http.Request) {
	trace := traceID(r.Context())

	var req recallRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, trace, err)
		return
	}

	items := s.gateway.Recall(r.Context(), req.Query, req.Limit)
	if items == nil {
		items = []model.MemoryItem{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "items": items})
}

func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
