package controlplane

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redstack/redmem/internal/model"
)

func TestNewEmptyURLReturnsNil(t *testing.T) {
	if c := New("", time.Second, nil); c != nil {
		t.Fatal("empty base URL did not return nil")
	}

	// Nil client methods are no-ops.
	var c *Client
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("nil Ping: %v", err)
	}
	c.NotifyTransition(context.Background(), &model.WorldEvent{})
}

func TestPing(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/health" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.WriteHeader(int(status.Load()))
	}))
	defer ts.Close()

	c := New(ts.URL, time.Second, nil)
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	status.Store(http.StatusInternalServerError)
	if err := c.Ping(context.Background()); err == nil {
		t.Fatal("Ping ignored a 500")
	}
}

func TestNotifyTransitionPostsEvent(t *testing.T) {
	var got model.WorldEvent
	var calls atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/world/notify" || r.Method != http.MethodPost {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	c := New(ts.URL+"/", time.Second, nil)
	c.NotifyTransition(context.Background(), &model.WorldEvent{
		FromState: model.StateDisarmed,
		ToState:   model.StateArmedIdle,
		Reason:    "armed",
		Actor:     "op",
	})

	if calls.Load() != 1 {
		t.Fatalf("calls = %d", calls.Load())
	}
	if got.ToState != model.StateArmedIdle || got.Reason != "armed" {
		t.Errorf("event = %+v", got)
	}
}

func TestNotifyTransitionSwallowsFailures(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	c := New(ts.URL, time.Second, nil)
	// Must not panic or propagate anything.
	c.NotifyTransition(context.Background(), &model.WorldEvent{ToState: model.StateEnded})
	c.NotifyTransition(context.Background(), nil)
}
