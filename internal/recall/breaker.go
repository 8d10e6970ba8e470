// Package recall wraps the external vector-similarity backend behind a
// time budget and a circuit breaker. Everything it returns is
// semantic-scope suggestion material; failures degrade to empty results.
package recall

import (
	"sync"
	"time"
)

// BreakerState is the circuit phase.
type BreakerState int

const (
	// Closed passes calls through.
	Closed BreakerState = iota
	// Open short-circuits calls immediately.
	Open
	// HalfOpen admits a single probe call to test recovery.
	HalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	}
	return "unknown"
}

// BreakerConfig tunes the breaker.
type BreakerConfig struct {
	// FailureThreshold trips the breaker when reached within Window.
	FailureThreshold int
	// Window is the rolling span failures are counted in.
	Window time.Duration
	// Cooldown is how long the breaker stays open before probing.
	Cooldown time.Duration
}

// DefaultBreakerConfig mirrors the doctrine defaults: 5 failures in 60s,
// 300s cooldown.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, Window: time.Minute, Cooldown: 5 * time.Minute}
}

// Breaker is a three-state circuit breaker shared across concurrent
// callers. All counters live behind one mutex to avoid lost updates.
type Breaker struct {
	mu sync.Mutex

	cfg         BreakerConfig
	state       BreakerState
	failures    int
	windowStart time.Time
	openedAt    time.Time
	probing     bool

	totalSuccess  int64
	totalFailures int64
	totalSkips    int64
	lastError     string

	now func() time.Time
}

// NewBreaker builds a closed breaker. Zero config fields get defaults.
func NewBreaker(cfg BreakerConfig) *Breaker {
	def := DefaultBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	b := &Breaker{cfg: cfg, now: time.Now}
	b.windowStart = b.now()
	return b
}

// Allow reports whether a call may proceed. In Open it flips to HalfOpen
// once the cooldown has elapsed and grants exactly one probe slot; further
// callers are refused until the probe resolves.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
			b.state = HalfOpen
			b.probing = true
			return true
		}
		b.totalSkips++
		return false
	case HalfOpen:
		if !b.probing {
			b.probing = true
			return true
		}
		b.totalSkips++
		return false
	}
	return false
}

// RecordSuccess closes the circuit after a successful probe and lightly
// heals the failure count inside an intact window.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalSuccess++
	switch b.state {
	case HalfOpen:
		b.state = Closed
		b.probing = false
		b.failures = 0
		b.windowStart = b.now()
	case Closed:
		if b.inWindow() {
			if b.failures > 0 {
				b.failures--
			}
		} else {
			b.windowStart = b.now()
			b.failures = 0
		}
	}
}

// RecordFailure counts a failure, trips Closed->Open at the threshold and
// re-opens from a failed probe. The window resets on trip so the breaker
// does not re-trip instantly after cooldown.
func (b *Breaker) RecordFailure(errText string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalFailures++
	if len(errText) > 300 {
		errText = errText[:300]
	}
	b.lastError = errText

	switch b.state {
	case HalfOpen:
		b.state = Open
		b.openedAt = b.now()
		b.probing = false
	case Closed:
		if !b.inWindow() {
			b.windowStart = b.now()
			b.failures = 0
		}
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.state = Open
			b.openedAt = b.now()
			b.failures = 0
			b.windowStart = b.now()
		}
	}
}

func (b *Breaker) inWindow() bool {
	return b.now().Sub(b.windowStart) < b.cfg.Window
}

// State returns the current phase.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot reports breaker internals for health payloads.
func (b *Breaker) Snapshot() map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return map[string]interface{}{
		"state":             b.state.String(),
		"failure_threshold": b.cfg.FailureThreshold,
		"window_seconds":    int(b.cfg.Window.Seconds()),
		"cooldown_seconds":  int(b.cfg.Cooldown.Seconds()),
		"total_success":     b.totalSuccess,
		"total_failures":    b.totalFailures,
		"total_skips":       b.totalSkips,
		"last_error":        b.lastError,
	}
}
