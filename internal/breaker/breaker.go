// Package breaker implements a per-dependency circuit breaker whose state
// lives in a shared key-value store, so every instance observes the same
// circuit for a given upstream interface.
package breaker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wonny/aegis-picks/pkg/kvstore"
	"github.com/wonny/aegis-picks/pkg/logger"
	"github.com/wonny/aegis-picks/pkg/metrics"
)

// ErrCircuitOpen is returned by helpers that refuse to call an open dependency
var ErrCircuitOpen = errors.New("circuit open")

// State is the circuit state of one dependency
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// level maps a state onto the metrics gauge
func (s State) level() float64 {
	switch s {
	case StateHalfOpen:
		return 1
	case StateOpen:
		return 2
	default:
		return 0
	}
}

// Settings are the trip parameters of one dependency
type Settings struct {
	Threshold int           // consecutive failures that open the circuit
	Timeout   time.Duration // how long OPEN lasts before a trial call
}

// record is the persisted circuit state
type record struct {
	State          State     `json:"state"`
	FailureCount   int       `json:"failure_count"`
	OpenedAt       time.Time `json:"opened_at,omitempty"`
	TrialStartedAt time.Time `json:"trial_started_at,omitempty"`
	LastFailureAt  time.Time `json:"last_failure_at,omitempty"`
	LastSuccessAt  time.Time `json:"last_success_at,omitempty"`
}

// Status is the operational view of a circuit
type Status struct {
	Dependency    string        `json:"dependency"`
	State         State         `json:"state"`
	FailureCount  int           `json:"failure_count"`
	Threshold     int           `json:"threshold"`
	Timeout       time.Duration `json:"timeout"`
	OpenedAt      *time.Time    `json:"opened_at,omitempty"`
	RetryAt       *time.Time    `json:"retry_at,omitempty"`
	LastFailureAt *time.Time    `json:"last_failure_at,omitempty"`
}

// Breaker tracks circuits for any number of dependencies.
// ⭐ SSOT: 외부 의존성 장애 격리는 여기서만
//
// Concurrent RecordFailure calls from different instances may over-count;
// the breaker is a coarse safety valve, not an exact counter.
type Breaker struct {
	store     kvstore.Store
	defaults  Settings
	overrides map[string]Settings
	locks     sync.Map // dep -> *sync.Mutex
	now       func() time.Time
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

// Option configures a Breaker
type Option func(*Breaker)

// WithClock replaces the time source
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// WithDependency overrides settings for one dependency
func WithDependency(dep string, s Settings) Option {
	return func(b *Breaker) { b.overrides[dep] = s }
}

// WithMetrics attaches Prometheus collectors
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Breaker) { b.metrics = m }
}

// New creates a breaker backed by store
func New(store kvstore.Store, defaults Settings, log *logger.Logger, opts ...Option) *Breaker {
	if defaults.Threshold < 1 {
		defaults.Threshold = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	b := &Breaker{
		store:     store,
		defaults:  defaults,
		overrides: make(map[string]Settings),
		now:       time.Now,
		logger:    log.Component("breaker"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// IsOpen reports whether calls to dep must be skipped. An OPEN circuit whose
// timeout has elapsed moves to HALF_OPEN on this call and admits exactly one
// trial call; further callers see it as open until that trial is recorded.
func (b *Breaker) IsOpen(ctx context.Context, dep string) bool {
	mu := b.lock(dep)
	mu.Lock()
	defer mu.Unlock()

	rec, err := b.load(ctx, dep)
	if err != nil {
		// shared store unavailable: fail open rather than block every call
		b.logger.WithError(err).WithField("dep", dep).Warn("breaker state unreadable, treating as closed")
		return false
	}

	settings := b.settings(dep)
	now := b.now()

	switch rec.State {
	case StateOpen:
		if now.Sub(rec.OpenedAt) < settings.Timeout {
			return true
		}
		rec.State = StateHalfOpen
		rec.TrialStartedAt = now
		b.save(ctx, dep, rec)
		b.transition(dep, StateHalfOpen)
		return false

	case StateHalfOpen:
		// a trial whose outcome was never recorded is abandoned after one timeout
		if now.Sub(rec.TrialStartedAt) >= settings.Timeout {
			rec.TrialStartedAt = now
			b.save(ctx, dep, rec)
			return false
		}
		return true

	default:
		return false
	}
}

// RecordSuccess closes the circuit and resets the failure count
func (b *Breaker) RecordSuccess(ctx context.Context, dep string) {
	mu := b.lock(dep)
	mu.Lock()
	defer mu.Unlock()

	rec, err := b.load(ctx, dep)
	if err != nil {
		b.logger.WithError(err).WithField("dep", dep).Warn("breaker state unreadable on success")
		rec = record{}
	}

	prev := rec.State
	if prev == StateClosed && rec.FailureCount == 0 {
		return
	}

	rec = record{
		State:         StateClosed,
		LastFailureAt: rec.LastFailureAt,
		LastSuccessAt: b.now(),
	}
	b.save(ctx, dep, rec)

	if prev != StateClosed {
		b.transition(dep, StateClosed)
		b.logger.WithField("dep", dep).Info("circuit closed")
	}
}

// RecordFailure counts a failure. CLOSED opens at the threshold; HALF_OPEN
// reopens immediately and restarts the timeout.
func (b *Breaker) RecordFailure(ctx context.Context, dep string) {
	mu := b.lock(dep)
	mu.Lock()
	defer mu.Unlock()

	rec, err := b.load(ctx, dep)
	if err != nil {
		b.logger.WithError(err).WithField("dep", dep).Warn("breaker state unreadable on failure")
		rec = record{State: StateClosed}
	}

	settings := b.settings(dep)
	now := b.now()
	rec.FailureCount++
	rec.LastFailureAt = now

	switch rec.State {
	case StateHalfOpen:
		rec.State = StateOpen
		rec.OpenedAt = now
		rec.TrialStartedAt = time.Time{}
		b.transition(dep, StateOpen)
		b.logger.WithFields(map[string]interface{}{
			"dep":     dep,
			"timeout": settings.Timeout.String(),
		}).Warn("trial call failed, circuit reopened")

	case StateOpen:
		// already open; the timeout is not extended

	default:
		rec.State = StateClosed
		if rec.FailureCount >= settings.Threshold {
			rec.State = StateOpen
			rec.OpenedAt = now
			b.transition(dep, StateOpen)
			b.logger.WithFields(map[string]interface{}{
				"dep":       dep,
				"failures":  rec.FailureCount,
				"threshold": settings.Threshold,
			}).Warn("circuit opened")
		}
	}

	b.save(ctx, dep, rec)
}

// Status returns the current circuit view without triggering transitions
func (b *Breaker) Status(ctx context.Context, dep string) (Status, error) {
	rec, err := b.load(ctx, dep)
	if err != nil {
		return Status{}, err
	}

	settings := b.settings(dep)
	st := Status{
		Dependency:   dep,
		State:        rec.State,
		FailureCount: rec.FailureCount,
		Threshold:    settings.Threshold,
		Timeout:      settings.Timeout,
	}
	if !rec.OpenedAt.IsZero() && rec.State != StateClosed {
		opened := rec.OpenedAt
		retry := opened.Add(settings.Timeout)
		st.OpenedAt = &opened
		st.RetryAt = &retry
	}
	if !rec.LastFailureAt.IsZero() {
		last := rec.LastFailureAt
		st.LastFailureAt = &last
	}
	return st, nil
}

// Reset forces dep back to CLOSED (ops tooling)
func (b *Breaker) Reset(ctx context.Context, dep string) error {
	mu := b.lock(dep)
	mu.Lock()
	defer mu.Unlock()

	if err := b.store.Delete(ctx, key(dep)); err != nil {
		return fmt.Errorf("reset breaker %s: %w", dep, err)
	}
	b.transition(dep, StateClosed)
	b.logger.WithField("dep", dep).Info("circuit reset manually")
	return nil
}

func (b *Breaker) settings(dep string) Settings {
	if s, ok := b.overrides[dep]; ok {
		return s
	}
	return b.defaults
}

func (b *Breaker) lock(dep string) *sync.Mutex {
	mu, _ := b.locks.LoadOrStore(dep, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (b *Breaker) load(ctx context.Context, dep string) (record, error) {
	data, ok, err := b.store.Get(ctx, key(dep))
	if err != nil {
		return record{}, fmt.Errorf("load breaker %s: %w", dep, err)
	}
	if !ok {
		return record{State: StateClosed}, nil
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return record{}, fmt.Errorf("decode breaker %s: %w", dep, err)
	}
	if rec.State == "" {
		rec.State = StateClosed
	}
	return rec, nil
}

func (b *Breaker) save(ctx context.Context, dep string, rec record) {
	data, err := json.Marshal(rec)
	if err != nil {
		b.logger.WithError(err).WithField("dep", dep).Error("encode breaker state failed")
		return
	}
	if err := b.store.Set(ctx, key(dep), data, 0); err != nil {
		b.logger.WithError(err).WithField("dep", dep).Warn("persist breaker state failed")
	}
}

func (b *Breaker) transition(dep string, to State) {
	b.metrics.BreakerChanged(dep, string(to), to.level())
}

func key(dep string) string {
	return "breaker:" + dep
}
