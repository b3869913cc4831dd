// Package breaker keeps a circuit breaker per source so a board that keeps
// failing is skipped for a while instead of costing every search a timeout.
package breaker

import (
	"errors"
	"sync"
	"time"

	"jobagg-engine/internal/domain"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

type Config struct {
	FailureThreshold    uint
	SuccessThreshold    uint
	HalfOpenMaxRequests uint
	ResetTimeout        time.Duration
	Now                 func() time.Time
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold == 0 {
		c.SuccessThreshold = 2
	}
	if c.HalfOpenMaxRequests == 0 {
		c.HalfOpenMaxRequests = 1
	}
	if c.ResetTimeout == 0 {
		c.ResetTimeout = time.Minute
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

type Breaker struct {
	mu  sync.Mutex
	cfg Config

	state            State
	failures         uint
	successes        uint
	halfOpenAttempts uint
	openedAt         time.Time

	totalRequests  uint
	totalSuccesses uint
	totalFailures  uint
}

func New(cfg Config) *Breaker {
	return &Breaker{cfg: cfg.withDefaults(), state: StateClosed}
}

// Allow reports whether a call may go ahead. Every allowed call must be
// followed by exactly one Success or Failure.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.cfg.Now().Sub(b.openedAt) < b.cfg.ResetTimeout {
			return ErrCircuitOpen
		}
		b.state = StateHalfOpen
		b.halfOpenAttempts = 0
		b.successes = 0
		fallthrough
	case StateHalfOpen:
		if b.halfOpenAttempts >= b.cfg.HalfOpenMaxRequests {
			return ErrTooManyRequests
		}
		b.halfOpenAttempts++
	}
	b.totalRequests++
	return nil
}

func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.totalSuccesses++

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.state = StateClosed
			b.failures = 0
			b.successes = 0
			b.halfOpenAttempts = 0
		} else if b.halfOpenAttempts > 0 {
			// free the probe slot for the next trial call
			b.halfOpenAttempts--
		}
	}
}

func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.totalFailures++

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.state = StateOpen
			b.openedAt = b.cfg.Now()
		}
	case StateHalfOpen:
		b.state = StateOpen
		b.openedAt = b.cfg.Now()
		b.halfOpenAttempts = 0
	}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

type Stats struct {
	State     string `json:"state"`
	Requests  uint   `json:"requests"`
	Successes uint   `json:"successes"`
	Failures  uint   `json:"failures"`
}

func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		State:     b.state.String(),
		Requests:  b.totalRequests,
		Successes: b.totalSuccesses,
		Failures:  b.totalFailures,
	}
}

// Set lazily creates one breaker per source. A nil *Set allows everything.
type Set struct {
	mu  sync.Mutex
	cfg Config
	m   map[domain.SourceID]*Breaker
}

func NewSet(cfg Config) *Set {
	return &Set{cfg: cfg.withDefaults(), m: map[domain.SourceID]*Breaker{}}
}

func (s *Set) get(id domain.SourceID) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.m[id]
	if !ok {
		b = New(s.cfg)
		s.m[id] = b
	}
	return b
}

func (s *Set) Allow(id domain.SourceID) error {
	if s == nil {
		return nil
	}
	return s.get(id).Allow()
}

// Record feeds a source result back. Failures the source is not to blame
// for (caller cancellation, missing configuration) are not counted.
func (s *Set) Record(r domain.SourceResult) {
	if s == nil {
		return
	}
	b := s.get(r.SourceID)
	switch {
	case r.Success:
		b.Success()
	case r.ErrorKind == domain.ErrKindCancelled, r.ErrorKind == domain.ErrKindNotConfigured:
		// release a half-open probe slot without judging the source
		b.mu.Lock()
		if b.state == StateHalfOpen && b.halfOpenAttempts > 0 {
			b.halfOpenAttempts--
		}
		b.mu.Unlock()
	default:
		b.Failure()
	}
}

func (s *Set) Stats() map[domain.SourceID]Stats {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.SourceID]Stats, len(s.m))
	for id, b := range s.m {
		out[id] = b.Stats()
	}
	return out
}
