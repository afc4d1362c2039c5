package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// State is a circuit breaker state.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// ErrCircuitOpen is the cause of errors returned while a breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit open")

// Default breaker settings.
const (
	DefaultFailureThreshold = 5
	DefaultSuccessThreshold = 2
	DefaultCooldown         = 30 * time.Second
	DefaultHalfOpenMaxCalls = 1
)

// BreakerConfig configures a circuit breaker.
type BreakerConfig struct {
	FailureThreshold int           // consecutive failures that open the breaker
	SuccessThreshold int           // consecutive half-open successes that close it
	Cooldown         time.Duration // time spent open before trial calls are allowed
	HalfOpenMaxCalls int           // concurrent trial calls allowed while half-open

	// OnStateChange, if set, is called after every transition with the
	// breaker lock released.
	OnStateChange func(service string, from, to State)
	// Clock returns the current time; defaults to time.Now.
	Clock func() time.Time
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = DefaultSuccessThreshold
	}
	if c.Cooldown <= 0 {
		c.Cooldown = DefaultCooldown
	}
	if c.HalfOpenMaxCalls <= 0 {
		c.HalfOpenMaxCalls = DefaultHalfOpenMaxCalls
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

// Health is a point-in-time view of a breaker.
type Health struct {
	Service             string    `json:"service"`
	State               State     `json:"state"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	LastFailure         time.Time `json:"lastFailure,omitempty"`
	OpenUntil           time.Time `json:"openUntil,omitempty"`
	Successes           int64     `json:"successes"`
	Failures            int64     `json:"failures"`
	Rejected            int64     `json:"rejected"`
	SuccessRate         float64   `json:"successRate"`
	FailureRate         float64   `json:"failureRate"`
}

// Breaker is a circuit breaker for one generation service. It is safe for
// concurrent use.
type Breaker struct {
	service string
	cfg     BreakerConfig

	mu                   sync.Mutex
	state                State
	consecutiveFailures  int
	consecutiveSuccesses int
	halfOpenInFlight     int
	generation           uint64
	openUntil            time.Time
	lastFailure          time.Time
	successes            int64
	failures             int64
	rejected             int64
}

// NewBreaker returns a closed breaker for service.
func NewBreaker(service string, cfg BreakerConfig) *Breaker {
	return &Breaker{service: service, cfg: cfg.withDefaults(), state: StateClosed}
}

// Service returns the guarded service name.
func (b *Breaker) Service() string { return b.service }

// Execute runs fn if the breaker admits the call. Errors from fn are
// classified; only service failures count against the breaker.
func (b *Breaker) Execute(fn func() error) error {
	generation, err := b.Allow()
	if err != nil {
		return err
	}
	err = fn()
	b.Record(generation, err)
	return err
}

// Allow admits or rejects one call and returns the generation it was admitted
// under. Every admitted call must be followed by exactly one Record with that
// generation.
func (b *Breaker) Allow() (uint64, error) {
	b.mu.Lock()
	from := b.state
	b.advanceLocked()

	switch b.state {
	case StateOpen:
		b.rejected++
		retryIn := b.openUntil.Sub(b.cfg.Clock())
		b.mu.Unlock()
		b.notify(from, StateOpen)
		return 0, NewError(KindServiceUnavailable, fmt.Sprintf("%s: circuit open, retry in %s", b.service, retryIn.Round(time.Second)), ErrCircuitOpen).
			WithMetadata("service", b.service)
	case StateHalfOpen:
		if b.halfOpenInFlight >= b.cfg.HalfOpenMaxCalls {
			b.rejected++
			b.mu.Unlock()
			b.notify(from, StateHalfOpen)
			return 0, NewError(KindServiceUnavailable, fmt.Sprintf("%s: circuit half-open, trial in progress", b.service), ErrCircuitOpen).
				WithMetadata("service", b.service)
		}
		b.halfOpenInFlight++
	}
	to := b.state
	generation := b.generation
	b.mu.Unlock()
	b.notify(from, to)
	return generation, nil
}

// Record reports the result of a call admitted under generation. Results from
// an earlier generation count towards Health totals but never move the state.
func (b *Breaker) Record(generation uint64, err error) {
	failure := false
	if err != nil {
		failure = Classify(err, nil).IsServiceFailure()
	}

	b.mu.Lock()
	from := b.state
	b.advanceLocked()
	current := generation == b.generation
	wasTrial := current && b.state == StateHalfOpen
	if wasTrial && b.halfOpenInFlight > 0 {
		b.halfOpenInFlight--
	}

	switch {
	case failure:
		b.failures++
		b.lastFailure = b.cfg.Clock()
		if !current {
			break
		}
		b.consecutiveFailures++
		b.consecutiveSuccesses = 0
		if wasTrial || b.consecutiveFailures >= b.cfg.FailureThreshold {
			b.openLocked()
		}
	case err == nil:
		b.successes++
		if !current {
			break
		}
		b.consecutiveFailures = 0
		if wasTrial {
			b.consecutiveSuccesses++
			if b.consecutiveSuccesses >= b.cfg.SuccessThreshold {
				b.setStateLocked(StateClosed)
			}
		}
	}
	// Errors that are not service failures leave the counters untouched.
	to := b.state
	b.mu.Unlock()
	b.notify(from, to)
}

// Available reports whether a call would currently be admitted.
func (b *Breaker) Available() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateOpen:
		return !b.cfg.Clock().Before(b.openUntil)
	case StateHalfOpen:
		return b.halfOpenInFlight < b.cfg.HalfOpenMaxCalls
	}
	return true
}

// State returns the current state, moving OPEN to HALF_OPEN once the
// cool-down has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	from := b.state
	b.advanceLocked()
	to := b.state
	b.mu.Unlock()
	b.notify(from, to)
	return to
}

// Health returns a snapshot of the breaker.
func (b *Breaker) Health() Health {
	state := b.State()

	b.mu.Lock()
	defer b.mu.Unlock()
	h := Health{
		Service:             b.service,
		State:               state,
		ConsecutiveFailures: b.consecutiveFailures,
		LastFailure:         b.lastFailure,
		Successes:           b.successes,
		Failures:            b.failures,
		Rejected:            b.rejected,
	}
	if state == StateOpen {
		h.OpenUntil = b.openUntil
	}
	if total := b.successes + b.failures; total > 0 {
		h.SuccessRate = float64(b.successes) / float64(total)
		h.FailureRate = float64(b.failures) / float64(total)
	}
	return h
}

func (b *Breaker) advanceLocked() {
	if b.state == StateOpen && !b.cfg.Clock().Before(b.openUntil) {
		b.setStateLocked(StateHalfOpen)
	}
}

func (b *Breaker) openLocked() {
	b.setStateLocked(StateOpen)
	b.openUntil = b.cfg.Clock().Add(b.cfg.Cooldown)
}

// setStateLocked starts a new generation so calls admitted before the change
// cannot count as trials or close the breaker.
func (b *Breaker) setStateLocked(to State) {
	b.state = to
	b.generation++
	b.consecutiveSuccesses = 0
	b.halfOpenInFlight = 0
}

func (b *Breaker) notify(from, to State) {
	if from == to {
		return
	}
	slog.Info("circuit breaker state change", "service", b.service, "from", from, "to", to)
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.service, from, to)
	}
}

// Breakers holds one breaker per service name, shared by every project.
type Breakers struct {
	cfg BreakerConfig

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewBreakers returns an empty set using cfg for every breaker it creates.
func NewBreakers(cfg BreakerConfig) *Breakers {
	return &Breakers{cfg: cfg, breakers: make(map[string]*Breaker)}
}

// Get returns the breaker for service, creating it on first use.
func (s *Breakers) Get(service string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.breakers[service]
	if !ok {
		b = NewBreaker(service, s.cfg)
		s.breakers[service] = b
	}
	return b
}

// Health returns a snapshot of every breaker, sorted by service.
func (s *Breakers) Health() []Health {
	s.mu.Lock()
	list := make([]*Breaker, 0, len(s.breakers))
	for _, b := range s.breakers {
		list = append(list, b)
	}
	s.mu.Unlock()

	out := make([]Health, 0, len(list))
	for _, b := range list {
		out = append(out, b.Health())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Service < out[j].Service })
	return out
}
