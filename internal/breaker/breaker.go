package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"booktrack/searchservice/internal/domain"
	"booktrack/searchservice/internal/metrics"
)

// ErrOpen is returned (wrapped) when a call is rejected because the breaker
// is open and no fallback is configured.
var ErrOpen = errors.New("circuit breaker is open")

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

type outcomeKind int

const (
	outcomeSuccess outcomeKind = iota
	outcomeFailure
	outcomeTimeout
)

type outcome struct {
	at   time.Time
	kind outcomeKind
}

// Counts is a snapshot of the rolling window plus the reject total.
type Counts struct {
	Successes int
	Failures  int
	Timeouts  int
	Rejects   int
}

// Event describes a breaker state change or call outcome. Type is one of
// "open", "half_open", "closed", "failure", "timeout", "reject", "fallback";
// Category refines failures into rate_limited/server_error/timeout/other.
type Event struct {
	Provider string
	Type     string
	State    State
	Category string
	Err      error
}

// Observer receives breaker events synchronously; it must not block.
type Observer func(Event)

// Fallback is invoked in place of surfacing the raw error when a call is
// rejected or ultimately fails. It must be side-effect free: while the
// breaker is open it runs on every rejected call.
type Fallback func(ctx context.Context, cause error) (domain.ProviderPage, error)

type Config struct {
	Timeout          time.Duration // hard per-call deadline
	ResetTimeout     time.Duration // open -> half_open delay
	Window           time.Duration // rolling window span
	FailureThreshold float64       // failure ratio that opens the breaker
	MinSamples       int           // minimum window size before the ratio applies
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 8 * time.Second
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.Window <= 0 {
		c.Window = time.Minute
	}
	if c.FailureThreshold <= 0 || c.FailureThreshold > 1 {
		c.FailureThreshold = 0.5
	}
	if c.MinSamples <= 0 {
		c.MinSamples = 5
	}
	return c
}

// Breaker guards one provider's search call with failure-rate based
// open/half_open/closed state, a hard call timeout and an optional fallback.
type Breaker struct {
	name     string
	cfg      Config
	fallback Fallback
	observer Observer

	mu       sync.Mutex
	state    State
	openedAt time.Time
	probing  bool
	window   []outcome
	rejects  int
	lastErr  string
}

type Option func(*Breaker)

func WithFallback(fallback Fallback) Option {
	return func(b *Breaker) { b.fallback = fallback }
}

func WithObserver(observer Observer) Option {
	return func(b *Breaker) { b.observer = observer }
}

func New(name string, cfg Config, opts ...Option) *Breaker {
	b := &Breaker{
		name:  name,
		cfg:   cfg.withDefaults(),
		state: StateClosed,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	metrics.BreakerState.WithLabelValues(name).Set(float64(StateClosed))
	return b
}

func (b *Breaker) Name() string { return b.name }

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	counts := Counts{Rejects: b.rejects}
	cutoff := time.Now().Add(-b.cfg.Window)
	for _, o := range b.window {
		if o.at.Before(cutoff) {
			continue
		}
		switch o.kind {
		case outcomeSuccess:
			counts.Successes++
		case outcomeTimeout:
			counts.Timeouts++
		default:
			counts.Failures++
		}
	}
	return counts
}

func (b *Breaker) LastError() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}

func (b *Breaker) OpenedAt() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.openedAt
}

// Execute runs fn under the breaker's admission control and hard timeout.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) (domain.ProviderPage, error)) (domain.ProviderPage, error) {
	admitted, probe := b.admit(time.Now())
	if !admitted {
		b.recordReject()
		cause := fmt.Errorf("%s: %w", b.name, ErrOpen)
		if b.fallback != nil {
			b.emit(Event{Provider: b.name, Type: "fallback", State: b.State(), Err: cause})
			return b.fallback(ctx, cause)
		}
		return domain.ProviderPage{}, cause
	}

	callCtx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	page, err := fn(callCtx)

	// An abandoned request (outer context cancelled) says nothing about the
	// provider's health; release the probe slot without recording an outcome.
	if err != nil && ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
		b.releaseProbe(probe)
		return domain.ProviderPage{}, err
	}

	if err == nil {
		b.recordSuccess(probe, time.Now())
		return page, nil
	}

	timedOut := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, domain.ErrTimeout)
	if timedOut {
		err = fmt.Errorf("%s: %w", b.name, domain.ErrTimeout)
	}
	b.recordFailure(probe, timedOut, err, time.Now())

	if b.fallback != nil {
		b.emit(Event{Provider: b.name, Type: "fallback", State: b.State(), Err: err})
		return b.fallback(ctx, err)
	}
	return domain.ProviderPage{}, err
}

// admit decides whether a call may proceed; the second return marks the
// caller as the single half-open probe.
func (b *Breaker) admit(now time.Time) (bool, bool) {
	b.mu.Lock()

	switch b.state {
	case StateClosed:
		b.mu.Unlock()
		return true, false
	case StateOpen:
		if now.Sub(b.openedAt) < b.cfg.ResetTimeout {
			b.mu.Unlock()
			return false, false
		}
		b.setStateLocked(StateHalfOpen)
		b.probing = true
		b.mu.Unlock()
		b.emit(Event{Provider: b.name, Type: "half_open", State: StateHalfOpen})
		return true, true
	default: // StateHalfOpen
		if b.probing {
			b.mu.Unlock()
			return false, false
		}
		b.probing = true
		b.mu.Unlock()
		return true, true
	}
}

func (b *Breaker) releaseProbe(probe bool) {
	if !probe {
		return
	}
	b.mu.Lock()
	b.probing = false
	b.mu.Unlock()
}

func (b *Breaker) recordReject() {
	b.mu.Lock()
	b.rejects++
	state := b.state
	b.mu.Unlock()
	metrics.BreakerRejectsTotal.WithLabelValues(b.name).Inc()
	b.emit(Event{Provider: b.name, Type: "reject", State: state})
}

func (b *Breaker) recordSuccess(probe bool, now time.Time) {
	b.mu.Lock()
	if probe {
		b.probing = false
		b.window = b.window[:0]
		b.lastErr = ""
		changed := b.setStateLocked(StateClosed)
		b.mu.Unlock()
		if changed {
			b.emit(Event{Provider: b.name, Type: "closed", State: StateClosed})
		}
		return
	}
	b.window = append(b.pruneLocked(now), outcome{at: now, kind: outcomeSuccess})
	b.mu.Unlock()
}

func (b *Breaker) recordFailure(probe, timedOut bool, err error, now time.Time) {
	kind := outcomeFailure
	eventType := "failure"
	if timedOut {
		kind = outcomeTimeout
		eventType = "timeout"
	}

	b.mu.Lock()
	b.lastErr = err.Error()
	opened := false
	if probe {
		b.probing = false
		b.openedAt = now
		opened = b.setStateLocked(StateOpen)
	} else {
		b.window = append(b.pruneLocked(now), outcome{at: now, kind: kind})
		total := len(b.window)
		bad := 0
		for _, o := range b.window {
			if o.kind != outcomeSuccess {
				bad++
			}
		}
		if total >= b.cfg.MinSamples && float64(bad)/float64(total) >= b.cfg.FailureThreshold {
			b.openedAt = now
			opened = b.setStateLocked(StateOpen)
		}
	}
	state := b.state
	b.mu.Unlock()

	b.emit(Event{Provider: b.name, Type: eventType, State: state, Category: categorize(err), Err: err})
	if opened {
		b.emit(Event{Provider: b.name, Type: "open", State: StateOpen, Err: err})
	}
}

func (b *Breaker) pruneLocked(now time.Time) []outcome {
	cutoff := now.Add(-b.cfg.Window)
	kept := b.window[:0]
	for _, o := range b.window {
		if !o.at.Before(cutoff) {
			kept = append(kept, o)
		}
	}
	return kept
}

func (b *Breaker) setStateLocked(next State) bool {
	if b.state == next {
		return false
	}
	b.state = next
	metrics.BreakerState.WithLabelValues(b.name).Set(float64(next))
	metrics.BreakerTransitionsTotal.WithLabelValues(b.name, next.String()).Inc()
	return true
}

func (b *Breaker) emit(event Event) {
	if b.observer != nil {
		b.observer(event)
	}
}

func categorize(err error) string {
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrUpstreamServer):
		return "server_error"
	case errors.Is(err, domain.ErrTimeout):
		return "timeout"
	default:
		return "other"
	}
}
