package resilience

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned when the breaker refuses a call.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State represents the current breaker state.
type State int

const (
	// Closed accepts all calls and tracks failures.
	Closed State = iota
	// Open rejects calls until the cool-off period expires.
	Open
	// HalfOpen lets one probe through to test recovery.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Breaker opens once the failure ratio of recent collaborator calls reaches
// a threshold, failing fast until the cool-off period has passed.
type Breaker struct {
	Target       string
	MinRequests  int
	FailureRatio float64
	OpenFor      time.Duration
	Logger       zerolog.Logger
	// Transitions counts state changes by target, from and to. Optional.
	Transitions *prometheus.CounterVec
	// IsFailure classifies call errors. Nil treats every error as a failure.
	IsFailure func(error) bool

	now func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time
}

// NewTransitionCounter registers the breaker transition counter on reg.
func NewTransitionCounter(namespace string, reg prometheus.Registerer) (*prometheus.CounterVec, error) {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "breaker_transitions_total",
		Help:      "Count of circuit breaker state transitions.",
	}, []string{"target", "from", "to"})
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return c, nil
}

// Do runs fn unless the breaker is open and records its outcome.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	if !b.allow(ctx) {
		return ErrOpenCircuit
	}
	err := fn(ctx)
	b.report(ctx, err == nil || !b.isFailure(err))
	return err
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) isFailure(err error) bool {
	if b.IsFailure == nil {
		return true
	}
	return b.IsFailure(err)
}

func (b *Breaker) clock() time.Time {
	if b.now != nil {
		return b.now()
	}
	return time.Now()
}

func (b *Breaker) allow(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case Open:
		if b.clock().Sub(b.openedAt) >= b.openFor() {
			b.changeStateLocked(ctx, HalfOpen)
			return true
		}
		return false
	default:
		return true
	}
}

func (b *Breaker) report(ctx context.Context, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		return
	case HalfOpen:
		if success {
			b.changeStateLocked(ctx, Closed)
		} else {
			b.changeStateLocked(ctx, Open)
		}
		return
	}

	if success {
		b.successes++
	} else {
		b.failures++
	}
	total := b.failures + b.successes
	minRequests := max(b.MinRequests, 1)
	if total < minRequests {
		return
	}
	if float64(b.failures)/float64(total) >= b.failureRatio() {
		b.changeStateLocked(ctx, Open)
	} else if total > minRequests*2 {
		// halve the window so old outcomes fade
		b.successes = (b.successes + 1) / 2
		b.failures = (b.failures + 1) / 2
	}
}

func (b *Breaker) failureRatio() float64 {
	switch {
	case b.FailureRatio <= 0:
		return 0.5
	case b.FailureRatio > 1:
		return 1
	default:
		return b.FailureRatio
	}
}

func (b *Breaker) openFor() time.Duration {
	if b.OpenFor <= 0 {
		return 30 * time.Second
	}
	return b.OpenFor
}

func (b *Breaker) changeStateLocked(ctx context.Context, next State) {
	prev := b.state
	if prev == next {
		return
	}
	b.state = next
	switch next {
	case Open:
		b.openedAt = b.clock()
	case Closed:
		b.openedAt = time.Time{}
	}
	b.failures = 0
	b.successes = 0

	target := strings.TrimSpace(b.Target)
	if target == "" {
		target = "default"
	}
	if b.Transitions != nil {
		b.Transitions.WithLabelValues(target, prev.String(), next.String()).Inc()
	}
	evt := b.Logger.Info().Str("target", target).Str("from_state", prev.String()).Str("to_state", next.String())
	if span := trace.SpanContextFromContext(ctx); span.IsValid() {
		evt = evt.Str("trace_id", span.TraceID().String())
	}
	evt.Msg("breaker_transition")
}
