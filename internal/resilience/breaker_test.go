package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("down")

func fail(context.Context) error    { return errDown }
func succeed(context.Context) error { return nil }

func TestBreakerTransitions(t *testing.T) {
	transitions, err := NewTransitionCounter("test", prometheus.NewRegistry())
	require.NoError(t, err)
	now := time.Unix(0, 0)
	b := &Breaker{Target: "products", MinRequests: 2, FailureRatio: 0.5, OpenFor: time.Minute, Transitions: transitions}
	b.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, b.Do(ctx, succeed))
	require.ErrorIs(t, b.Do(ctx, fail), errDown)
	require.Equal(t, Open, b.State())

	calls := 0
	err = b.Do(ctx, func(context.Context) error { calls++; return nil })
	require.ErrorIs(t, err, ErrOpenCircuit)
	require.Zero(t, calls)

	now = now.Add(time.Minute)
	require.ErrorIs(t, b.Do(ctx, fail), errDown)
	require.Equal(t, Open, b.State(), "failed probe reopens")

	now = now.Add(time.Minute)
	require.NoError(t, b.Do(ctx, succeed))
	require.Equal(t, Closed, b.State())

	require.Equal(t, 1.0, testutil.ToFloat64(transitions.WithLabelValues("products", "closed", "open")))
	require.Equal(t, 2.0, testutil.ToFloat64(transitions.WithLabelValues("products", "open", "half_open")))
	require.Equal(t, 1.0, testutil.ToFloat64(transitions.WithLabelValues("products", "half_open", "open")))
	require.Equal(t, 1.0, testutil.ToFloat64(transitions.WithLabelValues("products", "half_open", "closed")))
}

func TestBreakerIgnoresExpectedErrors(t *testing.T) {
	notFound := errors.New("not found")
	b := &Breaker{MinRequests: 1, IsFailure: func(err error) bool { return !errors.Is(err, notFound) }}
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.ErrorIs(t, b.Do(ctx, func(context.Context) error { return notFound }), notFound)
	}
	require.Equal(t, Closed, b.State())
}

func TestNewTransitionCounterReusesRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewTransitionCounter("test", reg)
	require.NoError(t, err)
	second, err := NewTransitionCounter("test", reg)
	require.NoError(t, err)
	require.Same(t, first, second)
}
