package pdf

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerSettings tunes BreakerEngine.
type BreakerSettings struct {
	// Failures is the number of consecutive render failures that opens the breaker.
	Failures uint32
	// Cooldown is how long the breaker stays open before a trial render.
	Cooldown time.Duration
	// OnStateChange observes transitions, e.g. for metrics.
	OnStateChange func(from, to gobreaker.State)
}

// BreakerEngine fails renders fast with ErrUnavailable while the wrapped engine keeps failing.
type BreakerEngine struct {
	next    Engine
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerEngine wraps next with a consecutive-failure circuit breaker.
func NewBreakerEngine(next Engine, settings BreakerSettings, logger *zap.Logger) *BreakerEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	failures := settings.Failures
	if failures == 0 {
		failures = 3
	}
	cooldown := settings.Cooldown
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	return &BreakerEngine{
		next: next,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "pdf-engine",
			MaxRequests: 1,
			Timeout:     cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				logger.Info("render breaker state changed",
					zap.String("name", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
				if settings.OnStateChange != nil {
					settings.OnStateChange(from, to)
				}
			},
		}),
	}
}

// Render implements Engine.
func (b *BreakerEngine) Render(ctx context.Context, markup []byte) ([]byte, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		return b.next.Render(ctx, markup)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, err
	}
	data, _ := result.([]byte)
	return data, nil
}

// State reports the breaker state.
func (b *BreakerEngine) State() gobreaker.State {
	return b.breaker.State()
}
