package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/config"
	apierrors "github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/errors"
	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/monitoring"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// BreakerState mirrors gobreaker states for status reporting
type BreakerState string

const (
	BreakerStateClosed   BreakerState = "closed"
	BreakerStateOpen     BreakerState = "open"
	BreakerStateHalfOpen BreakerState = "half-open"
)

// Breaker stops sending queries to a failing database until it recovers
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// NewBreaker creates a breaker named name from cfg
func NewBreaker(name string, cfg config.BreakerConfig) *Breaker {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn().
				Str("circuit_breaker", name).
				Str("from", stateToString(from)).
				Str("to", stateToString(to)).
				Msg("Circuit breaker state changed")
			monitoring.SetCircuitBreakerState(name, stateToGauge(to))
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// Misses and caller cancellations say nothing about database health
			if errors.Is(err, pgx.ErrNoRows) || apierrors.IsNotFound(err) {
				return true
			}
			if errors.Is(err, context.Canceled) {
				return true
			}
			return false
		},
	})
	monitoring.SetCircuitBreakerState(name, 0)

	return &Breaker{cb: cb}
}

// Do runs fn unless the breaker is open
func (b *Breaker) Do(fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s", apierrors.ErrStoreUnavailable, err)
	}
	return err
}

// State reports the current breaker state
func (b *Breaker) State() BreakerState {
	return BreakerState(stateToString(b.cb.State()))
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return string(BreakerStateClosed)
	case gobreaker.StateOpen:
		return string(BreakerStateOpen)
	case gobreaker.StateHalfOpen:
		return string(BreakerStateHalfOpen)
	default:
		return "unknown"
	}
}

func stateToGauge(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 0.5
	default:
		return 0
	}
}
