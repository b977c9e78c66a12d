package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/config"
	apierrors "github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b := NewBreaker("test-open", config.BreakerConfig{FailureThreshold: 2, Timeout: time.Minute})
	boom := errors.New("connection refused")

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, b.Do(func() error { return boom }), boom)
	}
	assert.Equal(t, BreakerStateOpen, b.State())

	called := false
	err := b.Do(func() error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called, "open breaker must not run the query")
	assert.ErrorIs(t, err, apierrors.ErrStoreUnavailable)
	assert.Equal(t, 503, apierrors.FromError(err).HTTPStatus)
}

func TestBreaker_MissesDoNotTrip(t *testing.T) {
	b := NewBreaker("test-misses", config.BreakerConfig{FailureThreshold: 1, Timeout: time.Minute})

	for i := 0; i < 3; i++ {
		err := b.Do(func() error { return apierrors.NotFound("run", "x") })
		assert.True(t, apierrors.IsNotFound(err))
	}
	assert.ErrorIs(t, b.Do(func() error { return context.Canceled }), context.Canceled)
	assert.Equal(t, BreakerStateClosed, b.State())
}
