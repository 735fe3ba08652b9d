// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package httputil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCall_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	var retried []int
	got, err := Call(context.Background(), Policy{
		MaxAttempts: 3,
		Backoff:     time.Millisecond,
		OnRetry:     func(n int, _ error) { retried = append(retried, n) },
	}, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("boom")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestCall_ExhaustsAttempts(t *testing.T) {
	sentinel := errors.New("still broken")
	calls := 0
	_, err := Call(context.Background(), Policy{MaxAttempts: 2, Backoff: time.Millisecond}, func(context.Context) (int, error) {
		calls++
		return 0, sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 2, calls)
}

func TestCall_PerAttemptTimeout(t *testing.T) {
	_, err := Call(context.Background(), Policy{MaxAttempts: 1, Timeout: 10 * time.Millisecond}, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, errors.New("provider gave up")
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCall_ParentCancelStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Call(ctx, Policy{MaxAttempts: 5, Backoff: time.Millisecond}, func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, errors.New("fail")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
