package rpcutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	derrors "github.com/skewsched/coredriver/pkg/errors"
)

func fastPolicy() BackoffPolicy {
	return BackoffPolicy{
		InitialDelay: time.Millisecond,
		Factor:       2,
		MaxDelay:     5 * time.Millisecond,
		MaxAttempts:  4,
	}
}

func TestAskWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	resp, err := AskWithRetry[string](context.Background(), "driver", fastPolicy(), func(ctx context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", derrors.New("transient")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", resp)
	require.Equal(t, 3, attempts)
}

func TestAskWithRetrySurfacesExhaustion(t *testing.T) {
	attempts := 0
	_, err := AskWithRetry[struct{}](context.Background(), "driver", fastPolicy(), func(ctx context.Context) (struct{}, error) {
		attempts++
		return struct{}{}, derrors.New("down")
	})
	require.Error(t, err)
	require.Equal(t, 4, attempts)
	require.True(t, derrors.ErrSchedulerAskFailed.Equal(err), "exhaustion must surface the scheduler-communication failure")
}

func TestAskWithRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := AskWithRetry[struct{}](ctx, "driver", fastPolicy(), func(ctx context.Context) (struct{}, error) {
		return struct{}{}, derrors.New("unreachable")
	})
	require.Error(t, err)
}
