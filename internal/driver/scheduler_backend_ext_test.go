package driver_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"github.com/skewsched/coredriver/internal/config"
	"github.com/skewsched/coredriver/internal/coretypes"
	"github.com/skewsched/coredriver/internal/driver"
	"github.com/skewsched/coredriver/internal/driver/mock"
	"github.com/skewsched/coredriver/internal/message"
)

// TestAllocationArithmeticThroughSchedulerBackend drives the
// executor-allocation API end to end: two registered executors, a request
// for three more, then a kill of one, asserting the exact totals the
// cluster manager is asked to converge to.
func TestAllocationArithmeticThroughSchedulerBackend(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	sched := mock.NewMockTaskScheduler(ctrl)
	sched.EXPECT().ResourceOffers(gomock.Any()).Return(nil).AnyTimes()
	transport := mock.NewMockExecutorTransport(ctrl)
	transport.EXPECT().SendToExecutor(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	cluster := mock.NewMockClusterManager(ctrl)

	cfg := config.DefaultDriverConfig()
	cfg.ReviveInterval = time.Hour // keep the timer quiet during the test
	e := driver.New(cfg, sched, nil, transport, cluster)
	backend := driver.NewSchedulerBackend(e)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, backend.Start(ctx))
	defer func() {
		require.NoError(t, backend.Stop())
	}()

	e.Post(message.RegisterExecutor{ExecutorID: "e1", TotalCores: 2, Host: "h1"})
	e.Post(message.RegisterExecutor{ExecutorID: "e2", TotalCores: 2, Host: "h2"})
	require.Eventually(t, func() bool {
		return backend.NumExistingExecutors() == 2
	}, 5*time.Second, 10*time.Millisecond)

	cluster.EXPECT().DoRequestTotalExecutors(gomock.Any(), 5).Return(nil)
	require.NoError(t, backend.RequestExecutors(ctx, 3))

	cluster.EXPECT().DoRequestTotalExecutors(gomock.Any(), 4).Return(nil)
	cluster.EXPECT().DoKillExecutors(gomock.Any(), []coretypes.ExecutorID{"e1"}).Return(nil)
	require.NoError(t, backend.KillExecutors(ctx, []coretypes.ExecutorID{"e1"}))

	require.Equal(t, int64(4), backend.DefaultParallelism())
}

// TestRemoveExecutorAskSurfacesFailureAfterRetries exercises the
// request-reply remove path's retry exhaustion on an id that was never
// registered.
func TestRemoveExecutorAskSurfacesFailureAfterRetries(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	sched := mock.NewMockTaskScheduler(ctrl)
	sched.EXPECT().ResourceOffers(gomock.Any()).Return(nil).AnyTimes()
	transport := mock.NewMockExecutorTransport(ctrl)
	cluster := mock.NewMockClusterManager(ctrl)

	cfg := config.DefaultDriverConfig()
	cfg.ReviveInterval = time.Hour
	e := driver.New(cfg, sched, nil, transport, cluster)
	backend := driver.NewSchedulerBackend(e)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, backend.Start(ctx))
	defer func() {
		require.NoError(t, backend.Stop())
	}()

	err := backend.RemoveExecutor(ctx, "never-registered", "test")
	require.Error(t, err)
}
