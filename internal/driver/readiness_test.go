package driver

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/skewsched/coredriver/internal/message"
)

func TestReadinessGateOpensOnWallClockFallback(t *testing.T) {
	e, _, _, _ := newTestEndpoint()
	e.cfg.ExpectedExecutors = 10
	e.cfg.MinRegisteredResourcesRatio = 1
	e.cfg.MaxRegisteredResourcesWaitingTime = 30 * time.Second

	mock := clock.NewMock()
	e.clk = mock
	e.createTime = mock.Now()

	require.False(t, e.isReady(), "no executors and the waiting time has not elapsed")

	mock.Add(31 * time.Second)
	require.True(t, e.isReady(), "wall-clock fallback should open the gate")
}

func TestReadinessGateOpensOnRegisteredRatio(t *testing.T) {
	e, _, _, _ := newTestEndpoint()
	e.cfg.ExpectedExecutors = 2
	e.cfg.MinRegisteredResourcesRatio = 0.5
	e.cfg.MaxRegisteredResourcesWaitingTime = time.Hour

	mock := clock.NewMock()
	e.clk = mock
	e.createTime = mock.Now()

	require.False(t, e.isReady())

	e.dispatch(context.Background(), message.RegisterExecutor{ExecutorID: "e1", TotalCores: 2})
	require.True(t, e.isReady(), "1/2 registered meets the 0.5 ratio")
}
