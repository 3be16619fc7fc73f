package rpc_test

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/phayes/freeport"
	"github.com/stretchr/testify/require"

	"github.com/skewsched/coredriver/internal/config"
	"github.com/skewsched/coredriver/internal/coretypes"
	"github.com/skewsched/coredriver/internal/driver"
	"github.com/skewsched/coredriver/internal/executorbackend"
	"github.com/skewsched/coredriver/internal/message"
	"github.com/skewsched/coredriver/rpc"
	"github.com/skewsched/coredriver/rpc/wire"
)

type nopScheduler struct {
	mu      sync.Mutex
	updates []coretypes.TaskState
}

func (s *nopScheduler) ResourceOffers(offers []driver.Offer) []coretypes.TaskDescription {
	return nil
}

func (s *nopScheduler) StatusUpdate(taskID coretypes.TaskID, state coretypes.TaskState, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, state)
}

func (s *nopScheduler) ExecutorLost(executorID coretypes.ExecutorID, reason string) {}

func (s *nopScheduler) AbortTaskSet(taskSetID coretypes.TaskSetID, reason string) {}

type nopCluster struct{}

func (nopCluster) DoRequestTotalExecutors(ctx context.Context, total int) error { return nil }
func (nopCluster) DoKillExecutors(ctx context.Context, ids []coretypes.ExecutorID) error {
	return nil
}

// TestRegisterAndCommandRoundTrip brings up a real driver server and a real
// executor server on loopback, registers the executor over the wire, and
// then drives a LockTask/UnlockTask round trip through both gRPC services.
func TestRegisterAndCommandRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	driverPort, err := freeport.GetFreePort()
	require.NoError(t, err)
	driverAddr := fmt.Sprintf("127.0.0.1:%d", driverPort)

	cfg := config.DefaultDriverConfig()
	cfg.ReviveInterval = time.Hour

	clients := rpc.NewClientManager()
	defer clients.Close()
	endpoint := driver.New(cfg, &nopScheduler{}, wire.GobTaskCodec{}, clients, nopCluster{})
	require.NoError(t, endpoint.Start(ctx))
	defer func() {
		require.NoError(t, endpoint.Stop())
	}()
	backendAPI := driver.NewSchedulerBackend(endpoint)

	driverServer := rpc.NewDriverServer(endpoint, clients)
	driverLis, err := net.Listen("tcp", driverAddr)
	require.NoError(t, err)
	go func() {
		_ = driverServer.Serve(driverLis)
	}()
	defer driverServer.Stop()

	// Executor side.
	execLis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	execAddr := execLis.Addr().String()

	driverClient, err := rpc.DialDriver(ctx, driverAddr)
	require.NoError(t, err)
	defer driverClient.Close()

	backend := executorbackend.New("e1", driverClient, func() {})
	execServer := rpc.NewExecutorServer(backend, wire.GobTaskCodec{})
	go func() {
		_ = execServer.Serve(ctx, execLis)
	}()
	defer execServer.Stop()

	require.NoError(t, driverClient.Register(ctx, message.RegisterExecutor{
		ExecutorID: "e1",
		Address:    execAddr,
		Host:       "127.0.0.1",
		TotalCores: 4,
	}))

	require.Eventually(t, func() bool {
		return backendAPI.NumExistingExecutors() == 1
	}, 10*time.Second, 10*time.Millisecond, "registration should land in the registry")

	// Install an iterator, then lock and unlock it from the driver side.
	backend.RegisterTaskIterator(5, []coretypes.SkewTuneBlockInfo{
		{BlockID: "b1", HostBlockMgr: "bm1", SizeBytes: 10},
	})

	require.NoError(t, clients.SendToExecutor(ctx, "e1", message.LockTask{TaskID: 5}))
	require.Eventually(t, func() bool {
		return backend.IsTaskLocked(5)
	}, 10*time.Second, 10*time.Millisecond)

	require.NoError(t, clients.SendToExecutor(ctx, "e1", message.UnlockTask{TaskID: 5}))
	require.Eventually(t, func() bool {
		return !backend.IsTaskLocked(5)
	}, 10*time.Second, 10*time.Millisecond)

	// A duplicate registration is answered with RegisterExecutorFailed but
	// must not disturb the registry.
	require.NoError(t, driverClient.Register(ctx, message.RegisterExecutor{
		ExecutorID: "e1",
		Address:    execAddr,
		Host:       "127.0.0.1",
		TotalCores: 4,
	}))
	require.Equal(t, int64(1), backendAPI.NumExistingExecutors())
}
