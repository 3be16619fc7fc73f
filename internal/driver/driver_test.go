package driver

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skewsched/coredriver/internal/config"
	"github.com/skewsched/coredriver/internal/coretypes"
	"github.com/skewsched/coredriver/internal/message"
)

type fakeScheduler struct {
	mu      sync.Mutex
	offers  [][]Offer
	toGrant []coretypes.TaskDescription
	aborted []string
	updates []coretypes.TaskState
	lost    []coretypes.ExecutorID
}

func (s *fakeScheduler) ResourceOffers(offers []Offer) []coretypes.TaskDescription {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offers = append(s.offers, offers)
	out := s.toGrant
	s.toGrant = nil
	return out
}

func (s *fakeScheduler) StatusUpdate(taskID coretypes.TaskID, state coretypes.TaskState, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, state)
}

func (s *fakeScheduler) ExecutorLost(executorID coretypes.ExecutorID, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lost = append(s.lost, executorID)
}

func (s *fakeScheduler) AbortTaskSet(taskSetID coretypes.TaskSetID, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aborted = append(s.aborted, reason)
}

type fakeCodec struct{}

func (fakeCodec) Encode(desc coretypes.TaskDescription) ([]byte, error) {
	return desc.SerializedTask, nil
}

type fakeTransport struct {
	mu   sync.Mutex
	sent map[coretypes.ExecutorID][]message.Envelope
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{sent: make(map[coretypes.ExecutorID][]message.Envelope)}
}

func (t *fakeTransport) SendToExecutor(ctx context.Context, executorID coretypes.ExecutorID, env message.Envelope) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent[executorID] = append(t.sent[executorID], env)
	return nil
}

func (t *fakeTransport) BroadcastToAllExecutors(ctx context.Context, env message.Envelope) error {
	return nil
}

type fakeCluster struct {
	mu          sync.Mutex
	totals      []int
	killedBatch [][]coretypes.ExecutorID
}

func (c *fakeCluster) DoRequestTotalExecutors(ctx context.Context, total int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totals = append(c.totals, total)
	return nil
}

func (c *fakeCluster) DoKillExecutors(ctx context.Context, ids []coretypes.ExecutorID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.killedBatch = append(c.killedBatch, ids)
	return nil
}

func newTestEndpoint() (*Endpoint, *fakeScheduler, *fakeTransport, *fakeCluster) {
	sched := &fakeScheduler{}
	transport := newFakeTransport()
	cluster := &fakeCluster{}
	e := New(config.DefaultDriverConfig(), sched, fakeCodec{}, transport, cluster)
	return e, sched, transport, cluster
}

func TestRegisterExecutorThenMakeOffers(t *testing.T) {
	e, sched, transport, _ := newTestEndpoint()
	ctx := context.Background()

	sched.toGrant = []coretypes.TaskDescription{
		{TaskID: 1, TaskSetID: "ts1", ExecutorID: "e1", Name: "t1", SerializedTask: []byte("abc")},
	}

	e.dispatch(ctx, message.RegisterExecutor{ExecutorID: "e1", Host: "h1", TotalCores: 4})

	require.True(t, e.registry.Exists("e1"))
	require.Len(t, sched.offers, 1)
	require.Len(t, transport.sent["e1"], 2, "expects RegisteredExecutor ack plus LaunchTask")

	data, _ := e.registry.Get("e1")
	require.Equal(t, 3, data.FreeCores, "CPUsPerTask=1 should be deducted once for the launched task")
}

func TestDuplicateRegistrationIsRejected(t *testing.T) {
	e, _, transport, _ := newTestEndpoint()
	ctx := context.Background()

	e.dispatch(ctx, message.RegisterExecutor{ExecutorID: "e1", TotalCores: 2})
	e.dispatch(ctx, message.RegisterExecutor{ExecutorID: "e1", TotalCores: 2})

	found := false
	for _, env := range transport.sent["e1"] {
		if _, ok := env.(message.RegisterExecutorFailed); ok {
			found = true
		}
	}
	require.True(t, found)
}

func TestKillTaskRoutesThroughMailboxToOwningExecutor(t *testing.T) {
	e, _, transport, _ := newTestEndpoint()
	ctx := context.Background()

	e.dispatch(ctx, message.RegisterExecutor{ExecutorID: "e1", TotalCores: 2})
	e.dispatch(ctx, message.KillTask{TaskID: 9, ExecutorID: "e1", Interrupt: true})

	var kill *message.KillTask
	for _, env := range transport.sent["e1"] {
		if k, ok := env.(message.KillTask); ok {
			cp := k
			kill = &cp
		}
	}
	require.NotNil(t, kill)
	require.Equal(t, coretypes.TaskID(9), kill.TaskID)
	require.True(t, kill.Interrupt)

	// Unknown executor: logged and dropped, nothing sent.
	e.dispatch(ctx, message.KillTask{TaskID: 9, ExecutorID: "ghost"})
	require.Empty(t, transport.sent["ghost"])
}

func TestStatusUpdateTerminalStateFreesCoresAndRevives(t *testing.T) {
	e, sched, _, _ := newTestEndpoint()
	ctx := context.Background()

	e.dispatch(ctx, message.RegisterExecutor{ExecutorID: "e1", TotalCores: 2})
	require.NoError(t, e.registry.AdjustFreeCores("e1", -1))

	e.dispatch(ctx, message.StatusUpdate{ExecutorID: "e1", TaskID: 1, State: coretypes.TaskStateFinished})

	data, _ := e.registry.Get("e1")
	require.Equal(t, 2, data.FreeCores)
	require.Len(t, sched.updates, 1)
}

func TestLaunchTasksAbortsOnFrameSizeExceeded(t *testing.T) {
	e, sched, transport, _ := newTestEndpoint()
	e.cfg.MaxFrameSize = 4
	e.cfg.Reserved = 0
	ctx := context.Background()

	e.dispatch(ctx, message.RegisterExecutor{ExecutorID: "e1", TotalCores: 2})
	sched.toGrant = []coretypes.TaskDescription{
		{TaskID: 1, TaskSetID: "big-set", ExecutorID: "e1", SerializedTask: []byte("this payload is too big")},
	}
	e.makeOffers(ctx, nil)

	require.Len(t, sched.aborted, 1)
	require.Empty(t, transport.sent["e1"][1:], "no LaunchTask should have been sent past the registration ack")
}

func TestRequestExecutorsThenKillExecutorsArithmetic(t *testing.T) {
	e, _, _, cluster := newTestEndpoint()
	ctx := context.Background()

	e.dispatch(ctx, message.RegisterExecutor{ExecutorID: "e1", TotalCores: 2})
	e.dispatch(ctx, message.RegisterExecutor{ExecutorID: "e2", TotalCores: 2})

	require.NoError(t, e.requestExecutors(ctx, 3))
	require.Equal(t, 5, cluster.totals[len(cluster.totals)-1], "existing(2)+pending(3)-pending_remove(0)")

	require.NoError(t, e.killExecutors(ctx, []coretypes.ExecutorID{"e1"}))
	require.Equal(t, 4, cluster.totals[len(cluster.totals)-1], "existing(2)+pending(3)-pending_remove(0)-filtered(1)")
	require.True(t, e.registry.IsPendingToRemove("e1"))
}

func TestRequestExecutorsRejectsNegativeDelta(t *testing.T) {
	e, _, _, _ := newTestEndpoint()
	err := e.requestExecutors(context.Background(), -1)
	require.Error(t, err)
}

func TestRequestTotalExecutorsNeverDrivesNegativePending(t *testing.T) {
	e, _, _, cluster := newTestEndpoint()
	ctx := context.Background()

	e.dispatch(ctx, message.RegisterExecutor{ExecutorID: "e1", TotalCores: 2})

	require.NoError(t, e.requestTotalExecutors(ctx, 5))
	require.NoError(t, e.requestTotalExecutors(ctx, 0))

	require.Equal(t, 0, e.registry.NumPendingExecutors())
	require.Equal(t, 1, cluster.totals[len(cluster.totals)-1])
}

func TestIsReadyFallsBackToWallClockTimeout(t *testing.T) {
	e, _, _, _ := newTestEndpoint()
	e.cfg.ExpectedExecutors = 10
	e.cfg.MinRegisteredResourcesRatio = 1
	e.cfg.MaxRegisteredResourcesWaitingTime = 0

	require.True(t, e.isReady(), "zero waiting time should make the gate pass immediately regardless of the ratio")
}

func TestSkewMasterForIsStableAcrossCalls(t *testing.T) {
	e, _, _, _ := newTestEndpoint()
	m1 := e.skewMasterFor("ts1")
	m2 := e.skewMasterFor("ts1")
	m3 := e.skewMasterFor("ts2")
	require.Same(t, m1, m2)
	require.NotSame(t, m1, m3)
}
