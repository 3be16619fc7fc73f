package executorbackend

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skewsched/coredriver/internal/coretypes"
	"github.com/skewsched/coredriver/internal/message"
)

type recordingDriver struct {
	mu  sync.Mutex
	out []message.Envelope
}

func (d *recordingDriver) Send(env message.Envelope) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.out = append(d.out, env)
	return nil
}

type fakeTaskExecutor struct {
	launched []coretypes.TaskID
	killed   []coretypes.TaskID
	stopped  bool
}

func (f *fakeTaskExecutor) LaunchTask(desc coretypes.TaskDescription) error {
	f.launched = append(f.launched, desc.TaskID)
	return nil
}

func (f *fakeTaskExecutor) KillTask(taskID coretypes.TaskID, interrupt bool) error {
	f.killed = append(f.killed, taskID)
	return nil
}

func (f *fakeTaskExecutor) Stop() { f.stopped = true }

func TestHandleLaunchTaskWithoutExecutorIsFatal(t *testing.T) {
	b := New("e1", &recordingDriver{}, func() {})
	err := b.HandleLaunchTask(coretypes.TaskDescription{TaskID: 1})
	require.Error(t, err)
}

func TestHandleLaunchTaskDelegates(t *testing.T) {
	b := New("e1", &recordingDriver{}, func() {})
	exec := &fakeTaskExecutor{}
	b.SetRegistered(exec)

	err := b.HandleLaunchTask(coretypes.TaskDescription{TaskID: 1, Name: "t1"})
	require.NoError(t, err)
	require.Equal(t, []coretypes.TaskID{1}, exec.launched)
}

func TestHandleStopExecutorTransitionsAndCallsStopFnOnce(t *testing.T) {
	var stopCalls int
	b := New("e1", &recordingDriver{}, func() { stopCalls++ })
	exec := &fakeTaskExecutor{}
	b.SetRegistered(exec)
	b.SetRunning()

	b.HandleStopExecutor()
	require.Equal(t, StateStopped, b.CurrentState())
	require.True(t, exec.stopped)

	b.HandleStopExecutor()
	require.Equal(t, 1, stopCalls)
}

func TestRemoveFetchCommandPartialMatchSemantics(t *testing.T) {
	driver := &recordingDriver{}
	b := New("e1", driver, func() {})

	initial := []coretypes.SkewTuneBlockInfo{
		{BlockID: "b1", HostBlockMgr: "h1", SizeBytes: 10},
		{BlockID: "b2", HostBlockMgr: "h1", SizeBytes: 20},
	}
	b.RegisterTaskIterator(1, initial)

	err := b.HandleRemoveFetchCommand(message.RemoveFetchCommand{
		TaskID:         1,
		NextExecutorID: "e2",
		NextTaskID:     2,
		BlocksByHost: message.BlocksByHost{
			"h1": {"b1", "b3-does-not-exist"},
		},
	})
	require.NoError(t, err)

	require.Len(t, driver.out, 1)
	transfer, ok := driver.out[0].(message.TransferRemovedFetch)
	require.True(t, ok)
	require.Equal(t, coretypes.ExecutorID("e2"), transfer.NextExecutorID)

	var gotIDs []coretypes.BlockID
	for _, blocks := range transfer.BlocksWithSizeByHost {
		for _, blk := range blocks {
			gotIDs = append(gotIDs, blk.BlockID)
		}
	}
	require.Equal(t, []coretypes.BlockID{"b1"}, gotIDs)

	it, ok := b.iterator(1)
	require.True(t, ok)
	require.Equal(t, 1, it.PendingLen())
}

func TestRemoveFetchCommandNoRemovalsSendsNothing(t *testing.T) {
	driver := &recordingDriver{}
	b := New("e1", driver, func() {})
	b.RegisterTaskIterator(1, nil)

	err := b.HandleRemoveFetchCommand(message.RemoveFetchCommand{
		TaskID:       1,
		BlocksByHost: message.BlocksByHost{"h1": {"unknown"}},
	})
	require.NoError(t, err)
	require.Empty(t, driver.out)
}

func TestLockUnlockTaskMirrorsIteratorState(t *testing.T) {
	b := New("e1", &recordingDriver{}, func() {})
	b.RegisterTaskIterator(1, nil)

	b.HandleLockTask(1)
	require.True(t, b.IsTaskLocked(1))
	it, _ := b.iterator(1)
	require.True(t, it.IsLocked())

	b.HandleUnlockTask(1)
	require.False(t, b.IsTaskLocked(1))
	require.False(t, it.IsLocked())
}

func TestHandleRemoveAndAddResultCommandMovesFetchedBlocks(t *testing.T) {
	b := New("e1", &recordingDriver{}, func() {})
	from := b.RegisterTaskIterator(1, nil)
	to := b.RegisterTaskIterator(2, nil)

	from.AddFetchResults([]coretypes.SkewTuneBlockInfo{{BlockID: "b1", SizeBytes: 10}})

	b.HandleRemoveAndAddResultCommand(message.RemoveAndAddResultCommand{
		BlockIDs: []coretypes.BlockID{"b1", "missing"},
		FromTask: 1,
		ToTask:   2,
	})

	_, stillFetched := from.fetched["b1"]
	require.False(t, stillFetched)
	_, movedIn := to.fetched["b1"]
	require.True(t, movedIn)
}
