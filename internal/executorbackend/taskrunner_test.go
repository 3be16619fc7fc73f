package executorbackend

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skewsched/coredriver/internal/coretypes"
	"github.com/skewsched/coredriver/internal/message"
)

func countFinished(d *recordingDriver, taskID coretypes.TaskID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, env := range d.out {
		if fin, ok := env.(message.ReportTaskFinished); ok && fin.TaskID == taskID {
			return true
		}
	}
	return false
}

func fetchedBlocks(d *recordingDriver) []coretypes.BlockID {
	d.mu.Lock()
	defer d.mu.Unlock()
	var ids []coretypes.BlockID
	for _, env := range d.out {
		if rep, ok := env.(message.ReportBlockStatuses); ok {
			for _, u := range rep.Updates {
				if u.Status == coretypes.BlockStatusFetched {
					ids = append(ids, u.BlockID)
				}
			}
		}
	}
	return ids
}

func TestRunnerDrainsTaskAndReportsFinish(t *testing.T) {
	drv := &recordingDriver{}
	b := New("e1", drv, func() {})
	r := NewRunner("e1", b, drv, nil)
	b.SetUnlockHook(r.Wake)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		r.Run(ctx, 2)
		close(done)
	}()

	blocks := []coretypes.SkewTuneBlockInfo{
		{BlockID: "b1", HostBlockMgr: "bm1", SizeBytes: 10},
		{BlockID: "b2", HostBlockMgr: "bm1", SizeBytes: 20},
	}
	require.NoError(t, r.LaunchTask(coretypes.TaskDescription{
		TaskID: 1, TaskSetID: "ts1", Blocks: blocks, PendingTasksInSet: 3,
	}))

	require.Eventually(t, func() bool {
		return countFinished(drv, 1)
	}, 5*time.Second, 10*time.Millisecond)
	require.ElementsMatch(t, []coretypes.BlockID{"b1", "b2"}, fetchedBlocks(drv))

	drv.mu.Lock()
	var reg *message.RegisterNewTask
	var sawComputeSpeed bool
	for _, env := range drv.out {
		switch m := env.(type) {
		case message.RegisterNewTask:
			cp := m
			reg = &cp
		case message.ReportTaskComputeSpeed:
			sawComputeSpeed = true
		}
	}
	drv.mu.Unlock()
	require.NotNil(t, reg, "launch must announce the task to the skew controller")
	require.Equal(t, coretypes.TaskSetID("ts1"), reg.TaskSetID)
	require.Equal(t, coretypes.ExecutorID("e1"), reg.ExecutorID)
	require.Len(t, reg.Blocks, 2)
	require.Equal(t, 3, reg.PendingTasksInSet)
	require.True(t, sawComputeSpeed, "each fetched block refreshes the compute-speed report")

	r.Stop()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestRunnerParksWhileLockedAndResumesOnUnlock(t *testing.T) {
	drv := &recordingDriver{}
	b := New("e1", drv, func() {})
	r := NewRunner("e1", b, drv, nil)
	b.SetUnlockHook(r.Wake)

	// Lock before any worker starts so the first poll observes the lock and
	// parks the task deterministically.
	require.NoError(t, r.LaunchTask(coretypes.TaskDescription{
		TaskID: 1, TaskSetID: "ts1",
		Blocks: []coretypes.SkewTuneBlockInfo{{BlockID: "b1", HostBlockMgr: "bm1", SizeBytes: 10}},
	}))
	b.HandleLockTask(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx, 1)
	defer r.Stop()

	require.Never(t, func() bool {
		return countFinished(drv, 1)
	}, 300*time.Millisecond, 20*time.Millisecond, "a locked task must not make progress")

	b.HandleUnlockTask(1)
	require.Eventually(t, func() bool {
		return countFinished(drv, 1)
	}, 5*time.Second, 10*time.Millisecond)
}

func TestRunnerKillReportsKilledState(t *testing.T) {
	drv := &recordingDriver{}
	b := New("e1", drv, func() {})
	r := NewRunner("e1", b, drv, nil)
	b.SetUnlockHook(r.Wake)

	require.NoError(t, r.LaunchTask(coretypes.TaskDescription{
		TaskID: 1, TaskSetID: "ts1",
		Blocks: []coretypes.SkewTuneBlockInfo{{BlockID: "b1", HostBlockMgr: "bm1", SizeBytes: 10}},
	}))
	require.NoError(t, r.KillTask(1, true))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx, 1)
	defer r.Stop()

	require.Eventually(t, func() bool {
		drv.mu.Lock()
		defer drv.mu.Unlock()
		for _, env := range drv.out {
			if su, ok := env.(message.StatusUpdate); ok && su.State == coretypes.TaskStateKilled {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)
}
