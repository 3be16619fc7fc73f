package executorbackend

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/skewsched/coredriver/internal/coretypes"
	"github.com/skewsched/coredriver/internal/message"
	"github.com/skewsched/coredriver/pkg/log"
)

// BlockFetcher pulls one shuffle block from its hosting block manager. The
// transport itself is an external collaborator; the runner only needs the
// blocking call.
type BlockFetcher interface {
	Fetch(ctx context.Context, block coretypes.SkewTuneBlockInfo) error
}

// runnerTaskStatus is the cooperative scheduling state of one running task.
type runnerTaskStatus int32

const (
	taskRunnable runnerTaskStatus = iota
	taskBlocked
	taskWaking
	taskStopped
)

// taskContainer is one launched task inside the Runner: its fetch iterator,
// its cooperative status word, and the identity reported back to the driver.
// startedAt and fetchedBytes feed the compute-speed reports; only the worker
// currently holding the popped container touches fetchedBytes.
type taskContainer struct {
	taskID    coretypes.TaskID
	taskSetID coretypes.TaskSetID
	status    int32

	it *FetchIterator

	startedAt    time.Time
	fetchedBytes int64

	killed atomic.Bool
}

func (t *taskContainer) getStatus() runnerTaskStatus {
	return runnerTaskStatus(atomic.LoadInt32(&t.status))
}

func (t *taskContainer) setStatus(s runnerTaskStatus) {
	atomic.StoreInt32(&t.status, int32(s))
}

// tryBlock transitions Runnable->Blocked unless a wake raced in first.
func (t *taskContainer) tryBlock() bool {
	return atomic.CompareAndSwapInt32(&t.status, int32(taskRunnable), int32(taskBlocked))
}

// wake transitions Blocked->Waking so the runner requeues the task.
func (t *taskContainer) wake() bool {
	return atomic.CompareAndSwapInt32(&t.status, int32(taskBlocked), int32(taskWaking))
}

// runQueue is the Runner's shared work queue.
type runQueue struct {
	sync.Mutex
	tasks []*taskContainer
}

func (q *runQueue) pop() *taskContainer {
	q.Lock()
	defer q.Unlock()
	if len(q.tasks) == 0 {
		return nil
	}
	task := q.tasks[0]
	q.tasks = q.tasks[1:]
	return task
}

func (q *runQueue) push(t *taskContainer) {
	q.Lock()
	defer q.Unlock()
	q.tasks = append(q.tasks, t)
}

// IteratorRegistry is the slice of Backend the Runner needs: iterator
// lifecycle per task.
type IteratorRegistry interface {
	RegisterTaskIterator(taskID coretypes.TaskID, initial []coretypes.SkewTuneBlockInfo) *FetchIterator
	RemoveTaskIterator(taskID coretypes.TaskID)
	IsTaskLocked(taskID coretypes.TaskID) bool
}

// Runner is the default TaskExecutor: a pool of cooperative workers that
// poll launched tasks round-robin, draining each task's fetch iterator one
// block per poll. A task whose iterator is locked parks as Blocked and is
// woken by the iterator's unlock edge, so at most the unlocked task makes
// fetch progress during a rebalancing window.
type Runner struct {
	executorID coretypes.ExecutorID
	iterators  IteratorRegistry
	driver     DriverClient
	fetcher    BlockFetcher

	tasksMu sync.RWMutex
	tasks   map[coretypes.TaskID]*taskContainer
	q       runQueue

	wg       sync.WaitGroup
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// NewRunner builds a Runner; fetcher may be nil, in which case fetches
// complete immediately (useful when the block transport is handled by the
// task body itself).
func NewRunner(executorID coretypes.ExecutorID, iterators IteratorRegistry, driver DriverClient, fetcher BlockFetcher) *Runner {
	return &Runner{
		executorID: executorID,
		iterators:  iterators,
		driver:     driver,
		fetcher:    fetcher,
		tasks:      make(map[coretypes.TaskID]*taskContainer),
	}
}

// Run starts workers cooperative worker goroutines and blocks until Stop or
// ctx cancellation.
func (r *Runner) Run(ctx context.Context, workers int) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go r.runImpl(ctx)
	}
	r.wg.Wait()
}

func (r *Runner) runImpl(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		t := r.q.pop()
		if t == nil {
			// idle, sleep for sometime to avoid busy loop
			time.Sleep(time.Millisecond * 50)
			continue
		}
		status := r.poll(ctx, t)
		if status == taskBlocked {
			if t.tryBlock() {
				continue
			}
			// a wake raced in; fall through and requeue
		} else if status == taskStopped {
			continue
		}
		t.setStatus(taskRunnable)
		r.q.push(t)
	}
}

// poll advances one task by at most one block, reporting the block's new
// status and the refreshed compute/download speeds back to the driver so the
// skew controller's weight estimates track reality.
func (r *Runner) poll(ctx context.Context, t *taskContainer) runnerTaskStatus {
	if t.killed.Load() {
		r.finish(t, coretypes.TaskStateKilled)
		return taskStopped
	}

	if t.it.IsLocked() {
		return taskBlocked
	}

	pending := t.it.PendingSnapshot()
	if len(pending) == 0 {
		r.finish(t, coretypes.TaskStateFinished)
		return taskStopped
	}

	block := pending[0]
	fetchStart := time.Now()
	if r.fetcher != nil {
		if err := r.fetcher.Fetch(ctx, block); err != nil {
			log.L().Warn("block fetch failed, will retry",
				zap.Int64("task_id", int64(t.taskID)),
				zap.String("block_id", string(block.BlockID)),
				zap.Error(err))
			return taskRunnable
		}
	}
	t.it.MarkFetched(block.BlockID)

	if err := r.driver.Send(message.ReportBlockStatuses{
		TaskSetID: t.taskSetID,
		TaskID:    t.taskID,
		Updates:   []coretypes.BlockStatusUpdate{{BlockID: block.BlockID, Status: coretypes.BlockStatusFetched}},
	}); err != nil {
		log.L().Warn("failed to report fetched block", zap.Error(err))
	}

	if r.fetcher != nil && block.SizeBytes > 0 {
		if err := r.driver.Send(message.ReportBlockDownloadSpeed{
			TaskSetID:      t.taskSetID,
			FromExecutorID: coretypes.ExecutorID(block.HostBlockMgr),
			ToExecutorID:   r.executorID,
			BytesPerMilli:  float64(block.SizeBytes) / millisSince(fetchStart),
		}); err != nil {
			log.L().Warn("failed to report download speed", zap.Error(err))
		}
	}

	t.fetchedBytes += block.SizeBytes
	if t.fetchedBytes > 0 {
		if err := r.driver.Send(message.ReportTaskComputeSpeed{
			TaskSetID:     t.taskSetID,
			TaskID:        t.taskID,
			ExecutorID:    r.executorID,
			BytesPerMilli: float64(t.fetchedBytes) / millisSince(t.startedAt),
		}); err != nil {
			log.L().Warn("failed to report compute speed", zap.Error(err))
		}
	}
	return taskRunnable
}

// millisSince floors at one microsecond so a near-instant fetch never
// divides by zero.
func millisSince(start time.Time) float64 {
	ms := float64(time.Since(start)) / float64(time.Millisecond)
	if ms < 1e-3 {
		ms = 1e-3
	}
	return ms
}

func (r *Runner) finish(t *taskContainer, state coretypes.TaskState) {
	t.setStatus(taskStopped)

	if err := r.driver.Send(message.ReportTaskFinished{TaskSetID: t.taskSetID, TaskID: t.taskID}); err != nil {
		log.L().Warn("failed to report task finished", zap.Error(err))
	}
	if err := r.driver.Send(message.StatusUpdate{
		ExecutorID: r.executorID,
		TaskID:     t.taskID,
		State:      state,
	}); err != nil {
		log.L().Warn("failed to report terminal status", zap.Error(err))
	}

	r.iterators.RemoveTaskIterator(t.taskID)

	r.tasksMu.Lock()
	delete(r.tasks, t.taskID)
	r.tasksMu.Unlock()
}

// LaunchTask implements TaskExecutor: install an iterator seeded from the
// description's block inventory, announce the task to the driver's skew
// controller via RegisterNewTask, and queue it for polling. The serialized
// task body itself belongs to the external task runtime; the runner owns
// only the shuffle-fetch side.
func (r *Runner) LaunchTask(desc coretypes.TaskDescription) error {
	r.tasksMu.Lock()
	if _, ok := r.tasks[desc.TaskID]; ok {
		r.tasksMu.Unlock()
		return nil
	}
	t := &taskContainer{
		taskID:    desc.TaskID,
		taskSetID: desc.TaskSetID,
		startedAt: time.Now(),
	}
	t.it = r.iterators.RegisterTaskIterator(desc.TaskID, desc.Blocks)
	r.tasks[desc.TaskID] = t
	r.tasksMu.Unlock()

	log.L().Info("runner launches task",
		zap.Int64("task_id", int64(desc.TaskID)),
		zap.Int("attempt", desc.AttemptNumber),
		zap.String("name", desc.Name),
		zap.Int("payload_bytes", len(desc.SerializedTask)))

	if err := r.driver.Send(message.RegisterNewTask{
		TaskSetID:         desc.TaskSetID,
		TaskID:            desc.TaskID,
		ExecutorID:        r.executorID,
		Blocks:            desc.Blocks,
		PendingTasksInSet: desc.PendingTasksInSet,
	}); err != nil {
		log.L().Warn("failed to register task with the skew controller",
			zap.Int64("task_id", int64(desc.TaskID)), zap.Error(err))
	}

	r.q.push(t)
	return nil
}

// KillTask implements TaskExecutor: best-effort, interrupt-sensitive.
func (r *Runner) KillTask(taskID coretypes.TaskID, interrupt bool) error {
	r.tasksMu.RLock()
	t, ok := r.tasks[taskID]
	r.tasksMu.RUnlock()
	if !ok {
		return nil
	}
	t.killed.Store(true)
	if interrupt {
		// Release a consumer parked behind a skew-tune lock so the kill is
		// observed promptly.
		t.it.Kill()
		if t.wake() {
			r.q.push(t)
		}
	}
	return nil
}

// Stop cancels the worker pool.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		if r.cancel != nil {
			r.cancel()
		}
	})
}

// Wake requeues a task parked as Blocked, called from the iterator's unlock
// edge.
func (r *Runner) Wake(taskID coretypes.TaskID) {
	r.tasksMu.RLock()
	t, ok := r.tasks[taskID]
	r.tasksMu.RUnlock()
	if !ok {
		return
	}
	if t.wake() {
		r.q.push(t)
	}
}
