package executorbackend

import (
	"sync"

	"github.com/skewsched/coredriver/internal/coretypes"
)

// FetchIterator is the per-task queue that pulls shuffle blocks from remote
// block managers and yields fetched results to the task's consumer
// (SPEC_FULL.md glossary). Its fetch queue and fetched-results set are
// mutated out-of-band by driver commands (RemoveFetchCommand,
// AddFetchCommand, RemoveAndAddResultCommand) under the lock/unlock
// discipline described in §4.4 and §5: is_locked plus a condition variable
// form the synchronization boundary between the ExecutorBackend actor,
// which mutates the queues, and the consumer goroutine, which drains them.
type FetchIterator struct {
	mu sync.Mutex
	cv *sync.Cond

	taskID coretypes.TaskID

	// pending is the ordered fetch queue, in fetch order.
	pending []coretypes.SkewTuneBlockInfo
	// fetched holds already-fetched block results pending consumption.
	fetched map[coretypes.BlockID]coretypes.SkewTuneBlockInfo

	isLocked bool
	killed   bool
}

// NewFetchIterator returns an iterator seeded with the task's initial
// pending-block list.
func NewFetchIterator(taskID coretypes.TaskID, initial []coretypes.SkewTuneBlockInfo) *FetchIterator {
	it := &FetchIterator{
		taskID:  taskID,
		pending: append([]coretypes.SkewTuneBlockInfo(nil), initial...),
		fetched: make(map[coretypes.BlockID]coretypes.SkewTuneBlockInfo),
	}
	it.cv = sync.NewCond(&it.mu)
	return it
}

// RemoveFetchRequests removes the named pending blocks from the queue and
// returns the ones actually removed, with their sizes, so the caller can
// report exactly those via TransferRemovedFetch. Blocks not present in the
// queue are silently skipped (SPEC_FULL.md scenario 8).
func (it *FetchIterator) RemoveFetchRequests(ids []coretypes.BlockID) []coretypes.SkewTuneBlockInfo {
	it.mu.Lock()
	defer it.mu.Unlock()

	want := make(map[coretypes.BlockID]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}

	removed := make([]coretypes.SkewTuneBlockInfo, 0, len(ids))
	kept := make([]coretypes.SkewTuneBlockInfo, 0, len(it.pending))
	for _, b := range it.pending {
		if _, ok := want[b.BlockID]; ok {
			removed = append(removed, b)
			continue
		}
		kept = append(kept, b)
	}
	it.pending = kept
	return removed
}

// AddFetchRequests enqueues additional fetches at the tail of the pending
// queue.
func (it *FetchIterator) AddFetchRequests(blocks []coretypes.SkewTuneBlockInfo) {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.pending = append(it.pending, blocks...)
}

// RemoveFetchResults moves the named already-fetched block results out of
// this iterator, returning them. Blocks absent from the fetched set are
// skipped.
func (it *FetchIterator) RemoveFetchResults(ids []coretypes.BlockID) []coretypes.SkewTuneBlockInfo {
	it.mu.Lock()
	defer it.mu.Unlock()
	out := make([]coretypes.SkewTuneBlockInfo, 0, len(ids))
	for _, id := range ids {
		if b, ok := it.fetched[id]; ok {
			out = append(out, b)
			delete(it.fetched, id)
		}
	}
	return out
}

// AddFetchResults installs already-fetched block results into this
// iterator's fetched set, used by RemoveAndAddResultCommand's receiving
// side.
func (it *FetchIterator) AddFetchResults(blocks []coretypes.SkewTuneBlockInfo) {
	it.mu.Lock()
	defer it.mu.Unlock()
	for _, b := range blocks {
		it.fetched[b.BlockID] = b
	}
}

// MarkFetched moves a block from pending to fetched, as the consumer path
// would upon successfully pulling it from a remote block manager.
func (it *FetchIterator) MarkFetched(id coretypes.BlockID) {
	it.mu.Lock()
	defer it.mu.Unlock()
	for i, b := range it.pending {
		if b.BlockID == id {
			it.fetched[id] = b
			it.pending = append(it.pending[:i], it.pending[i+1:]...)
			return
		}
	}
}

// Lock sets is_locked, blocking the consumer path until Unlock or Kill.
func (it *FetchIterator) Lock() {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.isLocked = true
}

// Unlock clears is_locked and wakes any consumer blocked in WaitWhileLocked.
func (it *FetchIterator) Unlock() {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.isLocked = false
	it.cv.Broadcast()
}

// IsLocked reports the current lock state.
func (it *FetchIterator) IsLocked() bool {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.isLocked
}

// Kill releases any consumer blocked in WaitWhileLocked so best-effort task
// cancellation is never stuck behind a skew-tune lock (SPEC_FULL.md §5).
func (it *FetchIterator) Kill() {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.killed = true
	it.cv.Broadcast()
}

// WaitWhileLocked blocks the consumer while is_locked is true, re-checking
// after each wakeup, and returns early if the iterator has been killed.
// Commands queued while locked (RemoveFetchCommand/AddFetchCommand) must
// already be applied by the time Unlock's broadcast reaches here, because
// ExecutorBackend applies them before it handles the UnlockTask that follows
// them (SPEC_FULL.md §5's "apply commands before observing the unlock edge").
func (it *FetchIterator) WaitWhileLocked() (killed bool) {
	it.mu.Lock()
	defer it.mu.Unlock()
	for it.isLocked && !it.killed {
		it.cv.Wait()
	}
	return it.killed
}

// PendingLen returns the number of blocks still queued for fetch.
func (it *FetchIterator) PendingLen() int {
	it.mu.Lock()
	defer it.mu.Unlock()
	return len(it.pending)
}

// PendingSnapshot returns a copy of the current pending queue, in fetch
// order, for SkewTune's weight estimation.
func (it *FetchIterator) PendingSnapshot() []coretypes.SkewTuneBlockInfo {
	it.mu.Lock()
	defer it.mu.Unlock()
	return append([]coretypes.SkewTuneBlockInfo(nil), it.pending...)
}
