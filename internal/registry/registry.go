// Package registry implements ExecutorRegistry (SPEC_FULL.md §4.2): the map
// of executor-id to executor metadata that the DriverEndpoint mutates on
// registration, removal, and free-core accounting. The map, the pending
// executor count, and the pending-removal set share one mutex (SPEC_FULL.md
// §5); total_core_count and total_registered_executors are atomics so
// readers outside that mutex still see monotonic values, following the
// split discipline the teacher's ExecutorManager collapses into one lock
// but SPEC_FULL.md's concurrency model pulls apart.
package registry

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/skewsched/coredriver/internal/coretypes"
	derrors "github.com/skewsched/coredriver/pkg/errors"
)

// ExecutorData is the registry's record for one registered executor.
// EndpointRef is an opaque handle resolved through the RPC environment
// (SPEC_FULL.md §9); this package never dials it itself.
type ExecutorData struct {
	ExecutorID  coretypes.ExecutorID
	EndpointRef string
	Host        string
	TotalCores  int
	FreeCores   int
	LogURLs     map[string]string
}

// Registry holds all currently-registered executors plus the allocation
// bookkeeping that the executor-allocation API (SPEC_FULL.md §4.3) reads and
// writes from outside the DriverEndpoint's own goroutine.
type Registry struct {
	mu               sync.Mutex
	executors        map[coretypes.ExecutorID]*ExecutorData
	numPending       int
	pendingToRemove  map[coretypes.ExecutorID]struct{}

	totalCoreCount         atomic.Int64
	totalRegisteredExecs   atomic.Int64
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		executors:       make(map[coretypes.ExecutorID]*ExecutorData),
		pendingToRemove: make(map[coretypes.ExecutorID]struct{}),
	}
}

// Insert adds a newly-registered executor. It fails with ErrDuplicateExecutor
// if the id is already present, leaving the registry unmodified.
func (r *Registry) Insert(data *ExecutorData) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.executors[data.ExecutorID]; ok {
		return derrors.ErrDuplicateExecutor.GenWithStackByArgs(data.ExecutorID)
	}
	cp := *data
	r.executors[data.ExecutorID] = &cp
	r.totalCoreCount.Add(int64(data.TotalCores))
	r.totalRegisteredExecs.Add(1)
	return nil
}

// Remove detaches an executor and returns its prior data. It also clears any
// pending-removal marker for the id, per the invariant that membership in
// ExecutorsPendingToRemove implies membership in the registry.
func (r *Registry) Remove(id coretypes.ExecutorID) (*ExecutorData, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, ok := r.executors[id]
	if !ok {
		return nil, derrors.ErrUnknownExecutor.GenWithStackByArgs(id)
	}
	delete(r.executors, id)
	delete(r.pendingToRemove, id)
	r.totalCoreCount.Sub(int64(data.TotalCores))
	r.totalRegisteredExecs.Sub(1)
	return data, nil
}

// Get returns a copy of an executor's current data.
func (r *Registry) Get(id coretypes.ExecutorID) (ExecutorData, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, ok := r.executors[id]
	if !ok {
		return ExecutorData{}, false
	}
	return *data, true
}

// AdjustFreeCores applies delta to an executor's free-core count, clamping
// to [0, TotalCores] so the 0<=free<=total invariant can never be violated
// by a caller bug.
func (r *Registry) AdjustFreeCores(id coretypes.ExecutorID, delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, ok := r.executors[id]
	if !ok {
		return derrors.ErrUnknownExecutor.GenWithStackByArgs(id)
	}
	next := data.FreeCores + delta
	if next < 0 {
		next = 0
	}
	if next > data.TotalCores {
		next = data.TotalCores
	}
	data.FreeCores = next
	return nil
}

// Offer is a snapshot of one executor's free capacity, handed to the task
// scheduler's resourceOffers.
type Offer struct {
	ExecutorID coretypes.ExecutorID
	Host       string
	FreeCores  int
}

// SnapshotOffers returns (id, host, free_cores) for every registered
// executor, in unspecified order (SPEC_FULL.md §4.2).
func (r *Registry) SnapshotOffers() []Offer {
	r.mu.Lock()
	defer r.mu.Unlock()
	offers := make([]Offer, 0, len(r.executors))
	for id, data := range r.executors {
		offers = append(offers, Offer{ExecutorID: id, Host: data.Host, FreeCores: data.FreeCores})
	}
	return offers
}

// SnapshotOffer returns a single executor's current offer, used when
// makeOffers is scoped to just-freed executor.
func (r *Registry) SnapshotOffer(id coretypes.ExecutorID) (Offer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, ok := r.executors[id]
	if !ok {
		return Offer{}, false
	}
	return Offer{ExecutorID: id, Host: data.Host, FreeCores: data.FreeCores}, true
}

// TotalCoreCount returns Σ total_cores across the registry.
func (r *Registry) TotalCoreCount() int64 {
	return r.totalCoreCount.Load()
}

// TotalRegisteredExecutors returns the number of registered executors.
func (r *Registry) TotalRegisteredExecutors() int64 {
	return r.totalRegisteredExecs.Load()
}

// NumPendingExecutors returns the count of executors requested but not yet
// registered.
func (r *Registry) NumPendingExecutors() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.numPending
}

// AdjustPendingExecutors applies delta to numPendingExecutors, clamping at
// zero so the "numPendingExecutors >= 0" invariant always holds.
func (r *Registry) AdjustPendingExecutors(delta int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.numPending += delta
	if r.numPending < 0 {
		r.numPending = 0
	}
	return r.numPending
}

// SetPendingExecutors overwrites numPendingExecutors with a non-negative
// value, clamping negatives to zero.
func (r *Registry) SetPendingExecutors(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n < 0 {
		n = 0
	}
	r.numPending = n
	return r.numPending
}

// PendingToRemoveCount returns |ExecutorsPendingToRemove|.
func (r *Registry) PendingToRemoveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pendingToRemove)
}

// MarkPendingToRemove adds ids to ExecutorsPendingToRemove, skipping ids
// that are not currently registered.
func (r *Registry) MarkPendingToRemove(ids []coretypes.ExecutorID) []coretypes.ExecutorID {
	r.mu.Lock()
	defer r.mu.Unlock()
	marked := make([]coretypes.ExecutorID, 0, len(ids))
	for _, id := range ids {
		if _, ok := r.executors[id]; !ok {
			continue
		}
		r.pendingToRemove[id] = struct{}{}
		marked = append(marked, id)
	}
	return marked
}

// IsPendingToRemove reports whether id is in ExecutorsPendingToRemove.
func (r *Registry) IsPendingToRemove(id coretypes.ExecutorID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pendingToRemove[id]
	return ok
}

// Exists reports whether id is currently registered.
func (r *Registry) Exists(id coretypes.ExecutorID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.executors[id]
	return ok
}

// Len returns the number of registered executors under the registry's own
// lock (used by tests that want a consistent read alongside other fields).
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.executors)
}
