// Package idgen mints the opaque identifiers used across the driver: task
// ids, which must be unique within the driver's lifetime, and block/executor
// ids, which are either assigned by a caller or minted as UUIDs.
package idgen

import (
	"sync"

	"github.com/google/uuid"
)

// TaskIDAllocator mints monotonically increasing TaskIds, unique for the
// lifetime of the driver process that owns it.
type TaskIDAllocator struct {
	mu   sync.Mutex
	next int64
}

// NewTaskIDAllocator returns an allocator starting at 1.
func NewTaskIDAllocator() *TaskIDAllocator {
	return &TaskIDAllocator{}
}

// Next returns the next unused TaskId.
func (a *TaskIDAllocator) Next() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.next++
	return a.next
}

// UUIDAllocator mints opaque string identifiers, used for block ids and
// executor ids when the caller does not supply its own.
type UUIDAllocator struct{}

// NewUUIDAllocator returns a stateless UUID minter.
func NewUUIDAllocator() *UUIDAllocator {
	return &UUIDAllocator{}
}

// Next mints a new opaque identifier.
func (a *UUIDAllocator) Next() string {
	return uuid.New().String()
}
