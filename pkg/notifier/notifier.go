// Package notifier fans one producer's events out to any number of
// receivers. The driver publishes executor lifecycle events
// (ExecutorAdded/ExecutorRemoved) through it, so the transport layer can
// close dead connections and a UI listener can watch the fleet without the
// DriverEndpoint knowing either exists.
//
// Delivery is asynchronous and lossy for slow receivers: events queue in
// order, and a receiver whose buffer is full misses the event (with a log
// line) rather than stalling the dispatch goroutine or, transitively, the
// driver. Lifecycle events are advisory, so a laggard dropping one is
// preferable to head-of-line blocking every other subscriber.
package notifier

import (
	"sync"

	"go.uber.org/zap"

	"github.com/skewsched/coredriver/pkg/containers"
	"github.com/skewsched/coredriver/pkg/log"
)

// receiverBufSize bounds each receiver's channel; the driver-side consumers
// drain promptly, so a full buffer indicates a stuck subscriber.
const receiverBufSize = 64

// Notifier is the producer half. Notify never blocks.
type Notifier[T any] struct {
	mu        sync.Mutex
	receivers map[int64]*Receiver[T]
	nextID    int64

	queue *containers.SliceQueue[T]

	closeCh   chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
}

// Receiver is one subscriber. Read events from C; the channel closes when
// either the receiver or the whole notifier is closed.
type Receiver[T any] struct {
	C chan T

	id       int64
	notifier *Notifier[T]
}

// NewNotifier starts the dispatch goroutine and returns the producer handle.
func NewNotifier[T any]() *Notifier[T] {
	n := &Notifier[T]{
		receivers: make(map[int64]*Receiver[T]),
		queue:     containers.NewSliceQueue[T](),
		closeCh:   make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	go n.run()
	return n
}

// NewReceiver subscribes to all events published after this call.
func (n *Notifier[T]) NewReceiver() *Receiver[T] {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextID++
	r := &Receiver[T]{
		C:        make(chan T, receiverBufSize),
		id:       n.nextID,
		notifier: n,
	}
	n.receivers[r.id] = r
	return r
}

// Notify enqueues one event for dispatch, preserving publish order.
func (n *Notifier[T]) Notify(event T) {
	n.queue.Add(event)
}

// Close stops the dispatch goroutine and closes every receiver's channel.
// Events still queued at close time are discarded.
func (n *Notifier[T]) Close() {
	n.closeOnce.Do(func() {
		close(n.closeCh)
		<-n.doneCh

		n.mu.Lock()
		defer n.mu.Unlock()
		for id, r := range n.receivers {
			close(r.C)
			delete(n.receivers, id)
		}
	})
}

// Close unsubscribes this receiver and closes its channel. Closing a
// receiver after the notifier itself closed is a no-op.
func (r *Receiver[T]) Close() {
	n := r.notifier
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.receivers[r.id]; !ok {
		return
	}
	delete(n.receivers, r.id)
	close(r.C)
}

func (n *Notifier[T]) run() {
	defer close(n.doneCh)
	for {
		select {
		case <-n.closeCh:
			return
		case <-n.queue.C:
			for {
				event, ok := n.queue.Pop()
				if !ok {
					break
				}
				n.deliver(event)

				select {
				case <-n.closeCh:
					return
				default:
				}
			}
		}
	}
}

// deliver hands one event to every live receiver, dropping it for any whose
// buffer is full. Sends happen under the same mutex that guards receiver
// close, so a send can never race a close of the same channel.
func (n *Notifier[T]) deliver(event T) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for id, r := range n.receivers {
		select {
		case r.C <- event:
		default:
			log.L().Warn("notifier: receiver buffer full, dropping event",
				zap.Int64("receiver_id", id))
		}
	}
}
