package notifier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEventsReachEveryReceiverInOrder(t *testing.T) {
	n := NewNotifier[int]()
	defer n.Close()

	r1 := n.NewReceiver()
	r2 := n.NewReceiver()

	for i := 0; i < 10; i++ {
		n.Notify(i)
	}

	for _, r := range []*Receiver[int]{r1, r2} {
		for i := 0; i < 10; i++ {
			select {
			case got := <-r.C:
				require.Equal(t, i, got)
			case <-time.After(5 * time.Second):
				t.Fatalf("timed out waiting for event %d", i)
			}
		}
	}
}

func TestClosedReceiverStopsGettingEvents(t *testing.T) {
	n := NewNotifier[string]()
	defer n.Close()

	r1 := n.NewReceiver()
	r2 := n.NewReceiver()
	r1.Close()

	n.Notify("after-close")

	select {
	case got := <-r2.C:
		require.Equal(t, "after-close", got)
	case <-time.After(5 * time.Second):
		t.Fatal("live receiver should still get events")
	}

	_, open := <-r1.C
	require.False(t, open, "closed receiver's channel must be closed")
}

func TestNotifierCloseClosesReceiversAndIsIdempotent(t *testing.T) {
	n := NewNotifier[int]()
	r := n.NewReceiver()

	n.Close()
	n.Close()

	_, open := <-r.C
	require.False(t, open)

	// Receiver.Close after the notifier closed must not panic on the
	// already-closed channel.
	r.Close()
}

func TestSlowReceiverDropsInsteadOfBlocking(t *testing.T) {
	n := NewNotifier[int]()
	defer n.Close()

	// Saturate a receiver nobody drains; the dispatcher must keep running,
	// dropping the overflow instead of stalling on the full buffer.
	slow := n.NewReceiver()
	for i := 0; i < 3*receiverBufSize; i++ {
		n.Notify(i)
	}
	require.Eventually(t, func() bool {
		return len(slow.C) == receiverBufSize
	}, 5*time.Second, 10*time.Millisecond, "dispatcher should fill the buffer and drop the rest")

	// A late subscriber proves the dispatch goroutine is still live.
	late := n.NewReceiver()
	n.Notify(-1)
	select {
	case got := <-late.C:
		require.Equal(t, -1, got)
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher stalled behind the saturated receiver")
	}
	require.Len(t, slow.C, receiverBufSize)
}
