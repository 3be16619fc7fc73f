package registry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skewsched/coredriver/internal/coretypes"
)

func TestInsertAndDuplicate(t *testing.T) {
	r := New()
	require.NoError(t, r.Insert(&ExecutorData{ExecutorID: "e1", TotalCores: 4, FreeCores: 4}))
	require.Equal(t, int64(4), r.TotalCoreCount())
	require.Equal(t, int64(1), r.TotalRegisteredExecutors())

	err := r.Insert(&ExecutorData{ExecutorID: "e1", TotalCores: 2})
	require.Error(t, err)
	require.Equal(t, int64(4), r.TotalCoreCount())
}

func TestRemoveClearsPendingToRemove(t *testing.T) {
	r := New()
	require.NoError(t, r.Insert(&ExecutorData{ExecutorID: "e1", TotalCores: 2, FreeCores: 2}))
	r.MarkPendingToRemove([]coretypes.ExecutorID{"e1"})
	require.True(t, r.IsPendingToRemove("e1"))

	_, err := r.Remove("e1")
	require.NoError(t, err)
	require.False(t, r.IsPendingToRemove("e1"))
	require.Equal(t, int64(0), r.TotalRegisteredExecutors())

	_, err = r.Remove("e1")
	require.Error(t, err)
}

func TestAdjustFreeCoresClamps(t *testing.T) {
	r := New()
	require.NoError(t, r.Insert(&ExecutorData{ExecutorID: "e1", TotalCores: 2, FreeCores: 2}))

	require.NoError(t, r.AdjustFreeCores("e1", -5))
	data, _ := r.Get("e1")
	require.Equal(t, 0, data.FreeCores)

	require.NoError(t, r.AdjustFreeCores("e1", 50))
	data, _ = r.Get("e1")
	require.Equal(t, 2, data.FreeCores)

	require.Error(t, r.AdjustFreeCores("unknown", 1))
}

func TestAdjustPendingExecutorsClampsAtZero(t *testing.T) {
	r := New()
	require.Equal(t, 3, r.AdjustPendingExecutors(3))
	require.Equal(t, 0, r.AdjustPendingExecutors(-10))
	require.Equal(t, 0, r.NumPendingExecutors())
}

func TestMarkPendingToRemoveSkipsUnregistered(t *testing.T) {
	r := New()
	require.NoError(t, r.Insert(&ExecutorData{ExecutorID: "e1", TotalCores: 1, FreeCores: 1}))
	marked := r.MarkPendingToRemove([]coretypes.ExecutorID{"e1", "unknown"})
	require.Equal(t, []coretypes.ExecutorID{"e1"}, marked)
	require.Equal(t, 1, r.PendingToRemoveCount())
}

func TestSnapshotOffers(t *testing.T) {
	r := New()
	require.NoError(t, r.Insert(&ExecutorData{ExecutorID: "e1", Host: "h1", TotalCores: 4, FreeCores: 3}))
	require.NoError(t, r.Insert(&ExecutorData{ExecutorID: "e2", Host: "h2", TotalCores: 2, FreeCores: 2}))

	offers := r.SnapshotOffers()
	require.Len(t, offers, 2)

	offer, ok := r.SnapshotOffer("e1")
	require.True(t, ok)
	require.Equal(t, 3, offer.FreeCores)

	_, ok = r.SnapshotOffer("unknown")
	require.False(t, ok)
}
