package wire

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skewsched/coredriver/internal/coretypes"
	"github.com/skewsched/coredriver/internal/message"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	newTask := coretypes.TaskID(9)
	size := int64(1024)

	envs := []message.Envelope{
		message.LaunchTask{TaskID: 7, SerializedTask: []byte{0x01, 0x02}},
		message.KillTask{TaskID: 7, ExecutorID: "e1", Interrupt: true},
		message.StopExecutor{},
		message.RemoveFetchCommand{
			NextExecutorID: "e2",
			NextTaskID:     8,
			TaskID:         7,
			BlocksByHost:   message.BlocksByHost{"bm1": {"b1", "b2"}},
		},
		message.AddFetchCommand{
			TaskID: 8,
			BlocksWithSizeByHost: message.BlocksWithSizeByHost{
				"bm1": {{BlockID: "b1", HostBlockMgr: "bm1", SizeBytes: 42}},
			},
		},
		message.RemoveAndAddResultCommand{BlockIDs: []coretypes.BlockID{"b1"}, FromTask: 7, ToTask: 8},
		message.LockTask{TaskID: 8},
		message.UnlockTask{TaskID: 8},
		message.RegisterExecutor{
			ExecutorID: "e1", Address: "127.0.0.1:4000", Host: "h1", TotalCores: 4,
			LogURLs: map[string]string{"log": "file:///tmp/e1.log"},
		},
		message.StatusUpdate{ExecutorID: "e1", TaskID: 7, State: coretypes.TaskStateFinished, Data: []byte("ok")},
		message.RegisterNewTask{
			TaskSetID: "ts1", TaskID: 7, ExecutorID: "e1",
			Blocks:            []coretypes.SkewTuneBlockInfo{{BlockID: "b1", HostBlockMgr: "bm1", SizeBytes: 10}},
			PendingTasksInSet: 3,
		},
		message.ReportBlockStatuses{
			TaskSetID: "ts1", TaskID: 7,
			Updates:   []coretypes.BlockStatusUpdate{{BlockID: "b1", Status: coretypes.BlockStatusFetched}},
			NewTaskID: &newTask,
			SizeBytes: &size,
		},
		message.ReportTaskFinished{TaskSetID: "ts1", TaskID: 7},
		message.ReportTaskComputeSpeed{TaskSetID: "ts1", TaskID: 7, ExecutorID: "e1", BytesPerMilli: 1.5},
		message.ReportBlockDownloadSpeed{TaskSetID: "ts1", FromExecutorID: "e1", ToExecutorID: "e2", BytesPerMilli: 2.5},
		message.TransferRemovedFetch{
			NextExecutorID: "e2", NextTaskID: 8,
			BlocksWithSizeByHost: message.BlocksWithSizeByHost{
				"bm1": {{BlockID: "b1", HostBlockMgr: "bm1", SizeBytes: 42}},
			},
		},
		message.RemoveExecutor{ExecutorID: "e1", Reason: "gone"},
		message.OnDisconnected{RemoteAddress: "127.0.0.1:4000"},
		message.RequestExecutors{Total: 3},
		message.KillExecutors{ExecutorIDs: []coretypes.ExecutorID{"e1"}},
	}

	for _, env := range envs {
		p, err := Marshal(env)
		require.NoError(t, err, "kind %s", env.Kind())
		decoded, err := Unmarshal(p)
		require.NoError(t, err, "kind %s", env.Kind())
		require.Equal(t, env, decoded, "kind %s", env.Kind())
	}
}

func TestUnmarshalRejectsUnknownKind(t *testing.T) {
	_, err := Unmarshal(&Packet{Kind: "NoSuchMessage", Payload: []byte("{}")})
	require.Error(t, err)
}

// TestDecoderTableIsClosedOverAllKinds guards the union's closedness: a new
// Kind constant without a decoder row would silently become undeliverable.
func TestDecoderTableIsClosedOverAllKinds(t *testing.T) {
	kinds := []message.Kind{
		message.KindLaunchTask, message.KindKillTask, message.KindStopExecutor,
		message.KindRemoveFetchCommand, message.KindAddFetchCommand,
		message.KindRemoveAndAddResult, message.KindLockTask, message.KindUnlockTask,
		message.KindRegisterExecutor, message.KindRegisterExecutorFailed,
		message.KindRegisteredExecutor, message.KindStatusUpdate,
		message.KindRegisterNewTask, message.KindReportBlockStatuses,
		message.KindReportTaskFinished, message.KindReportTaskComputeSpeed,
		message.KindReportBlockDownloadSpeed, message.KindTransferRemovedFetch,
		message.KindReviveOffers, message.KindStopDriver, message.KindStopExecutors,
		message.KindRemoveExecutor, message.KindOnDisconnected,
		message.KindRegisterClusterManager, message.KindRequestExecutors,
		message.KindKillExecutors, message.KindRetrieveSparkProps,
	}
	for _, k := range kinds {
		factory, ok := decoders[k]
		require.True(t, ok, "kind %s has no decoder", k)
		require.Equal(t, k, factory().Kind(), "factory for %s builds the wrong variant", k)
	}
}

func TestGobTaskCodecRoundTrip(t *testing.T) {
	codec := GobTaskCodec{}
	desc := coretypes.TaskDescription{
		TaskID:         7,
		TaskSetID:      "ts1",
		Index:          2,
		ExecutorID:     "e1",
		Name:           "reduce-7",
		AttemptNumber:  1,
		SerializedTask: []byte{0xde, 0xad},
	}

	data, err := codec.Encode(desc)
	require.NoError(t, err)
	decoded, err := codec.Decode(data)
	require.NoError(t, err)
	require.Equal(t, desc, decoded)
}
