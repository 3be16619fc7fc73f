package wire

import (
	"encoding/json"

	"github.com/skewsched/coredriver/internal/message"
	derrors "github.com/skewsched/coredriver/pkg/errors"
)

// Marshal encodes one envelope into a Packet.
func Marshal(env message.Envelope) (*Packet, error) {
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, derrors.Trace(err)
	}
	return &Packet{Kind: string(env.Kind()), Payload: payload}, nil
}

// Unmarshal decodes a Packet back into its concrete envelope variant,
// rejecting discriminators that have no row in the decoders table.
func Unmarshal(p *Packet) (message.Envelope, error) {
	factory, ok := decoders[message.Kind(p.Kind)]
	if !ok {
		return nil, derrors.ErrUnknownMessageKind.GenWithStackByArgs(p.Kind)
	}
	env := factory()
	if err := json.Unmarshal(p.Payload, env); err != nil {
		return nil, derrors.Trace(err)
	}
	return deref(env), nil
}

// decoders maps every Kind to a factory for its variant. The table is the
// closed union: adding a message variant without a row here makes the new
// kind undeliverable, which tests in codec_test.go guard against.
var decoders = map[message.Kind]func() message.Envelope{
	message.KindLaunchTask:         func() message.Envelope { return &message.LaunchTask{} },
	message.KindKillTask:           func() message.Envelope { return &message.KillTask{} },
	message.KindStopExecutor:       func() message.Envelope { return &message.StopExecutor{} },
	message.KindRemoveFetchCommand: func() message.Envelope { return &message.RemoveFetchCommand{} },
	message.KindAddFetchCommand:    func() message.Envelope { return &message.AddFetchCommand{} },
	message.KindRemoveAndAddResult: func() message.Envelope { return &message.RemoveAndAddResultCommand{} },
	message.KindLockTask:           func() message.Envelope { return &message.LockTask{} },
	message.KindUnlockTask:         func() message.Envelope { return &message.UnlockTask{} },

	message.KindRegisterExecutor:         func() message.Envelope { return &message.RegisterExecutor{} },
	message.KindRegisterExecutorFailed:   func() message.Envelope { return &message.RegisterExecutorFailed{} },
	message.KindRegisteredExecutor:       func() message.Envelope { return &message.RegisteredExecutor{} },
	message.KindStatusUpdate:             func() message.Envelope { return &message.StatusUpdate{} },
	message.KindRegisterNewTask:          func() message.Envelope { return &message.RegisterNewTask{} },
	message.KindReportBlockStatuses:      func() message.Envelope { return &message.ReportBlockStatuses{} },
	message.KindReportTaskFinished:       func() message.Envelope { return &message.ReportTaskFinished{} },
	message.KindReportTaskComputeSpeed:   func() message.Envelope { return &message.ReportTaskComputeSpeed{} },
	message.KindReportBlockDownloadSpeed: func() message.Envelope { return &message.ReportBlockDownloadSpeed{} },
	message.KindTransferRemovedFetch:     func() message.Envelope { return &message.TransferRemovedFetch{} },

	message.KindReviveOffers:   func() message.Envelope { return &message.ReviveOffers{} },
	message.KindStopDriver:     func() message.Envelope { return &message.StopDriver{} },
	message.KindStopExecutors:  func() message.Envelope { return &message.StopExecutors{} },
	message.KindRemoveExecutor: func() message.Envelope { return &message.RemoveExecutor{} },
	message.KindOnDisconnected: func() message.Envelope { return &message.OnDisconnected{} },

	message.KindRegisterClusterManager: func() message.Envelope { return &message.RegisterClusterManager{} },
	message.KindRequestExecutors:       func() message.Envelope { return &message.RequestExecutors{} },
	message.KindKillExecutors:          func() message.Envelope { return &message.KillExecutors{} },
	message.KindRetrieveSparkProps:     func() message.Envelope { return &message.RetrieveSparkProps{} },
}

// deref turns the pointer the factories hand json.Unmarshal back into the
// value form the rest of the system passes around, so a decoded envelope
// type-switches identically to a locally-constructed one.
func deref(env message.Envelope) message.Envelope {
	switch m := env.(type) {
	case *message.LaunchTask:
		return *m
	case *message.KillTask:
		return *m
	case *message.StopExecutor:
		return *m
	case *message.RemoveFetchCommand:
		return *m
	case *message.AddFetchCommand:
		return *m
	case *message.RemoveAndAddResultCommand:
		return *m
	case *message.LockTask:
		return *m
	case *message.UnlockTask:
		return *m
	case *message.RegisterExecutor:
		return *m
	case *message.RegisterExecutorFailed:
		return *m
	case *message.RegisteredExecutor:
		return *m
	case *message.StatusUpdate:
		return *m
	case *message.RegisterNewTask:
		return *m
	case *message.ReportBlockStatuses:
		return *m
	case *message.ReportTaskFinished:
		return *m
	case *message.ReportTaskComputeSpeed:
		return *m
	case *message.ReportBlockDownloadSpeed:
		return *m
	case *message.TransferRemovedFetch:
		return *m
	case *message.ReviveOffers:
		return *m
	case *message.StopDriver:
		return *m
	case *message.StopExecutors:
		return *m
	case *message.RemoveExecutor:
		return *m
	case *message.OnDisconnected:
		return *m
	case *message.RegisterClusterManager:
		return *m
	case *message.RequestExecutors:
		return *m
	case *message.KillExecutors:
		return *m
	case *message.RetrieveSparkProps:
		return *m
	default:
		return env
	}
}
