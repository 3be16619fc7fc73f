package rpc

import (
	"context"
	"net"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_zap "github.com/grpc-ecosystem/go-grpc-middleware/logging/zap"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/skewsched/coredriver/internal/coretypes"
	"github.com/skewsched/coredriver/internal/executorbackend"
	"github.com/skewsched/coredriver/internal/message"
	"github.com/skewsched/coredriver/pkg/log"
	"github.com/skewsched/coredriver/rpc/wire"
)

// TaskDecoder reverses the driver's task codec on the executor side.
type TaskDecoder interface {
	Decode(data []byte) (coretypes.TaskDescription, error)
}

// ExecutorServer serves ExecutorService on a worker: packets become
// envelopes on a single-consumer mailbox whose draining goroutine calls the
// backend's handlers one at a time, preserving per-sender FIFO order.
type ExecutorServer struct {
	backend *executorbackend.Backend
	decoder TaskDecoder

	mailbox chan message.Envelope
	fatalCh chan error

	srv *grpc.Server
}

// NewExecutorServer wires a backend into a gRPC server plus its mailbox.
func NewExecutorServer(backend *executorbackend.Backend, decoder TaskDecoder) *ExecutorServer {
	s := &ExecutorServer{
		backend: backend,
		decoder: decoder,
		mailbox: make(chan message.Envelope, 1024),
		fatalCh: make(chan error, 1),
	}
	s.srv = grpc.NewServer(
		grpc_middleware.WithUnaryServerChain(
			grpc_zap.UnaryServerInterceptor(log.L()),
			grpc_recovery.UnaryServerInterceptor(),
		),
	)
	RegisterExecutorServiceServer(s.srv, s)
	return s
}

// Serve drains the mailbox in one goroutine and blocks serving gRPC on lis.
func (s *ExecutorServer) Serve(ctx context.Context, lis net.Listener) error {
	go s.runMailbox(ctx)
	return s.srv.Serve(lis)
}

// Stop gracefully stops the gRPC server.
func (s *ExecutorServer) Stop() {
	s.srv.GracefulStop()
}

// Fatal yields the first unrecoverable backend error, after which the
// process is expected to exit non-zero.
func (s *ExecutorServer) Fatal() <-chan error {
	return s.fatalCh
}

// Deliver implements ExecutorServiceServer by enqueueing; handling happens
// on the mailbox goroutine.
func (s *ExecutorServer) Deliver(ctx context.Context, p *wire.Packet) (*wire.Ack, error) {
	env, err := wire.Unmarshal(p)
	if err != nil {
		return &wire.Ack{Ok: false, Error: err.Error()}, nil
	}
	select {
	case s.mailbox <- env:
		return &wire.Ack{Ok: true}, nil
	case <-ctx.Done():
		return &wire.Ack{Ok: false, Error: ctx.Err().Error()}, nil
	}
}

func (s *ExecutorServer) runMailbox(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-s.mailbox:
			s.dispatch(env)
		}
	}
}

func (s *ExecutorServer) fatal(err error) {
	select {
	case s.fatalCh <- err:
	default:
	}
}

// dispatch is the executor side of the closed union's exhaustive switch.
func (s *ExecutorServer) dispatch(env message.Envelope) {
	switch m := env.(type) {
	case message.LaunchTask:
		desc, err := s.decoder.Decode(m.SerializedTask)
		if err != nil {
			log.L().Error("failed to decode task payload",
				zap.Int64("task_id", int64(m.TaskID)), zap.Error(err))
			return
		}
		if err := s.backend.HandleLaunchTask(desc); err != nil {
			s.fatal(err)
		}
	case message.KillTask:
		if err := s.backend.HandleKillTask(m.TaskID, m.Interrupt); err != nil {
			s.fatal(err)
		}
	case message.StopExecutor:
		s.backend.HandleStopExecutor()
	case message.RemoveFetchCommand:
		if err := s.backend.HandleRemoveFetchCommand(m); err != nil {
			log.L().Warn("failed to report removed fetches", zap.Error(err))
		}
	case message.AddFetchCommand:
		s.backend.HandleAddFetchCommand(m)
	case message.RemoveAndAddResultCommand:
		s.backend.HandleRemoveAndAddResultCommand(m)
	case message.LockTask:
		s.backend.HandleLockTask(m.TaskID)
	case message.UnlockTask:
		s.backend.HandleUnlockTask(m.TaskID)
	default:
		log.L().Warn("executor: dropping envelope of unexpected kind",
			zap.String("kind", string(env.Kind())))
	}
}
