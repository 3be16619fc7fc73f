package rpc

import (
	"context"
	"net"
	"sync"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_zap "github.com/grpc-ecosystem/go-grpc-middleware/logging/zap"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/stats"

	"github.com/skewsched/coredriver/internal/driver"
	"github.com/skewsched/coredriver/internal/message"
	"github.com/skewsched/coredriver/pkg/log"
	"github.com/skewsched/coredriver/rpc/wire"
)

// DriverServer serves DriverService: it decodes executor->driver packets
// into envelopes and posts them to the DriverEndpoint's mailbox, keeping the
// single-consumer discipline — the gRPC handler goroutines never touch
// endpoint state directly.
type DriverServer struct {
	endpoint *driver.Endpoint
	clients  *ClientManager
	tracker  *connTracker

	srv *grpc.Server
}

// NewDriverServer wires an endpoint and its executor client manager into a
// gRPC server with the standard interceptor chain.
func NewDriverServer(endpoint *driver.Endpoint, clients *ClientManager) *DriverServer {
	s := &DriverServer{
		endpoint: endpoint,
		clients:  clients,
	}
	s.tracker = newConnTracker(endpoint)
	s.srv = grpc.NewServer(
		grpc.StatsHandler(s.tracker),
		grpc_middleware.WithUnaryServerChain(
			grpc_zap.UnaryServerInterceptor(log.L()),
			grpc_recovery.UnaryServerInterceptor(),
		),
	)
	RegisterDriverServiceServer(s.srv, s)
	return s
}

// Serve blocks serving on lis until Stop. It also drains the endpoint's
// lifecycle bus so a removed executor's connection is closed promptly
// instead of lingering until process exit.
func (s *DriverServer) Serve(lis net.Listener) error {
	receiver := s.endpoint.Lifecycle()
	go func() {
		for ev := range receiver.C {
			if ev.Kind == driver.ExecutorRemoved {
				s.clients.RemoveExecutor(ev.ExecutorID)
			}
		}
	}()
	defer receiver.Close()
	return s.srv.Serve(lis)
}

// Stop gracefully stops the gRPC server.
func (s *DriverServer) Stop() {
	s.srv.GracefulStop()
}

// Deliver implements DriverServiceServer. RegisterExecutor additionally
// dials the executor's advertised address before the envelope reaches the
// endpoint, so the registration handler's RegisteredExecutor ack has a live
// connection to ride on.
func (s *DriverServer) Deliver(ctx context.Context, p *wire.Packet) (*wire.Ack, error) {
	env, err := wire.Unmarshal(p)
	if err != nil {
		return &wire.Ack{Ok: false, Error: err.Error()}, nil
	}

	if reg, ok := env.(message.RegisterExecutor); ok {
		if err := s.clients.AddExecutor(reg.ExecutorID, reg.Address); err != nil {
			log.L().Warn("failed to dial registering executor",
				zap.String("id", string(reg.ExecutorID)), zap.Error(err))
			return &wire.Ack{Ok: false, Error: err.Error()}, nil
		}
		if pr, ok := peer.FromContext(ctx); ok {
			s.tracker.associate(pr.Addr.String(), reg.Address)
		}
	}

	s.endpoint.Post(env)
	return &wire.Ack{Ok: true}, nil
}

// connTracker watches connection lifecycles so a dropped executor
// connection is promoted to OnDisconnected on the endpoint's mailbox,
// realizing the spec's heartbeat-free liveness via RPC disconnect.
type connTracker struct {
	endpoint *driver.Endpoint

	mu sync.Mutex
	// byRemote maps a connection's remote address to the executor's
	// advertised endpoint ref learned at registration time; the two differ
	// because the inbound connection uses an ephemeral port.
	byRemote map[string]string
}

func newConnTracker(endpoint *driver.Endpoint) *connTracker {
	return &connTracker{
		endpoint: endpoint,
		byRemote: make(map[string]string),
	}
}

func (t *connTracker) associate(remoteAddr, endpointRef string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byRemote[remoteAddr] = endpointRef
}

type connTagKey struct{}

func (t *connTracker) TagConn(ctx context.Context, info *stats.ConnTagInfo) context.Context {
	if info.RemoteAddr != nil {
		return context.WithValue(ctx, connTagKey{}, info.RemoteAddr.String())
	}
	return ctx
}

func (t *connTracker) HandleConn(ctx context.Context, s stats.ConnStats) {
	if _, ok := s.(*stats.ConnEnd); !ok {
		return
	}
	remote, _ := ctx.Value(connTagKey{}).(string)
	if remote == "" {
		return
	}

	t.mu.Lock()
	ref, known := t.byRemote[remote]
	delete(t.byRemote, remote)
	t.mu.Unlock()

	if !known {
		// A connection that never registered an executor went away; nothing
		// to clean up.
		return
	}
	t.endpoint.Post(message.OnDisconnected{RemoteAddress: ref})
}

func (t *connTracker) TagRPC(ctx context.Context, _ *stats.RPCTagInfo) context.Context {
	return ctx
}

func (t *connTracker) HandleRPC(context.Context, stats.RPCStats) {}
