package rpc

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"

	"github.com/skewsched/coredriver/internal/coretypes"
	"github.com/skewsched/coredriver/internal/message"
	derrors "github.com/skewsched/coredriver/pkg/errors"
	"github.com/skewsched/coredriver/pkg/log"
	"github.com/skewsched/coredriver/rpc/wire"
)

// ExecutorClient is one dialed executor endpoint.
type ExecutorClient interface {
	Send(ctx context.Context, env message.Envelope) error
	Close() error
}

type executorClient struct {
	conn   *grpc.ClientConn
	client ExecutorServiceClient
}

func newExecutorClient(addr string) (*executorClient, error) {
	conn, err := grpc.Dial(addr, grpc.WithInsecure(),
		grpc.WithConnectParams(grpc.ConnectParams{Backoff: backoff.DefaultConfig}))
	if err != nil {
		return nil, derrors.Trace(err)
	}
	return &executorClient{conn: conn, client: NewExecutorServiceClient(conn)}, nil
}

func (c *executorClient) Send(ctx context.Context, env message.Envelope) error {
	p, err := wire.Marshal(env)
	if err != nil {
		return err
	}
	ack, err := c.client.Deliver(ctx, p)
	if err != nil {
		return derrors.Trace(err)
	}
	if !ack.Ok {
		return derrors.New(ack.Error)
	}
	return nil
}

func (c *executorClient) Close() error {
	return c.conn.Close()
}

// ClientManager maintains one dialed connection per registered executor and
// implements driver.ExecutorTransport on top of them. Connections are added
// at registration time and torn down on removal; an envelope addressed to an
// executor with no connection is dropped with a log line rather than failing
// the sending handler (UNKNOWN_EXECUTOR is a drop, not a fault).
type ClientManager struct {
	mu        sync.RWMutex
	executors map[coretypes.ExecutorID]ExecutorClient
}

// NewClientManager returns an empty manager.
func NewClientManager() *ClientManager {
	return &ClientManager{executors: make(map[coretypes.ExecutorID]ExecutorClient)}
}

// AddExecutor dials an executor's advertised address. Adding an id that is
// already connected is a no-op, so a duplicate registration attempt never
// disturbs the live connection.
func (m *ClientManager) AddExecutor(id coretypes.ExecutorID, addr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.executors[id]; ok {
		return nil
	}
	log.L().Info("client manager adds executor",
		zap.String("id", string(id)), zap.String("addr", addr))
	client, err := newExecutorClient(addr)
	if err != nil {
		return err
	}
	m.executors[id] = client
	return nil
}

// RemoveExecutor closes and forgets an executor's connection.
func (m *ClientManager) RemoveExecutor(id coretypes.ExecutorID) {
	m.mu.Lock()
	client, ok := m.executors[id]
	delete(m.executors, id)
	m.mu.Unlock()
	if ok {
		if err := client.Close(); err != nil {
			log.L().Warn("failed to close executor connection",
				zap.String("id", string(id)), zap.Error(err))
		}
	}
}

// SendToExecutor implements driver.ExecutorTransport.
func (m *ClientManager) SendToExecutor(ctx context.Context, id coretypes.ExecutorID, env message.Envelope) error {
	m.mu.RLock()
	client, ok := m.executors[id]
	m.mu.RUnlock()
	if !ok {
		log.L().Warn("dropping envelope for unconnected executor",
			zap.String("id", string(id)), zap.String("kind", string(env.Kind())))
		return nil
	}
	return client.Send(ctx, env)
}

// BroadcastToAllExecutors implements driver.ExecutorTransport. The first
// send error is returned after every executor has been attempted.
func (m *ClientManager) BroadcastToAllExecutors(ctx context.Context, env message.Envelope) error {
	m.mu.RLock()
	clients := make(map[coretypes.ExecutorID]ExecutorClient, len(m.executors))
	for id, c := range m.executors {
		clients[id] = c
	}
	m.mu.RUnlock()

	var firstErr error
	for id, c := range clients {
		if err := c.Send(ctx, env); err != nil {
			log.L().Warn("broadcast send failed",
				zap.String("id", string(id)), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Close tears down every connection.
func (m *ClientManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.executors {
		_ = c.Close()
		delete(m.executors, id)
	}
}
