package rpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/connectivity"

	"github.com/skewsched/coredriver/internal/message"
	derrors "github.com/skewsched/coredriver/pkg/errors"
	"github.com/skewsched/coredriver/rpc/wire"
)

// DriverClient is an executor's connection to the driver. It satisfies
// executorbackend.DriverClient: envelope in, ack out, with the executor
// process treating a dead connection as fatal.
type DriverClient struct {
	driverURL string
	conn      *grpc.ClientConn
	client    DriverServiceClient

	sendTimeout time.Duration
}

// DialDriver connects to the driver's DriverService, blocking until the
// connection is established or ctx expires.
func DialDriver(ctx context.Context, driverURL string) (*DriverClient, error) {
	conn, err := grpc.DialContext(ctx, driverURL,
		grpc.WithInsecure(),
		grpc.WithBlock(),
		grpc.WithConnectParams(grpc.ConnectParams{Backoff: backoff.DefaultConfig}))
	if err != nil {
		return nil, derrors.ErrRegistrationFailed.Wrap(err).GenWithStackByArgs(driverURL, "dial failed")
	}
	return &DriverClient{
		driverURL:   driverURL,
		conn:        conn,
		client:      NewDriverServiceClient(conn),
		sendTimeout: 10 * time.Second,
	}, nil
}

// Send delivers one envelope to the driver. A transport-level failure on a
// shut-down connection is reported as ErrDriverDisconnected so the caller
// can exit non-zero.
func (c *DriverClient) Send(env message.Envelope) error {
	p, err := wire.Marshal(env)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.sendTimeout)
	defer cancel()

	ack, err := c.client.Deliver(ctx, p)
	if err != nil {
		if c.conn.GetState() == connectivity.Shutdown ||
			c.conn.GetState() == connectivity.TransientFailure {
			return derrors.ErrDriverDisconnected.Wrap(err).GenWithStackByArgs(c.driverURL)
		}
		return derrors.Trace(err)
	}
	if !ack.Ok {
		return derrors.New(ack.Error)
	}
	return nil
}

// Register performs the executor's initial RegisterExecutor exchange. A
// rejected registration is fatal to the process per the backend's state
// machine.
func (c *DriverClient) Register(ctx context.Context, reg message.RegisterExecutor) error {
	p, err := wire.Marshal(reg)
	if err != nil {
		return err
	}
	ack, err := c.client.Deliver(ctx, p)
	if err != nil {
		return derrors.ErrRegistrationFailed.Wrap(err).GenWithStackByArgs(c.driverURL, "deliver failed")
	}
	if !ack.Ok {
		return derrors.ErrRegistrationFailed.GenWithStackByArgs(c.driverURL, ack.Error)
	}
	return nil
}

// Close tears down the connection.
func (c *DriverClient) Close() error {
	return c.conn.Close()
}
