// Package rpc carries the driver/executor message union over gRPC. It
// defines two single-method services — DriverService for executor->driver
// traffic and ExecutorService for driver->executor traffic — both exchanging
// wire.Packet, so the closed union stays closed at the transport: one
// envelope in, one Ack out, and every variant shares the same frame-size
// accounting.
//
// The service descriptors are written out by hand rather than generated;
// with a single Deliver method per service the generated form buys nothing,
// and keeping the descriptor next to the handler makes the wire surface
// reviewable in one file.
package rpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/skewsched/coredriver/rpc/wire"
)

const (
	// DriverDeliverMethod is the full method name executors invoke.
	DriverDeliverMethod = "/coredriver.DriverService/Deliver"
	// ExecutorDeliverMethod is the full method name the driver invokes.
	ExecutorDeliverMethod = "/coredriver.ExecutorService/Deliver"
)

// DriverServiceServer receives executor->driver packets.
type DriverServiceServer interface {
	Deliver(ctx context.Context, p *wire.Packet) (*wire.Ack, error)
}

// ExecutorServiceServer receives driver->executor packets.
type ExecutorServiceServer interface {
	Deliver(ctx context.Context, p *wire.Packet) (*wire.Ack, error)
}

// RegisterDriverServiceServer attaches srv to a gRPC server.
func RegisterDriverServiceServer(s *grpc.Server, srv DriverServiceServer) {
	s.RegisterService(&driverServiceDesc, srv)
}

// RegisterExecutorServiceServer attaches srv to a gRPC server.
func RegisterExecutorServiceServer(s *grpc.Server, srv ExecutorServiceServer) {
	s.RegisterService(&executorServiceDesc, srv)
}

func driverDeliverHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wire.Packet)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DriverServiceServer).Deliver(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: DriverDeliverMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DriverServiceServer).Deliver(ctx, req.(*wire.Packet))
	}
	return interceptor(ctx, in, info, handler)
}

func executorDeliverHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wire.Packet)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ExecutorServiceServer).Deliver(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ExecutorDeliverMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ExecutorServiceServer).Deliver(ctx, req.(*wire.Packet))
	}
	return interceptor(ctx, in, info, handler)
}

var driverServiceDesc = grpc.ServiceDesc{
	ServiceName: "coredriver.DriverService",
	HandlerType: (*DriverServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Deliver", Handler: driverDeliverHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "coredriver.proto",
}

var executorServiceDesc = grpc.ServiceDesc{
	ServiceName: "coredriver.ExecutorService",
	HandlerType: (*ExecutorServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Deliver", Handler: executorDeliverHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "coredriver.proto",
}

// DriverServiceClient invokes DriverService from an executor.
type DriverServiceClient interface {
	Deliver(ctx context.Context, in *wire.Packet, opts ...grpc.CallOption) (*wire.Ack, error)
}

type driverServiceClient struct {
	cc *grpc.ClientConn
}

// NewDriverServiceClient wraps an established connection to the driver.
func NewDriverServiceClient(cc *grpc.ClientConn) DriverServiceClient {
	return &driverServiceClient{cc: cc}
}

func (c *driverServiceClient) Deliver(ctx context.Context, in *wire.Packet, opts ...grpc.CallOption) (*wire.Ack, error) {
	out := new(wire.Ack)
	if err := c.cc.Invoke(ctx, DriverDeliverMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ExecutorServiceClient invokes ExecutorService from the driver.
type ExecutorServiceClient interface {
	Deliver(ctx context.Context, in *wire.Packet, opts ...grpc.CallOption) (*wire.Ack, error)
}

type executorServiceClient struct {
	cc *grpc.ClientConn
}

// NewExecutorServiceClient wraps an established connection to one executor.
func NewExecutorServiceClient(cc *grpc.ClientConn) ExecutorServiceClient {
	return &executorServiceClient{cc: cc}
}

func (c *executorServiceClient) Deliver(ctx context.Context, in *wire.Packet, opts ...grpc.CallOption) (*wire.Ack, error) {
	out := new(wire.Ack)
	if err := c.cc.Invoke(ctx, ExecutorDeliverMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
