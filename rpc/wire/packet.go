// Package wire frames the driver/executor message union for transport over
// gRPC. Control messages travel as a Packet: the tagged-union discriminator
// plus the variant's encoded body. The opaque task bytes inside LaunchTask
// are produced by the task codec and pass through this layer untouched, so
// the transport never re-serializes them.
package wire

import (
	"github.com/gogo/protobuf/proto"
)

// Packet is the single message type both gRPC services exchange. Kind is the
// union discriminator; Payload is the variant body encoded by Marshal.
type Packet struct {
	Kind    string `protobuf:"bytes,1,opt,name=kind,proto3" json:"kind,omitempty"`
	Payload []byte `protobuf:"bytes,2,opt,name=payload,proto3" json:"payload,omitempty"`
}

func (p *Packet) Reset()         { *p = Packet{} }
func (p *Packet) String() string { return proto.CompactTextString(p) }
func (*Packet) ProtoMessage()    {}

// Ack is the unary reply to a delivered Packet. A non-empty Error carries a
// normalized error message back to the sender; Ok distinguishes "delivered"
// from "rejected" without forcing the caller to parse Error.
type Ack struct {
	Ok    bool   `protobuf:"varint,1,opt,name=ok,proto3" json:"ok,omitempty"`
	Error string `protobuf:"bytes,2,opt,name=error,proto3" json:"error,omitempty"`
}

func (a *Ack) Reset()         { *a = Ack{} }
func (a *Ack) String() string { return proto.CompactTextString(a) }
func (*Ack) ProtoMessage()    {}

func init() {
	proto.RegisterType((*Packet)(nil), "coredriver.Packet")
	proto.RegisterType((*Ack)(nil), "coredriver.Ack")
}
