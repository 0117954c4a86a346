// Package msgs defines the telemetry wire messages.
package msgs

import (
	"github.com/golang/protobuf/proto"
)

// Measurement is one decoded frame of a sensor.
type Measurement struct {
	Sensor    string `protobuf:"bytes,1,opt,name=sensor,proto3" json:"sensor,omitempty"`
	Type      string `protobuf:"bytes,2,opt,name=type,proto3" json:"type,omitempty"`
	Alpha     uint32 `protobuf:"varint,3,opt,name=alpha,proto3" json:"alpha"`
	Beta      uint32 `protobuf:"varint,4,opt,name=beta,proto3" json:"beta,omitempty"`
	X         int32  `protobuf:"zigzag32,5,opt,name=x,proto3" json:"x,omitempty"`
	Y         int32  `protobuf:"zigzag32,6,opt,name=y,proto3" json:"y,omitempty"`
	Z         int32  `protobuf:"zigzag32,7,opt,name=z,proto3" json:"z,omitempty"`
	Err       uint32 `protobuf:"varint,8,opt,name=err,proto3" json:"err,omitempty"`
	VG        uint32 `protobuf:"varint,9,opt,name=vg,proto3" json:"vg,omitempty"`
	Roll      uint32 `protobuf:"varint,10,opt,name=roll,proto3" json:"roll"`
	Timestamp int64  `protobuf:"varint,11,opt,name=timestamp,proto3" json:"timestamp"`
}

// ProtoMessage implements proto.Message.
func (m *Measurement) ProtoMessage() {}

// Reset implements proto.Message.
func (m *Measurement) Reset() { *m = Measurement{} }

// String implements proto.Message.
func (m *Measurement) String() string { return proto.CompactTextString(m) }

// NodeInfo is published retained on the node topic.
type NodeInfo struct {
	Node    string   `protobuf:"bytes,1,opt,name=node,proto3" json:"node,omitempty"`
	Sensors []string `protobuf:"bytes,2,rep,name=sensors,proto3" json:"sensors,omitempty"`
	Online  bool     `protobuf:"varint,3,opt,name=online,proto3" json:"online"`
}

// ProtoMessage implements proto.Message.
func (m *NodeInfo) ProtoMessage() {}

// Reset implements proto.Message.
func (m *NodeInfo) Reset() { *m = NodeInfo{} }

// String implements proto.Message.
func (m *NodeInfo) String() string { return proto.CompactTextString(m) }

// Request changes what a sensor is polled with.
type Request struct {
	Opcode    uint32 `protobuf:"varint,1,opt,name=opcode,proto3" json:"opcode,omitempty"`
	Type      string `protobuf:"bytes,2,opt,name=type,proto3" json:"type,omitempty"`
	Timeout   uint32 `protobuf:"varint,3,opt,name=timeout,proto3" json:"timeout,omitempty"`
	ResetRoll bool   `protobuf:"varint,4,opt,name=reset_roll,proto3" json:"reset_roll,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *Request) ProtoMessage() {}

// Reset implements proto.Message.
func (m *Request) Reset() { *m = Request{} }

// String implements proto.Message.
func (m *Request) String() string { return proto.CompactTextString(m) }
