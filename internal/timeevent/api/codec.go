// Package api is the hand-authored counterpart of a protoc-gen-go-grpc
// output for the time-event dispatcher's RPC surface. There is no protoc
// invocation available in this build, so the wire messages here are plain
// Go structs (not protoreflect-backed proto.Message values) carried over
// gRPC using a small JSON codec instead of the default protobuf codec —
// see DESIGN.md for why this shape was chosen over vendoring generated
// .pb.go output. The service registration shape (grpc.ServiceDesc,
// Register*Server, generated client) still follows the real
// protoc-gen-go-grpc output byte for byte, and google.golang.org/protobuf's
// emptypb.Empty is used for the zero-argument requests exactly as it would
// be in generated code.
package api

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

const codecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
