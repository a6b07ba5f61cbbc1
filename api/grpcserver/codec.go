package grpcserver

import (
	"fmt"

	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/proto"
)

// CodecName replaces grpc's default "proto" codec, so plain
// application/grpc clients generated from order_book.proto interoperate.
const CodecName = "proto"

func init() {
	encoding.RegisterCodec(codec{})
}

// codec encodes this package's messages itself and hands generated
// protobuf messages to the proto runtime.
type codec struct{}

func (codec) Marshal(v any) ([]byte, error) {
	switch m := v.(type) {
	case wireMessage:
		return m.marshalWire()
	case proto.Message:
		return proto.Marshal(m)
	default:
		return nil, fmt.Errorf("grpcserver: cannot marshal %T", v)
	}
}

func (codec) Unmarshal(data []byte, v any) error {
	switch m := v.(type) {
	case wireMessage:
		return m.unmarshalWire(data)
	case proto.Message:
		return proto.Unmarshal(data, m)
	default:
		return fmt.Errorf("grpcserver: cannot unmarshal into %T", v)
	}
}

func (codec) Name() string {
	return CodecName
}
