package grpctunnel

import (
	"fmt"

	"google.golang.org/grpc/encoding"
)

// rawCodec name under which it's registered with the gRPC runtime
// (google.golang.org/grpc/encoding.RegisterCodec).
const rawCodecName = "stagehub-raw"

// rawCodec lets the gRPC tunnel carry the exact same length-framed byte
// protocol every other transport adapter speaks, instead of protobuf.
// The core room-server treats payloads as opaque bytes (spec.md §3), so
// there is nothing for a protobuf message/validator to describe here --
// see DESIGN.md for why no .proto schema was introduced for this
// adapter.
type rawCodec struct{}

func (rawCodec) Marshal(v any) ([]byte, error) {
	b, ok := v.(*[]byte)
	if !ok {
		return nil, fmt.Errorf("grpctunnel: Marshal expects *[]byte, got %T", v)
	}
	return *b, nil
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	b, ok := v.(*[]byte)
	if !ok {
		return fmt.Errorf("grpctunnel: Unmarshal expects *[]byte, got %T", v)
	}
	*b = append((*b)[:0], data...)
	return nil
}

func (rawCodec) Name() string { return rawCodecName }

func init() {
	encoding.RegisterCodec(rawCodec{})
}
