package wire

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/webitel/stagehub/internal/domain/model"
)

func roundTrip(t *testing.T, pkt *model.Packet) *model.Packet {
	t.Helper()
	f := NewFramer(NewCompression(0))

	encoded, err := f.Encode(pkt)
	require.NoError(t, err)

	pkts, err := f.Feed(encoded)
	require.NoError(t, err)
	require.Len(t, pkts, 1)
	return pkts[0]
}

func TestFramer_RoundTrip_Basic(t *testing.T) {
	pkt := &model.Packet{
		MsgID:     "Echo",
		MsgSeq:    7,
		StageID:   42,
		ErrorCode: model.Success,
		Payload:   []byte("hi"),
	}
	got := roundTrip(t, pkt)
	require.Equal(t, pkt.MsgID, got.MsgID)
	require.Equal(t, pkt.MsgSeq, got.MsgSeq)
	require.Equal(t, pkt.StageID, got.StageID)
	require.Equal(t, pkt.ErrorCode, got.ErrorCode)
	require.Equal(t, pkt.Payload, got.Payload)
}

func TestFramer_RoundTrip_EmptyPayload(t *testing.T) {
	pkt := &model.Packet{MsgID: "Ping", StageID: 1, Payload: nil}
	got := roundTrip(t, pkt)
	require.Empty(t, got.Payload)
}

func TestFramer_RoundTrip_MaxPayload(t *testing.T) {
	pkt := &model.Packet{MsgID: "Big", StageID: 1, Payload: make([]byte, model.MaxPayloadSize)}
	got := roundTrip(t, pkt)
	require.Len(t, got.Payload, model.MaxPayloadSize)
}

func TestFramer_Encode_RejectsOversizedPayload(t *testing.T) {
	f := NewFramer(nil)
	pkt := &model.Packet{MsgID: "Big", StageID: 1, Payload: make([]byte, model.MaxPayloadSize+1)}
	_, err := f.Encode(pkt)
	require.ErrorIs(t, err, ErrInvalidFrame)
}

func TestFramer_Encode_RejectsEmptyMsgID(t *testing.T) {
	f := NewFramer(nil)
	_, err := f.Encode(&model.Packet{StageID: 1})
	require.ErrorIs(t, err, ErrInvalidFrame)
}

func TestFramer_Encode_RejectsOverlongMsgID(t *testing.T) {
	f := NewFramer(nil)
	pkt := &model.Packet{MsgID: strings.Repeat("x", model.MaxMsgIDLen+1), StageID: 1}
	_, err := f.Encode(pkt)
	require.ErrorIs(t, err, ErrInvalidFrame)
}

func TestFramer_Feed_PartialFrameBuffers(t *testing.T) {
	f := NewFramer(nil)
	pkt := &model.Packet{MsgID: "Echo", StageID: 1, Payload: []byte("hello world")}
	encoded, err := f.Encode(pkt)
	require.NoError(t, err)

	// Feed one byte at a time; only the final byte should yield a packet.
	var got []*model.Packet
	for i := 0; i < len(encoded); i++ {
		pkts, err := f.Feed(encoded[i : i+1])
		require.NoError(t, err)
		got = append(got, pkts...)
	}
	require.Len(t, got, 1)
	require.Equal(t, pkt.Payload, got[0].Payload)
}

func TestFramer_Feed_MultipleFramesInOneRead(t *testing.T) {
	f := NewFramer(nil)
	a, err := f.Encode(&model.Packet{MsgID: "A", StageID: 1, Payload: []byte("1")})
	require.NoError(t, err)
	b, err := f.Encode(&model.Packet{MsgID: "B", StageID: 1, Payload: []byte("2")})
	require.NoError(t, err)

	pkts, err := f.Feed(append(a, b...))
	require.NoError(t, err)
	require.Len(t, pkts, 2)
	require.Equal(t, "A", pkts[0].MsgID)
	require.Equal(t, "B", pkts[1].MsgID)
}

func TestFramer_Feed_RejectsZeroMsgIDLen(t *testing.T) {
	f := NewFramer(nil)
	// Hand-build a frame with msg_id_len = 0.
	raw := make([]byte, 4+fixedHeaderAfter+payloadLenSize)
	totalLen := fixedHeaderAfter + payloadLenSize
	putU32 := func(b []byte, v uint32) {
		b[0] = byte(v >> 24)
		b[1] = byte(v >> 16)
		b[2] = byte(v >> 8)
		b[3] = byte(v)
	}
	putU32(raw[0:4], uint32(totalLen))
	// flags, seq, stage_id, error_code, msg_id_len=0, payload_len=0 all zero already.

	_, err := f.Feed(raw)
	require.ErrorIs(t, err, ErrInvalidFrame)
}

func TestFramer_Feed_RejectsOversizedTotalLength(t *testing.T) {
	f := NewFramer(nil)
	raw := make([]byte, 4)
	v := uint32(maxTotalLength + 1)
	raw[0] = byte(v >> 24)
	raw[1] = byte(v >> 16)
	raw[2] = byte(v >> 8)
	raw[3] = byte(v)

	_, err := f.Feed(raw)
	require.ErrorIs(t, err, ErrInvalidFrame)
}

func TestFramer_Compression_RoundTrip(t *testing.T) {
	f := NewFramer(NewCompression(0))
	payload := []byte(strings.Repeat("compress-me ", 200))
	pkt := &model.Packet{MsgID: "Big", StageID: 1, Payload: payload}

	encoded, err := f.Encode(pkt)
	require.NoError(t, err)

	pkts, err := f.Feed(encoded)
	require.NoError(t, err)
	require.Len(t, pkts, 1)
	require.True(t, pkts[0].Flags == 0, "compression flag must be cleared after transparent decode")
	require.Equal(t, payload, pkts[0].Payload)
}

func TestFramer_Decode_Idempotent(t *testing.T) {
	// decode(encode(decode(B))) == decode(B) -- spec.md §8 invariant 5.
	f := NewFramer(nil)
	pkt := &model.Packet{MsgID: "Echo", MsgSeq: 3, StageID: 9, Payload: []byte("abc")}

	encoded, err := f.Encode(pkt)
	require.NoError(t, err)

	first, err := f.Feed(encoded)
	require.NoError(t, err)
	require.Len(t, first, 1)

	reencoded, err := f.Encode(first[0])
	require.NoError(t, err)

	second, err := f.Feed(reencoded)
	require.NoError(t, err)
	require.Len(t, second, 1)

	require.Equal(t, first[0].MsgID, second[0].MsgID)
	require.Equal(t, first[0].Payload, second[0].Payload)
	require.Equal(t, first[0].StageID, second[0].StageID)
}
