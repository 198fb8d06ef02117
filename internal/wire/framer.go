package wire

import (
	"encoding/binary"

	"github.com/webitel/stagehub/internal/domain/model"
)

// Framer accumulates bytes from a single stream and emits complete
// Packets. It is not safe for concurrent use by multiple goroutines; each
// Session owns exactly one Framer for its inbound direction (spec.md
// §4.2).
type Framer struct {
	buf         []byte
	compression *Compression
}

// NewFramer builds a Framer. compression may be nil to disable transparent
// decompression of the compressed-flag path (decoding a compressed frame
// then fails closed with ErrInvalidFrame).
func NewFramer(compression *Compression) *Framer {
	return &Framer{compression: compression}
}

// Feed appends newly-read bytes and returns zero or more complete Packets.
// Partial frames remain buffered across calls. A non-nil error means the
// stream is corrupt and the caller MUST close the session (spec.md §4.1).
func (f *Framer) Feed(data []byte) ([]*model.Packet, error) {
	f.buf = append(f.buf, data...)

	var out []*model.Packet
	for {
		hdr, ok, err := decodeHeader(f.buf)
		if err != nil {
			return out, err
		}
		if !ok {
			break
		}

		pkt, err := f.materialize(hdr, f.buf[lenFieldSize:hdr.consumed])
		if err != nil {
			return out, err
		}
		out = append(out, pkt)

		f.buf = f.buf[hdr.consumed:]
	}

	// Compact the backing array once it grows unreasonably relative to
	// the remaining unparsed tail, so a single huge frame doesn't pin a
	// large slice after it has been fully consumed.
	if len(f.buf) == 0 && cap(f.buf) > 1<<16 {
		f.buf = nil
	}

	return out, nil
}

func (f *Framer) materialize(hdr header, body []byte) (*model.Packet, error) {
	off := fixedHeaderAfter + len(hdr.msgID)
	rawPayload := body[off+payloadLenSize : off+payloadLenSize+hdr.payloadLen]

	pkt := &model.Packet{
		MsgID:     hdr.msgID,
		MsgSeq:    hdr.msgSeq,
		StageID:   hdr.stageID,
		ErrorCode: hdr.errorCode,
		Flags:     hdr.flags &^ model.FlagCompressed,
	}

	if hdr.flags&model.FlagCompressed != 0 {
		if f.compression == nil {
			return nil, invalidFrame("compressed payload but compression is disabled")
		}
		decompressed, err := f.compression.Decompress(rawPayload)
		if err != nil {
			return nil, invalidFrame(err.Error())
		}
		pkt.Payload = decompressed
		pkt.SetPooled(true)
		return pkt, nil
	}

	payload := GetPayload(len(rawPayload))
	copy(payload, rawPayload)
	pkt.Payload = payload
	pkt.SetPooled(true)
	return pkt, nil
}

// Release returns a Packet's payload buffer to the pool. Call this exactly
// once, after the mailbox entry owning the packet has been fully
// processed (spec.md §3, "Lifetime").
func Release(pkt *model.Packet) {
	if pkt == nil || !pkt.Pooled() {
		return
	}
	PutPayload(pkt.Payload)
	pkt.Payload = nil
	pkt.SetPooled(false)
}

// Encode serializes a Packet to its wire form, transparently compressing
// the payload when it is at least model.CompressionThreshold bytes and
// compression actually shrinks it (spec.md §4.1).
func (f *Framer) Encode(pkt *model.Packet) ([]byte, error) {
	if len(pkt.MsgID) == 0 || len(pkt.MsgID) > model.MaxMsgIDLen {
		return nil, invalidFrame("msg_id_len out of range")
	}
	if len(pkt.Payload) > model.MaxPayloadSize {
		return nil, invalidFrame("payload exceeds maximum size")
	}

	payload := pkt.Payload
	flags := pkt.Flags &^ model.FlagCompressed
	if f.compression != nil && len(payload) >= model.CompressionThreshold {
		if compressed, ok := f.compression.Compress(payload); ok {
			payload = compressed
			flags |= model.FlagCompressed
		}
	}

	totalLength := fixedHeaderAfter + len(pkt.MsgID) + payloadLenSize + len(payload)

	out := make([]byte, lenFieldSize+totalLength)
	binary.BigEndian.PutUint32(out[0:4], uint32(totalLength))
	out[4] = byte(flags)
	binary.BigEndian.PutUint16(out[5:7], pkt.MsgSeq)
	binary.BigEndian.PutUint64(out[7:15], uint64(pkt.StageID))
	binary.BigEndian.PutUint16(out[15:17], uint16(pkt.ErrorCode))
	out[17] = byte(len(pkt.MsgID))

	off := lenFieldSize + fixedHeaderAfter
	copy(out[off:], pkt.MsgID)
	off += len(pkt.MsgID)

	binary.BigEndian.PutUint32(out[off:off+4], uint32(len(payload)))
	off += 4
	copy(out[off:], payload)

	return out, nil
}
