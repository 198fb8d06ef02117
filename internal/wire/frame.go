// Package wire implements the length-prefixed binary frame format that is
// the single transport envelope for both directions of the stage hub
// protocol (spec.md §4.1, §6). It is pure over its input bytes: Feed and
// Encode never block and never touch a socket.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/webitel/stagehub/internal/domain/model"
)

// Wire layout (big-endian):
//
//	u32 total_length | u8 flags | u16 msg_seq | i64 stage_id | u16 error_code |
//	u8 msg_id_len | msg_id_len bytes msg_id | u32 payload_len | payload_len bytes payload
//
// total_length excludes its own 4 bytes.
const (
	lenFieldSize     = 4
	fixedHeaderAfter = 1 + 2 + 8 + 2 + 1 // flags,seq,stage,errcode,msg_id_len
	payloadLenSize   = 4

	// maxHeaderLen bounds msg_id_len bytes + the fixed fields, used to size
	// the scratch header buffer pool.
	maxHeaderLen = fixedHeaderAfter + model.MaxMsgIDLen + payloadLenSize

	// maxTotalLength is the largest total_length this Framer accepts.
	maxTotalLength = model.MaxPayloadSize + maxHeaderLen
)

// ErrInvalidFrame is returned for any malformed frame. Per spec.md §4.1 the
// caller MUST close the session on this error.
var ErrInvalidFrame = errors.New("wire: invalid frame")

// errInsufficientData is an internal sentinel meaning "need more bytes",
// never surfaced to callers.
var errInsufficientData = errors.New("wire: insufficient data")

func invalidFrame(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidFrame, reason)
}

// header holds the fields decodeHeader parses out of one complete frame at
// the start of buf. decodeHeader returns ok=false with a nil error while
// the frame is still incomplete; consumed is the size of the whole frame
// (the 4-byte length prefix plus total_length, payload included).
type header struct {
	totalLength int
	flags       model.Flags
	msgSeq      uint16
	stageID     int64
	errorCode   model.ErrorCode
	msgID       string
	payloadLen  int
	consumed    int // bytes of the whole frame: length-prefix + total_length
}

func decodeHeader(buf []byte) (header, bool, error) {
	if len(buf) < lenFieldSize {
		return header{}, false, nil
	}
	totalLength := int(binary.BigEndian.Uint32(buf[:lenFieldSize]))
	if totalLength < fixedHeaderAfter+payloadLenSize {
		return header{}, false, invalidFrame("total_length too small")
	}
	if totalLength > maxTotalLength {
		return header{}, false, invalidFrame("total_length exceeds maximum")
	}
	if len(buf) < lenFieldSize+totalLength {
		return header{}, false, nil // partial frame, keep buffering
	}

	p := buf[lenFieldSize:]
	flags := model.Flags(p[0])
	msgSeq := binary.BigEndian.Uint16(p[1:3])
	stageID := int64(binary.BigEndian.Uint64(p[3:11]))
	errorCode := model.ErrorCode(binary.BigEndian.Uint16(p[11:13]))
	msgIDLen := int(p[13])
	if msgIDLen == 0 {
		return header{}, false, invalidFrame("msg_id_len is zero")
	}
	if msgIDLen > model.MaxMsgIDLen {
		return header{}, false, invalidFrame("msg_id_len exceeds maximum")
	}

	off := fixedHeaderAfter
	if off+msgIDLen+payloadLenSize > totalLength {
		return header{}, false, invalidFrame("msg_id/payload_len overruns total_length")
	}
	msgID := string(p[off : off+msgIDLen])
	off += msgIDLen

	payloadLen := int(binary.BigEndian.Uint32(p[off : off+payloadLenSize]))
	off += payloadLenSize

	if payloadLen > model.MaxPayloadSize {
		return header{}, false, invalidFrame("payload_len exceeds maximum")
	}
	if off+payloadLen != totalLength {
		return header{}, false, invalidFrame("payload_len + header_consumed != total_length")
	}

	return header{
		totalLength: totalLength,
		flags:       flags,
		msgSeq:      msgSeq,
		stageID:     stageID,
		errorCode:   errorCode,
		msgID:       msgID,
		payloadLen:  payloadLen,
		consumed:    lenFieldSize + totalLength,
	}, true, nil
}
