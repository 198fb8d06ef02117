// Package model holds the wire-level and in-process data types shared by
// every layer of the stage hub: the framed Packet, error codes, room
// tokens and stage/actor lifecycle states.
package model

const (
	// MaxPayloadSize bounds a single Packet payload (spec.md §3/§4.1).
	MaxPayloadSize = 2 * 1024 * 1024
	// MaxMsgIDLen bounds the msg_id tag length.
	MaxMsgIDLen = 255
	// CompressionThreshold is the default payload size above which the
	// encoder attempts compression (spec.md §4.1).
	CompressionThreshold = 512
)

// Flags are the header bit flags defined in spec.md §4.1.
type Flags uint8

const (
	FlagCompressed Flags = 1 << 0
	FlagIsReply    Flags = 1 << 1
	FlagHeartbeat  Flags = 1 << 2
)

// ErrorCode is the u16 wire error code space (spec.md §6).
type ErrorCode uint16

const (
	Success ErrorCode = 0

	ErrUnknown           ErrorCode = 1
	ErrInvalidPacket     ErrorCode = 2
	ErrTimeout           ErrorCode = 3
	ErrStageNotFound     ErrorCode = 4
	ErrActorNotFound     ErrorCode = 5
	ErrUnauthorized      ErrorCode = 6
	ErrInternalError     ErrorCode = 7
	ErrInvalidState      ErrorCode = 8
	ErrRateLimitExceeded ErrorCode = 9

	ErrStageFull          ErrorCode = 1000
	ErrStageAlreadyExists ErrorCode = 1001
	ErrAlreadyInStage     ErrorCode = 1002
	ErrNotInStage         ErrorCode = 1003
	ErrStageClosed        ErrorCode = 1004
	ErrStageOverloaded    ErrorCode = 1005

	// UserErrorCodeFloor is the start of the user-defined error code range.
	UserErrorCodeFloor ErrorCode = 2000
)

// Reserved msg_ids. User stages MUST NOT produce these (spec.md §6).
const (
	MsgConnectWithToken        = "ConnectWithToken"
	MsgHeartbeat               = "Heartbeat"
	MsgHeartbeatRes            = "HeartbeatRes"
	MsgJoinRoomRes             = "JoinRoomRes"
	MsgLeaveRoomReq            = "LeaveRoomReq"
	MsgLeaveRoomRes            = "LeaveRoomRes"
	MsgKickNotification        = "KickNotification"
	MsgPlayerConnectedNotify   = "PlayerConnectedNotify"
	MsgPlayerDisconnectedNotify = "PlayerDisconnectedNotify"
)

// ReservedMsgIDs reports whether a msg_id is reserved for the core.
func ReservedMsgIDs(msgID string) bool {
	switch msgID {
	case MsgConnectWithToken, MsgHeartbeat, MsgHeartbeatRes, MsgJoinRoomRes,
		MsgLeaveRoomReq, MsgLeaveRoomRes, MsgKickNotification,
		MsgPlayerConnectedNotify, MsgPlayerDisconnectedNotify:
		return true
	default:
		return false
	}
}

// Packet is the wire and in-process message unit (spec.md §3).
//
// Packets are immutable after being enqueued on a mailbox. A Packet whose
// payload was borrowed from the pool on ingress can hand it back with
// wire.Release; the stage runtime does not call it, so such payloads are
// left to the garbage collector once their handler returns.
type Packet struct {
	MsgID     string
	MsgSeq    uint16
	StageID   int64
	ErrorCode ErrorCode
	Flags     Flags
	Payload   []byte

	// pooled marks a Packet whose Payload slice came from the buffer pool
	// and must be returned through wire.PutPayload on release.
	pooled bool
}

// IsReply reports whether the packet is tagged as a reply.
func (p *Packet) IsReply() bool { return p.Flags&FlagIsReply != 0 }

// IsCompressed reports whether the payload is LZ-class compressed on the wire.
func (p *Packet) IsCompressed() bool { return p.Flags&FlagCompressed != 0 }

// IsHeartbeat reports whether this frame is a heartbeat frame that bypasses
// the mailbox entirely (spec.md §4.2).
func (p *Packet) IsHeartbeat() bool { return p.Flags&FlagHeartbeat != 0 }

// FireAndForget reports whether no reply is expected (msg_seq == 0).
func (p *Packet) FireAndForget() bool { return p.MsgSeq == 0 }

// SetPooled marks whether the packet payload must be released to the pool.
func (p *Packet) SetPooled(v bool) { p.pooled = v }

// Pooled reports whether the payload should be released to the pool.
func (p *Packet) Pooled() bool { return p.pooled }

// Reply builds the reply packet for a request packet p, preserving
// stage_id/msg_seq/msg_id and tagging FlagIsReply.
func (p *Packet) Reply(code ErrorCode, payload []byte) *Packet {
	return &Packet{
		MsgID:     p.MsgID,
		MsgSeq:    p.MsgSeq,
		StageID:   p.StageID,
		ErrorCode: code,
		Flags:     FlagIsReply,
		Payload:   payload,
	}
}
