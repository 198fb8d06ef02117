package model

// StageState is the lifecycle state of a Stage (spec.md §3).
type StageState int32

const (
	StageCreated StageState = iota
	StageActive
	StageClosing
	StageClosed
)

func (s StageState) String() string {
	switch s {
	case StageCreated:
		return "created"
	case StageActive:
		return "active"
	case StageClosing:
		return "closing"
	case StageClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// DisconnectReason explains why an actor's session went away.
type DisconnectReason int32

const (
	DisconnectNetworkError DisconnectReason = iota
	DisconnectDuplicateLogin
	DisconnectHeartbeatTimeout
	DisconnectClientClosed
	// DisconnectProtocolFatal closes a session that dropped a reply
	// packet off a full send queue (spec.md §4.2: "lost reply is a
	// protocol fatal").
	DisconnectProtocolFatal
)

func (r DisconnectReason) String() string {
	switch r {
	case DisconnectNetworkError:
		return "network_error"
	case DisconnectDuplicateLogin:
		return "duplicate_login"
	case DisconnectHeartbeatTimeout:
		return "heartbeat_timeout"
	case DisconnectClientClosed:
		return "client_closed"
	case DisconnectProtocolFatal:
		return "protocol_fatal"
	default:
		return "unknown"
	}
}

// LeaveReason explains why an actor left/was destroyed.
type LeaveReason int32

const (
	LeaveExplicit LeaveReason = iota
	LeaveReconnectTimeout
	LeaveKicked
	LeaveStageClosed
)

func (r LeaveReason) String() string {
	switch r {
	case LeaveExplicit:
		return "explicit"
	case LeaveReconnectTimeout:
		return "reconnect_timeout"
	case LeaveKicked:
		return "kicked"
	case LeaveStageClosed:
		return "stage_closed"
	default:
		return "unknown"
	}
}

// HubStats is a point-in-time snapshot of the registry, used by the
// operator-facing CLI dashboard (SPEC_FULL.md §3/§4).
type HubStats struct {
	TotalStages      int
	TotalActors      int
	TotalConnections int
	Stages           []StageStats
}

// StageStats is a per-stage snapshot.
type StageStats struct {
	StageID      int64
	StageType    string
	State        StageState
	ActorCount   int
	MailboxDepth int
	Running      bool
}
