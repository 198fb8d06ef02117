package model

import "time"

// CreateStageMarker is the sentinel StageID value a Room Token uses to ask
// the server to create a fresh stage via the factory, rather than join an
// existing one (spec.md §6, "Room Token contract").
const CreateStageMarker int64 = 0

// TokenFailureReason enumerates why room-token verification failed
// (spec.md §6).
type TokenFailureReason int32

const (
	TokenFailureNone TokenFailureReason = iota
	TokenExpired
	TokenSignature
	TokenMalformed
	TokenNotYetValid
)

func (r TokenFailureReason) String() string {
	switch r {
	case TokenExpired:
		return "expired"
	case TokenSignature:
		return "signature"
	case TokenMalformed:
		return "malformed"
	case TokenNotYetValid:
		return "not_yet_valid"
	default:
		return "none"
	}
}

// RoomToken is the verified, deterministic result of checking the opaque
// signed blob a client presents on ConnectWithToken (spec.md §3/§6).
type RoomToken struct {
	AccountID int64
	// StageID is CreateStageMarker when the token authorizes a
	// factory-produced stage rather than naming an existing one.
	StageID   int64
	StageType string
	UserInfo  []byte
	NotBefore time.Time
	NotAfter  time.Time
}

// WantsNewStage reports whether this token asks the server to create a
// fresh stage rather than join an existing one.
func (t RoomToken) WantsNewStage() bool { return t.StageID == CreateStageMarker }

// TokenVerificationError carries a TokenFailureReason for the caller.
type TokenVerificationError struct {
	Reason TokenFailureReason
	Cause  error
}

func (e *TokenVerificationError) Error() string {
	if e.Cause != nil {
		return "room token rejected (" + e.Reason.String() + "): " + e.Cause.Error()
	}
	return "room token rejected (" + e.Reason.String() + ")"
}

func (e *TokenVerificationError) Unwrap() error { return e.Cause }
