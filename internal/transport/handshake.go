package transport

import (
	"github.com/webitel/stagehub/internal/auth"
	"github.com/webitel/stagehub/internal/domain/model"
	"github.com/webitel/stagehub/internal/registry"
)

// Handshake implements ConnectWithToken (spec.md §4.3): the first
// message any session must send. Every other message is rejected until
// this succeeds.
type Handshake struct {
	verifier   *auth.Verifier
	registry   *registry.Registry
	dispatcher *registry.Dispatcher
	sessions   *Manager
}

// NewHandshake wires the collaborators ConnectWithToken needs.
func NewHandshake(v *auth.Verifier, r *registry.Registry, d *registry.Dispatcher, sm *Manager) *Handshake {
	return &Handshake{verifier: v, registry: r, dispatcher: d, sessions: sm}
}

// ConnectWithToken verifies tokenString, attaches sess to the resulting
// stage (creating one if the token asks for it), and returns the
// JoinRoomRes reply packet to send back. A non-nil error means the
// session must be closed after the reply (if any) is flushed.
func (h *Handshake) ConnectWithToken(sess *Session, tokenString string) (*model.Packet, error) {
	rt, err := h.verifier.Verify(tokenString)
	if err != nil {
		return &model.Packet{MsgID: model.MsgJoinRoomRes, ErrorCode: model.ErrUnauthorized, Flags: model.FlagIsReply}, err
	}

	stageID := rt.StageID
	if rt.WantsNewStage() {
		s, err := h.registry.CreateStage(rt.StageType, rt.UserInfo)
		if err != nil {
			return &model.Packet{MsgID: model.MsgJoinRoomRes, ErrorCode: model.ErrStageNotFound, Flags: model.FlagIsReply}, err
		}
		stageID = s.ID
	} else if _, ok := h.registry.Find(stageID); !ok {
		return &model.Packet{MsgID: model.MsgJoinRoomRes, ErrorCode: model.ErrStageNotFound, Flags: model.FlagIsReply}, registry.ErrStageNotFound
	}

	sess.MarkAuthenticated(rt.AccountID)
	sess.StageID = stageID
	evicted := h.sessions.Register(rt.AccountID, sess)

	// A duplicate login (spec.md §4.4) never runs OnJoinRoom/Actor.OnCreate
	// again -- the Actor is already live under the session we just evicted.
	if evicted != nil {
		if err := h.dispatcher.DispatchReconnect(stageID, rt.AccountID, sess.ID); err != nil {
			return &model.Packet{MsgID: model.MsgJoinRoomRes, ErrorCode: model.ErrStageOverloaded, Flags: model.FlagIsReply}, err
		}
	} else if err := h.dispatcher.DispatchJoin(stageID, rt.AccountID, sess.ID, rt.UserInfo); err != nil {
		return &model.Packet{MsgID: model.MsgJoinRoomRes, ErrorCode: model.ErrStageOverloaded, Flags: model.FlagIsReply}, err
	}

	return &model.Packet{
		MsgID:     model.MsgJoinRoomRes,
		StageID:   stageID,
		ErrorCode: model.Success,
		Flags:     model.FlagIsReply,
	}, nil
}
