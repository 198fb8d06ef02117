package transport

import (
	"log/slog"

	"github.com/webitel/stagehub/internal/domain/model"
	"github.com/webitel/stagehub/internal/registry"
)

// Router is the shared post-decode logic every transport adapter runs
// over a Session's inbound packets: the handshake gate, heartbeats, the
// LeaveRoomReq shortcut, and routing everything else to the Dispatcher.
// Adapters differ only in how bytes get in and out; this is the part
// that doesn't.
type Router struct {
	Handshake  *Handshake
	Dispatcher *registry.Dispatcher
	Sessions   *Manager
}

// Handle processes one decoded Packet for sess. It never blocks on
// network I/O itself; replies go through Session.Send.
func (r *Router) Handle(sess *Session, pkt *model.Packet) {
	if !sess.Authenticated() {
		if pkt.MsgID != model.MsgConnectWithToken {
			if sess.RecordViolation() >= DefaultMaxViolations {
				sess.Close(model.DisconnectNetworkError)
			}
			return
		}
		reply, err := r.Handshake.ConnectWithToken(sess, string(pkt.Payload))
		sess.Send(reply)
		if err != nil {
			sess.Close(model.DisconnectNetworkError)
		}
		return
	}

	sess.Touch()

	if pkt.IsHeartbeat() {
		sess.Send(&model.Packet{MsgID: model.MsgHeartbeatRes, Flags: model.FlagHeartbeat})
		return
	}

	if pkt.MsgID == model.MsgLeaveRoomReq {
		_ = r.Dispatcher.DispatchLeave(sess.StageID, sess.AccountID)
		return
	}

	if err := r.Dispatcher.DispatchClient(sess.StageID, sess.AccountID, pkt); err != nil {
		code := model.ErrStageOverloaded
		if err == registry.ErrStageNotFound {
			code = model.ErrStageNotFound
		}
		// Routing errors reply only when a reply is expected; a
		// fire-and-forget packet with nowhere to go is dropped and
		// logged instead (spec.md §7, "Routing errors").
		if !pkt.FireAndForget() {
			sess.Send(pkt.Reply(code, nil))
		} else {
			slog.Default().Warn("router: dropping fire-and-forget packet", "err", err, "msg_id", pkt.MsgID, "stage_id", pkt.StageID)
		}
		if err == registry.ErrStageOverloaded {
			sess.Throttle()
		}
	}
}

// Drained reports whether sess is safe to resume reading from: either it
// was never throttled, or the stage it joined has fallen back below its
// low watermark (spec.md §5, "Backpressure").
func (r *Router) Drained(sess *Session) bool {
	if !sess.Throttled() {
		return true
	}
	if r.Dispatcher.StageDrained(sess.StageID) {
		sess.Resume()
		return true
	}
	return false
}

// HandleDisconnect tells the owning stage a session went away without an
// explicit LeaveRoomReq.
func (r *Router) HandleDisconnect(sess *Session, reason model.DisconnectReason) {
	if !sess.Authenticated() {
		return
	}
	_ = r.Dispatcher.DispatchDisconnect(sess.StageID, sess.AccountID, reason)
	r.Sessions.Unregister(sess.ID)
}
