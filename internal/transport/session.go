// Package transport implements Session and the Session Manager
// (spec.md §4.2), the ConnectWithToken handshake (spec.md §4.3), and the
// concrete transport adapters (tcpadapter, wsadapter, grpctunnel) that
// feed raw bytes through a wire.Framer into a Session.
package transport

import (
	"sync/atomic"
	"time"

	"github.com/webitel/stagehub/internal/domain/model"
	"github.com/webitel/stagehub/internal/wire"
)

// Kind identifies which physical transport a Session rides on.
type Kind int32

const (
	KindTCP Kind = iota
	KindWebSocket
	KindGRPC
)

// DefaultSendQueueSize bounds a session's outbound queue before the
// overflow policy kicks in (spec.md §4.2, §5 "Backpressure").
const DefaultSendQueueSize = 1024

// DefaultMaxViolations is the protocol-violation count (malformed frames,
// and packets other than ConnectWithToken sent before authentication) at
// which a session is closed (SPEC_FULL.md §4).
const DefaultMaxViolations = 3

// Conn is the minimal contract a transport adapter implements for a
// Session to write encoded frames and close the underlying connection.
type Conn interface {
	WriteFrame(b []byte) error
	Close() error
}

// Session tracks one connected client across its physical transport
// (spec.md §3, "Session").
type Session struct {
	ID        int64
	Kind      Kind
	AccountID int64
	// StageID is set once ConnectWithToken succeeds.
	StageID int64

	authenticated atomic.Bool
	lastHeartbeat atomic.Int64
	violations    atomic.Int32
	closed        atomic.Bool

	throttled atomic.Bool

	conn   Conn
	framer *wire.Framer
	sendQ  chan *model.Packet
	done   chan struct{}
}

// NewSession wires a Session to its physical connection. Call Run in its
// own goroutine to start the outbound write pump.
func NewSession(id int64, kind Kind, conn Conn, framer *wire.Framer, queueSize int) *Session {
	if queueSize <= 0 {
		queueSize = DefaultSendQueueSize
	}
	s := &Session{
		ID:     id,
		Kind:   kind,
		conn:   conn,
		framer: framer,
		sendQ:  make(chan *model.Packet, queueSize),
		done:   make(chan struct{}),
	}
	s.lastHeartbeat.Store(time.Now().UnixNano())
	return s
}

// Authenticated reports whether ConnectWithToken has succeeded for this
// session (spec.md §4.3: every other message is rejected until then).
func (s *Session) Authenticated() bool { return s.authenticated.Load() }

// MarkAuthenticated flips the session into the authenticated state.
func (s *Session) MarkAuthenticated(accountID int64) {
	s.AccountID = accountID
	s.authenticated.Store(true)
}

// Touch records a heartbeat/any-traffic timestamp.
func (s *Session) Touch() { s.lastHeartbeat.Store(time.Now().UnixNano()) }

// LastHeartbeat returns the last recorded heartbeat time.
func (s *Session) LastHeartbeat() time.Time {
	return time.Unix(0, s.lastHeartbeat.Load())
}

// RecordViolation increments the protocol-violation counter and reports
// the new count.
func (s *Session) RecordViolation() int32 { return s.violations.Add(1) }

// ExceededViolations reports whether the session has hit DefaultMaxViolations.
func (s *Session) ExceededViolations() bool {
	return s.violations.Load() >= DefaultMaxViolations
}

// Send enqueues pkt for the write pump. Overflow policy (spec.md §4.2):
// DropOldest for fire-and-forget/non-reply packets, so a slow client
// loses stale frames rather than stalling the stage worker that called
// Send; Close for reply packets, since a dropped reply leaves the
// caller's request hanging forever and is treated as a protocol fatal.
// Returns false if the session is already closed (or just got closed by
// this call).
func (s *Session) Send(pkt *model.Packet) bool {
	if s.closed.Load() {
		return false
	}
	for {
		select {
		case s.sendQ <- pkt:
			return true
		default:
		}
		if pkt.IsReply() {
			s.Close(model.DisconnectProtocolFatal)
			return false
		}
		select {
		case <-s.sendQ:
		default:
			return false
		}
	}
}

// Throttle marks the session as overloaded (spec.md §5, "Backpressure"):
// the owning transport adapter's read loop MUST stop pulling more bytes
// off the wire until Resume is called. The low-watermark check that
// decides when to call Resume lives in Router.Drained, not here, to keep
// this package free of stage/registry concerns.
func (s *Session) Throttle() { s.throttled.Store(true) }

// Resume clears the throttle set by Throttle.
func (s *Session) Resume() { s.throttled.Store(false) }

// Throttled reports whether the adapter reading this session's bytes
// should pause until Resume is called.
func (s *Session) Throttled() bool { return s.throttled.Load() }

// Run drives the write pump until the session is closed or the
// connection errors. Call it in its own goroutine.
func (s *Session) Run() {
	for {
		select {
		case <-s.done:
			return
		case pkt, ok := <-s.sendQ:
			if !ok {
				return
			}
			encoded, err := s.framer.Encode(pkt)
			if err != nil {
				continue
			}
			if err := s.conn.WriteFrame(encoded); err != nil {
				s.Close(model.DisconnectNetworkError)
				return
			}
		}
	}
}

// Close tears the session down exactly once.
func (s *Session) Close(reason model.DisconnectReason) {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	close(s.done)
	_ = s.conn.Close()
}

// Closed reports whether Close has run.
func (s *Session) Closed() bool { return s.closed.Load() }
