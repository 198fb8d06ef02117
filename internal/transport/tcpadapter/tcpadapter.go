// Package tcpadapter is the raw-TCP transport adapter (spec.md §4, "TCP
// or WebSocket"): one goroutine per connection reading length-framed
// bytes off the wire and feeding them through wire.Framer into the
// shared transport.Router.
package tcpadapter

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/webitel/stagehub/internal/domain/model"
	"github.com/webitel/stagehub/internal/transport"
	"github.com/webitel/stagehub/internal/wire"
)

// throttlePoll is how often a throttled read loop re-checks whether its
// stage has drained back below its low watermark (spec.md §5).
const throttlePoll = 20 * time.Millisecond

type netConn struct{ conn net.Conn }

func (c netConn) WriteFrame(b []byte) error { _, err := c.conn.Write(b); return err }
func (c netConn) Close() error              { return c.conn.Close() }

// Adapter listens for raw TCP connections.
type Adapter struct {
	Addr          string
	Sessions      *transport.Manager
	Router        *transport.Router
	Compression   *wire.Compression
	SendQueueSize int
	Log           *slog.Logger
}

// ListenAndServe blocks accepting connections until ctx is cancelled.
func (a *Adapter) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.Addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	log := a.Log
	if log == nil {
		log = slog.Default()
	}
	log.Info("tcpadapter listening", "addr", a.Addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go a.handle(conn)
	}
}

func (a *Adapter) handle(conn net.Conn) {
	sess := transport.NewSession(a.Sessions.NextSessionID(), transport.KindTCP, netConn{conn}, wire.NewFramer(a.Compression), a.SendQueueSize)
	go sess.Run()

	inbound := wire.NewFramer(a.Compression)
	buf := make([]byte, 4096)
	for {
		for !a.Router.Drained(sess) {
			if sess.Closed() {
				break
			}
			time.Sleep(throttlePoll)
		}
		n, err := conn.Read(buf)
		if n > 0 {
			pkts, ferr := inbound.Feed(buf[:n])
			for _, pkt := range pkts {
				a.Router.Handle(sess, pkt)
			}
			if ferr != nil {
				if sess.RecordViolation() >= transport.DefaultMaxViolations {
					break
				}
			}
		}
		if err != nil {
			break
		}
		if sess.Closed() {
			break
		}
	}

	sess.Close(model.DisconnectNetworkError)
	a.Router.HandleDisconnect(sess, model.DisconnectNetworkError)
}
