// Package wsadapter is the WebSocket transport adapter (spec.md §4, "TCP
// or WebSocket"): a chi HTTP route upgrades to a gorilla/websocket
// connection, then feeds binary frames through the same wire.Framer and
// transport.Router every other adapter uses.
package wsadapter

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/webitel/stagehub/internal/domain/model"
	"github.com/webitel/stagehub/internal/transport"
	"github.com/webitel/stagehub/internal/wire"
)

// throttlePoll is how often a throttled read loop re-checks whether its
// stage has drained back below its low watermark (spec.md §5).
const throttlePoll = 20 * time.Millisecond

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type wsConn struct {
	conn *websocket.Conn
}

func (c wsConn) WriteFrame(b []byte) error { return c.conn.WriteMessage(websocket.BinaryMessage, b) }
func (c wsConn) Close() error              { return c.conn.Close() }

// Adapter upgrades HTTP requests to WebSocket sessions.
type Adapter struct {
	Sessions      *transport.Manager
	Router        *transport.Router
	Compression   *wire.Compression
	SendQueueSize int
	Log           *slog.Logger
}

// Mount registers the upgrade route on r (spec.md §4.2: the path itself
// is deployment-specific, typically "/ws").
func (a *Adapter) Mount(r chi.Router, path string) {
	r.Get(path, a.handleUpgrade)
}

func (a *Adapter) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log := a.Log
		if log == nil {
			log = slog.Default()
		}
		log.Warn("wsadapter: upgrade failed", "err", err)
		return
	}
	go a.handle(conn)
}

func (a *Adapter) handle(conn *websocket.Conn) {
	sess := transport.NewSession(a.Sessions.NextSessionID(), transport.KindWebSocket, wsConn{conn}, wire.NewFramer(a.Compression), a.SendQueueSize)
	go sess.Run()

	inbound := wire.NewFramer(a.Compression)
	for {
		for !a.Router.Drained(sess) {
			if sess.Closed() {
				break
			}
			time.Sleep(throttlePoll)
		}
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		pkts, ferr := inbound.Feed(data)
		for _, pkt := range pkts {
			a.Router.Handle(sess, pkt)
		}
		if ferr != nil {
			if sess.RecordViolation() >= transport.DefaultMaxViolations {
				break
			}
		}
		if sess.Closed() {
			break
		}
	}

	sess.Close(model.DisconnectNetworkError)
	a.Router.HandleDisconnect(sess, model.DisconnectNetworkError)
}
