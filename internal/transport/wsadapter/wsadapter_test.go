package wsadapter

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"github.com/webitel/stagehub/internal/auth"
	"github.com/webitel/stagehub/internal/domain/model"
	"github.com/webitel/stagehub/internal/registry"
	"github.com/webitel/stagehub/internal/stage"
	"github.com/webitel/stagehub/internal/transport"
	"github.com/webitel/stagehub/internal/wire"
)

type echoStage struct{ stage.BaseUserStage }

func (echoStage) OnDispatch(c *stage.DispatchContext) {
	c.Reply(model.Success, c.Packet.Payload)
}

func signToken(t *testing.T, secret []byte, stageType string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"account_id": 7,
		"stage_id":   0,
		"stage_type": stageType,
		"exp":        time.Now().Add(time.Minute).Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestAdapter_HandshakeThenEcho(t *testing.T) {
	secret := []byte("ws-adapter-test-secret")

	verifier, err := auth.NewVerifier(secret, 0)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	sm := transport.NewManager()
	reg := registry.New(sm, registry.Options{MailboxSize: 16, HighWatermark: 32, DrainLimit: 8, ReconnectTimeout: time.Second})
	reg.RegisterFactory("echo", func(int64) stage.UserStage { return echoStage{} })
	disp := registry.NewDispatcher(reg)
	hs := transport.NewHandshake(verifier, reg, disp, sm)
	router := &transport.Router{Handshake: hs, Dispatcher: disp, Sessions: sm}

	adapter := &Adapter{Sessions: sm, Router: router}
	mux := chi.NewRouter()
	adapter.Mount(mux, "/ws")

	srv := httptest.NewServer(mux)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	framer := wire.NewFramer(nil)
	token := signToken(t, secret, "echo")

	connectFrame, err := framer.Encode(&model.Packet{MsgID: model.MsgConnectWithToken, MsgSeq: 1, Payload: []byte(token)})
	if err != nil {
		t.Fatalf("encode connect: %v", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, connectFrame); err != nil {
		t.Fatalf("write connect: %v", err)
	}

	reply := readOnePacket(t, conn)
	if reply.MsgID != model.MsgJoinRoomRes || reply.ErrorCode != model.Success {
		t.Fatalf("unexpected join reply: %+v", reply)
	}

	echoFrame, err := framer.Encode(&model.Packet{MsgID: "Ping", MsgSeq: 2, Payload: []byte("hello")})
	if err != nil {
		t.Fatalf("encode ping: %v", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, echoFrame); err != nil {
		t.Fatalf("write ping: %v", err)
	}

	echoed := readOnePacket(t, conn)
	if string(echoed.Payload) != "hello" {
		t.Fatalf("echoed payload = %q, want hello", echoed.Payload)
	}
}

func readOnePacket(t *testing.T, conn *websocket.Conn) *model.Packet {
	t.Helper()
	inbound := wire.NewFramer(nil)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		pkts, ferr := inbound.Feed(data)
		if ferr != nil {
			t.Fatalf("frame error: %v", ferr)
		}
		if len(pkts) > 0 {
			return pkts[0]
		}
	}
}
