// Package grpctunnel is an additional transport adapter for trusted
// internal callers: a gRPC bidi stream carrying the exact same
// length-framed byte protocol the TCP and WebSocket adapters speak, via
// a custom raw-bytes codec instead of protobuf messages. It is additive
// infrastructure alongside the TCP/WebSocket client path, not a
// replacement for it.
package grpctunnel

import (
	"log/slog"
	"time"

	grpcmiddleware "github.com/grpc-ecosystem/go-grpc-middleware/v2"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"

	"github.com/webitel/stagehub/internal/domain/model"
	"github.com/webitel/stagehub/internal/transport"
	"github.com/webitel/stagehub/internal/wire"
)

// throttlePoll is how often a throttled read loop re-checks whether its
// stage has drained back below its low watermark (spec.md §5).
const throttlePoll = 20 * time.Millisecond

// Server implements the Tunnel gRPC stream handler.
type Server struct {
	Sessions      *transport.Manager
	Router        *transport.Router
	Compression   *wire.Compression
	SendQueueSize int
	Log           *slog.Logger
}

type grpcConn struct{ stream grpc.ServerStream }

func (c grpcConn) WriteFrame(b []byte) error {
	buf := append([]byte(nil), b...)
	return c.stream.SendMsg(&buf)
}

func (c grpcConn) Close() error { return nil }

func tunnelHandler(srv any, stream grpc.ServerStream) error {
	s := srv.(*Server)
	return s.handleStream(stream)
}

func (s *Server) handleStream(stream grpc.ServerStream) error {
	sess := transport.NewSession(s.Sessions.NextSessionID(), transport.KindGRPC, grpcConn{stream}, wire.NewFramer(s.Compression), s.SendQueueSize)
	go sess.Run()

	inbound := wire.NewFramer(s.Compression)
	for {
		for !s.Router.Drained(sess) {
			if sess.Closed() {
				break
			}
			time.Sleep(throttlePoll)
		}
		var buf []byte
		if err := stream.RecvMsg(&buf); err != nil {
			break
		}
		pkts, ferr := inbound.Feed(buf)
		for _, pkt := range pkts {
			s.Router.Handle(sess, pkt)
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
	s.Router.HandleDisconnect(sess, model.DisconnectNetworkError)
	return nil
}

// ServiceDesc is hand-written (no .proto schema) since the tunnel's
// payloads are opaque framed bytes, not protobuf messages.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "stagehub.GRPCTunnel",
	HandlerType: (*any)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Tunnel",
			Handler:       tunnelHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "grpctunnel",
}

// NewGRPCServer builds a *grpc.Server with recovery and OpenTelemetry
// stream interceptors chained via go-grpc-middleware/v2, then registers
// srv as the Tunnel service.
func NewGRPCServer(srv *Server) *grpc.Server {
	s := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.StreamInterceptor(grpcmiddleware.ChainStreamServer(
			recovery.StreamServerInterceptor(),
		)),
	)
	s.RegisterService(&ServiceDesc, srv)
	return s
}
