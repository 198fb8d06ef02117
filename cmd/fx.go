package cmd

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"

	"github.com/webitel/stagehub/config"
	"github.com/webitel/stagehub/internal/auth"
	"github.com/webitel/stagehub/internal/bridge"
	"github.com/webitel/stagehub/internal/registry"
	"github.com/webitel/stagehub/internal/transport"
	"github.com/webitel/stagehub/internal/transport/grpctunnel"
	"github.com/webitel/stagehub/internal/transport/tcpadapter"
	"github.com/webitel/stagehub/internal/transport/wsadapter"
)

// ProvideLogger builds the process-wide structured logger (spec.md
// ambient stack, SPEC_FULL.md §2). With OTELEndpoint unset it's a plain
// JSON handler over stdout; with it set, records also flow through the
// otelslog bridge onto an OTLP log exporter, so a deployment running a
// collector gets correlated logs/traces without touching call sites.
func ProvideLogger(cfg *config.Config) (*slog.Logger, error) {
	level := slog.LevelInfo
	_ = level.UnmarshalText([]byte(cfg.LogLevel))

	handler := slog.Handler(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	if cfg.OTELEndpoint != "" {
		exporter, err := otlploghttp.New(context.Background(),
			otlploghttp.WithEndpoint(cfg.OTELEndpoint),
			otlploghttp.WithInsecure(),
		)
		if err != nil {
			return nil, err
		}
		provider := sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)))
		handler = otelslog.NewHandler("stagehub", otelslog.WithLoggerProvider(provider))
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}

// ProvideTracerProvider builds the OpenTelemetry tracer provider and
// installs it as the global one, which the gRPC tunnel's otelgrpc stats
// handler records its spans through; stage handler invocations are not
// wrapped in spans. With OTELEndpoint unset it holds spans in memory with no exporter, which is
// enough for any in-process tracing but emits nothing; with it set,
// spans batch out to the collector over OTLP/HTTP.
func ProvideTracerProvider(cfg *config.Config) (*trace.TracerProvider, error) {
	var opts []trace.TracerProviderOption
	if cfg.OTELEndpoint != "" {
		exporter, err := otlptracehttp.New(context.Background(),
			otlptracehttp.WithEndpoint(cfg.OTELEndpoint),
			otlptracehttp.WithInsecure(),
		)
		if err != nil {
			return nil, err
		}
		opts = append(opts, trace.WithBatcher(exporter))
	}
	tp := trace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	return tp, nil
}

// ProvideRegistry builds the Stage Registry with the tuning knobs from Config.
func ProvideRegistry(cfg *config.Config, sessions *transport.Manager) *registry.Registry {
	return registry.New(sessions, registry.Options{
		MailboxSize:      cfg.MailboxSize,
		HighWatermark:    cfg.HighWatermark,
		DrainLimit:       cfg.DrainLimit,
		ReconnectTimeout: cfg.ReconnectTimeout,
	})
}

// ProvideSessionManager builds the Session Manager.
func ProvideSessionManager() *transport.Manager { return transport.NewManager() }

// ProvideVerifier builds the Room Token verifier.
func ProvideVerifier(cfg *config.Config) (*auth.Verifier, error) {
	return auth.NewVerifier([]byte(cfg.JWTSecret), auth.DefaultCacheSize)
}

// ProvideDispatcher wraps the Registry in a Dispatcher.
func ProvideDispatcher(r *registry.Registry) *registry.Dispatcher { return registry.NewDispatcher(r) }

// ProvideHandshake wires the ConnectWithToken flow.
func ProvideHandshake(v *auth.Verifier, r *registry.Registry, d *registry.Dispatcher, sm *transport.Manager) *transport.Handshake {
	return transport.NewHandshake(v, r, d, sm)
}

// ProvideRouter wires the shared post-decode packet router.
func ProvideRouter(hs *transport.Handshake, d *registry.Dispatcher, sm *transport.Manager) *transport.Router {
	return &transport.Router{Handshake: hs, Dispatcher: d, Sessions: sm}
}

func registerTCP(lc fx.Lifecycle, cfg *config.Config, sm *transport.Manager, router *transport.Router, log *slog.Logger) {
	a := &tcpadapter.Adapter{Addr: cfg.TCPAddr, Sessions: sm, Router: router, SendQueueSize: cfg.SendQueueSize, Log: log}
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := a.ListenAndServe(ctx); err != nil {
					log.Error("tcpadapter stopped", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func registerGRPC(lc fx.Lifecycle, cfg *config.Config, sm *transport.Manager, router *transport.Router, log *slog.Logger) {
	srv := &grpctunnel.Server{Sessions: sm, Router: router, SendQueueSize: cfg.SendQueueSize, Log: log}
	grpcServer := grpctunnel.NewGRPCServer(srv)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", cfg.GRPCAddr)
			if err != nil {
				return err
			}
			go func() {
				if err := grpcServer.Serve(ln); err != nil {
					log.Error("grpctunnel stopped", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			grpcServer.GracefulStop()
			return nil
		},
	})
}

func registerWS(lc fx.Lifecycle, cfg *config.Config, sm *transport.Manager, router *transport.Router, log *slog.Logger) {
	a := &wsadapter.Adapter{Sessions: sm, Router: router, SendQueueSize: cfg.SendQueueSize, Log: log}
	mux := chi.NewRouter()
	a.Mount(mux, "/ws")
	srv := &http.Server{Addr: cfg.WSAddr, Handler: mux}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", cfg.WSAddr)
			if err != nil {
				return err
			}
			go func() {
				if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
					log.Error("wsadapter stopped", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

// ProvideBridge builds the External Event Bridge when an AMQP endpoint is
// configured. A deployment that leaves AMQPURL empty runs without a
// bridge -- stages still work, they just can't be reached from outside
// the hub via AMQP.
func ProvideBridge(cfg *config.Config, d *registry.Dispatcher, log *slog.Logger) (*bridge.Bridge, error) {
	if cfg.AMQPURL == "" {
		return nil, nil
	}
	return bridge.New(bridge.Config{
		AMQPURL:       cfg.AMQPURL,
		InboundTopic:  cfg.AMQPInboundTopic,
		OutboundTopic: cfg.AMQPOutboundTopic,
		ConsumerGroup: cfg.AMQPConsumerGroup,
	}, d, log)
}

func registerBridge(lc fx.Lifecycle, cfg *config.Config, b *bridge.Bridge, log *slog.Logger) {
	if b == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := b.Run(ctx, cfg.AMQPInboundTopic); err != nil && ctx.Err() == nil {
					log.Error("bridge stopped", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return b.Close()
		},
	})
}

// Module collects stagehub's fx providers and lifecycle-bound adapters.
var Module = fx.Options(
	fx.Provide(
		ProvideLogger,
		ProvideTracerProvider,
		ProvideSessionManager,
		ProvideRegistry,
		ProvideVerifier,
		ProvideDispatcher,
		ProvideHandshake,
		ProvideRouter,
		ProvideBridge,
	),
	fx.Invoke(registerTCP, registerGRPC, registerWS, registerBridge),
)

// RegisterStageTypes is the extension point a deployment uses to
// register its own stage.UserStage factories (spec.md §4.10) before the
// app starts accepting connections.
type RegisterStageTypes func(*registry.Registry)

// NewApp builds the fx.App wiring every stagehub component per cfg.
// extra lets callers (e.g. serverCmd's --dashboard flag) reach into the
// container with fx.Populate without exposing fx internals themselves.
func NewApp(cfg *config.Config, registerStageTypes RegisterStageTypes, extra ...fx.Option) *fx.App {
	opts := []fx.Option{
		fx.Provide(func() *config.Config { return cfg }),
		Module,
		fx.Invoke(func(r *registry.Registry) {
			if registerStageTypes != nil {
				registerStageTypes(r)
			}
		}),
		fx.Invoke(func(lc fx.Lifecycle, r *registry.Registry) {
			lc.Append(fx.Hook{
				OnStop: func(ctx context.Context) error {
					return r.Shutdown(ctx)
				},
			})
		}),
	}
	opts = append(opts, extra...)
	return fx.New(opts...)
}
