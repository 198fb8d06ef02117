// Package config loads stagehub's runtime configuration from flags,
// environment variables, and an optional config file. When a config file
// and an onChange callback are both given, the file is watched and every
// change hands the callback the full reloaded Config; the package does
// not restrict which settings change, and it never reloads handler code,
// which remains a Non-goal (spec.md §5).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is stagehub's full runtime configuration.
type Config struct {
	LogLevel string `mapstructure:"log_level"`

	TCPAddr  string `mapstructure:"tcp_addr"`
	WSAddr   string `mapstructure:"ws_addr"`
	GRPCAddr string `mapstructure:"grpc_addr"`

	MailboxSize      int           `mapstructure:"mailbox_size"`
	HighWatermark    int           `mapstructure:"high_watermark"`
	DrainLimit       int           `mapstructure:"drain_limit"`
	ReconnectTimeout time.Duration `mapstructure:"reconnect_timeout"`
	SendQueueSize    int           `mapstructure:"send_queue_size"`
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat_timeout"`

	JWTSecret string `mapstructure:"jwt_secret"`

	AMQPURL           string `mapstructure:"amqp_url"`
	AMQPInboundTopic  string `mapstructure:"amqp_inbound_topic"`
	AMQPOutboundTopic string `mapstructure:"amqp_outbound_topic"`
	AMQPConsumerGroup string `mapstructure:"amqp_consumer_group"`

	OTELEndpoint string `mapstructure:"otel_endpoint"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("tcp_addr", ":7001")
	v.SetDefault("ws_addr", ":7002")
	v.SetDefault("grpc_addr", ":7003")
	v.SetDefault("mailbox_size", 1024)
	v.SetDefault("high_watermark", 10000)
	v.SetDefault("drain_limit", 256)
	v.SetDefault("reconnect_timeout", "30s")
	v.SetDefault("send_queue_size", 1024)
	v.SetDefault("heartbeat_timeout", "45s")
	v.SetDefault("amqp_inbound_topic", "stagehub.inbound")
	v.SetDefault("amqp_outbound_topic", "stagehub.outbound")
	v.SetDefault("amqp_consumer_group", "stagehub")
}

// Load reads configuration from (in ascending priority) defaults, an
// optional config file, environment variables prefixed STAGEHUB_, and
// command-line flags. onChange, if non-nil, is invoked with the reloaded
// Config whenever the config file changes on disk.
func Load(args []string, onChange func(*Config)) (*Config, error) {
	v := viper.New()
	defaults(v)

	flags := pflag.NewFlagSet("stagehub", pflag.ContinueOnError)
	configFile := flags.String("config", "", "path to a YAML/JSON config file")
	flags.String("log-level", "", "log level (debug|info|warn|error)")
	flags.String("tcp-addr", "", "TCP listen address")
	flags.String("ws-addr", "", "WebSocket listen address")
	flags.String("grpc-addr", "", "gRPC tunnel listen address")
	flags.Bool("dashboard", false, "render a live terminal stage-stats dashboard (read by the server command)")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	_ = v.BindPFlags(flags)

	v.SetEnvPrefix("stagehub")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if *configFile != "" {
		v.SetConfigFile(*configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", *configFile, err)
		}
		if onChange != nil {
			v.WatchConfig()
			v.OnConfigChange(func(fsnotify.Event) {
				cfg, err := unmarshal(v)
				if err != nil {
					return
				}
				onChange(cfg)
			})
		}
	}

	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}
