package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(nil, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TCPAddr != ":7001" {
		t.Fatalf("TCPAddr = %q, want :7001", cfg.TCPAddr)
	}
	if cfg.MailboxSize != 1024 {
		t.Fatalf("MailboxSize = %d, want 1024", cfg.MailboxSize)
	}
	if cfg.ReconnectTimeout != 30*time.Second {
		t.Fatalf("ReconnectTimeout = %v, want 30s", cfg.ReconnectTimeout)
	}
}

func TestLoad_FlagOverridesDefault(t *testing.T) {
	cfg, err := Load([]string{"--tcp-addr", ":9999"}, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TCPAddr != ":9999" {
		t.Fatalf("TCPAddr = %q, want :9999", cfg.TCPAddr)
	}
}

func TestLoad_EnvOverridesDefault(t *testing.T) {
	t.Setenv("STAGEHUB_GRPC_ADDR", ":5005")
	cfg, err := Load(nil, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GRPCAddr != ":5005" {
		t.Fatalf("GRPCAddr = %q, want :5005", cfg.GRPCAddr)
	}
}

func TestLoad_ConfigFileOverridesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stagehub.yaml")
	if err := os.WriteFile(path, []byte("ws_addr: \":4004\"\n"), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := Load([]string{"--config", path}, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.WSAddr != ":4004" {
		t.Fatalf("WSAddr = %q, want :4004", cfg.WSAddr)
	}
}

func TestLoad_WatchInvokesOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stagehub.yaml")
	if err := os.WriteFile(path, []byte("log_level: info\n"), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	changed := make(chan *Config, 1)
	_, err := Load([]string{"--config", path}, func(c *Config) {
		select {
		case changed <- c:
		default:
		}
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := os.WriteFile(path, []byte("log_level: debug\n"), 0o600); err != nil {
		t.Fatalf("rewrite config file: %v", err)
	}

	select {
	case c := <-changed:
		if c.LogLevel != "debug" {
			t.Fatalf("LogLevel = %q, want debug", c.LogLevel)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("onChange was not invoked after config file write")
	}
}
