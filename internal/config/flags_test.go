package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestConsoleFlags_OverrideEnvironment(t *testing.T) {
	t.Setenv("ORGANIZATION_ID", "org-env")
	t.Setenv("POLL_INTERVAL", "20s")
	cfg := Load()

	fs := pflag.NewFlagSet("console", pflag.ContinueOnError)
	cfg.ConsoleFlags(fs)
	err := fs.Parse([]string{"-o", "org-flag", "--api-url", "http://api.test/api/", "--reconnect=false", "--log-level", "debug"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cfg.Normalize()

	if cfg.OrganizationID != "org-flag" {
		t.Errorf("Expected flag to win, got %q", cfg.OrganizationID)
	}
	if cfg.PollInterval != 20*time.Second {
		t.Errorf("Expected env value to remain the default, got %v", cfg.PollInterval)
	}
	if cfg.APIURL != "http://api.test/api" {
		t.Errorf("Expected trailing slash trimmed, got %q", cfg.APIURL)
	}
	if cfg.Reconnect {
		t.Error("Expected reconnect disabled")
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("Expected debug level, got %v", cfg.LogLevel)
	}
}

func TestServerFlags_InvalidLogLevel(t *testing.T) {
	cfg := Load()
	fs := pflag.NewFlagSet("server", pflag.ContinueOnError)
	cfg.ServerFlags(fs)

	if err := fs.Parse([]string{"--log-level", "loud"}); err == nil {
		t.Error("Expected an error for an unknown log level")
	}
}

func TestServerFlags_Origins(t *testing.T) {
	cfg := Load()
	fs := pflag.NewFlagSet("server", pflag.ContinueOnError)
	cfg.ServerFlags(fs)

	if err := fs.Parse([]string{"--allowed-origins", "http://a.test, http://b.test", "--port", "9000"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cfg.Normalize()

	if cfg.ServerPort != "9000" {
		t.Errorf("Expected port 9000, got %s", cfg.ServerPort)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "http://b.test" {
		t.Errorf("Unexpected origins %q", cfg.AllowedOrigins)
	}
}
