package infra

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"option_go/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("file values over defaults", func(t *testing.T) {
		path := writeConfig(t, `
engine:
  principal: ESCROW
oracle:
  principal: ORACLE
  window_seconds: 3600
  feed_url: ws://localhost:9000/prices
  instances: [opt-b]
`)
		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig: %v", err)
		}
		if cfg.Engine.Principal != "ESCROW" {
			t.Errorf("engine principal = %q", cfg.Engine.Principal)
		}
		if cfg.Oracle.WindowSeconds != 3600 {
			t.Errorf("window = %d", cfg.Oracle.WindowSeconds)
		}
		if cfg.Oracle.Decimals != 6 || cfg.Keeper.PollIntervalSec != 30 {
			t.Error("defaults not kept for unset fields")
		}
	})

	t.Run("env overrides", func(t *testing.T) {
		t.Setenv("OPTION_DB_PATH", "/tmp/x.db")
		t.Setenv("OPTION_ENGINE_PRINCIPAL", "E2")
		t.Setenv("OPTION_LOG_LEVEL", "DEBUG")
		t.Setenv("OPTION_ORACLE_WINDOW", "60")
		cfg, err := LoadConfig(writeConfig(t, "app:\n  name: test\n"))
		if err != nil {
			t.Fatalf("LoadConfig: %v", err)
		}
		if cfg.Storage.DBPath != "/tmp/x.db" || cfg.Engine.Principal != "E2" {
			t.Errorf("env not applied: %+v", cfg)
		}
		if cfg.Logging.Level != "debug" || cfg.Oracle.WindowSeconds != 60 {
			t.Errorf("level=%q window=%d", cfg.Logging.Level, cfg.Oracle.WindowSeconds)
		}
	})

	t.Run("bad env window", func(t *testing.T) {
		t.Setenv("OPTION_ORACLE_WINDOW", "soon")
		_, err := LoadConfig(writeConfig(t, "app:\n  name: test\n"))
		var ce *domain.ConfigError
		if !errors.As(err, &ce) {
			t.Fatalf("expected ConfigError, got %v", err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		if !errors.Is(err, domain.ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})

	t.Run("no file", func(t *testing.T) {
		t.Setenv("OPTION_ORACLE_PRINCIPAL", "O")
		cfg, err := LoadConfig("")
		if err != nil {
			t.Fatalf("LoadConfig: %v", err)
		}
		if cfg.Engine.Principal != "ENGINE" || cfg.Oracle.Principal != "O" {
			t.Errorf("unexpected config %+v", cfg)
		}
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, "engine: [unclosed\n"))
		if err == nil {
			t.Error("expected parse error")
		}
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"valid default", func(*Config) {}, ""},
		{"empty engine", func(c *Config) { c.Engine.Principal = "" }, "Config.Engine.Principal"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "Config.Logging.Level"},
		{"negative window", func(c *Config) { c.Oracle.WindowSeconds = -1 }, "Config.Oracle.WindowSeconds"},
		{"http feed", func(c *Config) { c.Oracle.FeedURL = "http://example.com" }, "oracle.feed_url"},
		{"ws poll url", func(c *Config) { c.Oracle.PollURL = "ws://example.com" }, "oracle.poll_url"},
		{"instances without oracle", func(c *Config) { c.Oracle.Instances = []string{"opt-1"} }, "oracle.principal"},
		{"oracle is engine", func(c *Config) { c.Oracle.Principal = c.Engine.Principal }, "oracle.principal"},
		{"keeper without principal", func(c *Config) {
			c.Keeper.Enabled = true
			c.Keeper.Principal = ""
		}, "keeper.principal"},
		{"zero poll", func(c *Config) { c.Keeper.PollIntervalSec = 0 }, "Config.Keeper.PollIntervalSec"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.field == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var ce *domain.ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
			if ce.Field != tt.field {
				t.Errorf("field = %q, want %q", ce.Field, tt.field)
			}
		})
	}
}
