package infra

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestNewLogger_WritesJSONToConsoleAndFile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Dir = t.TempDir()
	cfg.Logging.Level = "warn"

	var console bytes.Buffer
	logger := newLogger(cfg, &console)
	logger.Info("dropped")
	logger.Warn("transition rejected", slog.String("op", "claim"))

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(console.Bytes()), &rec); err != nil {
		t.Fatalf("console output is not one JSON record: %q", console.String())
	}
	if rec["msg"] != "transition rejected" || rec["op"] != "claim" || rec["app"] != "option-go" {
		t.Errorf("unexpected record %v", rec)
	}

	data, err := os.ReadFile(filepath.Join(cfg.Logging.Dir, LogFile))
	if err != nil {
		t.Fatalf("log file: %v", err)
	}
	if !bytes.Contains(data, []byte("transition rejected")) {
		t.Error("log file missing record")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
	}
	for name, want := range cases {
		if got := ParseLevel(name); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", name, got, want)
		}
	}
}
