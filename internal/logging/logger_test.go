package logging_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"conveyor/internal/config"
	"conveyor/internal/logging"
	"conveyor/internal/services"
)

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("hello conveyor")

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "conveyor.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "hello conveyor") {
		t.Fatalf("expected message in log file, got %q", content)
	}
}

func TestConsoleLoggerFormatsComponentAndFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	noColor := false
	logger, err := logging.New(logging.Options{
		Format:      "console",
		Level:       "info",
		OutputPaths: []string{logPath},
		Color:       &noColor,
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.NewComponentLogger(logger, "engine").Info("transfer started",
		logging.Int64(logging.FieldTransferID, 7),
		logging.String("local_path", "/data/my file"),
	)
	logger.Debug("suppressed")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	if !strings.Contains(line, "INFO engine: transfer started") {
		t.Fatalf("expected component prefix, got %q", line)
	}
	if !strings.Contains(line, "transfer_id=7") || !strings.Contains(line, `local_path="/data/my file"`) {
		t.Fatalf("expected formatted fields, got %q", line)
	}
	if strings.Contains(line, "suppressed") || strings.Contains(line, "\x1b[") {
		t.Fatalf("unexpected content %q", line)
	}
	if strings.Contains(line, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", line)
	}
}

func TestJSONLoggerIncludesContextFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithTransferID(context.Background(), 42)
	ctx = services.WithRequestID(ctx, "req-1")
	logging.WarnWithContext(logging.WithContext(ctx, logger), "file failed", "file_failed")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(content, &entry); err != nil {
		t.Fatalf("decode log line %q: %v", content, err)
	}
	if entry["level"] != "warn" || entry["msg"] != "file failed" {
		t.Fatalf("unexpected entry %v", entry)
	}
	if entry[logging.FieldTransferID] != float64(42) || entry[logging.FieldCorrelationID] != "req-1" {
		t.Fatalf("expected context fields, got %v", entry)
	}
	if entry[logging.FieldEventType] != "file_failed" || entry[logging.FieldErrorHint] == nil {
		t.Fatalf("expected event type and hint, got %v", entry)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestPruneLogs(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "conveyor-old.log")
	current := filepath.Join(dir, "conveyor.log")
	other := filepath.Join(dir, "notes.txt")
	for _, p := range []string{old, current, other} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}
	stale := time.Now().AddDate(0, 0, -30)
	for _, p := range []string{old, current, other} {
		if err := os.Chtimes(p, stale, stale); err != nil {
			t.Fatalf("chtimes %s: %v", p, err)
		}
	}

	removed := logging.PruneLogs(logging.NewNop(), dir, "conveyor*.log", 7, current)
	if removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("expected old log removed, stat err=%v", err)
	}
	for _, p := range []string{current, other} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("expected %s kept: %v", p, err)
		}
	}
	if logging.PruneLogs(nil, dir, "*", 0, "") != 0 {
		t.Fatal("expected zero retention to disable pruning")
	}
}
