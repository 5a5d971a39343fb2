package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestLogsShowsTrailingLines(t *testing.T) {
	env := setupCLITestEnv(t)
	if err := os.MkdirAll(env.cfg.Paths.LogDir, 0o755); err != nil {
		t.Fatalf("mkdir log dir: %v", err)
	}
	path := filepath.Join(env.cfg.Paths.LogDir, "conveyor.log")
	if err := os.WriteFile(path, []byte("one\ntwo\nthree\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	out := env.mustRun(t, "logs", "-n", "2")
	if out != "two\nthree\n" {
		t.Fatalf("unexpected logs output %q", out)
	}
}

func TestNotifyTest(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := env.run(t, "notify", "test"); err == nil {
		t.Fatal("expected notify test without a topic to fail")
	}

	hits := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits <- r.Header.Get("Title")
	}))
	defer server.Close()

	env.cfg.Notifications.NtfyTopic = server.URL
	writeTestConfig(t, env.configPath, env.cfg)

	out := env.mustRun(t, "notify", "test")
	requireContains(t, out, "Test notification sent")
	if title := <-hits; title != "Conveyor - Test" {
		t.Fatalf("unexpected title %q", title)
	}
}
