package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"conveyor/internal/config"
	"conveyor/internal/engine"
	"conveyor/internal/logging"
	"conveyor/internal/notifications"
	"conveyor/internal/queue"
)

type captured struct {
	title    string
	tags     string
	priority string
	body     string
}

func newNtfyServer(t *testing.T, status int) (*httptest.Server, chan captured) {
	t.Helper()
	got := make(chan captured, 8)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()
		got <- captured{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server, got
}

func ntfyConfig(url string) *config.Config {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = url
	cfg.Notifications.RequestTimeout = 5
	return &cfg
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyTransferFinished(context.Background(), notifications.Outcome{TransferID: 1}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
	if err := notifications.NewService(nil).TestNotification(context.Background()); err != nil {
		t.Fatalf("expected nil config to yield noop, got %v", err)
	}
}

func TestNtfyServiceFormatsOutcomes(t *testing.T) {
	tests := []struct {
		name           string
		outcome        notifications.Outcome
		expectTitle    string
		expectBody     []string
		expectTags     string
		expectPriority string
	}{
		{
			name: "failed put",
			outcome: notifications.Outcome{
				TransferID: 7, Type: "PUT", Status: "ERROR",
				Source: "/data/run1", Target: "/tempZone/home/rods",
				Files: 3, Errors: 2, Duration: 1500 * time.Millisecond,
				Message: "2 file(s) failed",
			},
			expectTitle:    "Conveyor - Transfer Failed",
			expectBody:     []string{"PUT #7 error", "From: /data/run1", "3 transferred, 0 skipped, 2 failed in 2s", "2 file(s) failed"},
			expectTags:     "conveyor,put,error",
			expectPriority: "high",
		},
		{
			name:        "warning get",
			outcome:     notifications.Outcome{TransferID: 3, Type: "GET", Status: "WARNING"},
			expectTitle: "Conveyor - Transfer Finished With Warnings",
			expectBody:  []string{"GET #3 warning", "in 0s"},
			expectTags:  "conveyor,get,warning",
		},
		{
			name:        "completed replicate",
			outcome:     notifications.Outcome{TransferID: 9, Type: "REPLICATE", Status: "OK", Files: 1},
			expectTitle: "Conveyor - Transfer Complete",
			expectBody:  []string{"REPLICATE #9 ok"},
			expectTags:  "conveyor,replicate,completed",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server, got := newNtfyServer(t, http.StatusOK)
			svc := notifications.NewService(ntfyConfig(server.URL))
			if err := svc.NotifyTransferFinished(context.Background(), tc.outcome); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}
			c := <-got
			if c.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, c.title)
			}
			for _, want := range tc.expectBody {
				if !strings.Contains(c.body, want) {
					t.Fatalf("expected body %q to contain %q", c.body, want)
				}
			}
			if c.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, c.tags)
			}
			if c.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, c.priority)
			}
		})
	}
}

func TestNtfyServiceReportsServerErrors(t *testing.T) {
	server, _ := newNtfyServer(t, http.StatusForbidden)
	svc := notifications.NewService(ntfyConfig(server.URL))
	err := svc.TestNotification(context.Background())
	if err == nil || !strings.Contains(err.Error(), "ntfy returned 403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}

func TestDispatcherSkipsSuccessUnlessRequested(t *testing.T) {
	server, got := newNtfyServer(t, http.StatusOK)
	d := notifications.NewDispatcher(notifications.NewService(ntfyConfig(server.URL)), false, logging.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	listener := d.Listener()
	listener.TransferFinished(engine.Finished{
		Transfer: queue.Transfer{ID: 1, Type: queue.TypePut, Status: queue.StatusOK},
	})
	listener.TransferFinished(engine.Finished{
		Transfer: queue.Transfer{ID: 2, Type: queue.TypeCopy, Status: queue.StatusError, RemotePath: "/z/a", LocalPath: "/z/b"},
		Attempt:  queue.Attempt{GlobalException: "grid unreachable"},
	})

	select {
	case c := <-got:
		if !strings.Contains(c.body, "COPY #2 error") || !strings.Contains(c.body, "grid unreachable") {
			t.Fatalf("unexpected notification body %q", c.body)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("notification not delivered")
	}
	select {
	case c := <-got:
		t.Fatalf("unexpected extra notification %+v", c)
	case <-time.After(100 * time.Millisecond):
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
}

func TestOutcomeFromMapsEnds(t *testing.T) {
	o := notifications.OutcomeFrom(engine.Finished{
		Transfer: queue.Transfer{ID: 4, Type: queue.TypeGet, Status: queue.StatusOK, RemotePath: "/z/r", LocalPath: "/l"},
		Attempt:  queue.Attempt{FilesTransferred: 5, FilesSkipped: 1},
		Duration: time.Second,
	})
	if o.Source != "/z/r" || o.Target != "/l" || o.Files != 5 || o.Skipped != 1 {
		t.Fatalf("unexpected outcome %+v", o)
	}
}
