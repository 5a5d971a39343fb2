package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"conveyor/internal/config"
)

const userAgent = "conveyor/0.1.0"

// Outcome is the summary of one finished transfer.
type Outcome struct {
	TransferID int64
	Type       string
	Status     string
	Source     string
	Target     string
	Files      int
	Skipped    int
	Errors     int
	Duration   time.Duration
	Message    string
}

// Service defines the notification surface used by the daemon and CLI.
type Service interface {
	NotifyTransferFinished(ctx context.Context, outcome Outcome) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyTransferFinished(ctx context.Context, o Outcome) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s #%d %s", o.Type, o.TransferID, strings.ToLower(o.Status))
	if o.Source != "" {
		fmt.Fprintf(&b, "\nFrom: %s", o.Source)
	}
	if o.Target != "" {
		fmt.Fprintf(&b, "\nTo: %s", o.Target)
	}
	fmt.Fprintf(&b, "\nFiles: %d transferred, %d skipped, %d failed in %s",
		o.Files, o.Skipped, o.Errors, roundDuration(o.Duration))
	if msg := strings.TrimSpace(o.Message); msg != "" {
		fmt.Fprintf(&b, "\n%s", msg)
	}

	data := payload{
		message: b.String(),
		tags:    []string{"conveyor", strings.ToLower(o.Type)},
	}
	switch o.Status {
	case "ERROR":
		data.title = "Conveyor - Transfer Failed"
		data.tags = append(data.tags, "error")
		data.priority = "high"
	case "WARNING":
		data.title = "Conveyor - Transfer Finished With Warnings"
		data.tags = append(data.tags, "warning")
	case "CANCELLED":
		data.title = "Conveyor - Transfer Cancelled"
		data.tags = append(data.tags, "cancelled")
	default:
		data.title = "Conveyor - Transfer Complete"
		data.tags = append(data.tags, "completed")
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "Conveyor - Test",
		message:  "Notification system test",
		tags:     []string{"conveyor", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func roundDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d <= 0 {
		return "0s"
	}
	return d.String()
}

type noopService struct{}

func (noopService) NotifyTransferFinished(context.Context, Outcome) error { return nil }
func (noopService) TestNotification(context.Context) error                { return nil }
