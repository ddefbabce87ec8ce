package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"assetcycle/internal/config"
)

const userAgent = "assetcycle/0.1.0"

// Event identifies a notification class.
type Event string

const (
	EventAnalysisSummary  Event = "analysis_summary"
	EventExecutionSummary Event = "execution_summary"
	EventApprovalsPending Event = "approvals_pending"
	EventError            Event = "error"
	EventTest             Event = "test"
)

// Payload carries event-specific values keyed by name.
type Payload map[string]any

// Service defines the notification surface exposed to workflow components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
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
		enabled: map[Event]bool{
			EventAnalysisSummary:  cfg.Notifications.Analysis,
			EventExecutionSummary: cfg.Notifications.Execution,
			EventApprovalsPending: cfg.Notifications.Approvals,
			EventError:            cfg.Notifications.Errors,
			EventTest:             true,
		},
		printer: message.NewPrinter(language.English),
	}
}

type notification struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
	printer  *message.Printer
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if n == nil || !n.enabled[event] {
		return nil
	}
	data, ok := n.format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, data)
}

func (n *ntfyService) format(event Event, payload Payload) (notification, bool) {
	switch event {
	case EventAnalysisSummary:
		return n.analysisSummary(payload), true
	case EventExecutionSummary:
		return n.executionSummary(payload), true
	case EventApprovalsPending:
		count := payload.count("pending")
		if count == 0 {
			return notification{}, false
		}
		msg := n.printer.Sprintf("%d change(s) awaiting approval", count)
		if workbook := payload.text("workbook"); workbook != "" {
			msg += "\nReview: " + workbook
		}
		return notification{
			title:   "assetcycle - Approvals Pending",
			message: msg,
			tags:    []string{"assetcycle", "approval", "pending"},
		}, true
	case EventError:
		var builder strings.Builder
		builder.WriteString("Error")
		if label := payload.text("context"); label != "" {
			builder.WriteString(" during ")
			builder.WriteString(label)
		}
		builder.WriteString(": ")
		if msg := payload.text("error"); msg != "" {
			builder.WriteString(msg)
		} else {
			builder.WriteString("unknown")
		}
		if hint := payload.text("hint"); hint != "" {
			builder.WriteString("\nNext: ")
			builder.WriteString(hint)
		}
		return notification{
			title:    "assetcycle - Error",
			message:  builder.String(),
			tags:     []string{"assetcycle", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return notification{
			title:    "assetcycle - Test",
			message:  "Notification system test",
			tags:     []string{"assetcycle", "test"},
			priority: "low",
		}, true
	default:
		return notification{}, false
	}
}

func (n *ntfyService) analysisSummary(payload Payload) notification {
	campaigns := payload.count("campaigns")
	analyzed := payload.count("analyzed")
	proposed := payload.count("proposed")
	failures := payload.count("campaign_failures")

	lines := []string{}
	switch {
	case proposed > 0:
		lines = append(lines, n.printer.Sprintf("%d campaign(s) analyzed: %d change(s) proposed", analyzed, proposed))
		lines = append(lines, n.printer.Sprintf("Auto: %d  Pending approval: %d", payload.count("auto"), payload.count("pending")))
	case failures == 0:
		lines = append(lines, n.printer.Sprintf("%d campaign(s) analyzed: no action needed", analyzed))
	case analyzed == 0:
		lines = append(lines, n.printer.Sprintf("%d of %d campaign(s) failed; nothing analyzed", failures, campaigns))
	default:
		lines = append(lines, n.printer.Sprintf("%d of %d campaign(s) analyzed: no changes proposed", analyzed, campaigns))
	}
	if executed, failed := payload.count("executed"), payload.count("failed"); executed+failed > 0 {
		lines = append(lines, n.printer.Sprintf("Executed: %d  Failed: %d", executed, failed))
	}
	if partial := payload.count("partial"); partial > 0 {
		lines = append(lines, n.printer.Sprintf("PARTIAL REPLACE: %d ad(s) hold both old and new asset", partial))
	}
	if failures > 0 {
		lines = append(lines, n.printer.Sprintf("Campaign failures: %d", failures))
	}

	data := notification{
		title:   "assetcycle - Analysis Complete",
		message: strings.Join(lines, "\n"),
		tags:    []string{"assetcycle", "analysis", "completed"},
	}
	if failures > 0 || payload.count("partial") > 0 {
		data.title = "assetcycle - Analysis Complete (with errors)"
		data.priority = "high"
	}
	return data
}

func (n *ntfyService) executionSummary(payload Payload) notification {
	executed := payload.count("executed")
	failed := payload.count("failed")
	partial := payload.count("partial")
	duration := payload.elapsed("duration").Round(time.Second)
	if duration < 0 {
		duration = 0
	}

	var lines []string
	if executed+failed+partial == 0 && !payload.flag("interrupted") {
		lines = append(lines, "No executable changes: no action needed")
	} else {
		lines = append(lines, n.printer.Sprintf("Executed: %d  Failed: %d in %s", executed, failed, duration.String()))
	}
	if partial > 0 {
		lines = append(lines, n.printer.Sprintf("PARTIAL REPLACE: %d ad(s) hold both old and new asset", partial))
	}
	if payload.flag("interrupted") {
		lines = append(lines, n.printer.Sprintf("Budget exhausted: %d change(s) left for the next sweep", payload.count("remaining")))
	}

	data := notification{
		title:   "assetcycle - Execution Complete",
		message: strings.Join(lines, "\n"),
		tags:    []string{"assetcycle", "execute", "completed"},
	}
	if failed > 0 || partial > 0 {
		data.title = "assetcycle - Execution Complete (with errors)"
		data.priority = "high"
	}
	return data
}

func (n *ntfyService) send(ctx context.Context, data notification) error {
	if n.client == nil {
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

func (p Payload) text(key string) string {
	switch v := p[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return v.String()
	case error:
		return strings.TrimSpace(v.Error())
	default:
		return ""
	}
}

func (p Payload) count(key string) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 0
	}
}

func (p Payload) flag(key string) bool {
	v, _ := p[key].(bool)
	return v
}

func (p Payload) elapsed(key string) time.Duration {
	v, _ := p[key].(time.Duration)
	return v
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
