package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"assetcycle/internal/config"
	"assetcycle/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventAnalysisSummary, notifications.Payload{"proposed": 3}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

type captured struct {
	calls    int
	title    string
	tags     string
	priority string
	body     string
}

func newCaptureServer(t *testing.T) (*httptest.Server, *captured) {
	t.Helper()
	got := &captured{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		got.calls++
		got.title = r.Header.Get("Title")
		got.tags = r.Header.Get("Tags")
		got.priority = r.Header.Get("Priority")
		got.body = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server, got
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:          "analysis with nothing to do",
			event:         notifications.EventAnalysisSummary,
			payload:       notifications.Payload{"campaigns": 2, "analyzed": 2},
			expectTitle:   "assetcycle - Analysis Complete",
			expectMessage: "2 campaign(s) analyzed: no action needed",
			expectTags:    "assetcycle,analysis,completed",
		},
		{
			name:  "analysis where every campaign failed",
			event: notifications.EventAnalysisSummary,
			payload: notifications.Payload{
				"campaigns":         2,
				"analyzed":          0,
				"campaign_failures": 2,
				"proposed":          0,
			},
			expectTitle:    "assetcycle - Analysis Complete (with errors)",
			expectMessage:  "2 of 2 campaign(s) failed; nothing analyzed\nCampaign failures: 2",
			expectTags:     "assetcycle,analysis,completed",
			expectPriority: "high",
		},
		{
			name:  "analysis with one campaign failed",
			event: notifications.EventAnalysisSummary,
			payload: notifications.Payload{
				"campaigns":         3,
				"analyzed":          2,
				"campaign_failures": 1,
			},
			expectTitle:    "assetcycle - Analysis Complete (with errors)",
			expectMessage:  "2 of 3 campaign(s) analyzed: no changes proposed\nCampaign failures: 1",
			expectTags:     "assetcycle,analysis,completed",
			expectPriority: "high",
		},
		{
			name:  "analysis with proposals",
			event: notifications.EventAnalysisSummary,
			payload: notifications.Payload{
				"campaigns": 1,
				"analyzed":  1,
				"proposed":  3,
				"auto":      2,
				"pending":   1,
				"executed":  2,
			},
			expectTitle:   "assetcycle - Analysis Complete",
			expectMessage: "1 campaign(s) analyzed: 3 change(s) proposed\nAuto: 2  Pending approval: 1\nExecuted: 2  Failed: 0",
			expectTags:    "assetcycle,analysis,completed",
		},
		{
			name:  "execution with partial replace",
			event: notifications.EventExecutionSummary,
			payload: notifications.Payload{
				"executed": 4,
				"failed":   1,
				"partial":  1,
				"duration": 90 * time.Second,
			},
			expectTitle:    "assetcycle - Execution Complete (with errors)",
			expectMessage:  "Executed: 4  Failed: 1 in 1m30s\nPARTIAL REPLACE: 1 ad(s) hold both old and new asset",
			expectTags:     "assetcycle,execute,completed",
			expectPriority: "high",
		},
		{
			name:  "interrupted execution",
			event: notifications.EventExecutionSummary,
			payload: notifications.Payload{
				"executed":    1,
				"interrupted": true,
				"remaining":   1500,
			},
			expectTitle:   "assetcycle - Execution Complete",
			expectMessage: "Executed: 1  Failed: 0 in 0s\nBudget exhausted: 1,500 change(s) left for the next sweep",
			expectTags:    "assetcycle,execute,completed",
		},
		{
			name:          "approvals",
			event:         notifications.EventApprovalsPending,
			payload:       notifications.Payload{"pending": 2, "workbook": "/tmp/review.xlsx"},
			expectTitle:   "assetcycle - Approvals Pending",
			expectMessage: "2 change(s) awaiting approval\nReview: /tmp/review.xlsx",
			expectTags:    "assetcycle,approval,pending",
		},
		{
			name:  "error",
			event: notifications.EventError,
			payload: notifications.Payload{
				"context": "analysis",
				"error":   "no campaigns configured",
				"hint":    "fix the configuration file and rerun",
			},
			expectTitle:    "assetcycle - Error",
			expectMessage:  "Error during analysis: no campaigns configured\nNext: fix the configuration file and rerun",
			expectTags:     "assetcycle,error,alert",
			expectPriority: "high",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server, got := newCaptureServer(t)

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5

			svc := notifications.NewService(&cfg)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if got.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, got.title)
			}
			if got.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, got.body)
			}
			if got.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, got.tags)
			}
			if got.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, got.priority)
			}
		})
	}
}

func TestNtfyServiceHonoursEventToggles(t *testing.T) {
	server, got := newCaptureServer(t)

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Analysis = false
	cfg.Notifications.Execution = false

	svc := notifications.NewService(&cfg)
	for _, event := range []notifications.Event{notifications.EventAnalysisSummary, notifications.EventExecutionSummary} {
		if err := svc.Publish(context.Background(), event, notifications.Payload{"proposed": 1}); err != nil {
			t.Fatalf("expected no error for muted event %s, got %v", event, err)
		}
	}
	if err := svc.Publish(context.Background(), notifications.EventApprovalsPending, notifications.Payload{}); err != nil {
		t.Fatalf("empty approvals publish failed: %v", err)
	}
	if got.calls != 0 {
		t.Fatalf("expected no requests, got %d", got.calls)
	}

	if err := svc.Publish(context.Background(), notifications.EventTest, nil); err != nil {
		t.Fatalf("test publish failed: %v", err)
	}
	if got.calls != 1 || got.priority != "low" {
		t.Fatalf("expected test notification, got %+v", got)
	}
}

func TestNtfyServiceReportsServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	err := notifications.NewService(&cfg).Publish(context.Background(), notifications.EventTest, nil)
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected status in error, got %v", err)
	}
}
