package workflow_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gofrs/flock"

	"assetcycle/internal/changes"
	"assetcycle/internal/config"
	"assetcycle/internal/creative"
	"assetcycle/internal/logging"
	"assetcycle/internal/notifications"
	"assetcycle/internal/platform"
	"assetcycle/internal/services"
	"assetcycle/internal/testsupport"
	"assetcycle/internal/workflow"
)

const adID = "customers/1234567890/adGroupAds/7~9"

type recordingNotifier struct {
	mu       sync.Mutex
	events   []notifications.Event
	payloads []notifications.Payload
}

func (n *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	n.payloads = append(n.payloads, payload)
	return nil
}

func (n *recordingNotifier) count(event notifications.Event) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, e := range n.events {
		if e == event {
			total++
		}
	}
	return total
}

type harness struct {
	cfg      *config.Config
	stores   testsupport.Stores
	fake     *testsupport.FakePlatform
	notifier *recordingNotifier
	runner   *workflow.Runner
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	stores := testsupport.MustOpenStores(t, cfg)
	fake := testsupport.NewFakePlatform()
	notifier := &recordingNotifier{}
	runner, err := workflow.NewRunnerWithDependencies(cfg, workflow.Dependencies{
		Platform: fake,
		Registry: stores.Registry,
		Changes:  stores.Changes,
		Notifier: notifier,
		Logger:   logging.NewNop(),
	})
	if err != nil {
		t.Fatalf("NewRunnerWithDependencies: %v", err)
	}
	return &harness{cfg: cfg, stores: stores, fake: fake, notifier: notifier, runner: runner}
}

func (h *harness) seedVideos(t *testing.T, campaignID, adGroupID, ad string, ids ...string) {
	t.Helper()
	refs := make([]creative.Ref, 0, len(ids))
	for _, id := range ids {
		testsupport.SeedActiveAsset(t, h.stores.Registry, id, creative.TypeVideo, creative.LabelLow, 5000)
		refs = append(refs, creative.Ref{Asset: id})
	}
	h.fake.AddAd(platform.AdCollection{CampaignID: campaignID, AdGroupID: adGroupID, AdID: ad, Videos: refs})
}

func videoRow(campaignID, assetID string, label creative.Label, impressions int64) platform.PerformanceRow {
	return platform.PerformanceRow{
		CampaignID:  campaignID,
		AdGroupID:   "7",
		AdID:        adID,
		AssetID:     assetID,
		AssetType:   creative.TypeVideo,
		Label:       label,
		Impressions: impressions,
	}
}

func removeChange(assetID string) *changes.Change {
	return &changes.Change{
		CampaignID:     "42",
		AdGroupID:      "7",
		AdID:           adID,
		AssetType:      creative.TypeVideo,
		Action:         changes.ActionRemove,
		CurrentAssetID: assetID,
		ApprovalMode:   changes.ApprovalAuto,
		Reason:         "LOW label",
		Label:          creative.LabelLow,
		Impressions:    5000,
	}
}

func TestAnalyzeExecutesAutoAndQueuesManualChanges(t *testing.T) {
	h := newHarness(t, testsupport.WithRotation(func(r *config.Rotation) { r.AutoAddReplacement = false }))
	ctx := context.Background()
	h.seedVideos(t, "42", "7", adID, "v-1", "v-2")
	testsupport.SeedPausedAsset(t, h.stores.Registry, "v-best", creative.TypeVideo, creative.LabelBest, 2)
	h.fake.SetPerformance("42",
		videoRow("42", "v-1", creative.LabelLow, 15000),
		videoRow("42", "v-2", creative.LabelGood, 3000),
	)

	summary, err := h.runner.Analyze(ctx)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if summary.RunID == "" || summary.Proposed != 2 || summary.Auto != 1 || summary.Pending != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.Execution.Executed != 1 || summary.Execution.Failed != 0 {
		t.Fatalf("AUTO change should execute immediately: %+v", summary.Execution)
	}
	if got := h.fake.Collection(adID).Videos; len(got) != 1 || got[0].Asset != "v-2" {
		t.Fatalf("expected v-1 removed, got %v", got)
	}

	pending, err := h.stores.Changes.ListByStatus(ctx, changes.StatusPending)
	if err != nil || len(pending) != 1 {
		t.Fatalf("expected one pending change: %v %v", pending, err)
	}
	if pending[0].Action != changes.ActionReplace || pending[0].NewAssetID() != "v-best" || pending[0].RunID != summary.RunID {
		t.Fatalf("unexpected pending change: %+v", pending[0])
	}
	if h.notifier.count(notifications.EventAnalysisSummary) != 1 || h.notifier.count(notifications.EventApprovalsPending) != 1 {
		t.Fatalf("unexpected notifications: %v", h.notifier.events)
	}

	second, err := h.runner.Analyze(ctx)
	if err != nil {
		t.Fatalf("second Analyze: %v", err)
	}
	if !second.NoActionNeeded() || second.Duplicates != 1 {
		t.Fatalf("second run should only find the open change: %+v", second)
	}
	if second.RunID == summary.RunID {
		t.Fatal("each run needs its own id")
	}
}

func TestAnalyzeIsolatesCampaignFailures(t *testing.T) {
	h := newHarness(t, testsupport.WithCampaigns("42", "43"))
	h.seedVideos(t, "42", "7", adID, "v-1", "v-2")
	h.fake.SetPerformance("42", videoRow("42", "v-1", creative.LabelLow, 15000))
	h.fake.FailQuery("43", &platform.Error{Op: "search", StatusCode: 403, Err: platform.ErrRejected})

	summary, err := h.runner.Analyze(context.Background())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(summary.Failures) != 1 || summary.Failures[0].CampaignID != "43" {
		t.Fatalf("expected campaign 43 failure, got %+v", summary.Failures)
	}
	if summary.Analyzed != 1 || summary.Proposed != 1 {
		t.Fatalf("campaign 42 must still be processed: %+v", summary)
	}
	if h.notifier.count(notifications.EventError) != 1 {
		t.Fatalf("expected error notification, got %v", h.notifier.events)
	}
}

func TestAnalyzeAbortsWithoutCampaigns(t *testing.T) {
	h := newHarness(t, testsupport.WithCampaigns())

	_, err := h.runner.Analyze(context.Background())
	if !errors.Is(err, services.ErrConfiguration) || !errors.Is(err, config.ErrNoCampaigns) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if h.notifier.count(notifications.EventError) != 1 || h.notifier.count(notifications.EventAnalysisSummary) != 0 {
		t.Fatalf("expected only an error notification, got %v", h.notifier.events)
	}
}

func TestRunLockExcludesConcurrentRuns(t *testing.T) {
	h := newHarness(t)
	if err := h.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	lock := flock.New(h.cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil || !locked {
		t.Fatalf("TryLock: %v %v", locked, err)
	}
	defer func() { _ = lock.Unlock() }()

	if _, err := h.runner.Execute(context.Background()); !errors.Is(err, workflow.ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}
}

func TestExecuteResumesAfterInterruption(t *testing.T) {
	h := newHarness(t)
	h.seedVideos(t, "42", "7", adID, "v-1", "v-2", "v-3", "v-4", "v-5")
	ids := make([]int64, 0, 4)
	for _, asset := range []string{"v-1", "v-2", "v-3", "v-4"} {
		ids = append(ids, testsupport.MustAppend(t, h.stores.Changes, removeChange(asset)).ID)
	}

	// Each REMOVE reads the ad twice (plan, verify); the budget runs out
	// during the third change.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.fake.AfterRead = func(_ string, reads int) {
		if reads == 6 {
			cancel()
		}
	}

	first, err := h.runner.Execute(ctx)
	if err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	if !first.Interrupted || first.Executed != 3 || first.Remaining != 1 {
		t.Fatalf("unexpected first sweep: %+v", first)
	}
	for i, id := range ids {
		got, _ := h.stores.Changes.Get(context.Background(), id)
		want := changes.StatusExecuted
		if i == 3 {
			want = changes.StatusPending
		}
		if got.Status != want {
			t.Fatalf("change %d: got %s want %s", id, got.Status, want)
		}
	}

	h.fake.AfterRead = nil
	mutationsBefore := h.fake.Mutations(adID)
	second, err := h.runner.Execute(context.Background())
	if err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if second.Attempted != 1 || second.Executed != 1 || second.Interrupted {
		t.Fatalf("second sweep must act only on the open change: %+v", second)
	}
	if h.fake.Mutations(adID) != mutationsBefore+1 {
		t.Fatalf("expected exactly one new mutation, got %d", h.fake.Mutations(adID)-mutationsBefore)
	}
	if got := h.fake.Collection(adID).Videos; len(got) != 1 || got[0].Asset != "v-5" {
		t.Fatalf("unexpected final collection %v", got)
	}
}

func TestExecuteCollectsFailuresWithoutAborting(t *testing.T) {
	h := newHarness(t, testsupport.WithLimits("VIDEO", 2, 20))
	h.cfg.Metrics.TextfilePath = filepath.Join(testsupport.BaseDir(h.cfg), "metrics", "assetcycle.prom")
	h.seedVideos(t, "42", "7", adID, "v-1", "v-2", "v-3")
	blocked := testsupport.MustAppend(t, h.stores.Changes, removeChange("v-1"))
	atMinimum := testsupport.MustAppend(t, h.stores.Changes, removeChange("v-2"))

	summary, err := h.runner.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if summary.Executed != 1 || summary.Failed != 1 || len(summary.Errors) != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.Errors[0].ChangeID != atMinimum.ID || summary.Errors[0].Outcome != changes.OutcomeLimitExceeded {
		t.Fatalf("unexpected error entry: %+v", summary.Errors[0])
	}
	got, _ := h.stores.Changes.Get(context.Background(), blocked.ID)
	if got.Status != changes.StatusExecuted {
		t.Fatalf("first change should have executed, got %s", got.Status)
	}
	if _, err := os.Stat(h.cfg.Metrics.TextfilePath); err != nil {
		t.Fatalf("expected metrics textfile: %v", err)
	}
	if h.notifier.count(notifications.EventExecutionSummary) != 1 {
		t.Fatalf("expected execution summary, got %v", h.notifier.events)
	}
}
