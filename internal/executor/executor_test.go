package executor_test

import (
	"context"
	"errors"
	"testing"

	"assetcycle/internal/changes"
	"assetcycle/internal/config"
	"assetcycle/internal/creative"
	"assetcycle/internal/decision"
	"assetcycle/internal/executor"
	"assetcycle/internal/logging"
	"assetcycle/internal/platform"
	"assetcycle/internal/testsupport"
)

const adID = "customers/1234567890/ads/9"

type fixture struct {
	stores testsupport.Stores
	fake   *testsupport.FakePlatform
	exec   *executor.Executor
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	stores := testsupport.MustOpenStores(t, cfg)
	fake := testsupport.NewFakePlatform()
	rules, err := decision.RulesFromConfig(cfg)
	if err != nil {
		t.Fatalf("RulesFromConfig: %v", err)
	}
	return &fixture{
		stores: stores,
		fake:   fake,
		exec:   executor.New(rules, fake, fake, stores.Registry, logging.NewNop()),
	}
}

func refs(ids ...string) []creative.Ref {
	out := make([]creative.Ref, 0, len(ids))
	for _, id := range ids {
		out = append(out, creative.Ref{Asset: id})
	}
	return out
}

func (f *fixture) seedAd(t *testing.T, images, videos []string) {
	t.Helper()
	for _, id := range images {
		testsupport.SeedActiveAsset(t, f.stores.Registry, id, creative.TypeImage, creative.LabelLow, 5000)
	}
	for _, id := range videos {
		testsupport.SeedActiveAsset(t, f.stores.Registry, id, creative.TypeVideo, creative.LabelLow, 5000)
	}
	f.fake.AddAd(platform.AdCollection{
		CampaignID: "42",
		AdGroupID:  "7",
		AdID:       adID,
		Headlines:  []creative.Ref{{Text: "Play free"}},
		Images:     refs(images...),
		Videos:     refs(videos...),
	})
}

func change(action changes.Action, t creative.AssetType, current string, source *changes.Source) *changes.Change {
	return &changes.Change{
		ID:             1,
		CampaignID:     "42",
		AdGroupID:      "7",
		AdID:           adID,
		AssetType:      t,
		Action:         action,
		CurrentAssetID: current,
		NewAsset:       source,
		ApprovalMode:   changes.ApprovalAuto,
		Status:         changes.StatusPending,
		Reason:         "test",
		Label:          creative.LabelLow,
		Impressions:    5000,
	}
}

func reuse(id string) *changes.Source {
	return &changes.Source{Kind: changes.SourceRegistryReuse, ID: id}
}

func mustExecute(t *testing.T, f *fixture, c *changes.Change) executor.Result {
	t.Helper()
	res, err := f.exec.Execute(context.Background(), c)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	return res
}

func TestRemoveAtMinimumFailsWithLimitExceeded(t *testing.T) {
	f := newFixture(t)
	f.seedAd(t, []string{"i-1"}, nil)

	res := mustExecute(t, f, change(changes.ActionRemove, creative.TypeImage, "i-1", nil))
	if res.Kind != changes.OutcomeLimitExceeded || res.Status() != changes.StatusFailed {
		t.Fatalf("expected limit_exceeded/FAILED, got %+v", res)
	}
	if got := f.fake.Collection(adID).Images; !creative.SameRefs(got, refs("i-1")) {
		t.Fatalf("collection must be unchanged, got %v", got)
	}
	if f.fake.Mutations(adID) != 0 {
		t.Fatal("no write expected")
	}
}

func TestRemoveUnlinksAndPausesRegistry(t *testing.T) {
	f := newFixture(t)
	f.seedAd(t, nil, []string{"v-1", "v-2"})

	res := mustExecute(t, f, change(changes.ActionRemove, creative.TypeVideo, "v-1", nil))
	if res.Kind != changes.OutcomeOK || res.Status() != changes.StatusExecuted {
		t.Fatalf("expected ok/EXECUTED, got %+v", res)
	}
	collection := f.fake.Collection(adID)
	if !creative.SameRefs(collection.Videos, refs("v-2")) {
		t.Fatalf("unexpected videos %v", collection.Videos)
	}
	if len(collection.Headlines) != 1 {
		t.Fatalf("sibling fields must be untouched, got %v", collection.Headlines)
	}
	asset, _ := f.stores.Registry.Get(context.Background(), "v-1")
	if asset.Status != creative.StatusPaused || asset.PauseReason == "" {
		t.Fatalf("expected paused registry record, got %+v", asset)
	}
}

func TestRemoveKeepsAssetActiveWhileAnotherAdServesIt(t *testing.T) {
	f := newFixture(t)
	f.seedAd(t, nil, []string{"v-shared", "v-2"})
	const otherAd = "customers/1234567890/ads/10"
	f.fake.AddAd(platform.AdCollection{CampaignID: "42", AdGroupID: "8", AdID: otherAd, Videos: refs("v-shared")})

	res := mustExecute(t, f, change(changes.ActionRemove, creative.TypeVideo, "v-shared", nil))
	if res.Kind != changes.OutcomeOK {
		t.Fatalf("expected ok, got %+v", res)
	}
	if got := f.fake.Collection(adID).Videos; !creative.SameRefs(got, refs("v-2")) {
		t.Fatalf("expected v-shared unlinked from ad 9, got %v", got)
	}
	if got := f.fake.Collection(otherAd).Videos; !creative.SameRefs(got, refs("v-shared")) {
		t.Fatalf("ad 10 must keep v-shared, got %v", got)
	}
	asset, _ := f.stores.Registry.Get(context.Background(), "v-shared")
	if asset.Status != creative.StatusActive || asset.PauseReason != "" {
		t.Fatalf("asset still served by ad 10 must stay active, got %+v", asset)
	}
}

func TestRemoveOfVanishedTargetIsAlreadyResolved(t *testing.T) {
	f := newFixture(t)
	f.seedAd(t, nil, []string{"v-1", "v-2"})
	f.fake.SetRefs(adID, creative.TypeVideo, refs("v-2"))

	res := mustExecute(t, f, change(changes.ActionRemove, creative.TypeVideo, "v-1", nil))
	if res.Kind != changes.OutcomeAssetNotFound || res.Status() != changes.StatusExecuted {
		t.Fatalf("expected asset_not_found resolved as EXECUTED, got %+v", res)
	}
	if f.fake.Mutations(adID) != 0 {
		t.Fatal("no write expected for an already-resolved removal")
	}
}

func TestAddEnforcesMaximum(t *testing.T) {
	f := newFixture(t, testsupport.WithLimits("VIDEO", 0, 2))
	f.seedAd(t, nil, []string{"v-1", "v-2"})
	testsupport.SeedPausedAsset(t, f.stores.Registry, "v-new", creative.TypeVideo, creative.LabelBest, 0)

	res := mustExecute(t, f, change(changes.ActionAdd, creative.TypeVideo, "", reuse("v-new")))
	if res.Kind != changes.OutcomeLimitExceeded {
		t.Fatalf("expected limit_exceeded, got %+v", res)
	}
	if len(f.fake.Collection(adID).Videos) != 2 {
		t.Fatal("collection must stay at the maximum")
	}
}

func TestAddReuseActivatesRegistryAsset(t *testing.T) {
	f := newFixture(t)
	f.seedAd(t, nil, []string{"v-1"})
	testsupport.SeedPausedAsset(t, f.stores.Registry, "v-new", creative.TypeVideo, creative.LabelBest, 2)

	res := mustExecute(t, f, change(changes.ActionAdd, creative.TypeVideo, "", reuse("v-new")))
	if res.Kind != changes.OutcomeOK || res.AddedAssetID != "v-new" {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := f.fake.Collection(adID).Videos; !creative.SameRefs(got, refs("v-1", "v-new")) {
		t.Fatalf("expected append, got %v", got)
	}
	asset, _ := f.stores.Registry.Get(context.Background(), "v-new")
	if asset.Status != creative.StatusActive || asset.TimesActivated != 3 {
		t.Fatalf("expected ACTIVE with 3 activations, got %+v", asset)
	}
}

func TestAddExternalCreatesAndRegistersAsset(t *testing.T) {
	f := newFixture(t)
	f.seedAd(t, nil, []string{"v-1"})
	source := &changes.Source{Kind: changes.SourceExternal, Payload: &creative.Payload{YouTubeVideoID: "yt-1", Concept: "hero", Name: "Hero cut"}}

	res := mustExecute(t, f, change(changes.ActionAdd, creative.TypeVideo, "", source))
	if res.Kind != changes.OutcomeOK || res.AddedAssetID == "" {
		t.Fatalf("unexpected result %+v", res)
	}
	if f.fake.Created() != 1 {
		t.Fatalf("expected one created asset, got %d", f.fake.Created())
	}
	asset, _ := f.stores.Registry.Get(context.Background(), res.AddedAssetID)
	if asset == nil || asset.SourceType != creative.SourceExternalVideo || asset.SourceID != "yt-1" || asset.Concept != "hero" {
		t.Fatalf("unexpected registry record %+v", asset)
	}
	if asset.Status != creative.StatusActive || asset.TimesActivated != 1 {
		t.Fatalf("expected first activation, got %+v", asset)
	}
}

func TestAddExternalCreateFailureIsPlatformRejected(t *testing.T) {
	f := newFixture(t)
	f.seedAd(t, nil, []string{"v-1"})
	f.fake.CreateErr = &platform.Error{Op: "create asset", Code: "ASPECT_RATIO_NOT_ALLOWED", Err: platform.ErrRejected}
	source := &changes.Source{Kind: changes.SourceExternal, Payload: &creative.Payload{YouTubeVideoID: "yt-1"}}

	res := mustExecute(t, f, change(changes.ActionAdd, creative.TypeVideo, "", source))
	if res.Kind != changes.OutcomePlatformRejected || res.Status() != changes.StatusFailed {
		t.Fatalf("expected platform_rejected, got %+v", res)
	}
}

func TestReplaceAddsBeforeRemoving(t *testing.T) {
	f := newFixture(t)
	f.seedAd(t, []string{"i-1"}, nil)
	testsupport.SeedPausedAsset(t, f.stores.Registry, "i-new", creative.TypeImage, creative.LabelBest, 0)

	var writes [][]creative.Ref
	f.fake.RejectMutation = func(_ string, _ creative.AssetType, next []creative.Ref) error {
		writes = append(writes, next)
		return nil
	}
	res := mustExecute(t, f, change(changes.ActionReplace, creative.TypeImage, "i-1", reuse("i-new")))
	if res.Kind != changes.OutcomeOK || res.AddedAssetID != "i-new" {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(writes) != 2 || len(writes[0]) != 2 || len(writes[1]) != 1 {
		t.Fatalf("expected append-then-evict writes, got %v", writes)
	}
	if got := f.fake.Collection(adID).Images; !creative.SameRefs(got, refs("i-new")) {
		t.Fatalf("unexpected final images %v", got)
	}
}

func TestReplaceDoesNotRemoveWhenAddFails(t *testing.T) {
	f := newFixture(t)
	f.seedAd(t, nil, []string{"v-1", "v-2"})
	testsupport.SeedPausedAsset(t, f.stores.Registry, "v-new", creative.TypeVideo, creative.LabelBest, 0)

	calls := 0
	f.fake.RejectMutation = func(string, creative.AssetType, []creative.Ref) error {
		calls++
		return &platform.Error{Op: "mutate ad assets", StatusCode: 400, Code: "MEDIA_INCOMPATIBLE", Err: platform.ErrRejected}
	}
	res := mustExecute(t, f, change(changes.ActionReplace, creative.TypeVideo, "v-1", reuse("v-new")))
	if res.Kind != changes.OutcomePlatformRejected {
		t.Fatalf("expected ADD failure returned verbatim, got %+v", res)
	}
	if calls != 1 {
		t.Fatalf("REMOVE must not be attempted after a failed ADD, saw %d writes", calls)
	}
	if got := f.fake.Collection(adID).Videos; !creative.SameRefs(got, refs("v-1", "v-2")) {
		t.Fatalf("collection must be unchanged, got %v", got)
	}
}

func TestReplaceWithVanishedTargetAfterAddIsPartial(t *testing.T) {
	f := newFixture(t)
	f.seedAd(t, nil, []string{"v-1", "v-2"})
	testsupport.SeedPausedAsset(t, f.stores.Registry, "v-new", creative.TypeVideo, creative.LabelBest, 0)

	f.fake.ReadFilter = func(c platform.AdCollection, mutations int) platform.AdCollection {
		if mutations == 0 {
			return c
		}
		var kept []creative.Ref
		for _, ref := range c.Videos {
			if ref.Asset != "v-1" {
				kept = append(kept, ref)
			}
		}
		return c.WithRefs(creative.TypeVideo, kept)
	}

	res := mustExecute(t, f, change(changes.ActionReplace, creative.TypeVideo, "v-1", reuse("v-new")))
	if res.Kind != changes.OutcomePartialReplace || res.Status() != changes.StatusFailed || res.AddedAssetID != "v-new" {
		t.Fatalf("expected partial_replace, got %+v", res)
	}
	final := f.fake.Collection(adID).Videos
	if len(final) != 3 || !creative.ContainsRef(final, creative.Ref{Asset: "v-1"}) || !creative.ContainsRef(final, creative.Ref{Asset: "v-new"}) {
		t.Fatalf("expected old and new asset linked (original+1), got %v", final)
	}
}

func TestReplaceHalvesRespectBounds(t *testing.T) {
	f := newFixture(t, testsupport.WithLimits("IMAGE", 1, 2))
	f.seedAd(t, []string{"i-1", "i-2"}, nil)
	testsupport.SeedPausedAsset(t, f.stores.Registry, "i-new", creative.TypeImage, creative.LabelBest, 0)

	res := mustExecute(t, f, change(changes.ActionReplace, creative.TypeImage, "i-1", reuse("i-new")))
	if res.Kind != changes.OutcomeLimitExceeded {
		t.Fatalf("ADD half at maximum must fail, got %+v", res)
	}
	if len(f.fake.Collection(adID).Images) != 2 {
		t.Fatal("collection must never exceed the maximum")
	}
}

func TestExecutedChangeIsNotReapplied(t *testing.T) {
	f := newFixture(t)
	f.seedAd(t, nil, []string{"v-1", "v-2"})
	c := change(changes.ActionRemove, creative.TypeVideo, "v-1", nil)
	c.Status = changes.StatusExecuted

	res := mustExecute(t, f, c)
	if res.Kind != changes.OutcomeAlreadyTerminal || !res.Success || res.Status() != "" {
		t.Fatalf("expected already_terminal no-op, got %+v", res)
	}
	if f.fake.Mutations(adID) != 0 || len(f.fake.Collection(adID).Videos) != 2 {
		t.Fatal("terminal change must not mutate")
	}
}

func TestUnknownActionIsReported(t *testing.T) {
	f := newFixture(t)
	f.seedAd(t, nil, []string{"v-1"})
	res := mustExecute(t, f, change(changes.Action("SHUFFLE"), creative.TypeVideo, "v-1", nil))
	if res.Kind != changes.OutcomeUnknownAction || res.Status() != changes.StatusFailed {
		t.Fatalf("expected unknown_action, got %+v", res)
	}
}

func TestDisabledCampaignIsNotMutated(t *testing.T) {
	f := newFixture(t)
	f.seedAd(t, nil, []string{"v-1", "v-2"})
	f.fake.SetCampaignEnabled("42", false)

	res := mustExecute(t, f, change(changes.ActionRemove, creative.TypeVideo, "v-1", nil))
	if res.Kind != changes.OutcomeCampaignDisabled || f.fake.Mutations(adID) != 0 {
		t.Fatalf("expected campaign_disabled without writes, got %+v", res)
	}
}

func TestConcurrentEditAbortsWrite(t *testing.T) {
	f := newFixture(t)
	f.seedAd(t, nil, []string{"v-1", "v-2"})
	f.fake.AfterRead = func(id string, reads int) {
		if reads == 1 {
			f.fake.SetRefs(id, creative.TypeVideo, refs("v-1", "v-2", "v-manual"))
		}
	}

	res := mustExecute(t, f, change(changes.ActionRemove, creative.TypeVideo, "v-1", nil))
	if res.Kind != changes.OutcomeConcurrentModification || res.Status() != changes.StatusFailed {
		t.Fatalf("expected concurrent_modification, got %+v", res)
	}
	if got := f.fake.Collection(adID).Videos; len(got) != 3 {
		t.Fatalf("manual edit must survive, got %v", got)
	}
}

func TestVerifyBeforeWriteCanBeDisabled(t *testing.T) {
	f := newFixture(t, testsupport.WithRotation(func(r *config.Rotation) { r.VerifyBeforeWrite = false }))
	f.seedAd(t, nil, []string{"v-1", "v-2"})
	reads := 0
	f.fake.AfterRead = func(string, int) { reads++ }

	res := mustExecute(t, f, change(changes.ActionRemove, creative.TypeVideo, "v-1", nil))
	if res.Kind != changes.OutcomeOK || reads != 1 {
		t.Fatalf("expected a single read without verification, got %+v after %d reads", res, reads)
	}
}

func TestReactivateRequiresPausedAsset(t *testing.T) {
	f := newFixture(t)
	f.seedAd(t, nil, []string{"v-1"})
	testsupport.SeedPausedAsset(t, f.stores.Registry, "v-old", creative.TypeVideo, creative.LabelGood, 1)

	res := mustExecute(t, f, change(changes.ActionReactivate, creative.TypeVideo, "", reuse("v-old")))
	if res.Kind != changes.OutcomeOK {
		t.Fatalf("expected reactivation, got %+v", res)
	}
	asset, _ := f.stores.Registry.Get(context.Background(), "v-old")
	if asset.Status != creative.StatusActive || asset.TimesActivated != 2 {
		t.Fatalf("unexpected registry record %+v", asset)
	}

	res = mustExecute(t, f, change(changes.ActionReactivate, creative.TypeVideo, "", reuse("v-1")))
	if res.Kind != changes.OutcomeAssetNotFound || res.Status() != changes.StatusFailed {
		t.Fatalf("active asset cannot be reactivated, got %+v", res)
	}
}

func TestCancelledContextLeavesChangeForNextSweep(t *testing.T) {
	f := newFixture(t)
	f.seedAd(t, nil, []string{"v-1", "v-2"})
	ctx, cancel := context.WithCancel(context.Background())
	f.fake.AfterRead = func(string, int) { cancel() }
	f.fake.RejectMutation = func(string, creative.AssetType, []creative.Ref) error { return ctx.Err() }

	_, err := f.exec.Execute(ctx, change(changes.ActionRemove, creative.TypeVideo, "v-1", nil))
	if !errors.Is(err, executor.ErrInterrupted) {
		t.Fatalf("expected ErrInterrupted, got %v", err)
	}
}
