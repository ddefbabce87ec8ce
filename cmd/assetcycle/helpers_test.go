package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"assetcycle/internal/config"
	"assetcycle/internal/creative"
	"assetcycle/internal/notifications"
	"assetcycle/internal/platform"
	"assetcycle/internal/testsupport"
)

const testAdID = "customers/1234567890/adGroupAds/7~9"

type publishedEvent struct {
	event   notifications.Event
	payload notifications.Payload
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, publishedEvent{event: event, payload: payload})
	return nil
}

func (r *recordingNotifier) count(event notifications.Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.event == event {
			n++
		}
	}
	return n
}

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	stores     testsupport.Stores
	fake       *testsupport.FakePlatform
	notifier   *recordingNotifier
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	t.Setenv("HOME", t.TempDir())
	cfg := testsupport.NewConfig(t, opts...)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}

	fake := testsupport.NewFakePlatform()
	fake.AddAd(platform.AdCollection{
		CampaignID: "42",
		AdGroupID:  "7",
		AdID:       testAdID,
		Headlines:  []creative.Ref{{Text: "Play now"}},
		Images:     []creative.Ref{{Asset: "customers/1234567890/assets/img-1"}},
		Videos: []creative.Ref{
			{Asset: "customers/1234567890/assets/v-1"},
			{Asset: "customers/1234567890/assets/v-2"},
		},
	})

	return &cliTestEnv{
		cfg:        cfg,
		configPath: configPath,
		stores:     testsupport.MustOpenStores(t, cfg),
		fake:       fake,
		notifier:   &recordingNotifier{},
	}
}

func (env *cliTestEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var configFlag string
	ctx := newCommandContext(&configFlag)
	ctx.platformClient = env.fake
	ctx.notifier = env.notifier

	cmd := newRootCommandWithContext(ctx)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", env.configPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	ctx.close()
	return stdout.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
