package testsupport

import (
	"context"
	"testing"

	"assetcycle/internal/changes"
	"assetcycle/internal/config"
	"assetcycle/internal/creative"
	"assetcycle/internal/registry"
	"assetcycle/internal/storage"
)

// Stores bundles the registry and change store sharing one database.
type Stores struct {
	DB       *storage.DB
	Registry *registry.Store
	Changes  *changes.Store
}

// MustOpenStores opens the database under cfg's data dir and registers cleanup.
func MustOpenStores(t testing.TB, cfg *config.Config) Stores {
	t.Helper()

	db, err := storage.Open(cfg.DatabasePath())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return Stores{DB: db, Registry: registry.New(db), Changes: changes.New(db)}
}

// SeedPausedAsset stores a paused registry asset with the given best label.
func SeedPausedAsset(t testing.TB, reg *registry.Store, id string, assetType creative.AssetType, best creative.Label, activations int) *registry.Asset {
	t.Helper()

	asset := &registry.Asset{
		ID:              id,
		Type:            assetType,
		SourceType:      creative.SourceRegistryReuse,
		SourceID:        "src-" + id,
		Concept:         "concept-" + id,
		Status:          creative.StatusPaused,
		BestPerformance: best,
		TimesActivated:  activations,
	}
	if assetType.IsText() {
		asset.Text = "text " + id
	}
	if err := reg.Put(context.Background(), asset); err != nil {
		t.Fatalf("registry.Put %s: %v", id, err)
	}
	return asset
}

// SeedActiveAsset records an observation so the asset exists as ACTIVE.
func SeedActiveAsset(t testing.TB, reg *registry.Store, id string, assetType creative.AssetType, label creative.Label, impressions int64) *registry.Asset {
	t.Helper()

	obs := registry.Observation{AssetID: id, Type: assetType, Label: label, Impressions: impressions}
	if assetType.IsText() {
		obs.Text = "text " + id
	}
	asset, err := reg.Observe(context.Background(), obs)
	if err != nil {
		t.Fatalf("registry.Observe %s: %v", id, err)
	}
	return asset
}

// MustAppend appends a change and fails the test on error.
func MustAppend(t testing.TB, store *changes.Store, change *changes.Change) *changes.Change {
	t.Helper()

	if err := store.Append(context.Background(), change); err != nil {
		t.Fatalf("changes.Append: %v", err)
	}
	return change
}
