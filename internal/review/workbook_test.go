package review_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"assetcycle/internal/changes"
	"assetcycle/internal/creative"
	"assetcycle/internal/review"
	"assetcycle/internal/testsupport"
)

func pendingChange(assetID string, mode changes.ApprovalMode) *changes.Change {
	return &changes.Change{
		CampaignID:     "42",
		AdGroupID:      "7",
		AdID:           "customers/1/adGroupAds/7~9",
		AssetType:      creative.TypeVideo,
		Action:         changes.ActionReplace,
		CurrentAssetID: assetID,
		NewAsset:       &changes.Source{Kind: changes.SourceRegistryReuse, ID: "best-" + assetID},
		ApprovalMode:   mode,
		Reason:         "GOOD label; BEST replacement available",
		Label:          creative.LabelGood,
		Impressions:    2400,
	}
}

func setCell(t *testing.T, path, sheet string, col, row int, value string) {
	t.Helper()
	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer func() { _ = f.Close() }()
	name, _ := excelize.CoordinatesToCellName(col, row)
	if err := f.SetCellValue(sheet, name, value); err != nil {
		t.Fatalf("set %s: %v", name, err)
	}
	if err := f.Save(); err != nil {
		t.Fatalf("save workbook: %v", err)
	}
}

func TestExportThenImportAppliesDecisions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	stores := testsupport.MustOpenStores(t, cfg)
	ctx := context.Background()

	approve := testsupport.MustAppend(t, stores.Changes, pendingChange("a-1", changes.ApprovalPending))
	reject := testsupport.MustAppend(t, stores.Changes, pendingChange("a-2", changes.ApprovalPending))
	untouched := testsupport.MustAppend(t, stores.Changes, pendingChange("a-3", changes.ApprovalPending))

	list, err := stores.Changes.ListByStatus(ctx, changes.StatusPending)
	if err != nil {
		t.Fatalf("ListByStatus: %v", err)
	}
	path := cfg.WorkbookPath()
	sheet := cfg.Review.SheetName
	if err := review.Export(path, sheet, list); err != nil {
		t.Fatalf("Export: %v", err)
	}

	// Status is column 14, Reviewer Note 15, Reason 13; rows follow store order.
	setCell(t, path, sheet, 14, 2, "approved")
	setCell(t, path, sheet, 15, 2, "ship it")
	setCell(t, path, sheet, 14, 3, "REJECTED")
	setCell(t, path, sheet, 13, 3, "edited reason is ignored")

	result, err := review.Import(ctx, stores.Changes, path, sheet)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if result.Approved != 1 || result.Rejected != 1 || result.Unchanged != 1 || len(result.Errors) != 0 {
		t.Fatalf("unexpected import result: %+v", result)
	}

	got, _ := stores.Changes.Get(ctx, approve.ID)
	if got.Status != changes.StatusApproved || got.ReviewerNote != "ship it" {
		t.Fatalf("unexpected approved change: %+v", got)
	}
	got, _ = stores.Changes.Get(ctx, reject.ID)
	if got.Status != changes.StatusRejected || got.Reason != "GOOD label; BEST replacement available" {
		t.Fatalf("only status and note may be written back: %+v", got)
	}
	got, _ = stores.Changes.Get(ctx, untouched.ID)
	if got.Status != changes.StatusPending {
		t.Fatalf("untouched row changed status: %s", got.Status)
	}
}

func TestImportIgnoresRowsForDecidedChanges(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	stores := testsupport.MustOpenStores(t, cfg)
	ctx := context.Background()

	c := testsupport.MustAppend(t, stores.Changes, pendingChange("a-1", changes.ApprovalPending))
	path := filepath.Join(t.TempDir(), "review.xlsx")
	if err := review.Export(path, "Changes", []*changes.Change{c}); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if _, err := stores.Changes.Review(ctx, c.ID, changes.StatusRejected, "decided in CLI"); err != nil {
		t.Fatalf("Review: %v", err)
	}
	setCell(t, path, "Changes", 14, 2, "APPROVED")

	result, err := review.Import(ctx, stores.Changes, path, "Changes")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if result.Ignored != 1 || result.Approved != 0 {
		t.Fatalf("expected row to be ignored, got %+v", result)
	}
	got, _ := stores.Changes.Get(ctx, c.ID)
	if got.Status != changes.StatusRejected || got.ReviewerNote != "decided in CLI" {
		t.Fatalf("decided change was overwritten: %+v", got)
	}
}

func TestImportCollectsRowErrors(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	stores := testsupport.MustOpenStores(t, cfg)
	ctx := context.Background()

	first := testsupport.MustAppend(t, stores.Changes, pendingChange("a-1", changes.ApprovalPending))
	second := testsupport.MustAppend(t, stores.Changes, pendingChange("a-2", changes.ApprovalPending))
	path := filepath.Join(t.TempDir(), "review.xlsx")
	if err := review.Export(path, "Changes", []*changes.Change{first, second}); err != nil {
		t.Fatalf("Export: %v", err)
	}
	setCell(t, path, "Changes", 14, 2, "EXECUTED")
	setCell(t, path, "Changes", 14, 3, "maybe")

	result, err := review.Import(ctx, stores.Changes, path, "Changes")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if len(result.Errors) != 2 {
		t.Fatalf("expected two row errors, got %+v", result.Errors)
	}
	if result.Errors[0].Row != 2 || result.Errors[0].ID != first.ID {
		t.Fatalf("unexpected first error: %v", result.Errors[0])
	}
	got, _ := stores.Changes.Get(ctx, first.ID)
	if got.Status != changes.StatusPending {
		t.Fatalf("reviewers must not mark changes executed, got %s", got.Status)
	}
}

func TestImportRejectsWorkbookWithoutStatusColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.xlsx")
	f := excelize.NewFile()
	if err := f.SetCellValue("Sheet1", "A1", "ID"); err != nil {
		t.Fatalf("SetCellValue: %v", err)
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	_ = f.Close()

	cfg := testsupport.NewConfig(t)
	stores := testsupport.MustOpenStores(t, cfg)
	if _, err := review.Import(context.Background(), stores.Changes, path, "Changes"); err == nil {
		t.Fatal("expected header error")
	}
}
