package review

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"assetcycle/internal/changes"
)

const (
	colID           = "ID"
	colStatus       = "Status"
	colReviewerNote = "Reviewer Note"
)

var header = []string{
	colID,
	"Created",
	"Campaign",
	"Ad Group",
	"Ad",
	"Type",
	"Action",
	"Current Asset",
	"New Asset",
	"Approval",
	"Label",
	"Impressions",
	"Reason",
	colStatus,
	colReviewerNote,
	"Outcome",
	"Result",
}

// Export writes the changes to a new workbook at path, replacing any file
// already there.
func Export(path, sheet string, list []*changes.Change) error {
	if strings.TrimSpace(sheet) == "" {
		sheet = "Changes"
	}
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	index, err := f.NewSheet(sheet)
	if err != nil {
		return fmt.Errorf("create sheet %q: %w", sheet, err)
	}
	f.SetActiveSheet(index)
	if sheet != "Sheet1" {
		if err := f.DeleteSheet("Sheet1"); err != nil {
			return fmt.Errorf("drop default sheet: %w", err)
		}
	}

	row := make([]any, len(header))
	for i, name := range header {
		row[i] = name
	}
	if err := f.SetSheetRow(sheet, "A1", &row); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(header), 1)
	if err := f.SetCellStyle(sheet, "A1", lastHeader, bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for i, c := range list {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		values := []any{
			c.ID,
			c.CreatedAt.UTC().Format("2006-01-02 15:04"),
			c.CampaignID,
			c.AdGroupID,
			c.AdID,
			string(c.AssetType),
			string(c.Action),
			c.CurrentAssetID,
			c.NewAsset.Describe(),
			string(c.ApprovalMode),
			string(c.Label),
			c.Impressions,
			c.Reason,
			string(c.Status),
			c.ReviewerNote,
			string(c.Outcome),
			c.ResultMessage,
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("write change %d: %w", c.ID, err)
		}
	}

	if len(list) > 0 {
		statusCol, _ := excelize.ColumnNumberToName(columnIndex(colStatus) + 1)
		dv := excelize.NewDataValidation(true)
		dv.Sqref = fmt.Sprintf("%s2:%s%d", statusCol, statusCol, len(list)+1)
		if err := dv.SetDropList([]string{
			string(changes.StatusPending),
			string(changes.StatusApproved),
			string(changes.StatusRejected),
		}); err != nil {
			return fmt.Errorf("status drop list: %w", err)
		}
		if err := f.AddDataValidation(sheet, dv); err != nil {
			return fmt.Errorf("status validation: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create review dir: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func columnIndex(name string) int {
	for i, h := range header {
		if h == name {
			return i
		}
	}
	return -1
}

// Reviewer is the part of the change store an import writes through.
type Reviewer interface {
	Get(ctx context.Context, id int64) (*changes.Change, error)
	Review(ctx context.Context, id int64, decision changes.Status, note string) (*changes.Change, error)
}

// RowError describes a workbook row that could not be applied.
type RowError struct {
	Row int
	ID  int64
	Err error
}

func (e RowError) Error() string {
	if e.ID == 0 {
		return fmt.Sprintf("row %d: %v", e.Row, e.Err)
	}
	return fmt.Sprintf("row %d (change %d): %v", e.Row, e.ID, e.Err)
}

// ImportResult counts what an import did.
type ImportResult struct {
	Approved  int
	Rejected  int
	Unchanged int
	Ignored   int
	Errors    []RowError
}

// Import applies reviewer decisions from the workbook at path.
func Import(ctx context.Context, store Reviewer, path, sheet string) (ImportResult, error) {
	var result ImportResult

	f, err := excelize.OpenFile(path)
	if err != nil {
		return result, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	if idx, _ := f.GetSheetIndex(sheet); strings.TrimSpace(sheet) == "" || idx < 0 {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return result, errors.New("workbook has no sheets")
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return result, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) == 0 {
		return result, errors.New("workbook has no header row")
	}

	cols := map[string]int{}
	for i, name := range rows[0] {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	idCol, okID := cols[strings.ToLower(colID)]
	statusCol, okStatus := cols[strings.ToLower(colStatus)]
	if !okID || !okStatus {
		return result, fmt.Errorf("workbook header must include %q and %q", colID, colStatus)
	}
	noteCol, hasNote := cols[strings.ToLower(colReviewerNote)]

	for i, row := range rows[1:] {
		rowNum := i + 2
		rawID := cell(row, idCol)
		if rawID == "" {
			continue
		}
		id, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil {
			result.Errors = append(result.Errors, RowError{Row: rowNum, Err: fmt.Errorf("invalid id %q", rawID)})
			continue
		}

		current, err := store.Get(ctx, id)
		if err != nil {
			return result, fmt.Errorf("load change %d: %w", id, err)
		}
		if current == nil {
			result.Errors = append(result.Errors, RowError{Row: rowNum, ID: id, Err: changes.ErrNotFound})
			continue
		}
		if current.Status != changes.StatusPending {
			result.Ignored++
			continue
		}

		decision, err := changes.ParseStatus(cell(row, statusCol))
		if err != nil {
			result.Errors = append(result.Errors, RowError{Row: rowNum, ID: id, Err: err})
			continue
		}
		note := ""
		if hasNote {
			note = cell(row, noteCol)
		}

		switch decision {
		case changes.StatusPending:
			result.Unchanged++
			continue
		case changes.StatusApproved, changes.StatusRejected:
		default:
			result.Errors = append(result.Errors, RowError{Row: rowNum, ID: id, Err: fmt.Errorf("reviewers may only set APPROVED or REJECTED, got %s", decision)})
			continue
		}

		if _, err := store.Review(ctx, id, decision, note); err != nil {
			if errors.Is(err, changes.ErrInvalidTransition) {
				result.Errors = append(result.Errors, RowError{Row: rowNum, ID: id, Err: err})
				continue
			}
			return result, fmt.Errorf("review change %d: %w", id, err)
		}
		if decision == changes.StatusApproved {
			result.Approved++
		} else {
			result.Rejected++
		}
	}
	return result, nil
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
