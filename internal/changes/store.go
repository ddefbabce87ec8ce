package changes

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"assetcycle/internal/creative"
	"assetcycle/internal/storage"
)

var (
	// ErrNotFound reports an operation on a change ID the store does not hold.
	ErrNotFound = errors.New("change not found")
	// ErrInvalidTransition reports a status change the state machine forbids.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Store is the SQLite-backed change request store.
type Store struct {
	db  *storage.DB
	now func() time.Time
}

// New wraps an opened database.
func New(db *storage.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the timestamp source.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

const changeColumns = "id, run_id, campaign_id, ad_group_id, ad_id, asset_type, action, current_asset_id, new_source_kind, new_source_id, new_payload_json, approval_mode, status, outcome, reason, performance_label, impressions, snapshot_json, reviewer_note, result_message, added_asset_id, created_at, updated_at, reviewed_at, executed_at"

func scanChange(scanner interface{ Scan(dest ...any) error }) (*Change, error) {
	var (
		c             Change
		runID         sql.NullString
		currentAsset  sql.NullString
		sourceKind    sql.NullString
		sourceID      sql.NullString
		payloadJSON   sql.NullString
		outcome       sql.NullString
		label         sql.NullString
		snapshotJSON  sql.NullString
		reviewerNote  sql.NullString
		resultMessage sql.NullString
		addedAsset    sql.NullString
		createdRaw    string
		updatedRaw    string
		reviewedRaw   sql.NullString
		executedRaw   sql.NullString
	)
	if err := scanner.Scan(
		&c.ID,
		&runID,
		&c.CampaignID,
		&c.AdGroupID,
		&c.AdID,
		&c.AssetType,
		&c.Action,
		&currentAsset,
		&sourceKind,
		&sourceID,
		&payloadJSON,
		&c.ApprovalMode,
		&c.Status,
		&outcome,
		&c.Reason,
		&label,
		&c.Impressions,
		&snapshotJSON,
		&reviewerNote,
		&resultMessage,
		&addedAsset,
		&createdRaw,
		&updatedRaw,
		&reviewedRaw,
		&executedRaw,
	); err != nil {
		return nil, err
	}

	c.RunID = runID.String
	c.CurrentAssetID = currentAsset.String
	c.Outcome = Outcome(outcome.String)
	c.Label = creative.Label(label.String)
	c.ReviewerNote = reviewerNote.String
	c.ResultMessage = resultMessage.String
	c.AddedAssetID = addedAsset.String
	if sourceKind.Valid {
		c.NewAsset = &Source{Kind: SourceKind(sourceKind.String), ID: sourceID.String}
		if payloadJSON.Valid && payloadJSON.String != "" {
			var payload creative.Payload
			if err := json.Unmarshal([]byte(payloadJSON.String), &payload); err != nil {
				return nil, fmt.Errorf("decode payload for change %d: %w", c.ID, err)
			}
			c.NewAsset.Payload = &payload
		}
	}
	if snapshotJSON.Valid && snapshotJSON.String != "" {
		if err := json.Unmarshal([]byte(snapshotJSON.String), &c.Snapshot); err != nil {
			return nil, fmt.Errorf("decode snapshot for change %d: %w", c.ID, err)
		}
	}
	if ts, err := storage.ParseTime(createdRaw); err == nil {
		c.CreatedAt = ts
	}
	if ts, err := storage.ParseTime(updatedRaw); err == nil {
		c.UpdatedAt = ts
	}
	c.ReviewedAt = storage.ParseTimePtr(reviewedRaw.String)
	c.ExecutedAt = storage.ParseTimePtr(executedRaw.String)
	return &c, nil
}

// Append validates and inserts a new change in PENDING status. The change is
// updated in place with its assigned ID and timestamps.
func (s *Store) Append(ctx context.Context, c *Change) error {
	if err := c.Validate(); err != nil {
		return err
	}
	now := s.now()
	c.Status = StatusPending
	c.Outcome = ""
	c.CreatedAt = now
	c.UpdatedAt = now

	var sourceKind, sourceID, payloadJSON, snapshotJSON any
	if c.NewAsset != nil {
		sourceKind = string(c.NewAsset.Kind)
		sourceID = storage.NullableString(c.NewAsset.ID)
		if c.NewAsset.Payload != nil {
			data, err := json.Marshal(c.NewAsset.Payload)
			if err != nil {
				return fmt.Errorf("encode payload: %w", err)
			}
			payloadJSON = string(data)
		}
	}
	if len(c.Snapshot) > 0 {
		data, err := json.Marshal(c.Snapshot)
		if err != nil {
			return fmt.Errorf("encode snapshot: %w", err)
		}
		snapshotJSON = string(data)
	}

	res, err := s.db.Exec(ctx,
		`INSERT INTO changes (
		    run_id, campaign_id, ad_group_id, ad_id, asset_type, action, current_asset_id,
		    new_source_kind, new_source_id, new_payload_json, approval_mode, status,
		    reason, performance_label, impressions, snapshot_json, created_at, updated_at
		) VALUES (`+storage.Placeholders(18)+`)`,
		storage.NullableString(c.RunID),
		c.CampaignID,
		c.AdGroupID,
		c.AdID,
		string(c.AssetType),
		string(c.Action),
		storage.NullableString(c.CurrentAssetID),
		sourceKind,
		sourceID,
		payloadJSON,
		string(c.ApprovalMode),
		string(c.Status),
		c.Reason,
		storage.NullableString(string(c.Label)),
		c.Impressions,
		snapshotJSON,
		storage.FormatTime(c.CreatedAt),
		storage.FormatTime(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert change: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	c.ID = id
	return nil
}

// Get fetches a change by ID. It returns nil when absent.
func (s *Store) Get(ctx context.Context, id int64) (*Change, error) {
	ctx = storage.EnsureContext(ctx)
	row := s.db.Conn().QueryRowContext(ctx, `SELECT `+changeColumns+` FROM changes WHERE id = ?`, id)
	c, err := scanChange(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get change: %w", err)
	}
	return c, nil
}

// List returns changes matching filter in insertion order.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]*Change, error) {
	clauses := make([]string, 0, 2)
	args := make([]any, 0, len(filter.Statuses)+2)
	if len(filter.Statuses) > 0 {
		clauses = append(clauses, "status IN ("+storage.Placeholders(len(filter.Statuses))+")")
		for _, status := range filter.Statuses {
			args = append(args, string(status))
		}
	}
	if filter.CampaignID != "" {
		clauses = append(clauses, "campaign_id = ?")
		args = append(args, filter.CampaignID)
	}
	query := `SELECT ` + changeColumns + ` FROM changes`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	return s.queryChanges(ctx, query, args...)
}

// ListByStatus returns changes in any of the given statuses.
func (s *Store) ListByStatus(ctx context.Context, statuses ...Status) ([]*Change, error) {
	return s.List(ctx, ListFilter{Statuses: statuses})
}

// Executable returns the changes an execution sweep must process, oldest
// first: APPROVED changes plus AUTO changes still PENDING.
func (s *Store) Executable(ctx context.Context) ([]*Change, error) {
	return s.queryChanges(ctx,
		`SELECT `+changeColumns+` FROM changes
		 WHERE status = ? OR (status = ? AND approval_mode = ?)
		 ORDER BY id`,
		string(StatusApproved), string(StatusPending), string(ApprovalAuto))
}

// HasOpen reports whether an open change already targets assetID on adID,
// either as the asset being replaced or as the asset being linked.
func (s *Store) HasOpen(ctx context.Context, adID, assetID string) (bool, error) {
	ctx = storage.EnsureContext(ctx)
	var count int
	row := s.db.Conn().QueryRowContext(ctx,
		`SELECT COUNT(1) FROM changes
		 WHERE ad_id = ? AND status IN (?, ?)
		   AND (current_asset_id = ? OR new_source_id = ?)`,
		adID, string(StatusPending), string(StatusApproved), assetID, assetID)
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("check open changes: %w", err)
	}
	return count > 0, nil
}

// ReservedAssets returns the registry assets that open changes intend to
// link. A later analysis must not promise them to another ad.
func (s *Store) ReservedAssets(ctx context.Context) ([]string, error) {
	ctx = storage.EnsureContext(ctx)
	rows, err := s.db.Conn().QueryContext(ctx,
		`SELECT DISTINCT new_source_id FROM changes
		 WHERE status IN (?, ?) AND new_source_kind = ? AND new_source_id IS NOT NULL
		 ORDER BY new_source_id`,
		string(StatusPending), string(StatusApproved), string(SourceRegistryReuse))
	if err != nil {
		return nil, fmt.Errorf("list reserved assets: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan reserved asset: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Review applies a reviewer decision to a PENDING change.
func (s *Store) Review(ctx context.Context, id int64, decision Status, note string) (*Change, error) {
	if decision != StatusApproved && decision != StatusRejected {
		return nil, fmt.Errorf("%w: review decision must be APPROVED or REJECTED, got %s", ErrInvalidTransition, decision)
	}
	now := storage.FormatTime(s.now())
	res, err := s.db.Exec(ctx,
		`UPDATE changes SET status = ?, reviewer_note = ?, reviewed_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(decision), storage.NullableString(strings.TrimSpace(note)), now, now, id, string(StatusPending))
	if err != nil {
		return nil, fmt.Errorf("review change: %w", err)
	}
	if err := s.checkTransition(ctx, res, id, decision); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// UpdateStatus records the result of an execution attempt. Only executable
// changes accept a result, and the result status must be terminal.
func (s *Store) UpdateStatus(ctx context.Context, id int64, result Result) (*Change, error) {
	if result.Status != StatusExecuted && result.Status != StatusFailed {
		return nil, fmt.Errorf("%w: execution result must be EXECUTED or FAILED, got %s", ErrInvalidTransition, result.Status)
	}
	now := storage.FormatTime(s.now())
	res, err := s.db.Exec(ctx,
		`UPDATE changes SET status = ?, outcome = ?, result_message = ?, added_asset_id = COALESCE(?, added_asset_id),
		     executed_at = ?, updated_at = ?
		 WHERE id = ? AND (status = ? OR (status = ? AND approval_mode = ?))`,
		string(result.Status),
		storage.NullableString(string(result.Outcome)),
		storage.NullableString(result.Message),
		storage.NullableString(result.AddedAssetID),
		now,
		now,
		id,
		string(StatusApproved),
		string(StatusPending),
		string(ApprovalAuto),
	)
	if err != nil {
		return nil, fmt.Errorf("update change status: %w", err)
	}
	if err := s.checkTransition(ctx, res, id, result.Status); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *Store) checkTransition(ctx context.Context, res sql.Result, id int64, target Status) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if current == nil {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return fmt.Errorf("%w: change %d is %s (%s), cannot move to %s", ErrInvalidTransition, id, current.Status, current.ApprovalMode, target)
}

// Counts returns the number of changes per status.
func (s *Store) Counts(ctx context.Context) (map[Status]int, error) {
	ctx = storage.EnsureContext(ctx)
	rows, err := s.db.Conn().QueryContext(ctx, `SELECT status, COUNT(1) FROM changes GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count changes: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[Status(status)] = count
	}
	return counts, rows.Err()
}

func (s *Store) queryChanges(ctx context.Context, query string, args ...any) ([]*Change, error) {
	ctx = storage.EnsureContext(ctx)
	rows, err := s.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query changes: %w", err)
	}
	defer rows.Close()

	var out []*Change
	for rows.Next() {
		c, err := scanChange(rows)
		if err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
