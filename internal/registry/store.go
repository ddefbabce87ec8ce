package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"assetcycle/internal/creative"
	"assetcycle/internal/storage"
)

// ErrNotFound reports a mutation against an asset the registry does not hold.
var ErrNotFound = errors.New("asset not in registry")

// Store is the SQLite-backed asset registry.
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

const assetColumns = "id, asset_type, source_type, source_id, concept, name, text_value, status, best_performance, current_performance, times_activated, total_impressions, pause_reason, archived, first_seen_at, updated_at, last_activated_at, paused_at"

func scanAsset(scanner interface{ Scan(dest ...any) error }) (*Asset, error) {
	var (
		id           string
		assetType    string
		sourceType   string
		sourceID     sql.NullString
		concept      sql.NullString
		name         sql.NullString
		text         sql.NullString
		status       string
		best         string
		current      string
		activations  int
		impressions  int64
		pauseReason  sql.NullString
		archived     int
		firstSeenRaw string
		updatedRaw   string
		activatedRaw sql.NullString
		pausedRaw    sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&assetType,
		&sourceType,
		&sourceID,
		&concept,
		&name,
		&text,
		&status,
		&best,
		&current,
		&activations,
		&impressions,
		&pauseReason,
		&archived,
		&firstSeenRaw,
		&updatedRaw,
		&activatedRaw,
		&pausedRaw,
	); err != nil {
		return nil, err
	}

	asset := &Asset{
		ID:                 id,
		Type:               creative.AssetType(assetType),
		SourceType:         creative.SourceType(sourceType),
		SourceID:           sourceID.String,
		Concept:            concept.String,
		Name:               name.String,
		Text:               text.String,
		Status:             creative.AssetStatus(status),
		BestPerformance:    creative.Label(best),
		CurrentPerformance: creative.Label(current),
		TimesActivated:     activations,
		TotalImpressions:   impressions,
		PauseReason:        pauseReason.String,
		Archived:           archived != 0,
		LastActivatedAt:    storage.ParseTimePtr(activatedRaw.String),
		PausedAt:           storage.ParseTimePtr(pausedRaw.String),
	}
	if ts, err := storage.ParseTime(firstSeenRaw); err == nil {
		asset.FirstSeenAt = ts
	}
	if ts, err := storage.ParseTime(updatedRaw); err == nil {
		asset.UpdatedAt = ts
	}
	return asset, nil
}

// Get fetches an asset by resource name. It returns nil when absent.
func (s *Store) Get(ctx context.Context, id string) (*Asset, error) {
	ctx = storage.EnsureContext(ctx)
	row := s.db.Conn().QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = ?`, id)
	asset, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get asset: %w", err)
	}
	return asset, nil
}

// Put inserts or fully replaces a record. A replaced record keeps its
// first-seen time, and its best label and impressions never move backwards.
func (s *Store) Put(ctx context.Context, asset *Asset) error {
	if asset == nil {
		return errors.New("asset is nil")
	}
	if asset.BestPerformance == "" {
		asset.BestPerformance = creative.LabelUnknown
	}
	if asset.CurrentPerformance == "" {
		asset.CurrentPerformance = creative.LabelUnknown
	}
	if err := asset.Validate(); err != nil {
		return err
	}
	now := s.now()
	if asset.FirstSeenAt.IsZero() {
		asset.FirstSeenAt = now
	}
	asset.UpdatedAt = now

	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		existing, err := scanAsset(tx.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = ?`, asset.ID))
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("load asset: %w", err)
		default:
			asset.FirstSeenAt = existing.FirstSeenAt
			asset.BestPerformance = creative.RaiseBest(existing.BestPerformance, asset.BestPerformance)
			if existing.TotalImpressions > asset.TotalImpressions {
				asset.TotalImpressions = existing.TotalImpressions
			}
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO assets (`+assetColumns+`) VALUES (`+storage.Placeholders(18)+`)
			 ON CONFLICT(id) DO UPDATE SET
			   asset_type = excluded.asset_type,
			   source_type = excluded.source_type,
			   source_id = excluded.source_id,
			   concept = excluded.concept,
			   name = excluded.name,
			   text_value = excluded.text_value,
			   status = excluded.status,
			   best_performance = excluded.best_performance,
			   current_performance = excluded.current_performance,
			   times_activated = excluded.times_activated,
			   total_impressions = excluded.total_impressions,
			   pause_reason = excluded.pause_reason,
			   archived = excluded.archived,
			   updated_at = excluded.updated_at,
			   last_activated_at = excluded.last_activated_at,
			   paused_at = excluded.paused_at`,
			asset.ID,
			asset.Type,
			asset.SourceType,
			storage.NullableString(asset.SourceID),
			storage.NullableString(asset.Concept),
			storage.NullableString(asset.Name),
			storage.NullableString(asset.Text),
			asset.Status,
			asset.BestPerformance,
			asset.CurrentPerformance,
			asset.TimesActivated,
			asset.TotalImpressions,
			storage.NullableString(asset.PauseReason),
			storage.BoolToInt(asset.Archived),
			storage.FormatTime(asset.FirstSeenAt),
			storage.FormatTime(asset.UpdatedAt),
			storage.NullableTime(asset.LastActivatedAt),
			storage.NullableTime(asset.PausedAt),
		)
		if err != nil {
			return fmt.Errorf("put asset: %w", err)
		}
		return nil
	})
}

// Observe folds one performance sample into the registry, creating a
// PLATFORM_NATIVE record for assets seen for the first time. Observed assets
// are linked to an ad, so a PAUSED record flips back to ACTIVE and counts as
// a reactivation.
func (s *Store) Observe(ctx context.Context, obs Observation) (*Asset, error) {
	if strings.TrimSpace(obs.AssetID) == "" {
		return nil, errors.New("observation without asset id")
	}
	at := obs.At
	if at.IsZero() {
		at = s.now()
	}
	label := creative.ParseLabel(string(obs.Label))

	asset, err := s.Get(ctx, obs.AssetID)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		asset = &Asset{
			ID:                 obs.AssetID,
			Type:               obs.Type,
			SourceType:         creative.SourcePlatformNative,
			Name:               obs.Name,
			Text:               obs.Text,
			Status:             creative.StatusActive,
			BestPerformance:    creative.RaiseBest(creative.LabelUnknown, label),
			CurrentPerformance: label,
			TimesActivated:     1,
			TotalImpressions:   max(obs.Impressions, 0),
			FirstSeenAt:        at,
			LastActivatedAt:    &at,
		}
	} else {
		asset.CurrentPerformance = label
		asset.BestPerformance = creative.RaiseBest(asset.BestPerformance, label)
		asset.TotalImpressions = max(asset.TotalImpressions, obs.Impressions)
		if asset.Text == "" {
			asset.Text = obs.Text
		}
		if asset.Name == "" {
			asset.Name = obs.Name
		}
		if asset.Status == creative.StatusPaused {
			asset.Status = creative.StatusActive
			asset.TimesActivated++
			asset.PauseReason = ""
			asset.LastActivatedAt = &at
		}
	}
	if err := s.Put(ctx, asset); err != nil {
		return nil, err
	}
	return asset, nil
}

// Query lists assets matching filter ordered by type then id.
func (s *Store) Query(ctx context.Context, filter Filter) ([]*Asset, error) {
	ctx = storage.EnsureContext(ctx)
	clauses := make([]string, 0, 3)
	args := make([]any, 0, 3)
	if filter.Type != "" {
		clauses = append(clauses, "asset_type = ?")
		args = append(args, filter.Type)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, filter.Status)
	}
	if !filter.IncludeArchived {
		clauses = append(clauses, "archived = 0")
	}
	query := `SELECT ` + assetColumns + ` FROM assets`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY asset_type, id"
	return s.queryAssets(ctx, query, args...)
}

// Candidates returns PAUSED, unarchived, unprotected assets of the requested
// type whose best-ever label is in q.Labels, ordered BEST first, then by
// fewest activations, then by id.
func (s *Store) Candidates(ctx context.Context, q CandidateQuery) ([]*Asset, error) {
	ctx = storage.EnsureContext(ctx)
	if len(q.Labels) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(q.Labels)+2)
	args = append(args, q.Type, creative.StatusPaused)
	for _, label := range q.Labels {
		args = append(args, label)
	}
	query := `SELECT ` + assetColumns + ` FROM assets a
		WHERE a.asset_type = ? AND a.status = ? AND a.archived = 0
		  AND a.best_performance IN (` + storage.Placeholders(len(q.Labels)) + `)
		  AND NOT EXISTS (
		    SELECT 1 FROM protections p
		    WHERE (p.kind = 'concept' AND p.value = a.concept)
		       OR (p.kind = 'source' AND p.value = a.source_id)
		  )
		ORDER BY CASE a.best_performance WHEN 'BEST' THEN 0 WHEN 'GOOD' THEN 1 ELSE 2 END,
		         a.times_activated ASC, a.id ASC`
	return s.queryAssets(ctx, query, args...)
}

func (s *Store) queryAssets(ctx context.Context, query string, args ...any) ([]*Asset, error) {
	rows, err := s.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query assets: %w", err)
	}
	defer rows.Close()

	var assets []*Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		assets = append(assets, asset)
	}
	return assets, rows.Err()
}

// MarkActive records that the asset was linked to an ad.
func (s *Store) MarkActive(ctx context.Context, id string) error {
	now := storage.FormatTime(s.now())
	return s.updateOne(ctx,
		`UPDATE assets SET status = ?, times_activated = times_activated + 1, pause_reason = NULL,
		 last_activated_at = ?, updated_at = ? WHERE id = ?`,
		creative.StatusActive, now, now, id)
}

// MarkPaused records that the asset was unlinked from an ad.
func (s *Store) MarkPaused(ctx context.Context, id, reason string) error {
	now := storage.FormatTime(s.now())
	return s.updateOne(ctx,
		`UPDATE assets SET status = ?, pause_reason = ?, paused_at = ?, updated_at = ? WHERE id = ?`,
		creative.StatusPaused, storage.NullableString(reason), now, now, id)
}

// Archive hides an asset from candidate searches and default listings.
func (s *Store) Archive(ctx context.Context, id string) error {
	now := storage.FormatTime(s.now())
	return s.updateOne(ctx, `UPDATE assets SET archived = 1, updated_at = ? WHERE id = ?`, now, id)
}

func (s *Store) updateOne(ctx context.Context, query string, args ...any) error {
	res, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update asset: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, args[len(args)-1])
	}
	return nil
}

// Protect adds a protection. Protecting an already protected value updates
// its reason.
func (s *Store) Protect(ctx context.Context, kind ProtectionKind, value, reason string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return errors.New("protection value must be set")
	}
	if _, err := ParseProtectionKind(string(kind)); err != nil {
		return err
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO protections (kind, value, reason, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(kind, value) DO UPDATE SET reason = excluded.reason`,
		kind, value, storage.NullableString(reason), storage.FormatTime(s.now()))
	if err != nil {
		return fmt.Errorf("protect %s %q: %w", kind, value, err)
	}
	return nil
}

// Unprotect removes a protection. It reports whether one existed.
func (s *Store) Unprotect(ctx context.Context, kind ProtectionKind, value string) (bool, error) {
	res, err := s.db.Exec(ctx, `DELETE FROM protections WHERE kind = ? AND value = ?`, kind, strings.TrimSpace(value))
	if err != nil {
		return false, fmt.Errorf("unprotect %s %q: %w", kind, value, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// IsProtected reports whether the asset's concept or source is protected.
func (s *Store) IsProtected(ctx context.Context, asset *Asset) (bool, error) {
	if asset == nil || (asset.Concept == "" && asset.SourceID == "") {
		return false, nil
	}
	ctx = storage.EnsureContext(ctx)
	var count int
	row := s.db.Conn().QueryRowContext(ctx,
		`SELECT COUNT(1) FROM protections
		 WHERE (kind = 'concept' AND value = ?) OR (kind = 'source' AND value = ?)`,
		storage.NullableString(asset.Concept), storage.NullableString(asset.SourceID))
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("check protection: %w", err)
	}
	return count > 0, nil
}

// Protections lists all protections ordered by kind and value.
func (s *Store) Protections(ctx context.Context) ([]Protection, error) {
	ctx = storage.EnsureContext(ctx)
	rows, err := s.db.Conn().QueryContext(ctx, `SELECT kind, value, reason, created_at FROM protections ORDER BY kind, value`)
	if err != nil {
		return nil, fmt.Errorf("list protections: %w", err)
	}
	defer rows.Close()

	var out []Protection
	for rows.Next() {
		var (
			p          Protection
			reason     sql.NullString
			createdRaw string
		)
		if err := rows.Scan(&p.Kind, &p.Value, &reason, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan protection: %w", err)
		}
		p.Reason = reason.String
		if ts, err := storage.ParseTime(createdRaw); err == nil {
			p.CreatedAt = ts
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
