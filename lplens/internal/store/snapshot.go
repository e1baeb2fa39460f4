// CLAUDE:SUMMARY Snapshot lifecycle queries: latest/done lookups, status transitions, version assignment, pending claims, stale sweeps.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/lplens/dbopen"
)

const snapColumns = `id, landing_page_id, status, screenshot_path, analysis_result,
	error_message, version, created_at, updated_at`

// ListSnapshots returns the snapshot history of a landing page, newest first.
func (s *Store) ListSnapshots(ctx context.Context, lpID string) ([]*Snapshot, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+snapColumns+` FROM snapshots WHERE landing_page_id = ?
		ORDER BY created_at DESC, rowid DESC`, lpID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// LatestSnapshot returns the most recent snapshot of a landing page, or nil.
func (s *Store) LatestSnapshot(ctx context.Context, lpID string) (*Snapshot, error) {
	return s.querySnapshot(ctx,
		`SELECT `+snapColumns+` FROM snapshots WHERE landing_page_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT 1`, lpID)
}

// LatestDoneSnapshot returns the most recent snapshot in status done, or nil.
func (s *Store) LatestDoneSnapshot(ctx context.Context, lpID string) (*Snapshot, error) {
	return s.querySnapshot(ctx,
		`SELECT `+snapColumns+` FROM snapshots WHERE landing_page_id = ? AND status = 'done'
		ORDER BY created_at DESC, rowid DESC LIMIT 1`, lpID)
}

// GetSnapshot returns a snapshot by id, or nil.
func (s *Store) GetSnapshot(ctx context.Context, id string) (*Snapshot, error) {
	return s.querySnapshot(ctx, `SELECT `+snapColumns+` FROM snapshots WHERE id = ?`, id)
}

// CountSnapshots returns the number of snapshot rows of a landing page.
func (s *Store) CountSnapshots(ctx context.Context, lpID string) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots WHERE landing_page_id = ?`, lpID).Scan(&n)
	return n, err
}

// InsertSnapshot appends a snapshot in the given status whose version is
// the landing page's row count after the insert.
func (s *Store) InsertSnapshot(ctx context.Context, id, lpID string, status Status) (*Snapshot, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("insert snapshot: invalid status %q", status)
	}
	now := s.nowMs()
	var version int
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO snapshots (id, landing_page_id, status, version, created_at, updated_at)
		SELECT ?, ?, ?, COUNT(*) + 1, ?, ? FROM snapshots WHERE landing_page_id = ?
		RETURNING version`,
		id, lpID, status, now, now, lpID).Scan(&version)
	if err != nil {
		return nil, fmt.Errorf("insert snapshot: %w", err)
	}
	return &Snapshot{
		ID:            id,
		LandingPageID: lpID,
		Status:        status,
		Version:       version,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// MarkAnalyzing moves a snapshot to analyzing. A reused failed row loses its
// error message and any partial result: both only belong to settled states.
func (s *Store) MarkAnalyzing(ctx context.Context, id string) error {
	res, err := dbopen.Exec(ctx, s.DB,
		`UPDATE snapshots SET status = 'analyzing', error_message = NULL, analysis_result = NULL, updated_at = ?
		WHERE id = ?`, s.nowMs(), id)
	if err != nil {
		return fmt.Errorf("mark analyzing: %w", err)
	}
	return checkAffected(res, "mark analyzing")
}

// MarkDone stores a successful result. The error message is cleared and the
// version is set to the landing page's current snapshot count, which is
// returned.
func (s *Store) MarkDone(ctx context.Context, id string, screenshotPath *string, result string) (int, error) {
	var version int
	err := s.DB.QueryRowContext(ctx,
		`UPDATE snapshots SET
			status = 'done',
			screenshot_path = ?,
			analysis_result = ?,
			error_message = NULL,
			version = (SELECT COUNT(*) FROM snapshots s WHERE s.landing_page_id = snapshots.landing_page_id),
			updated_at = ?
		WHERE id = ?
		RETURNING version`,
		nullable(screenshotPath), result, s.nowMs(), id).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("mark done: %w", ErrNoRows)
	}
	if err != nil {
		return 0, fmt.Errorf("mark done: %w", err)
	}
	return version, nil
}

// MarkError records a failed attempt. Version and any previous result stay
// as they were.
func (s *Store) MarkError(ctx context.Context, id, message string) error {
	res, err := dbopen.Exec(ctx, s.DB,
		`UPDATE snapshots SET status = 'error', error_message = ?, updated_at = ? WHERE id = ?`,
		message, s.nowMs(), id)
	if err != nil {
		return fmt.Errorf("mark error: %w", err)
	}
	return checkAffected(res, "mark error")
}

// ClaimPending atomically moves a pending snapshot to analyzing. Returns
// false when the snapshot was no longer pending.
func (s *Store) ClaimPending(ctx context.Context, id string) (bool, error) {
	res, err := dbopen.Exec(ctx, s.DB,
		`UPDATE snapshots SET status = 'analyzing', error_message = NULL, analysis_result = NULL, updated_at = ?
		WHERE id = ? AND status = 'pending'`,
		s.nowMs(), id)
	if err != nil {
		return false, fmt.Errorf("claim pending: %w", err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// ListPendingSnapshots returns up to limit pending snapshots that are the latest
// of their landing page, oldest first.
func (s *Store) ListPendingSnapshots(ctx context.Context, limit int) ([]PendingJob, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT s.id, s.landing_page_id, lp.account_id, lp.url
		FROM snapshots s JOIN landing_pages lp ON lp.id = s.landing_page_id
		WHERE s.status = 'pending'
		  AND s.id = (SELECT id FROM snapshots l WHERE l.landing_page_id = s.landing_page_id
		              ORDER BY l.created_at DESC, l.rowid DESC LIMIT 1)
		ORDER BY s.created_at ASC, s.rowid ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []PendingJob
	for rows.Next() {
		var j PendingJob
		if err := rows.Scan(&j.SnapshotID, &j.LandingPageID, &j.AccountID, &j.URL); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// FailStaleAnalyzing moves snapshots stuck in analyzing since before cutoff
// to error with message, and returns their ids.
func (s *Store) FailStaleAnalyzing(ctx context.Context, cutoff time.Time, message string) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx,
		`UPDATE snapshots SET status = 'error', error_message = ?, updated_at = ?
		WHERE status = 'analyzing' AND updated_at < ?
		RETURNING id`,
		message, s.nowMs(), cutoff.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("fail stale: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) querySnapshot(ctx context.Context, query string, args ...any) (*Snapshot, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanSnapshot(rows)
}

func scanSnapshot(rows *sql.Rows) (*Snapshot, error) {
	var snap Snapshot
	var shot, result, msg sql.NullString
	if err := rows.Scan(&snap.ID, &snap.LandingPageID, &snap.Status, &shot, &result,
		&msg, &snap.Version, &snap.CreatedAt, &snap.UpdatedAt); err != nil {
		return nil, err
	}
	snap.ScreenshotPath = ptr(shot)
	snap.AnalysisResult = ptr(result)
	snap.ErrorMessage = ptr(msg)
	return &snap, nil
}
