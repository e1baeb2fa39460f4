// CLAUDE:SUMMARY LandingPage CRUD scoped by account, with atomic creation of the initial pending snapshot.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hazyhaar/lplens/dbopen"
)

const lpColumns = `id, account_id, url, name, created_at`

// CreateLandingPage inserts lp and its first snapshot (pending, version 1)
// in one transaction.
func (s *Store) CreateLandingPage(ctx context.Context, lp *LandingPage, firstSnapshotID string) (*Snapshot, error) {
	now := s.nowMs()
	if lp.CreatedAt == 0 {
		lp.CreatedAt = now
	}
	snap := &Snapshot{
		ID:            firstSnapshotID,
		LandingPageID: lp.ID,
		Status:        StatusPending,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO landing_pages (id, account_id, url, name, created_at) VALUES (?, ?, ?, ?, ?)`,
			lp.ID, lp.AccountID, lp.URL, nullable(lp.Name), lp.CreatedAt); err != nil {
			return fmt.Errorf("insert landing page: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO snapshots (id, landing_page_id, status, version, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			snap.ID, snap.LandingPageID, snap.Status, snap.Version, snap.CreatedAt, snap.UpdatedAt); err != nil {
			return fmt.Errorf("insert first snapshot: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	lp.Snapshots = []*Snapshot{snap}
	return snap, nil
}

// GetLandingPage returns the landing page if it exists and belongs to
// accountID, or nil.
func (s *Store) GetLandingPage(ctx context.Context, accountID, id string) (*LandingPage, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+lpColumns+` FROM landing_pages WHERE id = ? AND account_id = ?`, id, accountID)
	return scanLandingPage(row)
}

// GetLandingPageByID returns the landing page regardless of owner, or nil.
// Used by the public share view only.
func (s *Store) GetLandingPageByID(ctx context.Context, id string) (*LandingPage, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+lpColumns+` FROM landing_pages WHERE id = ?`, id)
	return scanLandingPage(row)
}

// ListLandingPages returns the account's landing pages, newest first, each
// with only its latest snapshot attached.
func (s *Store) ListLandingPages(ctx context.Context, accountID string) ([]*LandingPage, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+lpColumns+` FROM landing_pages WHERE account_id = ?
		ORDER BY created_at DESC, rowid DESC`, accountID)
	if err != nil {
		return nil, err
	}
	var lps []*LandingPage
	for rows.Next() {
		lp, err := scanLandingPageRows(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		lps = append(lps, lp)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, lp := range lps {
		latest, err := s.LatestSnapshot(ctx, lp.ID)
		if err != nil {
			return nil, err
		}
		if latest != nil {
			lp.Snapshots = []*Snapshot{latest}
		}
	}
	return lps, nil
}

// CountLandingPages returns how many landing pages accountID owns.
func (s *Store) CountLandingPages(ctx context.Context, accountID string) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM landing_pages WHERE account_id = ?`, accountID).Scan(&n)
	return n, err
}

// DeleteLandingPage removes the landing page (snapshots cascade). Returns
// false if nothing owned by accountID matched.
func (s *Store) DeleteLandingPage(ctx context.Context, accountID, id string) (bool, error) {
	res, err := dbopen.Exec(ctx, s.DB, `DELETE FROM landing_pages WHERE id = ? AND account_id = ?`, id, accountID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func scanLandingPage(row *sql.Row) (*LandingPage, error) {
	var lp LandingPage
	var name sql.NullString
	err := row.Scan(&lp.ID, &lp.AccountID, &lp.URL, &name, &lp.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	lp.Name = ptr(name)
	return &lp, nil
}

func scanLandingPageRows(rows *sql.Rows) (*LandingPage, error) {
	var lp LandingPage
	var name sql.NullString
	if err := rows.Scan(&lp.ID, &lp.AccountID, &lp.URL, &name, &lp.CreatedAt); err != nil {
		return nil, err
	}
	lp.Name = ptr(name)
	return &lp, nil
}
