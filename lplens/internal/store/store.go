// Package store provides the data access layer for landing pages and their
// analysis snapshots.
//
// Timestamps are epoch milliseconds. "Most recent" ordering is
// created_at DESC with rowid as tie-breaker, so two rows written in the same
// millisecond still have a stable order.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Store wraps the lplens database.
type Store struct {
	DB  *sql.DB
	now func() time.Time
}

// NewStore creates a Store from an already-opened database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db, now: time.Now}
}

// SetClock overrides the time source (tests).
func (s *Store) SetClock(fn func() time.Time) {
	s.now = fn
}

func (s *Store) nowMs() int64 {
	return s.now().UnixMilli()
}

// ErrNoRows is returned by mutations that target a missing row.
var ErrNoRows = errors.New("store: no such row")

func nullable(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func ptr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func checkAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNoRows)
	}
	return nil
}
