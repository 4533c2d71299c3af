// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/autobrr/analyzarr/internal/dbinterface"
)

// MismatchStore persists the number of failed analysis passes per key. The
// counter lives outside the episode row so the prequeue gate can count
// releases for episodes that were never imported.
type MismatchStore struct {
	db dbinterface.TxBeginner
}

func NewMismatchStore(db dbinterface.TxBeginner) *MismatchStore {
	return &MismatchStore{db: db}
}

// Increment records one more failed pass for key and returns the new count.
func (s *MismatchStore) Increment(ctx context.Context, key, release string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin attempts tx: %w", err)
	}
	defer tx.Rollback()

	var attempts int
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO mismatch_attempts (key, attempts, last_release, updated_at)
		VALUES (?, 1, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			attempts = mismatch_attempts.attempts + 1,
			last_release = excluded.last_release,
			updated_at = excluded.updated_at
		RETURNING attempts
	`, key, release, time.Now().UTC()).Scan(&attempts); err != nil {
		return 0, fmt.Errorf("increment attempts %s: %w", key, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit attempts tx: %w", err)
	}

	return attempts, nil
}

// Get returns the current count for key, zero when none was recorded.
func (s *MismatchStore) Get(ctx context.Context, key string) (int, error) {
	var attempts int
	err := s.db.QueryRowContext(ctx, `SELECT attempts FROM mismatch_attempts WHERE key = ?`, key).Scan(&attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get attempts %s: %w", key, err)
	}
	return attempts, nil
}

// Reset clears the counter for key.
func (s *MismatchStore) Reset(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM mismatch_attempts WHERE key = ?`, key); err != nil {
		return fmt.Errorf("reset attempts %s: %w", key, err)
	}
	return nil
}
