// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/autobrr/analyzarr/internal/dbinterface"
	"github.com/autobrr/analyzarr/internal/domain"
)

type JobStatus string

const (
	JobStatusQueued  JobStatus = "queued"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusError   JobStatus = "error"
)

// IsTerminal reports whether no further mutation is allowed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusError
}

type JobType string

const (
	JobTypeReplace     JobType = "replace"
	JobTypeLibraryScan JobType = "library_scan"
	JobTypeCleanup     JobType = "library_cleanup"
)

// Library-wide jobs are keyed by their type so only one runs at a time.
const (
	LibraryScanKey    = "library_scan"
	LibraryCleanupKey = "library_cleanup"
)

const (
	// MaxJobLogLines bounds the log kept per job; older lines are dropped.
	MaxJobLogLines = 1000

	jobLogTimeLayout = "2006-01-02 15:04:05"
)

// ErrJobNotActive is returned when a terminal job is asked to change.
var ErrJobNotActive = errors.New("job is not active")

// RemediationJob is one replace, scan or cleanup attempt.
type RemediationJob struct {
	ID          string     `json:"id"`
	Type        JobType    `json:"type"`
	EpisodeKey  string     `json:"episodeKey"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`
	Message     string     `json:"message"`
	DryRun      bool       `json:"dryRun"`
	Log         []string   `json:"log"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// ConflictError carries the job already active for a key.
type ConflictError struct {
	EpisodeKey  string
	ActiveJobID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("job %s already active for %s", e.ActiveJobID, e.EpisodeKey)
}

func (e *ConflictError) Is(target error) bool {
	return target == domain.ErrConcurrencyConflict
}

type RemediationJobStore struct {
	db  dbinterface.TxBeginner
	now func() time.Time
}

func NewRemediationJobStore(db dbinterface.TxBeginner) *RemediationJobStore {
	return &RemediationJobStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const activeJobStatuses = `('queued', 'running')`

// Enqueue creates a queued job for key unless one is already queued or
// running, in which case it returns a *ConflictError. The check and insert
// are a single statement. Earlier terminal jobs for the key are superseded
// and removed.
func (s *RemediationJobStore) Enqueue(ctx context.Context, jobType JobType, key string, dryRun bool) (*RemediationJob, error) {
	if strings.TrimSpace(key) == "" {
		return nil, errors.New("episode key is required")
	}

	id := uuid.NewString()
	now := s.now()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO remediation_jobs (id, job_type, episode_key, status, progress, message, dry_run, created_at, updated_at)
		SELECT ?, ?, ?, ?, 0, 'queued', ?, ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM remediation_jobs
			WHERE episode_key = ? AND status IN `+activeJobStatuses+`
		)
	`, id, jobType, key, JobStatusQueued, dryRun, now, now, key)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, s.conflict(ctx, key)
		}
		return nil, fmt.Errorf("insert job: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return nil, s.conflict(ctx, key)
	}

	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM remediation_jobs
		WHERE episode_key = ? AND id != ? AND status IN ('done', 'error')
	`, key, id); err != nil {
		return nil, fmt.Errorf("remove superseded jobs for %s: %w", key, err)
	}

	return s.Get(ctx, id)
}

func (s *RemediationJobStore) conflict(ctx context.Context, key string) error {
	conflict := &ConflictError{EpisodeKey: key}
	if active, err := s.ActiveForKey(ctx, key); err == nil {
		conflict.ActiveJobID = active.ID
	}
	return conflict
}

// ActiveForKey returns the queued or running job for key.
func (s *RemediationJobStore) ActiveForKey(ctx context.Context, key string) (*RemediationJob, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, job_type, episode_key, status, progress, message, dry_run, created_at, started_at, completed_at
		FROM remediation_jobs
		WHERE episode_key = ? AND status IN `+activeJobStatuses+`
	`, key)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("active job for %s: %w", key, domain.ErrNotFound)
	}
	return job, err
}

// Get returns the job with its log.
func (s *RemediationJobStore) Get(ctx context.Context, id string) (*RemediationJob, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, job_type, episode_key, status, progress, message, dry_run, created_at, started_at, completed_at
		FROM remediation_jobs
		WHERE id = ?
	`, id)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	job.Log, err = s.logLines(ctx, id)
	if err != nil {
		return nil, err
	}

	return job, nil
}

// List returns the most recent jobs without their logs.
func (s *RemediationJobStore) List(ctx context.Context, limit int) ([]*RemediationJob, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_type, episode_key, status, progress, message, dry_run, created_at, started_at, completed_at
		FROM remediation_jobs
		ORDER BY created_at DESC, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []*RemediationJob{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

// Start moves a queued job to running.
func (s *RemediationJobStore) Start(ctx context.Context, id string) error {
	now := s.now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE remediation_jobs
		SET status = ?, message = 'running', started_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, JobStatusRunning, now, now, id, JobStatusQueued)
	if err != nil {
		return fmt.Errorf("start job %s: %w", id, err)
	}
	return requireActive(res, id)
}

// UpdateProgress raises progress and replaces the message of an active job.
// Progress never decreases.
func (s *RemediationJobStore) UpdateProgress(ctx context.Context, id string, progress int, message string) error {
	progress = max(0, min(progress, 100))

	res, err := s.db.ExecContext(ctx, `
		UPDATE remediation_jobs
		SET progress = MAX(progress, ?), message = ?, updated_at = ?
		WHERE id = ? AND status IN `+activeJobStatuses+`
	`, progress, message, s.now(), id)
	if err != nil {
		return fmt.Errorf("update job progress %s: %w", id, err)
	}
	return requireActive(res, id)
}

// AppendLog appends a timestamped line to an active job's log and trims the
// log to MaxJobLogLines.
func (s *RemediationJobStore) AppendLog(ctx context.Context, id, text string) (string, error) {
	now := s.now()
	line := FormatJobLogLine(now, text)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin job log tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO remediation_job_logs (job_id, line, created_at)
		SELECT ?, ?, ?
		WHERE EXISTS (
			SELECT 1 FROM remediation_jobs WHERE id = ? AND status IN `+activeJobStatuses+`
		)
	`, id, line, now, id)
	if err != nil {
		return "", fmt.Errorf("append job log %s: %w", id, err)
	}
	if err := requireActive(res, id); err != nil {
		return "", err
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM remediation_job_logs
		WHERE job_id = ? AND id NOT IN (
			SELECT id FROM remediation_job_logs WHERE job_id = ? ORDER BY id DESC LIMIT ?
		)
	`, id, id, MaxJobLogLines); err != nil {
		return "", fmt.Errorf("trim job log %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit job log tx: %w", err)
	}

	return line, nil
}

// Finish moves an active job to done or error. A done job reports 100%.
func (s *RemediationJobStore) Finish(ctx context.Context, id string, status JobStatus, message string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("finish job %s: %q is not a terminal status", id, status)
	}

	now := s.now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE remediation_jobs
		SET status = ?, message = ?,
		    progress = CASE WHEN ? = 'done' THEN 100 ELSE progress END,
		    completed_at = ?, updated_at = ?
		WHERE id = ? AND status IN `+activeJobStatuses+`
	`, status, message, status, now, now, id)
	if err != nil {
		return fmt.Errorf("finish job %s: %w", id, err)
	}
	return requireActive(res, id)
}

// MarkActiveFailed moves every queued or running job to error. It runs at
// startup; jobs do not survive a restart.
func (s *RemediationJobStore) MarkActiveFailed(ctx context.Context, message string) (int64, error) {
	now := s.now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE remediation_jobs
		SET status = ?, message = ?, completed_at = ?, updated_at = ?
		WHERE status IN `+activeJobStatuses+`
	`, JobStatusError, message, now, now)
	if err != nil {
		return 0, fmt.Errorf("mark active jobs failed: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	return rows, nil
}

// ListQueued returns queued job ids, oldest first.
func (s *RemediationJobStore) ListQueued(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM remediation_jobs WHERE status = ? ORDER BY created_at, id
	`, JobStatusQueued)
	if err != nil {
		return nil, fmt.Errorf("list queued jobs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan job id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// CountByStatus returns the number of jobs per status.
func (s *RemediationJobStore) CountByStatus(ctx context.Context) (map[JobStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM remediation_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[JobStatus]int)
	for rows.Next() {
		var status JobStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan job count: %w", err)
		}
		counts[status] = n
	}

	return counts, rows.Err()
}

func (s *RemediationJobStore) logLines(ctx context.Context, id string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT line FROM remediation_job_logs WHERE job_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("query job log %s: %w", id, err)
	}
	defer rows.Close()

	lines := []string{}
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, fmt.Errorf("scan job log line: %w", err)
		}
		lines = append(lines, line)
	}

	return lines, rows.Err()
}

// FormatJobLogLine renders a log line as "[YYYY-MM-DD HH:MM:SS] text".
func FormatJobLogLine(at time.Time, text string) string {
	return "[" + at.Format(jobLogTimeLayout) + "] " + text
}

func scanJob(scanner sqlScanner) (*RemediationJob, error) {
	var job RemediationJob
	var startedAt, completedAt sql.NullTime

	if err := scanner.Scan(
		&job.ID,
		&job.Type,
		&job.EpisodeKey,
		&job.Status,
		&job.Progress,
		&job.Message,
		&job.DryRun,
		&job.CreatedAt,
		&startedAt,
		&completedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan job columns: %w", err)
	}

	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	job.Log = []string{}

	return &job, nil
}

func requireActive(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("job %s: %w", id, ErrJobNotActive)
	}
	return nil
}
