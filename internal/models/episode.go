// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/autobrr/analyzarr/internal/dbinterface"
	"github.com/autobrr/analyzarr/internal/domain"
)

// Episode is the persisted analysis result for one episode key.
type Episode struct {
	Key               string    `json:"key"`
	SeriesTitle       string    `json:"seriesTitle"`
	Season            int       `json:"season"`
	Episode           int       `json:"episode"`
	Code              string    `json:"code"`
	ExpectedTitle     string    `json:"expectedTitle"`
	ActualTitle       string    `json:"actualTitle"`
	SceneName         string    `json:"sceneName"`
	FilePath          string    `json:"filePath,omitempty"`
	ReleaseGroup      string    `json:"releaseGroup,omitempty"`
	NormExpected      string    `json:"normExpected"`
	NormExtracted     string    `json:"normExtracted"`
	NormScene         string    `json:"normScene"`
	Confidence        float64   `json:"confidence"`
	SubstringOverride bool      `json:"substringOverride"`
	MissingTitle      bool      `json:"missingTitle"`
	Matched           bool      `json:"matches"`
	SonarrSeriesID    int       `json:"sonarrSeriesId,omitempty"`
	SonarrEpisodeID   int       `json:"sonarrEpisodeId,omitempty"`
	SonarrFileID      int       `json:"sonarrFileId,omitempty"`
	Attempts          int       `json:"attempts"`
	Tags              []string  `json:"tags"`
	LastAnalyzedAt    time.Time `json:"lastAnalyzedAt"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// HasTag reports whether the episode carries tag.
func (e *Episode) HasTag(tag string) bool {
	return slices.Contains(e.Tags, tag)
}

// SeriesStats aggregates the episodes of one series.
type SeriesStats struct {
	SeriesTitle  string `json:"seriesTitle"`
	Total        int    `json:"total"`
	Matched      int    `json:"matched"`
	Problematic  int    `json:"problematic"`
	Overridden   int    `json:"overridden"`
	MissingTitle int    `json:"missingTitle"`
}

// LibraryStats aggregates the whole store.
type LibraryStats struct {
	Total        int            `json:"total"`
	Matched      int            `json:"matched"`
	Mismatched   int            `json:"mismatched"`
	Problematic  int            `json:"problematic"`
	Overridden   int            `json:"overridden"`
	MissingTitle int            `json:"missingTitle"`
	Series       []*SeriesStats `json:"series"`
}

// OverrideAudit is one recorded manual override.
type OverrideAudit struct {
	ID                 int64     `json:"id"`
	EpisodeKey         string    `json:"episodeKey"`
	Actor              string    `json:"actor"`
	Reason             string    `json:"reason"`
	PreviousConfidence float64   `json:"previousConfidence"`
	PreviousTags       []string  `json:"previousTags"`
	CreatedAt          time.Time `json:"createdAt"`
}

type EpisodeStore struct {
	db dbinterface.TxBeginner
}

func NewEpisodeStore(db dbinterface.TxBeginner) *EpisodeStore {
	return &EpisodeStore{db: db}
}

const episodeColumns = `
	e.key, e.series_title, e.season, e.episode, e.code,
	e.expected_title, e.actual_title, e.scene_name, e.file_path, e.release_group,
	e.norm_expected, e.norm_extracted, e.norm_scene,
	e.confidence, e.substring_override, e.missing_title, e.matched,
	e.sonarr_series_id, e.sonarr_episode_id, e.sonarr_file_id,
	COALESCE(m.attempts, 0),
	e.last_analyzed_at, e.created_at, e.updated_at`

const episodeFrom = `
	FROM episodes e
	LEFT JOIN mismatch_attempts m ON m.key = e.key`

// Upsert inserts or replaces the analysis columns of ep. Tags are never
// touched here.
func (s *EpisodeStore) Upsert(ctx context.Context, ep *Episode) error {
	if ep == nil || strings.TrimSpace(ep.Key) == "" {
		return errors.New("episode key is required")
	}
	if ep.Confidence < 0 || ep.Confidence > 1 {
		return fmt.Errorf("confidence %.3f outside [0,1]", ep.Confidence)
	}

	now := time.Now().UTC()
	if ep.LastAnalyzedAt.IsZero() {
		ep.LastAnalyzedAt = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO episodes (
			key, series_title, season, episode, code,
			expected_title, actual_title, scene_name, file_path, release_group,
			norm_expected, norm_extracted, norm_scene,
			confidence, substring_override, missing_title, matched,
			sonarr_series_id, sonarr_episode_id, sonarr_file_id,
			last_analyzed_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			series_title = excluded.series_title,
			season = excluded.season,
			episode = excluded.episode,
			code = excluded.code,
			expected_title = excluded.expected_title,
			actual_title = excluded.actual_title,
			scene_name = excluded.scene_name,
			file_path = excluded.file_path,
			release_group = excluded.release_group,
			norm_expected = excluded.norm_expected,
			norm_extracted = excluded.norm_extracted,
			norm_scene = excluded.norm_scene,
			confidence = excluded.confidence,
			substring_override = excluded.substring_override,
			missing_title = excluded.missing_title,
			matched = excluded.matched,
			sonarr_series_id = CASE WHEN excluded.sonarr_series_id > 0 THEN excluded.sonarr_series_id ELSE episodes.sonarr_series_id END,
			sonarr_episode_id = CASE WHEN excluded.sonarr_episode_id > 0 THEN excluded.sonarr_episode_id ELSE episodes.sonarr_episode_id END,
			sonarr_file_id = CASE WHEN excluded.sonarr_file_id > 0 THEN excluded.sonarr_file_id ELSE episodes.sonarr_file_id END,
			last_analyzed_at = excluded.last_analyzed_at,
			updated_at = excluded.updated_at
	`,
		ep.Key, ep.SeriesTitle, ep.Season, ep.Episode, ep.Code,
		ep.ExpectedTitle, ep.ActualTitle, ep.SceneName, ep.FilePath, ep.ReleaseGroup,
		ep.NormExpected, ep.NormExtracted, ep.NormScene,
		ep.Confidence, ep.SubstringOverride, ep.MissingTitle, ep.Matched,
		ep.SonarrSeriesID, ep.SonarrEpisodeID, ep.SonarrFileID,
		ep.LastAnalyzedAt, now, now,
	)
	if err != nil {
		if isCheckConstraintError(err) {
			return fmt.Errorf("upsert episode %s: invalid column value: %w", ep.Key, err)
		}
		return fmt.Errorf("upsert episode %s: %w", ep.Key, err)
	}

	return nil
}

// Touch refreshes the file-derived columns of an existing record without
// changing its classification.
func (s *EpisodeStore) Touch(ctx context.Context, key, actualTitle, sceneName, filePath, releaseGroup, normScene string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE episodes
		SET actual_title = ?, scene_name = ?, file_path = ?, release_group = ?, norm_scene = ?,
		    last_analyzed_at = ?, updated_at = ?
		WHERE key = ?
	`, actualTitle, sceneName, filePath, releaseGroup, normScene, now, now, key)
	if err != nil {
		return fmt.Errorf("touch episode %s: %w", key, err)
	}
	return requireAffected(res, key)
}

// Get returns the episode for key with its tags, or domain.ErrNotFound.
func (s *EpisodeStore) Get(ctx context.Context, key string) (*Episode, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+episodeColumns+episodeFrom+` WHERE e.key = ?`, key)

	ep, err := scanEpisode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("episode %s: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	ep.Tags, err = s.tags(ctx, s.db, key)
	if err != nil {
		return nil, err
	}

	return ep, nil
}

// FindByFilePath returns the episode last analysed from path, or
// domain.ErrNotFound. When several records share the path the most recently
// analysed one wins.
func (s *EpisodeStore) FindByFilePath(ctx context.Context, path string) (*Episode, error) {
	var key string
	err := s.db.QueryRowContext(ctx, `
		SELECT key FROM episodes
		WHERE file_path = ? AND file_path != ''
		ORDER BY last_analyzed_at DESC, key
		LIMIT 1
	`, path).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("episode for file %s: %w", path, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find episode for file %s: %w", path, err)
	}

	return s.Get(ctx, key)
}

// ListBySeries returns every episode stored for a series title, ordered by
// season and episode. The title comparison is case-insensitive.
func (s *EpisodeStore) ListBySeries(ctx context.Context, seriesTitle string) ([]*Episode, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+episodeColumns+episodeFrom+`
		WHERE e.series_title = ? COLLATE NOCASE
		ORDER BY e.season, e.episode, e.key
	`, seriesTitle)
	if err != nil {
		return nil, fmt.Errorf("list episodes for %s: %w", seriesTitle, err)
	}
	defer rows.Close()

	var episodes []*Episode
	byKey := make(map[string]*Episode)
	for rows.Next() {
		ep, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		ep.Tags = []string{}
		episodes = append(episodes, ep)
		byKey[ep.Key] = ep
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate episodes: %w", err)
	}

	if len(episodes) == 0 {
		return episodes, nil
	}

	keys := make([]any, 0, len(episodes))
	for _, ep := range episodes {
		keys = append(keys, ep.Key)
	}

	tagRows, err := s.db.QueryContext(ctx, `
		SELECT episode_key, tag FROM episode_tags
		WHERE episode_key IN (`+dbinterface.Placeholders(len(keys))+`)
		ORDER BY episode_key, tag
	`, keys...)
	if err != nil {
		return nil, fmt.Errorf("list tags for %s: %w", seriesTitle, err)
	}
	defer tagRows.Close()

	for tagRows.Next() {
		var key, tag string
		if err := tagRows.Scan(&key, &tag); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		if ep, ok := byKey[key]; ok {
			ep.Tags = append(ep.Tags, tag)
		}
	}

	return episodes, tagRows.Err()
}

// ListKeys returns every stored episode key.
func (s *EpisodeStore) ListKeys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM episodes ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list episode keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, key)
	}

	return keys, rows.Err()
}

// Tags returns the tag set of key.
func (s *EpisodeStore) Tags(ctx context.Context, key string) ([]string, error) {
	if err := s.ensureExists(ctx, s.db, key); err != nil {
		return nil, err
	}
	return s.tags(ctx, s.db, key)
}

// AddTag adds a user tag. Protected tags are rejected with a
// *domain.ProtectedTagError; adding a present tag is a no-op.
func (s *EpisodeStore) AddTag(ctx context.Context, key, tag string) ([]string, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return nil, errors.New("tag is required")
	}
	if domain.IsProtectedTag(tag) {
		return nil, &domain.ProtectedTagError{Tag: tag}
	}

	return s.mutateTags(ctx, key, []string{tag}, nil)
}

// RemoveTag removes a user tag with the same protection as AddTag.
func (s *EpisodeStore) RemoveTag(ctx context.Context, key, tag string) ([]string, error) {
	tag = strings.TrimSpace(tag)
	if domain.IsProtectedTag(tag) {
		return nil, &domain.ProtectedTagError{Tag: tag}
	}

	return s.mutateTags(ctx, key, nil, []string{tag})
}

// SetSystemTags applies protected tag transitions on behalf of the decision
// pipeline and the job orchestrator. It bypasses the protection check.
func (s *EpisodeStore) SetSystemTags(ctx context.Context, key string, add, remove []string) ([]string, error) {
	return s.mutateTags(ctx, key, add, remove)
}

func (s *EpisodeStore) mutateTags(ctx context.Context, key string, add, remove []string) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tag tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.ensureExists(ctx, tx, key); err != nil {
		return nil, err
	}

	for _, tag := range remove {
		if _, err := tx.ExecContext(ctx, `DELETE FROM episode_tags WHERE episode_key = ? AND tag = ?`, key, tag); err != nil {
			return nil, fmt.Errorf("remove tag %q from %s: %w", tag, key, err)
		}
	}

	if len(add) > 0 {
		args := make([]any, 0, len(add)*3)
		now := time.Now().UTC()
		for _, tag := range add {
			args = append(args, key, tag, now)
		}
		query := dbinterface.BuildQueryWithPlaceholders(
			`INSERT INTO episode_tags (episode_key, tag, created_at) VALUES %s ON CONFLICT(episode_key, tag) DO NOTHING`,
			3, len(add),
		)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			if isForeignKeyConstraintError(err) {
				return nil, fmt.Errorf("episode %s: %w", key, domain.ErrNotFound)
			}
			return nil, fmt.Errorf("add tags to %s: %w", key, err)
		}
	}

	tags, err := s.tags(ctx, tx, key)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tag tx: %w", err)
	}

	return tags, nil
}

// Purge deletes the episode, its tags and its attempt counter.
func (s *EpisodeStore) Purge(ctx context.Context, key string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin purge tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM episodes WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("purge episode %s: %w", key, err)
	}
	if err := requireAffected(res, key); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM mismatch_attempts WHERE key = ?`, key); err != nil {
		return fmt.Errorf("purge attempts %s: %w", key, err)
	}

	return tx.Commit()
}

// PurgeSeries deletes every episode of a series and returns how many were
// removed.
func (s *EpisodeStore) PurgeSeries(ctx context.Context, seriesTitle string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin purge tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM mismatch_attempts
		WHERE key IN (SELECT key FROM episodes WHERE series_title = ? COLLATE NOCASE)
	`, seriesTitle); err != nil {
		return 0, fmt.Errorf("purge attempts for %s: %w", seriesTitle, err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM episodes WHERE series_title = ? COLLATE NOCASE`, seriesTitle)
	if err != nil {
		return 0, fmt.Errorf("purge series %s: %w", seriesTitle, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	return n, tx.Commit()
}

// Stats aggregates counts per series and for the whole library.
func (s *EpisodeStore) Stats(ctx context.Context) (*LibraryStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.series_title,
		       COUNT(*),
		       SUM(e.matched),
		       SUM(CASE WHEN p.tag IS NOT NULL THEN 1 ELSE 0 END),
		       SUM(CASE WHEN o.tag IS NOT NULL THEN 1 ELSE 0 END),
		       SUM(e.missing_title)
		FROM episodes e
		LEFT JOIN episode_tags p ON p.episode_key = e.key AND p.tag = ?
		LEFT JOIN episode_tags o ON o.episode_key = e.key AND o.tag = ?
		GROUP BY e.series_title
		ORDER BY e.series_title COLLATE NOCASE
	`, domain.TagProblematic, domain.TagOverride)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	stats := &LibraryStats{Series: []*SeriesStats{}}
	for rows.Next() {
		var ss SeriesStats
		if err := rows.Scan(&ss.SeriesTitle, &ss.Total, &ss.Matched, &ss.Problematic, &ss.Overridden, &ss.MissingTitle); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats.Series = append(stats.Series, &ss)
		stats.Total += ss.Total
		stats.Matched += ss.Matched
		stats.Problematic += ss.Problematic
		stats.Overridden += ss.Overridden
		stats.MissingTitle += ss.MissingTitle
	}
	stats.Mismatched = stats.Total - stats.Matched

	return stats, rows.Err()
}

// Override marks key as verified by a human: confidence 1.0, missingTitle
// cleared, "problematic-episode" removed, "matched" and "override" added and
// the attempt counter reset. An audit row records who did it and why.
func (s *EpisodeStore) Override(ctx context.Context, key, actor, reason string) (*Episode, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin override tx: %w", err)
	}
	defer tx.Rollback()

	var previousConfidence float64
	err = tx.QueryRowContext(ctx, `SELECT confidence FROM episodes WHERE key = ?`, key).Scan(&previousConfidence)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("episode %s: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read episode %s: %w", key, err)
	}

	previousTags, err := s.tags(ctx, tx, key)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		UPDATE episodes
		SET confidence = 1.0, missing_title = 0, matched = 1, updated_at = ?
		WHERE key = ?
	`, now, key); err != nil {
		return nil, fmt.Errorf("override episode %s: %w", key, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM episode_tags WHERE episode_key = ? AND tag = ?`, key, domain.TagProblematic); err != nil {
		return nil, fmt.Errorf("clear problematic tag %s: %w", key, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO episode_tags (episode_key, tag, created_at) VALUES (?, ?, ?), (?, ?, ?)
		ON CONFLICT(episode_key, tag) DO NOTHING
	`, key, domain.TagMatched, now, key, domain.TagOverride, now); err != nil {
		return nil, fmt.Errorf("tag override %s: %w", key, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM mismatch_attempts WHERE key = ?`, key); err != nil {
		return nil, fmt.Errorf("reset attempts %s: %w", key, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO override_audit (episode_key, actor, reason, previous_confidence, previous_tags, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, key, actor, reason, previousConfidence, strings.Join(previousTags, ","), now); err != nil {
		return nil, fmt.Errorf("audit override %s: %w", key, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit override tx: %w", err)
	}

	return s.Get(ctx, key)
}

// OverrideHistory lists the audit rows for key, newest first.
func (s *EpisodeStore) OverrideHistory(ctx context.Context, key string) ([]*OverrideAudit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, episode_key, actor, reason, previous_confidence, previous_tags, created_at
		FROM override_audit
		WHERE episode_key = ?
		ORDER BY id DESC
	`, key)
	if err != nil {
		return nil, fmt.Errorf("query override history %s: %w", key, err)
	}
	defer rows.Close()

	history := []*OverrideAudit{}
	for rows.Next() {
		var a OverrideAudit
		var previousTags string
		if err := rows.Scan(&a.ID, &a.EpisodeKey, &a.Actor, &a.Reason, &a.PreviousConfidence, &previousTags, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan override audit: %w", err)
		}
		a.PreviousTags = splitTags(previousTags)
		history = append(history, &a)
	}

	return history, rows.Err()
}

func (s *EpisodeStore) ensureExists(ctx context.Context, q dbinterface.Querier, key string) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM episodes WHERE key = ?`, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("episode %s: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("check episode %s: %w", key, err)
	}
	return nil
}

func (s *EpisodeStore) tags(ctx context.Context, q dbinterface.Querier, key string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT tag FROM episode_tags WHERE episode_key = ? ORDER BY tag`, key)
	if err != nil {
		return nil, fmt.Errorf("query tags %s: %w", key, err)
	}
	defer rows.Close()

	tags := []string{}
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, tag)
	}

	return tags, rows.Err()
}

func scanEpisode(scanner sqlScanner) (*Episode, error) {
	var ep Episode
	err := scanner.Scan(
		&ep.Key, &ep.SeriesTitle, &ep.Season, &ep.Episode, &ep.Code,
		&ep.ExpectedTitle, &ep.ActualTitle, &ep.SceneName, &ep.FilePath, &ep.ReleaseGroup,
		&ep.NormExpected, &ep.NormExtracted, &ep.NormScene,
		&ep.Confidence, &ep.SubstringOverride, &ep.MissingTitle, &ep.Matched,
		&ep.SonarrSeriesID, &ep.SonarrEpisodeID, &ep.SonarrFileID,
		&ep.Attempts,
		&ep.LastAnalyzedAt, &ep.CreatedAt, &ep.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan episode columns: %w", err)
	}
	return &ep, nil
}

func requireAffected(res sql.Result, key string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("episode %s: %w", key, domain.ErrNotFound)
	}
	return nil
}

func splitTags(joined string) []string {
	if joined == "" {
		return []string{}
	}
	return strings.Split(joined, ",")
}
