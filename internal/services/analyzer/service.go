// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package analyzer runs the verification pipeline: a file or library entry is
// parsed, its official title resolved, the title classified, and the result
// stored together with the tag and attempt policy.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/analyzarr/internal/domain"
	"github.com/autobrr/analyzarr/internal/models"
	"github.com/autobrr/analyzarr/internal/services/matcher"
	"github.com/autobrr/analyzarr/internal/services/resolver"
	"github.com/autobrr/analyzarr/pkg/cooldown"
	"github.com/autobrr/analyzarr/pkg/sonarr"
	"github.com/autobrr/analyzarr/pkg/titles"
)

// EventStatus describes what happened to a watched path.
type EventStatus string

const (
	EventCreated  EventStatus = "created"
	EventModified EventStatus = "modified"
	EventRemoved  EventStatus = "removed"
)

// Event is a filesystem change handed to the pipeline.
type Event struct {
	Path string
	// TriggerKey identifies the originating download for cooldown purposes.
	// The scene name of Path is used when empty.
	TriggerKey string
	Status     EventStatus
}

// EpisodeStore is the subset of *models.EpisodeStore the pipeline uses.
type EpisodeStore interface {
	Get(ctx context.Context, key string) (*models.Episode, error)
	Upsert(ctx context.Context, ep *models.Episode) error
	Touch(ctx context.Context, key, actualTitle, sceneName, filePath, releaseGroup, normScene string) error
	FindByFilePath(ctx context.Context, path string) (*models.Episode, error)
	SetSystemTags(ctx context.Context, key string, add, remove []string) ([]string, error)
	Purge(ctx context.Context, key string) error
	ListKeys(ctx context.Context) ([]string, error)
}

// AttemptStore is the subset of *models.MismatchStore the pipeline uses.
type AttemptStore interface {
	Increment(ctx context.Context, key, release string) (int, error)
	Get(ctx context.Context, key string) (int, error)
	Reset(ctx context.Context, key string) error
}

// Library lists the media manager's series, episodes and files.
type Library interface {
	Series(ctx context.Context) ([]sonarr.Series, error)
	Episodes(ctx context.Context, seriesID int) ([]sonarr.Episode, error)
	EpisodeFile(ctx context.Context, id int) (*sonarr.EpisodeFile, error)
}

// Enqueuer creates replace jobs. It returns an error matching
// domain.ErrConcurrencyConflict when one is already active for the key.
type Enqueuer interface {
	EnqueueReplace(ctx context.Context, key string) (*models.RemediationJob, error)
}

// Config holds the pipeline policy.
type Config struct {
	MaxAttempts     int
	AutoRemediate   bool
	CooldownWindow  time.Duration
	ScanConcurrency int
	MovieCategory   string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     3,
		CooldownWindow:  5 * time.Minute,
		ScanConcurrency: 4,
		MovieCategory:   "movies",
	}
}

// ConfigFromDomain maps the application config onto the pipeline config.
func ConfigFromDomain(cfg *domain.Config) Config {
	return Config{
		MaxAttempts:     cfg.MaxAttempts,
		AutoRemediate:   cfg.AutoRemediate,
		CooldownWindow:  cfg.CooldownDuration(),
		ScanConcurrency: cfg.ScanConcurrency,
		MovieCategory:   cfg.MovieCategory,
	}
}

// Result reports what the pipeline did with one input.
type Result struct {
	Key         string           `json:"key"`
	SeriesTitle string           `json:"seriesTitle,omitempty"`
	Code        string           `json:"code,omitempty"`
	Decision    matcher.Decision `json:"decision"`
	Attempts    int              `json:"attempts"`
	Tags        []string         `json:"tags,omitempty"`
	Suppressed  bool             `json:"suppressed,omitempty"`
	Overridden  bool             `json:"overridden,omitempty"`
	Purged      bool             `json:"purged,omitempty"`
	JobID       string           `json:"jobId,omitempty"`
}

// Input is one file to classify. When Resolution is set the resolver is
// skipped.
type Input struct {
	SceneName    string
	FilePath     string
	ReleaseGroup string
	Parsed       titles.ParsedEpisode
	Resolution   *resolver.Resolution
}

// Counters are cumulative pipeline totals.
type Counters struct {
	Decisions  map[matcher.Outcome]uint64
	Suppressed uint64
	Purged     uint64
	Enqueued   uint64
	Failed     uint64
}

const keyLockStripes = 64

// Service runs the pipeline.
type Service struct {
	cfg      Config
	episodes EpisodeStore
	attempts AttemptStore
	resolver resolver.Resolver
	library  Library
	engine   *matcher.Engine
	parser   *titles.Parser
	guard    *cooldown.Guard
	now      func() time.Time
	log      zerolog.Logger

	enqueuerMu sync.RWMutex
	enqueuer   Enqueuer

	keyLocks [keyLockStripes]sync.Mutex

	outcomes   sync.Map // matcher.Outcome -> *atomic.Uint64
	suppressed atomic.Uint64
	purged     atomic.Uint64
	enqueued   atomic.Uint64
	failed     atomic.Uint64
}

// NewService creates the pipeline. library may be nil when only file events
// are handled.
func NewService(
	cfg Config,
	episodes EpisodeStore,
	attempts AttemptStore,
	res resolver.Resolver,
	library Library,
	engine *matcher.Engine,
	guard *cooldown.Guard,
) *Service {
	defaults := DefaultConfig()
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.ScanConcurrency < 1 {
		cfg.ScanConcurrency = defaults.ScanConcurrency
	}
	if cfg.CooldownWindow < 0 {
		cfg.CooldownWindow = 0
	}
	if guard == nil {
		guard = cooldown.New()
	}

	return &Service{
		cfg:      cfg,
		episodes: episodes,
		attempts: attempts,
		resolver: res,
		library:  library,
		engine:   engine,
		parser:   titles.NewParser(),
		guard:    guard,
		now:      time.Now,
		log:      log.With().Str("component", "analyzer").Logger(),
	}
}

// SetEnqueuer wires the job orchestrator used for automatic remediation.
func (s *Service) SetEnqueuer(e Enqueuer) {
	s.enqueuerMu.Lock()
	s.enqueuer = e
	s.enqueuerMu.Unlock()
}

// SetClock replaces the clock used for cooldown checks.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) Engine() *matcher.Engine { return s.engine }

func (s *Service) Guard() *cooldown.Guard { return s.guard }

// PruneCooldown drops cooldown entries whose window has passed and returns
// how many were removed.
func (s *Service) PruneCooldown() int {
	return s.guard.Prune(s.now(), s.cfg.CooldownWindow)
}

// RunCooldownPruner calls PruneCooldown every interval until ctx is done.
func (s *Service) RunCooldownPruner(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.PruneCooldown(); n > 0 {
				s.log.Trace().Int("pruned", n).Msg("cooldown entries pruned")
			}
		}
	}
}

// HandleEvent runs a watcher event through the cooldown guard and the
// pipeline. Suppressed events return a Result with Suppressed set.
func (s *Service) HandleEvent(ctx context.Context, ev Event) (*Result, error) {
	triggerKey := strings.TrimSpace(ev.TriggerKey)
	if triggerKey == "" {
		triggerKey = titles.SceneName(ev.Path)
	}

	if !s.guard.ShouldProcess(triggerKey, s.now(), s.cfg.CooldownWindow) {
		s.suppressed.Add(1)
		s.log.Debug().Str("trigger", triggerKey).Str("path", ev.Path).Msg("event suppressed by cooldown")
		return &Result{Suppressed: true}, nil
	}

	if ev.Status == EventRemoved {
		return s.handleRemoved(ctx, ev.Path)
	}
	return s.AnalyzeFile(ctx, ev.Path)
}

// AnalyzeFile classifies the file at path.
func (s *Service) AnalyzeFile(ctx context.Context, path string) (*Result, error) {
	parsed := s.parser.Parse(path)
	if !parsed.Valid() {
		return nil, fmt.Errorf("%s: no series/season/episode in name: %w", path, domain.ErrClassificationIndeterminate)
	}

	return s.Analyze(ctx, Input{
		SceneName:    parsed.SceneName,
		FilePath:     path,
		ReleaseGroup: parsed.ReleaseGroup,
		Parsed:       parsed,
	})
}

// Analyze resolves, classifies and stores one input.
func (s *Service) Analyze(ctx context.Context, in Input) (*Result, error) {
	res := in.Resolution
	if res == nil {
		var err error
		res, err = s.resolver.Resolve(ctx, resolver.Query{
			SeriesTitle: in.Parsed.SeriesTitle,
			Season:      in.Parsed.Season,
			Episode:     in.Parsed.Episode,
			Year:        in.Parsed.Year,
		})
		if err != nil {
			s.failed.Add(1)
			return nil, fmt.Errorf("resolve %s: %w", in.SceneName, err)
		}
	}

	d := s.engine.Decide(res.ExpectedTitle, "", matcher.Hints{
		SceneName:    in.SceneName,
		ReleaseGroup: in.ReleaseGroup,
	})

	unlock := s.lockKey(res.Key())
	defer unlock()

	result, err := s.apply(ctx, in, res, d)
	if err != nil {
		s.failed.Add(1)
		return nil, err
	}
	return result, nil
}

func (s *Service) apply(ctx context.Context, in Input, res *resolver.Resolution, d matcher.Decision) (*Result, error) {
	key := res.Key()
	l := s.log.With().Str("episodeKey", key).Logger()

	existing, err := s.episodes.Get(ctx, key)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	result := &Result{
		Key:         key,
		SeriesTitle: res.SeriesTitle,
		Code:        titles.EpisodeCode(res.Season, res.Episode),
		Decision:    d,
	}

	if existing != nil && existing.HasTag(domain.TagOverride) {
		if err := s.episodes.Touch(ctx, key, d.ActualTitle, in.SceneName, in.FilePath, in.ReleaseGroup, d.NormScene); err != nil {
			return nil, err
		}
		result.Overridden = true
		result.Tags = existing.Tags
		result.Attempts = existing.Attempts
		l.Debug().Msg("override in place, refreshed file fields only")
		return result, nil
	}

	if err := s.episodes.Upsert(ctx, &models.Episode{
		Key:               key,
		SeriesTitle:       res.SeriesTitle,
		Season:            res.Season,
		Episode:           res.Episode,
		Code:              result.Code,
		ExpectedTitle:     d.ExpectedTitle,
		ActualTitle:       d.ActualTitle,
		SceneName:         in.SceneName,
		FilePath:          in.FilePath,
		ReleaseGroup:      in.ReleaseGroup,
		NormExpected:      d.NormExpected,
		NormExtracted:     d.NormExtracted,
		NormScene:         d.NormScene,
		Confidence:        d.Confidence,
		SubstringOverride: d.SubstringOverride,
		MissingTitle:      d.MissingTitle,
		Matched:           d.Matched,
		SonarrSeriesID:    res.SeriesID,
		SonarrEpisodeID:   res.EpisodeID,
		SonarrFileID:      res.EpisodeFileID,
		LastAnalyzedAt:    s.now().UTC(),
	}); err != nil {
		return nil, err
	}
	s.countOutcome(d.Outcome())

	sticky := existing != nil && existing.HasTag(domain.TagProblematic)

	switch {
	case sticky:
		result.Tags = existing.Tags
		result.Attempts = existing.Attempts
		l.Debug().Str("outcome", string(d.Outcome())).Msg("problematic episode left untouched")

	case d.Matched:
		if err := s.attempts.Reset(ctx, key); err != nil {
			return nil, err
		}
		tags, err := s.episodes.SetSystemTags(ctx, key, []string{domain.TagMatched}, []string{domain.TagProblematic})
		if err != nil {
			return nil, err
		}
		result.Tags = tags
		l.Info().Float64("confidence", d.Confidence).Bool("substring", d.SubstringOverride).Msg("episode matched")

	default:
		n, err := s.attempts.Increment(ctx, key, in.SceneName)
		if err != nil {
			return nil, err
		}
		result.Attempts = n

		add := []string(nil)
		if n >= s.cfg.MaxAttempts {
			add = []string{domain.TagProblematic}
		}
		tags, err := s.episodes.SetSystemTags(ctx, key, add, []string{domain.TagMatched})
		if err != nil {
			return nil, err
		}
		result.Tags = tags

		ev := l.Warn().
			Str("expected", d.ExpectedTitle).
			Str("actual", d.ActualTitle).
			Float64("confidence", d.Confidence).
			Int("attempts", n).
			Int("maxAttempts", s.cfg.MaxAttempts)
		if d.MissingTitle {
			ev.Msg("no episode title in file name")
		} else {
			ev.Msg("episode title mismatch")
		}

		if n >= s.cfg.MaxAttempts {
			l.Warn().Msg("flagged as problematic, manual review required")
		} else if s.cfg.AutoRemediate {
			result.JobID = s.autoEnqueue(ctx, key)
		}
	}

	return result, nil
}

func (s *Service) autoEnqueue(ctx context.Context, key string) string {
	s.enqueuerMu.RLock()
	e := s.enqueuer
	s.enqueuerMu.RUnlock()
	if e == nil {
		return ""
	}

	job, err := e.EnqueueReplace(ctx, key)
	if errors.Is(err, domain.ErrConcurrencyConflict) {
		s.log.Debug().Str("episodeKey", key).Msg("replace job already active")
		return ""
	}
	if err != nil {
		s.log.Error().Err(err).Str("episodeKey", key).Msg("failed to enqueue replace job")
		return ""
	}

	s.enqueued.Add(1)
	s.log.Info().Str("episodeKey", key).Str("jobID", job.ID).Msg("replace job enqueued")
	return job.ID
}

// handleRemoved purges the record of a deleted file when the episode no
// longer exists upstream. Otherwise the record stays, awaiting a replacement.
func (s *Service) handleRemoved(ctx context.Context, path string) (*Result, error) {
	parsed := s.parser.Parse(path)
	if !parsed.Valid() {
		return nil, fmt.Errorf("%s: no series/season/episode in name: %w", path, domain.ErrClassificationIndeterminate)
	}

	res, err := s.resolver.Resolve(ctx, resolver.Query{
		SeriesTitle: parsed.SeriesTitle,
		Season:      parsed.Season,
		Episode:     parsed.Episode,
		Year:        parsed.Year,
	})
	switch {
	case err == nil:
		s.log.Info().Str("episodeKey", res.Key()).Str("path", path).Msg("file removed, keeping record until replaced")
		return &Result{Key: res.Key(), SeriesTitle: res.SeriesTitle, Code: parsed.Code()}, nil

	case errors.Is(err, domain.ErrNotFound):
		// records are keyed by the upstream series title, which the file name
		// may spell differently
		key := parsed.Key()
		stored, err := s.episodes.FindByFilePath(ctx, path)
		switch {
		case err == nil:
			key = stored.Key
		case !errors.Is(err, domain.ErrNotFound):
			return nil, err
		}

		unlock := s.lockKey(key)
		defer unlock()

		if err := s.episodes.Purge(ctx, key); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return &Result{Key: key, Code: parsed.Code()}, nil
			}
			return nil, err
		}
		s.purged.Add(1)
		s.log.Info().Str("episodeKey", key).Msg("episode gone upstream, record purged")
		return &Result{Key: key, Code: parsed.Code(), Purged: true}, nil

	default:
		return nil, fmt.Errorf("resolve removed %s: %w", path, err)
	}
}

// Recheck re-analyses a stored episode through the media manager's current
// file. It is scheduled after a replace job finished.
func (s *Service) Recheck(ctx context.Context, key string) (*Result, error) {
	if s.library == nil {
		return nil, errors.New("recheck requires a media library")
	}

	ep, err := s.episodes.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	if inv, ok := s.library.(interface{ Invalidate(int) }); ok {
		inv.Invalidate(ep.SonarrSeriesID)
	}

	res, err := s.resolver.Resolve(ctx, resolver.Query{
		SeriesTitle: ep.SeriesTitle,
		Season:      ep.Season,
		Episode:     ep.Episode,
	})
	if err != nil {
		return nil, fmt.Errorf("recheck %s: %w", key, err)
	}
	if res.EpisodeFileID == 0 {
		return nil, fmt.Errorf("recheck %s: no file imported yet: %w", key, domain.ErrNotFound)
	}

	file, err := s.library.EpisodeFile(ctx, res.EpisodeFileID)
	if err != nil {
		return nil, fmt.Errorf("recheck %s: %w", key, err)
	}

	return s.Analyze(ctx, inputFromFile(file, res))
}

// Counters returns the cumulative pipeline totals.
func (s *Service) Counters() Counters {
	c := Counters{
		Decisions:  make(map[matcher.Outcome]uint64),
		Suppressed: s.suppressed.Load(),
		Purged:     s.purged.Load(),
		Enqueued:   s.enqueued.Load(),
		Failed:     s.failed.Load(),
	}
	s.outcomes.Range(func(k, v any) bool {
		c.Decisions[k.(matcher.Outcome)] = v.(*atomic.Uint64).Load()
		return true
	})
	return c
}

func (s *Service) countOutcome(o matcher.Outcome) {
	v, _ := s.outcomes.LoadOrStore(o, new(atomic.Uint64))
	v.(*atomic.Uint64).Add(1)
}

// lockKey serializes the read-modify-write of one episode key.
func (s *Service) lockKey(key string) func() {
	mu := &s.keyLocks[xxhash.Sum64String(key)%keyLockStripes]
	mu.Lock()
	return mu.Unlock
}

// inputFromFile builds pipeline input from a media manager file record. The
// release name is taken from sceneName, then relativePath, then path.
func inputFromFile(file *sonarr.EpisodeFile, res *resolver.Resolution) Input {
	scene := strings.TrimSpace(file.SceneName)
	if scene == "" && file.RelativePath != "" {
		scene = titles.SceneName(file.RelativePath)
	}
	if scene == "" && file.Path != "" {
		scene = titles.SceneName(file.Path)
	}

	withFile := *res
	withFile.EpisodeFileID = file.ID

	return Input{
		SceneName:    scene,
		FilePath:     file.Path,
		ReleaseGroup: file.ReleaseGroup,
		Resolution:   &withFile,
	}
}
