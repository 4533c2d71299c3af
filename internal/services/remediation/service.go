// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package remediation runs replace, scan and cleanup jobs. Jobs are queued in
// the job store, picked up by a bounded set of workers and always driven to a
// terminal state.
package remediation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/analyzarr/internal/domain"
	"github.com/autobrr/analyzarr/internal/models"
	"github.com/autobrr/analyzarr/internal/pkg/backoff"
	"github.com/autobrr/analyzarr/internal/services/analyzer"
	"github.com/autobrr/analyzarr/internal/services/resolver"
	"github.com/autobrr/analyzarr/pkg/debounce"
	"github.com/autobrr/analyzarr/pkg/sonarr"
)

// InterruptedMessage is the terminal message of jobs found active at startup.
const InterruptedMessage = "interrupted by restart"

type JobStore interface {
	Enqueue(ctx context.Context, jobType models.JobType, key string, dryRun bool) (*models.RemediationJob, error)
	Get(ctx context.Context, id string) (*models.RemediationJob, error)
	List(ctx context.Context, limit int) ([]*models.RemediationJob, error)
	Start(ctx context.Context, id string) error
	UpdateProgress(ctx context.Context, id string, progress int, message string) error
	AppendLog(ctx context.Context, id, text string) (string, error)
	Finish(ctx context.Context, id string, status models.JobStatus, message string) error
	MarkActiveFailed(ctx context.Context, message string) (int64, error)
	ListQueued(ctx context.Context) ([]string, error)
	CountByStatus(ctx context.Context) (map[models.JobStatus]int, error)
}

type EpisodeReader interface {
	Get(ctx context.Context, key string) (*models.Episode, error)
}

// MediaManager is the part of the Sonarr API a replace job drives.
type MediaManager interface {
	GetEpisode(ctx context.Context, id int) (*sonarr.Episode, error)
	DeleteEpisodeFile(ctx context.Context, id int) error
	SearchEpisodes(ctx context.Context, episodeIDs []int) (*sonarr.Command, error)
}

// Pipeline is the analyzer surface used by jobs.
type Pipeline interface {
	Recheck(ctx context.Context, key string) (*analyzer.Result, error)
	Scan(ctx context.Context, opts analyzer.ScanOptions, rep analyzer.Reporter) (*analyzer.ScanSummary, error)
	Cleanup(ctx context.Context, rep analyzer.Reporter) ([]string, error)
}

type Config struct {
	Workers       int
	DryRun        bool
	RetryAttempts int
	RetryDelay    time.Duration
	// RecheckDelay is how long after a finished replace the episode is
	// analysed again.
	RecheckDelay time.Duration
	PollInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Workers:       2,
		RetryAttempts: backoff.DefaultAttempts,
		RetryDelay:    backoff.DefaultDelay,
		RecheckDelay:  10 * time.Minute,
		PollInterval:  5 * time.Second,
	}
}

// ConfigFromDomain maps the application config onto the orchestrator config.
func ConfigFromDomain(cfg *domain.Config) Config {
	out := DefaultConfig()
	out.Workers = cfg.JobWorkers
	out.DryRun = cfg.DryRun
	out.RetryAttempts = cfg.RetryAttempts
	out.RetryDelay = cfg.RetryDelay()
	out.RecheckDelay = cfg.RecheckDuration()
	return out
}

// Stats are cumulative orchestrator totals.
type Stats struct {
	Running   int64
	Completed uint64
	Failed    uint64
	Rechecks  uint64
}

type Service struct {
	cfg      Config
	jobs     JobStore
	episodes EpisodeReader
	media    MediaManager
	pipeline Pipeline
	resolver resolver.Resolver
	policy   backoff.Policy
	rechecks *debounce.Group
	log      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	notify  chan struct{}
	slots   chan struct{}
	started atomic.Bool
	wg      sync.WaitGroup
	jobsWG  sync.WaitGroup

	scanMu   sync.Mutex
	scanOpts map[string]analyzer.ScanOptions

	running   atomic.Int64
	completed atomic.Uint64
	failed    atomic.Uint64
	rechecked atomic.Uint64
}

// NewService creates the orchestrator. res is used to find the Sonarr
// episode of records analysed before Sonarr ids were known.
func NewService(cfg Config, jobs JobStore, episodes EpisodeReader, media MediaManager, pipeline Pipeline, res resolver.Resolver) *Service {
	defaults := DefaultConfig()
	if cfg.Workers < 1 {
		cfg.Workers = defaults.Workers
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	if cfg.RecheckDelay < 0 {
		cfg.RecheckDelay = 0
	}

	logger := log.With().Str("component", "remediation").Logger()
	ctx, cancel := context.WithCancel(context.Background())

	return &Service{
		cfg:      cfg,
		jobs:     jobs,
		episodes: episodes,
		media:    media,
		pipeline: pipeline,
		resolver: res,
		policy:   backoff.New(cfg.RetryAttempts, cfg.RetryDelay, sonarr.IsRetryable).WithLogger(logger),
		rechecks: debounce.NewGroup(cfg.RecheckDelay),
		log:      logger,
		ctx:      ctx,
		cancel:   cancel,
		notify:   make(chan struct{}, 1),
		slots:    make(chan struct{}, cfg.Workers),
		scanOpts: make(map[string]analyzer.ScanOptions),
	}
}

// Start fails every job left active by a previous process and begins
// dispatching queued jobs. Dispatching stops when ctx ends or Stop is called.
func (s *Service) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("remediation service already started")
	}

	n, err := s.jobs.MarkActiveFailed(ctx, InterruptedMessage)
	if err != nil {
		return err
	}
	if n > 0 {
		s.log.Warn().Int64("jobs", n).Msg("marked jobs interrupted by restart as failed")
	}

	context.AfterFunc(ctx, s.cancel)

	s.wg.Add(1)
	go s.dispatch()

	s.log.Info().Int("workers", s.cfg.Workers).Bool("dryRun", s.cfg.DryRun).Msg("remediation service started")
	return nil
}

// Stop stops dispatching and waits for running jobs to reach a terminal
// state. Pending rechecks are dropped.
func (s *Service) Stop() {
	s.cancel()
	s.wg.Wait()
	s.jobsWG.Wait()
	s.rechecks.Stop()
}

// EnqueueReplace queues a replace job for a stored episode. It returns a
// *models.ConflictError when a job for key is already active.
func (s *Service) EnqueueReplace(ctx context.Context, key string) (*models.RemediationJob, error) {
	if _, err := s.episodes.Get(ctx, key); err != nil {
		return nil, err
	}

	job, err := s.jobs.Enqueue(ctx, models.JobTypeReplace, key, s.cfg.DryRun)
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("jobID", job.ID).Str("episodeKey", key).Bool("dryRun", job.DryRun).Msg("replace job queued")
	s.wake()
	return job, nil
}

// EnqueueScan queues a library scan. Only one scan is active at a time.
func (s *Service) EnqueueScan(ctx context.Context, opts analyzer.ScanOptions) (*models.RemediationJob, error) {
	s.scanMu.Lock()
	job, err := s.jobs.Enqueue(ctx, models.JobTypeLibraryScan, models.LibraryScanKey, false)
	if err == nil {
		s.scanOpts[job.ID] = opts
	}
	s.scanMu.Unlock()
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("jobID", job.ID).Int("tvdbId", opts.TvdbID).Ints("seasons", opts.Seasons).Msg("library scan queued")
	s.wake()
	return job, nil
}

// EnqueueCleanup queues a library cleanup.
func (s *Service) EnqueueCleanup(ctx context.Context) (*models.RemediationJob, error) {
	job, err := s.jobs.Enqueue(ctx, models.JobTypeCleanup, models.LibraryCleanupKey, false)
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("jobID", job.ID).Msg("library cleanup queued")
	s.wake()
	return job, nil
}

// Status returns a job with its log. It never blocks on running work.
func (s *Service) Status(ctx context.Context, id string) (*models.RemediationJob, error) {
	return s.jobs.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, limit int) ([]*models.RemediationJob, error) {
	return s.jobs.List(ctx, limit)
}

// JobCounts returns the number of stored jobs per status.
func (s *Service) JobCounts(ctx context.Context) (map[models.JobStatus]int, error) {
	return s.jobs.CountByStatus(ctx)
}

func (s *Service) Stats() Stats {
	return Stats{
		Running:   s.running.Load(),
		Completed: s.completed.Load(),
		Failed:    s.failed.Load(),
		Rechecks:  s.rechecked.Load(),
	}
}

func (s *Service) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Service) dispatch() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		s.drain()

		select {
		case <-s.ctx.Done():
			return
		case <-s.notify:
		case <-ticker.C:
		}
	}
}

// drain starts every queued job, blocking while all workers are busy.
func (s *Service) drain() {
	ids, err := s.jobs.ListQueued(s.ctx)
	if err != nil {
		if s.ctx.Err() == nil {
			s.log.Error().Err(err).Msg("failed to list queued jobs")
		}
		return
	}

	for _, id := range ids {
		select {
		case s.slots <- struct{}{}:
		case <-s.ctx.Done():
			return
		}

		if err := s.jobs.Start(s.ctx, id); err != nil {
			<-s.slots
			if !errors.Is(err, models.ErrJobNotActive) && s.ctx.Err() == nil {
				s.log.Error().Err(err).Str("jobID", id).Msg("failed to start job")
			}
			continue
		}

		s.jobsWG.Add(1)
		s.running.Add(1)
		go func() {
			defer func() {
				s.running.Add(-1)
				<-s.slots
				s.jobsWG.Done()
			}()
			s.run(id)
		}()
	}
}

// run executes a started job. It ignores dispatcher cancellation so the job
// always ends in done or error.
func (s *Service) run(id string) {
	ctx := context.WithoutCancel(s.ctx)

	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		s.log.Error().Err(err).Str("jobID", id).Msg("failed to load started job")
		s.finish(ctx, id, "", err)
		return
	}

	rec := newRecorder(ctx, s.jobs, job, s.log)
	rec.step(5, "picked up")

	var message string
	switch job.Type {
	case models.JobTypeReplace:
		message, err = s.runReplace(ctx, job, rec)
	case models.JobTypeLibraryScan:
		message, err = s.runScan(ctx, job, rec)
	case models.JobTypeCleanup:
		message, err = s.runCleanup(ctx, rec)
	default:
		err = fmt.Errorf("unknown job type %q", job.Type)
	}

	if err != nil {
		rec.Logf("failed: %v", err)
	} else {
		rec.Logf("%s", message)
	}
	s.finish(ctx, job.ID, message, err)

	if err == nil && job.Type == models.JobTypeReplace && !job.DryRun {
		s.scheduleRecheck(job.EpisodeKey)
	}
}

func (s *Service) finish(ctx context.Context, id, message string, jobErr error) {
	status := models.JobStatusDone
	if jobErr != nil {
		status = models.JobStatusError
		message = jobErr.Error()
		s.failed.Add(1)
	} else {
		s.completed.Add(1)
	}

	if err := s.jobs.Finish(ctx, id, status, message); err != nil {
		s.log.Error().Err(err).Str("jobID", id).Str("status", string(status)).Msg("failed to finish job")
		return
	}

	ev := s.log.Info()
	if jobErr != nil {
		ev = s.log.Warn().Err(jobErr)
	}
	ev.Str("jobID", id).Str("status", string(status)).Msg("job finished")
}

func (s *Service) runScan(ctx context.Context, job *models.RemediationJob, rec *recorder) (string, error) {
	s.scanMu.Lock()
	opts := s.scanOpts[job.ID]
	delete(s.scanOpts, job.ID)
	s.scanMu.Unlock()

	rec.scale(5, 95, "scanning library")
	summary, err := s.pipeline.Scan(ctx, opts, rec)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("scanned %d episodes across %d series: %d matched, %d mismatched, %d missing title, %d overridden, %d failed",
		summary.Episodes, summary.Series, summary.Matched, summary.Mismatched, summary.MissingTitle, summary.Overridden, summary.Failed), nil
}

func (s *Service) runCleanup(ctx context.Context, rec *recorder) (string, error) {
	rec.scale(5, 95, "cleaning up library")
	purged, err := s.pipeline.Cleanup(ctx, rec)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("purged %d records", len(purged)), nil
}

// scheduleRecheck analyses key again once the replacement is expected to
// have been imported. Repeated schedules for one key collapse into one.
func (s *Service) scheduleRecheck(key string) {
	s.log.Debug().Str("episodeKey", key).Dur("delay", s.cfg.RecheckDelay).Msg("recheck scheduled")

	s.rechecks.Do(key, func() {
		if s.ctx.Err() != nil {
			return
		}
		s.rechecked.Add(1)

		result, err := s.pipeline.Recheck(s.ctx, key)
		if err != nil {
			s.log.Warn().Err(err).Str("episodeKey", key).Msg("recheck failed")
			return
		}
		s.log.Info().
			Str("episodeKey", key).
			Bool("matched", result.Decision.Matched).
			Float64("confidence", result.Decision.Confidence).
			Msg("recheck finished")
	})
}
