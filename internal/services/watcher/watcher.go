// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package watcher turns filesystem activity under the configured library and
// download paths into analyzer events. Bursts of events for one release are
// coalesced before the analyzer sees them.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/analyzarr/internal/domain"
	"github.com/autobrr/analyzarr/internal/services/analyzer"
	"github.com/autobrr/analyzarr/pkg/debounce"
	"github.com/autobrr/analyzarr/pkg/pathcmp"
	"github.com/autobrr/analyzarr/pkg/titles"
)

// Handler receives coalesced events.
type Handler interface {
	HandleEvent(ctx context.Context, ev analyzer.Event) (*analyzer.Result, error)
}

type Config struct {
	Paths []string
	// Settle is how long a trigger key must stay quiet before its event is
	// delivered.
	Settle time.Duration
}

func DefaultConfig() Config {
	return Config{Settle: 2 * time.Second}
}

// ConfigFromDomain maps the application config onto the watcher config.
func ConfigFromDomain(cfg *domain.Config) Config {
	return Config{
		Paths:  cfg.WatchPaths,
		Settle: cfg.SettleDuration(),
	}
}

// Stats are cumulative watcher totals.
type Stats struct {
	Watched   int64
	Delivered uint64
	Errors    uint64
}

type pending struct {
	path   string
	status analyzer.EventStatus
}

type Service struct {
	cfg     Config
	handler Handler
	log     zerolog.Logger

	fsw      *fsnotify.Watcher
	debounce *debounce.Group

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	pending map[string]pending

	watched   atomic.Int64
	delivered atomic.Uint64
	failures  atomic.Uint64
}

func NewService(cfg Config, handler Handler) *Service {
	if cfg.Settle <= 0 {
		cfg.Settle = DefaultConfig().Settle
	}

	cfg.Paths = distinctRoots(cfg.Paths)

	return &Service{
		cfg:      cfg,
		handler:  handler,
		log:      log.With().Str("component", "watcher").Logger(),
		debounce: debounce.NewGroup(cfg.Settle),
		pending:  make(map[string]pending),
	}
}

// Start watches every configured path and its subdirectories. Directories
// created later are added as they appear.
func (s *Service) Start(ctx context.Context) error {
	if len(s.cfg.Paths) == 0 {
		return errors.New("no watch paths configured")
	}
	if s.fsw != nil {
		return errors.New("watcher already started")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	s.fsw = fsw
	s.ctx, s.cancel = context.WithCancel(ctx)

	for _, root := range s.cfg.Paths {
		info, err := os.Stat(root)
		if err != nil {
			s.close()
			return fmt.Errorf("watch path %s: %w", root, err)
		}
		if !info.IsDir() {
			s.close()
			return fmt.Errorf("watch path %s is not a directory", root)
		}
		if err := s.addTree(root, false); err != nil {
			s.close()
			return err
		}
	}

	s.wg.Add(1)
	go s.loop()

	s.log.Info().Strs("paths", s.cfg.Paths).Int64("dirs", s.watched.Load()).Dur("settle", s.cfg.Settle).Msg("watching for media files")
	return nil
}

// Stop stops watching. Events still settling are dropped.
func (s *Service) Stop() {
	if s.fsw == nil {
		return
	}
	s.close()
	s.wg.Wait()
	s.debounce.Stop()
}

func (s *Service) close() {
	s.cancel()
	if err := s.fsw.Close(); err != nil {
		s.log.Debug().Err(err).Msg("close fsnotify watcher")
	}
}

func (s *Service) Stats() Stats {
	return Stats{
		Watched:   s.watched.Load(),
		Delivered: s.delivered.Load(),
		Errors:    s.failures.Load(),
	}
}

func (s *Service) loop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case ev, ok := <-s.fsw.Events:
			if !ok {
				return
			}
			s.handle(ev)
		case err, ok := <-s.fsw.Errors:
			if !ok {
				return
			}
			s.failures.Add(1)
			s.log.Error().Err(err).Msg("fsnotify error")
		}
	}
}

func (s *Service) handle(ev fsnotify.Event) {
	if hidden(ev.Name) {
		return
	}

	switch {
	case ev.Has(fsnotify.Create):
		info, err := os.Stat(ev.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			// files may land before the watch is in place
			if err := s.addTree(ev.Name, true); err != nil {
				s.log.Warn().Err(err).Str("path", ev.Name).Msg("failed to watch new directory")
			}
			return
		}
		s.queue(ev.Name, analyzer.EventCreated)

	case ev.Has(fsnotify.Write):
		s.queue(ev.Name, analyzer.EventModified)

	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		if titles.IsMediaFile(ev.Name) {
			s.queue(ev.Name, analyzer.EventRemoved)
			return
		}
		// a removed directory drops its own watch; a renamed one does not
		if ev.Has(fsnotify.Rename) {
			_ = s.fsw.Remove(ev.Name)
		}
	}
}

// addTree watches dir and every directory below it. With emit set, media
// files already present are queued as created.
func (s *Service) addTree(dir string, emit bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			s.log.Debug().Err(err).Str("path", path).Msg("skipping unreadable entry")
			return nil
		}
		if path != dir && hidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}

		if d.IsDir() {
			if err := s.fsw.Add(path); err != nil {
				return fmt.Errorf("watch %s: %w", path, err)
			}
			s.watched.Add(1)
			return nil
		}

		if emit {
			s.queue(path, analyzer.EventCreated)
		}
		return nil
	})
}

// queue records the latest status for the path's trigger key and delivers
// it once the key has been quiet for the settle duration.
func (s *Service) queue(path string, status analyzer.EventStatus) {
	if !titles.IsMediaFile(path) {
		return
	}
	key := TriggerKey(path)

	s.mu.Lock()
	prev, ok := s.pending[key]
	if ok && prev.path == path {
		status = mergeStatus(prev.status, status)
	}
	s.pending[key] = pending{path: path, status: status}
	s.mu.Unlock()

	s.debounce.Do(key, func() { s.deliver(key) })
}

func (s *Service) deliver(key string) {
	s.mu.Lock()
	p, ok := s.pending[key]
	delete(s.pending, key)
	s.mu.Unlock()

	if !ok || s.ctx.Err() != nil {
		return
	}

	s.delivered.Add(1)
	result, err := s.handler.HandleEvent(s.ctx, analyzer.Event{
		Path:       p.path,
		TriggerKey: key,
		Status:     p.status,
	})

	logger := s.log.With().Str("path", p.path).Str("status", string(p.status)).Logger()
	switch {
	case errors.Is(err, domain.ErrClassificationIndeterminate):
		logger.Debug().Err(err).Msg("skipped unclassifiable file")
	case err != nil:
		s.failures.Add(1)
		logger.Error().Err(err).Msg("failed to handle file event")
	case result.Suppressed:
		logger.Debug().Msg("event suppressed by cooldown")
	default:
		logger.Debug().Str("episodeKey", result.Key).Bool("matched", result.Decision.Matched).Msg("file event handled")
	}
}

// mergeStatus folds a new status for a path into the one still settling.
// A file created and then written is still a creation.
func mergeStatus(prev, next analyzer.EventStatus) analyzer.EventStatus {
	if prev == analyzer.EventCreated && next == analyzer.EventModified {
		return analyzer.EventCreated
	}
	return next
}

// TriggerKey groups the events of one release. Files inside a release
// folder (a directory whose name carries an episode code) share the folder;
// any other file is keyed by its own scene name.
func TriggerKey(path string) string {
	dir := filepath.Dir(path)
	if titles.HasEpisodeCode(filepath.Base(dir)) {
		return pathcmp.NormalizePath(dir)
	}
	return titles.SceneName(path)
}

// distinctRoots drops blank paths and paths already covered by another root.
func distinctRoots(paths []string) []string {
	var cleaned []string
	for _, p := range paths {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, filepath.Clean(p))
		}
	}

	var roots []string
	for i, p := range cleaned {
		covered := false
		for j, other := range cleaned {
			if i != j && pathcmp.Within(other, p) && (other != p || j < i) {
				covered = true
				break
			}
		}
		if !covered {
			roots = append(roots, p)
		}
	}
	return roots
}

func hidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
