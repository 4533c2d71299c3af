// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/analyzarr/internal/database"
)

// Sources are the components whose state is exported. Nil sources are
// skipped.
type Sources struct {
	DB       *database.DB
	Pipeline PipelineSource
	Guard    GuardSource
	Jobs     JobSource
	Watcher  WatcherSource
}

type Manager struct {
	registry  *prometheus.Registry
	collector *Collector
}

func NewManager(src Sources) *Manager {
	registry := prometheus.NewRegistry()

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if src.DB != nil {
		registry.MustRegister(database.NewMetricsCollector(src.DB))
	}

	collector := NewCollector(src.Pipeline, src.Guard, src.Jobs, src.Watcher)
	registry.MustRegister(collector)

	log.Info().Msg("Metrics manager initialized")

	return &Manager{
		registry:  registry,
		collector: collector,
	}
}

func (m *Manager) GetRegistry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      promLogger{},
		ErrorHandling: promhttp.ContinueOnError,
	})
}

type promLogger struct{}

func (promLogger) Println(v ...any) {
	log.Error().Msgf("metrics: %v", v)
}
