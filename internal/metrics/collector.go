// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/analyzarr/internal/models"
	"github.com/autobrr/analyzarr/internal/services/analyzer"
	"github.com/autobrr/analyzarr/internal/services/remediation"
	"github.com/autobrr/analyzarr/internal/services/watcher"
)

type PipelineSource interface {
	Counters() analyzer.Counters
}

type GuardSource interface {
	Stats() (accepted, suppressed uint64)
}

type JobSource interface {
	Stats() remediation.Stats
	JobCounts(ctx context.Context) (map[models.JobStatus]int, error)
}

type WatcherSource interface {
	Stats() watcher.Stats
}

var jobStatuses = []models.JobStatus{
	models.JobStatusQueued,
	models.JobStatusRunning,
	models.JobStatusDone,
	models.JobStatusError,
}

// Collector exports pipeline, cooldown, job and watcher state.
type Collector struct {
	pipeline PipelineSource
	guard    GuardSource
	jobs     JobSource
	watcher  WatcherSource

	decisionsDesc     *prometheus.Desc
	suppressedDesc    *prometheus.Desc
	purgedDesc        *prometheus.Desc
	autoEnqueuedDesc  *prometheus.Desc
	failuresDesc      *prometheus.Desc
	cooldownDesc      *prometheus.Desc
	jobsDesc          *prometheus.Desc
	jobsRunningDesc   *prometheus.Desc
	jobsFinishedDesc  *prometheus.Desc
	rechecksDesc      *prometheus.Desc
	watchedDirsDesc   *prometheus.Desc
	watchEventsDesc   *prometheus.Desc
	watchFailuresDesc *prometheus.Desc
}

func NewCollector(pipeline PipelineSource, guard GuardSource, jobs JobSource, w WatcherSource) *Collector {
	return &Collector{
		pipeline: pipeline,
		guard:    guard,
		jobs:     jobs,
		watcher:  w,

		decisionsDesc: prometheus.NewDesc(
			"analyzarr_decisions_total",
			"Classification decisions by outcome",
			[]string{"outcome"}, nil,
		),
		suppressedDesc: prometheus.NewDesc(
			"analyzarr_events_suppressed_total",
			"Watcher events dropped by the cooldown guard",
			nil, nil,
		),
		purgedDesc: prometheus.NewDesc(
			"analyzarr_records_purged_total",
			"Episode records purged after their episode disappeared",
			nil, nil,
		),
		autoEnqueuedDesc: prometheus.NewDesc(
			"analyzarr_auto_remediations_total",
			"Replace jobs queued by the analyzer",
			nil, nil,
		),
		failuresDesc: prometheus.NewDesc(
			"analyzarr_analysis_failures_total",
			"Analyses that failed to resolve or store",
			nil, nil,
		),
		cooldownDesc: prometheus.NewDesc(
			"analyzarr_cooldown_checks_total",
			"Cooldown guard checks by result",
			[]string{"result"}, nil,
		),
		jobsDesc: prometheus.NewDesc(
			"analyzarr_jobs",
			"Stored jobs by status",
			[]string{"status"}, nil,
		),
		jobsRunningDesc: prometheus.NewDesc(
			"analyzarr_jobs_running",
			"Jobs currently executing",
			nil, nil,
		),
		jobsFinishedDesc: prometheus.NewDesc(
			"analyzarr_jobs_finished_total",
			"Jobs finished by this process by result",
			[]string{"result"}, nil,
		),
		rechecksDesc: prometheus.NewDesc(
			"analyzarr_rechecks_total",
			"Re-analyses run after a replace job",
			nil, nil,
		),
		watchedDirsDesc: prometheus.NewDesc(
			"analyzarr_watcher_directories",
			"Directories registered with the filesystem watcher",
			nil, nil,
		),
		watchEventsDesc: prometheus.NewDesc(
			"analyzarr_watcher_events_total",
			"Coalesced filesystem events handed to the analyzer",
			nil, nil,
		),
		watchFailuresDesc: prometheus.NewDesc(
			"analyzarr_watcher_errors_total",
			"Filesystem watcher and event handling errors",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.decisionsDesc
	ch <- c.suppressedDesc
	ch <- c.purgedDesc
	ch <- c.autoEnqueuedDesc
	ch <- c.failuresDesc
	ch <- c.cooldownDesc
	ch <- c.jobsDesc
	ch <- c.jobsRunningDesc
	ch <- c.jobsFinishedDesc
	ch <- c.rechecksDesc
	ch <- c.watchedDirsDesc
	ch <- c.watchEventsDesc
	ch <- c.watchFailuresDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.pipeline != nil {
		counters := c.pipeline.Counters()
		for outcome, n := range counters.Decisions {
			ch <- prometheus.MustNewConstMetric(c.decisionsDesc, prometheus.CounterValue, float64(n), string(outcome))
		}
		ch <- prometheus.MustNewConstMetric(c.suppressedDesc, prometheus.CounterValue, float64(counters.Suppressed))
		ch <- prometheus.MustNewConstMetric(c.purgedDesc, prometheus.CounterValue, float64(counters.Purged))
		ch <- prometheus.MustNewConstMetric(c.autoEnqueuedDesc, prometheus.CounterValue, float64(counters.Enqueued))
		ch <- prometheus.MustNewConstMetric(c.failuresDesc, prometheus.CounterValue, float64(counters.Failed))
	}

	if c.guard != nil {
		accepted, suppressed := c.guard.Stats()
		ch <- prometheus.MustNewConstMetric(c.cooldownDesc, prometheus.CounterValue, float64(accepted), "accepted")
		ch <- prometheus.MustNewConstMetric(c.cooldownDesc, prometheus.CounterValue, float64(suppressed), "suppressed")
	}

	if c.jobs != nil {
		c.collectJobs(ch)
	}

	if c.watcher != nil {
		stats := c.watcher.Stats()
		ch <- prometheus.MustNewConstMetric(c.watchedDirsDesc, prometheus.GaugeValue, float64(stats.Watched))
		ch <- prometheus.MustNewConstMetric(c.watchEventsDesc, prometheus.CounterValue, float64(stats.Delivered))
		ch <- prometheus.MustNewConstMetric(c.watchFailuresDesc, prometheus.CounterValue, float64(stats.Errors))
	}
}

func (c *Collector) collectJobs(ch chan<- prometheus.Metric) {
	stats := c.jobs.Stats()
	ch <- prometheus.MustNewConstMetric(c.jobsRunningDesc, prometheus.GaugeValue, float64(stats.Running))
	ch <- prometheus.MustNewConstMetric(c.jobsFinishedDesc, prometheus.CounterValue, float64(stats.Completed), "done")
	ch <- prometheus.MustNewConstMetric(c.jobsFinishedDesc, prometheus.CounterValue, float64(stats.Failed), "error")
	ch <- prometheus.MustNewConstMetric(c.rechecksDesc, prometheus.CounterValue, float64(stats.Rechecks))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	counts, err := c.jobs.JobCounts(ctx)
	if err != nil {
		log.Error().Err(err).Msg("metrics: failed to count jobs")
		return
	}
	for _, status := range jobStatuses {
		ch <- prometheus.MustNewConstMetric(c.jobsDesc, prometheus.GaugeValue, float64(counts[status]), string(status))
	}
}
