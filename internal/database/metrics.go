// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Stats is a point-in-time snapshot of the writer and statement cache.
type Stats struct {
	WritesTotal uint64
	WriteErrors uint64
	WriteQueue  int
	StmtHits    uint64
	StmtMisses  uint64
	StmtsCached int
}

func (db *DB) Stats() Stats {
	return Stats{
		WritesTotal: db.writesTotal.Load(),
		WriteErrors: db.writeErrors.Load(),
		WriteQueue:  len(db.writeCh),
		StmtHits:    db.stmtHits.Load(),
		StmtMisses:  db.stmtMisses.Load(),
		StmtsCached: len(db.stmts.GetKeys()),
	}
}

type MetricsCollector struct {
	db *DB

	writesDesc      *prometheus.Desc
	writeErrorsDesc *prometheus.Desc
	writeQueueDesc  *prometheus.Desc
	stmtCacheDesc   *prometheus.Desc
	stmtsCachedDesc *prometheus.Desc
}

func NewMetricsCollector(db *DB) *MetricsCollector {
	return &MetricsCollector{
		db: db,
		writesDesc: prometheus.NewDesc(
			"analyzarr_db_writes_total",
			"Number of statements executed by the single database writer",
			nil, nil,
		),
		writeErrorsDesc: prometheus.NewDesc(
			"analyzarr_db_write_errors_total",
			"Number of writer statements that returned an error",
			nil, nil,
		),
		writeQueueDesc: prometheus.NewDesc(
			"analyzarr_db_write_queue_length",
			"Writes waiting for the database writer",
			nil, nil,
		),
		stmtCacheDesc: prometheus.NewDesc(
			"analyzarr_db_stmt_cache_lookups_total",
			"Prepared statement cache lookups by result",
			[]string{"result"}, nil,
		),
		stmtsCachedDesc: prometheus.NewDesc(
			"analyzarr_db_stmts_cached",
			"Prepared statements currently cached",
			nil, nil,
		),
	}
}

func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.writesDesc
	ch <- c.writeErrorsDesc
	ch <- c.writeQueueDesc
	ch <- c.stmtCacheDesc
	ch <- c.stmtsCachedDesc
}

func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.db.Stats()
	ch <- prometheus.MustNewConstMetric(c.writesDesc, prometheus.CounterValue, float64(s.WritesTotal))
	ch <- prometheus.MustNewConstMetric(c.writeErrorsDesc, prometheus.CounterValue, float64(s.WriteErrors))
	ch <- prometheus.MustNewConstMetric(c.writeQueueDesc, prometheus.GaugeValue, float64(s.WriteQueue))
	ch <- prometheus.MustNewConstMetric(c.stmtCacheDesc, prometheus.CounterValue, float64(s.StmtHits), "hit")
	ch <- prometheus.MustNewConstMetric(c.stmtCacheDesc, prometheus.CounterValue, float64(s.StmtMisses), "miss")
	ch <- prometheus.MustNewConstMetric(c.stmtsCachedDesc, prometheus.GaugeValue, float64(s.StmtsCached))
}
