// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/analyzarr/internal/models"
	"github.com/autobrr/analyzarr/internal/services/analyzer"
	"github.com/autobrr/analyzarr/internal/services/matcher"
	"github.com/autobrr/analyzarr/internal/services/remediation"
	"github.com/autobrr/analyzarr/internal/services/watcher"
	"github.com/autobrr/analyzarr/internal/testdb"
)

type stubPipeline struct{}

func (stubPipeline) Counters() analyzer.Counters {
	return analyzer.Counters{
		Decisions: map[matcher.Outcome]uint64{
			matcher.OutcomeMatched:    4,
			matcher.OutcomeMismatched: 2,
		},
		Suppressed: 3,
		Purged:     1,
	}
}

type stubGuard struct{}

func (stubGuard) Stats() (uint64, uint64) { return 10, 3 }

type stubJobs struct {
	err error
}

func (stubJobs) Stats() remediation.Stats {
	return remediation.Stats{Running: 1, Completed: 5, Failed: 2, Rechecks: 4}
}

func (s stubJobs) JobCounts(context.Context) (map[models.JobStatus]int, error) {
	if s.err != nil {
		return nil, s.err
	}
	return map[models.JobStatus]int{models.JobStatusDone: 5, models.JobStatusError: 2, models.JobStatusRunning: 1}, nil
}

type stubWatcher struct{}

func (stubWatcher) Stats() watcher.Stats {
	return watcher.Stats{Watched: 12, Delivered: 30, Errors: 1}
}

func TestManagerRegistersRuntimeCollectors(t *testing.T) {
	manager := NewManager(Sources{})

	families, err := manager.GetRegistry().Gather()
	require.NoError(t, err)

	foundGo, foundProcess := false, false
	for _, mf := range families {
		if strings.HasPrefix(mf.GetName(), "go_") {
			foundGo = true
		}
		if strings.HasPrefix(mf.GetName(), "process_") {
			foundProcess = true
		}
	}

	assert.True(t, foundGo)
	if runtime.GOOS == "linux" {
		assert.True(t, foundProcess)
	}
}

func TestManagerRegistryIsolation(t *testing.T) {
	m1 := NewManager(Sources{})
	m2 := NewManager(Sources{})

	assert.NotSame(t, m1.registry, m2.registry)
	assert.NotSame(t, m1.collector, m2.collector)
}

func TestCollectorExportsSources(t *testing.T) {
	c := NewCollector(stubPipeline{}, stubGuard{}, stubJobs{}, stubWatcher{})

	expected := `
# HELP analyzarr_decisions_total Classification decisions by outcome
# TYPE analyzarr_decisions_total counter
analyzarr_decisions_total{outcome="matched"} 4
analyzarr_decisions_total{outcome="mismatched"} 2
# HELP analyzarr_cooldown_checks_total Cooldown guard checks by result
# TYPE analyzarr_cooldown_checks_total counter
analyzarr_cooldown_checks_total{result="accepted"} 10
analyzarr_cooldown_checks_total{result="suppressed"} 3
# HELP analyzarr_jobs Stored jobs by status
# TYPE analyzarr_jobs gauge
analyzarr_jobs{status="done"} 5
analyzarr_jobs{status="error"} 2
analyzarr_jobs{status="queued"} 0
analyzarr_jobs{status="running"} 1
# HELP analyzarr_watcher_directories Directories registered with the filesystem watcher
# TYPE analyzarr_watcher_directories gauge
analyzarr_watcher_directories 12
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"analyzarr_decisions_total", "analyzarr_cooldown_checks_total", "analyzarr_jobs", "analyzarr_watcher_directories"))
}

func TestCollectorSkipsJobCountsOnError(t *testing.T) {
	c := NewCollector(nil, nil, stubJobs{err: errors.New("db closed")}, nil)

	assert.Equal(t, 0, testutil.CollectAndCount(c, "analyzarr_jobs"))
	assert.Equal(t, 1, testutil.CollectAndCount(c, "analyzarr_jobs_running"))
}

func TestManagerHandlerServesDatabaseMetrics(t *testing.T) {
	db := testdb.Open(t, "metrics")
	manager := NewManager(Sources{DB: db, Pipeline: stubPipeline{}})

	srv := httptest.NewServer(manager.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "analyzarr_db_writes_total")
	assert.Contains(t, string(body), `analyzarr_decisions_total{outcome="matched"} 4`)
}
