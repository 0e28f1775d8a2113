// Package store is the persistence facade for the failure-analysis engine.
// Domain logic, CLI, HTTP, and MCP surfaces use only the Store interface;
// the implementation is SQLite (SqlStore) or in-memory (MemStore).
package store

import (
	"errors"
	"time"

	"github.com/brunobozic/poll-automation-sub004/internal/failure"
)

// DefaultDBPath is the default relative path for the SQLite DB.
// Open() creates the parent dir (e.g. .failure-engine) if it is missing.
const DefaultDBPath = ".failure-engine/failures.db"

// ErrPersistence marks storage-unavailable or constraint-violation failures.
// A cycle that hits it while resolving a scenario aborts; nothing downstream
// can run without a scenario id.
var ErrPersistence = errors.New("scenario persistence failure")

// MetricDelta is one cycle's contribution to a daily metric row.
type MetricDelta struct {
	Failures        int
	Analyzed        int
	Recommendations int
	Confidence      float64 // folded into the day's running learning score
}

// TypeCount is a failureType bucket in the dashboard aggregation.
type TypeCount struct {
	FailureType failure.FailureType `json:"failure_type"`
	Count       int                 `json:"count"`
}

// Stats summarizes store contents for the status command and MCP tools.
type Stats struct {
	Scenarios           int `json:"scenarios"`
	UnresolvedScenarios int `json:"unresolved_scenarios"`
	Analyses            int `json:"analyses"`
	Recommendations     int `json:"recommendations"`
	Tests               int `json:"tests"`
	TokensTotal         int `json:"tokens_total"` // sum of tokens_used across analyses
}

// Store is the persistence facade over the five entities.
//
// FindOrCreateScenario and UpsertDailyMetric must be atomic: concurrent
// cycles for the same hash or the same date must not produce duplicate rows
// or lost increments.
type Store interface {
	// Scenarios
	FindOrCreateScenario(hash string, ctx *failure.FailureContext, now time.Time) (scenario *failure.FailureScenario, created bool, err error)
	GetScenario(id int64) (*failure.FailureScenario, error)
	ListSimilarScenarios(subject *failure.FailureScenario, limit int) ([]*failure.FailureScenario, error)
	ListRecentScenarios(since time.Time, limit int) ([]*failure.FailureScenario, error)
	CountFailureTypes(since time.Time) ([]TypeCount, error)

	// Analyses
	SaveAnalysis(a *failure.FailureAnalysis) (int64, error)
	GetAnalysis(id int64) (*failure.FailureAnalysis, error)
	ListAnalysesByScenario(scenarioID int64) ([]*failure.FailureAnalysis, error)

	// Recommendations
	SaveRecommendation(r *failure.Recommendation) (int64, error)
	ListPendingRecommendations(limit int) ([]*failure.Recommendation, error)

	// Test specs
	SaveTest(t *failure.ReproductionTest) (int64, error)
	ListTestsByScenario(scenarioID int64) ([]*failure.ReproductionTest, error)

	// Daily metrics
	UpsertDailyMetric(date string, delta MetricDelta) error
	GetDailyMetric(date string) (*failure.DailyMetric, error)
	ListDailyMetrics(since string) ([]*failure.DailyMetric, error)

	Stats() (*Stats, error)
	Close() error
}
