// Package engine sequences one failure-analysis cycle: deduplicate the
// capture into a scenario, classify its root cause, derive recommendations
// and test specs, and fold the result into the daily learning metrics. It
// also serves the operator dashboard aggregation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/brunobozic/poll-automation-sub004/internal/analyzer"
	"github.com/brunobozic/poll-automation-sub004/internal/classify"
	"github.com/brunobozic/poll-automation-sub004/internal/failure"
	"github.com/brunobozic/poll-automation-sub004/internal/logging"
	"github.com/brunobozic/poll-automation-sub004/internal/metrics"
	"github.com/brunobozic/poll-automation-sub004/internal/recommend"
	"github.com/brunobozic/poll-automation-sub004/internal/store"
	"github.com/brunobozic/poll-automation-sub004/internal/testspec"
)

// DefaultDashboardWindow is the lookback for the operator dashboard.
const DefaultDashboardWindow = 7 * 24 * time.Hour

// dashboardListLimit caps the recent-failure and pending-recommendation
// lists in one dashboard response.
const dashboardListLimit = 20

// Insights summarizes one cycle for the caller. Degradations downstream of
// scenario resolution never fail the cycle; they show up here as reduced
// counts or the fallback flag.
type Insights struct {
	RootCauseCategory failure.RootCauseCategory `json:"root_cause_category"`
	ConfidenceScore   float64                   `json:"confidence_score"`
	FallbackUsed      bool                      `json:"fallback_used"`
	Deduplicated      bool                      `json:"deduplicated"`
	OccurrenceCount   int                       `json:"occurrence_count"`
	SimilarFailures   int                       `json:"similar_failures"`
	Recommendations   int                       `json:"recommendations"`
	TestsGenerated    int                       `json:"tests_generated"`
}

// CycleSummary is the result of one CaptureAndAnalyzeFailure call.
type CycleSummary struct {
	CycleID           string   `json:"cycle_id"`
	ScenarioID        int64    `json:"scenario_id"`
	AnalysisID        int64    `json:"analysis_id"`
	RecommendationIDs []int64  `json:"recommendation_ids"`
	TestIDs           []int64  `json:"test_ids"`
	Insights          Insights `json:"insights"`
}

// Dashboard is the read-only operator aggregation over a lookback window.
type Dashboard struct {
	Window                 string                     `json:"window"`
	RecentFailures         []*failure.FailureScenario `json:"recent_failures"`
	TopFailureTypes        []store.TypeCount          `json:"top_failure_types"`
	LearningProgress       []*failure.DailyMetric     `json:"learning_progress"`
	PendingRecommendations []*failure.Recommendation  `json:"pending_recommendations"`
}

// Engine wires the pipeline stages over one shared store.
type Engine struct {
	store      store.Store
	classifier *classify.Classifier
	recommends *recommend.Generator
	tests      *testspec.Generator
	aggregator *metrics.Aggregator
	logger     *slog.Logger
	now        func() time.Time
}

// New builds an Engine over the store and analyzer. Classifier options
// (similar-failure limit, analyzer timeout) pass through.
func New(st store.Store, an analyzer.Analyzer, opts ...classify.Option) *Engine {
	return &Engine{
		store:      st,
		classifier: classify.New(st, an, opts...),
		recommends: recommend.New(st),
		tests:      testspec.New(st),
		aggregator: metrics.NewAggregator(st),
		logger:     logging.New("engine"),
		now:        time.Now,
	}
}

// CaptureAndAnalyzeFailure runs one full cycle over a captured failure
// context. Only a persistence failure while resolving the scenario or
// saving its analysis aborts; every later degradation is absorbed and
// reflected in the returned insight counts. The caller's context is
// checked at each stage boundary.
func (e *Engine) CaptureAndAnalyzeFailure(ctx context.Context, fctx *failure.FailureContext) (*CycleSummary, error) {
	if fctx == nil {
		return nil, errors.New("failure context is nil")
	}
	start := e.now()
	cycleID := uuid.NewString()
	log := e.logger.With("cycle", cycleID)

	hash := failure.ScenarioHash(fctx)
	sc, created, err := e.store.FindOrCreateScenario(hash, fctx, start)
	if err != nil {
		metrics.CyclesTotal.WithLabelValues("persistence_error").Inc()
		return nil, fmt.Errorf("%w: resolve scenario %s: %v", store.ErrPersistence, hash, err)
	}
	if !created {
		metrics.ScenariosDeduplicated.Inc()
	}
	log.Info("scenario resolved",
		"scenario", sc.ID, "hash", hash, "created", created, "occurrences", sc.OccurrenceCount)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a, err := e.classifier.Classify(ctx, sc)
	if err != nil {
		metrics.CyclesTotal.WithLabelValues("persistence_error").Inc()
		return nil, fmt.Errorf("%w: %v", store.ErrPersistence, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	recs := e.recommends.Generate(a, sc)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	specs := e.tests.Generate(sc, fctx, recs)

	if err := e.aggregator.Record(start, a, len(recs)); err != nil {
		// The cycle's artifacts are already persisted; losing one metric
		// increment is not worth failing the caller.
		log.Warn("daily metric update failed", "error", err)
	}

	summary := &CycleSummary{
		CycleID:           cycleID,
		ScenarioID:        sc.ID,
		AnalysisID:        a.ID,
		RecommendationIDs: recommendationIDs(recs),
		TestIDs:           testIDs(specs),
		Insights: Insights{
			RootCauseCategory: a.RootCauseCategory,
			ConfidenceScore:   a.ConfidenceScore,
			FallbackUsed:      classify.UsedFallback(a),
			Deduplicated:      !created,
			OccurrenceCount:   sc.OccurrenceCount,
			SimilarFailures:   len(a.SimilarFailureIDs),
			Recommendations:   len(recs),
			TestsGenerated:    len(specs),
		},
	}
	metrics.CyclesTotal.WithLabelValues("ok").Inc()
	metrics.CycleDuration.Observe(e.now().Sub(start).Seconds())
	log.Info("cycle complete",
		"scenario", sc.ID, "analysis", a.ID,
		"category", a.RootCauseCategory,
		"recommendations", len(recs), "tests", len(specs))
	return summary, nil
}

// GetFailureDashboard aggregates the operator view over the window. The
// four queries are independent reads and run concurrently.
func (e *Engine) GetFailureDashboard(ctx context.Context, window time.Duration) (*Dashboard, error) {
	if window <= 0 {
		window = DefaultDashboardWindow
	}
	since := e.now().Add(-window)
	d := &Dashboard{Window: window.String()}

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		list, err := e.store.ListRecentScenarios(since, dashboardListLimit)
		if err != nil {
			return fmt.Errorf("recent failures: %w", err)
		}
		d.RecentFailures = list
		return nil
	})
	g.Go(func() error {
		counts, err := e.store.CountFailureTypes(since)
		if err != nil {
			return fmt.Errorf("failure type counts: %w", err)
		}
		d.TopFailureTypes = counts
		return nil
	})
	g.Go(func() error {
		progress, err := e.aggregator.Progress(since)
		if err != nil {
			return fmt.Errorf("learning progress: %w", err)
		}
		d.LearningProgress = progress
		return nil
	})
	g.Go(func() error {
		pending, err := e.store.ListPendingRecommendations(dashboardListLimit)
		if err != nil {
			return fmt.Errorf("pending recommendations: %w", err)
		}
		d.PendingRecommendations = pending
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return d, nil
}

// Stats exposes store totals for the status surfaces.
func (e *Engine) Stats() (*store.Stats, error) {
	return e.store.Stats()
}

// TodayMetric returns the metric row for the current UTC date; nil when no
// cycle has run today.
func (e *Engine) TodayMetric() (*failure.DailyMetric, error) {
	return e.store.GetDailyMetric(e.now().UTC().Format(metrics.DateFormat))
}

func recommendationIDs(recs []*failure.Recommendation) []int64 {
	ids := make([]int64, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.ID)
	}
	return ids
}

func testIDs(specs []*failure.ReproductionTest) []int64 {
	ids := make([]int64, 0, len(specs))
	for _, t := range specs {
		ids = append(ids, t.ID)
	}
	return ids
}
