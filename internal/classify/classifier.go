// Package classify orchestrates one root-cause classification pass:
// similar-failure retrieval, prompt construction, analyzer invocation under
// a bounded timeout, response validation, and deterministic fallback
// substitution. Its single load-bearing guarantee is that every cycle ends
// with a valid taxonomy category and a confidence inside [0,1], no matter
// how degraded the analyzer is.
package classify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/brunobozic/poll-automation-sub004/internal/analyzer"
	"github.com/brunobozic/poll-automation-sub004/internal/failure"
	"github.com/brunobozic/poll-automation-sub004/internal/logging"
	"github.com/brunobozic/poll-automation-sub004/internal/metrics"
	"github.com/brunobozic/poll-automation-sub004/internal/store"
)

// DefaultSimilarLimit caps how many similar failures feed the analyzer
// context.
const DefaultSimilarLimit = 10

// Classifier resolves a scenario to a persisted FailureAnalysis.
type Classifier struct {
	store    store.Store
	analyzer analyzer.Analyzer
	fallback *analyzer.Heuristic
	limit    int
	timeout  time.Duration
	logger   *slog.Logger
}

// Option configures the Classifier.
type Option func(*Classifier)

// WithSimilarLimit overrides the similar-failure retrieval limit.
func WithSimilarLimit(n int) Option {
	return func(c *Classifier) { c.limit = n }
}

// WithTimeout bounds the analyzer invocation.
func WithTimeout(d time.Duration) Option {
	return func(c *Classifier) { c.timeout = d }
}

// WithLogger sets the classifier's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Classifier) { c.logger = l }
}

// New builds a Classifier around the injected analyzer. The deterministic
// heuristic always ships as the fallback, regardless of which analyzer is
// injected.
func New(st store.Store, a analyzer.Analyzer, opts ...Option) *Classifier {
	c := &Classifier{
		store:    st,
		analyzer: a,
		fallback: analyzer.NewHeuristic(),
		limit:    DefaultSimilarLimit,
		timeout:  analyzer.DefaultTimeout,
		logger:   logging.New("classify"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify runs one classification pass over the scenario and persists the
// resulting analysis. The analyzer is attempted exactly once; any error,
// timeout, or malformed response substitutes the keyword fallback and the
// degradation is recorded in contributingFactors. Only a persistence
// failure can make Classify return an error.
func (c *Classifier) Classify(ctx context.Context, scenario *failure.FailureScenario) (*failure.FailureAnalysis, error) {
	similar, err := c.store.ListSimilarScenarios(scenario, c.limit)
	if err != nil {
		// Degraded context, not a fatal condition: classify without it.
		c.logger.Warn("similar-failure retrieval failed", "scenario", scenario.ID, "error", err)
		similar = nil
	}

	req := buildRequest(scenario, similar)
	req.Prompt = buildPrompt(req, categoryLabels())

	start := time.Now()
	result, raw, degraded := c.invoke(ctx, req, scenario)
	elapsed := time.Since(start)

	a := &failure.FailureAnalysis{
		ScenarioID:          scenario.ID,
		RootCauseCategory:   result.RootCauseCategory,
		Description:         result.Description,
		ConfidenceScore:     failure.ClampConfidence(result.ConfidenceScore),
		ContributingFactors: mergeFactors(result, degraded),
		SimilarFailureIDs:   scenarioIDs(similar),
		FrequencyTrend:      trendFor(result, scenario),
		Impact:              impactFor(result, scenario),
		AnalysisPrompt:      req.Prompt,
		DurationMS:          elapsed.Milliseconds(),
		ReviewStatus:        failure.ReviewPending,
		CreatedAt:           time.Now(),
	}
	if raw != nil {
		a.AnalysisResponseRaw = raw.Body
		a.TokensUsed = raw.TokensUsed
		metrics.AnalyzerTokens.Add(float64(raw.TokensUsed))
	}

	id, err := c.store.SaveAnalysis(a)
	if err != nil {
		return nil, fmt.Errorf("save analysis: %w", err)
	}
	a.ID = id
	c.logger.Info("scenario classified",
		"scenario", scenario.ID, "analysis", a.ID,
		"category", a.RootCauseCategory, "confidence", a.ConfidenceScore,
		"fallback", degraded != "", "similar", len(a.SimilarFailureIDs))
	return a, nil
}

// invoke attempts the analyzer once under the timeout. It returns the
// validated result, the raw response if any, and a non-empty degradation
// marker when the fallback substituted.
func (c *Classifier) invoke(ctx context.Context, req *analyzer.Request, scenario *failure.FailureScenario) (*analyzer.Result, *analyzer.RawResponse, string) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.analyzer.Analyze(callCtx, req)
	if err != nil {
		c.logger.Warn("analyzer unavailable, using keyword fallback",
			"scenario", scenario.ID, "error", err)
		metrics.AnalyzerFallbacks.WithLabelValues("unavailable").Inc()
		return c.fallback.Classify(scenario.ErrorMessage, scenario.FailedSelector), nil,
			fmt.Sprintf("analyzer unavailable: %v", err)
	}

	result, err := analyzer.Parse(raw)
	if err != nil {
		c.logger.Warn("analyzer response malformed, using keyword fallback",
			"scenario", scenario.ID, "error", err)
		metrics.AnalyzerFallbacks.WithLabelValues("malformed").Inc()
		return c.fallback.Classify(scenario.ErrorMessage, scenario.FailedSelector), raw,
			fmt.Sprintf("analyzer response rejected: %v", err)
	}
	return result, raw, ""
}

func buildRequest(sc *failure.FailureScenario, similar []*failure.FailureScenario) *analyzer.Request {
	req := &analyzer.Request{
		Scenario: analyzer.ScenarioSummary{
			ScenarioID:      sc.ID,
			FailureType:     sc.FailureType,
			SiteID:          sc.SiteID,
			ErrorMessage:    sc.ErrorMessage,
			ErrorCode:       sc.ErrorCode,
			FailedSelector:  sc.FailedSelector,
			FailedAction:    sc.FailedAction,
			PageURL:         sc.PageURL,
			PageTitle:       sc.PageTitle,
			StepNumber:      sc.StepNumber,
			TotalSteps:      sc.TotalSteps,
			OccurrenceCount: sc.OccurrenceCount,
			TimeoutMS:       sc.TimeoutMS,
		},
	}
	for _, s := range similar {
		req.SimilarFailures = append(req.SimilarFailures, analyzer.SimilarFailure{
			ScenarioID:      s.ID,
			FailureType:     s.FailureType,
			ErrorMessage:    truncateMessage(s.ErrorMessage),
			OccurrenceCount: s.OccurrenceCount,
			LastSeen:        s.LastOccurrence.UTC().Format(time.RFC3339),
		})
	}
	return req
}

func truncateMessage(s string) string {
	const max = 200
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func scenarioIDs(similar []*failure.FailureScenario) []int64 {
	ids := make([]int64, 0, len(similar))
	for _, s := range similar {
		ids = append(ids, s.ID)
	}
	return ids
}

func categoryLabels() []string {
	labels := make([]string, 0, len(failure.RootCauseCategories))
	for _, c := range failure.RootCauseCategories {
		labels = append(labels, string(c))
	}
	return labels
}

// UsedFallback reports whether the analysis was produced by the keyword
// fallback rather than the analyzer, based on the degradation marker
// recorded in contributingFactors.
func UsedFallback(a *failure.FailureAnalysis) bool {
	for _, f := range a.ContributingFactors {
		if strings.HasPrefix(f, "analyzer unavailable:") || strings.HasPrefix(f, "analyzer response rejected:") {
			return true
		}
	}
	return false
}

// mergeFactors folds analyzer pattern insights and the degradation marker
// into contributingFactors so the stored row carries the full story.
func mergeFactors(result *analyzer.Result, degraded string) []string {
	factors := append([]string(nil), result.ContributingFactors...)
	for _, p := range result.PatternInsights {
		factors = append(factors, "pattern: "+p)
	}
	if degraded != "" {
		factors = append(factors, degraded)
	}
	return factors
}

// trendFor prefers the analyzer's trend; when absent it derives one from
// the occurrence counter.
func trendFor(result *analyzer.Result, sc *failure.FailureScenario) failure.FrequencyTrend {
	if result.FrequencyTrend != "" {
		return result.FrequencyTrend
	}
	if sc.OccurrenceCount >= 3 {
		return failure.TrendIncreasing
	}
	return failure.TrendStable
}

// impactFor prefers the analyzer's assessment; when absent it derives one
// from the severity level and recurrence.
func impactFor(result *analyzer.Result, sc *failure.FailureScenario) failure.ImpactAssessment {
	if result.Impact.Severity != "" {
		return result.Impact
	}
	severity := "low"
	switch {
	case sc.SeverityLevel >= 5:
		severity = "critical"
	case sc.SeverityLevel == 4:
		severity = "high"
	case sc.SeverityLevel == 3:
		severity = "medium"
	}
	scope := "isolated"
	if sc.OccurrenceCount >= 3 {
		scope = "recurring"
	}
	return failure.ImpactAssessment{
		Severity:       severity,
		Scope:          scope,
		BusinessImpact: fmt.Sprintf("registration attempts failing on site %d at step %d", sc.SiteID, sc.StepNumber),
	}
}
