// Package analyzer defines the pluggable root-cause analyzer capability and
// ships two implementations: an HTTP client for an external LLM analysis
// service, and a deterministic keyword heuristic that always succeeds.
package analyzer

import (
	"context"
	"errors"

	"github.com/brunobozic/poll-automation-sub004/internal/failure"
)

// ErrUnavailable marks transport-level analyzer failures (network error,
// timeout, non-2xx). Recovered locally by the heuristic fallback; it never
// aborts a cycle.
var ErrUnavailable = errors.New("analyzer unavailable")

// ErrMalformedResponse marks analyzer responses that cannot be parsed into
// the canonical schema or fail validation. Also recovered by fallback.
var ErrMalformedResponse = errors.New("analyzer response malformed")

// ScenarioSummary is the subject scenario's technical fields, as presented
// to the analyzer.
type ScenarioSummary struct {
	ScenarioID      int64               `json:"scenario_id"`
	FailureType     failure.FailureType `json:"failure_type"`
	SiteID          int64               `json:"site_id"`
	ErrorMessage    string              `json:"error_message"`
	ErrorCode       string              `json:"error_code,omitempty"`
	FailedSelector  string              `json:"failed_selector,omitempty"`
	FailedAction    string              `json:"failed_action,omitempty"`
	PageURL         string              `json:"page_url,omitempty"`
	PageTitle       string              `json:"page_title,omitempty"`
	StepNumber      int                 `json:"step_number"`
	TotalSteps      int                 `json:"total_steps,omitempty"`
	OccurrenceCount int                 `json:"occurrence_count"`
	TimeoutMS       int64               `json:"timeout_ms,omitempty"`
}

// SimilarFailure is one prior scenario summarized for analyzer context.
type SimilarFailure struct {
	ScenarioID      int64               `json:"scenario_id"`
	FailureType     failure.FailureType `json:"failure_type"`
	ErrorMessage    string              `json:"error_message"`
	OccurrenceCount int                 `json:"occurrence_count"`
	LastSeen        string              `json:"last_seen"`
}

// Request is the structured classification payload sent to an analyzer.
type Request struct {
	Scenario        ScenarioSummary  `json:"scenario"`
	SimilarFailures []SimilarFailure `json:"similar_failures,omitempty"`
	Prompt          string           `json:"prompt"`
}

// RawResponse is what an analyzer returns: either a structured JSON object
// matching the canonical schema, or free text containing an embedded JSON
// block. Parsing happens in Parse.
type RawResponse struct {
	Body       string
	TokensUsed int
}

// Analyzer is the injected classification capability. One attempt per
// cycle; callers bound the call with the context deadline.
type Analyzer interface {
	Analyze(ctx context.Context, req *Request) (*RawResponse, error)
}

// Result is the canonical analyzer output after parsing and validation.
type Result struct {
	RootCauseCategory   failure.RootCauseCategory `json:"root_cause_category"`
	Description         string                    `json:"description"`
	ConfidenceScore     float64                   `json:"confidence_score"`
	ContributingFactors []string                  `json:"contributing_factors,omitempty"`
	FrequencyTrend      failure.FrequencyTrend    `json:"frequency_trend,omitempty"`
	Impact              failure.ImpactAssessment  `json:"impact_assessment,omitempty"`
	PatternInsights     []string                  `json:"pattern_insights,omitempty"`
}
