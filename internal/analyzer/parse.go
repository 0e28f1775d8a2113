package analyzer

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/brunobozic/poll-automation-sub004/internal/failure"
)

// jsonBlockPattern extracts the first brace-delimited block from free text,
// for analyzers that wrap their JSON in prose or markdown fences.
var jsonBlockPattern = regexp.MustCompile(`(?s)\{.*\}`)

// rawResult mirrors Result with a pointer confidence so a missing field is
// distinguishable from 0.
type rawResult struct {
	RootCauseCategory   string                   `json:"root_cause_category"`
	Description         string                   `json:"description"`
	ConfidenceScore     *float64                 `json:"confidence_score"`
	ContributingFactors []string                 `json:"contributing_factors"`
	FrequencyTrend      string                   `json:"frequency_trend"`
	Impact              failure.ImpactAssessment `json:"impact_assessment"`
	PatternInsights     []string                 `json:"pattern_insights"`
}

// Parse turns a raw analyzer response into a validated Result. The body may
// be a pure JSON object or free text with an embedded JSON block. Required
// fields are root_cause_category (from the fixed taxonomy), description,
// and confidence_score; anything less is ErrMalformedResponse. The
// confidence score is clamped into [0,1] regardless of what the analyzer
// returned.
func Parse(resp *RawResponse) (*Result, error) {
	if resp == nil || resp.Body == "" {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedResponse)
	}
	block := jsonBlockPattern.FindString(resp.Body)
	if block == "" {
		return nil, fmt.Errorf("%w: no JSON object in body", ErrMalformedResponse)
	}
	var raw rawResult
	if err := json.Unmarshal([]byte(block), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	category := failure.RootCauseCategory(raw.RootCauseCategory)
	if !category.Valid() {
		return nil, fmt.Errorf("%w: root_cause_category %q not in taxonomy", ErrMalformedResponse, raw.RootCauseCategory)
	}
	if raw.Description == "" {
		return nil, fmt.Errorf("%w: missing description", ErrMalformedResponse)
	}
	if raw.ConfidenceScore == nil {
		return nil, fmt.Errorf("%w: missing confidence_score", ErrMalformedResponse)
	}

	trend := failure.FrequencyTrend(raw.FrequencyTrend)
	switch trend {
	case failure.TrendIncreasing, failure.TrendStable, failure.TrendDecreasing:
	default:
		trend = ""
	}

	return &Result{
		RootCauseCategory:   category,
		Description:         raw.Description,
		ConfidenceScore:     failure.ClampConfidence(*raw.ConfidenceScore),
		ContributingFactors: raw.ContributingFactors,
		FrequencyTrend:      trend,
		Impact:              raw.Impact,
		PatternInsights:     raw.PatternInsights,
	}, nil
}
