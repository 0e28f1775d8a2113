package analyzer

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/brunobozic/poll-automation-sub004/internal/failure"
)

//go:embed heuristics.yaml
var heuristicsYAML []byte

type heuristicRule struct {
	Category            string   `yaml:"category"`
	Confidence          float64  `yaml:"confidence"`
	Keywords            []string `yaml:"keywords"`
	MatchFailedSelector bool     `yaml:"match_failed_selector"`
	Description         string   `yaml:"description"`
}

type heuristicRules struct {
	FallbackRules []heuristicRule `yaml:"fallback_rules"`
	Default       heuristicRule   `yaml:"default"`
}

// Heuristic is the deterministic rule-based classifier. It never fails:
// every input maps to a taxonomy category with a fixed confidence.
type Heuristic struct {
	rules heuristicRules
}

// NewHeuristic loads the embedded rule file. The rules ship with the
// binary, so a load failure is a build defect, not a runtime condition.
func NewHeuristic() *Heuristic {
	var rules heuristicRules
	if err := yaml.Unmarshal(heuristicsYAML, &rules); err != nil {
		panic(fmt.Sprintf("load heuristics.yaml: %v", err))
	}
	return &Heuristic{rules: rules}
}

// Classify applies the keyword rules in order against the error message and
// selector presence. The first matching rule wins; the default rule applies
// when nothing matches.
func (h *Heuristic) Classify(errorMessage, failedSelector string) *Result {
	text := strings.ToLower(errorMessage)
	for _, r := range h.rules.FallbackRules {
		if h.matches(r, text, failedSelector) {
			return resultFromRule(r)
		}
	}
	return resultFromRule(h.rules.Default)
}

func (h *Heuristic) matches(r heuristicRule, text, failedSelector string) bool {
	for _, kw := range r.Keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return r.MatchFailedSelector && failedSelector != ""
}

func resultFromRule(r heuristicRule) *Result {
	return &Result{
		RootCauseCategory: failure.RootCauseCategory(r.Category),
		Description:       r.Description,
		ConfidenceScore:   r.Confidence,
		FrequencyTrend:    failure.TrendStable,
	}
}

// HeuristicAnalyzer adapts Heuristic to the Analyzer interface so the
// deterministic rules can also serve as the injected implementation when no
// external analysis service is configured.
type HeuristicAnalyzer struct {
	h *Heuristic
}

// NewHeuristicAnalyzer returns the default deterministic analyzer.
func NewHeuristicAnalyzer() *HeuristicAnalyzer {
	return &HeuristicAnalyzer{h: NewHeuristic()}
}

// Analyze implements Analyzer. The result is emitted as a canonical JSON
// body so it flows through the same Parse path as external responses.
func (a *HeuristicAnalyzer) Analyze(_ context.Context, req *Request) (*RawResponse, error) {
	res := a.h.Classify(req.Scenario.ErrorMessage, req.Scenario.FailedSelector)
	body, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return &RawResponse{Body: string(body)}, nil
}
