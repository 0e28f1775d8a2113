package classify

import (
	"fmt"
	"strings"

	"github.com/brunobozic/poll-automation-sub004/internal/analyzer"
)

// buildPrompt renders the classification request as the text prompt sent to
// the analysis service. The taxonomy is spelled out so the model answers in
// category labels, not prose.
func buildPrompt(req *analyzer.Request, categories []string) string {
	var b strings.Builder
	b.WriteString("Classify the root cause of this automated form-registration failure.\n\n")

	s := req.Scenario
	fmt.Fprintf(&b, "Failure type: %s\n", s.FailureType)
	fmt.Fprintf(&b, "Site: %d\n", s.SiteID)
	fmt.Fprintf(&b, "Step: %d of %d\n", s.StepNumber, s.TotalSteps)
	fmt.Fprintf(&b, "Occurrences: %d\n", s.OccurrenceCount)
	fmt.Fprintf(&b, "Error: %s\n", s.ErrorMessage)
	if s.ErrorCode != "" {
		fmt.Fprintf(&b, "Error code: %s\n", s.ErrorCode)
	}
	if s.FailedSelector != "" {
		fmt.Fprintf(&b, "Failed selector: %s\n", s.FailedSelector)
	}
	if s.FailedAction != "" {
		fmt.Fprintf(&b, "Failed action: %s\n", s.FailedAction)
	}
	if s.PageURL != "" {
		fmt.Fprintf(&b, "Page: %s (%s)\n", s.PageURL, s.PageTitle)
	}
	if s.TimeoutMS > 0 {
		fmt.Fprintf(&b, "Configured timeout: %dms\n", s.TimeoutMS)
	}

	if len(req.SimilarFailures) > 0 {
		b.WriteString("\nSimilar prior failures:\n")
		for _, sf := range req.SimilarFailures {
			fmt.Fprintf(&b, "- scenario %d (%s, seen %dx, last %s): %s\n",
				sf.ScenarioID, sf.FailureType, sf.OccurrenceCount, sf.LastSeen, sf.ErrorMessage)
		}
	}

	b.WriteString("\nAllowed root_cause_category values: ")
	b.WriteString(strings.Join(categories, ", "))
	b.WriteString(".\n\nReturn your analysis in this exact JSON format:\n")
	b.WriteString(`{
    "root_cause_category": "one of the allowed values",
    "description": "what went wrong and why",
    "confidence_score": 0.8,
    "contributing_factors": ["..."],
    "frequency_trend": "increasing|stable|decreasing",
    "impact_assessment": {"severity": "...", "scope": "...", "business_impact": "..."},
    "pattern_insights": ["..."]
}`)
	return b.String()
}
