// Package recommend maps a validated root-cause category to actionable
// remediation records via a fixed decision table, plus a pattern-escalation
// rule for recurring failures.
package recommend

import (
	"fmt"
	"log/slog"

	"github.com/brunobozic/poll-automation-sub004/internal/failure"
	"github.com/brunobozic/poll-automation-sub004/internal/logging"
	"github.com/brunobozic/poll-automation-sub004/internal/metrics"
	"github.com/brunobozic/poll-automation-sub004/internal/store"
)

// PatternThreshold is the similar-failure count at which a recurring
// scenario earns an extra strategic recommendation, independent of its
// primary category.
const PatternThreshold = 3

// template is one decision-table row. Fields outside the table key are
// preset per category.
type template struct {
	Type             failure.RecommendationType
	Priority         int
	Effort           failure.Effort
	Impact           failure.Impact
	Target           string
	SuggestedChanges string
	Prompt           string
	TestRequirements string
	Validation       string
}

// decisionTable maps root-cause categories to their remediation template.
// Categories without a row fall through to investigationTemplate.
var decisionTable = map[failure.RootCauseCategory]template{
	failure.CauseSelectorOutdated: {
		Type: failure.RecImmediateFix, Priority: 8,
		Effort: failure.EffortLow, Impact: failure.ImpactHigh,
		Target:           "selector_engine",
		SuggestedChanges: "Refresh the stored selectors for this site from the captured page snapshot; prefer id/name attributes over positional paths.",
		Prompt:           "Update the selector map for the failing step using the page snapshot attached to the scenario. Verify each replacement selector resolves uniquely.",
		TestRequirements: "Replay the failing step against the captured snapshot with the updated selectors.",
		Validation:       "The previously failing selector action completes without a not-found error.",
	},
	failure.CauseTimingIssue: {
		Type: failure.RecImmediateFix, Priority: 7,
		Effort: failure.EffortLow, Impact: failure.ImpactMedium,
		Target:           "timing_engine",
		SuggestedChanges: "Raise the step timeout and add an explicit readiness wait (network idle or element visible) before the failed action.",
		Prompt:           "Introduce an adaptive wait before the failing action and bump the step timeout for this site profile.",
		TestRequirements: "Run the failing step under simulated slow-network conditions.",
		Validation:       "The step completes within the new timeout across three consecutive runs.",
	},
	failure.CauseAntiBotDetection: {
		Type: failure.RecStrategicImprovement, Priority: 9,
		Effort: failure.EffortHigh, Impact: failure.ImpactCritical,
		Target:           "evasion_engine",
		SuggestedChanges: "Rotate fingerprint and session characteristics for this site; review header ordering, TLS profile, and interaction cadence.",
		Prompt:           "Audit the detection vector from the defense context captured with the scenario and harden the matching evasion profile.",
		TestRequirements: "Attempt a full registration on the site with the hardened profile.",
		Validation:       "The session is not blocked or challenged during a complete registration flow.",
	},
	failure.CauseSiteStructureChange: {
		Type: failure.RecArchitectureChange, Priority: 6,
		Effort: failure.EffortEpic, Impact: failure.ImpactHigh,
		Target:           "adaptation_engine",
		SuggestedChanges: "Re-map the registration flow for this site; the page structure diverged from the stored recipe.",
		Prompt:           "Walk the site's registration flow from the captured URL and regenerate the step recipe, diffing against the stored one.",
		TestRequirements: "Execute the regenerated recipe end to end in a staging session.",
		Validation:       "All steps of the regenerated recipe complete against the live site.",
	},
}

// investigationTemplate is the catch-all row for categories the table does
// not name, including unknown.
var investigationTemplate = template{
	Type: failure.RecInvestigation, Priority: 5,
	Effort: failure.EffortMedium, Impact: failure.ImpactMedium,
	Target:           "general",
	SuggestedChanges: "Reproduce the failure manually from the captured context and narrow the root cause before committing to a fix.",
	Prompt:           "Review the scenario's error, snapshot, and automation state; identify which subsystem misbehaved and reclassify.",
	TestRequirements: "Document a manual reproduction path from the captured context.",
	Validation:       "The failure is reclassified into a specific category or marked resolved.",
}

// patternTemplate is the escalation row: emitted once when a scenario has
// accumulated PatternThreshold or more similar failures.
var patternTemplate = template{
	Type: failure.RecStrategicImprovement, Priority: 8,
	Effort: failure.EffortHigh, Impact: failure.ImpactHigh,
	Target:           "pattern_recognition",
	SuggestedChanges: "Multiple related failures share this signature; address the family systematically instead of patching instances.",
	Prompt:           "Cluster the similar failures referenced by this analysis and design a shared remediation covering the whole family.",
	TestRequirements: "Replay every scenario in the cluster after the shared remediation lands.",
	Validation:       "No scenario in the cluster reproduces after the remediation.",
}

// Generator turns one analysis into persisted recommendations.
type Generator struct {
	store  store.Store
	logger *slog.Logger
}

// New builds a Generator over the store.
func New(st store.Store) *Generator {
	return &Generator{store: st, logger: logging.New("recommend")}
}

// Generate emits the category-specific recommendation and, when the
// analysis references PatternThreshold or more similar failures, one
// pattern-based strategic recommendation. Each record is persisted with
// back-references to the analysis and scenario. A persistence failure on
// one record is logged and skips only that record.
func (g *Generator) Generate(a *failure.FailureAnalysis, sc *failure.FailureScenario) []*failure.Recommendation {
	templates := []template{templateFor(a.RootCauseCategory)}
	if len(a.SimilarFailureIDs) >= PatternThreshold {
		templates = append(templates, patternTemplate)
	}

	var out []*failure.Recommendation
	for _, tpl := range templates {
		r := build(tpl, a, sc)
		id, err := g.store.SaveRecommendation(r)
		if err != nil {
			g.logger.Warn("recommendation skipped",
				"scenario", sc.ID, "analysis", a.ID, "target", tpl.Target, "error", err)
			continue
		}
		r.ID = id
		metrics.RecommendationsEmitted.WithLabelValues(string(r.Type)).Inc()
		out = append(out, r)
	}
	return out
}

func templateFor(c failure.RootCauseCategory) template {
	if tpl, ok := decisionTable[c]; ok {
		return tpl
	}
	return investigationTemplate
}

func build(tpl template, a *failure.FailureAnalysis, sc *failure.FailureScenario) *failure.Recommendation {
	return &failure.Recommendation{
		AnalysisID:           a.ID,
		ScenarioID:           sc.ID,
		Type:                 tpl.Type,
		PriorityScore:        tpl.Priority,
		Effort:               tpl.Effort,
		Impact:               tpl.Impact,
		TargetComponent:      tpl.Target,
		SuggestedChanges:     tpl.SuggestedChanges,
		ImplementationPrompt: contextualize(tpl.Prompt, sc),
		TestRequirements:     tpl.TestRequirements,
		ValidationCriteria:   tpl.Validation,
	}
}

// contextualize anchors the template prompt to the concrete scenario.
func contextualize(prompt string, sc *failure.FailureScenario) string {
	return fmt.Sprintf("%s\n\nScenario #%d: site=%d step=%d url=%s error=%q",
		prompt, sc.ID, sc.SiteID, sc.StepNumber, sc.PageURL, sc.ErrorMessage)
}
