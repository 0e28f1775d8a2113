// Package failure defines the domain records of the failure-analysis engine:
// the context captured when an automated registration step fails, the
// deduplicated scenario identity, and the artifacts one analysis cycle
// produces (analysis, recommendations, test specs, daily metric).
//
// Records stay typed in-process; JSON happens only at the storage and
// transport boundaries.
package failure

import "time"

// FailureType labels what kind of step failed, as reported by the
// automation layer.
type FailureType string

const (
	FailureTechnical  FailureType = "technical"
	FailureAntiBot    FailureType = "anti_bot"
	FailureLogic      FailureType = "logic"
	FailureSiteChange FailureType = "site_change"
	FailureNetwork    FailureType = "network"
	FailureTimeout    FailureType = "timeout"
	FailureCaptcha    FailureType = "captcha"
	FailureHoneypot   FailureType = "honeypot"
)

// FailureTypes lists every valid FailureType.
var FailureTypes = []FailureType{
	FailureTechnical, FailureAntiBot, FailureLogic, FailureSiteChange,
	FailureNetwork, FailureTimeout, FailureCaptcha, FailureHoneypot,
}

// Valid reports whether t is one of the known failure types.
func (t FailureType) Valid() bool {
	for _, k := range FailureTypes {
		if t == k {
			return true
		}
	}
	return false
}

// RootCauseCategory is one of the 12 fixed root-cause labels. Every
// persisted analysis carries exactly one of these; free text is never
// allowed through.
type RootCauseCategory string

const (
	CauseSelectorOutdated    RootCauseCategory = "selector_outdated"
	CauseTimingIssue         RootCauseCategory = "timing_issue"
	CauseAntiBotDetection    RootCauseCategory = "anti_bot_detection"
	CauseCaptchaChallenge    RootCauseCategory = "captcha_challenge"
	CauseSiteStructureChange RootCauseCategory = "site_structure_change"
	CauseNetworkInstability  RootCauseCategory = "network_instability"
	CauseSessionExpired      RootCauseCategory = "session_expired"
	CauseRateLimited         RootCauseCategory = "rate_limited"
	CauseHoneypotTriggered   RootCauseCategory = "honeypot_triggered"
	CauseDataValidation      RootCauseCategory = "data_validation"
	CauseLogicError          RootCauseCategory = "logic_error"
	CauseUnknown             RootCauseCategory = "unknown"
)

// RootCauseCategories lists the fixed taxonomy in a stable order.
var RootCauseCategories = []RootCauseCategory{
	CauseSelectorOutdated, CauseTimingIssue, CauseAntiBotDetection,
	CauseCaptchaChallenge, CauseSiteStructureChange, CauseNetworkInstability,
	CauseSessionExpired, CauseRateLimited, CauseHoneypotTriggered,
	CauseDataValidation, CauseLogicError, CauseUnknown,
}

// Valid reports whether c belongs to the fixed taxonomy.
func (c RootCauseCategory) Valid() bool {
	for _, k := range RootCauseCategories {
		if c == k {
			return true
		}
	}
	return false
}

// RecommendationType classifies how a remediation should be executed.
// The decision table's catch-all row emits `investigation`.
type RecommendationType string

const (
	RecImmediateFix         RecommendationType = "immediate_fix"
	RecStrategicImprovement RecommendationType = "strategic_improvement"
	RecArchitectureChange   RecommendationType = "architecture_change"
	RecConfigurationUpdate  RecommendationType = "configuration_update"
	RecDependencyUpgrade    RecommendationType = "dependency_upgrade"
	RecAlgorithmEnhancement RecommendationType = "algorithm_enhancement"
	RecInvestigation        RecommendationType = "investigation"
)

// Effort is the estimated remediation effort.
type Effort string

const (
	EffortLow    Effort = "low"
	EffortMedium Effort = "medium"
	EffortHigh   Effort = "high"
	EffortEpic   Effort = "epic"
)

// Impact is the expected payoff of a remediation.
type Impact string

const (
	ImpactLow      Impact = "low"
	ImpactMedium   Impact = "medium"
	ImpactHigh     Impact = "high"
	ImpactCritical Impact = "critical"
)

// FrequencyTrend describes how often a scenario has been recurring.
type FrequencyTrend string

const (
	TrendIncreasing FrequencyTrend = "increasing"
	TrendStable     FrequencyTrend = "stable"
	TrendDecreasing FrequencyTrend = "decreasing"
)

// ReviewStatus tracks human review of an analysis.
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewReviewed ReviewStatus = "reviewed"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
)

// TestType classifies a generated test spec.
type TestType string

const (
	TestReproduction TestType = "reproduction"
	TestRegression   TestType = "regression"
	TestValidation   TestType = "validation"
	TestPerformance  TestType = "performance"
	TestIntegration  TestType = "integration"
)

// ExpectedOutcome is what a generated test must observe to count as a
// successful run.
type ExpectedOutcome string

const (
	OutcomePass  ExpectedOutcome = "pass"
	OutcomeFail  ExpectedOutcome = "fail"
	OutcomeError ExpectedOutcome = "error"
)

// BrowserState is the browser-side snapshot captured at failure time.
// All fields are optional; the automation layer sends what it has.
type BrowserState struct {
	UserAgent      string            `json:"user_agent,omitempty"`
	ViewportWidth  int               `json:"viewport_width,omitempty"`
	ViewportHeight int               `json:"viewport_height,omitempty"`
	Cookies        int               `json:"cookies,omitempty"`
	LocalStorage   map[string]string `json:"local_storage,omitempty"`
	OpenModals     []string          `json:"open_modals,omitempty"`
	ConsoleErrors  []string          `json:"console_errors,omitempty"`
}

// Empty reports whether no field of the snapshot is set.
func (b *BrowserState) Empty() bool {
	if b == nil {
		return true
	}
	return b.UserAgent == "" && b.ViewportWidth == 0 && b.ViewportHeight == 0 &&
		b.Cookies == 0 && len(b.LocalStorage) == 0 && len(b.OpenModals) == 0 &&
		len(b.ConsoleErrors) == 0
}

// AutomationState is the automation-side snapshot: where in the flow the
// step failed and what the driver was doing.
type AutomationState struct {
	CurrentStep     string   `json:"current_step,omitempty"`
	CompletedSteps  []string `json:"completed_steps,omitempty"`
	PendingSteps    []string `json:"pending_steps,omitempty"`
	RetryCount      int      `json:"retry_count,omitempty"`
	SessionDuration int64    `json:"session_duration_ms,omitempty"`
}

// Empty reports whether no field of the snapshot is set.
func (a *AutomationState) Empty() bool {
	if a == nil {
		return true
	}
	return a.CurrentStep == "" && len(a.CompletedSteps) == 0 &&
		len(a.PendingSteps) == 0 && a.RetryCount == 0 && a.SessionDuration == 0
}

// ImpactAssessment qualifies how bad a root cause is for operations.
type ImpactAssessment struct {
	Severity       string `json:"severity"`
	Scope          string `json:"scope"`
	BusinessImpact string `json:"business_impact"`
}

// FailureContext is the input produced by the automation layer when a
// registration attempt fails. It is the only input to the pipeline.
type FailureContext struct {
	RegistrationID int64       `json:"registration_id"`
	SiteID         int64       `json:"site_id"`
	EmailID        int64       `json:"email_id"`
	FailureType    FailureType `json:"failure_type"`
	SeverityLevel  int         `json:"severity_level"`

	ErrorMessage   string `json:"error_message"`
	ErrorStack     string `json:"error_stack,omitempty"`
	ErrorCode      string `json:"error_code,omitempty"`
	FailedSelector string `json:"failed_selector,omitempty"`
	FailedAction   string `json:"failed_action,omitempty"`
	TimeoutMS      int64  `json:"timeout_ms,omitempty"`

	PageURL         string `json:"page_url"`
	PageTitle       string `json:"page_title,omitempty"`
	StepNumber      int    `json:"step_number"`
	TotalSteps      int    `json:"total_steps,omitempty"`
	TimeToFailureMS int64  `json:"time_to_failure_ms,omitempty"`

	PageSnapshot    string           `json:"page_snapshot,omitempty"`
	ScreenshotRef   string           `json:"screenshot_ref,omitempty"`
	BrowserState    *BrowserState    `json:"browser_state,omitempty"`
	AutomationState *AutomationState `json:"automation_state,omitempty"`

	LLMInteractionChain string `json:"llm_interaction_chain,omitempty"`
	DefenseContext      string `json:"defense_context,omitempty"`
	EnvironmentData     string `json:"environment_data,omitempty"`
	ReproductionRecipe  string `json:"reproduction_recipe,omitempty"`
}

// FailureScenario is the canonical, deduplicated identity of a recurring
// failure. ScenarioHash is immutable once created and OccurrenceCount only
// ever grows.
type FailureScenario struct {
	ID            int64       `json:"id"`
	ScenarioHash  string      `json:"scenario_hash"`
	FailureType   FailureType `json:"failure_type"`
	SeverityLevel int         `json:"severity_level"`

	OccurrenceCount int       `json:"occurrence_count"`
	FirstOccurrence time.Time `json:"first_occurrence"`
	LastOccurrence  time.Time `json:"last_occurrence"`

	SiteID         int64 `json:"site_id"`
	EmailID        int64 `json:"email_id,omitempty"`
	RegistrationID int64 `json:"registration_id,omitempty"`

	ReproductionRecipe string           `json:"reproduction_recipe,omitempty"`
	PageSnapshot       string           `json:"page_snapshot,omitempty"`
	ScreenshotRef      string           `json:"screenshot_ref,omitempty"`
	BrowserState       *BrowserState    `json:"browser_state,omitempty"`
	AutomationState    *AutomationState `json:"automation_state,omitempty"`

	ErrorMessage   string `json:"error_message"`
	ErrorStack     string `json:"error_stack,omitempty"`
	ErrorCode      string `json:"error_code,omitempty"`
	FailedSelector string `json:"failed_selector,omitempty"`
	FailedAction   string `json:"failed_action,omitempty"`
	TimeoutMS      int64  `json:"timeout_ms,omitempty"`

	PageURL         string `json:"page_url"`
	PageTitle       string `json:"page_title,omitempty"`
	StepNumber      int    `json:"step_number"`
	TotalSteps      int    `json:"total_steps,omitempty"`
	TimeToFailureMS int64  `json:"time_to_failure_ms,omitempty"`

	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// FailureAnalysis is one classification pass over a scenario. A scenario
// may accumulate analyses over time; none is ever updated in place.
type FailureAnalysis struct {
	ID         int64 `json:"id"`
	ScenarioID int64 `json:"scenario_id"`

	RootCauseCategory   RootCauseCategory `json:"root_cause_category"`
	Description         string            `json:"description"`
	ConfidenceScore     float64           `json:"confidence_score"`
	ContributingFactors []string          `json:"contributing_factors,omitempty"`
	SimilarFailureIDs   []int64           `json:"similar_failure_ids,omitempty"`
	FrequencyTrend      FrequencyTrend    `json:"frequency_trend"`
	Impact              ImpactAssessment  `json:"impact_assessment"`

	AnalysisPrompt      string `json:"-"`
	AnalysisResponseRaw string `json:"-"`
	TokensUsed          int    `json:"tokens_used,omitempty"`
	DurationMS          int64  `json:"duration_ms,omitempty"`

	ReviewStatus ReviewStatus `json:"review_status"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Recommendation is one actionable remediation tied to an analysis.
type Recommendation struct {
	ID         int64 `json:"id"`
	AnalysisID int64 `json:"analysis_id"`
	ScenarioID int64 `json:"scenario_id"`

	Type          RecommendationType `json:"type"`
	PriorityScore int                `json:"priority_score"` // 1..10
	Effort        Effort             `json:"effort_estimate"`
	Impact        Impact             `json:"impact_potential"`

	TargetComponent      string `json:"target_component"`
	SuggestedChanges     string `json:"suggested_changes"`
	ImplementationPrompt string `json:"implementation_prompt,omitempty"`
	TestRequirements     string `json:"test_requirements,omitempty"`
	ValidationCriteria   string `json:"validation_criteria,omitempty"`

	ImplementedAt      *time.Time `json:"implemented_at,omitempty"`
	EffectivenessScore float64    `json:"effectiveness_score,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// ReproductionTest is an executable verification artifact. The engine only
// produces the spec; running it belongs to an external test runner.
type ReproductionTest struct {
	ID               int64 `json:"id"`
	ScenarioID       int64 `json:"scenario_id"`
	RecommendationID int64 `json:"recommendation_id,omitempty"` // 0 for the reproduction test itself

	Type            TestType        `json:"type"`
	Definition      string          `json:"definition"` // structured spec (JSON)
	Environment     string          `json:"environment"`
	ExpectedOutcome ExpectedOutcome `json:"expected_outcome"`

	RunCount      int       `json:"run_count"`
	SuccessCount  int       `json:"success_count"`
	FailureCount  int       `json:"failure_count"`
	AvgDurationMS int64     `json:"avg_duration_ms,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// DailyMetric is the per-date rollup. One row per calendar date; updates
// are increments, never overwrites.
type DailyMetric struct {
	Date                     string  `json:"date"` // YYYY-MM-DD
	TotalFailures            int     `json:"total_failures"`
	AnalyzedFailures         int     `json:"analyzed_failures"`
	GeneratedRecommendations int     `json:"generated_recommendations"`
	LearningScore            float64 `json:"learning_score"` // running mean analysis confidence
}

// ClampConfidence forces a confidence score into [0,1]. Applied to every
// analyzer output, not just the fallback's.
func ClampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
