package recommend

import (
	"strings"
	"testing"

	"github.com/brunobozic/poll-automation-sub004/internal/failure"
	"github.com/brunobozic/poll-automation-sub004/internal/store"
)

func scenario() *failure.FailureScenario {
	return &failure.FailureScenario{
		ID:           7,
		SiteID:       42,
		StepNumber:   3,
		PageURL:      "https://site.example/form",
		ErrorMessage: "element #submit not found",
	}
}

func analysis(cat failure.RootCauseCategory, similar ...int64) *failure.FailureAnalysis {
	return &failure.FailureAnalysis{
		ID:                1,
		ScenarioID:        7,
		RootCauseCategory: cat,
		SimilarFailureIDs: similar,
	}
}

func TestGenerate_DecisionTable(t *testing.T) {
	cases := []struct {
		category failure.RootCauseCategory
		wantType failure.RecommendationType
		priority int
		target   string
	}{
		{failure.CauseSelectorOutdated, failure.RecImmediateFix, 8, "selector_engine"},
		{failure.CauseTimingIssue, failure.RecImmediateFix, 7, "timing_engine"},
		{failure.CauseAntiBotDetection, failure.RecStrategicImprovement, 9, "evasion_engine"},
		{failure.CauseSiteStructureChange, failure.RecArchitectureChange, 6, "adaptation_engine"},
		{failure.CauseCaptchaChallenge, failure.RecInvestigation, 5, "general"},
		{failure.CauseUnknown, failure.RecInvestigation, 5, "general"},
	}
	for _, tc := range cases {
		t.Run(string(tc.category), func(t *testing.T) {
			g := New(store.NewMemStore())
			recs := g.Generate(analysis(tc.category), scenario())
			if len(recs) != 1 {
				t.Fatalf("got %d recommendations, want 1", len(recs))
			}
			r := recs[0]
			if r.Type != tc.wantType || r.PriorityScore != tc.priority || r.TargetComponent != tc.target {
				t.Errorf("got %s/%d/%s, want %s/%d/%s",
					r.Type, r.PriorityScore, r.TargetComponent, tc.wantType, tc.priority, tc.target)
			}
			if r.AnalysisID != 1 || r.ScenarioID != 7 {
				t.Errorf("back-references = %d/%d, want 1/7", r.AnalysisID, r.ScenarioID)
			}
			if r.SuggestedChanges == "" || r.ValidationCriteria == "" || r.TestRequirements == "" {
				t.Error("template fields must be populated")
			}
		})
	}
}

func TestGenerate_PatternEscalation(t *testing.T) {
	g := New(store.NewMemStore())
	recs := g.Generate(analysis(failure.CauseSelectorOutdated, 11, 12, 13), scenario())
	if len(recs) != 2 {
		t.Fatalf("got %d recommendations, want 2", len(recs))
	}
	var pattern int
	for _, r := range recs {
		if r.TargetComponent == "pattern_recognition" {
			pattern++
			if r.Type != failure.RecStrategicImprovement || r.PriorityScore != 8 {
				t.Errorf("pattern rec is %s/%d, want strategic_improvement/8", r.Type, r.PriorityScore)
			}
		}
	}
	if pattern != 1 {
		t.Fatalf("got %d pattern recommendations, want exactly 1", pattern)
	}
}

func TestGenerate_BelowThresholdNoEscalation(t *testing.T) {
	g := New(store.NewMemStore())
	recs := g.Generate(analysis(failure.CauseTimingIssue, 11, 12), scenario())
	if len(recs) != 1 {
		t.Fatalf("got %d recommendations, want 1", len(recs))
	}
	if recs[0].TargetComponent == "pattern_recognition" {
		t.Fatal("pattern escalation emitted below threshold")
	}
}

func TestGenerate_PromptAnchoredToScenario(t *testing.T) {
	g := New(store.NewMemStore())
	recs := g.Generate(analysis(failure.CauseSelectorOutdated), scenario())
	p := recs[0].ImplementationPrompt
	for _, want := range []string{"Scenario #7", "site=42", "step=3", "https://site.example/form"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q:\n%s", want, p)
		}
	}
}

func TestGenerate_PersistenceFailureSkipsRecord(t *testing.T) {
	st := store.NewMemStore()
	g := New(st)
	st.FailNext = store.ErrPersistence
	recs := g.Generate(analysis(failure.CauseSelectorOutdated, 11, 12, 13), scenario())
	if len(recs) != 1 {
		t.Fatalf("got %d recommendations, want 1 (first save fails, second succeeds)", len(recs))
	}
	if recs[0].TargetComponent != "pattern_recognition" {
		t.Errorf("surviving recommendation targets %s, want pattern_recognition", recs[0].TargetComponent)
	}
	pending, err := st.ListPendingRecommendations(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("store holds %d recommendations, want 1", len(pending))
	}
}

func TestGenerate_Persisted(t *testing.T) {
	st := store.NewMemStore()
	g := New(st)
	g.Generate(analysis(failure.CauseAntiBotDetection), scenario())
	pending, err := st.ListPendingRecommendations(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("got %d pending, want 1", len(pending))
	}
	if pending[0].ID == 0 {
		t.Error("persisted recommendation did not receive an ID")
	}
}
