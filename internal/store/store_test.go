package store

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/brunobozic/poll-automation-sub004/internal/failure"
)

func openSQL(t *testing.T) Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "failures.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// forEachStore runs the same assertions against SqlStore and MemStore so
// the two implementations cannot drift.
func forEachStore(t *testing.T, run func(t *testing.T, s Store)) {
	t.Run("sql", func(t *testing.T) { run(t, openSQL(t)) })
	t.Run("mem", func(t *testing.T) { run(t, NewMemStore()) })
}

func timeoutContext() *failure.FailureContext {
	return &failure.FailureContext{
		RegistrationID: 1,
		SiteID:         42,
		EmailID:        7,
		FailureType:    failure.FailureTimeout,
		SeverityLevel:  3,
		ErrorMessage:   "Timeout 30000ms exceeded",
		FailedSelector: "#submit",
		FailedAction:   "click",
		PageURL:        "https://site.example/form?x=1",
		PageTitle:      "Register",
		StepNumber:     3,
		TotalSteps:     5,
	}
}

func TestFindOrCreateScenario_DedupsRepeats(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
		ctx := timeoutContext()
		hash := failure.ScenarioHash(ctx)

		sc, created, err := s.FindOrCreateScenario(hash, ctx, now)
		if err != nil {
			t.Fatalf("FindOrCreateScenario: %v", err)
		}
		if !created || sc.OccurrenceCount != 1 {
			t.Fatalf("first capture: created=%v count=%d", created, sc.OccurrenceCount)
		}
		if sc.ScenarioHash != hash || sc.FailureType != failure.FailureTimeout {
			t.Fatalf("scenario fields: %+v", sc)
		}

		// Same canonical fields, different query string: must collapse.
		repeat := timeoutContext()
		repeat.PageURL = "https://site.example/form?x=2"
		later := now.Add(time.Minute)
		sc2, created2, err := s.FindOrCreateScenario(failure.ScenarioHash(repeat), repeat, later)
		if err != nil {
			t.Fatalf("repeat capture: %v", err)
		}
		if created2 {
			t.Fatalf("repeat capture reported as new")
		}
		if sc2.ID != sc.ID || sc2.OccurrenceCount != 2 {
			t.Fatalf("repeat capture: id=%d count=%d, want id=%d count=2", sc2.ID, sc2.OccurrenceCount, sc.ID)
		}
		if !sc2.LastOccurrence.After(sc2.FirstOccurrence) {
			t.Fatalf("lastOccurrence not advanced: first=%v last=%v", sc2.FirstOccurrence, sc2.LastOccurrence)
		}
	})
}

func TestFindOrCreateScenario_PreservesSnapshotsWhenAbsent(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		now := time.Now().UTC().Truncate(time.Second)
		first := timeoutContext()
		first.PageSnapshot = "<html>original</html>"
		first.BrowserState = &failure.BrowserState{UserAgent: "ua-1", Cookies: 3}
		hash := failure.ScenarioHash(first)
		if _, _, err := s.FindOrCreateScenario(hash, first, now); err != nil {
			t.Fatalf("first capture: %v", err)
		}

		// Repeat supplies no snapshot or browser state: prior values stay.
		bare := timeoutContext()
		sc, _, err := s.FindOrCreateScenario(hash, bare, now.Add(time.Second))
		if err != nil {
			t.Fatalf("bare repeat: %v", err)
		}
		if sc.PageSnapshot != "<html>original</html>" {
			t.Fatalf("page snapshot overwritten: %q", sc.PageSnapshot)
		}
		if sc.BrowserState == nil || sc.BrowserState.UserAgent != "ua-1" {
			t.Fatalf("browser state overwritten: %+v", sc.BrowserState)
		}

		// Repeat with fresh snapshot: replaces.
		fresh := timeoutContext()
		fresh.PageSnapshot = "<html>fresh</html>"
		fresh.BrowserState = &failure.BrowserState{UserAgent: "ua-2"}
		sc, _, err = s.FindOrCreateScenario(hash, fresh, now.Add(2*time.Second))
		if err != nil {
			t.Fatalf("fresh repeat: %v", err)
		}
		if sc.PageSnapshot != "<html>fresh</html>" || sc.BrowserState.UserAgent != "ua-2" {
			t.Fatalf("fresh snapshot not applied: snapshot=%q state=%+v", sc.PageSnapshot, sc.BrowserState)
		}
	})
}

func TestFindOrCreateScenario_ConcurrentSameHash(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		const n = 8
		ctx := timeoutContext()
		hash := failure.ScenarioHash(ctx)
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _, err := s.FindOrCreateScenario(hash, ctx, time.Now())
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatalf("concurrent capture: %v", err)
			}
		}
		sc, _, err := s.FindOrCreateScenario(hash, ctx, time.Now())
		if err != nil {
			t.Fatalf("final capture: %v", err)
		}
		if sc.OccurrenceCount != n+1 {
			t.Fatalf("occurrenceCount = %d, want %d (no lost increments, no duplicate rows)", sc.OccurrenceCount, n+1)
		}
	})
}

func TestListSimilarScenarios_Ranking(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		now := time.Now().UTC()
		mk := func(mut func(*failure.FailureContext)) *failure.FailureScenario {
			ctx := timeoutContext()
			mut(ctx)
			sc, _, err := s.FindOrCreateScenario(failure.ScenarioHash(ctx), ctx, now)
			if err != nil {
				t.Fatalf("seed scenario: %v", err)
			}
			return sc
		}

		subject := mk(func(c *failure.FailureContext) {})
		sameTypeSameSite := mk(func(c *failure.FailureContext) { c.StepNumber = 4 })
		sameTypeOtherSite := mk(func(c *failure.FailureContext) { c.SiteID = 99; c.FailedSelector = "#other"; c.FailedAction = "fill" })
		otherType := mk(func(c *failure.FailureContext) {
			c.FailureType = failure.FailureCaptcha
			c.SiteID = 77
			c.ErrorMessage = "captcha widget detected"
			c.FailedSelector = ""
			c.FailedAction = ""
		})

		similar, err := s.ListSimilarScenarios(subject, 10)
		if err != nil {
			t.Fatalf("ListSimilarScenarios: %v", err)
		}
		var ids []int64
		for _, sc := range similar {
			ids = append(ids, sc.ID)
			if sc.ID == subject.ID {
				t.Fatalf("subject included in its own similar set")
			}
		}
		// Same type + same site + same selector/action + same message ranks
		// above same type alone; unrelated type with no overlap is absent.
		want := []int64{sameTypeSameSite.ID, sameTypeOtherSite.ID}
		if diff := cmp.Diff(want, ids); diff != "" {
			t.Fatalf("similar ranking mismatch (-want +got):\n%s\n(otherType id=%d)", diff, otherType.ID)
		}

		// Limit applies after ranking.
		similar, err = s.ListSimilarScenarios(subject, 1)
		if err != nil {
			t.Fatalf("ListSimilarScenarios limit: %v", err)
		}
		if len(similar) != 1 || similar[0].ID != sameTypeSameSite.ID {
			t.Fatalf("limit=1 returned %d rows", len(similar))
		}
	})
}

func TestAnalysisRoundTrip(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		sc, _, err := s.FindOrCreateScenario(failure.ScenarioHash(timeoutContext()), timeoutContext(), time.Now())
		if err != nil {
			t.Fatalf("seed scenario: %v", err)
		}
		a := &failure.FailureAnalysis{
			ScenarioID:          sc.ID,
			RootCauseCategory:   failure.CauseTimingIssue,
			Description:         "step timed out waiting for #submit",
			ConfidenceScore:     0.8,
			ContributingFactors: []string{"slow page load", "analyzer unavailable"},
			SimilarFailureIDs:   []int64{2, 3},
			FrequencyTrend:      failure.TrendStable,
			Impact:              failure.ImpactAssessment{Severity: "medium", Scope: "site", BusinessImpact: "registrations delayed"},
			AnalysisPrompt:      "prompt",
			AnalysisResponseRaw: "raw",
			TokensUsed:          120,
			DurationMS:          450,
		}
		id, err := s.SaveAnalysis(a)
		if err != nil {
			t.Fatalf("SaveAnalysis: %v", err)
		}
		got, err := s.GetAnalysis(id)
		if err != nil || got == nil {
			t.Fatalf("GetAnalysis: got %v err %v", got, err)
		}
		if got.RootCauseCategory != failure.CauseTimingIssue || got.ConfidenceScore != 0.8 {
			t.Fatalf("analysis fields: %+v", got)
		}
		if got.ReviewStatus != failure.ReviewPending {
			t.Fatalf("review status default: %q", got.ReviewStatus)
		}
		if diff := cmp.Diff(a.ContributingFactors, got.ContributingFactors); diff != "" {
			t.Fatalf("contributing factors (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff(a.SimilarFailureIDs, got.SimilarFailureIDs); diff != "" {
			t.Fatalf("similar ids (-want +got):\n%s", diff)
		}

		list, err := s.ListAnalysesByScenario(sc.ID)
		if err != nil || len(list) != 1 {
			t.Fatalf("ListAnalysesByScenario: %d err %v", len(list), err)
		}
	})
}

func TestPendingRecommendations_Ordering(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		sc, _, err := s.FindOrCreateScenario(failure.ScenarioHash(timeoutContext()), timeoutContext(), time.Now())
		if err != nil {
			t.Fatalf("seed scenario: %v", err)
		}
		aID, err := s.SaveAnalysis(&failure.FailureAnalysis{
			ScenarioID: sc.ID, RootCauseCategory: failure.CauseTimingIssue,
			Description: "d", ConfidenceScore: 0.5,
		})
		if err != nil {
			t.Fatalf("SaveAnalysis: %v", err)
		}
		mk := func(priority int, implemented bool) {
			r := &failure.Recommendation{
				AnalysisID: aID, ScenarioID: sc.ID,
				Type: failure.RecImmediateFix, PriorityScore: priority,
				Effort: failure.EffortLow, Impact: failure.ImpactHigh,
				TargetComponent: "timing_engine",
			}
			if implemented {
				now := time.Now()
				r.ImplementedAt = &now
			}
			if _, err := s.SaveRecommendation(r); err != nil {
				t.Fatalf("SaveRecommendation: %v", err)
			}
		}
		mk(5, false)
		mk(9, false)
		mk(10, true) // implemented: not pending
		mk(7, false)

		pending, err := s.ListPendingRecommendations(10)
		if err != nil {
			t.Fatalf("ListPendingRecommendations: %v", err)
		}
		var priorities []int
		for _, r := range pending {
			priorities = append(priorities, r.PriorityScore)
		}
		if diff := cmp.Diff([]int{9, 7, 5}, priorities); diff != "" {
			t.Fatalf("pending ordering (-want +got):\n%s", diff)
		}
	})
}

func TestTestSpecs_RoundTrip(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		sc, _, err := s.FindOrCreateScenario(failure.ScenarioHash(timeoutContext()), timeoutContext(), time.Now())
		if err != nil {
			t.Fatalf("seed scenario: %v", err)
		}
		repro := &failure.ReproductionTest{
			ScenarioID: sc.ID, Type: failure.TestReproduction,
			Definition: `{"url":"https://site.example/form"}`,
			ExpectedOutcome: failure.OutcomeFail,
		}
		if _, err := s.SaveTest(repro); err != nil {
			t.Fatalf("SaveTest repro: %v", err)
		}
		valid := &failure.ReproductionTest{
			ScenarioID: sc.ID, RecommendationID: 1, Type: failure.TestValidation,
			Definition:      `{"criteria":"step 3 completes"}`,
			ExpectedOutcome: failure.OutcomePass,
		}
		if _, err := s.SaveTest(valid); err != nil {
			t.Fatalf("SaveTest validation: %v", err)
		}
		list, err := s.ListTestsByScenario(sc.ID)
		if err != nil || len(list) != 2 {
			t.Fatalf("ListTestsByScenario: %d err %v", len(list), err)
		}
		if list[0].Type != failure.TestReproduction || list[0].RecommendationID != 0 {
			t.Fatalf("reproduction test fields: %+v", list[0])
		}
		if list[1].Type != failure.TestValidation || list[1].RecommendationID != 1 {
			t.Fatalf("validation test fields: %+v", list[1])
		}
	})
}

func TestDailyMetric_UpsertFoldsRunningMean(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		const date = "2026-08-30"
		deltas := []MetricDelta{
			{Failures: 1, Analyzed: 1, Recommendations: 2, Confidence: 0.8},
			{Failures: 1, Analyzed: 1, Recommendations: 1, Confidence: 0.6},
			{Failures: 1, Analyzed: 1, Recommendations: 0, Confidence: 1.0},
		}
		for _, d := range deltas {
			if err := s.UpsertDailyMetric(date, d); err != nil {
				t.Fatalf("UpsertDailyMetric: %v", err)
			}
		}
		m, err := s.GetDailyMetric(date)
		if err != nil || m == nil {
			t.Fatalf("GetDailyMetric: %v err %v", m, err)
		}
		if m.TotalFailures != 3 || m.AnalyzedFailures != 3 || m.GeneratedRecommendations != 3 {
			t.Fatalf("counters: %+v", m)
		}
		want := (0.8 + 0.6 + 1.0) / 3
		if diff := m.LearningScore - want; diff > 1e-9 || diff < -1e-9 {
			t.Fatalf("learningScore = %v, want %v", m.LearningScore, want)
		}
		if got, err := s.GetDailyMetric("2026-01-01"); err != nil || got != nil {
			t.Fatalf("missing date: %v err %v", got, err)
		}
	})
}

func TestDailyMetric_ConcurrentSameDate(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		const date = "2026-08-31"
		const n = 10
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = s.UpsertDailyMetric(date, MetricDelta{Failures: 1, Analyzed: 1, Confidence: 0.5})
			}()
		}
		wg.Wait()
		m, err := s.GetDailyMetric(date)
		if err != nil || m == nil {
			t.Fatalf("GetDailyMetric: %v err %v", m, err)
		}
		if m.TotalFailures != n || m.AnalyzedFailures != n {
			t.Fatalf("lost updates: %+v", m)
		}
	})
}

func TestStatsAndRecent(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		now := time.Now().UTC()
		ctxA := timeoutContext()
		ctxB := timeoutContext()
		ctxB.SiteID = 99
		for _, c := range []*failure.FailureContext{ctxA, ctxB} {
			if _, _, err := s.FindOrCreateScenario(failure.ScenarioHash(c), c, now); err != nil {
				t.Fatalf("seed: %v", err)
			}
		}
		st, err := s.Stats()
		if err != nil {
			t.Fatalf("Stats: %v", err)
		}
		if st.Scenarios != 2 || st.UnresolvedScenarios != 2 {
			t.Fatalf("stats: %+v", st)
		}
		recent, err := s.ListRecentScenarios(now.Add(-time.Hour), 10)
		if err != nil || len(recent) != 2 {
			t.Fatalf("ListRecentScenarios: %d err %v", len(recent), err)
		}
		none, err := s.ListRecentScenarios(now.Add(time.Hour), 10)
		if err != nil || len(none) != 0 {
			t.Fatalf("future window should be empty: %d err %v", len(none), err)
		}
		counts, err := s.CountFailureTypes(now.Add(-time.Hour))
		if err != nil || len(counts) != 1 || counts[0].FailureType != failure.FailureTimeout || counts[0].Count != 2 {
			t.Fatalf("CountFailureTypes: %+v err %v", counts, err)
		}
	})
}
