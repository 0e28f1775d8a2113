package store

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/brunobozic/poll-automation-sub004/internal/failure"
)

// MemStore is an in-memory Store for tests and ephemeral runs. A single
// mutex serializes all operations, which makes find-or-create and the
// daily-metric fold trivially atomic.
type MemStore struct {
	mu sync.Mutex

	scenarios    map[int64]*failure.FailureScenario
	byHash       map[string]int64
	nextScenario int64

	analyses     map[int64]*failure.FailureAnalysis
	nextAnalysis int64

	recommendations map[int64]*failure.Recommendation
	nextRec         int64

	tests    map[int64]*failure.ReproductionTest
	nextTest int64

	metrics map[string]*failure.DailyMetric

	// FailNext forces the next mutating call to fail; used to exercise the
	// persistence error path in tests.
	FailNext error
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		scenarios:       make(map[int64]*failure.FailureScenario),
		byHash:          make(map[string]int64),
		analyses:        make(map[int64]*failure.FailureAnalysis),
		recommendations: make(map[int64]*failure.Recommendation),
		tests:           make(map[int64]*failure.ReproductionTest),
		metrics:         make(map[string]*failure.DailyMetric),
	}
}

func (s *MemStore) takeFailure() error {
	if s.FailNext != nil {
		err := s.FailNext
		s.FailNext = nil
		return err
	}
	return nil
}

// FindOrCreateScenario implements the atomic dedup resolve.
func (s *MemStore) FindOrCreateScenario(hash string, ctx *failure.FailureContext, now time.Time) (*failure.FailureScenario, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return nil, false, err
	}

	if id, ok := s.byHash[hash]; ok {
		sc := s.scenarios[id]
		sc.OccurrenceCount++
		sc.LastOccurrence = now
		if ctx.PageSnapshot != "" {
			sc.PageSnapshot = ctx.PageSnapshot
		}
		if ctx.ScreenshotRef != "" {
			sc.ScreenshotRef = ctx.ScreenshotRef
		}
		if !ctx.BrowserState.Empty() {
			sc.BrowserState = ctx.BrowserState
		}
		if !ctx.AutomationState.Empty() {
			sc.AutomationState = ctx.AutomationState
		}
		cp := *sc
		return &cp, false, nil
	}

	s.nextScenario++
	sc := &failure.FailureScenario{
		ID:                 s.nextScenario,
		ScenarioHash:       hash,
		FailureType:        ctx.FailureType,
		SeverityLevel:      ctx.SeverityLevel,
		OccurrenceCount:    1,
		FirstOccurrence:    now,
		LastOccurrence:     now,
		SiteID:             ctx.SiteID,
		EmailID:            ctx.EmailID,
		RegistrationID:     ctx.RegistrationID,
		ReproductionRecipe: ctx.ReproductionRecipe,
		PageSnapshot:       ctx.PageSnapshot,
		ScreenshotRef:      ctx.ScreenshotRef,
		BrowserState:       ctx.BrowserState,
		AutomationState:    ctx.AutomationState,
		ErrorMessage:       ctx.ErrorMessage,
		ErrorStack:         ctx.ErrorStack,
		ErrorCode:          ctx.ErrorCode,
		FailedSelector:     ctx.FailedSelector,
		FailedAction:       ctx.FailedAction,
		TimeoutMS:          ctx.TimeoutMS,
		PageURL:            ctx.PageURL,
		PageTitle:          ctx.PageTitle,
		StepNumber:         ctx.StepNumber,
		TotalSteps:         ctx.TotalSteps,
		TimeToFailureMS:    ctx.TimeToFailureMS,
	}
	s.scenarios[sc.ID] = sc
	s.byHash[hash] = sc.ID
	cp := *sc
	return &cp, true, nil
}

// GetScenario returns the scenario by id, or nil if not found.
func (s *MemStore) GetScenario(id int64) (*failure.FailureScenario, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.scenarios[id]
	if !ok {
		return nil, nil
	}
	cp := *sc
	return &cp, nil
}

type rankedScenario struct {
	sc   *failure.FailureScenario
	rank int
}

// ListSimilarScenarios mirrors the SqlStore ranking: failureType match,
// then same site/selector/action, then error-message prefix substring.
func (s *MemStore) ListSimilarScenarios(subject *failure.FailureScenario, limit int) ([]*failure.FailureScenario, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		return nil, nil
	}
	prefix := subject.ErrorMessage
	if len(prefix) > 50 {
		prefix = prefix[:50]
	}
	var ranked []rankedScenario
	for _, sc := range s.scenarios {
		if sc.ID == subject.ID {
			continue
		}
		rank := 0
		if sc.FailureType == subject.FailureType {
			rank += 100
		}
		if sc.SiteID != 0 && sc.SiteID == subject.SiteID {
			rank += 30
		}
		if sc.FailedSelector != "" && sc.FailedSelector == subject.FailedSelector {
			rank += 30
		}
		if sc.FailedAction != "" && sc.FailedAction == subject.FailedAction {
			rank += 20
		}
		if prefix != "" && strings.Contains(sc.ErrorMessage, prefix) {
			rank += 15
		}
		if rank > 0 {
			cp := *sc
			ranked = append(ranked, rankedScenario{&cp, rank})
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].rank != ranked[j].rank {
			return ranked[i].rank > ranked[j].rank
		}
		return ranked[i].sc.LastOccurrence.After(ranked[j].sc.LastOccurrence)
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]*failure.FailureScenario, len(ranked))
	for i, r := range ranked {
		out[i] = r.sc
	}
	return out, nil
}

// ListRecentScenarios returns scenarios last seen at or after since.
func (s *MemStore) ListRecentScenarios(since time.Time, limit int) ([]*failure.FailureScenario, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []*failure.FailureScenario
	for _, sc := range s.scenarios {
		if !sc.LastOccurrence.Before(since) {
			cp := *sc
			list = append(list, &cp)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].LastOccurrence.After(list[j].LastOccurrence)
	})
	if len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// CountFailureTypes groups occurrence counts by failure type.
func (s *MemStore) CountFailureTypes(since time.Time) ([]TypeCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[failure.FailureType]int)
	for _, sc := range s.scenarios {
		if !sc.LastOccurrence.Before(since) {
			counts[sc.FailureType] += sc.OccurrenceCount
		}
	}
	var list []TypeCount
	for t, n := range counts {
		list = append(list, TypeCount{FailureType: t, Count: n})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Count > list[j].Count })
	return list, nil
}

// SaveAnalysis appends a new analysis row.
func (s *MemStore) SaveAnalysis(a *failure.FailureAnalysis) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return 0, err
	}
	if a == nil {
		return 0, errors.New("analysis is nil")
	}
	s.nextAnalysis++
	a.ID = s.nextAnalysis
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	if a.ReviewStatus == "" {
		a.ReviewStatus = failure.ReviewPending
	}
	cp := *a
	s.analyses[a.ID] = &cp
	return a.ID, nil
}

// GetAnalysis returns the analysis by id, or nil if not found.
func (s *MemStore) GetAnalysis(id int64) (*failure.FailureAnalysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.analyses[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

// ListAnalysesByScenario returns analyses for a scenario, newest first.
func (s *MemStore) ListAnalysesByScenario(scenarioID int64) ([]*failure.FailureAnalysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []*failure.FailureAnalysis
	for _, a := range s.analyses {
		if a.ScenarioID == scenarioID {
			cp := *a
			list = append(list, &cp)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID > list[j].ID })
	return list, nil
}

// SaveRecommendation appends a recommendation.
func (s *MemStore) SaveRecommendation(r *failure.Recommendation) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return 0, err
	}
	if r == nil {
		return 0, errors.New("recommendation is nil")
	}
	s.nextRec++
	r.ID = s.nextRec
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	cp := *r
	s.recommendations[r.ID] = &cp
	return r.ID, nil
}

// ListPendingRecommendations returns unimplemented recommendations ordered
// by priority, highest first.
func (s *MemStore) ListPendingRecommendations(limit int) ([]*failure.Recommendation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []*failure.Recommendation
	for _, r := range s.recommendations {
		if r.ImplementedAt == nil {
			cp := *r
			list = append(list, &cp)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].PriorityScore != list[j].PriorityScore {
			return list[i].PriorityScore > list[j].PriorityScore
		}
		return list[i].ID < list[j].ID
	})
	if len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// SaveTest appends a generated test spec.
func (s *MemStore) SaveTest(t *failure.ReproductionTest) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return 0, err
	}
	if t == nil {
		return 0, errors.New("test is nil")
	}
	s.nextTest++
	t.ID = s.nextTest
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	cp := *t
	s.tests[t.ID] = &cp
	return t.ID, nil
}

// ListTestsByScenario returns generated tests for a scenario in id order.
func (s *MemStore) ListTestsByScenario(scenarioID int64) ([]*failure.ReproductionTest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []*failure.ReproductionTest
	for _, t := range s.tests {
		if t.ScenarioID == scenarioID {
			cp := *t
			list = append(list, &cp)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

// UpsertDailyMetric folds one cycle's delta into the row for date.
func (s *MemStore) UpsertDailyMetric(date string, delta MetricDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	m, ok := s.metrics[date]
	if !ok {
		m = &failure.DailyMetric{Date: date}
		s.metrics[date] = m
	}
	if delta.Analyzed > 0 {
		conf := failure.ClampConfidence(delta.Confidence)
		total := float64(m.AnalyzedFailures + delta.Analyzed)
		m.LearningScore = (m.LearningScore*float64(m.AnalyzedFailures) + conf*float64(delta.Analyzed)) / total
	}
	m.TotalFailures += delta.Failures
	m.AnalyzedFailures += delta.Analyzed
	m.GeneratedRecommendations += delta.Recommendations
	return nil
}

// GetDailyMetric returns the row for date, or nil if none exists.
func (s *MemStore) GetDailyMetric(date string) (*failure.DailyMetric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.metrics[date]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

// ListDailyMetrics returns rows on or after since (YYYY-MM-DD), oldest first.
func (s *MemStore) ListDailyMetrics(since string) ([]*failure.DailyMetric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []*failure.DailyMetric
	for date, m := range s.metrics {
		if date >= since {
			cp := *m
			list = append(list, &cp)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Date < list[j].Date })
	return list, nil
}

// Stats returns entity counts.
func (s *MemStore) Stats() (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := &Stats{
		Scenarios:       len(s.scenarios),
		Analyses:        len(s.analyses),
		Recommendations: len(s.recommendations),
		Tests:           len(s.tests),
	}
	for _, sc := range s.scenarios {
		if sc.ResolvedAt == nil {
			st.UnresolvedScenarios++
		}
	}
	for _, a := range s.analyses {
		st.TokensTotal += a.TokensUsed
	}
	return st, nil
}

// Close is a no-op for the in-memory store.
func (s *MemStore) Close() error { return nil }
