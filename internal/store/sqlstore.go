package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/brunobozic/poll-automation-sub004/internal/failure"

	_ "modernc.org/sqlite"
)

// nullStr converts a sql.NullString to a plain string (empty if null).
func nullStr(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// toNull converts an empty string to NULL so COALESCE-based upserts can
// tell "not supplied" apart from a real value.
func toNull(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func fmtTime(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

// SqlStore implements Store with SQLite.
type SqlStore struct {
	db *sql.DB
}

// Open opens or creates a SQLite DB at path and runs migrations.
// Creates the parent directory (e.g. .failure-engine) if it does not exist.
func Open(path string) (*SqlStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection: writers serialize at the pool instead of surfacing
	// SQLITE_BUSY to concurrent cycles.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &SqlStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SqlStore) migrate() error {
	if _, err := s.db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	var v int
	err := s.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := s.db.Exec("INSERT INTO schema_version(version) VALUES(?)", schemaVersion); err != nil {
			return fmt.Errorf("set schema version: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if v != schemaVersion {
		return fmt.Errorf("unknown schema version %d", v)
	}
	return nil
}

// Close closes the database connection.
func (s *SqlStore) Close() error {
	return s.db.Close()
}

// FindOrCreateScenario atomically resolves a context to a scenario row by
// dedup hash. A single INSERT ... ON CONFLICT statement does the
// find-or-create, so two parallel cycles hitting the same hash cannot race
// into duplicate rows. On conflict the counter grows, lastOccurrence
// refreshes, and snapshots are replaced only when the new context supplied
// them (COALESCE keeps prior values otherwise).
func (s *SqlStore) FindOrCreateScenario(hash string, ctx *failure.FailureContext, now time.Time) (*failure.FailureScenario, bool, error) {
	browserJSON, err := marshalState(ctx.BrowserState, ctx.BrowserState.Empty())
	if err != nil {
		return nil, false, fmt.Errorf("marshal browser state: %w", err)
	}
	autoJSON, err := marshalState(ctx.AutomationState, ctx.AutomationState.Empty())
	if err != nil {
		return nil, false, fmt.Errorf("marshal automation state: %w", err)
	}

	ts := fmtTime(now)
	var id int64
	var count int
	err = s.db.QueryRow(`
		INSERT INTO failure_scenarios(
			scenario_hash, failure_type, severity_level, occurrence_count,
			first_occurrence, last_occurrence,
			site_id, email_id, registration_id,
			reproduction_recipe, page_snapshot, screenshot_ref,
			browser_state, automation_state,
			error_message, error_stack, error_code,
			failed_selector, failed_action, timeout_ms,
			page_url, page_title, step_number, total_steps, time_to_failure_ms)
		VALUES(?, ?, ?, 1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(scenario_hash) DO UPDATE SET
			occurrence_count = occurrence_count + 1,
			last_occurrence  = excluded.last_occurrence,
			page_snapshot    = COALESCE(excluded.page_snapshot, page_snapshot),
			screenshot_ref   = COALESCE(excluded.screenshot_ref, screenshot_ref),
			browser_state    = COALESCE(excluded.browser_state, browser_state),
			automation_state = COALESCE(excluded.automation_state, automation_state)
		RETURNING id, occurrence_count`,
		hash, string(ctx.FailureType), ctx.SeverityLevel, ts, ts,
		ctx.SiteID, ctx.EmailID, ctx.RegistrationID,
		toNull(ctx.ReproductionRecipe), toNull(ctx.PageSnapshot), toNull(ctx.ScreenshotRef),
		browserJSON, autoJSON,
		toNull(ctx.ErrorMessage), toNull(ctx.ErrorStack), toNull(ctx.ErrorCode),
		toNull(ctx.FailedSelector), toNull(ctx.FailedAction), ctx.TimeoutMS,
		toNull(ctx.PageURL), toNull(ctx.PageTitle), ctx.StepNumber, ctx.TotalSteps, ctx.TimeToFailureMS,
	).Scan(&id, &count)
	if err != nil {
		return nil, false, fmt.Errorf("find or create scenario: %w", err)
	}

	sc, err := s.GetScenario(id)
	if err != nil {
		return nil, false, err
	}
	if sc == nil {
		return nil, false, fmt.Errorf("scenario %d vanished after upsert", id)
	}
	return sc, count == 1, nil
}

func marshalState(v any, empty bool) (sql.NullString, error) {
	if empty {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

const scenarioColumns = `id, scenario_hash, failure_type, severity_level,
	occurrence_count, first_occurrence, last_occurrence,
	site_id, email_id, registration_id,
	reproduction_recipe, page_snapshot, screenshot_ref,
	browser_state, automation_state,
	error_message, error_stack, error_code,
	failed_selector, failed_action, timeout_ms,
	page_url, page_title, step_number, total_steps, time_to_failure_ms,
	resolved_at`

func scanScenario(row interface{ Scan(...any) error }) (*failure.FailureScenario, error) {
	var sc failure.FailureScenario
	var first, last string
	var recipe, snapshot, screenshot, browser, auto sql.NullString
	var errMsg, errStack, errCode, selector, action sql.NullString
	var pageURL, pageTitle, resolvedAt sql.NullString
	err := row.Scan(&sc.ID, &sc.ScenarioHash, &sc.FailureType, &sc.SeverityLevel,
		&sc.OccurrenceCount, &first, &last,
		&sc.SiteID, &sc.EmailID, &sc.RegistrationID,
		&recipe, &snapshot, &screenshot,
		&browser, &auto,
		&errMsg, &errStack, &errCode,
		&selector, &action, &sc.TimeoutMS,
		&pageURL, &pageTitle, &sc.StepNumber, &sc.TotalSteps, &sc.TimeToFailureMS,
		&resolvedAt)
	if err != nil {
		return nil, err
	}
	sc.FirstOccurrence = parseTime(first)
	sc.LastOccurrence = parseTime(last)
	sc.ReproductionRecipe = nullStr(recipe)
	sc.PageSnapshot = nullStr(snapshot)
	sc.ScreenshotRef = nullStr(screenshot)
	sc.ErrorMessage = nullStr(errMsg)
	sc.ErrorStack = nullStr(errStack)
	sc.ErrorCode = nullStr(errCode)
	sc.FailedSelector = nullStr(selector)
	sc.FailedAction = nullStr(action)
	sc.PageURL = nullStr(pageURL)
	sc.PageTitle = nullStr(pageTitle)
	if browser.Valid {
		var b failure.BrowserState
		if err := json.Unmarshal([]byte(browser.String), &b); err == nil {
			sc.BrowserState = &b
		}
	}
	if auto.Valid {
		var a failure.AutomationState
		if err := json.Unmarshal([]byte(auto.String), &a); err == nil {
			sc.AutomationState = &a
		}
	}
	if resolvedAt.Valid {
		t := parseTime(resolvedAt.String)
		sc.ResolvedAt = &t
	}
	return &sc, nil
}

// GetScenario returns the scenario by id, or nil if not found.
func (s *SqlStore) GetScenario(id int64) (*failure.FailureScenario, error) {
	sc, err := scanScenario(s.db.QueryRow(
		"SELECT "+scenarioColumns+" FROM failure_scenarios WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get scenario: %w", err)
	}
	return sc, nil
}

// ListSimilarScenarios ranks other scenarios against the subject: exact
// failureType match first, then same site/selector/action, then a substring
// match against the first 50 characters of the subject's error message.
// The subject itself is excluded.
func (s *SqlStore) ListSimilarScenarios(subject *failure.FailureScenario, limit int) ([]*failure.FailureScenario, error) {
	if limit <= 0 {
		return nil, nil
	}
	prefix := subject.ErrorMessage
	if len(prefix) > 50 {
		prefix = prefix[:50]
	}
	rows, err := s.db.Query(`
		SELECT `+scenarioColumns+` FROM (
			SELECT *,
				(CASE WHEN failure_type = ?1 THEN 100 ELSE 0 END
				 + CASE WHEN site_id = ?2 AND site_id <> 0 THEN 30 ELSE 0 END
				 + CASE WHEN failed_selector IS NOT NULL AND failed_selector = ?3 THEN 30 ELSE 0 END
				 + CASE WHEN failed_action IS NOT NULL AND failed_action = ?4 THEN 20 ELSE 0 END
				 + CASE WHEN ?5 <> '' AND instr(COALESCE(error_message, ''), ?5) > 0 THEN 15 ELSE 0 END
				) AS rank
			FROM failure_scenarios
			WHERE id <> ?6
		) WHERE rank > 0
		ORDER BY rank DESC, last_occurrence DESC
		LIMIT ?7`,
		string(subject.FailureType), subject.SiteID,
		toNull(subject.FailedSelector), toNull(subject.FailedAction),
		prefix, subject.ID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list similar scenarios: %w", err)
	}
	return collectScenarios(rows)
}

// ListRecentScenarios returns scenarios whose last occurrence falls after
// since, most recent first.
func (s *SqlStore) ListRecentScenarios(since time.Time, limit int) ([]*failure.FailureScenario, error) {
	rows, err := s.db.Query(
		"SELECT "+scenarioColumns+` FROM failure_scenarios
		 WHERE last_occurrence >= ? ORDER BY last_occurrence DESC LIMIT ?`,
		fmtTime(since), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list recent scenarios: %w", err)
	}
	return collectScenarios(rows)
}

func collectScenarios(rows *sql.Rows) ([]*failure.FailureScenario, error) {
	defer rows.Close()
	var list []*failure.FailureScenario
	for rows.Next() {
		sc, err := scanScenario(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scenario: %w", err)
		}
		list = append(list, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scenarios: %w", err)
	}
	return list, nil
}

// CountFailureTypes groups failures since the given time by type, weighted
// by occurrence count, largest bucket first.
func (s *SqlStore) CountFailureTypes(since time.Time) ([]TypeCount, error) {
	rows, err := s.db.Query(`
		SELECT failure_type, SUM(occurrence_count) AS n
		FROM failure_scenarios
		WHERE last_occurrence >= ?
		GROUP BY failure_type ORDER BY n DESC`,
		fmtTime(since),
	)
	if err != nil {
		return nil, fmt.Errorf("count failure types: %w", err)
	}
	defer rows.Close()
	var list []TypeCount
	for rows.Next() {
		var tc TypeCount
		if err := rows.Scan(&tc.FailureType, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan type count: %w", err)
		}
		list = append(list, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count failure types: %w", err)
	}
	return list, nil
}

// SaveAnalysis inserts a new analysis row and returns its id. Analyses are
// append-only; re-analysis of a scenario creates a fresh row.
func (s *SqlStore) SaveAnalysis(a *failure.FailureAnalysis) (int64, error) {
	if a == nil {
		return 0, errors.New("analysis is nil")
	}
	factors, err := json.Marshal(a.ContributingFactors)
	if err != nil {
		return 0, fmt.Errorf("marshal contributing factors: %w", err)
	}
	similar, err := json.Marshal(a.SimilarFailureIDs)
	if err != nil {
		return 0, fmt.Errorf("marshal similar failure ids: %w", err)
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	if a.ReviewStatus == "" {
		a.ReviewStatus = failure.ReviewPending
	}
	res, err := s.db.Exec(`
		INSERT INTO failure_analyses(
			scenario_id, root_cause_category, description, confidence_score,
			contributing_factors, similar_failure_ids, frequency_trend,
			impact_severity, impact_scope, impact_business,
			analysis_prompt, analysis_response_raw, tokens_used, duration_ms,
			review_status, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ScenarioID, string(a.RootCauseCategory), a.Description, a.ConfidenceScore,
		string(factors), string(similar), string(a.FrequencyTrend),
		a.Impact.Severity, a.Impact.Scope, a.Impact.BusinessImpact,
		toNull(a.AnalysisPrompt), toNull(a.AnalysisResponseRaw), a.TokensUsed, a.DurationMS,
		string(a.ReviewStatus), fmtTime(a.CreatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("insert analysis: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	a.ID = id
	return id, nil
}

const analysisColumns = `id, scenario_id, root_cause_category, description,
	confidence_score, contributing_factors, similar_failure_ids,
	frequency_trend, impact_severity, impact_scope, impact_business,
	analysis_prompt, analysis_response_raw, tokens_used, duration_ms,
	review_status, created_at`

func scanAnalysis(row interface{ Scan(...any) error }) (*failure.FailureAnalysis, error) {
	var a failure.FailureAnalysis
	var factors, similar, prompt, raw sql.NullString
	var createdAt string
	err := row.Scan(&a.ID, &a.ScenarioID, &a.RootCauseCategory, &a.Description,
		&a.ConfidenceScore, &factors, &similar,
		&a.FrequencyTrend, &a.Impact.Severity, &a.Impact.Scope, &a.Impact.BusinessImpact,
		&prompt, &raw, &a.TokensUsed, &a.DurationMS,
		&a.ReviewStatus, &createdAt)
	if err != nil {
		return nil, err
	}
	if factors.Valid {
		_ = json.Unmarshal([]byte(factors.String), &a.ContributingFactors)
	}
	if similar.Valid {
		_ = json.Unmarshal([]byte(similar.String), &a.SimilarFailureIDs)
	}
	a.AnalysisPrompt = nullStr(prompt)
	a.AnalysisResponseRaw = nullStr(raw)
	a.CreatedAt = parseTime(createdAt)
	return &a, nil
}

// GetAnalysis returns the analysis by id, or nil if not found.
func (s *SqlStore) GetAnalysis(id int64) (*failure.FailureAnalysis, error) {
	a, err := scanAnalysis(s.db.QueryRow(
		"SELECT "+analysisColumns+" FROM failure_analyses WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis: %w", err)
	}
	return a, nil
}

// ListAnalysesByScenario returns all analyses for a scenario, newest first.
func (s *SqlStore) ListAnalysesByScenario(scenarioID int64) ([]*failure.FailureAnalysis, error) {
	rows, err := s.db.Query(
		"SELECT "+analysisColumns+" FROM failure_analyses WHERE scenario_id = ? ORDER BY id DESC",
		scenarioID,
	)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	defer rows.Close()
	var list []*failure.FailureAnalysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		list = append(list, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	return list, nil
}

// SaveRecommendation inserts a recommendation and returns its id.
func (s *SqlStore) SaveRecommendation(r *failure.Recommendation) (int64, error) {
	if r == nil {
		return 0, errors.New("recommendation is nil")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	var implementedAt sql.NullString
	if r.ImplementedAt != nil {
		implementedAt = sql.NullString{String: fmtTime(*r.ImplementedAt), Valid: true}
	}
	res, err := s.db.Exec(`
		INSERT INTO recommendations(
			analysis_id, scenario_id, recommendation_type, priority_score,
			effort_estimate, impact_potential, target_component,
			suggested_changes, implementation_prompt, test_requirements,
			validation_criteria, implemented_at, effectiveness_score, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.AnalysisID, r.ScenarioID, string(r.Type), r.PriorityScore,
		string(r.Effort), string(r.Impact), r.TargetComponent,
		toNull(r.SuggestedChanges), toNull(r.ImplementationPrompt), toNull(r.TestRequirements),
		toNull(r.ValidationCriteria), implementedAt, r.EffectivenessScore, fmtTime(r.CreatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("insert recommendation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	r.ID = id
	return id, nil
}

// ListPendingRecommendations returns recommendations with no implementedAt,
// highest priority first.
func (s *SqlStore) ListPendingRecommendations(limit int) ([]*failure.Recommendation, error) {
	rows, err := s.db.Query(`
		SELECT id, analysis_id, scenario_id, recommendation_type, priority_score,
		       effort_estimate, impact_potential, target_component,
		       suggested_changes, implementation_prompt, test_requirements,
		       validation_criteria, implemented_at, effectiveness_score, created_at
		FROM recommendations
		WHERE implemented_at IS NULL
		ORDER BY priority_score DESC, id ASC
		LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending recommendations: %w", err)
	}
	defer rows.Close()
	var list []*failure.Recommendation
	for rows.Next() {
		var r failure.Recommendation
		var changes, prompt, reqs, criteria, implementedAt sql.NullString
		var createdAt string
		if err := rows.Scan(&r.ID, &r.AnalysisID, &r.ScenarioID, &r.Type, &r.PriorityScore,
			&r.Effort, &r.Impact, &r.TargetComponent,
			&changes, &prompt, &reqs, &criteria, &implementedAt,
			&r.EffectivenessScore, &createdAt); err != nil {
			return nil, fmt.Errorf("scan recommendation: %w", err)
		}
		r.SuggestedChanges = nullStr(changes)
		r.ImplementationPrompt = nullStr(prompt)
		r.TestRequirements = nullStr(reqs)
		r.ValidationCriteria = nullStr(criteria)
		if implementedAt.Valid {
			t := parseTime(implementedAt.String)
			r.ImplementedAt = &t
		}
		r.CreatedAt = parseTime(createdAt)
		list = append(list, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pending recommendations: %w", err)
	}
	return list, nil
}

// SaveTest inserts a generated test spec and returns its id.
func (s *SqlStore) SaveTest(t *failure.ReproductionTest) (int64, error) {
	if t == nil {
		return 0, errors.New("test is nil")
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	var recID sql.NullInt64
	if t.RecommendationID != 0 {
		recID = sql.NullInt64{Int64: t.RecommendationID, Valid: true}
	}
	res, err := s.db.Exec(`
		INSERT INTO reproduction_tests(
			scenario_id, recommendation_id, test_type, test_definition,
			environment, expected_outcome, run_count, success_count,
			failure_count, avg_duration_ms, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ScenarioID, recID, string(t.Type), t.Definition,
		toNull(t.Environment), string(t.ExpectedOutcome), t.RunCount, t.SuccessCount,
		t.FailureCount, t.AvgDurationMS, fmtTime(t.CreatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("insert test: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	t.ID = id
	return id, nil
}

// ListTestsByScenario returns all generated tests for a scenario.
func (s *SqlStore) ListTestsByScenario(scenarioID int64) ([]*failure.ReproductionTest, error) {
	rows, err := s.db.Query(`
		SELECT id, scenario_id, recommendation_id, test_type, test_definition,
		       environment, expected_outcome, run_count, success_count,
		       failure_count, avg_duration_ms, created_at
		FROM reproduction_tests WHERE scenario_id = ? ORDER BY id`,
		scenarioID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tests: %w", err)
	}
	defer rows.Close()
	var list []*failure.ReproductionTest
	for rows.Next() {
		var t failure.ReproductionTest
		var recID sql.NullInt64
		var env sql.NullString
		var createdAt string
		if err := rows.Scan(&t.ID, &t.ScenarioID, &recID, &t.Type, &t.Definition,
			&env, &t.ExpectedOutcome, &t.RunCount, &t.SuccessCount,
			&t.FailureCount, &t.AvgDurationMS, &createdAt); err != nil {
			return nil, fmt.Errorf("scan test: %w", err)
		}
		t.RecommendationID = recID.Int64
		t.Environment = nullStr(env)
		t.CreatedAt = parseTime(createdAt)
		list = append(list, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tests: %w", err)
	}
	return list, nil
}

// UpsertDailyMetric folds one cycle's delta into the row for date. A single
// INSERT ... ON CONFLICT statement performs the increments and the running
// learning-score mean, so concurrent writers for the same date cannot lose
// updates. All right-hand expressions read the pre-update row.
func (s *SqlStore) UpsertDailyMetric(date string, delta MetricDelta) error {
	score := 0.0
	if delta.Analyzed > 0 {
		score = failure.ClampConfidence(delta.Confidence)
	}
	_, err := s.db.Exec(`
		INSERT INTO daily_metrics(date, total_failures, analyzed_failures, generated_recommendations, learning_score)
		VALUES(?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			learning_score = CASE WHEN excluded.analyzed_failures > 0 THEN
				(daily_metrics.learning_score * daily_metrics.analyzed_failures
					+ excluded.learning_score * excluded.analyzed_failures)
				/ (daily_metrics.analyzed_failures + excluded.analyzed_failures)
				ELSE daily_metrics.learning_score END,
			total_failures            = daily_metrics.total_failures + excluded.total_failures,
			analyzed_failures         = daily_metrics.analyzed_failures + excluded.analyzed_failures,
			generated_recommendations = daily_metrics.generated_recommendations + excluded.generated_recommendations`,
		date, delta.Failures, delta.Analyzed, delta.Recommendations, score,
	)
	if err != nil {
		return fmt.Errorf("upsert daily metric: %w", err)
	}
	return nil
}

// GetDailyMetric returns the metric row for date, or nil if none exists.
func (s *SqlStore) GetDailyMetric(date string) (*failure.DailyMetric, error) {
	var m failure.DailyMetric
	err := s.db.QueryRow(`
		SELECT date, total_failures, analyzed_failures, generated_recommendations, learning_score
		FROM daily_metrics WHERE date = ?`, date,
	).Scan(&m.Date, &m.TotalFailures, &m.AnalyzedFailures, &m.GeneratedRecommendations, &m.LearningScore)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get daily metric: %w", err)
	}
	return &m, nil
}

// ListDailyMetrics returns rows on or after since (YYYY-MM-DD), oldest first.
func (s *SqlStore) ListDailyMetrics(since string) ([]*failure.DailyMetric, error) {
	rows, err := s.db.Query(`
		SELECT date, total_failures, analyzed_failures, generated_recommendations, learning_score
		FROM daily_metrics WHERE date >= ? ORDER BY date`, since,
	)
	if err != nil {
		return nil, fmt.Errorf("list daily metrics: %w", err)
	}
	defer rows.Close()
	var list []*failure.DailyMetric
	for rows.Next() {
		var m failure.DailyMetric
		if err := rows.Scan(&m.Date, &m.TotalFailures, &m.AnalyzedFailures,
			&m.GeneratedRecommendations, &m.LearningScore); err != nil {
			return nil, fmt.Errorf("scan daily metric: %w", err)
		}
		list = append(list, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list daily metrics: %w", err)
	}
	return list, nil
}

// Stats returns row counts for the status and MCP surfaces.
func (s *SqlStore) Stats() (*Stats, error) {
	var st Stats
	counts := []struct {
		query string
		dst   *int
	}{
		{"SELECT COUNT(*) FROM failure_scenarios", &st.Scenarios},
		{"SELECT COUNT(*) FROM failure_scenarios WHERE resolved_at IS NULL", &st.UnresolvedScenarios},
		{"SELECT COUNT(*) FROM failure_analyses", &st.Analyses},
		{"SELECT COUNT(*) FROM recommendations", &st.Recommendations},
		{"SELECT COUNT(*) FROM reproduction_tests", &st.Tests},
		{"SELECT COALESCE(SUM(tokens_used), 0) FROM failure_analyses", &st.TokensTotal},
	}
	for _, c := range counts {
		if err := s.db.QueryRow(c.query).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("store stats: %w", err)
		}
	}
	return &st, nil
}
