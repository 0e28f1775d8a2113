package store

// schemaVersion is the current schema version for this build.
const schemaVersion = 1

// schemaDDL creates the five-entity schema. scenario_hash carries the
// uniqueness constraint the deduplicator relies on; daily_metrics is keyed
// by calendar date so the rollup upsert can target one row per day.
var schemaDDL = `
CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL);

CREATE TABLE IF NOT EXISTS failure_scenarios (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	scenario_hash    TEXT NOT NULL UNIQUE,
	failure_type     TEXT NOT NULL,
	severity_level   INTEGER NOT NULL DEFAULT 1,
	occurrence_count INTEGER NOT NULL DEFAULT 1,
	first_occurrence TEXT NOT NULL,
	last_occurrence  TEXT NOT NULL,
	site_id          INTEGER NOT NULL DEFAULT 0,
	email_id         INTEGER NOT NULL DEFAULT 0,
	registration_id  INTEGER NOT NULL DEFAULT 0,
	reproduction_recipe TEXT,
	page_snapshot    TEXT,
	screenshot_ref   TEXT,
	browser_state    TEXT,
	automation_state TEXT,
	error_message    TEXT,
	error_stack      TEXT,
	error_code       TEXT,
	failed_selector  TEXT,
	failed_action    TEXT,
	timeout_ms       INTEGER NOT NULL DEFAULT 0,
	page_url         TEXT,
	page_title       TEXT,
	step_number      INTEGER NOT NULL DEFAULT 0,
	total_steps      INTEGER NOT NULL DEFAULT 0,
	time_to_failure_ms INTEGER NOT NULL DEFAULT 0,
	resolved_at      TEXT
);

CREATE INDEX IF NOT EXISTS idx_scenarios_type ON failure_scenarios(failure_type);
CREATE INDEX IF NOT EXISTS idx_scenarios_last ON failure_scenarios(last_occurrence);

CREATE TABLE IF NOT EXISTS failure_analyses (
	id                    INTEGER PRIMARY KEY AUTOINCREMENT,
	scenario_id           INTEGER NOT NULL REFERENCES failure_scenarios(id),
	root_cause_category   TEXT NOT NULL,
	description           TEXT NOT NULL,
	confidence_score      REAL NOT NULL,
	contributing_factors  TEXT,
	similar_failure_ids   TEXT,
	frequency_trend       TEXT,
	impact_severity       TEXT,
	impact_scope          TEXT,
	impact_business       TEXT,
	analysis_prompt       TEXT,
	analysis_response_raw TEXT,
	tokens_used           INTEGER NOT NULL DEFAULT 0,
	duration_ms           INTEGER NOT NULL DEFAULT 0,
	review_status         TEXT NOT NULL DEFAULT 'pending',
	created_at            TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analyses_scenario ON failure_analyses(scenario_id);

CREATE TABLE IF NOT EXISTS recommendations (
	id                    INTEGER PRIMARY KEY AUTOINCREMENT,
	analysis_id           INTEGER NOT NULL REFERENCES failure_analyses(id),
	scenario_id           INTEGER NOT NULL REFERENCES failure_scenarios(id),
	recommendation_type   TEXT NOT NULL,
	priority_score        INTEGER NOT NULL,
	effort_estimate       TEXT NOT NULL,
	impact_potential      TEXT NOT NULL,
	target_component      TEXT NOT NULL,
	suggested_changes     TEXT,
	implementation_prompt TEXT,
	test_requirements     TEXT,
	validation_criteria   TEXT,
	implemented_at        TEXT,
	effectiveness_score   REAL NOT NULL DEFAULT 0,
	created_at            TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_recommendations_pending
	ON recommendations(priority_score DESC) WHERE implemented_at IS NULL;

CREATE TABLE IF NOT EXISTS reproduction_tests (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	scenario_id       INTEGER NOT NULL REFERENCES failure_scenarios(id),
	recommendation_id INTEGER REFERENCES recommendations(id),
	test_type         TEXT NOT NULL,
	test_definition   TEXT NOT NULL,
	environment       TEXT,
	expected_outcome  TEXT NOT NULL,
	run_count         INTEGER NOT NULL DEFAULT 0,
	success_count     INTEGER NOT NULL DEFAULT 0,
	failure_count     INTEGER NOT NULL DEFAULT 0,
	avg_duration_ms   INTEGER NOT NULL DEFAULT 0,
	created_at        TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tests_scenario ON reproduction_tests(scenario_id);

CREATE TABLE IF NOT EXISTS daily_metrics (
	date                      TEXT PRIMARY KEY,
	total_failures            INTEGER NOT NULL DEFAULT 0,
	analyzed_failures         INTEGER NOT NULL DEFAULT 0,
	generated_recommendations INTEGER NOT NULL DEFAULT 0,
	learning_score            REAL NOT NULL DEFAULT 0
);
`
