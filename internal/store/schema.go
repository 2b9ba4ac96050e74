package store

// Schema for the SQLite backend. Tables mirror the natural keys the memory
// store enforces: evidence and timeline rows upsert on their source
// identity, scores and patterns carry a version column for
// compare-and-swap, observations are append-only.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS schema_info (
	version INTEGER NOT NULL,
	applied_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS evidence_items (
	user_id              TEXT NOT NULL,
	source_platform      TEXT NOT NULL,
	feature_name         TEXT NOT NULL,
	target_dimension     TEXT NOT NULL,
	normalized_value     REAL NOT NULL,
	raw_value            REAL NOT NULL,
	correlation_strength REAL NOT NULL,
	confidence           REAL NOT NULL,
	description          TEXT NOT NULL DEFAULT '',
	citation             TEXT NOT NULL DEFAULT '',
	observed_at          TEXT NOT NULL,
	PRIMARY KEY (user_id, source_platform, feature_name, target_dimension)
);

CREATE TABLE IF NOT EXISTS trait_scores (
	user_id       TEXT NOT NULL,
	dimension     TEXT NOT NULL,
	facet         TEXT NOT NULL DEFAULT '',
	raw_score     REAL NOT NULL,
	t_score       REAL NOT NULL,
	percentile    REAL NOT NULL,
	ci_lower      REAL NOT NULL,
	ci_upper      REAL NOT NULL,
	ci_confidence REAL NOT NULL,
	source_type   TEXT NOT NULL,
	sample_size   INTEGER NOT NULL,
	computed_at   TEXT NOT NULL,
	version       INTEGER NOT NULL,
	PRIMARY KEY (user_id, dimension, facet)
);

CREATE TABLE IF NOT EXISTS behavioral_patterns (
	id                   TEXT PRIMARY KEY,
	user_id              TEXT NOT NULL,
	pattern_type         TEXT NOT NULL,
	trigger_type         TEXT NOT NULL,
	trigger_keywords     TEXT NOT NULL,
	response_platform    TEXT NOT NULL,
	response_type        TEXT NOT NULL,
	response_data        TEXT NOT NULL DEFAULT '{}',
	time_offset_minutes  INTEGER NOT NULL,
	time_window_minutes  INTEGER NOT NULL,
	occurrence_count     INTEGER NOT NULL,
	consistency_rate     REAL NOT NULL,
	confidence_score     REAL NOT NULL,
	emotional_state      TEXT NOT NULL DEFAULT '',
	hypothesized_purpose TEXT NOT NULL DEFAULT '',
	first_observed_at    TEXT NOT NULL,
	last_observed_at     TEXT NOT NULL,
	is_active            INTEGER NOT NULL,
	is_dismissed         INTEGER NOT NULL,
	version              INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_patterns_user ON behavioral_patterns(user_id);
CREATE INDEX IF NOT EXISTS idx_patterns_active ON behavioral_patterns(is_active, is_dismissed);

CREATE TABLE IF NOT EXISTS pattern_observations (
	id                    TEXT PRIMARY KEY,
	pattern_id            TEXT NOT NULL REFERENCES behavioral_patterns(id),
	trigger_event_id      TEXT NOT NULL,
	trigger_timestamp     TEXT NOT NULL,
	response_activity_id  TEXT NOT NULL,
	response_timestamp    TEXT NOT NULL,
	actual_offset_minutes INTEGER NOT NULL,
	match_strength        REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_observations_pattern ON pattern_observations(pattern_id);

CREATE TABLE IF NOT EXISTS life_contexts (
	id              TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL,
	context_type    TEXT NOT NULL,
	title           TEXT NOT NULL,
	start_date      TEXT NOT NULL,
	end_date        TEXT,
	source          TEXT NOT NULL,
	source_event_id TEXT NOT NULL,
	confidence      REAL NOT NULL,
	language        TEXT NOT NULL,
	is_dismissed    INTEGER NOT NULL,
	version         INTEGER NOT NULL,
	UNIQUE (user_id, context_type, start_date, source_event_id)
);
CREATE INDEX IF NOT EXISTS idx_contexts_user ON life_contexts(user_id);

CREATE TABLE IF NOT EXISTS calendar_events (
	user_id         TEXT NOT NULL,
	source          TEXT NOT NULL,
	source_event_id TEXT NOT NULL,
	title           TEXT NOT NULL,
	start_time      TEXT NOT NULL,
	end_time        TEXT,
	PRIMARY KEY (user_id, source, source_event_id)
);

CREATE TABLE IF NOT EXISTS response_activities (
	id            TEXT NOT NULL,
	user_id       TEXT NOT NULL,
	platform      TEXT NOT NULL,
	activity_type TEXT NOT NULL,
	data          TEXT NOT NULL DEFAULT '{}',
	timestamp     TEXT NOT NULL,
	relevance     REAL NOT NULL,
	PRIMARY KEY (user_id, platform, id)
);
`

const sqliteSchemaVersion = 1
