package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // pure Go SQLite driver

	"github.com/fyrsmithlabs/insightd/internal/evidence"
	"github.com/fyrsmithlabs/insightd/internal/lifecontext"
	"github.com/fyrsmithlabs/insightd/internal/patterns"
	"github.com/fyrsmithlabs/insightd/internal/traits"
)

// SQLiteStore is the durable Store implementation. A single database file
// holds evidence, scores, patterns, observations, contexts, and the raw
// event timeline; WAL mode keeps concurrent readers cheap.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens or creates the database at path and applies the schema.
func OpenSQLite(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if err := recordSchemaVersion(db); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("sqlite store opened", zap.String("path", path))
	return &SQLiteStore{db: db, logger: logger}, nil
}

func recordSchemaVersion(db *sql.DB) error {
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM schema_info`).Scan(&count); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if count > 0 {
		return nil
	}
	_, err := db.Exec(`INSERT INTO schema_info (version, applied_at) VALUES (?, ?)`,
		sqliteSchemaVersion, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func encodeTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func decodeTime(v string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, v)
}

func encodeTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return encodeTime(*t)
}

func decodeTimePtr(v sql.NullString) (*time.Time, error) {
	if !v.Valid {
		return nil, nil
	}
	t, err := decodeTime(v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func encodeMap(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode map column: %w", err)
	}
	return string(raw), nil
}

func decodeMap(raw string) (map[string]string, error) {
	if raw == "" || raw == "{}" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("decode map column: %w", err)
	}
	return m, nil
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("transaction rollback failed",
				zap.Error(err), zap.NamedError("rollback_error", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// UpsertEvidence writes items keyed on (user, platform, feature, dimension);
// re-ingesting an item replaces the stored row.
func (s *SQLiteStore) UpsertEvidence(ctx context.Context, items []evidence.Item) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		const q = `
			INSERT INTO evidence_items
				(user_id, source_platform, feature_name, target_dimension,
				 normalized_value, raw_value, correlation_strength, confidence,
				 description, citation, observed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (user_id, source_platform, feature_name, target_dimension)
			DO UPDATE SET
				normalized_value = excluded.normalized_value,
				raw_value = excluded.raw_value,
				correlation_strength = excluded.correlation_strength,
				confidence = excluded.confidence,
				description = excluded.description,
				citation = excluded.citation,
				observed_at = excluded.observed_at`
		for _, item := range items {
			_, err := tx.ExecContext(ctx, q,
				item.UserID, item.SourcePlatform, item.FeatureName, string(item.TargetDimension),
				item.NormalizedValue, item.RawValue, item.CorrelationStrength, item.Confidence,
				item.Description, item.Citation, encodeTime(item.ObservedAt))
			if err != nil {
				return fmt.Errorf("upsert evidence: %w", err)
			}
		}
		return nil
	})
}

// EvidenceForUser returns all evidence items for a user.
func (s *SQLiteStore) EvidenceForUser(ctx context.Context, userID string) ([]evidence.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, source_platform, feature_name, target_dimension,
		       normalized_value, raw_value, correlation_strength, confidence,
		       description, citation, observed_at
		FROM evidence_items WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("query evidence: %w", err)
	}
	defer rows.Close()

	var items []evidence.Item
	for rows.Next() {
		var item evidence.Item
		var dimension, observedAt string
		if err := rows.Scan(&item.UserID, &item.SourcePlatform, &item.FeatureName, &dimension,
			&item.NormalizedValue, &item.RawValue, &item.CorrelationStrength, &item.Confidence,
			&item.Description, &item.Citation, &observedAt); err != nil {
			return nil, fmt.Errorf("scan evidence: %w", err)
		}
		item.TargetDimension = traits.Dimension(dimension)
		if item.ObservedAt, err = decodeTime(observedAt); err != nil {
			return nil, fmt.Errorf("decode evidence timestamp: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpsertScore writes a score with compare-and-swap semantics on the version
// column. Version 0 inserts; any other version updates the matching row.
func (s *SQLiteStore) UpsertScore(ctx context.Context, score *traits.TraitScore) error {
	if score.Version == 0 {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO trait_scores
				(user_id, dimension, facet, raw_score, t_score, percentile,
				 ci_lower, ci_upper, ci_confidence, source_type, sample_size, computed_at, version)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
			score.UserID, string(score.Dimension), string(score.Facet),
			score.RawScore, score.TScore, score.Percentile,
			score.Interval.Lower, score.Interval.Upper, score.Interval.Confidence,
			string(score.SourceType), score.SampleSize, encodeTime(score.ComputedAt))
		if err != nil {
			if isUniqueViolation(err) {
				return ErrConflict
			}
			return fmt.Errorf("insert score: %w", err)
		}
		score.Version = 1
		return nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE trait_scores SET
			raw_score = ?, t_score = ?, percentile = ?,
			ci_lower = ?, ci_upper = ?, ci_confidence = ?,
			source_type = ?, sample_size = ?, computed_at = ?, version = version + 1
		WHERE user_id = ? AND dimension = ? AND facet = ? AND version = ?`,
		score.RawScore, score.TScore, score.Percentile,
		score.Interval.Lower, score.Interval.Upper, score.Interval.Confidence,
		string(score.SourceType), score.SampleSize, encodeTime(score.ComputedAt),
		score.UserID, string(score.Dimension), string(score.Facet), score.Version)
	if err != nil {
		return fmt.Errorf("update score: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update score: %w", err)
	}
	if affected == 0 {
		return ErrConflict
	}
	score.Version++
	return nil
}

// ScoresForUser returns all trait scores for a user.
func (s *SQLiteStore) ScoresForUser(ctx context.Context, userID string) ([]*traits.TraitScore, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, dimension, facet, raw_score, t_score, percentile,
		       ci_lower, ci_upper, ci_confidence, source_type, sample_size, computed_at, version
		FROM trait_scores WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("query scores: %w", err)
	}
	defer rows.Close()

	var scores []*traits.TraitScore
	for rows.Next() {
		var sc traits.TraitScore
		var dimension, facet, sourceType, computedAt string
		if err := rows.Scan(&sc.UserID, &dimension, &facet, &sc.RawScore, &sc.TScore, &sc.Percentile,
			&sc.Interval.Lower, &sc.Interval.Upper, &sc.Interval.Confidence,
			&sourceType, &sc.SampleSize, &computedAt, &sc.Version); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		sc.Dimension = traits.Dimension(dimension)
		sc.Facet = traits.Facet(facet)
		sc.SourceType = traits.SourceType(sourceType)
		if sc.ComputedAt, err = decodeTime(computedAt); err != nil {
			return nil, fmt.Errorf("decode score timestamp: %w", err)
		}
		scores = append(scores, &sc)
	}
	return scores, rows.Err()
}

// DeleteScore removes one score row; missing rows are not an error.
func (s *SQLiteStore) DeleteScore(ctx context.Context, userID string, dimension traits.Dimension, facet traits.Facet) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM trait_scores WHERE user_id = ? AND dimension = ? AND facet = ?`,
		userID, string(dimension), string(facet))
	if err != nil {
		return fmt.Errorf("delete score: %w", err)
	}
	return nil
}

// UpsertPattern writes a pattern with compare-and-swap semantics on the
// version column.
func (s *SQLiteStore) UpsertPattern(ctx context.Context, p *patterns.BehavioralPattern) error {
	data, err := encodeMap(p.ResponseData)
	if err != nil {
		return err
	}

	if p.Version == 0 {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO behavioral_patterns
				(id, user_id, pattern_type, trigger_type, trigger_keywords,
				 response_platform, response_type, response_data,
				 time_offset_minutes, time_window_minutes,
				 occurrence_count, consistency_rate, confidence_score,
				 emotional_state, hypothesized_purpose,
				 first_observed_at, last_observed_at, is_active, is_dismissed, version)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
			p.ID, p.UserID, string(p.PatternType), p.TriggerType, p.TriggerKeywords,
			p.ResponsePlatform, string(p.ResponseType), data,
			p.TimeOffsetMinutes, p.TimeWindowMinutes,
			p.OccurrenceCount, p.ConsistencyRate, p.ConfidenceScore,
			p.EmotionalState, p.HypothesizedPurpose,
			encodeTime(p.FirstObservedAt), encodeTime(p.LastObservedAt),
			boolToInt(p.IsActive), boolToInt(p.IsDismissed))
		if err != nil {
			if isUniqueViolation(err) {
				return ErrConflict
			}
			return fmt.Errorf("insert pattern: %w", err)
		}
		p.Version = 1
		return nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE behavioral_patterns SET
			time_offset_minutes = ?, time_window_minutes = ?,
			occurrence_count = ?, consistency_rate = ?, confidence_score = ?,
			emotional_state = ?, hypothesized_purpose = ?, response_data = ?,
			first_observed_at = ?, last_observed_at = ?, is_active = ?, is_dismissed = ?,
			version = version + 1
		WHERE id = ? AND version = ?`,
		p.TimeOffsetMinutes, p.TimeWindowMinutes,
		p.OccurrenceCount, p.ConsistencyRate, p.ConfidenceScore,
		p.EmotionalState, p.HypothesizedPurpose, data,
		encodeTime(p.FirstObservedAt), encodeTime(p.LastObservedAt),
		boolToInt(p.IsActive), boolToInt(p.IsDismissed),
		p.ID, p.Version)
	if err != nil {
		return fmt.Errorf("update pattern: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update pattern: %w", err)
	}
	if affected == 0 {
		return ErrConflict
	}
	p.Version++
	return nil
}

const patternColumns = `
	id, user_id, pattern_type, trigger_type, trigger_keywords,
	response_platform, response_type, response_data,
	time_offset_minutes, time_window_minutes,
	occurrence_count, consistency_rate, confidence_score,
	emotional_state, hypothesized_purpose,
	first_observed_at, last_observed_at, is_active, is_dismissed, version`

func scanPattern(rows interface{ Scan(...any) error }) (*patterns.BehavioralPattern, error) {
	var p patterns.BehavioralPattern
	var patternType, responseType, data, firstAt, lastAt string
	var isActive, isDismissed int
	err := rows.Scan(&p.ID, &p.UserID, &patternType, &p.TriggerType, &p.TriggerKeywords,
		&p.ResponsePlatform, &responseType, &data,
		&p.TimeOffsetMinutes, &p.TimeWindowMinutes,
		&p.OccurrenceCount, &p.ConsistencyRate, &p.ConfidenceScore,
		&p.EmotionalState, &p.HypothesizedPurpose,
		&firstAt, &lastAt, &isActive, &isDismissed, &p.Version)
	if err != nil {
		return nil, err
	}
	p.PatternType = patterns.PatternType(patternType)
	p.ResponseType = patterns.ActivityType(responseType)
	if p.ResponseData, err = decodeMap(data); err != nil {
		return nil, err
	}
	if p.FirstObservedAt, err = decodeTime(firstAt); err != nil {
		return nil, err
	}
	if p.LastObservedAt, err = decodeTime(lastAt); err != nil {
		return nil, err
	}
	p.IsActive = isActive != 0
	p.IsDismissed = isDismissed != 0
	return &p, nil
}

// PatternByID returns one pattern or ErrNotFound.
func (s *SQLiteStore) PatternByID(ctx context.Context, id string) (*patterns.BehavioralPattern, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+patternColumns+` FROM behavioral_patterns WHERE id = ?`, id)
	p, err := scanPattern(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pattern %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan pattern: %w", err)
	}
	return p, nil
}

func (s *SQLiteStore) queryPatterns(ctx context.Context, query string, args ...any) ([]*patterns.BehavioralPattern, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query patterns: %w", err)
	}
	defer rows.Close()

	var result []*patterns.BehavioralPattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pattern: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// PatternsForUser returns all of a user's patterns, dormant and dismissed
// included.
func (s *SQLiteStore) PatternsForUser(ctx context.Context, userID string) ([]*patterns.BehavioralPattern, error) {
	return s.queryPatterns(ctx,
		`SELECT `+patternColumns+` FROM behavioral_patterns WHERE user_id = ?`, userID)
}

// ActivePatterns returns active, non-dismissed patterns across all users.
func (s *SQLiteStore) ActivePatterns(ctx context.Context) ([]*patterns.BehavioralPattern, error) {
	return s.queryPatterns(ctx,
		`SELECT `+patternColumns+` FROM behavioral_patterns WHERE is_active = 1 AND is_dismissed = 0`)
}

// AppendObservations appends to the observation log, skipping IDs already
// present so re-runs stay idempotent.
func (s *SQLiteStore) AppendObservations(ctx context.Context, obs []*patterns.PatternObservation) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		const q = `
			INSERT OR IGNORE INTO pattern_observations
				(id, pattern_id, trigger_event_id, trigger_timestamp,
				 response_activity_id, response_timestamp, actual_offset_minutes, match_strength)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
		for _, o := range obs {
			_, err := tx.ExecContext(ctx, q,
				o.ID, o.PatternID, o.TriggerEventID, encodeTime(o.TriggerTimestamp),
				o.ResponseActivityID, encodeTime(o.ResponseTimestamp),
				o.ActualOffsetMinutes, o.MatchStrength)
			if err != nil {
				return fmt.Errorf("append observation: %w", err)
			}
		}
		return nil
	})
}

// ObservationsForUser returns the observation logs of all the user's
// patterns.
func (s *SQLiteStore) ObservationsForUser(ctx context.Context, userID string) ([]*patterns.PatternObservation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT o.id, o.pattern_id, o.trigger_event_id, o.trigger_timestamp,
		       o.response_activity_id, o.response_timestamp, o.actual_offset_minutes, o.match_strength
		FROM pattern_observations o
		JOIN behavioral_patterns p ON p.id = o.pattern_id
		WHERE p.user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	var result []*patterns.PatternObservation
	for rows.Next() {
		var o patterns.PatternObservation
		var triggerAt, responseAt string
		if err := rows.Scan(&o.ID, &o.PatternID, &o.TriggerEventID, &triggerAt,
			&o.ResponseActivityID, &responseAt, &o.ActualOffsetMinutes, &o.MatchStrength); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		if o.TriggerTimestamp, err = decodeTime(triggerAt); err != nil {
			return nil, fmt.Errorf("decode observation timestamp: %w", err)
		}
		if o.ResponseTimestamp, err = decodeTime(responseAt); err != nil {
			return nil, fmt.Errorf("decode observation timestamp: %w", err)
		}
		result = append(result, &o)
	}
	return result, rows.Err()
}

// UpsertContext stores a context. An upsert by ID is a compare-and-swap on
// the version column; a new ID that collides on the natural key collapses
// onto the stored row, keeping its ID and dismissal state.
func (s *SQLiteStore) UpsertContext(ctx context.Context, c *lifecontext.LifeContext) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var existingVersion int64
		err := tx.QueryRowContext(ctx,
			`SELECT version FROM life_contexts WHERE id = ?`, c.ID).Scan(&existingVersion)
		switch {
		case err == nil:
			if existingVersion != c.Version {
				return ErrConflict
			}
			return s.updateContext(ctx, tx, c, c.ID, c.IsDismissed)
		case errors.Is(err, sql.ErrNoRows):
			// fall through to natural-key lookup
		default:
			return fmt.Errorf("lookup context: %w", err)
		}

		var existingID string
		var dismissed int
		err = tx.QueryRowContext(ctx, `
			SELECT id, is_dismissed FROM life_contexts
			WHERE user_id = ? AND context_type = ? AND start_date = ? AND source_event_id = ?`,
			c.UserID, string(c.ContextType), encodeTime(c.StartDate), c.SourceEventID).
			Scan(&existingID, &dismissed)
		switch {
		case err == nil:
			c.ID = existingID
			c.IsDismissed = dismissed != 0
			if err := tx.QueryRowContext(ctx,
				`SELECT version FROM life_contexts WHERE id = ?`, existingID).Scan(&c.Version); err != nil {
				return fmt.Errorf("lookup context version: %w", err)
			}
			return s.updateContext(ctx, tx, c, existingID, c.IsDismissed)
		case errors.Is(err, sql.ErrNoRows):
			// genuinely new
		default:
			return fmt.Errorf("lookup context by key: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO life_contexts
				(id, user_id, context_type, title, start_date, end_date,
				 source, source_event_id, confidence, language, is_dismissed, version)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
			c.ID, c.UserID, string(c.ContextType), c.Title,
			encodeTime(c.StartDate), encodeTimePtr(c.EndDate),
			c.Source, c.SourceEventID, c.Confidence, c.Language, boolToInt(c.IsDismissed))
		if err != nil {
			return fmt.Errorf("insert context: %w", err)
		}
		c.Version = 1
		return nil
	})
}

func (s *SQLiteStore) updateContext(ctx context.Context, tx *sql.Tx, c *lifecontext.LifeContext, id string, dismissed bool) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE life_contexts SET
			title = ?, start_date = ?, end_date = ?, confidence = ?, language = ?,
			is_dismissed = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		c.Title, encodeTime(c.StartDate), encodeTimePtr(c.EndDate), c.Confidence, c.Language,
		boolToInt(dismissed), id, c.Version)
	if err != nil {
		return fmt.Errorf("update context: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update context: %w", err)
	}
	if affected == 0 {
		return ErrConflict
	}
	c.Version++
	return nil
}

func scanContext(rows interface{ Scan(...any) error }) (*lifecontext.LifeContext, error) {
	var c lifecontext.LifeContext
	var contextType, startDate string
	var endDate sql.NullString
	var dismissed int
	err := rows.Scan(&c.ID, &c.UserID, &contextType, &c.Title, &startDate, &endDate,
		&c.Source, &c.SourceEventID, &c.Confidence, &c.Language, &dismissed, &c.Version)
	if err != nil {
		return nil, err
	}
	c.ContextType = lifecontext.ContextType(contextType)
	if c.StartDate, err = decodeTime(startDate); err != nil {
		return nil, err
	}
	if c.EndDate, err = decodeTimePtr(endDate); err != nil {
		return nil, err
	}
	c.IsDismissed = dismissed != 0
	return &c, nil
}

const contextColumns = `
	id, user_id, context_type, title, start_date, end_date,
	source, source_event_id, confidence, language, is_dismissed, version`

// ContextByID returns one context or ErrNotFound.
func (s *SQLiteStore) ContextByID(ctx context.Context, id string) (*lifecontext.LifeContext, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+contextColumns+` FROM life_contexts WHERE id = ?`, id)
	c, err := scanContext(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("life context %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan context: %w", err)
	}
	return c, nil
}

// ContextsForUser returns all contexts for a user, dismissed included.
func (s *SQLiteStore) ContextsForUser(ctx context.Context, userID string) ([]*lifecontext.LifeContext, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+contextColumns+` FROM life_contexts WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("query contexts: %w", err)
	}
	defer rows.Close()

	var result []*lifecontext.LifeContext
	for rows.Next() {
		c, err := scanContext(rows)
		if err != nil {
			return nil, fmt.Errorf("scan context: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// UpsertCalendarEvents stores calendar events by source identity.
func (s *SQLiteStore) UpsertCalendarEvents(ctx context.Context, events []lifecontext.CalendarEvent) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		const q = `
			INSERT INTO calendar_events (user_id, source, source_event_id, title, start_time, end_time)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (user_id, source, source_event_id)
			DO UPDATE SET title = excluded.title, start_time = excluded.start_time, end_time = excluded.end_time`
		for _, e := range events {
			_, err := tx.ExecContext(ctx, q,
				e.UserID, e.Source, e.SourceEventID, e.Title, encodeTime(e.Start), encodeTimePtr(e.End))
			if err != nil {
				return fmt.Errorf("upsert calendar event: %w", err)
			}
		}
		return nil
	})
}

// CalendarEventsForUser returns the user's calendar timeline.
func (s *SQLiteStore) CalendarEventsForUser(ctx context.Context, userID string) ([]lifecontext.CalendarEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, source, source_event_id, title, start_time, end_time
		FROM calendar_events WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("query calendar events: %w", err)
	}
	defer rows.Close()

	var result []lifecontext.CalendarEvent
	for rows.Next() {
		var e lifecontext.CalendarEvent
		var start string
		var end sql.NullString
		if err := rows.Scan(&e.UserID, &e.Source, &e.SourceEventID, &e.Title, &start, &end); err != nil {
			return nil, fmt.Errorf("scan calendar event: %w", err)
		}
		if e.Start, err = decodeTime(start); err != nil {
			return nil, fmt.Errorf("decode calendar timestamp: %w", err)
		}
		if e.End, err = decodeTimePtr(end); err != nil {
			return nil, fmt.Errorf("decode calendar timestamp: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// UpsertActivities stores response activities by source identity.
func (s *SQLiteStore) UpsertActivities(ctx context.Context, activities []patterns.ResponseActivity) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		const q = `
			INSERT INTO response_activities (id, user_id, platform, activity_type, data, timestamp, relevance)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (user_id, platform, id)
			DO UPDATE SET activity_type = excluded.activity_type, data = excluded.data,
				timestamp = excluded.timestamp, relevance = excluded.relevance`
		for _, a := range activities {
			data, err := encodeMap(a.Data)
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, q,
				a.ID, a.UserID, a.Platform, string(a.ActivityType), data,
				encodeTime(a.Timestamp), a.Relevance)
			if err != nil {
				return fmt.Errorf("upsert activity: %w", err)
			}
		}
		return nil
	})
}

// ActivitiesForUser returns the user's activity timeline.
func (s *SQLiteStore) ActivitiesForUser(ctx context.Context, userID string) ([]patterns.ResponseActivity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, platform, activity_type, data, timestamp, relevance
		FROM response_activities WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("query activities: %w", err)
	}
	defer rows.Close()

	var result []patterns.ResponseActivity
	for rows.Next() {
		var a patterns.ResponseActivity
		var activityType, data, ts string
		if err := rows.Scan(&a.ID, &a.UserID, &a.Platform, &activityType, &data, &ts, &a.Relevance); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		a.ActivityType = patterns.ActivityType(activityType)
		if a.Data, err = decodeMap(data); err != nil {
			return nil, fmt.Errorf("decode activity data: %w", err)
		}
		if a.Timestamp, err = decodeTime(ts); err != nil {
			return nil, fmt.Errorf("decode activity timestamp: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	// modernc.org/sqlite surfaces constraint failures in the error text.
	return strings.Contains(err.Error(), "constraint failed")
}
