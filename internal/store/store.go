// Package store defines the persistence contract for the inference engine.
//
// The engine owns the read/write contract — natural keys, optimistic
// concurrency, append-only observation logs — but not the persistence
// engine itself. Two implementations ship with insightd: an in-memory store
// used by tests and single-shot CLI runs, and a SQLite store for durable
// local state. A product deployment can substitute its own implementation
// against the same interface.
package store

import (
	"context"
	"errors"

	"github.com/fyrsmithlabs/insightd/internal/evidence"
	"github.com/fyrsmithlabs/insightd/internal/lifecontext"
	"github.com/fyrsmithlabs/insightd/internal/patterns"
	"github.com/fyrsmithlabs/insightd/internal/traits"
)

// Contract errors.
var (
	// ErrConflict reports a lost optimistic-concurrency race: the record's
	// version changed between read and write. Callers retry the whole
	// read-modify-write.
	ErrConflict = errors.New("conflicting update: record version changed")

	// ErrNotFound reports a missing record.
	ErrNotFound = errors.New("record not found")
)

// EvidenceStore persists evidence items keyed by their natural key.
// Upserts are idempotent: re-ingesting an identical item overwrites the
// stale copy rather than duplicating it.
type EvidenceStore interface {
	UpsertEvidence(ctx context.Context, items []evidence.Item) error
	EvidenceForUser(ctx context.Context, userID string) ([]evidence.Item, error)
}

// ScoreStore persists trait scores, one row per (user, dimension, facet).
// UpsertScore is a compare-and-swap on the score's Version; a stale version
// returns ErrConflict. DeleteScore removes a row when its dimension fell
// back to "insufficient evidence".
type ScoreStore interface {
	UpsertScore(ctx context.Context, score *traits.TraitScore) error
	ScoresForUser(ctx context.Context, userID string) ([]*traits.TraitScore, error)
	DeleteScore(ctx context.Context, userID string, dimension traits.Dimension, facet traits.Facet) error
}

// PatternStore persists behavioral patterns and their append-only
// observation log. UpsertPattern is a compare-and-swap on Version.
type PatternStore interface {
	UpsertPattern(ctx context.Context, p *patterns.BehavioralPattern) error
	PatternByID(ctx context.Context, id string) (*patterns.BehavioralPattern, error)
	PatternsForUser(ctx context.Context, userID string) ([]*patterns.BehavioralPattern, error)

	// ActivePatterns returns every user's active, non-dismissed patterns;
	// the similarity matcher works population-wide.
	ActivePatterns(ctx context.Context) ([]*patterns.BehavioralPattern, error)

	AppendObservations(ctx context.Context, obs []*patterns.PatternObservation) error
	ObservationsForUser(ctx context.Context, userID string) ([]*patterns.PatternObservation, error)
}

// ContextStore persists life contexts deduplicated by their natural key.
// Dismissal is a soft delete recorded through UpsertContext; contexts are
// never physically removed.
type ContextStore interface {
	UpsertContext(ctx context.Context, c *lifecontext.LifeContext) error
	ContextByID(ctx context.Context, id string) (*lifecontext.LifeContext, error)
	ContextsForUser(ctx context.Context, userID string) ([]*lifecontext.LifeContext, error)
}

// TimelineStore persists the raw event timeline the pattern detector runs
// over. Both feeds are upsert-only on their source identity.
type TimelineStore interface {
	UpsertCalendarEvents(ctx context.Context, events []lifecontext.CalendarEvent) error
	CalendarEventsForUser(ctx context.Context, userID string) ([]lifecontext.CalendarEvent, error)

	UpsertActivities(ctx context.Context, activities []patterns.ResponseActivity) error
	ActivitiesForUser(ctx context.Context, userID string) ([]patterns.ResponseActivity, error)
}

// Store is the full persistence contract consumed by the engine.
type Store interface {
	EvidenceStore
	ScoreStore
	PatternStore
	ContextStore
	TimelineStore

	Close() error
}
