package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/insightd/internal/evidence"
	"github.com/fyrsmithlabs/insightd/internal/lifecontext"
	"github.com/fyrsmithlabs/insightd/internal/patterns"
	"github.com/fyrsmithlabs/insightd/internal/traits"
)

func testEvidenceItem(userID, platform, feature string, value float64) evidence.Item {
	return evidence.Item{
		UserID:              userID,
		SourcePlatform:      platform,
		FeatureName:         feature,
		NormalizedValue:     value,
		RawValue:            value * 100,
		TargetDimension:     traits.Openness,
		CorrelationStrength: 0.4,
		Confidence:          0.8,
		ObservedAt:          time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestMemoryStoreEvidenceUpsertIsIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	item := testEvidenceItem("user-1", "spotify", "playlist_diversity", 0.7)
	require.NoError(t, s.UpsertEvidence(ctx, []evidence.Item{item}))
	require.NoError(t, s.UpsertEvidence(ctx, []evidence.Item{item}))

	items, err := s.EvidenceForUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, items, 1, "re-ingesting the same item must not duplicate it")
	assert.Equal(t, 0.7, items[0].NormalizedValue)
}

func TestMemoryStoreEvidenceUpsertReplacesByNaturalKey(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first := testEvidenceItem("user-1", "spotify", "playlist_diversity", 0.5)
	second := testEvidenceItem("user-1", "spotify", "playlist_diversity", 0.9)
	require.NoError(t, s.UpsertEvidence(ctx, []evidence.Item{first}))
	require.NoError(t, s.UpsertEvidence(ctx, []evidence.Item{second}))

	items, err := s.EvidenceForUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 0.9, items[0].NormalizedValue, "newer value wins on the same key")

	other, err := s.EvidenceForUser(ctx, "user-2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestMemoryStoreScoreCAS(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	score := &traits.TraitScore{
		UserID:     "user-1",
		Dimension:  traits.Extraversion,
		RawScore:   0.62,
		TScore:     58,
		Percentile: 76,
		SourceType: traits.SourceBehavioral,
		ComputedAt: time.Now().UTC(),
	}
	require.NoError(t, s.UpsertScore(ctx, score))
	assert.Equal(t, int64(1), score.Version)

	// A writer holding the current version succeeds and bumps it.
	score.TScore = 61
	require.NoError(t, s.UpsertScore(ctx, score))
	assert.Equal(t, int64(2), score.Version)

	// A writer holding a stale version conflicts.
	stale := *score
	stale.Version = 1
	err := s.UpsertScore(ctx, &stale)
	require.ErrorIs(t, err, ErrConflict)

	// A fresh insert against an existing row also conflicts.
	fresh := *score
	fresh.Version = 0
	require.ErrorIs(t, s.UpsertScore(ctx, &fresh), ErrConflict)

	scores, err := s.ScoresForUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, scores, 1)
	assert.Equal(t, 61.0, scores[0].TScore)
}

func TestMemoryStoreDeleteScore(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	score := &traits.TraitScore{UserID: "user-1", Dimension: traits.Conscientiousness}
	require.NoError(t, s.UpsertScore(ctx, score))
	require.NoError(t, s.DeleteScore(ctx, "user-1", traits.Conscientiousness, ""))

	scores, err := s.ScoresForUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, scores)

	// Deleting a missing row is not an error.
	assert.NoError(t, s.DeleteScore(ctx, "user-1", traits.Openness, ""))
}

func testPattern(userID string) *patterns.BehavioralPattern {
	return &patterns.BehavioralPattern{
		ID:                uuid.New().String(),
		UserID:            userID,
		PatternType:       patterns.PatternBeforeEvent,
		TriggerType:       "calendar_event",
		TriggerKeywords:   "presentation",
		ResponsePlatform:  "spotify",
		ResponseType:      patterns.ActivityMusicPlaylist,
		TimeOffsetMinutes: -20,
		TimeWindowMinutes: 15,
		OccurrenceCount:   3,
		ConsistencyRate:   100,
		ConfidenceScore:   62.5,
		FirstObservedAt:   time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC),
		LastObservedAt:    time.Date(2026, 2, 22, 9, 0, 0, 0, time.UTC),
		IsActive:          true,
	}
}

func TestMemoryStorePatternCASAndLookup(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	p := testPattern("user-1")
	require.NoError(t, s.UpsertPattern(ctx, p))
	assert.Equal(t, int64(1), p.Version)

	got, err := s.PatternByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.TriggerKeywords, got.TriggerKeywords)

	// Mutating the returned copy must not leak into the store.
	got.ConfidenceScore = 0
	again, err := s.PatternByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 62.5, again.ConfidenceScore)

	stale := *p
	stale.Version = 0
	require.ErrorIs(t, s.UpsertPattern(ctx, &stale), ErrConflict)

	_, err = s.PatternByID(ctx, "no-such-id")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreActivePatternsFiltering(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	active := testPattern("user-1")
	dormant := testPattern("user-1")
	dormant.IsActive = false
	dismissed := testPattern("user-2")
	dismissed.IsDismissed = true

	for _, p := range []*patterns.BehavioralPattern{active, dormant, dismissed} {
		require.NoError(t, s.UpsertPattern(ctx, p))
	}

	got, err := s.ActivePatterns(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, active.ID, got[0].ID)

	mine, err := s.PatternsForUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, mine, 2, "per-user listing includes dormant patterns")
}

func TestMemoryStoreObservationsAppendOnlyDedup(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	p := testPattern("user-1")
	require.NoError(t, s.UpsertPattern(ctx, p))

	obs := &patterns.PatternObservation{
		ID:                  uuid.New().String(),
		PatternID:           p.ID,
		TriggerEventID:      "evt-1",
		TriggerTimestamp:    time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC),
		ResponseActivityID:  "act-1",
		ResponseTimestamp:   time.Date(2026, 2, 1, 8, 40, 0, 0, time.UTC),
		ActualOffsetMinutes: -20,
		MatchStrength:       100,
	}
	require.NoError(t, s.AppendObservations(ctx, []*patterns.PatternObservation{obs}))
	require.NoError(t, s.AppendObservations(ctx, []*patterns.PatternObservation{obs}))

	got, err := s.ObservationsForUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, got, 1, "re-appending the same observation ID must be a no-op")
}

func TestMemoryStoreContextDedupKeepsDismissal(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 7)
	c := lifecontext.NewLifeContext("user-1", lifecontext.ContextVacation, "Férias", start, &end, "google_calendar", "gc-1", 0.85, "pt")
	require.NoError(t, s.UpsertContext(ctx, c))
	assert.Equal(t, int64(1), c.Version)

	// Dismiss through the CAS path.
	c.IsDismissed = true
	require.NoError(t, s.UpsertContext(ctx, c))

	// A re-resolution of the same calendar event produces a new struct with
	// the same natural key; it must collapse onto the stored row and keep
	// the dismissal.
	resolved := lifecontext.NewLifeContext("user-1", lifecontext.ContextVacation, "Férias", start, &end, "google_calendar", "gc-1", 0.9, "pt")
	require.NoError(t, s.UpsertContext(ctx, resolved))
	assert.Equal(t, c.ID, resolved.ID)
	assert.True(t, resolved.IsDismissed, "dismissal survives re-resolution")
	assert.Equal(t, 0.9, resolved.Confidence)

	all, err := s.ContextsForUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, all, 1)

	_, err = s.ContextByID(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreContextCASConflict(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	c := lifecontext.NewLifeContext("user-1", lifecontext.ContextConference, "GopherCon", start, nil, "google_calendar", "gc-2", 0.75, "en")
	require.NoError(t, s.UpsertContext(ctx, c))
	require.NoError(t, s.UpsertContext(ctx, c))
	assert.Equal(t, int64(2), c.Version)

	stale := *c
	stale.Version = 1
	require.ErrorIs(t, s.UpsertContext(ctx, &stale), ErrConflict)
}

func TestMemoryStoreTimelineRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	event := lifecontext.CalendarEvent{
		UserID:        "user-1",
		Source:        "google_calendar",
		SourceEventID: "gc-7",
		Title:         "Quarterly presentation",
		Start:         time.Date(2026, 3, 4, 14, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.UpsertCalendarEvents(ctx, []lifecontext.CalendarEvent{event}))
	require.NoError(t, s.UpsertCalendarEvents(ctx, []lifecontext.CalendarEvent{event}))

	events, err := s.CalendarEventsForUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, events, 1)

	act := patterns.ResponseActivity{
		ID:           "act-9",
		UserID:       "user-1",
		Platform:     "spotify",
		ActivityType: patterns.ActivityMusicPlaylist,
		Data:         map[string]string{"playlist_name": "Focus", "energy_level": "low"},
		Timestamp:    time.Date(2026, 3, 4, 13, 40, 0, 0, time.UTC),
		Relevance:    0.8,
	}
	require.NoError(t, s.UpsertActivities(ctx, []patterns.ResponseActivity{act}))
	require.NoError(t, s.UpsertActivities(ctx, []patterns.ResponseActivity{act}))

	acts, err := s.ActivitiesForUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, acts, 1)
	assert.Equal(t, "Focus", acts[0].Data["playlist_name"])
}
