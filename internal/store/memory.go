package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/fyrsmithlabs/insightd/internal/evidence"
	"github.com/fyrsmithlabs/insightd/internal/lifecontext"
	"github.com/fyrsmithlabs/insightd/internal/patterns"
	"github.com/fyrsmithlabs/insightd/internal/traits"
)

// MemoryStore is a mutex-guarded in-memory implementation of Store. It
// enforces the same natural keys and version semantics as the durable
// implementations, so tests exercise the real contract.
type MemoryStore struct {
	mu sync.RWMutex

	evidence     map[evidence.Key]evidence.Item
	scores       map[string]*traits.TraitScore // userID|dimension|facet
	patternsByID map[string]*patterns.BehavioralPattern
	observations map[string][]*patterns.PatternObservation // patternID -> log
	obsIDs       map[string]bool
	contexts     map[string]*lifecontext.LifeContext // id -> context
	contextKeys  map[string]string                   // dedup key -> id
	calendar     map[string]lifecontext.CalendarEvent // userID|source|sourceEventID
	activities   map[string]patterns.ResponseActivity // userID|platform|id
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		evidence:     make(map[evidence.Key]evidence.Item),
		scores:       make(map[string]*traits.TraitScore),
		patternsByID: make(map[string]*patterns.BehavioralPattern),
		observations: make(map[string][]*patterns.PatternObservation),
		obsIDs:       make(map[string]bool),
		contexts:     make(map[string]*lifecontext.LifeContext),
		contextKeys:  make(map[string]string),
		calendar:     make(map[string]lifecontext.CalendarEvent),
		activities:   make(map[string]patterns.ResponseActivity),
	}
}

var _ Store = (*MemoryStore)(nil)

// UpsertEvidence stores items by natural key, overwriting stale copies.
func (s *MemoryStore) UpsertEvidence(ctx context.Context, items []evidence.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		s.evidence[item.Key()] = item
	}
	return nil
}

// EvidenceForUser returns all evidence items for a user.
func (s *MemoryStore) EvidenceForUser(ctx context.Context, userID string) ([]evidence.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var items []evidence.Item
	for key, item := range s.evidence {
		if key.UserID == userID {
			items = append(items, item)
		}
	}
	return items, nil
}

func scoreKey(userID string, d traits.Dimension, f traits.Facet) string {
	return fmt.Sprintf("%s|%s|%s", userID, d, f)
}

// UpsertScore writes a score with compare-and-swap semantics on Version.
func (s *MemoryStore) UpsertScore(ctx context.Context, score *traits.TraitScore) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := scoreKey(score.UserID, score.Dimension, score.Facet)
	current, exists := s.scores[key]
	if exists && current.Version != score.Version {
		return ErrConflict
	}
	if !exists && score.Version != 0 {
		return ErrConflict
	}

	clone := *score
	clone.Version = score.Version + 1
	s.scores[key] = &clone
	score.Version = clone.Version
	return nil
}

// ScoresForUser returns all trait scores for a user.
func (s *MemoryStore) ScoresForUser(ctx context.Context, userID string) ([]*traits.TraitScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var scores []*traits.TraitScore
	for _, score := range s.scores {
		if score.UserID == userID {
			clone := *score
			scores = append(scores, &clone)
		}
	}
	return scores, nil
}

// DeleteScore removes one score row. Missing rows are not an error: delete
// is used to clear scores that fell back to insufficient evidence.
func (s *MemoryStore) DeleteScore(ctx context.Context, userID string, d traits.Dimension, f traits.Facet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.scores, scoreKey(userID, d, f))
	return nil
}

// UpsertPattern writes a pattern with compare-and-swap semantics on Version.
func (s *MemoryStore) UpsertPattern(ctx context.Context, p *patterns.BehavioralPattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.patternsByID[p.ID]
	if exists && current.Version != p.Version {
		return ErrConflict
	}
	if !exists && p.Version != 0 {
		return ErrConflict
	}

	clone := *p
	clone.Version = p.Version + 1
	s.patternsByID[p.ID] = &clone
	p.Version = clone.Version
	return nil
}

// PatternByID returns one pattern or ErrNotFound.
func (s *MemoryStore) PatternByID(ctx context.Context, id string) (*patterns.BehavioralPattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patternsByID[id]
	if !ok {
		return nil, fmt.Errorf("pattern %s: %w", id, ErrNotFound)
	}
	clone := *p
	return &clone, nil
}

// PatternsForUser returns all of a user's patterns, including dormant and
// dismissed ones.
func (s *MemoryStore) PatternsForUser(ctx context.Context, userID string) ([]*patterns.BehavioralPattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*patterns.BehavioralPattern
	for _, p := range s.patternsByID {
		if p.UserID == userID {
			clone := *p
			result = append(result, &clone)
		}
	}
	return result, nil
}

// ActivePatterns returns active, non-dismissed patterns across all users.
func (s *MemoryStore) ActivePatterns(ctx context.Context) ([]*patterns.BehavioralPattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*patterns.BehavioralPattern
	for _, p := range s.patternsByID {
		if p.IsActive && !p.IsDismissed {
			clone := *p
			result = append(result, &clone)
		}
	}
	return result, nil
}

// AppendObservations appends to the observation log. Observations already
// present (by ID) are skipped, keeping re-runs idempotent.
func (s *MemoryStore) AppendObservations(ctx context.Context, obs []*patterns.PatternObservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range obs {
		if s.obsIDs[o.ID] {
			continue
		}
		s.obsIDs[o.ID] = true
		clone := *o
		s.observations[o.PatternID] = append(s.observations[o.PatternID], &clone)
	}
	return nil
}

// ObservationsForUser returns the observation logs of all the user's
// patterns.
func (s *MemoryStore) ObservationsForUser(ctx context.Context, userID string) ([]*patterns.PatternObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*patterns.PatternObservation
	for patternID, log := range s.observations {
		p, ok := s.patternsByID[patternID]
		if !ok || p.UserID != userID {
			continue
		}
		for _, o := range log {
			clone := *o
			result = append(result, &clone)
		}
	}
	return result, nil
}

// UpsertContext stores a context, deduplicating on the natural key. A
// re-resolved context for the same key keeps the existing ID and dismissal
// state but refreshes span and confidence; upserting by ID (same ID already
// stored) is a compare-and-swap on Version.
func (s *MemoryStore) UpsertContext(ctx context.Context, c *lifecontext.LifeContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, exists := s.contexts[c.ID]; exists {
		if current.Version != c.Version {
			return ErrConflict
		}
		delete(s.contextKeys, current.DedupKey())
		clone := *c
		clone.Version = c.Version + 1
		s.contexts[c.ID] = &clone
		s.contextKeys[clone.DedupKey()] = clone.ID
		c.Version = clone.Version
		return nil
	}

	if existingID, dup := s.contextKeys[c.DedupKey()]; dup {
		existing := s.contexts[existingID]
		clone := *c
		clone.ID = existing.ID
		clone.IsDismissed = existing.IsDismissed
		clone.Version = existing.Version + 1
		s.contexts[existingID] = &clone
		c.ID = clone.ID
		c.IsDismissed = clone.IsDismissed
		c.Version = clone.Version
		return nil
	}

	clone := *c
	clone.Version = 1
	s.contexts[c.ID] = &clone
	s.contextKeys[clone.DedupKey()] = clone.ID
	c.Version = clone.Version
	return nil
}

// ContextByID returns one context or ErrNotFound.
func (s *MemoryStore) ContextByID(ctx context.Context, id string) (*lifecontext.LifeContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contexts[id]
	if !ok {
		return nil, fmt.Errorf("life context %s: %w", id, ErrNotFound)
	}
	clone := *c
	return &clone, nil
}

// ContextsForUser returns all contexts for a user, dismissed included.
func (s *MemoryStore) ContextsForUser(ctx context.Context, userID string) ([]*lifecontext.LifeContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*lifecontext.LifeContext
	for _, c := range s.contexts {
		if c.UserID == userID {
			clone := *c
			result = append(result, &clone)
		}
	}
	return result, nil
}

func calendarKey(e *lifecontext.CalendarEvent) string {
	return fmt.Sprintf("%s|%s|%s", e.UserID, e.Source, e.SourceEventID)
}

// UpsertCalendarEvents stores calendar events by source identity.
func (s *MemoryStore) UpsertCalendarEvents(ctx context.Context, events []lifecontext.CalendarEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range events {
		s.calendar[calendarKey(&e)] = e
	}
	return nil
}

// CalendarEventsForUser returns the user's calendar timeline.
func (s *MemoryStore) CalendarEventsForUser(ctx context.Context, userID string) ([]lifecontext.CalendarEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []lifecontext.CalendarEvent
	for _, e := range s.calendar {
		if e.UserID == userID {
			result = append(result, e)
		}
	}
	return result, nil
}

func activityKey(a *patterns.ResponseActivity) string {
	return fmt.Sprintf("%s|%s|%s", a.UserID, a.Platform, a.ID)
}

// UpsertActivities stores response activities by source identity.
func (s *MemoryStore) UpsertActivities(ctx context.Context, activities []patterns.ResponseActivity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range activities {
		s.activities[activityKey(&a)] = a
	}
	return nil
}

// ActivitiesForUser returns the user's activity timeline.
func (s *MemoryStore) ActivitiesForUser(ctx context.Context, userID string) ([]patterns.ResponseActivity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []patterns.ResponseActivity
	for _, a := range s.activities {
		if a.UserID == userID {
			result = append(result, a)
		}
	}
	return result, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
