package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/fyrsmithlabs/insightd/internal/lifecontext"
	"github.com/fyrsmithlabs/insightd/internal/patterns"
	"github.com/fyrsmithlabs/insightd/internal/traits"
)

// TraitScores returns the user's current scores in canonical dimension
// order. Dimensions without a score are absent: "unknown" is represented by
// absence, never by a neutral value.
func (s *Service) TraitScores(ctx context.Context, userID string) ([]*traits.TraitScore, error) {
	scores, err := s.store.ScoresForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading scores: %w", err)
	}

	order := make(map[traits.Dimension]int, len(traits.Dimensions()))
	for i, d := range traits.Dimensions() {
		order[d] = i
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Dimension != scores[j].Dimension {
			return order[scores[i].Dimension] < order[scores[j].Dimension]
		}
		return scores[i].Facet < scores[j].Facet
	})
	return scores, nil
}

// ActivePatterns returns the user's active, non-dismissed patterns at or
// above minConfidence, highest confidence first. Pass 0 for all.
func (s *Service) ActivePatterns(ctx context.Context, userID string, minConfidence float64) ([]*patterns.BehavioralPattern, error) {
	all, err := s.store.PatternsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading patterns: %w", err)
	}
	var active []*patterns.BehavioralPattern
	for _, p := range all {
		if p.IsActive && !p.IsDismissed && p.ConfidenceScore >= minConfidence {
			active = append(active, p)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		if active[i].ConfidenceScore == active[j].ConfidenceScore {
			return active[i].ID < active[j].ID
		}
		return active[i].ConfidenceScore > active[j].ConfidenceScore
	})
	return active, nil
}

// SimilarPatterns finds population-wide patterns similar to the given one,
// best match per distinct user, ordered by similarity.
func (s *Service) SimilarPatterns(ctx context.Context, patternID string, limit int) ([]patterns.SimilarMatch, error) {
	ref, err := s.store.PatternByID(ctx, patternID)
	if err != nil {
		return nil, err
	}
	candidates, err := s.store.ActivePatterns(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading candidate patterns: %w", err)
	}
	return patterns.FindSimilar(ref, candidates, limit), nil
}

// ActiveContexts returns the user's merged life contexts active right now,
// most confident first.
func (s *Service) ActiveContexts(ctx context.Context, userID string) ([]*lifecontext.LifeContext, error) {
	contexts, err := s.store.ContextsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading contexts: %w", err)
	}
	return lifecontext.Active(contexts, s.now()), nil
}

// UpcomingContexts returns the user's merged contexts starting within
// daysAhead, soonest first.
func (s *Service) UpcomingContexts(ctx context.Context, userID string, daysAhead int) ([]*lifecontext.LifeContext, error) {
	contexts, err := s.store.ContextsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading contexts: %w", err)
	}
	return lifecontext.Upcoming(contexts, s.now(), daysAhead), nil
}

// DismissPattern soft-deletes a pattern. Dismissed patterns keep their data
// but are excluded from every active view and from similarity matching.
func (s *Service) DismissPattern(ctx context.Context, patternID string) error {
	return s.withRetry(ctx, "dismiss pattern", func() error {
		p, err := s.store.PatternByID(ctx, patternID)
		if err != nil {
			return err
		}
		if p.IsDismissed {
			return nil
		}
		p.IsDismissed = true
		return s.store.UpsertPattern(ctx, p)
	})
}

// DismissContext soft-deletes a life context. Dismissal survives
// re-resolution of the same source event.
func (s *Service) DismissContext(ctx context.Context, contextID string) error {
	return s.withRetry(ctx, "dismiss context", func() error {
		c, err := s.store.ContextByID(ctx, contextID)
		if err != nil {
			return err
		}
		if c.IsDismissed {
			return nil
		}
		c.IsDismissed = true
		return s.store.UpsertContext(ctx, c)
	})
}
