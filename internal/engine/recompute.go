package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/insightd/internal/evidence"
	"github.com/fyrsmithlabs/insightd/internal/lifecontext"
	"github.com/fyrsmithlabs/insightd/internal/patterns"
	"github.com/fyrsmithlabs/insightd/internal/store"
	"github.com/fyrsmithlabs/insightd/internal/traits"
)

// anomalyDampeningReason is the auditable explanation attached to evidence
// down-weighted while an account-anomaly context is active on its source.
const anomalyDampeningReason = "account anomaly active on this source (possible shared or atypical account use)"

// RecomputeResult summarizes one single-user recompute pass.
type RecomputeResult struct {
	UserID                 string             `json:"user_id"`
	ContextsResolved       int                `json:"contexts_resolved"`
	AnomaliesDetected      int                `json:"anomalies_detected"`
	DimensionsScored       int                `json:"dimensions_scored"`
	DimensionsInsufficient []traits.Dimension `json:"dimensions_insufficient,omitempty"`
	PatternsCreated        int                `json:"patterns_created"`
	PatternsUpdated        int                `json:"patterns_updated"`
	PatternsMarkedDormant  int                `json:"patterns_marked_dormant"`
	ObservationsAppended   int                `json:"observations_appended"`
}

// RecomputeUser reruns the whole pipeline for one user from the stored
// timeline: life-context resolution and anomaly detection, evidence
// aggregation and trait scoring, then pattern detection and the dormancy
// sweep. The pass is serialized against concurrent recomputes of the same
// user and is safe to rerun at any time.
func (s *Service) RecomputeUser(ctx context.Context, userID string) (*RecomputeResult, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id cannot be empty")
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	started := time.Now()
	result := &RecomputeResult{UserID: userID}
	now := s.now()

	err := func() error {
		if err := s.recomputeContexts(ctx, userID, now, result); err != nil {
			return err
		}
		if err := s.recomputeScores(ctx, userID, now, result); err != nil {
			return err
		}
		return s.recomputePatterns(ctx, userID, now, result)
	}()

	RecomputeDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		RecomputeTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	RecomputeTotal.WithLabelValues("success").Inc()

	s.logger.Info("recompute complete",
		zap.String("user_id", userID),
		zap.Int("contexts", result.ContextsResolved),
		zap.Int("anomalies", result.AnomaliesDetected),
		zap.Int("dimensions_scored", result.DimensionsScored),
		zap.Int("patterns_created", result.PatternsCreated),
		zap.Int("patterns_updated", result.PatternsUpdated),
		zap.Duration("elapsed", time.Since(started)))
	return result, nil
}

// RecomputeUsers recomputes a set of users with bounded parallelism.
// Per-user failures are collected; one user's failure never blocks the rest.
func (s *Service) RecomputeUsers(ctx context.Context, userIDs []string) ([]*RecomputeResult, error) {
	sem := make(chan struct{}, s.concurrency)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []*RecomputeResult
		errs    error
	)

	for _, userID := range userIDs {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			res, err := s.RecomputeUser(ctx, userID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("user %s: %w", userID, err))
				return
			}
			results = append(results, res)
		}(userID)
	}
	wg.Wait()
	return results, errs
}

func (s *Service) recomputeContexts(ctx context.Context, userID string, now time.Time, result *RecomputeResult) error {
	calendar, err := s.store.CalendarEventsForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("loading calendar events: %w", err)
	}
	activities, err := s.store.ActivitiesForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("loading activities: %w", err)
	}

	var resolved []*lifecontext.LifeContext
	for i := range calendar {
		if c, ok := s.resolver.ResolveEvent(&calendar[i]); ok {
			resolved = append(resolved, c)
		}
	}
	result.ContextsResolved = len(resolved)

	view := make([]lifecontext.SourceActivity, len(activities))
	for i, a := range activities {
		view[i] = lifecontext.SourceActivity{
			Platform:  a.Platform,
			Timestamp: a.Timestamp,
			Relevance: a.Relevance,
		}
	}
	anomalies := s.resolver.DetectAccountAnomalies(userID, view, now)
	result.AnomaliesDetected = len(anomalies)
	resolved = append(resolved, anomalies...)

	for _, c := range lifecontext.Merge(resolved) {
		c := c
		err := s.withRetry(ctx, "upsert context", func() error {
			return s.store.UpsertContext(ctx, c)
		})
		if err != nil {
			return err
		}
		// Version 1 means the store had never seen this context before.
		if c.Version == 1 && !c.IsDismissed {
			s.publish(SubjectContextDetected, c)
		}
	}
	return nil
}

func (s *Service) recomputeScores(ctx context.Context, userID string, now time.Time, result *RecomputeResult) error {
	items, err := s.store.EvidenceForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("loading evidence: %w", err)
	}
	dampened, err := s.dampenedSources(ctx, userID, now)
	if err != nil {
		return err
	}

	for _, dim := range traits.Dimensions() {
		agg, err := s.aggregator.Aggregate(dim, items, dampened)
		if err != nil {
			var insufficient *evidence.InsufficientEvidenceError
			if errors.As(err, &insufficient) {
				result.DimensionsInsufficient = append(result.DimensionsInsufficient, dim)
				// An unscoreable dimension is "unknown", so any stale
				// score must go away rather than linger.
				if err := s.store.DeleteScore(ctx, userID, dim, ""); err != nil {
					return fmt.Errorf("clearing stale score: %w", err)
				}
				continue
			}
			return fmt.Errorf("aggregating %s: %w", dim, err)
		}

		score, err := s.normalizer.Score(userID, dim, traits.DimensionLevel, s.schemaVersion,
			agg.RawScore, agg.ItemCount, agg.SourceCount, agg.DaysObserved, traits.SourceBehavioral)
		if err != nil {
			return fmt.Errorf("scoring %s: %w", dim, err)
		}

		err = s.withRetry(ctx, "upsert score", func() error {
			current, err := s.currentScoreVersion(ctx, userID, dim)
			if err != nil {
				return err
			}
			score.Version = current
			return s.store.UpsertScore(ctx, score)
		})
		if err != nil {
			return err
		}

		result.DimensionsScored++
		s.publish(SubjectScoreUpdated, score)
	}
	return nil
}

// dampenedSources maps each platform with an active account-anomaly context
// to the reason its evidence is down-weighted.
func (s *Service) dampenedSources(ctx context.Context, userID string, now time.Time) (map[string]string, error) {
	contexts, err := s.store.ContextsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading contexts: %w", err)
	}
	dampened := make(map[string]string)
	for _, c := range contexts {
		if c.ContextType == lifecontext.ContextAccountAnomaly && c.ActiveAt(now) {
			dampened[c.Source] = anomalyDampeningReason
		}
	}
	return dampened, nil
}

func (s *Service) currentScoreVersion(ctx context.Context, userID string, dim traits.Dimension) (int64, error) {
	scores, err := s.store.ScoresForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("loading scores: %w", err)
	}
	for _, sc := range scores {
		if sc.Dimension == dim && sc.Facet == traits.DimensionLevel {
			return sc.Version, nil
		}
	}
	return 0, nil
}

func (s *Service) recomputePatterns(ctx context.Context, userID string, now time.Time, result *RecomputeResult) error {
	calendar, err := s.store.CalendarEventsForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("loading calendar events: %w", err)
	}
	activities, err := s.store.ActivitiesForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("loading activities: %w", err)
	}
	existing, err := s.store.PatternsForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("loading patterns: %w", err)
	}
	existingObs, err := s.store.ObservationsForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("loading observations: %w", err)
	}

	var triggers []patterns.TriggerEvent
	for _, e := range calendar {
		keyword, ok := patterns.ClassifyTrigger(e.Title)
		if !ok {
			continue
		}
		triggers = append(triggers, patterns.TriggerEvent{
			ID:        e.SourceEventID,
			UserID:    e.UserID,
			Title:     e.Title,
			Keyword:   keyword,
			Timestamp: e.Start,
		})
	}

	detection := s.detector.Detect(userID, triggers, activities, existing, existingObs)

	for _, p := range detection.Created {
		p := p
		if err := s.withRetry(ctx, "insert pattern", func() error {
			return s.store.UpsertPattern(ctx, p)
		}); err != nil {
			return err
		}
		s.publish(SubjectPatternDetected, p)
	}
	PatternsDetected.Add(float64(len(detection.Created)))
	result.PatternsCreated = len(detection.Created)

	for _, p := range detection.Updated {
		if err := s.upsertPatternWithReload(ctx, p); err != nil {
			return err
		}
	}
	result.PatternsUpdated = len(detection.Updated)

	if len(detection.Observations) > 0 {
		if err := s.store.AppendObservations(ctx, detection.Observations); err != nil {
			return fmt.Errorf("appending observations: %w", err)
		}
	}
	result.ObservationsAppended = len(detection.Observations)

	// Dormancy sweep over the refreshed set.
	refreshed, err := s.store.PatternsForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("reloading patterns: %w", err)
	}
	dormant := s.detector.MarkDormant(refreshed, now)
	for _, p := range dormant {
		if err := s.upsertPatternWithReload(ctx, p); err != nil {
			return err
		}
	}
	result.PatternsMarkedDormant = len(dormant)

	activeCount := 0
	for _, p := range refreshed {
		if p.IsActive && !p.IsDismissed {
			activeCount++
		}
	}
	activeCount -= len(dormant)
	ActivePatternCount.WithLabelValues(userID).Set(float64(activeCount))
	return nil
}

// upsertPatternWithReload retries a pattern CAS upsert, refreshing the
// version from the store after each conflict so statistic updates always
// land on the latest row. A dismissal that landed since our read is
// terminal and is carried forward instead of being written back off.
func (s *Service) upsertPatternWithReload(ctx context.Context, p *patterns.BehavioralPattern) error {
	return s.withRetry(ctx, "update pattern", func() error {
		err := s.store.UpsertPattern(ctx, p)
		if errors.Is(err, store.ErrConflict) {
			current, lookupErr := s.store.PatternByID(ctx, p.ID)
			if lookupErr == nil {
				p.Version = current.Version
				if current.IsDismissed {
					p.IsDismissed = true
				}
			}
		}
		return err
	})
}
