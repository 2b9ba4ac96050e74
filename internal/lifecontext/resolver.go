package lifecontext

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	// exactMatchBoost raises confidence when a title is exactly the
	// canonical keyword for its type and language.
	exactMatchBoost = 0.15

	// longDurationDays is the span at which an episodic context becomes
	// high confidence regardless of keyword strength.
	longDurationDays = 7

	// longDurationConfidence is the floor applied to long contexts.
	longDurationConfidence = 0.9

	// anomalyWindow is the detection window for the account-anomaly
	// heuristic.
	anomalyWindow = 48 * time.Hour

	// anomalyMinEvents and anomalyLowRelevanceShare define "unusually
	// dense low-relevance content" within the window.
	anomalyMinEvents         = 20
	anomalyLowRelevanceShare = 0.7

	// anomalyRelevanceFloor is the relevance below which an activity
	// counts as low-relevance.
	anomalyRelevanceFloor = 0.3

	// anomalyConfidence is the fixed confidence of detected anomalies.
	anomalyConfidence = 0.6
)

// baseConfidence is the per-type starting confidence for keyword matches.
var baseConfidence = map[ContextType]float64{
	ContextVacation:   0.7,
	ContextTravel:     0.6,
	ContextConference: 0.75,
	ContextTraining:   0.7,
	ContextHoliday:    0.8,
}

// Resolver classifies calendar-like events into life contexts and detects
// account anomalies from activity bursts.
type Resolver struct {
	logger *zap.Logger
}

// NewResolver creates a resolver.
func NewResolver(logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{logger: logger}
}

// ResolveEvent classifies one calendar event. Returns (nil, false) when the
// title matches no dictionary; callers treat that as "no context", not an
// error. The event must already be validated.
func (r *Resolver) ResolveEvent(event *CalendarEvent) (*LifeContext, bool) {
	m, ok := classifyTitle(event.Title)
	if !ok {
		return nil, false
	}

	conf := baseConfidence[m.contextType]
	if m.exact {
		conf += exactMatchBoost
	}

	if event.End != nil {
		days := event.End.Sub(event.Start).Hours() / 24
		if days >= longDurationDays && conf < longDurationConfidence {
			conf = longDurationConfidence
		}
	}

	ctx := NewLifeContext(event.UserID, m.contextType, event.Title,
		event.Start, event.End, event.Source, event.SourceEventID, conf, m.language)

	r.logger.Debug("resolved life context",
		zap.String("user_id", event.UserID),
		zap.String("context_type", string(m.contextType)),
		zap.String("language", m.language),
		zap.Bool("exact", m.exact),
		zap.Float64("confidence", ctx.Confidence))

	return ctx, true
}

// SourceActivity is the minimal view of a response activity the anomaly
// heuristic needs. Relevance is the extractor's 0-1 estimate of how typical
// the content is for this user.
type SourceActivity struct {
	Platform  string
	Timestamp time.Time
	Relevance float64
}

// DetectAccountAnomalies scans recent activities for per-source bursts of
// low-relevance content inside the detection window ending at now. Each
// implicated source yields one account-anomaly context spanning the window.
func (r *Resolver) DetectAccountAnomalies(userID string, activities []SourceActivity, now time.Time) []*LifeContext {
	windowStart := now.Add(-anomalyWindow)

	total := make(map[string]int)
	lowRelevance := make(map[string]int)
	for _, act := range activities {
		if act.Timestamp.Before(windowStart) || act.Timestamp.After(now) {
			continue
		}
		total[act.Platform]++
		if act.Relevance < anomalyRelevanceFloor {
			lowRelevance[act.Platform]++
		}
	}

	var detected []*LifeContext
	for platform, n := range total {
		if n < anomalyMinEvents {
			continue
		}
		share := float64(lowRelevance[platform]) / float64(n)
		if share < anomalyLowRelevanceShare {
			continue
		}

		// The row is anchored to the day the window starts on so that
		// repeated recomputes over one ongoing episode collapse onto the
		// same dedup key instead of minting a fresh context each pass.
		anchor := windowStart.UTC().Truncate(24 * time.Hour)
		end := now
		ctx := NewLifeContext(userID, ContextAccountAnomaly,
			fmt.Sprintf("unusual activity density on %s", platform),
			anchor, &end, platform,
			fmt.Sprintf("anomaly-%s-%s", platform, anchor.Format("2006-01-02")),
			anomalyConfidence, DefaultLanguage)

		r.logger.Info("detected account anomaly",
			zap.String("user_id", userID),
			zap.String("platform", platform),
			zap.Int("events", n),
			zap.Float64("low_relevance_share", share))

		detected = append(detected, ctx)
	}
	return detected
}

// Active returns the merged contexts covering now, most confident first.
func Active(contexts []*LifeContext, now time.Time) []*LifeContext {
	merged := Merge(contexts)
	var active []*LifeContext
	for _, c := range merged {
		if c.ActiveAt(now) {
			active = append(active, c)
		}
	}
	sortByConfidence(active)
	return active
}

// Upcoming returns merged contexts starting within daysAhead of now,
// soonest first. Already-active contexts are excluded.
func Upcoming(contexts []*LifeContext, now time.Time, daysAhead int) []*LifeContext {
	horizon := now.AddDate(0, 0, daysAhead)
	merged := Merge(contexts)
	var upcoming []*LifeContext
	for _, c := range merged {
		if c.IsDismissed {
			continue
		}
		if c.StartDate.After(now) && !c.StartDate.After(horizon) {
			upcoming = append(upcoming, c)
		}
	}
	sortByStart(upcoming)
	return upcoming
}
