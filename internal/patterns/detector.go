package patterns

import (
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/insightd/internal/confidence"
)

// Detector defaults.
const (
	// DefaultMaxOffset bounds how far apart a trigger and a response may
	// be and still form a candidate pair.
	DefaultMaxOffset = 3 * time.Hour

	// DefaultMatchWindow is the tolerance around a pattern's
	// representative offset when matching new detections.
	DefaultMatchWindow = 15 * time.Minute

	// DefaultStalenessWindow is how long a pattern can go without a new
	// observation before it turns dormant.
	DefaultStalenessWindow = 30 * 24 * time.Hour
)

// Detector pairs trigger events with response activities, matches the pairs
// against known patterns, and maintains each pattern's running statistics.
// Detection is deterministic and idempotent over the same timeline: pairs
// already backed by an observation are never recorded twice.
type Detector struct {
	maxOffset   time.Duration
	matchWindow time.Duration
	staleness   time.Duration
	logger      *zap.Logger
}

// DetectorOption configures a Detector.
type DetectorOption func(*Detector)

// WithMaxOffset sets the trigger/response pairing bound.
func WithMaxOffset(d time.Duration) DetectorOption {
	return func(det *Detector) { det.maxOffset = d }
}

// WithMatchWindow sets the offset matching tolerance.
func WithMatchWindow(d time.Duration) DetectorOption {
	return func(det *Detector) { det.matchWindow = d }
}

// WithStalenessWindow sets the dormancy threshold.
func WithStalenessWindow(d time.Duration) DetectorOption {
	return func(det *Detector) { det.staleness = d }
}

// NewDetector creates a detector with the given options.
func NewDetector(logger *zap.Logger, opts ...DetectorOption) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Detector{
		maxOffset:   DefaultMaxOffset,
		matchWindow: DefaultMatchWindow,
		staleness:   DefaultStalenessWindow,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Result carries the outcome of one detection pass. Created patterns start
// with all of their backing observations; Updated patterns have fresh
// statistics and their new observations appear in Observations.
type Result struct {
	Created      []*BehavioralPattern
	Updated      []*BehavioralPattern
	Observations []*PatternObservation
}

// pair is one candidate trigger/response detection.
type pair struct {
	trigger       *TriggerEvent
	response      *ResponseActivity
	offsetMinutes int
}

// Detect runs one pass over a user's timeline. existing and existingObs are
// the persisted patterns and observations for the user; the detector never
// mutates them in place — updated patterns are returned as copies for the
// caller to upsert atomically.
//
// A brand-new relationship needs at least two distinct trigger events in the
// timeline before it is materialized; a single co-occurrence stays an
// in-pass candidate and is discarded.
func (d *Detector) Detect(userID string, triggers []TriggerEvent, responses []ResponseActivity, existing []*BehavioralPattern, existingObs []*PatternObservation) *Result {
	result := &Result{}

	// Index persisted observations by pattern and by pair, both for
	// idempotence and for running-statistics recomputation.
	obsByPattern := make(map[string][]*PatternObservation)
	seenPairs := make(map[string]map[string]bool)
	for _, obs := range existingObs {
		obsByPattern[obs.PatternID] = append(obsByPattern[obs.PatternID], obs)
		if seenPairs[obs.PatternID] == nil {
			seenPairs[obs.PatternID] = make(map[string]bool)
		}
		seenPairs[obs.PatternID][obs.PairKey()] = true
	}

	byIdentity := make(map[IdentityKey][]*BehavioralPattern)
	for _, p := range existing {
		byIdentity[p.Identity()] = append(byIdentity[p.Identity()], p)
	}

	pairs := d.selectPairs(triggers, responses)

	// Route each pair to an existing pattern or a new-candidate bucket.
	type bucket struct {
		identity IdentityKey
		pairs    []pair
	}
	updated := make(map[string]*BehavioralPattern)
	newObsFor := make(map[string][]pair)
	var buckets []*bucket

pairLoop:
	for _, pr := range pairs {
		identity := IdentityKey{
			UserID:           userID,
			PatternType:      patternTypeFor(pr.offsetMinutes),
			TriggerKeywords:  pr.trigger.Keyword,
			ResponsePlatform: pr.response.Platform,
			ResponseType:     pr.response.ActivityType,
		}

		for _, p := range byIdentity[identity] {
			if !p.MatchesOffset(pr.offsetMinutes) {
				continue
			}
			if seenPairs[p.ID][pr.pairKey()] {
				continue pairLoop // already backed by an observation
			}
			if seenPairs[p.ID] == nil {
				seenPairs[p.ID] = make(map[string]bool)
			}
			seenPairs[p.ID][pr.pairKey()] = true
			if _, ok := updated[p.ID]; !ok {
				clone := *p
				updated[p.ID] = &clone
			}
			newObsFor[p.ID] = append(newObsFor[p.ID], pr)
			continue pairLoop
		}

		// No persisted pattern matched: bucket with in-pass candidates
		// whose running mean offset is within the match window.
		for _, b := range buckets {
			if b.identity != identity {
				continue
			}
			if math.Abs(meanOffset(b.pairs)-float64(pr.offsetMinutes)) <= d.matchWindow.Minutes() {
				b.pairs = append(b.pairs, pr)
				continue pairLoop
			}
		}
		buckets = append(buckets, &bucket{identity: identity, pairs: []pair{pr}})
	}

	// Materialize buckets backed by a genuine recurrence: at least two
	// distinct trigger events.
	for _, b := range buckets {
		if distinctTriggers(b.pairs) < 2 {
			continue
		}
		p := d.newPattern(b.identity, b.pairs)
		obs := make([]*PatternObservation, 0, len(b.pairs))
		for _, pr := range b.pairs {
			obs = append(obs, newObservation(p, pr))
		}
		d.refreshStats(p, obs, triggers)
		d.scoreObservations(p, obs)
		result.Created = append(result.Created, p)
		result.Observations = append(result.Observations, obs...)

		d.logger.Info("pattern detected",
			zap.String("user_id", userID),
			zap.String("pattern_type", string(p.PatternType)),
			zap.String("trigger", p.TriggerKeywords),
			zap.String("response_platform", p.ResponsePlatform),
			zap.Int("offset_minutes", p.TimeOffsetMinutes),
			zap.Float64("confidence", p.ConfidenceScore))
	}

	// Refresh statistics on updated patterns over all of their
	// observations, old and new.
	for id, p := range updated {
		var obs []*PatternObservation
		for _, pr := range newObsFor[id] {
			obs = append(obs, newObservation(p, pr))
		}
		all := append(append([]*PatternObservation{}, obsByPattern[id]...), obs...)
		d.refreshStats(p, all, triggers)
		d.scoreObservations(p, obs)
		p.IsActive = true // reactivation on new evidence
		result.Updated = append(result.Updated, p)
		result.Observations = append(result.Observations, obs...)
	}

	sort.Slice(result.Created, func(i, j int) bool {
		return result.Created[i].ID < result.Created[j].ID
	})
	sort.Slice(result.Updated, func(i, j int) bool {
		return result.Updated[i].ID < result.Updated[j].ID
	})
	return result
}

// selectPairs pairs each trigger with its closest response per (platform,
// activity type, direction) within the max offset.
func (d *Detector) selectPairs(triggers []TriggerEvent, responses []ResponseActivity) []pair {
	type pairGroup struct {
		platform     string
		activityType ActivityType
		before       bool
	}

	var selected []pair
	for i := range triggers {
		trigger := &triggers[i]
		if trigger.Keyword == "" {
			continue
		}
		best := make(map[pairGroup]pair)
		for j := range responses {
			response := &responses[j]
			offset := response.Timestamp.Sub(trigger.Timestamp)
			if offset < -d.maxOffset || offset > d.maxOffset {
				continue
			}
			offsetMinutes := int(math.Round(offset.Minutes()))
			group := pairGroup{response.Platform, response.ActivityType, offsetMinutes < 0}
			current, ok := best[group]
			if !ok || abs(offsetMinutes) < abs(current.offsetMinutes) {
				best[group] = pair{trigger: trigger, response: response, offsetMinutes: offsetMinutes}
			}
		}
		for _, pr := range best {
			selected = append(selected, pr)
		}
	}

	sort.Slice(selected, func(i, j int) bool {
		if !selected[i].trigger.Timestamp.Equal(selected[j].trigger.Timestamp) {
			return selected[i].trigger.Timestamp.Before(selected[j].trigger.Timestamp)
		}
		return selected[i].response.ID < selected[j].response.ID
	})
	return selected
}

// refreshStats recomputes occurrence count, representative offset,
// consistency, confidence, the observation span, and per-observation match
// strength from the full set of backing observations.
func (d *Detector) refreshStats(p *BehavioralPattern, obs []*PatternObservation, allTriggers []TriggerEvent) {
	if len(obs) == 0 {
		return
	}

	var offsetSum float64
	matchedTriggers := make(map[string]bool)
	first, last := obs[0].TriggerTimestamp, obs[0].TriggerTimestamp
	for _, o := range obs {
		offsetSum += float64(o.ActualOffsetMinutes)
		matchedTriggers[o.TriggerEventID] = true
		if o.TriggerTimestamp.Before(first) {
			first = o.TriggerTimestamp
		}
		if o.TriggerTimestamp.After(last) {
			last = o.TriggerTimestamp
		}
	}

	p.OccurrenceCount = len(obs)
	p.TimeOffsetMinutes = int(math.Round(offsetSum / float64(len(obs))))
	p.FirstObservedAt = first
	p.LastObservedAt = last

	// Eligible trigger events: all events of this keyword class inside the
	// observed span. The matched count can never exceed it, so the rate
	// stays in [0, 100].
	eligible := 0
	for i := range allTriggers {
		t := &allTriggers[i]
		if t.Keyword != p.TriggerKeywords {
			continue
		}
		if t.Timestamp.Before(first) || t.Timestamp.After(last) {
			continue
		}
		eligible++
	}
	if eligible < len(matchedTriggers) {
		eligible = len(matchedTriggers)
	}
	if eligible < 1 {
		eligible = 1
	}
	p.ConsistencyRate = confidence.Clamp(float64(len(matchedTriggers))/float64(eligible)*100, 0, 100)

	days := last.Sub(first).Hours() / 24
	p.ConfidenceScore = confidence.Score(p.OccurrenceCount, p.ConsistencyRate, days)
}

// scoreObservations sets match strength on freshly created observations:
// the distance between the observed offset and the pattern's representative
// offset, scaled by the match window. Persisted observations are append-only
// and are never rescored.
func (d *Detector) scoreObservations(p *BehavioralPattern, obs []*PatternObservation) {
	window := math.Max(1, d.matchWindow.Minutes())
	for _, o := range obs {
		delta := math.Abs(float64(o.ActualOffsetMinutes - p.TimeOffsetMinutes))
		o.MatchStrength = confidence.Clamp(100-(delta/window)*100, 0, 100)
	}
}

// MarkDormant flags patterns with no observation inside the staleness
// window. Returns the (copied) patterns whose state changed; dismissed
// patterns are left alone.
func (d *Detector) MarkDormant(patterns []*BehavioralPattern, now time.Time) []*BehavioralPattern {
	var changed []*BehavioralPattern
	for _, p := range patterns {
		if !p.IsActive || p.IsDismissed {
			continue
		}
		if now.Sub(p.LastObservedAt) > d.staleness {
			clone := *p
			clone.IsActive = false
			changed = append(changed, &clone)
		}
	}
	return changed
}

func (d *Detector) newPattern(identity IdentityKey, pairs []pair) *BehavioralPattern {
	now := time.Now().UTC()
	sample := pairs[0]

	p := &BehavioralPattern{
		ID:                newPatternID(),
		UserID:            identity.UserID,
		PatternType:       identity.PatternType,
		TriggerType:       "calendar_event",
		TriggerKeywords:   identity.TriggerKeywords,
		ResponsePlatform:  identity.ResponsePlatform,
		ResponseType:      identity.ResponseType,
		ResponseData:      sample.response.Data,
		TimeWindowMinutes: int(d.matchWindow.Minutes()),
		IsActive:          true,
		FirstObservedAt:   now,
		LastObservedAt:    now,
	}
	p.EmotionalState, p.HypothesizedPurpose = hypothesize(identity)
	return p
}

// hypothesize produces the human-readable explanation attached to a new
// pattern. Coarse on purpose: the output must be auditable by end users.
func hypothesize(identity IdentityKey) (emotionalState, purpose string) {
	switch identity.PatternType {
	case PatternBeforeEvent:
		return "anticipatory", fmt.Sprintf("preparation routine before %s events on %s",
			identity.TriggerKeywords, identity.ResponsePlatform)
	default:
		return "decompressing", fmt.Sprintf("wind-down routine after %s events on %s",
			identity.TriggerKeywords, identity.ResponsePlatform)
	}
}

func newObservation(p *BehavioralPattern, pr pair) *PatternObservation {
	return &PatternObservation{
		ID:                  newObservationID(),
		PatternID:           p.ID,
		TriggerEventID:      pr.trigger.ID,
		TriggerTimestamp:    pr.trigger.Timestamp,
		ResponseActivityID:  pr.response.ID,
		ResponseTimestamp:   pr.response.Timestamp,
		ActualOffsetMinutes: pr.offsetMinutes,
	}
}

func patternTypeFor(offsetMinutes int) PatternType {
	if offsetMinutes < 0 {
		return PatternBeforeEvent
	}
	return PatternAfterEvent
}

func (p pair) pairKey() string {
	return p.trigger.ID + "|" + p.response.ID
}

func meanOffset(pairs []pair) float64 {
	var sum float64
	for _, p := range pairs {
		sum += float64(p.offsetMinutes)
	}
	return sum / float64(len(pairs))
}

func distinctTriggers(pairs []pair) int {
	seen := make(map[string]bool, len(pairs))
	for _, p := range pairs {
		seen[p.trigger.ID] = true
	}
	return len(seen)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
