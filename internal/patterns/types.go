// Package patterns discovers recurring "trigger event -> response activity"
// temporal relationships in a user's timeline and maintains their running
// statistics and confidence.
package patterns

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Validation errors for timeline inputs.
var (
	ErrEmptyUserID     = errors.New("user ID cannot be empty")
	ErrEmptyEventID    = errors.New("event ID cannot be empty")
	ErrZeroTimestamp   = errors.New("timestamp cannot be zero")
	ErrEmptyPlatform   = errors.New("platform cannot be empty")
	ErrUnknownActivity = errors.New("unknown activity type")
)

// PatternType classifies the temporal direction of a pattern.
type PatternType string

const (
	// PatternBeforeEvent: the response activity precedes the trigger.
	PatternBeforeEvent PatternType = "temporal_before_event"

	// PatternAfterEvent: the response activity follows the trigger.
	PatternAfterEvent PatternType = "temporal_after_event"
)

// ActivityType is the tagged variant of a response activity payload. Each
// variant has an explicit schema validated at the ingestion boundary.
type ActivityType string

const (
	ActivityMusicPlaylist ActivityType = "music_playlist"
	ActivityVideoWatch    ActivityType = "video_watch"
	ActivityAppSession    ActivityType = "app_session"
	ActivityWorkout       ActivityType = "workout"
)

// requiredDataKeys is the per-variant payload schema.
var requiredDataKeys = map[ActivityType][]string{
	ActivityMusicPlaylist: {"playlist"},
	ActivityVideoWatch:    {"title"},
	ActivityAppSession:    {"app"},
	ActivityWorkout:       {"activity"},
}

// TriggerEvent is a classified calendar-like event on the user's timeline.
// Keyword is the canonical trigger class (for example "presentation") shared
// by all events of the same kind.
type TriggerEvent struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Keyword   string    `json:"keyword"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate rejects malformed trigger events.
func (e *TriggerEvent) Validate() error {
	if e.ID == "" {
		return ErrEmptyEventID
	}
	if e.UserID == "" {
		return ErrEmptyUserID
	}
	if e.Timestamp.IsZero() {
		return ErrZeroTimestamp
	}
	return nil
}

// ResponseActivity is a platform activity that may form the response side of
// a pattern. Data carries the variant payload for ActivityType.
type ResponseActivity struct {
	ID           string            `json:"id"`
	UserID       string            `json:"user_id"`
	Platform     string            `json:"platform"`
	ActivityType ActivityType      `json:"activity_type"`
	Data         map[string]string `json:"data,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`

	// Relevance is the extractor's 0-1 estimate of how typical this
	// content is for the user; low values feed the account-anomaly
	// heuristic.
	Relevance float64 `json:"relevance"`
}

// Validate rejects malformed activities and enforces the per-variant payload
// schema.
func (a *ResponseActivity) Validate() error {
	if a.ID == "" {
		return ErrEmptyEventID
	}
	if a.UserID == "" {
		return ErrEmptyUserID
	}
	if a.Platform == "" {
		return ErrEmptyPlatform
	}
	if a.Timestamp.IsZero() {
		return ErrZeroTimestamp
	}
	required, ok := requiredDataKeys[a.ActivityType]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownActivity, a.ActivityType)
	}
	for _, key := range required {
		if a.Data[key] == "" {
			return fmt.Errorf("activity type %s requires data key %q", a.ActivityType, key)
		}
	}
	if a.Relevance < 0 {
		a.Relevance = 0
	} else if a.Relevance > 1 {
		a.Relevance = 1
	}
	return nil
}

// BehavioralPattern is a recurring trigger->response relationship for one
// user. Created on first detected recurrence; mutated by every new matching
// observation through atomic upserts keyed by its identity.
type BehavioralPattern struct {
	ID          string      `json:"id"`
	UserID      string      `json:"user_id"`
	PatternType PatternType `json:"pattern_type"`

	TriggerType     string `json:"trigger_type"`
	TriggerKeywords string `json:"trigger_keywords"`

	ResponsePlatform string            `json:"response_platform"`
	ResponseType     ActivityType      `json:"response_type"`
	ResponseData     map[string]string `json:"response_data,omitempty"`

	// TimeOffsetMinutes is the representative signed offset between
	// trigger and response; negative means the response precedes the
	// trigger. Maintained as the rounded running mean of observations.
	TimeOffsetMinutes int `json:"time_offset_minutes"`

	// TimeWindowMinutes is the matching tolerance around the
	// representative offset.
	TimeWindowMinutes int `json:"time_window_minutes"`

	OccurrenceCount int     `json:"occurrence_count"`
	ConsistencyRate float64 `json:"consistency_rate"`
	ConfidenceScore float64 `json:"confidence_score"`

	EmotionalState      string `json:"emotional_state,omitempty"`
	HypothesizedPurpose string `json:"hypothesized_purpose,omitempty"`

	FirstObservedAt time.Time `json:"first_observed_at"`
	LastObservedAt  time.Time `json:"last_observed_at"`
	IsActive        bool      `json:"is_active"`
	IsDismissed     bool      `json:"is_dismissed"`

	// Version supports optimistic-concurrency upserts in the store.
	Version int64 `json:"version"`
}

// IdentityKey is the composite deduplication boundary for a pattern. Two
// detections with the same key (and an offset inside the time window) are
// the same pattern.
type IdentityKey struct {
	UserID           string
	PatternType      PatternType
	TriggerKeywords  string
	ResponsePlatform string
	ResponseType     ActivityType
}

// Identity returns the pattern's composite key.
func (p *BehavioralPattern) Identity() IdentityKey {
	return IdentityKey{
		UserID:           p.UserID,
		PatternType:      p.PatternType,
		TriggerKeywords:  p.TriggerKeywords,
		ResponsePlatform: p.ResponsePlatform,
		ResponseType:     p.ResponseType,
	}
}

// MatchesOffset reports whether a newly observed offset falls inside this
// pattern's matching window.
func (p *BehavioralPattern) MatchesOffset(offsetMinutes int) bool {
	delta := offsetMinutes - p.TimeOffsetMinutes
	if delta < 0 {
		delta = -delta
	}
	return delta <= p.TimeWindowMinutes
}

// PatternObservation is one append-only evidence row backing a pattern's
// running statistics. Never mutated after insert.
type PatternObservation struct {
	ID                  string    `json:"id"`
	PatternID           string    `json:"pattern_id"`
	TriggerEventID      string    `json:"trigger_event_id"`
	TriggerTimestamp    time.Time `json:"trigger_timestamp"`
	ResponseActivityID  string    `json:"response_activity_id"`
	ResponseTimestamp   time.Time `json:"response_timestamp"`
	ActualOffsetMinutes int       `json:"actual_offset_minutes"`

	// MatchStrength in [0,100]: how close the observed offset sits to the
	// pattern's representative offset.
	MatchStrength float64 `json:"match_strength"`
}

// PairKey identifies the (trigger, response) pair an observation came from;
// re-running detection over the same timeline must not duplicate
// observations.
func (o *PatternObservation) PairKey() string {
	return o.TriggerEventID + "|" + o.ResponseActivityID
}

func newObservationID() string {
	return uuid.New().String()
}

func newPatternID() string {
	return uuid.New().String()
}
