// Package lifecontext detects confounding episodic context (vacations,
// conferences, recurring holidays, account anomalies) from collaborator
// calendar-like events, so that evidence aggregation and pattern detection
// can down-weight anomalous periods instead of silently trusting them.
package lifecontext

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Validation errors for incoming events.
var (
	ErrEmptyUserID        = errors.New("user ID cannot be empty")
	ErrEmptyTitle         = errors.New("event title cannot be empty")
	ErrZeroStart          = errors.New("event start time cannot be zero")
	ErrEndBeforeStart     = errors.New("event end time cannot precede its start")
	ErrEmptySourceEventID = errors.New("source event ID cannot be empty")
)

// ContextType classifies an episodic life context.
type ContextType string

const (
	ContextVacation   ContextType = "vacation"
	ContextTravel     ContextType = "travel"
	ContextConference ContextType = "conference"
	ContextTraining   ContextType = "training"
	ContextHoliday    ContextType = "holiday"

	// ContextAccountAnomaly flags a detection-window burst of low-relevance
	// activity on one source, suggesting the account is shared or
	// compromised. Source carries the implicated platform.
	ContextAccountAnomaly ContextType = "account_anomaly"
)

// CalendarEvent is a collaborator-supplied calendar-like event: the input to
// context resolution and (via keyword classing) pattern trigger detection.
type CalendarEvent struct {
	UserID        string     `json:"user_id"`
	Title         string     `json:"title"`
	Start         time.Time  `json:"start"`
	End           *time.Time `json:"end,omitempty"`
	Source        string     `json:"source"`
	SourceEventID string     `json:"source_event_id"`
}

// Validate rejects malformed events. Rejection is scoped to the single
// event; callers continue the batch.
func (e *CalendarEvent) Validate() error {
	if e.UserID == "" {
		return ErrEmptyUserID
	}
	if e.Title == "" {
		return ErrEmptyTitle
	}
	if e.Start.IsZero() {
		return ErrZeroStart
	}
	if e.End != nil && e.End.Before(e.Start) {
		return ErrEndBeforeStart
	}
	if e.SourceEventID == "" {
		return ErrEmptySourceEventID
	}
	return nil
}

// LifeContext is an inferred or user-declared episodic period. Deduplicated
// by (UserID, ContextType, StartDate, SourceEventID); dismissal is a terminal
// soft-delete, never a physical removal.
type LifeContext struct {
	ID          string      `json:"id"`
	UserID      string      `json:"user_id"`
	ContextType ContextType `json:"context_type"`
	Title       string      `json:"title"`
	StartDate   time.Time   `json:"start_date"`

	// EndDate is nil for open-ended contexts.
	EndDate *time.Time `json:"end_date,omitempty"`

	Source        string  `json:"source"`
	SourceEventID string  `json:"source_event_id"`
	Confidence    float64 `json:"confidence"`
	Language      string  `json:"language"`
	IsDismissed   bool    `json:"is_dismissed"`

	// Version supports optimistic-concurrency upserts in the store.
	Version int64 `json:"version"`
}

// NewLifeContext creates a context with a generated ID.
func NewLifeContext(userID string, contextType ContextType, title string, start time.Time, end *time.Time, source, sourceEventID string, conf float64, language string) *LifeContext {
	if conf < 0 {
		conf = 0
	} else if conf > 1 {
		conf = 1
	}
	return &LifeContext{
		ID:            uuid.New().String(),
		UserID:        userID,
		ContextType:   contextType,
		Title:         title,
		StartDate:     start,
		EndDate:       end,
		Source:        source,
		SourceEventID: sourceEventID,
		Confidence:    conf,
		Language:      language,
	}
}

// DedupKey is the natural key a persistence layer deduplicates contexts on.
func (c *LifeContext) DedupKey() string {
	return fmt.Sprintf("%s|%s|%s|%s", c.UserID, c.ContextType, c.StartDate.UTC().Format(time.RFC3339), c.SourceEventID)
}

// effectiveEnd treats open-ended contexts as ending at their start for gap
// arithmetic; the merged result stays open-ended.
func (c *LifeContext) effectiveEnd() time.Time {
	if c.EndDate != nil {
		return *c.EndDate
	}
	return c.StartDate
}

// ActiveAt reports whether the context covers the given instant. Open-ended
// contexts are active from their start onward. Dismissed contexts are never
// active.
func (c *LifeContext) ActiveAt(t time.Time) bool {
	if c.IsDismissed {
		return false
	}
	if t.Before(c.StartDate) {
		return false
	}
	return c.EndDate == nil || !t.After(*c.EndDate)
}

// DurationDays is the context span in days; zero for open-ended contexts.
func (c *LifeContext) DurationDays() float64 {
	if c.EndDate == nil {
		return 0
	}
	return c.EndDate.Sub(c.StartDate).Hours() / 24
}
