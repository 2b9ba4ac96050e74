package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/insightd/internal/evidence"
	"github.com/fyrsmithlabs/insightd/internal/lifecontext"
	"github.com/fyrsmithlabs/insightd/internal/patterns"
)

// Event kinds for the tagged timeline-event union.
const (
	EventKindCalendar = "calendar"
	EventKindActivity = "activity"
)

// Event is one timeline event in an ingestion batch. Exactly one of the
// payload fields must be set, selected by Kind.
type Event struct {
	Kind     string                     `json:"kind"`
	Calendar *lifecontext.CalendarEvent `json:"calendar,omitempty"`
	Activity *patterns.ResponseActivity `json:"activity,omitempty"`
}

// RejectedItem records one per-item ingestion failure. Rejection never
// aborts the batch.
type RejectedItem struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// IngestReport summarizes one ingestion batch.
type IngestReport struct {
	Accepted int            `json:"accepted"`
	Rejected []RejectedItem `json:"rejected,omitempty"`
}

// IngestEvidence validates and stores a batch of evidence items. Malformed
// items are rejected individually with a reason; valid items are upserted by
// natural key, so re-sending a batch is idempotent.
func (s *Service) IngestEvidence(ctx context.Context, items []evidence.Item) (*IngestReport, error) {
	report := &IngestReport{}
	accepted := make([]evidence.Item, 0, len(items))

	for i := range items {
		if err := items[i].Validate(); err != nil {
			IngestedItems.WithLabelValues("evidence", "rejected").Inc()
			report.Rejected = append(report.Rejected, RejectedItem{Index: i, Reason: err.Error()})
			continue
		}
		accepted = append(accepted, items[i])
	}

	if len(accepted) > 0 {
		if err := s.store.UpsertEvidence(ctx, accepted); err != nil {
			return nil, fmt.Errorf("storing evidence: %w", err)
		}
	}
	report.Accepted = len(accepted)
	IngestedItems.WithLabelValues("evidence", "accepted").Add(float64(len(accepted)))

	s.logger.Debug("evidence ingested",
		zap.Int("accepted", report.Accepted),
		zap.Int("rejected", len(report.Rejected)))
	return report, nil
}

// IngestEvents validates and stores a batch of timeline events. Each event
// is validated against its variant's schema; malformed events are rejected
// individually.
func (s *Service) IngestEvents(ctx context.Context, events []Event) (*IngestReport, error) {
	report := &IngestReport{}
	var calendar []lifecontext.CalendarEvent
	var activities []patterns.ResponseActivity

	for i := range events {
		e := &events[i]
		switch e.Kind {
		case EventKindCalendar:
			if e.Calendar == nil {
				s.rejectEvent(report, i, "calendar", "calendar payload missing")
				continue
			}
			if err := e.Calendar.Validate(); err != nil {
				s.rejectEvent(report, i, "calendar", err.Error())
				continue
			}
			calendar = append(calendar, *e.Calendar)
			IngestedItems.WithLabelValues("calendar", "accepted").Inc()
		case EventKindActivity:
			if e.Activity == nil {
				s.rejectEvent(report, i, "activity", "activity payload missing")
				continue
			}
			if err := e.Activity.Validate(); err != nil {
				s.rejectEvent(report, i, "activity", err.Error())
				continue
			}
			activities = append(activities, *e.Activity)
			IngestedItems.WithLabelValues("activity", "accepted").Inc()
		default:
			s.rejectEvent(report, i, "unknown", fmt.Sprintf("unknown event kind %q", e.Kind))
		}
	}

	if len(calendar) > 0 {
		if err := s.store.UpsertCalendarEvents(ctx, calendar); err != nil {
			return nil, fmt.Errorf("storing calendar events: %w", err)
		}
	}
	if len(activities) > 0 {
		if err := s.store.UpsertActivities(ctx, activities); err != nil {
			return nil, fmt.Errorf("storing activities: %w", err)
		}
	}

	report.Accepted = len(calendar) + len(activities)
	s.logger.Debug("events ingested",
		zap.Int("accepted", report.Accepted),
		zap.Int("rejected", len(report.Rejected)))
	return report, nil
}

func (s *Service) rejectEvent(report *IngestReport, index int, kind, reason string) {
	IngestedItems.WithLabelValues(kind, "rejected").Inc()
	report.Rejected = append(report.Rejected, RejectedItem{Index: index, Reason: reason})
}
