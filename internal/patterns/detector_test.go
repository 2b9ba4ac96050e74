package patterns

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, time.March, 2, 14, 0, 0, 0, time.UTC)

// presentationTimeline builds the canonical scenario: three "Presentation"
// trigger events over three weeks, each preceded by a calm playlist at
// -22, -18 and -20 minutes.
func presentationTimeline() ([]TriggerEvent, []ResponseActivity) {
	offsets := []time.Duration{-22 * time.Minute, -18 * time.Minute, -20 * time.Minute}
	days := []int{0, 10, 21}

	var triggers []TriggerEvent
	var responses []ResponseActivity
	for i := range days {
		at := base.AddDate(0, 0, days[i])
		triggers = append(triggers, TriggerEvent{
			ID:        fmt.Sprintf("trig-%d", i),
			UserID:    "user-1",
			Title:     "Presentation",
			Keyword:   "presentation",
			Timestamp: at,
		})
		responses = append(responses, ResponseActivity{
			ID:           fmt.Sprintf("resp-%d", i),
			UserID:       "user-1",
			Platform:     "spotify",
			ActivityType: ActivityMusicPlaylist,
			Data:         map[string]string{"playlist": "calm focus"},
			Timestamp:    at.Add(offsets[i]),
			Relevance:    0.9,
		})
	}
	return triggers, responses
}

func TestDetector_PresentationScenario(t *testing.T) {
	d := NewDetector(nil)
	triggers, responses := presentationTimeline()

	result := d.Detect("user-1", triggers, responses, nil, nil)

	require.Len(t, result.Created, 1)
	require.Empty(t, result.Updated)
	require.Len(t, result.Observations, 3)

	p := result.Created[0]
	assert.Equal(t, PatternBeforeEvent, p.PatternType)
	assert.Equal(t, "presentation", p.TriggerKeywords)
	assert.Equal(t, "spotify", p.ResponsePlatform)
	assert.Equal(t, ActivityMusicPlaylist, p.ResponseType)
	assert.Equal(t, 3, p.OccurrenceCount)
	assert.Equal(t, -20, p.TimeOffsetMinutes)
	assert.InDelta(t, 100, p.ConsistencyRate, 0.0001)
	// occurrences 3 -> 12, consistency 100 -> 40, 21 days -> 10.5
	assert.InDelta(t, 62.5, p.ConfidenceScore, 0.0001)
	assert.True(t, p.IsActive)
	assert.Equal(t, base, p.FirstObservedAt)
	assert.Equal(t, base.AddDate(0, 0, 21), p.LastObservedAt)

	for _, obs := range result.Observations {
		assert.Equal(t, p.ID, obs.PatternID)
		assert.GreaterOrEqual(t, obs.MatchStrength, 0.0)
		assert.LessOrEqual(t, obs.MatchStrength, 100.0)
	}
}

func TestDetector_RedetectionIsIdempotent(t *testing.T) {
	d := NewDetector(nil)
	triggers, responses := presentationTimeline()

	first := d.Detect("user-1", triggers, responses, nil, nil)
	require.Len(t, first.Created, 1)

	// Re-running over the same timeline with the persisted state must not
	// create or update anything.
	second := d.Detect("user-1", triggers, responses, first.Created, first.Observations)
	assert.Empty(t, second.Created)
	assert.Empty(t, second.Updated)
	assert.Empty(t, second.Observations)
}

func TestDetector_NewObservationUpdatesExistingPattern(t *testing.T) {
	d := NewDetector(nil)
	triggers, responses := presentationTimeline()
	first := d.Detect("user-1", triggers, responses, nil, nil)
	require.Len(t, first.Created, 1)

	at := base.AddDate(0, 0, 28)
	triggers = append(triggers, TriggerEvent{
		ID: "trig-3", UserID: "user-1", Title: "Q3 presentation", Keyword: "presentation", Timestamp: at,
	})
	responses = append(responses, ResponseActivity{
		ID: "resp-3", UserID: "user-1", Platform: "spotify",
		ActivityType: ActivityMusicPlaylist,
		Data:         map[string]string{"playlist": "calm focus"},
		Timestamp:    at.Add(-19 * time.Minute),
	})

	second := d.Detect("user-1", triggers, responses, first.Created, first.Observations)
	require.Empty(t, second.Created)
	require.Len(t, second.Updated, 1)
	require.Len(t, second.Observations, 1)

	p := second.Updated[0]
	assert.Equal(t, 4, p.OccurrenceCount)
	assert.Equal(t, base.AddDate(0, 0, 28), p.LastObservedAt)
	assert.Greater(t, p.ConfidenceScore, first.Created[0].ConfidenceScore)
	assert.True(t, p.IsActive)
}

func TestDetector_SingleCoOccurrenceStaysCandidate(t *testing.T) {
	d := NewDetector(nil)
	triggers, responses := presentationTimeline()

	result := d.Detect("user-1", triggers[:1], responses[:1], nil, nil)
	assert.Empty(t, result.Created)
	assert.Empty(t, result.Observations)
}

func TestDetector_OffsetOutsidePairingBoundIgnored(t *testing.T) {
	d := NewDetector(nil)
	triggers, _ := presentationTimeline()

	// Response five hours before the trigger: outside DefaultMaxOffset.
	responses := []ResponseActivity{{
		ID: "resp-far", UserID: "user-1", Platform: "spotify",
		ActivityType: ActivityMusicPlaylist,
		Data:         map[string]string{"playlist": "calm focus"},
		Timestamp:    triggers[0].Timestamp.Add(-5 * time.Hour),
	}}

	result := d.Detect("user-1", triggers, responses, nil, nil)
	assert.Empty(t, result.Created)
}

func TestDetector_BeforeAndAfterAreDistinctPatterns(t *testing.T) {
	d := NewDetector(nil)

	var triggers []TriggerEvent
	var responses []ResponseActivity
	for i := 0; i < 2; i++ {
		at := base.AddDate(0, 0, i*7)
		triggers = append(triggers, TriggerEvent{
			ID: fmt.Sprintf("t-%d", i), UserID: "u", Keyword: "workout trigger", Timestamp: at,
		})
		responses = append(responses,
			ResponseActivity{
				ID: fmt.Sprintf("r-before-%d", i), UserID: "u", Platform: "spotify",
				ActivityType: ActivityMusicPlaylist, Data: map[string]string{"playlist": "hype"},
				Timestamp: at.Add(-30 * time.Minute),
			},
			ResponseActivity{
				ID: fmt.Sprintf("r-after-%d", i), UserID: "u", Platform: "spotify",
				ActivityType: ActivityMusicPlaylist, Data: map[string]string{"playlist": "cooldown"},
				Timestamp: at.Add(45 * time.Minute),
			})
	}

	result := d.Detect("u", triggers, responses, nil, nil)
	require.Len(t, result.Created, 2)

	types := map[PatternType]bool{}
	for _, p := range result.Created {
		types[p.PatternType] = true
	}
	assert.True(t, types[PatternBeforeEvent])
	assert.True(t, types[PatternAfterEvent])
}

func TestDetector_ConsistencyCountsEligibleTriggers(t *testing.T) {
	d := NewDetector(nil)
	triggers, responses := presentationTimeline()

	// A fourth presentation inside the observed span with no response:
	// eligible 4, matched 3.
	triggers = append(triggers, TriggerEvent{
		ID: "trig-unmatched", UserID: "user-1", Keyword: "presentation",
		Timestamp: base.AddDate(0, 0, 14),
	})

	result := d.Detect("user-1", triggers, responses, nil, nil)
	require.Len(t, result.Created, 1)
	assert.InDelta(t, 75, result.Created[0].ConsistencyRate, 0.0001)
}

func TestDetector_MarkDormantAndReactivate(t *testing.T) {
	d := NewDetector(nil)
	triggers, responses := presentationTimeline()
	result := d.Detect("user-1", triggers, responses, nil, nil)
	require.Len(t, result.Created, 1)
	p := result.Created[0]

	// Well past the staleness window: dormant.
	now := p.LastObservedAt.Add(DefaultStalenessWindow + time.Hour)
	changed := d.MarkDormant([]*BehavioralPattern{p}, now)
	require.Len(t, changed, 1)
	assert.False(t, changed[0].IsActive)

	// Inside the window: untouched.
	assert.Empty(t, d.MarkDormant([]*BehavioralPattern{p}, p.LastObservedAt.Add(time.Hour)))

	// A new matching observation reactivates the dormant pattern.
	dormant := changed[0]
	at := now.Add(24 * time.Hour)
	triggers = append(triggers, TriggerEvent{
		ID: "trig-return", UserID: "user-1", Keyword: "presentation", Timestamp: at,
	})
	responses = append(responses, ResponseActivity{
		ID: "resp-return", UserID: "user-1", Platform: "spotify",
		ActivityType: ActivityMusicPlaylist, Data: map[string]string{"playlist": "calm focus"},
		Timestamp: at.Add(-21 * time.Minute),
	})
	revived := d.Detect("user-1", triggers, responses, []*BehavioralPattern{dormant}, result.Observations)
	require.Len(t, revived.Updated, 1)
	assert.True(t, revived.Updated[0].IsActive)
}

func TestClassifyTrigger(t *testing.T) {
	tests := []struct {
		title string
		want  string
		ok    bool
	}{
		{"Q3 board presentation", "presentation", true},
		{"Keynote dry-run", "presentation", true},
		{"Final interview with ACME", "interview", true},
		{"Project deadline", "deadline", true},
		{"Weekly standup", "meeting", true},
		{"Flight to Lisbon", "flight", true},
		{"Dentist appointment", "medical", true},
		{"Lunch with Ana", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			got, ok := ClassifyTrigger(tt.title)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResponseActivity_ValidateVariantSchema(t *testing.T) {
	valid := ResponseActivity{
		ID: "r", UserID: "u", Platform: "spotify",
		ActivityType: ActivityMusicPlaylist,
		Data:         map[string]string{"playlist": "calm"},
		Timestamp:    base,
	}
	require.NoError(t, valid.Validate())

	missing := valid
	missing.Data = map[string]string{}
	assert.Error(t, missing.Validate())

	unknown := valid
	unknown.ActivityType = "doomscrolling"
	assert.ErrorIs(t, unknown.Validate(), ErrUnknownActivity)

	clamped := valid
	clamped.Relevance = 3
	require.NoError(t, clamped.Validate())
	assert.Equal(t, 1.0, clamped.Relevance)
}
