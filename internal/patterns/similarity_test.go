package patterns

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func similarityPattern(id, userID string, pt PatternType, platform string, offset int, conf float64) *BehavioralPattern {
	return &BehavioralPattern{
		ID:                id,
		UserID:            userID,
		PatternType:       pt,
		TriggerKeywords:   "presentation",
		ResponsePlatform:  platform,
		ResponseType:      ActivityMusicPlaylist,
		TimeOffsetMinutes: offset,
		ConfidenceScore:   conf,
		IsActive:          true,
	}
}

func TestSimilarityScore_SelfIsAlways100(t *testing.T) {
	p := similarityPattern("a", "u1", PatternBeforeEvent, "spotify", -20, 80)
	assert.Equal(t, 100.0, SimilarityScore(p, p))
}

func TestSimilarityScore_Symmetric(t *testing.T) {
	pairs := [][2]*BehavioralPattern{
		{
			similarityPattern("a", "u1", PatternBeforeEvent, "spotify", -20, 80),
			similarityPattern("b", "u2", PatternBeforeEvent, "netflix", -25, 70),
		},
		{
			similarityPattern("c", "u1", PatternAfterEvent, "spotify", 40, 80),
			similarityPattern("d", "u3", PatternBeforeEvent, "spotify", -20, 90),
		},
		{
			similarityPattern("e", "u2", PatternBeforeEvent, "youtube", -18, 65),
			similarityPattern("f", "u4", PatternBeforeEvent, "youtube", -12, 75),
		},
	}
	for i, pair := range pairs {
		assert.Equal(t, SimilarityScore(pair[0], pair[1]), SimilarityScore(pair[1], pair[0]), "pair %d", i)
	}
}

func TestSimilarityScore_Weights(t *testing.T) {
	ref := similarityPattern("ref", "u1", PatternBeforeEvent, "spotify", -20, 80)

	tests := []struct {
		name string
		cand *BehavioralPattern
		want float64
	}{
		{"all three match", similarityPattern("a", "u2", PatternBeforeEvent, "spotify", -15, 80), 100},
		{"type and platform", similarityPattern("b", "u2", PatternBeforeEvent, "spotify", -60, 80), 70},
		{"type and offset", similarityPattern("c", "u2", PatternBeforeEvent, "netflix", -22, 80), 70},
		{"platform and offset", similarityPattern("d", "u2", PatternAfterEvent, "spotify", -12, 80), 60},
		{"type only", similarityPattern("e", "u2", PatternBeforeEvent, "netflix", -90, 80), 40},
		{"nothing", similarityPattern("f", "u2", PatternAfterEvent, "netflix", 90, 80), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SimilarityScore(ref, tt.cand))
		})
	}
}

func TestFindSimilar_FiltersAndOrders(t *testing.T) {
	ref := similarityPattern("ref", "u1", PatternBeforeEvent, "spotify", -20, 80)

	candidates := []*BehavioralPattern{
		ref, // reference itself: skipped
		similarityPattern("exact", "u2", PatternBeforeEvent, "spotify", -20, 85),
		similarityPattern("close", "u3", PatternBeforeEvent, "spotify", -45, 70),
		similarityPattern("weak", "u4", PatternAfterEvent, "netflix", 60, 95),   // below threshold
		similarityPattern("lowconf", "u5", PatternBeforeEvent, "spotify", -20, 30), // below min confidence
	}
	dormant := similarityPattern("dormant", "u6", PatternBeforeEvent, "spotify", -20, 90)
	dormant.IsActive = false
	dismissed := similarityPattern("dismissed", "u7", PatternBeforeEvent, "spotify", -20, 90)
	dismissed.IsDismissed = true
	candidates = append(candidates, dormant, dismissed)

	matches := FindSimilar(ref, candidates, 10)
	require.Len(t, matches, 2)
	assert.Equal(t, "exact", matches[0].Pattern.ID)
	assert.Equal(t, 100.0, matches[0].Score)
	assert.Equal(t, "close", matches[1].Pattern.ID)
	assert.Equal(t, 70.0, matches[1].Score)
}

func TestFindSimilar_GroupsByDistinctUser(t *testing.T) {
	ref := similarityPattern("ref", "u1", PatternBeforeEvent, "spotify", -20, 80)

	// Two qualifying patterns from the same user: only the best survives.
	candidates := []*BehavioralPattern{
		similarityPattern("best", "u2", PatternBeforeEvent, "spotify", -20, 85),
		similarityPattern("worse", "u2", PatternBeforeEvent, "spotify", -50, 85),
		similarityPattern("other", "u3", PatternBeforeEvent, "spotify", -25, 70),
	}

	matches := FindSimilar(ref, candidates, 10)
	require.Len(t, matches, 2)
	users := map[string]bool{}
	for _, m := range matches {
		users[m.Pattern.UserID] = true
	}
	assert.True(t, users["u2"])
	assert.True(t, users["u3"])
	assert.Equal(t, "best", matches[0].Pattern.ID)
}

func TestFindSimilar_Limit(t *testing.T) {
	ref := similarityPattern("ref", "u1", PatternBeforeEvent, "spotify", -20, 80)
	var candidates []*BehavioralPattern
	for i := 0; i < 20; i++ {
		candidates = append(candidates,
			similarityPattern(fmt.Sprintf("p-%02d", i), fmt.Sprintf("u-%02d", i), PatternBeforeEvent, "spotify", -20, 80))
	}
	matches := FindSimilar(ref, candidates, 5)
	assert.Len(t, matches, 5)
}
