package patterns

import "sort"

// Similarity weights and thresholds. The rule is deliberately a fixed,
// additive heuristic rather than a learned embedding: its outputs must be
// auditable to end users.
const (
	similarityTypeWeight     = 40
	similarityPlatformWeight = 30
	similarityOffsetWeight   = 30

	// similarityOffsetTolerance is the max offset delta, in minutes, that
	// still counts as "same timing".
	similarityOffsetTolerance = 10

	// SimilarityThreshold is the minimum score for a candidate to be
	// reported.
	SimilarityThreshold = 60

	// SimilarityMinConfidence is the minimum pattern confidence for a
	// candidate to be considered at all.
	SimilarityMinConfidence = 60
)

// SimilarityScore computes the weighted-feature similarity between two
// patterns. The function is symmetric; a pattern compared with itself
// scores 100.
func SimilarityScore(a, b *BehavioralPattern) float64 {
	score := 0.0
	if a.PatternType == b.PatternType {
		score += similarityTypeWeight
	}
	if a.ResponsePlatform == b.ResponsePlatform {
		score += similarityPlatformWeight
	}
	delta := a.TimeOffsetMinutes - b.TimeOffsetMinutes
	if delta < 0 {
		delta = -delta
	}
	if delta <= similarityOffsetTolerance {
		score += similarityOffsetWeight
	}
	return score
}

// SimilarMatch is one similarity result.
type SimilarMatch struct {
	Pattern *BehavioralPattern `json:"pattern"`
	Score   float64            `json:"score"`
}

// FindSimilar scores every candidate against the reference and returns
// matches at or above the threshold, ordered by score descending and
// deduplicated to the best-scoring pattern per distinct user — the output is
// a population-level view, so one prolific user must not crowd out the rest.
//
// Candidates must be Active, not dismissed, have confidence >=
// SimilarityMinConfidence, and belong to other patterns (the reference
// itself is skipped). limit <= 0 means no limit.
func FindSimilar(ref *BehavioralPattern, candidates []*BehavioralPattern, limit int) []SimilarMatch {
	bestPerUser := make(map[string]SimilarMatch)
	for _, c := range candidates {
		if c.ID == ref.ID {
			continue
		}
		if !c.IsActive || c.IsDismissed || c.ConfidenceScore < SimilarityMinConfidence {
			continue
		}
		score := SimilarityScore(ref, c)
		if score < SimilarityThreshold {
			continue
		}
		if current, ok := bestPerUser[c.UserID]; !ok || score > current.Score {
			bestPerUser[c.UserID] = SimilarMatch{Pattern: c, Score: score}
		}
	}

	matches := make([]SimilarMatch, 0, len(bestPerUser))
	for _, m := range bestPerUser {
		matches = append(matches, m)
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score == matches[j].Score {
			return matches[i].Pattern.ID < matches[j].Pattern.ID
		}
		return matches[i].Score > matches[j].Score
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}
