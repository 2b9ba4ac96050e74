// Package evidence defines weighted behavioral evidence items and the
// confidence-weighted aggregation that turns them into raw trait
// contributions.
package evidence

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/insightd/internal/traits"
)

// Validation errors for evidence items.
var (
	ErrEmptyUserID         = errors.New("user ID cannot be empty")
	ErrEmptySourcePlatform = errors.New("source platform cannot be empty")
	ErrEmptyFeatureName    = errors.New("feature name cannot be empty")
)

// Item is a single weighted, source-attributed signal linking a behavioral
// feature to a trait dimension. Items are produced by collaborator
// extractors and upserted on their natural key; re-ingesting an identical
// item overwrites rather than duplicates.
type Item struct {
	UserID         string `json:"user_id"`
	SourcePlatform string `json:"source_platform"`
	FeatureName    string `json:"feature_name"`

	// NormalizedValue is the feature value scaled to [0, 1].
	NormalizedValue float64 `json:"normalized_value"`

	// RawValue is the unscaled source value, kept for explanations.
	RawValue float64 `json:"raw_value"`

	TargetDimension traits.Dimension `json:"target_dimension"`

	// CorrelationStrength is the research-backed correlation between the
	// feature and the target dimension, in [-1, 1]. Negative values mean
	// the feature suppresses the trait.
	CorrelationStrength float64 `json:"correlation_strength"`

	// Confidence is how much the extractor trusts this observation, in
	// [0, 1].
	Confidence float64 `json:"confidence"`

	Description string `json:"description,omitempty"`
	Citation    string `json:"citation,omitempty"`

	ObservedAt time.Time `json:"observed_at"`
}

// Key is the natural upsert key for an item.
type Key struct {
	UserID          string
	SourcePlatform  string
	FeatureName     string
	TargetDimension traits.Dimension
}

// Key returns the item's natural key.
func (i *Item) Key() Key {
	return Key{
		UserID:          i.UserID,
		SourcePlatform:  i.SourcePlatform,
		FeatureName:     i.FeatureName,
		TargetDimension: i.TargetDimension,
	}
}

// Validate checks the item and clamps its ranged fields into documented
// bounds. Unknown dimensions and empty identity fields are rejected.
func (i *Item) Validate() error {
	if i.UserID == "" {
		return ErrEmptyUserID
	}
	if i.SourcePlatform == "" {
		return ErrEmptySourcePlatform
	}
	if i.FeatureName == "" {
		return ErrEmptyFeatureName
	}
	if !i.TargetDimension.Valid() {
		return fmt.Errorf("unknown target dimension %q", i.TargetDimension)
	}

	// Clamp at the write boundary; consumers never observe out-of-range
	// values.
	i.NormalizedValue = clamp(i.NormalizedValue, 0, 1)
	i.CorrelationStrength = clamp(i.CorrelationStrength, -1, 1)
	i.Confidence = clamp(i.Confidence, 0, 1)
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
