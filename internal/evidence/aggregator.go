package evidence

import (
	"fmt"
	"math"
	"time"

	"github.com/fyrsmithlabs/insightd/internal/traits"
	"go.uber.org/zap"
)

const (
	// itemContributionCap bounds a single item's signed contribution so one
	// outlier source cannot dominate the weighted average.
	itemContributionCap = 0.85

	// minEvidenceWeight is the minimum combined |correlation|×confidence
	// mass required before a dimension is scored at all. A single weak
	// signal stays "insufficient evidence" rather than becoming a score.
	minEvidenceWeight = 0.5

	// dampeningFactor down-weights items from a source implicated by an
	// active confound context. Evidence is reweighted, never dropped.
	dampeningFactor = 0.5
)

// InsufficientEvidenceError reports that a dimension could not be scored.
// Callers must surface this as "unknown", never as a neutral score of zero.
type InsufficientEvidenceError struct {
	Dimension   traits.Dimension
	ItemCount   int
	TotalWeight float64
}

func (e *InsufficientEvidenceError) Error() string {
	return fmt.Sprintf("insufficient evidence for %s: %d items, weight %.2f (need >= %.2f)",
		e.Dimension, e.ItemCount, e.TotalWeight, minEvidenceWeight)
}

// Aggregate is the raw, pre-normalization trait contribution for one
// dimension, plus the bookkeeping the normalizer needs for its confidence
// interval.
type Aggregate struct {
	Dimension   traits.Dimension `json:"dimension"`
	RawScore    float64          `json:"raw_score"`
	ItemCount   int              `json:"item_count"`
	SourceCount int              `json:"source_count"`
	TotalWeight float64          `json:"total_weight"`

	// DaysObserved is the span between the oldest and newest item.
	DaysObserved float64 `json:"days_observed"`

	// Annotations explain any reweighting applied during aggregation, for
	// end-user auditability.
	Annotations []string `json:"annotations,omitempty"`
}

// Aggregator folds a user's evidence items into one raw contribution per
// dimension using a confidence-weighted, sign-aware average.
type Aggregator struct {
	logger *zap.Logger
}

// NewAggregator creates an evidence aggregator.
func NewAggregator(logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{logger: logger}
}

// Aggregate computes the raw contribution for one dimension from the items
// that target it. dampenedSources maps source platform -> human-readable
// reason; items from those platforms are down-weighted by a fixed factor and
// the adjustment is recorded as an annotation.
//
// Zero items, or too little combined weight, returns
// *InsufficientEvidenceError: "no signal" must never be conflated with a
// neutral trait.
func (a *Aggregator) Aggregate(dimension traits.Dimension, items []Item, dampenedSources map[string]string) (*Aggregate, error) {
	var (
		numerator   float64
		denominator float64
		first, last time.Time
		sources     = make(map[string]struct{})
		annotated   = make(map[string]struct{})
		annotations []string
	)

	count := 0
	for i := range items {
		item := &items[i]
		if item.TargetDimension != dimension {
			continue
		}
		count++
		sources[item.SourcePlatform] = struct{}{}

		weight := item.Confidence
		if reason, dampened := dampenedSources[item.SourcePlatform]; dampened {
			weight *= dampeningFactor
			if _, seen := annotated[item.SourcePlatform]; !seen {
				annotated[item.SourcePlatform] = struct{}{}
				annotations = append(annotations, fmt.Sprintf(
					"evidence from %s down-weighted by %.0f%%: %s",
					item.SourcePlatform, (1-dampeningFactor)*100, reason))
			}
		}

		// Signed contribution, capped per item.
		signal := item.CorrelationStrength * item.NormalizedValue
		signal = math.Max(-itemContributionCap, math.Min(itemContributionCap, signal))

		numerator += signal * weight
		denominator += math.Min(math.Abs(item.CorrelationStrength), itemContributionCap) * weight

		if !item.ObservedAt.IsZero() {
			if first.IsZero() || item.ObservedAt.Before(first) {
				first = item.ObservedAt
			}
			if last.IsZero() || item.ObservedAt.After(last) {
				last = item.ObservedAt
			}
		}
	}

	if count == 0 || denominator < minEvidenceWeight {
		return nil, &InsufficientEvidenceError{
			Dimension:   dimension,
			ItemCount:   count,
			TotalWeight: denominator,
		}
	}

	raw := numerator / denominator

	var days float64
	if !first.IsZero() {
		days = last.Sub(first).Hours() / 24
	}

	a.logger.Debug("aggregated evidence",
		zap.String("dimension", string(dimension)),
		zap.Int("items", count),
		zap.Int("sources", len(sources)),
		zap.Float64("raw_score", raw),
		zap.Strings("annotations", annotations))

	return &Aggregate{
		Dimension:    dimension,
		RawScore:     raw,
		ItemCount:    count,
		SourceCount:  len(sources),
		TotalWeight:  denominator,
		DaysObserved: days,
		Annotations:  annotations,
	}, nil
}
