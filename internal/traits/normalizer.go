package traits

import (
	"math"
	"sort"
	"time"

	"github.com/fyrsmithlabs/insightd/internal/confidence"
)

// SourceType records what kind of evidence produced a trait score.
type SourceType string

const (
	SourceBehavioral SourceType = "behavioral"
	SourceSelfReport SourceType = "self-report"
	SourceHybrid     SourceType = "hybrid"
)

// ConfidenceInterval bounds a T-score estimate and carries the completeness
// confidence (0-100) that produced it.
type ConfidenceInterval struct {
	Lower      float64 `json:"lower"`
	Upper      float64 `json:"upper"`
	Confidence float64 `json:"confidence"`
}

// TraitScore is a population-normalized trait estimate for one user and one
// (dimension, facet). Recomputed atomically whenever new evidence affecting
// the dimension arrives; never partially written.
type TraitScore struct {
	UserID     string             `json:"user_id"`
	Dimension  Dimension          `json:"dimension"`
	Facet      Facet              `json:"facet,omitempty"`
	RawScore   float64            `json:"raw_score"`
	TScore     float64            `json:"t_score"`
	Percentile float64            `json:"percentile"`
	Interval   ConfidenceInterval `json:"confidence_interval"`
	SourceType SourceType         `json:"source_type"`
	SampleSize int                `json:"sample_size"`
	ComputedAt time.Time          `json:"computed_at"`

	// Version supports optimistic-concurrency upserts in the store.
	Version int64 `json:"version"`
}

// Normalizer converts raw aggregated scores into population-relative T-scores
// and percentiles using a norm table.
type Normalizer struct {
	norms *NormTable
}

// NewNormalizer creates a normalizer over the given norm table.
func NewNormalizer(norms *NormTable) *Normalizer {
	return &Normalizer{norms: norms}
}

// Normalize converts a raw score into a T-score and percentile for the given
// key. A missing norm row is a hard error; no default norm is ever
// substituted. Both outputs are clamped to [0, 100].
func (n *Normalizer) Normalize(d Dimension, f Facet, schemaVersion string, raw float64) (tScore, percentile float64, err error) {
	norm, err := n.norms.Lookup(d, f, schemaVersion)
	if err != nil {
		return 0, 0, err
	}

	tScore = confidence.Clamp(50+10*(raw-norm.Mean)/norm.StdDev, 0, 100)

	if len(norm.PercentileTable) > 0 {
		percentile = lookupPercentile(norm.PercentileTable, raw)
	} else {
		// Percentile from the standard normal CDF of the T-score's
		// z-equivalent.
		z := (tScore - 50) / 10
		percentile = confidence.Clamp(normalCDF(z)*100, 0, 100)
	}
	return tScore, percentile, nil
}

// Score assembles a full TraitScore: normalization plus a completeness-based
// confidence interval. sampleSize is the number of evidence items behind the
// raw score, sourceCount the number of distinct platforms, daysObserved the
// evidence collection span.
func (n *Normalizer) Score(userID string, d Dimension, f Facet, schemaVersion string, raw float64, sampleSize, sourceCount int, daysObserved float64, source SourceType) (*TraitScore, error) {
	tScore, percentile, err := n.Normalize(d, f, schemaVersion, raw)
	if err != nil {
		return nil, err
	}

	// Completeness confidence reuses the shared primitive: evidence items
	// as occurrences, source diversity as the consistency component.
	diversity := confidence.Clamp(float64(sourceCount)*25, 0, 100)
	conf := confidence.Score(sampleSize, diversity, daysObserved)

	// Interval narrows as evidence accumulates: ±1.96 T-score units per
	// standard error over the item count.
	margin := 1.96 * 10 / math.Sqrt(math.Max(1, float64(sampleSize)))
	interval := ConfidenceInterval{
		Lower:      confidence.Clamp(tScore-margin, 0, 100),
		Upper:      confidence.Clamp(tScore+margin, 0, 100),
		Confidence: conf,
	}

	return &TraitScore{
		UserID:     userID,
		Dimension:  d,
		Facet:      f,
		RawScore:   raw,
		TScore:     tScore,
		Percentile: percentile,
		Interval:   interval,
		SourceType: source,
		SampleSize: sampleSize,
		ComputedAt: time.Now().UTC(),
	}, nil
}

// lookupPercentile searches the sorted table for the nearest raw score.
// Ties between two equidistant entries resolve to the lower percentile.
func lookupPercentile(table []PercentileEntry, raw float64) float64 {
	i := sort.Search(len(table), func(i int) bool {
		return table[i].RawScore >= raw
	})

	switch {
	case i == 0:
		return clampPercentile(table[0].Percentile)
	case i == len(table):
		return clampPercentile(table[len(table)-1].Percentile)
	}

	below, above := table[i-1], table[i]
	distBelow := raw - below.RawScore
	distAbove := above.RawScore - raw

	switch {
	case distBelow < distAbove:
		return clampPercentile(below.Percentile)
	case distAbove < distBelow:
		return clampPercentile(above.Percentile)
	default:
		return clampPercentile(math.Min(below.Percentile, above.Percentile))
	}
}

func clampPercentile(p float64) float64 {
	return confidence.Clamp(p, 0, 100)
}

// normalCDF is the standard normal cumulative distribution function.
func normalCDF(z float64) float64 {
	return 0.5 * (1 + math.Erf(z/math.Sqrt2))
}
