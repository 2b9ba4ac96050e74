package traits

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDimensions_FiveWithSixFacetsEach(t *testing.T) {
	dims := Dimensions()
	require.Len(t, dims, 5)

	for _, d := range dims {
		assert.True(t, d.Valid())
		assert.Len(t, Facets(d), 6, "dimension %s", d)
	}
}

func TestDimension_HasFacet(t *testing.T) {
	assert.True(t, Openness.HasFacet("ideas"))
	assert.True(t, Openness.HasFacet(DimensionLevel))
	assert.False(t, Openness.HasFacet("anxiety"))
	assert.False(t, Dimension("charisma").Valid())
	assert.False(t, Dimension("charisma").HasFacet(DimensionLevel))
}

func testNormTable(t *testing.T) *NormTable {
	t.Helper()
	table, err := NewNormTable([]PopulationNorm{
		{Dimension: Openness, SchemaVersion: "v1", Mean: 0.5, StdDev: 0.15, SampleSize: 1200},
		{Dimension: Openness, Facet: "ideas", SchemaVersion: "v1", Mean: 0.55, StdDev: 0.2, SampleSize: 1200},
		{
			Dimension: Neuroticism, SchemaVersion: "v1", Mean: 0.4, StdDev: 0.2, SampleSize: 900,
			PercentileTable: []PercentileEntry{
				{RawScore: 0.1, Percentile: 5},
				{RawScore: 0.3, Percentile: 30},
				{RawScore: 0.5, Percentile: 60},
				{RawScore: 0.7, Percentile: 85},
				{RawScore: 0.9, Percentile: 98},
			},
		},
	})
	require.NoError(t, err)
	return table
}

func TestNormTable_LookupMissingIsHardError(t *testing.T) {
	table := testNormTable(t)

	_, err := table.Lookup(Extraversion, DimensionLevel, "v1")
	require.Error(t, err)

	var notFound *NormNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, Extraversion, notFound.Dimension)

	// Same dimension, wrong schema version: still a hard error.
	_, err = table.Lookup(Openness, DimensionLevel, "v2")
	assert.Error(t, err)
}

func TestNormTable_RejectsInvalidRows(t *testing.T) {
	_, err := NewNormTable([]PopulationNorm{
		{Dimension: Openness, SchemaVersion: "v1", Mean: 0.5, StdDev: 0, SampleSize: 100},
	})
	assert.Error(t, err, "zero stddev")

	_, err = NewNormTable([]PopulationNorm{
		{Dimension: "charisma", SchemaVersion: "v1", Mean: 0.5, StdDev: 0.1, SampleSize: 100},
	})
	assert.Error(t, err, "unknown dimension")

	_, err = NewNormTable([]PopulationNorm{
		{Dimension: Openness, SchemaVersion: "v1", Mean: 0.5, StdDev: 0.1, SampleSize: 100},
		{Dimension: Openness, SchemaVersion: "v1", Mean: 0.6, StdDev: 0.1, SampleSize: 100},
	})
	assert.Error(t, err, "duplicate key")
}

func TestNormalizer_TScore(t *testing.T) {
	n := NewNormalizer(testNormTable(t))

	// Raw at the population mean maps to T=50, percentile 50.
	tScore, percentile, err := n.Normalize(Openness, DimensionLevel, "v1", 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 50, tScore, 0.0001)
	assert.InDelta(t, 50, percentile, 0.0001)

	// One standard deviation above the mean maps to T=60.
	tScore, percentile, err = n.Normalize(Openness, DimensionLevel, "v1", 0.65)
	require.NoError(t, err)
	assert.InDelta(t, 60, tScore, 0.0001)
	assert.InDelta(t, 84.13, percentile, 0.01)
}

func TestNormalizer_ClampingLaw(t *testing.T) {
	n := NewNormalizer(testNormTable(t))

	// Extreme raw inputs must always land inside [0,100].
	for _, raw := range []float64{-1e6, -10, -1, 0, 0.5, 1, 10, 1e6} {
		tScore, percentile, err := n.Normalize(Openness, DimensionLevel, "v1", raw)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, tScore, 0.0)
		assert.LessOrEqual(t, tScore, 100.0)
		assert.GreaterOrEqual(t, percentile, 0.0)
		assert.LessOrEqual(t, percentile, 100.0)
	}
}

func TestNormalizer_PercentileTable(t *testing.T) {
	n := NewNormalizer(testNormTable(t))

	tests := []struct {
		name string
		raw  float64
		want float64
	}{
		{"exact entry", 0.3, 30},
		{"below table clamps to first", -2, 5},
		{"above table clamps to last", 3, 98},
		{"nearest rank below", 0.32, 30},
		{"nearest rank above", 0.48, 60},
		{"tie resolves to lower percentile", 0.4, 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, percentile, err := n.Normalize(Neuroticism, DimensionLevel, "v1", tt.raw)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, percentile, 0.0001)
		})
	}
}

func TestNormalizer_Score(t *testing.T) {
	n := NewNormalizer(testNormTable(t))

	score, err := n.Score("user-1", Openness, DimensionLevel, "v1", 0.65, 12, 3, 30, SourceBehavioral)
	require.NoError(t, err)
	assert.InDelta(t, 60, score.TScore, 0.0001)
	assert.Equal(t, 12, score.SampleSize)
	assert.LessOrEqual(t, score.Interval.Lower, score.TScore)
	assert.GreaterOrEqual(t, score.Interval.Upper, score.TScore)
	assert.Greater(t, score.Interval.Confidence, 0.0)
	assert.LessOrEqual(t, score.Interval.Confidence, 100.0)

	_, err = n.Score("user-1", Openness, "nonexistent", "v1", 0.5, 1, 1, 1, SourceBehavioral)
	var notFound *NormNotFoundError
	require.True(t, errors.As(err, &notFound))
}
