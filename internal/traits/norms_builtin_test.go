package traits

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinNormTable_CoversEveryDimension(t *testing.T) {
	table, err := BuiltinNormTable()
	require.NoError(t, err)
	require.Equal(t, len(Dimensions()), table.Len())

	for _, d := range Dimensions() {
		norm, err := table.Lookup(d, DimensionLevel, BuiltinSchemaVersion)
		require.NoError(t, err, "dimension %s", d)
		assert.Positive(t, norm.StdDev)
		assert.Positive(t, norm.SampleSize)
		assert.Empty(t, norm.PercentileTable)
	}
}

func TestLoadNormsFile_FileRowsWin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "norms.json")
	content := `[
		{"dimension": "openness", "schema_version": "v1", "mean": 0.5, "stddev": 0.1, "sample_size": 300},
		{"dimension": "openness", "facet": "ideas", "schema_version": "v1", "mean": 0.2, "stddev": 0.3, "sample_size": 300}
	]`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	table, err := LoadNormsFile(path)
	require.NoError(t, err)

	// Overridden dimension-level row.
	norm, err := table.Lookup(Openness, DimensionLevel, BuiltinSchemaVersion)
	require.NoError(t, err)
	assert.Equal(t, 0.5, norm.Mean)
	assert.Equal(t, 0.1, norm.StdDev)

	// Added facet-level row.
	facetNorm, err := table.Lookup(Openness, "ideas", BuiltinSchemaVersion)
	require.NoError(t, err)
	assert.Equal(t, 0.2, facetNorm.Mean)

	// Untouched built-ins survive the merge.
	other, err := table.Lookup(Neuroticism, DimensionLevel, BuiltinSchemaVersion)
	require.NoError(t, err)
	assert.Equal(t, builtinNormParams[Neuroticism].mean, other.Mean)
}

func TestLoadNormsFile_Errors(t *testing.T) {
	_, err := LoadNormsFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o600))
	_, err = LoadNormsFile(bad)
	require.Error(t, err)

	// Invalid rows are rejected, not silently dropped.
	invalid := filepath.Join(t.TempDir(), "invalid.json")
	require.NoError(t, os.WriteFile(invalid, []byte(`[{"dimension": "openness", "schema_version": "v1", "mean": 0, "stddev": -1, "sample_size": 10}]`), 0o600))
	_, err = LoadNormsFile(invalid)
	require.Error(t, err)
}
