package traits

import (
	"encoding/json"
	"fmt"
	"os"
)

// BuiltinSchemaVersion identifies the norm rows shipped with the binary.
const BuiltinSchemaVersion = "v1"

// builtinNormParams holds the dimension-level reference statistics for raw
// aggregate scores (signed, confidence-weighted averages in roughly
// [-0.85, 0.85]). Behavioral populations skew slightly positive because most
// extracted features correlate positively with their target dimension.
var builtinNormParams = map[Dimension]struct {
	mean, stddev float64
}{
	Openness:          {mean: 0.18, stddev: 0.22},
	Conscientiousness: {mean: 0.12, stddev: 0.20},
	Extraversion:      {mean: 0.10, stddev: 0.25},
	Agreeableness:     {mean: 0.15, stddev: 0.19},
	Neuroticism:       {mean: 0.05, stddev: 0.24},
}

const builtinSampleSize = 12480

// BuiltinNorms returns the dimension-level norm rows for the built-in
// schema. Facet-level rows are not shipped; deployments that score facets
// load a norm file instead.
func BuiltinNorms() []PopulationNorm {
	norms := make([]PopulationNorm, 0, len(builtinNormParams))
	for _, d := range Dimensions() {
		p := builtinNormParams[d]
		norms = append(norms, PopulationNorm{
			Dimension:     d,
			Facet:         DimensionLevel,
			SchemaVersion: BuiltinSchemaVersion,
			Mean:          p.mean,
			StdDev:        p.stddev,
			SampleSize:    builtinSampleSize,
		})
	}
	return norms
}

// BuiltinNormTable builds the lookup table over the built-in rows.
func BuiltinNormTable() (*NormTable, error) {
	return NewNormTable(BuiltinNorms())
}

// LoadNormsFile reads norm rows from a JSON file and merges them with the
// built-in rows. File rows win on key collisions, so a deployment can
// override the shipped statistics or add facet-level and alternate-schema
// rows.
func LoadNormsFile(path string) (*NormTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading norms file: %w", err)
	}

	var fileNorms []PopulationNorm
	if err := json.Unmarshal(raw, &fileNorms); err != nil {
		return nil, fmt.Errorf("parsing norms file %s: %w", path, err)
	}

	merged := make([]PopulationNorm, 0, len(fileNorms)+len(builtinNormParams))
	overridden := make(map[normKey]bool, len(fileNorms))
	for _, n := range fileNorms {
		overridden[normKey{n.Dimension, n.Facet, n.SchemaVersion}] = true
		merged = append(merged, n)
	}
	for _, n := range BuiltinNorms() {
		if overridden[normKey{n.Dimension, n.Facet, n.SchemaVersion}] {
			continue
		}
		merged = append(merged, n)
	}
	return NewNormTable(merged)
}
