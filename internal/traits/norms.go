package traits

import (
	"fmt"
	"sort"
)

// PercentileEntry maps a raw score to its observed percentile in the
// reference population. Used for dimensions known to be non-normally
// distributed.
type PercentileEntry struct {
	RawScore   float64 `json:"raw_score"`
	Percentile float64 `json:"percentile"`
}

// PopulationNorm is read-only reference data for one (dimension, facet,
// schema version) key. Loaded once; never mutated by inference.
type PopulationNorm struct {
	Dimension     Dimension `json:"dimension"`
	Facet         Facet     `json:"facet,omitempty"`
	SchemaVersion string    `json:"schema_version"`

	Mean       float64 `json:"mean"`
	StdDev     float64 `json:"stddev"`
	SampleSize int     `json:"sample_size"`

	// PercentileTable, when present, overrides the normal-CDF percentile
	// derivation. Entries must be sorted ascending by RawScore.
	PercentileTable []PercentileEntry `json:"percentile_table,omitempty"`
}

// Validate checks that the norm row is usable for normalization.
func (n *PopulationNorm) Validate() error {
	if !n.Dimension.Valid() {
		return fmt.Errorf("unknown dimension %q", n.Dimension)
	}
	if !n.Dimension.HasFacet(n.Facet) {
		return fmt.Errorf("dimension %q has no facet %q", n.Dimension, n.Facet)
	}
	if n.SchemaVersion == "" {
		return fmt.Errorf("schema version cannot be empty")
	}
	if n.StdDev <= 0 {
		return fmt.Errorf("stddev must be positive, got %v", n.StdDev)
	}
	if n.SampleSize <= 0 {
		return fmt.Errorf("sample size must be positive, got %d", n.SampleSize)
	}
	for i := 1; i < len(n.PercentileTable); i++ {
		if n.PercentileTable[i].RawScore < n.PercentileTable[i-1].RawScore {
			return fmt.Errorf("percentile table must be sorted ascending by raw score")
		}
	}
	return nil
}

// NormNotFoundError reports a missing norm row. Normalization never proceeds
// against a default or guessed norm; this error is fatal to the specific
// computation that needed the row.
type NormNotFoundError struct {
	Dimension     Dimension
	Facet         Facet
	SchemaVersion string
}

func (e *NormNotFoundError) Error() string {
	if e.Facet == DimensionLevel {
		return fmt.Sprintf("no population norm for %s (schema %s)", e.Dimension, e.SchemaVersion)
	}
	return fmt.Sprintf("no population norm for %s/%s (schema %s)", e.Dimension, e.Facet, e.SchemaVersion)
}

type normKey struct {
	dimension Dimension
	facet     Facet
	schema    string
}

// NormTable is an immutable lookup table of population norms keyed by
// (dimension, facet, schema version).
type NormTable struct {
	norms map[normKey]*PopulationNorm
}

// NewNormTable builds a table from norm rows. Duplicate keys and invalid rows
// are rejected.
func NewNormTable(norms []PopulationNorm) (*NormTable, error) {
	table := &NormTable{norms: make(map[normKey]*PopulationNorm, len(norms))}
	for i := range norms {
		n := norms[i]
		if err := n.Validate(); err != nil {
			return nil, fmt.Errorf("invalid norm %s/%s: %w", n.Dimension, n.Facet, err)
		}
		key := normKey{n.Dimension, n.Facet, n.SchemaVersion}
		if _, exists := table.norms[key]; exists {
			return nil, fmt.Errorf("duplicate norm for %s/%s schema %s", n.Dimension, n.Facet, n.SchemaVersion)
		}
		// Keep the percentile table sorted for binary search even if the
		// caller supplied it pre-sorted; Validate already enforced order.
		sort.Slice(n.PercentileTable, func(a, b int) bool {
			return n.PercentileTable[a].RawScore < n.PercentileTable[b].RawScore
		})
		table.norms[key] = &n
	}
	return table, nil
}

// Lookup returns the norm row for the key, or a NormNotFoundError.
func (t *NormTable) Lookup(d Dimension, f Facet, schemaVersion string) (*PopulationNorm, error) {
	if n, ok := t.norms[normKey{d, f, schemaVersion}]; ok {
		return n, nil
	}
	return nil, &NormNotFoundError{Dimension: d, Facet: f, SchemaVersion: schemaVersion}
}

// Len returns the number of norm rows.
func (t *NormTable) Len() int {
	return len(t.norms)
}
