package traits

// Dimension is one of the five top-level personality axes. The enumeration is
// fixed; dimensions are never created or destroyed at runtime.
type Dimension string

const (
	Openness          Dimension = "openness"
	Conscientiousness Dimension = "conscientiousness"
	Extraversion      Dimension = "extraversion"
	Agreeableness     Dimension = "agreeableness"
	Neuroticism       Dimension = "neuroticism"
)

// Facet is a sub-facet of a dimension. The empty facet denotes the
// dimension-level aggregate.
type Facet string

// DimensionLevel is the facet value for dimension-level scores and norms.
const DimensionLevel Facet = ""

// Dimensions returns the five dimensions in canonical order.
func Dimensions() []Dimension {
	return []Dimension{Openness, Conscientiousness, Extraversion, Agreeableness, Neuroticism}
}

// facetsByDimension holds the six NEO-style sub-facets per dimension.
var facetsByDimension = map[Dimension][]Facet{
	Openness: {
		"fantasy", "aesthetics", "feelings", "actions", "ideas", "values",
	},
	Conscientiousness: {
		"competence", "order", "dutifulness", "achievement_striving",
		"self_discipline", "deliberation",
	},
	Extraversion: {
		"warmth", "gregariousness", "assertiveness", "activity",
		"excitement_seeking", "positive_emotions",
	},
	Agreeableness: {
		"trust", "straightforwardness", "altruism", "compliance",
		"modesty", "tender_mindedness",
	},
	Neuroticism: {
		"anxiety", "angry_hostility", "depression", "self_consciousness",
		"impulsiveness", "vulnerability",
	},
}

// Facets returns the six sub-facets of a dimension in canonical order, or nil
// for an unknown dimension.
func Facets(d Dimension) []Facet {
	return facetsByDimension[d]
}

// Valid reports whether d is one of the five known dimensions.
func (d Dimension) Valid() bool {
	_, ok := facetsByDimension[d]
	return ok
}

// HasFacet reports whether f is a sub-facet of d. The dimension-level facet
// is always valid for a known dimension.
func (d Dimension) HasFacet(f Facet) bool {
	if !d.Valid() {
		return false
	}
	if f == DimensionLevel {
		return true
	}
	for _, known := range facetsByDimension[d] {
		if known == f {
			return true
		}
	}
	return false
}
