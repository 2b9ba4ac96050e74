// Package confidence provides the shared bounded confidence primitive used by
// trait scoring and pattern scoring.
//
// Confidence combines three independent, separately-capped components:
//   - Frequency: how often the behavior was observed (diminishing returns
//     after 10 occurrences)
//   - Consistency: how reliably the behavior repeats (direct pass-through)
//   - Duration: over how many days observations span (diminishing returns
//     after 40 days)
//
// Callers must not invent ad hoc confidence formulas elsewhere; every scored
// entity in insightd goes through Score so that confidence values are
// comparable across traits and patterns.
package confidence

// Component caps. Frequency and duration saturate so a single long-running or
// high-volume signal cannot push confidence to the ceiling on its own.
const (
	frequencyCap  = 40.0
	frequencyRate = 4.0

	consistencyWeight = 0.4

	durationCap  = 20.0
	durationRate = 0.5

	// Max is the upper bound of every confidence score.
	Max = 100.0
)

// Score computes a bounded confidence value in [0, Max].
//
// occurrences is the number of distinct observations, consistencyRate is a
// percentage in [0, 100], daysObserved is the span in days between the first
// and last observation. Negative inputs clamp to zero; consistencyRate above
// 100 clamps to 100. The result is monotone non-decreasing in each input.
func Score(occurrences int, consistencyRate float64, daysObserved float64) float64 {
	if occurrences < 0 {
		occurrences = 0
	}
	if consistencyRate < 0 {
		consistencyRate = 0
	} else if consistencyRate > 100 {
		consistencyRate = 100
	}
	if daysObserved < 0 {
		daysObserved = 0
	}

	frequency := float64(occurrences) * frequencyRate
	if frequency > frequencyCap {
		frequency = frequencyCap
	}

	consistency := consistencyRate * consistencyWeight

	duration := daysObserved * durationRate
	if duration > durationCap {
		duration = durationCap
	}

	total := frequency + consistency + duration
	if total > Max {
		return Max
	}
	return total
}

// Clamp bounds a value to [lo, hi]. Shared by every package that persists a
// ranged numeric field; no consumer may observe an out-of-range value.
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
