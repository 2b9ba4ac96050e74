package lifecontext

import (
	"sort"
	"time"
)

// MergeGap is the maximum gap between two spans of the same episodic class
// for them to be treated as a single real-world episode.
const MergeGap = 24 * time.Hour

// Merge collapses adjacent or overlapping contexts of the same user and
// type into single spans, preventing one real-world episode from being
// counted as many short ones.
//
// Two spans merge when the gap between the end of one and the start of the
// next is at most MergeGap. The merged span is the union of both ranges and
// keeps the higher confidence; if either input is open-ended the result is
// open-ended. Dismissed contexts never participate in merging and pass
// through unchanged.
//
// Merging is idempotent: merging the merged result with either original
// yields the same merged result.
func Merge(contexts []*LifeContext) []*LifeContext {
	if len(contexts) <= 1 {
		return contexts
	}

	type groupKey struct {
		userID      string
		contextType ContextType
	}

	groups := make(map[groupKey][]*LifeContext)
	var passthrough []*LifeContext
	for _, c := range contexts {
		if c.IsDismissed {
			passthrough = append(passthrough, c)
			continue
		}
		key := groupKey{c.UserID, c.ContextType}
		groups[key] = append(groups[key], c)
	}

	var result []*LifeContext
	for _, group := range groups {
		sort.Slice(group, func(i, j int) bool {
			return group[i].StartDate.Before(group[j].StartDate)
		})

		current := cloneContext(group[0])
		for _, next := range group[1:] {
			if gapExceeded(current, next) {
				result = append(result, current)
				current = cloneContext(next)
				continue
			}
			mergeInto(current, next)
		}
		result = append(result, current)
	}

	result = append(result, passthrough...)
	sortByStart(result)
	return result
}

// gapExceeded reports whether next starts more than MergeGap after current
// ends. Open-ended current spans absorb anything starting at or after their
// start.
func gapExceeded(current, next *LifeContext) bool {
	if current.EndDate == nil {
		return false
	}
	return next.StartDate.Sub(*current.EndDate) > MergeGap
}

// mergeInto widens current to the union of both ranges, keeping the higher
// confidence and its title.
func mergeInto(current, next *LifeContext) {
	if next.Confidence > current.Confidence {
		current.Confidence = next.Confidence
		current.Title = next.Title
		current.Language = next.Language
	}
	if next.StartDate.Before(current.StartDate) {
		current.StartDate = next.StartDate
	}
	switch {
	case current.EndDate == nil || next.EndDate == nil:
		current.EndDate = nil
	case next.EndDate.After(*current.EndDate):
		end := *next.EndDate
		current.EndDate = &end
	}
}

func cloneContext(c *LifeContext) *LifeContext {
	clone := *c
	if c.EndDate != nil {
		end := *c.EndDate
		clone.EndDate = &end
	}
	return &clone
}

func sortByStart(contexts []*LifeContext) {
	sort.Slice(contexts, func(i, j int) bool {
		if contexts[i].StartDate.Equal(contexts[j].StartDate) {
			return contexts[i].ID < contexts[j].ID
		}
		return contexts[i].StartDate.Before(contexts[j].StartDate)
	})
}

func sortByConfidence(contexts []*LifeContext) {
	sort.Slice(contexts, func(i, j int) bool {
		if contexts[i].Confidence == contexts[j].Confidence {
			return contexts[i].ID < contexts[j].ID
		}
		return contexts[i].Confidence > contexts[j].Confidence
	})
}
