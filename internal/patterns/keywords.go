package patterns

import "strings"

// triggerClasses maps a canonical trigger keyword to the title fragments
// that identify it. The canonical keyword is the class shared by all
// occurrences of the same kind of event, so that "Q3 board presentation"
// and "Presentation dry-run" count toward the same pattern.
var triggerClasses = []struct {
	keyword  string
	variants []string
}{
	{"presentation", []string{"presentation", "demo", "pitch", "keynote", "talk"}},
	{"interview", []string{"interview"}},
	{"exam", []string{"exam", "final test", "assessment", "certification"}},
	{"deadline", []string{"deadline", "due date", "submission"}},
	{"performance_review", []string{"performance review", "annual review", "appraisal"}},
	{"meeting", []string{"meeting", "standup", "sync", "1:1", "all hands"}},
	{"flight", []string{"flight", "departure", "boarding"}},
	{"medical", []string{"doctor", "dentist", "appointment", "checkup"}},
}

// ClassifyTrigger maps an event title to its canonical trigger keyword.
// More specific classes are checked before generic ones (a "presentation
// meeting" is a presentation). Returns false for unclassified titles; those
// events cannot anchor a pattern.
func ClassifyTrigger(title string) (string, bool) {
	normalized := strings.ToLower(strings.TrimSpace(title))
	if normalized == "" {
		return "", false
	}
	for _, class := range triggerClasses {
		for _, variant := range class.variants {
			if strings.Contains(normalized, variant) {
				return class.keyword, true
			}
		}
	}
	return "", false
}
