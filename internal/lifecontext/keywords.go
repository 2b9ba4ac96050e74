package lifecontext

import "strings"

// DefaultLanguage is the baseline language assumed when no dictionary
// matches.
const DefaultLanguage = "en"

// keywordEntry holds the keyword vocabulary for one context type in one
// language. Canonical is the exact phrase that earns the match boost;
// variants match anywhere in the title.
type keywordEntry struct {
	canonical string
	variants  []string
}

// dictionaries maps language -> context type -> vocabulary. Language order
// at match time follows languageOrder: the first language with any match
// wins.
var dictionaries = map[string]map[ContextType]keywordEntry{
	"en": {
		ContextVacation:   {canonical: "vacation", variants: []string{"vacation", "holiday trip", "annual leave", "time off", "ooo", "out of office", "pto"}},
		ContextTravel:     {canonical: "trip", variants: []string{"trip", "travel", "flight to", "roadtrip"}},
		ContextConference: {canonical: "conference", variants: []string{"conference", "summit", "symposium", "expo", "convention"}},
		ContextTraining:   {canonical: "training", variants: []string{"training", "workshop", "bootcamp", "course", "onboarding"}},
		ContextHoliday:    {canonical: "public holiday", variants: []string{"public holiday", "christmas", "new year", "easter", "thanksgiving"}},
	},
	"pt": {
		ContextVacation:   {canonical: "férias", variants: []string{"férias", "ferias", "folga"}},
		ContextTravel:     {canonical: "viagem", variants: []string{"viagem", "voo para"}},
		ContextConference: {canonical: "conferência", variants: []string{"conferência", "conferencia", "congresso"}},
		ContextTraining:   {canonical: "treinamento", variants: []string{"treinamento", "curso", "capacitação"}},
		ContextHoliday:    {canonical: "feriado", variants: []string{"feriado", "natal", "ano novo", "páscoa"}},
	},
	"es": {
		ContextVacation:   {canonical: "vacaciones", variants: []string{"vacaciones", "día libre"}},
		ContextTravel:     {canonical: "viaje", variants: []string{"viaje", "vuelo a"}},
		ContextConference: {canonical: "conferencia", variants: []string{"conferencia", "congreso", "cumbre"}},
		ContextTraining:   {canonical: "formación", variants: []string{"formación", "formacion", "curso", "taller"}},
		ContextHoliday:    {canonical: "festivo", variants: []string{"festivo", "navidad", "año nuevo", "semana santa"}},
	},
	"de": {
		ContextVacation:   {canonical: "urlaub", variants: []string{"urlaub", "ferien", "frei"}},
		ContextTravel:     {canonical: "reise", variants: []string{"reise", "flug nach", "dienstreise"}},
		ContextConference: {canonical: "konferenz", variants: []string{"konferenz", "tagung", "messe"}},
		ContextTraining:   {canonical: "schulung", variants: []string{"schulung", "fortbildung", "kurs", "seminar"}},
		ContextHoliday:    {canonical: "feiertag", variants: []string{"feiertag", "weihnachten", "neujahr", "ostern"}},
	},
	"fr": {
		ContextVacation:   {canonical: "vacances", variants: []string{"vacances", "congé", "congés"}},
		ContextTravel:     {canonical: "voyage", variants: []string{"voyage", "vol pour", "déplacement"}},
		ContextConference: {canonical: "conférence", variants: []string{"conférence", "congrès", "salon"}},
		ContextTraining:   {canonical: "formation", variants: []string{"formation", "stage", "atelier"}},
		ContextHoliday:    {canonical: "jour férié", variants: []string{"jour férié", "noël", "nouvel an", "pâques"}},
	},
}

// languageOrder fixes the language detection order. English first as the
// baseline; ties within a language resolve by contextTypeOrder.
var languageOrder = []string{"en", "pt", "es", "de", "fr"}

// contextTypeOrder fixes tie-breaking when multiple types match in the same
// language. More specific episodic types come before generic travel.
var contextTypeOrder = []ContextType{
	ContextVacation, ContextConference, ContextTraining, ContextHoliday, ContextTravel,
}

// match is a title classification result.
type match struct {
	contextType ContextType
	language    string
	exact       bool
}

// classifyTitle finds the first dictionary match for a title. The first
// matching language wins; within a language, contextTypeOrder decides.
// Returns false when no dictionary matches.
func classifyTitle(title string) (match, bool) {
	normalized := strings.ToLower(strings.TrimSpace(title))
	if normalized == "" {
		return match{}, false
	}

	for _, lang := range languageOrder {
		entries := dictionaries[lang]
		for _, ct := range contextTypeOrder {
			entry, ok := entries[ct]
			if !ok {
				continue
			}
			for _, variant := range entry.variants {
				if strings.Contains(normalized, variant) {
					return match{
						contextType: ct,
						language:    lang,
						exact:       normalized == entry.canonical,
					}, true
				}
			}
		}
	}
	return match{}, false
}
