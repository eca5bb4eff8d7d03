// Package profile extracts structured user facts from free-form context
// text. Extraction is best-effort pattern matching: a category that does not
// match simply stays empty, it is never an error.
package profile

import (
	"regexp"
	"strings"

	"companion-agent/internal/domain"
)

// Each category carries an ordered pattern list; the first pattern that
// matches wins and later patterns are not consulted.
var (
	namePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bname is\s+([^.,!?\n]+)`),
		regexp.MustCompile(`(?i)\bmy name's\s+([^.,!?\n]+)`),
		regexp.MustCompile(`(?i)\bcall me\s+([^.,!?\n]+)`),
		// Capitalization required here so "I am a nurse" does not become a name.
		regexp.MustCompile(`\b[Ii] am\s+([A-Z][a-z]+)\b`),
		regexp.MustCompile(`\b[Ii]'m\s+([A-Z][a-z]+)\b`),
	}
	locationPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bi live in\s+([^.,!?\n]+)`),
		regexp.MustCompile(`(?i)\blocated in\s+([^.,!?\n]+)`),
		regexp.MustCompile(`(?i)\bbased in\s+([^.,!?\n]+)`),
		regexp.MustCompile(`(?i)\bi'?m from\s+([^.,!?\n]+)`),
	}
	interestsPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\binterested in\s+([^.!?\n]+)`),
		regexp.MustCompile(`(?i)\bmy (?:hobbies|interests) (?:are|include)\s+([^.!?\n]+)`),
		regexp.MustCompile(`(?i)\bi (?:enjoy|love|like)\s+([^.!?\n]+)`),
	}
	professionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bi work as\s+([^.,!?\n]+)`),
		regexp.MustCompile(`(?i)\bmy (?:profession|job) is\s+([^.,!?\n]+)`),
		regexp.MustCompile(`(?i)\bi work at\s+([^.,!?\n]+)`),
		regexp.MustCompile(`(?i)\bi(?:'m| am) an?\s+([^.,!?\n]+)`),
	}
	petsPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:dog|cat|pet) named\s+([^.,!?\n]+)`),
		regexp.MustCompile(`(?i)\bi have (?:a|an|two|three)?\s*([^.,!?\n]*\b(?:dog|cat|pet|bird|fish|hamster|rabbit)s?\b[^.,!?\n]*)`),
		regexp.MustCompile(`(?i)\bmy pets? (?:is|are)\s+([^.,!?\n]+)`),
	}
)

// Extract pulls known profile facts out of free text. Values are reproduced
// verbatim apart from surrounding whitespace.
func Extract(text string) domain.ProfileFacts {
	if strings.TrimSpace(text) == "" {
		return domain.ProfileFacts{}
	}
	return domain.ProfileFacts{
		Name:       firstMatch(namePatterns, text),
		Location:   firstMatch(locationPatterns, text),
		Interests:  firstMatch(interestsPatterns, text),
		Profession: firstMatch(professionPatterns, text),
		Pets:       firstMatch(petsPatterns, text),
	}
}

func firstMatch(patterns []*regexp.Regexp, text string) string {
	for _, p := range patterns {
		if m := p.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}
