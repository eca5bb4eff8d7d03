package usecase

import (
	"fmt"
	"regexp"
	"strings"

	"companion-agent/internal/domain"
)

// builtinPersonas are the tone directives for the named personalities.
// Parameter-store entries with the same name take precedence so tone can be
// tuned without a deploy.
var builtinPersonas = map[string]string{
	"friendly":     "Tone: warm, encouraging, and conversational. Use plain language and the occasional light touch of humor.",
	"professional": "Tone: precise and businesslike. Keep answers structured and free of filler.",
	"playful":      "Tone: upbeat and witty. Feel free to joke, but never at the user's expense.",
	"empathetic":   "Tone: calm and supportive. Acknowledge feelings before offering suggestions.",
}

const defaultPersonality = "friendly"

var nameQuestionRe = regexp.MustCompile(`(?i)\bwhat(?:'s| is) my name\b`)

// promptInput carries everything the composer needs. Identical inputs
// always produce identical output.
type promptInput struct {
	basePrompt  string
	personality string
	personas    map[string]string
	facts       domain.ProfileFacts
	rawContext  string
	transcript  []domain.ChatTurn
}

// composeSystemPrompt builds the single system message for a request: base
// instructions, personality directives, a User Details block when anything
// is known about the user, and a name reminder when the transcript asks for
// it.
func composeSystemPrompt(in promptInput) string {
	sections := []string{strings.TrimSpace(in.basePrompt)}

	if directives := personaDirectives(in.personality, in.personas); directives != "" {
		sections = append(sections, directives)
	}

	if details := userDetailsSection(in.facts, in.rawContext); details != "" {
		sections = append(sections, details, detailDirectives())
	}

	if transcriptAsksForName(in.transcript) {
		if name := knownName(in.facts); name != "" {
			sections = append(sections, fmt.Sprintf("Reminder: the user's name is %s. When they ask for their name, answer with it directly.", name))
		}
	}

	return strings.Join(sections, "\n\n")
}

func personaDirectives(personality string, personas map[string]string) string {
	name := strings.ToLower(strings.TrimSpace(personality))
	if name == "" {
		name = defaultPersonality
	}
	if p, ok := personas[name]; ok {
		return strings.TrimSpace(p)
	}
	if p, ok := builtinPersonas[name]; ok {
		return p
	}
	return builtinPersonas[defaultPersonality]
}

// userDetailsSection renders known facts, or the raw context verbatim when
// extraction found nothing. Returns "" when neither is present.
func userDetailsSection(facts domain.ProfileFacts, rawContext string) string {
	rawContext = strings.TrimSpace(rawContext)
	if facts.Empty() && rawContext == "" {
		return ""
	}

	lines := []string{"User Details:"}
	if facts.Empty() {
		lines = append(lines, "The user describes themselves as: "+rawContext)
	} else {
		for _, f := range []struct{ label, value string }{
			{"Name", facts.Name},
			{"Location", facts.Location},
			{"Interests", facts.Interests},
			{"Profession", facts.Profession},
			{"Pets", facts.Pets},
		} {
			if f.value != "" {
				lines = append(lines, fmt.Sprintf("- %s: %s", f.label, f.value))
			}
		}
	}
	return strings.Join(lines, "\n")
}

// detailDirectives are appended whenever a User Details block is present.
func detailDirectives() string {
	return strings.Join([]string{
		"1) Treat every detail listed above as known.",
		"2) Never claim you do not know or cannot remember any of those details.",
		"3) Refer to the details naturally; do not recite them unprompted.",
	}, "\n")
}

// knownName returns the extracted name, if any.
func knownName(facts domain.ProfileFacts) string {
	return strings.TrimSpace(facts.Name)
}

// transcriptAsksForName reports whether any user turn asks a
// "what is my name"-style question.
func transcriptAsksForName(transcript []domain.ChatTurn) bool {
	for _, turn := range transcript {
		if turn.Role == domain.RoleUser && nameQuestionRe.MatchString(turn.Content) {
			return true
		}
	}
	return false
}
