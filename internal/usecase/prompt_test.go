package usecase

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"companion-agent/internal/domain"
	"companion-agent/internal/profile"
)

const testBasePrompt = "You are a friendly companion. Keep replies short."

func TestComposeSystemPrompt_AlwaysIncludesBaseInstructions(t *testing.T) {
	out := composeSystemPrompt(promptInput{basePrompt: testBasePrompt})
	require.Contains(t, out, testBasePrompt)
	require.NotContains(t, out, "User Details:")
}

func TestComposeSystemPrompt_UserDetailsOnlyWhenKnown(t *testing.T) {
	withFacts := composeSystemPrompt(promptInput{
		basePrompt: testBasePrompt,
		facts:      domain.ProfileFacts{Name: "Alice", Location: "Berlin"},
	})
	require.Contains(t, withFacts, "User Details:")
	require.Contains(t, withFacts, "- Name: Alice")
	require.Contains(t, withFacts, "- Location: Berlin")
	require.NotContains(t, withFacts, "- Pets:")

	without := composeSystemPrompt(promptInput{basePrompt: testBasePrompt})
	require.NotContains(t, without, "User Details:")
}

func TestComposeSystemPrompt_RawContextWhenNothingExtracted(t *testing.T) {
	out := composeSystemPrompt(promptInput{
		basePrompt: testBasePrompt,
		rawContext: "just someone who collects vinyl",
	})
	require.Contains(t, out, "User Details:")
	require.Contains(t, out, "just someone who collects vinyl")
}

func TestComposeSystemPrompt_DirectivesAccompanyDetails(t *testing.T) {
	out := composeSystemPrompt(promptInput{
		basePrompt: testBasePrompt,
		facts:      domain.ProfileFacts{Name: "Alice"},
	})
	require.Contains(t, out, "Never claim you do not know")

	without := composeSystemPrompt(promptInput{basePrompt: testBasePrompt})
	require.NotContains(t, without, "Never claim")
}

func TestComposeSystemPrompt_NameReminder(t *testing.T) {
	facts := profile.Extract("My name is Bella")
	out := composeSystemPrompt(promptInput{
		basePrompt: testBasePrompt,
		facts:      facts,
		transcript: []domain.ChatTurn{{Role: domain.RoleUser, Content: "What's my name?"}},
	})
	require.Contains(t, out, "the user's name is Bella")
}

func TestComposeSystemPrompt_NoReminderWithoutQuestion(t *testing.T) {
	out := composeSystemPrompt(promptInput{
		basePrompt: testBasePrompt,
		facts:      domain.ProfileFacts{Name: "Bella"},
		transcript: []domain.ChatTurn{{Role: domain.RoleUser, Content: "Tell me a joke"}},
	})
	require.NotContains(t, out, "Reminder:")
}

func TestComposeSystemPrompt_NoReminderWithoutName(t *testing.T) {
	out := composeSystemPrompt(promptInput{
		basePrompt: testBasePrompt,
		transcript: []domain.ChatTurn{{Role: domain.RoleUser, Content: "what is my name?"}},
	})
	require.NotContains(t, out, "Reminder:")
}

func TestComposeSystemPrompt_ReminderIgnoresAssistantTurns(t *testing.T) {
	out := composeSystemPrompt(promptInput{
		basePrompt: testBasePrompt,
		facts:      domain.ProfileFacts{Name: "Bella"},
		transcript: []domain.ChatTurn{{Role: domain.RoleAssistant, Content: "what is my name?"}},
	})
	require.NotContains(t, out, "Reminder:")
}

func TestPersonaDirectives(t *testing.T) {
	require.Equal(t, builtinPersonas["professional"], personaDirectives("professional", nil))
	require.Equal(t, builtinPersonas["playful"], personaDirectives(" Playful ", nil))
	require.Equal(t, builtinPersonas[defaultPersonality], personaDirectives("", nil))
	require.Equal(t, builtinPersonas[defaultPersonality], personaDirectives("no-such-persona", nil))

	overrides := map[string]string{"friendly": "Custom friendly directives."}
	require.Equal(t, "Custom friendly directives.", personaDirectives("friendly", overrides))
}

func TestComposeSystemPrompt_Deterministic(t *testing.T) {
	in := promptInput{
		basePrompt:  testBasePrompt,
		personality: "empathetic",
		facts:       domain.ProfileFacts{Name: "Alice", Pets: "a corgi named Biscuit"},
		transcript:  []domain.ChatTurn{{Role: domain.RoleUser, Content: "What's my name?"}},
	}
	require.Equal(t, composeSystemPrompt(in), composeSystemPrompt(in))
}

func TestComposeSystemPrompt_SectionOrder(t *testing.T) {
	out := composeSystemPrompt(promptInput{
		basePrompt: testBasePrompt,
		facts:      domain.ProfileFacts{Name: "Alice"},
	})
	base := strings.Index(out, testBasePrompt)
	details := strings.Index(out, "User Details:")
	require.True(t, base >= 0 && details > base)
}
