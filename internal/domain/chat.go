package domain

// Chat roles used across the transcript and provider integrations.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ChatTurn is the provider-agnostic chat message shape used by the handler
// and LLM integrations. Turns are append-only; a transcript is an ordered
// slice of turns.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ProfileFacts holds the values extracted from a free-text user context
// blob. Empty fields mean the category did not match.
type ProfileFacts struct {
	Name       string
	Location   string
	Interests  string
	Profession string
	Pets       string
}

// Empty reports whether no category matched.
func (f ProfileFacts) Empty() bool {
	return f == ProfileFacts{}
}
