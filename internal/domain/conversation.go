package domain

// TurnRecord is a single persisted role-tagged transcript entry.
type TurnRecord struct {
	PK             string
	SK             string
	ConversationID string
	Role           string
	Content        string
	Provider       string
	Status         string
	TTL            int64
}

// ConversationMeta stores aggregate conversation state.
type ConversationMeta struct {
	PK             string
	SK             string
	ConversationID string
	LastActivity   string
	LastProvider   string
	Turns          int
	TTL            int64
}
