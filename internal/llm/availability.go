package llm

import "strings"

const primaryKeyMinLen = 20

// Credentials holds the raw API keys for both providers. Availability is
// judged from these strings alone; no network call is ever made here, so a
// provider that passes the check can still fail at call time.
type Credentials struct {
	PrimaryKey   string
	SecondaryKey string
}

// PrimaryAvailable reports whether the primary key looks usable: present,
// long enough, and carrying the expected prefix.
func (c Credentials) PrimaryAvailable() bool {
	key := strings.TrimSpace(c.PrimaryKey)
	return len(key) >= primaryKeyMinLen && strings.HasPrefix(key, "sk-")
}

// SecondaryAvailable reports whether the secondary key is present.
func (c Credentials) SecondaryAvailable() bool {
	return strings.TrimSpace(c.SecondaryKey) != ""
}
