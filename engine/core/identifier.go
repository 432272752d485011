package core

import "github.com/google/uuid"

// NewID returns a fresh random identifier for actions, jobs and sessions.
func NewID() uuid.UUID {
	return uuid.New()
}

// ShortID is the first block of an identifier, handy in log lines.
func ShortID(id uuid.UUID) string {
	return id.String()[:8]
}
