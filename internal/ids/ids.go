package ids

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewUUIDv7 generates a time-ordered UUID v7.
func NewUUIDv7() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// NewConversationID returns a ULID string. ULIDs from one process are
// strictly increasing, so sorting them lexicographically sorts by creation.
func NewConversationID() string {
	return ulid.Make().String()
}
