package chronicle

import "github.com/google/uuid"

// UUIDFactory is the default [IdentifierFactory], producing time-sortable
// UUIDv7 values so that identifiers generated close together in time also
// sort close together lexically.
type UUIDFactory struct{}

// NewUUIDFactory returns an IdentifierFactory backed by uuid.NewV7.
func NewUUIDFactory() UUIDFactory {
	return UUIDFactory{}
}

// NewID returns a new UUIDv7 string. It falls back to a random UUIDv4 if
// the time-based generator fails, which only happens if the system clock
// is unreadable.
func (UUIDFactory) NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
