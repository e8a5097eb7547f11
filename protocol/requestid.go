package protocol

import "github.com/google/uuid"

// NewRequestID returns a time-ordered correlation id.
//
// The id is a UUIDv7: the first 48 bits hold the Unix time in milliseconds
// and the rest are random, formatted as 8-4-4-4-12 hex groups. Uniqueness
// rests on the random bits. The transport never parses the id back.
func NewRequestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
