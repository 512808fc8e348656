package utils

import (
	"github.com/google/uuid"
)

// NewTicketID returns a globally unique ticket identifier. UUIDv4 strings
// double as the deterministic tie-break for tickets that share a join
// timestamp (lexical order).
func NewTicketID() string {
	return uuid.New().String()
}

// NewNotificationID returns an identifier for a notification log entry.
func NewNotificationID() string {
	return uuid.New().String()
}
