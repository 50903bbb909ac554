package model

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// Ticket is the opaque, immutable identifier for a pipeline run: a
// 128-bit UUID, hex-encoded with no dashes.
type Ticket string

// NewTicket generates a fresh, never-reused ticket.
func NewTicket() Ticket {
	id := uuid.New()
	return Ticket(hex.EncodeToString(id[:]))
}

// ParseTicket validates that s is a well-formed 32-character hex ticket.
func ParseTicket(s string) (Ticket, error) {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 16 {
		return "", fmt.Errorf("malformed ticket %q", s)
	}
	return Ticket(s), nil
}

func (t Ticket) String() string { return string(t) }
