package domain

import "time"

// Claim is one user's award from one packet. At most one claim may exist
// per (packet, user) pair; the amount never changes once inserted.
// RolledBack is set only when a claim is voided during teardown.
type Claim struct {
	ID         int64
	PacketID   int64
	UserID     int64
	Amount     int64
	RolledBack bool
	CreatedAt  time.Time
}
