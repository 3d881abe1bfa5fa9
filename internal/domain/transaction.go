package domain

import "time"

// Ledger event types.
const (
	EventPacketCreate = "red_packet_create"
	EventPacketClaim  = "red_packet_claim"
	EventPacketRefund = "red_packet_refund"
	EventSignupBonus  = "signup_bonus"
)

// Transaction is one ledger entry. Amount is signed: debits are negative,
// credits positive. BalanceAfter is the user's balance after applying it.
type Transaction struct {
	ID           int64
	UserID       int64
	Amount       int64
	BalanceAfter int64
	EventType    string
	Description  string
	Reference    string
	CreatedAt    time.Time
}
