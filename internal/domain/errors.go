package domain

import "errors"

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidSlotCount    = errors.New("invalid slot count")
	ErrAmountBelowSlots    = errors.New("total amount below slot count")
	ErrPacketNotFound      = errors.New("packet not found")
	ErrPacketClosed        = errors.New("packet closed")
	ErrPacketExpired       = errors.New("packet expired")
	ErrPacketEmpty         = errors.New("packet empty")
	ErrNotEligible         = errors.New("not eligible for this packet")
	ErrAlreadyClaimed      = errors.New("already claimed")
	ErrClaimContention     = errors.New("claim contention, try again")
	ErrUserNotFound        = errors.New("user not found")
)
