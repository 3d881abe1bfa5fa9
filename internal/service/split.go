package service

import "github.com/emberworks/hongbao/internal/domain"

// NextAward computes the amount for the next claim of a packet. Pure given
// randN, which must return a uniform value in [0, n).
//
// Exclusive packets pay the whole remainder to their single claim. Fixed
// packets pay total/slots to every claim except the last, which absorbs the
// integer-division remainder. Random packets draw from [1, upper] where
// upper is capped at half of the theoretical maximum so that early
// claimants cannot drain the pool; the last claim again takes the whole
// remainder.
//
// The result is always >= 1 and always leaves at least one unit for every
// remaining slot. Callers must only invoke this while remainingSlots > 0
// and remainingAmount >= remainingSlots.
func NextAward(mode domain.PacketMode, totalAmount int64, slotCount int, remainingAmount int64, remainingSlots int, randN func(int64) int64) int64 {
	switch mode {
	case domain.ModeExclusive:
		return remainingAmount
	case domain.ModeFixed:
		if remainingSlots <= 1 {
			return remainingAmount
		}
		return totalAmount / int64(slotCount)
	default:
		if remainingSlots <= 1 {
			return remainingAmount
		}
		maxAward := remainingAmount - int64(remainingSlots-1)
		if maxAward <= 1 {
			return 1
		}
		upper := maxAward / 2
		if upper < 1 {
			upper = 1
		}
		return 1 + randN(upper)
	}
}
