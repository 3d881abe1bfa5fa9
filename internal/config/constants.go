package config

import "time"

const (
	// Packet lifecycle
	DefaultPacketTTL = 10 * time.Minute

	// Claim retry budget for optimistic-update conflicts
	ClaimRetryBudget = 5

	// Packet limits
	MaxSlotCount    = 100
	MaxPacketAmount = 1_000_000

	// Second /rp argument at or above this is a user ID, not a slot count
	ExclusiveTargetIDThreshold = 1_000_000_000

	// Expiry sweeper
	SweepInterval  = time.Minute
	SweepBatchSize = 50

	// Balance history page size
	HistoryPageSize = 10
)

// DefaultPacketNotes is used when the sender leaves no note.
var DefaultPacketNotes = []string{
	"新年快乐，大家一起玩～",
	"祝大家天天开心，万事顺意～",
	"来点小惊喜，手速要快哦～",
	"发财发财，一起发财～",
	"冲冲冲，看看今天的手气如何？",
}
