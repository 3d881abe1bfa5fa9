package domain

import "time"

type PacketMode string

const (
	ModeRandom    PacketMode = "random"
	ModeFixed     PacketMode = "fixed"
	ModeExclusive PacketMode = "exclusive"
)

type PacketStatus string

const (
	PacketActive   PacketStatus = "active"
	PacketFinished PacketStatus = "finished"
	PacketExpired  PacketStatus = "expired"
)

// Packet is one funded pool of currency that users race to claim shares of.
// TotalAmount, SlotCount, Mode and ExpireAt are fixed at creation; only
// TakenCount, TakenAmount and Status change afterwards.
type Packet struct {
	ID           int64
	ChatID       int64
	MessageID    *int
	CreatorID    int64
	TotalAmount  int64
	SlotCount    int
	Mode         PacketMode
	TargetUserID *int64
	TakenCount   int
	TakenAmount  int64
	Status       PacketStatus
	Note         string
	ExpireAt     time.Time
	CreatedAt    time.Time
}

func (p *Packet) RemainingAmount() int64 {
	return p.TotalAmount - p.TakenAmount
}

func (p *Packet) RemainingSlots() int {
	return p.SlotCount - p.TakenCount
}

// Exhausted reports whether the packet has no claimable capacity left.
func (p *Packet) Exhausted() bool {
	return p.TakenCount >= p.SlotCount || p.TakenAmount >= p.TotalAmount
}

func (p *Packet) ExpiredAt(now time.Time) bool {
	return !now.Before(p.ExpireAt)
}
