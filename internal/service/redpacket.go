package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/emberworks/hongbao/internal/config"
	"github.com/emberworks/hongbao/internal/domain"
)

// PacketStore is the persistence contract for packets and claims.
// ApplyClaim must guarantee that at most one caller observes success for a
// given counter snapshot; InsertClaim must reject duplicate (packet, user)
// pairs with domain.ErrAlreadyClaimed.
type PacketStore interface {
	CreatePacket(ctx context.Context, p *domain.Packet) error
	GetPacket(ctx context.Context, id int64) (*domain.Packet, error)
	ApplyClaim(ctx context.Context, id int64, expectedCount int, expectedAmount int64, newCount int, newAmount int64) (bool, error)
	RevertClaim(ctx context.Context, id int64, amount int64) error
	InsertClaim(ctx context.Context, c *domain.Claim) error
	HasClaim(ctx context.Context, packetID, userID int64) (bool, error)
	ListClaims(ctx context.Context, packetID int64) ([]domain.Claim, error)
	RollBackClaim(ctx context.Context, claimID int64) error
	MarkFinished(ctx context.Context, id int64) (bool, error)
	MarkExpired(ctx context.Context, id int64) (bool, error)
	ListExpiredActive(ctx context.Context, cutoff time.Time, limit int) ([]int64, error)
	AttachMessage(ctx context.Context, id, chatID int64, messageID int) error
}

// Ledger is the currency service the engine consumes as a black box. Both
// calls are atomic; the engine never reads-then-writes a balance itself.
type Ledger interface {
	Debit(ctx context.Context, userID, amount int64, eventType, description string) error
	Credit(ctx context.Context, userID, amount int64, eventType, description string) (int64, error)
}

// RedPacketService orchestrates packet creation, claiming and expiry
// refunds. It holds no in-process locks; all claim safety comes from the
// store's conditional update and the claims uniqueness constraint.
type RedPacketService struct {
	store  PacketStore
	ledger Ledger
	now    func() time.Time
	randN  func(int64) int64
}

// Option customizes a RedPacketService; used by tests to pin the clock and
// the random source.
type Option func(*RedPacketService)

func WithClock(now func() time.Time) Option {
	return func(s *RedPacketService) { s.now = now }
}

func WithRand(randN func(int64) int64) Option {
	return func(s *RedPacketService) { s.randN = randN }
}

func NewRedPacketService(store PacketStore, ledger Ledger, opts ...Option) *RedPacketService {
	s := &RedPacketService{
		store:  store,
		ledger: ledger,
		now:    time.Now,
		randN:  rand.Int64N,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateParams describes one packet to fund.
type CreateParams struct {
	CreatorID    int64
	ChatID       int64
	TotalAmount  int64
	SlotCount    int
	Mode         domain.PacketMode
	TargetUserID *int64
	TTL          time.Duration
	Note         string
}

// Create debits the creator and persists the packet. The debit is the
// commit point: if the insert fails afterwards, the creator is credited
// back so no money is ever stranded.
func (s *RedPacketService) Create(ctx context.Context, params CreateParams) (*domain.Packet, error) {
	if params.TotalAmount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	if params.SlotCount <= 0 {
		return nil, domain.ErrInvalidSlotCount
	}
	if params.Mode == domain.ModeExclusive {
		params.SlotCount = 1
	} else if params.TotalAmount < int64(params.SlotCount) {
		// Every slot must be worth at least one unit.
		return nil, domain.ErrAmountBelowSlots
	}
	if params.TTL <= 0 {
		params.TTL = config.DefaultPacketTTL
	}

	err := s.ledger.Debit(ctx, params.CreatorID, params.TotalAmount,
		domain.EventPacketCreate, fmt.Sprintf("发红包，金额 %d", params.TotalAmount))
	if err != nil {
		return nil, fmt.Errorf("debit creator: %w", err)
	}

	packet := &domain.Packet{
		ChatID:       params.ChatID,
		CreatorID:    params.CreatorID,
		TotalAmount:  params.TotalAmount,
		SlotCount:    params.SlotCount,
		Mode:         params.Mode,
		TargetUserID: params.TargetUserID,
		Status:       domain.PacketActive,
		Note:         params.Note,
		ExpireAt:     s.now().Add(params.TTL),
	}
	if err := s.store.CreatePacket(ctx, packet); err != nil {
		if _, creditErr := s.ledger.Credit(ctx, params.CreatorID, params.TotalAmount,
			domain.EventPacketRefund, "红包创建失败退回"); creditErr != nil {
			slog.Error("refund after failed packet insert",
				"creator_id", params.CreatorID, "amount", params.TotalAmount, "error", creditErr)
		}
		return nil, fmt.Errorf("create packet: %w", err)
	}

	slog.Info("packet created",
		"packet_id", packet.ID, "creator_id", packet.CreatorID,
		"amount", packet.TotalAmount, "slots", packet.SlotCount, "mode", packet.Mode)
	return packet, nil
}

// ClaimResult is the outcome of a successful claim.
type ClaimResult struct {
	Amount   int64
	Finished bool
}

// Claim awards userID a share of the packet. Concurrent claimants interact
// only through the conditional counter update: on conflict the claim is
// recomputed from a fresh snapshot, up to config.ClaimRetryBudget times.
func (s *RedPacketService) Claim(ctx context.Context, packetID, userID int64) (*ClaimResult, error) {
	packet, err := s.store.GetPacket(ctx, packetID)
	if err != nil {
		return nil, err
	}

	if packet.Status != domain.PacketActive {
		return nil, domain.ErrPacketClosed
	}

	if packet.ExpiredAt(s.now()) {
		if _, err := s.ExpireAndRefund(ctx, packetID); err != nil {
			slog.Error("lazy expiry failed", "packet_id", packetID, "error", err)
		}
		return nil, domain.ErrPacketExpired
	}

	if packet.Mode == domain.ModeExclusive && packet.TargetUserID != nil && *packet.TargetUserID != userID {
		return nil, domain.ErrNotEligible
	}

	// Cheap pre-check; the uniqueness constraint in InsertClaim remains the
	// final authority.
	claimed, err := s.store.HasClaim(ctx, packetID, userID)
	if err != nil {
		return nil, fmt.Errorf("check existing claim: %w", err)
	}
	if claimed {
		return nil, domain.ErrAlreadyClaimed
	}

	for attempt := 0; attempt < config.ClaimRetryBudget; attempt++ {
		if packet.Exhausted() {
			return nil, domain.ErrPacketEmpty
		}

		award := NextAward(packet.Mode, packet.TotalAmount, packet.SlotCount,
			packet.RemainingAmount(), packet.RemainingSlots(), s.randN)
		newCount := packet.TakenCount + 1
		newAmount := packet.TakenAmount + award

		applied, err := s.store.ApplyClaim(ctx, packet.ID,
			packet.TakenCount, packet.TakenAmount, newCount, newAmount)
		if err != nil {
			return nil, fmt.Errorf("apply claim: %w", err)
		}
		if !applied {
			// Lost the race; recompute from a fresh snapshot.
			packet, err = s.store.GetPacket(ctx, packetID)
			if err != nil {
				return nil, err
			}
			switch packet.Status {
			case domain.PacketActive:
				continue
			case domain.PacketExpired:
				return nil, domain.ErrPacketExpired
			default:
				return nil, domain.ErrPacketEmpty
			}
		}

		return s.settleClaim(ctx, packet, userID, award, newCount, newAmount)
	}

	return nil, domain.ErrClaimContention
}

// settleClaim runs after the counters were advanced for this claimant:
// record the claim, credit the ledger, and close the packet if that was
// the last share. A duplicate-claim rejection here means another request
// by the same user slipped past the pre-check, so the counter increment is
// compensated before reporting the duplicate.
func (s *RedPacketService) settleClaim(ctx context.Context, packet *domain.Packet, userID, award int64, newCount int, newAmount int64) (*ClaimResult, error) {
	claim := &domain.Claim{
		PacketID: packet.ID,
		UserID:   userID,
		Amount:   award,
	}
	if err := s.store.InsertClaim(ctx, claim); err != nil {
		if revertErr := s.store.RevertClaim(ctx, packet.ID, award); revertErr != nil {
			slog.Error("revert claim counters", "packet_id", packet.ID, "error", revertErr)
		}
		if errors.Is(err, domain.ErrAlreadyClaimed) {
			return nil, domain.ErrAlreadyClaimed
		}
		return nil, fmt.Errorf("insert claim: %w", err)
	}

	if _, err := s.ledger.Credit(ctx, userID, award,
		domain.EventPacketClaim, fmt.Sprintf("抢到红包 %d", award)); err != nil {
		// Void the claim and give the capacity back; the user keeps nothing.
		if rbErr := s.store.RollBackClaim(ctx, claim.ID); rbErr != nil {
			slog.Error("roll back claim", "claim_id", claim.ID, "error", rbErr)
		}
		if revertErr := s.store.RevertClaim(ctx, packet.ID, award); revertErr != nil {
			slog.Error("revert claim counters", "packet_id", packet.ID, "error", revertErr)
		}
		return nil, fmt.Errorf("credit claimant: %w", err)
	}

	finished := newCount >= packet.SlotCount || newAmount >= packet.TotalAmount
	if finished {
		if _, err := s.store.MarkFinished(ctx, packet.ID); err != nil {
			slog.Error("mark packet finished", "packet_id", packet.ID, "error", err)
		}
	}

	slog.Info("packet claimed",
		"packet_id", packet.ID, "user_id", userID, "amount", award, "finished", finished)
	return &ClaimResult{Amount: award, Finished: finished}, nil
}

// ExpireAndRefund transitions an active packet to expired and credits the
// unclaimed remainder back to the creator. Only the caller that wins the
// status transition issues the refund, so calling this any number of times
// refunds exactly once. Returns the refunded amount (zero on a no-op).
func (s *RedPacketService) ExpireAndRefund(ctx context.Context, packetID int64) (int64, error) {
	won, err := s.store.MarkExpired(ctx, packetID)
	if err != nil {
		return 0, fmt.Errorf("mark expired: %w", err)
	}
	if !won {
		// Already terminal.
		return 0, nil
	}

	// Read counters after the transition: no claim can advance them once
	// the packet left active.
	packet, err := s.store.GetPacket(ctx, packetID)
	if err != nil {
		return 0, err
	}
	remaining := packet.RemainingAmount()
	if remaining <= 0 {
		return 0, nil
	}

	if _, err := s.ledger.Credit(ctx, packet.CreatorID, remaining,
		domain.EventPacketRefund, fmt.Sprintf("红包过期退款 %d", remaining)); err != nil {
		return 0, fmt.Errorf("refund creator: %w", err)
	}

	slog.Info("packet expired",
		"packet_id", packetID, "creator_id", packet.CreatorID, "refunded", remaining)
	return remaining, nil
}

// SweepExpired expires packets whose deadline passed without a triggering
// claim attempt. Returns how many packets were transitioned.
func (s *RedPacketService) SweepExpired(ctx context.Context) (int, error) {
	ids, err := s.store.ListExpiredActive(ctx, s.now(), config.SweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("list expired: %w", err)
	}

	expired := 0
	for _, id := range ids {
		if _, err := s.ExpireAndRefund(ctx, id); err != nil {
			slog.Error("sweep expiry", "packet_id", id, "error", err)
			continue
		}
		expired++
	}
	return expired, nil
}

// GetPacket exposes the current packet state for rendering.
func (s *RedPacketService) GetPacket(ctx context.Context, packetID int64) (*domain.Packet, error) {
	return s.store.GetPacket(ctx, packetID)
}

// ListClaims returns the packet's claims for the summary caption.
func (s *RedPacketService) ListClaims(ctx context.Context, packetID int64) ([]domain.Claim, error) {
	return s.store.ListClaims(ctx, packetID)
}

// AttachMessage links the packet to the chat message carrying its claim
// button.
func (s *RedPacketService) AttachMessage(ctx context.Context, packetID, chatID int64, messageID int) error {
	return s.store.AttachMessage(ctx, packetID, chatID, messageID)
}
