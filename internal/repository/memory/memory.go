// Package memory provides in-memory PacketStore and Ledger implementations
// with the same atomicity contracts as the Postgres ones. Used in tests and
// local development.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/emberworks/hongbao/internal/domain"
)

type claimKey struct {
	PacketID int64
	UserID   int64
}

// Store keeps packets and claims behind a single mutex so that ApplyClaim
// is an atomic compare-and-set, exactly like the SQL conditional update.
type Store struct {
	mu          sync.Mutex
	nextPacket  int64
	nextClaim   int64
	packets     map[int64]*domain.Packet
	claims      map[int64]*domain.Claim
	claimedBy   map[claimKey]int64
	packetOrder map[int64][]int64
}

func NewStore() *Store {
	return &Store{
		packets:     make(map[int64]*domain.Packet),
		claims:      make(map[int64]*domain.Claim),
		claimedBy:   make(map[claimKey]int64),
		packetOrder: make(map[int64][]int64),
	}
}

func (s *Store) CreatePacket(_ context.Context, p *domain.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextPacket++
	p.ID = s.nextPacket
	p.CreatedAt = time.Now()
	cp := *p
	s.packets[p.ID] = &cp
	return nil
}

func (s *Store) GetPacket(_ context.Context, id int64) (*domain.Packet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.packets[id]
	if !ok {
		return nil, domain.ErrPacketNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Store) ApplyClaim(_ context.Context, id int64, expectedCount int, expectedAmount int64, newCount int, newAmount int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.packets[id]
	if !ok {
		return false, domain.ErrPacketNotFound
	}
	if p.Status != domain.PacketActive || p.TakenCount != expectedCount || p.TakenAmount != expectedAmount {
		return false, nil
	}
	p.TakenCount = newCount
	p.TakenAmount = newAmount
	return true, nil
}

func (s *Store) RevertClaim(_ context.Context, id int64, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.packets[id]
	if !ok {
		return domain.ErrPacketNotFound
	}
	p.TakenCount--
	p.TakenAmount -= amount
	return nil
}

func (s *Store) InsertClaim(_ context.Context, c *domain.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := claimKey{PacketID: c.PacketID, UserID: c.UserID}
	if _, exists := s.claimedBy[key]; exists {
		return domain.ErrAlreadyClaimed
	}
	s.nextClaim++
	c.ID = s.nextClaim
	c.CreatedAt = time.Now()
	cp := *c
	s.claims[c.ID] = &cp
	s.claimedBy[key] = c.ID
	s.packetOrder[c.PacketID] = append(s.packetOrder[c.PacketID], c.ID)
	return nil
}

func (s *Store) HasClaim(_ context.Context, packetID, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.claimedBy[claimKey{PacketID: packetID, UserID: userID}]
	return exists, nil
}

func (s *Store) ListClaims(_ context.Context, packetID int64) ([]domain.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var claims []domain.Claim
	for _, id := range s.packetOrder[packetID] {
		c := s.claims[id]
		if c.RolledBack {
			continue
		}
		claims = append(claims, *c)
	}
	return claims, nil
}

func (s *Store) RollBackClaim(_ context.Context, claimID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.claims[claimID]
	if !ok {
		return domain.ErrPacketNotFound
	}
	// The (packet, user) pair stays reserved, matching the SQL unique
	// constraint which covers rolled-back rows too.
	c.RolledBack = true
	return nil
}

func (s *Store) MarkFinished(_ context.Context, id int64) (bool, error) {
	return s.transition(id, domain.PacketFinished)
}

func (s *Store) MarkExpired(_ context.Context, id int64) (bool, error) {
	return s.transition(id, domain.PacketExpired)
}

func (s *Store) transition(id int64, to domain.PacketStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.packets[id]
	if !ok {
		return false, domain.ErrPacketNotFound
	}
	if p.Status != domain.PacketActive {
		return false, nil
	}
	p.Status = to
	return true, nil
}

func (s *Store) ListExpiredActive(_ context.Context, cutoff time.Time, limit int) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []int64
	for id, p := range s.packets {
		if p.Status == domain.PacketActive && !p.ExpireAt.After(cutoff) {
			ids = append(ids, id)
			if len(ids) >= limit {
				break
			}
		}
	}
	return ids, nil
}

func (s *Store) AttachMessage(_ context.Context, id, chatID int64, messageID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.packets[id]
	if !ok || p.ChatID != chatID {
		return domain.ErrPacketNotFound
	}
	p.MessageID = &messageID
	return nil
}

// Ledger is an in-memory currency ledger with the same semantics as the
// wallet store: atomic conditional debit, unconditional credit, and a
// transaction entry per mutation.
type Ledger struct {
	mu       sync.Mutex
	balances map[int64]int64
	log      []domain.Transaction
}

func NewLedger() *Ledger {
	return &Ledger{balances: make(map[int64]int64)}
}

// SetBalance seeds a user's balance; test setup only.
func (l *Ledger) SetBalance(userID, balance int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[userID] = balance
}

func (l *Ledger) Balance(userID int64) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID]
}

func (l *Ledger) Debit(_ context.Context, userID, amount int64, eventType, description string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balances[userID] < amount {
		return domain.ErrInsufficientBalance
	}
	l.balances[userID] -= amount
	l.append(userID, -amount, eventType, description)
	return nil
}

func (l *Ledger) Credit(_ context.Context, userID, amount int64, eventType, description string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.balances[userID] += amount
	l.append(userID, amount, eventType, description)
	return l.balances[userID], nil
}

func (l *Ledger) append(userID, amount int64, eventType, description string) {
	l.log = append(l.log, domain.Transaction{
		ID:           int64(len(l.log) + 1),
		UserID:       userID,
		Amount:       amount,
		BalanceAfter: l.balances[userID],
		EventType:    eventType,
		Description:  description,
		CreatedAt:    time.Now(),
	})
}

// Transactions returns a copy of the ledger log.
func (l *Ledger) Transactions() []domain.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]domain.Transaction, len(l.log))
	copy(out, l.log)
	return out
}
