package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberworks/hongbao/internal/domain"
	"github.com/emberworks/hongbao/internal/repository/memory"
	"github.com/emberworks/hongbao/internal/service"
)

// blindStore hides existing claims from the pre-check, forcing the engine
// down the path where the uniqueness constraint fires after the counters
// were already advanced.
type blindStore struct {
	service.PacketStore
}

func (s *blindStore) HasClaim(context.Context, int64, int64) (bool, error) {
	return false, nil
}

// contendedStore rejects every conditional update, simulating a claimant
// that loses the counter race on every attempt.
type contendedStore struct {
	service.PacketStore
	applies int
}

func (s *contendedStore) ApplyClaim(context.Context, int64, int, int64, int, int64) (bool, error) {
	s.applies++
	return false, nil
}

// failingLedger refuses credits after a set number of calls.
type failingLedger struct {
	service.Ledger
	creditsLeft int
}

func (l *failingLedger) Credit(ctx context.Context, userID, amount int64, eventType, description string) (int64, error) {
	if l.creditsLeft <= 0 {
		return 0, errors.New("ledger unavailable")
	}
	l.creditsLeft--
	return l.Ledger.Credit(ctx, userID, amount, eventType, description)
}

func TestClaim_DuplicateAfterCounterIncrement(t *testing.T) {
	inner := memory.NewStore()
	ledger := memory.NewLedger()
	ledger.SetBalance(creatorID, 1_000)
	svc := service.NewRedPacketService(&blindStore{PacketStore: inner}, ledger)

	packet, err := svc.Create(context.Background(), service.CreateParams{
		CreatorID: creatorID, TotalAmount: 100, SlotCount: 5, Mode: domain.ModeRandom, TTL: time.Minute,
	})
	require.NoError(t, err)

	first, err := svc.Claim(context.Background(), packet.ID, 2001)
	require.NoError(t, err)

	// The pre-check is blind, so the second attempt only trips over the
	// uniqueness constraint after incrementing the counters. That
	// increment must be compensated.
	_, err = svc.Claim(context.Background(), packet.ID, 2001)
	assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)

	state, err := inner.GetPacket(context.Background(), packet.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, state.TakenCount, "rejected claim must not consume a slot")
	assert.Equal(t, first.Amount, state.TakenAmount, "rejected claim must not consume amount")
}

func TestClaim_RetryBudgetExhausted(t *testing.T) {
	inner := memory.NewStore()
	ledger := memory.NewLedger()
	ledger.SetBalance(creatorID, 1_000)
	store := &contendedStore{PacketStore: inner}
	svc := service.NewRedPacketService(store, ledger)

	packet, err := svc.Create(context.Background(), service.CreateParams{
		CreatorID: creatorID, TotalAmount: 100, SlotCount: 5, Mode: domain.ModeRandom, TTL: time.Minute,
	})
	require.NoError(t, err)

	_, err = svc.Claim(context.Background(), packet.ID, 2001)
	assert.ErrorIs(t, err, domain.ErrClaimContention)
	assert.Equal(t, 5, store.applies, "one conditional update per attempt")
}

func TestClaim_CreditFailureVoidsClaim(t *testing.T) {
	store := memory.NewStore()
	inner := memory.NewLedger()
	inner.SetBalance(creatorID, 1_000)
	// Create only debits, so the claim's credit is the first credit call
	// and it fails.
	ledger := &failingLedger{Ledger: inner, creditsLeft: 0}
	svc := service.NewRedPacketService(store, ledger)

	packet, err := svc.Create(context.Background(), service.CreateParams{
		CreatorID: creatorID, TotalAmount: 100, SlotCount: 5, Mode: domain.ModeRandom, TTL: time.Minute,
	})
	require.NoError(t, err)

	_, err = svc.Claim(context.Background(), packet.ID, 2001)
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrAlreadyClaimed)

	// The claim was voided and its capacity returned.
	state, err := store.GetPacket(context.Background(), packet.ID)
	require.NoError(t, err)
	assert.Zero(t, state.TakenCount)
	assert.Zero(t, state.TakenAmount)
	assert.Zero(t, inner.Balance(2001), "no money moves for a voided claim")

	claims, err := store.ListClaims(context.Background(), packet.ID)
	require.NoError(t, err)
	assert.Empty(t, claims, "voided claims are excluded from listings")
}
