package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberworks/hongbao/internal/domain"
	"github.com/emberworks/hongbao/internal/repository/memory"
	"github.com/emberworks/hongbao/internal/service"
)

const creatorID int64 = 1000

type fixture struct {
	store  *memory.Store
	ledger *memory.Ledger
	now    time.Time
}

func newFixture(t *testing.T, opts ...service.Option) (*service.RedPacketService, *fixture) {
	t.Helper()
	f := &fixture{
		store:  memory.NewStore(),
		ledger: memory.NewLedger(),
		now:    time.Date(2026, time.February, 17, 12, 0, 0, 0, time.UTC),
	}
	f.ledger.SetBalance(creatorID, 10_000)

	opts = append([]service.Option{service.WithClock(func() time.Time { return f.now })}, opts...)
	return service.NewRedPacketService(f.store, f.ledger, opts...), f
}

func createPacket(t *testing.T, svc *service.RedPacketService, params service.CreateParams) *domain.Packet {
	t.Helper()
	if params.CreatorID == 0 {
		params.CreatorID = creatorID
	}
	if params.TTL == 0 {
		params.TTL = 10 * time.Minute
	}
	packet, err := svc.Create(context.Background(), params)
	require.NoError(t, err)
	return packet
}

func TestCreate_DebitsCreator(t *testing.T) {
	svc, f := newFixture(t)

	packet := createPacket(t, svc, service.CreateParams{
		TotalAmount: 500, SlotCount: 5, Mode: domain.ModeRandom,
	})

	assert.Equal(t, int64(9_500), f.ledger.Balance(creatorID))
	assert.Equal(t, domain.PacketActive, packet.Status)
	assert.Equal(t, f.now.Add(10*time.Minute), packet.ExpireAt)
}

func TestCreate_InsufficientFunds(t *testing.T) {
	svc, f := newFixture(t)

	_, err := svc.Create(context.Background(), service.CreateParams{
		CreatorID: creatorID, TotalAmount: 99_999, SlotCount: 5, Mode: domain.ModeRandom, TTL: time.Minute,
	})

	require.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Equal(t, int64(10_000), f.ledger.Balance(creatorID), "failed create must not move money")
}

func TestCreate_Validation(t *testing.T) {
	svc, _ := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		params  service.CreateParams
		wantErr error
	}{
		{
			name:    "zero amount",
			params:  service.CreateParams{CreatorID: creatorID, TotalAmount: 0, SlotCount: 3, Mode: domain.ModeRandom},
			wantErr: domain.ErrInvalidAmount,
		},
		{
			name:    "negative amount",
			params:  service.CreateParams{CreatorID: creatorID, TotalAmount: -5, SlotCount: 3, Mode: domain.ModeRandom},
			wantErr: domain.ErrInvalidAmount,
		},
		{
			name:    "zero slots",
			params:  service.CreateParams{CreatorID: creatorID, TotalAmount: 100, SlotCount: 0, Mode: domain.ModeFixed},
			wantErr: domain.ErrInvalidSlotCount,
		},
		{
			name:    "amount below slots",
			params:  service.CreateParams{CreatorID: creatorID, TotalAmount: 3, SlotCount: 5, Mode: domain.ModeRandom},
			wantErr: domain.ErrAmountBelowSlots,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.params)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCreate_ExclusiveForcesSingleSlot(t *testing.T) {
	svc, _ := newFixture(t)
	target := int64(42)

	packet := createPacket(t, svc, service.CreateParams{
		TotalAmount: 100, SlotCount: 7, Mode: domain.ModeExclusive, TargetUserID: &target,
	})

	assert.Equal(t, 1, packet.SlotCount)
}

func TestClaim_RoundTrip(t *testing.T) {
	svc, f := newFixture(t)
	ctx := context.Background()

	packet := createPacket(t, svc, service.CreateParams{
		TotalAmount: 500, SlotCount: 5, Mode: domain.ModeRandom,
	})

	var total int64
	for i := 0; i < 5; i++ {
		userID := int64(2000 + i)
		result, err := svc.Claim(ctx, packet.ID, userID)
		require.NoError(t, err)
		require.GreaterOrEqual(t, result.Amount, int64(1))
		total += result.Amount
		assert.Equal(t, result.Amount, f.ledger.Balance(userID))
		assert.Equal(t, i == 4, result.Finished)
	}

	assert.Equal(t, int64(500), total, "claims must sum to the funded amount")

	final, err := svc.GetPacket(ctx, packet.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PacketFinished, final.Status)
	assert.Equal(t, 5, final.TakenCount)
	assert.Equal(t, int64(500), final.TakenAmount)

	_, err = svc.Claim(ctx, packet.ID, 9999)
	assert.ErrorIs(t, err, domain.ErrPacketClosed)
}

func TestClaim_FixedModeExactness(t *testing.T) {
	svc, _ := newFixture(t)
	ctx := context.Background()

	packet := createPacket(t, svc, service.CreateParams{
		TotalAmount: 100, SlotCount: 3, Mode: domain.ModeFixed,
	})

	var amounts []int64
	for i := 0; i < 3; i++ {
		result, err := svc.Claim(ctx, packet.ID, int64(2000+i))
		require.NoError(t, err)
		amounts = append(amounts, result.Amount)
	}

	assert.Equal(t, []int64{33, 33, 34}, amounts)
}

func TestClaim_ExclusiveGating(t *testing.T) {
	svc, f := newFixture(t)
	ctx := context.Background()
	target := int64(42)

	packet := createPacket(t, svc, service.CreateParams{
		TotalAmount: 300, SlotCount: 1, Mode: domain.ModeExclusive, TargetUserID: &target,
	})

	_, err := svc.Claim(ctx, packet.ID, 43)
	assert.ErrorIs(t, err, domain.ErrNotEligible)

	result, err := svc.Claim(ctx, packet.ID, target)
	require.NoError(t, err)
	assert.Equal(t, int64(300), result.Amount)
	assert.True(t, result.Finished)
	assert.Equal(t, int64(300), f.ledger.Balance(target))
}

func TestClaim_AlreadyClaimed(t *testing.T) {
	svc, _ := newFixture(t)
	ctx := context.Background()

	packet := createPacket(t, svc, service.CreateParams{
		TotalAmount: 100, SlotCount: 5, Mode: domain.ModeRandom,
	})

	_, err := svc.Claim(ctx, packet.ID, 2001)
	require.NoError(t, err)

	_, err = svc.Claim(ctx, packet.ID, 2001)
	assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)
}

func TestClaim_Expired(t *testing.T) {
	svc, f := newFixture(t)
	ctx := context.Background()

	packet := createPacket(t, svc, service.CreateParams{
		TotalAmount: 500, SlotCount: 5, Mode: domain.ModeRandom, TTL: 10 * time.Minute,
	})

	_, err := svc.Claim(ctx, packet.ID, 2001)
	require.NoError(t, err)
	claimed := f.ledger.Balance(2001)

	f.now = f.now.Add(11 * time.Minute)

	_, err = svc.Claim(ctx, packet.ID, 2002)
	assert.ErrorIs(t, err, domain.ErrPacketExpired)

	// The lazy expiry refunded the unclaimed remainder exactly once.
	assert.Equal(t, int64(10_000)-claimed, f.ledger.Balance(creatorID))

	final, err := svc.GetPacket(ctx, packet.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PacketExpired, final.Status)
}

func TestExpireAndRefund_Idempotent(t *testing.T) {
	svc, f := newFixture(t)
	ctx := context.Background()

	packet := createPacket(t, svc, service.CreateParams{
		TotalAmount: 500, SlotCount: 5, Mode: domain.ModeRandom,
	})

	refunded, err := svc.ExpireAndRefund(ctx, packet.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), refunded)

	refunded, err = svc.ExpireAndRefund(ctx, packet.ID)
	require.NoError(t, err)
	assert.Zero(t, refunded, "second expiry must be a no-op")

	assert.Equal(t, int64(10_000), f.ledger.Balance(creatorID))
}

func TestSweepExpired(t *testing.T) {
	svc, f := newFixture(t)
	ctx := context.Background()

	first := createPacket(t, svc, service.CreateParams{
		TotalAmount: 100, SlotCount: 2, Mode: domain.ModeRandom, TTL: 5 * time.Minute,
	})
	second := createPacket(t, svc, service.CreateParams{
		TotalAmount: 200, SlotCount: 2, Mode: domain.ModeFixed, TTL: 5 * time.Minute,
	})
	fresh := createPacket(t, svc, service.CreateParams{
		TotalAmount: 300, SlotCount: 2, Mode: domain.ModeRandom, TTL: time.Hour,
	})

	f.now = f.now.Add(6 * time.Minute)

	expired, err := svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, expired)

	for _, id := range []int64{first.ID, second.ID} {
		p, err := svc.GetPacket(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.PacketExpired, p.Status)
	}
	p, err := svc.GetPacket(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PacketActive, p.Status)

	// 100 + 200 refunded, 300 still escrowed.
	assert.Equal(t, int64(9_700), f.ledger.Balance(creatorID))
}

func TestClaim_ConcurrentClaimants(t *testing.T) {
	svc, f := newFixture(t)
	ctx := context.Background()

	const slots = 5
	const claimants = 20

	packet := createPacket(t, svc, service.CreateParams{
		TotalAmount: 500, SlotCount: slots, Mode: domain.ModeRandom,
	})

	var wg sync.WaitGroup
	errs := make([]error, claimants)
	amounts := make([]int64, claimants)
	for i := 0; i < claimants; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := svc.Claim(ctx, packet.ID, int64(3000+i))
			if err != nil {
				errs[i] = err
				return
			}
			amounts[i] = result.Amount
		}(i)
	}
	wg.Wait()

	var successes int
	var total int64
	for i := 0; i < claimants; i++ {
		if errs[i] == nil {
			successes++
			total += amounts[i]
			continue
		}
		assert.True(t,
			errors.Is(errs[i], domain.ErrPacketEmpty) ||
				errors.Is(errs[i], domain.ErrPacketClosed) ||
				errors.Is(errs[i], domain.ErrClaimContention),
			"unexpected error: %v", errs[i])
	}

	assert.Equal(t, slots, successes, "exactly one claimant per slot")
	assert.Equal(t, int64(500), total)

	final, err := svc.GetPacket(ctx, packet.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PacketFinished, final.Status)
	assert.Equal(t, slots, final.TakenCount)
	assert.Equal(t, int64(500), final.TakenAmount)

	// Conservation across the whole ledger: the creator's debit equals the
	// sum of all claim credits.
	var credited int64
	for i := 0; i < claimants; i++ {
		credited += f.ledger.Balance(int64(3000 + i))
	}
	assert.Equal(t, int64(500), credited)
}

func TestClaim_SameUserConcurrent(t *testing.T) {
	svc, _ := newFixture(t)
	ctx := context.Background()

	packet := createPacket(t, svc, service.CreateParams{
		TotalAmount: 500, SlotCount: 5, Mode: domain.ModeRandom,
	})

	const attempts = 10
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Claim(ctx, packet.ID, 2001)
		}(i)
	}
	wg.Wait()

	var successes int
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		assert.True(t,
			errors.Is(err, domain.ErrAlreadyClaimed) ||
				errors.Is(err, domain.ErrClaimContention),
			"unexpected error: %v", err)
	}
	assert.Equal(t, 1, successes, "a user wins at most once per packet")

	final, err := svc.GetPacket(ctx, packet.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, final.TakenCount, "duplicate attempts must not leak capacity")
}
