package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emberworks/hongbao/internal/domain"
)

// uniqueViolation is the Postgres error code raised when an insert hits a
// unique constraint.
const uniqueViolation = "23505"

// Packets persists red packets and their claims. The conditional update in
// ApplyClaim is the only way packet counters are ever advanced, which is
// what keeps concurrent claims free of lost updates.
type Packets struct {
	pool *pgxpool.Pool
}

func NewPackets(pool *pgxpool.Pool) *Packets {
	return &Packets{pool: pool}
}

const packetColumns = `id, chat_id, message_id, creator_id, total_amount, slot_count, mode,
	target_user_id, taken_count, taken_amount, status, note, expire_at, created_at`

func scanPacket(row pgx.Row) (*domain.Packet, error) {
	var p domain.Packet
	err := row.Scan(
		&p.ID, &p.ChatID, &p.MessageID, &p.CreatorID, &p.TotalAmount, &p.SlotCount, &p.Mode,
		&p.TargetUserID, &p.TakenCount, &p.TakenAmount, &p.Status, &p.Note, &p.ExpireAt, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPacketNotFound
		}
		return nil, fmt.Errorf("scan packet: %w", err)
	}
	return &p, nil
}

// CreatePacket inserts a new packet row and fills in its ID and CreatedAt.
func (r *Packets) CreatePacket(ctx context.Context, p *domain.Packet) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO red_packets (chat_id, creator_id, total_amount, slot_count, mode,
			target_user_id, status, note, expire_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`,
		p.ChatID, p.CreatorID, p.TotalAmount, p.SlotCount, p.Mode,
		p.TargetUserID, p.Status, p.Note, p.ExpireAt,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert packet: %w", err)
	}
	return nil
}

// GetPacket returns a consistent snapshot of the packet's current state.
func (r *Packets) GetPacket(ctx context.Context, id int64) (*domain.Packet, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+packetColumns+` FROM red_packets WHERE id = $1`, id)
	return scanPacket(row)
}

// ApplyClaim advances the packet counters only if they still match the
// snapshot the caller computed the award from. Returns false when another
// claimant got there first; the caller re-reads and retries.
func (r *Packets) ApplyClaim(ctx context.Context, id int64, expectedCount int, expectedAmount int64, newCount int, newAmount int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE red_packets
		SET taken_count = $4, taken_amount = $5, updated_at = now()
		WHERE id = $1 AND taken_count = $2 AND taken_amount = $3 AND status = 'active'`,
		id, expectedCount, expectedAmount, newCount, newAmount,
	)
	if err != nil {
		return false, fmt.Errorf("apply claim: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// RevertClaim undoes one counter increment after a claim insert was
// rejected. Implemented as an atomic adjustment so it cannot clobber a
// concurrent claimant's update.
func (r *Packets) RevertClaim(ctx context.Context, id int64, amount int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE red_packets
		SET taken_count = taken_count - 1, taken_amount = taken_amount - $2, updated_at = now()
		WHERE id = $1`,
		id, amount,
	)
	if err != nil {
		return fmt.Errorf("revert claim: %w", err)
	}
	return nil
}

// InsertClaim records a user's award. The unique (packet_id, user_id)
// constraint is the final authority against double claims; violations are
// reported as domain.ErrAlreadyClaimed.
func (r *Packets) InsertClaim(ctx context.Context, c *domain.Claim) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO red_packet_claims (packet_id, user_id, amount)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		c.PacketID, c.UserID, c.Amount,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrAlreadyClaimed
		}
		return fmt.Errorf("insert claim: %w", err)
	}
	return nil
}

func (r *Packets) HasClaim(ctx context.Context, packetID, userID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM red_packet_claims WHERE packet_id = $1 AND user_id = $2
		)`,
		packetID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check claim: %w", err)
	}
	return exists, nil
}

func (r *Packets) ListClaims(ctx context.Context, packetID int64) ([]domain.Claim, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, packet_id, user_id, amount, rolled_back, created_at
		FROM red_packet_claims
		WHERE packet_id = $1 AND NOT rolled_back
		ORDER BY created_at`,
		packetID,
	)
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	defer rows.Close()

	var claims []domain.Claim
	for rows.Next() {
		var c domain.Claim
		if err := rows.Scan(&c.ID, &c.PacketID, &c.UserID, &c.Amount, &c.RolledBack, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

// RollBackClaim voids a claim whose ledger credit could not be issued.
func (r *Packets) RollBackClaim(ctx context.Context, claimID int64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE red_packet_claims SET rolled_back = TRUE WHERE id = $1`, claimID)
	if err != nil {
		return fmt.Errorf("roll back claim: %w", err)
	}
	return nil
}

// MarkFinished transitions the packet out of active once all slots or the
// whole amount are taken. The status predicate keeps terminal states
// terminal.
func (r *Packets) MarkFinished(ctx context.Context, id int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE red_packets SET status = 'finished', updated_at = now()
		WHERE id = $1 AND status = 'active'`, id)
	if err != nil {
		return false, fmt.Errorf("mark finished: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkExpired succeeds for exactly one caller per packet; that caller owns
// issuing the refund.
func (r *Packets) MarkExpired(ctx context.Context, id int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE red_packets SET status = 'expired', updated_at = now()
		WHERE id = $1 AND status = 'active'`, id)
	if err != nil {
		return false, fmt.Errorf("mark expired: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListExpiredActive returns packets past their deadline that nobody has
// tried to claim since; the sweeper expires them in the background.
func (r *Packets) ListExpiredActive(ctx context.Context, cutoff time.Time, limit int) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM red_packets
		WHERE status = 'active' AND expire_at <= $1
		ORDER BY expire_at
		LIMIT $2`,
		cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list expired packets: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan packet id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AttachMessage links the packet to the chat message carrying its claim
// button, once the message has been sent.
func (r *Packets) AttachMessage(ctx context.Context, id, chatID int64, messageID int) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE red_packets SET message_id = $3, updated_at = now()
		WHERE id = $1 AND chat_id = $2`,
		id, chatID, messageID,
	)
	if err != nil {
		return fmt.Errorf("attach message: %w", err)
	}
	return nil
}
