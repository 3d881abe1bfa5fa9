package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emberworks/hongbao/internal/domain"
)

// Wallets is the currency ledger: per-user balances mutated only through
// atomic debit/credit, each paired with a transaction row in the same
// database transaction.
type Wallets struct {
	pool *pgxpool.Pool
}

func NewWallets(pool *pgxpool.Pool) *Wallets {
	return &Wallets{pool: pool}
}

// Debit atomically subtracts amount from the user's balance. The balance
// predicate makes the check-and-subtract a single statement, so two
// concurrent debits can never overdraw.
func (r *Wallets) Debit(ctx context.Context, userID, amount int64, eventType, description string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var balance int64
	err = tx.QueryRow(ctx, `
		UPDATE users SET balance = balance - $2, updated_at = now()
		WHERE id = $1 AND balance >= $2
		RETURNING balance`,
		userID, amount,
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrInsufficientBalance
		}
		return fmt.Errorf("debit balance: %w", err)
	}

	if err := insertTransaction(ctx, tx, userID, -amount, balance, eventType, description); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Credit atomically adds amount to the user's balance and returns the new
// balance.
func (r *Wallets) Credit(ctx context.Context, userID, amount int64, eventType, description string) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var balance int64
	err = tx.QueryRow(ctx, `
		UPDATE users SET balance = balance + $2, updated_at = now()
		WHERE id = $1
		RETURNING balance`,
		userID, amount,
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrUserNotFound
		}
		return 0, fmt.Errorf("credit balance: %w", err)
	}

	if err := insertTransaction(ctx, tx, userID, amount, balance, eventType, description); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return balance, nil
}

func insertTransaction(ctx context.Context, tx pgx.Tx, userID, amount, balanceAfter int64, eventType, description string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO currency_transactions (user_id, amount, balance_after, event_type, description, reference)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		userID, amount, balanceAfter, eventType, description, uuid.New().String(),
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (r *Wallets) GetBalance(ctx context.Context, userID int64) (int64, error) {
	var balance int64
	err := r.pool.QueryRow(ctx,
		`SELECT balance FROM users WHERE id = $1`, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrUserNotFound
		}
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return balance, nil
}

// ListTransactions returns the user's most recent ledger entries, newest
// first.
func (r *Wallets) ListTransactions(ctx context.Context, userID int64, limit int) ([]domain.Transaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, amount, balance_after, event_type, description, reference, created_at
		FROM currency_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.BalanceAfter, &t.EventType, &t.Description, &t.Reference, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}
