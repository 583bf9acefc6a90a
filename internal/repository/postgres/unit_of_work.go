package postgres

import (
	"context"
	"errors"
	"fmt"

	"funding-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

const checkViolation = "23514"

type unitOfWork struct {
	tx   pgx.Tx
	done bool
}

// LockTransaction takes a row lock (SELECT FOR UPDATE). Concurrent
// reconcilers of the same row queue here until the holder commits.
func (u *unitOfWork) LockTransaction(ctx context.Context, id int64) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1 FOR UPDATE`
	return scanTransaction(u.tx.QueryRow(ctx, query, id))
}

// Settle is the conditional update: it only touches the row while it is
// still PENDING, so a second settle of the same row affects nothing.
func (u *unitOfWork) Settle(ctx context.Context, id int64, s domain.Settlement) (*domain.Transaction, error) {
	if !s.Status.IsTerminal() {
		return nil, fmt.Errorf("settle: %s is not a terminal status", s.Status)
	}

	var paymentMethod *string
	if s.PaymentMethod != "" {
		paymentMethod = &s.PaymentMethod
	}

	query := `
		UPDATE transactions
		SET
			status = $1,
			payment_method = COALESCE($2, payment_method),
			metadata = COALESCE($3, metadata),
			completed_at = NOW(),
			updated_at = NOW()
		WHERE id = $4 AND status = 'PENDING'
		RETURNING ` + transactionColumns

	t, err := scanTransaction(u.tx.QueryRow(ctx, query, s.Status, paymentMethod, nullableJSON(s.Metadata), id))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrNotPending
	}
	return t, err
}

func (u *unitOfWork) AdjustBalance(ctx context.Context, owner string, delta decimal.Decimal) (*domain.Wallet, error) {
	query := `
		UPDATE wallets
		SET balance = balance + $1, updated_at = NOW()
		WHERE owner_id = $2
		RETURNING ` + walletColumns

	w, err := scanWallet(u.tx.QueryRow(ctx, query, delta, owner))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == checkViolation {
			return nil, domain.ErrNegativeBalance
		}
		return nil, err
	}
	return w, nil
}

func (u *unitOfWork) Commit(ctx context.Context) error {
	if u.done {
		return nil
	}
	u.done = true
	if err := u.tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (u *unitOfWork) Rollback(ctx context.Context) error {
	if u.done {
		return nil
	}
	u.done = true
	if err := u.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}
