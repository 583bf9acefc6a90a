// internal/repository/postgres/ledger_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"funding-service/internal/domain"
	"funding-service/internal/repository"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

const transactionColumns = `
	id, internal_ref, external_ref, owner_id, amount, currency,
	kind, status, payment_method, description, metadata,
	created_at, updated_at, completed_at`

const walletColumns = `id, owner_id, balance, currency, created_at, updated_at`

type ledgerRepo struct {
	db *pgxpool.Pool
}

func NewLedgerRepository(db *pgxpool.Pool) repository.LedgerStore {
	return &ledgerRepo{db: db}
}

func (r *ledgerRepo) FindByExternalRef(ctx context.Context, externalRef string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE external_ref = $1`
	return scanTransaction(r.db.QueryRow(ctx, query, externalRef))
}

func (r *ledgerRepo) FindByInternalRefAndOwner(ctx context.Context, internalRef, owner string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE internal_ref = $1 AND owner_id = $2`
	return scanTransaction(r.db.QueryRow(ctx, query, internalRef, owner))
}

func (r *ledgerRepo) CreatePending(ctx context.Context, t *domain.Transaction) error {
	query := `
		INSERT INTO transactions (
			internal_ref, external_ref, owner_id, amount, currency,
			kind, status, description, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		t.InternalRef,
		t.ExternalRef,
		t.Owner,
		t.Amount,
		t.Currency,
		t.Kind,
		domain.TxStatusPending,
		t.Description,
		nullableJSON(t.Metadata),
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateRef, pgErr.ConstraintName)
		}
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	t.Status = domain.TxStatusPending
	return nil
}

func (r *ledgerRepo) ListByOwner(ctx context.Context, owner string, limit, offset int) ([]*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM transactions
		WHERE owner_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, owner, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return collectTransactions(rows)
}

func (r *ledgerRepo) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM transactions
		WHERE status = 'PENDING' AND kind = 'DEPOSIT' AND created_at < $1
		ORDER BY last_checked_at ASC NULLS FIRST, created_at ASC, id ASC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending transactions: %w", err)
	}
	return collectTransactions(rows)
}

func (r *ledgerRepo) MarkChecked(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE transactions SET last_checked_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark transaction checked: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *ledgerRepo) EnsureWallet(ctx context.Context, owner, currency string) (*domain.Wallet, error) {
	query := `
		INSERT INTO wallets (owner_id, balance, currency)
		VALUES ($1, 0, $2)
		ON CONFLICT (owner_id) DO UPDATE SET owner_id = EXCLUDED.owner_id
		RETURNING ` + walletColumns

	return scanWallet(r.db.QueryRow(ctx, query, owner, currency))
}

func (r *ledgerRepo) GetWallet(ctx context.Context, owner string) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE owner_id = $1`
	return scanWallet(r.db.QueryRow(ctx, query, owner))
}

func (r *ledgerRepo) Begin(ctx context.Context) (repository.UnitOfWork, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &unitOfWork{tx: tx}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var t domain.Transaction
	err := row.Scan(
		&t.ID,
		&t.InternalRef,
		&t.ExternalRef,
		&t.Owner,
		&t.Amount,
		&t.Currency,
		&t.Kind,
		&t.Status,
		&t.PaymentMethod,
		&t.Description,
		&t.Metadata,
		&t.CreatedAt,
		&t.UpdatedAt,
		&t.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}
	return &t, nil
}

func collectTransactions(rows pgx.Rows) ([]*domain.Transaction, error) {
	defer rows.Close()

	transactions := make([]*domain.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return transactions, nil
}

func scanWallet(row rowScanner) (*domain.Wallet, error) {
	var w domain.Wallet
	err := row.Scan(&w.ID, &w.Owner, &w.Balance, &w.Currency, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan wallet: %w", err)
	}
	return &w, nil
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
