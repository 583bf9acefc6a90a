// internal/repository/ledger.go
package repository

import (
	"context"
	"time"

	"funding-service/internal/domain"

	"github.com/shopspring/decimal"
)

// LedgerStore is the persisted set of transactions and wallets. Lookups
// return domain.ErrNotFound when nothing matches.
type LedgerStore interface {
	FindByExternalRef(ctx context.Context, externalRef string) (*domain.Transaction, error)
	FindByInternalRefAndOwner(ctx context.Context, internalRef, owner string) (*domain.Transaction, error)

	// CreatePending inserts a PENDING transaction. A clash on internal_ref
	// returns domain.ErrDuplicateRef.
	CreatePending(ctx context.Context, tx *domain.Transaction) error

	ListByOwner(ctx context.Context, owner string, limit, offset int) ([]*domain.Transaction, error)

	// ListStalePending returns pending deposits created before olderThan,
	// never-checked rows first, then least recently checked.
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]*domain.Transaction, error)
	// MarkChecked records that the sweeper just polled the transaction.
	MarkChecked(ctx context.Context, id int64) error

	// EnsureWallet returns the owner's wallet, creating it with a zero
	// balance on first use.
	EnsureWallet(ctx context.Context, owner, currency string) (*domain.Wallet, error)
	GetWallet(ctx context.Context, owner string) (*domain.Wallet, error)

	// Begin opens a unit of work. Callers must end it with Commit or
	// Rollback on every path; Rollback after Commit is a no-op.
	Begin(ctx context.Context) (UnitOfWork, error)
}

// UnitOfWork is one atomic scope over the ledger. Everything done through it
// becomes visible on Commit or not at all.
type UnitOfWork interface {
	// LockTransaction loads the transaction and holds it exclusively until
	// the unit of work ends.
	LockTransaction(ctx context.Context, id int64) (*domain.Transaction, error)

	// Settle moves a PENDING transaction to a terminal status. It returns
	// domain.ErrNotPending if the row is no longer PENDING.
	Settle(ctx context.Context, id int64, s domain.Settlement) (*domain.Transaction, error)

	// AdjustBalance adds delta to the owner's wallet and returns the result.
	// A negative resulting balance is rejected.
	AdjustBalance(ctx context.Context, owner string, delta decimal.Decimal) (*domain.Wallet, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
