// internal/usecase/wallet_uc.go
package usecase

import (
	"context"
	"errors"

	"funding-service/internal/domain"
	"funding-service/internal/repository"

	"go.uber.org/zap"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type WalletUsecase struct {
	store    repository.LedgerStore
	balances BalanceCache
	currency string
	logger   *zap.Logger
}

func NewWalletUsecase(store repository.LedgerStore, balances BalanceCache, currency string, logger *zap.Logger) *WalletUsecase {
	return &WalletUsecase{
		store:    store,
		balances: balances,
		currency: currency,
		logger:   logger,
	}
}

func (uc *WalletUsecase) EnsureWallet(ctx context.Context, owner string) (*domain.Wallet, error) {
	if owner == "" {
		return nil, domain.ValidationError("wallet.ensure", "owner is required")
	}
	return uc.store.EnsureWallet(ctx, owner, uc.currency)
}

// GetBalance returns the owner's wallet, from the cache when it holds one. A
// wallet that does not exist yet is created with a zero balance.
func (uc *WalletUsecase) GetBalance(ctx context.Context, owner string) (*domain.Wallet, error) {
	if owner == "" {
		return nil, domain.ValidationError("wallet.balance", "owner is required")
	}

	if w, ok := uc.balances.Get(ctx, owner); ok {
		return w, nil
	}

	w, err := uc.store.GetWallet(ctx, owner)
	if errors.Is(err, domain.ErrNotFound) {
		w, err = uc.store.EnsureWallet(ctx, owner, uc.currency)
	}
	if err != nil {
		uc.logger.Error("failed to load wallet", zap.String("owner", owner), zap.Error(err))
		return nil, err
	}

	// A credit committed after the read above has already written its
	// wallet; never overwrite it with ours.
	uc.balances.SetIfAbsent(ctx, w)
	return w, nil
}

// ListTransactions returns the owner's transactions newest first.
func (uc *WalletUsecase) ListTransactions(ctx context.Context, owner string, limit, offset int) ([]*domain.Transaction, error) {
	if owner == "" {
		return nil, domain.ValidationError("wallet.transactions", "owner is required")
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return uc.store.ListByOwner(ctx, owner, limit, offset)
}
