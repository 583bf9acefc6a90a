// internal/usecase/main_uc.go
package usecase

import (
	"context"

	"funding-service/internal/domain"
)

// BalanceCache is the read-side wallet cache. It is never consulted when
// crediting.
type BalanceCache interface {
	Get(ctx context.Context, owner string) (*domain.Wallet, bool)
	// Set stores a wallet the ledger just committed, replacing any entry.
	Set(ctx context.Context, w *domain.Wallet)
	// SetIfAbsent fills a miss and never replaces an existing entry.
	SetIfAbsent(ctx context.Context, w *domain.Wallet)
}

// SignatureVerifier authenticates webhook bodies.
type SignatureVerifier interface {
	Verify(rawBody []byte, signatureHeader string) bool
}

// Reconciliation trigger paths.
const (
	PathPoll    = "poll"
	PathWebhook = "webhook"
	PathSweep   = "sweep"
)
