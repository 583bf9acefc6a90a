// internal/usecase/initiate_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"funding-service/internal/domain"
	"funding-service/internal/metrics"
	"funding-service/internal/provider"
	"funding-service/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxRefAttempts = 3

type InitiateConfig struct {
	RefPrefix          string
	Currency           string
	DefaultRedirectURL string
}

type InitiateRequest struct {
	Owner       string
	PayerEmail  string
	PayerName   string
	Amount      decimal.Decimal
	RedirectURL string
}

type InitiateResult struct {
	CheckoutURL string
	Transaction *domain.Transaction
}

type InitiateUsecase struct {
	store   repository.LedgerStore
	gateway provider.Gateway
	config  InitiateConfig
	logger  *zap.Logger
}

func NewInitiateUsecase(store repository.LedgerStore, gateway provider.Gateway, cfg InitiateConfig, logger *zap.Logger) *InitiateUsecase {
	return &InitiateUsecase{
		store:   store,
		gateway: gateway,
		config:  cfg,
		logger:  logger,
	}
}

// Initiate registers a deposit with the gateway and records it as PENDING.
// Nothing is persisted unless the gateway accepted the payment.
func (uc *InitiateUsecase) Initiate(ctx context.Context, req *InitiateRequest) (*InitiateResult, error) {
	const op = "initiate"

	if err := domain.ValidateAmount(req.Amount); err != nil {
		metrics.IncInitiation("invalid")
		return nil, domain.ValidationError(op, err.Error())
	}
	if strings.TrimSpace(req.Owner) == "" {
		metrics.IncInitiation("invalid")
		return nil, domain.ValidationError(op, "owner is required")
	}
	if strings.TrimSpace(req.PayerEmail) == "" {
		metrics.IncInitiation("invalid")
		return nil, domain.ValidationError(op, "payer email is required")
	}

	if _, err := uc.store.EnsureWallet(ctx, req.Owner, uc.config.Currency); err != nil {
		metrics.IncInitiation("error")
		return nil, fmt.Errorf("failed to ensure wallet: %w", err)
	}

	redirectURL := req.RedirectURL
	if redirectURL == "" {
		redirectURL = uc.config.DefaultRedirectURL
	}
	amount := req.Amount.Round(domain.AmountScale)
	description := "Wallet funding of " + amount.StringFixed(domain.AmountScale)

	// A reference clash is only visible once the row is written, so each
	// attempt registers a fresh reference with the gateway. Abandoned gateway
	// records never reach the payer.
	for attempt := 1; attempt <= maxRefAttempts; attempt++ {
		internalRef := domain.NewInternalRef(uc.config.RefPrefix)

		init, err := uc.gateway.InitializePayment(ctx, &provider.InitRequest{
			Amount:         amount,
			PayerEmail:     req.PayerEmail,
			PayerName:      req.PayerName,
			IdempotencyRef: internalRef,
			RedirectURL:    redirectURL,
			Description:    description,
		})
		if err != nil {
			metrics.IncInitiation("gateway_error")
			uc.logger.Error("payment initialization failed",
				zap.String("owner", req.Owner),
				zap.String("internal_ref", internalRef),
				zap.Error(err))
			if domain.KindOf(err) == "" {
				err = domain.GatewayError(op, "payment initialization failed", err)
			}
			return nil, err
		}

		desc := description
		tx := &domain.Transaction{
			InternalRef: internalRef,
			ExternalRef: init.ExternalRef,
			Owner:       req.Owner,
			Amount:      amount,
			Currency:    uc.config.Currency,
			Kind:        domain.TxKindDeposit,
			Status:      domain.TxStatusPending,
			Description: &desc,
			Metadata:    init.RawResponse,
		}

		err = uc.store.CreatePending(ctx, tx)
		if errors.Is(err, domain.ErrDuplicateRef) {
			uc.logger.Warn("reference collision, regenerating",
				zap.String("internal_ref", internalRef),
				zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			metrics.IncInitiation("error")
			return nil, fmt.Errorf("failed to persist transaction: %w", err)
		}

		metrics.IncInitiation("created")
		uc.logger.Info("funding initiated",
			zap.String("owner", req.Owner),
			zap.String("internal_ref", tx.InternalRef),
			zap.String("payment_reference", tx.ExternalRef),
			zap.String("amount", amount.StringFixed(domain.AmountScale)))

		return &InitiateResult{CheckoutURL: init.CheckoutURL, Transaction: tx}, nil
	}

	metrics.IncInitiation("conflict")
	return nil, domain.ConflictError(op, "could not allocate a unique reference", domain.ErrDuplicateRef)
}
