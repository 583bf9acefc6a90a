// internal/usecase/reconcile_uc.go
package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"funding-service/internal/domain"
	"funding-service/internal/events"
	"funding-service/internal/metrics"
	"funding-service/internal/provider"
	"funding-service/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// EventSuccessfulTransaction is the only webhook event that settles anything.
const EventSuccessfulTransaction = "SUCCESSFUL_TRANSACTION"

// Observation is an externally reported payment state.
type Observation struct {
	Status        domain.ExternalStatus
	PaymentMethod string
	Metadata      json.RawMessage
}

// WebhookResult tells the caller whether the notification was acted on.
// Accepted is false for event types that are acknowledged and ignored.
type WebhookResult struct {
	Accepted    bool
	Transaction *domain.Transaction
}

// SweepReport summarises one pass over stale pending transactions.
type SweepReport struct {
	Scanned      int
	Transitioned int
	Failed       int
}

type ReconcileUsecase struct {
	store     repository.LedgerStore
	gateway   provider.Gateway
	verifier  SignatureVerifier
	publisher events.Publisher
	balances  BalanceCache
	logger    *zap.Logger
}

func NewReconcileUsecase(
	store repository.LedgerStore,
	gateway provider.Gateway,
	verifier SignatureVerifier,
	publisher events.Publisher,
	balances BalanceCache,
	logger *zap.Logger,
) *ReconcileUsecase {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &ReconcileUsecase{
		store:     store,
		gateway:   gateway,
		verifier:  verifier,
		publisher: publisher,
		balances:  balances,
		logger:    logger,
	}
}

// ReconcileByPoll returns the owner's transaction, asking the gateway for its
// status first when it is still pending. Terminal transactions are returned
// as stored without a gateway call.
func (uc *ReconcileUsecase) ReconcileByPoll(ctx context.Context, internalRef, owner string) (*domain.Transaction, error) {
	const op = "reconcile.poll"

	tx, err := uc.store.FindByInternalRefAndOwner(ctx, internalRef, owner)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NotFoundError(op, "transaction not found")
		}
		return nil, err
	}

	if tx.Status.IsTerminal() {
		metrics.IncReconciliation(PathPoll, metrics.OutcomeDuplicate)
		return tx, nil
	}

	return uc.reconcileWithGateway(ctx, tx, PathPoll)
}

// ReconcileByWebhook authenticates a gateway notification against the exact
// bytes received and applies it.
func (uc *ReconcileUsecase) ReconcileByWebhook(ctx context.Context, rawBody []byte, signature string) (*WebhookResult, error) {
	const op = "reconcile.webhook"

	if !uc.verifier.Verify(rawBody, signature) {
		metrics.IncWebhookRejected("signature")
		uc.logger.Warn("webhook signature rejected", zap.Int("payload_size", len(rawBody)))
		return nil, domain.SignatureError(op)
	}

	var payload webhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		metrics.IncWebhookRejected("malformed")
		return nil, domain.ValidationError(op, "malformed webhook payload")
	}

	if payload.EventType != EventSuccessfulTransaction {
		uc.logger.Info("ignoring webhook event", zap.String("event_type", payload.EventType))
		return &WebhookResult{Accepted: false}, nil
	}

	var data successfulTransactionData
	if len(payload.EventData) > 0 {
		if err := json.Unmarshal(payload.EventData, &data); err != nil {
			metrics.IncWebhookRejected("malformed")
			return nil, domain.ValidationError(op, "malformed webhook event data")
		}
	}
	if data.PaymentReference == "" {
		metrics.IncWebhookRejected("missing_reference")
		return nil, domain.ValidationError(op, "missing payment reference")
	}

	tx, err := uc.store.FindByExternalRef(ctx, data.PaymentReference)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			uc.logger.Warn("webhook for unknown transaction",
				zap.String("payment_reference", data.PaymentReference))
			return nil, domain.NotFoundError(op, "transaction not found")
		}
		return nil, err
	}

	if tx.Status.IsTerminal() {
		metrics.IncReconciliation(PathWebhook, metrics.OutcomeDuplicate)
		return &WebhookResult{Accepted: true, Transaction: tx}, nil
	}

	if !data.AmountPaid.IsZero() && !data.AmountPaid.Equal(tx.Amount) {
		uc.logger.Warn("webhook amount differs from transaction amount",
			zap.String("internal_ref", tx.InternalRef),
			zap.String("expected", tx.Amount.StringFixed(domain.AmountScale)),
			zap.String("paid", data.AmountPaid.StringFixed(domain.AmountScale)))
	}

	settled, err := uc.ApplyExternalStatus(ctx, tx, Observation{
		Status:        domain.ExternalPaid,
		PaymentMethod: data.PaymentMethod,
		Metadata:      payload.EventData,
	}, PathWebhook)
	if err != nil {
		return nil, err
	}
	return &WebhookResult{Accepted: true, Transaction: settled}, nil
}

// ReconcileStale polls the gateway for pending transactions created before
// olderThan, least recently checked first. Every polled transaction is
// stamped as checked so rows the gateway keeps reporting as pending rotate to
// the back of the queue. Failures on one transaction do not stop the pass.
func (uc *ReconcileUsecase) ReconcileStale(ctx context.Context, olderThan time.Time, limit int) (SweepReport, error) {
	var report SweepReport

	pending, err := uc.store.ListStalePending(ctx, olderThan, limit)
	if err != nil {
		return report, err
	}

	for _, tx := range pending {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		report.Scanned++

		got, err := uc.reconcileWithGateway(ctx, tx, PathSweep)
		if markErr := uc.store.MarkChecked(ctx, tx.ID); markErr != nil {
			uc.logger.Warn("failed to stamp sweep check",
				zap.String("internal_ref", tx.InternalRef),
				zap.Error(markErr))
		}
		if err != nil {
			report.Failed++
			uc.logger.Warn("sweep reconcile failed",
				zap.String("internal_ref", tx.InternalRef),
				zap.Error(err))
			continue
		}
		if got.Status.IsTerminal() {
			report.Transitioned++
		}
	}
	return report, nil
}

func (uc *ReconcileUsecase) reconcileWithGateway(ctx context.Context, tx *domain.Transaction, path string) (*domain.Transaction, error) {
	status, err := uc.gateway.QueryStatus(ctx, tx.ExternalRef)
	if err != nil {
		metrics.IncReconciliation(path, metrics.OutcomeError)
		uc.logger.Error("gateway status query failed",
			zap.String("internal_ref", tx.InternalRef),
			zap.String("path", path),
			zap.Error(err))
		return nil, err
	}

	return uc.ApplyExternalStatus(ctx, tx, Observation{
		Status:        status.Status,
		PaymentMethod: status.PaymentMethod,
		Metadata:      status.RawResponse,
	}, path)
}

// ApplyExternalStatus moves tx to the status implied by obs, crediting the
// wallet in the same unit of work when it completes. It is safe to call
// concurrently for the same transaction: exactly one caller transitions it
// and the rest get the already-settled row back.
func (uc *ReconcileUsecase) ApplyExternalStatus(ctx context.Context, tx *domain.Transaction, obs Observation, path string) (*domain.Transaction, error) {
	if _, ok := domain.Transition(tx.Status, obs.Status); !ok {
		metrics.IncReconciliation(path, metrics.OutcomeNotFinal)
		uc.logger.Debug("no transition for observed status",
			zap.String("internal_ref", tx.InternalRef),
			zap.String("status", string(tx.Status)),
			zap.String("observed", string(obs.Status)))
		return tx, nil
	}

	settled, wallet, transitioned, err := uc.settle(ctx, tx.ID, obs)
	if err != nil {
		if errors.Is(err, domain.ErrNotPending) {
			metrics.IncReconciliation(path, metrics.OutcomeDuplicate)
			return uc.store.FindByExternalRef(ctx, tx.ExternalRef)
		}
		metrics.IncReconciliation(path, metrics.OutcomeError)
		uc.logger.Error("failed to settle transaction",
			zap.String("internal_ref", tx.InternalRef),
			zap.String("path", path),
			zap.Error(err))
		return nil, err
	}
	if !transitioned {
		// another reconciler got there first; settled is the committed row
		metrics.IncReconciliation(path, metrics.OutcomeDuplicate)
		return settled, nil
	}

	metrics.IncReconciliation(path, metrics.OutcomeTransitioned)
	if wallet != nil {
		metrics.IncWalletCredit()
	}
	uc.logger.Info("transaction settled",
		zap.String("internal_ref", settled.InternalRef),
		zap.String("payment_reference", settled.ExternalRef),
		zap.String("status", string(settled.Status)),
		zap.String("path", path))

	uc.afterCommit(ctx, settled, wallet, path)
	return settled, nil
}

// settle re-checks the row under lock, then updates its status and adjusts
// the balance in one unit of work. transitioned is false when the locked row
// no longer needed a transition.
func (uc *ReconcileUsecase) settle(ctx context.Context, id int64, obs Observation) (tx *domain.Transaction, wallet *domain.Wallet, transitioned bool, err error) {
	uow, err := uc.store.Begin(ctx)
	if err != nil {
		return nil, nil, false, err
	}
	defer func() { _ = uow.Rollback(ctx) }()

	locked, err := uow.LockTransaction(ctx, id)
	if err != nil {
		return nil, nil, false, err
	}

	next, ok := domain.Transition(locked.Status, obs.Status)
	if !ok {
		return locked, nil, false, nil
	}

	settled, err := uow.Settle(ctx, id, domain.Settlement{
		Status:        next,
		PaymentMethod: obs.PaymentMethod,
		Metadata:      obs.Metadata,
	})
	if err != nil {
		return nil, nil, false, err
	}

	if next == domain.TxStatusCompleted {
		wallet, err = uow.AdjustBalance(ctx, settled.Owner, settled.Delta())
		if err != nil {
			return nil, nil, false, err
		}
	}

	if err := uow.Commit(ctx); err != nil {
		return nil, nil, false, err
	}
	return settled, wallet, true, nil
}

// afterCommit runs once per transition. The event outlives the request that
// caused it, so it is published on a context that is not cancelled with it.
func (uc *ReconcileUsecase) afterCommit(ctx context.Context, tx *domain.Transaction, wallet *domain.Wallet, path string) {
	if wallet != nil {
		uc.balances.Set(ctx, wallet)
	}
	if err := uc.publisher.Publish(context.WithoutCancel(ctx), events.NewLedgerEvent(tx, wallet, path)); err != nil {
		uc.logger.Warn("ledger event not published",
			zap.String("internal_ref", tx.InternalRef),
			zap.Error(err))
	}
}

type webhookPayload struct {
	EventType string          `json:"eventType"`
	EventData json.RawMessage `json:"eventData"`
}

type successfulTransactionData struct {
	PaymentReference     string          `json:"paymentReference"`
	TransactionReference string          `json:"transactionReference"`
	PaymentMethod        string          `json:"paymentMethod"`
	PaymentStatus        string          `json:"paymentStatus"`
	AmountPaid           decimal.Decimal `json:"amountPaid"`
}
