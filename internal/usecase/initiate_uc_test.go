package usecase

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"funding-service/internal/domain"
	"funding-service/internal/provider"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newInitiate(f *fixture) *InitiateUsecase {
	return NewInitiateUsecase(f.store, f.gateway, InitiateConfig{
		RefPrefix:          "wal",
		Currency:           "NGN",
		DefaultRedirectURL: "https://app.test/wallet",
	}, zap.NewNop())
}

func TestInitiate_PersistsPendingAfterGateway(t *testing.T) {
	f := newFixture(t)
	var seen *provider.InitRequest
	f.gateway.initFn = func(_ context.Context, req *provider.InitRequest) (*provider.InitResult, error) {
		seen = req
		return &provider.InitResult{
			ExternalRef: "MNFY-REF-1",
			CheckoutURL: "https://checkout.test/1",
			RawResponse: json.RawMessage(`{"checkoutUrl":"https://checkout.test/1"}`),
		}, nil
	}

	res, err := newInitiate(f).Initiate(context.Background(), &InitiateRequest{
		Owner:      "user-1",
		PayerEmail: "ada@example.com",
		Amount:     decimal.RequireFromString("1500.5"),
	})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.test/1", res.CheckoutURL)

	require.NotNil(t, seen)
	assert.True(t, strings.HasPrefix(seen.IdempotencyRef, "WAL-"))
	assert.Equal(t, "https://app.test/wallet", seen.RedirectURL)
	assert.Equal(t, "Wallet funding of 1500.50", seen.Description)

	stored, err := f.store.FindByInternalRefAndOwner(context.Background(), res.Transaction.InternalRef, "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusPending, stored.Status)
	assert.Equal(t, domain.TxKindDeposit, stored.Kind)
	assert.Equal(t, "MNFY-REF-1", stored.ExternalRef)
	assert.Equal(t, "1500.50", stored.Amount.StringFixed(2))
	assert.JSONEq(t, `{"checkoutUrl":"https://checkout.test/1"}`, string(stored.Metadata))

	// the wallet exists with a zero balance
	assert.True(t, f.balance(t, "user-1").IsZero())
}

func TestInitiate_CallerRedirectWins(t *testing.T) {
	f := newFixture(t)
	var redirect string
	f.gateway.initFn = func(_ context.Context, req *provider.InitRequest) (*provider.InitResult, error) {
		redirect = req.RedirectURL
		return &provider.InitResult{ExternalRef: "MNFY-1", CheckoutURL: "https://c"}, nil
	}

	_, err := newInitiate(f).Initiate(context.Background(), &InitiateRequest{
		Owner:       "user-1",
		PayerEmail:  "ada@example.com",
		Amount:      decimal.NewFromInt(10),
		RedirectURL: "https://mine.test/done",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://mine.test/done", redirect)
}

func TestInitiate_RejectsBadInput(t *testing.T) {
	f := newFixture(t)
	uc := newInitiate(f)

	cases := map[string]*InitiateRequest{
		"zero amount":     {Owner: "user-1", PayerEmail: "a@b.c", Amount: decimal.Zero},
		"negative amount": {Owner: "user-1", PayerEmail: "a@b.c", Amount: decimal.NewFromInt(-5)},
		"too precise":     {Owner: "user-1", PayerEmail: "a@b.c", Amount: decimal.RequireFromString("1.001")},
		"no owner":        {PayerEmail: "a@b.c", Amount: decimal.NewFromInt(5)},
		"no email":        {Owner: "user-1", Amount: decimal.NewFromInt(5)},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := uc.Initiate(context.Background(), req)
			assert.True(t, domain.IsKind(err, domain.KindValidation))
		})
	}
	assert.Zero(t, f.gateway.initCalls.Load())
}

func TestInitiate_GatewayFailurePersistsNothing(t *testing.T) {
	f := newFixture(t)
	f.gateway.initFn = func(context.Context, *provider.InitRequest) (*provider.InitResult, error) {
		return nil, domain.AuthError("login", nil)
	}

	_, err := newInitiate(f).Initiate(context.Background(), &InitiateRequest{
		Owner:      "user-1",
		PayerEmail: "ada@example.com",
		Amount:     decimal.NewFromInt(500),
	})
	assert.True(t, domain.IsKind(err, domain.KindAuth))

	txs, err := f.store.ListByOwner(context.Background(), "user-1", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestInitiate_RetriesOnReferenceCollision(t *testing.T) {
	f := newFixture(t)
	f.seedPending(t, "user-1", "WAL-TAKEN", "1.00")

	// the first attempt gets back a gateway reference that is already stored
	f.gateway.initFn = func(_ context.Context, req *provider.InitRequest) (*provider.InitResult, error) {
		if f.gateway.initCalls.Load() == 1 {
			return &provider.InitResult{ExternalRef: "MNFY-WAL-TAKEN", CheckoutURL: "https://c/old"}, nil
		}
		return &provider.InitResult{ExternalRef: "MNFY-" + req.IdempotencyRef, CheckoutURL: "https://c/new"}, nil
	}

	res, err := newInitiate(f).Initiate(context.Background(), &InitiateRequest{
		Owner:      "user-1",
		PayerEmail: "ada@example.com",
		Amount:     decimal.NewFromInt(20),
	})
	require.NoError(t, err)
	assert.Equal(t, "https://c/new", res.CheckoutURL)
	assert.EqualValues(t, 2, f.gateway.initCalls.Load())
}

func TestInitiate_GivesUpAfterRepeatedCollisions(t *testing.T) {
	f := newFixture(t)
	f.seedPending(t, "user-1", "WAL-TAKEN", "1.00")
	f.gateway.initFn = func(context.Context, *provider.InitRequest) (*provider.InitResult, error) {
		return &provider.InitResult{ExternalRef: "MNFY-WAL-TAKEN", CheckoutURL: "https://c"}, nil
	}

	_, err := newInitiate(f).Initiate(context.Background(), &InitiateRequest{
		Owner:      "user-1",
		PayerEmail: "ada@example.com",
		Amount:     decimal.NewFromInt(20),
	})
	assert.True(t, domain.IsKind(err, domain.KindConflict))
	assert.EqualValues(t, maxRefAttempts, f.gateway.initCalls.Load())
}
