package provider

import (
	"context"
	"encoding/json"

	"funding-service/internal/domain"

	"github.com/shopspring/decimal"
)

// Gateway is the outbound contract with the payment provider. Calls are
// unary and never retried; every failure is returned to the caller.
type Gateway interface {
	// Authenticate exchanges the configured credentials for a bearer token.
	Authenticate(ctx context.Context) (string, error)

	// InitializePayment registers a payment and returns the gateway reference
	// and the checkout URL the payer is redirected to.
	InitializePayment(ctx context.Context, req *InitRequest) (*InitResult, error)

	// QueryStatus fetches the current status of a payment by gateway reference.
	QueryStatus(ctx context.Context, externalRef string) (*StatusResult, error)
}

type InitRequest struct {
	Amount         decimal.Decimal
	PayerEmail     string
	PayerName      string
	IdempotencyRef string
	RedirectURL    string
	Description    string
}

type InitResult struct {
	ExternalRef string
	CheckoutURL string
	RawResponse json.RawMessage
}

type StatusResult struct {
	ExternalRef   string
	Status        domain.ExternalStatus
	RawStatus     string
	PaymentMethod string
	AmountPaid    decimal.Decimal
	RawResponse   json.RawMessage
}
