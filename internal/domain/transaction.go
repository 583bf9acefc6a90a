// internal/domain/transaction.go
package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type TxStatus string
type TxKind string

const (
	TxStatusPending   TxStatus = "PENDING"
	TxStatusCompleted TxStatus = "COMPLETED"
	TxStatusFailed    TxStatus = "FAILED"
)

const (
	TxKindDeposit    TxKind = "DEPOSIT"
	TxKindWithdrawal TxKind = "WITHDRAWAL"
)

func (s TxStatus) IsTerminal() bool {
	switch s {
	case TxStatusCompleted, TxStatusFailed:
		return true
	case TxStatusPending:
		return false
	}
	return false
}

func (s TxStatus) Valid() bool {
	switch s {
	case TxStatusPending, TxStatusCompleted, TxStatusFailed:
		return true
	}
	return false
}

func (k TxKind) Valid() bool {
	switch k {
	case TxKindDeposit, TxKindWithdrawal:
		return true
	}
	return false
}

// Sign is the direction a completed transaction of this kind moves the
// wallet balance.
func (k TxKind) Sign() int {
	switch k {
	case TxKindDeposit:
		return 1
	case TxKindWithdrawal:
		return -1
	}
	return 0
}

// Transaction is one funding attempt. InternalRef is ours, ExternalRef is the
// gateway's; both are unique.
type Transaction struct {
	ID            int64           `json:"id"`
	InternalRef   string          `json:"reference"`
	ExternalRef   string          `json:"payment_reference"`
	Owner         string          `json:"owner"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Kind          TxKind          `json:"transaction_type"`
	Status        TxStatus        `json:"status"`
	PaymentMethod *string         `json:"payment_method,omitempty"`
	Description   *string         `json:"description,omitempty"`
	Metadata      json.RawMessage `json:"-"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

// Clone returns a copy that shares no mutable state with t.
func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	c := *t
	if t.PaymentMethod != nil {
		pm := *t.PaymentMethod
		c.PaymentMethod = &pm
	}
	if t.Description != nil {
		d := *t.Description
		c.Description = &d
	}
	if t.Metadata != nil {
		c.Metadata = append(json.RawMessage(nil), t.Metadata...)
	}
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		c.CompletedAt = &at
	}
	return &c
}

// Wallet is the per-user balance. It is credited only by completed deposits.
type Wallet struct {
	ID        int64           `json:"id"`
	Owner     string          `json:"owner"`
	Balance   decimal.Decimal `json:"balance"`
	Currency  string          `json:"currency"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Settlement is what the engine records when a transaction reaches a
// terminal status.
type Settlement struct {
	Status        TxStatus
	PaymentMethod string
	Metadata      json.RawMessage
}

// Delta is the signed balance change a completed transaction applies.
func (t *Transaction) Delta() decimal.Decimal {
	return t.Amount.Mul(decimal.NewFromInt(int64(t.Kind.Sign())))
}
