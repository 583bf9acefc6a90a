package domain

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindAuth       ErrorKind = "auth"
	KindGateway    ErrorKind = "gateway"
	KindNotFound   ErrorKind = "not_found"
	KindSignature  ErrorKind = "signature"
	KindConflict   ErrorKind = "conflict"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicateRef   = errors.New("duplicate reference")
	ErrInvalidAmount  = errors.New("amount must be greater than 0")
	ErrAmountRequired = errors.New("amount is required")
	// ErrInvalidAmountFormat and ErrInvalidAmountScale reject input the
	// ledger cannot store exactly.
	ErrInvalidAmountFormat = errors.New("invalid amount")
	ErrInvalidAmountScale  = errors.New("amount must have at most 2 decimal places")
	ErrInvalidSignature    = errors.New("invalid webhook signature")
	ErrNotPending          = errors.New("transaction is no longer pending")
	ErrNegativeBalance     = errors.New("wallet balance cannot go negative")
)

// Error carries a kind so handlers can map failures without string matching.
type Error struct {
	Kind ErrorKind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op + ": " + string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

func ValidationError(op, msg string) error {
	return newError(KindValidation, op, msg, nil)
}

func AuthError(op string, err error) error {
	return newError(KindAuth, op, "gateway authentication failed", err)
}

func GatewayError(op, msg string, err error) error {
	return newError(KindGateway, op, msg, err)
}

func NotFoundError(op, msg string) error {
	return newError(KindNotFound, op, msg, ErrNotFound)
}

func SignatureError(op string) error {
	return newError(KindSignature, op, "", ErrInvalidSignature)
}

func ConflictError(op, msg string, err error) error {
	return newError(KindConflict, op, msg, err)
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
