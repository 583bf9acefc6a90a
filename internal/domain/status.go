package domain

import "strings"

// ExternalStatus is the payment status reported by the gateway.
type ExternalStatus string

const (
	ExternalPaid      ExternalStatus = "PAID"
	ExternalPending   ExternalStatus = "PENDING"
	ExternalFailed    ExternalStatus = "FAILED"
	ExternalCancelled ExternalStatus = "CANCELLED"
	ExternalUnknown   ExternalStatus = "UNKNOWN"
)

// ParseExternalStatus normalizes a raw gateway status. Anything outside the
// known set (OVERPAID, PARTIALLY_PAID, EXPIRED, ...) becomes ExternalUnknown.
func ParseExternalStatus(raw string) ExternalStatus {
	switch s := ExternalStatus(strings.ToUpper(strings.TrimSpace(raw))); s {
	case ExternalPaid, ExternalPending, ExternalFailed, ExternalCancelled:
		return s
	}
	return ExternalUnknown
}

// Transition maps an external observation onto the transaction lifecycle.
// It returns the next status and whether a transition happens. Terminal
// statuses never move; unknown or pending observations leave PENDING alone.
func Transition(current TxStatus, observed ExternalStatus) (TxStatus, bool) {
	if current.IsTerminal() {
		return current, false
	}

	switch observed {
	case ExternalPaid:
		return TxStatusCompleted, true
	case ExternalFailed, ExternalCancelled:
		return TxStatusFailed, true
	case ExternalPending, ExternalUnknown:
		return current, false
	}
	return current, false
}
