package types

import "errors"

// ErrorKind discriminates terminal failure causes. The UI boundary only
// ever sees a kind plus a human-readable message.
type ErrorKind string

const (
	// Fatal immediately, no retry.
	ErrParameterValidation ErrorKind = "parameter_validation"

	// Discovery timed out; remediation is a page reload.
	ErrProviderNotFound ErrorKind = "provider_not_found"

	// Retried up to the bound, then fatal.
	ErrConnection ErrorKind = "connection_failed"

	// Fatal immediately, retries skipped.
	ErrUserRejected ErrorKind = "user_rejected"

	// Fatal, requires manual user action, never auto-retried.
	ErrChainMismatch ErrorKind = "chain_mismatch"

	// Retried then degraded; the flow continues without the read.
	ErrBalanceRPC   ErrorKind = "balance_rpc"
	ErrAllowanceRPC ErrorKind = "allowance_rpc"

	// Fatal, surfaced before any transaction is sent.
	ErrInsufficientBalance ErrorKind = "insufficient_balance"

	// Fatal, includes the underlying revert reason.
	ErrSimulationRevert ErrorKind = "simulation_revert"

	// Approval transaction could not be submitted.
	ErrApproval ErrorKind = "approval_failed"

	// The splitter transaction submission itself failed.
	ErrExecution ErrorKind = "execution_failed"

	// Splitter ABI/address metadata unavailable and no fallback applied.
	ErrContractMetadata ErrorKind = "contract_metadata"

	// Logged only; never flips a successful payment to failed.
	ErrBackendNotify ErrorKind = "backend_notify"
)

// PaymentError is the discriminated error carried across the flow.
type PaymentError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *PaymentError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *PaymentError) Unwrap() error {
	return e.Cause
}

// NewError builds a PaymentError; cause may be nil.
func NewError(kind ErrorKind, msg string, cause error) *PaymentError {
	return &PaymentError{Kind: kind, Message: msg, Cause: cause}
}

// KindOf extracts the kind from any error in the chain, or "" when the
// error is not a PaymentError.
func KindOf(err error) ErrorKind {
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
