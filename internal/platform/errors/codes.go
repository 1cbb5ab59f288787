// Package errors provides structured error handling for the ledger.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Lookup errors
	CodeNotFound Code = "NOT_FOUND"

	// Input errors
	CodeValidation Code = "VALIDATION_FAILED"

	// Transfer lifecycle errors
	CodeInvalidModification    Code = "INVALID_MODIFICATION"
	CodeTransferExpired        Code = "TRANSFER_EXPIRED"
	CodeTransferNotConditional Code = "TRANSFER_NOT_CONDITIONAL"
	CodeUnmetCondition         Code = "UNMET_CONDITION"
	CodeUnauthorized           Code = "UNAUTHORIZED"
	CodeUnexecutedTransfer     Code = "UNEXECUTED_TRANSFER"
	CodeAlreadyRolledBack      Code = "ALREADY_ROLLED_BACK"
	CodeMissingFulfillment     Code = "MISSING_FULFILLMENT"

	// Write path errors
	CodeConcurrentModification Code = "CONCURRENT_MODIFICATION"
	CodeProjectionFailed       Code = "PROJECTION_FAILED"
)
