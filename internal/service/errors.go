package service

import (
	"errors"
	"fmt"
)

var (
	ErrValidation          = errors.New("invalid request")
	ErrUnknownModel        = errors.New("unknown model")
	ErrPlanRequired        = errors.New("paid plan required")
	ErrInsufficientCredits = errors.New("Insufficient credits")
	ErrPlanUnavailable     = errors.New("plan lookup unavailable")
	ErrLedgerUnavailable   = errors.New("credit ledger unavailable")
	ErrLedgerWrite         = errors.New("credit ledger write failed")
	ErrProvider            = errors.New("generation failed")
	ErrModelUnavailable    = errors.New("model is not available")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// PlanRequiredError names the premium feature a Free user tried to reach.
type PlanRequiredError struct {
	Feature string
}

func (e *PlanRequiredError) Error() string {
	return fmt.Sprintf("%s requires a paid plan", e.Feature)
}

func (e *PlanRequiredError) Unwrap() error { return ErrPlanRequired }

// ExecutionError is returned when the provider call failed after credits were
// deducted. Refunded is false when the refund could not be written inline: it
// was left queued for the reconciler or, if even queueing failed, logged and
// alerted for manual review.
type ExecutionError struct {
	Cause    error
	Refunded bool
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("generation failed: %v", e.Cause)
}

func (e *ExecutionError) Unwrap() []error { return []error{ErrProvider, e.Cause} }
