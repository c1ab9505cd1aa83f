package payout

import (
	"fmt"
	"math/big"
)

// ValidationError is returned when a share fails validation. It is fatal only
// to the operation that carried the bad input.
type ValidationError struct {
	Reason string
}

func (err ValidationError) Error() string {
	return fmt.Sprintf("invalid share: %s", err.Reason)
}

// ConfigurationError is returned when the engine is constructed with an
// unusable option, such as a malformed beneficiary address. Mining must not
// proceed with a bad payout destination.
type ConfigurationError struct {
	Option string
	Reason string
}

func (err ConfigurationError) Error() string {
	return fmt.Sprintf("bad configuration for %s: %s", err.Option, err.Reason)
}

// SubmissionError is returned when the node rejects a payout transaction. It
// embeds the underlying Cause. By the time this error surfaces, the reserved
// amount has already been credited back to the pending balance.
type SubmissionError struct {
	Amount *big.Int
	Cause  error
}

func (err SubmissionError) Error() string {
	return fmt.Sprintf("payout submission of %s wei failed: %s", err.Amount, err.Cause)
}

func (err SubmissionError) Unwrap() error {
	return err.Cause
}
