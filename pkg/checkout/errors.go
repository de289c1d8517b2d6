package checkout

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a session ended badly.
type ErrorKind string

const (
	KindValidation         ErrorKind = "validation"
	KindInitiation         ErrorKind = "initiation"
	KindPollTransport      ErrorKind = "poll_transport"
	KindTimeout            ErrorKind = "timeout"
	KindDegradedInitiation ErrorKind = "degraded_initiation"
)

// Error carries a customer-facing message alongside the underlying cause.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("checkout %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("checkout %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrSuperseded is returned by Submit when a newer submission or Cancel
// discarded the session before its initiation request finished.
var ErrSuperseded = errors.New("checkout: session superseded")

// KindOf returns the ErrorKind of err, or "" if err is not an *Error.
func KindOf(err error) ErrorKind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

const (
	msgInitiationFailed = "Failed to initiate payment. Please try again."
	msgWaiting          = "waiting_for_payment"
	msgDegraded         = "Payment request sent. Its status cannot be tracked automatically; complete the prompt on your phone and check My Tickets."
	msgPollExhausted    = "Unable to reach the payment status service. Please check My Tickets before retrying."
	msgTimedOut         = "No payment confirmation received within 2 minutes. Please try again."
	msgSucceeded        = "Payment confirmed."
	msgFailed           = "Payment failed or was cancelled."
	msgCancelled        = "Checkout cancelled."
)
