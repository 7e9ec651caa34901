package payment

import (
	"errors"
	"fmt"
)

const (
	ErrorProvisioning     = "provisioning"
	ErrorWalletLookup     = "wallet_lookup"
	ErrorInvoice          = "invoice"
	ErrorPayment          = "payment"
	ErrorIncorrectInvoice = "incorrect_invoice"
	ErrorRate             = "rate"
	ErrorExternalAddress  = "external_address"
)

// Error is a categorised orchestration failure. Err keeps the cause chain
// for logging.
type Error struct {
	Category string
	Detail   string
	Err      error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	msg := e.Category
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}

	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(category string, detail string, err error) error {
	return &Error{Category: category, Detail: detail, Err: err}
}

// CategoryFromError returns the category of a payment error, or "" when err
// did not come from the orchestrator.
func CategoryFromError(err error) string {
	var categorized *Error
	if errors.As(err, &categorized) {
		return categorized.Category
	}

	return ""
}
