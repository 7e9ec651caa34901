package command

import (
	"errors"
	"fmt"
)

// ErrUnresolvedRecipient marks a !send whose recipient matched no identity,
// or more than one.
var ErrUnresolvedRecipient = errors.New("unresolved recipient")

// ParseError is a recognition failure for a known keyword.
type ParseError struct {
	Keyword string
	Reason  string
	Err     error
}

func (e *ParseError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Keyword, e.Reason, e.Err)
	}

	return fmt.Sprintf("%s: %s", e.Keyword, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func parseErr(keyword string, reason string, err error) error {
	return &ParseError{Keyword: keyword, Reason: reason, Err: err}
}
