package auth

import (
	"errors"
	"fmt"
)

// ErrMissingConfig indicates that realm, client id or client secret is
// unset. This is fatal for the current process configuration; no
// network call is attempted.
var ErrMissingConfig = errors.New("missing credential configuration")

// ExchangeError describes a failed token exchange with the identity
// provider. Status is zero for transport-level failures.
type ExchangeError struct {
	Status int
	Body   string
	Err    error
}

func (e *ExchangeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token exchange failed: %v", e.Err)
	}
	return fmt.Sprintf("token exchange failed: status %d: %s", e.Status, e.Body)
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}
