package gateway

import (
	"errors"
	"fmt"
)

// TransientError marks a failure worth retrying on the next scheduled
// tick: network faults, timeouts, upstream 5xx.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient gateway error: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// AuthError is terminal: the loop must stop and surface that
// re-authentication is required.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return fmt.Sprintf("gateway auth error: %v", e.Err) }
func (e *AuthError) Unwrap() error { return e.Err }

// PartialDataError means the upstream answered but an expected field was
// absent. Callers skip the tick without counting a failure: this smells
// like schema drift, not connectivity loss.
type PartialDataError struct {
	Field string
}

func (e *PartialDataError) Error() string {
	return fmt.Sprintf("partial gateway response: missing field %q", e.Field)
}

func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

func IsAuth(err error) bool {
	var a *AuthError
	return errors.As(err, &a)
}

func IsPartialData(err error) bool {
	var p *PartialDataError
	return errors.As(err, &p)
}
