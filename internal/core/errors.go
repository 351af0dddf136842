package core

import (
	"errors"
	"fmt"
)

// ErrInfeasible is returned when no mixture of policies respects the limits.
var ErrInfeasible = errors.New("core: infeasible resource limits")

// ModelError reports a malformed agent model. It is never retried.
type ModelError struct {
	Epoch, State, Action int
	Reason               string
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("core: invalid model at (t=%d, s=%d, a=%d): %s", e.Epoch, e.State, e.Action, e.Reason)
}

// UnsupportedInstanceError reports an instance shape an algorithm cannot handle.
// It is raised before any solving begins.
type UnsupportedInstanceError struct {
	Algorithm string
	Reason    string
}

func (e *UnsupportedInstanceError) Error() string {
	if e.Algorithm == "" {
		return "core: unsupported instance: " + e.Reason
	}
	return fmt.Sprintf("core: unsupported instance for %s: %s", e.Algorithm, e.Reason)
}

// Unsupported builds an UnsupportedInstanceError.
func Unsupported(algorithm, format string, args ...any) error {
	return &UnsupportedInstanceError{Algorithm: algorithm, Reason: fmt.Sprintf(format, args...)}
}

// IsUnsupported reports whether err is an unsupported instance condition.
func IsUnsupported(err error) bool {
	var u *UnsupportedInstanceError
	return errors.As(err, &u)
}
