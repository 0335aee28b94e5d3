package cli

import (
	"errors"

	"github.com/trebuchet-org/treb-deploy/internal/domain"
)

const (
	// ExitPartialFailure is used when a run halted or was cancelled
	ExitPartialFailure = 1
	// ExitInvalidPlan is used when the plan could not be parsed or validated
	ExitInvalidPlan = 2
)

// ExitError carries a specific process exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode maps an error returned by a command to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if errors.Is(err, domain.ErrInvalidPlan) {
		return ExitInvalidPlan
	}
	return ExitPartialFailure
}
