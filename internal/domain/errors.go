package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for deployment operations
var (
	// ErrNotFound is returned when a requested resource doesn't exist
	ErrNotFound = errors.New("not found")

	// ErrInvalidPlan is returned when a plan cannot be parsed or fails validation
	ErrInvalidPlan = errors.New("invalid plan")

	// ErrArtifactNotFound is returned when an artifact reference can't be resolved
	ErrArtifactNotFound = errors.New("artifact not found")

	// ErrInvalidArtifact is returned when an artifact has no deployable bytecode or a broken ABI
	ErrInvalidArtifact = errors.New("invalid artifact")

	// ErrArgumentMismatch is returned when constructor arguments don't match the constructor signature
	ErrArgumentMismatch = errors.New("argument mismatch")

	// ErrConnection is returned when the provider endpoint is unreachable
	ErrConnection = errors.New("connection error")

	// ErrTimeout is returned when a confirmation is not observed within the configured wait
	ErrTimeout = errors.New("timeout")

	// ErrExecutionReverted is returned when the deployment transaction reverted
	ErrExecutionReverted = errors.New("execution reverted")

	// ErrDependencyUnmet is returned when a step depends on a step without a successful record
	ErrDependencyUnmet = errors.New("dependency unmet")

	// ErrDeploymentFailed is returned when a step gave up after exhausting its retries
	ErrDeploymentFailed = errors.New("deployment failed")
)

// StepError ties a failure to the plan step that produced it.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Kind names the taxonomy bucket of the underlying error.
func (e *StepError) Kind() string {
	return ErrorKind(e.Err)
}

// NewStepError wraps err with the step name unless it already carries one.
func NewStepError(step string, err error) error {
	if err == nil {
		return nil
	}
	var se *StepError
	if errors.As(err, &se) && se.Step == step {
		return err
	}
	return &StepError{Step: step, Err: err}
}

// InvalidPlan marks err as a plan authoring error.
func InvalidPlan(err error) error {
	if err == nil || errors.Is(err, ErrInvalidPlan) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrInvalidPlan, err)
}

// IsRetryable reports whether err is transient and worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrExecutionReverted) || errors.Is(err, ErrArgumentMismatch) {
		return false
	}
	return errors.Is(err, ErrConnection) || errors.Is(err, ErrTimeout)
}

// ErrorKind names the taxonomy bucket of err, used in reports and metrics.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDeploymentFailed):
		return "DeploymentFailed"
	case errors.Is(err, ErrDependencyUnmet):
		return "DependencyUnmet"
	case errors.Is(err, ErrArgumentMismatch):
		return "ArgumentMismatch"
	case errors.Is(err, ErrExecutionReverted):
		return "ExecutionReverted"
	case errors.Is(err, ErrTimeout):
		return "Timeout"
	case errors.Is(err, ErrConnection):
		return "ConnectionError"
	case errors.Is(err, ErrInvalidArtifact):
		return "InvalidArtifact"
	case errors.Is(err, ErrArtifactNotFound):
		return "ArtifactNotFound"
	case errors.Is(err, ErrInvalidPlan):
		return "InvalidPlan"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// AmbiguousArtifactErr is returned when a bare artifact name matches several files.
type AmbiguousArtifactErr struct {
	Ref     string
	Matches []string
}

func (e AmbiguousArtifactErr) Error() string {
	var lines []string
	for _, m := range e.Matches {
		lines = append(lines, "  - "+m)
	}
	return fmt.Sprintf("multiple artifacts found matching %q - use an explicit path:\n%s",
		e.Ref, strings.Join(lines, "\n"))
}

func (e AmbiguousArtifactErr) Unwrap() error {
	return ErrInvalidPlan
}
