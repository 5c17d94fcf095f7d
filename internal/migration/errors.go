package migration

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/temirov/sitemigrate/internal/execshell"
)

const (
	validationErrorTemplateConstant          = "%s: %s"
	ambiguousDiscoveryMessageConstant        = "several possible database references found; supply the source database name, password, and host explicitly"
	ambiguousDiscoveryTemplateConstant       = "%s: %s"
	runErrorTemplateConstant                 = "%s: %v"
	checkpointDeclinedMessageConstant        = "manual step was not acknowledged"
	loggerNotConfiguredMessageConstant       = "migration logger not configured"
	runnerNotConfiguredMessageConstant       = "migration process runner not configured"
	checkpointerNotConfiguredMessageConstant = "migration checkpointer not configured"
	candidateSeparatorConstant               = ", "

	// ExitCodeSuccess reports a completed migration.
	ExitCodeSuccess = 0
	// ExitCodeFailure reports a failed precondition or step.
	ExitCodeFailure = 1
	// ExitCodeAmbiguous reports configuration the operator must disambiguate.
	ExitCodeAmbiguous = 2
	// ExitCodeInterrupted reports an operator interrupt.
	ExitCodeInterrupted = 130
)

var (
	// ErrCheckpointDeclined indicates that the operator chose to stop at a manual step.
	ErrCheckpointDeclined = errors.New(checkpointDeclinedMessageConstant)
	// ErrLoggerNotConfigured indicates that no logger was supplied.
	ErrLoggerNotConfigured = errors.New(loggerNotConfiguredMessageConstant)
	// ErrRunnerNotConfigured indicates that no process runner was supplied.
	ErrRunnerNotConfigured = errors.New(runnerNotConfiguredMessageConstant)
	// ErrCheckpointerNotConfigured indicates that no checkpointer was supplied.
	ErrCheckpointerNotConfigured = errors.New(checkpointerNotConfiguredMessageConstant)
)

// ValidationError describes a missing or inconsistent migration input.
type ValidationError struct {
	Field   string
	Message string
}

func (failure ValidationError) Error() string {
	return fmt.Sprintf(validationErrorTemplateConstant, failure.Field, failure.Message)
}

// AmbiguousDiscoveryError lists the candidate credential files that prevented automatic discovery.
type AmbiguousDiscoveryError struct {
	Candidates []string
}

func (failure AmbiguousDiscoveryError) Error() string {
	return fmt.Sprintf(ambiguousDiscoveryTemplateConstant, ambiguousDiscoveryMessageConstant, strings.Join(failure.Candidates, candidateSeparatorConstant))
}

// RunError records the state in which a run stopped.
type RunError struct {
	State State
	Cause error
}

func (failure RunError) Error() string {
	return fmt.Sprintf(runErrorTemplateConstant, failure.State, failure.Cause)
}

// Unwrap exposes the underlying cause.
func (failure RunError) Unwrap() error {
	return failure.Cause
}

// ExitCode maps a run error to the process exit status.
func ExitCode(runError error) int {
	if runError == nil {
		return ExitCodeSuccess
	}

	var interruption execshell.InterruptedError
	if errors.As(runError, &interruption) || errors.Is(runError, context.Canceled) {
		return ExitCodeInterrupted
	}

	var ambiguity AmbiguousDiscoveryError
	if errors.As(runError, &ambiguity) {
		return ExitCodeAmbiguous
	}

	return ExitCodeFailure
}
