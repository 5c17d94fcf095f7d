package execshell

import (
	"errors"
	"fmt"
)

const (
	loggerNotConfiguredMessageConstant        = "execshell logger not configured"
	commandRunnerNotConfiguredMessageConstant = "execshell command runner not configured"
	pipelineFailedTemplateConstant            = "%s exited with status %d"
	commandExecutionFailedTemplateConstant    = "%s could not be executed: %v"
	interruptedTemplateConstant               = "%s interrupted"
	promptRejectedTemplateConstant            = "%s repeated the prompt %q after %d response(s); the secret was rejected"
)

var (
	// ErrLoggerNotConfigured indicates that a runner was constructed without a logger.
	ErrLoggerNotConfigured = errors.New(loggerNotConfiguredMessageConstant)
	// ErrCommandRunnerNotConfigured indicates that a runner was constructed without an underlying command runner.
	ErrCommandRunnerNotConfigured = errors.New(commandRunnerNotConfiguredMessageConstant)
)

// PipelineFailedError reports a pipeline that ran to completion with a non-zero exit status.
type PipelineFailedError struct {
	Command ShellCommand
	Result  PipelineResult
}

// Error describes the failing pipeline.
func (failure PipelineFailedError) Error() string {
	return fmt.Sprintf(pipelineFailedTemplateConstant, failure.Command.Label, failure.Result.ExitCode)
}

// CommandExecutionError reports a pipeline that could not be started or supervised.
type CommandExecutionError struct {
	Command ShellCommand
	Cause   error
}

// Error describes the execution failure.
func (failure CommandExecutionError) Error() string {
	return fmt.Sprintf(commandExecutionFailedTemplateConstant, failure.Command.Label, failure.Cause)
}

// Unwrap exposes the underlying cause.
func (failure CommandExecutionError) Unwrap() error {
	return failure.Cause
}

// InterruptedError reports a pipeline cancelled by the operator.
type InterruptedError struct {
	Command ShellCommand
	Cause   error
}

// Error describes the interruption.
func (interruption InterruptedError) Error() string {
	return fmt.Sprintf(interruptedTemplateConstant, interruption.Command.Label)
}

// Unwrap exposes the context error.
func (interruption InterruptedError) Unwrap() error {
	return interruption.Cause
}

// PromptRejectedError reports a prompt that kept reappearing after its secret was supplied.
type PromptRejectedError struct {
	Command   ShellCommand
	Prompt    string
	Responses int
}

// Error describes the rejected prompt.
func (rejection PromptRejectedError) Error() string {
	return fmt.Sprintf(promptRejectedTemplateConstant, rejection.Command.Label, rejection.Prompt, rejection.Responses)
}
