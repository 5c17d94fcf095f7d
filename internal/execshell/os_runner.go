package execshell

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"time"
)

const (
	// DefaultShellPath is the shell used to interpret rendered pipelines.
	DefaultShellPath            = "/bin/bash"
	shellPipefailOptionConstant = "-o"
	shellPipefailValueConstant  = "pipefail"
	shellCommandFlagConstant    = "-c"
	processWaitDelayConstant    = 5 * time.Second
	interruptedExitCodeConstant = 130
	unknownExitCodeConstant     = -1
)

// CommandRunner executes a rendered pipeline and reports its exit status.
type CommandRunner interface {
	Run(executionContext context.Context, command ShellCommand) (PipelineResult, error)
}

// OSCommandRunner executes pipelines through os/exec with inherited standard input.
type OSCommandRunner struct {
	shellPath string
	input     io.Reader
	output    io.Writer
}

// NewOSCommandRunner constructs a direct runner streaming combined output to output.
func NewOSCommandRunner(input io.Reader, output io.Writer) *OSCommandRunner {
	return &OSCommandRunner{shellPath: DefaultShellPath, input: input, output: output}
}

// WithShellPath overrides the shell binary.
func (runner *OSCommandRunner) WithShellPath(shellPath string) *OSCommandRunner {
	if len(shellPath) > 0 {
		runner.shellPath = shellPath
	}
	return runner
}

// Run executes the pipeline under the shell and waits for every stage to exit.
func (runner *OSCommandRunner) Run(executionContext context.Context, command ShellCommand) (PipelineResult, error) {
	executable := exec.CommandContext(executionContext, runner.shellPath, shellPipefailOptionConstant, shellPipefailValueConstant, shellCommandFlagConstant, command.Pipeline.Render())
	executable.WaitDelay = processWaitDelayConstant
	executable.Env = command.environ()
	startInOwnProcessGroup(executable)

	redactor := NewRedactor(command.Secrets())
	streamWriter := NewRedactingWriter(runner.output, redactor)
	var transcriptBuffer bytes.Buffer
	combinedWriter := io.MultiWriter(streamWriter, &transcriptBuffer)
	executable.Stdout = combinedWriter
	executable.Stderr = combinedWriter
	if runner.input != nil {
		executable.Stdin = runner.input
	}

	runError := executable.Run()
	flushError := streamWriter.Flush()
	result := PipelineResult{Transcript: redactor.Redact(transcriptBuffer.String())}

	if contextError := executionContext.Err(); contextError != nil {
		result.ExitCode = interruptedExitCodeConstant
		return result, InterruptedError{Command: command, Cause: contextError}
	}

	if runError != nil {
		exitError := &exec.ExitError{}
		if errors.As(runError, &exitError) {
			result.ExitCode = exitError.ExitCode()
			return result, nil
		}
		result.ExitCode = unknownExitCodeConstant
		return result, runError
	}

	if flushError != nil {
		return result, flushError
	}

	return result, nil
}
