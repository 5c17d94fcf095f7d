package execshell

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"
)

const (
	terminalReadBufferSizeConstant    = 4096
	promptWindowLimitConstant         = 512
	secretLineTerminatorConstant      = "\n"
	defaultPromptMaxResponsesConstant = 1
)

// TerminalCommandRunner executes pipelines under a pseudo-terminal and answers interactive prompts.
type TerminalCommandRunner struct {
	shellPath string
	output    io.Writer
}

// NewTerminalCommandRunner constructs a pseudo-terminal runner streaming redacted output to output.
func NewTerminalCommandRunner(output io.Writer) *TerminalCommandRunner {
	return &TerminalCommandRunner{shellPath: DefaultShellPath, output: output}
}

// WithShellPath overrides the shell binary.
func (runner *TerminalCommandRunner) WithShellPath(shellPath string) *TerminalCommandRunner {
	if len(shellPath) > 0 {
		runner.shellPath = shellPath
	}
	return runner
}

type promptState struct {
	response  PromptResponse
	responses int
}

// Run starts the pipeline on a pseudo-terminal, writes each secret when its prompt appears,
// and streams output until the terminal closes.
func (runner *TerminalCommandRunner) Run(executionContext context.Context, command ShellCommand) (PipelineResult, error) {
	executable := exec.CommandContext(executionContext, runner.shellPath, shellPipefailOptionConstant, shellPipefailValueConstant, shellCommandFlagConstant, command.Pipeline.Render())
	executable.WaitDelay = processWaitDelayConstant
	executable.Env = command.environ()
	executable.Cancel = func() error {
		return killProcessGroup(executable)
	}

	terminal, startError := pty.Start(executable)
	if startError != nil {
		return PipelineResult{ExitCode: unknownExitCodeConstant}, startError
	}

	supervisionDone := make(chan struct{})
	var closeOnce sync.Once
	closeTerminal := func() {
		closeOnce.Do(func() {
			_ = terminal.Close()
		})
	}
	defer closeTerminal()

	go func() {
		select {
		case <-executionContext.Done():
			closeTerminal()
		case <-supervisionDone:
		}
	}()

	redactor := NewRedactor(command.Secrets())
	streamWriter := NewRedactingWriter(runner.output, redactor)
	var transcriptBuffer bytes.Buffer

	prompts := make([]*promptState, 0, len(command.Prompts))
	for _, prompt := range command.Prompts {
		if prompt.Pattern == nil {
			continue
		}
		if prompt.MaxResponses <= 0 {
			prompt.MaxResponses = defaultPromptMaxResponsesConstant
		}
		prompts = append(prompts, &promptState{response: prompt})
	}

	supervisionError := runner.supervise(terminal, command, prompts, io.MultiWriter(streamWriter, &transcriptBuffer))
	close(supervisionDone)
	if supervisionError != nil {
		_ = killProcessGroup(executable)
	}

	waitError := executable.Wait()
	flushError := streamWriter.Flush()
	result := PipelineResult{Transcript: redactor.Redact(transcriptBuffer.String())}

	if contextError := executionContext.Err(); contextError != nil {
		result.ExitCode = interruptedExitCodeConstant
		return result, InterruptedError{Command: command, Cause: contextError}
	}

	if supervisionError != nil {
		result.ExitCode = unknownExitCodeConstant
		if executable.ProcessState != nil {
			result.ExitCode = executable.ProcessState.ExitCode()
		}
		return result, supervisionError
	}

	if waitError != nil {
		exitError := &exec.ExitError{}
		if errors.As(waitError, &exitError) {
			result.ExitCode = exitError.ExitCode()
			return result, nil
		}
		result.ExitCode = unknownExitCodeConstant
		return result, waitError
	}

	if flushError != nil {
		return result, flushError
	}

	return result, nil
}

// supervise copies terminal output and answers prompts until the terminal reports end of stream.
func (runner *TerminalCommandRunner) supervise(terminal *os.File, command ShellCommand, prompts []*promptState, output io.Writer) error {
	readBuffer := make([]byte, terminalReadBufferSizeConstant)
	var promptWindow []byte

	for {
		bytesRead, readError := terminal.Read(readBuffer)
		if bytesRead > 0 {
			chunk := readBuffer[:bytesRead]
			if _, writeError := output.Write(chunk); writeError != nil {
				return writeError
			}

			promptWindow = append(promptWindow, chunk...)
			if len(promptWindow) > promptWindowLimitConstant {
				promptWindow = promptWindow[len(promptWindow)-promptWindowLimitConstant:]
			}

			for _, prompt := range prompts {
				if !prompt.response.Pattern.Match(promptWindow) {
					continue
				}
				if prompt.responses >= prompt.response.MaxResponses {
					return PromptRejectedError{Command: command, Prompt: prompt.response.Pattern.String(), Responses: prompt.responses}
				}
				if _, writeError := io.WriteString(terminal, prompt.response.Secret+secretLineTerminatorConstant); writeError != nil {
					return writeError
				}
				prompt.responses++
				promptWindow = promptWindow[:0]
				break
			}
		}

		if readError != nil {
			// Linux reports EIO once every process holding the terminal has exited.
			return nil
		}
	}
}
