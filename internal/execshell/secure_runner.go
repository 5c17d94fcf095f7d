package execshell

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

const (
	commandStartedLogMessageConstant   = "running pipeline"
	commandCompletedLogMessageConstant = "pipeline completed"
	commandFailedLogMessageConstant    = "pipeline failed"
	commandErrorLogMessageConstant     = "pipeline could not be executed"
	logFieldLabelConstant              = "label"
	logFieldPipelineConstant           = "pipeline"
	logFieldExitCodeConstant           = "exit_code"
	logFieldPromptCountConstant        = "prompt_count"
	logFieldTerminalConstant           = "terminal"
)

// SecureProcessRunner executes pipelines while keeping secrets out of logs and transcripts.
// Commands that declare prompts run on a pseudo-terminal; the rest run with inherited standard input.
type SecureProcessRunner struct {
	logger         *zap.Logger
	directRunner   CommandRunner
	terminalRunner CommandRunner
	observer       PipelineObserver
	now            func() time.Time
}

// NewSecureProcessRunner validates dependencies and constructs a SecureProcessRunner.
func NewSecureProcessRunner(logger *zap.Logger, directRunner CommandRunner, terminalRunner CommandRunner, observer PipelineObserver) (*SecureProcessRunner, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if directRunner == nil || terminalRunner == nil {
		return nil, ErrCommandRunnerNotConfigured
	}
	if observer == nil {
		observer = PipelineObserverFunc(discardPipelineEvent)
	}
	return &SecureProcessRunner{
		logger:         logger,
		directRunner:   directRunner,
		terminalRunner: terminalRunner,
		observer:       observer,
		now:            time.Now,
	}, nil
}

// Execute runs the command and returns its result. A non-zero exit status yields PipelineFailedError,
// cancellation yields InterruptedError, and any other failure is wrapped in CommandExecutionError.
func (runner *SecureProcessRunner) Execute(executionContext context.Context, command ShellCommand) (PipelineResult, error) {
	redactor := NewRedactor(command.Secrets())
	usesTerminal := len(command.Prompts) > 0
	selectedRunner := runner.directRunner
	if usesTerminal {
		selectedRunner = runner.terminalRunner
	}

	logFields := []zap.Field{
		zap.String(logFieldLabelConstant, command.Label),
		zap.String(logFieldPipelineConstant, redactor.Redact(command.Pipeline.Render())),
		zap.Int(logFieldPromptCountConstant, len(command.Prompts)),
		zap.Bool(logFieldTerminalConstant, usesTerminal),
	}
	runner.logger.Debug(commandStartedLogMessageConstant, logFields...)
	runner.observer.ObservePipeline(PipelineEvent{Kind: PipelineStarted, Command: command})
	startedAt := runner.now()

	result, runError := selectedRunner.Run(executionContext, command)
	result.Transcript = redactor.Redact(result.Transcript)
	elapsed := runner.now().Sub(startedAt)

	if runError != nil {
		runner.logger.Warn(commandErrorLogMessageConstant, append(logFields, zap.Error(runError))...)
		runner.observer.ObservePipeline(PipelineEvent{Kind: PipelineAborted, Command: command, Result: result, Failure: runError, Elapsed: elapsed})

		var interruption InterruptedError
		if errors.As(runError, &interruption) {
			return result, interruption
		}
		if errors.Is(runError, context.Canceled) || errors.Is(runError, context.DeadlineExceeded) {
			return result, InterruptedError{Command: command, Cause: runError}
		}
		var rejection PromptRejectedError
		if errors.As(runError, &rejection) {
			return result, rejection
		}
		return result, CommandExecutionError{Command: command, Cause: runError}
	}

	runner.observer.ObservePipeline(PipelineEvent{Kind: PipelineExited, Command: command, Result: result, Elapsed: elapsed})
	if result.ExitCode != 0 {
		runner.logger.Warn(commandFailedLogMessageConstant, append(logFields, zap.Int(logFieldExitCodeConstant, result.ExitCode))...)
		return result, PipelineFailedError{Command: command, Result: result}
	}

	runner.logger.Debug(commandCompletedLogMessageConstant, append(logFields, zap.Int(logFieldExitCodeConstant, result.ExitCode))...)
	return result, nil
}
