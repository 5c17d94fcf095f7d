package ui

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/temirov/sitemigrate/internal/execshell"
)

const (
	pipelineStartedTemplateConstant   = "Running %s"
	pipelineSucceededTemplateConstant = "Completed %s in %s"
	pipelineFailedTemplateConstant    = "%s failed with exit code %d after %s"
	pipelineAbortedTemplateConstant   = "%s aborted: %s"
	pipelineLabelTemplateConstant     = "%s [%s]"
	diagnosticSuffixTemplateConstant  = ": %s"
	transcriptTrimCharactersConstant  = " \t\r\n"
	unknownFailureMessageConstant     = "unknown error"
)

// ConsolePipelineReporter prints pipeline lifecycle events as operator-facing progress lines.
type ConsolePipelineReporter struct {
	logger *zap.Logger
}

// NewConsolePipelineReporter constructs a reporter over a human-readable logger. A nil logger discards events.
func NewConsolePipelineReporter(logger *zap.Logger) *ConsolePipelineReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsolePipelineReporter{logger: logger}
}

// ObservePipeline implements execshell.PipelineObserver.
func (reporter *ConsolePipelineReporter) ObservePipeline(event execshell.PipelineEvent) {
	if reporter == nil {
		return
	}
	switch {
	case event.Kind == execshell.PipelineStarted:
		reporter.logger.Info(fmt.Sprintf(pipelineStartedTemplateConstant, describePipeline(event.Command)))
	case event.Succeeded():
		reporter.logger.Info(fmt.Sprintf(pipelineSucceededTemplateConstant, event.Command.Label, formatElapsed(event.Elapsed)))
	case event.Kind == execshell.PipelineExited:
		message := fmt.Sprintf(pipelineFailedTemplateConstant, event.Command.Label, event.Result.ExitCode, formatElapsed(event.Elapsed))
		if diagnostic := lastTranscriptLine(event.Result.Transcript); len(diagnostic) > 0 {
			message += fmt.Sprintf(diagnosticSuffixTemplateConstant, diagnostic)
		}
		reporter.logger.Warn(message)
	default:
		reason := unknownFailureMessageConstant
		if event.Failure != nil {
			reason = event.Failure.Error()
		}
		reporter.logger.Error(fmt.Sprintf(pipelineAbortedTemplateConstant, event.Command.Label, reason))
	}
}

func describePipeline(command execshell.ShellCommand) string {
	summary := command.Pipeline.Summary()
	if len(summary) == 0 {
		return command.Label
	}
	return fmt.Sprintf(pipelineLabelTemplateConstant, command.Label, summary)
}

// formatElapsed keeps millisecond precision below one second and whole seconds above it.
func formatElapsed(elapsed time.Duration) string {
	if elapsed < time.Second {
		return elapsed.Round(time.Millisecond).String()
	}
	return elapsed.Round(time.Second).String()
}

// lastTranscriptLine returns the last non-empty line, which usually carries the failing tool's diagnostic.
func lastTranscriptLine(transcript string) string {
	lines := strings.Split(transcript, "\n")
	for lineIndex := len(lines) - 1; lineIndex >= 0; lineIndex-- {
		if trimmedLine := strings.Trim(lines[lineIndex], transcriptTrimCharactersConstant); len(trimmedLine) > 0 {
			return trimmedLine
		}
	}
	return ""
}
