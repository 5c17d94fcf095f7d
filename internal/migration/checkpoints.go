package migration

import (
	"context"
	"fmt"
	"io"
	"strings"
)

const (
	checkpointQuestionTemplateConstant = "Did you %s?\n"
	checkpointDetailTemplateConstant   = "  %s\n"
	checkpointInstructionConstant      = "Press enter when done (type \"abort\" to stop): "
	checkpointAbortResponseConstant    = "abort"
	confirmationDefaultYesConstant     = " [Y/n] "
	confirmationDefaultNoConstant      = " [y/N] "
	confirmationRetryMessageConstant   = "Please respond with 'yes' or 'no' (or 'y' or 'n').\n"
)

// Checkpoint is a manual step the operator performs outside the tool.
type Checkpoint struct {
	State   State
	Action  string
	Details []string
}

// Checkpointer obtains operator acknowledgements.
type Checkpointer interface {
	// Acknowledge presents a manual step and reports whether the operator completed it.
	Acknowledge(executionContext context.Context, checkpoint Checkpoint) (bool, error)
	// Confirm asks a yes/no question.
	Confirm(executionContext context.Context, question string, defaultAnswer bool) (bool, error)
}

// InteractiveCheckpointer reads acknowledgements from a line-oriented input.
type InteractiveCheckpointer struct {
	lines  *LineReader
	writer io.Writer
}

// NewInteractiveCheckpointer constructs a checkpointer over lines and output.
func NewInteractiveCheckpointer(lines *LineReader, output io.Writer) *InteractiveCheckpointer {
	if output == nil {
		output = io.Discard
	}
	return &InteractiveCheckpointer{lines: lines, writer: output}
}

// Acknowledge prints the step and waits for an empty line. Typing "abort" declines.
func (checkpointer *InteractiveCheckpointer) Acknowledge(executionContext context.Context, checkpoint Checkpoint) (bool, error) {
	if _, writeError := fmt.Fprintf(checkpointer.writer, checkpointQuestionTemplateConstant, checkpoint.Action); writeError != nil {
		return false, writeError
	}
	for _, detail := range checkpoint.Details {
		if _, writeError := fmt.Fprintf(checkpointer.writer, checkpointDetailTemplateConstant, detail); writeError != nil {
			return false, writeError
		}
	}
	if _, writeError := io.WriteString(checkpointer.writer, checkpointInstructionConstant); writeError != nil {
		return false, writeError
	}

	response, readError := checkpointer.readLine(executionContext)
	if readError != nil {
		return false, readError
	}
	return !strings.EqualFold(strings.TrimSpace(response), checkpointAbortResponseConstant), nil
}

// Confirm asks until the operator answers yes or no. An empty answer selects defaultAnswer.
func (checkpointer *InteractiveCheckpointer) Confirm(executionContext context.Context, question string, defaultAnswer bool) (bool, error) {
	suffix := confirmationDefaultNoConstant
	if defaultAnswer {
		suffix = confirmationDefaultYesConstant
	}
	for {
		if _, writeError := io.WriteString(checkpointer.writer, question+suffix); writeError != nil {
			return false, writeError
		}
		response, readError := checkpointer.readLine(executionContext)
		if readError != nil {
			return false, readError
		}
		switch strings.ToLower(strings.TrimSpace(response)) {
		case "":
			return defaultAnswer, nil
		case "y", "ye", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		if _, writeError := io.WriteString(checkpointer.writer, confirmationRetryMessageConstant); writeError != nil {
			return false, writeError
		}
	}
}

func (checkpointer *InteractiveCheckpointer) readLine(executionContext context.Context) (string, error) {
	return checkpointer.lines.ReadLine(executionContext)
}

// AutoCheckpointer acknowledges every checkpoint and answers every question with its default.
type AutoCheckpointer struct {
	writer io.Writer
}

// NewAutoCheckpointer constructs an AutoCheckpointer that echoes checkpoints to output.
func NewAutoCheckpointer(output io.Writer) *AutoCheckpointer {
	if output == nil {
		output = io.Discard
	}
	return &AutoCheckpointer{writer: output}
}

// Acknowledge prints the step and returns true.
func (checkpointer *AutoCheckpointer) Acknowledge(executionContext context.Context, checkpoint Checkpoint) (bool, error) {
	if contextError := executionContext.Err(); contextError != nil {
		return false, contextError
	}
	if _, writeError := fmt.Fprintf(checkpointer.writer, checkpointQuestionTemplateConstant, checkpoint.Action); writeError != nil {
		return false, writeError
	}
	for _, detail := range checkpoint.Details {
		if _, writeError := fmt.Fprintf(checkpointer.writer, checkpointDetailTemplateConstant, detail); writeError != nil {
			return false, writeError
		}
	}
	return true, nil
}

// Confirm returns defaultAnswer.
func (checkpointer *AutoCheckpointer) Confirm(executionContext context.Context, question string, defaultAnswer bool) (bool, error) {
	if contextError := executionContext.Err(); contextError != nil {
		return false, contextError
	}
	return defaultAnswer, nil
}
