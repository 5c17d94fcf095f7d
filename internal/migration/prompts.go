package migration

import (
	"context"
	"fmt"
	"io"
)

const (
	secretPromptTemplateConstant = "Please enter the %s: "
	newlineConstant              = "\n"
)

// TerminalSecretPrompter reads secrets from a terminal without echo, or line by line from any other input.
type TerminalSecretPrompter struct {
	lines  *LineReader
	output io.Writer
}

// NewTerminalSecretPrompter constructs a prompter reading from lines and writing prompts to output.
func NewTerminalSecretPrompter(lines *LineReader, output io.Writer) *TerminalSecretPrompter {
	if output == nil {
		output = io.Discard
	}
	return &TerminalSecretPrompter{lines: lines, output: output}
}

// PromptSecret asks for label and returns the entered value without its line terminator.
func (prompter *TerminalSecretPrompter) PromptSecret(executionContext context.Context, label string) (string, error) {
	if _, writeError := fmt.Fprintf(prompter.output, secretPromptTemplateConstant, label); writeError != nil {
		return "", writeError
	}
	secret, readError := prompter.lines.ReadSecret(executionContext)
	if prompter.lines.Terminal() {
		io.WriteString(prompter.output, newlineConstant)
	}
	return secret, readError
}
