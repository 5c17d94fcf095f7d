package migration

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

type lineResult struct {
	text string
	err  error
}

// LineReader serves one input stream to every interactive consumer of a run.
// At most one read is outstanding; a read abandoned on cancellation is delivered to the next caller.
type LineReader struct {
	input    io.Reader
	buffered *bufio.Reader
	mutex    sync.Mutex
	pending  chan lineResult
}

// NewLineReader constructs a LineReader over input.
func NewLineReader(input io.Reader) *LineReader {
	if input == nil {
		input = strings.NewReader("")
	}
	return &LineReader{input: input, buffered: bufio.NewReader(input)}
}

// ReadLine returns the next line including its terminator, or the context error.
func (reader *LineReader) ReadLine(executionContext context.Context) (string, error) {
	return reader.await(executionContext, false)
}

// ReadSecret returns the next line without its terminator. On a terminal the line is read without echo,
// and the terminal state is restored when the context ends first.
func (reader *LineReader) ReadSecret(executionContext context.Context) (string, error) {
	descriptor, terminal := reader.terminalDescriptor()
	if !terminal {
		line, readError := reader.await(executionContext, false)
		return strings.TrimRight(line, "\r\n"), readError
	}

	savedState, stateError := term.GetState(descriptor)
	secret, readError := reader.await(executionContext, true)
	if readError != nil && executionContext.Err() != nil && stateError == nil {
		_ = term.Restore(descriptor, savedState)
	}
	return strings.TrimRight(secret, "\r\n"), readError
}

// Terminal reports whether the input is an interactive terminal.
func (reader *LineReader) Terminal() bool {
	_, terminal := reader.terminalDescriptor()
	return terminal
}

func (reader *LineReader) terminalDescriptor() (int, bool) {
	inputFile, isFile := reader.input.(*os.File)
	if !isFile {
		return 0, false
	}
	descriptor := int(inputFile.Fd())
	return descriptor, term.IsTerminal(descriptor)
}

func (reader *LineReader) await(executionContext context.Context, secret bool) (string, error) {
	reader.mutex.Lock()
	if reader.pending == nil {
		results := make(chan lineResult, 1)
		reader.pending = results
		go func() {
			results <- reader.read(secret)
		}()
	}
	pending := reader.pending
	reader.mutex.Unlock()

	select {
	case <-executionContext.Done():
		return "", executionContext.Err()
	case result := <-pending:
		reader.mutex.Lock()
		reader.pending = nil
		reader.mutex.Unlock()
		return result.text, result.err
	}
}

func (reader *LineReader) read(secret bool) lineResult {
	if secret && reader.buffered.Buffered() == 0 {
		descriptor, _ := reader.terminalDescriptor()
		value, readError := term.ReadPassword(descriptor)
		return lineResult{text: string(value), err: readError}
	}

	text, readError := reader.buffered.ReadString('\n')
	if readError == io.EOF && len(text) > 0 {
		return lineResult{text: text}
	}
	return lineResult{text: text, err: readError}
}
