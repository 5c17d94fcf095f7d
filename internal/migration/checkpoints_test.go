package migration_test

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/require"
	"golang.org/x/term"

	"github.com/temirov/sitemigrate/internal/migration"
)

const (
	testAcknowledgeEnterCaseConstant = "enter_acknowledges"
	testAcknowledgeTextCaseConstant  = "other_text_acknowledges"
	testAcknowledgeAbortCaseConstant = "abort_declines"
	testConfirmDefaultCaseConstant   = "empty_uses_default"
	testConfirmYesCaseConstant       = "yes"
	testConfirmNoCaseConstant        = "no_after_retry"
)

func TestInteractiveCheckpointerAcknowledge(testInstance *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected bool
	}{
		{name: testAcknowledgeEnterCaseConstant, input: "\n", expected: true},
		{name: testAcknowledgeTextCaseConstant, input: "done\n", expected: true},
		{name: testAcknowledgeAbortCaseConstant, input: " ABORT \n", expected: false},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			output := &bytes.Buffer{}
			checkpointer := migration.NewInteractiveCheckpointer(migration.NewLineReader(strings.NewReader(testCase.input)), output)

			acknowledged, acknowledgeError := checkpointer.Acknowledge(context.Background(), migration.Checkpoint{
				State:   migration.StateConfirmCertificates,
				Action:  "copy the SSL certificates",
				Details: []string{"greensworth.com"},
			})

			require.NoError(testInstance, acknowledgeError)
			require.Equal(testInstance, testCase.expected, acknowledged)
			require.Equal(testInstance, "Did you copy the SSL certificates?\n  greensworth.com\nPress enter when done (type \"abort\" to stop): ", output.String())
		})
	}
}

func TestInteractiveCheckpointerReadsSuccessiveLines(testInstance *testing.T) {
	checkpointer := migration.NewInteractiveCheckpointer(migration.NewLineReader(strings.NewReader("\nabort\n")), io.Discard)

	first, firstError := checkpointer.Acknowledge(context.Background(), migration.Checkpoint{Action: "update the real DNS"})
	require.NoError(testInstance, firstError)
	require.True(testInstance, first)

	second, secondError := checkpointer.Acknowledge(context.Background(), migration.Checkpoint{Action: "transfer any cron jobs"})
	require.NoError(testInstance, secondError)
	require.False(testInstance, second)

	_, exhaustedError := checkpointer.Acknowledge(context.Background(), migration.Checkpoint{Action: "test the site in the new location"})
	require.ErrorIs(testInstance, exhaustedError, io.EOF)
}

func TestInteractiveCheckpointerConfirm(testInstance *testing.T) {
	testCases := []struct {
		name          string
		input         string
		defaultAnswer bool
		expected      bool
		expectRetry   bool
	}{
		{name: testConfirmDefaultCaseConstant, input: "\n", defaultAnswer: false, expected: false},
		{name: testConfirmYesCaseConstant, input: "Yes\n", defaultAnswer: false, expected: true},
		{name: testConfirmNoCaseConstant, input: "maybe\nn\n", defaultAnswer: true, expected: false, expectRetry: true},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			output := &bytes.Buffer{}
			checkpointer := migration.NewInteractiveCheckpointer(migration.NewLineReader(strings.NewReader(testCase.input)), output)

			answer, confirmError := checkpointer.Confirm(context.Background(), "Would you like to see them?", testCase.defaultAnswer)

			require.NoError(testInstance, confirmError)
			require.Equal(testInstance, testCase.expected, answer)
			if testCase.expectRetry {
				require.Contains(testInstance, output.String(), "Please respond with 'yes' or 'no'")
			}
		})
	}
}

func TestInteractiveCheckpointerHonoursCancellation(testInstance *testing.T) {
	blockingReader, blockingWriter := io.Pipe()
	defer blockingWriter.Close()
	checkpointer := migration.NewInteractiveCheckpointer(migration.NewLineReader(blockingReader), io.Discard)

	executionContext, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, acknowledgeError := checkpointer.Acknowledge(executionContext, migration.Checkpoint{Action: "update the real DNS"})
	require.ErrorIs(testInstance, acknowledgeError, context.DeadlineExceeded)
}

func TestAutoCheckpointerAcknowledgesEverything(testInstance *testing.T) {
	output := &bytes.Buffer{}
	checkpointer := migration.NewAutoCheckpointer(output)

	acknowledged, acknowledgeError := checkpointer.Acknowledge(context.Background(), migration.Checkpoint{Action: "update the real DNS", Details: []string{"A 203.0.113.5"}})
	require.NoError(testInstance, acknowledgeError)
	require.True(testInstance, acknowledged)
	require.Equal(testInstance, "Did you update the real DNS?\n  A 203.0.113.5\n", output.String())

	answer, confirmError := checkpointer.Confirm(context.Background(), "Would you like to see them?", false)
	require.NoError(testInstance, confirmError)
	require.False(testInstance, answer)

	canceledContext, cancel := context.WithCancel(context.Background())
	cancel()
	_, canceledError := checkpointer.Acknowledge(canceledContext, migration.Checkpoint{Action: "update the real DNS"})
	require.ErrorIs(testInstance, canceledError, context.Canceled)
}

func TestTerminalSecretPrompterReadsLines(testInstance *testing.T) {
	output := &bytes.Buffer{}
	prompter := migration.NewTerminalSecretPrompter(migration.NewLineReader(strings.NewReader("first-secret\r\nsecond-secret\n")), output)

	first, firstError := prompter.PromptSecret(context.Background(), "source database password")
	require.NoError(testInstance, firstError)
	require.Equal(testInstance, "first-secret", first)

	second, secondError := prompter.PromptSecret(context.Background(), "password for the customer SFTP account")
	require.NoError(testInstance, secondError)
	require.Equal(testInstance, "second-secret", second)

	require.Equal(testInstance, "Please enter the source database password: Please enter the password for the customer SFTP account: ", output.String())
}

func TestSecretPromptAndCheckpointShareOneInputStream(testInstance *testing.T) {
	lines := migration.NewLineReader(strings.NewReader("s3cret\n\nabort\n"))
	prompter := migration.NewTerminalSecretPrompter(lines, io.Discard)
	checkpointer := migration.NewInteractiveCheckpointer(lines, io.Discard)

	secret, promptError := prompter.PromptSecret(context.Background(), "source database password")
	require.NoError(testInstance, promptError)
	require.Equal(testInstance, "s3cret", secret)

	acknowledged, acknowledgeError := checkpointer.Acknowledge(context.Background(), migration.Checkpoint{Action: "test the original site"})
	require.NoError(testInstance, acknowledgeError)
	require.True(testInstance, acknowledged)

	declined, declineError := checkpointer.Acknowledge(context.Background(), migration.Checkpoint{Action: "update the real DNS"})
	require.NoError(testInstance, declineError)
	require.False(testInstance, declined)
}

func TestLineReaderDeliversAbandonedReadToNextCaller(testInstance *testing.T) {
	pipeReader, pipeWriter := io.Pipe()
	defer pipeWriter.Close()
	lines := migration.NewLineReader(pipeReader)
	checkpointer := migration.NewInteractiveCheckpointer(lines, io.Discard)
	prompter := migration.NewTerminalSecretPrompter(lines, io.Discard)

	executionContext, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, acknowledgeError := checkpointer.Acknowledge(executionContext, migration.Checkpoint{Action: "update the real DNS"})
	require.ErrorIs(testInstance, acknowledgeError, context.DeadlineExceeded)

	go func() {
		_, _ = io.WriteString(pipeWriter, "late-secret\n")
	}()
	secret, promptError := prompter.PromptSecret(context.Background(), "destination database password")
	require.NoError(testInstance, promptError)
	require.Equal(testInstance, "late-secret", secret)
}

func TestLineReaderRestoresTerminalWhenSecretReadIsInterrupted(testInstance *testing.T) {
	primary, secondary, openError := pty.Open()
	if openError != nil {
		testInstance.Skipf("pseudo-terminal unavailable: %v", openError)
	}
	defer primary.Close()
	defer secondary.Close()

	originalState, stateError := term.GetState(int(secondary.Fd()))
	require.NoError(testInstance, stateError)

	lines := migration.NewLineReader(secondary)
	require.True(testInstance, lines.Terminal())

	executionContext, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, readError := lines.ReadSecret(executionContext)
	require.ErrorIs(testInstance, readError, context.DeadlineExceeded)

	restoredState, restoredError := term.GetState(int(secondary.Fd()))
	require.NoError(testInstance, restoredError)
	require.Equal(testInstance, originalState, restoredState)
}
