package execshell_test

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/temirov/sitemigrate/internal/execshell"
)

const (
	testOSRunnerSuccessCaseConstant     = "success_output"
	testOSRunnerExitCodeCaseConstant    = "non_zero_exit"
	testOSRunnerPipefailCaseConstant    = "pipefail_reports_first_failure"
	testOSRunnerRedactionCaseConstant   = "redacts_transcript"
	testOSRunnerEnvironmentCaseConstant = "environment_reaches_shell_masked"
	testOSRunnerSetupCaseConstant       = "setup_runs_in_pipeline_shell"
	testOSRunnerSecretConstant          = "db-secret-value"
	testOSRunnerCancelTimeoutConstant   = 200 * time.Millisecond
)

func requireShell(testInstance *testing.T) {
	testInstance.Helper()
	if _, statError := os.Stat(execshell.DefaultShellPath); statError != nil {
		testInstance.Skipf("shell %s unavailable: %v", execshell.DefaultShellPath, statError)
	}
}

func TestOSCommandRunnerRun(testInstance *testing.T) {
	requireShell(testInstance)

	testCases := []struct {
		name               string
		command            execshell.ShellCommand
		expectedExitCode   int
		expectedTranscript string
	}{
		{
			name:               testOSRunnerSuccessCaseConstant,
			command:            literalCommand("echo hello"),
			expectedExitCode:   0,
			expectedTranscript: "hello\n",
		},
		{
			name:               testOSRunnerExitCodeCaseConstant,
			command:            literalCommand("echo failing; exit 3"),
			expectedExitCode:   3,
			expectedTranscript: "failing\n",
		},
		{
			name:               testOSRunnerPipefailCaseConstant,
			command:            literalCommand("false | cat"),
			expectedExitCode:   1,
			expectedTranscript: "",
		},
		{
			name: testOSRunnerRedactionCaseConstant,
			command: execshell.ShellCommand{
				Label: "redaction",
				Pipeline: execshell.Pipeline{
					Stages:     []execshell.Stage{execshell.NewArgumentStage("echo", testOSRunnerSecretConstant)},
					Redactions: []string{testOSRunnerSecretConstant},
				},
			},
			expectedExitCode:   0,
			expectedTranscript: execshell.RedactionMask + "\n",
		},
		{
			name: testOSRunnerEnvironmentCaseConstant,
			command: execshell.ShellCommand{
				Label:       "environment",
				Pipeline:    execshell.Pipeline{Stages: []execshell.Stage{execshell.NewLiteralStage(`printf '%s\n' "$SITEMIGRATE_TEST_SECRET"`)}},
				Environment: []execshell.EnvironmentVariable{{Name: "SITEMIGRATE_TEST_SECRET", Value: testOSRunnerSecretConstant}},
			},
			expectedExitCode:   0,
			expectedTranscript: execshell.RedactionMask + "\n",
		},
		{
			name: testOSRunnerSetupCaseConstant,
			command: execshell.ShellCommand{
				Label: "setup",
				Pipeline: execshell.Pipeline{
					Setup:  "IFS= read -r greeting < <(echo hello)",
					Stages: []execshell.Stage{execshell.NewLiteralStage(`echo "$greeting"`), execshell.NewArgumentStage("cat")},
				},
			},
			expectedExitCode:   0,
			expectedTranscript: "hello\n",
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			var outputBuffer bytes.Buffer
			runner := execshell.NewOSCommandRunner(nil, &outputBuffer)

			result, runError := runner.Run(context.Background(), testCase.command)
			require.NoError(testInstance, runError)
			require.Equal(testInstance, testCase.expectedExitCode, result.ExitCode)
			require.Equal(testInstance, testCase.expectedTranscript, result.Transcript)
			require.Equal(testInstance, testCase.expectedTranscript, outputBuffer.String())
			require.NotContains(testInstance, outputBuffer.String(), testOSRunnerSecretConstant)
		})
	}
}

func TestOSCommandRunnerReportsInterruption(testInstance *testing.T) {
	requireShell(testInstance)

	executionContext, cancel := context.WithTimeout(context.Background(), testOSRunnerCancelTimeoutConstant)
	defer cancel()

	runner := execshell.NewOSCommandRunner(nil, nil)
	result, runError := runner.Run(executionContext, literalCommand("sleep 10"))
	require.Error(testInstance, runError)
	require.IsType(testInstance, execshell.InterruptedError{}, runError)
	require.ErrorIs(testInstance, runError, context.DeadlineExceeded)
	require.Equal(testInstance, 130, result.ExitCode)
}

func literalCommand(shellText string) execshell.ShellCommand {
	return execshell.ShellCommand{
		Label:    shellText,
		Pipeline: execshell.Pipeline{Stages: []execshell.Stage{execshell.NewLiteralStage(shellText)}},
	}
}
