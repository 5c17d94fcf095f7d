package execshell

import (
	"os"
	"regexp"
	"strings"

	"github.com/kballard/go-shellquote"
)

const (
	pipelineStageSeparatorConstant = " | "
	remoteShellProgramConstant     = "ssh"
	remoteTargetTemplateSeparator  = "@"
	summarySeparatorConstant       = " | "
	emptyStageLabelConstant        = "?"
	setupSeparatorConstant         = "; "
	environmentAssignmentConstant  = "="
)

// DefaultPasswordPromptPattern matches the trailing password challenge printed by ssh, scp, and rsync.
var DefaultPasswordPromptPattern = regexp.MustCompile(`(?i)password:\s*$`)

// Stage describes one program in a pipeline.
// Arguments are shell-quoted when rendered; Literal is emitted verbatim and must already be safe shell text.
// Remote wraps an inner pipeline in an ssh invocation.
type Stage struct {
	Arguments []string
	Literal   string
	Remote    *RemoteStage
}

// RemoteStage runs an inner pipeline on another host through ssh.
type RemoteStage struct {
	User     string
	Host     string
	Pipeline Pipeline
}

// Pipeline is a sequence of stages connected by standard pipes.
type Pipeline struct {
	// Setup is shell text run by the pipeline's own shell before any stage starts.
	Setup  string
	Stages []Stage
	// Redactions lists values that must be masked in transcripts and logs.
	Redactions []string
}

// EnvironmentVariable is passed to the local shell outside its argument list.
type EnvironmentVariable struct {
	Name  string
	Value string
}

// PromptResponse answers an interactive prompt matched by Pattern with Secret.
// MaxResponses bounds how often the prompt is answered; a further occurrence means the secret was rejected.
type PromptResponse struct {
	Pattern      *regexp.Regexp
	Secret       string
	MaxResponses int
}

// ShellCommand couples a pipeline with a human-readable label and the prompts it will raise.
// Environment values are always masked.
type ShellCommand struct {
	Label       string
	Pipeline    Pipeline
	Prompts     []PromptResponse
	Environment []EnvironmentVariable
}

// PipelineResult captures the exit status and the redacted combined output of a pipeline.
type PipelineResult struct {
	ExitCode   int
	Transcript string
}

// NewArgumentStage builds a stage from a program and its arguments.
func NewArgumentStage(program string, arguments ...string) Stage {
	return Stage{Arguments: append([]string{program}, arguments...)}
}

// NewLiteralStage builds a stage from pre-quoted shell text.
func NewLiteralStage(shellText string) Stage {
	return Stage{Literal: shellText}
}

// NewRemoteStage builds a stage that executes the inner pipeline on host as user.
func NewRemoteStage(user string, host string, inner Pipeline) Stage {
	return Stage{Remote: &RemoteStage{User: user, Host: host, Pipeline: inner}}
}

// NewPasswordPrompt answers the default password challenge once with secret.
func NewPasswordPrompt(secret string) PromptResponse {
	return PromptResponse{Pattern: DefaultPasswordPromptPattern, Secret: secret, MaxResponses: 1}
}

// Render produces the shell command line for the pipeline.
func (pipeline Pipeline) Render() string {
	renderedStages := make([]string, 0, len(pipeline.Stages))
	for _, stage := range pipeline.Stages {
		renderedStages = append(renderedStages, stage.render())
	}
	rendered := strings.Join(renderedStages, pipelineStageSeparatorConstant)
	if len(pipeline.Setup) > 0 {
		return pipeline.Setup + setupSeparatorConstant + rendered
	}
	return rendered
}

// Summary lists the program names of the pipeline, descending into remote stages.
func (pipeline Pipeline) Summary() string {
	programNames := make([]string, 0, len(pipeline.Stages))
	for _, stage := range pipeline.Stages {
		programNames = append(programNames, stage.programName())
	}
	return strings.Join(programNames, summarySeparatorConstant)
}

// Secrets returns every value that must be masked for this command.
func (command ShellCommand) Secrets() []string {
	secrets := make([]string, 0, len(command.Prompts)+len(command.Pipeline.Redactions)+len(command.Environment))
	for _, prompt := range command.Prompts {
		secrets = append(secrets, prompt.Secret)
	}
	for _, variable := range command.Environment {
		secrets = append(secrets, variable.Value)
	}
	secrets = append(secrets, command.Pipeline.collectRedactions()...)
	return secrets
}

// environ returns the process environment for the shell, or nil to inherit the current one unchanged.
func (command ShellCommand) environ() []string {
	if len(command.Environment) == 0 {
		return nil
	}
	environment := os.Environ()
	for _, variable := range command.Environment {
		environment = append(environment, variable.Name+environmentAssignmentConstant+variable.Value)
	}
	return environment
}

func (pipeline Pipeline) collectRedactions() []string {
	redactions := append([]string{}, pipeline.Redactions...)
	for _, stage := range pipeline.Stages {
		if stage.Remote != nil {
			redactions = append(redactions, stage.Remote.Pipeline.collectRedactions()...)
		}
	}
	return redactions
}

func (stage Stage) render() string {
	switch {
	case stage.Remote != nil:
		target := stage.Remote.Host
		if len(stage.Remote.User) > 0 {
			target = stage.Remote.User + remoteTargetTemplateSeparator + stage.Remote.Host
		}
		return shellquote.Join(remoteShellProgramConstant, target, stage.Remote.Pipeline.Render())
	case len(stage.Literal) > 0:
		return stage.Literal
	default:
		return shellquote.Join(stage.Arguments...)
	}
}

func (stage Stage) programName() string {
	switch {
	case stage.Remote != nil:
		return remoteShellProgramConstant + " " + stage.Remote.Host + " (" + stage.Remote.Pipeline.Summary() + ")"
	case len(stage.Literal) > 0:
		fields := strings.Fields(stage.Literal)
		if len(fields) == 0 {
			return emptyStageLabelConstant
		}
		return fields[0]
	case len(stage.Arguments) > 0:
		return stage.Arguments[0]
	default:
		return emptyStageLabelConstant
	}
}
