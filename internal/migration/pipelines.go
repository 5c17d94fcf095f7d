package migration

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/temirov/sitemigrate/internal/execshell"
)

const (
	databaseTransferLabelConstant   = "database transfer"
	clearDestinationLabelConstant   = "clear destination"
	fileArchiveLabelConstant        = "file transfer"
	fileRefreshLabelConstant        = "file refresh"
	dumpProgramConstant             = "mysqldump"
	loadProgramConstant             = "mysql"
	streamEditorProgramConstant     = "sed"
	progressProgramConstant         = "pv"
	compressionProgramConstant      = "xz"
	archiveProgramConstant          = "tar"
	synchronizeProgramConstant      = "rsync"
	userArgumentPrefixConstant      = "-u"
	hostArgumentPrefixConstant      = "-h"
	timezoneExpressionTemplate      = "s/TIME_ZONE='%s'/TIME_ZONE='%s'/"
	compressToStdoutFlagConstant    = "-c"
	decompressFlagConstant          = "-d"
	compressionLevelFlagTemplate    = "-%d"
	progressSizeFlagConstant        = "-s"
	archiveCreateFlagConstant       = "cf"
	archiveExtractFlagConstant      = "xJf"
	archiveStdioConstant            = "-"
	archiveDirectoryFlagConstant    = "-C"
	archiveCurrentDirectoryConstant = "."
	synchronizeFlagsConstant        = "-rtlD"
	synchronizeDeleteFlagConstant   = "--delete"
	synchronizeVerboseFlagConstant  = "--verbose"
	synchronizeTargetTemplate       = "%s:%s/"
	synchronizeUserTargetTemplate   = "%s@%s:%s/"
	directorySuffixConstant         = "/"
	removeContentsTemplate          = "rm -rf %s/*"

	sourceDatabaseOptionsVariableConstant      = "SITEMIGRATE_SOURCE_DATABASE_OPTIONS"
	destinationDatabaseOptionsVariableConstant = "SITEMIGRATE_DESTINATION_DATABASE_OPTIONS"
	remoteDatabaseOptionsVariableConstant      = "database_options"
	passwordOptionTemplate                     = `password="%s"`
	optionFileProgramTemplate                  = `%s --defaults-extra-file=<(printf '[client]\n%%s\n' "$%s") %s`
	readOptionsLineTemplate                    = `IFS= read -r %s`
	prependOptionsLineTemplate                 = `cat <(printf '%%s\n' "$%s") -`
)

var optionValueEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`)

// PipelineBuilder renders the shell pipelines of a run from its Plan.
type PipelineBuilder struct {
	plan     Plan
	settings Settings
}

// NewPipelineBuilder constructs a builder for plan.
func NewPipelineBuilder(plan Plan, settings Settings) PipelineBuilder {
	return PipelineBuilder{plan: plan, settings: settings}
}

// DatabaseTransfer dumps the source database and loads it into the destination database through the destination host.
// Passwords never appear on a command line: the local shell receives them as option-file lines in its environment,
// and the destination line travels ahead of the compressed dump for the remote shell to read.
func (builder PipelineBuilder) DatabaseTransfer() execshell.ShellCommand {
	source := builder.plan.SourceDatabase
	destination := builder.plan.DestinationDatabase

	stages := []execshell.Stage{
		optionFileStage(dumpProgramConstant, sourceDatabaseOptionsVariableConstant,
			userArgumentPrefixConstant+source.User,
			hostArgumentPrefixConstant+source.Host,
			source.Name,
		),
	}
	if len(builder.settings.TimezoneRewrite.From) > 0 {
		expression := fmt.Sprintf(timezoneExpressionTemplate, builder.settings.TimezoneRewrite.From, builder.settings.TimezoneRewrite.To)
		stages = append(stages, execshell.NewArgumentStage(streamEditorProgramConstant, expression))
	}
	if builder.settings.ProgressMeter {
		stages = append(stages, execshell.NewArgumentStage(progressProgramConstant))
	}
	stages = append(stages,
		execshell.NewArgumentStage(compressionProgramConstant, compressToStdoutFlagConstant, fmt.Sprintf(compressionLevelFlagTemplate, builder.settings.CompressionLevel)),
		execshell.NewLiteralStage(fmt.Sprintf(prependOptionsLineTemplate, destinationDatabaseOptionsVariableConstant)),
		builder.remote(execshell.Pipeline{
			Setup: fmt.Sprintf(readOptionsLineTemplate, remoteDatabaseOptionsVariableConstant),
			Stages: []execshell.Stage{
				execshell.NewArgumentStage(compressionProgramConstant, decompressFlagConstant, compressToStdoutFlagConstant),
				optionFileStage(loadProgramConstant, remoteDatabaseOptionsVariableConstant,
					userArgumentPrefixConstant+destination.User,
					hostArgumentPrefixConstant+destination.Host,
					destination.Name,
				),
			},
		}),
	)

	command := builder.command(databaseTransferLabelConstant, execshell.Pipeline{
		Stages:     stages,
		Redactions: nonEmpty(source.Password, destination.Password),
	})
	command.Environment = []execshell.EnvironmentVariable{
		{Name: sourceDatabaseOptionsVariableConstant, Value: passwordOption(source.Password)},
		{Name: destinationDatabaseOptionsVariableConstant, Value: passwordOption(destination.Password)},
	}
	return command
}

// passwordOption renders a MySQL option-file password line on a single line.
func passwordOption(password string) string {
	return fmt.Sprintf(passwordOptionTemplate, optionValueEscaper.Replace(password))
}

// optionFileStage runs program with a [client] option file fed from the shell variable named variableName.
func optionFileStage(program string, variableName string, arguments ...string) execshell.Stage {
	return execshell.NewLiteralStage(fmt.Sprintf(optionFileProgramTemplate, program, variableName, shellquote.Join(arguments...)))
}

// ClearDestination removes the contents of the destination document root.
func (builder PipelineBuilder) ClearDestination() execshell.ShellCommand {
	removal := execshell.NewLiteralStage(fmt.Sprintf(removeContentsTemplate, shellquote.Join(builder.plan.DestinationDocumentRoot)))
	return builder.command(clearDestinationLabelConstant, execshell.Pipeline{Stages: []execshell.Stage{
		builder.remote(execshell.Pipeline{Stages: []execshell.Stage{removal}}),
	}})
}

// FileArchiveTransfer streams a compressed archive of the source document root into the destination document root.
// sizeBytes feeds the progress meter.
func (builder PipelineBuilder) FileArchiveTransfer(sizeBytes int64) execshell.ShellCommand {
	stages := []execshell.Stage{
		execshell.NewArgumentStage(archiveProgramConstant, archiveCreateFlagConstant, archiveStdioConstant, archiveDirectoryFlagConstant, builder.plan.SourceDocumentRoot, archiveCurrentDirectoryConstant),
	}
	if builder.settings.ProgressMeter {
		stages = append(stages, execshell.NewArgumentStage(progressProgramConstant, progressSizeFlagConstant, strconv.FormatInt(sizeBytes, 10)))
	}
	stages = append(stages,
		execshell.NewArgumentStage(compressionProgramConstant, compressToStdoutFlagConstant),
		builder.remote(execshell.Pipeline{Stages: []execshell.Stage{
			execshell.NewArgumentStage(archiveProgramConstant, archiveExtractFlagConstant, archiveStdioConstant, archiveDirectoryFlagConstant, builder.plan.DestinationDocumentRoot),
		}}),
	)
	return builder.command(fileArchiveLabelConstant, execshell.Pipeline{Stages: stages})
}

// FileRefresh synchronises the destination document root with rsync, deleting files removed at the source.
func (builder PipelineBuilder) FileRefresh() execshell.ShellCommand {
	arguments := []string{synchronizeFlagsConstant, synchronizeDeleteFlagConstant}
	if builder.plan.Verbose {
		arguments = append(arguments, synchronizeVerboseFlagConstant)
	}
	target := fmt.Sprintf(synchronizeTargetTemplate, builder.plan.Destination, builder.plan.DestinationDocumentRoot)
	if len(builder.plan.SFTP.User) > 0 {
		target = fmt.Sprintf(synchronizeUserTargetTemplate, builder.plan.SFTP.User, builder.plan.Destination, builder.plan.DestinationDocumentRoot)
	}
	arguments = append(arguments, builder.plan.SourceDocumentRoot+directorySuffixConstant, target)

	return builder.command(fileRefreshLabelConstant, execshell.Pipeline{Stages: []execshell.Stage{
		execshell.NewArgumentStage(synchronizeProgramConstant, arguments...),
	}})
}

func (builder PipelineBuilder) remote(inner execshell.Pipeline) execshell.Stage {
	return execshell.NewRemoteStage(builder.plan.SFTP.User, builder.plan.Destination, inner)
}

func (builder PipelineBuilder) command(label string, pipeline execshell.Pipeline) execshell.ShellCommand {
	command := execshell.ShellCommand{Label: label, Pipeline: pipeline}
	if len(builder.plan.SFTP.Password) > 0 {
		command.Prompts = []execshell.PromptResponse{execshell.NewPasswordPrompt(builder.plan.SFTP.Password)}
	}
	return command
}

func nonEmpty(values ...string) []string {
	var filtered []string
	for _, value := range values {
		if len(value) > 0 {
			filtered = append(filtered, value)
		}
	}
	return filtered
}
