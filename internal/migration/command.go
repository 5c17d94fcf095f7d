package migration

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/temirov/sitemigrate/internal/execshell"
	"github.com/temirov/sitemigrate/internal/panel"
	"github.com/temirov/sitemigrate/internal/ui"
	"github.com/temirov/sitemigrate/internal/utils"
	flagutils "github.com/temirov/sitemigrate/internal/utils/flags"
)

const (
	commandUseConstant                = "migrate <site> <destination>"
	commandShortDescriptionConstant   = "Move a hosted site and its database to another server"
	commandLongDescriptionConstant    = "migrate copies the document root and database of a site to the destination host, provisions the destination panel account, rewrites CMS credentials, and stops at manual checkpoints until the operator confirms each one."
	databaseFlagNameConstant          = "db"
	databaseFlagAliasConstant         = "database"
	databaseFlagUsageConstant         = "Migrate the site database"
	panelFlagNameConstant             = "panel"
	panelFlagUsageConstant            = "Provision the destination through the panel API"
	modeFlagNameConstant              = "mode"
	modeFlagUsageConstant             = "File transfer mode"
	refreshFlagNameConstant           = "refresh"
	refreshFlagUsageConstant          = "Shorthand for --mode=refresh"
	existingCustomerFlagNameConstant  = "existing-customer"
	existingCustomerFlagUsageConstant = "Login of an existing destination customer"
	newCustomerFlagNameConstant       = "new-customer"
	newCustomerFlagUsageConstant      = "Display name of a destination customer to create"
	reportFlagNameConstant            = "report"
	reportFlagUsageConstant           = "Write a YAML run report to this path"
	credentialFlagUsageTemplate       = "The %s"
	commandExecutionErrorTemplate     = "migration of %s failed: %w"
	orchestratorCreationErrorTemplate = "unable to construct migration orchestrator: %w"
	runnerCreationErrorTemplate       = "unable to construct process runner: %w"
	inventoryOpenErrorTemplate        = "unable to open panel inventory: %w"
	inventoryCloseFailedLogMessage    = "unable to close panel inventory"
	commandCompletedLogMessage        = "migration completed"
	logFieldReportConstant            = "report_states"
)

var secretCredentialFields = map[CredentialField]struct{}{
	FieldSourceDatabasePassword:      {},
	FieldDestinationDatabasePassword: {},
	FieldDestinationSFTPPassword:     {},
	FieldSourcePanelPassword:         {},
	FieldDestinationPanelPassword:    {},
}

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// OrchestratorProvider builds the orchestrator used by the command. Tests replace it to inject fakes.
type OrchestratorProvider func(settings Settings, dependencies Dependencies) (*Orchestrator, error)

// CommandBuilder assembles the migrate Cobra command.
type CommandBuilder struct {
	LoggerProvider               LoggerProvider
	ConsoleLoggerProvider        LoggerProvider
	HumanReadableLoggingProvider func() bool
	ConfigurationProvider        func() Settings
	OrchestratorProvider         OrchestratorProvider
	Runner                       ProcessRunner
	PanelFactory                 PanelFactory
	Input                        io.Reader
	Output                       io.Writer
}

type commandOptions struct {
	databaseMigration bool
	panelManagement   bool
	transferMode      *flagutils.ChoiceValue
	refresh           bool
	existingCustomer  string
	newCustomer       string
	reportPath        string
	credentials       map[CredentialField]*flagutils.OptionalValue
	plainCredentials  map[CredentialField]*string
	execution         *flagutils.ExecutionFlags
}

// Build constructs the migrate command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	options := &commandOptions{
		transferMode:     flagutils.NewChoiceValue(string(TransferModeFull), []string{string(TransferModeFull), string(TransferModeRefresh)}),
		credentials:      map[CredentialField]*flagutils.OptionalValue{},
		plainCredentials: map[CredentialField]*string{},
	}

	command := &cobra.Command{
		Use:           commandUseConstant,
		Short:         commandShortDescriptionConstant,
		Long:          commandLongDescriptionConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.ExactArgs(2),
		RunE: func(command *cobra.Command, arguments []string) error {
			return builder.run(command, arguments, options)
		},
	}

	flagSet := command.Flags()
	flagutils.AddToggleFlag(flagSet, &options.databaseMigration, databaseFlagNameConstant, "", true, databaseFlagUsageConstant)
	flagutils.AddToggleFlag(flagSet, &options.panelManagement, panelFlagNameConstant, "", true, panelFlagUsageConstant)
	flagSet.Var(options.transferMode, modeFlagNameConstant, flagutils.FormatChoiceUsage(string(TransferModeFull), []string{string(TransferModeFull), string(TransferModeRefresh)}, modeFlagUsageConstant))
	flagSet.BoolVar(&options.refresh, refreshFlagNameConstant, false, refreshFlagUsageConstant)
	flagSet.StringVar(&options.existingCustomer, existingCustomerFlagNameConstant, "", existingCustomerFlagUsageConstant)
	flagSet.StringVar(&options.newCustomer, newCustomerFlagNameConstant, "", newCustomerFlagUsageConstant)
	flagSet.StringVar(&options.reportPath, reportFlagNameConstant, "", reportFlagUsageConstant)

	for _, field := range CredentialFields() {
		usage := fmt.Sprintf(credentialFlagUsageTemplate, field.Description())
		if _, secret := secretCredentialFields[field]; secret {
			value := &flagutils.OptionalValue{}
			options.credentials[field] = value
			flagutils.AddOptionalValueFlag(flagSet, value, string(field), usage)
			continue
		}
		value := new(string)
		options.plainCredentials[field] = value
		flagSet.StringVar(value, string(field), "", usage)
	}

	flagSet.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		if name == databaseFlagAliasConstant {
			name = databaseFlagNameConstant
		}
		return pflag.NormalizedName(name)
	})

	options.execution = flagutils.BindExecutionFlags(flagSet)

	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string, options *commandOptions) error {
	settings := builder.resolveConfiguration()
	contextAccessor := utils.NewCommandContextAccessor()
	assumeYes := options.execution.AssumeYes
	verbose := options.execution.Verbose
	if contextLevel, available := contextAccessor.LogLevel(command.Context()); available && strings.EqualFold(contextLevel, string(utils.LogLevelDebug)) {
		verbose = true
	}
	if command.Flags().Changed(reportFlagNameConstant) {
		settings.ReportPath = strings.TrimSpace(options.reportPath)
	}

	logger := builder.resolveLogger(verbose)
	consoleLogger := builder.resolveConsoleLogger()
	input := builder.resolveInput(command)
	output := builder.resolveOutput(command)

	request := builder.buildRequest(command, arguments, options, verbose, settings)

	runner, runnerError := builder.resolveRunner(logger, consoleLogger, output)
	if runnerError != nil {
		return runnerError
	}

	lines := NewLineReader(input)
	var checkpointer Checkpointer = NewInteractiveCheckpointer(lines, output)
	if assumeYes {
		checkpointer = NewAutoCheckpointer(output)
	}

	dependencies := Dependencies{
		Logger:         logger,
		Runner:         runner,
		Checkpointer:   checkpointer,
		SecretPrompter: NewTerminalSecretPrompter(lines, output),
		PanelFactory:   builder.PanelFactory,
		Output:         output,
	}
	if runIdentifier, available := contextAccessor.RunIdentifier(command.Context()); available {
		dependencies.RunIdentifier = func() string { return runIdentifier }
	}
	if builder.humanReadableLogging() {
		dependencies.StateObserver = NewConsoleStateLogger(consoleLogger)
	}
	if settings.Preflight.Enabled {
		dependencies.Preflight = NewNetworkPreflight(settings.Preflight, logger)
	}
	if request.PanelManagement && len(settings.Panel.Inventory.DataSourceName) > 0 {
		inventory, inventoryError := panel.OpenInventory(command.Context(), settings.Panel.Inventory.DataSourceName, []byte(settings.Panel.Inventory.Key), logger)
		if inventoryError != nil {
			return fmt.Errorf(inventoryOpenErrorTemplate, inventoryError)
		}
		defer func() {
			if closeError := inventory.Close(); closeError != nil {
				logger.Warn(inventoryCloseFailedLogMessage, zap.Error(closeError))
			}
		}()
		dependencies.Inventory = inventory
	}

	orchestrator, orchestratorError := builder.resolveOrchestrator(settings, dependencies)
	if orchestratorError != nil {
		return fmt.Errorf(orchestratorCreationErrorTemplate, orchestratorError)
	}

	report, runError := orchestrator.Run(command.Context(), request)
	if runError != nil {
		return fmt.Errorf(commandExecutionErrorTemplate, request.Site, runError)
	}
	logger.Info(commandCompletedLogMessage, zap.Int(logFieldReportConstant, len(report.States)))
	return nil
}

func (builder *CommandBuilder) buildRequest(command *cobra.Command, arguments []string, options *commandOptions, verbose bool, settings Settings) Request {
	flagSet := command.Flags()
	transferMode := settings.TransferMode
	if flagSet.Changed(modeFlagNameConstant) {
		transferMode = TransferMode(options.transferMode.String())
	}
	if options.refresh {
		transferMode = TransferModeRefresh
	}

	request := Request{
		Site:              strings.TrimSpace(arguments[0]),
		Destination:       strings.TrimSpace(arguments[1]),
		DatabaseMigration: options.databaseMigration,
		PanelManagement:   options.panelManagement,
		TransferMode:      transferMode,
		Verbose:           verbose,
		Credentials:       map[CredentialField]CredentialPolicy{},
		Customer: CustomerReference{
			ExistingLogin: strings.TrimSpace(options.existingCustomer),
			NewName:       strings.TrimSpace(options.newCustomer),
		},
	}

	for field, value := range options.plainCredentials {
		if flagSet.Changed(string(field)) {
			request.Credentials[field] = ExplicitValue(strings.TrimSpace(*value))
		}
	}
	for field, value := range options.credentials {
		switch {
		case !value.Supplied:
		case value.PromptRequested:
			request.Credentials[field] = PromptForValue()
		default:
			request.Credentials[field] = ExplicitValue(value.Value)
		}
	}
	return request
}

func (builder *CommandBuilder) resolveLogger(enableDebug bool) *zap.Logger {
	var logger *zap.Logger
	if builder.LoggerProvider != nil {
		logger = builder.LoggerProvider()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if enableDebug {
		logger = logger.WithOptions(zap.IncreaseLevel(zapcore.DebugLevel))
	}
	return logger
}

func (builder *CommandBuilder) resolveConsoleLogger() *zap.Logger {
	if builder.ConsoleLoggerProvider != nil {
		if consoleLogger := builder.ConsoleLoggerProvider(); consoleLogger != nil {
			return consoleLogger
		}
	}
	return zap.NewNop()
}

func (builder *CommandBuilder) humanReadableLogging() bool {
	return builder.HumanReadableLoggingProvider != nil && builder.HumanReadableLoggingProvider()
}

func (builder *CommandBuilder) resolveRunner(logger *zap.Logger, consoleLogger *zap.Logger, output io.Writer) (ProcessRunner, error) {
	if builder.Runner != nil {
		return builder.Runner, nil
	}

	var observer execshell.PipelineObserver
	if builder.humanReadableLogging() {
		observer = ui.NewConsolePipelineReporter(consoleLogger)
	}
	runner, creationError := execshell.NewSecureProcessRunner(logger, execshell.NewOSCommandRunner(nil, output), execshell.NewTerminalCommandRunner(output), observer)
	if creationError != nil {
		return nil, fmt.Errorf(runnerCreationErrorTemplate, creationError)
	}
	return runner, nil
}

func (builder *CommandBuilder) resolveOrchestrator(settings Settings, dependencies Dependencies) (*Orchestrator, error) {
	if builder.OrchestratorProvider != nil {
		return builder.OrchestratorProvider(settings, dependencies)
	}
	return NewOrchestrator(settings, dependencies)
}

func (builder *CommandBuilder) resolveConfiguration() Settings {
	if builder.ConfigurationProvider == nil {
		return DefaultSettings()
	}
	return builder.ConfigurationProvider().Sanitize()
}

func (builder *CommandBuilder) resolveInput(command *cobra.Command) io.Reader {
	if builder.Input != nil {
		return builder.Input
	}
	return command.InOrStdin()
}

func (builder *CommandBuilder) resolveOutput(command *cobra.Command) io.Writer {
	if builder.Output != nil {
		return builder.Output
	}
	return command.OutOrStdout()
}
