package migration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/temirov/sitemigrate/internal/cms"
	"github.com/temirov/sitemigrate/internal/execshell"
	"github.com/temirov/sitemigrate/internal/panel"
)

const (
	siteFieldConstant                  = "site"
	destinationFieldConstant           = "destination"
	modeFieldConstant                  = "mode"
	customerFieldConstant              = "customer"
	customerEmailFieldConstant         = "customer_email"
	requiredValueMessageConstant       = "value required"
	invalidSiteMessageConstant         = "must be a single directory name"
	missingDocumentRootTemplate        = "document root %s does not exist"
	undiscoveredValueMessageConstant   = "could not be discovered; supply it explicitly"
	panelValueMessageConstant          = "required when panel management is enabled"
	customerChoiceMessageConstant      = "choose either an existing customer or a new customer"
	customerRequiredMessageConstant    = "an existing or new customer is required when panel management is enabled"
	customerEmailMessageConstant       = "configure a contact email to create customers"
	documentRootDirectoryConstant      = "httpdocs"
	configurationDirectoryConstant     = "conf"
	virtualHostFileNameConstant        = "vhost.conf"
	panelConnectErrorTemplate          = "unable to connect to panel %s: %w"
	discoveryErrorTemplate             = "unable to search %s for database references: %w"
	credentialReadErrorTemplate        = "unable to read %s credentials: %w"
	credentialRewriteErrorTemplate     = "unable to rewrite %s credentials: %w"
	documentRootSizeErrorTemplate      = "unable to measure %s: %w"
	virtualHostReadErrorTemplate       = "unable to read %s: %w"
	adapterMissingTemplate             = "no adapter registered for %s"
	candidateListHeaderConstant        = "Possible database references:\n"
	candidateListLineTemplate          = "  %s\n"
	newCustomerCredentialsTemplate     = "New customer %q: login %s, password %s\n"
	hostingSettingTemplate             = "%s = %s"
	dnsRecordTemplate                  = "%s %s %s"
	explicitCredentialsDetailConstant  = "explicit credentials"
	installationDetailTemplate         = "%s at %s"
	noReferencesDetailConstant         = "no database references found"
	provisionedDetailTemplate          = "customer %s, webspace %s"
	rewriteDetailTemplate              = "%s configuration updated at %s"
	transferredDetailTemplate          = "%s transferred"
	shellRestoredDetailTemplate        = "shell set to %s"
	disabledDetailConstant             = "database migration disabled"
	panelDisabledDetailConstant        = "panel management disabled"
	noCronDetailConstant               = "no installation requires cron migration"
	virtualHostQuestionConstant        = "I see custom vhost settings.  Would you like to see them?"
	actionCreatePanelAccount           = "make the new customer and webspace in the panel - use bash as shell"
	actionCopyCertificates             = "copy the SSL certificates"
	actionVerifyHostingSettings        = "verify the PHP and hosting settings"
	actionRecreateProtectedDirectories = "recreate the protected directories"
	actionCreateDatabase               = "create the database %s"
	actionUpdateDatabaseReferences     = "update database refs"
	actionClearMagentoCache            = "clear the magento cache"
	actionTestOriginalSite             = "test the original site"
	actionUpdateNewDNS                 = "update new DNS if the destination panel hosts it"
	actionTestDestinationSite          = "test the site in the new location"
	actionUpdateRealDNS                = "update the real DNS"
	actionTransferCronJobs             = "transfer any cron jobs"
	actionRestoreShell                 = "switch the webspace shell back to %s"
	runStartedLogMessage               = "migration started"
	runFinishedLogMessage              = "migration finished"
	stateFailedLogMessage              = "migration step failed"
	noReferencesLogMessage             = "no database references found; database migration disabled"
	credentialsDiscoveredLogMessage    = "database credentials discovered"
	customerResolvedLogMessage         = "destination customer ready"
	webspaceCreatedLogMessage          = "destination webspace created"
	databaseSizeLogMessage             = "source database size"
	documentRootSizeLogMessage         = "source document root size"
	pipelineLogMessage                 = "running pipeline"
	panelDetailsUnavailableLogMessage  = "source panel details unavailable"
	inventoryUnavailableLogMessage     = "panel inventory lookup failed"
	reportWriteFailedLogMessage        = "unable to write run report"
	logFieldRunIdentifierConstant      = "run_id"
	logFieldSiteConstant               = "site"
	logFieldDestinationConstant        = "destination"
	logFieldStateConstant              = "state"
	logFieldTerminalConstant           = "terminal"
	logFieldExitCodeConstant           = "exit_code"
	logFieldKindConstant               = "kind"
	logFieldRootConstant               = "root"
	logFieldCustomerIDConstant         = "customer_id"
	logFieldCustomerLoginConstant      = "customer_login"
	logFieldWebspaceIDConstant         = "webspace_id"
	logFieldSizeConstant               = "size"
	logFieldLabelConstant              = "label"
	logFieldPipelineConstant           = "pipeline"
	logFieldOperationConstant          = "operation"
)

// ProcessRunner executes shell pipelines.
type ProcessRunner interface {
	Execute(executionContext context.Context, command execshell.ShellCommand) (execshell.PipelineResult, error)
}

// ControlPanel is the part of the panel API a run uses.
type ControlPanel interface {
	LookupCustomer(executionContext context.Context, login string) (panel.Customer, error)
	CreateCustomer(executionContext context.Context, request panel.CustomerRequest) (panel.Customer, error)
	CreateWebspace(executionContext context.Context, request panel.WebspaceRequest) (panel.Webspace, error)
	UpdateWebspaceHosting(executionContext context.Context, webspaceID panel.EntityID, properties []panel.Field) error
	HostingSettings(executionContext context.Context, siteName string) (map[string]string, error)
	SiteID(executionContext context.Context, siteName string) (panel.EntityID, error)
	ProtectedDirectories(executionContext context.Context, siteID panel.EntityID) ([]string, error)
	Certificates(executionContext context.Context, domainName string) ([]string, error)
	DNSRecords(executionContext context.Context, siteID panel.EntityID) ([]panel.DNSRecord, error)
}

// PanelFactory connects to the panel described by access.
type PanelFactory func(access PanelAccess) (ControlPanel, error)

// InventoryLookup resolves stored panel credentials by host name.
type InventoryLookup interface {
	Lookup(executionContext context.Context, hostname string) (panel.InventoryRecord, error)
}

// Dependencies wires the collaborators of an Orchestrator. Logger, Runner, and Checkpointer are required.
type Dependencies struct {
	Logger         *zap.Logger
	FileSystem     cms.FileSystem
	Registry       *cms.Registry
	Runner         ProcessRunner
	Checkpointer   Checkpointer
	SecretPrompter SecretPrompter
	PanelFactory   PanelFactory
	Inventory      InventoryLookup
	Preflight      Preflight
	StateObserver  StateObserver
	Output         io.Writer
	Hostname       func() (string, error)
	Clock          func() time.Time
	RunIdentifier  func() string
}

// Orchestrator runs migrations one state at a time.
type Orchestrator struct {
	settings     Settings
	dependencies Dependencies
	discoverer   *cms.Discoverer
}

// NewOrchestrator validates dependencies, fills optional ones with defaults, and constructs an Orchestrator.
func NewOrchestrator(settings Settings, dependencies Dependencies) (*Orchestrator, error) {
	if dependencies.Logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if dependencies.Runner == nil {
		return nil, ErrRunnerNotConfigured
	}
	if dependencies.Checkpointer == nil {
		return nil, ErrCheckpointerNotConfigured
	}

	settings = settings.Sanitize()
	if dependencies.FileSystem == nil {
		dependencies.FileSystem = cms.OSFileSystem{}
	}
	if dependencies.Registry == nil {
		dependencies.Registry = cms.NewRegistry(dependencies.FileSystem)
	}
	if dependencies.PanelFactory == nil {
		dependencies.PanelFactory = NewPanelFactory(settings.Panel, dependencies.Logger)
	}
	if dependencies.StateObserver == nil {
		dependencies.StateObserver = noopStateObserver{}
	}
	if dependencies.Output == nil {
		dependencies.Output = io.Discard
	}
	if dependencies.Hostname == nil {
		dependencies.Hostname = os.Hostname
	}
	if dependencies.Clock == nil {
		dependencies.Clock = time.Now
	}
	if dependencies.RunIdentifier == nil {
		dependencies.RunIdentifier = uuid.NewString
	}

	return &Orchestrator{
		settings:     settings,
		dependencies: dependencies,
		discoverer:   cms.NewDiscoverer(dependencies.FileSystem, dependencies.Registry),
	}, nil
}

// NewPanelFactory returns a PanelFactory that builds panel clients with the configured protocol and TLS policy.
func NewPanelFactory(settings PanelSettings, logger *zap.Logger) PanelFactory {
	return func(access PanelAccess) (ControlPanel, error) {
		return panel.NewClient(
			panel.Endpoint{
				Host:               access.Host,
				Port:               access.Port,
				Protocol:           panel.Protocol(settings.Protocol),
				InsecureSkipVerify: settings.InsecureSkipVerify,
			},
			panel.Credentials{Login: access.Login, Password: access.Password, SecretKey: access.SecretKey},
			logger,
		)
	}
}

type stateHandler func(executionContext context.Context) (StateOutcome, string, error)

type migrationRun struct {
	orchestrator     *Orchestrator
	settings         Settings
	dependencies     Dependencies
	logger           *zap.Logger
	request          Request
	plan             Plan
	resolver         *credentialResolver
	discovery        cms.Discovery
	discovered       bool
	sourcePanel      ControlPanel
	destinationPanel ControlPanel
	customer         panel.Customer
	webspace         panel.Webspace
}

// Run executes every state of a migration for request. The returned Report is populated even when the run fails.
func (orchestrator *Orchestrator) Run(executionContext context.Context, request Request) (Report, error) {
	runIdentifier := orchestrator.dependencies.RunIdentifier()
	run := &migrationRun{
		orchestrator: orchestrator,
		settings:     orchestrator.settings,
		dependencies: orchestrator.dependencies,
		logger:       orchestrator.dependencies.Logger.With(zap.String(logFieldRunIdentifierConstant, runIdentifier)),
		request:      request,
	}
	report := Report{
		RunID:       runIdentifier,
		Site:        request.Site,
		Destination: request.Destination,
		StartedAt:   orchestrator.dependencies.Clock(),
	}

	run.logger.Info(runStartedLogMessage,
		zap.String(logFieldSiteConstant, request.Site),
		zap.String(logFieldDestinationConstant, request.Destination),
	)

	runError := run.execute(executionContext, &report)
	return run.finish(report, runError)
}

func (run *migrationRun) steps() []struct {
	state   State
	handler stateHandler
} {
	return []struct {
		state   State
		handler stateHandler
	}{
		{StateValidate, run.validate},
		{StateDiscoverDatabase, run.discoverDatabase},
		{StateProvisionDestinationPanel, run.provisionDestinationPanel},
		{StateConfirmCertificates, run.confirmCertificates},
		{StateConfirmHostingSettings, run.confirmHostingSettings},
		{StateConfirmProtectedDirs, run.confirmProtectedDirectories},
		{StateProvisionDatabase, run.provisionDatabase},
		{StateTransferDatabase, run.transferDatabase},
		{StateRewriteCmsConfig, run.rewriteCmsConfiguration},
		{StateConfirmOriginalSiteHealth, run.confirmOriginalSiteHealth},
		{StateTransferFiles, run.transferFiles},
		{StateConfirmNewDns, run.confirmNewDNS},
		{StateConfirmSiteHealthAtDestination, run.confirmDestinationSiteHealth},
		{StateSwitchDns, run.switchDNS},
		{StateTransferCronJobs, run.transferCronJobs},
		{StateRestoreSecureShell, run.restoreSecureShell},
	}
}

func (run *migrationRun) execute(executionContext context.Context, report *Report) error {
	observer := run.dependencies.StateObserver
	for _, step := range run.steps() {
		if contextError := executionContext.Err(); contextError != nil {
			return RunError{State: step.state, Cause: contextError}
		}

		observer.StateStarted(step.state)
		outcome, detail, stepError := step.handler(executionContext)
		if stepError != nil {
			record := StateRecord{State: step.state, Outcome: OutcomeFailed, Detail: stepError.Error()}
			report.States = append(report.States, record)
			observer.StateFinished(record)
			run.logger.Warn(stateFailedLogMessage, zap.String(logFieldStateConstant, string(step.state)), zap.Error(stepError))
			return RunError{State: step.state, Cause: stepError}
		}

		record := StateRecord{State: step.state, Outcome: outcome, Detail: detail}
		report.States = append(report.States, record)
		observer.StateFinished(record)
		run.recordPlan(report)
	}

	observer.StateStarted(StateDone)
	doneRecord := StateRecord{State: StateDone, Outcome: OutcomeCompleted}
	report.States = append(report.States, doneRecord)
	observer.StateFinished(doneRecord)
	return nil
}

func (run *migrationRun) recordPlan(report *Report) {
	report.TransferMode = run.plan.TransferMode
	report.Database = run.plan.DatabaseMigration
	report.Panel = run.plan.PanelManagement
	report.CustomerID = string(run.customer.ID)
	report.CustomerLogin = run.customer.Login
	report.WebspaceID = string(run.webspace.ID)
}

func (run *migrationRun) finish(report Report, runError error) (Report, error) {
	run.recordPlan(&report)
	report.FinishedAt = run.dependencies.Clock()
	report.ExitCode = ExitCode(runError)
	switch {
	case runError == nil:
		report.Terminal = TerminalDone
	case report.ExitCode == ExitCodeInterrupted:
		report.Terminal = TerminalInterrupted
	default:
		report.Terminal = TerminalAborted
	}
	if runError != nil {
		report.Error = runError.Error()
	}

	run.logger.Info(runFinishedLogMessage,
		zap.String(logFieldTerminalConstant, string(report.Terminal)),
		zap.Int(logFieldExitCodeConstant, report.ExitCode),
	)

	if len(run.settings.ReportPath) > 0 {
		if writeError := WriteReport(run.settings.ReportPath, report); writeError != nil {
			run.logger.Warn(reportWriteFailedLogMessage, zap.Error(writeError))
		}
	}
	return report, runError
}

func (run *migrationRun) validate(executionContext context.Context) (StateOutcome, string, error) {
	site := strings.TrimSpace(run.request.Site)
	destination := strings.TrimSpace(run.request.Destination)
	if len(site) == 0 {
		return OutcomeFailed, "", ValidationError{Field: siteFieldConstant, Message: requiredValueMessageConstant}
	}
	if site != filepath.Base(site) || site == "." || site == ".." {
		return OutcomeFailed, "", ValidationError{Field: siteFieldConstant, Message: invalidSiteMessageConstant}
	}
	if len(destination) == 0 {
		return OutcomeFailed, "", ValidationError{Field: destinationFieldConstant, Message: requiredValueMessageConstant}
	}

	transferMode := run.request.TransferMode
	if len(transferMode) == 0 {
		transferMode = run.settings.TransferMode
	}
	transferMode, modeError := ParseTransferMode(string(transferMode))
	if modeError != nil {
		return OutcomeFailed, "", ValidationError{Field: modeFieldConstant, Message: modeError.Error()}
	}

	sourceHostname, _ := run.dependencies.Hostname()
	request := run.request
	request.Site = site
	request.Destination = destination
	run.resolver = newCredentialResolver(defaultCredentialPolicies(request, run.settings, sourceHostname), run.dependencies.SecretPrompter)

	plan := Plan{
		Site:                     site,
		Destination:              destination,
		SourceDocumentRoot:       filepath.Join(run.settings.DocumentRoot, site, documentRootDirectoryConstant),
		VirtualHostConfiguration: filepath.Join(run.settings.DocumentRoot, site, configurationDirectoryConstant, virtualHostFileNameConstant),
		DatabaseMigration:        run.request.DatabaseMigration,
		PanelManagement:          run.request.PanelManagement,
		Customer:                 run.request.Customer,
		TransferMode:             transferMode,
		Verbose:                  run.request.Verbose,
	}

	fileInfo, statError := run.dependencies.FileSystem.Stat(plan.SourceDocumentRoot)
	if statError != nil || !fileInfo.IsDir() {
		return OutcomeFailed, "", ValidationError{Field: siteFieldConstant, Message: fmt.Sprintf(missingDocumentRootTemplate, plan.SourceDocumentRoot)}
	}

	var resolveError error
	if plan.SFTP, resolveError = run.resolveSFTP(executionContext); resolveError != nil {
		return OutcomeFailed, "", resolveError
	}
	plan.DestinationDocumentRoot = path.Join(run.settings.DocumentRoot, plan.SFTP.Site, documentRootDirectoryConstant)

	run.plan = plan
	if plan.PanelManagement {
		if panelError := run.preparePanels(executionContext); panelError != nil {
			return OutcomeFailed, "", panelError
		}
	}
	return OutcomeCompleted, "", nil
}

func (run *migrationRun) resolveSFTP(executionContext context.Context) (SFTPAccess, error) {
	values, resolveError := run.resolveFields(executionContext, FieldDestinationSFTPUser, FieldDestinationSFTPPassword, FieldDestinationSFTPSite)
	if resolveError != nil {
		return SFTPAccess{}, resolveError
	}
	access := SFTPAccess{User: values[0], Password: values[1], Site: values[2]}
	if len(access.Site) == 0 || access.Site != filepath.Base(access.Site) {
		return SFTPAccess{}, ValidationError{Field: string(FieldDestinationSFTPSite), Message: invalidSiteMessageConstant}
	}
	return access, nil
}

func (run *migrationRun) preparePanels(executionContext context.Context) error {
	sourceValues, sourceError := run.resolveFields(executionContext, FieldSourcePanelHost, FieldSourcePanelLogin, FieldSourcePanelPassword)
	if sourceError != nil {
		return sourceError
	}
	destinationValues, destinationError := run.resolveFields(executionContext, FieldDestinationPanelHost, FieldDestinationPanelLogin, FieldDestinationPanelPassword, FieldDestinationPanelAddress)
	if destinationError != nil {
		return destinationError
	}

	sourceAccess := PanelAccess{Host: sourceValues[0], Login: sourceValues[1], Password: sourceValues[2], Port: run.settings.Panel.Port}
	destinationAccess := PanelAccess{
		Host:       destinationValues[0],
		Login:      destinationValues[1],
		Password:   destinationValues[2],
		InternalIP: destinationValues[3],
		Port:       run.settings.DestinationPanelPort(sourceAccess.Host),
	}
	destinationAccess = run.applyInventory(executionContext, destinationAccess)

	requiredFields := []struct {
		field CredentialField
		value string
	}{
		{FieldSourcePanelHost, sourceAccess.Host},
		{FieldSourcePanelLogin, sourceAccess.Login},
		{FieldSourcePanelPassword, sourceAccess.Password},
		{FieldDestinationPanelHost, destinationAccess.Host},
		{FieldDestinationPanelLogin, destinationAccess.Login},
		{FieldDestinationPanelPassword, destinationAccess.Password},
		{FieldDestinationPanelAddress, destinationAccess.InternalIP},
		{FieldDestinationSFTPUser, run.plan.SFTP.User},
		{FieldDestinationSFTPPassword, run.plan.SFTP.Password},
	}
	for _, required := range requiredFields {
		if len(required.value) == 0 {
			return ValidationError{Field: string(required.field), Message: panelValueMessageConstant}
		}
	}

	customer := run.plan.Customer
	switch {
	case len(customer.ExistingLogin) > 0 && len(customer.NewName) > 0:
		return ValidationError{Field: customerFieldConstant, Message: customerChoiceMessageConstant}
	case !customer.Present():
		return ValidationError{Field: customerFieldConstant, Message: customerRequiredMessageConstant}
	case len(customer.NewName) > 0 && len(run.settings.CustomerEmail) == 0:
		return ValidationError{Field: customerEmailFieldConstant, Message: customerEmailMessageConstant}
	}

	sourcePanel, sourcePanelError := run.dependencies.PanelFactory(sourceAccess)
	if sourcePanelError != nil {
		return fmt.Errorf(panelConnectErrorTemplate, sourceAccess.Host, sourcePanelError)
	}
	run.sourcePanel = sourcePanel
	run.plan.SourcePanel = sourceAccess
	run.plan.DestinationPanel = destinationAccess
	return nil
}

// applyInventory fills destination panel values the operator did not supply from the inventory database.
func (run *migrationRun) applyInventory(executionContext context.Context, access PanelAccess) PanelAccess {
	if run.dependencies.Inventory == nil {
		return access
	}
	_, loginSupplied := run.request.Credentials[FieldDestinationPanelLogin]
	passwordSupplied := len(access.Password) > 0
	addressSupplied := len(access.InternalIP) > 0
	if passwordSupplied && addressSupplied {
		return access
	}

	record, lookupError := run.dependencies.Inventory.Lookup(executionContext, access.Host)
	if lookupError != nil {
		run.logger.Warn(inventoryUnavailableLogMessage, zap.String(logFieldDestinationConstant, access.Host), zap.Error(lookupError))
		return access
	}
	if !loginSupplied && !passwordSupplied && len(record.Login) > 0 {
		access.Login = record.Login
	}
	if !passwordSupplied {
		access.Password = record.Password
	}
	if !addressSupplied {
		access.InternalIP = record.InternalIP
	}
	return access
}

func (run *migrationRun) resolveFields(executionContext context.Context, fields ...CredentialField) ([]string, error) {
	values := make([]string, 0, len(fields))
	for _, field := range fields {
		value, resolveError := run.resolver.resolve(executionContext, field)
		if resolveError != nil {
			return nil, resolveError
		}
		values = append(values, strings.TrimSpace(value))
	}
	return values, nil
}

func (run *migrationRun) discoverDatabase(executionContext context.Context) (StateOutcome, string, error) {
	if !run.plan.DatabaseMigration {
		return OutcomeSkipped, disabledDetailConstant, nil
	}

	discovery, discoveryError := run.orchestrator.discoverer.Discover(run.plan.SourceDocumentRoot)
	if discoveryError != nil {
		return OutcomeFailed, "", fmt.Errorf(discoveryErrorTemplate, run.plan.SourceDocumentRoot, discoveryError)
	}
	run.discovery = discovery
	run.discovered = true

	sourceSupplied := run.resolver.policy(FieldSourceDatabaseName).OperatorSupplied() &&
		run.resolver.policy(FieldSourceDatabasePassword).OperatorSupplied() &&
		run.resolver.policy(FieldSourceDatabaseHost).OperatorSupplied()

	detail := explicitCredentialsDetailConstant
	installation, referenced := discovery.ReferencedInstallation()
	switch candidateCount := len(discovery.CandidateReferences); {
	case candidateCount > 1 && !sourceSupplied:
		return OutcomeFailed, "", run.reportAmbiguity(discovery)
	case candidateCount == 1 && !referenced && !sourceSupplied:
		return OutcomeFailed, "", run.reportAmbiguity(discovery)
	case candidateCount == 0 && !sourceSupplied:
		run.logger.Warn(noReferencesLogMessage, zap.String(logFieldRootConstant, run.plan.SourceDocumentRoot))
		run.plan.DatabaseMigration = false
		return OutcomeSkipped, noReferencesDetailConstant, nil
	}

	if referenced {
		adapter, registered := run.dependencies.Registry.AdapterFor(installation.Kind)
		if !registered {
			return OutcomeFailed, "", fmt.Errorf(adapterMissingTemplate, installation.Kind)
		}
		credentials, readError := adapter.ReadCredentials(installation.Root)
		if readError != nil {
			return OutcomeFailed, "", fmt.Errorf(credentialReadErrorTemplate, installation.Kind, readError)
		}
		run.resolver.setDiscovered(FieldSourceDatabaseName, credentials.Name)
		run.resolver.setDiscovered(FieldSourceDatabaseUser, credentials.User)
		run.resolver.setDiscovered(FieldSourceDatabasePassword, credentials.Password)
		run.resolver.setDiscovered(FieldSourceDatabaseHost, credentials.Host)
		run.logger.Info(credentialsDiscoveredLogMessage,
			zap.String(logFieldKindConstant, string(installation.Kind)),
			zap.String(logFieldRootConstant, installation.Root),
		)
		detail = fmt.Sprintf(installationDetailTemplate, installation.Kind, installation.Root)
	}

	if resolveError := run.resolveDatabases(executionContext); resolveError != nil {
		return OutcomeFailed, "", resolveError
	}
	return OutcomeCompleted, detail, nil
}

// reportAmbiguity lists the candidate references for the operator, who must pass source credentials explicitly.
func (run *migrationRun) reportAmbiguity(discovery cms.Discovery) error {
	io.WriteString(run.dependencies.Output, candidateListHeaderConstant)
	for _, candidate := range discovery.CandidateReferences {
		fmt.Fprintf(run.dependencies.Output, candidateListLineTemplate, candidate)
	}
	return AmbiguousDiscoveryError{Candidates: append([]string{}, discovery.CandidateReferences...)}
}

func (run *migrationRun) resolveDatabases(executionContext context.Context) error {
	fields := []CredentialField{
		FieldSourceDatabaseName, FieldSourceDatabaseUser, FieldSourceDatabasePassword, FieldSourceDatabaseHost,
		FieldDestinationDatabaseName, FieldDestinationDatabaseUser, FieldDestinationDatabasePassword, FieldDestinationDatabaseHost,
	}
	values, resolveError := run.resolveFields(executionContext, fields...)
	if resolveError != nil {
		return resolveError
	}
	for index, value := range values {
		if len(value) == 0 {
			return ValidationError{Field: string(fields[index]), Message: undiscoveredValueMessageConstant}
		}
	}
	run.plan.SourceDatabase = DatabaseCredentials{Name: values[0], User: values[1], Password: values[2], Host: values[3]}
	run.plan.DestinationDatabase = DatabaseCredentials{Name: values[4], User: values[5], Password: values[6], Host: values[7]}
	return nil
}

func (run *migrationRun) provisionDestinationPanel(executionContext context.Context) (StateOutcome, string, error) {
	if !run.plan.PanelManagement {
		return run.checkpoint(executionContext, StateProvisionDestinationPanel, actionCreatePanelAccount)
	}

	destinationPanel, panelError := run.dependencies.PanelFactory(run.plan.DestinationPanel)
	if panelError != nil {
		return OutcomeFailed, "", fmt.Errorf(panelConnectErrorTemplate, run.plan.DestinationPanel.Host, panelError)
	}
	run.destinationPanel = destinationPanel

	var customer panel.Customer
	var customerError error
	if len(run.plan.Customer.ExistingLogin) > 0 {
		customer, customerError = destinationPanel.LookupCustomer(executionContext, run.plan.Customer.ExistingLogin)
	} else {
		customer, customerError = destinationPanel.CreateCustomer(executionContext, panel.CustomerRequest{Name: run.plan.Customer.NewName, Email: run.settings.CustomerEmail})
		if customerError == nil {
			fmt.Fprintf(run.dependencies.Output, newCustomerCredentialsTemplate, customer.Name, customer.Login, customer.Password)
		}
	}
	if customerError != nil {
		return OutcomeFailed, "", customerError
	}
	run.customer = customer
	run.logger.Info(customerResolvedLogMessage,
		zap.String(logFieldCustomerIDConstant, string(customer.ID)),
		zap.String(logFieldCustomerLoginConstant, customer.Login),
	)

	webspace, webspaceError := destinationPanel.CreateWebspace(executionContext, panel.WebspaceRequest{
		Name:        run.plan.SFTP.Site,
		OwnerID:     customer.ID,
		IPAddress:   run.plan.DestinationPanel.InternalIP,
		FTPLogin:    run.plan.SFTP.User,
		FTPPassword: run.plan.SFTP.Password,
		Shell:       panel.DefaultShell,
		PlanName:    run.settings.HostingPlan,
	})
	if webspaceError != nil {
		return OutcomeFailed, "", webspaceError
	}
	run.webspace = webspace
	run.logger.Info(webspaceCreatedLogMessage, zap.String(logFieldWebspaceIDConstant, string(webspace.ID)))

	return OutcomeCompleted, fmt.Sprintf(provisionedDetailTemplate, customer.ID, webspace.ID), nil
}

func (run *migrationRun) confirmCertificates(executionContext context.Context) (StateOutcome, string, error) {
	details := run.sourcePanelDetails(executionContext, StateConfirmCertificates, func(sourcePanel ControlPanel) ([]string, error) {
		return sourcePanel.Certificates(executionContext, run.plan.Site)
	})
	return run.checkpoint(executionContext, StateConfirmCertificates, actionCopyCertificates, details...)
}

func (run *migrationRun) confirmHostingSettings(executionContext context.Context) (StateOutcome, string, error) {
	details := run.sourcePanelDetails(executionContext, StateConfirmHostingSettings, func(sourcePanel ControlPanel) ([]string, error) {
		settings, settingsError := sourcePanel.HostingSettings(executionContext, run.plan.Site)
		if settingsError != nil {
			return nil, settingsError
		}
		lines := make([]string, 0, len(settings))
		for name, value := range settings {
			lines = append(lines, fmt.Sprintf(hostingSettingTemplate, name, value))
		}
		sort.Strings(lines)
		return lines, nil
	})

	outcome, detail, checkpointError := run.checkpoint(executionContext, StateConfirmHostingSettings, actionVerifyHostingSettings, details...)
	if checkpointError != nil {
		return outcome, detail, checkpointError
	}

	if _, statError := run.dependencies.FileSystem.Stat(run.plan.VirtualHostConfiguration); statError != nil {
		return outcome, detail, nil
	}
	showConfiguration, confirmError := run.dependencies.Checkpointer.Confirm(executionContext, virtualHostQuestionConstant, false)
	if confirmError != nil {
		return OutcomeFailed, "", confirmError
	}
	if showConfiguration {
		contents, readError := run.dependencies.FileSystem.ReadFile(run.plan.VirtualHostConfiguration)
		if readError != nil {
			return OutcomeFailed, "", fmt.Errorf(virtualHostReadErrorTemplate, run.plan.VirtualHostConfiguration, readError)
		}
		run.dependencies.Output.Write(contents)
	}
	return outcome, detail, nil
}

func (run *migrationRun) confirmProtectedDirectories(executionContext context.Context) (StateOutcome, string, error) {
	details := run.sourcePanelDetails(executionContext, StateConfirmProtectedDirs, func(sourcePanel ControlPanel) ([]string, error) {
		siteID, siteError := sourcePanel.SiteID(executionContext, run.plan.Site)
		if siteError != nil {
			return nil, siteError
		}
		return sourcePanel.ProtectedDirectories(executionContext, siteID)
	})
	return run.checkpoint(executionContext, StateConfirmProtectedDirs, actionRecreateProtectedDirectories, details...)
}

func (run *migrationRun) provisionDatabase(executionContext context.Context) (StateOutcome, string, error) {
	if !run.plan.DatabaseMigration {
		return OutcomeSkipped, disabledDetailConstant, nil
	}
	return run.checkpoint(executionContext, StateProvisionDatabase, fmt.Sprintf(actionCreateDatabase, run.plan.DestinationDatabase.URL()))
}

func (run *migrationRun) transferDatabase(executionContext context.Context) (StateOutcome, string, error) {
	if !run.plan.DatabaseMigration {
		return OutcomeSkipped, disabledDetailConstant, nil
	}
	if run.dependencies.Preflight != nil {
		sizeBytes, preflightError := run.dependencies.Preflight.CheckSourceDatabase(executionContext, run.plan.SourceDatabase)
		if preflightError != nil {
			return OutcomeFailed, "", preflightError
		}
		run.logger.Info(databaseSizeLogMessage, zap.String(logFieldSizeConstant, humanize.Bytes(uint64(sizeBytes))))
	}

	command := NewPipelineBuilder(run.plan, run.settings).DatabaseTransfer()
	if runError := run.runPipeline(executionContext, command); runError != nil {
		return OutcomeFailed, "", runError
	}
	return OutcomeCompleted, "", nil
}

func (run *migrationRun) rewriteCmsConfiguration(executionContext context.Context) (StateOutcome, string, error) {
	if !run.plan.DatabaseMigration {
		return OutcomeSkipped, disabledDetailConstant, nil
	}

	var outcome StateOutcome
	var detail string
	if installation, single := run.discovery.ReferencedInstallation(); single {
		adapter, registered := run.dependencies.Registry.AdapterFor(installation.Kind)
		if !registered {
			return OutcomeFailed, "", fmt.Errorf(adapterMissingTemplate, installation.Kind)
		}
		destination := run.plan.DestinationDatabase
		update := cms.CredentialUpdate{Name: destination.Name, User: destination.User, Password: destination.Password, Host: destination.Host}
		if rewriteError := adapter.RewriteCredentials(installation.Root, update); rewriteError != nil {
			return OutcomeFailed, "", fmt.Errorf(credentialRewriteErrorTemplate, installation.Kind, rewriteError)
		}
		outcome, detail = OutcomeCompleted, fmt.Sprintf(rewriteDetailTemplate, installation.Kind, installation.Root)
	} else {
		var checkpointError error
		outcome, detail, checkpointError = run.checkpoint(executionContext, StateRewriteCmsConfig, actionUpdateDatabaseReferences, run.discovery.CandidateReferences...)
		if checkpointError != nil {
			return outcome, detail, checkpointError
		}
	}

	if magentoRoots := run.discovery.RootsOfKind(cms.KindMagento); len(magentoRoots) > 0 {
		if _, _, checkpointError := run.checkpoint(executionContext, StateRewriteCmsConfig, actionClearMagentoCache, magentoRoots...); checkpointError != nil {
			return OutcomeFailed, "", checkpointError
		}
	}
	return outcome, detail, nil
}

func (run *migrationRun) confirmOriginalSiteHealth(executionContext context.Context) (StateOutcome, string, error) {
	if !run.plan.DatabaseMigration {
		return OutcomeSkipped, disabledDetailConstant, nil
	}
	return run.checkpoint(executionContext, StateConfirmOriginalSiteHealth, actionTestOriginalSite)
}

func (run *migrationRun) transferFiles(executionContext context.Context) (StateOutcome, string, error) {
	if run.dependencies.Preflight != nil {
		if preflightError := run.dependencies.Preflight.CheckDestination(executionContext, run.plan.Destination, run.plan.SFTP, run.plan.DestinationDocumentRoot); preflightError != nil {
			return OutcomeFailed, "", preflightError
		}
	}

	builder := NewPipelineBuilder(run.plan, run.settings)
	if run.plan.TransferMode == TransferModeRefresh {
		if runError := run.runPipeline(executionContext, builder.FileRefresh()); runError != nil {
			return OutcomeFailed, "", runError
		}
		return OutcomeCompleted, string(TransferModeRefresh), nil
	}

	sizeBytes, sizeError := run.documentRootSize()
	if sizeError != nil {
		return OutcomeFailed, "", fmt.Errorf(documentRootSizeErrorTemplate, run.plan.SourceDocumentRoot, sizeError)
	}
	run.logger.Info(documentRootSizeLogMessage, zap.String(logFieldSizeConstant, humanize.Bytes(uint64(sizeBytes))))

	if runError := run.runPipeline(executionContext, builder.ClearDestination()); runError != nil {
		return OutcomeFailed, "", runError
	}
	if runError := run.runPipeline(executionContext, builder.FileArchiveTransfer(sizeBytes)); runError != nil {
		return OutcomeFailed, "", runError
	}
	return OutcomeCompleted, fmt.Sprintf(transferredDetailTemplate, humanize.Bytes(uint64(sizeBytes))), nil
}

func (run *migrationRun) confirmNewDNS(executionContext context.Context) (StateOutcome, string, error) {
	details := run.sourcePanelDetails(executionContext, StateConfirmNewDns, func(sourcePanel ControlPanel) ([]string, error) {
		siteID, siteError := sourcePanel.SiteID(executionContext, run.plan.Site)
		if siteError != nil {
			return nil, siteError
		}
		records, recordsError := sourcePanel.DNSRecords(executionContext, siteID)
		if recordsError != nil {
			return nil, recordsError
		}
		lines := make([]string, 0, len(records))
		for _, record := range records {
			lines = append(lines, fmt.Sprintf(dnsRecordTemplate, record.Host, record.Type, record.Value))
		}
		return lines, nil
	})
	return run.checkpoint(executionContext, StateConfirmNewDns, actionUpdateNewDNS, details...)
}

func (run *migrationRun) confirmDestinationSiteHealth(executionContext context.Context) (StateOutcome, string, error) {
	return run.checkpoint(executionContext, StateConfirmSiteHealthAtDestination, actionTestDestinationSite)
}

func (run *migrationRun) switchDNS(executionContext context.Context) (StateOutcome, string, error) {
	return run.checkpoint(executionContext, StateSwitchDns, actionUpdateRealDNS)
}

func (run *migrationRun) transferCronJobs(executionContext context.Context) (StateOutcome, string, error) {
	if !run.plan.DatabaseMigration || !run.discovered || !run.orchestrator.discoverer.RequiresCronMigration(run.discovery) {
		return OutcomeSkipped, noCronDetailConstant, nil
	}
	return run.checkpoint(executionContext, StateTransferCronJobs, actionTransferCronJobs)
}

func (run *migrationRun) restoreSecureShell(executionContext context.Context) (StateOutcome, string, error) {
	if !run.plan.PanelManagement {
		return run.checkpoint(executionContext, StateRestoreSecureShell, fmt.Sprintf(actionRestoreShell, run.settings.ChrootShell))
	}
	properties := []panel.Field{{Name: panel.ShellProperty, Value: run.settings.ChrootShell}}
	if updateError := run.destinationPanel.UpdateWebspaceHosting(executionContext, run.webspace.ID, properties); updateError != nil {
		return OutcomeFailed, "", updateError
	}
	return OutcomeCompleted, fmt.Sprintf(shellRestoredDetailTemplate, run.settings.ChrootShell), nil
}

func (run *migrationRun) checkpoint(executionContext context.Context, state State, action string, details ...string) (StateOutcome, string, error) {
	acknowledged, acknowledgeError := run.dependencies.Checkpointer.Acknowledge(executionContext, Checkpoint{State: state, Action: action, Details: details})
	if acknowledgeError != nil {
		return OutcomeFailed, "", acknowledgeError
	}
	if !acknowledged {
		return OutcomeFailed, "", ErrCheckpointDeclined
	}
	return OutcomeAcknowledged, "", nil
}

// sourcePanelDetails collects context for a checkpoint from the source panel. Failures only cost the context.
func (run *migrationRun) sourcePanelDetails(executionContext context.Context, state State, fetch func(sourcePanel ControlPanel) ([]string, error)) []string {
	if run.sourcePanel == nil {
		return nil
	}
	details, fetchError := fetch(run.sourcePanel)
	if fetchError != nil {
		if errors.Is(fetchError, context.Canceled) {
			return nil
		}
		run.logger.Warn(panelDetailsUnavailableLogMessage, zap.String(logFieldStateConstant, string(state)), zap.Error(fetchError))
		return nil
	}
	return details
}

func (run *migrationRun) runPipeline(executionContext context.Context, command execshell.ShellCommand) error {
	if run.plan.Verbose {
		redactor := execshell.NewRedactor(command.Secrets())
		run.logger.Info(pipelineLogMessage,
			zap.String(logFieldLabelConstant, command.Label),
			zap.String(logFieldPipelineConstant, redactor.Redact(command.Pipeline.Render())),
		)
	}
	_, runError := run.dependencies.Runner.Execute(executionContext, command)
	return runError
}

func (run *migrationRun) documentRootSize() (int64, error) {
	var totalBytes int64
	walkError := run.dependencies.FileSystem.WalkDir(run.plan.SourceDocumentRoot, func(_ string, directoryEntry fs.DirEntry, walkError error) error {
		if walkError != nil {
			return walkError
		}
		if !directoryEntry.Type().IsRegular() {
			return nil
		}
		fileInfo, infoError := directoryEntry.Info()
		if infoError != nil {
			return infoError
		}
		totalBytes += fileInfo.Size()
		return nil
	})
	return totalBytes, walkError
}
