package migration_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/temirov/sitemigrate/internal/cms"
	"github.com/temirov/sitemigrate/internal/execshell"
	"github.com/temirov/sitemigrate/internal/migration"
	"github.com/temirov/sitemigrate/internal/panel"
)

const (
	testSiteConstant                  = "greensworth.com"
	testDestinationConstant           = "dest.example.com"
	testSourceHostnameConstant        = "source.example.com"
	testSFTPUserConstant              = "greensworth_cp"
	testSFTPPasswordConstant          = "sftp-secret"
	testSourcePanelPasswordConstant   = "source-panel-secret"
	testDestPanelPasswordConstant     = "dest-panel-secret"
	testDestPanelAddressConstant      = "10.0.0.7"
	testCustomerEmailConstant         = "hosting@example.com"
	testRunIdentifierConstant         = "run-0001"
	testDatabaseTransferLabelConstant = "database transfer"
	testClearLabelConstant            = "clear destination"
	testFileTransferLabelConstant     = "file transfer"
	testFileRefreshLabelConstant      = "file refresh"
	testWordPressFixtureConstant      = `<?php
define('DB_NAME', 'brownsworth_db');
define('DB_USER', 'brownsworth_user');
define('DB_PASSWORD', 'fly(1)nG');
define('DB_HOST', 'localhost');
`
	testPipelineFailureCaseConstant = "pipeline_failure_aborts"
	testInterruptionCaseConstant    = "interruption_exits_130"
	testDeclinedCaseConstant        = "declined_checkpoint_aborts"
	testCanceledContextCaseConstant = "canceled_before_start"
	testMissingSiteCaseConstant     = "missing_site"
	testNestedSiteCaseConstant      = "site_with_separator"
	testMissingDestinationCase      = "missing_destination"
	testMissingDocumentRootCase     = "missing_document_root"
	testInvalidModeCaseConstant     = "invalid_transfer_mode"
	testPanelWithoutCustomerCase    = "panel_without_customer"
	testPanelWithBothCustomersCase  = "panel_with_both_customers"
	testPanelWithoutPasswordCase    = "panel_without_destination_password"
	testPanelWithoutEmailCase       = "panel_new_customer_without_email"
	testPromptWithoutPrompterCase   = "prompt_without_prompter"
	testDerivationCycleCaseConstant = "derivation_cycle"
)

type recordingProcessRunner struct {
	commands     []execshell.ShellCommand
	failingLabel string
	failure      error
}

func (runner *recordingProcessRunner) Execute(executionContext context.Context, command execshell.ShellCommand) (execshell.PipelineResult, error) {
	runner.commands = append(runner.commands, command)
	if len(runner.failingLabel) > 0 && command.Label == runner.failingLabel {
		return execshell.PipelineResult{ExitCode: 1}, runner.failure
	}
	return execshell.PipelineResult{}, nil
}

func (runner *recordingProcessRunner) labels() []string {
	labels := make([]string, 0, len(runner.commands))
	for _, command := range runner.commands {
		labels = append(labels, command.Label)
	}
	return labels
}

type recordingCheckpointer struct {
	checkpoints   []migration.Checkpoint
	questions     []string
	declineAction string
	confirmAnswer bool
}

func (checkpointer *recordingCheckpointer) Acknowledge(executionContext context.Context, checkpoint migration.Checkpoint) (bool, error) {
	checkpointer.checkpoints = append(checkpointer.checkpoints, checkpoint)
	return checkpoint.Action != checkpointer.declineAction, nil
}

func (checkpointer *recordingCheckpointer) Confirm(executionContext context.Context, question string, defaultAnswer bool) (bool, error) {
	checkpointer.questions = append(checkpointer.questions, question)
	return checkpointer.confirmAnswer, nil
}

func (checkpointer *recordingCheckpointer) actions() []string {
	actions := make([]string, 0, len(checkpointer.checkpoints))
	for _, checkpoint := range checkpointer.checkpoints {
		actions = append(actions, checkpoint.Action)
	}
	return actions
}

type fakeControlPanel struct {
	customer          panel.Customer
	webspace          panel.Webspace
	customerRequests  []panel.CustomerRequest
	lookedUpLogins    []string
	webspaceRequests  []panel.WebspaceRequest
	hostingUpdates    [][]panel.Field
	certificates      []string
	certificatesError error
	hostingSettings   map[string]string
	protected         []string
	dnsRecords        []panel.DNSRecord
}

func (fake *fakeControlPanel) LookupCustomer(executionContext context.Context, login string) (panel.Customer, error) {
	fake.lookedUpLogins = append(fake.lookedUpLogins, login)
	return fake.customer, nil
}

func (fake *fakeControlPanel) CreateCustomer(executionContext context.Context, request panel.CustomerRequest) (panel.Customer, error) {
	fake.customerRequests = append(fake.customerRequests, request)
	return fake.customer, nil
}

func (fake *fakeControlPanel) CreateWebspace(executionContext context.Context, request panel.WebspaceRequest) (panel.Webspace, error) {
	fake.webspaceRequests = append(fake.webspaceRequests, request)
	return fake.webspace, nil
}

func (fake *fakeControlPanel) UpdateWebspaceHosting(executionContext context.Context, webspaceID panel.EntityID, properties []panel.Field) error {
	fake.hostingUpdates = append(fake.hostingUpdates, properties)
	return nil
}

func (fake *fakeControlPanel) HostingSettings(executionContext context.Context, siteName string) (map[string]string, error) {
	return fake.hostingSettings, nil
}

func (fake *fakeControlPanel) SiteID(executionContext context.Context, siteName string) (panel.EntityID, error) {
	return panel.EntityID("17"), nil
}

func (fake *fakeControlPanel) ProtectedDirectories(executionContext context.Context, siteID panel.EntityID) ([]string, error) {
	return fake.protected, nil
}

func (fake *fakeControlPanel) Certificates(executionContext context.Context, domainName string) ([]string, error) {
	return fake.certificates, fake.certificatesError
}

func (fake *fakeControlPanel) DNSRecords(executionContext context.Context, siteID panel.EntityID) ([]panel.DNSRecord, error) {
	return fake.dnsRecords, nil
}

type recordingStateObserver struct {
	started  []migration.State
	finished []migration.StateRecord
}

func (stateObserver *recordingStateObserver) StateStarted(state migration.State) {
	stateObserver.started = append(stateObserver.started, state)
}

func (stateObserver *recordingStateObserver) StateFinished(record migration.StateRecord) {
	stateObserver.finished = append(stateObserver.finished, record)
}

type staticSecretPrompter struct {
	value  string
	labels []string
}

func (prompter *staticSecretPrompter) PromptSecret(executionContext context.Context, label string) (string, error) {
	prompter.labels = append(prompter.labels, label)
	return prompter.value, nil
}

type staticInventory struct {
	record  panel.InventoryRecord
	lookups []string
}

func (inventory *staticInventory) Lookup(executionContext context.Context, hostname string) (panel.InventoryRecord, error) {
	inventory.lookups = append(inventory.lookups, hostname)
	return inventory.record, nil
}

type migrationFixture struct {
	documentRoot string
	settings     migration.Settings
	runner       *recordingProcessRunner
	checkpointer *recordingCheckpointer
	observer     *recordingStateObserver
	output       *bytes.Buffer
	dependencies migration.Dependencies
}

func newMigrationFixture(testInstance *testing.T) *migrationFixture {
	testInstance.Helper()
	documentRoot := testInstance.TempDir()
	require.NoError(testInstance, os.MkdirAll(filepath.Join(documentRoot, testSiteConstant, "httpdocs"), 0o755))

	settings := migration.DefaultSettings()
	settings.DocumentRoot = documentRoot

	fixture := &migrationFixture{
		documentRoot: documentRoot,
		settings:     settings,
		runner:       &recordingProcessRunner{},
		checkpointer: &recordingCheckpointer{},
		observer:     &recordingStateObserver{},
		output:       &bytes.Buffer{},
	}
	fixture.dependencies = migration.Dependencies{
		Logger:        zap.NewNop(),
		Runner:        fixture.runner,
		Checkpointer:  fixture.checkpointer,
		StateObserver: fixture.observer,
		Output:        fixture.output,
		Hostname:      func() (string, error) { return testSourceHostnameConstant, nil },
		Clock:         func() time.Time { return time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC) },
		RunIdentifier: func() string { return testRunIdentifierConstant },
	}
	return fixture
}

func (fixture *migrationFixture) siteRoot() string {
	return filepath.Join(fixture.documentRoot, testSiteConstant, "httpdocs")
}

func (fixture *migrationFixture) writeFile(testInstance *testing.T, relativePath string, contents string) string {
	testInstance.Helper()
	fullPath := filepath.Join(fixture.siteRoot(), relativePath)
	require.NoError(testInstance, os.MkdirAll(filepath.Dir(fullPath), 0o755))
	require.NoError(testInstance, os.WriteFile(fullPath, []byte(contents), 0o640))
	return fullPath
}

func (fixture *migrationFixture) run(testInstance *testing.T, executionContext context.Context, request migration.Request) (migration.Report, error) {
	testInstance.Helper()
	orchestrator, creationError := migration.NewOrchestrator(fixture.settings, fixture.dependencies)
	require.NoError(testInstance, creationError)
	return orchestrator.Run(executionContext, request)
}

func databaseRequest(credentials map[migration.CredentialField]migration.CredentialPolicy) migration.Request {
	return migration.Request{
		Site:              testSiteConstant,
		Destination:       testDestinationConstant,
		DatabaseMigration: true,
		Credentials:       credentials,
	}
}

func explicitSourceDatabase() map[migration.CredentialField]migration.CredentialPolicy {
	return map[migration.CredentialField]migration.CredentialPolicy{
		migration.FieldSourceDatabaseName:     migration.ExplicitValue("db1"),
		migration.FieldSourceDatabaseUser:     migration.ExplicitValue("user1"),
		migration.FieldSourceDatabasePassword: migration.ExplicitValue("pw1"),
		migration.FieldSourceDatabaseHost:     migration.ExplicitValue("host1"),
		migration.FieldDestinationSFTPUser:    migration.ExplicitValue(testSFTPUserConstant),
	}
}

func TestNewOrchestratorValidatesDependencies(testInstance *testing.T) {
	runner := &recordingProcessRunner{}
	checkpointer := &recordingCheckpointer{}

	_, loggerError := migration.NewOrchestrator(migration.DefaultSettings(), migration.Dependencies{Runner: runner, Checkpointer: checkpointer})
	require.ErrorIs(testInstance, loggerError, migration.ErrLoggerNotConfigured)

	_, runnerError := migration.NewOrchestrator(migration.DefaultSettings(), migration.Dependencies{Logger: zap.NewNop(), Checkpointer: checkpointer})
	require.ErrorIs(testInstance, runnerError, migration.ErrRunnerNotConfigured)

	_, checkpointerError := migration.NewOrchestrator(migration.DefaultSettings(), migration.Dependencies{Logger: zap.NewNop(), Runner: runner})
	require.ErrorIs(testInstance, checkpointerError, migration.ErrCheckpointerNotConfigured)

	orchestrator, creationError := migration.NewOrchestrator(migration.DefaultSettings(), migration.Dependencies{Logger: zap.NewNop(), Runner: runner, Checkpointer: checkpointer})
	require.NoError(testInstance, creationError)
	require.NotNil(testInstance, orchestrator)
}

func TestOrchestratorExplicitCredentialsRewriteSingleWordPressRoot(testInstance *testing.T) {
	fixture := newMigrationFixture(testInstance)
	fixture.settings.DestinationDatabaseHost = "localhost"
	fixture.settings.CompressionLevel = 6
	fixture.writeFile(testInstance, "wp-config.php", testWordPressFixtureConstant)
	fixture.writeFile(testInstance, "index.php", "<?php echo 'hello';\n")

	report, runError := fixture.run(testInstance, context.Background(), databaseRequest(explicitSourceDatabase()))

	require.NoError(testInstance, runError)
	require.Equal(testInstance, migration.ExitCodeSuccess, migration.ExitCode(runError))
	require.Equal(testInstance, migration.TerminalDone, report.Terminal)
	require.Equal(testInstance, testRunIdentifierConstant, report.RunID)
	require.True(testInstance, report.Database)
	require.Equal(testInstance, []string{testDatabaseTransferLabelConstant, testClearLabelConstant, testFileTransferLabelConstant}, fixture.runner.labels())

	databaseCommand := fixture.runner.commands[0]
	rendered := databaseCommand.Pipeline.Render()
	require.Contains(testInstance, rendered, "mysqldump -uuser1 -ppw1 -hhost1 db1")
	require.Contains(testInstance, rendered, "-6")
	require.Contains(testInstance, rendered, testSFTPUserConstant+"@"+testDestinationConstant)
	require.ElementsMatch(testInstance, []string{"pw1", "pw1"}, databaseCommand.Pipeline.Redactions)

	credentials, readError := cms.NewWordPressAdapter(nil).ReadCredentials(fixture.siteRoot())
	require.NoError(testInstance, readError)
	require.Equal(testInstance, cms.Credentials{Name: "db1", User: "user1", Password: "pw1", Host: "localhost"}, credentials)

	expectedStates := []migration.State{
		migration.StateValidate,
		migration.StateDiscoverDatabase,
		migration.StateProvisionDestinationPanel,
		migration.StateConfirmCertificates,
		migration.StateConfirmHostingSettings,
		migration.StateConfirmProtectedDirs,
		migration.StateProvisionDatabase,
		migration.StateTransferDatabase,
		migration.StateRewriteCmsConfig,
		migration.StateConfirmOriginalSiteHealth,
		migration.StateTransferFiles,
		migration.StateConfirmNewDns,
		migration.StateConfirmSiteHealthAtDestination,
		migration.StateSwitchDns,
		migration.StateTransferCronJobs,
		migration.StateRestoreSecureShell,
		migration.StateDone,
	}
	require.Equal(testInstance, expectedStates, fixture.observer.started)
	require.Len(testInstance, report.States, len(expectedStates))
	require.Equal(testInstance, migration.OutcomeSkipped, report.States[14].Outcome)

	require.Equal(testInstance, []string{
		"make the new customer and webspace in the panel - use bash as shell",
		"copy the SSL certificates",
		"verify the PHP and hosting settings",
		"recreate the protected directories",
		"create the database mysql://localhost/db1?user=user1&password=pw1",
		"test the original site",
		"update new DNS if the destination panel hosts it",
		"test the site in the new location",
		"update the real DNS",
		"switch the webspace shell back to " + panel.ChrootShell,
	}, fixture.checkpointer.actions())
}

func TestOrchestratorDiscoversCredentialsFromSingleInstallation(testInstance *testing.T) {
	fixture := newMigrationFixture(testInstance)
	fixture.writeFile(testInstance, "wp-config.php", testWordPressFixtureConstant)

	request := databaseRequest(map[migration.CredentialField]migration.CredentialPolicy{
		migration.FieldDestinationDatabaseName: migration.ExplicitValue("greensworth_db"),
	})
	report, runError := fixture.run(testInstance, context.Background(), request)

	require.NoError(testInstance, runError)
	require.Equal(testInstance, migration.TerminalDone, report.Terminal)
	rendered := fixture.runner.commands[0].Pipeline.Render()
	require.Contains(testInstance, rendered, "-ubrownsworth_user")
	require.Contains(testInstance, rendered, "brownsworth_db")
	require.Contains(testInstance, rendered, "greensworth_db")

	credentials, readError := cms.NewWordPressAdapter(nil).ReadCredentials(fixture.siteRoot())
	require.NoError(testInstance, readError)
	require.Equal(testInstance, cms.Credentials{Name: "greensworth_db", User: "brownsworth_user", Password: "fly(1)nG", Host: "localhost"}, credentials)
	require.Equal(testInstance, "wordpress at "+fixture.siteRoot(), report.States[1].Detail)
}

func TestOrchestratorDiscoversWordPressCredentialsBesidePluginAppDirectory(testInstance *testing.T) {
	fixture := newMigrationFixture(testInstance)
	fixture.writeFile(testInstance, "wp-config.php", testWordPressFixtureConstant)
	fixture.writeFile(testInstance, filepath.Join("wp-content", "plugins", "gallery", "app", "view.php"), "<?php\n")

	request := databaseRequest(map[migration.CredentialField]migration.CredentialPolicy{
		migration.FieldDestinationDatabaseName: migration.ExplicitValue("greensworth_db"),
	})
	report, runError := fixture.run(testInstance, context.Background(), request)

	require.NoError(testInstance, runError)
	require.Equal(testInstance, migration.TerminalDone, report.Terminal)
	require.Contains(testInstance, fixture.runner.commands[0].Pipeline.Render(), "brownsworth_db")
	require.Equal(testInstance, "wordpress at "+fixture.siteRoot(), report.States[1].Detail)
	require.NotContains(testInstance, fixture.checkpointer.actions(), "clear the magento cache")
	require.NotContains(testInstance, fixture.checkpointer.actions(), "transfer any cron jobs")
}

func TestOrchestratorStopsWhenSingleReferenceHasNoInstallation(testInstance *testing.T) {
	fixture := newMigrationFixture(testInstance)
	reference := fixture.writeFile(testInstance, filepath.Join("include", "connect.php"), "<?php\n")

	report, runError := fixture.run(testInstance, context.Background(), databaseRequest(nil))

	var ambiguity migration.AmbiguousDiscoveryError
	require.ErrorAs(testInstance, runError, &ambiguity)
	require.Equal(testInstance, []string{reference}, ambiguity.Candidates)
	require.Equal(testInstance, migration.ExitCodeAmbiguous, migration.ExitCode(runError))
	require.Equal(testInstance, migration.TerminalAborted, report.Terminal)
	require.Empty(testInstance, fixture.runner.commands)
	require.Contains(testInstance, fixture.output.String(), reference)
}

func TestOrchestratorStopsOnAmbiguousDiscovery(testInstance *testing.T) {
	fixture := newMigrationFixture(testInstance)
	firstReference := fixture.writeFile(testInstance, "wp-config.php", testWordPressFixtureConstant)
	secondReference := fixture.writeFile(testInstance, filepath.Join("blog", "wp-config.php"), testWordPressFixtureConstant)

	report, runError := fixture.run(testInstance, context.Background(), databaseRequest(nil))

	require.Error(testInstance, runError)
	var ambiguity migration.AmbiguousDiscoveryError
	require.ErrorAs(testInstance, runError, &ambiguity)
	require.Equal(testInstance, []string{secondReference, firstReference}, ambiguity.Candidates)
	require.Equal(testInstance, migration.ExitCodeAmbiguous, migration.ExitCode(runError))
	require.Equal(testInstance, migration.TerminalAborted, report.Terminal)
	require.Empty(testInstance, fixture.runner.commands)
	require.Empty(testInstance, fixture.checkpointer.checkpoints)
	require.Contains(testInstance, fixture.output.String(), firstReference)
	require.Contains(testInstance, fixture.output.String(), secondReference)

	var stateError migration.RunError
	require.ErrorAs(testInstance, runError, &stateError)
	require.Equal(testInstance, migration.StateDiscoverDatabase, stateError.State)
}

func TestOrchestratorAmbiguousDiscoveryContinuesWithExplicitCredentials(testInstance *testing.T) {
	fixture := newMigrationFixture(testInstance)
	fixture.writeFile(testInstance, "wp-config.php", testWordPressFixtureConstant)
	fixture.writeFile(testInstance, filepath.Join("blog", "wp-config.php"), testWordPressFixtureConstant)

	report, runError := fixture.run(testInstance, context.Background(), databaseRequest(explicitSourceDatabase()))

	require.NoError(testInstance, runError)
	require.Equal(testInstance, migration.TerminalDone, report.Terminal)
	require.Contains(testInstance, fixture.checkpointer.actions(), "update database refs")

	contents, readError := os.ReadFile(filepath.Join(fixture.siteRoot(), "wp-config.php"))
	require.NoError(testInstance, readError)
	require.Equal(testInstance, testWordPressFixtureConstant, string(contents))
}

func TestOrchestratorDisablesDatabaseWithoutReferences(testInstance *testing.T) {
	fixture := newMigrationFixture(testInstance)
	fixture.writeFile(testInstance, "index.html", "<html></html>\n")

	report, runError := fixture.run(testInstance, context.Background(), databaseRequest(nil))

	require.NoError(testInstance, runError)
	require.False(testInstance, report.Database)
	require.Equal(testInstance, []string{testClearLabelConstant, testFileTransferLabelConstant}, fixture.runner.labels())
	require.Equal(testInstance, migration.OutcomeSkipped, report.States[1].Outcome)
	for _, record := range report.States {
		switch record.State {
		case migration.StateProvisionDatabase, migration.StateTransferDatabase, migration.StateRewriteCmsConfig, migration.StateConfirmOriginalSiteHealth:
			require.Equal(testInstance, migration.OutcomeSkipped, record.Outcome)
		}
	}
}

func TestOrchestratorRefreshModeSynchronizes(testInstance *testing.T) {
	fixture := newMigrationFixture(testInstance)
	fixture.writeFile(testInstance, "index.html", "<html></html>\n")

	request := migration.Request{
		Site:         testSiteConstant,
		Destination:  testDestinationConstant,
		TransferMode: migration.TransferModeRefresh,
		Credentials: map[migration.CredentialField]migration.CredentialPolicy{
			migration.FieldDestinationSFTPUser:     migration.ExplicitValue(testSFTPUserConstant),
			migration.FieldDestinationSFTPPassword: migration.ExplicitValue(testSFTPPasswordConstant),
		},
	}
	report, runError := fixture.run(testInstance, context.Background(), request)

	require.NoError(testInstance, runError)
	require.Equal(testInstance, migration.TransferModeRefresh, report.TransferMode)
	require.Equal(testInstance, []string{testFileRefreshLabelConstant}, fixture.runner.labels())
	refresh := fixture.runner.commands[0]
	require.Len(testInstance, refresh.Prompts, 1)
	require.NotContains(testInstance, refresh.Pipeline.Render(), testSFTPPasswordConstant)
}

func TestOrchestratorFailuresSetTerminalAndExitCode(testInstance *testing.T) {
	testCases := []struct {
		name             string
		failingLabel     string
		failure          error
		declineAction    string
		cancelBeforeRun  bool
		expectedExitCode int
		expectedTerminal migration.Terminal
		expectedState    migration.State
		expectedLabels   []string
	}{
		{
			name:             testPipelineFailureCaseConstant,
			failingLabel:     testDatabaseTransferLabelConstant,
			failure:          execshell.PipelineFailedError{Command: execshell.ShellCommand{Label: testDatabaseTransferLabelConstant}, Result: execshell.PipelineResult{ExitCode: 1}},
			expectedExitCode: migration.ExitCodeFailure,
			expectedTerminal: migration.TerminalAborted,
			expectedState:    migration.StateTransferDatabase,
			expectedLabels:   []string{testDatabaseTransferLabelConstant},
		},
		{
			name:             testInterruptionCaseConstant,
			failingLabel:     testFileTransferLabelConstant,
			failure:          execshell.InterruptedError{Command: execshell.ShellCommand{Label: testFileTransferLabelConstant}, Cause: context.Canceled},
			expectedExitCode: migration.ExitCodeInterrupted,
			expectedTerminal: migration.TerminalInterrupted,
			expectedState:    migration.StateTransferFiles,
			expectedLabels:   []string{testDatabaseTransferLabelConstant, testClearLabelConstant, testFileTransferLabelConstant},
		},
		{
			name:             testDeclinedCaseConstant,
			declineAction:    "test the original site",
			expectedExitCode: migration.ExitCodeFailure,
			expectedTerminal: migration.TerminalAborted,
			expectedState:    migration.StateConfirmOriginalSiteHealth,
			expectedLabels:   []string{testDatabaseTransferLabelConstant},
		},
		{
			name:             testCanceledContextCaseConstant,
			cancelBeforeRun:  true,
			expectedExitCode: migration.ExitCodeInterrupted,
			expectedTerminal: migration.TerminalInterrupted,
			expectedState:    migration.StateValidate,
			expectedLabels:   []string{},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			fixture := newMigrationFixture(testInstance)
			fixture.writeFile(testInstance, "wp-config.php", testWordPressFixtureConstant)
			fixture.runner.failingLabel = testCase.failingLabel
			fixture.runner.failure = testCase.failure
			fixture.checkpointer.declineAction = testCase.declineAction

			executionContext, cancel := context.WithCancel(context.Background())
			defer cancel()
			if testCase.cancelBeforeRun {
				cancel()
			}

			report, runError := fixture.run(testInstance, executionContext, databaseRequest(explicitSourceDatabase()))

			require.Error(testInstance, runError)
			require.Equal(testInstance, testCase.expectedExitCode, migration.ExitCode(runError))
			require.Equal(testInstance, testCase.expectedExitCode, report.ExitCode)
			require.Equal(testInstance, testCase.expectedTerminal, report.Terminal)
			require.Equal(testInstance, testCase.expectedLabels, fixture.runner.labels())

			var stateError migration.RunError
			require.ErrorAs(testInstance, runError, &stateError)
			require.Equal(testInstance, testCase.expectedState, stateError.State)
			if testCase.failure != nil {
				require.Equal(testInstance, testCase.failure.Error(), stateError.Cause.Error())
			}
			if len(testCase.declineAction) > 0 {
				require.ErrorIs(testInstance, runError, migration.ErrCheckpointDeclined)
			}
		})
	}
}

func TestOrchestratorValidationFailures(testInstance *testing.T) {
	panelCredentials := func() map[migration.CredentialField]migration.CredentialPolicy {
		return map[migration.CredentialField]migration.CredentialPolicy{
			migration.FieldDestinationSFTPUser:      migration.ExplicitValue(testSFTPUserConstant),
			migration.FieldDestinationSFTPPassword:  migration.ExplicitValue(testSFTPPasswordConstant),
			migration.FieldSourcePanelPassword:      migration.ExplicitValue(testSourcePanelPasswordConstant),
			migration.FieldDestinationPanelPassword: migration.ExplicitValue(testDestPanelPasswordConstant),
			migration.FieldDestinationPanelAddress:  migration.ExplicitValue(testDestPanelAddressConstant),
		}
	}

	testCases := []struct {
		name          string
		request       migration.Request
		customerEmail string
		expectedField string
	}{
		{
			name:          testMissingSiteCaseConstant,
			request:       migration.Request{Destination: testDestinationConstant},
			expectedField: "site",
		},
		{
			name:          testNestedSiteCaseConstant,
			request:       migration.Request{Site: "../" + testSiteConstant, Destination: testDestinationConstant},
			expectedField: "site",
		},
		{
			name:          testMissingDestinationCase,
			request:       migration.Request{Site: testSiteConstant},
			expectedField: "destination",
		},
		{
			name:          testMissingDocumentRootCase,
			request:       migration.Request{Site: "unknown.example.com", Destination: testDestinationConstant},
			expectedField: "site",
		},
		{
			name:          testInvalidModeCaseConstant,
			request:       migration.Request{Site: testSiteConstant, Destination: testDestinationConstant, TransferMode: migration.TransferMode("mirror")},
			expectedField: "mode",
		},
		{
			name:          testPanelWithoutCustomerCase,
			request:       migration.Request{Site: testSiteConstant, Destination: testDestinationConstant, PanelManagement: true, Credentials: panelCredentials()},
			expectedField: "customer",
		},
		{
			name: testPanelWithBothCustomersCase,
			request: migration.Request{
				Site:     testSiteConstant, Destination: testDestinationConstant, PanelManagement: true, Credentials: panelCredentials(),
				Customer: migration.CustomerReference{ExistingLogin: "greensworth", NewName: "Green's Worth"},
			},
			customerEmail: testCustomerEmailConstant,
			expectedField: "customer",
		},
		{
			name: testPanelWithoutPasswordCase,
			request: migration.Request{
				Site: testSiteConstant, Destination: testDestinationConstant, PanelManagement: true,
				Credentials: map[migration.CredentialField]migration.CredentialPolicy{
					migration.FieldDestinationSFTPUser:     migration.ExplicitValue(testSFTPUserConstant),
					migration.FieldDestinationSFTPPassword: migration.ExplicitValue(testSFTPPasswordConstant),
					migration.FieldSourcePanelPassword:     migration.ExplicitValue(testSourcePanelPasswordConstant),
				},
				Customer: migration.CustomerReference{ExistingLogin: "greensworth"},
			},
			expectedField: string(migration.FieldDestinationPanelPassword),
		},
		{
			name: testPanelWithoutEmailCase,
			request: migration.Request{
				Site:     testSiteConstant, Destination: testDestinationConstant, PanelManagement: true, Credentials: panelCredentials(),
				Customer: migration.CustomerReference{NewName: "Green's Worth"},
			},
			expectedField: "customer_email",
		},
		{
			name: testPromptWithoutPrompterCase,
			request: migration.Request{
				Site: testSiteConstant, Destination: testDestinationConstant,
				Credentials: map[migration.CredentialField]migration.CredentialPolicy{
					migration.FieldDestinationSFTPPassword: migration.PromptForValue(),
				},
			},
			expectedField: string(migration.FieldDestinationSFTPPassword),
		},
		{
			name: testDerivationCycleCaseConstant,
			request: migration.Request{
				Site: testSiteConstant, Destination: testDestinationConstant,
				Credentials: map[migration.CredentialField]migration.CredentialPolicy{
					migration.FieldDestinationSFTPSite: migration.DeriveFrom(migration.FieldDestinationSFTPSite),
				},
			},
			expectedField: string(migration.FieldDestinationSFTPSite),
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			fixture := newMigrationFixture(testInstance)
			fixture.settings.CustomerEmail = testCase.customerEmail
			factoryCalls := 0
			fixture.dependencies.PanelFactory = func(access migration.PanelAccess) (migration.ControlPanel, error) {
				factoryCalls++
				return &fakeControlPanel{}, nil
			}

			report, runError := fixture.run(testInstance, context.Background(), testCase.request)

			var validationError migration.ValidationError
			require.ErrorAs(testInstance, runError, &validationError)
			require.Equal(testInstance, testCase.expectedField, validationError.Field)
			require.Equal(testInstance, migration.ExitCodeFailure, migration.ExitCode(runError))
			require.Equal(testInstance, migration.TerminalAborted, report.Terminal)
			require.Len(testInstance, report.States, 1)
			require.Equal(testInstance, migration.OutcomeFailed, report.States[0].Outcome)
			require.Empty(testInstance, fixture.runner.commands)
			require.Empty(testInstance, fixture.checkpointer.checkpoints)
			require.Zero(testInstance, factoryCalls)
		})
	}
}

func TestOrchestratorProvisionsDestinationPanel(testInstance *testing.T) {
	fixture := newMigrationFixture(testInstance)
	fixture.settings.CustomerEmail = testCustomerEmailConstant
	fixture.writeFile(testInstance, "index.html", "<html></html>\n")

	sourcePanel := &fakeControlPanel{
		certificates:    []string{"greensworth.com (expires 2025-01-01)"},
		hostingSettings: map[string]string{"php_handler_id": "fpm", "php": "true"},
		protected:       []string{"/admin"},
		dnsRecords:      []panel.DNSRecord{{Type: "A", Host: "greensworth.com.", Value: "203.0.113.5"}},
	}
	destinationPanel := &fakeControlPanel{
		customer: panel.Customer{ID: "42", Name: "Green's Worth, LLC!", Login: "greensworthllc_cp", Password: "generated-password"},
		webspace: panel.Webspace{ID: "77", Name: testSiteConstant},
	}
	var accesses []migration.PanelAccess
	fixture.dependencies.PanelFactory = func(access migration.PanelAccess) (migration.ControlPanel, error) {
		accesses = append(accesses, access)
		if access.Host == testDestinationConstant {
			return destinationPanel, nil
		}
		return sourcePanel, nil
	}

	request := migration.Request{
		Site:            testSiteConstant,
		Destination:     testDestinationConstant,
		PanelManagement: true,
		Credentials: map[migration.CredentialField]migration.CredentialPolicy{
			migration.FieldDestinationSFTPUser:      migration.ExplicitValue(testSFTPUserConstant),
			migration.FieldDestinationSFTPPassword:  migration.ExplicitValue(testSFTPPasswordConstant),
			migration.FieldSourcePanelPassword:      migration.ExplicitValue(testSourcePanelPasswordConstant),
			migration.FieldDestinationPanelPassword: migration.ExplicitValue(testDestPanelPasswordConstant),
			migration.FieldDestinationPanelAddress:  migration.ExplicitValue(testDestPanelAddressConstant),
		},
		Customer: migration.CustomerReference{NewName: "Green's Worth, LLC!"},
	}
	report, runError := fixture.run(testInstance, context.Background(), request)

	require.NoError(testInstance, runError)
	require.Equal(testInstance, "42", report.CustomerID)
	require.Equal(testInstance, "greensworthllc_cp", report.CustomerLogin)
	require.Equal(testInstance, "77", report.WebspaceID)

	require.Len(testInstance, accesses, 2)
	require.Equal(testInstance, migration.PanelAccess{Host: testSourceHostnameConstant, Port: 8443, Login: "admin", Password: testSourcePanelPasswordConstant}, accesses[0])
	require.Equal(testInstance, testDestinationConstant, accesses[1].Host)
	require.Equal(testInstance, testDestPanelAddressConstant, accesses[1].InternalIP)

	require.Equal(testInstance, []panel.CustomerRequest{{Name: "Green's Worth, LLC!", Email: testCustomerEmailConstant}}, destinationPanel.customerRequests)
	require.Equal(testInstance, []panel.WebspaceRequest{{
		Name:        testSiteConstant,
		OwnerID:     "42",
		IPAddress:   testDestPanelAddressConstant,
		FTPLogin:    testSFTPUserConstant,
		FTPPassword: testSFTPPasswordConstant,
		Shell:       panel.DefaultShell,
		PlanName:    panel.DefaultPlanName,
	}}, destinationPanel.webspaceRequests)
	require.Equal(testInstance, [][]panel.Field{{{Name: panel.ShellProperty, Value: panel.ChrootShell}}}, destinationPanel.hostingUpdates)
	require.Contains(testInstance, fixture.output.String(), "greensworthllc_cp")
	require.Contains(testInstance, fixture.output.String(), "generated-password")

	checkpointDetails := map[migration.State][]string{}
	for _, checkpoint := range fixture.checkpointer.checkpoints {
		checkpointDetails[checkpoint.State] = checkpoint.Details
	}
	require.Equal(testInstance, []string{"greensworth.com (expires 2025-01-01)"}, checkpointDetails[migration.StateConfirmCertificates])
	require.Equal(testInstance, []string{"php = true", "php_handler_id = fpm"}, checkpointDetails[migration.StateConfirmHostingSettings])
	require.Equal(testInstance, []string{"/admin"}, checkpointDetails[migration.StateConfirmProtectedDirs])
	require.Equal(testInstance, []string{"greensworth.com. A 203.0.113.5"}, checkpointDetails[migration.StateConfirmNewDns])
	require.NotContains(testInstance, fixture.checkpointer.actions(), "make the new customer and webspace in the panel - use bash as shell")
}

func TestOrchestratorSourcePanelFailuresOnlyDropDetails(testInstance *testing.T) {
	fixture := newMigrationFixture(testInstance)
	observerCore, observerLogs := observer.New(zap.WarnLevel)
	fixture.dependencies.Logger = zap.New(observerCore)

	sourcePanel := &fakeControlPanel{certificatesError: errors.New("certificate listing unavailable")}
	destinationPanel := &fakeControlPanel{customer: panel.Customer{ID: "5", Login: "greensworth"}, webspace: panel.Webspace{ID: "9"}}
	fixture.dependencies.PanelFactory = func(access migration.PanelAccess) (migration.ControlPanel, error) {
		if access.Host == testDestinationConstant {
			return destinationPanel, nil
		}
		return sourcePanel, nil
	}

	request := migration.Request{
		Site:            testSiteConstant,
		Destination:     testDestinationConstant,
		PanelManagement: true,
		Credentials: map[migration.CredentialField]migration.CredentialPolicy{
			migration.FieldDestinationSFTPUser:      migration.ExplicitValue(testSFTPUserConstant),
			migration.FieldDestinationSFTPPassword:  migration.ExplicitValue(testSFTPPasswordConstant),
			migration.FieldSourcePanelPassword:      migration.ExplicitValue(testSourcePanelPasswordConstant),
			migration.FieldDestinationPanelPassword: migration.ExplicitValue(testDestPanelPasswordConstant),
			migration.FieldDestinationPanelAddress:  migration.ExplicitValue(testDestPanelAddressConstant),
		},
		Customer: migration.CustomerReference{ExistingLogin: "greensworth"},
	}
	_, runError := fixture.run(testInstance, context.Background(), request)

	require.NoError(testInstance, runError)
	require.Equal(testInstance, []string{"greensworth"}, destinationPanel.lookedUpLogins)
	require.Empty(testInstance, destinationPanel.customerRequests)
	require.Equal(testInstance, 1, observerLogs.FilterMessage("source panel details unavailable").Len())
}

func TestOrchestratorInventoryFillsDestinationPanelAccess(testInstance *testing.T) {
	fixture := newMigrationFixture(testInstance)
	inventory := &staticInventory{record: panel.InventoryRecord{Hostname: testDestinationConstant, Login: "inventory-admin", Password: "inventory-secret", InternalIP: "10.0.0.9"}}
	fixture.dependencies.Inventory = inventory
	fixture.settings.Panel.PortOverrides = []migration.PortOverride{{SourceHost: testSourceHostnameConstant, Port: 8333}}

	var destinationAccess migration.PanelAccess
	fixture.dependencies.PanelFactory = func(access migration.PanelAccess) (migration.ControlPanel, error) {
		if access.Host == testDestinationConstant {
			destinationAccess = access
		}
		return &fakeControlPanel{customer: panel.Customer{ID: "5"}, webspace: panel.Webspace{ID: "9"}}, nil
	}

	request := migration.Request{
		Site:            testSiteConstant,
		Destination:     testDestinationConstant,
		PanelManagement: true,
		Credentials: map[migration.CredentialField]migration.CredentialPolicy{
			migration.FieldDestinationSFTPUser:     migration.ExplicitValue(testSFTPUserConstant),
			migration.FieldDestinationSFTPPassword: migration.ExplicitValue(testSFTPPasswordConstant),
			migration.FieldSourcePanelPassword:     migration.ExplicitValue(testSourcePanelPasswordConstant),
		},
		Customer: migration.CustomerReference{ExistingLogin: "greensworth"},
	}
	_, runError := fixture.run(testInstance, context.Background(), request)

	require.NoError(testInstance, runError)
	require.Equal(testInstance, []string{testDestinationConstant}, inventory.lookups)
	require.Equal(testInstance, migration.PanelAccess{
		Host:       testDestinationConstant,
		Port:       8333,
		Login:      "inventory-admin",
		Password:   "inventory-secret",
		InternalIP: "10.0.0.9",
	}, destinationAccess)
}

func TestOrchestratorPromptsForRequestedSecrets(testInstance *testing.T) {
	fixture := newMigrationFixture(testInstance)
	fixture.writeFile(testInstance, "wp-config.php", testWordPressFixtureConstant)
	prompter := &staticSecretPrompter{value: "prompted-secret"}
	fixture.dependencies.SecretPrompter = prompter

	credentials := explicitSourceDatabase()
	credentials[migration.FieldSourceDatabasePassword] = migration.PromptForValue()
	_, runError := fixture.run(testInstance, context.Background(), databaseRequest(credentials))

	require.NoError(testInstance, runError)
	require.Equal(testInstance, []string{"source database password"}, prompter.labels)
	databaseCommand := fixture.runner.commands[0]
	require.Contains(testInstance, databaseCommand.Pipeline.Redactions, "prompted-secret")
	require.Contains(testInstance, databaseCommand.Pipeline.Render(), "-pprompted-secret")
}

func TestOrchestratorShowsVirtualHostConfigurationOnRequest(testInstance *testing.T) {
	fixture := newMigrationFixture(testInstance)
	fixture.checkpointer.confirmAnswer = true
	configurationDirectory := filepath.Join(fixture.documentRoot, testSiteConstant, "conf")
	require.NoError(testInstance, os.MkdirAll(configurationDirectory, 0o755))
	require.NoError(testInstance, os.WriteFile(filepath.Join(configurationDirectory, "vhost.conf"), []byte("php_value memory_limit 256M\n"), 0o644))

	_, runError := fixture.run(testInstance, context.Background(), migration.Request{Site: testSiteConstant, Destination: testDestinationConstant})

	require.NoError(testInstance, runError)
	require.Equal(testInstance, []string{"I see custom vhost settings.  Would you like to see them?"}, fixture.checkpointer.questions)
	require.Contains(testInstance, fixture.output.String(), "php_value memory_limit 256M")
}

func TestOrchestratorMagentoRequiresCacheAndCronCheckpoints(testInstance *testing.T) {
	fixture := newMigrationFixture(testInstance)
	fixture.writeFile(testInstance, filepath.Join("app", "etc", "local.xml"), "<config><global><resources><default_setup><connection>"+
		"<host><![CDATA[localhost]]></host><username><![CDATA[mage_user]]></username><password><![CDATA[mage_pw]]></password><dbname><![CDATA[mage_db]]></dbname>"+
		"</connection></default_setup></resources></global></config>\n")

	_, runError := fixture.run(testInstance, context.Background(), databaseRequest(nil))

	require.NoError(testInstance, runError)
	actions := fixture.checkpointer.actions()
	require.Contains(testInstance, actions, "clear the magento cache")
	require.Contains(testInstance, actions, "transfer any cron jobs")
	require.Contains(testInstance, fixture.runner.commands[0].Pipeline.Render(), "mage_db")
}

func TestOrchestratorWritesReport(testInstance *testing.T) {
	fixture := newMigrationFixture(testInstance)
	fixture.settings.ReportPath = filepath.Join(testInstance.TempDir(), "report.yaml")

	_, runError := fixture.run(testInstance, context.Background(), migration.Request{Site: testSiteConstant, Destination: testDestinationConstant})
	require.NoError(testInstance, runError)

	contents, readError := os.ReadFile(fixture.settings.ReportPath)
	require.NoError(testInstance, readError)
	require.Contains(testInstance, string(contents), "run_id: "+testRunIdentifierConstant)
	require.Contains(testInstance, string(contents), "terminal: Done")
	require.Contains(testInstance, string(contents), "state: RestoreSecureShell")
}

func TestOrchestratorVerboseLoggingRedactsPipelines(testInstance *testing.T) {
	fixture := newMigrationFixture(testInstance)
	fixture.writeFile(testInstance, "wp-config.php", testWordPressFixtureConstant)
	observerCore, observerLogs := observer.New(zap.InfoLevel)
	fixture.dependencies.Logger = zap.New(observerCore)

	request := databaseRequest(explicitSourceDatabase())
	request.Verbose = true
	_, runError := fixture.run(testInstance, context.Background(), request)
	require.NoError(testInstance, runError)

	pipelineEntries := observerLogs.FilterMessage("running pipeline").All()
	require.Len(testInstance, pipelineEntries, 3)
	for _, entry := range pipelineEntries {
		loggedPipeline, available := entry.ContextMap()["pipeline"].(string)
		require.True(testInstance, available)
		require.NotContains(testInstance, loggedPipeline, "-ppw1")
	}
}

type recordingPreflight struct {
	databaseChecks    []migration.DatabaseCredentials
	destinationChecks []string
	databaseFailure   error
}

func (preflight *recordingPreflight) CheckSourceDatabase(executionContext context.Context, credentials migration.DatabaseCredentials) (int64, error) {
	preflight.databaseChecks = append(preflight.databaseChecks, credentials)
	if preflight.databaseFailure != nil {
		return 0, preflight.databaseFailure
	}
	return 5 << 20, nil
}

func (preflight *recordingPreflight) CheckDestination(executionContext context.Context, host string, access migration.SFTPAccess, directory string) error {
	preflight.destinationChecks = append(preflight.destinationChecks, host+":"+directory)
	return nil
}

func TestOrchestratorRunsPreflightBeforeTransfers(testInstance *testing.T) {
	fixture := newMigrationFixture(testInstance)
	fixture.writeFile(testInstance, "wp-config.php", testWordPressFixtureConstant)
	preflight := &recordingPreflight{}
	fixture.dependencies.Preflight = preflight

	_, runError := fixture.run(testInstance, context.Background(), databaseRequest(explicitSourceDatabase()))

	require.NoError(testInstance, runError)
	require.Equal(testInstance, []migration.DatabaseCredentials{{Name: "db1", User: "user1", Password: "pw1", Host: "host1"}}, preflight.databaseChecks)
	require.Equal(testInstance, []string{testDestinationConstant + ":" + filepath.Join(fixture.documentRoot, testSiteConstant, "httpdocs")}, preflight.destinationChecks)
}

func TestOrchestratorPreflightFailureStopsBeforePipeline(testInstance *testing.T) {
	fixture := newMigrationFixture(testInstance)
	fixture.writeFile(testInstance, "wp-config.php", testWordPressFixtureConstant)
	fixture.dependencies.Preflight = &recordingPreflight{databaseFailure: errors.New("source database unreachable")}

	report, runError := fixture.run(testInstance, context.Background(), databaseRequest(explicitSourceDatabase()))

	require.Error(testInstance, runError)
	require.Equal(testInstance, migration.TerminalAborted, report.Terminal)
	require.Empty(testInstance, fixture.runner.labels())

	var stateError migration.RunError
	require.ErrorAs(testInstance, runError, &stateError)
	require.Equal(testInstance, migration.StateTransferDatabase, stateError.State)
}
