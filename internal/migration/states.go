package migration

// State names one step of a migration run.
type State string

// States in execution order.
const (
	StateValidate                       State = "Validate"
	StateDiscoverDatabase               State = "DiscoverDatabase"
	StateProvisionDestinationPanel      State = "ProvisionDestinationPanel"
	StateConfirmCertificates            State = "ConfirmCertificates"
	StateConfirmHostingSettings         State = "ConfirmHostingSettings"
	StateConfirmProtectedDirs           State = "ConfirmProtectedDirs"
	StateProvisionDatabase              State = "ProvisionDatabase"
	StateTransferDatabase               State = "TransferDatabase"
	StateRewriteCmsConfig               State = "RewriteCmsConfig"
	StateConfirmOriginalSiteHealth      State = "ConfirmOriginalSiteHealth"
	StateTransferFiles                  State = "TransferFiles"
	StateConfirmNewDns                  State = "ConfirmNewDns"
	StateConfirmSiteHealthAtDestination State = "ConfirmSiteHealthAtDestination"
	StateSwitchDns                      State = "SwitchDns"
	StateTransferCronJobs               State = "TransferCronJobs"
	StateRestoreSecureShell             State = "RestoreSecureShell"
	StateDone                           State = "Done"
)

// States returns every state in the order a run visits them.
func States() []State {
	return []State{
		StateValidate,
		StateDiscoverDatabase,
		StateProvisionDestinationPanel,
		StateConfirmCertificates,
		StateConfirmHostingSettings,
		StateConfirmProtectedDirs,
		StateProvisionDatabase,
		StateTransferDatabase,
		StateRewriteCmsConfig,
		StateConfirmOriginalSiteHealth,
		StateTransferFiles,
		StateConfirmNewDns,
		StateConfirmSiteHealthAtDestination,
		StateSwitchDns,
		StateTransferCronJobs,
		StateRestoreSecureShell,
		StateDone,
	}
}

// StateOutcome reports how a visited state ended.
type StateOutcome string

// Supported outcomes.
const (
	OutcomeCompleted    StateOutcome = "completed"
	OutcomeAcknowledged StateOutcome = "acknowledged"
	OutcomeSkipped      StateOutcome = "skipped"
	OutcomeFailed       StateOutcome = "failed"
)

// Terminal is the final disposition of a run.
type Terminal string

// Terminal dispositions.
const (
	TerminalDone        Terminal = "Done"
	TerminalAborted     Terminal = "Aborted"
	TerminalInterrupted Terminal = "Interrupted"
)

// StateRecord captures one visited state.
type StateRecord struct {
	State   State        `yaml:"state"`
	Outcome StateOutcome `yaml:"outcome"`
	Detail  string       `yaml:"detail,omitempty"`
}

// StateObserver receives state transitions as they happen.
type StateObserver interface {
	StateStarted(state State)
	StateFinished(record StateRecord)
}

type noopStateObserver struct{}

func (noopStateObserver) StateStarted(State) {}

func (noopStateObserver) StateFinished(StateRecord) {}
