package migration

import (
	"fmt"

	"go.uber.org/zap"
)

const (
	stateStartedMessageTemplateConstant  = "%s..."
	stateFinishedMessageTemplateConstant = "%s %s"
	stateDetailSuffixTemplateConstant    = " (%s)"
)

// ConsoleStateLogger renders orchestrator state transitions on a human-readable logger.
type ConsoleStateLogger struct {
	logger *zap.Logger
}

// NewConsoleStateLogger constructs a ConsoleStateLogger. A nil logger discards every message.
func NewConsoleStateLogger(logger *zap.Logger) *ConsoleStateLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsoleStateLogger{logger: logger}
}

// StateStarted implements StateObserver.
func (stateLogger *ConsoleStateLogger) StateStarted(state State) {
	if stateLogger == nil || state == StateDone {
		return
	}
	stateLogger.logger.Debug(fmt.Sprintf(stateStartedMessageTemplateConstant, state))
}

// StateFinished implements StateObserver. Failures are logged as warnings.
func (stateLogger *ConsoleStateLogger) StateFinished(record StateRecord) {
	if stateLogger == nil {
		return
	}
	message := fmt.Sprintf(stateFinishedMessageTemplateConstant, record.State, record.Outcome)
	if len(record.Detail) > 0 {
		message += fmt.Sprintf(stateDetailSuffixTemplateConstant, record.Detail)
	}
	if record.Outcome == OutcomeFailed {
		stateLogger.logger.Warn(message)
		return
	}
	stateLogger.logger.Info(message)
}
