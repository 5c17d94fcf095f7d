package migration

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	reportFilePermissionsConstant = 0o600
	reportEncodeErrorTemplate     = "unable to encode run report: %w"
	reportWriteErrorTemplate      = "unable to write run report %s: %w"
)

// Report summarises one run. It never carries secrets.
type Report struct {
	RunID         string        `yaml:"run_id"`
	Site          string        `yaml:"site"`
	Destination   string        `yaml:"destination"`
	TransferMode  TransferMode  `yaml:"transfer_mode"`
	StartedAt     time.Time     `yaml:"started_at"`
	FinishedAt    time.Time     `yaml:"finished_at"`
	Terminal      Terminal      `yaml:"terminal"`
	ExitCode      int           `yaml:"exit_code"`
	Error         string        `yaml:"error,omitempty"`
	Database      bool          `yaml:"database_migration"`
	Panel         bool          `yaml:"panel_management"`
	CustomerID    string        `yaml:"customer_id,omitempty"`
	CustomerLogin string        `yaml:"customer_login,omitempty"`
	WebspaceID    string        `yaml:"webspace_id,omitempty"`
	States        []StateRecord `yaml:"states"`
}

// Encode renders the report as YAML.
func (report Report) Encode() ([]byte, error) {
	encoded, encodeError := yaml.Marshal(report)
	if encodeError != nil {
		return nil, fmt.Errorf(reportEncodeErrorTemplate, encodeError)
	}
	return encoded, nil
}

// WriteReport stores report at path, readable only by the owner.
func WriteReport(path string, report Report) error {
	encoded, encodeError := report.Encode()
	if encodeError != nil {
		return encodeError
	}
	if writeError := os.WriteFile(path, encoded, reportFilePermissionsConstant); writeError != nil {
		return fmt.Errorf(reportWriteErrorTemplate, path, writeError)
	}
	return nil
}
