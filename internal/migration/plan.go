package migration

import (
	"fmt"
	"strings"
)

const (
	transferModeInvalidTemplateConstant = "unsupported transfer mode %q (expected %s or %s)"
	databaseURLTemplateConstant         = "mysql://%s/%s?user=%s&password=%s"
)

// TransferMode selects how the document root reaches the destination.
type TransferMode string

// Supported transfer modes.
const (
	// TransferModeFull clears the destination and copies an archive of the document root.
	TransferModeFull TransferMode = "full"
	// TransferModeRefresh synchronises an existing destination with rsync.
	TransferModeRefresh TransferMode = "refresh"
)

// ParseTransferMode normalises a configured or flag-supplied transfer mode.
func ParseTransferMode(rawValue string) (TransferMode, error) {
	normalized := TransferMode(strings.ToLower(strings.TrimSpace(rawValue)))
	switch normalized {
	case "":
		return TransferModeFull, nil
	case TransferModeFull, TransferModeRefresh:
		return normalized, nil
	default:
		return "", fmt.Errorf(transferModeInvalidTemplateConstant, rawValue, TransferModeFull, TransferModeRefresh)
	}
}

// DatabaseCredentials locate and authenticate one MySQL database.
type DatabaseCredentials struct {
	Name     string
	User     string
	Password string
	Host     string
}

// MissingFields lists the empty fields by name.
func (credentials DatabaseCredentials) MissingFields() []string {
	var missing []string
	if len(credentials.Name) == 0 {
		missing = append(missing, "name")
	}
	if len(credentials.User) == 0 {
		missing = append(missing, "user")
	}
	if len(credentials.Password) == 0 {
		missing = append(missing, "password")
	}
	if len(credentials.Host) == 0 {
		missing = append(missing, "host")
	}
	return missing
}

// Complete reports whether every field is set.
func (credentials DatabaseCredentials) Complete() bool {
	return len(credentials.MissingFields()) == 0
}

// URL renders the credentials the way operators paste them into a panel's database form.
func (credentials DatabaseCredentials) URL() string {
	return fmt.Sprintf(databaseURLTemplateConstant, credentials.Host, credentials.Name, credentials.User, credentials.Password)
}

// PanelAccess locates and authenticates one panel management API.
type PanelAccess struct {
	Host       string
	Port       int
	Login      string
	Password   string
	SecretKey  string
	InternalIP string
}

// Authenticated reports whether either a secret key or a login and password are present.
func (access PanelAccess) Authenticated() bool {
	return len(access.SecretKey) > 0 || (len(access.Login) > 0 && len(access.Password) > 0)
}

// SFTPAccess is the hosting account used to reach the destination over ssh.
type SFTPAccess struct {
	User     string
	Password string
	Site     string
}

// CustomerReference names the destination customer: an existing login or the display name of a new customer.
type CustomerReference struct {
	ExistingLogin string
	NewName       string
}

// Present reports whether either reference is set.
func (reference CustomerReference) Present() bool {
	return len(reference.ExistingLogin) > 0 || len(reference.NewName) > 0
}

// Request is the operator input for one run.
type Request struct {
	Site              string
	Destination       string
	DatabaseMigration bool
	PanelManagement   bool
	TransferMode      TransferMode
	Verbose           bool
	// Credentials overrides the default policy of individual fields.
	Credentials map[CredentialField]CredentialPolicy
	Customer    CustomerReference
}

// Plan is the resolved configuration of a run. It is complete before the first remote change.
type Plan struct {
	Site                     string
	Destination              string
	SourceDocumentRoot       string
	DestinationDocumentRoot  string
	VirtualHostConfiguration string
	DatabaseMigration        bool
	PanelManagement          bool
	SourceDatabase           DatabaseCredentials
	DestinationDatabase      DatabaseCredentials
	SourcePanel              PanelAccess
	DestinationPanel         PanelAccess
	Customer                 CustomerReference
	SFTP                     SFTPAccess
	TransferMode             TransferMode
	Verbose                  bool
}
