package cms

import (
	"errors"
	"path/filepath"
)

// Kind identifies a supported CMS.
type Kind string

const (
	// KindWordPress identifies WordPress installations.
	KindWordPress Kind = "wordpress"
	// KindMagento identifies Magento 1 installations.
	KindMagento Kind = "magento"
)

// Credentials holds the database settings declared in a CMS configuration file.
type Credentials struct {
	Name     string
	User     string
	Password string
	Host     string
}

// CredentialUpdate lists replacement database settings. Empty fields keep their current value.
type CredentialUpdate struct {
	Name     string
	User     string
	Password string
	Host     string
}

// Marker is the directory entry whose presence identifies an install root.
type Marker struct {
	Name      string
	Directory bool
}

// Adapter reads and rewrites the credentials of one CMS.
type Adapter interface {
	Kind() Kind
	Marker() Marker
	// ConfigurationPath returns the credential file for the install root.
	ConfigurationPath(installRoot string) string
	Detect(installRoot string) bool
	ReadCredentials(installRoot string) (Credentials, error)
	RewriteCredentials(installRoot string, update CredentialUpdate) error
	// RequiresCronMigration reports whether sites on this CMS carry cron jobs that must move with them.
	RequiresCronMigration() bool
}

// ErrNoAdapterDetected indicates that no registered adapter recognised an install root.
var ErrNoAdapterDetected = errors.New(noAdapterDetectedMessageConstant)

// Registry holds adapters in detection order.
type Registry struct {
	adapters []Adapter
}

// NewRegistry builds the default registry: WordPress, then Magento.
func NewRegistry(fileSystem FileSystem) *Registry {
	if fileSystem == nil {
		fileSystem = OSFileSystem{}
	}
	return NewRegistryWithAdapters(NewWordPressAdapter(fileSystem), NewMagentoAdapter(fileSystem))
}

// NewRegistryWithAdapters builds a registry from explicit adapters, preserving their order.
func NewRegistryWithAdapters(adapters ...Adapter) *Registry {
	registeredAdapters := make([]Adapter, 0, len(adapters))
	for _, adapter := range adapters {
		if adapter != nil {
			registeredAdapters = append(registeredAdapters, adapter)
		}
	}
	return &Registry{adapters: registeredAdapters}
}

// Adapters returns the registered adapters in detection order.
func (registry *Registry) Adapters() []Adapter {
	return append([]Adapter{}, registry.adapters...)
}

// Detect returns the first adapter that recognises the install root.
func (registry *Registry) Detect(installRoot string) (Adapter, error) {
	for _, adapter := range registry.adapters {
		if adapter.Detect(installRoot) {
			return adapter, nil
		}
	}
	return nil, ErrNoAdapterDetected
}

// AdapterFor returns the adapter registered for kind.
func (registry *Registry) AdapterFor(kind Kind) (Adapter, bool) {
	for _, adapter := range registry.adapters {
		if adapter.Kind() == kind {
			return adapter, true
		}
	}
	return nil, false
}

func markerPresent(fileSystem FileSystem, installRoot string, marker Marker) bool {
	fileInfo, statError := fileSystem.Stat(filepath.Join(installRoot, marker.Name))
	if statError != nil {
		return false
	}
	return fileInfo.IsDir() == marker.Directory
}
