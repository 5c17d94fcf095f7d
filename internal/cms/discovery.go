package cms

import (
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
)

// DatabaseReferencePattern matches paths of files that commonly hold database credentials.
var DatabaseReferencePattern = regexp.MustCompile(`wp-config.php|etc/local.xml|includes?/(config.xml|connect.php)`)

// Installation is an install root recognised by an adapter, with the credential file that adapter reads.
type Installation struct {
	Kind              Kind
	Root              string
	ConfigurationPath string
}

// Discovery lists what a document root walk found. Every list is sorted.
type Discovery struct {
	DocumentRoot        string
	CandidateReferences []string
	Installations       []Installation
}

// RootsOfKind returns the install roots recognised for kind.
func (discovery Discovery) RootsOfKind(kind Kind) []string {
	var roots []string
	for _, installation := range discovery.Installations {
		if installation.Kind == kind {
			roots = append(roots, installation.Root)
		}
	}
	return roots
}

// ReferencedInstallation returns the installation whose credential file is the walk's only candidate reference.
// Install roots whose credential file was not found, such as a plugin directory that happens to match a marker,
// do not prevent the pairing.
func (discovery Discovery) ReferencedInstallation() (Installation, bool) {
	if len(discovery.CandidateReferences) != 1 {
		return Installation{}, false
	}
	reference := filepath.Clean(discovery.CandidateReferences[0])
	var referenced Installation
	matches := 0
	for _, installation := range discovery.Installations {
		if filepath.Clean(installation.ConfigurationPath) == reference {
			referenced = installation
			matches++
		}
	}
	return referenced, matches == 1
}

// Discoverer walks document roots for credential files and install roots.
type Discoverer struct {
	fileSystem FileSystem
	registry   *Registry
}

// NewDiscoverer constructs a Discoverer using the registry's adapter markers.
func NewDiscoverer(fileSystem FileSystem, registry *Registry) *Discoverer {
	if fileSystem == nil {
		fileSystem = OSFileSystem{}
	}
	if registry == nil {
		registry = NewRegistry(fileSystem)
	}
	return &Discoverer{fileSystem: fileSystem, registry: registry}
}

// Discover walks documentRoot. Unreadable subdirectories are skipped; an unreadable document root is an error.
// Directories holding an adapter marker become candidate roots, and the registry's first matching adapter
// classifies each one.
func (discoverer *Discoverer) Discover(documentRoot string) (Discovery, error) {
	discovery := Discovery{DocumentRoot: documentRoot}
	adapters := discoverer.registry.Adapters()
	candidateRoots := make(map[string]struct{})

	walkError := discoverer.fileSystem.WalkDir(documentRoot, func(path string, directoryEntry fs.DirEntry, walkError error) error {
		if walkError != nil {
			if path == documentRoot {
				return walkError
			}
			return nil
		}
		if path == documentRoot {
			return nil
		}

		for _, adapter := range adapters {
			marker := adapter.Marker()
			if directoryEntry.Name() == marker.Name && directoryEntry.IsDir() == marker.Directory {
				candidateRoots[filepath.Dir(path)] = struct{}{}
			}
		}

		if !directoryEntry.IsDir() && DatabaseReferencePattern.MatchString(filepath.ToSlash(path)) {
			discovery.CandidateReferences = append(discovery.CandidateReferences, path)
		}
		return nil
	})
	if walkError != nil {
		return Discovery{}, walkError
	}

	roots := make([]string, 0, len(candidateRoots))
	for root := range candidateRoots {
		roots = append(roots, root)
	}
	sort.Strings(roots)
	for _, root := range roots {
		adapter, detectError := discoverer.registry.Detect(root)
		if detectError != nil {
			continue
		}
		discovery.Installations = append(discovery.Installations, Installation{
			Kind:              adapter.Kind(),
			Root:              root,
			ConfigurationPath: adapter.ConfigurationPath(root),
		})
	}

	sort.Strings(discovery.CandidateReferences)
	return discovery, nil
}

// RequiresCronMigration reports whether any discovered installation carries cron jobs.
func (discoverer *Discoverer) RequiresCronMigration(discovery Discovery) bool {
	for _, installation := range discovery.Installations {
		adapter, registered := discoverer.registry.AdapterFor(installation.Kind)
		if registered && adapter.RequiresCronMigration() {
			return true
		}
	}
	return false
}
