package cms

import (
	"io/fs"
	"os"
	"path/filepath"
)

const (
	temporaryFilePatternSuffixConstant = ".sitemigrate-*"
	defaultConfigurationModeConstant   = fs.FileMode(0o644)
)

// FileSystem is the subset of file operations the adapters and discoverer need.
type FileSystem interface {
	Stat(path string) (fs.FileInfo, error)
	ReadFile(path string) ([]byte, error)
	// ReplaceFile swaps the file contents so readers observe either the old or the new bytes.
	ReplaceFile(path string, data []byte) error
	WalkDir(root string, walkFunction fs.WalkDirFunc) error
}

// OSFileSystem implements FileSystem using the operating system primitives.
type OSFileSystem struct{}

// Stat retrieves file metadata.
func (OSFileSystem) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

// ReadFile reads file contents.
func (OSFileSystem) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// WalkDir walks the tree rooted at root.
func (OSFileSystem) WalkDir(root string, walkFunction fs.WalkDirFunc) error {
	return filepath.WalkDir(root, walkFunction)
}

// ReplaceFile writes data to a temporary file beside path and renames it over path,
// keeping the permissions of the file being replaced.
func (OSFileSystem) ReplaceFile(path string, data []byte) error {
	permissions := defaultConfigurationModeConstant
	if existingInfo, statError := os.Stat(path); statError == nil {
		permissions = existingInfo.Mode().Perm()
	}

	temporaryFile, createError := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+temporaryFilePatternSuffixConstant)
	if createError != nil {
		return createError
	}
	temporaryPath := temporaryFile.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(temporaryPath)
		}
	}()

	if _, writeError := temporaryFile.Write(data); writeError != nil {
		_ = temporaryFile.Close()
		return writeError
	}
	if syncError := temporaryFile.Sync(); syncError != nil {
		_ = temporaryFile.Close()
		return syncError
	}
	if closeError := temporaryFile.Close(); closeError != nil {
		return closeError
	}
	if chmodError := os.Chmod(temporaryPath, permissions); chmodError != nil {
		return chmodError
	}
	if renameError := os.Rename(temporaryPath, path); renameError != nil {
		return renameError
	}
	committed = true
	return nil
}
