package repository

import "github.com/spf13/afero"

// FileSystemRepository is the filesystem that holds run state and lock files.
type FileSystemRepository interface {
	afero.Fs
}

// NewOSFileSystem returns the host filesystem rooted at the process working directory.
func NewOSFileSystem() FileSystemRepository {
	return afero.NewOsFs()
}
