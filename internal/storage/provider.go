// Package storage defines confined file access to the vault.
package storage

import "io/fs"

// Provider is the interface for vault file operations. Paths may be
// relative to the vault root or absolute paths inside it.
type Provider interface {
	// Root returns the absolute vault root.
	Root() string
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Stat returns file info for path.
	Stat(path string) (fs.FileInfo, error)
	// MkdirAll creates the directory at path and any missing parents.
	MkdirAll(path string) error
	// Move renames oldPath to newPath, replacing any file at newPath.
	Move(oldPath, newPath string) error
}
