// Package storage defines the vault file-system abstraction.
package storage

import (
	"errors"

	"github.com/starford/recall/internal/models"
)

// ErrConflict is returned by Update when the file changed between the read
// and the write.
var ErrConflict = errors.New("storage: file changed during update")

// Provider is the interface for vault file operations. Paths are relative
// to the vault root and use forward slashes.
type Provider interface {
	// List returns metadata for every .md file under dir, skipping hidden
	// directories such as .obsidian and .trash.
	List(dir string) ([]models.NoteMetadata, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Update reads path, passes the content to fn and atomically writes the
	// result back. It fails with ErrConflict if the file was modified while
	// fn ran.
	Update(path string, fn func([]byte) ([]byte, error)) error
}
