package index

import "github.com/starford/recall/internal/models"

// Writer is the part of the index that Sync, IndexFile and the watcher
// mutate through.
type Writer interface {
	UpsertNote(n NoteRow, links []models.Link) error
	DeleteNote(path string) error
	GetChecksum(path string) (string, error)
	AllChecksums() (map[string]string, error)
}

var _ Writer = (*DB)(nil)
