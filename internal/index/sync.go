package index

import (
	"log/slog"
	"time"

	"github.com/starford/recall/internal/checksum"
	"github.com/starford/recall/internal/parser"
	"github.com/starford/recall/internal/storage"
)

// SyncResult counts the index mutations made by a Sync.
type SyncResult struct {
	Indexed int `json:"indexed"`
	Removed int `json:"removed"`
	Failed  int `json:"failed"`
}

// Sync walks the vault and brings the index up to date:
//   - new/changed files are parsed and upserted
//   - files removed from disk are deleted from the index
//
// Files that cannot be read or parsed are logged and skipped.
func Sync(db Writer, store storage.Provider, logger *slog.Logger) (SyncResult, error) {
	var res SyncResult
	metas, err := store.List("")
	if err != nil {
		return res, err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return res, err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}

		if checksums[m.Path] == m.Checksum {
			continue
		}

		data, err := store.Read(m.Path)
		if err != nil {
			res.Failed++
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if err := IndexFile(db, m.Path, data, m.UpdatedAt); err != nil {
			res.Failed++
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		res.Indexed++
		logger.Debug("sync: indexed", slog.String("path", m.Path))
	}

	for p := range checksums {
		if _, ok := disk[p]; ok {
			continue
		}
		if err := db.DeleteNote(p); err != nil {
			logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		res.Removed++
		logger.Debug("sync: removed stale", slog.String("path", p))
	}

	return res, nil
}

// IndexFile parses data and upserts it into the DB. A zero modTime is
// recorded as now.
func IndexFile(db Writer, path string, data []byte, modTime time.Time) error {
	res, err := parser.Parse(data)
	if err != nil {
		return err
	}
	if modTime.IsZero() {
		modTime = time.Now()
	}

	row := NoteRow{
		Path:      path,
		Title:     res.Title,
		Checksum:  checksum.Sum(data),
		Tags:      res.Tags,
		Headings:  res.Headings,
		Schedule:  res.Schedule,
		UpdatedAt: modTime,
	}
	return db.UpsertNote(row, res.Links)
}
