package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/recall/internal/apperr"
	"github.com/starford/recall/internal/models"
)

// NoteRow represents a row in the notes table.
type NoteRow struct {
	Path      string
	Title     string
	Checksum  string
	Tags      []string
	Headings  []models.Heading
	Schedule  models.ScheduleFields
	UpdatedAt time.Time
}

// UpsertNote inserts or replaces a note and its outgoing links within a
// transaction. Link targets are stored as written in the note.
func (db *DB) UpsertNote(n NoteRow, links []models.Link) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	tagsJSON, _ := json.Marshal(nonNil(n.Tags))
	headingsJSON, _ := json.Marshal(nonNil(n.Headings))
	due, interval, ease := scheduleColumns(n.Schedule)

	_, err = tx.Exec(`
		INSERT INTO notes (path, title, checksum, tags, headings, sr_due, sr_interval, sr_ease, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			title       = excluded.title,
			checksum    = excluded.checksum,
			tags        = excluded.tags,
			headings    = excluded.headings,
			sr_due      = excluded.sr_due,
			sr_interval = excluded.sr_interval,
			sr_ease     = excluded.sr_ease,
			updated_at  = excluded.updated_at
	`, n.Path, n.Title, n.Checksum, string(tagsJSON), string(headingsJSON), due, interval, ease, n.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert note: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM links WHERE source = ?`, n.Path); err != nil {
		return fmt.Errorf("index: clear links: %w", err)
	}
	if len(links) > 0 {
		stmt, err := tx.Prepare(`
			INSERT INTO links (source, target, count) VALUES (?, ?, ?)
			ON CONFLICT(source, target) DO UPDATE SET count = count + excluded.count
		`)
		if err != nil {
			return fmt.Errorf("index: prepare link insert: %w", err)
		}
		defer stmt.Close()
		for _, l := range links {
			if _, err := stmt.Exec(n.Path, l.Target, max(l.Count, 1)); err != nil {
				return fmt.Errorf("index: insert link: %w", err)
			}
		}
	}

	return tx.Commit()
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func scheduleColumns(f models.ScheduleFields) (sql.NullString, sql.NullFloat64, sql.NullFloat64) {
	return sql.NullString{String: f.Due, Valid: f.HasDue},
		sql.NullFloat64{Float64: f.Interval, Valid: f.HasInterval},
		sql.NullFloat64{Float64: f.Ease, Valid: f.HasEase}
}

// DeleteNote removes a note and its outgoing links.
func (db *DB) DeleteNote(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM links WHERE source = ?`, path); err != nil {
		return fmt.Errorf("index: delete links: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM notes WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: delete note: %w", err)
	}
	return tx.Commit()
}

// GetChecksum returns the stored checksum for a note, or empty string if not found.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM notes WHERE path = ?`, path).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: get checksum: %w", err)
	}
	return cs, nil
}

// GetNote returns the indexed row for path, or apperr.ErrNotFound.
func (db *DB) GetNote(path string) (*NoteRow, error) {
	row := db.conn.QueryRow(`
		SELECT path, title, checksum, tags, headings, sr_due, sr_interval, sr_ease, updated_at
		FROM notes WHERE path = ?`, path)
	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: note %s: %w", path, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get note: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNote(s scanner) (*NoteRow, error) {
	var (
		n              NoteRow
		tags, headings string
		due            sql.NullString
		interval, ease sql.NullFloat64
	)
	if err := s.Scan(&n.Path, &n.Title, &n.Checksum, &tags, &headings, &due, &interval, &ease, &n.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &n.Tags); err != nil {
		return nil, fmt.Errorf("decode tags of %s: %w", n.Path, err)
	}
	if err := json.Unmarshal([]byte(headings), &n.Headings); err != nil {
		return nil, fmt.Errorf("decode headings of %s: %w", n.Path, err)
	}
	n.Schedule = models.ScheduleFields{
		Due: due.String, HasDue: due.Valid,
		Interval: interval.Float64, HasInterval: interval.Valid,
		Ease: ease.Float64, HasEase: ease.Valid,
	}
	return &n, nil
}

// AllChecksums returns the stored checksum of every indexed note, keyed by path.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}
