package index

import (
	"fmt"
	"path"
	"strings"

	"github.com/starford/recall/internal/models"
)

// Document is an indexed note with its links resolved to vault paths.
type Document struct {
	NoteRow
	Links []models.Link
}

// Documents returns every indexed note ordered by path. Link targets are
// resolved against the indexed paths; links to files outside the index are
// dropped and links that resolve to the same file are merged.
func (db *DB) Documents() ([]Document, error) {
	rows, err := db.conn.Query(`
		SELECT path, title, checksum, tags, headings, sr_due, sr_interval, sr_ease, updated_at
		FROM notes ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("index: documents: %w", err)
	}
	var docs []Document
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("index: documents: %w", err)
		}
		docs = append(docs, Document{NoteRow: *n})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("index: documents: %w", err)
	}

	raw, err := db.rawLinks()
	if err != nil {
		return nil, err
	}

	paths := make([]string, len(docs))
	for i, d := range docs {
		paths[i] = d.Path
	}
	r := newResolver(paths)

	for i := range docs {
		var order []string
		counts := make(map[string]int)
		for _, l := range raw[docs[i].Path] {
			target, ok := r.resolve(docs[i].Path, l.Target)
			if !ok {
				continue
			}
			if counts[target] == 0 {
				order = append(order, target)
			}
			counts[target] += l.Count
		}
		for _, t := range order {
			docs[i].Links = append(docs[i].Links, models.Link{Target: t, Count: counts[t]})
		}
	}
	return docs, nil
}

func (db *DB) rawLinks() (map[string][]models.Link, error) {
	rows, err := db.conn.Query(`SELECT source, target, count FROM links ORDER BY source, rowid`)
	if err != nil {
		return nil, fmt.Errorf("index: links: %w", err)
	}
	defer rows.Close()
	out := make(map[string][]models.Link)
	for rows.Next() {
		var src string
		var l models.Link
		if err := rows.Scan(&src, &l.Target, &l.Count); err != nil {
			return nil, err
		}
		out[src] = append(out[src], l)
	}
	return out, rows.Err()
}

// resolver maps link text to vault paths the way Obsidian does: a path
// relative to the linking note, a path from the vault root, or a bare note
// name matched by file name. Matching ignores case; on ambiguous names the
// shortest path wins.
type resolver struct {
	byPath map[string]string // lowercase path -> path
	byName map[string]string // lowercase base name without .md -> path
}

func newResolver(paths []string) *resolver {
	r := &resolver{
		byPath: make(map[string]string, len(paths)),
		byName: make(map[string]string, len(paths)),
	}
	for _, p := range paths {
		r.byPath[strings.ToLower(p)] = p
		name := strings.ToLower(strings.TrimSuffix(path.Base(p), ".md"))
		if cur, ok := r.byName[name]; !ok || len(p) < len(cur) || (len(p) == len(cur) && p < cur) {
			r.byName[name] = p
		}
	}
	return r
}

func (r *resolver) resolve(source, target string) (string, bool) {
	target = strings.TrimPrefix(strings.TrimSpace(target), "/")
	if target == "" {
		return "", false
	}
	candidates := []string{
		path.Join(path.Dir(source), target),
		path.Clean(target),
	}
	for _, c := range candidates {
		lc := strings.ToLower(c)
		if p, ok := r.byPath[lc]; ok {
			return p, true
		}
		if p, ok := r.byPath[lc+".md"]; ok {
			return p, true
		}
	}
	if path.Ext(target) != "" && !strings.EqualFold(path.Ext(target), ".md") {
		return "", false
	}
	p, ok := r.byName[strings.ToLower(strings.TrimSuffix(path.Base(target), ".md"))]
	return p, ok
}
