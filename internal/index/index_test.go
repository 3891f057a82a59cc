package index

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/recall/internal/apperr"
	"github.com/starford/recall/internal/models"
	"github.com/starford/recall/internal/storage"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	for _, table := range []string{"notes", "links", "reviews"} {
		var count int
		err := db.conn.QueryRow(`SELECT count(*) FROM ` + table).Scan(&count)
		require.NoError(t, err, "%s table missing", table)
	}
}

func TestUpsertAndGetNote(t *testing.T) {
	db := testDB(t)
	row := NoteRow{
		Path:     "hello.md",
		Title:    "Hello World",
		Checksum: "abc123",
		Tags:     []string{"review"},
		Headings: []models.Heading{{Offset: 0, Level: 1, Text: "Hello World"}},
		Schedule: models.ScheduleFields{
			Due: "2026-03-13", Interval: 3, Ease: 250,
			HasDue: true, HasInterval: true, HasEase: true,
		},
		UpdatedAt: time.Now(),
	}
	require.NoError(t, db.UpsertNote(row, []models.Link{{Target: "other", Count: 2}}))

	cs, err := db.GetChecksum("hello.md")
	require.NoError(t, err)
	assert.Equal(t, "abc123", cs)

	got, err := db.GetNote("hello.md")
	require.NoError(t, err)
	assert.True(t, got.Schedule.Complete())
	assert.Equal(t, "2026-03-13", got.Schedule.Due)
	assert.Equal(t, 250.0, got.Schedule.Ease)
	require.Len(t, got.Headings, 1)
	assert.Equal(t, "Hello World", got.Headings[0].Text)
	assert.Equal(t, []string{"review"}, got.Tags)
}

func TestGetNote_NotFound(t *testing.T) {
	db := testDB(t)
	_, err := db.GetNote("missing.md")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpsert_NewNoteHasNoSchedule(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertNote(NoteRow{Path: "n.md", Checksum: "1", UpdatedAt: time.Now()}, nil)
	got, err := db.GetNote("n.md")
	require.NoError(t, err)
	assert.False(t, got.Schedule.HasDue)
	assert.False(t, got.Schedule.HasInterval)
	assert.False(t, got.Schedule.HasEase)
}

// sources returns the notes with a raw link to target.
func sources(t *testing.T, db *DB, target string) []string {
	t.Helper()
	rows, err := db.conn.Query(`SELECT source FROM links WHERE target = ? ORDER BY source`, target)
	require.NoError(t, err)
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		require.NoError(t, rows.Scan(&s))
		out = append(out, s)
	}
	return out
}

func TestUpsertStoresLinks(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertNote(NoteRow{Path: "a.md", Checksum: "1", UpdatedAt: time.Now()}, []models.Link{{Target: "b.md", Count: 1}})
	_ = db.UpsertNote(NoteRow{Path: "c.md", Checksum: "2", UpdatedAt: time.Now()}, []models.Link{{Target: "b.md", Count: 4}})

	assert.Equal(t, []string{"a.md", "c.md"}, sources(t, db, "b.md"))
}

func TestDeleteNote(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertNote(NoteRow{Path: "del.md", Checksum: "x", UpdatedAt: time.Now()}, []models.Link{{Target: "target.md", Count: 1}})

	require.NoError(t, db.DeleteNote("del.md"))
	cs, _ := db.GetChecksum("del.md")
	assert.Empty(t, cs, "deleted note still has a checksum")
	assert.Empty(t, sources(t, db, "target.md"), "links should go with the note")
}

func TestUpsertUpdatesExisting(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	_ = db.UpsertNote(NoteRow{Path: "up.md", Title: "Old", Checksum: "1", UpdatedAt: now}, []models.Link{{Target: "x.md", Count: 1}})
	_ = db.UpsertNote(NoteRow{Path: "up.md", Title: "New", Checksum: "2", UpdatedAt: now}, []models.Link{{Target: "y.md", Count: 1}})

	cs, _ := db.GetChecksum("up.md")
	assert.Equal(t, "2", cs)
	assert.Empty(t, sources(t, db, "x.md"), "old link should be removed on upsert")
	assert.Len(t, sources(t, db, "y.md"), 1, "new link should exist")
}

func TestGetChecksum_NotFound(t *testing.T) {
	db := testDB(t)
	cs, err := db.GetChecksum("nonexistent.md")
	require.NoError(t, err)
	assert.Empty(t, cs)
}

func TestDocuments_ResolvesAndMergesLinks(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	_ = db.UpsertNote(NoteRow{Path: "topics/go.md", Checksum: "1", UpdatedAt: now}, nil)
	_ = db.UpsertNote(NoteRow{Path: "topics/rust.md", Checksum: "2", UpdatedAt: now}, nil)
	_ = db.UpsertNote(NoteRow{Path: "topics/index.md", Checksum: "3", UpdatedAt: now}, []models.Link{
		{Target: "Go", Count: 2},           // bare name
		{Target: "topics/go.md", Count: 1}, // vault path, same file
		{Target: "rust.md", Count: 1},      // relative to the source
		{Target: "Missing", Count: 5},      // unresolved
		{Target: "diagram.png", Count: 1},  // not a note
	})

	docs, err := db.Documents()
	require.NoError(t, err)
	require.Len(t, docs, 3)
	var idx Document
	for _, d := range docs {
		if d.Path == "topics/index.md" {
			idx = d
		}
	}
	assert.Equal(t, []models.Link{{Target: "topics/go.md", Count: 3}, {Target: "topics/rust.md", Count: 1}}, idx.Links)
}

func TestResolver_PrefersShortestPathForBareNames(t *testing.T) {
	r := newResolver([]string{"archive/old/Note.md", "Note.md", "b/Note.md"})

	got, ok := r.resolve("x/y.md", "note")
	assert.True(t, ok)
	assert.Equal(t, "Note.md", got)

	got, ok = r.resolve("b/z.md", "Note")
	assert.True(t, ok)
	assert.Equal(t, "b/Note.md", got, "relative match wins")
}

func TestReviews_RecordAndList(t *testing.T) {
	db := testDB(t)
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	first, err := db.RecordReview(Review{Item: "a.md", Kind: KindNote, Response: "good", Interval: 3, Ease: 250, Due: "2026-03-13", ReviewedAt: base})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID, "expected generated ID")
	_, _ = db.RecordReview(Review{Item: "c1", Kind: KindCard, Response: "easy", Interval: 4, Ease: 270, Due: "2026-03-14", ReviewedAt: base.Add(time.Minute)})

	all, err := db.RecentReviews(10, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "c1", all[0].Item, "newest first")
	assert.Equal(t, "a.md", all[1].Item)

	notes, _ := db.RecentReviews(10, KindNote)
	require.Len(t, notes, 1)
	assert.Equal(t, first.ID, notes[0].ID)
	assert.Equal(t, KindNote, notes[0].Kind)
}

func TestSync_IndexesAndRemoves(t *testing.T) {
	db := testDB(t)
	store, err := storage.NewFS(t.TempDir())
	require.NoError(t, err)
	_ = store.Write("a.md", []byte("---\ntags: [review]\nsr-due: 2026-03-13\nsr-interval: 3\nsr-ease: 250\n---\nSee [[b]] and [[b]].\n"))
	_ = store.Write("b.md", []byte("# B\n"))

	res, err := Sync(db, store, discard())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Indexed)

	docs, _ := db.Documents()
	require.Len(t, docs, 2)
	assert.Equal(t, []models.Link{{Target: "b.md", Count: 2}}, docs[0].Links)
	assert.True(t, docs[0].Schedule.Complete(), "schedule not indexed")

	again, _ := Sync(db, store, discard())
	assert.Equal(t, 0, again.Indexed, "unchanged vault reindexed")

	require.NoError(t, os.Remove(filepath.Join(store.Root(), "b.md")))
	res, _ = Sync(db, store, discard())
	assert.Equal(t, 1, res.Removed)
}

// failingWriter rejects upserts for one path and delegates everything else.
type failingWriter struct {
	Writer
	path string
}

func (f failingWriter) UpsertNote(n NoteRow, links []models.Link) error {
	if n.Path == f.path {
		return errors.New("disk full")
	}
	return f.Writer.UpsertNote(n, links)
}

func TestSync_CountsFailedFiles(t *testing.T) {
	db := testDB(t)
	store, err := storage.NewFS(t.TempDir())
	require.NoError(t, err)
	_ = store.Write("a.md", []byte("# A\n"))
	_ = store.Write("b.md", []byte("# B\n"))

	res, err := Sync(failingWriter{Writer: db, path: "b.md"}, store, discard())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Indexed)
	assert.Equal(t, 1, res.Failed)
	cs, _ := db.GetChecksum("b.md")
	assert.Empty(t, cs, "failed file was indexed")
}
