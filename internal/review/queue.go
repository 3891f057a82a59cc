package review

import (
	"maps"
	"slices"
	"sort"
	"time"

	"github.com/starford/recall/internal/cards"
	"github.com/starford/recall/internal/schedule"
)

// Note is a queued note. New notes have a zero Due.
type Note struct {
	Path     string    `json:"path"`
	New      bool      `json:"new"`
	Due      time.Time `json:"due,omitzero"`
	Interval float64   `json:"interval,omitempty"`
	Ease     int       `json:"ease,omitempty"`
	Score    float64   `json:"score"`
}

// Stats summarizes queue sizes.
type Stats struct {
	NotesNew       int       `json:"notes_new"`
	NotesScheduled int       `json:"notes_scheduled"`
	NotesDue       int       `json:"notes_due"`
	CardsNew       int       `json:"cards_new"`
	CardsDue       int       `json:"cards_due"`
	BuiltAt        time.Time `json:"built_at"`
}

// Queues is the result of one build. It is not safe for concurrent use;
// callers guard it or work on a Clone.
type Queues struct {
	NotesNew []Note
	// NotesDue holds every scheduled note, soonest first. The first DueCount
	// entries are due as of BuiltAt.
	NotesDue []Note
	DueCount int
	CardsNew []cards.Card
	CardsDue []cards.Card
	Ranks    map[string]float64
	BuiltAt  time.Time

	incoming map[string]map[string]int // target -> source -> count
	outgoing map[string]map[string]int // source -> target -> count
	ease     map[string]int            // scheduled notes only
}

// Stats returns the current queue sizes.
func (q *Queues) Stats() Stats {
	return Stats{
		NotesNew:       len(q.NotesNew),
		NotesScheduled: len(q.NotesDue),
		NotesDue:       q.DueCount,
		CardsNew:       len(q.CardsNew),
		CardsDue:       len(q.CardsDue),
		BuiltAt:        q.BuiltAt,
	}
}

// NextNote picks the note to review next: due notes first, then new notes.
// When pick is non-nil it chooses an index among the candidates, otherwise
// the head of the queue is taken.
func (q *Queues) NextNote(pick func(n int) int) (Note, bool) {
	choose := func(notes []Note) Note {
		if pick == nil || len(notes) == 1 {
			return notes[0]
		}
		return notes[pick(len(notes))]
	}
	if q.DueCount > 0 {
		return choose(q.NotesDue[:q.DueCount]), true
	}
	if len(q.NotesNew) > 0 {
		return choose(q.NotesNew), true
	}
	return Note{}, false
}

// Note looks up a queued note by path.
func (q *Queues) Note(path string) (Note, bool) {
	for _, n := range q.NotesDue {
		if n.Path == path {
			return n, true
		}
	}
	for _, n := range q.NotesNew {
		if n.Path == path {
			return n, true
		}
	}
	return Note{}, false
}

// RemoveNote drops path from whichever note queue holds it.
func (q *Queues) RemoveNote(path string) bool {
	if i := slices.IndexFunc(q.NotesDue, func(n Note) bool { return n.Path == path }); i >= 0 {
		q.NotesDue = slices.Delete(q.NotesDue, i, i+1)
		if i < q.DueCount {
			q.DueCount--
		}
		return true
	}
	if i := slices.IndexFunc(q.NotesNew, func(n Note) bool { return n.Path == path }); i >= 0 {
		q.NotesNew = slices.Delete(q.NotesNew, i, i+1)
		return true
	}
	return false
}

// NextCard returns the first due card, or the first new card when none are due.
func (q *Queues) NextCard() (cards.Card, bool) {
	if len(q.CardsDue) > 0 {
		return q.CardsDue[0], true
	}
	if len(q.CardsNew) > 0 {
		return q.CardsNew[0], true
	}
	return cards.Card{}, false
}

// Card looks up a queued card by ID.
func (q *Queues) Card(id string) (cards.Card, bool) {
	for _, list := range [][]cards.Card{q.CardsDue, q.CardsNew} {
		for _, c := range list {
			if c.ID == id {
				return c, true
			}
		}
	}
	return cards.Card{}, false
}

// RemoveCard drops the card with the given ID.
func (q *Queues) RemoveCard(id string) bool {
	match := func(c cards.Card) bool { return c.ID == id }
	if i := slices.IndexFunc(q.CardsDue, match); i >= 0 {
		q.CardsDue = slices.Delete(q.CardsDue, i, i+1)
		return true
	}
	if i := slices.IndexFunc(q.CardsNew, match); i >= 0 {
		q.CardsNew = slices.Delete(q.CardsNew, i, i+1)
		return true
	}
	return false
}

// ShiftCards moves the offsets of queued cards in path that start after
// offset by delta, keeping them valid after a rewrite earlier in the file.
func (q *Queues) ShiftCards(path string, offset, delta int) {
	for _, list := range [][]cards.Card{q.CardsDue, q.CardsNew} {
		for i := range list {
			if list[i].Path == path && list[i].Offset > offset {
				list[i].Offset += delta
			}
		}
	}
}

// ColdStart returns the scheduled neighbors of path, linked in either
// direction, for cold-start ease estimation.
func (q *Queues) ColdStart(path string) []schedule.Neighbor {
	var out []schedule.Neighbor
	add := func(links map[string]int) {
		for _, other := range slices.Sorted(maps.Keys(links)) {
			ease, ok := q.ease[other]
			if !ok {
				continue
			}
			out = append(out, schedule.Neighbor{
				LinkCount:  float64(links[other]),
				Importance: q.Ranks[other],
				Ease:       ease,
			})
		}
	}
	add(q.incoming[path])
	add(q.outgoing[path])
	return out
}

// Clone returns a copy whose queues can be modified independently.
func (q *Queues) Clone() *Queues {
	c := *q
	c.NotesNew = slices.Clone(q.NotesNew)
	c.NotesDue = slices.Clone(q.NotesDue)
	c.CardsNew = slices.Clone(q.CardsNew)
	c.CardsDue = slices.Clone(q.CardsDue)
	return &c
}

// TopRanked returns up to n note paths with the highest scores. A negative
// n returns all of them.
func (q *Queues) TopRanked(n int) []string {
	paths := slices.Collect(maps.Keys(q.Ranks))
	sort.Slice(paths, func(i, j int) bool {
		if q.Ranks[paths[i]] != q.Ranks[paths[j]] {
			return q.Ranks[paths[i]] > q.Ranks[paths[j]]
		}
		return paths[i] < paths[j]
	})
	if n >= 0 && n < len(paths) {
		paths = paths[:n]
	}
	return paths
}

// Backlinks returns the notes that link to path, in path order.
func (q *Queues) Backlinks(path string) []string {
	return slices.Sorted(maps.Keys(q.incoming[path]))
}
