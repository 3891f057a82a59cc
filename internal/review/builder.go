// Package review builds the note and card review queues for a vault: it
// ranks notes by link structure, classifies them as new or scheduled and
// collects flash-cards from decks.
package review

import (
	"errors"
	"log/slog"
	"math"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/starford/recall/internal/cards"
	"github.com/starford/recall/internal/models"
	"github.com/starford/recall/internal/rank"
	"github.com/starford/recall/internal/schedule"
)

// ScoreScale multiplies raw rank scores so they read as whole numbers.
const ScoreScale = 10000

// Document is one vault note as seen by the builder.
type Document struct {
	Path     string
	Tags     []string
	Links    []models.Link // targets resolved to vault paths
	Schedule models.ScheduleFields
	Headings []models.Heading
	// Text loads the raw file; it is only called for flash-card decks.
	Text func() (string, error)
}

// Settings selects which notes take part in review.
type Settings struct {
	TagsToReview  []string
	FlashcardsTag string
}

// Builder turns a document list into review queues.
type Builder struct {
	reviewTags map[string]struct{}
	deckTag    string
	extractor  *cards.Extractor
	logger     *slog.Logger
	rankOpts   []rank.Option
}

// NewBuilder returns a Builder. A nil logger discards output.
func NewBuilder(s Settings, extractor *cards.Extractor, logger *slog.Logger, opts ...rank.Option) *Builder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	tags := make(map[string]struct{}, len(s.TagsToReview))
	for _, t := range s.TagsToReview {
		if t = normalizeTag(t); t != "" {
			tags[t] = struct{}{}
		}
	}
	return &Builder{
		reviewTags: tags,
		deckTag:    normalizeTag(s.FlashcardsTag),
		extractor:  extractor,
		logger:     logger,
		rankOpts:   opts,
	}
}

func normalizeTag(t string) string {
	return strings.TrimPrefix(strings.TrimSpace(t), "#")
}

// Build runs a full pass over docs. The result does not share state with
// any earlier result.
func (b *Builder) Build(docs []Document, now time.Time) *Queues {
	q := &Queues{
		BuiltAt:  now,
		incoming: make(map[string]map[string]int),
		outgoing: make(map[string]map[string]int),
		ease:     make(map[string]int),
	}
	g := rank.New(b.rankOpts...)

	var newNotes, scheduled []Note
	for _, d := range docs {
		for _, l := range d.Links {
			if !strings.EqualFold(path.Ext(l.Target), ".md") || l.Count <= 0 {
				continue
			}
			g.Link(d.Path, l.Target, float64(l.Count))
			addCount(q.outgoing, d.Path, l.Target, l.Count)
			addCount(q.incoming, l.Target, d.Path, l.Count)
		}

		review, deck := b.classifyTags(d.Tags)
		if deck {
			b.collectCards(q, d, now)
		}
		if !review {
			continue
		}

		if !d.Schedule.Complete() {
			newNotes = append(newNotes, Note{Path: d.Path, New: true})
			continue
		}
		due, err := schedule.ParseDue(d.Schedule.Due)
		if err != nil {
			b.logger.Warn("unparseable due date, treating as due",
				slog.String("path", d.Path), slog.String("due", d.Schedule.Due))
			due = now
		}
		ease := int(math.Round(d.Schedule.Ease))
		q.ease[d.Path] = ease
		scheduled = append(scheduled, Note{
			Path:     d.Path,
			Due:      due,
			Interval: d.Schedule.Interval,
			Ease:     ease,
		})
	}

	q.Ranks = b.rank(g)
	for i := range newNotes {
		newNotes[i].Score = q.Ranks[newNotes[i].Path]
	}
	for i := range scheduled {
		scheduled[i].Score = q.Ranks[scheduled[i].Path]
	}

	sort.SliceStable(newNotes, func(i, j int) bool {
		return newNotes[i].Score > newNotes[j].Score
	})
	sort.SliceStable(scheduled, func(i, j int) bool {
		a, b := scheduled[i], scheduled[j]
		if !a.Due.Equal(b.Due) {
			return a.Due.Before(b.Due)
		}
		return a.Score > b.Score
	})

	q.NotesNew = newNotes
	q.NotesDue = scheduled
	for _, n := range scheduled {
		if !n.Due.After(now) {
			q.DueCount++
		}
	}

	b.logger.Debug("review queues built",
		slog.Int("notes_new", len(q.NotesNew)),
		slog.Int("notes_scheduled", len(q.NotesDue)),
		slog.Int("notes_due", q.DueCount),
		slog.Int("cards_new", len(q.CardsNew)),
		slog.Int("cards_due", len(q.CardsDue)),
	)
	return q
}

func (b *Builder) classifyTags(tags []string) (review, deck bool) {
	for _, t := range tags {
		t = normalizeTag(t)
		if _, ok := b.reviewTags[t]; ok {
			review = true
		}
		if b.deckTag != "" && t == b.deckTag {
			deck = true
		}
	}
	return review, deck
}

func (b *Builder) collectCards(q *Queues, d Document, now time.Time) {
	if b.extractor == nil || d.Text == nil {
		return
	}
	text, err := d.Text()
	if err != nil {
		b.logger.Warn("read deck failed",
			slog.String("path", d.Path), slog.String("error", err.Error()))
		return
	}
	for _, c := range b.extractor.Extract(d.Path, text, d.Headings, now) {
		if c.IsNew() {
			q.CardsNew = append(q.CardsNew, c)
		} else {
			q.CardsDue = append(q.CardsDue, c)
		}
	}
}

// rank scores every linked note. An empty graph yields an empty map.
func (b *Builder) rank(g *rank.Graph) map[string]float64 {
	ranks := make(map[string]float64)
	if g.Len() == 0 {
		return ranks
	}
	scores, err := g.Rank(rank.DefaultAlpha, rank.DefaultEpsilon)
	if err != nil {
		if !errors.Is(err, rank.ErrNotConverged) {
			b.logger.Error("rank failed", slog.String("error", err.Error()))
			return ranks
		}
		b.logger.Warn("rank did not converge, using last iteration",
			slog.Int("nodes", g.Len()))
	}
	for id, s := range scores {
		ranks[id] = s * ScoreScale
	}
	return ranks
}

func addCount(m map[string]map[string]int, outer, inner string, n int) {
	if m[outer] == nil {
		m[outer] = make(map[string]int)
	}
	m[outer][inner] += n
}
