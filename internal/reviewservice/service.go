// Package reviewservice ties the vault, the index and the review queues
// together: it syncs, hands out the next item to review and persists review
// responses.
package reviewservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/starford/recall/internal/apperr"
	"github.com/starford/recall/internal/cards"
	"github.com/starford/recall/internal/index"
	"github.com/starford/recall/internal/review"
	"github.com/starford/recall/internal/schedule"
	"github.com/starford/recall/internal/storage"
)

// Notifier receives queue and review updates, e.g. an SSE broker.
type Notifier interface {
	QueueUpdated(stats review.Stats)
	ReviewRecorded(r index.Review)
}

// Options configures a Service.
type Options struct {
	Params          schedule.Params
	Settings        review.Settings
	SameLineComment bool
	OpenRandomNote  bool
	AutoNextNote    bool
}

// Service coordinates storage, index and queues.
type Service struct {
	store     storage.Provider
	db        *index.DB
	sched     *schedule.Scheduler
	extractor *cards.Extractor
	builder   *review.Builder
	logger    *slog.Logger
	notifier  Notifier

	openRandom bool
	autoNext   bool
	now        func() time.Time

	// opMu serializes syncs and review responses: card offsets and queue
	// positions assume the vault does not change underneath them.
	opMu sync.Mutex

	mu     sync.Mutex // guards queues and rng
	queues *review.Queues
	rng    *rand.Rand
}

// Option customizes a Service.
type Option func(*Service)

// WithNotifier sets the receiver of queue and review events.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRand sets the random source used to pick among due notes. Fuzz is
// seeded separately through WithSchedulerOptions(schedule.WithRand(...)).
func WithRand(rng *rand.Rand) Option {
	return func(s *Service) { s.rng = rng }
}

// WithSchedulerOptions passes options through to the scheduler.
func WithSchedulerOptions(opts ...schedule.Option) Option {
	return func(s *Service) {
		sched, err := schedule.New(s.sched.Params(), opts...)
		if err == nil {
			s.sched = sched
		}
	}
}

// New creates a review service. Queues are empty until the first Sync.
func New(store storage.Provider, db *index.DB, o Options, logger *slog.Logger, opts ...Option) (*Service, error) {
	sched, err := schedule.New(o.Params)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	extractor := cards.New(cards.Options{SameLineComment: o.SameLineComment})
	s := &Service{
		store:      store,
		db:         db,
		sched:      sched,
		extractor:  extractor,
		builder:    review.NewBuilder(o.Settings, extractor, logger),
		logger:     logger,
		openRandom: o.OpenRandomNote,
		autoNext:   o.AutoNextNote,
		now:        time.Now,
		queues:     &review.Queues{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return s, nil
}

// SyncReport describes the outcome of a Sync.
type SyncReport struct {
	Index index.SyncResult `json:"index"`
	Queue review.Stats     `json:"queue"`
}

// Sync reindexes the vault and rebuilds all queues. The previous queues stay
// visible until the new ones are complete.
func (s *Service) Sync(ctx context.Context) (*SyncReport, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, err := index.Sync(s.db, s.store, s.logger)
	if err != nil {
		return nil, fmt.Errorf("reviewservice: sync index: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	docs, err := s.db.Documents()
	if err != nil {
		return nil, fmt.Errorf("reviewservice: load documents: %w", err)
	}
	q := s.builder.Build(s.documents(docs), s.now())

	s.mu.Lock()
	s.queues = q
	s.mu.Unlock()

	stats := q.Stats()
	s.logger.Info("review queues synced",
		slog.Int("indexed", res.Indexed),
		slog.Int("removed", res.Removed),
		slog.Int("notes_due", stats.NotesDue),
		slog.Int("notes_new", stats.NotesNew),
		slog.Int("cards_due", stats.CardsDue),
		slog.Int("cards_new", stats.CardsNew),
	)
	s.queueChanged(stats)
	return &SyncReport{Index: res, Queue: stats}, nil
}

func (s *Service) documents(rows []index.Document) []review.Document {
	out := make([]review.Document, len(rows))
	for i, d := range rows {
		p := d.Path
		out[i] = review.Document{
			Path:     p,
			Tags:     d.Tags,
			Links:    d.Links,
			Schedule: d.Schedule,
			Headings: d.Headings,
			Text: func() (string, error) {
				data, err := s.store.Read(p)
				return string(data), err
			},
		}
	}
	return out
}

// Queue returns a snapshot of the current queues.
func (s *Service) Queue(_ context.Context) *review.Queues {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queues.Clone()
}

// NextNote returns the note to review next, or apperr.ErrQueueEmpty.
func (s *Service) NextNote(_ context.Context) (review.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextNoteLocked()
}

func (s *Service) nextNoteLocked() (review.Note, error) {
	var pick func(int) int
	if s.openRandom {
		pick = s.rng.Intn
	}
	n, ok := s.queues.NextNote(pick)
	if !ok {
		return review.Note{}, apperr.ErrQueueEmpty
	}
	return n, nil
}

// NextCard returns the card to review next, or apperr.ErrQueueEmpty.
func (s *Service) NextCard(_ context.Context) (cards.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.queues.NextCard()
	if !ok {
		return cards.Card{}, apperr.ErrQueueEmpty
	}
	return c, nil
}

// Reviews returns the most recent review log entries.
func (s *Service) Reviews(_ context.Context, limit int, kind index.ItemKind) ([]index.Review, error) {
	return s.db.RecentReviews(limit, kind)
}

// SkipNote drops a note from the queue without scheduling it.
func (s *Service) SkipNote(_ context.Context, path string) error {
	s.mu.Lock()
	ok := s.queues.RemoveNote(path)
	stats := s.queues.Stats()
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("note %s: %w", path, apperr.ErrNotInQueue)
	}
	s.queueChanged(stats)
	return nil
}

// SkipCard drops a card from the queue without scheduling it.
func (s *Service) SkipCard(_ context.Context, id string) error {
	s.mu.Lock()
	ok := s.queues.RemoveCard(id)
	stats := s.queues.Stats()
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("card %s: %w", id, apperr.ErrNotInQueue)
	}
	s.queueChanged(stats)
	return nil
}

func (s *Service) queueChanged(stats review.Stats) {
	if s.notifier != nil {
		s.notifier.QueueUpdated(stats)
	}
}

func (s *Service) recordReview(r index.Review) {
	rec, err := s.db.RecordReview(r)
	if err != nil {
		// The vault file already holds the new schedule, which is what counts.
		s.logger.Warn("record review failed",
			slog.String("item", r.Item), slog.String("error", err.Error()))
		return
	}
	if s.notifier != nil {
		s.notifier.ReviewRecorded(rec)
	}
}

// reindex refreshes the index row of a file the service just rewrote so a
// later sync does not treat it as changed.
func (s *Service) reindex(path string) {
	data, err := s.store.Read(path)
	if err == nil {
		err = index.IndexFile(s.db, path, data, s.now())
	}
	if err != nil {
		s.logger.Warn("reindex after review failed",
			slog.String("path", path), slog.String("error", err.Error()))
	}
}

func storeError(path string, err error) error {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("%s: %w", path, apperr.ErrNotFound)
	case errors.Is(err, storage.ErrConflict), errors.Is(err, cards.ErrStaleCard):
		return fmt.Errorf("%w: %w", apperr.ErrConflict, err)
	}
	return err
}
