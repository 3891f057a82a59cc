package reviewservice

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/recall/internal/apperr"
	"github.com/starford/recall/internal/index"
	"github.com/starford/recall/internal/models"
	"github.com/starford/recall/internal/parser"
	"github.com/starford/recall/internal/review"
	"github.com/starford/recall/internal/schedule"
)

// NoteResult is the outcome of a note review.
type NoteResult struct {
	Path     string            `json:"path"`
	Response schedule.Response `json:"response"`
	Schedule schedule.Schedule `json:"schedule"`
	// Next is the following note when auto-advance is on and one is queued.
	Next *review.Note `json:"next,omitempty"`
}

// Preview is the schedule each response would produce.
type Preview struct {
	Response schedule.Response `json:"response"`
	Interval float64           `json:"interval"`
	Ease     int               `json:"ease"`
}

// noteState returns the interval and ease a note is reviewed from: its
// stored values, or interval 1 and a cold-start ease for new notes.
func (s *Service) noteState(q *review.Queues, n review.Note) (float64, int) {
	if n.New {
		return 1, s.sched.ColdStartEase(q.ColdStart(n.Path))
	}
	ease := n.Ease
	if ease <= 0 {
		ease = s.sched.Params().BaseEase
	}
	return n.Interval, ease
}

// ReviewNote schedules path with resp. The new schedule is written to the
// note's frontmatter first; the note leaves the queue only once the write
// succeeded, so a failed write can simply be retried.
func (s *Service) ReviewNote(ctx context.Context, path string, resp schedule.Response) (*NoteResult, error) {
	if !resp.IsValid() {
		return nil, fmt.Errorf("%w: %w", apperr.ErrInvalid, schedule.ErrInvalidResponse)
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	q := s.queues
	n, ok := q.Note(path)
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("note %s: %w", path, apperr.ErrNotInQueue)
	}

	interval, ease := s.noteState(q, n)
	res := s.sched.Review(resp, interval, ease, s.now())
	due := schedule.FormatDue(res.Due)

	err := s.store.Update(path, func(data []byte) ([]byte, error) {
		return parser.SetSchedule(data, due, res.Interval, res.Ease), nil
	})
	if err != nil {
		return nil, storeError(path, err)
	}
	s.reindex(path)

	s.mu.Lock()
	s.queues.RemoveNote(path)
	stats := s.queues.Stats()
	out := &NoteResult{Path: path, Response: resp, Schedule: res}
	if s.autoNext {
		if next, err := s.nextNoteLocked(); err == nil {
			out.Next = &next
		}
	}
	s.mu.Unlock()

	s.logger.Info("note reviewed",
		slog.String("path", path),
		slog.String("response", resp.String()),
		slog.Int("interval", res.Interval),
		slog.Int("ease", res.Ease),
		slog.String("due", due),
	)
	s.recordReview(index.Review{
		Item:     path,
		Kind:     index.KindNote,
		Response: resp.String(),
		Interval: res.Interval,
		Ease:     res.Ease,
		Due:      due,
	})
	s.queueChanged(stats)
	return out, nil
}

// PreviewNote returns the interval and ease each response would give path,
// before fuzzing.
func (s *Service) PreviewNote(_ context.Context, path string) ([]Preview, error) {
	s.mu.Lock()
	q := s.queues
	n, ok := q.Note(path)
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("note %s: %w", path, apperr.ErrNotInQueue)
	}

	interval, ease := s.noteState(q, n)
	states := s.sched.Preview(interval, ease)
	out := make([]Preview, 0, len(states))
	for _, r := range schedule.Responses() {
		st := states[r]
		out = append(out, Preview{Response: r, Interval: st.Interval, Ease: st.Ease})
	}
	return out, nil
}

// NoteDetail is a note with its index and queue state.
type NoteDetail struct {
	Path      string                `json:"path"`
	Title     string                `json:"title"`
	Content   string                `json:"content"`
	Tags      []string              `json:"tags"`
	Schedule  models.ScheduleFields `json:"schedule"`
	Score     float64               `json:"score"`
	Queued    bool                  `json:"queued"`
	Backlinks []string              `json:"backlinks"`
}

// Note reads path from the vault and joins it with what the index and the
// queues know about it.
func (s *Service) Note(_ context.Context, path string) (*NoteDetail, error) {
	row, err := s.db.GetNote(path)
	if err != nil {
		return nil, err
	}
	data, err := s.store.Read(path)
	if err != nil {
		return nil, storeError(path, err)
	}

	s.mu.Lock()
	_, queued := s.queues.Note(path)
	score := s.queues.Ranks[path]
	backlinks := s.queues.Backlinks(path)
	s.mu.Unlock()

	if row.Tags == nil {
		row.Tags = []string{}
	}
	if backlinks == nil {
		backlinks = []string{}
	}
	return &NoteDetail{
		Path:      path,
		Title:     row.Title,
		Content:   string(data),
		Tags:      row.Tags,
		Schedule:  row.Schedule,
		Score:     score,
		Queued:    queued,
		Backlinks: backlinks,
	}, nil
}
