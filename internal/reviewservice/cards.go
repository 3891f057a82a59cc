package reviewservice

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/recall/internal/apperr"
	"github.com/starford/recall/internal/cards"
	"github.com/starford/recall/internal/index"
	"github.com/starford/recall/internal/schedule"
)

// CardResult is the outcome of a card review.
type CardResult struct {
	ID       string            `json:"id"`
	Path     string            `json:"path"`
	Response schedule.Response `json:"response"`
	Schedule schedule.Schedule `json:"schedule"`
}

// ReviewCard schedules the card id with resp and rewrites its metadata
// comment in the deck. Like ReviewNote, the card is only dropped from the
// queue after the deck was written.
func (s *Service) ReviewCard(ctx context.Context, id string, resp schedule.Response) (*CardResult, error) {
	if !resp.IsValid() {
		return nil, fmt.Errorf("%w: %w", apperr.ErrInvalid, schedule.ErrInvalidResponse)
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	c, ok := s.queues.Card(id)
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("card %s: %w", id, apperr.ErrNotInQueue)
	}

	interval, ease := 1.0, s.sched.Params().BaseEase
	if c.Schedule != nil {
		interval = float64(max(c.Schedule.Interval, 1))
		if c.Schedule.Ease > 0 {
			ease = c.Schedule.Ease
		}
	}
	res := s.sched.Review(resp, interval, ease, s.now())
	next := cards.Scheduled{Due: res.Due, Interval: res.Interval, Ease: res.Ease}

	var delta int
	err := s.store.Update(c.Path, func(data []byte) ([]byte, error) {
		doc, d, err := s.extractor.Rewrite(string(data), c, next)
		if err != nil {
			return nil, err
		}
		delta = d
		return []byte(doc), nil
	})
	if err != nil {
		return nil, storeError(c.Path, err)
	}
	s.reindex(c.Path)

	s.mu.Lock()
	s.queues.RemoveCard(id)
	s.queues.ShiftCards(c.Path, c.Offset, delta)
	stats := s.queues.Stats()
	s.mu.Unlock()

	due := schedule.FormatDue(res.Due)
	s.logger.Info("card reviewed",
		slog.String("id", id),
		slog.String("path", c.Path),
		slog.String("response", resp.String()),
		slog.Int("interval", res.Interval),
		slog.Int("ease", res.Ease),
	)
	s.recordReview(index.Review{
		Item:     id,
		Kind:     index.KindCard,
		Response: resp.String(),
		Interval: res.Interval,
		Ease:     res.Ease,
		Due:      due,
	})
	s.queueChanged(stats)
	return &CardResult{ID: id, Path: c.Path, Response: resp, Schedule: res}, nil
}
