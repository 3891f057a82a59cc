// Package schedule implements the ease/interval review state machine used
// for notes and flash-cards, including fuzzing and cold-start ease
// estimation for notes that have never been reviewed.
package schedule

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"
)

// MinEase is the ease floor. No transition ever produces a lower ease.
const MinEase = 130

const (
	easeStep     = 20
	easyBonus    = 1.3
	fuzzMinDays  = 8.0
	fuzzFraction = 0.05
	day          = 24 * time.Hour
)

// ErrInvalidParams is returned by Params.Validate.
var ErrInvalidParams = errors.New("schedule: parameters out of bounds")

// Params holds the tunable scheduling settings.
type Params struct {
	BaseEase      int     `json:"base_ease"`       // default ease for new items, >= 130
	MaxLinkFactor float64 `json:"max_link_factor"` // 0..1, cap on neighbor influence at cold start
	LapseFactor   float64 `json:"lapse_factor"`    // 0.01..0.99, interval multiplier on Hard
}

// DefaultParams returns the stock settings.
func DefaultParams() Params {
	return Params{
		BaseEase:      250,
		MaxLinkFactor: 1.0,
		LapseFactor:   0.5,
	}
}

// Validate checks that every parameter is inside its allowed range.
func (p Params) Validate() error {
	if p.BaseEase < MinEase {
		return fmt.Errorf("%w: base ease %d below %d", ErrInvalidParams, p.BaseEase, MinEase)
	}
	if p.MaxLinkFactor < 0 || p.MaxLinkFactor > 1 {
		return fmt.Errorf("%w: max link factor %v not in [0, 1]", ErrInvalidParams, p.MaxLinkFactor)
	}
	if p.LapseFactor < 0.01 || p.LapseFactor > 0.99 {
		return fmt.Errorf("%w: lapse factor %v not in [0.01, 0.99]", ErrInvalidParams, p.LapseFactor)
	}
	return nil
}

// State is the interval/ease pair produced by a transition.
type State struct {
	Interval float64 `json:"interval"`
	Ease     int     `json:"ease"`
}

// Schedule is a committed review result ready to be persisted.
type Schedule struct {
	Interval int       `json:"interval"` // whole days, >= 1
	Ease     int       `json:"ease"`
	Due      time.Time `json:"due"`
}

// Scheduler applies review responses. It is safe for concurrent use.
type Scheduler struct {
	params Params
	fuzz   bool

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithRand sets the random source used for fuzzing.
func WithRand(rng *rand.Rand) Option {
	return func(s *Scheduler) {
		s.rng = rng
	}
}

// WithoutFuzz disables interval fuzzing.
func WithoutFuzz() Option {
	return func(s *Scheduler) {
		s.fuzz = false
	}
}

// New creates a Scheduler. Invalid params return an error.
func New(p Params, opts ...Option) (*Scheduler, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	s := &Scheduler{
		params: p,
		fuzz:   true,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return s, nil
}

// Params returns the scheduler settings.
func (s *Scheduler) Params() Params {
	return s.params
}

// Next is the pure transition for a response given the current interval and
// ease. The returned interval is rounded to one decimal and not fuzzed.
func (s *Scheduler) Next(resp Response, interval float64, ease int) State {
	switch resp {
	case Easy:
		ease += easeStep
	case Hard:
		ease -= easeStep
	}
	ease = max(MinEase, ease)

	switch resp {
	case Hard:
		interval = math.Max(1, interval*s.params.LapseFactor)
	case Easy:
		interval = easyBonus * interval * float64(ease) / 100
	default:
		interval = interval * float64(ease) / 100
	}

	return State{
		Interval: math.Round(interval*10) / 10,
		Ease:     ease,
	}
}

// Fuzz perturbs intervals of at least eight days by -5%, 0 or +5%, picked
// uniformly. Shorter intervals are returned unchanged.
func (s *Scheduler) Fuzz(interval float64) float64 {
	if !s.fuzz || interval < fuzzMinDays {
		return interval
	}
	s.mu.Lock()
	pick := s.rng.Intn(3)
	s.mu.Unlock()
	return interval + float64(pick-1)*fuzzFraction*interval
}

// Review commits a response: transition, fuzz, round to whole days and
// compute the due time from now using a fixed 24h day.
func (s *Scheduler) Review(resp Response, interval float64, ease int, now time.Time) Schedule {
	st := s.Next(resp, interval, ease)
	days := max(1, int(math.Round(s.Fuzz(st.Interval))))
	return Schedule{
		Interval: days,
		Ease:     st.Ease,
		Due:      now.Add(time.Duration(days) * day),
	}
}

// Preview returns the unfuzzed transition for every response.
func (s *Scheduler) Preview(interval float64, ease int) map[Response]State {
	out := make(map[Response]State, 3)
	for _, r := range Responses() {
		out[r] = s.Next(r, interval, ease)
	}
	return out
}
