package schedule

import (
	"encoding/json"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

func mustScheduler(t *testing.T, opts ...Option) *Scheduler {
	t.Helper()
	s, err := New(DefaultParams(), opts...)
	require.NoError(t, err)
	return s
}

func TestNew_RejectsInvalidParams(t *testing.T) {
	cases := []Params{
		{BaseEase: 100, MaxLinkFactor: 1, LapseFactor: 0.5},
		{BaseEase: 250, MaxLinkFactor: 1.5, LapseFactor: 0.5},
		{BaseEase: 250, MaxLinkFactor: -0.1, LapseFactor: 0.5},
		{BaseEase: 250, MaxLinkFactor: 1, LapseFactor: 0},
		{BaseEase: 250, MaxLinkFactor: 1, LapseFactor: 1},
	}
	for _, p := range cases {
		_, err := New(p)
		assert.ErrorIs(t, err, ErrInvalidParams, "%+v", p)
	}
}

func TestNext_Transitions(t *testing.T) {
	s := mustScheduler(t)

	good := s.Next(Good, 10, 250)
	assert.Equal(t, State{Interval: 25, Ease: 250}, good)

	hard := s.Next(Hard, 10, 250)
	assert.Equal(t, State{Interval: 5, Ease: 230}, hard)

	easy := s.Next(Easy, 10, 250)
	assert.Equal(t, State{Interval: 35.1, Ease: 270}, easy)
}

func TestNext_RoundsToOneDecimal(t *testing.T) {
	s := mustScheduler(t)
	// 3 * 131 / 100 = 3.93 -> 3.9
	assert.Equal(t, 3.9, s.Next(Good, 3, 131).Interval)
}

func TestNext_HardNeverBelowOneDay(t *testing.T) {
	s := mustScheduler(t)
	assert.Equal(t, 1.0, s.Next(Hard, 1, 250).Interval)
	assert.Equal(t, 1.0, s.Next(Hard, 1.5, 250).Interval)
}

func TestNext_Monotonic(t *testing.T) {
	s := mustScheduler(t)
	for _, ivl := range []float64{1, 2, 3.5, 8, 21, 100} {
		for _, ease := range []int{130, 150, 250, 310} {
			easy := s.Next(Easy, ivl, ease).Interval
			good := s.Next(Good, ivl, ease).Interval
			hard := s.Next(Hard, ivl, ease).Interval
			assert.GreaterOrEqual(t, easy, good, "ivl=%v ease=%d", ivl, ease)
			assert.GreaterOrEqual(t, good, hard, "ivl=%v ease=%d", ivl, ease)
		}
	}
}

func TestNext_EaseFloor(t *testing.T) {
	s := mustScheduler(t)
	st := State{Interval: 40, Ease: 250}
	for i := 0; i < 20; i++ {
		st = s.Next(Hard, st.Interval, st.Ease)
		assert.GreaterOrEqual(t, st.Ease, MinEase)
	}
	assert.Equal(t, MinEase, st.Ease)

	// Malformed stored ease is lifted to the floor as well.
	assert.Equal(t, MinEase, s.Next(Good, 3, 20).Ease)
}

func TestFuzz_NoneBelowEightDays(t *testing.T) {
	s := mustScheduler(t, WithRand(rand.New(rand.NewSource(1))))
	for i := 0; i < 50; i++ {
		assert.Equal(t, 7.9, s.Fuzz(7.9))
	}
}

func TestFuzz_WithinFivePercent(t *testing.T) {
	s := mustScheduler(t, WithRand(rand.New(rand.NewSource(42))))
	seen := map[float64]bool{}
	for i := 0; i < 300; i++ {
		got := s.Fuzz(20)
		assert.Contains(t, []float64{19, 20, 21}, got)
		seen[got] = true
	}
	assert.Len(t, seen, 3, "all three offsets should appear")
}

func TestFuzz_Disabled(t *testing.T) {
	s := mustScheduler(t, WithoutFuzz())
	assert.Equal(t, 100.0, s.Fuzz(100))
}

func TestReview_CommitsWholeDaysAndDue(t *testing.T) {
	s := mustScheduler(t)

	got := s.Review(Good, 1, 250, t0)
	assert.Equal(t, 3, got.Interval) // 2.5 rounds up
	assert.Equal(t, 250, got.Ease)
	assert.Equal(t, t0.Add(72*time.Hour), got.Due)
}

func TestReview_FuzzedIntervalBounds(t *testing.T) {
	s := mustScheduler(t, WithRand(rand.New(rand.NewSource(7))))
	for i := 0; i < 100; i++ {
		got := s.Review(Good, 40, 250, t0) // pre-fuzz 100
		assert.Contains(t, []int{95, 100, 105}, got.Interval)
		assert.Equal(t, t0.Add(time.Duration(got.Interval)*24*time.Hour), got.Due)
	}
}

func TestPreview(t *testing.T) {
	s := mustScheduler(t)
	p := s.Preview(1, 250)
	require.Len(t, p, 3)
	assert.Equal(t, 1.0, p[Hard].Interval)
	assert.Equal(t, 2.5, p[Good].Interval)
	assert.Equal(t, 3.5, p[Easy].Interval) // 1.3 * 270 / 100 = 3.51
}

func TestColdStartEase_NoNeighborsUsesBase(t *testing.T) {
	s := mustScheduler(t)
	assert.Equal(t, 250, s.ColdStartEase(nil))
}

func TestColdStartEase_SaturatedNeighborsDominate(t *testing.T) {
	s := mustScheduler(t)
	got := s.ColdStartEase([]Neighbor{{LinkCount: 63.5, Importance: 2, Ease: 300}})
	assert.Equal(t, 300, got)
}

func TestColdStartEase_PartialContribution(t *testing.T) {
	s := mustScheduler(t)
	// contribution = ln(1.5)/ln(64) ~ 0.0975; 0.9025*250 + 0.0975*130 ~ 238.3
	got := s.ColdStartEase([]Neighbor{{LinkCount: 1, Importance: 1, Ease: 130}})
	assert.Equal(t, 238, got)
}

func TestColdStartEase_WeightsByImportance(t *testing.T) {
	s := mustScheduler(t)
	got := s.ColdStartEase([]Neighbor{
		{LinkCount: 40, Importance: 3, Ease: 300},
		{LinkCount: 40, Importance: 1, Ease: 140},
	})
	// saturated: (3*300 + 1*140) / 4 = 260
	assert.Equal(t, 260, got)
}

func TestColdStartEase_ZeroImportanceFallsBackToBase(t *testing.T) {
	s := mustScheduler(t)
	got := s.ColdStartEase([]Neighbor{{LinkCount: 10, Importance: 0, Ease: 400}})
	assert.Equal(t, 250, got)
}

func TestColdStartEase_LinkFactorZero(t *testing.T) {
	p := DefaultParams()
	p.MaxLinkFactor = 0
	s, err := New(p)
	require.NoError(t, err)
	assert.Equal(t, 250, s.ColdStartEase([]Neighbor{{LinkCount: 100, Importance: 1, Ease: 400}}))
}

func TestResponse_ParseAndJSON(t *testing.T) {
	r, err := ParseResponse(" easy ")
	require.NoError(t, err)
	assert.Equal(t, Easy, r)

	_, err = ParseResponse("again")
	assert.ErrorIs(t, err, ErrInvalidResponse)

	data, err := json.Marshal(Good)
	require.NoError(t, err)
	assert.Equal(t, `"Good"`, string(data))

	var back Response
	require.NoError(t, json.Unmarshal([]byte(`"Hard"`), &back))
	assert.Equal(t, Hard, back)

	assert.Equal(t, "Response(9)", Response(9).String())
	_, err = Response(0).MarshalText()
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestDueFormatRoundTrip(t *testing.T) {
	due := time.Date(2026, 11, 2, 0, 0, 0, 0, time.Local)
	assert.Equal(t, "2026-11-02", FormatDue(due))

	got, err := ParseDue("2026-11-02")
	require.NoError(t, err)
	assert.True(t, got.Equal(due))
}

func TestParseDue_Lenient(t *testing.T) {
	got, err := ParseDue("2026/11/02")
	require.NoError(t, err)
	assert.Equal(t, 2026, got.Year())
	assert.Equal(t, time.November, got.Month())
	assert.Equal(t, 2, got.Day())

	_, err = ParseDue("not a date")
	assert.Error(t, err)
}
