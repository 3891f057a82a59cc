package rank

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sum(scores map[string]float64) float64 {
	total := 0.0
	for _, s := range scores {
		total += s
	}
	return total
}

func TestRank_BidirectionalPairIsUniform(t *testing.T) {
	g := New()
	g.Link("a.md", "b.md", 1)
	g.Link("b.md", "a.md", 1)

	scores, err := g.Rank(DefaultAlpha, DefaultEpsilon)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, scores["a.md"], 1e-9)
	assert.InDelta(t, 0.5, scores["b.md"], 1e-9)
}

func TestRank_DanglingNodeKeepsMass(t *testing.T) {
	// a -> b, b has no outgoing links. Closed form:
	// s_a = (1-α)/2 + α*s_b/2, s_a + s_b = 1  =>  s_a = 0.5/1.425.
	g := New()
	g.Link("a", "b", 1)

	scores, err := g.Rank(DefaultAlpha, 1e-12)
	require.NoError(t, err)
	assert.InDelta(t, 0.5/1.425, scores["a"], 1e-9)
	assert.InDelta(t, 1-0.5/1.425, scores["b"], 1e-9)
	assert.Greater(t, scores["b"], 0.0)
}

func TestRank_ScoresSumToOne(t *testing.T) {
	for _, alpha := range []float64{0.1, 0.5, 0.85, 0.95} {
		g := New()
		g.Link("hub", "a", 3)
		g.Link("hub", "b", 1)
		g.Link("a", "hub", 1)
		g.Link("b", "c", 2)
		g.Link("c", "a", 1)
		g.Link("d", "hub", 5)
		g.Link("e", "e", 1) // self loop
		g.Link("a", "orphan", 1)

		scores, err := g.Rank(alpha, DefaultEpsilon)
		require.NoError(t, err)
		assert.Len(t, scores, 7)
		assert.InDelta(t, 1.0, sum(scores), 1e-6, "alpha=%v", alpha)
		for key, s := range scores {
			assert.Greater(t, s, 0.0, "node %s", key)
		}
	}
}

func TestRank_HeavierIncomingWeightRanksHigher(t *testing.T) {
	g := New()
	g.Link("src", "popular", 9)
	g.Link("src", "quiet", 1)
	g.Link("popular", "src", 1)
	g.Link("quiet", "src", 1)

	scores, err := g.Rank(DefaultAlpha, DefaultEpsilon)
	require.NoError(t, err)
	assert.Greater(t, scores["popular"], scores["quiet"])
}

func TestLink_AccumulatesWeight(t *testing.T) {
	g := New()
	g.Link("a", "b", 1)
	g.Link("a", "b", 2)
	g.Link("a", "c", 1)

	assert.Equal(t, 3, g.Len())
	assert.Equal(t, 3.0, g.edges["a"]["b"])
	assert.Equal(t, 4.0, g.nodes["a"].outbound)
	assert.Equal(t, 0.0, g.nodes["b"].outbound)
}

func TestLink_NonFiniteWeightDefaultsToOne(t *testing.T) {
	g := New()
	g.Link("a", "b", math.NaN())
	g.Link("a", "c", math.Inf(1))

	assert.Equal(t, 1.0, g.edges["a"]["b"])
	assert.Equal(t, 1.0, g.edges["a"]["c"])
	assert.Equal(t, 2.0, g.nodes["a"].outbound)
}

func TestParseWeight(t *testing.T) {
	assert.Equal(t, 2.5, ParseWeight("2.5"))
	assert.Equal(t, 1.0, ParseWeight(""))
	assert.Equal(t, 1.0, ParseWeight("heavy"))
	assert.Equal(t, 1.0, ParseWeight("NaN"))
	assert.Equal(t, 1.0, ParseWeight("+Inf"))
}

func TestRank_EmptyGraph(t *testing.T) {
	scores, err := New().Rank(DefaultAlpha, DefaultEpsilon)
	require.NoError(t, err)
	assert.Empty(t, scores)
}

func TestRank_SecondPassNeedsReset(t *testing.T) {
	g := New()
	g.Link("a", "b", 1)
	_, err := g.Rank(DefaultAlpha, DefaultEpsilon)
	require.NoError(t, err)

	_, err = g.Rank(DefaultAlpha, DefaultEpsilon)
	assert.ErrorIs(t, err, ErrAlreadyRanked)

	g.Reset()
	assert.Equal(t, 0, g.Len())
	g.Link("a", "b", 1)
	g.Link("b", "a", 1)
	scores, err := g.Rank(DefaultAlpha, DefaultEpsilon)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, scores["a"], 1e-9)
}

func TestRank_IterationBound(t *testing.T) {
	g := New(WithMaxIterations(1))
	g.Link("a", "b", 1)

	scores, err := g.Rank(DefaultAlpha, 1e-12)
	assert.ErrorIs(t, err, ErrNotConverged)
	require.Len(t, scores, 2)
	assert.InDelta(t, 1.0, sum(scores), 1e-9)
}
