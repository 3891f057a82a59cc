// Package rank computes link-weighted note importance with a PageRank-style
// power iteration over a directed weighted multigraph.
package rank

import (
	"errors"
	"math"
	"strconv"
)

// Damping and convergence defaults used for note ranking.
const (
	DefaultAlpha   = 0.85
	DefaultEpsilon = 1e-6

	defaultMaxIterations = 100000
)

var (
	// ErrNotConverged is returned together with best-effort scores when the
	// iteration bound is reached before delta drops below epsilon.
	ErrNotConverged = errors.New("rank: iteration limit reached before convergence")
	// ErrAlreadyRanked is returned when Rank is called again without Reset.
	// Edge normalization is destructive, so a second pass would be wrong.
	ErrAlreadyRanked = errors.New("rank: graph already ranked; reset and relink first")
)

type node struct {
	outbound float64
	score    float64
}

// Graph is a directed weighted multigraph keyed by document identifier.
// The zero value is not usable; create one with New.
type Graph struct {
	nodes   map[string]*node
	edges   map[string]map[string]float64
	order   []string // node creation order, keeps float sums deterministic
	maxIter int
	ranked  bool
}

// Option configures a Graph.
type Option func(*Graph)

// WithMaxIterations bounds the number of power iterations. n <= 0 keeps the default.
func WithMaxIterations(n int) Option {
	return func(g *Graph) {
		if n > 0 {
			g.maxIter = n
		}
	}
}

// New returns an empty graph.
func New(opts ...Option) *Graph {
	g := &Graph{maxIter: defaultMaxIterations}
	for _, opt := range opts {
		opt(g)
	}
	g.Reset()
	return g
}

// Reset discards all nodes and edges.
func (g *Graph) Reset() {
	g.nodes = make(map[string]*node)
	g.edges = make(map[string]map[string]float64)
	g.order = g.order[:0]
	g.ranked = false
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.order)
}

// Link registers a directed edge from source to target. Both nodes are
// created on first reference. A non-finite weight counts as 1. Repeated
// links between the same pair add up.
func (g *Graph) Link(source, target string, weight float64) {
	if math.IsNaN(weight) || math.IsInf(weight, 0) {
		weight = 1
	}
	src := g.getOrCreate(source)
	g.getOrCreate(target)

	out, ok := g.edges[source]
	if !ok {
		out = make(map[string]float64)
		g.edges[source] = out
	}
	out[target] += weight
	src.outbound += weight
}

func (g *Graph) getOrCreate(key string) *node {
	if n, ok := g.nodes[key]; ok {
		return n
	}
	n := &node{}
	g.nodes[key] = n
	g.order = append(g.order, key)
	return n
}

// ParseWeight converts a textual link weight, falling back to 1 when the
// value is empty, malformed or non-finite.
func ParseWeight(s string) float64 {
	w, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(w) || math.IsInf(w, 0) {
		return 1
	}
	return w
}

// Rank runs the power iteration and returns the converged score of every
// node. Scores sum to 1. An empty graph yields an empty map.
//
// alpha is the damping factor and epsilon the L1 convergence threshold.
// Mass held by nodes without outgoing weight is redistributed uniformly.
func (g *Graph) Rank(alpha, epsilon float64) (map[string]float64, error) {
	if g.ranked {
		return nil, ErrAlreadyRanked
	}
	g.ranked = true

	n := len(g.order)
	if n == 0 {
		return map[string]float64{}, nil
	}

	for source, targets := range g.edges {
		outbound := g.nodes[source].outbound
		if outbound <= 0 {
			continue
		}
		for target := range targets {
			targets[target] /= outbound
		}
	}

	inverse := 1 / float64(n)
	for _, key := range g.order {
		g.nodes[key].score = inverse
	}

	prev := make(map[string]float64, n)
	delta := math.Inf(1)
	iter := 0
	for delta > epsilon {
		if iter >= g.maxIter {
			return g.scores(), ErrNotConverged
		}
		iter++

		leak := 0.0
		for _, key := range g.order {
			nd := g.nodes[key]
			prev[key] = nd.score
			if nd.outbound == 0 {
				leak += nd.score
			}
			nd.score = 0
		}
		leak *= alpha

		for _, source := range g.order {
			for target, w := range g.edges[source] {
				g.nodes[target].score += alpha * prev[source] * w
			}
			g.nodes[source].score += (1-alpha)*inverse + leak*inverse
		}

		delta = 0
		for _, key := range g.order {
			delta += math.Abs(g.nodes[key].score - prev[key])
		}
	}

	return g.scores(), nil
}

func (g *Graph) scores() map[string]float64 {
	out := make(map[string]float64, len(g.order))
	for _, key := range g.order {
		out[key] = g.nodes[key].score
	}
	return out
}
