package schedule

import "math"

// linkSaturation is the neighbor link count at which neighbor evidence
// reaches its full weight (log base 64).
const linkSaturation = 64

// Neighbor is a linked, already-scheduled note used to seed a new note's ease.
type Neighbor struct {
	LinkCount  float64 // link multiplicity between the two notes
	Importance float64 // rank score of the neighbor
	Ease       int     // the neighbor's current ease
}

// ColdStartEase estimates the initial ease of a never-reviewed note from the
// ease of the scheduled notes it links to or is linked from, weighted by link
// multiplicity and importance. Neighbor influence grows logarithmically with
// the total link count and is capped by MaxLinkFactor.
func (s *Scheduler) ColdStartEase(neighbors []Neighbor) int {
	var linkTotal, linkPGTotal, totalLinks float64
	for _, n := range neighbors {
		linkTotal += n.LinkCount * n.Importance * float64(n.Ease)
		linkPGTotal += n.LinkCount * n.Importance
		totalLinks += n.LinkCount
	}

	base := float64(s.params.BaseEase)
	contribution := s.params.MaxLinkFactor *
		math.Min(1, math.Log(totalLinks+0.5)/math.Log(linkSaturation))

	neighborEase := base
	if totalLinks > 0 && linkPGTotal > 0 {
		neighborEase = linkTotal / linkPGTotal
	}

	ease := int(math.Round((1-contribution)*base + contribution*neighborEase))
	return max(MinEase, ease)
}
