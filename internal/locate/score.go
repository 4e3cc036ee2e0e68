package locate

import (
	"math"
	"sort"

	"github.com/sightline-data/buildsight/internal/config"
	"github.com/sightline-data/buildsight/internal/geomath"
)

// Base sub-score weights. They sum to 1; the composite score is the
// weighted sum scaled to 0-100.
const (
	WeightDistance = 0.40
	WeightBearing  = 0.30
	WeightArea     = 0.20
	WeightHeight   = 0.10
)

// Scorer computes the composite visibility score for candidates. Pure;
// all tunables come from the config snapshot it was built with.
type Scorer struct {
	cfg *config.TuningConfig
}

// NewScorer creates a scorer bound to a tuning config.
func NewScorer(cfg *config.TuningConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score fills in c.Score and returns it. Sub-scores:
//
//	distance: exp(-d/decay), so a building one decay-constant away
//	          scores ~0.37 relative to one at the viewer's feet
//	bearing:  1 at the cone centerline, 0 at the cone edge
//	area:     fraction of the footprint inside the cone, capped at 1
//	height:   height / cap, capped at 1
//
// When the phone pitches up past the threshold the viewer is likely
// targeting a tall structure's upper mass, so the height weight rises
// and the other weights shrink proportionally.
func (s *Scorer) Score(c *ScoredCandidate, pose geomath.Pose) float64 {
	halfAngle := s.cfg.GetConeHalfAngleDeg()

	distScore := math.Exp(-c.DistanceM / s.cfg.GetDistanceDecayM())

	bearScore := 1 - c.BearingDevDeg/halfAngle
	if bearScore < 0 {
		bearScore = 0
	}

	areaScore := c.VisibleFraction
	if areaScore > 1 {
		areaScore = 1
	}

	heightScore := c.Building.HeightM / s.cfg.GetHeightCap()
	if heightScore > 1 {
		heightScore = 1
	}

	wDist, wBear, wArea, wHeight := s.weights(pose.PitchDeg)
	c.Score = 100 * (wDist*distScore + wBear*bearScore + wArea*areaScore + wHeight*heightScore)
	return c.Score
}

// weights returns the four sub-score weights for the given pitch. Above
// the pitch threshold the height weight is boosted and the remaining
// weights are renormalized so the total stays 1.
func (s *Scorer) weights(pitchDeg float64) (wDist, wBear, wArea, wHeight float64) {
	wDist, wBear, wArea, wHeight = WeightDistance, WeightBearing, WeightArea, WeightHeight

	if math.Abs(pitchDeg) >= s.cfg.GetPitchThresholdDeg() {
		wHeight = s.cfg.GetHeightWeightHigh()
		scale := (1 - wHeight) / (WeightDistance + WeightBearing + WeightArea)
		wDist *= scale
		wBear *= scale
		wArea *= scale
	}
	return wDist, wBear, wArea, wHeight
}

// RankCandidates scores every candidate and returns them ordered best
// first. Ties break on building id so identical inputs always produce
// identical rankings.
func (s *Scorer) RankCandidates(cands []*ScoredCandidate, pose geomath.Pose) []*ScoredCandidate {
	for _, c := range cands {
		s.Score(c, pose)
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].Score != cands[j].Score {
			return cands[i].Score > cands[j].Score
		}
		return cands[i].Building.BuildingID < cands[j].Building.BuildingID
	})
	return cands
}
