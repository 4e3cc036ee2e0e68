package locate

import (
	"math"
	"testing"

	"github.com/sightline-data/buildsight/internal/config"
	"github.com/sightline-data/buildsight/internal/footprint"
	"github.com/sightline-data/buildsight/internal/geomath"
)

func testBuilding(id string, heightM float64) *footprint.Footprint {
	return &footprint.Footprint{BuildingID: id, HeightM: heightM, AreaM2: 400}
}

func newTestCandidate(id string, distanceM, devDeg, fraction, heightM float64) *ScoredCandidate {
	return &ScoredCandidate{
		Building:        testBuilding(id, heightM),
		DistanceM:       distanceM,
		BearingDevDeg:   devDeg,
		VisibleFraction: fraction,
	}
}

func TestScoreHandComputed(t *testing.T) {
	s := NewScorer(config.EmptyTuningConfig())
	pose := geomath.Pose{} // pitch 0

	// distance 30m -> exp(-1) = 0.367879; dev 0 -> 1; fraction 1;
	// height 100/200 -> 0.5
	// score = 100*(0.4*0.367879 + 0.3*1 + 0.2*1 + 0.1*0.5) = 69.7152
	c := newTestCandidate("a", 30, 0, 1, 100)
	got := s.Score(c, pose)
	if math.Abs(got-69.7152) > 0.01 {
		t.Errorf("Score = %v, want 69.7152", got)
	}
	if c.Score != got {
		t.Error("Score must be stored on the candidate")
	}
}

func TestScoreAtZeroDistanceDominates(t *testing.T) {
	s := NewScorer(config.EmptyTuningConfig())
	// Perfect candidate: at the viewer, centred, fully visible, at cap.
	c := newTestCandidate("a", 0, 0, 1, 200)
	got := s.Score(c, geomath.Pose{})
	if math.Abs(got-100) > 1e-9 {
		t.Errorf("perfect candidate score = %v, want 100", got)
	}
}

func TestScoreConeEdgeBearingScoresZero(t *testing.T) {
	s := NewScorer(config.EmptyTuningConfig())
	atEdge := newTestCandidate("a", 30, 30, 1, 100)   // dev = half-angle
	beyond := newTestCandidate("b", 30, 40, 1, 100)   // dev past the edge
	centred := newTestCandidate("c", 30, 0, 1, 100)

	edgeScore := s.Score(atEdge, geomath.Pose{})
	beyondScore := s.Score(beyond, geomath.Pose{})
	if math.Abs(edgeScore-beyondScore) > 1e-9 {
		t.Errorf("bearing sub-score must clamp at 0: edge=%v beyond=%v", edgeScore, beyondScore)
	}
	if s.Score(centred, geomath.Pose{})-edgeScore < 29.9 {
		t.Error("centred candidate should gain the full bearing weight over the edge")
	}
}

func TestScoreMonotonicInDistance(t *testing.T) {
	s := NewScorer(config.EmptyTuningConfig())
	prev := math.Inf(1)
	for _, d := range []float64{0, 10, 25, 50, 100, 200} {
		got := s.Score(newTestCandidate("a", d, 5, 0.5, 50), geomath.Pose{})
		if got > prev {
			t.Errorf("score increased with distance at %vm: %v > %v", d, got, prev)
		}
		prev = got
	}
}

func TestScoreMonotonicInBearingDeviation(t *testing.T) {
	s := NewScorer(config.EmptyTuningConfig())
	prev := math.Inf(1)
	for _, dev := range []float64{0, 5, 15, 25, 30, 45} {
		got := s.Score(newTestCandidate("a", 20, dev, 0.5, 50), geomath.Pose{})
		if got > prev {
			t.Errorf("score increased with bearing deviation at %v°: %v > %v", dev, got, prev)
		}
		prev = got
	}
}

func TestScoreVisibleAreaCapped(t *testing.T) {
	s := NewScorer(config.EmptyTuningConfig())
	full := s.Score(newTestCandidate("a", 20, 0, 1.0, 50), geomath.Pose{})
	over := s.Score(newTestCandidate("b", 20, 0, 1.7, 50), geomath.Pose{})
	if math.Abs(full-over) > 1e-9 {
		t.Errorf("area sub-score must cap at 1: full=%v over=%v", full, over)
	}
}

func TestScorePitchBoostsHeightWeight(t *testing.T) {
	s := NewScorer(config.EmptyTuningConfig())
	flat := geomath.Pose{PitchDeg: 0}
	up := geomath.Pose{PitchDeg: 45}

	tall := newTestCandidate("tall", 40, 10, 0.5, 200)
	short := newTestCandidate("short", 40, 10, 0.5, 10)

	flatGap := s.Score(tall, flat) - s.Score(short, flat)
	upGap := s.Score(tall, up) - s.Score(short, up)
	if upGap <= flatGap {
		t.Errorf("looking up must widen the tall-building advantage: flat gap %v, up gap %v", flatGap, upGap)
	}

	// Hand-computed pitch branch: weights become 1/3, 0.25, 1/6, 0.25.
	// distance 30 -> 0.367879, dev 0 -> 1, fraction 1, height 0.5:
	// 100*(0.367879/3 + 0.25 + 1/6 + 0.125) = 66.4293
	c := newTestCandidate("a", 30, 0, 1, 100)
	got := s.Score(c, up)
	if math.Abs(got-66.4293) > 0.01 {
		t.Errorf("pitched score = %v, want 66.4293", got)
	}
}

func TestScoreWeightsAlwaysSumToOne(t *testing.T) {
	s := NewScorer(config.EmptyTuningConfig())
	for _, pitch := range []float64{0, 15, 29.9, 30, 45, 90, -45} {
		wd, wb, wa, wh := s.weights(pitch)
		if math.Abs(wd+wb+wa+wh-1.0) > 1e-9 {
			t.Errorf("weights at pitch %v sum to %v, want 1", pitch, wd+wb+wa+wh)
		}
	}
}

func TestRankCandidatesDeterministicTieBreak(t *testing.T) {
	s := NewScorer(config.EmptyTuningConfig())
	pose := geomath.Pose{}

	// Identical geometry, different ids: order must be lexicographic.
	a := newTestCandidate("zeta", 20, 5, 0.5, 50)
	b := newTestCandidate("alpha", 20, 5, 0.5, 50)
	ranked := s.RankCandidates([]*ScoredCandidate{a, b}, pose)
	if ranked[0].Building.BuildingID != "alpha" {
		t.Errorf("tie break order = [%s, %s], want alpha first",
			ranked[0].Building.BuildingID, ranked[1].Building.BuildingID)
	}
}
