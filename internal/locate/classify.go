package locate

import "github.com/sightline-data/buildsight/internal/config"

// OutcomeState is the four-way classification of a ranked candidate list.
type OutcomeState string

const (
	// StateNone indicates no candidates after retries were exhausted.
	StateNone OutcomeState = "none"
	// StateSingle indicates geometry alone produced exactly one candidate.
	StateSingle OutcomeState = "single"
	// StateClearWinner indicates the top candidate leads by a safe margin.
	StateClearWinner OutcomeState = "clear_winner"
	// StateAmbiguous indicates the top candidates are too close to call
	// without visual evidence.
	StateAmbiguous OutcomeState = "ambiguous"
)

// Method tags recorded on each returned match.
const (
	MethodGeometryUnique   = "geometry-unique"
	MethodGeometryWinner   = "geometry-winner"
	MethodGeometryScore    = "geometry-score"
	MethodGeometryDegraded = "geometry-degraded"
	MethodVisual           = "visual-disambiguation"
)

// SingleCandidateConfidence is the fixed confidence reported when
// geometry produces exactly one candidate.
const SingleCandidateConfidence = 95.0

// Classification is a tagged variant: only the fields belonging to its
// state are populated. Winner is set for StateSingle and
// StateClearWinner; Contenders only for StateAmbiguous.
type Classification struct {
	State      OutcomeState
	Winner     *ScoredCandidate
	Contenders []*ScoredCandidate
}

// Classify evaluates a ranked candidate list into one of the four
// outcome states. Deterministic: identical inputs yield identical
// classifications. Inputs must already be ordered best first.
func Classify(ranked []*ScoredCandidate, cfg *config.TuningConfig) Classification {
	switch {
	case len(ranked) == 0:
		return Classification{State: StateNone}
	case len(ranked) == 1:
		return Classification{State: StateSingle, Winner: ranked[0]}
	}

	top, second := ranked[0], ranked[1]
	gap := top.Score - second.Score

	// A comfortable score lead, or a runner-up too far away to be what
	// the user is looking at, settles it without visual work.
	if gap >= cfg.GetAmbiguityScoreGap() || second.DistanceM > cfg.GetCloseDistanceM() {
		return Classification{State: StateClearWinner, Winner: top}
	}

	k := cfg.GetVisualTopK()
	if k > len(ranked) {
		k = len(ranked)
	}
	// Only contenders inside the ambiguity window go to the visual
	// stage; padding with clearly-losing candidates wastes paid fetches.
	contenders := []*ScoredCandidate{top}
	for _, c := range ranked[1:k] {
		if top.Score-c.Score < cfg.GetAmbiguityScoreGap() && c.DistanceM <= cfg.GetCloseDistanceM() {
			contenders = append(contenders, c)
		}
	}
	return Classification{State: StateAmbiguous, Contenders: contenders}
}
