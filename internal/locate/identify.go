package locate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sightline-data/buildsight/internal/config"
	"github.com/sightline-data/buildsight/internal/embedcache"
	"github.com/sightline-data/buildsight/internal/footprint"
	"github.com/sightline-data/buildsight/internal/geomath"
	"github.com/sightline-data/buildsight/internal/imagery"
	"github.com/sightline-data/buildsight/internal/monitoring"
	"github.com/sightline-data/buildsight/internal/vision"
)

// ErrNoPhoto is reported internally when a request carries no photo and
// the ambiguous path needs one.
var ErrNoPhoto = errors.New("locate: no photo supplied")

// InvalidPoseError rejects a request before any spatial lookup.
type InvalidPoseError struct {
	Issues []string
}

func (e *InvalidPoseError) Error() string {
	return "invalid pose: " + strings.Join(e.Issues, "; ")
}

// Engine composes the cone builder, footprint store, scorer, classifier,
// and visual disambiguator into the end-to-end identification flow. An
// Engine is stateless across requests and safe for concurrent use.
type Engine struct {
	cfg           *config.TuningConfig
	store         *footprint.Store
	embedder      vision.Embedder
	scorer        *Scorer
	disambiguator *Disambiguator
}

// NewEngine wires an engine with the standard three-tier embedding chain.
func NewEngine(cfg *config.TuningConfig, store *footprint.Store, cache *embedcache.Cache, provider imagery.Provider, embedder vision.Embedder) *Engine {
	return &Engine{
		cfg:           cfg,
		store:         store,
		embedder:      embedder,
		scorer:        NewScorer(cfg),
		disambiguator: NewDisambiguator(cache, provider, embedder, cfg.GetImageryFetchTimeout()),
	}
}

// NewEngineWithDisambiguator wires an engine around a caller-supplied
// disambiguator. Used by tests and by callers adding extra tiers.
func NewEngineWithDisambiguator(cfg *config.TuningConfig, store *footprint.Store, embedder vision.Embedder, d *Disambiguator) *Engine {
	return &Engine{
		cfg:           cfg,
		store:         store,
		embedder:      embedder,
		scorer:        NewScorer(cfg),
		disambiguator: d,
	}
}

type embedOutcome struct {
	vec []float64
	err error
}

// Identify answers "which building is the user looking at" for one pose
// and photo. Synchronous for the caller; internally the photo embedding
// runs concurrently with the spatial work, and the visual stage fans out
// per contender. The geometric early-exit states return before any
// external network call is made.
func (e *Engine) Identify(ctx context.Context, pose geomath.Pose, photo []byte) (*IdentificationResult, error) {
	start := time.Now()

	if v := geomath.ValidatePose(pose); !v.Valid {
		return nil, &InvalidPoseError{Issues: v.Issues}
	}

	result := &IdentificationResult{RequestID: uuid.NewString()}

	// The user photo embedding has no data dependency on the spatial
	// lookup, so it starts immediately. The channel is buffered: if the
	// classifier short-circuits, the goroutine still completes and exits.
	embedCh := make(chan embedOutcome, 1)
	go func() {
		if len(photo) == 0 {
			embedCh <- embedOutcome{err: ErrNoPhoto}
			return
		}
		if e.embedder == nil {
			embedCh <- embedOutcome{err: errors.New("locate: no embedder configured")}
			return
		}
		vec, err := e.embedder.Embed(ctx, photo)
		embedCh <- embedOutcome{vec: vec, err: err}
	}()

	queryStart := time.Now()
	matches, attempts, err := e.queryWithWidening(pose)
	result.Timings.QueryMs = msSince(queryStart)
	result.Attempts = attempts
	if err != nil {
		// Index unavailable is fatal for the request: wrong buildings
		// are worse than a loud failure.
		return nil, fmt.Errorf("footprint query: %w", err)
	}

	scoreStart := time.Now()
	cands := make([]*ScoredCandidate, len(matches))
	for i, m := range matches {
		cands[i] = NewCandidate(m, pose)
	}
	ranked := e.scorer.RankCandidates(cands, pose)
	classification := Classify(ranked, e.cfg)
	result.State = classification.State
	result.Timings.ScoreMs = msSince(scoreStart)

	switch classification.State {
	case StateNone:
		result.Matches = []RankedBuilding{}

	case StateSingle:
		result.Matches = []RankedBuilding{{
			BuildingID: classification.Winner.Building.BuildingID,
			Confidence: SingleCandidateConfidence,
			Method:     MethodGeometryUnique,
		}}

	case StateClearWinner:
		result.Matches = geometricMatches(ranked, MethodGeometryWinner)

	case StateAmbiguous:
		disStart := time.Now()
		e.resolveAmbiguous(ctx, pose, classification, ranked, embedCh, result)
		result.Timings.DisambiguateMs = msSince(disStart)
	}

	result.Timings.TotalMs = msSince(start)
	monitoring.Logf("locate: request %s state=%s candidates=%d attempts=%d total=%.1fms",
		result.RequestID, result.State, len(ranked), attempts, result.Timings.TotalMs)
	return result, nil
}

// queryWithWidening runs the cone query, widening the scan distance a
// bounded number of times when nothing intersects. An empty result after
// the final attempt is a valid outcome, not an error.
func (e *Engine) queryWithWidening(pose geomath.Pose) ([]footprint.Candidate, int, error) {
	distance := e.cfg.GetMaxScanDistanceM()
	halfAngle := e.cfg.GetConeHalfAngleDeg()
	steps := e.cfg.GetConeArcSteps()
	maxAttempts := 1 + e.cfg.GetRetryAttempts()

	for attempt := 1; ; attempt++ {
		cone := geomath.ViewCone(pose, distance, halfAngle, steps)
		matches, err := e.store.Query(cone)
		if err != nil {
			return nil, attempt, err
		}
		if len(matches) > 0 || attempt >= maxAttempts {
			return matches, attempt, nil
		}
		distance *= e.cfg.GetRetryWidenFactor()
		monitoring.Logf("locate: no candidates, widening scan to %.0fm (attempt %d/%d)",
			distance, attempt+1, maxAttempts)
	}
}

// resolveAmbiguous runs the visual stage for the classifier's contender
// subset. If the user's photo cannot be embedded the visual stage is
// skipped entirely and the best geometric candidate is returned with
// reduced confidence and the degraded flag set.
func (e *Engine) resolveAmbiguous(ctx context.Context, pose geomath.Pose, cls Classification, ranked []*ScoredCandidate, embedCh <-chan embedOutcome, result *IdentificationResult) {
	var userVec []float64
	select {
	case out := <-embedCh:
		if out.err != nil {
			monitoring.Logf("locate: photo embedding unavailable, degrading to geometry: %v", out.err)
		} else {
			userVec = out.vec
		}
	case <-ctx.Done():
	}

	if userVec == nil {
		result.Degraded = true
		result.Matches = geometricMatches(ranked, MethodGeometryDegraded)
		if len(result.Matches) > 0 {
			result.Matches[0].Confidence *= 0.75 // geometry said ambiguous; don't oversell it
		}
		return
	}

	visual := e.disambiguator.Rerank(ctx, pose, userVec, cls.Contenders)

	anyResolved := false
	prevConf := 0.0
	matches := make([]RankedBuilding, 0, len(ranked))
	for i, vm := range visual {
		if !vm.Resolved {
			// Excluded from visual comparison; geometric score only.
			matches = append(matches, RankedBuilding{
				BuildingID: vm.Candidate.Building.BuildingID,
				Confidence: vm.Candidate.Score,
				Method:     MethodGeometryScore,
			})
			continue
		}
		anyResolved = true
		var conf float64
		if i == 0 {
			gap := vm.Similarity
			if len(visual) > 1 && visual[1].Resolved {
				gap = vm.Similarity - visual[1].Similarity
			}
			conf = VisualConfidence(vm.Similarity, gap)
		} else {
			// Confidences stay non-increasing down the list: a runner-up
			// must never read as more certain than the damped winner.
			conf = math.Min(vm.Similarity*100, prevConf)
		}
		if conf < 0 {
			conf = 0
		}
		prevConf = conf
		matches = append(matches, RankedBuilding{
			BuildingID: vm.Candidate.Building.BuildingID,
			Confidence: conf,
			Method:     MethodVisual,
			Similarity: vm.Similarity,
		})
	}

	if !anyResolved {
		// Every tier failed for every contender: the request still
		// completes on geometry alone.
		result.Degraded = true
		result.Matches = geometricMatches(ranked, MethodGeometryDegraded)
		if len(result.Matches) > 0 {
			result.Matches[0].Confidence *= 0.75
		}
		return
	}

	// Non-contender candidates trail the visual results untouched.
	inVisual := make(map[string]bool, len(visual))
	for _, vm := range visual {
		inVisual[vm.Candidate.Building.BuildingID] = true
	}
	for _, c := range ranked {
		if !inVisual[c.Building.BuildingID] {
			matches = append(matches, RankedBuilding{
				BuildingID: c.Building.BuildingID,
				Confidence: c.Score,
				Method:     MethodGeometryScore,
			})
		}
	}
	result.Matches = matches
}

// geometricMatches renders a ranked candidate list as the response,
// tagging the top entry with the given method.
func geometricMatches(ranked []*ScoredCandidate, topMethod string) []RankedBuilding {
	out := make([]RankedBuilding, len(ranked))
	for i, c := range ranked {
		method := MethodGeometryScore
		if i == 0 {
			method = topMethod
		}
		out[i] = RankedBuilding{
			BuildingID: c.Building.BuildingID,
			Confidence: c.Score,
			Method:     method,
		}
	}
	return out
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Nanoseconds()) / 1e6
}
