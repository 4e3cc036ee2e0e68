package locate

import (
	"context"
	"errors"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"github.com/sightline-data/buildsight/internal/embedcache"
	"github.com/sightline-data/buildsight/internal/geomath"
	"github.com/sightline-data/buildsight/internal/imagery"
	"github.com/sightline-data/buildsight/internal/monitoring"
	"github.com/sightline-data/buildsight/internal/vision"
)

// ResolveRequest identifies the viewpoint a reference vector is needed
// for: one candidate building as seen from the viewer's position.
type ResolveRequest struct {
	Building   *ScoredCandidate
	Bucket     int
	Viewer     orb.Point
	HeadingDeg float64 // viewer-to-centroid camera heading
}

// EmbeddingSource is one tier of the reference-vector fallback chain.
// found=false with a nil error means "no data here, try the next tier";
// an error is logged by the caller and likewise falls through.
type EmbeddingSource interface {
	Name() string
	Resolve(ctx context.Context, req ResolveRequest) (vec []float64, found bool, err error)
}

// cacheSource serves tiers 1 and 2: embeddings already present in the
// cache under a given provenance tag.
type cacheSource struct {
	cache  *embedcache.Cache
	source embedcache.Source
}

func (s *cacheSource) Name() string { return "cache-" + string(s.source) }

func (s *cacheSource) Resolve(ctx context.Context, req ResolveRequest) ([]float64, bool, error) {
	e, err := s.cache.GetEmbedding(ctx, req.Building.Building.BuildingID, req.Bucket, s.source)
	if errors.Is(err, embedcache.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return e.Vector, true, nil
}

// fetchSource is tier 3: fetch one reference image from the imagery
// provider, embed it, and backfill the cache so the next request for
// this viewpoint is free.
type fetchSource struct {
	provider imagery.Provider
	embedder vision.Embedder
	cache    *embedcache.Cache
	timeout  time.Duration
}

func (s *fetchSource) Name() string { return "on-demand-fetch" }

func (s *fetchSource) Resolve(ctx context.Context, req ResolveRequest) ([]float64, bool, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	img, err := s.provider.FetchImage(fetchCtx, req.Viewer[1], req.Viewer[0], req.HeadingDeg)
	if errors.Is(err, imagery.ErrNoImage) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	vec, err := s.embedder.Embed(ctx, img)
	if err != nil {
		return nil, false, err
	}

	// Backfill failure is logged, never fatal: the vector is already in
	// hand and the response must not depend on the write.
	if err := s.cache.PutEmbedding(ctx, embedcache.CachedEmbedding{
		BuildingID: req.Building.Building.BuildingID,
		Bucket:     req.Bucket,
		Source:     embedcache.SourceAuthoritative,
		Vector:     vec,
	}); err != nil {
		monitoring.Logf("locate: cache backfill for %s/%d failed: %v",
			req.Building.Building.BuildingID, req.Bucket, err)
	}

	return vec, true, nil
}

// VisualMatch is one candidate after the visual stage: either re-ranked
// by similarity or excluded back to its geometric score.
type VisualMatch struct {
	Candidate  *ScoredCandidate
	Similarity float64
	Resolved   bool   // a reference vector was obtained and compared
	SourceName string // which tier produced the vector
}

// Disambiguator resolves reference vectors through an ordered tier list
// and re-ranks ambiguous candidates by visual similarity.
type Disambiguator struct {
	Sources []EmbeddingSource
}

// NewDisambiguator builds the standard three-tier chain: authoritative
// cache, community cache, on-demand fetch. New tiers slot into the list
// without touching existing ones. A nil provider or embedder leaves the
// fetch tier out, so cache-only deployments degrade to misses instead of
// dereferencing a nil client mid-request.
func NewDisambiguator(cache *embedcache.Cache, provider imagery.Provider, embedder vision.Embedder, fetchTimeout time.Duration) *Disambiguator {
	sources := []EmbeddingSource{
		&cacheSource{cache: cache, source: embedcache.SourceAuthoritative},
		&cacheSource{cache: cache, source: embedcache.SourceCommunity},
	}
	if provider != nil && embedder != nil {
		sources = append(sources, &fetchSource{provider: provider, embedder: embedder, cache: cache, timeout: fetchTimeout})
	}
	return &Disambiguator{Sources: sources}
}

// resolveVector walks the tier list and returns the first hit.
func (d *Disambiguator) resolveVector(ctx context.Context, req ResolveRequest) ([]float64, string, bool) {
	for _, src := range d.Sources {
		vec, found, err := src.Resolve(ctx, req)
		if err != nil {
			monitoring.Logf("locate: %s failed for %s/%d: %v",
				src.Name(), req.Building.Building.BuildingID, req.Bucket, err)
			continue
		}
		if found {
			return vec, src.Name(), true
		}
	}
	return nil, "", false
}

// Rerank resolves a reference vector for every contender in parallel
// (bounded by the contender count, i.e. the classifier's top-K) and
// orders them by cosine similarity to the user's photo vector.
// Contenders whose vector could not be resolved keep their geometric
// score and sort behind every visually-compared contender.
func (d *Disambiguator) Rerank(ctx context.Context, pose geomath.Pose, userVec []float64, contenders []*ScoredCandidate) []VisualMatch {
	viewer := pose.Point()
	matches := make([]VisualMatch, len(contenders))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(contenders))
	for i, c := range contenders {
		g.Go(func() error {
			req := ResolveRequest{
				Building:   c,
				Bucket:     ViewpointBucket(c.Building.Centroid, viewer),
				Viewer:     viewer,
				HeadingDeg: geomath.NormalizeBearing(geo.Bearing(viewer, c.Building.Centroid)),
			}
			matches[i] = VisualMatch{Candidate: c}

			vec, sourceName, ok := d.resolveVector(gctx, req)
			if !ok {
				return nil
			}
			sim, err := vision.CosineSimilarity(userVec, vec)
			if err != nil {
				monitoring.Logf("locate: similarity for %s failed: %v", c.Building.BuildingID, err)
				return nil
			}
			matches[i] = VisualMatch{Candidate: c, Similarity: sim, Resolved: true, SourceName: sourceName}
			return nil
		})
	}
	g.Wait() // workers only log, never abort the group

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Resolved != matches[j].Resolved {
			return matches[i].Resolved
		}
		if matches[i].Resolved {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Candidate.Score > matches[j].Candidate.Score
	})
	return matches
}

// VisualConfidence converts the top similarity and its gap to the
// runner-up into a 0-100 confidence. A narrow gap caps confidence even
// when absolute similarity is high.
func VisualConfidence(topSim, gap float64) float64 {
	if topSim < 0 {
		topSim = 0
	}
	gapFactor := gap / 0.10
	if gapFactor > 1 {
		gapFactor = 1
	}
	if gapFactor < 0 {
		gapFactor = 0
	}
	conf := 100 * topSim * (0.5 + 0.5*gapFactor)
	if conf > 100 {
		conf = 100
	}
	return conf
}
