// Command precache computes authoritative embeddings for every building
// and viewpoint bucket ahead of time, so live requests rarely pay for an
// on-demand imagery fetch.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math"
	"os/signal"
	"syscall"
	"time"

	"github.com/paulmach/orb/geo"
	"golang.org/x/sync/errgroup"

	"github.com/sightline-data/buildsight/internal/embedcache"
	"github.com/sightline-data/buildsight/internal/footprint"
	"github.com/sightline-data/buildsight/internal/imagery"
	"github.com/sightline-data/buildsight/internal/locate"
	"github.com/sightline-data/buildsight/internal/vision"
)

var (
	footprintsPath = flag.String("footprints", "footprints.geojson", "Path to the footprint GeoJSON dataset")
	cachePath      = flag.String("cache", "embeddings.db", "Path to the embedding cache database")
	embedderURL    = flag.String("embedder", "http://localhost:8090/embed", "Embedding model endpoint")
	imageryURL     = flag.String("imagery-url", "", "Street-level imagery provider base URL")
	imageryKey     = flag.String("imagery-key", "", "Imagery provider API key")
	standoffM      = flag.Float64("standoff", 40, "Viewpoint distance from the building centroid in meters")
	concurrency    = flag.Int("concurrency", 4, "Concurrent fetch+embed workers")
	fetchTimeout   = flag.Duration("fetch-timeout", 10*time.Second, "Per-image fetch and embed budget")
	force          = flag.Bool("force", false, "Recompute embeddings that are already cached")
)

type job struct {
	f      *footprint.Footprint
	bucket int
}

func main() {
	flag.Parse()

	if *imageryURL == "" {
		log.Fatal("Imagery provider URL is required")
	}

	store := footprint.NewStore()
	n, err := footprint.LoadGeoJSON(store, *footprintsPath)
	if err != nil {
		log.Fatalf("Failed to load footprints: %v", err)
	}
	log.Printf("loaded %d footprints from %s", n, *footprintsPath)

	cache, err := embedcache.Open(*cachePath)
	if err != nil {
		log.Fatalf("Failed to open embedding cache: %v", err)
	}
	defer cache.Close()

	provider := imagery.NewStaticAPIClient(*imageryURL, *imageryKey, nil)
	embedder := vision.NewHTTPEmbedder(*embedderURL, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jobs := make(chan job)
	go func() {
		defer close(jobs)
		store.Each(func(f *footprint.Footprint) {
			for bucket := 0; bucket < locate.NumViewpointBuckets; bucket++ {
				select {
				case jobs <- job{f: f, bucket: bucket}:
				case <-ctx.Done():
					return
				}
			}
		})
	}()

	var done, skipped, failed int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(*concurrency)

	results := make(chan error)
	go func() {
		for j := range jobs {
			j := j
			g.Go(func() error {
				err := precacheOne(gctx, cache, provider, embedder, j)
				select {
				case results <- err:
				case <-gctx.Done():
				}
				return nil
			})
		}
		g.Wait()
		close(results)
	}()

	for err := range results {
		switch {
		case err == nil:
			done++
		case errors.Is(err, errAlreadyCached):
			skipped++
		default:
			failed++
			log.Printf("precache: %v", err)
		}
	}

	log.Printf("precache complete: %d computed, %d already cached, %d failed", done, skipped, failed)
}

var errAlreadyCached = errors.New("already cached")

// precacheOne fetches one reference image for a (building, bucket) pair
// and stores its embedding under the authoritative source.
func precacheOne(ctx context.Context, cache *embedcache.Cache, provider imagery.Provider, embedder vision.Embedder, j job) error {
	if !*force {
		if _, err := cache.GetEmbedding(ctx, j.f.BuildingID, j.bucket, embedcache.SourceAuthoritative); err == nil {
			return errAlreadyCached
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, *fetchTimeout)
	defer cancel()

	// The viewpoint sits on the bucket's centre bearing, looking back at
	// the centroid.
	bearing := float64(j.bucket) * (360.0 / locate.NumViewpointBuckets)
	viewer := geo.PointAtBearingAndDistance(j.f.Centroid, bearing, *standoffM)
	heading := math.Mod(bearing+180, 360)

	img, err := provider.FetchImage(fetchCtx, viewer[1], viewer[0], heading)
	if err != nil {
		return fmt.Errorf("fetch %s/%d: %w", j.f.BuildingID, j.bucket, err)
	}
	vec, err := embedder.Embed(fetchCtx, img)
	if err != nil {
		return fmt.Errorf("embed %s/%d: %w", j.f.BuildingID, j.bucket, err)
	}

	return cache.PutEmbedding(ctx, embedcache.CachedEmbedding{
		BuildingID: j.f.BuildingID,
		Bucket:     j.bucket,
		Source:     embedcache.SourceAuthoritative,
		Vector:     vec,
	})
}
