package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sightline-data/buildsight/internal/api"
	"github.com/sightline-data/buildsight/internal/config"
	"github.com/sightline-data/buildsight/internal/embedcache"
	"github.com/sightline-data/buildsight/internal/footprint"
	"github.com/sightline-data/buildsight/internal/imagery"
	"github.com/sightline-data/buildsight/internal/locate"
	"github.com/sightline-data/buildsight/internal/version"
	"github.com/sightline-data/buildsight/internal/vision"
)

var (
	listen         = flag.String("listen", ":8080", "Listen address")
	footprintsPath = flag.String("footprints", "footprints.geojson", "Path to the footprint GeoJSON dataset")
	cachePath      = flag.String("cache", "embeddings.db", "Path to the embedding cache database")
	configPath     = flag.String("config", "", "Path to a tuning config JSON (defaults used when empty)")
	embedderURL    = flag.String("embedder", "http://localhost:8090/embed", "Embedding model endpoint")
	imageryURL     = flag.String("imagery-url", "", "Street-level imagery provider base URL (tier 3 disabled when empty)")
	imageryKey     = flag.String("imagery-key", "", "Imagery provider API key")
)

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	cfg := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load tuning config: %v", err)
		}
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

	var provider imagery.Provider
	if *imageryURL != "" {
		provider = imagery.NewStaticAPIClient(*imageryURL, *imageryKey, nil)
	}
	embedder := vision.NewHTTPEmbedder(*embedderURL, nil)

	engine := locate.NewEngine(cfg, store, cache, provider, embedder)

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(engine, cfg, store).ServeMux()
		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			log.Printf("buildsight %s (%s) listening on %s", version.Version, version.GitSHA, *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
