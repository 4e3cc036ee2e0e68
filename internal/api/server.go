package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/sightline-data/buildsight/internal/config"
	"github.com/sightline-data/buildsight/internal/footprint"
	"github.com/sightline-data/buildsight/internal/locate"
	"github.com/sightline-data/buildsight/internal/monitoring"
	"github.com/sightline-data/buildsight/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	engine *locate.Engine
	cfg    *config.TuningConfig
	store  *footprint.Store
}

func NewServer(engine *locate.Engine, cfg *config.TuningConfig, store *footprint.Store) *Server {
	return &Server{
		engine: engine,
		cfg:    cfg,
		store:  store,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	default:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	}
}

// LoggingMiddleware logs method, path, status, and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/identify", s.identifyHandler)
	mux.HandleFunc("/api/buildings/", s.showBuilding)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/healthz", s.healthz)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":     "ok",
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"footprints": s.store.Len(),
	})
}

func (s *Server) showBuilding(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	id := r.URL.Path[len("/api/buildings/"):]
	if id == "" {
		s.writeJSONError(w, http.StatusBadRequest, "Missing building id")
		return
	}

	f := s.store.Get(id)
	if f == nil {
		s.writeJSONError(w, http.StatusNotFound, "Unknown building id")
		return
	}

	if err := json.NewEncoder(w).Encode(f); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write building")
		return
	}
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	// Effective values, defaults filled in, not the raw file contents.
	out := map[string]interface{}{
		"max_scan_distance_m":   s.cfg.GetMaxScanDistanceM(),
		"cone_half_angle_deg":   s.cfg.GetConeHalfAngleDeg(),
		"cone_arc_steps":        s.cfg.GetConeArcSteps(),
		"retry_attempts":        s.cfg.GetRetryAttempts(),
		"retry_widen_factor":    s.cfg.GetRetryWidenFactor(),
		"distance_decay_m":      s.cfg.GetDistanceDecayM(),
		"height_cap":            s.cfg.GetHeightCap(),
		"pitch_threshold_deg":   s.cfg.GetPitchThresholdDeg(),
		"height_weight_high":    s.cfg.GetHeightWeightHigh(),
		"ambiguity_score_gap":   s.cfg.GetAmbiguityScoreGap(),
		"close_distance_m":      s.cfg.GetCloseDistanceM(),
		"visual_top_k":          s.cfg.GetVisualTopK(),
		"imagery_fetch_timeout": s.cfg.GetImageryFetchTimeout().String(),
	}

	if err := json.NewEncoder(w).Encode(out); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write config")
		return
	}
}
