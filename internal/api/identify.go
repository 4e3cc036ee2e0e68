package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/sightline-data/buildsight/internal/footprint"
	"github.com/sightline-data/buildsight/internal/geomath"
	"github.com/sightline-data/buildsight/internal/locate"
)

// maxPhotoBytes bounds the uploaded photo size. Anything larger than a
// few megapixels of JPEG is not a phone camera frame.
const maxPhotoBytes = 16 << 20

type identifyError struct {
	Error  string   `json:"error"`
	Issues []string `json:"issues,omitempty"`
}

// identifyHandler answers "which building am I looking at". The request
// is multipart/form-data: lat, lng, bearing and optional pitch, accuracy
// as form values, plus an optional photo part used only when geometry
// alone cannot decide.
func (s *Server) identifyHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if err := r.ParseMultipartForm(maxPhotoBytes); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid multipart form: %v", err))
		return
	}

	pose, err := poseFromForm(r)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	var photo []byte
	if file, _, ferr := r.FormFile("photo"); ferr == nil {
		defer file.Close()
		photo, err = io.ReadAll(io.LimitReader(file, maxPhotoBytes))
		if err != nil {
			s.writeJSONError(w, http.StatusBadRequest, "Failed to read photo")
			return
		}
	}

	result, err := s.engine.Identify(r.Context(), pose, photo)
	if err != nil {
		var poseErr *locate.InvalidPoseError
		switch {
		case errors.As(err, &poseErr):
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(identifyError{Error: "invalid pose", Issues: poseErr.Issues})
		case errors.Is(err, footprint.ErrIndexUnavailable):
			s.writeJSONError(w, http.StatusServiceUnavailable, "Footprint index not loaded")
		default:
			s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Identification failed: %v", err))
		}
		return
	}

	if err := json.NewEncoder(w).Encode(result); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write result")
		return
	}
}

func poseFromForm(r *http.Request) (geomath.Pose, error) {
	var pose geomath.Pose

	lat, err := requiredFloat(r, "lat")
	if err != nil {
		return pose, err
	}
	lng, err := requiredFloat(r, "lng")
	if err != nil {
		return pose, err
	}
	bearing, err := requiredFloat(r, "bearing")
	if err != nil {
		return pose, err
	}

	pose = geomath.Pose{Latitude: lat, Longitude: lng, BearingDeg: bearing}
	if pose.PitchDeg, err = optionalFloat(r, "pitch", 0); err != nil {
		return pose, err
	}
	if pose.AccuracyM, err = optionalFloat(r, "accuracy", 0); err != nil {
		return pose, err
	}
	return pose, nil
}

func requiredFloat(r *http.Request, key string) (float64, error) {
	raw := r.FormValue(key)
	if raw == "" {
		return 0, fmt.Errorf("missing required field %q", key)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %q: %v", key, err)
	}
	return v, nil
}

func optionalFloat(r *http.Request, key string, def float64) (float64, error) {
	raw := r.FormValue(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %q: %v", key, err)
	}
	return v, nil
}
