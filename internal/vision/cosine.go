package vision

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
)

// ErrVectorMismatch is returned when two vectors cannot be compared.
var ErrVectorMismatch = errors.New("vision: vectors empty or of different length")

// CosineSimilarity returns the cosine of the angle between two feature
// vectors, in [-1, 1]. Embedding vectors are non-negative-normish in
// practice, so comparable images land near 1.
func CosineSimilarity(a, b []float64) (float64, error) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, ErrVectorMismatch
	}

	dot := floats.Dot(a, b)
	normA := floats.Norm(a, 2)
	normB := floats.Norm(b, 2)
	if normA == 0 || normB == 0 {
		return 0, ErrVectorMismatch
	}

	sim := dot / (normA * normB)
	// Clamp float error so callers can rely on the documented range.
	return math.Max(-1, math.Min(1, sim)), nil
}
