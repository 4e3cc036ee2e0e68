// Package vision wraps the visual embedding model. The model itself is
// a black box consumed over a local HTTP endpoint: image bytes in, a
// fixed-length feature vector out.
package vision

import (
	"context"
	"errors"
)

// ErrEmptyVector is returned when the model produces no usable vector.
var ErrEmptyVector = errors.New("vision: model returned empty vector")

// Embedder turns image bytes into a fixed-length feature vector. The
// model is loaded once at process start; Embed is synchronous and safe
// for concurrent use.
type Embedder interface {
	Embed(ctx context.Context, image []byte) ([]float64, error)
}
