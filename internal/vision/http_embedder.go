package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sightline-data/buildsight/internal/httputil"
)

// HTTPEmbedder calls an embedding model served over HTTP on localhost
// (or wherever EndpointURL points). The server accepts raw image bytes
// and answers {"vector": [...]}.
type HTTPEmbedder struct {
	EndpointURL string
	Client      httputil.HTTPClient
}

// NewHTTPEmbedder creates an embedder against the given endpoint.
func NewHTTPEmbedder(endpointURL string, client httputil.HTTPClient) *HTTPEmbedder {
	if client == nil {
		client = httputil.NewStandardClient(nil)
	}
	return &HTTPEmbedder{EndpointURL: endpointURL, Client: client}
}

type embedResponse struct {
	Vector []float64 `json:"vector"`
}

// Embed sends the image to the model server and returns its vector.
func (e *HTTPEmbedder) Embed(ctx context.Context, image []byte) ([]float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.EndpointURL, bytes.NewReader(image))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := e.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding model request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embedding model returned %d: %s", resp.StatusCode, body)
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(parsed.Vector) == 0 {
		return nil, ErrEmptyVector
	}
	return parsed.Vector, nil
}
