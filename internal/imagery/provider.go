// Package imagery fetches reference photographs of buildings from an
// external street-level imagery provider. The provider bills per call,
// so the engine only reaches for it as the last tier of the embedding
// fallback chain.
package imagery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/sightline-data/buildsight/internal/httputil"
)

// ErrNoImage is returned when the provider has no imagery for the
// requested viewpoint.
var ErrNoImage = errors.New("imagery: no image available")

// Provider returns a single reference image shot from (lat, lng) facing
// the given compass heading. Implementations must honour ctx deadlines;
// the caller budgets each fetch tightly.
type Provider interface {
	FetchImage(ctx context.Context, lat, lng, headingDeg float64) ([]byte, error)
}

// StaticAPIClient fetches imagery from a static street-view style HTTP
// endpoint. The endpoint is queried as
//
//	GET {BaseURL}?lat=..&lng=..&heading=..&key=..
//
// and answers with raw image bytes.
type StaticAPIClient struct {
	BaseURL string
	APIKey  string
	Client  httputil.HTTPClient
}

// NewStaticAPIClient creates a provider client.
func NewStaticAPIClient(baseURL, apiKey string, client httputil.HTTPClient) *StaticAPIClient {
	if client == nil {
		client = httputil.NewStandardClient(nil)
	}
	return &StaticAPIClient{BaseURL: baseURL, APIKey: apiKey, Client: client}
}

// FetchImage requests one image for the given viewpoint.
func (c *StaticAPIClient) FetchImage(ctx context.Context, lat, lng, headingDeg float64) ([]byte, error) {
	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%.7f", lat))
	q.Set("lng", fmt.Sprintf("%.7f", lng))
	q.Set("heading", fmt.Sprintf("%.1f", headingDeg))
	if c.APIKey != "" {
		q.Set("key", c.APIKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build imagery request: %w", err)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("imagery provider request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNoImage
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("imagery provider returned %d", resp.StatusCode)
	}

	img, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read imagery response: %w", err)
	}
	if len(img) == 0 {
		return nil, ErrNoImage
	}
	return img, nil
}
