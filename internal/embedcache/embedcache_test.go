package embedcache

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "embeddings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestEmbeddingRoundTrip(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	vec := []float64{0.125, -3.5, 1e-9, 42}
	require.NoError(t, c.PutEmbedding(ctx, CachedEmbedding{
		BuildingID: "bldg-7", Bucket: 3, Source: SourceAuthoritative, Vector: vec,
	}))

	got, err := c.GetEmbedding(ctx, "bldg-7", 3, SourceAuthoritative)
	require.NoError(t, err)
	assert.Equal(t, vec, got.Vector, "round-trip must be bit-exact")
	assert.NotZero(t, got.CreatedUnix)
}

func TestGetEmbeddingMisses(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	_, err := c.GetEmbedding(ctx, "unknown", 0, SourceAuthoritative)
	assert.ErrorIs(t, err, ErrNotFound)

	// Same building, different bucket or source also misses.
	require.NoError(t, c.PutEmbedding(ctx, CachedEmbedding{
		BuildingID: "b", Bucket: 1, Source: SourceCommunity, Vector: []float64{1},
	}))
	_, err = c.GetEmbedding(ctx, "b", 2, SourceCommunity)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = c.GetEmbedding(ctx, "b", 1, SourceAuthoritative)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPutEmbeddingSupersedes(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	key := CachedEmbedding{BuildingID: "b", Bucket: 5, Source: SourceAuthoritative}
	key.Vector = []float64{1, 1}
	key.CreatedUnix = 100
	require.NoError(t, c.PutEmbedding(ctx, key))

	key.Vector = []float64{2, 2}
	key.CreatedUnix = 200
	require.NoError(t, c.PutEmbedding(ctx, key))

	got, err := c.GetEmbedding(ctx, "b", 5, SourceAuthoritative)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 2}, got.Vector)
	assert.EqualValues(t, 200, got.CreatedUnix)

	var count int
	require.NoError(t, c.QueryRow(`SELECT COUNT(*) FROM cached_embeddings`).Scan(&count))
	assert.Equal(t, 1, count, "upsert must not duplicate rows")
}

func TestPutEmbeddingRejectsEmptyVector(t *testing.T) {
	c := openTestCache(t)
	err := c.PutEmbedding(context.Background(), CachedEmbedding{BuildingID: "b", Bucket: 1})
	assert.Error(t, err)
}

func TestConcurrentBackfillIsIdempotent(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	// Two requests discovering the same cache gap write concurrently.
	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.PutEmbedding(ctx, CachedEmbedding{
				BuildingID: "contested", Bucket: 2, Source: SourceAuthoritative,
				Vector: []float64{float64(i)},
			})
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		require.NoError(t, err, "writer %d", i)
	}

	var count int
	require.NoError(t, c.QueryRow(
		`SELECT COUNT(*) FROM cached_embeddings WHERE building_id = 'contested'`).Scan(&count))
	assert.Equal(t, 1, count, "concurrent writers must collapse to one row")

	got, err := c.GetEmbedding(ctx, "contested", 2, SourceAuthoritative)
	require.NoError(t, err)
	assert.Len(t, got.Vector, 1, "row must hold one intact vector, not a mix")
}

func TestCommunityImageRegistry(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	id1, err := c.RegisterCommunityImage(ctx, CommunityImage{
		BuildingID: "b", Bucket: 4, ImageURL: "https://photos.test/1.jpg",
		Contributor: "ada", CreatedUnix: 100,
	})
	require.NoError(t, err)
	id2, err := c.RegisterCommunityImage(ctx, CommunityImage{
		BuildingID: "b", Bucket: 4, ImageURL: "https://photos.test/2.jpg",
		Contributor: "grace", CreatedUnix: 200,
	})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	imgs, err := c.ListCommunityImages(ctx, "b", 4)
	require.NoError(t, err)
	require.Len(t, imgs, 2)
	assert.Equal(t, "https://photos.test/2.jpg", imgs[0].ImageURL, "newest first")

	other, err := c.ListCommunityImages(ctx, "b", 5)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestSchemaVersion(t *testing.T) {
	c := openTestCache(t)
	version, dirty, err := c.SchemaVersion()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.EqualValues(t, 1, version)
}

func TestVectorCodec(t *testing.T) {
	in := []float64{0, -0, 1.5, -2.25, 1e300, -1e-300}
	out, err := decodeVector(encodeVector(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
	_, err = decodeVector(nil)
	assert.Error(t, err)
}

func TestOpenTwiceReusesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.db")
	c1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, c1.PutEmbedding(context.Background(), CachedEmbedding{
		BuildingID: "persist", Bucket: 0, Source: SourceCommunity, Vector: []float64{9},
	}))
	require.NoError(t, c1.Close())

	c2, err := Open(path)
	require.NoError(t, err)
	defer c2.Close()

	got, err := c2.GetEmbedding(context.Background(), "persist", 0, SourceCommunity)
	require.NoError(t, err)
	assert.Equal(t, []float64{9}, got.Vector)

	if !errors.Is(func() error {
		_, err := c2.GetEmbedding(context.Background(), "absent", 0, SourceCommunity)
		return err
	}(), ErrNotFound) {
		t.Error("reopened cache should still miss on absent keys")
	}
}
