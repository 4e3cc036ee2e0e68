// Package embedcache persists visual embeddings keyed by building and
// viewpoint bucket, plus the registry of community-contributed images
// that feed the community tier. Backed by sqlite; rows are only added or
// superseded, never mutated in place.
package embedcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no cached row matches a lookup.
var ErrNotFound = errors.New("embedcache: not found")

// Source tags the provenance of a cached embedding.
type Source string

const (
	// SourceAuthoritative marks embeddings computed from provider imagery.
	SourceAuthoritative Source = "authoritative"
	// SourceCommunity marks embeddings computed from community photos.
	SourceCommunity Source = "community"
)

// CachedEmbedding is one stored feature vector for a (building, bucket,
// source) key.
type CachedEmbedding struct {
	BuildingID  string
	Bucket      int
	Source      Source
	Vector      []float64
	CreatedUnix int64
}

// CommunityImage is one community-contributed photo of a building,
// recorded before (and independently of) its embedding.
type CommunityImage struct {
	ID          int64
	BuildingID  string
	Bucket      int
	ImageURL    string
	Contributor string
	CreatedUnix int64
}

// Cache is a sqlite-backed embedding store. Reads vastly outnumber
// writes; writes are idempotent upserts so concurrent requests filling
// the same gap cannot corrupt or duplicate rows.
type Cache struct {
	*sql.DB
}

// Open opens (creating if needed) the cache database at path and runs
// pending schema migrations.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open embedding cache: %w", err)
	}
	// sqlite allows one writer; a small busy timeout smooths concurrent
	// tier-3 backfills instead of surfacing SQLITE_BUSY.
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000; PRAGMA journal_mode = WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure embedding cache: %w", err)
	}

	c := &Cache{db}
	if err := c.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// PutEmbedding upserts an embedding keyed by (building, bucket, source).
// Later writes supersede earlier ones for the same key.
func (c *Cache) PutEmbedding(ctx context.Context, e CachedEmbedding) error {
	if len(e.Vector) == 0 {
		return fmt.Errorf("embedcache: refusing to store empty vector for %s", e.BuildingID)
	}
	created := e.CreatedUnix
	if created == 0 {
		created = time.Now().Unix()
	}

	_, err := c.ExecContext(ctx, `
		INSERT INTO cached_embeddings (building_id, bucket, source, vector, created_unix)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(building_id, bucket, source) DO UPDATE SET
			vector = excluded.vector,
			created_unix = excluded.created_unix`,
		e.BuildingID, e.Bucket, string(e.Source), encodeVector(e.Vector), created,
	)
	if err != nil {
		return fmt.Errorf("upsert embedding %s/%d/%s: %w", e.BuildingID, e.Bucket, e.Source, err)
	}
	return nil
}

// GetEmbedding returns the embedding for the exact (building, bucket,
// source) key, or ErrNotFound.
func (c *Cache) GetEmbedding(ctx context.Context, buildingID string, bucket int, source Source) (*CachedEmbedding, error) {
	row := c.QueryRowContext(ctx, `
		SELECT vector, created_unix FROM cached_embeddings
		WHERE building_id = ? AND bucket = ? AND source = ?`,
		buildingID, bucket, string(source),
	)

	var blob []byte
	var created int64
	if err := row.Scan(&blob, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read embedding %s/%d/%s: %w", buildingID, bucket, source, err)
	}

	vec, err := decodeVector(blob)
	if err != nil {
		return nil, fmt.Errorf("decode embedding %s/%d/%s: %w", buildingID, bucket, source, err)
	}
	return &CachedEmbedding{
		BuildingID:  buildingID,
		Bucket:      bucket,
		Source:      source,
		Vector:      vec,
		CreatedUnix: created,
	}, nil
}

// RegisterCommunityImage records a contributed photo for later embedding.
func (c *Cache) RegisterCommunityImage(ctx context.Context, img CommunityImage) (int64, error) {
	created := img.CreatedUnix
	if created == 0 {
		created = time.Now().Unix()
	}
	res, err := c.ExecContext(ctx, `
		INSERT INTO community_images (building_id, bucket, image_url, contributor, created_unix)
		VALUES (?, ?, ?, ?, ?)`,
		img.BuildingID, img.Bucket, img.ImageURL, img.Contributor, created,
	)
	if err != nil {
		return 0, fmt.Errorf("register community image for %s: %w", img.BuildingID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("community image insert id: %w", err)
	}
	return id, nil
}

// ListCommunityImages returns contributed photos for a building bucket,
// newest first.
func (c *Cache) ListCommunityImages(ctx context.Context, buildingID string, bucket int) ([]CommunityImage, error) {
	rows, err := c.QueryContext(ctx, `
		SELECT id, image_url, contributor, created_unix FROM community_images
		WHERE building_id = ? AND bucket = ?
		ORDER BY created_unix DESC, id DESC`,
		buildingID, bucket,
	)
	if err != nil {
		return nil, fmt.Errorf("list community images for %s/%d: %w", buildingID, bucket, err)
	}
	defer rows.Close()

	var imgs []CommunityImage
	for rows.Next() {
		img := CommunityImage{BuildingID: buildingID, Bucket: bucket}
		if err := rows.Scan(&img.ID, &img.ImageURL, &img.Contributor, &img.CreatedUnix); err != nil {
			return nil, fmt.Errorf("scan community image: %w", err)
		}
		imgs = append(imgs, img)
	}
	return imgs, rows.Err()
}
