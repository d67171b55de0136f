package pagecache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/velofit/framesearch/internal/pipeline"
)

// GCSCache stores pages in a Google Cloud Storage bucket using the same
// {vendor}/{slug} layout as the filesystem cache.
type GCSCache struct {
	client *storage.Client
	bucket string
}

// NewGCS creates a GCS-backed page cache.
func NewGCS(client *storage.Client, bucket string) (*GCSCache, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &GCSCache{client: client, bucket: bucket}, nil
}

func (c *GCSCache) object(vendor pipeline.Vendor, name string) *storage.ObjectHandle {
	return c.client.Bucket(c.bucket).Object(fmt.Sprintf("%s/%s", vendor, name))
}

// Get loads a cached page from the bucket.
func (c *GCSCache) Get(ctx context.Context, vendor pipeline.Vendor, slug string) (pipeline.CachedPage, error) {
	obj := c.object(vendor, slug+htmlSuffix)
	attrs, err := obj.Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return pipeline.CachedPage{}, pipeline.ErrCacheMiss
		}
		return pipeline.CachedPage{}, fmt.Errorf("stat cached html: %w", err)
	}

	html, err := c.read(ctx, obj)
	if err != nil {
		return pipeline.CachedPage{}, fmt.Errorf("read cached html: %w", err)
	}

	page := pipeline.CachedPage{
		Slug:      slug,
		Vendor:    vendor,
		HTML:      html,
		FetchedAt: attrs.Updated,
	}

	companion, err := c.read(ctx, c.object(vendor, slug+companionSuffix))
	if err == nil {
		page.Companion = companion
	} else if !errors.Is(err, storage.ErrObjectNotExist) {
		return pipeline.CachedPage{}, fmt.Errorf("read companion payload: %w", err)
	}

	return page, nil
}

func (c *GCSCache) read(ctx context.Context, obj *storage.ObjectHandle) ([]byte, error) {
	r, err := obj.NewReader(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()
	return io.ReadAll(r)
}

// PutHTML uploads the primary page body.
func (c *GCSCache) PutHTML(ctx context.Context, vendor pipeline.Vendor, slug, _ string, html []byte) error {
	return c.write(ctx, c.object(vendor, slug+htmlSuffix), "text/html; charset=utf-8", html)
}

// PutCompanion uploads the secondary structured payload.
func (c *GCSCache) PutCompanion(ctx context.Context, vendor pipeline.Vendor, slug string, payload []byte) error {
	return c.write(ctx, c.object(vendor, slug+companionSuffix), "application/json", payload)
}

func (c *GCSCache) write(ctx context.Context, obj *storage.ObjectHandle, contentType string, data []byte) error {
	w := obj.NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		closeErr := w.Close()
		if closeErr != nil {
			return fmt.Errorf("write object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("write object: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

// HasHTML reports whether the primary page body exists in the bucket.
func (c *GCSCache) HasHTML(ctx context.Context, vendor pipeline.Vendor, slug string) (bool, error) {
	return c.exists(ctx, c.object(vendor, slug+htmlSuffix))
}

// HasCompanion reports whether the companion payload exists in the bucket.
func (c *GCSCache) HasCompanion(ctx context.Context, vendor pipeline.Vendor, slug string) (bool, error) {
	return c.exists(ctx, c.object(vendor, slug+companionSuffix))
}

func (c *GCSCache) exists(ctx context.Context, obj *storage.ObjectHandle) (bool, error) {
	if _, err := obj.Attrs(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat cache entry: %w", err)
	}
	return true, nil
}

// Slugs lists every slug with a cached HTML body for the vendor, sorted.
func (c *GCSCache) Slugs(ctx context.Context, vendor pipeline.Vendor) ([]string, error) {
	it := c.client.Bucket(c.bucket).Objects(ctx, &storage.Query{Prefix: string(vendor) + "/"})
	var slugs []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list cache objects: %w", err)
		}
		name := strings.TrimPrefix(attrs.Name, string(vendor)+"/")
		if !strings.HasSuffix(name, htmlSuffix) {
			continue
		}
		slugs = append(slugs, strings.TrimSuffix(name, htmlSuffix))
	}
	sort.Strings(slugs)
	return slugs, nil
}
