// Package pagecache implements content-addressed storage for fetched pages.
//
// Entries are keyed by {vendor}/{slug}; the HTML body and the optional
// companion payload are stored and tracked independently.
package pagecache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/velofit/framesearch/internal/pipeline"
)

const (
	htmlSuffix      = ".html"
	companionSuffix = "_companion.json"
)

// FSCache stores pages on the local filesystem under baseDir.
type FSCache struct {
	baseDir string
}

// NewFS creates a filesystem-backed page cache rooted at baseDir.
func NewFS(baseDir string) (*FSCache, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	info, err := os.Stat(baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			if mkErr := os.MkdirAll(baseDir, 0o750); mkErr != nil {
				return nil, fmt.Errorf("create base directory: %w", mkErr)
			}
		} else {
			return nil, fmt.Errorf("stat base directory: %w", err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}
	return &FSCache{baseDir: baseDir}, nil
}

func (c *FSCache) entryPath(vendor pipeline.Vendor, name string) (string, error) {
	full := filepath.Join(c.baseDir, string(vendor), name)
	cleanBase := filepath.Clean(c.baseDir)
	if !strings.HasPrefix(filepath.Clean(full), cleanBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected for %q", name)
	}
	return full, nil
}

// Get loads a cached page. Returns pipeline.ErrCacheMiss when no HTML entry
// exists for the slug.
func (c *FSCache) Get(_ context.Context, vendor pipeline.Vendor, slug string) (pipeline.CachedPage, error) {
	htmlPath, err := c.entryPath(vendor, slug+htmlSuffix)
	if err != nil {
		return pipeline.CachedPage{}, err
	}
	html, err := os.ReadFile(htmlPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return pipeline.CachedPage{}, pipeline.ErrCacheMiss
		}
		return pipeline.CachedPage{}, fmt.Errorf("read cached html: %w", err)
	}
	info, err := os.Stat(htmlPath)
	if err != nil {
		return pipeline.CachedPage{}, fmt.Errorf("stat cached html: %w", err)
	}

	page := pipeline.CachedPage{
		Slug:      slug,
		Vendor:    vendor,
		HTML:      html,
		FetchedAt: info.ModTime(),
	}

	companionPath, err := c.entryPath(vendor, slug+companionSuffix)
	if err != nil {
		return pipeline.CachedPage{}, err
	}
	companion, err := os.ReadFile(companionPath)
	if err == nil {
		page.Companion = companion
	} else if !errors.Is(err, fs.ErrNotExist) {
		return pipeline.CachedPage{}, fmt.Errorf("read companion payload: %w", err)
	}

	return page, nil
}

// PutHTML writes the primary page body. A forced refresh simply overwrites.
func (c *FSCache) PutHTML(_ context.Context, vendor pipeline.Vendor, slug, _ string, html []byte) error {
	return c.write(vendor, slug+htmlSuffix, html)
}

// PutCompanion writes the secondary structured payload for a slug.
func (c *FSCache) PutCompanion(_ context.Context, vendor pipeline.Vendor, slug string, payload []byte) error {
	return c.write(vendor, slug+companionSuffix, payload)
}

func (c *FSCache) write(vendor pipeline.Vendor, name string, data []byte) error {
	path, err := c.entryPath(vendor, name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

// HasHTML reports whether the primary page body is cached.
func (c *FSCache) HasHTML(_ context.Context, vendor pipeline.Vendor, slug string) (bool, error) {
	return c.exists(vendor, slug+htmlSuffix)
}

// HasCompanion reports whether the companion payload is cached.
func (c *FSCache) HasCompanion(_ context.Context, vendor pipeline.Vendor, slug string) (bool, error) {
	return c.exists(vendor, slug+companionSuffix)
}

func (c *FSCache) exists(vendor pipeline.Vendor, name string) (bool, error) {
	path, err := c.entryPath(vendor, name)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat cache entry: %w", err)
	}
	return true, nil
}

// Slugs lists every slug with a cached HTML body for the vendor, sorted.
func (c *FSCache) Slugs(_ context.Context, vendor pipeline.Vendor) ([]string, error) {
	dir := filepath.Join(c.baseDir, string(vendor))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read cache directory: %w", err)
	}
	var slugs []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, htmlSuffix) {
			continue
		}
		slugs = append(slugs, strings.TrimSuffix(name, htmlSuffix))
	}
	sort.Strings(slugs)
	return slugs, nil
}
