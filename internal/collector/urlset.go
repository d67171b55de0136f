package collector

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/velofit/framesearch/internal/pipeline"
)

const urlSetFile = "bike_urls.json"

// URLSet persists the collected URL artifact for one vendor. Subsequent runs
// load it instead of re-crawling the catalog unless forced.
type URLSet struct {
	baseDir string
	vendor  pipeline.Vendor
}

// NewURLSet builds the artifact handle for a vendor.
func NewURLSet(baseDir string, vendor pipeline.Vendor) *URLSet {
	return &URLSet{baseDir: baseDir, vendor: vendor}
}

// Path returns the artifact location on disk.
func (s *URLSet) Path() string {
	return filepath.Join(s.baseDir, string(s.vendor), urlSetFile)
}

// Exists reports whether the artifact has been written before.
func (s *URLSet) Exists() (bool, error) {
	if _, err := os.Stat(s.Path()); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat url set: %w", err)
	}
	return true, nil
}

// Save writes the URL set, deduplicated and sorted.
func (s *URLSet) Save(urls []pipeline.CollectedURL) error {
	seen := make(map[string]struct{}, len(urls))
	out := make([]pipeline.CollectedURL, 0, len(urls))
	for _, u := range urls {
		if _, ok := seen[u.URL]; ok {
			continue
		}
		seen[u.URL] = struct{}{}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })

	if err := os.MkdirAll(filepath.Dir(s.Path()), 0o750); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal url set: %w", err)
	}
	if err := os.WriteFile(s.Path(), data, 0o600); err != nil {
		return fmt.Errorf("write url set: %w", err)
	}
	return nil
}

// Load reads the URL set back, preserving order and dropping duplicates.
func (s *URLSet) Load() ([]pipeline.CollectedURL, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		return nil, fmt.Errorf("read url set: %w", err)
	}
	var urls []pipeline.CollectedURL
	if err := json.Unmarshal(data, &urls); err != nil {
		return nil, fmt.Errorf("unmarshal url set: %w", err)
	}
	seen := make(map[string]struct{}, len(urls))
	out := urls[:0]
	for _, u := range urls {
		if _, ok := seen[u.URL]; ok {
			continue
		}
		seen[u.URL] = struct{}{}
		out = append(out, u)
	}
	return out, nil
}
