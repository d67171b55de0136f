package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/velofit/framesearch/internal/metrics"
	"github.com/velofit/framesearch/internal/pipeline"
)

// Runner drives extraction over every cached page of one vendor and writes
// one canonical record artifact per page. Extraction itself is pure; the
// runner owns all I/O so the vendor extractors stay testable in isolation.
type Runner struct {
	cache   pipeline.PageCache
	baseDir string
	force   bool
	logger  *zap.Logger
}

// RunnerStats summarizes one extraction run.
type RunnerStats struct {
	Extracted int
	Skipped   int
	Failed    int
}

func NewRunner(cache pipeline.PageCache, baseDir string, force bool, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{cache: cache, baseDir: baseDir, force: force, logger: logger}
}

// Run extracts every cached page for the vendor. Color-variant pages already
// covered by a primary page are skipped so one model yields one record.
func (r *Runner) Run(ctx context.Context, vendor pipeline.Vendor) (RunnerStats, error) {
	var stats RunnerStats

	ext, err := For(vendor, r.logger)
	if err != nil {
		return stats, err
	}

	slugs, err := r.cache.Slugs(ctx, vendor)
	if err != nil {
		return stats, fmt.Errorf("listing cached pages: %w", err)
	}
	sort.Strings(slugs)

	outDir := filepath.Join(r.baseDir, string(vendor), "extracted")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return stats, fmt.Errorf("creating artifact dir: %w", err)
	}

	covered := make(map[string]struct{})
	for _, slug := range slugs {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		if _, ok := covered[slug]; ok {
			metrics.RecordsExtractedTotal.WithLabelValues(string(vendor), "skipped").Inc()
			stats.Skipped++
			continue
		}
		log := r.logger.With(zap.String("vendor", string(vendor)), zap.String("slug", slug))

		outPath := filepath.Join(outDir, slug+".json")
		if !r.force {
			if _, err := os.Stat(outPath); err == nil {
				log.Debug("record artifact exists")
				metrics.RecordsExtractedTotal.WithLabelValues(string(vendor), "skipped").Inc()
				stats.Skipped++
				continue
			}
		}

		page, err := r.cache.Get(ctx, vendor, slug)
		if err != nil {
			log.Error("cache read failed", zap.Error(err))
			metrics.RecordsExtractedTotal.WithLabelValues(string(vendor), "failed").Inc()
			stats.Failed++
			continue
		}

		record, err := ext.Extract(page)
		if err != nil {
			var parseErr *pipeline.ParseError
			if errors.As(err, &parseErr) {
				log.Warn("page skipped", zap.String("reason", parseErr.Reason))
			} else {
				log.Error("extraction failed", zap.Error(err))
			}
			metrics.RecordsExtractedTotal.WithLabelValues(string(vendor), "failed").Inc()
			stats.Failed++
			continue
		}

		for _, variant := range record.Colors {
			if variant.Slug != "" {
				covered[variant.Slug] = struct{}{}
			}
		}

		if err := writeRecord(outPath, record); err != nil {
			log.Error("artifact write failed", zap.Error(err))
			metrics.RecordsExtractedTotal.WithLabelValues(string(vendor), "failed").Inc()
			stats.Failed++
			continue
		}
		metrics.RecordsExtractedTotal.WithLabelValues(string(vendor), "extracted").Inc()
		log.Info("record extracted", zap.Int("sizes", len(record.Sizes)))
		stats.Extracted++
	}

	r.logger.Info("extraction finished",
		zap.String("vendor", string(vendor)),
		zap.Int("extracted", stats.Extracted),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
	)
	return stats, nil
}

// writeRecord marshals with stable indentation so re-extracting an unchanged
// page produces a byte-identical artifact.
func writeRecord(path string, record *pipeline.BikeRecord) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

// LoadRecord reads one canonical record artifact back; the populate stage
// consumes these.
func LoadRecord(path string) (*pipeline.BikeRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var record pipeline.BikeRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}
	return &record, nil
}

// RecordPaths lists the record artifacts for one vendor in deterministic
// order.
func RecordPaths(baseDir string, vendor pipeline.Vendor) ([]string, error) {
	pattern := filepath.Join(baseDir, string(vendor), "extracted", "*.json")
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}
