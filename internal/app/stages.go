package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/velofit/framesearch/internal/api"
	"github.com/velofit/framesearch/internal/collector"
	"github.com/velofit/framesearch/internal/extractor"
	"github.com/velofit/framesearch/internal/fetcher"
	"github.com/velofit/framesearch/internal/logging"
	"github.com/velofit/framesearch/internal/pipeline"
	"github.com/velofit/framesearch/internal/publish"
	"github.com/velofit/framesearch/internal/store"
)

// RunCollect walks each vendor catalog and persists its URL set. An existing
// URL set is reused unless force is configured.
func (a *App) RunCollect(ctx context.Context, vendorNames []string) error {
	vendors, err := a.Vendors(vendorNames)
	if err != nil {
		return err
	}
	logger := logging.ForStage(a.logger, "collect")

	for _, vendor := range vendors {
		started := time.Now().UTC()
		set := collector.NewURLSet(a.cfg.Artifacts.BaseDir, vendor)

		if !a.cfg.Collector.Force {
			exists, err := set.Exists()
			if err != nil {
				return err
			}
			if exists {
				logger.Info("url set exists, skipping",
					zap.String("vendor", string(vendor)),
					zap.String("path", set.Path()))
				a.publishStageEvent(ctx, publish.StageCollect, vendor, 0, 0, 1, started)
				continue
			}
		}

		strategy, ok := collector.StrategyFor(vendor)
		if !ok {
			return fmt.Errorf("no collect strategy for vendor %q", vendor)
		}
		c := collector.New(collector.Config{
			UserAgent: a.cfg.Fetcher.UserAgent,
			Timeout:   a.cfg.CollectorTimeout(),
			MaxPages:  a.cfg.Collector.MaxPages,
		}, strategy, a.retryPolicy(a.cfg.Collector.MaxRetries), logger)

		vc, ok := a.cfg.Vendors[string(vendor)]
		if !ok || len(vc.StartURLs) == 0 {
			return fmt.Errorf("vendors.%s.start_urls is required", vendor)
		}

		urls, err := c.Collect(ctx, vc.StartURLs)
		if len(urls) > 0 {
			if saveErr := set.Save(urls); saveErr != nil {
				return saveErr
			}
		}
		a.publishStageEvent(ctx, publish.StageCollect, vendor, len(urls), boolToInt(err != nil), 0, started)
		if err != nil {
			// Partial URL sets are kept; the run still fails so the
			// operator sees the truncation.
			return fmt.Errorf("collect %s: %w", vendor, err)
		}
		logger.Info("url set saved",
			zap.String("vendor", string(vendor)),
			zap.Int("urls", len(urls)),
			zap.String("path", set.Path()))
	}
	return nil
}

// RunFetch downloads every collected URL into the page cache.
func (a *App) RunFetch(ctx context.Context, vendorNames []string) error {
	vendors, err := a.Vendors(vendorNames)
	if err != nil {
		return err
	}
	logger := logging.ForStage(a.logger, "fetch")

	for _, vendor := range vendors {
		started := time.Now().UTC()
		set := collector.NewURLSet(a.cfg.Artifacts.BaseDir, vendor)
		urls, err := set.Load()
		if err != nil {
			return fmt.Errorf("fetch %s: %w", vendor, err)
		}

		rendererCfg := fetcher.RendererConfig{
			UserAgent:  a.cfg.Fetcher.UserAgent,
			NavTimeout: a.cfg.NavTimeout(),
		}
		f := fetcher.New(fetcher.Config{
			Concurrency: a.cfg.Fetcher.Concurrency,
			Force:       a.cfg.Fetcher.Force,
		},
			a.cache,
			a.retryPolicy(a.cfg.Fetcher.MaxRetries),
			func() (pipeline.Renderer, error) { return fetcher.NewChromedpRenderer(rendererCfg) },
			fetcher.NewCompanionClient(a.cfg.Fetcher.UserAgent, a.cfg.NavTimeout()),
			logger,
		)

		stats := f.Run(ctx, urls)
		logger.Info("fetch finished",
			zap.String("vendor", string(vendor)),
			zap.Int("fetched", stats.Fetched),
			zap.Int("cached", stats.Cached),
			zap.Int("skipped", stats.Skipped),
			zap.Int("failed", stats.Failed))
		a.publishStageEvent(ctx, publish.StageFetch, vendor, stats.Fetched, stats.Failed, stats.Cached+stats.Skipped, started)
	}
	return nil
}

// RunExtract converts cached pages into canonical record artifacts.
func (a *App) RunExtract(ctx context.Context, vendorNames []string) error {
	vendors, err := a.Vendors(vendorNames)
	if err != nil {
		return err
	}
	logger := logging.ForStage(a.logger, "extract")
	runner := extractor.NewRunner(a.cache, a.cfg.Artifacts.BaseDir, a.cfg.Fetcher.Force, logger)

	for _, vendor := range vendors {
		started := time.Now().UTC()
		stats, err := runner.Run(ctx, vendor)
		if err != nil {
			return fmt.Errorf("extract %s: %w", vendor, err)
		}
		logger.Info("extract finished",
			zap.String("vendor", string(vendor)),
			zap.Int("extracted", stats.Extracted),
			zap.Int("skipped", stats.Skipped),
			zap.Int("failed", stats.Failed))
		a.publishStageEvent(ctx, publish.StageExtract, vendor, stats.Extracted, stats.Failed, stats.Skipped, started)
	}
	return nil
}

// RunPopulate loads record artifacts into the entity graph and projects the
// committed changes into the search indices.
func (a *App) RunPopulate(ctx context.Context, vendorNames []string) error {
	vendors, err := a.Vendors(vendorNames)
	if err != nil {
		return err
	}
	st, err := a.Store(ctx)
	if err != nil {
		return err
	}
	syncer, err := a.Synchronizer(ctx)
	if err != nil {
		return err
	}
	logger := logging.ForStage(a.logger, "populate")

	var records []*pipeline.BikeRecord
	for _, vendor := range vendors {
		paths, err := extractor.RecordPaths(a.cfg.Artifacts.BaseDir, vendor)
		if err != nil {
			return fmt.Errorf("populate %s: %w", vendor, err)
		}
		for _, path := range paths {
			record, err := extractor.LoadRecord(path)
			if err != nil {
				logger.Warn("skipping unreadable record",
					zap.String("path", path),
					zap.Error(err))
				continue
			}
			records = append(records, record)
		}
	}

	started := time.Now().UTC()
	populator := store.NewPopulator(st, syncer, logger)
	stats, err := populator.PopulateAll(ctx, records)
	a.publishStageEvent(ctx, publish.StagePopulate, "", stats.Populated, stats.Failed, 0, started)
	if err != nil {
		return err
	}
	logger.Info("populate finished",
		zap.Int("populated", stats.Populated),
		zap.Int("failed", stats.Failed))
	return nil
}

// RunReindex rebuilds both search indices from the relational store.
func (a *App) RunReindex(ctx context.Context) error {
	syncer, err := a.Synchronizer(ctx)
	if err != nil {
		return err
	}
	started := time.Now().UTC()
	if err := syncer.Reindex(ctx); err != nil {
		a.publishStageEvent(ctx, publish.StageSync, "", 0, 1, 0, started)
		return err
	}
	a.publishStageEvent(ctx, publish.StageSync, "", 1, 0, 0, started)
	return nil
}

// RunServe blocks serving the HTTP API until the context is canceled.
func (a *App) RunServe(ctx context.Context) error {
	st, err := a.Store(ctx)
	if err != nil {
		return err
	}
	server := api.NewServer(st, st, logging.ForStage(a.logger, "api"))

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (a *App) retryPolicy(maxAttempts int) pipeline.RetryPolicy {
	base, max := a.cfg.RetryBackoff()
	return pipeline.NewRetryPolicy(maxAttempts, base, max)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
