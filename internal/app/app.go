// Package app initializes and holds the long-lived services of the ingest
// pipeline and runs its stages. It is the wiring point between configuration
// and the collector, fetcher, extractor, populator, and synchronizer.
package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/pubsub"
	gcs "cloud.google.com/go/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/velofit/framesearch/internal/config"
	"github.com/velofit/framesearch/internal/logging"
	"github.com/velofit/framesearch/internal/pagecache"
	"github.com/velofit/framesearch/internal/pipeline"
	"github.com/velofit/framesearch/internal/publish"
	memorypub "github.com/velofit/framesearch/internal/publish/memory"
	pubsubpub "github.com/velofit/framesearch/internal/publish/pubsub"
	"github.com/velofit/framesearch/internal/search"
	"github.com/velofit/framesearch/internal/store"
)

// App holds the shared services of one pipeline run.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	runID  uuid.UUID

	cache     pipeline.PageCache
	publisher pipeline.Publisher

	gcsClient *gcs.Client
	psClient  *pubsub.Client
	psPub     *pubsubpub.Publisher

	store  *store.Store
	syncer *search.Synchronizer
}

// New builds the service container. The page cache and the publisher are
// initialized eagerly; Postgres and Elasticsearch connect on first use so
// cache-only stages run without them.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	a := &App{
		cfg:    cfg,
		logger: logger,
		runID:  uuid.New(),
	}

	if err := a.initCache(ctx); err != nil {
		_ = logger.Sync()
		return nil, err
	}
	if err := a.initPublisher(ctx); err != nil {
		a.Close()
		return nil, err
	}

	logger.Info("services initialized",
		zap.String("run_id", a.runID.String()),
		zap.String("artifacts_backend", cfg.Artifacts.Backend))
	return a, nil
}

func (a *App) initCache(ctx context.Context) error {
	switch a.cfg.Artifacts.Backend {
	case "gcs":
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("build gcs client: %w", err)
		}
		a.gcsClient = client
		cache, err := pagecache.NewGCS(client, a.cfg.Artifacts.GCSBucket)
		if err != nil {
			return err
		}
		a.cache = cache
	default:
		cache, err := pagecache.NewFS(a.cfg.Artifacts.BaseDir)
		if err != nil {
			return err
		}
		a.cache = cache
	}
	return nil
}

func (a *App) initPublisher(ctx context.Context) error {
	if a.cfg.PubSub.ProjectID == "" {
		a.publisher = memorypub.New()
		return nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("build pubsub client: %w", err)
	}
	a.psClient = client
	a.psPub = pubsubpub.New(client.Topic(a.cfg.PubSub.TopicName))
	a.publisher = a.psPub
	return nil
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Cache returns the page cache.
func (a *App) Cache() pipeline.PageCache {
	return a.cache
}

// Store connects to Postgres on first use and runs schema migration.
func (a *App) Store(ctx context.Context) (*store.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	lifetime, err := a.cfg.DBMaxConnLifetime()
	if err != nil {
		return nil, err
	}
	st, err := store.New(ctx, store.Config{
		DSN:             a.cfg.DB.DSN,
		MaxConns:        a.cfg.DB.MaxConns,
		MinConns:        a.cfg.DB.MinConns,
		MaxConnLifetime: lifetime,
	})
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	a.store = st
	return a.store, nil
}

// Synchronizer connects to Elasticsearch on first use and ensures both
// indices exist.
func (a *App) Synchronizer(ctx context.Context) (*search.Synchronizer, error) {
	if a.syncer != nil {
		return a.syncer, nil
	}
	st, err := a.Store(ctx)
	if err != nil {
		return nil, err
	}
	client, err := search.NewClient(search.Config{
		Addresses: a.cfg.Search.Addresses,
		Username:  a.cfg.Search.Username,
		Password:  a.cfg.Search.Password,
	})
	if err != nil {
		return nil, err
	}
	syncer := search.NewSynchronizer(client, st, search.Config{
		SpecIndex:  a.cfg.Search.SpecIndex,
		GroupIndex: a.cfg.Search.GroupIndex,
	}, logging.ForStage(a.logger, "sync"))
	if err := syncer.EnsureIndices(ctx); err != nil {
		return nil, err
	}
	a.syncer = syncer
	return a.syncer, nil
}

// Vendors resolves the vendor names a command should process. An empty
// selection means every enabled vendor, in stable order.
func (a *App) Vendors(names []string) ([]pipeline.Vendor, error) {
	if len(names) == 0 {
		for name, vc := range a.cfg.Vendors {
			if vc.Enabled {
				names = append(names, name)
			}
		}
		sort.Strings(names)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no vendors enabled; configure vendors.<name>.enabled")
	}

	vendors := make([]pipeline.Vendor, 0, len(names))
	for _, name := range names {
		v := pipeline.Vendor(name)
		switch v {
		case pipeline.VendorKross, pipeline.VendorTrek:
			vendors = append(vendors, v)
		default:
			return nil, fmt.Errorf("unknown vendor %q", name)
		}
	}
	return vendors, nil
}

// publishStageEvent reports one finished stage on the event bus. Publishing
// is best effort.
func (a *App) publishStageEvent(ctx context.Context, stage string, vendor pipeline.Vendor, succeeded, failed, skipped int, started time.Time) {
	event := publish.RunEvent{
		RunID:     a.runID,
		Stage:     stage,
		Vendor:    string(vendor),
		Succeeded: succeeded,
		Failed:    failed,
		Skipped:   skipped,
		StartedAt: started,
		EndedAt:   time.Now().UTC(),
	}
	if _, err := a.publisher.Publish(ctx, publish.TopicRunEvents, event); err != nil {
		a.logger.Warn("stage event publish failed",
			zap.String("stage", stage),
			zap.Error(err))
	}
}

// Close shuts down all connected services.
func (a *App) Close() {
	if a.psPub != nil {
		a.psPub.Stop()
	}
	if a.psClient != nil {
		if err := a.psClient.Close(); err != nil {
			a.logger.Warn("pubsub close failed", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs close failed", zap.Error(err))
		}
	}
	if a.store != nil {
		a.store.Close()
	}
	_ = a.logger.Sync()
}
