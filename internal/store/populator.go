package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/velofit/framesearch/internal/extractor"
	"github.com/velofit/framesearch/internal/metrics"
	"github.com/velofit/framesearch/internal/pipeline"
)

// checkpointEvery is the number of records between transaction commits. A
// crash loses at most one checkpoint's worth of work and a re-run is
// idempotent through the get-or-create chain.
const checkpointEvery = 10

// Mutation describes one entity-graph write the index synchronizer must
// project. Mutations are reported only after their checkpoint commits.
type Mutation struct {
	SpecID       int64
	DefinitionID int64
	BuildKitID   int64
}

// Syncer receives committed mutations. Implementations must treat failures
// as recoverable; the relational store stays the source of truth.
type Syncer interface {
	Apply(ctx context.Context, muts []Mutation) error
}

// PopulatorStats summarizes one populate run.
type PopulatorStats struct {
	Populated int
	Failed    int
}

// Populator resolves canonical records onto the entity graph. It is a
// single-writer: one transaction scope at a time, so get-or-create lookups
// cannot race.
type Populator struct {
	store  *Store
	syncer Syncer
	logger *zap.Logger

	// skus tracks SKUs minted in the current run for collision suffixing.
	skus map[string]struct{}
}

func NewPopulator(store *Store, syncer Syncer, logger *zap.Logger) *Populator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Populator{
		store:  store,
		syncer: syncer,
		logger: logger,
		skus:   make(map[string]struct{}),
	}
}

// PopulateAll applies records in input order. A failing record is rolled
// back to its savepoint and skipped; every checkpoint the open transaction
// commits and the committed mutations are handed to the syncer. Transaction
// management errors are fatal and abort the batch.
func (p *Populator) PopulateAll(ctx context.Context, records []*pipeline.BikeRecord) (PopulatorStats, error) {
	var stats PopulatorStats

	tx, err := p.store.pool.Begin(ctx)
	if err != nil {
		return stats, fmt.Errorf("begin transaction: %w", err)
	}

	var pending []Mutation
	sinceCheckpoint := 0

	commit := func() error {
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit checkpoint: %w", err)
		}
		p.flush(ctx, pending)
		pending = pending[:0]
		sinceCheckpoint = 0
		return nil
	}

	for _, record := range records {
		if _, err := tx.Exec(ctx, "SAVEPOINT record_sp"); err != nil {
			_ = tx.Rollback(ctx)
			return stats, fmt.Errorf("create savepoint: %w", err)
		}

		muts, err := p.populateOne(ctx, tx, record)
		if err != nil {
			if _, rbErr := tx.Exec(ctx, "ROLLBACK TO SAVEPOINT record_sp"); rbErr != nil {
				_ = tx.Rollback(ctx)
				return stats, fmt.Errorf("rollback savepoint: %w", rbErr)
			}
			p.logger.Error("record failed",
				zap.String("model", record.ModelName),
				zap.String("vendor", string(record.Vendor)),
				zap.Error(err),
			)
			metrics.RecordsPopulatedTotal.WithLabelValues("failed").Inc()
			stats.Failed++
			continue
		}
		if _, err := tx.Exec(ctx, "RELEASE SAVEPOINT record_sp"); err != nil {
			_ = tx.Rollback(ctx)
			return stats, fmt.Errorf("release savepoint: %w", err)
		}

		pending = append(pending, muts...)
		metrics.RecordsPopulatedTotal.WithLabelValues("ok").Inc()
		stats.Populated++
		sinceCheckpoint++

		if sinceCheckpoint >= checkpointEvery {
			if err := commit(); err != nil {
				return stats, err
			}
			tx, err = p.store.pool.Begin(ctx)
			if err != nil {
				return stats, fmt.Errorf("begin transaction: %w", err)
			}
		}
	}

	if err := commit(); err != nil {
		return stats, err
	}
	return stats, nil
}

// flush pushes committed mutations to the search index. Failures are logged
// only; the next synchronization trigger retries from the source of truth.
func (p *Populator) flush(ctx context.Context, muts []Mutation) {
	if p.syncer == nil || len(muts) == 0 {
		return
	}
	if err := p.syncer.Apply(ctx, muts); err != nil {
		p.logger.Warn("index sync deferred", zap.Int("mutations", len(muts)), zap.Error(err))
	}
}

// populateOne resolves one record: Family by (brand, family name), then
// Definition by (family, name, material), then one GeometrySpec per size,
// then one Product per spec/kit pair.
func (p *Populator) populateOne(ctx context.Context, tx pgx.Tx, record *pipeline.BikeRecord) ([]Mutation, error) {
	brand := strings.TrimSpace(record.Brand)
	model := strings.TrimSpace(record.ModelName)
	if brand == "" || model == "" {
		return nil, fmt.Errorf("record missing brand or model name")
	}

	category := extractor.SimpleTypes(record.Categories)[0]
	familyID, err := getOrCreateFamily(ctx, tx, brand, model, category)
	if err != nil {
		return nil, wrapConflict("family", brand+"/"+model, err)
	}

	defName := strings.TrimSpace(model + " " + record.Material)
	definitionID, err := getOrCreateDefinition(ctx, tx, familyID, defName, record.Material, record.ModelYear)
	if err != nil {
		return nil, wrapConflict("definition", defName, err)
	}

	buildKitID, err := getOrCreateBuildKit(ctx, tx, record.BuildKit)
	if err != nil {
		return nil, wrapConflict("build_kit", record.BuildKit.Name, err)
	}

	colors := make([]string, 0, len(record.Colors))
	for _, c := range record.Colors {
		if name := strings.TrimSpace(c.Color); name != "" {
			colors = append(colors, name)
		}
	}

	var muts []Mutation
	for _, row := range record.Sizes {
		specID, err := getOrCreateGeometrySpec(ctx, tx, definitionID, row)
		if err != nil {
			return nil, wrapConflict("geometry_spec", row.SizeLabel, err)
		}

		sku := p.mintSKU(brand, model, record.ModelYear, record.BuildKit.Name, row.SizeLabel)
		if _, _, err := upsertProduct(ctx, tx, sku, colors, specID, buildKitID, record.SourceURL); err != nil {
			return nil, wrapConflict("product", sku, err)
		}
		muts = append(muts, Mutation{SpecID: specID, DefinitionID: definitionID, BuildKitID: buildKitID})
	}
	return muts, nil
}

// mintSKU builds BRAND-MODEL-YEAR-KIT-SIZE, upper-cased with spaces turned
// into dashes, and suffixes a counter when the run already assigned it.
func (p *Populator) mintSKU(brand, model string, year int, kitName, sizeLabel string) string {
	parts := []string{brand, model}
	if year > 0 {
		parts = append(parts, fmt.Sprintf("%d", year))
	}
	if kitName != "" {
		parts = append(parts, kitName)
	}
	if label := NormalizeSizeLabel(sizeLabel); label != "" {
		parts = append(parts, label)
	}
	for i := range parts {
		parts[i] = strings.ReplaceAll(parts[i], " ", "-")
	}
	base := strings.ToUpper(strings.Join(parts, "-"))

	sku := base
	for n := 1; ; n++ {
		if _, taken := p.skus[sku]; !taken {
			break
		}
		sku = fmt.Sprintf("%s-%d", base, n)
	}
	p.skus[sku] = struct{}{}
	return sku
}

// NormalizeSizeLabel collapses internal whitespace so "M" and "M " resolve
// to the same geometry spec.
func NormalizeSizeLabel(label string) string {
	return strings.Join(strings.Fields(label), " ")
}

func wrapConflict(entity, key string, err error) error {
	return &pipeline.IdentityConflict{Entity: entity, NaturalKey: key, Err: err}
}
