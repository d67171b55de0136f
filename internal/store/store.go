// Package store persists the entity graph in Postgres: families own
// definitions, definitions own geometry specs, products tie a spec to a
// build kit. All writes go through the populator's get-or-create chain.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/velofit/framesearch/internal/pipeline"
)

// Family groups all definitions sold under one brand/model-family pair.
type Family struct {
	ID         int64
	BrandName  string
	FamilyName string
	Category   string
}

// Definition is one frame design within a family.
type Definition struct {
	ID        int64
	FamilyID  int64
	Name      string
	Material  string
	YearStart int
	YearEnd   int
}

// GeometrySpec is the persisted form of one geometry row.
type GeometrySpec struct {
	ID           int64
	DefinitionID int64
	pipeline.GeometryRow
}

// BuildKitRow is a stored build kit with its surrogate id.
type BuildKitRow struct {
	ID int64
	pipeline.BuildKit
}

// Product is a sellable unit: one geometry spec in one build kit.
type Product struct {
	ID             int64
	SKU            string
	Colors         []string
	GeometrySpecID int64
	BuildKitID     int64
	SourceURL      string
}

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pgxPool is the slice of pgxpool.Pool the store depends on; pgxmock
// implements it for tests.
type pgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Store wraps the connection pool with entity-graph queries.
type Store struct {
	pool pgxPool
}

// New connects a Store to Postgres.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool constructs a Store from an existing pool (primarily for
// testing).
func NewWithPool(pool pgxPool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// querier covers both pgx.Tx and the pool so the get-or-create helpers work
// inside and outside transactions.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func getOrCreateFamily(ctx context.Context, q querier, brand, familyName, category string) (int64, error) {
	var id int64
	err := q.QueryRow(ctx,
		`SELECT id FROM families WHERE brand_name = $1 AND family_name = $2`,
		brand, familyName,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("lookup family: %w", err)
	}
	err = q.QueryRow(ctx,
		`INSERT INTO families (brand_name, family_name, category) VALUES ($1, $2, $3) RETURNING id`,
		brand, familyName, category,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert family: %w", err)
	}
	return id, nil
}

func getOrCreateDefinition(ctx context.Context, q querier, familyID int64, name, material string, year int) (int64, error) {
	var id int64
	err := q.QueryRow(ctx,
		`SELECT id FROM definitions WHERE family_id = $1 AND name = $2 AND material IS NOT DISTINCT FROM $3`,
		familyID, name, nullString(material),
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("lookup definition: %w", err)
	}
	err = q.QueryRow(ctx,
		`INSERT INTO definitions (family_id, name, material, year_start, year_end)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		familyID, name, nullString(material), nullInt(year), nullInt(year),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert definition: %w", err)
	}
	return id, nil
}

// getOrCreateGeometrySpec is first-write-wins: an existing row for the size
// keeps its stored values regardless of the incoming ones.
func getOrCreateGeometrySpec(ctx context.Context, q querier, definitionID int64, row pipeline.GeometryRow) (int64, error) {
	label := NormalizeSizeLabel(row.SizeLabel)
	var id int64
	err := q.QueryRow(ctx,
		`SELECT id FROM geometry_specs WHERE definition_id = $1 AND size_label = $2`,
		definitionID, label,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("lookup geometry spec: %w", err)
	}
	err = q.QueryRow(ctx,
		`INSERT INTO geometry_specs (
			definition_id, size_label, stack_mm, reach_mm, top_tube_mm, seat_tube_mm,
			head_tube_mm, chainstay_mm, head_angle_deg, seat_angle_deg, bb_drop_mm,
			wheelbase_mm, fork_offset_mm, trail_mm, standover_mm
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id`,
		definitionID, label, row.StackMM, row.ReachMM, row.TopTubeMM, row.SeatTubeMM,
		row.HeadTubeMM, row.ChainstayMM, row.HeadAngleDeg, row.SeatAngleDeg, row.BBDropMM,
		row.WheelbaseMM, row.ForkOffsetMM, row.TrailMM, row.StandoverMM,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert geometry spec: %w", err)
	}
	return id, nil
}

func getOrCreateBuildKit(ctx context.Context, q querier, kit pipeline.BuildKit) (int64, error) {
	var id int64
	err := q.QueryRow(ctx,
		`SELECT id FROM build_kits
		 WHERE name = $1 AND groupset = $2 AND wheelset = $3 AND cockpit = $4 AND tires = $5`,
		kit.Name, kit.Groupset, kit.Wheelset, kit.Cockpit, kit.Tires,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("lookup build kit: %w", err)
	}
	err = q.QueryRow(ctx,
		`INSERT INTO build_kits (name, groupset, wheelset, cockpit, tires)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		kit.Name, kit.Groupset, kit.Wheelset, kit.Cockpit, kit.Tires,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert build kit: %w", err)
	}
	return id, nil
}

// upsertProduct creates the product, or merges its color set when one
// already exists for the spec/kit pair. Returns the product id and whether a
// new row was created.
func upsertProduct(ctx context.Context, q querier, sku string, colors []string, specID, kitID int64, sourceURL string) (int64, bool, error) {
	var (
		id       int64
		existing []string
	)
	err := q.QueryRow(ctx,
		`SELECT id, colors FROM products WHERE geometry_spec_id = $1 AND build_kit_id = $2`,
		specID, kitID,
	).Scan(&id, &existing)
	if err == nil {
		merged := mergeColors(existing, colors)
		if len(merged) != len(existing) {
			if _, err := q.Exec(ctx,
				`UPDATE products SET colors = $1 WHERE id = $2`,
				merged, id,
			); err != nil {
				return 0, false, fmt.Errorf("merge product colors: %w", err)
			}
		}
		return id, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, fmt.Errorf("lookup product: %w", err)
	}
	err = q.QueryRow(ctx,
		`INSERT INTO products (sku, colors, geometry_spec_id, build_kit_id, source_url)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		sku, colors, specID, kitID, nullString(sourceURL),
	).Scan(&id)
	if err != nil {
		return 0, false, fmt.Errorf("insert product: %w", err)
	}
	return id, true, nil
}

// mergeColors unions two color sets, keeping the stored order and appending
// new colors in input order.
func mergeColors(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing))
	out := make([]string, 0, len(existing)+len(incoming))
	for _, c := range existing {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	for _, c := range incoming {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullInt(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}
