package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// SpecProjection joins one geometry spec with its definition and family
// ancestry; the per-spec search document is a direct projection of it.
type SpecProjection struct {
	SpecID     int64
	SizeLabel  string
	StackMM    int
	ReachMM    int
	Definition string
	Material   string
	BrandName  string
	FamilyName string
	Category   string
}

// GroupProjection is everything products sharing one (definition, build kit)
// pair contribute to the group search document.
type GroupProjection struct {
	DefinitionID int64
	BuildKitID   int64
	Definition   string
	Material     string
	BrandName    string
	FamilyName   string
	Category     string
	KitName      string
	SKUs         []string
	ProductIDs   []int64
	Sizes        []string
	Colors       []string
}

// ErrNotFound reports a projection target that no longer exists.
var ErrNotFound = errors.New("store: not found")

// SpecByID loads the projection for one geometry spec.
func (s *Store) SpecByID(ctx context.Context, specID int64) (SpecProjection, error) {
	var (
		out      SpecProjection
		material *string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT gs.id, gs.size_label, gs.stack_mm, gs.reach_mm,
		       d.name, d.material, f.brand_name, f.family_name, f.category
		FROM geometry_specs gs
		JOIN definitions d ON d.id = gs.definition_id
		JOIN families f ON f.id = d.family_id
		WHERE gs.id = $1`,
		specID,
	).Scan(&out.SpecID, &out.SizeLabel, &out.StackMM, &out.ReachMM,
		&out.Definition, &material, &out.BrandName, &out.FamilyName, &out.Category)
	if errors.Is(err, pgx.ErrNoRows) {
		return out, ErrNotFound
	}
	if err != nil {
		return out, fmt.Errorf("load spec %d: %w", specID, err)
	}
	if material != nil {
		out.Material = *material
	}
	return out, nil
}

// GroupByPair loads the group projection for one (definition, build kit)
// pair. ErrNotFound means no product references the pair anymore.
func (s *Store) GroupByPair(ctx context.Context, definitionID, buildKitID int64) (GroupProjection, error) {
	out := GroupProjection{DefinitionID: definitionID, BuildKitID: buildKitID}

	var material *string
	err := s.pool.QueryRow(ctx, `
		SELECT d.name, d.material, f.brand_name, f.family_name, f.category, bk.name
		FROM definitions d
		JOIN families f ON f.id = d.family_id
		JOIN build_kits bk ON bk.id = $2
		WHERE d.id = $1`,
		definitionID, buildKitID,
	).Scan(&out.Definition, &material, &out.BrandName, &out.FamilyName, &out.Category, &out.KitName)
	if errors.Is(err, pgx.ErrNoRows) {
		return out, ErrNotFound
	}
	if err != nil {
		return out, fmt.Errorf("load group %d/%d: %w", definitionID, buildKitID, err)
	}
	if material != nil {
		out.Material = *material
	}

	rows, err := s.pool.Query(ctx, `
		SELECT p.id, p.sku, p.colors, gs.size_label
		FROM products p
		JOIN geometry_specs gs ON gs.id = p.geometry_spec_id
		WHERE gs.definition_id = $1 AND p.build_kit_id = $2
		ORDER BY p.id`,
		definitionID, buildKitID,
	)
	if err != nil {
		return out, fmt.Errorf("load group members %d/%d: %w", definitionID, buildKitID, err)
	}
	defer rows.Close()

	colorSeen := make(map[string]struct{})
	sizeSeen := make(map[string]struct{})
	for rows.Next() {
		var (
			id     int64
			sku    string
			colors []string
			size   string
		)
		if err := rows.Scan(&id, &sku, &colors, &size); err != nil {
			return out, fmt.Errorf("scan group member: %w", err)
		}
		out.ProductIDs = append(out.ProductIDs, id)
		out.SKUs = append(out.SKUs, sku)
		if _, ok := sizeSeen[size]; !ok {
			sizeSeen[size] = struct{}{}
			out.Sizes = append(out.Sizes, size)
		}
		for _, c := range colors {
			if _, ok := colorSeen[c]; !ok {
				colorSeen[c] = struct{}{}
				out.Colors = append(out.Colors, c)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return out, fmt.Errorf("iterate group members: %w", err)
	}
	if len(out.ProductIDs) == 0 {
		return out, ErrNotFound
	}
	return out, nil
}

// AllSpecIDs lists every geometry spec id, for full reindexing.
func (s *Store) AllSpecIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM geometry_specs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list specs: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan spec id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AllGroupPairs lists every (definition, build kit) pair referenced by a
// product, for full reindexing.
func (s *Store) AllGroupPairs(ctx context.Context) ([][2]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT gs.definition_id, p.build_kit_id
		FROM products p
		JOIN geometry_specs gs ON gs.id = p.geometry_spec_id
		ORDER BY gs.definition_id, p.build_kit_id`)
	if err != nil {
		return nil, fmt.Errorf("list group pairs: %w", err)
	}
	defer rows.Close()

	var pairs [][2]int64
	for rows.Next() {
		var defID, kitID int64
		if err := rows.Scan(&defID, &kitID); err != nil {
			return nil, fmt.Errorf("scan group pair: %w", err)
		}
		pairs = append(pairs, [2]int64{defID, kitID})
	}
	return pairs, rows.Err()
}

// DeleteProduct removes one product and reports the pair it referenced so
// the caller can re-synchronize or delete the group document.
func (s *Store) DeleteProduct(ctx context.Context, productID int64) (definitionID, buildKitID int64, err error) {
	err = s.pool.QueryRow(ctx, `
		DELETE FROM products p
		USING geometry_specs gs
		WHERE p.id = $1 AND gs.id = p.geometry_spec_id
		RETURNING gs.definition_id, p.build_kit_id`,
		productID,
	).Scan(&definitionID, &buildKitID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, ErrNotFound
	}
	if err != nil {
		return 0, 0, fmt.Errorf("delete product %d: %w", productID, err)
	}
	return definitionID, buildKitID, nil
}
