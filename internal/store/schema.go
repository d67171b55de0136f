package store

import "context"

// Schema DDL for the entity graph. Families own definitions, definitions own
// geometry specs; products reference specs and build kits without owning
// them.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS families (
	id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	brand_name TEXT NOT NULL,
	family_name TEXT NOT NULL,
	category TEXT NOT NULL,
	UNIQUE (brand_name, family_name)
);

CREATE TABLE IF NOT EXISTS definitions (
	id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	family_id BIGINT NOT NULL REFERENCES families(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	material TEXT,
	year_start INT,
	year_end INT,
	UNIQUE (family_id, name, material)
);

CREATE TABLE IF NOT EXISTS geometry_specs (
	id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	definition_id BIGINT NOT NULL REFERENCES definitions(id) ON DELETE CASCADE,
	size_label TEXT NOT NULL,
	stack_mm INT NOT NULL,
	reach_mm INT NOT NULL,
	top_tube_mm INT,
	seat_tube_mm INT,
	head_tube_mm INT,
	chainstay_mm INT NOT NULL,
	head_angle_deg DOUBLE PRECISION NOT NULL,
	seat_angle_deg DOUBLE PRECISION NOT NULL,
	bb_drop_mm INT NOT NULL,
	wheelbase_mm INT NOT NULL,
	fork_offset_mm INT,
	trail_mm INT,
	standover_mm INT,
	UNIQUE (definition_id, size_label)
);

CREATE TABLE IF NOT EXISTS build_kits (
	id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	name TEXT NOT NULL,
	groupset TEXT NOT NULL DEFAULT '',
	wheelset TEXT NOT NULL DEFAULT '',
	cockpit TEXT NOT NULL DEFAULT '',
	tires TEXT NOT NULL DEFAULT '',
	UNIQUE (name, groupset, wheelset, cockpit, tires)
);

CREATE TABLE IF NOT EXISTS products (
	id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	sku TEXT NOT NULL UNIQUE,
	colors TEXT[] NOT NULL DEFAULT '{}',
	geometry_spec_id BIGINT NOT NULL REFERENCES geometry_specs(id) ON DELETE CASCADE,
	build_kit_id BIGINT NOT NULL REFERENCES build_kits(id),
	source_url TEXT,
	UNIQUE (geometry_spec_id, build_kit_id)
);
`

// Migrate creates the schema when it does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schemaDDL)
	return err
}
