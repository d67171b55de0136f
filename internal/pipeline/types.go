// Package pipeline defines core types shared across ingestion stages.
package pipeline

import "time"

// Vendor identifies a supported bike manufacturer site.
type Vendor string

// Vendors with extraction support.
const (
	VendorKross Vendor = "kross"
	VendorTrek  Vendor = "trek"
)

// CollectedURL is one candidate product URL discovered by the collector.
type CollectedURL struct {
	URL    string `json:"url"`
	Vendor Vendor `json:"vendor"`
}

// CachedPage is a raw page stored in the page cache. Companion holds an
// optional secondary payload (e.g. a sizing JSON endpoint) fetched after the
// primary page.
type CachedPage struct {
	Slug      string    `json:"slug"`
	Vendor    Vendor    `json:"vendor"`
	URL       string    `json:"url,omitempty"`
	HTML      []byte    `json:"-"`
	Companion []byte    `json:"-"`
	FetchedAt time.Time `json:"fetched_at"`
}

// HasCompanion reports whether a companion payload was captured for this page.
func (p CachedPage) HasCompanion() bool {
	return len(p.Companion) > 0
}

// GeometryRow holds the per-size frame measurements extracted from one page.
// Lengths are millimeters, angles are degrees. Optional fields are nil when
// the vendor does not publish them.
type GeometryRow struct {
	SizeLabel    string  `json:"size_label"`
	StackMM      int     `json:"stack_mm"`
	ReachMM      int     `json:"reach_mm"`
	TopTubeMM    *int    `json:"top_tube_mm,omitempty"`
	SeatTubeMM   *int    `json:"seat_tube_mm,omitempty"`
	HeadTubeMM   *int    `json:"head_tube_mm,omitempty"`
	ChainstayMM  int     `json:"chainstay_mm"`
	HeadAngleDeg float64 `json:"head_angle_deg"`
	SeatAngleDeg float64 `json:"seat_angle_deg"`
	BBDropMM     int     `json:"bb_drop_mm"`
	WheelbaseMM  int     `json:"wheelbase_mm"`
	ForkOffsetMM *int    `json:"fork_offset_mm,omitempty"`
	TrailMM      *int    `json:"trail_mm,omitempty"`
	StandoverMM  *int    `json:"standover_mm,omitempty"`
}

// BuildKit describes the component package a product ships with. It is a
// value object: two kits with identical fields are the same kit.
type BuildKit struct {
	Name     string `json:"name"`
	Groupset string `json:"groupset,omitempty"`
	Wheelset string `json:"wheelset,omitempty"`
	Cockpit  string `json:"cockpit,omitempty"`
	Tires    string `json:"tires,omitempty"`
}

// ColorVariant links a color name to the page it was scraped from. Variant
// pages are skipped by the extractor once the primary page covers them.
type ColorVariant struct {
	Slug  string `json:"slug"`
	Color string `json:"color"`
	URL   string `json:"url"`
}

// BikeRecord is the canonical extractor output for one product page: bike
// metadata plus one geometry row per size. It is ephemeral between stages and
// serialized as one JSON artifact per page.
type BikeRecord struct {
	Vendor       Vendor         `json:"vendor"`
	Brand        string         `json:"brand"`
	ModelName    string         `json:"model_name"`
	FrameVariant string         `json:"frame_variant,omitempty"`
	Categories   []string       `json:"categories"`
	ModelYear    int            `json:"model_year,omitempty"`
	Material     string         `json:"material,omitempty"`
	WheelSize    string         `json:"wheel_size,omitempty"`
	MaxTireWidth string         `json:"max_tire_width,omitempty"`
	Colors       []ColorVariant `json:"colors"`
	SourceURL    string         `json:"source_url,omitempty"`
	BuildKit     BuildKit       `json:"build_kit"`
	Sizes        []GeometryRow  `json:"sizes"`
}
