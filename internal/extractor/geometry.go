package extractor

import (
	"strings"

	"go.uber.org/zap"

	"github.com/velofit/framesearch/internal/pipeline"
)

// geoKey is the canonical name of one geometry dimension.
type geoKey string

const (
	keyStack      geoKey = "stack"
	keyReach      geoKey = "reach"
	keyTopTube    geoKey = "top_tube"
	keySeatTube   geoKey = "seat_tube"
	keyHeadTube   geoKey = "head_tube"
	keyChainstay  geoKey = "chainstay"
	keyHeadAngle  geoKey = "head_angle"
	keySeatAngle  geoKey = "seat_angle"
	keyBBDrop     geoKey = "bb_drop"
	keyWheelbase  geoKey = "wheelbase"
	keyForkOffset geoKey = "fork_offset"
	keyTrail      geoKey = "trail"
	keyStandover  geoKey = "standover"
)

// geoLabelMap associates each canonical dimension with the row/header labels
// a vendor uses for it. Matching is case-insensitive substring.
type geoLabelMap map[geoKey][]string

// Match returns the canonical key for one raw row label, if any.
func (m geoLabelMap) Match(label string) (geoKey, bool) {
	lower := strings.ToLower(label)
	for _, key := range geoKeyOrder {
		for _, candidate := range m[key] {
			if strings.Contains(lower, strings.ToLower(candidate)) {
				return key, true
			}
		}
	}
	return "", false
}

// geoKeyOrder fixes the matching order so overlapping labels resolve the
// same way on every run.
var geoKeyOrder = []geoKey{
	keyStack, keyReach, keyTopTube, keySeatTube, keyHeadTube, keyChainstay,
	keyHeadAngle, keySeatAngle, keyBBDrop, keyWheelbase,
	keyForkOffset, keyTrail, keyStandover,
}

// geoTable is the vendor-agnostic intermediate form of a geometry table:
// one raw cell per dimension per size column. Rows that are not frame
// dimensions are kept aside; wheel sizes and some components hide in them.
type geoTable struct {
	Sizes []string
	Cells map[geoKey][]string
	extra []extraRow
}

type extraRow struct {
	Label  string
	Values []string
}

func newGeoTable() *geoTable {
	return &geoTable{Cells: make(map[geoKey][]string)}
}

func (t *geoTable) cell(key geoKey, idx int) (string, bool) {
	vals, ok := t.Cells[key]
	if !ok || idx >= len(vals) {
		return "", false
	}
	v := strings.TrimSpace(vals[idx])
	if v == "" || v == "-" {
		return "", false
	}
	return v, true
}

// Angle plausibility bounds. Rows outside these ranges are parse artifacts
// (wrong row matched, or a cm/mm mixup in an angle column).
const (
	headAngleMin = 60
	headAngleMax = 80
	seatAngleMin = 60
	seatAngleMax = 85
)

// buildRows converts a geoTable into validated geometry rows. A size column
// that fails validation is dropped on its own; the remaining sizes survive.
func buildRows(t *geoTable, assumeCM bool, logger *zap.Logger) []pipeline.GeometryRow {
	rows := make([]pipeline.GeometryRow, 0, len(t.Sizes))
	for idx, rawLabel := range t.Sizes {
		row, err := buildRow(t, idx, rawLabel, assumeCM)
		if err != nil {
			logger.Warn("dropping size", zap.String("size", rawLabel), zap.Error(err))
			continue
		}
		rows = append(rows, row)
	}
	return rows
}

func buildRow(t *geoTable, idx int, rawLabel string, assumeCM bool) (pipeline.GeometryRow, error) {
	label := NormalizeLabel(rawLabel)
	row := pipeline.GeometryRow{SizeLabel: label}

	requiredLength := func(key geoKey, field string, dst *int) error {
		raw, ok := t.cell(key, idx)
		if !ok {
			return &pipeline.ValidationError{SizeLabel: label, Field: field, Reason: "missing"}
		}
		v, err := ExtractNumber(raw)
		if err != nil {
			return &pipeline.ValidationError{SizeLabel: label, Field: field, Reason: err.Error()}
		}
		mm := LengthMM(v, assumeCM)
		if mm <= 0 {
			return &pipeline.ValidationError{SizeLabel: label, Field: field, Reason: "non-positive length"}
		}
		*dst = mm
		return nil
	}

	optionalLength := func(key geoKey, dst **int) {
		raw, ok := t.cell(key, idx)
		if !ok {
			return
		}
		v, err := ExtractNumber(raw)
		if err != nil {
			return
		}
		mm := LengthMM(v, assumeCM)
		if mm > 0 {
			*dst = &mm
		}
	}

	angle := func(key geoKey, field string, min, max float64, dst *float64) error {
		raw, ok := t.cell(key, idx)
		if !ok {
			return &pipeline.ValidationError{SizeLabel: label, Field: field, Reason: "missing"}
		}
		v, err := ExtractNumber(raw)
		if err != nil {
			return &pipeline.ValidationError{SizeLabel: label, Field: field, Reason: err.Error()}
		}
		if v < min || v > max {
			return &pipeline.ValidationError{SizeLabel: label, Field: field, Reason: "angle out of range"}
		}
		*dst = v
		return nil
	}

	if err := requiredLength(keyStack, "stack_mm", &row.StackMM); err != nil {
		return row, err
	}
	if err := requiredLength(keyReach, "reach_mm", &row.ReachMM); err != nil {
		return row, err
	}
	if err := requiredLength(keyChainstay, "chainstay_mm", &row.ChainstayMM); err != nil {
		return row, err
	}
	if err := requiredLength(keyBBDrop, "bb_drop_mm", &row.BBDropMM); err != nil {
		return row, err
	}
	if err := requiredLength(keyWheelbase, "wheelbase_mm", &row.WheelbaseMM); err != nil {
		return row, err
	}
	if err := angle(keyHeadAngle, "head_angle_deg", headAngleMin, headAngleMax, &row.HeadAngleDeg); err != nil {
		return row, err
	}
	if err := angle(keySeatAngle, "seat_angle_deg", seatAngleMin, seatAngleMax, &row.SeatAngleDeg); err != nil {
		return row, err
	}

	optionalLength(keyTopTube, &row.TopTubeMM)
	optionalLength(keySeatTube, &row.SeatTubeMM)
	optionalLength(keyHeadTube, &row.HeadTubeMM)
	optionalLength(keyForkOffset, &row.ForkOffsetMM)
	optionalLength(keyTrail, &row.TrailMM)
	optionalLength(keyStandover, &row.StandoverMM)

	return row, nil
}
