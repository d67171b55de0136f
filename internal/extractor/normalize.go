package extractor

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var numberPattern = regexp.MustCompile(`[-+]?\d+(?:[.,]\d+)?`)

// ExtractNumber pulls the first numeric token out of a raw cell value.
// Vendors mix units and decorations into the same cell ("74,5°", "430 mm"),
// and Polish pages use the decimal comma.
func ExtractNumber(raw string) (float64, error) {
	m := numberPattern.FindString(raw)
	if m == "" {
		return 0, fmt.Errorf("no numeric value in %q", raw)
	}
	return strconv.ParseFloat(strings.ReplaceAll(m, ",", "."), 64)
}

// cmThreshold separates centimeter readings from millimeter readings for
// vendors that publish lengths in centimeters without a unit marker. Frame
// lengths in cm top out around 120 (wheelbase), while the same dimensions in
// mm start well above 150. A genuinely short mm value under the threshold
// would be misclassified; no such dimension exists in the source data today.
const cmThreshold = 150

// LengthMM converts a raw length reading to whole millimeters. When assumeCM
// is set, values under the threshold are treated as centimeters and scaled.
func LengthMM(v float64, assumeCM bool) int {
	if assumeCM && v < cmThreshold {
		return int(math.Round(v * 10))
	}
	return int(math.Round(v))
}

// wheelSizeCodes maps marketing wheel labels to bead-seat-diameter codes.
var wheelSizeCodes = map[string]string{
	"29":   "700",
	"28":   "700",
	"700":  "700",
	"27.5": "584",
	"27,5": "584",
	"26":   "559",
	"24":   "507",
	"20":   "406",
	"16":   "305",
	"12":   "203",
}

// NormalizeWheelSize maps a raw wheel-size token to its bead-seat-diameter
// code. Unknown tokens pass through cleaned but unmapped.
func NormalizeWheelSize(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.NewReplacer(`"`, "", "''", "", "c", "").Replace(s)
	if code, ok := wheelSizeCodes[s]; ok {
		return code
	}
	return s
}

// NormalizeLabel collapses internal whitespace so "M" and "M " resolve to the
// same size.
func NormalizeLabel(label string) string {
	return strings.Join(strings.Fields(label), " ")
}

var (
	wheelInAttrPattern   = regexp.MustCompile(`(?i)(\d{3})x|(\d{2}[.,]\d)"|(\d{2})"`)
	wheelInHeaderPattern = regexp.MustCompile(`(\d{2}[.,]\d)"|(\d{2})"`)
	wheelLoosePattern    = regexp.MustCompile(`(\d{3})|(\d{2}[.,]\d)|(\d{2})`)
)

// wheelSizeFromAttr reads a wheel size out of a tire spec cell like
// "700x40c" or `28" x 1.75`.
func wheelSizeFromAttr(content string) (string, bool) {
	m := wheelInAttrPattern.FindStringSubmatch(content)
	if m == nil {
		return "", false
	}
	for _, g := range m[1:] {
		if g != "" {
			return NormalizeWheelSize(g), true
		}
	}
	return "", false
}

// wheelSizeFromHeader reads a wheel size embedded in a size-column header
// like `M (29")`.
func wheelSizeFromHeader(header string) (string, bool) {
	matches := wheelInHeaderPattern.FindAllStringSubmatch(header, -1)
	if len(matches) == 0 {
		return "", false
	}
	pick := func(m []string) string {
		for _, g := range m[1:] {
			if g != "" {
				return g
			}
		}
		return ""
	}
	if len(matches) > 1 {
		return NormalizeWheelSize(pick(matches[len(matches)-1])), true
	}
	if strings.Contains(header, "(") {
		return "", false
	}
	return NormalizeWheelSize(pick(matches[0])), true
}

// wheelSizeFromCell reads a wheel size out of a free-form geometry cell.
func wheelSizeFromCell(cell string) (string, bool) {
	m := wheelLoosePattern.FindString(cell)
	if m == "" {
		return "", false
	}
	return NormalizeWheelSize(m), true
}
