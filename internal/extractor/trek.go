package extractor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/velofit/framesearch/internal/pipeline"
)

// trekGeoLabels covers the three places Trek publishes geometry: the sizing
// JSON header codes, the Polish HTML table labels, and the lettered diagram
// labels on older pages.
var trekGeoLabels = geoLabelMap{
	keyStack:      {"Stack", "Wysokość ramy", "geometryFrameStack", "N —"},
	keyReach:      {"Reach", "Rozstaw ramy", "geometryFrameReach", "M —"},
	keyTopTube:    {"Efektywna długość górnej rury", "geometryEffToptube", "E —"},
	keySeatTube:   {"Rura podsiodłowa", "geometrySeattube", "A —"},
	keyHeadTube:   {"Długość główki ramy", "geometryLengthHeadtube", "C —"},
	keyChainstay:  {"Długość widełek", "Długość tylnego trójkąta", "geometryLengthChainstay", "H —"},
	keyHeadAngle:  {"Kąt główki ramy", "geometryAngleHead", "D —"},
	keySeatAngle:  {"Kąt nachylenia rury podsiodłowej", "geometryAngleSeattube", "B —"},
	keyBBDrop:     {"Obniżenie suportu", "geometryBBDrop", "G —"},
	keyWheelbase:  {"Rozstaw kół", "geometryWheelbase", "K —"},
	keyForkOffset: {"Offset widelca", "geometryForkOffset", "J —"},
	keyTrail:      {"geometryTrail", "F —"},
	keyStandover:  {"Wysokość stand-over", "geometryStandover", "I —"},
}

// frameVariantPattern matches the frame-variation suffix Trek appends to
// model names.
var frameVariantPattern = regexp.MustCompile(`(?i)\s*\((Stepover|Midstep|Lowstep|Highstep|Stagger|Damski|Męski)\)$`)

// TrekExtractor parses Trek product pages. Geometry prefers the companion
// sizing payload over the HTML table because the payload carries unambiguous
// column codes; lengths there are centimeters.
type TrekExtractor struct {
	logger *zap.Logger
}

func NewTrekExtractor(logger *zap.Logger) *TrekExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TrekExtractor{logger: logger}
}

func (e *TrekExtractor) Vendor() pipeline.Vendor { return pipeline.VendorTrek }

func (e *TrekExtractor) Extract(page pipeline.CachedPage) (*pipeline.BikeRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.HTML))
	if err != nil {
		return nil, &pipeline.ParseError{Vendor: e.Vendor(), Slug: page.Slug, Reason: err.Error()}
	}

	record := &pipeline.BikeRecord{
		Vendor:     e.Vendor(),
		Brand:      "Trek",
		Categories: []string{},
		Colors:     []pipeline.ColorVariant{},
	}
	e.parseIdentity(doc, record)
	e.parseCategories(doc, record)
	e.parseMaterial(doc, record)
	e.parseWheelSize(doc, record)

	components := newComponentSet()
	e.eachSpecEntry(doc, func(name, content string) {
		components.Add(name, content)
	})

	table := e.parseGeometry(doc, page.Companion)
	if table == nil || len(table.Sizes) == 0 {
		return nil, &pipeline.ParseError{Vendor: e.Vendor(), Slug: page.Slug, Reason: "no geometry data"}
	}

	if record.WheelSize == "" {
		for _, row := range table.extra {
			if !strings.Contains(strings.ToLower(row.Label), "rozmiar kół") {
				continue
			}
			for _, v := range row.Values {
				if code, ok := wheelSizeFromCell(v); ok {
					record.WheelSize = code
					break
				}
			}
		}
	}

	record.BuildKit = components.BuildKit()
	record.Sizes = buildRows(table, true, e.logger.With(zap.String("slug", page.Slug)))
	if len(record.Sizes) == 0 {
		return nil, &pipeline.ParseError{Vendor: e.Vendor(), Slug: page.Slug, Reason: "no usable geometry rows"}
	}
	return record, nil
}

func (e *TrekExtractor) parseIdentity(doc *goquery.Document, record *pipeline.BikeRecord) {
	record.ModelName = e.parseModel(doc)
	record.FrameVariant = e.parseFrameVariant(doc)
	record.SourceURL = e.parseSourceURL(doc)
	record.ModelYear = e.parseModelYear(doc)
	record.Colors = e.parseColors(doc)
}

// parseModel tries the configurator's checked model radio first, then the
// tech header, then JSON-LD product data, then the PDP title.
func (e *TrekExtractor) parseModel(doc *goquery.Document) string {
	if name := e.checkedOptionLabel(doc, "Wybierz swój model", "Wybierz model"); name != "" {
		return stripFrameVariant(name)
	}
	if txt := strings.TrimSpace(doc.Find(`[qaid="tech__product-name-header"]`).First().Text()); txt != "" {
		return stripFrameVariant(txt)
	}
	if name := e.labelForCheckedInput(doc, `input[name="model-option"][checked]`); name != "" {
		return stripFrameVariant(name)
	}
	if name := e.productNameFromJSONLD(doc); name != "" {
		return stripFrameVariant(name)
	}
	if txt := strings.TrimSpace(doc.Find(`h1[qaid="pdp-product-title"]`).First().Text()); txt != "" {
		return stripFrameVariant(txt)
	}
	return ""
}

func (e *TrekExtractor) parseFrameVariant(doc *goquery.Document) string {
	if name := e.checkedOptionLabel(doc, "Wybierz rodzaj ramy"); name != "" {
		return name
	}
	if txt := doc.Find(`[qaid="tech__product-name-header"]`).First().Text(); txt != "" {
		if m := frameVariantPattern.FindStringSubmatch(txt); m != nil {
			return capitalize(strings.ToLower(m[1]))
		}
	}
	if name := e.labelForCheckedInput(doc, `input[name^="sub-family-option-"][checked]`); name != "" {
		return name
	}
	if txt := doc.Find(`h1[qaid="pdp-product-title"]`).First().Text(); txt != "" {
		if m := frameVariantPattern.FindStringSubmatch(txt); m != nil {
			return capitalize(strings.ToLower(m[1]))
		}
	}
	return ""
}

// checkedOptionLabel finds a fieldset containing any of the given headings
// and returns the label text of its checked radio input.
func (e *TrekExtractor) checkedOptionLabel(doc *goquery.Document, headings ...string) string {
	var out string
	doc.Find("fieldset").EachWithBreak(func(_ int, fs *goquery.Selection) bool {
		text := fs.Text()
		matched := false
		for _, h := range headings {
			if strings.Contains(text, h) {
				matched = true
				break
			}
		}
		if !matched {
			return true
		}
		checked := fs.Find("input[checked]").First()
		id := checked.AttrOr("id", "")
		if id == "" {
			return true
		}
		label := fs.Find(fmt.Sprintf(`label[for=%q]`, id)).First()
		out = strings.TrimSpace(label.Text())
		return out == ""
	})
	return out
}

func (e *TrekExtractor) labelForCheckedInput(doc *goquery.Document, selector string) string {
	input := doc.Find(selector).First()
	id := input.AttrOr("id", "")
	if id == "" {
		return ""
	}
	return strings.TrimSpace(doc.Find(fmt.Sprintf(`label[for=%q]`, id)).First().Text())
}

func (e *TrekExtractor) productNameFromJSONLD(doc *goquery.Document) string {
	var out string
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, sc *goquery.Selection) bool {
		var payload any
		if err := json.Unmarshal([]byte(sc.Text()), &payload); err != nil {
			return true
		}
		out = ldProductName(payload)
		return out == ""
	})
	return out
}

func ldProductName(node any) string {
	switch v := node.(type) {
	case []any:
		for _, item := range v {
			if name := ldProductName(item); name != "" {
				return name
			}
		}
	case map[string]any:
		typ, _ := v["@type"].(string)
		switch strings.ToLower(typ) {
		case "product", "productmodel", "bike", "bicycle":
			if name, _ := v["name"].(string); name != "" {
				return strings.TrimSpace(name)
			}
		}
		if graph, ok := v["@graph"].([]any); ok {
			for _, item := range graph {
				if name := ldProductName(item); name != "" {
					return name
				}
			}
		}
	}
	return ""
}

func stripFrameVariant(name string) string {
	return strings.TrimSpace(frameVariantPattern.ReplaceAllString(name, ""))
}

func (e *TrekExtractor) parseSourceURL(doc *goquery.Document) string {
	if href, ok := doc.Find(`link[rel="canonical"]`).Attr("href"); ok && strings.TrimSpace(href) != "" {
		return strings.TrimSpace(href)
	}
	if url, ok := doc.Find(`meta[property="og:url"]`).Attr("content"); ok {
		return strings.TrimSpace(url)
	}
	return ""
}

var yearInText = regexp.MustCompile(`\b(20\d{2})\b`)

func (e *TrekExtractor) parseModelYear(doc *goquery.Document) int {
	text := doc.Find(`[qaid="tech__product-name-header"]`).First().Text() + doc.Find("h1").First().Text()
	if m := yearInText.FindStringSubmatch(text); m != nil {
		y, err := strconv.Atoi(m[1])
		if err == nil {
			return y
		}
	}
	return 0
}

func (e *TrekExtractor) parseCategories(doc *goquery.Document, record *pipeline.BikeRecord) {
	skip := map[string]struct{}{"home": {}, "rowery": {}, "sklep": {}, "diamant": {}}
	doc.Find(`nav[aria-label="Breadcrumb"] a, .breadcrumb a`).Each(func(_ int, a *goquery.Selection) {
		cat := strings.TrimSpace(a.Text())
		if cat == "" {
			return
		}
		if _, skipped := skip[strings.ToLower(cat)]; skipped {
			return
		}
		record.Categories = append(record.Categories, cat)
	})
	if len(record.Categories) > 0 {
		return
	}
	title := strings.ToLower(doc.Find("h1").First().Text())
	if strings.Contains(title, "dziecięcy") || strings.Contains(title, "kids") {
		record.Categories = append(record.Categories, "Dziecięce")
	}
}

func (e *TrekExtractor) parseMaterial(doc *goquery.Document, record *pipeline.BikeRecord) {
	doc.Find(`dd[qaid*="-shortSpecFrame-value"], [qaid="shortSpecFrame-value"]`).EachWithBreak(func(_ int, dd *goquery.Selection) bool {
		record.Material = cleanMaterial(strings.TrimSpace(dd.Text()))
		return record.Material == ""
	})
	if record.Material != "" {
		return
	}
	e.eachSpecEntry(doc, func(name, content string) {
		if record.Material != "" {
			return
		}
		switch name {
		case "Rama", "Materiał ramy", "Frame":
			record.Material = cleanMaterial(content)
		}
	})
	if record.Material != "" {
		return
	}
	doc.Find("li span.leading-none, .spec-attribute").EachWithBreak(func(_ int, node *goquery.Selection) bool {
		switch strings.TrimSpace(node.Text()) {
		case "Aluminium", "Karbon", "Carbon", "Stal", "Steel":
			record.Material = strings.TrimSpace(node.Text())
			return false
		}
		return true
	})
}

var materialPrefix = regexp.MustCompile(`(?i)^(Rama|Materiał ramy|Frame):\s*`)

// cleanMaterial shortens marketing-length material descriptions to a
// comparable token.
func cleanMaterial(text string) string {
	text = materialPrefix.ReplaceAllString(text, "")
	if len(text) > 30 {
		if strings.Contains(text, "Aluminum") || strings.Contains(text, "Aluminium") {
			return "Aluminum"
		}
		if strings.Contains(text, "Carbon") || strings.Contains(text, "Karbon") || strings.Contains(text, "włókno węglowe") {
			return "Carbon"
		}
	}
	return strings.TrimSpace(text)
}

var wheelToken = regexp.MustCompile(`(\d{2,3})["”c]?`)

func (e *TrekExtractor) parseWheelSize(doc *goquery.Document, record *pipeline.BikeRecord) {
	e.eachSpecEntry(doc, func(name, content string) {
		if record.WheelSize != "" {
			return
		}
		lower := strings.ToLower(name)
		if strings.Contains(lower, "koło") || strings.Contains(lower, "opona") ||
			strings.Contains(lower, "wheel") || strings.Contains(lower, "tire") {
			if m := wheelToken.FindStringSubmatch(content); m != nil {
				record.WheelSize = NormalizeWheelSize(m[1])
			}
		}
	})
}

// eachSpecEntry walks the details list, pairing each dt title with its dd
// value.
func (e *TrekExtractor) eachSpecEntry(doc *goquery.Document, fn func(name, content string)) {
	doc.Find("dt.details-list__title").Each(func(_ int, dt *goquery.Selection) {
		dd := dt.NextFiltered("dd")
		if dd.Length() == 0 {
			dd = dt.NextAllFiltered("dd").First()
		}
		if dd.Length() == 0 {
			return
		}
		name := strings.TrimSpace(dt.Text())
		content := strings.TrimSpace(dd.Text())
		if name == "" || content == "" {
			return
		}
		fn(name, content)
	})
}

func (e *TrekExtractor) parseColors(doc *goquery.Document) []pipeline.ColorVariant {
	out := []pipeline.ColorVariant{}
	doc.Find("select#tech-info-bike_colorSwatch option").Each(func(_ int, opt *goquery.Selection) {
		if color := strings.TrimSpace(opt.Text()); color != "" {
			out = append(out, pipeline.ColorVariant{Color: color})
		}
	})
	if len(out) > 0 {
		return out
	}
	variant := doc.Find("div.attribute-color .variantName").First()
	if variant.Length() > 0 {
		text := strings.TrimSpace(variant.Text())
		var color string
		if _, after, found := strings.Cut(text, "/"); found {
			color = strings.TrimSpace(after)
		} else {
			color = strings.TrimSpace(strings.ReplaceAll(text, "Kolor", ""))
		}
		if color != "" {
			out = append(out, pipeline.ColorVariant{Color: color})
		}
	}
	return out
}

// parseGeometry prefers the sizing payload; a parse failure there falls back
// to the HTML sizing table.
func (e *TrekExtractor) parseGeometry(doc *goquery.Document, companion []byte) *geoTable {
	if len(companion) > 0 {
		if table := parseSizingPayload(companion); table != nil {
			return table
		}
	}
	return e.parseSizingTable(doc)
}

// sizingPayload is the shape of the Trek sizing endpoint response: one
// header code per column, one geometry row per size.
type sizingPayload struct {
	Headers []string `json:"geometryDataHeaders"`
	Data    []struct {
		Geometry []json.RawMessage `json:"geometry"`
	} `json:"geometryData"`
}

func parseSizingPayload(raw []byte) *geoTable {
	var payload sizingPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil
	}
	if len(payload.Headers) == 0 || len(payload.Data) == 0 {
		return nil
	}

	sizeIdx := 0
	for i, h := range payload.Headers {
		if h == "geometryFrameSizeLetter" || h == "geometryFrameSizeNumber" {
			sizeIdx = i
			break
		}
	}

	table := newGeoTable()
	for _, item := range payload.Data {
		if len(item.Geometry) == 0 {
			continue
		}
		label := ""
		if sizeIdx < len(item.Geometry) {
			label = rawCell(item.Geometry[sizeIdx])
		}
		if label == "" {
			label = fmt.Sprintf("Size %d", len(table.Sizes))
		}
		table.Sizes = append(table.Sizes, label)

		for i, cell := range item.Geometry {
			if i >= len(payload.Headers) {
				break
			}
			key, ok := trekGeoLabels.Match(payload.Headers[i])
			if !ok {
				continue
			}
			vals := table.Cells[key]
			// Pad so column positions stay aligned with sizes.
			for len(vals) < len(table.Sizes)-1 {
				vals = append(vals, "")
			}
			table.Cells[key] = append(vals, rawCell(cell))
		}
	}
	if len(table.Sizes) == 0 || len(table.Cells) == 0 {
		return nil
	}
	return table
}

// rawCell renders a JSON scalar as its cell text.
func rawCell(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", f), "0"), ".")
	}
	return ""
}

// parseSizingTable reads the HTML geometry table: sizes down the first
// column, dimensions across the header.
func (e *TrekExtractor) parseSizingTable(doc *goquery.Document) *geoTable {
	target := doc.Find("table#sizing-table").First()
	if target.Length() == 0 {
		target = doc.Find("table.sizing-table__table").First()
	}
	if target.Length() == 0 {
		return nil
	}

	var headers []string
	target.Find("thead tr").First().Find("th, td").Each(func(_ int, cell *goquery.Selection) {
		headers = append(headers, strings.TrimSpace(cell.Text()))
	})
	if len(headers) == 0 {
		return nil
	}

	posIdx := -1
	for i, h := range headers {
		if strings.Contains(h, "Położenie") {
			posIdx = i
			break
		}
	}

	table := newGeoTable()
	target.Find("tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("th, td")
		if cells.Length() == 0 {
			return
		}
		label := strings.TrimSpace(cells.Eq(0).Text())
		if posIdx > 0 && posIdx < cells.Length() {
			if pos := strings.TrimSpace(cells.Eq(posIdx).Text()); pos != "" {
				label = fmt.Sprintf("%s (%s)", label, pos)
			}
		}
		table.Sizes = append(table.Sizes, label)

		for i := 1; i < cells.Length() && i < len(headers); i++ {
			key, ok := trekGeoLabels.Match(headers[i])
			if !ok {
				continue
			}
			vals := table.Cells[key]
			for len(vals) < len(table.Sizes)-1 {
				vals = append(vals, "")
			}
			table.Cells[key] = append(vals, strings.TrimSpace(cells.Eq(i).Text()))
		}
	})
	if len(table.Sizes) == 0 {
		return nil
	}
	return table
}
