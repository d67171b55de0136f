package extractor

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/velofit/framesearch/internal/pipeline"
)

// krossGeoLabels maps canonical dimensions to the row labels used in Kross
// geometry tables.
var krossGeoLabels = geoLabelMap{
	keyStack:     {"Stack"},
	keyReach:     {"Reach"},
	keyTopTube:   {"TT - efektywna długość górnej rury"},
	keySeatTube:  {"ST - Długość rury podsiodłowej"},
	keyHeadTube:  {"HT - Długość główki ramy"},
	keyChainstay: {"CS - Długość tylnych widełek"},
	keyHeadAngle: {"HA - Kąt główki ramy"},
	keySeatAngle: {"SA - Kąt rury podsiodłowej"},
	keyBBDrop:    {"BBDROP"},
	keyWheelbase: {"WB - Baza kół"},
}

// KrossExtractor parses Kross product pages. All data lives in the page
// itself: an attribute spec table plus a per-size geometry table.
type KrossExtractor struct {
	logger *zap.Logger
}

func NewKrossExtractor(logger *zap.Logger) *KrossExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KrossExtractor{logger: logger}
}

func (e *KrossExtractor) Vendor() pipeline.Vendor { return pipeline.VendorKross }

func (e *KrossExtractor) Extract(page pipeline.CachedPage) (*pipeline.BikeRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.HTML))
	if err != nil {
		return nil, &pipeline.ParseError{Vendor: e.Vendor(), Slug: page.Slug, Reason: err.Error()}
	}

	record := &pipeline.BikeRecord{
		Vendor:     e.Vendor(),
		Brand:      "Kross",
		Categories: []string{},
		Colors:     []pipeline.ColorVariant{},
	}
	e.parseIdentity(doc, record)
	e.parseCategories(doc, record)
	e.parseMaterial(doc, record)

	components := newComponentSet()
	e.walkAttributeTables(doc, record, components)

	table := e.parseGeometryTable(doc)
	if table == nil {
		return nil, &pipeline.ParseError{Vendor: e.Vendor(), Slug: page.Slug, Reason: "no geometry table"}
	}

	e.fillWheelSize(record, table)
	e.componentsFromGeometry(table, components)

	record.BuildKit = components.BuildKit()
	record.Sizes = buildRows(table, false, e.logger.With(zap.String("slug", page.Slug)))
	if len(record.Sizes) == 0 {
		return nil, &pipeline.ParseError{Vendor: e.Vendor(), Slug: page.Slug, Reason: "no usable geometry rows"}
	}
	return record, nil
}

func (e *KrossExtractor) parseIdentity(doc *goquery.Document, record *pipeline.BikeRecord) {
	if title, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
		title = strings.TrimSpace(title)
		if name, _, found := strings.Cut(title, " | "); found {
			record.ModelName = strings.TrimSpace(name)
		} else {
			record.ModelName = title
		}
	}
	if url, ok := doc.Find(`meta[property="og:url"]`).Attr("content"); ok {
		record.SourceURL = strings.TrimSpace(url)
	}

	doc.Find("div.product-related-colors div.product-item-colors").Each(func(_ int, sel *goquery.Selection) {
		a := sel.Find("a.variant-item").First()
		href := strings.TrimSpace(a.AttrOr("href", ""))
		color := strings.TrimSpace(a.AttrOr("title", ""))
		if href == "" || color == "" {
			return
		}
		slug, err := pipeline.Slug(href)
		if err != nil {
			return
		}
		record.Colors = append(record.Colors, pipeline.ColorVariant{
			Slug:  slug,
			Color: color,
			URL:   href,
		})
	})
}

var yearToken = regexp.MustCompile(`^\d{4}$`)

func (e *KrossExtractor) parseCategories(doc *goquery.Document, record *pipeline.BikeRecord) {
	crumbs := doc.Find("div.product-breadcrumbs").First()
	if crumbs.Length() > 0 {
		raw := strings.TrimSpace(crumbs.Text())
		for _, part := range strings.Split(raw, "/") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if yearToken.MatchString(part) {
				if y, err := strconv.Atoi(part); err == nil && y >= 2000 && y <= 2100 {
					if record.ModelYear == 0 {
						record.ModelYear = y
					}
					continue
				}
			}
			record.Categories = append(record.Categories, part)
		}
	}
	if len(record.Categories) > 0 {
		return
	}

	// Older layout keeps categories in breadcrumb list items with numbered
	// category classes.
	doc.Find("div.breadcrumbs li").Each(func(_ int, li *goquery.Selection) {
		classes := strings.Fields(li.AttrOr("class", ""))
		for _, c := range classes {
			if strings.HasPrefix(c, "category") && strings.ContainsAny(c, "0123456789") {
				if text := strings.TrimSpace(li.Text()); text != "" {
					record.Categories = append(record.Categories, text)
				}
				return
			}
		}
	})
}

func (e *KrossExtractor) parseMaterial(doc *goquery.Document, record *pipeline.BikeRecord) {
	e.eachAttributeRow(doc, func(name, content string) {
		if record.Material == "" && strings.Contains(strings.ToLower(name), "rama") {
			record.Material = content
		}
	})
}

// walkAttributeTables reads the spec table once for wheel size, tire width
// and build-kit components.
func (e *KrossExtractor) walkAttributeTables(doc *goquery.Document, record *pipeline.BikeRecord, components *componentSet) {
	e.eachAttributeRow(doc, func(name, content string) {
		lower := strings.ToLower(name)
		if record.WheelSize == "" && strings.Contains(lower, "opony") {
			if code, ok := wheelSizeFromAttr(content); ok {
				record.WheelSize = code
			}
		}
		if record.MaxTireWidth == "" && strings.Contains(lower, "maksymalna szerokość opony") {
			record.MaxTireWidth = content
		}
		components.Add(name, content)
	})
}

func (e *KrossExtractor) eachAttributeRow(doc *goquery.Document, fn func(name, content string)) {
	doc.Find("table.additional-attributes-table tr").Each(func(_ int, row *goquery.Selection) {
		name := strings.TrimSpace(row.Find("td.box-title").First().Text())
		content := strings.TrimSpace(row.Find("td.box-content").First().Text())
		if name == "" || content == "" {
			return
		}
		fn(name, content)
	})
}

// parseGeometryTable locates the table whose first header cell says
// "Rozmiar" and reads sizes from the remaining header cells, dimensions from
// the body rows.
func (e *KrossExtractor) parseGeometryTable(doc *goquery.Document) *geoTable {
	var target *goquery.Selection
	doc.Find("table").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		th := sel.Find("thead th").First()
		if strings.Contains(th.Text(), "Rozmiar") {
			target = sel
			return false
		}
		return true
	})
	if target == nil {
		return nil
	}

	table := newGeoTable()
	target.Find("thead tr").First().Find("th").Each(func(i int, th *goquery.Selection) {
		if i == 0 {
			return
		}
		table.Sizes = append(table.Sizes, strings.TrimSpace(th.Text()))
	})
	if len(table.Sizes) == 0 {
		return nil
	}

	target.Find("tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}
		label := strings.TrimSpace(cells.First().Text())
		key, ok := krossGeoLabels.Match(label)
		if !ok {
			// Unmapped rows still feed wheel-size and component fallbacks.
			e.rememberExtraRow(table, label, cells)
			return
		}
		vals := make([]string, 0, len(table.Sizes))
		cells.Slice(1, cells.Length()).Each(func(_ int, cell *goquery.Selection) {
			vals = append(vals, strings.TrimSpace(cell.Text()))
		})
		table.Cells[key] = vals
	})
	return table
}

func (e *KrossExtractor) rememberExtraRow(table *geoTable, label string, cells *goquery.Selection) {
	vals := make([]string, 0, cells.Length()-1)
	cells.Slice(1, cells.Length()).Each(func(_ int, cell *goquery.Selection) {
		vals = append(vals, strings.TrimSpace(cell.Text()))
	})
	table.extra = append(table.extra, extraRow{Label: label, Values: vals})
}

// fillWheelSize resolves the wheel size from the size headers or the extra
// geometry rows when the spec table did not carry it.
func (e *KrossExtractor) fillWheelSize(record *pipeline.BikeRecord, table *geoTable) {
	if record.WheelSize != "" {
		return
	}
	for _, header := range table.Sizes {
		if code, ok := wheelSizeFromHeader(header); ok {
			record.WheelSize = code
			return
		}
	}
	for _, row := range table.extra {
		if !strings.Contains(strings.ToLower(row.Label), "rozmiar kół") {
			continue
		}
		for _, v := range row.Values {
			if v == "" {
				continue
			}
			if code, ok := wheelSizeFromCell(v); ok {
				record.WheelSize = code
				return
			}
		}
	}
}

// componentsFromGeometry picks up component rows that appear inside the
// geometry table (suspension forks, dropper posts) rather than the spec
// table. A row qualifies when a cell carries substantial non-numeric text.
var numericNoise = regexp.MustCompile(`(?i)[0-9.,\s\-*/°'"]|kg|mm|c`)

func (e *KrossExtractor) componentsFromGeometry(table *geoTable, components *componentSet) {
	for _, row := range table.extra {
		rep := ""
		for _, v := range row.Values {
			if v == "" {
				continue
			}
			if len(numericNoise.ReplaceAllString(v, "")) > 2 {
				rep = v
				break
			}
		}
		if rep != "" {
			components.Add(row.Label, rep)
		}
	}
}
