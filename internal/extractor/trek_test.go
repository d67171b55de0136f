package extractor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/velofit/framesearch/internal/pipeline"
)

const trekPage = `<html><head>
<link rel="canonical" href="https://www.trekbikes.com/pl/pl_PL/rowery/szosowe/domane/domane-al-2/p/35795/">
</head><body>
<nav aria-label="Breadcrumb">
  <a>Home</a><a>Rowery</a><a>Rowery szosowe</a><a>Domane</a>
</nav>
<div qaid="tech__product-name-header">Domane AL 2 (Lowstep)</div>
<h1 qaid="pdp-product-title">Domane AL 2 2024</h1>
<select id="tech-info-bike_colorSwatch">
  <option>Matte Dnister Black</option>
  <option>Era White</option>
</select>
<dl>
  <dt class="details-list__title">Rama</dt>
  <dd>300 Series Alpha Aluminum, wewnętrzne prowadzenie przewodów</dd>
  <dt class="details-list__title">Opona</dt>
  <dd>Bontrager R1 Hard-Case Lite, 700x32c</dd>
  <dt class="details-list__title">Przerzutka tylna</dt>
  <dd>Shimano Claris R2000</dd>
  <dt class="details-list__title">Kierownica</dt>
  <dd>Bontrager Comp VR-C</dd>
</dl>
</body></html>`

const trekSizingJSON = `{
  "geometryDataHeaders": [
    "geometryFrameSizeLetter",
    "geometryFrameStack",
    "geometryFrameReach",
    "geometryEffToptube",
    "geometrySeattube",
    "geometryLengthHeadtube",
    "geometryLengthChainstay",
    "geometryAngleHead",
    "geometryAngleSeattube",
    "geometryBBDrop",
    "geometryWheelbase"
  ],
  "geometryData": [
    {"geometry": ["52", "56.6", "37.0", "53.2", "48.3", "14.5", "42.0", "71.3", "74.3", "7.8", "98.4"]},
    {"geometry": ["56", "59.1", "38.4", "55.6", "52.5", "17.0", "42.0", "72.1", "73.7", "7.8", "100.3"]}
  ]
}`

func trekCachedPage(html, companion string) pipeline.CachedPage {
	page := pipeline.CachedPage{
		Slug:   "domane-al-2__35795",
		Vendor: pipeline.VendorTrek,
		HTML:   []byte(html),
	}
	if companion != "" {
		page.Companion = []byte(companion)
	}
	return page
}

func TestTrekExtractFromSizingPayload(t *testing.T) {
	t.Parallel()

	record, err := NewTrekExtractor(nil).Extract(trekCachedPage(trekPage, trekSizingJSON))
	require.NoError(t, err)
	require.NotNil(t, record)

	require.Equal(t, pipeline.VendorTrek, record.Vendor)
	require.Equal(t, "Trek", record.Brand)
	require.Equal(t, "Domane AL 2", record.ModelName)
	require.Equal(t, "Lowstep", record.FrameVariant)
	require.Equal(t, 2024, record.ModelYear)
	require.Equal(t, []string{"Rowery szosowe", "Domane"}, record.Categories)
	require.Equal(t, "Aluminum", record.Material)
	require.Equal(t, "700", record.WheelSize)
	require.Equal(t, "https://www.trekbikes.com/pl/pl_PL/rowery/szosowe/domane/domane-al-2/p/35795/", record.SourceURL)

	require.Len(t, record.Colors, 2)
	require.Equal(t, "Matte Dnister Black", record.Colors[0].Color)

	require.Equal(t, "Shimano Claris R2000", record.BuildKit.Name)
	require.Contains(t, record.BuildKit.Cockpit, "Bontrager Comp VR-C")

	require.Len(t, record.Sizes, 2)
	first := record.Sizes[0]
	require.Equal(t, "52", first.SizeLabel)
	// Sizing payload lengths are centimeters.
	require.Equal(t, 566, first.StackMM)
	require.Equal(t, 370, first.ReachMM)
	require.Equal(t, 420, first.ChainstayMM)
	require.Equal(t, 78, first.BBDropMM)
	require.Equal(t, 984, first.WheelbaseMM)
	require.InDelta(t, 71.3, first.HeadAngleDeg, 1e-9)
	require.InDelta(t, 74.3, first.SeatAngleDeg, 1e-9)
	require.NotNil(t, first.SeatTubeMM)
	require.Equal(t, 483, *first.SeatTubeMM)
	require.NotNil(t, first.HeadTubeMM)
	require.Equal(t, 145, *first.HeadTubeMM)
}

func TestTrekExtractFallsBackToSizingTable(t *testing.T) {
	t.Parallel()

	html := trekPage[:len(trekPage)-len("</body></html>")] + `
<table id="sizing-table">
<thead><tr>
<th>Rozmiar</th><th>Wysokość ramy</th><th>Rozstaw ramy</th>
<th>Długość tylnego trójkąta</th><th>Kąt główki ramy</th>
<th>Kąt nachylenia rury podsiodłowej</th><th>Obniżenie suportu</th><th>Rozstaw kół</th>
</tr></thead>
<tbody>
<tr><th>54</th><td>57,1</td><td>37,7</td><td>42,0</td><td>71,7</td><td>74,0</td><td>7,8</td><td>99,2</td></tr>
</tbody>
</table>
</body></html>`

	record, err := NewTrekExtractor(nil).Extract(trekCachedPage(html, ""))
	require.NoError(t, err)
	require.Len(t, record.Sizes, 1)

	row := record.Sizes[0]
	require.Equal(t, "54", row.SizeLabel)
	require.Equal(t, 571, row.StackMM)
	require.Equal(t, 377, row.ReachMM)
	require.Equal(t, 420, row.ChainstayMM)
	require.Equal(t, 992, row.WheelbaseMM)
	require.InDelta(t, 71.7, row.HeadAngleDeg, 1e-9)
}

func TestTrekExtractMalformedCompanionFallsBack(t *testing.T) {
	t.Parallel()

	html := trekPage[:len(trekPage)-len("</body></html>")] + `
<table id="sizing-table">
<thead><tr>
<th>Rozmiar</th><th>Wysokość ramy</th><th>Rozstaw ramy</th>
<th>Długość tylnego trójkąta</th><th>Kąt główki ramy</th>
<th>Kąt nachylenia rury podsiodłowej</th><th>Obniżenie suportu</th><th>Rozstaw kół</th>
</tr></thead>
<tbody>
<tr><th>54</th><td>57,1</td><td>37,7</td><td>42,0</td><td>71,7</td><td>74,0</td><td>7,8</td><td>99,2</td></tr>
</tbody>
</table>
</body></html>`

	record, err := NewTrekExtractor(nil).Extract(trekCachedPage(html, `{"unexpected":true}`))
	require.NoError(t, err)
	require.Len(t, record.Sizes, 1)
	require.Equal(t, 571, record.Sizes[0].StackMM)
}

func TestTrekExtractNoGeometry(t *testing.T) {
	t.Parallel()

	record, err := NewTrekExtractor(nil).Extract(trekCachedPage(trekPage, ""))

	require.Nil(t, record)
	var parseErr *pipeline.ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestTrekSizingTablePositionColumn(t *testing.T) {
	t.Parallel()

	html := `<html><body>
<table id="sizing-table">
<thead><tr>
<th>Rozmiar</th><th>Położenie</th><th>Wysokość ramy</th><th>Rozstaw ramy</th>
<th>Długość tylnego trójkąta</th><th>Kąt główki ramy</th>
<th>Kąt nachylenia rury podsiodłowej</th><th>Obniżenie suportu</th><th>Rozstaw kół</th>
</tr></thead>
<tbody>
<tr><th>M</th><td>High</td><td>61,0</td><td>43,5</td><td>43,5</td><td>65,0</td><td>77,0</td><td>3,0</td><td>121,5</td></tr>
</tbody>
</table>
</body></html>`

	record, err := NewTrekExtractor(nil).Extract(pipeline.CachedPage{
		Slug:   "fuel-ex__12345",
		Vendor: pipeline.VendorTrek,
		HTML:   []byte(html),
	})
	require.NoError(t, err)
	require.Len(t, record.Sizes, 1)
	require.Equal(t, "M (High)", record.Sizes[0].SizeLabel)
	require.Equal(t, 1215, record.Sizes[0].WheelbaseMM)
}
