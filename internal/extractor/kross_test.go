package extractor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/velofit/framesearch/internal/pipeline"
)

const krossPage = `<html><head>
<meta property="og:title" content="Esker 1.0 | Kross">
<meta property="og:url" content="https://kross.eu/rowery/esker-1-0">
</head><body>
<div class="product-breadcrumbs">Rowery / Gravel / 2024</div>
<div class="product-related-colors">
  <div class="product-item-colors">
    <a class="variant-item" href="https://kross.eu/rowery/esker-1-0-czarny" title="Czarny"></a>
  </div>
</div>
<table class="additional-attributes-table">
<tr><td class="box-title">Rama</td><td class="box-content">Aluminium 6061</td></tr>
<tr><td class="box-title">Opony</td><td class="box-content">WTB Riddler 700x40c</td></tr>
<tr><td class="box-title">Maksymalna szerokość opony</td><td class="box-content">45 mm</td></tr>
<tr><td class="box-title">Przerzutka tył</td><td class="box-content">Shimano GRX RX400</td></tr>
<tr><td class="box-title">Obręcze</td><td class="box-content">Kross Gravel Disc</td></tr>
</table>
<table>
<thead><tr><th>Rozmiar</th><th> M</th><th>L </th></tr></thead>
<tbody>
<tr><td>Stack</td><td>570</td><td>590</td></tr>
<tr><td>Reach</td><td>380</td><td>390</td></tr>
<tr><td>TT - efektywna długość górnej rury</td><td>545</td><td>560</td></tr>
<tr><td>ST - Długość rury podsiodłowej</td><td>480</td><td>520</td></tr>
<tr><td>HT - Długość główki ramy</td><td>155</td><td>175</td></tr>
<tr><td>CS - Długość tylnych widełek</td><td>435</td><td>435</td></tr>
<tr><td>HA - Kąt główki ramy</td><td>71,5°</td><td>71,5°</td></tr>
<tr><td>SA - Kąt rury podsiodłowej</td><td>73°</td><td>73°</td></tr>
<tr><td>BBDROP</td><td>70</td><td>70</td></tr>
<tr><td>WB - Baza kół</td><td>1030</td><td>1045</td></tr>
</tbody>
</table>
</body></html>`

func krossCachedPage(html string) pipeline.CachedPage {
	return pipeline.CachedPage{
		Slug:   "esker-1-0",
		Vendor: pipeline.VendorKross,
		HTML:   []byte(html),
	}
}

func TestKrossExtract(t *testing.T) {
	t.Parallel()

	record, err := NewKrossExtractor(nil).Extract(krossCachedPage(krossPage))
	require.NoError(t, err)
	require.NotNil(t, record)

	require.Equal(t, pipeline.VendorKross, record.Vendor)
	require.Equal(t, "Kross", record.Brand)
	require.Equal(t, "Esker 1.0", record.ModelName)
	require.Equal(t, 2024, record.ModelYear)
	require.Equal(t, []string{"Rowery", "Gravel"}, record.Categories)
	require.Equal(t, "Aluminium 6061", record.Material)
	require.Equal(t, "700", record.WheelSize)
	require.Equal(t, "45 mm", record.MaxTireWidth)
	require.Equal(t, "https://kross.eu/rowery/esker-1-0", record.SourceURL)

	require.Len(t, record.Colors, 1)
	require.Equal(t, "Czarny", record.Colors[0].Color)
	require.Equal(t, "esker-1-0-czarny", record.Colors[0].Slug)

	require.Equal(t, "Shimano GRX RX400", record.BuildKit.Name)
	require.Contains(t, record.BuildKit.Wheelset, "Kross Gravel Disc")
	require.Contains(t, record.BuildKit.Tires, "WTB Riddler")

	require.Len(t, record.Sizes, 2)
	m := record.Sizes[0]
	require.Equal(t, "M", m.SizeLabel)
	require.Equal(t, 570, m.StackMM)
	require.Equal(t, 380, m.ReachMM)
	require.Equal(t, 435, m.ChainstayMM)
	require.InDelta(t, 71.5, m.HeadAngleDeg, 1e-9)
	require.InDelta(t, 73.0, m.SeatAngleDeg, 1e-9)
	require.Equal(t, 70, m.BBDropMM)
	require.Equal(t, 1030, m.WheelbaseMM)
	require.NotNil(t, m.TopTubeMM)
	require.Equal(t, 545, *m.TopTubeMM)
	require.NotNil(t, m.HeadTubeMM)
	require.Equal(t, 155, *m.HeadTubeMM)
	require.Equal(t, "L", record.Sizes[1].SizeLabel)
}

func TestKrossExtractDeterministic(t *testing.T) {
	t.Parallel()

	e := NewKrossExtractor(nil)
	first, err := e.Extract(krossCachedPage(krossPage))
	require.NoError(t, err)
	second, err := e.Extract(krossCachedPage(krossPage))
	require.NoError(t, err)

	require.Equal(t, first, second)
}

func TestKrossExtractNoGeometryTable(t *testing.T) {
	t.Parallel()

	html := `<html><body><p>Produkt niedostępny</p></body></html>`
	record, err := NewKrossExtractor(nil).Extract(krossCachedPage(html))

	require.Nil(t, record)
	var parseErr *pipeline.ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestKrossExtractDropsInvalidSize(t *testing.T) {
	t.Parallel()

	// Size L misses its reach cell; only M should survive.
	html := `<html><body>
<table>
<thead><tr><th>Rozmiar</th><th>M</th><th>L</th></tr></thead>
<tbody>
<tr><td>Stack</td><td>570</td><td>590</td></tr>
<tr><td>Reach</td><td>380</td><td>-</td></tr>
<tr><td>CS - Długość tylnych widełek</td><td>435</td><td>435</td></tr>
<tr><td>HA - Kąt główki ramy</td><td>71,5</td><td>71,5</td></tr>
<tr><td>SA - Kąt rury podsiodłowej</td><td>73</td><td>73</td></tr>
<tr><td>BBDROP</td><td>70</td><td>70</td></tr>
<tr><td>WB - Baza kół</td><td>1030</td><td>1045</td></tr>
</tbody>
</table>
</body></html>`
	record, err := NewKrossExtractor(nil).Extract(krossCachedPage(html))
	require.NoError(t, err)
	require.Len(t, record.Sizes, 1)
	require.Equal(t, "M", record.Sizes[0].SizeLabel)
}

func TestKrossExtractRejectsImplausibleAngles(t *testing.T) {
	t.Parallel()

	html := `<html><body>
<table>
<thead><tr><th>Rozmiar</th><th>M</th></tr></thead>
<tbody>
<tr><td>Stack</td><td>570</td></tr>
<tr><td>Reach</td><td>380</td></tr>
<tr><td>CS - Długość tylnych widełek</td><td>435</td></tr>
<tr><td>HA - Kąt główki ramy</td><td>95</td></tr>
<tr><td>SA - Kąt rury podsiodłowej</td><td>73</td></tr>
<tr><td>BBDROP</td><td>70</td></tr>
<tr><td>WB - Baza kół</td><td>1030</td></tr>
</tbody>
</table>
</body></html>`
	record, err := NewKrossExtractor(nil).Extract(krossCachedPage(html))

	require.Nil(t, record)
	var parseErr *pipeline.ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestKrossWheelSizeFromSizeHeaders(t *testing.T) {
	t.Parallel()

	html := `<html><body>
<table>
<thead><tr><th>Rozmiar</th><th>M 29"</th></tr></thead>
<tbody>
<tr><td>Stack</td><td>570</td></tr>
<tr><td>Reach</td><td>380</td></tr>
<tr><td>CS - Długość tylnych widełek</td><td>435</td></tr>
<tr><td>HA - Kąt główki ramy</td><td>68</td></tr>
<tr><td>SA - Kąt rury podsiodłowej</td><td>74</td></tr>
<tr><td>BBDROP</td><td>60</td></tr>
<tr><td>WB - Baza kół</td><td>1150</td></tr>
</tbody>
</table>
</body></html>`
	record, err := NewKrossExtractor(nil).Extract(krossCachedPage(html))
	require.NoError(t, err)
	require.Equal(t, "700", record.WheelSize)
}
