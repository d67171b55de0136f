package extractor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractNumber(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want float64
	}{
		{"plain integer", "560", 560},
		{"decimal point", "56.6", 56.6},
		{"decimal comma", "74,5", 74.5},
		{"degree suffix", "74,5°", 74.5},
		{"unit suffix", "430 mm", 430},
		{"embedded", "ok 12,5 kg", 12.5},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ExtractNumber(tt.in)
			require.NoError(t, err)
			require.InDelta(t, tt.want, got, 1e-9)
		})
	}

	_, err := ExtractNumber("brak danych")
	require.Error(t, err)
}

func TestLengthMMCentimeterHeuristic(t *testing.T) {
	t.Parallel()

	// Below the threshold reads as centimeters, above stays millimeters.
	require.Equal(t, 560, LengthMM(56.0, true))
	require.Equal(t, 560, LengthMM(560, true))
	require.Equal(t, 1004, LengthMM(100.4, true))

	// With the heuristic off, small values pass through unscaled.
	require.Equal(t, 56, LengthMM(56.0, false))
	require.Equal(t, 110, LengthMM(110, false))
}

func TestNormalizeWheelSize(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"29", "28", "700", `29"`, "700c"} {
		require.Equal(t, "700", NormalizeWheelSize(in), "input %q", in)
	}
	require.Equal(t, "584", NormalizeWheelSize("27.5"))
	require.Equal(t, "584", NormalizeWheelSize("27,5"))
	require.Equal(t, "559", NormalizeWheelSize(`26"`))
	require.Equal(t, "406", NormalizeWheelSize("20"))

	// Unknown tokens pass through cleaned.
	require.Equal(t, "650b", NormalizeWheelSize("650B"))
}

func TestNormalizeLabel(t *testing.T) {
	t.Parallel()

	require.Equal(t, "M", NormalizeLabel("M "))
	require.Equal(t, "M", NormalizeLabel(" M"))
	require.Equal(t, "XL (58 cm)", NormalizeLabel("XL   (58 cm)"))
}

func TestSimpleTypes(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"gravel"}, SimpleTypes([]string{"Rowery Gravel"}))
	require.Equal(t, []string{"mtb"}, SimpleTypes([]string{"Rowery górskie"}))
	require.Equal(t, []string{"kids", "mtb"}, SimpleTypes([]string{"MTB Junior"}))
	require.Equal(t, []string{"road"}, SimpleTypes([]string{"Szosowe"}))
	require.Equal(t, []string{"other"}, SimpleTypes(nil))
	require.Equal(t, []string{"other"}, SimpleTypes([]string{"Akcesoria"}))
}

func TestMaterialGroup(t *testing.T) {
	t.Parallel()

	require.Equal(t, "carbon", MaterialGroup("Włókno węglowe OCLV 500"))
	require.Equal(t, "aluminum", MaterialGroup("Aluminium 6061"))
	require.Equal(t, "aluminum", MaterialGroup("Alpha Alu"))
	require.Equal(t, "steel", MaterialGroup("CrMo"))
	require.Equal(t, "titanium", MaterialGroup("Tytan 3AL/2.5V"))
	require.Equal(t, "other", MaterialGroup(""))
	require.Equal(t, "other", MaterialGroup("Bambus"))
}
