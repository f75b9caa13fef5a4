package depthio

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/smn.report/internal/cnv"
)

func TestReadLabelsTSV(t *testing.T) {
	t.Parallel()

	input := strings.Join([]string{
		"sample_id\tgene1_copy_number\tgene2_copy_number\tclinical_label\tvalidation_method",
		"s1\t0\t3\taffected\tMLPA",
		"s2\t1\t2\tcarrier\t",
	}, "\n")

	labels, err := ReadLabelsTSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, labels, 2)

	assert.Equal(t, cnv.TrainingLabel{
		SampleID: "s1", Gene1CopyNumber: 0, Gene2CopyNumber: 3,
		ClinicalLabel: "affected", ValidationMethod: "MLPA",
	}, labels[0])
	// Empty validation method defaults to MLPA.
	assert.Equal(t, "MLPA", labels[1].ValidationMethod)
}

func TestReadLabelsTSV_LegacyHeaders(t *testing.T) {
	t.Parallel()

	input := strings.Join([]string{
		"sample_id\tsmn1_copy_number\tsmn2_copy_number\tclinical_interpretation",
		"s1\t2\t2\tnormal",
	}, "\n")

	labels, err := ReadLabelsTSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, labels, 1)
	assert.Equal(t, 2, labels[0].Gene1CopyNumber)
	assert.Equal(t, "normal", labels[0].ClinicalLabel)
}

func TestReadLabelsTSV_Errors(t *testing.T) {
	t.Parallel()

	_, err := ReadLabelsTSV(strings.NewReader("sample_id\tgene1_copy_number\ns1\t2"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing column "gene2_copy_number"`)

	_, err = ReadLabelsTSV(strings.NewReader(
		"sample_id\tgene1_copy_number\tgene2_copy_number\n\t2\t2"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing sample_id")

	_, err = ReadLabelsTSV(strings.NewReader(
		"sample_id\tgene1_copy_number\tgene2_copy_number\ns1\tmaybe\t2"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unrecognized copy-number value")
}

func TestParseMLPACopyNumber(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want int
	}{
		{"0", 0},
		{"2", 2},
		{"4", 4},
		{"", 2},
		{"Homo del", 0},
		{"hetro del ex7", 1},
		{"het del", 1},
		{"hetro dup", 3},
		{"homo dup", 4},
		// Dosage ratios: 1.0 means two copies.
		{"0.05", 0},
		{"0.5", 1},
		{"1.0", 2},
		{"1.02", 2},
		{"1.5", 3},
		{"2.1", 4},
	}
	for _, tc := range cases {
		got, err := parseMLPACopyNumber(tc.in)
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}

	_, err := parseMLPACopyNumber("-1")
	assert.Error(t, err)
	_, err = parseMLPACopyNumber("dunno")
	assert.Error(t, err)
}
