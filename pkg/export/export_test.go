package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sample() Dataset {
	return Dataset{
		Title: "Attendance report",
		Columns: []Column{
			{Key: "period", Title: "Period"},
			{Key: "rate", Title: "Rate (%)"},
		},
		Rows: []map[string]string{
			{"period": "2024-01-01", "rate": "94"},
			{"period": "2024-01-08", "rate": "90"},
		},
	}
}

func TestCSVRender(t *testing.T) {
	out, err := NewCSVExporter().Render(sample())
	require.NoError(t, err)

	text := strings.TrimPrefix(string(out), "\ufeff")
	assert.Equal(t, "Period,Rate (%)\n2024-01-01,94\n2024-01-08,90\n", text)
}

func TestXLSXRender(t *testing.T) {
	out, err := NewXLSXExporter().Render(sample())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Attendance report")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Period", "Rate (%)"}, {"2024-01-01", "94"}, {"2024-01-08", "90"}}, rows)
}

func TestPDFRender(t *testing.T) {
	out, err := NewPDFExporter().Render(sample())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestRenderRequiresColumns(t *testing.T) {
	for _, f := range []Format{FormatCSV, FormatXLSX, FormatPDF} {
		r, err := RendererFor(f)
		require.NoError(t, err)
		_, err = r.Render(Dataset{})
		assert.Error(t, err, f)
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("Excel")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)

	_, err = ParseFormat("docx")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestFilename(t *testing.T) {
	at := time.Date(2024, 3, 7, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "attendance-report-07-03-2024.xlsx", Filename("attendance-report", at, FormatXLSX))
}
