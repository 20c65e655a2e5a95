package eit

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// writeCSV writes a measurement export with frequency columns 20, 50 and 100
func writeCSV(t *testing.T, readings int) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("20,50,100\n")
	for i := 0; i < readings; i++ {
		fmt.Fprintf(&b, "%d,%d.5,%d\n", i, i, -i)
	}
	path := filepath.Join(t.TempDir(), "export.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0644))
	return path
}

// writeWorkbook writes the same layout as writeCSV to an .xlsx file
func writeWorkbook(t *testing.T, readings int) string {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	for c, header := range []int{20, 50, 100} {
		cell, err := excelize.CoordinatesToCellName(c+1, 1)
		require.NoError(t, err)
		require.NoError(t, f.SetCellValue(sheet, cell, header))
	}
	for i := 0; i < readings; i++ {
		for c, v := range []float64{float64(i), float64(i) + 0.5, float64(-i)} {
			cell, err := excelize.CoordinatesToCellName(c+1, i+2)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue(sheet, cell, v))
		}
	}

	path := filepath.Join(t.TempDir(), "export.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestValidateFrequency(t *testing.T) {
	for _, freq := range []int{20, 55, 100} {
		assert.NoError(t, ValidateFrequency(freq), "frequency %d", freq)
	}
	for _, freq := range []int{0, 19, 101, -20} {
		assert.ErrorIs(t, ValidateFrequency(freq), ErrFrequencyOutOfRange, "frequency %d", freq)
	}
}

func TestLoadFrequencyColumn_CSV(t *testing.T) {
	path := writeCSV(t, ReadingCount)

	tests := []struct {
		freq  int
		index int
		want  float64
	}{
		{20, 3, 3},
		{50, 3, 3.5},
		{100, 3, -3},
		{100, 31, -31},
	}
	for _, tt := range tests {
		got, err := LoadFrequencyColumn(path, tt.freq)
		require.NoError(t, err)
		require.Len(t, got, ReadingCount)
		assert.Equal(t, tt.want, got[tt.index])
	}
}

func TestLoadFrequencyColumn_Workbook(t *testing.T) {
	path := writeWorkbook(t, ReadingCount)

	got, err := LoadFrequencyColumn(path, 50)
	require.NoError(t, err)
	require.Len(t, got, ReadingCount)
	assert.Equal(t, 0.5, got[0])
	assert.Equal(t, 31.5, got[31])
}

func TestLoadFrequencyColumn_Errors(t *testing.T) {
	dir := t.TempDir()
	txt := filepath.Join(dir, "export.txt")
	require.NoError(t, os.WriteFile(txt, []byte("20\n1\n"), 0644))

	tests := []struct {
		name string
		path string
		freq int
		want error
	}{
		{"missing file", filepath.Join(dir, "nope.xlsx"), 20, ErrFileNotFound},
		{"empty path", "", 20, ErrInvalidFormat},
		{"unknown extension", txt, 20, ErrInvalidFormat},
		{"missing column", writeCSV(t, 4), 30, ErrInvalidFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrequencyColumn(tt.path, tt.freq)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestExtractColumn(t *testing.T) {
	tests := []struct {
		name    string
		csv     string
		freq    int
		want    []float64
		wantErr error
	}{
		{
			name: "decimal header",
			csv:  "20.0,100.0\n1,2\n3,4\n",
			freq: 100,
			want: []float64{2, 4},
		},
		{
			name: "trailing blanks skipped",
			csv:  "20,100\n1,2\n3,\n,\n",
			freq: 20,
			want: []float64{1, 3},
		},
		{
			name: "short rows",
			csv:  "20,100\n1,2\n3\n",
			freq: 20,
			want: []float64{1, 3},
		},
		{
			name:    "gap in column",
			csv:     "20,100\n1,2\n,4\n5,6\n",
			freq:    20,
			wantErr: ErrInvalidFormat,
		},
		{
			name:    "non numeric cell",
			csv:     "20,100\n1,x\n",
			freq:    100,
			wantErr: ErrInvalidFormat,
		},
		{
			name:    "empty column",
			csv:     "20,100\n,1\n",
			freq:    20,
			wantErr: ErrInvalidFormat,
		},
		{
			name:    "label header",
			csv:     "Frequency,100\n1,2\n",
			freq:    20,
			wantErr: ErrInvalidFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := parseCSV(strings.NewReader(tt.csv))
			require.NoError(t, err)

			got, err := extractColumn(rows, tt.freq)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractColumn_NoRows(t *testing.T) {
	_, err := extractColumn(nil, 20)
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestOpenFileAtFrequency(t *testing.T) {
	input := writeWorkbook(t, ReadingCount)
	baseline := writeCSV(t, ReadingCount)

	data, base, err := OpenFileAtFrequency(input, 20, "")
	require.NoError(t, err)
	assert.Len(t, data, ReadingCount)
	assert.Nil(t, base)

	data, base, err = OpenFileAtFrequency(input, 100, baseline)
	require.NoError(t, err)
	assert.Len(t, data, ReadingCount)
	assert.Len(t, base, ReadingCount)
}

func TestOpenFileAtFrequency_Errors(t *testing.T) {
	input := writeCSV(t, ReadingCount)

	_, _, err := OpenFileAtFrequency(input, 10, "")
	assert.ErrorIs(t, err, ErrFrequencyOutOfRange)

	_, _, err = OpenFileAtFrequency(input, 100, filepath.Join(t.TempDir(), "missing.csv"))
	assert.ErrorIs(t, err, ErrFileNotFound)
	assert.Contains(t, err.Error(), "baseline file")
}
