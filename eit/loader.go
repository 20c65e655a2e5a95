package eit

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	// MinFrequency and MaxFrequency bound the measured frequency columns (inclusive)
	MinFrequency = 20
	MaxFrequency = 100
)

// ValidateFrequency checks that freq is a supported measurement frequency
func ValidateFrequency(freq int) error {
	if freq < MinFrequency || freq > MaxFrequency {
		return fmt.Errorf("%w: %d, enter a whole number frequency between %d and %d inclusive",
			ErrFrequencyOutOfRange, freq, MinFrequency, MaxFrequency)
	}
	return nil
}

// OpenFileAtFrequency reads the input workbook, and the baseline workbook
// when baselinePath is not empty, at the given frequency. The returned
// baseline is nil when no baseline path is given.
func OpenFileAtFrequency(inputPath string, freq int, baselinePath string) (data, baseline []float64, err error) {
	if err := ValidateFrequency(freq); err != nil {
		return nil, nil, err
	}

	data, err = LoadFrequencyColumn(inputPath, freq)
	if err != nil {
		return nil, nil, fmt.Errorf("input file: %w", err)
	}

	if baselinePath != "" {
		baseline, err = LoadFrequencyColumn(baselinePath, freq)
		if err != nil {
			return nil, nil, fmt.Errorf("baseline file: %w", err)
		}
	}

	return data, baseline, nil
}

// LoadFrequencyColumn reads the column headed by freq from the first sheet
// of an .xlsx workbook or from a .csv file.
func LoadFrequencyColumn(path string, freq int) ([]float64, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty file path", ErrInvalidFormat)
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("reading file: %w", err)
	}

	var rows [][]string
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		rows, err = readWorkbookRows(path)
	case ".csv":
		rows, err = readCSVRows(path)
	default:
		return nil, fmt.Errorf("%w: unsupported file type %q", ErrInvalidFormat, filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	return extractColumn(rows, freq)
}

// readWorkbookRows returns the cell text of the first sheet
func readWorkbookRows(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening workbook %s: %v", ErrInvalidFormat, path, err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook %s has no sheets", ErrInvalidFormat, path)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: reading sheet %q: %v", ErrInvalidFormat, sheets[0], err)
	}
	return rows, nil
}

func readCSVRows(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	defer func() { _ = file.Close() }()

	return parseCSV(file)
}

func parseCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: parsing csv: %v", ErrInvalidFormat, err)
	}
	return rows, nil
}

// extractColumn finds the header cell equal to freq and parses the values below it.
// Blank cells at the end of the column are ignored.
func extractColumn(rows [][]string, freq int) ([]float64, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no header row", ErrInvalidFormat)
	}

	col := -1
	for i, h := range rows[0] {
		v, err := strconv.ParseFloat(strings.TrimSpace(h), 64)
		if err == nil && v == float64(freq) {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("%w: no column for frequency %d", ErrInvalidFormat, freq)
	}

	var values []float64
	blanks := 0
	for r, row := range rows[1:] {
		cell := ""
		if col < len(row) {
			cell = strings.TrimSpace(row[col])
		}
		if cell == "" {
			blanks++
			continue
		}
		if blanks > 0 {
			return nil, fmt.Errorf("%w: blank cell in frequency %d column above row %d", ErrInvalidFormat, freq, r+2)
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %q is not a number", ErrInvalidFormat, r+2, cell)
		}
		values = append(values, v)
	}

	if len(values) == 0 {
		return nil, fmt.Errorf("%w: frequency %d column is empty", ErrInvalidFormat, freq)
	}
	return values, nil
}
