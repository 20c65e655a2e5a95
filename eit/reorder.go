package eit

import "fmt"

// reorderMap lists destination <- source index pairs that undo the
// alphabetical sort applied to measurement names upstream. Per node the
// corrected order is right, left, far-left, far-right.
var reorderMap = [...][2]int{
	{0, 1}, {1, 2}, {2, 3}, {3, 0},
	{16, 17}, {17, 18}, {18, 19}, {19, 16},
	{20, 22}, {21, 23}, {22, 20}, {23, 21},
	{24, 26}, {25, 27}, {26, 24}, {27, 25},
	{28, 30}, {29, 31}, {30, 28}, {31, 29},
}

// CleanData reorders a raw reading sequence in place and returns it.
// Indices outside the five affected windows are left untouched.
func CleanData(data []float64) ([]float64, error) {
	if len(data) != ReadingCount {
		return nil, fmt.Errorf("%w: expected %d readings, got %d", ErrInvalidInput, ReadingCount, len(data))
	}

	// Read every source before writing so overlapping windows see raw values
	var src [len(reorderMap)]float64
	for i, m := range reorderMap {
		src[i] = data[m[1]]
	}
	for i, m := range reorderMap {
		data[m[0]] = src[i]
	}

	return data, nil
}
