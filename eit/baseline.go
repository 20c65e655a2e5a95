package eit

import "fmt"

// BaselineCorrection returns a new sequence holding data[i] - baseline[i]
func BaselineCorrection(data, baseline []float64) ([]float64, error) {
	if len(data) != len(baseline) {
		return nil, fmt.Errorf("%w: %d readings against %d baseline readings",
			ErrLengthMismatch, len(data), len(baseline))
	}

	corrected := make([]float64, len(data))
	for i := range data {
		corrected[i] = data[i] - baseline[i]
	}
	return corrected, nil
}
