package eit

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// NormaliseData shifts data in place so its lowest value is 1 and returns it.
//
// When flatten is non-nil, values above mean + flatten*stddev (population
// standard deviation of the unclamped data) are first clamped to that bound.
// The shift is only applied when the minimum is zero or negative.
func NormaliseData(data []float64, flatten *float64) ([]float64, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: no readings to normalise", ErrEmptyInput)
	}

	if flatten != nil {
		mean, std := stat.PopMeanStdDev(data, nil)
		upper := mean + *flatten*std
		for i, v := range data {
			if v > upper {
				data[i] = upper
			}
		}
	}

	minValue := slices.Min(data)
	if minValue <= 0 {
		offset := math.Abs(minValue) + 1
		for i := range data {
			data[i] += offset
		}
	}

	return data, nil
}
