package eit

import (
	"fmt"
	"slices"
)

const (
	// minDiameter is the diameter given to nodes without a measured width
	minDiameter = 0.1

	// diameterSpan is the width added on top of minDiameter for the widest blockage
	diameterSpan = 0.3
)

// CreateAnomaly converts a cleaned, normalised reading sequence into one
// anomaly per node, positioned on every other electrode of the unit circle.
//
// A node whose right or left reading exceeds 1 holds the blockage itself:
// its permittivity becomes the mean far reading and its diameter is the mean
// near reading mapped linearly onto [0.1, 0.4]. Otherwise the far readings
// are attributed to the opposite node. Permittivity values are never
// lowered once raised.
func CreateAnomaly(data []float64) ([]Anomaly, error) {
	if len(data) != ReadingCount {
		return nil, fmt.Errorf("%w: expected %d readings, got %d", ErrInvalidInput, ReadingCount, len(data))
	}

	maxValue := slices.Max(data)
	minValue := slices.Min(data)
	if maxValue == minValue {
		return nil, fmt.Errorf("%w: all readings equal %g", ErrDegenerateInput, minValue)
	}

	points := CirclePoints(0, 0, 1)
	anomaly := make([]Anomaly, NodeCount)
	for i := range anomaly {
		p := points[2*i]
		anomaly[i] = Anomaly{X: p.X, Y: p.Y, D: minDiameter, Perm: Background}
	}

	for i := range anomaly {
		right, left := data[ReadingsPerNode*i], data[ReadingsPerNode*i+1]
		farLeft, farRight := data[ReadingsPerNode*i+2], data[ReadingsPerNode*i+3]
		opposite := (i + NodeCount/2) % NodeCount

		presentAtNode := right > 1 || left > 1
		blockageDepth := (farLeft + farRight) / 2
		blockageWidth := (right + left) / 2

		if !presentAtNode {
			// Strong reading with no width: the blockage sits across the ring
			if anomaly[opposite].Perm < blockageDepth {
				anomaly[opposite].Perm = blockageDepth
			}
			continue
		}

		if anomaly[i].Perm < blockageDepth {
			anomaly[i].Perm = blockageDepth
		}
		anomaly[i].D = minDiameter + (blockageWidth-minValue)*(diameterSpan/(maxValue-minValue))
	}

	return anomaly, nil
}
