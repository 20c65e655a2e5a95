package eit

import (
	"math"
	"strconv"
)

// CirclePoints returns ElectrodeCount evenly spaced points on the circle with
// center (cx, cy) and radius r. Point 0 is at the top (y = cy - r) and the
// points proceed clockwise in screen coordinates.
func CirclePoints(cx, cy, r float64) []Point {
	points := make([]Point, ElectrodeCount)
	for i := range points {
		theta := 2 * math.Pi * float64(i) / ElectrodeCount
		points[i] = Point{
			X: cx + r*math.Sin(theta),
			Y: cy - r*math.Cos(theta),
		}
	}
	return points
}

// ElectrodeLabel returns the display name of electrode i: nodes are numbered
// from 1 and each node has an A and a B electrode ("1A", "1B", "2A", ...).
func ElectrodeLabel(i int) string {
	suffix := "A"
	if i%2 == 1 {
		suffix = "B"
	}
	return strconv.Itoa(i/2+1) + suffix
}
