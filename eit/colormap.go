package eit

import (
	"image/color"
	"math"
)

// viridisStops samples the viridis colour map at nine evenly spaced positions
var viridisStops = [...]color.RGBA{
	{68, 1, 84, 255},
	{72, 40, 120, 255},
	{62, 73, 137, 255},
	{49, 104, 142, 255},
	{38, 130, 142, 255},
	{31, 158, 137, 255},
	{53, 183, 121, 255},
	{110, 206, 88, 255},
	{253, 231, 37, 255},
}

// Viridis maps t in [0, 1] onto the viridis colour map. Values outside the
// range are clamped and NaN maps to the lowest colour.
func Viridis(t float64) color.RGBA {
	if math.IsNaN(t) || t <= 0 {
		return viridisStops[0]
	}
	if t >= 1 {
		return viridisStops[len(viridisStops)-1]
	}

	pos := t * float64(len(viridisStops)-1)
	i := int(pos)
	frac := pos - float64(i)
	a, b := viridisStops[i], viridisStops[i+1]

	lerp := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x) + (float64(y)-float64(x))*frac))
	}
	return color.RGBA{lerp(a.R, b.R), lerp(a.G, b.G), lerp(a.B, b.B), 255}
}

// normaliser returns a function mapping field values onto [0, 1].
// A constant field maps to the middle of the colour map.
func normaliser(lo, hi float64) func(float64) float64 {
	if hi <= lo {
		return func(float64) float64 { return 0.5 }
	}
	span := hi - lo
	return func(v float64) float64 { return (v - lo) / span }
}
