package eit

import (
	"fmt"
	"image/color"
	"image/png"
	"io"
	"math"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
)

// VectorRenderer renders a reconstructed field as vector graphics
type VectorRenderer struct {
	CellSize   float64           // Edge length of one field cell in millimeters
	Padding    float64           // Padding around the plot in millimeters
	Resolution canvas.Resolution // Resolution for PNG output (default: 300 DPI)
}

// NewVectorRenderer creates a vector renderer with default settings
func NewVectorRenderer() *VectorRenderer {
	return &VectorRenderer{
		CellSize:   3.0,
		Padding:    10.0,
		Resolution: canvas.DPI(300),
	}
}

// canvasRenderer is an interface that both svg and rasterizer renderers implement
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

func (r *VectorRenderer) dimensions(f *Field) (plot, total float64) {
	plot = float64(f.Size) * r.CellSize
	return plot, plot + 2*r.Padding
}

// RenderToSVG writes the field as an SVG to the provided writer
func (r *VectorRenderer) RenderToSVG(w io.Writer, f *Field) error {
	if f == nil || f.Size == 0 {
		return fmt.Errorf("%w: empty field", ErrInvalidInput)
	}
	_, total := r.dimensions(f)

	svgRenderer := svg.New(w, total, total, nil)
	r.renderToCanvas(svgRenderer, f)

	// Close writes the closing tags
	return svgRenderer.Close()
}

// RenderToPNG writes the field as a rasterised PNG to the provided writer
func (r *VectorRenderer) RenderToPNG(w io.Writer, f *Field) error {
	if f == nil || f.Size == 0 {
		return fmt.Errorf("%w: empty field", ErrInvalidInput)
	}
	_, total := r.dimensions(f)

	rast := rasterizer.New(total, total, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, f)

	return png.Encode(w, rast)
}

// renderToCanvas draws the field, outline and electrodes. Positions are
// computed in screen space (y down) and flipped into canvas space (y up).
func (r *VectorRenderer) renderToCanvas(renderer canvasRenderer, f *Field) {
	plot, total := r.dimensions(f)
	flip := func(x, y float64) (float64, float64) {
		return x, total - y
	}

	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	bgStyle.Stroke = canvas.Paint{Color: canvas.Transparent}
	renderer.RenderPath(canvas.Rectangle(total, total), bgStyle, canvas.Identity)

	lo, hi, _ := f.Range()
	norm := normaliser(lo, hi)

	cellStyle := canvas.DefaultStyle
	cellStyle.Stroke = canvas.Paint{Color: canvas.Transparent}
	for row := 0; row < f.Size; row++ {
		for col := 0; col < f.Size; col++ {
			v := f.At(row, col)
			if math.IsNaN(v) {
				continue
			}
			cellStyle.Fill = canvas.Paint{Color: Viridis(norm(v))}
			// Bottom-left corner of the cell in canvas space
			x, y := flip(r.Padding+float64(col)*r.CellSize, r.Padding+float64(row+1)*r.CellSize)
			// Slight overlap hides hairline seams between cells
			cell := canvas.Rectangle(r.CellSize*1.02, r.CellSize*1.02).Translate(x, y)
			renderer.RenderPath(cell, cellStyle, canvas.Identity)
		}
	}

	half := plot / 2
	cx, cy := r.Padding+half, r.Padding+half

	outlineStyle := canvas.DefaultStyle
	outlineStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	outlineStyle.Stroke = canvas.Paint{Color: canvas.Black}
	outlineStyle.StrokeWidth = 0.5
	ox, oy := flip(cx, cy)
	renderer.RenderPath(canvas.Circle(half).Translate(ox, oy), outlineStyle, canvas.Identity)

	electrodeStyle := canvas.DefaultStyle
	electrodeStyle.Fill = canvas.Paint{Color: color.RGBA{255, 0, 0, 255}}
	electrodeStyle.Stroke = canvas.Paint{Color: canvas.Transparent}
	for _, p := range CirclePoints(cx, cy, half) {
		ex, ey := flip(p.X, p.Y)
		renderer.RenderPath(canvas.Circle(1.2).Translate(ex, ey), electrodeStyle, canvas.Identity)
	}
}
