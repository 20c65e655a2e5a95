package eit

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	backgroundColor = color.RGBA{255, 255, 255, 255}
	outlineColor    = color.RGBA{0, 0, 0, 255}
	electrodeColor  = color.RGBA{255, 0, 0, 255}
	textColor       = color.RGBA{0, 0, 0, 255}
)

// FieldRenderer renders a reconstructed field into a raster image with the
// sensor outline, electrode markers and a colour bar
type FieldRenderer struct {
	Size          int  // Edge length of the plot area in pixels
	Padding       int  // Padding around the plot area
	ColorbarWidth int  // Width of the colour bar; 0 disables it
	Labels        bool // Draw electrode labels
}

// NewFieldRenderer creates a renderer with default settings
func NewFieldRenderer(size int) *FieldRenderer {
	if size <= 0 {
		size = DefaultRenderSize
	}
	return &FieldRenderer{
		Size:          size,
		Padding:       30,
		ColorbarWidth: 16,
		Labels:        true,
	}
}

// Bounds returns the dimensions of the rendered image
func (r *FieldRenderer) Bounds() image.Rectangle {
	width := r.Size + 2*r.Padding
	if r.ColorbarWidth > 0 {
		// Gap, bar and room for the value labels
		width += r.Padding + r.ColorbarWidth + 60
	}
	return image.Rect(0, 0, width, r.Size+2*r.Padding)
}

// Render draws the field. NaN cells are left as background.
func (r *FieldRenderer) Render(f *Field) *image.RGBA {
	img := image.NewRGBA(r.Bounds())
	draw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, draw.Src)

	lo, hi, ok := f.Range()
	if !ok {
		lo, hi = 0, 0
	}
	norm := normaliser(lo, hi)

	// Field cells, nearest neighbour
	for py := 0; py < r.Size; py++ {
		row := py * f.Size / r.Size
		for px := 0; px < r.Size; px++ {
			col := px * f.Size / r.Size
			v := f.At(row, col)
			if math.IsNaN(v) {
				continue
			}
			img.Set(r.Padding+px, r.Padding+py, Viridis(norm(v)))
		}
	}

	// Sensor outline
	half := float64(r.Size) / 2
	cx, cy := float64(r.Padding)+half, float64(r.Padding)+half
	drawRing(img, cx, cy, half, 2, outlineColor)

	// Electrodes, in the same clockwise-from-top order as the anomaly nodes
	for i, p := range CirclePoints(cx, cy, half) {
		drawCircle(img, int(math.Round(p.X)), int(math.Round(p.Y)), 4, electrodeColor)
		if r.Labels {
			label := ElectrodeLabel(i)
			// Push labels outwards and centre them on the radial line
			lx := p.X + (p.X-cx)/half*14 - float64(len(label))*3.5
			ly := p.Y + (p.Y-cy)/half*14 + 4
			drawText(img, int(lx), int(ly), label, electrodeColor)
		}
	}

	if r.ColorbarWidth > 0 {
		r.drawColorbar(img, lo, hi)
	}

	return img
}

// drawColorbar draws a vertical gradient from hi (top) to lo (bottom) with value labels
func (r *FieldRenderer) drawColorbar(img *image.RGBA, lo, hi float64) {
	x0 := r.Padding*2 + r.Size
	for py := 0; py < r.Size; py++ {
		t := 1 - float64(py)/float64(r.Size-1)
		c := Viridis(t)
		for dx := 0; dx < r.ColorbarWidth; dx++ {
			img.Set(x0+dx, r.Padding+py, c)
		}
	}

	drawText(img, x0+r.ColorbarWidth+4, r.Padding+10, fmt.Sprintf("%.3g", hi), textColor)
	drawText(img, x0+r.ColorbarWidth+4, r.Padding+r.Size, fmt.Sprintf("%.3g", lo), textColor)
}

// EncodePNG renders the field and writes it as PNG
func (r *FieldRenderer) EncodePNG(w io.Writer, f *Field) error {
	return png.Encode(w, r.Render(f))
}

// SavePNG renders the field to a PNG file
func (r *FieldRenderer) SavePNG(path string, f *Field) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer func() { _ = file.Close() }()

	if err := r.EncodePNG(file, f); err != nil {
		return fmt.Errorf("encoding PNG: %w", err)
	}
	return nil
}

// drawCircle draws a filled circle
func drawCircle(img *image.RGBA, cx, cy, radius int, c color.RGBA) {
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius {
				x, y := cx+dx, cy+dy
				if x >= 0 && x < img.Bounds().Max.X && y >= 0 && y < img.Bounds().Max.Y {
					img.Set(x, y, c)
				}
			}
		}
	}
}

// drawRing draws a circle outline of the given thickness
func drawRing(img *image.RGBA, cx, cy, radius float64, thickness int, c color.RGBA) {
	steps := int(2*math.Pi*radius) * 2
	for i := 0; i < steps; i++ {
		theta := 2 * math.Pi * float64(i) / float64(steps)
		for t := 0; t < thickness; t++ {
			rr := radius - float64(t)
			x := int(math.Round(cx + rr*math.Cos(theta)))
			y := int(math.Round(cy + rr*math.Sin(theta)))
			if x >= 0 && x < img.Bounds().Max.X && y >= 0 && y < img.Bounds().Max.Y {
				img.Set(x, y, c)
			}
		}
	}
}

// drawText renders text onto an image at the specified baseline position
func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
