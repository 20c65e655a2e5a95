package eit

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"gonum.org/v1/gonum/mat"
)

const (
	// DefaultGridSize is the edge length of the reconstruction grid
	DefaultGridSize = 32

	// DefaultLambda is the default smoothing weight of the inverse step
	DefaultLambda = 0.5

	// boundarySegments is the number of edges of the polygon approximating the sensor disc
	boundarySegments = 64
)

// Engine is a reconstruction back end. The pipeline hands it the anomaly
// list and background permittivity and receives a masked 2D field.
type Engine interface {
	// BuildMesh creates the simulation domain for the given electrode count
	BuildMesh(electrodes int) (*Mesh, error)

	// AssignPermittivity returns per-element permittivity with the anomalies applied
	AssignPermittivity(m *Mesh, anomalies []Anomaly, background float64) ([]float64, error)

	// ForwardSolve simulates the measurements for a permittivity distribution
	ForwardSolve(m *Mesh, excitation [][2]int, perm []float64) (*mat.VecDense, error)

	// InverseSolve reconstructs the change between reference v0 and v1
	InverseSolve(m *Mesh, v1, v0 *mat.VecDense) (*Field, error)
}

// Mesh is a square grid of cells covering [-1, 1] x [-1, 1]. Only cells
// whose centre lies inside the sensor disc take part in the simulation.
type Mesh struct {
	Size       int
	Cells      []Point // cell centres, row-major
	Interior   []int   // indices into Cells of cells inside the disc
	Electrodes []Point
	Boundary   orb.Ring

	position []int // Cells index -> position in Interior, or -1
}

// IsInterior reports whether the cell at index i lies inside the disc
func (m *Mesh) IsInterior(i int) bool {
	return m.position[i] >= 0
}

// ScanLines returns the adjacent excitation pattern: electrode i drives
// current towards electrode i+dist for every electrode.
func ScanLines(n, dist int) [][2]int {
	lines := make([][2]int, n)
	for i := range lines {
		lines[i] = [2]int{i, (i + dist) % n}
	}
	return lines
}

// GridEngine is a pixel-domain reconstruction engine. Its forward model
// observes cell permittivity directly and its inverse step is a
// Tikhonov-smoothed difference over the cell adjacency graph.
type GridEngine struct {
	Size   int
	Lambda float64
}

// NewGridEngine creates a grid engine, falling back to defaults for
// non-positive settings
func NewGridEngine(size int, lambda float64) *GridEngine {
	if size <= 0 {
		size = DefaultGridSize
	}
	if lambda < 0 {
		lambda = DefaultLambda
	}
	return &GridEngine{Size: size, Lambda: lambda}
}

// unitDisc returns a closed ring approximating the unit circle
func unitDisc() orb.Ring {
	ring := make(orb.Ring, 0, boundarySegments+1)
	for i := 0; i < boundarySegments; i++ {
		theta := 2 * math.Pi * float64(i) / boundarySegments
		ring = append(ring, orb.Point{math.Cos(theta), math.Sin(theta)})
	}
	return append(ring, ring[0])
}

// BuildMesh lays the grid over the unit disc
func (e *GridEngine) BuildMesh(electrodes int) (*Mesh, error) {
	if electrodes != ElectrodeCount {
		return nil, fmt.Errorf("%w: grid engine supports %d electrodes, got %d", ErrInvalidInput, ElectrodeCount, electrodes)
	}
	size := e.Size
	if size <= 0 {
		size = DefaultGridSize
	}

	m := &Mesh{
		Size:       size,
		Cells:      make([]Point, size*size),
		Electrodes: CirclePoints(0, 0, 1),
		Boundary:   unitDisc(),
		position:   make([]int, size*size),
	}

	step := 2.0 / float64(size)
	for r := 0; r < size; r++ {
		for c := 0; c < size; c++ {
			idx := r*size + c
			p := Point{X: -1 + (float64(c)+0.5)*step, Y: -1 + (float64(r)+0.5)*step}
			m.Cells[idx] = p
			m.position[idx] = -1
			if planar.RingContains(m.Boundary, orb.Point{p.X, p.Y}) {
				m.position[idx] = len(m.Interior)
				m.Interior = append(m.Interior, idx)
			}
		}
	}

	return m, nil
}

// AssignPermittivity sets every cell to background, then gives interior
// cells closer than D to an anomaly centre that anomaly's permittivity.
// Later anomalies overwrite earlier ones where they overlap.
func (e *GridEngine) AssignPermittivity(m *Mesh, anomalies []Anomaly, background float64) ([]float64, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: mesh is nil", ErrInvalidInput)
	}

	perm := make([]float64, len(m.Cells))
	for i := range perm {
		perm[i] = background
	}

	for _, a := range anomalies {
		centre := orb.Point{a.X, a.Y}
		for _, idx := range m.Interior {
			cell := m.Cells[idx]
			if planar.Distance(orb.Point{cell.X, cell.Y}, centre) < a.D {
				perm[idx] = a.Perm
			}
		}
	}

	return perm, nil
}

// ForwardSolve returns the permittivity of the interior cells
func (e *GridEngine) ForwardSolve(m *Mesh, excitation [][2]int, perm []float64) (*mat.VecDense, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: mesh is nil", ErrInvalidInput)
	}
	if len(perm) != len(m.Cells) {
		return nil, fmt.Errorf("%w: %d permittivity values for %d cells", ErrInvalidInput, len(perm), len(m.Cells))
	}
	if len(excitation) == 0 {
		return nil, fmt.Errorf("%w: empty excitation pattern", ErrInvalidInput)
	}
	for _, line := range excitation {
		for _, el := range line {
			if el < 0 || el >= len(m.Electrodes) {
				return nil, fmt.Errorf("%w: excitation electrode %d out of range", ErrInvalidInput, el)
			}
		}
	}

	v := mat.NewVecDense(len(m.Interior), nil)
	for k, idx := range m.Interior {
		v.SetVec(k, perm[idx])
	}
	return v, nil
}

// InverseSolve solves (I + lambda*L) x = v1 - v0, where L is the graph
// Laplacian of 4-neighbour interior cells, and scatters x into a field.
func (e *GridEngine) InverseSolve(m *Mesh, v1, v0 *mat.VecDense) (*Field, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: mesh is nil", ErrInvalidInput)
	}
	n := len(m.Interior)
	if v1.Len() != n || v0.Len() != n {
		return nil, fmt.Errorf("%w: measurement lengths %d and %d, want %d", ErrInvalidInput, v1.Len(), v0.Len(), n)
	}

	var diff mat.VecDense
	diff.SubVec(v1, v0)

	a := mat.NewSymDense(n, nil)
	for k := 0; k < n; k++ {
		a.SetSym(k, k, 1)
	}
	for k, idx := range m.Interior {
		r, c := idx/m.Size, idx%m.Size
		// Right and down neighbours cover every edge once
		for _, nb := range [][2]int{{r, c + 1}, {r + 1, c}} {
			if nb[0] >= m.Size || nb[1] >= m.Size {
				continue
			}
			j := m.position[nb[0]*m.Size+nb[1]]
			if j < 0 {
				continue
			}
			a.SetSym(k, k, a.At(k, k)+e.Lambda)
			a.SetSym(j, j, a.At(j, j)+e.Lambda)
			a.SetSym(k, j, -e.Lambda)
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(a); !ok {
		return nil, fmt.Errorf("inverse solve: system is not positive definite")
	}
	var x mat.VecDense
	if err := chol.SolveVecTo(&x, &diff); err != nil {
		return nil, fmt.Errorf("inverse solve: %w", err)
	}

	field := &Field{Size: m.Size, Values: make([]float64, len(m.Cells))}
	for i := range field.Values {
		field.Values[i] = math.NaN()
	}
	for k, idx := range m.Interior {
		field.Values[idx] = x.AtVec(k)
	}
	return field, nil
}
