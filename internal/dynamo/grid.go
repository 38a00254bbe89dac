package dynamo

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// MinNodes is the smallest grid extent per axis: the 13-point stencil needs a
// two-node margin on each side of at least one interior node.
const MinNodes = 5

// Grid owns the discretized plate and the three time levels of the
// displacement field. Work is scratch space for the biharmonic of Curr.
type Grid struct {
	Nx, Ny int
	Lx, Ly float64
	Dx, Dy float64

	Prev Field
	Curr Field
	Next Field
	Work Field

	xs, ys []float64
	seeded bool
}

// NewGrid allocates a grid of nx by ny nodes spanning [0,lx] x [0,ly].
func NewGrid(nx, ny int, lx, ly float64) (*Grid, error) {
	if nx < MinNodes || ny < MinNodes {
		return nil, fmt.Errorf("%w: nx=%d ny=%d", ErrInvalidGrid, nx, ny)
	}
	if !(lx > 0) || !(ly > 0) || math.IsInf(lx, 0) || math.IsInf(ly, 0) {
		return nil, fmt.Errorf("%w: lx=%g ly=%g", ErrInvalidGrid, lx, ly)
	}

	g := &Grid{
		Nx: nx, Ny: ny,
		Lx: lx, Ly: ly,
		Dx:   lx / float64(nx-1),
		Dy:   ly / float64(ny-1),
		Prev: NewField(nx, ny),
		Curr: NewField(nx, ny),
		Next: NewField(nx, ny),
		Work: NewField(nx, ny),
		xs:   make([]float64, nx),
		ys:   make([]float64, ny),
	}
	floats.Span(g.xs, 0, lx)
	floats.Span(g.ys, 0, ly)
	return g, nil
}

func (g *Grid) X(i int) float64 { return g.xs[i] }
func (g *Grid) Y(j int) float64 { return g.ys[j] }

// Coords returns copies of the node coordinates along each axis.
func (g *Grid) Coords() (xs, ys []float64) {
	xs = append([]float64(nil), g.xs...)
	ys = append([]float64(nil), g.ys...)
	return xs, ys
}

func (g *Grid) NewField() Field { return NewField(g.Nx, g.Ny) }

// Sample evaluates fn at every node.
func (g *Grid) Sample(fn func(x, y float64) float64) Field {
	f := g.NewField()
	for i := 0; i < g.Nx; i++ {
		x := g.xs[i]
		row := f.Data[i*g.Ny : (i+1)*g.Ny]
		for j := range row {
			row[j] = fn(x, g.ys[j])
		}
	}
	return f
}

// Seeded reports whether SetInitialState has populated Prev and Curr.
func (g *Grid) Seeded() bool { return g.seeded }

// SetInitialState sets Curr = u0 and bootstraps Prev with the first-order
// Taylor step Prev = u0 - dt*v0.
func (g *Grid) SetInitialState(u0, v0 Field, dt float64) error {
	if !(dt > 0) {
		return fmt.Errorf("%w: dt must be positive, got %g", ErrParameterBounds, dt)
	}
	if !g.Curr.SameShape(u0) || !g.Curr.SameShape(v0) {
		return fmt.Errorf("%w: initial fields must be %dx%d", ErrDimensionMismatch, g.Nx, g.Ny)
	}
	copy(g.Curr.Data, u0.Data)
	for k, u := range u0.Data {
		g.Prev.Data[k] = u - dt*v0.Data[k]
	}
	g.Next.Fill(0)
	g.seeded = true
	return nil
}

// SetLevels installs explicit Prev and Curr fields, for bootstraps that are
// computed outside the grid.
func (g *Grid) SetLevels(prev, curr Field) error {
	if !g.Curr.SameShape(prev) || !g.Curr.SameShape(curr) {
		return fmt.Errorf("%w: levels must be %dx%d", ErrDimensionMismatch, g.Nx, g.Ny)
	}
	copy(g.Prev.Data, prev.Data)
	copy(g.Curr.Data, curr.Data)
	g.Next.Fill(0)
	g.seeded = true
	return nil
}

// Rotate advances the buffer ring: Prev <- Curr, Curr <- Next. The old Prev
// buffer becomes the next write target, so no field is reallocated.
func (g *Grid) Rotate() {
	g.Prev, g.Curr, g.Next = g.Curr, g.Next, g.Prev
}
