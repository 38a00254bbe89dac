package integrators

import (
	"fmt"
	"math"

	"github.com/san-kum/platesim/internal/dynamo"
	"github.com/san-kum/platesim/internal/physics"
)

const rowChunk = 32

// Leapfrog advances u_tt + D*biharmonic(u) = 0 with the three-level central
// difference
//
//	u_next = 2*u_curr - u_prev - dt^2 * D*biharmonic(u_curr)
//
// It holds no field state of its own; every buffer lives on the grid.
type Leapfrog struct {
	plate *physics.Plate
}

func NewLeapfrog(plate *physics.Plate) *Leapfrog {
	return &Leapfrog{plate: plate}
}

func (l *Leapfrog) Plate() *physics.Plate { return l.plate }

// Step writes the next level into g.Next, pins its edge ring and rotates the
// buffers. On error the grid is left as it was before the call.
func (l *Leapfrog) Step(g *dynamo.Grid, dt float64) error {
	if l.plate == nil {
		return fmt.Errorf("%w: leapfrog has no plate", dynamo.ErrNotInitialized)
	}
	if !g.Seeded() {
		return dynamo.ErrNotInitialized
	}
	if !(dt > 0) || math.IsInf(dt, 0) {
		return fmt.Errorf("%w: dt must be positive, got %g", dynamo.ErrParameterBounds, dt)
	}

	if err := l.plate.Operator(g.Curr, g.Dx, g.Dy, g.Work); err != nil {
		return err
	}

	dt2 := dt * dt
	ny := g.Ny
	prev, curr, next, work := g.Prev.Data, g.Curr.Data, g.Next.Data, g.Work.Data
	dynamo.ParallelFor(g.Nx, rowChunk, l.plate.Workers, func(start, end int) {
		for p := start * ny; p < end*ny; p++ {
			next[p] = 2*curr[p] - prev[p] - dt2*work[p]
		}
	})

	if err := l.plate.Policy.Enforce(g.Next); err != nil {
		return err
	}
	g.Rotate()
	return nil
}
