package physics

import (
	"fmt"

	"github.com/san-kum/platesim/internal/dynamo"
)

// rowChunk is the minimum number of grid rows handed to one worker.
const rowChunk = 16

// coeffs are the inverse spacing powers of the 13-point stencil.
type coeffs struct {
	x4, y4, xy float64
}

func newCoeffs(dx, dy float64) coeffs {
	dx2, dy2 := dx*dx, dy*dy
	return coeffs{x4: 1 / (dx2 * dx2), y4: 1 / (dy2 * dy2), xy: 1 / (dx2 * dy2)}
}

// neighborhood holds the 13 stencil values around node (i, j). w/e step in
// x (i-1, i+1), s/n step in y (j-1, j+1).
type neighborhood struct {
	c              float64
	w1, w2, e1, e2 float64
	s1, s2, n1, n2 float64
	sw, nw, se, ne float64
}

// eval is the only place the discrete biharmonic is formed; the interior
// pass and the boundary band both go through it so their arithmetic agrees.
func (k coeffs) eval(n *neighborhood) float64 {
	uxxxx := (n.w2 - 4*n.w1 + 6*n.c - 4*n.e1 + n.e2) * k.x4
	uyyyy := (n.s2 - 4*n.s1 + 6*n.c - 4*n.n1 + n.n2) * k.y4
	uxxyy := (n.sw - 2*n.w1 + n.nw - 2*n.s1 + 4*n.c - 2*n.n1 + n.se - 2*n.e1 + n.ne) * k.xy
	return uxxxx + 2*uxxyy + uyyyy
}

func gather(at func(i, j int) float64, i, j int) neighborhood {
	return neighborhood{
		c:  at(i, j),
		w1: at(i-1, j), w2: at(i-2, j), e1: at(i+1, j), e2: at(i+2, j),
		s1: at(i, j-1), s2: at(i, j-2), n1: at(i, j+1), n2: at(i, j+2),
		sw: at(i-1, j-1), nw: at(i-1, j+1), se: at(i+1, j-1), ne: at(i+1, j+1),
	}
}

// ApplyBiharmonic writes the 13-point approximation of the biharmonic of u
// into out at every node with at least two nodes between it and each edge.
// Nodes closer to an edge are left untouched; they belong to the boundary
// policy. u is only read.
func ApplyBiharmonic(u dynamo.Field, dx, dy float64, out dynamo.Field) error {
	return applyBiharmonic(u, dx, dy, out, 0)
}

func applyBiharmonic(u dynamo.Field, dx, dy float64, out dynamo.Field, workers int) error {
	if !u.SameShape(out) {
		return fmt.Errorf("%w: input %dx%d, output %dx%d", dynamo.ErrDimensionMismatch, u.Nx, u.Ny, out.Nx, out.Ny)
	}
	if u.Nx < dynamo.MinNodes || u.Ny < dynamo.MinNodes {
		return fmt.Errorf("%w: field %dx%d has no stencil interior", dynamo.ErrDimensionMismatch, u.Nx, u.Ny)
	}

	k := newCoeffs(dx, dy)
	nx, ny := u.Nx, u.Ny
	d := u.Data

	dynamo.ParallelFor(nx-4, rowChunk, workers, func(start, end int) {
		var n neighborhood
		for i := start + 2; i < end+2; i++ {
			row := i * ny
			for j := 2; j < ny-2; j++ {
				p := row + j
				n.c = d[p]
				n.w1, n.w2 = d[p-ny], d[p-2*ny]
				n.e1, n.e2 = d[p+ny], d[p+2*ny]
				n.s1, n.s2 = d[p-1], d[p-2]
				n.n1, n.n2 = d[p+1], d[p+2]
				n.sw, n.nw = d[p-ny-1], d[p-ny+1]
				n.se, n.ne = d[p+ny-1], d[p+ny+1]
				out.Data[p] = k.eval(&n)
			}
		}
	})
	return nil
}
