package physics

import (
	"fmt"

	"github.com/san-kum/platesim/internal/dynamo"
)

// BoundaryPolicy enforces one edge condition on all four plate edges.
//
// The outer node ring is the physical edge and is pinned to zero. Nodes one
// cell inside the edge need values one cell outside the plate; those ghost
// values are the mirror image of the first interior ring:
//
//	clamped:          u[-1] =  u[1]  (zero normal slope)
//	simply supported: u[-1] = -u[1]  (zero curvature)
type BoundaryPolicy struct {
	Kind dynamo.BoundaryKind
}

func NewBoundaryPolicy(kind dynamo.BoundaryKind) (BoundaryPolicy, error) {
	if !kind.Valid() {
		return BoundaryPolicy{}, fmt.Errorf("%w: %v", dynamo.ErrUnsupportedBoundary, kind)
	}
	return BoundaryPolicy{Kind: kind}, nil
}

func (p BoundaryPolicy) reflection() (float64, error) {
	switch p.Kind {
	case dynamo.Clamped:
		return 1, nil
	case dynamo.SimplySupported:
		return -1, nil
	default:
		return 0, fmt.Errorf("%w: %v", dynamo.ErrUnsupportedBoundary, p.Kind)
	}
}

// ghost reads u at (i, j), reflecting indices that fall outside the plate
// about the nearest edge.
func ghost(u dynamo.Field, sign float64, i, j int) float64 {
	s := 1.0
	if i < 0 {
		i, s = -i, s*sign
	} else if last := u.Nx - 1; i > last {
		i, s = 2*last-i, s*sign
	}
	if j < 0 {
		j, s = -j, s*sign
	} else if last := u.Ny - 1; j > last {
		j, s = 2*last-j, s*sign
	}
	return s * u.Data[i*u.Ny+j]
}

// Ghost returns the value of u at a node up to one grid extent outside the
// plate, using this policy's reflection.
func (p BoundaryPolicy) Ghost(u dynamo.Field, i, j int) (float64, error) {
	sign, err := p.reflection()
	if err != nil {
		return 0, err
	}
	if i < -(u.Nx-1) || i > 2*(u.Nx-1) || j < -(u.Ny-1) || j > 2*(u.Ny-1) {
		return 0, fmt.Errorf("%w: ghost (%d,%d) outside reflection range", dynamo.ErrDimensionMismatch, i, j)
	}
	return ghost(u, sign, i, j), nil
}

// Padded materializes u with a margin of ghost nodes on every side, so the
// result is (Nx+2*margin) x (Ny+2*margin).
func (p BoundaryPolicy) Padded(u dynamo.Field, margin int) (dynamo.Field, error) {
	sign, err := p.reflection()
	if err != nil {
		return dynamo.Field{}, err
	}
	if margin < 0 || margin > u.Nx-1 || margin > u.Ny-1 {
		return dynamo.Field{}, fmt.Errorf("%w: margin %d", dynamo.ErrParameterBounds, margin)
	}
	out := dynamo.NewField(u.Nx+2*margin, u.Ny+2*margin)
	for i := 0; i < out.Nx; i++ {
		for j := 0; j < out.Ny; j++ {
			out.Set(i, j, ghost(u, sign, i-margin, j-margin))
		}
	}
	return out, nil
}

// ApplyBand writes the biharmonic of u into out for the ring-adjacent band:
// non-edge nodes with i in {1, Nx-2} or j in {1, Ny-2}. Together with
// ApplyBiharmonic this covers every node that is not on the edge.
func (p BoundaryPolicy) ApplyBand(u dynamo.Field, dx, dy float64, out dynamo.Field) error {
	sign, err := p.reflection()
	if err != nil {
		return err
	}
	if !u.SameShape(out) {
		return fmt.Errorf("%w: input %dx%d, output %dx%d", dynamo.ErrDimensionMismatch, u.Nx, u.Ny, out.Nx, out.Ny)
	}
	if u.Nx < dynamo.MinNodes || u.Ny < dynamo.MinNodes {
		return fmt.Errorf("%w: field %dx%d has no stencil interior", dynamo.ErrDimensionMismatch, u.Nx, u.Ny)
	}

	k := newCoeffs(dx, dy)
	at := func(i, j int) float64 { return ghost(u, sign, i, j) }
	nx, ny := u.Nx, u.Ny

	for i := 1; i <= nx-2; i++ {
		if i == 1 || i == nx-2 {
			for j := 1; j <= ny-2; j++ {
				n := gather(at, i, j)
				out.Data[i*ny+j] = k.eval(&n)
			}
			continue
		}
		for _, j := range [2]int{1, ny - 2} {
			n := gather(at, i, j)
			out.Data[i*ny+j] = k.eval(&n)
		}
	}
	return nil
}

// Laplacian writes the 5-point Laplacian of u into out at every node, the
// edge ring included. Nodes outside the plate are read through the ghost
// reflection, so for a field pinned at the edge the clamped edge carries
// 2*u[1]/dx^2 and the simply supported edge carries zero.
func (p BoundaryPolicy) Laplacian(u dynamo.Field, dx, dy float64, out dynamo.Field) error {
	sign, err := p.reflection()
	if err != nil {
		return err
	}
	if !u.SameShape(out) {
		return fmt.Errorf("%w: input %dx%d, output %dx%d", dynamo.ErrDimensionMismatch, u.Nx, u.Ny, out.Nx, out.Ny)
	}
	nx, ny := u.Nx, u.Ny
	ix2, iy2 := 1/(dx*dx), 1/(dy*dy)
	d := u.Data

	for i := 1; i < nx-1; i++ {
		row := i * ny
		for j := 1; j < ny-1; j++ {
			k := row + j
			out.Data[k] = (d[k-ny]-2*d[k]+d[k+ny])*ix2 + (d[k-1]-2*d[k]+d[k+1])*iy2
		}
	}

	edge := func(i, j int) {
		c := d[i*ny+j]
		out.Data[i*ny+j] = (ghost(u, sign, i-1, j)-2*c+ghost(u, sign, i+1, j))*ix2 +
			(ghost(u, sign, i, j-1)-2*c+ghost(u, sign, i, j+1))*iy2
	}
	for j := 0; j < ny; j++ {
		edge(0, j)
		edge(nx-1, j)
	}
	for i := 1; i < nx-1; i++ {
		edge(i, 0)
		edge(i, ny-1)
	}
	return nil
}

// Enforce pins the edge ring of u to zero displacement. It is called on the
// freshly computed time level after the interior update.
func (p BoundaryPolicy) Enforce(u dynamo.Field) error {
	if _, err := p.reflection(); err != nil {
		return err
	}
	nx, ny := u.Nx, u.Ny
	if len(u.Data) != nx*ny {
		return fmt.Errorf("%w: field %dx%d with %d values", dynamo.ErrDimensionMismatch, nx, ny, len(u.Data))
	}
	for j := 0; j < ny; j++ {
		u.Data[j] = 0
		u.Data[(nx-1)*ny+j] = 0
	}
	for i := 1; i < nx-1; i++ {
		u.Data[i*ny] = 0
		u.Data[i*ny+ny-1] = 0
	}
	return nil
}
