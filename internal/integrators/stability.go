package integrators

import (
	"fmt"
	"math"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/platesim/internal/dynamo"
	"github.com/san-kum/platesim/internal/physics"
)

// StabilityConstant is C in dt <= C * min(dx^2, dy^2) / sqrt(D).
//
// The Fourier symbol of the 13-point stencil is
//
//	D * (4/dx^2 sin^2(kx dx/2) + 4/dy^2 sin^2(ky dy/2))^2
//
// and peaks at D*(4/dx^2 + 4/dy^2)^2. Leapfrog is stable while dt^2*lambda < 4,
// so dt < 1/(2*sqrt(D)*(1/dx^2 + 1/dy^2)). For dx == dy that is exactly
// dx^2/(4*sqrt(D)) and for dx != dy it is larger, so C = 1/4 holds for every
// aspect ratio. Ghost reflection only adds positive semidefinite terms whose
// norm stays inside the same bound, which SpectralRadius checks numerically.
const StabilityConstant = 0.25

// MaxSpectralNodes caps the interior size for the dense eigen-solve.
const MaxSpectralNodes = 1600

// MaxStableDt returns C * min(dx^2, dy^2) / sqrt(D). There is no bound for a
// rigidity that is not positive and finite, and the result is NaN.
func MaxStableDt(dx, dy, rigidity float64) float64 {
	if !(rigidity > 0) || math.IsInf(rigidity, 0) {
		return math.NaN()
	}
	return StabilityConstant * math.Min(dx*dx, dy*dy) / math.Sqrt(rigidity)
}

// Validate fails with ErrUnstableTimestep when dt exceeds MaxStableDt. It
// never adjusts dt.
func Validate(dt, dx, dy, rigidity float64) error {
	if !(dt > 0) || math.IsInf(dt, 0) {
		return fmt.Errorf("%w: dt must be positive, got %g", dynamo.ErrParameterBounds, dt)
	}
	if !(rigidity > 0) || math.IsInf(rigidity, 0) {
		return fmt.Errorf("%w: rigidity must be positive, got %g", dynamo.ErrParameterBounds, rigidity)
	}
	if limit := MaxStableDt(dx, dy, rigidity); dt > limit {
		return fmt.Errorf("%w: dt=%g > %g (C=%g, dx=%g, dy=%g, D=%g)",
			dynamo.ErrUnstableTimestep, dt, limit, StabilityConstant, dx, dy, rigidity)
	}
	return nil
}

type spectralKey struct {
	nx, ny   int
	lx, ly   float64
	rigidity float64
	kind     dynamo.BoundaryKind
}

// Advisor checks the analytic bound against the assembled operator. Spectral
// radii are cached per plate geometry.
type Advisor struct {
	mu    sync.Mutex
	cache *lru.Cache[spectralKey, float64]
}

func NewAdvisor(size int) (*Advisor, error) {
	if size < 1 {
		size = 16
	}
	cache, err := lru.New[spectralKey, float64](size)
	if err != nil {
		return nil, err
	}
	return &Advisor{cache: cache}, nil
}

// SpectralRadius returns the largest eigenvalue of D*biharmonic restricted
// to the non-edge nodes of g, boundary rows included.
func (a *Advisor) SpectralRadius(g *dynamo.Grid, plate *physics.Plate) (float64, error) {
	key := spectralKey{g.Nx, g.Ny, g.Lx, g.Ly, plate.Rigidity, plate.Policy.Kind}
	if v, ok := a.cache.Get(key); ok {
		return v, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if v, ok := a.cache.Get(key); ok {
		return v, nil
	}

	m, err := Assemble(g, plate)
	if err != nil {
		return 0, err
	}
	var es mat.EigenSym
	if ok := es.Factorize(m, false); !ok {
		return 0, fmt.Errorf("%w: eigen decomposition did not converge", dynamo.ErrInvalidState)
	}
	rho := floats.Max(es.Values(nil))
	a.cache.Add(key, rho)
	return rho, nil
}

// CriticalDt is the largest dt for which leapfrog stays bounded on g:
// 2/sqrt(rho).
func (a *Advisor) CriticalDt(g *dynamo.Grid, plate *physics.Plate) (float64, error) {
	rho, err := a.SpectralRadius(g, plate)
	if err != nil {
		return 0, err
	}
	return 2 / math.Sqrt(rho), nil
}

// EmpiricalConstant expresses CriticalDt in units of min(dx^2,dy^2)/sqrt(D),
// directly comparable with StabilityConstant.
func (a *Advisor) EmpiricalConstant(g *dynamo.Grid, plate *physics.Plate) (float64, error) {
	dt, err := a.CriticalDt(g, plate)
	if err != nil {
		return 0, err
	}
	return dt * math.Sqrt(plate.Rigidity) / math.Min(g.Dx*g.Dx, g.Dy*g.Dy), nil
}

// Assemble builds the dense matrix of the plate operator acting on the
// non-edge nodes, column by column from unit fields. The result is
// symmetrized to absorb round-off.
func Assemble(g *dynamo.Grid, plate *physics.Plate) (*mat.SymDense, error) {
	mx, my := g.Nx-2, g.Ny-2
	n := mx * my
	if n > MaxSpectralNodes {
		return nil, fmt.Errorf("%w: %d interior nodes exceeds %d for a dense solve", dynamo.ErrParameterBounds, n, MaxSpectralNodes)
	}

	dense := mat.NewDense(n, n, nil)
	unit := g.NewField()
	out := g.NewField()
	for col := 0; col < n; col++ {
		ci, cj := col/my+1, col%my+1
		unit.Set(ci, cj, 1)
		if err := plate.Operator(unit, g.Dx, g.Dy, out); err != nil {
			return nil, err
		}
		unit.Set(ci, cj, 0)
		for row := 0; row < n; row++ {
			dense.Set(row, col, out.At(row/my+1, row%my+1))
		}
	}

	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, 0.5*(dense.At(i, j)+dense.At(j, i)))
		}
	}
	return sym, nil
}
