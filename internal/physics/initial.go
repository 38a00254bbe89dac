package physics

import (
	"fmt"
	"math"

	"github.com/san-kum/platesim/internal/dynamo"
)

// InitialCondition produces the displacement and velocity fields at t=0.
type InitialCondition interface {
	Name() string
	Fields(g *dynamo.Grid) (u0, v0 dynamo.Field, err error)
}

// Gaussian is a bump A*exp(-((x-x0)^2+(y-y0)^2)/(2*sigma^2)) released at rest.
type Gaussian struct {
	Amplitude float64
	X0, Y0    float64
	Sigma     float64
}

func (g Gaussian) Name() string { return "gaussian" }

func (g Gaussian) Displacement(x, y float64) float64 {
	dx, dy := x-g.X0, y-g.Y0
	return g.Amplitude * math.Exp(-(dx*dx+dy*dy)/(2*g.Sigma*g.Sigma))
}

func (g Gaussian) Fields(grid *dynamo.Grid) (dynamo.Field, dynamo.Field, error) {
	if !(g.Sigma > 0) {
		return dynamo.Field{}, dynamo.Field{}, fmt.Errorf("%w: sigma must be positive, got %g", dynamo.ErrParameterBounds, g.Sigma)
	}
	return grid.Sample(g.Displacement), grid.NewField(), nil
}

// Mode is the (M, N) eigenmode of a simply supported rectangular plate,
// A*sin(M*pi*x/Lx)*sin(N*pi*y/Ly), released at rest.
type Mode struct {
	M, N      int
	Amplitude float64
}

func (m Mode) Name() string { return fmt.Sprintf("mode_%d_%d", m.M, m.N) }

func (m Mode) Fields(grid *dynamo.Grid) (dynamo.Field, dynamo.Field, error) {
	if m.M < 1 || m.N < 1 {
		return dynamo.Field{}, dynamo.Field{}, fmt.Errorf("%w: mode numbers must be >= 1, got (%d,%d)", dynamo.ErrParameterBounds, m.M, m.N)
	}
	kx := float64(m.M) * math.Pi / grid.Lx
	ky := float64(m.N) * math.Pi / grid.Ly
	u0 := grid.Sample(func(x, y float64) float64 {
		return m.Amplitude * math.Sin(kx*x) * math.Sin(ky*y)
	})
	return u0, grid.NewField(), nil
}

// Func wraps closures for displacement and velocity. A nil Velocity means
// the plate starts at rest.
type Func struct {
	Label        string
	Displacement func(x, y float64) float64
	Velocity     func(x, y float64) float64
}

func (f Func) Name() string {
	if f.Label == "" {
		return "func"
	}
	return f.Label
}

func (f Func) Fields(grid *dynamo.Grid) (dynamo.Field, dynamo.Field, error) {
	if f.Displacement == nil {
		return dynamo.Field{}, dynamo.Field{}, fmt.Errorf("%w: displacement function is nil", dynamo.ErrParameterBounds)
	}
	v0 := grid.NewField()
	if f.Velocity != nil {
		v0 = grid.Sample(f.Velocity)
	}
	return grid.Sample(f.Displacement), v0, nil
}

// Sampled uses precomputed node values. A zero-sized V0 means at rest.
type Sampled struct {
	U0, V0 dynamo.Field
}

func (s Sampled) Name() string { return "sampled" }

func (s Sampled) Fields(grid *dynamo.Grid) (dynamo.Field, dynamo.Field, error) {
	u0 := grid.NewField()
	if err := u0.CopyFrom(s.U0); err != nil {
		return dynamo.Field{}, dynamo.Field{}, err
	}
	v0 := grid.NewField()
	if len(s.V0.Data) > 0 {
		if err := v0.CopyFrom(s.V0); err != nil {
			return dynamo.Field{}, dynamo.Field{}, err
		}
	}
	return u0, v0, nil
}

// Flat is the undisturbed plate.
type Flat struct{}

func (Flat) Name() string { return "flat" }

func (Flat) Fields(grid *dynamo.Grid) (dynamo.Field, dynamo.Field, error) {
	return grid.NewField(), grid.NewField(), nil
}
