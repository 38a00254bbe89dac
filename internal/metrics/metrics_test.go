package metrics

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/platesim/internal/dynamo"
	"github.com/san-kum/platesim/internal/integrators"
	"github.com/san-kum/platesim/internal/physics"
)

func mustPlate(t *testing.T, d float64, kind dynamo.BoundaryKind) *physics.Plate {
	t.Helper()
	plate, err := physics.NewPlate(d, kind)
	if err != nil {
		t.Fatal(err)
	}
	return plate
}

// pinnedBump is smooth, nonzero next to every edge and zero on the edge ring.
func pinnedBump(g *dynamo.Grid) dynamo.Field {
	f := g.Sample(func(x, y float64) float64 {
		return (1 + x + 2*y) * math.Sin(math.Pi*x/g.Lx) * math.Sin(math.Pi*y/g.Ly)
	})
	for i := 0; i < g.Nx; i++ {
		for j := 0; j < g.Ny; j++ {
			if i == 0 || j == 0 || i == g.Nx-1 || j == g.Ny-1 {
				f.Set(i, j, 0)
			}
		}
	}
	return f
}

func TestEnergyMonitorKnownFields(t *testing.T) {
	g, err := dynamo.NewGrid(9, 7, 2, 1)
	if err != nil {
		t.Fatal(err)
	}
	curr := pinnedBump(g)
	prev := g.NewField()
	for k, v := range curr.Data {
		prev.Data[k] = v - 0.5
	}

	const dt = 0.1
	m := NewEnergyMonitor(mustPlate(t, 2, dynamo.SimplySupported))
	s, err := m.Sample(3, prev, curr, dt, g.Dx, g.Dy)
	if err != nil {
		t.Fatal(err)
	}

	interior := float64((g.Nx - 2) * (g.Ny - 2))
	area := g.Dx * g.Dy
	wantKinetic := 0.5 * (0.5 / dt) * (0.5 / dt) * interior * area

	if s.Step != 3 {
		t.Errorf("step = %d, want 3", s.Step)
	}
	if math.Abs(s.Kinetic-wantKinetic) > 1e-9*wantKinetic {
		t.Errorf("kinetic = %g, want %g", s.Kinetic, wantKinetic)
	}
	if !(s.Bending > 0) {
		t.Errorf("bending = %g, want positive", s.Bending)
	}
	if s.Total != s.Kinetic+s.Bending {
		t.Error("total must be kinetic + bending")
	}
}

// The bending term must be the quadratic form of the operator the
// integrator steps with, or leapfrog cannot conserve it.
func TestBendingMatchesOperator(t *testing.T) {
	for _, kind := range []dynamo.BoundaryKind{dynamo.Clamped, dynamo.SimplySupported} {
		t.Run(kind.String(), func(t *testing.T) {
			g, err := dynamo.NewGrid(9, 7, 2, 1)
			if err != nil {
				t.Fatal(err)
			}
			plate := mustPlate(t, 3, kind)
			u := pinnedBump(g)

			au := g.NewField()
			if err := plate.Operator(u, g.Dx, g.Dy, au); err != nil {
				t.Fatal(err)
			}
			want := 0.5 * floats.Dot(u.Data, au.Data) * g.Dx * g.Dy

			s, err := NewEnergyMonitor(plate).Sample(0, u, u, 0.1, g.Dx, g.Dy)
			if err != nil {
				t.Fatal(err)
			}
			if s.Kinetic != 0 {
				t.Errorf("kinetic = %g for identical levels", s.Kinetic)
			}
			if math.Abs(s.Bending-want) > 1e-9*want {
				t.Errorf("bending = %.12g, want %.12g", s.Bending, want)
			}
		})
	}
}

func TestClampedEdgeCurvatureCounts(t *testing.T) {
	g, err := dynamo.NewGrid(9, 9, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	u := pinnedBump(g)
	clamped, err := NewEnergyMonitor(mustPlate(t, 1, dynamo.Clamped)).Sample(0, u, u, 0.1, g.Dx, g.Dy)
	if err != nil {
		t.Fatal(err)
	}
	supported, err := NewEnergyMonitor(mustPlate(t, 1, dynamo.SimplySupported)).Sample(0, u, u, 0.1, g.Dx, g.Dy)
	if err != nil {
		t.Fatal(err)
	}

	// a clamped edge holds curvature 2*u[1]/dx^2 on the edge ring
	extra := 0.0
	for k := 1; k < g.Nx-1; k++ {
		for _, v := range []float64{u.At(1, k), u.At(g.Nx-2, k), u.At(k, 1), u.At(k, g.Ny-2)} {
			l := 2 * v / (g.Dx * g.Dx)
			extra += 0.5 * l * l
		}
	}
	extra *= 0.5 * g.Dx * g.Dy
	if got := clamped.Bending - supported.Bending; math.Abs(got-extra) > 1e-9*extra {
		t.Errorf("clamped minus supported bending = %g, want %g", got, extra)
	}
}

func TestEnergyMonitorErrors(t *testing.T) {
	m := NewEnergyMonitor(mustPlate(t, 1, dynamo.Clamped))
	if _, err := m.Sample(0, dynamo.NewField(5, 5), dynamo.NewField(6, 5), 0.1, 1, 1); !errors.Is(err, dynamo.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
	if _, err := m.Sample(0, dynamo.NewField(5, 5), dynamo.NewField(5, 5), 0, 1, 1); !errors.Is(err, dynamo.ErrParameterBounds) {
		t.Errorf("expected ErrParameterBounds, got %v", err)
	}
	bad := &EnergyMonitor{Rigidity: 1, Policy: physics.BoundaryPolicy{Kind: dynamo.BoundaryKind(9)}}
	if _, err := bad.Sample(0, dynamo.NewField(5, 5), dynamo.NewField(5, 5), 0.1, 1, 1); !errors.Is(err, dynamo.ErrUnsupportedBoundary) {
		t.Errorf("expected ErrUnsupportedBoundary, got %v", err)
	}
}

func TestEnergyBoundedOverFiftySteps(t *testing.T) {
	tests := []struct {
		kind     dynamo.BoundaryKind
		fraction float64
		tol      float64
	}{
		{dynamo.Clamped, 1, 0.08},
		{dynamo.Clamped, 0.5, 0.05},
		{dynamo.Clamped, 0.1, 0.01},
		{dynamo.SimplySupported, 1, 0.08},
		{dynamo.SimplySupported, 0.5, 0.05},
		{dynamo.SimplySupported, 0.1, 0.01},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v/%g", tt.kind, tt.fraction), func(t *testing.T) {
			g, _ := dynamo.NewGrid(21, 21, 1, 1)
			plate := mustPlate(t, 1, tt.kind)
			dt := integrators.MaxStableDt(g.Dx, g.Dy, 1) * tt.fraction

			u0, v0, _ := physics.Gaussian{Amplitude: 1, X0: 0.5, Y0: 0.5, Sigma: 0.1}.Fields(g)
			if err := integrators.Bootstrap(g, plate, u0, v0, dt, integrators.FirstOrder); err != nil {
				t.Fatal(err)
			}

			m := NewEnergyMonitor(plate)
			e0, err := m.Sample(0, g.Prev, g.Curr, dt, g.Dx, g.Dy)
			if err != nil {
				t.Fatal(err)
			}
			if e0.Kinetic != 0 {
				t.Errorf("plate released at rest has kinetic energy %g", e0.Kinetic)
			}

			lf := integrators.NewLeapfrog(plate)
			worst := 0.0
			for s := 1; s <= 50; s++ {
				if err := lf.Step(g, dt); err != nil {
					t.Fatal(err)
				}
				e, err := m.Sample(s, g.Prev, g.Curr, dt, g.Dx, g.Dy)
				if err != nil {
					t.Fatal(err)
				}
				worst = math.Max(worst, math.Abs(e.Total-e0.Total)/e0.Total)
			}
			if worst > tt.tol {
				t.Errorf("energy strayed %.2f%% from its initial value", 100*worst)
			}
		})
	}
}

func snap(step int, field dynamo.Field, total float64) dynamo.Snapshot {
	return dynamo.Snapshot{
		Step:   step,
		Field:  field,
		Energy: &dynamo.EnergySample{Step: step, Total: total},
	}
}

func TestEnergyDrift(t *testing.T) {
	f := dynamo.NewField(5, 5)
	d := NewEnergyDrift()
	d.Observe(snap(0, f, 10))
	d.Observe(snap(1, f, 11))
	d.Observe(snap(2, f, 9.5))
	d.Observe(dynamo.Snapshot{Step: 3, Field: f})

	if got := d.Value(); math.Abs(got-0.1) > 1e-12 {
		t.Errorf("max drift = %g, want 0.1", got)
	}
	if got := d.Current(); math.Abs(got+0.05) > 1e-12 {
		t.Errorf("current drift = %g, want -0.05", got)
	}

	d.Reset()
	if d.Value() != 0 || d.Current() != 0 {
		t.Error("reset must clear drift")
	}

	series := []dynamo.EnergySample{{Total: 4}, {Total: 5}, {Total: 3}}
	if got := Drift(series); math.Abs(got+0.25) > 1e-12 {
		t.Errorf("Drift = %g, want -0.25", got)
	}
	if Drift(series[:1]) != 0 {
		t.Error("single sample has no drift")
	}
}

func TestEnergyMean(t *testing.T) {
	f := dynamo.NewField(5, 5)
	e := NewEnergy()
	if e.Value() != 0 {
		t.Error("empty metric must report 0")
	}
	e.Observe(snap(0, f, 2))
	e.Observe(snap(1, f, 4))
	if e.Value() != 3 {
		t.Errorf("mean energy = %g, want 3", e.Value())
	}
	e.Reset()
	if e.Value() != 0 {
		t.Error("reset failed")
	}
}

func TestStabilityAndPeak(t *testing.T) {
	calm := dynamo.NewField(5, 5)
	calm.Set(2, 2, 0.5)
	wild := dynamo.NewField(5, 5)
	wild.Set(2, 2, -50)
	broken := dynamo.NewField(5, 5)
	broken.Set(1, 1, math.NaN())

	s := NewStability(10)
	p := NewPeakDisplacement()
	for _, f := range []dynamo.Field{calm, wild, calm, broken} {
		snap := dynamo.Snapshot{Field: f}
		s.Observe(snap)
		p.Observe(snap)
	}

	if got := s.Value(); got != 0.5 {
		t.Errorf("stability = %g, want 0.5", got)
	}
	if got := p.Value(); got != 50 {
		t.Errorf("peak = %g, want 50", got)
	}

	s.Reset()
	if s.Value() != 1 {
		t.Error("stability with no samples must be 1")
	}
}

func TestDefaultMetrics(t *testing.T) {
	names := map[string]bool{}
	for _, m := range Default(100) {
		names[m.Name()] = true
	}
	for _, want := range []string{"energy", "energy_drift", "peak_displacement", "stability"} {
		if !names[want] {
			t.Errorf("missing metric %q", want)
		}
	}
}
