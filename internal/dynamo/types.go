package dynamo

import (
	"fmt"
	"math"
	"strings"
)

// Field is a 2D scalar field over grid nodes stored row-major in x:
// node (i, j) lives at Data[i*Ny+j].
type Field struct {
	Nx, Ny int
	Data   []float64
}

func NewField(nx, ny int) Field {
	return Field{Nx: nx, Ny: ny, Data: make([]float64, nx*ny)}
}

func (f Field) Index(i, j int) int { return i*f.Ny + j }

func (f Field) At(i, j int) float64 { return f.Data[i*f.Ny+j] }

func (f Field) Set(i, j int, v float64) { f.Data[i*f.Ny+j] = v }

func (f Field) Clone() Field {
	c := Field{Nx: f.Nx, Ny: f.Ny, Data: make([]float64, len(f.Data))}
	copy(c.Data, f.Data)
	return c
}

// SameShape reports whether g has the same node layout as f.
func (f Field) SameShape(g Field) bool {
	return f.Nx == g.Nx && f.Ny == g.Ny && len(f.Data) == len(g.Data) && len(f.Data) == f.Nx*f.Ny
}

func (f Field) CopyFrom(src Field) error {
	if !f.SameShape(src) {
		return fmt.Errorf("%w: %dx%d vs %dx%d", ErrDimensionMismatch, f.Nx, f.Ny, src.Nx, src.Ny)
	}
	copy(f.Data, src.Data)
	return nil
}

func (f Field) Fill(v float64) {
	for i := range f.Data {
		f.Data[i] = v
	}
}

func (f Field) IsValid() bool {
	for _, v := range f.Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (f Field) MaxAbs() float64 {
	m := 0.0
	for _, v := range f.Data {
		if a := math.Abs(v); a > m {
			m = a
		}
	}
	return m
}

// BoundaryKind selects the edge condition applied uniformly on all four edges.
type BoundaryKind int

const (
	Clamped BoundaryKind = iota
	SimplySupported
)

func (k BoundaryKind) String() string {
	switch k {
	case Clamped:
		return "clamped"
	case SimplySupported:
		return "simply_supported"
	default:
		return fmt.Sprintf("boundary(%d)", int(k))
	}
}

func (k BoundaryKind) Valid() bool {
	return k == Clamped || k == SimplySupported
}

func ParseBoundaryKind(s string) (BoundaryKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "clamped", "fixed":
		return Clamped, nil
	case "simply_supported", "simply-supported", "simple", "ss", "hinged":
		return SimplySupported, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedBoundary, s)
	}
}

// Phase is the lifecycle of a leapfrog run.
type Phase int

const (
	Uninitialized Phase = iota
	Bootstrapped
	Stepping
	Finished
)

func (p Phase) String() string {
	switch p {
	case Uninitialized:
		return "uninitialized"
	case Bootstrapped:
		return "bootstrapped"
	case Stepping:
		return "stepping"
	case Finished:
		return "finished"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// TimeState holds the fixed timestep and the step counter of a run.
type TimeState struct {
	Dt   float64
	Step int
	T    float64
	Nt   int
}

func NewTimeState(dt, total float64) (TimeState, error) {
	if dt <= 0 || math.IsNaN(dt) || math.IsInf(dt, 0) {
		return TimeState{}, fmt.Errorf("%w: dt must be positive, got %g", ErrParameterBounds, dt)
	}
	if total <= 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return TimeState{}, fmt.Errorf("%w: duration must be positive, got %g", ErrParameterBounds, total)
	}
	return TimeState{Dt: dt, T: total, Nt: StepCount(total, dt)}, nil
}

// Time returns the simulated time at the current step.
func (ts TimeState) Time() float64 { return float64(ts.Step) * ts.Dt }

func (ts TimeState) Done() bool { return ts.Step >= ts.Nt }

// StepCount returns ceil(total/dt), treating ratios within round-off of an
// integer as that integer so that T=0.01, dt=1e-4 gives exactly 100 steps.
func StepCount(total, dt float64) int {
	r := total / dt
	n := math.Round(r)
	if math.Abs(r-n) <= 1e-9*math.Max(1, n) {
		return int(n)
	}
	return int(math.Ceil(r))
}

// EnergySample is one immutable diagnostics record.
type EnergySample struct {
	Step    int     `json:"step"`
	Kinetic float64 `json:"kinetic"`
	Bending float64 `json:"bending"`
	Total   float64 `json:"total"`
}

// Snapshot exposes the displacement field at one step.
//
// Field is a view over the solver's current buffer and is only valid until
// the next step; use Clone to retain it.
type Snapshot struct {
	Step   int
	Time   float64
	Field  Field
	Energy *EnergySample
}

func (s Snapshot) Clone() Snapshot {
	c := s
	c.Field = s.Field.Clone()
	if s.Energy != nil {
		e := *s.Energy
		c.Energy = &e
	}
	return c
}

type Metric interface {
	Name() string
	Observe(s Snapshot)
	Value() float64
	Reset()
}

type Observer interface {
	OnStep(s Snapshot)
}
