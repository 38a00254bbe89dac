package sim

import (
	"fmt"
	"time"

	"github.com/san-kum/platesim/internal/dynamo"
	"github.com/san-kum/platesim/internal/integrators"
)

// Config holds the validated run parameters. Dt must be set explicitly;
// the solver never derives or adjusts it.
type Config struct {
	Nx, Ny   int
	Lx, Ly   float64
	Rigidity float64

	Dt       float64
	Duration float64

	Boundary  dynamo.BoundaryKind
	Bootstrap integrators.BootstrapOrder

	// EnergyEvery samples the energy every N steps and at the final step.
	// Zero disables sampling.
	EnergyEvery int
	// FrameEvery keeps a copy of every Nth snapshot in the Result. Zero keeps
	// only the initial and final fields.
	FrameEvery int
	// ValidateState fails the run with ErrInvalidState on NaN or Inf.
	ValidateState bool
	// BoundThreshold is the |u| limit of the stability metric. Zero means
	// ten times the initial peak displacement.
	BoundThreshold float64
	// Threads caps the goroutines of each stencil pass. Zero means GOMAXPROCS.
	Threads int
}

func (c Config) String() string {
	return fmt.Sprintf("%dx%d on %gx%g D=%g dt=%g T=%g %v",
		c.Nx, c.Ny, c.Lx, c.Ly, c.Rigidity, c.Dt, c.Duration, c.Boundary)
}

// Result collects a completed run. Frames and Final are deep copies.
type Result struct {
	Config     Config
	Initial    string
	Nt         int
	StepsTaken int

	Frames []dynamo.Snapshot
	Times  []float64
	Final  dynamo.Snapshot

	Energy      []dynamo.EnergySample
	EnergyDrift float64
	Metrics     map[string]float64

	Elapsed time.Duration
}
