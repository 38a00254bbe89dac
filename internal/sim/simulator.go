package sim

import (
	"context"
	"fmt"
	"iter"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/san-kum/platesim/internal/dynamo"
	"github.com/san-kum/platesim/internal/integrators"
	"github.com/san-kum/platesim/internal/logging"
	"github.com/san-kum/platesim/internal/metrics"
	"github.com/san-kum/platesim/internal/observability"
	"github.com/san-kum/platesim/internal/physics"
)

// Solver owns one plate run: the grid, its time levels and the step
// counter. It moves through Uninitialized -> Bootstrapped -> Stepping ->
// Finished and is not safe for concurrent use.
type Solver struct {
	cfg     Config
	grid    *dynamo.Grid
	plate   *physics.Plate
	stepper *integrators.Leapfrog
	monitor *metrics.EnergyMonitor

	clock    dynamo.TimeState
	phase    dynamo.Phase
	consumed bool
	initial  string

	energy    []dynamo.EnergySample
	current   *dynamo.EnergySample
	metrics   []dynamo.Metric
	observers []dynamo.Observer

	log       logging.Logger
	collector *observability.SolverCollector
	tracer    trace.Tracer
}

type Option func(*Solver)

func WithLogger(l logging.Logger) Option {
	return func(s *Solver) {
		if l != nil {
			s.log = l
		}
	}
}

// WithCollector feeds every emitted snapshot and the run outcome to c.
func WithCollector(c *observability.SolverCollector) Option {
	return func(s *Solver) { s.collector = c }
}

// WithMetric replaces the default metric set on first use.
func WithMetric(m dynamo.Metric) Option {
	return func(s *Solver) {
		if s.metrics == nil {
			s.metrics = []dynamo.Metric{}
		}
		s.metrics = append(s.metrics, m)
	}
}

func WithObserver(o dynamo.Observer) Option {
	return func(s *Solver) { s.observers = append(s.observers, o) }
}

// New validates cfg and allocates the grid. A dt above the stability bound
// is rejected with ErrUnstableTimestep.
func New(cfg Config, opts ...Option) (*Solver, error) {
	grid, err := dynamo.NewGrid(cfg.Nx, cfg.Ny, cfg.Lx, cfg.Ly)
	if err != nil {
		return nil, err
	}
	plate, err := physics.NewPlate(cfg.Rigidity, cfg.Boundary)
	if err != nil {
		return nil, err
	}
	clock, err := dynamo.NewTimeState(cfg.Dt, cfg.Duration)
	if err != nil {
		return nil, err
	}
	if err := integrators.Validate(cfg.Dt, grid.Dx, grid.Dy, cfg.Rigidity); err != nil {
		return nil, err
	}
	if cfg.EnergyEvery < 0 || cfg.FrameEvery < 0 || cfg.Threads < 0 {
		return nil, fmt.Errorf("%w: energy_every=%d frame_every=%d threads=%d",
			dynamo.ErrParameterBounds, cfg.EnergyEvery, cfg.FrameEvery, cfg.Threads)
	}
	plate.Workers = cfg.Threads

	s := &Solver{
		cfg:     cfg,
		grid:    grid,
		plate:   plate,
		stepper: integrators.NewLeapfrog(plate),
		monitor: metrics.NewEnergyMonitor(plate),
		clock:   clock,
		phase:   dynamo.Uninitialized,
		log:     logging.Noop(),
		tracer:  otel.Tracer(observability.TracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Solver) Config() Config                { return s.cfg }
func (s *Solver) Grid() *dynamo.Grid            { return s.grid }
func (s *Solver) Plate() *physics.Plate         { return s.plate }
func (s *Solver) Phase() dynamo.Phase           { return s.phase }
func (s *Solver) Clock() dynamo.TimeState       { return s.clock }
func (s *Solver) Metrics() []dynamo.Metric      { return s.metrics }
func (s *Solver) Energy() []dynamo.EnergySample { return append([]dynamo.EnergySample(nil), s.energy...) }

// Seed evaluates ic on the grid and bootstraps the two starting levels.
func (s *Solver) Seed(ic physics.InitialCondition) error {
	if s.phase != dynamo.Uninitialized {
		return fmt.Errorf("%w: phase %v", dynamo.ErrAlreadyInitialized, s.phase)
	}
	u0, v0, err := ic.Fields(s.grid)
	if err != nil {
		return err
	}
	if !u0.IsValid() || !v0.IsValid() {
		return fmt.Errorf("%w: initial condition %s", dynamo.ErrInvalidState, ic.Name())
	}
	if err := integrators.Bootstrap(s.grid, s.plate, u0, v0, s.cfg.Dt, s.cfg.Bootstrap); err != nil {
		return err
	}

	s.initial = ic.Name()
	s.phase = dynamo.Bootstrapped
	if s.metrics == nil {
		threshold := s.cfg.BoundThreshold
		if threshold <= 0 {
			threshold = 10 * s.grid.Curr.MaxAbs()
			if threshold == 0 {
				threshold = 1
			}
		}
		s.metrics = metrics.Default(threshold)
	}
	s.sampleEnergy(context.Background())
	return nil
}

// Step advances one leapfrog step. It fails with ErrNotInitialized before
// Seed and with ErrSolverExhausted once all Nt steps have been taken.
func (s *Solver) Step() error {
	switch s.phase {
	case dynamo.Uninitialized:
		return dynamo.ErrNotInitialized
	case dynamo.Finished:
		return dynamo.ErrSolverExhausted
	}

	if err := s.stepper.Step(s.grid, s.clock.Dt); err != nil {
		return &dynamo.SimulationError{Step: s.clock.Step + 1, Time: s.clock.Time() + s.clock.Dt, Wrapped: err}
	}
	s.clock.Step++
	s.phase = dynamo.Stepping
	if s.clock.Done() {
		s.phase = dynamo.Finished
	}

	if s.cfg.ValidateState && !s.grid.Curr.IsValid() {
		s.phase = dynamo.Finished
		return &dynamo.SimulationError{Step: s.clock.Step, Time: s.clock.Time(), Wrapped: dynamo.ErrInvalidState}
	}

	s.current = nil
	s.sampleEnergy(context.Background())
	return nil
}

// sampleEnergy records the energy when due. Diagnostics never fail a run:
// a failed sample is logged and skipped.
func (s *Solver) sampleEnergy(ctx context.Context) {
	every := s.cfg.EnergyEvery
	if every <= 0 {
		return
	}
	step := s.clock.Step
	if step%every != 0 && !s.clock.Done() {
		return
	}
	sample, err := s.monitor.Sample(step, s.grid.Prev, s.grid.Curr, s.clock.Dt, s.grid.Dx, s.grid.Dy)
	if err != nil {
		s.log.Warn(ctx, "energy sample skipped", logging.Int("step", step), logging.Err(err))
		return
	}
	s.energy = append(s.energy, sample)
	s.current = &sample
}

// Snapshot returns a view of the current level. Its Field aliases the
// solver's buffer and changes on the next step; Clone it to keep it.
func (s *Solver) Snapshot() dynamo.Snapshot {
	return dynamo.Snapshot{
		Step:   s.clock.Step,
		Time:   s.clock.Time(),
		Field:  s.grid.Curr,
		Energy: s.current,
	}
}

func (s *Solver) emit() dynamo.Snapshot {
	snap := s.Snapshot()
	for _, m := range s.metrics {
		m.Observe(snap)
	}
	for _, o := range s.observers {
		o.OnStep(snap)
	}
	s.collector.OnStep(snap)
	return snap
}

// Steps returns the run as a lazy sequence of Nt+1 snapshots, starting with
// the seeded state at step 0. Each snapshot is a view valid until the next
// iteration. The sequence can be consumed once; a second pass yields
// ErrSolverExhausted. A step error or context cancellation is yielded once
// and ends the sequence.
func (s *Solver) Steps(ctx context.Context) iter.Seq2[dynamo.Snapshot, error] {
	return func(yield func(dynamo.Snapshot, error) bool) {
		if s.consumed {
			yield(dynamo.Snapshot{}, dynamo.ErrSolverExhausted)
			return
		}
		if s.phase == dynamo.Uninitialized {
			yield(dynamo.Snapshot{}, dynamo.ErrNotInitialized)
			return
		}
		s.consumed = true

		if !yield(s.emit(), nil) {
			return
		}
		for !s.clock.Done() {
			select {
			case <-ctx.Done():
				yield(dynamo.Snapshot{}, fmt.Errorf("%w: %w", dynamo.ErrContextCanceled, ctx.Err()))
				return
			default:
			}
			if err := s.Step(); err != nil {
				yield(dynamo.Snapshot{}, err)
				return
			}
			if !yield(s.emit(), nil) {
				return
			}
		}
	}
}

// Run consumes the sequence and collects a Result.
func (s *Solver) Run(ctx context.Context) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "plate.run", trace.WithAttributes(
		attribute.Int("grid.nx", s.cfg.Nx),
		attribute.Int("grid.ny", s.cfg.Ny),
		attribute.Float64("dt", s.cfg.Dt),
		attribute.Int("steps", s.clock.Nt),
		attribute.String("boundary", s.cfg.Boundary.String()),
	))
	defer span.End()

	for _, m := range s.metrics {
		m.Reset()
	}

	start := time.Now()
	s.log.Info(ctx, "run started",
		logging.String("grid", fmt.Sprintf("%dx%d", s.cfg.Nx, s.cfg.Ny)),
		logging.Float("dt", s.cfg.Dt),
		logging.Float("dt_max", integrators.MaxStableDt(s.grid.Dx, s.grid.Dy, s.cfg.Rigidity)),
		logging.Int("nt", s.clock.Nt),
		logging.String("boundary", s.cfg.Boundary.String()),
		logging.String("initial", s.initial),
	)

	result := &Result{
		Config:  s.cfg,
		Initial: s.initial,
		Nt:      s.clock.Nt,
		Metrics: make(map[string]float64),
	}

	var runErr error
	for snap, err := range s.Steps(ctx) {
		if err != nil {
			runErr = err
			break
		}
		if s.keepFrame(snap.Step) {
			result.Frames = append(result.Frames, snap.Clone())
			result.Times = append(result.Times, snap.Time)
		}
		result.StepsTaken = snap.Step
		result.Final = snap
	}
	result.Final = result.Final.Clone()
	result.Elapsed = time.Since(start)
	result.Energy = s.Energy()
	result.EnergyDrift = metrics.Drift(result.Energy)
	for _, m := range s.metrics {
		result.Metrics[m.Name()] = m.Value()
	}

	s.collector.RunFinished(s.cfg.Boundary, result.Elapsed, runErr)
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		s.log.Error(ctx, "run failed", logging.Int("step", result.StepsTaken), logging.Err(runErr))
		return result, runErr
	}

	span.SetAttributes(attribute.Float64("energy_drift", result.EnergyDrift))
	s.log.Info(ctx, "run finished",
		logging.Int("steps", result.StepsTaken),
		logging.Duration("elapsed", result.Elapsed),
		logging.Float("energy_drift", result.EnergyDrift),
	)
	return result, nil
}

func (s *Solver) keepFrame(step int) bool {
	if step == 0 || step == s.clock.Nt {
		return true
	}
	return s.cfg.FrameEvery > 0 && step%s.cfg.FrameEvery == 0
}

// RunWithCallback streams snapshots to fn until the run ends or fn returns
// false. Snapshots are views; fn must Clone anything it keeps.
func (s *Solver) RunWithCallback(ctx context.Context, fn func(dynamo.Snapshot) bool) error {
	for snap, err := range s.Steps(ctx) {
		if err != nil {
			return err
		}
		if !fn(snap) {
			return nil
		}
	}
	return nil
}

// Simulate builds a solver, seeds it and runs it to completion.
func Simulate(ctx context.Context, cfg Config, ic physics.InitialCondition, opts ...Option) (*Result, error) {
	s, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	if err := s.Seed(ic); err != nil {
		return nil, err
	}
	return s.Run(ctx)
}
