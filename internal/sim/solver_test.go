package sim_test

import (
	"context"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/san-kum/platesim/internal/dynamo"
	"github.com/san-kum/platesim/internal/integrators"
	"github.com/san-kum/platesim/internal/observability"
	"github.com/san-kum/platesim/internal/physics"
	"github.com/san-kum/platesim/internal/sim"
)

var bump = physics.Gaussian{Amplitude: 1, X0: 0.5, Y0: 0.5, Sigma: 0.1}

func scenario() sim.Config {
	return sim.Config{
		Nx: 11, Ny: 11,
		Lx: 1, Ly: 1,
		Rigidity:      1,
		Dt:            1e-4,
		Duration:      0.01,
		Boundary:      dynamo.Clamped,
		EnergyEvery:   1,
		ValidateState: true,
	}
}

type recorder struct {
	steps []int
}

func (r *recorder) OnStep(s dynamo.Snapshot) { r.steps = append(r.steps, s.Step) }

var _ = Describe("Solver", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Describe("construction", func() {
		It("rejects grids without a stencil margin", func() {
			cfg := scenario()
			cfg.Nx = 4
			_, err := sim.New(cfg)
			Expect(err).To(MatchError(dynamo.ErrInvalidGrid))
		})

		It("rejects non-positive extents", func() {
			cfg := scenario()
			cfg.Ly = 0
			_, err := sim.New(cfg)
			Expect(err).To(MatchError(dynamo.ErrInvalidGrid))
		})

		It("rejects unknown boundary kinds", func() {
			cfg := scenario()
			cfg.Boundary = dynamo.BoundaryKind(42)
			_, err := sim.New(cfg)
			Expect(err).To(MatchError(dynamo.ErrUnsupportedBoundary))
		})

		It("rejects a timestep ten times the stability bound without clamping it", func() {
			cfg := scenario()
			cfg.Dt = 10 * integrators.MaxStableDt(0.1, 0.1, 1)
			_, err := sim.New(cfg)
			Expect(err).To(MatchError(dynamo.ErrUnstableTimestep))
		})

		It("rejects a negative thread count", func() {
			cfg := scenario()
			cfg.Threads = -1
			_, err := sim.New(cfg)
			Expect(err).To(MatchError(dynamo.ErrParameterBounds))
		})

		It("derives Nt from the duration", func() {
			s, err := sim.New(scenario())
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Clock().Nt).To(Equal(100))
			Expect(s.Phase()).To(Equal(dynamo.Uninitialized))
		})
	})

	Describe("state machine", func() {
		var s *sim.Solver

		BeforeEach(func() {
			cfg := scenario()
			cfg.Duration = 3 * cfg.Dt
			var err error
			s, err = sim.New(cfg)
			Expect(err).NotTo(HaveOccurred())
		})

		It("refuses to step before seeding", func() {
			Expect(s.Step()).To(MatchError(dynamo.ErrNotInitialized))
			for _, err := range s.Steps(ctx) {
				Expect(err).To(MatchError(dynamo.ErrNotInitialized))
			}
		})

		It("walks Bootstrapped, Stepping, Finished and then refuses", func() {
			Expect(s.Seed(bump)).To(Succeed())
			Expect(s.Phase()).To(Equal(dynamo.Bootstrapped))

			Expect(s.Step()).To(Succeed())
			Expect(s.Phase()).To(Equal(dynamo.Stepping))
			Expect(s.Step()).To(Succeed())
			Expect(s.Step()).To(Succeed())
			Expect(s.Phase()).To(Equal(dynamo.Finished))
			Expect(s.Clock().Step).To(Equal(3))

			Expect(s.Step()).To(MatchError(dynamo.ErrSolverExhausted))
		})

		It("seeds only once", func() {
			Expect(s.Seed(bump)).To(Succeed())
			Expect(s.Seed(bump)).To(MatchError(dynamo.ErrAlreadyInitialized))
		})

		It("bootstraps a plate at rest with identical levels", func() {
			Expect(s.Seed(bump)).To(Succeed())
			g := s.Grid()
			Expect(g.Prev.Data).To(Equal(g.Curr.Data))
		})

		It("can only be consumed once", func() {
			Expect(s.Seed(bump)).To(Succeed())
			n := 0
			for _, err := range s.Steps(ctx) {
				Expect(err).NotTo(HaveOccurred())
				n++
			}
			Expect(n).To(Equal(4))

			var second error
			for _, err := range s.Steps(ctx) {
				second = err
			}
			Expect(second).To(MatchError(dynamo.ErrSolverExhausted))
		})
	})

	Describe("the reference scenario", func() {
		It("runs 100 steps and stays finite and bounded", func() {
			s, err := sim.New(scenario())
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Seed(bump)).To(Succeed())

			var steps []int
			var last dynamo.Snapshot
			for snap, err := range s.Steps(ctx) {
				Expect(err).NotTo(HaveOccurred())
				steps = append(steps, snap.Step)
				last = snap
			}

			Expect(steps).To(HaveLen(101))
			Expect(steps[0]).To(Equal(0))
			Expect(steps[100]).To(Equal(100))
			Expect(last.Time).To(BeNumerically("~", 0.01, 1e-12))
			Expect(last.Field.IsValid()).To(BeTrue())

			energy := s.Energy()
			Expect(energy).To(HaveLen(101))
			e0 := energy[0].Total
			Expect(e0).To(BeNumerically(">", 0))
			for _, e := range energy {
				Expect(e.Total).To(BeNumerically("<", 10*e0))
			}
			Expect(s.Phase()).To(Equal(dynamo.Finished))
		})

		It("gives the same field for any thread count", func() {
			run := func(threads int) []float64 {
				cfg := scenario()
				cfg.Nx, cfg.Ny = 41, 41
				cfg.Dt = integrators.MaxStableDt(1.0/40, 1.0/40, 1) / 2
				cfg.Duration = 20 * cfg.Dt
				cfg.Threads = threads
				res, err := sim.Simulate(ctx, cfg, bump)
				Expect(err).NotTo(HaveOccurred())
				return res.Final.Field.Data
			}
			Expect(run(1)).To(Equal(run(4)))
		})

		It("keeps the clamped edge at zero after every step", func() {
			s, _ := sim.New(scenario())
			Expect(s.Seed(bump)).To(Succeed())
			for snap, err := range s.Steps(ctx) {
				Expect(err).NotTo(HaveOccurred())
				f := snap.Field
				for k := 0; k < f.Nx; k++ {
					Expect(f.At(0, k)).To(BeZero())
					Expect(f.At(f.Nx-1, k)).To(BeZero())
					Expect(f.At(k, 0)).To(BeZero())
					Expect(f.At(k, f.Ny-1)).To(BeZero())
				}
			}
		})
	})

	Describe("energy", func() {
		DescribeTable("stays bounded over 50 steps at every sample",
			func(kind dynamo.BoundaryKind, fraction, tol float64) {
				cfg := sim.Config{
					Nx: 21, Ny: 21, Lx: 1, Ly: 1,
					Rigidity:    1,
					Boundary:    kind,
					EnergyEvery: 1,
				}
				cfg.Dt = integrators.MaxStableDt(0.05, 0.05, 1) * fraction
				cfg.Duration = 50 * cfg.Dt

				res, err := sim.Simulate(ctx, cfg, bump)
				Expect(err).NotTo(HaveOccurred())
				Expect(res.Energy).To(HaveLen(51))

				e0 := res.Energy[0].Total
				Expect(e0).To(BeNumerically(">", 0))
				for _, e := range res.Energy {
					Expect(math.Abs(e.Total-e0)/e0).To(BeNumerically("<", tol), "step %d", e.Step)
				}
				Expect(math.Abs(res.EnergyDrift)).To(BeNumerically("<", 0.05))
			},
			// leapfrog energy oscillates by O(omega*dt) around a constant
			Entry("clamped at the bound", dynamo.Clamped, 1.0, 0.08),
			Entry("clamped at half the bound", dynamo.Clamped, 0.5, 0.05),
			Entry("clamped at a tenth of the bound", dynamo.Clamped, 0.1, 0.01),
			Entry("simply supported at the bound", dynamo.SimplySupported, 1.0, 0.08),
			Entry("simply supported at half the bound", dynamo.SimplySupported, 0.5, 0.05),
			Entry("simply supported at a tenth of the bound", dynamo.SimplySupported, 0.1, 0.01),
		)

		It("is skipped entirely when sampling is off", func() {
			cfg := scenario()
			cfg.EnergyEvery = 0
			res, err := sim.Simulate(ctx, cfg, bump)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Energy).To(BeEmpty())
			Expect(res.Final.Energy).To(BeNil())
		})
	})

	Describe("snapshots", func() {
		It("are views until cloned", func() {
			cfg := scenario()
			cfg.Duration = 5 * cfg.Dt
			s, _ := sim.New(cfg)
			Expect(s.Seed(bump)).To(Succeed())

			var view, kept dynamo.Snapshot
			for snap, err := range s.Steps(ctx) {
				Expect(err).NotTo(HaveOccurred())
				if snap.Step == 1 {
					view = snap
					kept = snap.Clone()
				}
			}
			Expect(kept.Step).To(Equal(1))
			Expect(kept.Field.Data).NotTo(Equal(view.Field.Data))
		})

		It("stop cleanly when the consumer breaks early", func() {
			s, _ := sim.New(scenario())
			Expect(s.Seed(bump)).To(Succeed())
			for snap := range s.Steps(ctx) {
				if snap.Step == 10 {
					break
				}
			}
			Expect(s.Clock().Step).To(Equal(10))
			Expect(s.Phase()).To(Equal(dynamo.Stepping))
		})
	})

	Describe("Run", func() {
		It("collects frames, metrics and observers", func() {
			cfg := scenario()
			cfg.FrameEvery = 25
			rec := &recorder{}
			reg := prometheus.NewRegistry()
			collector, err := observability.NewSolverCollector(reg)
			Expect(err).NotTo(HaveOccurred())

			res, err := sim.Simulate(ctx, cfg, bump, sim.WithObserver(rec), sim.WithCollector(collector))
			Expect(err).NotTo(HaveOccurred())

			Expect(res.Nt).To(Equal(100))
			Expect(res.StepsTaken).To(Equal(100))
			Expect(res.Times).To(HaveLen(5))
			Expect(res.Frames).To(HaveLen(5))
			Expect(res.Frames[2].Step).To(Equal(50))
			Expect(res.Final.Step).To(Equal(100))
			Expect(res.Metrics).To(HaveKey("energy_drift"))
			Expect(res.Metrics["stability"]).To(Equal(1.0))
			Expect(res.Initial).To(Equal("gaussian"))
			Expect(rec.steps).To(HaveLen(101))

			Expect(testutil.ToFloat64(collector.Steps)).To(Equal(100.0))
			Expect(testutil.ToFloat64(collector.Runs.WithLabelValues("clamped", "ok"))).To(Equal(1.0))
		})

		It("reports cancellation", func() {
			s, _ := sim.New(scenario())
			Expect(s.Seed(bump)).To(Succeed())
			cctx, cancel := context.WithCancel(ctx)
			cancel()

			_, err := s.Run(cctx)
			Expect(err).To(MatchError(dynamo.ErrContextCanceled))
			Expect(err).To(MatchError(context.Canceled))
		})

		It("stops when the callback says so", func() {
			s, _ := sim.New(scenario())
			Expect(s.Seed(bump)).To(Succeed())
			seen := 0
			Expect(s.RunWithCallback(ctx, func(snap dynamo.Snapshot) bool {
				seen++
				return snap.Step < 9
			})).To(Succeed())
			Expect(seen).To(Equal(10))
		})

		It("rejects a non-finite initial state", func() {
			cfg := scenario()
			s, _ := sim.New(cfg)
			Expect(s.Seed(physics.Func{
				Displacement: func(x, y float64) float64 { return math.Inf(1) },
			})).To(MatchError(dynamo.ErrInvalidState))
		})
	})

	Describe("Sweep", func() {
		It("runs both boundary kinds concurrently", func() {
			clamped := scenario()
			simple := scenario()
			simple.Boundary = dynamo.SimplySupported

			results, err := sim.Sweep(ctx, []sim.Case{
				{Name: "clamped", Config: clamped, Initial: bump},
				{Name: "simple", Config: simple, Initial: bump},
			}, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			Expect(results[0].Config.Boundary).To(Equal(dynamo.Clamped))
			Expect(results[1].Config.Boundary).To(Equal(dynamo.SimplySupported))
			Expect(results[0].Final.Field.Data).NotTo(Equal(results[1].Final.Field.Data))
		})

		It("gives each case its own observers", func() {
			first, second := &recorder{}, &recorder{}
			short := scenario()
			short.Duration = 10 * short.Dt

			_, err := sim.Sweep(ctx, []sim.Case{
				{Name: "first", Config: scenario(), Initial: bump, Options: []sim.Option{sim.WithObserver(first)}},
				{Name: "second", Config: short, Initial: bump, Options: []sim.Option{sim.WithObserver(second)}},
			}, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(first.steps).To(HaveLen(101))
			Expect(second.steps).To(HaveLen(11))
		})

		It("fails fast on a bad case", func() {
			bad := scenario()
			bad.Dt = 1
			_, err := sim.Sweep(ctx, []sim.Case{
				{Name: "ok", Config: scenario(), Initial: bump},
				{Name: "bad", Config: bad, Initial: bump},
			}, 0)
			Expect(err).To(MatchError(dynamo.ErrUnstableTimestep))
		})
	})
})
