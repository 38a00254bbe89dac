package main

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/san-kum/platesim/internal/analysis"
	"github.com/san-kum/platesim/internal/config"
	"github.com/san-kum/platesim/internal/dynamo"
	"github.com/san-kum/platesim/internal/integrators"
	"github.com/san-kum/platesim/internal/logging"
	"github.com/san-kum/platesim/internal/physics"
	"github.com/san-kum/platesim/internal/sim"
	"github.com/san-kum/platesim/internal/viz"
)

var (
	benchSizes []int
	benchSteps int
)

func runSimulation(cmd *cobra.Command, args []string) error {
	sc, ic, err := plateSetup(cmd)
	if err != nil {
		return err
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, log := logging.WithRunLogger(cmd.Context(), logger)
	fmt.Printf("running %s, %s steps of %g\n", sc, humanize.Comma(int64(dynamo.StepCount(sc.Duration, sc.Dt))), sc.Dt)

	probe := analysis.CenterProbe(sc.Nx, sc.Ny)
	result, runErr := sim.Simulate(ctx, sc, ic, sim.WithLogger(log), sim.WithObserver(probe))
	if result == nil {
		return runErr
	}

	runID, err := st.Save(ctx, result)
	if err != nil {
		return err
	}

	fmt.Printf("completed in %v\n", result.Elapsed)
	fmt.Printf("run id: %s\n", runID)
	fmt.Printf("steps: %s / %s\n", humanize.Comma(int64(result.StepsTaken)), humanize.Comma(int64(result.Nt)))
	fmt.Printf("energy drift: %.3e\n", result.EnergyDrift)
	if f, err := analysis.DominantFrequency(probe.Values, sc.Dt); err == nil {
		fmt.Printf("center frequency: %.4g Hz\n", f)
	}
	fmt.Println("\nmetrics:")
	for _, name := range slices.Sorted(maps.Keys(result.Metrics)) {
		fmt.Printf("  %s: %.6g\n", name, result.Metrics[name])
	}

	if runErr != nil {
		return fmt.Errorf("run %s stopped at step %d: %w", runID, result.StepsTaken, runErr)
	}
	return nil
}

func runLive(cmd *cobra.Command, args []string) error {
	sc, ic, err := plateSetup(cmd)
	if err != nil {
		return err
	}
	// stderr belongs to the terminal UI while it runs
	solver, err := seededSolver(sc, ic, sim.WithLogger(logging.Noop()))
	if err != nil {
		return err
	}
	return viz.RunLive(cmd.Context(), solver, ic.Name()+" "+sc.Boundary.String(), viz.GetTheme(themeName))
}

func benchPlate(cmd *cobra.Command, args []string) error {
	kind, err := dynamo.ParseBoundaryKind(boundary)
	if err != nil {
		return err
	}
	if benchSteps < 1 {
		return fmt.Errorf("%w: steps must be positive", dynamo.ErrParameterBounds)
	}

	fmt.Printf("benchmarking %s plate, %d steps per size\n\n", kind, benchSteps)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "GRID\tNODES\tDT\tTIME\tSTEPS/SEC\tNODE UPDATES/SEC")

	for _, n := range benchSizes {
		h := 1 / float64(n-1)
		step := 0.5 * integrators.MaxStableDt(h, h, 1)
		cfg := sim.Config{
			Nx: n, Ny: n,
			Lx: 1, Ly: 1,
			Rigidity: 1,
			Dt:       step,
			Duration: float64(benchSteps) * step,
			Boundary: kind,
		}
		ic := physics.Gaussian{Amplitude: 1, X0: 0.5, Y0: 0.5, Sigma: 0.1}

		start := time.Now()
		res, err := sim.Simulate(cmd.Context(), cfg, ic, sim.WithLogger(logger))
		if err != nil {
			return err
		}
		elapsed := time.Since(start)

		rate := float64(res.StepsTaken) / elapsed.Seconds()
		fmt.Fprintf(w, "%dx%d\t%s\t%.3g\t%v\t%s\t%s\n",
			n, n,
			humanize.Comma(int64(n*n)),
			step,
			elapsed.Round(time.Microsecond),
			humanize.CommafWithDigits(rate, 0),
			humanize.SIWithDigits(rate*float64(n*n), 2, ""),
		)
	}
	return w.Flush()
}

func compareBoundaries(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	limit := cfg.Workers
	if cmd.Flags().Changed("workers") {
		limit = workers
	}

	var cases []sim.Case
	for _, kind := range []dynamo.BoundaryKind{dynamo.Clamped, dynamo.SimplySupported} {
		c := cfg.Clone()
		c.Boundary = kind.String()
		sc, err := c.SimConfig()
		if err != nil {
			return err
		}
		ic, err := c.InitialCondition()
		if err != nil {
			return err
		}
		cases = append(cases, sim.Case{Name: kind.String(), Config: sc, Initial: ic})
	}

	results, err := sim.Sweep(cmd.Context(), cases, limit, sim.WithLogger(logger))
	if err != nil {
		return err
	}

	fmt.Printf("comparing boundaries (%dx%d, dt=%g, T=%g)\n\n", cfg.Grid.Nx, cfg.Grid.Ny, cases[0].Config.Dt, cfg.Duration)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "BOUNDARY\tSTEPS\tFINAL PEAK\tMAX PEAK\tENERGY DRIFT\tGROWTH\tTIME")
	for i, res := range results {
		growth := "-"
		if rate, err := analysis.GrowthRate(res.Frames); err == nil {
			growth = fmt.Sprintf("%+.3g", rate)
		}
		fmt.Fprintf(w, "%s\t%s\t%.4g\t%.4g\t%.3e\t%s\t%v\n",
			cases[i].Name,
			humanize.Comma(int64(res.StepsTaken)),
			res.Final.Field.MaxAbs(),
			res.Metrics["peak_displacement"],
			res.EnergyDrift,
			growth,
			res.Elapsed.Round(time.Microsecond),
		)
	}
	return w.Flush()
}

func checkStability(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	advisor, err := integrators.NewAdvisor(4)
	if err != nil {
		return err
	}
	return stabilityReport(os.Stdout, cfg, advisor)
}

// stabilityReport compares the analytic bound with the assembled operator
// and the configured dt.
func stabilityReport(out io.Writer, cfg *config.Config, advisor *integrators.Advisor) error {
	kind, err := dynamo.ParseBoundaryKind(cfg.Boundary)
	if err != nil {
		return err
	}
	g, err := dynamo.NewGrid(cfg.Grid.Nx, cfg.Grid.Ny, cfg.Grid.Lx, cfg.Grid.Ly)
	if err != nil {
		return err
	}
	plate, err := physics.NewPlate(cfg.Rigidity, kind)
	if err != nil {
		return err
	}

	bound := integrators.MaxStableDt(g.Dx, g.Dy, cfg.Rigidity)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "grid\t%dx%d over %gx%g, %s\n", g.Nx, g.Ny, g.Lx, g.Ly, kind)
	fmt.Fprintf(w, "spacing\tdx=%g dy=%g\n", g.Dx, g.Dy)
	fmt.Fprintf(w, "analytic C\t%g\n", integrators.StabilityConstant)
	fmt.Fprintf(w, "max stable dt\t%.6g\n", bound)

	switch crit, err := advisor.CriticalDt(g, plate); {
	case errors.Is(err, dynamo.ErrParameterBounds):
		fmt.Fprintf(w, "critical dt\tskipped, grid too large for a dense solve\n")
	case err != nil:
		return err
	default:
		fmt.Fprintf(w, "critical dt\t%.6g (assembled operator)\n", crit)
		c, err := advisor.EmpiricalConstant(g, plate)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "empirical C\t%.4f\n", c)
	}

	step := cfg.ResolvedDt()
	verdict := "stable"
	if err := integrators.Validate(step, g.Dx, g.Dy, cfg.Rigidity); err != nil {
		verdict = "rejected: " + err.Error()
	}
	fmt.Fprintf(w, "configured dt\t%.6g (%.2f of the bound), %s\n", step, step/bound, verdict)

	if kind == dynamo.SimplySupported {
		m, n := max(cfg.Initial.M, 1), max(cfg.Initial.N, 1)
		fmt.Fprintf(w, "mode (%d,%d)\t%.6g Hz continuous\n", m, n, analysis.ModeFrequency(m, n, g.Lx, g.Ly, cfg.Rigidity))
		if f, err := analysis.DiscreteModeFrequency(m, n, g.Nx, g.Ny, g.Lx, g.Ly, cfg.Rigidity, step); err == nil {
			fmt.Fprintf(w, "\t%.6g Hz on this grid at dt\n", f)
		} else {
			fmt.Fprintf(w, "\t%v\n", err)
		}
	}
	return w.Flush()
}

func listPresets(cmd *cobra.Command, args []string) error {
	groups := config.ListGroups()
	if len(args) == 1 {
		if config.ListPresets(args[0]) == nil {
			return fmt.Errorf("no presets for group: %s (available: %v)", args[0], groups)
		}
		groups = []string{args[0]}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PRESET\tGRID\tINITIAL\tDT\tDURATION")
	for _, group := range groups {
		for _, name := range config.ListPresets(group) {
			p := config.GetPreset(group, name)
			step := "auto"
			if p.Dt > 0 {
				step = fmt.Sprintf("%g", p.Dt)
			}
			fmt.Fprintf(w, "%s/%s\t%dx%d\t%s\t%s\t%g\n", group, name, p.Grid.Nx, p.Grid.Ny, p.Initial.Kind, step, p.Duration)
		}
	}
	return w.Flush()
}
