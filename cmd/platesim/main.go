package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/san-kum/platesim/internal/config"
	"github.com/san-kum/platesim/internal/logging"
	"github.com/san-kum/platesim/internal/observability"
	"github.com/san-kum/platesim/internal/optim"
	"github.com/san-kum/platesim/internal/physics"
	"github.com/san-kum/platesim/internal/sim"
	"github.com/san-kum/platesim/internal/storage"
	"github.com/san-kum/platesim/internal/viz"
)

var (
	dataDir   string
	logLevel  string
	logFormat string
	trace     bool
	themeName string

	configFile string
	preset     string

	nx, ny      int
	lx, ly      float64
	rigidity    float64
	dt          float64
	duration    float64
	boundary    string
	bootstrap   string
	initial     string
	amplitude   float64
	x0, y0      float64
	sigma       float64
	modeM       int
	modeN       int
	energyEvery int
	frameEvery  int
	workers     int
	threads     int

	logger         logging.Logger
	shutdownTraces func(context.Context) error
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "platesim",
		Short:         "biharmonic plate wave solver",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger = logging.New(logging.Config{Level: logLevel, Format: logFormat})
			tc := observability.TracingConfigFromEnv()
			if trace {
				tc.Enabled = true
			}
			shutdown, err := observability.InitTracing(cmd.Context(), tc, logger)
			if err != nil {
				return err
			}
			shutdownTraces = shutdown
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			observability.ShutdownWithTimeout(context.Background(), shutdownTraces, logger)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return viz.RunMenu(cmd.Context(), menuEntries(), viz.GetTheme(themeName))
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".platesim", "data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", envOr("LOG_LEVEL", "warn"), "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", envOr("LOG_FORMAT", "text"), "log format (text, json)")
	rootCmd.PersistentFlags().BoolVar(&trace, "trace", false, "print OpenTelemetry spans to stderr")
	rootCmd.PersistentFlags().StringVar(&themeName, "theme", "cyberpunk", "color theme ("+strings.Join(viz.ThemeNames(), ", ")+")")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run a simulation and store it",
		Args:  cobra.NoArgs,
		RunE:  runSimulation,
	}
	addPlateFlags(runCmd)

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "run a simulation with a live terminal view",
		Args:  cobra.NoArgs,
		RunE:  runLive,
	}
	addPlateFlags(liveCmd)

	benchCmd := &cobra.Command{
		Use:   "bench",
		Short: "time the leapfrog step across grid sizes",
		Args:  cobra.NoArgs,
		RunE:  benchPlate,
	}
	benchCmd.Flags().IntSliceVar(&benchSizes, "sizes", []int{21, 41, 81, 161}, "square grid sizes")
	benchCmd.Flags().IntVar(&benchSteps, "steps", 200, "steps per size")
	benchCmd.Flags().StringVar(&boundary, "boundary", "clamped", "boundary condition")

	compareCmd := &cobra.Command{
		Use:   "compare",
		Short: "run the same plate clamped and simply supported",
		Args:  cobra.NoArgs,
		RunE:  compareBoundaries,
	}
	addPlateFlags(compareCmd)
	compareCmd.Flags().IntVar(&workers, "workers", 0, "concurrent runs (0 = config value, then all at once)")

	stabilityCmd := &cobra.Command{
		Use:   "stability",
		Short: "compare the analytic timestep bound with the assembled operator",
		Args:  cobra.NoArgs,
		RunE:  checkStability,
	}
	addPlateFlags(stabilityCmd)

	searchCmd := &cobra.Command{
		Use:   "search",
		Short: "grid search plate parameters for the lowest metric",
		Args:  cobra.NoArgs,
		RunE:  searchGrid,
	}
	addPlateFlags(searchCmd)
	searchCmd.Flags().StringArrayVar(&searchParams, "param", nil, "parameter values as name=v1,v2,... (repeatable)")
	searchCmd.Flags().StringVar(&searchMetric, "metric", "energy_drift", "metric to minimize")
	searchCmd.Flags().IntVar(&workers, "workers", 0, "concurrent runs (0 = config value, then all at once)")

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "run the plate across evenly spaced values of one parameter",
		Args:  cobra.NoArgs,
		RunE:  sweepParameter,
	}
	addPlateFlags(sweepCmd)
	sweepCmd.Flags().StringVar(&sweepParam, "param", "rigidity", "parameter to sweep ("+strings.Join(optim.ParameterNames(), ", ")+")")
	sweepCmd.Flags().Float64Var(&sweepMin, "min", 0.5, "first value")
	sweepCmd.Flags().Float64Var(&sweepMax, "max", 2, "last value")
	sweepCmd.Flags().IntVar(&sweepPoints, "points", 4, "number of values")
	sweepCmd.Flags().IntVar(&workers, "workers", 0, "concurrent runs (0 = config value, then all at once)")

	scenarioCmd := &cobra.Command{
		Use:   "scenario [file]",
		Short: "run the steps of a scenario file in order",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenarioFile,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets [group]",
		Short: "list available presets",
		Args:  cobra.MaximumNArgs(1),
		RunE:  listPresets,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "stream a run to websocket clients",
		Args:  cobra.NoArgs,
		RunE:  serveStream,
	}
	addPlateFlags(serveCmd)
	serveCmd.Flags().StringVar(&listenAddr, "addr", ":8080", "listen address")
	serveCmd.Flags().IntVar(&streamEvery, "stream-every", 1, "broadcast every Nth step")
	serveCmd.Flags().IntVar(&streamFPS, "fps", 30, "broadcast frames per second (0 = unpaced)")
	serveCmd.Flags().BoolVar(&loop, "loop", false, "restart the run when it finishes")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot the energy of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	showCmd := &cobra.Command{
		Use:   "show [run_id]",
		Short: "draw the final displacement of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  showRun,
	}
	showCmd.Flags().IntVar(&showWidth, "width", 60, "heatmap width in characters")
	showCmd.Flags().IntVar(&showHeight, "height", 24, "heatmap height in characters")
	showCmd.Flags().BoolVar(&showSpectrum, "spectrum", false, "also print the peak displacement spectrum of the stored frames")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export run metadata and energy as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().BoolVar(&withField, "field", false, "include the final field")
	exportCmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export the energy series of a run to CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}

	exportSVGCmd := &cobra.Command{
		Use:   "export-svg [run_id]",
		Short: "render a run's final field, nodal lines and energy series to SVG",
		Args:  cobra.ExactArgs(1),
		RunE:  exportSVG,
	}
	exportSVGCmd.Flags().IntVar(&cellSize, "cell", 12, "pixels per grid node")
	exportSVGCmd.Flags().StringVarP(&outPath, "out", "o", "", "output directory (default the run directory)")

	rootCmd.AddCommand(runCmd, liveCmd, benchCmd, compareCmd, stabilityCmd, searchCmd, sweepCmd, scenarioCmd,
		presetsCmd, serveCmd, listCmd, plotCmd, showCmd, exportCmd, exportCSVCmd, exportSVGCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func addPlateFlags(cmd *cobra.Command) {
	d := config.DefaultConfig()
	f := cmd.Flags()
	f.StringVar(&configFile, "config", "", "config file path (yaml)")
	f.StringVar(&preset, "preset", "", "preset as group/name, see 'platesim presets'")
	f.IntVar(&nx, "nx", d.Grid.Nx, "nodes along x")
	f.IntVar(&ny, "ny", d.Grid.Ny, "nodes along y")
	f.Float64Var(&lx, "lx", d.Grid.Lx, "plate length along x")
	f.Float64Var(&ly, "ly", d.Grid.Ly, "plate length along y")
	f.Float64Var(&rigidity, "rigidity", d.Rigidity, "flexural rigidity D")
	f.Float64Var(&dt, "dt", d.Dt, "timestep (0 = half the stability bound)")
	f.Float64Var(&duration, "time", d.Duration, "simulated duration")
	f.StringVar(&boundary, "boundary", d.Boundary, "clamped or simply_supported")
	f.StringVar(&bootstrap, "bootstrap", d.Bootstrap, "first_order or second_order")
	f.StringVar(&initial, "initial", d.Initial.Kind, "gaussian, mode or flat")
	f.Float64Var(&amplitude, "amplitude", d.Initial.Amplitude, "initial amplitude")
	f.Float64Var(&x0, "x0", d.Initial.X0, "gaussian center x")
	f.Float64Var(&y0, "y0", d.Initial.Y0, "gaussian center y")
	f.Float64Var(&sigma, "sigma", d.Initial.Sigma, "gaussian width")
	f.IntVar(&modeM, "m", d.Initial.M, "mode number along x")
	f.IntVar(&modeN, "n", d.Initial.N, "mode number along y")
	f.IntVar(&energyEvery, "energy-every", d.Diagnostics.Every, "sample energy every N steps (0 disables)")
	f.IntVar(&frameEvery, "frame-every", d.Output.FrameEvery, "keep a frame every N steps")
	f.IntVar(&threads, "threads", d.Threads, "goroutines per stencil pass (0 = GOMAXPROCS)")
}

// resolveConfig layers defaults, then a preset, then a config file, then
// any flag that was set explicitly.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if preset != "" {
		p, err := config.ResolvePreset(preset)
		if err != nil {
			return nil, err
		}
		cfg = p
	}
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}
	set("nx", func() { cfg.Grid.Nx = nx })
	set("ny", func() { cfg.Grid.Ny = ny })
	set("lx", func() { cfg.Grid.Lx = lx })
	set("ly", func() { cfg.Grid.Ly = ly })
	set("rigidity", func() { cfg.Rigidity = rigidity })
	set("dt", func() { cfg.Dt = dt })
	set("time", func() { cfg.Duration = duration })
	set("boundary", func() { cfg.Boundary = boundary })
	set("bootstrap", func() { cfg.Bootstrap = bootstrap })
	set("initial", func() { cfg.Initial.Kind = initial })
	set("amplitude", func() { cfg.Initial.Amplitude = amplitude })
	set("x0", func() { cfg.Initial.X0 = x0 })
	set("y0", func() { cfg.Initial.Y0 = y0 })
	set("sigma", func() { cfg.Initial.Sigma = sigma })
	set("m", func() { cfg.Initial.M = modeM })
	set("n", func() { cfg.Initial.N = modeN })
	set("energy-every", func() {
		cfg.Diagnostics.Energy = energyEvery > 0
		cfg.Diagnostics.Every = energyEvery
	})
	set("frame-every", func() { cfg.Output.FrameEvery = frameEvery })
	set("threads", func() { cfg.Threads = threads })

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// plateSetup resolves the command's configuration into solver inputs.
func plateSetup(cmd *cobra.Command) (sim.Config, physics.InitialCondition, error) {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return sim.Config{}, nil, err
	}
	sc, err := cfg.SimConfig()
	if err != nil {
		return sim.Config{}, nil, err
	}
	ic, err := cfg.InitialCondition()
	if err != nil {
		return sim.Config{}, nil, err
	}
	return sc, ic, nil
}

func openStore() (*storage.Store, error) {
	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return nil, err
	}
	return st, nil
}

// menuEntries turns every preset into a runnable menu entry.
func menuEntries() []viz.MenuEntry {
	var entries []viz.MenuEntry
	for _, group := range config.ListGroups() {
		for _, name := range config.ListPresets(group) {
			p := config.GetPreset(group, name)
			entries = append(entries, viz.MenuEntry{
				Group:   group,
				Name:    name,
				Summary: fmt.Sprintf("%dx%d %s T=%g", p.Grid.Nx, p.Grid.Ny, p.Initial.Kind, p.Duration),
				Build: func() (*sim.Solver, error) {
					sc, err := p.SimConfig()
					if err != nil {
						return nil, err
					}
					ic, err := p.InitialCondition()
					if err != nil {
						return nil, err
					}
					return seededSolver(sc, ic)
				},
			})
		}
	}
	return entries
}

func seededSolver(sc sim.Config, ic physics.InitialCondition, opts ...sim.Option) (*sim.Solver, error) {
	s, err := sim.New(sc, opts...)
	if err != nil {
		return nil, err
	}
	if err := s.Seed(ic); err != nil {
		return nil, err
	}
	return s, nil
}
