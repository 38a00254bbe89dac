package automation

import (
	"context"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/floats"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/platesim/internal/analysis"
	"github.com/san-kum/platesim/internal/config"
	"github.com/san-kum/platesim/internal/dynamo"
	"github.com/san-kum/platesim/internal/logging"
	"github.com/san-kum/platesim/internal/optim"
	"github.com/san-kum/platesim/internal/sim"
)

// Scenario defines a scripted sequence of plate runs
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep is one run. The configuration starts from the named preset
// (group/name) or the defaults, and the config block is decoded over it, so
// a step only lists what it changes.
type ScenarioStep struct {
	Name   string    `yaml:"name"`
	Preset string    `yaml:"preset"`
	Config yaml.Node `yaml:"config"`
	Save   bool      `yaml:"save"`
}

// LoadScenario loads a scenario from a YAML file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return scenario, nil
}

func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, err
	}
	if len(scenario.Steps) == 0 {
		return nil, fmt.Errorf("%w: scenario %q has no steps", dynamo.ErrParameterBounds, scenario.Name)
	}
	for i := range scenario.Steps {
		if scenario.Steps[i].Name == "" {
			scenario.Steps[i].Name = fmt.Sprintf("step-%d", i+1)
		}
	}
	return &scenario, nil
}

// Resolve builds and validates the step's configuration.
func (s *ScenarioStep) Resolve() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if s.Preset != "" {
		p, err := config.ResolvePreset(s.Preset)
		if err != nil {
			return nil, err
		}
		cfg = p
	}
	if !s.Config.IsZero() {
		if err := s.Config.Decode(cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Saver persists a finished run and returns its ID.
type Saver interface {
	Save(ctx context.Context, result *sim.Result) (string, error)
}

type StepResult struct {
	Name   string
	RunID  string
	Result *sim.Result
}

// RunScenario executes all steps in order. Steps marked save are written to
// store, which may be nil when no step saves. It stops at the first failing
// step and returns the results so far.
func RunScenario(ctx context.Context, scenario *Scenario, store Saver, log logging.Logger, opts ...sim.Option) ([]StepResult, error) {
	if log == nil {
		log = logging.Noop()
	}
	results := make([]StepResult, 0, len(scenario.Steps))

	for i := range scenario.Steps {
		step := &scenario.Steps[i]
		cfg, err := step.Resolve()
		if err != nil {
			return results, fmt.Errorf("step %d (%s): %w", i+1, step.Name, err)
		}
		sc, err := cfg.SimConfig()
		if err != nil {
			return results, fmt.Errorf("step %d (%s): %w", i+1, step.Name, err)
		}
		ic, err := cfg.InitialCondition()
		if err != nil {
			return results, fmt.Errorf("step %d (%s): %w", i+1, step.Name, err)
		}

		runCtx, runLog := logging.WithRunLogger(ctx, log.With(logging.String("step", step.Name)))
		runLog.Info(runCtx, "scenario step", logging.Int("index", i+1), logging.Int("of", len(scenario.Steps)))

		result, err := sim.Simulate(runCtx, sc, ic, append([]sim.Option{sim.WithLogger(runLog)}, opts...)...)
		if err != nil {
			return results, fmt.Errorf("step %d (%s) run: %w", i+1, step.Name, err)
		}

		sr := StepResult{Name: step.Name, Result: result}
		if step.Save {
			if store == nil {
				return results, fmt.Errorf("step %d (%s): no store to save to", i+1, step.Name)
			}
			sr.RunID, err = store.Save(runCtx, result)
			if err != nil {
				return results, fmt.Errorf("step %d (%s) save: %w", i+1, step.Name, err)
			}
		}
		results = append(results, sr)
	}
	return results, nil
}

// ParameterSweep runs one plate across evenly spaced values of a parameter
type ParameterSweep struct {
	Param    string
	Min, Max float64
	NumSteps int
	Workers  int
}

// SweepResult summarizes the run at one parameter value
type SweepResult struct {
	ParamValue  float64
	Steps       int
	EnergyDrift float64
	MaxPeak     float64
	FinalPeak   float64
	// Frequency is the dominant frequency at the plate center, NaN when the
	// run is too short to estimate it.
	Frequency float64
}

// RunSweep executes the sweep concurrently, each value on its own solver.
func RunSweep(ctx context.Context, base *config.Config, sweep ParameterSweep, opts ...sim.Option) ([]SweepResult, error) {
	if sweep.NumSteps < 2 || !(sweep.Max > sweep.Min) {
		return nil, fmt.Errorf("%w: sweep of %d values over [%g, %g]", dynamo.ErrParameterBounds, sweep.NumSteps, sweep.Min, sweep.Max)
	}
	if _, err := optim.Lookup(sweep.Param); err != nil {
		return nil, err
	}

	values := floats.Span(make([]float64, sweep.NumSteps), sweep.Min, sweep.Max)
	cases := make([]sim.Case, len(values))
	probes := make([]*analysis.Probe, len(values))
	for i, v := range values {
		cfg, err := optim.Apply(base, map[string]float64{sweep.Param: v})
		if err != nil {
			return nil, err
		}
		sc, err := cfg.SimConfig()
		if err != nil {
			return nil, fmt.Errorf("%s=%g: %w", sweep.Param, v, err)
		}
		ic, err := cfg.InitialCondition()
		if err != nil {
			return nil, fmt.Errorf("%s=%g: %w", sweep.Param, v, err)
		}
		probes[i] = analysis.CenterProbe(sc.Nx, sc.Ny)
		cases[i] = sim.Case{
			Name:    fmt.Sprintf("%s=%g", sweep.Param, v),
			Config:  sc,
			Initial: ic,
			Options: []sim.Option{sim.WithObserver(probes[i])},
		}
	}

	results, err := sim.Sweep(ctx, cases, sweep.Workers, opts...)
	if err != nil {
		return nil, err
	}

	out := make([]SweepResult, len(results))
	for i, res := range results {
		freq, err := analysis.DominantFrequency(probes[i].Values, res.Config.Dt)
		if err != nil {
			freq = math.NaN()
		}
		out[i] = SweepResult{
			ParamValue:  values[i],
			Steps:       res.StepsTaken,
			EnergyDrift: res.EnergyDrift,
			MaxPeak:     res.Metrics["peak_displacement"],
			FinalPeak:   res.Final.Field.MaxAbs(),
			Frequency:   freq,
		}
	}
	return out, nil
}
