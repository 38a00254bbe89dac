package automation

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/platesim/internal/config"
	"github.com/san-kum/platesim/internal/dynamo"
	"github.com/san-kum/platesim/internal/sim"
)

const twoSteps = `
name: clamped then supported
description: same pulse on both edge conditions
steps:
  - name: clamped
    preset: clamped/scenario
    config:
      duration: 0.002
    save: true
  - preset: clamped/scenario
    config:
      boundary: simply_supported
      duration: 0.001
      initial:
        amplitude: 0.5
`

type memStore struct {
	saved []*sim.Result
}

func (m *memStore) Save(ctx context.Context, r *sim.Result) (string, error) {
	m.saved = append(m.saved, r)
	return "run-" + string(rune('0'+len(m.saved))), nil
}

func TestParseScenario(t *testing.T) {
	sc, err := ParseScenario([]byte(twoSteps))
	if err != nil {
		t.Fatal(err)
	}
	if sc.Name != "clamped then supported" || len(sc.Steps) != 2 {
		t.Fatalf("unexpected scenario %+v", sc)
	}
	if sc.Steps[1].Name != "step-2" {
		t.Errorf("unnamed step got %q, want step-2", sc.Steps[1].Name)
	}
	if !sc.Steps[0].Save || sc.Steps[1].Save {
		t.Error("save flags not decoded")
	}
}

func TestParseScenarioRejectsEmpty(t *testing.T) {
	_, err := ParseScenario([]byte("name: empty\nsteps: []\n"))
	if !errors.Is(err, dynamo.ErrParameterBounds) {
		t.Errorf("expected ErrParameterBounds, got %v", err)
	}
}

func TestLoadScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	if err := os.WriteFile(path, []byte(twoSteps), 0644); err != nil {
		t.Fatal(err)
	}
	sc, err := LoadScenario(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(sc.Steps) != 2 {
		t.Errorf("expected 2 steps, got %d", len(sc.Steps))
	}
	if _, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestStepResolveOverlaysPreset(t *testing.T) {
	sc, err := ParseScenario([]byte(twoSteps))
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := sc.Steps[1].Resolve()
	if err != nil {
		t.Fatal(err)
	}
	p := config.GetPreset("clamped", "scenario")
	if cfg.Boundary != "simply_supported" || cfg.Duration != 0.001 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.Initial.Amplitude != 0.5 || cfg.Initial.Sigma != p.Initial.Sigma {
		t.Errorf("nested override should keep sibling fields: %+v", cfg.Initial)
	}
	if cfg.Grid != p.Grid || cfg.Dt != p.Dt {
		t.Errorf("preset fields lost: %+v", cfg)
	}
}

func TestStepResolveRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown preset", "steps:\n  - preset: clamped/nope\n"},
		{"bad preset form", "steps:\n  - preset: clamped\n"},
		{"unstable dt", "steps:\n  - config:\n      dt: 1\n"},
		{"bad boundary", "steps:\n  - config:\n      boundary: free\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc, err := ParseScenario([]byte(tt.doc))
			if err != nil {
				t.Fatal(err)
			}
			if _, err := sc.Steps[0].Resolve(); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestRunScenario(t *testing.T) {
	sc, err := ParseScenario([]byte(twoSteps))
	if err != nil {
		t.Fatal(err)
	}
	store := &memStore{}
	results, err := RunScenario(context.Background(), sc, store, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if len(store.saved) != 1 || results[0].RunID != "run-1" || results[1].RunID != "" {
		t.Errorf("only the first step should be saved, got %d saves", len(store.saved))
	}
	if results[0].Result.Nt != 20 || results[1].Result.Nt != 10 {
		t.Errorf("step counts %d and %d, want 20 and 10", results[0].Result.Nt, results[1].Result.Nt)
	}
	if results[1].Result.Config.Boundary != dynamo.SimplySupported {
		t.Errorf("second step ran with %v", results[1].Result.Config.Boundary)
	}
}

func TestRunScenarioStopsAtFailure(t *testing.T) {
	doc := "steps:\n  - preset: clamped/scenario\n    config:\n      duration: 0.001\n  - preset: clamped/nope\n"
	sc, err := ParseScenario([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	results, err := RunScenario(context.Background(), sc, nil, nil)
	if err == nil {
		t.Fatal("expected the second step to fail")
	}
	if len(results) != 1 {
		t.Errorf("expected the first result to be kept, got %d", len(results))
	}
}

func TestRunScenarioNeedsStoreToSave(t *testing.T) {
	sc, err := ParseScenario([]byte(twoSteps))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := RunScenario(context.Background(), sc, nil, nil); err == nil {
		t.Error("expected an error when a step saves without a store")
	}
}

func sweepBase() *config.Config {
	cfg := config.GetPreset("clamped", "scenario")
	cfg.Grid.Nx, cfg.Grid.Ny = 9, 9
	cfg.Duration = 0.002
	cfg.Initial.Sigma = 0.15
	return cfg
}

func TestRunSweep(t *testing.T) {
	results, err := RunSweep(context.Background(), sweepBase(), ParameterSweep{
		Param: "amplitude", Min: 0.5, Max: 1.5, NumSteps: 3, Workers: 2,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, want := range []float64{0.5, 1, 1.5} {
		r := results[i]
		if r.ParamValue != want {
			t.Errorf("value %d = %g, want %g", i, r.ParamValue, want)
		}
		if r.Steps != 20 {
			t.Errorf("%g: %d steps, want 20", want, r.Steps)
		}
		if r.MaxPeak < want*(1-1e-12) {
			t.Errorf("%g: peak displacement %g below the initial amplitude", want, r.MaxPeak)
		}
		if ratio := r.MaxPeak / want; math.Abs(ratio-results[0].MaxPeak/0.5) > 1e-9 {
			t.Errorf("%g: peak not linear in amplitude, ratio %g", want, ratio)
		}
		if !(r.FinalPeak > 0) || r.FinalPeak > r.MaxPeak {
			t.Errorf("%g: final peak %g outside (0, %g]", want, r.FinalPeak, r.MaxPeak)
		}
	}
	// linear problem: drift does not depend on amplitude
	if math.Abs(results[0].EnergyDrift-results[2].EnergyDrift) > 1e-9 {
		t.Errorf("drift %g vs %g", results[0].EnergyDrift, results[2].EnergyDrift)
	}
}

func TestRunSweepRejects(t *testing.T) {
	tests := []struct {
		name  string
		sweep ParameterSweep
	}{
		{"unknown parameter", ParameterSweep{Param: "mass", Min: 0, Max: 1, NumSteps: 3}},
		{"single value", ParameterSweep{Param: "amplitude", Min: 0, Max: 1, NumSteps: 1}},
		{"empty range", ParameterSweep{Param: "amplitude", Min: 1, Max: 1, NumSteps: 3}},
		{"unstable value", ParameterSweep{Param: "dt_fraction", Min: 0.5, Max: 2, NumSteps: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := RunSweep(context.Background(), sweepBase(), tt.sweep); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
