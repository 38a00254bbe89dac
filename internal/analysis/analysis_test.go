package analysis

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/san-kum/platesim/internal/dynamo"
	"github.com/san-kum/platesim/internal/physics"
	"github.com/san-kum/platesim/internal/sim"
)

func sine(freq, dt, offset float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = offset + math.Sin(2*math.Pi*freq*float64(i)*dt)
	}
	return out
}

func TestDominantFrequency(t *testing.T) {
	tests := []struct {
		name   string
		freq   float64
		offset float64
	}{
		{"on bin", 5, 0},
		{"between bins", 5.2, 0},
		{"with offset", 5.2, 0.3},
		{"low", 1.7, -2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DominantFrequency(sine(tt.freq, 0.01, tt.offset, 256), 0.01)
			if err != nil {
				t.Fatal(err)
			}
			if math.Abs(got-tt.freq) > 0.1 {
				t.Errorf("dominant frequency = %g, want %g", got, tt.freq)
			}
		})
	}
}

func TestDominantFrequencyErrors(t *testing.T) {
	if _, err := DominantFrequency([]float64{1, 2, 3}, 0.1); !errors.Is(err, dynamo.ErrParameterBounds) {
		t.Errorf("short series: expected ErrParameterBounds, got %v", err)
	}
	if _, err := DominantFrequency(sine(1, 0.1, 0, 32), 0); !errors.Is(err, dynamo.ErrParameterBounds) {
		t.Errorf("zero dt: expected ErrParameterBounds, got %v", err)
	}
	flat := make([]float64, 32)
	for i := range flat {
		flat[i] = 4
	}
	if _, err := DominantFrequency(flat, 0.1); !errors.Is(err, dynamo.ErrParameterBounds) {
		t.Errorf("constant series: expected ErrParameterBounds, got %v", err)
	}
}

func TestPowerSpectrumShape(t *testing.T) {
	ps := PowerSpectrum(sine(4, 0.01, 1, 100))
	if len(ps) != 51 {
		t.Fatalf("len = %d, want 51", len(ps))
	}
	if ps[0] > 1e-4*ps[4] {
		t.Errorf("mean not removed: dc power %g", ps[0])
	}
	freqs := Frequencies(100, 0.01)
	if len(freqs) != len(ps) || freqs[4] != 4 {
		t.Errorf("bin 4 is %g Hz, want 4", freqs[4])
	}
	if PowerSpectrum(nil) != nil {
		t.Error("empty series must give nil spectrum")
	}
}

func TestModeFrequency(t *testing.T) {
	// unit square, D=1: omega = 2*pi^2, so f = pi
	if got := ModeFrequency(1, 1, 1, 1, 1); math.Abs(got-math.Pi) > 1e-12 {
		t.Errorf("f11 = %g, want pi", got)
	}
	if got := ModeOmega(2, 1, 2, 1, 4); math.Abs(got-2*math.Pi*math.Pi*2) > 1e-12 {
		t.Errorf("omega21 = %g", got)
	}
}

func TestDiscreteModeFrequency(t *testing.T) {
	exact := ModeFrequency(1, 1, 1, 1, 1)
	coarse, err := DiscreteModeFrequency(1, 1, 11, 11, 1, 1, 1, 1e-4)
	if err != nil {
		t.Fatal(err)
	}
	fine, err := DiscreteModeFrequency(1, 1, 41, 41, 1, 1, 1, 1e-4)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(fine-exact) >= math.Abs(coarse-exact) {
		t.Errorf("refinement did not converge: coarse %g fine %g exact %g", coarse, fine, exact)
	}
	if math.Abs(coarse-exact)/exact > 0.02 {
		t.Errorf("11x11 frequency %g too far from %g", coarse, exact)
	}

	if _, err := DiscreteModeFrequency(10, 1, 11, 11, 1, 1, 1, 1e-4); !errors.Is(err, dynamo.ErrParameterBounds) {
		t.Errorf("expected ErrParameterBounds for unresolved mode, got %v", err)
	}
	if _, err := DiscreteModeFrequency(1, 1, 11, 11, 1, 1, 1, 0.2); !errors.Is(err, dynamo.ErrUnstableTimestep) {
		t.Errorf("expected ErrUnstableTimestep, got %v", err)
	}
}

func TestProbeRecoversModeFrequency(t *testing.T) {
	cfg := sim.Config{
		Nx: 11, Ny: 11,
		Lx: 1, Ly: 1,
		Rigidity: 1,
		Dt:       1e-3,
		Duration: 2,
		Boundary: dynamo.SimplySupported,
	}
	probe := CenterProbe(cfg.Nx, cfg.Ny)
	if _, err := sim.Simulate(context.Background(), cfg, physics.Mode{M: 1, N: 1, Amplitude: 1}, sim.WithObserver(probe)); err != nil {
		t.Fatal(err)
	}
	if probe.Len() != 2001 {
		t.Fatalf("probe saw %d snapshots, want 2001", probe.Len())
	}
	if math.Abs(probe.Values[0]-1) > 1e-12 {
		t.Errorf("centre starts at %g, want 1", probe.Values[0])
	}

	got, err := DominantFrequency(probe.Values, cfg.Dt)
	if err != nil {
		t.Fatal(err)
	}
	want, _ := DiscreteModeFrequency(1, 1, cfg.Nx, cfg.Ny, cfg.Lx, cfg.Ly, cfg.Rigidity, cfg.Dt)
	if math.Abs(got-want) > 0.1 {
		t.Errorf("measured %g Hz, leapfrog predicts %g Hz", got, want)
	}

	portrait := GeneratePhasePortrait(probe, cfg.Dt)
	if portrait == nil || len(portrait.Points) != 1999 {
		t.Fatal("expected a phase portrait over interior samples")
	}
	art := PhasePortraitToASCII(portrait, 40, 12)
	if strings.Count(art, "\n") != 12 || !strings.Contains(art, "•") {
		t.Errorf("unexpected portrait:\n%s", art)
	}
}

func TestProbeIgnoresOutOfRange(t *testing.T) {
	p := NewProbe(7, 0)
	p.OnStep(dynamo.Snapshot{Field: dynamo.NewField(5, 5)})
	if p.Len() != 0 {
		t.Error("probe outside the grid must not record")
	}
	if GeneratePhasePortrait(p, 0.1) != nil {
		t.Error("expected nil portrait for empty probe")
	}
	if PhasePortraitToASCII(nil, 10, 10) != "" {
		t.Error("expected empty art for nil portrait")
	}
}

func TestGrowthRate(t *testing.T) {
	frames := make([]dynamo.Snapshot, 0, 20)
	for k := 0; k < 20; k++ {
		f := dynamo.NewField(5, 5)
		tm := 0.1 * float64(k)
		f.Set(2, 2, 0.5*math.Exp(3*tm))
		frames = append(frames, dynamo.Snapshot{Step: k, Time: tm, Field: f})
	}
	rate, err := GrowthRate(frames)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(rate-3) > 1e-9 {
		t.Errorf("rate = %g, want 3", rate)
	}

	frames[19].Field.Set(2, 2, math.Inf(1))
	if rate, _ := GrowthRate(frames); math.Abs(rate-3) > 1e-9 {
		t.Errorf("overflowed frame must be skipped, rate = %g", rate)
	}

	if _, err := GrowthRate(frames[:1]); !errors.Is(err, dynamo.ErrParameterBounds) {
		t.Errorf("expected ErrParameterBounds, got %v", err)
	}
}
