package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/platesim/internal/dynamo"
	"github.com/san-kum/platesim/internal/integrators"
	"github.com/san-kum/platesim/internal/physics"
	"github.com/san-kum/platesim/internal/sim"
)

const (
	DefaultNodes     = 21
	DefaultLength    = 1.0
	DefaultRigidity  = 1.0
	DefaultDuration  = 0.01
	DefaultAmplitude = 1.0
	DefaultSigma     = 0.1
	// DefaultDtFraction is the share of the stability bound used when dt is
	// left at zero.
	DefaultDtFraction = 0.5
)

type Config struct {
	Grid        GridConfig        `yaml:"grid"`
	Rigidity    float64           `yaml:"rigidity"`
	Dt          float64           `yaml:"dt"`
	Duration    float64           `yaml:"duration"`
	Boundary    string            `yaml:"boundary"`
	Bootstrap   string            `yaml:"bootstrap"`
	Initial     InitialConfig     `yaml:"initial"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
	Output      OutputConfig      `yaml:"output"`
	Workers     int               `yaml:"workers"`
	Threads     int               `yaml:"threads"`
}

type GridConfig struct {
	Nx int     `yaml:"nx"`
	Ny int     `yaml:"ny"`
	Lx float64 `yaml:"lx"`
	Ly float64 `yaml:"ly"`
}

type InitialConfig struct {
	Kind      string  `yaml:"kind"` // gaussian, mode, flat
	Amplitude float64 `yaml:"amplitude"`
	X0        float64 `yaml:"x0"`
	Y0        float64 `yaml:"y0"`
	Sigma     float64 `yaml:"sigma"`
	M         int     `yaml:"m"`
	N         int     `yaml:"n"`
}

type DiagnosticsConfig struct {
	Energy        bool `yaml:"energy"`
	Every         int  `yaml:"every"`
	ValidateState bool `yaml:"validate_state"`
}

type OutputConfig struct {
	FrameEvery int `yaml:"frame_every"`
}

func DefaultConfig() *Config {
	return &Config{
		Grid: GridConfig{
			Nx: DefaultNodes, Ny: DefaultNodes,
			Lx: DefaultLength, Ly: DefaultLength,
		},
		Rigidity:  DefaultRigidity,
		Duration:  DefaultDuration,
		Boundary:  dynamo.Clamped.String(),
		Bootstrap: integrators.FirstOrder.String(),
		Initial: InitialConfig{
			Kind:      "gaussian",
			Amplitude: DefaultAmplitude,
			X0:        DefaultLength / 2,
			Y0:        DefaultLength / 2,
			Sigma:     DefaultSigma,
			M:         1,
			N:         1,
		},
		Diagnostics: DiagnosticsConfig{Energy: true, Every: 1, ValidateState: true},
		Output:      OutputConfig{FrameEvery: 10},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Clone returns an independent copy.
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}

// Spacing returns dx and dy for the configured grid.
func (c *Config) Spacing() (dx, dy float64) {
	return c.Grid.Lx / float64(c.Grid.Nx-1), c.Grid.Ly / float64(c.Grid.Ny-1)
}

// ResolvedDt returns the configured dt, or DefaultDtFraction of the
// stability bound when dt is zero.
func (c *Config) ResolvedDt() float64 {
	if c.Dt > 0 {
		return c.Dt
	}
	dx, dy := c.Spacing()
	return DefaultDtFraction * integrators.MaxStableDt(dx, dy, c.Rigidity)
}

// Validate checks everything that can be checked without allocating a grid.
func (c *Config) Validate() error {
	if c.Grid.Nx < dynamo.MinNodes || c.Grid.Ny < dynamo.MinNodes || !(c.Grid.Lx > 0) || !(c.Grid.Ly > 0) {
		return fmt.Errorf("%w: grid %dx%d over %gx%g", dynamo.ErrInvalidGrid, c.Grid.Nx, c.Grid.Ny, c.Grid.Lx, c.Grid.Ly)
	}
	if !(c.Rigidity > 0) {
		return fmt.Errorf("%w: rigidity %g", dynamo.ErrParameterBounds, c.Rigidity)
	}
	if c.Dt < 0 || !(c.Duration > 0) {
		return fmt.Errorf("%w: dt=%g duration=%g", dynamo.ErrParameterBounds, c.Dt, c.Duration)
	}
	if _, err := dynamo.ParseBoundaryKind(c.Boundary); err != nil {
		return err
	}
	if _, err := integrators.ParseBootstrapOrder(c.Bootstrap); err != nil {
		return err
	}
	if c.Diagnostics.Every < 0 || c.Output.FrameEvery < 0 || c.Workers < 0 || c.Threads < 0 {
		return fmt.Errorf("%w: negative interval or worker count", dynamo.ErrParameterBounds)
	}
	dx, dy := c.Spacing()
	if c.Dt > 0 {
		if err := integrators.Validate(c.Dt, dx, dy, c.Rigidity); err != nil {
			return err
		}
	}
	_, err := c.InitialCondition()
	return err
}

// SimConfig converts the document into solver parameters.
func (c *Config) SimConfig() (sim.Config, error) {
	if err := c.Validate(); err != nil {
		return sim.Config{}, err
	}
	boundary, _ := dynamo.ParseBoundaryKind(c.Boundary)
	order, _ := integrators.ParseBootstrapOrder(c.Bootstrap)

	every := 0
	if c.Diagnostics.Energy {
		every = c.Diagnostics.Every
		if every == 0 {
			every = 1
		}
	}
	return sim.Config{
		Nx: c.Grid.Nx, Ny: c.Grid.Ny,
		Lx: c.Grid.Lx, Ly: c.Grid.Ly,
		Rigidity:      c.Rigidity,
		Dt:            c.ResolvedDt(),
		Duration:      c.Duration,
		Boundary:      boundary,
		Bootstrap:     order,
		EnergyEvery:   every,
		FrameEvery:    c.Output.FrameEvery,
		ValidateState: c.Diagnostics.ValidateState,
		Threads:       c.Threads,
	}, nil
}

func (c *Config) InitialCondition() (physics.InitialCondition, error) {
	ic := c.Initial
	switch strings.ToLower(ic.Kind) {
	case "", "gaussian":
		if !(ic.Sigma > 0) {
			return nil, fmt.Errorf("%w: gaussian sigma %g", dynamo.ErrParameterBounds, ic.Sigma)
		}
		return physics.Gaussian{Amplitude: ic.Amplitude, X0: ic.X0, Y0: ic.Y0, Sigma: ic.Sigma}, nil
	case "mode":
		if ic.M < 1 || ic.N < 1 {
			return nil, fmt.Errorf("%w: mode (%d,%d)", dynamo.ErrParameterBounds, ic.M, ic.N)
		}
		return physics.Mode{M: ic.M, N: ic.N, Amplitude: ic.Amplitude}, nil
	case "flat":
		return physics.Flat{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown initial condition %q", dynamo.ErrParameterBounds, ic.Kind)
	}
}
