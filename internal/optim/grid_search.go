package optim

import (
	"context"
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/san-kum/platesim/internal/config"
	"github.com/san-kum/platesim/internal/dynamo"
	"github.com/san-kum/platesim/internal/integrators"
	"github.com/san-kum/platesim/internal/sim"
)

// Parameter is a searchable setting of a plate configuration. Derived
// parameters depend on other settings and are applied after the rest.
type Parameter struct {
	Name    string
	Apply   func(cfg *config.Config, v float64)
	Derived bool
}

var parameters = map[string]Parameter{
	"rigidity":    {Name: "rigidity", Apply: func(c *config.Config, v float64) { c.Rigidity = v }},
	"duration":    {Name: "duration", Apply: func(c *config.Config, v float64) { c.Duration = v }},
	"amplitude":   {Name: "amplitude", Apply: func(c *config.Config, v float64) { c.Initial.Amplitude = v }},
	"sigma":       {Name: "sigma", Apply: func(c *config.Config, v float64) { c.Initial.Sigma = v }},
	"x0":          {Name: "x0", Apply: func(c *config.Config, v float64) { c.Initial.X0 = v }},
	"y0":          {Name: "y0", Apply: func(c *config.Config, v float64) { c.Initial.Y0 = v }},
	"dt":          {Name: "dt", Apply: func(c *config.Config, v float64) { c.Dt = v }},
	"dt_fraction": {Name: "dt_fraction", Apply: applyDtFraction, Derived: true},
}

// applyDtFraction sets dt as a share of the stability bound of the grid and
// rigidity already in cfg.
func applyDtFraction(c *config.Config, v float64) {
	dx, dy := c.Spacing()
	c.Dt = v * integrators.MaxStableDt(dx, dy, c.Rigidity)
}

// Lookup returns the named parameter.
func Lookup(name string) (Parameter, error) {
	p, ok := parameters[name]
	if !ok {
		return Parameter{}, fmt.Errorf("%w: unknown parameter %q (available: %v)", dynamo.ErrParameterBounds, name, ParameterNames())
	}
	return p, nil
}

func ParameterNames() []string {
	return slices.Sorted(maps.Keys(parameters))
}

// Apply returns a copy of base with params set, derived ones last.
func Apply(base *config.Config, params map[string]float64) (*config.Config, error) {
	cfg := base.Clone()
	var derived []Parameter
	for _, name := range slices.Sorted(maps.Keys(params)) {
		p, err := Lookup(name)
		if err != nil {
			return nil, err
		}
		if p.Derived {
			derived = append(derived, p)
			continue
		}
		p.Apply(cfg, params[name])
	}
	for _, p := range derived {
		p.Apply(cfg, params[p.Name])
	}
	return cfg, nil
}

// Objective scores a finished run; lower is better.
type Objective func(*sim.Result) float64

// Metric scores a run by one of its named metrics. "energy_drift" uses the
// magnitude of the relative drift.
func Metric(name string) Objective {
	return func(r *sim.Result) float64 {
		if name == "energy_drift" {
			return math.Abs(r.EnergyDrift)
		}
		v, ok := r.Metrics[name]
		if !ok {
			return math.Inf(1)
		}
		return v
	}
}

// Trial is one evaluated point of a search.
type Trial struct {
	Params map[string]float64
	Value  float64
	Err    error
}

type SearchResult struct {
	Best   map[string]float64
	Value  float64
	Trials []Trial
}

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	limit      int
}

// NewGridSearch searches the cartesian product of ranges. limit bounds the
// number of concurrent runs; zero runs every point at once.
func NewGridSearch(params []string, ranges [][]float64, limit int) (*GridSearch, error) {
	if len(params) == 0 || len(params) != len(ranges) {
		return nil, fmt.Errorf("%w: %d parameters with %d ranges", dynamo.ErrParameterBounds, len(params), len(ranges))
	}
	for i, name := range params {
		if _, err := Lookup(name); err != nil {
			return nil, err
		}
		if len(ranges[i]) == 0 {
			return nil, fmt.Errorf("%w: empty range for %s", dynamo.ErrParameterBounds, name)
		}
	}
	return &GridSearch{paramNames: params, ranges: ranges, limit: limit}, nil
}

// Points enumerates the grid in row-major order of the parameter list.
func (g *GridSearch) Points() []map[string]float64 {
	var points []map[string]float64
	g.enumerate(0, map[string]float64{}, &points)
	return points
}

func (g *GridSearch) enumerate(depth int, current map[string]float64, points *[]map[string]float64) {
	if depth == len(g.paramNames) {
		p := make(map[string]float64, len(current))
		for k, v := range current {
			p[k] = v
		}
		*points = append(*points, p)
		return
	}
	name := g.paramNames[depth]
	for _, v := range g.ranges[depth] {
		current[name] = v
		g.enumerate(depth+1, current, points)
	}
	delete(current, name)
}

// Search runs every valid point concurrently and returns the one with the
// lowest objective. Points whose configuration does not validate, such as a
// dt above the stability bound, are recorded as failed trials and skipped.
func (g *GridSearch) Search(ctx context.Context, base *config.Config, objective Objective, opts ...sim.Option) (*SearchResult, error) {
	points := g.Points()
	trials := make([]Trial, len(points))
	var cases []sim.Case
	var index []int

	for i, params := range points {
		trials[i] = Trial{Params: params, Value: math.Inf(1)}
		cfg, err := Apply(base, params)
		if err != nil {
			return nil, err
		}
		sc, err := cfg.SimConfig()
		if err != nil {
			trials[i].Err = err
			continue
		}
		ic, err := cfg.InitialCondition()
		if err != nil {
			trials[i].Err = err
			continue
		}
		cases = append(cases, sim.Case{Name: fmt.Sprint(params), Config: sc, Initial: ic})
		index = append(index, i)
	}
	if len(cases) == 0 {
		return nil, fmt.Errorf("%w: no valid point in the search grid", dynamo.ErrParameterBounds)
	}

	results, err := sim.Sweep(ctx, cases, g.limit, opts...)
	if err != nil {
		return nil, err
	}

	out := &SearchResult{Value: math.Inf(1), Trials: trials}
	for k, res := range results {
		i := index[k]
		trials[i].Value = objective(res)
		if trials[i].Value < out.Value {
			out.Value = trials[i].Value
			out.Best = trials[i].Params
		}
	}
	if out.Best == nil {
		return out, fmt.Errorf("%w: objective is not finite at any point", dynamo.ErrInvalidState)
	}
	return out, nil
}
