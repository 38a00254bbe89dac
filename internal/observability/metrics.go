package observability

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/san-kum/platesim/internal/dynamo"
)

// SolverCollector bundles Prometheus metrics for plate runs. It implements
// dynamo.Observer so a solver can feed it every snapshot.
type SolverCollector struct {
	gatherer prometheus.Gatherer

	Runs          *prometheus.CounterVec
	RunDurations  *prometheus.HistogramVec
	Steps         prometheus.Counter
	StepDurations prometheus.Histogram

	Energy  prometheus.Gauge
	PeakAbs prometheus.Gauge
	SimTime prometheus.Gauge

	mu         sync.Mutex
	lastStepAt time.Time
}

// NewSolverCollector registers solver metrics against reg, defaulting to the
// global registry when nil. Registering twice reuses the existing collectors.
func NewSolverCollector(reg prometheus.Registerer) (*SolverCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	runs, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "platesim_runs_total",
		Help: "Completed solver runs, labeled by boundary kind and outcome.",
	}, []string{"boundary", "status"}), "platesim_runs_total")
	if err != nil {
		return nil, err
	}

	runDurations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "platesim_run_duration_seconds",
		Help:    "Wall-clock duration of solver runs.",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{"boundary"}), "platesim_run_duration_seconds")
	if err != nil {
		return nil, err
	}

	steps, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "platesim_steps_total",
		Help: "Leapfrog steps taken across all runs.",
	}), "platesim_steps_total")
	if err != nil {
		return nil, err
	}

	stepDurations, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "platesim_step_duration_seconds",
		Help:    "Wall-clock time between consecutive snapshots.",
		Buckets: prometheus.ExponentialBuckets(1e-6, 4, 12),
	}), "platesim_step_duration_seconds")
	if err != nil {
		return nil, err
	}

	energy, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "platesim_energy",
		Help: "Total discrete energy of the latest sampled snapshot.",
	}), "platesim_energy")
	if err != nil {
		return nil, err
	}
	peak, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "platesim_peak_displacement",
		Help: "Largest absolute displacement in the latest snapshot.",
	}), "platesim_peak_displacement")
	if err != nil {
		return nil, err
	}
	simTime, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "platesim_simulated_time_seconds",
		Help: "Simulated time of the latest snapshot.",
	}), "platesim_simulated_time_seconds")
	if err != nil {
		return nil, err
	}

	return &SolverCollector{
		gatherer:      gatherer,
		Runs:          runs,
		RunDurations:  runDurations,
		Steps:         steps,
		StepDurations: stepDurations,
		Energy:        energy,
		PeakAbs:       peak,
		SimTime:       simTime,
	}, nil
}

// OnStep records one snapshot. Step 0 is the initial state and is not
// counted as a step.
func (c *SolverCollector) OnStep(s dynamo.Snapshot) {
	if c == nil {
		return
	}
	now := time.Now()
	c.mu.Lock()
	last := c.lastStepAt
	c.lastStepAt = now
	c.mu.Unlock()

	if s.Step > 0 {
		c.Steps.Inc()
		if !last.IsZero() {
			c.StepDurations.Observe(now.Sub(last).Seconds())
		}
	}

	c.SimTime.Set(s.Time)
	c.PeakAbs.Set(s.Field.MaxAbs())
	if s.Energy != nil {
		c.Energy.Set(s.Energy.Total)
	}
}

// RunFinished records the outcome of one run.
func (c *SolverCollector) RunFinished(boundary dynamo.BoundaryKind, elapsed time.Duration, err error) {
	if c == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.Runs.WithLabelValues(boundary.String(), status).Inc()
	c.RunDurations.WithLabelValues(boundary.String()).Observe(elapsed.Seconds())

	c.mu.Lock()
	c.lastStepAt = time.Time{}
	c.mu.Unlock()
}

// Handler exposes a /metrics handler over the collector's registry.
func (c *SolverCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
