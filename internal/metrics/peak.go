package metrics

import (
	"github.com/san-kum/platesim/internal/dynamo"
)

// PeakDisplacement is the largest |u| seen over the run.
type PeakDisplacement struct {
	name string
	peak float64
}

func NewPeakDisplacement() *PeakDisplacement {
	return &PeakDisplacement{name: "peak_displacement"}
}

func (p *PeakDisplacement) Name() string {
	return p.name
}

func (p *PeakDisplacement) Observe(s dynamo.Snapshot) {
	if m := s.Field.MaxAbs(); m > p.peak {
		p.peak = m
	}
}

func (p *PeakDisplacement) Value() float64 {
	return p.peak
}

func (p *PeakDisplacement) Reset() {
	p.peak = 0
}

// Default returns the metric set attached to every run.
func Default(stabilityThreshold float64) []dynamo.Metric {
	return []dynamo.Metric{
		NewEnergy(),
		NewEnergyDrift(),
		NewPeakDisplacement(),
		NewStability(stabilityThreshold),
	}
}
