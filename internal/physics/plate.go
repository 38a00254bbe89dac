package physics

import (
	"fmt"
	"math"

	"github.com/san-kum/platesim/internal/dynamo"
)

// Plate is a uniform thin plate: flexural rigidity D and one edge condition.
// Its operator is D times the discrete biharmonic.
type Plate struct {
	Rigidity float64
	Policy   BoundaryPolicy
	// Workers caps the goroutines of one stencil pass. Zero means GOMAXPROCS.
	Workers int
}

func NewPlate(rigidity float64, kind dynamo.BoundaryKind) (*Plate, error) {
	if !(rigidity > 0) || math.IsInf(rigidity, 0) {
		return nil, fmt.Errorf("%w: rigidity must be positive, got %g", dynamo.ErrParameterBounds, rigidity)
	}
	policy, err := NewBoundaryPolicy(kind)
	if err != nil {
		return nil, err
	}
	return &Plate{Rigidity: rigidity, Policy: policy}, nil
}

// Operator writes D * biharmonic(u) into out for every non-edge node and
// zero on the edge ring.
func (p *Plate) Operator(u dynamo.Field, dx, dy float64, out dynamo.Field) error {
	if err := applyBiharmonic(u, dx, dy, out, p.Workers); err != nil {
		return err
	}
	if err := p.Policy.ApplyBand(u, dx, dy, out); err != nil {
		return err
	}
	if err := p.Policy.Enforce(out); err != nil {
		return err
	}
	if p.Rigidity != 1 {
		for k := range out.Data {
			out.Data[k] *= p.Rigidity
		}
	}
	return nil
}
