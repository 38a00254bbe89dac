package integrators

import (
	"fmt"
	"strings"

	"github.com/san-kum/platesim/internal/dynamo"
	"github.com/san-kum/platesim/internal/physics"
)

// BootstrapOrder selects how the level at t=-dt is built from u0 and v0.
type BootstrapOrder int

const (
	// FirstOrder uses u_prev = u0 - dt*v0.
	FirstOrder BootstrapOrder = iota
	// SecondOrder adds the curvature term from the equation of motion:
	// u_prev = u0 - dt*v0 - dt^2/2 * D*biharmonic(u0).
	SecondOrder
)

func (o BootstrapOrder) String() string {
	switch o {
	case FirstOrder:
		return "first_order"
	case SecondOrder:
		return "second_order"
	default:
		return fmt.Sprintf("bootstrap(%d)", int(o))
	}
}

func ParseBootstrapOrder(s string) (BootstrapOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "first_order", "first", "1":
		return FirstOrder, nil
	case "second_order", "second", "2":
		return SecondOrder, nil
	default:
		return 0, fmt.Errorf("%w: bootstrap order %q", dynamo.ErrParameterBounds, s)
	}
}

// Bootstrap seeds g with u0 at t=0 and the backward level at t=-dt. Both
// levels get the plate's edge condition applied, so a v0 of zero leaves
// Prev and Curr identical under FirstOrder.
func Bootstrap(g *dynamo.Grid, plate *physics.Plate, u0, v0 dynamo.Field, dt float64, order BootstrapOrder) error {
	switch order {
	case FirstOrder:
		if err := g.SetInitialState(u0, v0, dt); err != nil {
			return err
		}
	case SecondOrder:
		if err := secondOrder(g, plate, u0, v0, dt); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: bootstrap order %v", dynamo.ErrParameterBounds, order)
	}

	if err := plate.Policy.Enforce(g.Prev); err != nil {
		return err
	}
	return plate.Policy.Enforce(g.Curr)
}

func secondOrder(g *dynamo.Grid, plate *physics.Plate, u0, v0 dynamo.Field, dt float64) error {
	if !(dt > 0) {
		return fmt.Errorf("%w: dt must be positive, got %g", dynamo.ErrParameterBounds, dt)
	}
	if !g.Curr.SameShape(u0) || !g.Curr.SameShape(v0) {
		return fmt.Errorf("%w: initial fields must be %dx%d", dynamo.ErrDimensionMismatch, g.Nx, g.Ny)
	}

	curr := u0.Clone()
	if err := plate.Policy.Enforce(curr); err != nil {
		return err
	}
	if err := plate.Operator(curr, g.Dx, g.Dy, g.Work); err != nil {
		return err
	}

	prev := g.NewField()
	half := 0.5 * dt * dt
	for k, u := range curr.Data {
		prev.Data[k] = u - dt*v0.Data[k] - half*g.Work.Data[k]
	}
	return g.SetLevels(prev, curr)
}
