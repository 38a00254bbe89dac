// Package dynamo provides core primitives for the plate simulation.
//
// The package defines the data model shared by every other package:
//
//   - [Field]: a 2D scalar field over grid nodes
//   - [Grid]: the discretized plate with its three time levels
//   - [TimeState]: fixed timestep and step counter
//   - [Phase]: lifecycle of a leapfrog run
//   - [EnergySample] and [Snapshot]: per-step outputs
//   - [Metric] and [Observer]: hooks called by the solver
//
// # Example
//
//	g, err := dynamo.NewGrid(21, 21, 1, 1)
//	u0 := g.Sample(func(x, y float64) float64 { return math.Exp(-(x*x + y*y)) })
//	err = g.SetInitialState(u0, g.NewField(), 1e-4)
//
// # Thread Safety
//
// Grid buffers are owned by one solver; nothing else may mutate them while a
// run is in progress. [ParallelFor] is safe for disjoint writes only.
package dynamo
