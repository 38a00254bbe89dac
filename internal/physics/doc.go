// Package physics provides the spatial discretization of a vibrating plate.
//
// The governing equation is u_tt + D * biharmonic(u) = 0. The discrete
// biharmonic uses the 13-point stencil
//
//	u_xxxx + 2*u_xxyy + u_yyyy
//
// built from fourth differences in x and y plus the product of second
// differences for the mixed term:
//
//   - [ApplyBiharmonic]: nodes at least two cells from every edge
//   - [BoundaryPolicy]: ghost reflection for the band next to the edge and
//     zero displacement on the edge itself
//   - [Plate]: the full rigidity-scaled operator
//   - [InitialCondition]: Gaussian bumps, plate eigenmodes, sampled fields
//
// # Boundary Conditions
//
// Clamped edges mirror the first interior ring symmetrically (zero slope);
// simply supported edges mirror it antisymmetrically (zero curvature):
//
//	plate, _ := physics.NewPlate(1, dynamo.SimplySupported)
//	err := plate.Operator(g.Curr, g.Dx, g.Dy, g.Work)
package physics
