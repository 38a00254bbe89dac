package analysis

import (
	"fmt"
	"math"

	"github.com/san-kum/platesim/internal/dynamo"
)

// ModeOmega is the angular frequency of the (m, n) mode of a simply
// supported lx-by-ly plate: sqrt(D) * pi^2 * ((m/lx)^2 + (n/ly)^2).
func ModeOmega(m, n int, lx, ly, rigidity float64) float64 {
	km := float64(m) / lx
	kn := float64(n) / ly
	return math.Sqrt(rigidity) * math.Pi * math.Pi * (km*km + kn*kn)
}

// ModeFrequency is ModeOmega in Hz.
func ModeFrequency(m, n int, lx, ly, rigidity float64) float64 {
	return ModeOmega(m, n, lx, ly, rigidity) / (2 * math.Pi)
}

// DiscreteModeEigenvalue is the eigenvalue of the discrete simply supported
// operator D*biharmonic for the sampled (m, n) mode.
func DiscreteModeEigenvalue(m, n, nx, ny int, lx, ly, rigidity float64) float64 {
	dx := lx / float64(nx-1)
	dy := ly / float64(ny-1)
	sx := math.Sin(float64(m) * math.Pi * dx / (2 * lx))
	sy := math.Sin(float64(n) * math.Pi * dy / (2 * ly))
	s := 4*sx*sx/(dx*dx) + 4*sy*sy/(dy*dy)
	return rigidity * s * s
}

// DiscreteModeFrequency is the frequency in Hz at which the leapfrog scheme
// carries the sampled (m, n) mode of a simply supported plate. It differs
// from ModeFrequency by the spatial and temporal truncation error only.
func DiscreteModeFrequency(m, n, nx, ny int, lx, ly, rigidity, dt float64) (float64, error) {
	if m < 1 || n < 1 || m > nx-2 || n > ny-2 {
		return 0, fmt.Errorf("%w: mode (%d, %d) not resolved on %dx%d nodes", dynamo.ErrParameterBounds, m, n, nx, ny)
	}
	if dt <= 0 {
		return 0, fmt.Errorf("%w: dt must be positive, got %g", dynamo.ErrParameterBounds, dt)
	}
	lambda := DiscreteModeEigenvalue(m, n, nx, ny, lx, ly, rigidity)
	c := 1 - dt*dt*lambda/2
	if c < -1 {
		return 0, fmt.Errorf("%w: dt=%g amplifies mode (%d, %d)", dynamo.ErrUnstableTimestep, dt, m, n)
	}
	return math.Acos(c) / (2 * math.Pi * dt), nil
}
