// Package analysis extracts frequencies and growth from plate runs.
//
//   - [PowerSpectrum], [DominantFrequency]: spectrum of a node's displacement history
//   - [ModeFrequency], [DiscreteModeFrequency]: analytic and leapfrog frequencies of
//     simply supported eigenmodes
//   - [Probe]: an observer that records one node over a run
//   - [GrowthRate]: exponential growth of the peak amplitude across frames
//
// # Checking a run against theory
//
// Seed a simply supported plate with a single mode and watch its centre:
//
//	probe := analysis.CenterProbe(cfg.Nx, cfg.Ny)
//	res, _ := sim.Simulate(ctx, cfg, physics.Mode{M: 1, N: 1, Amplitude: 1}, sim.WithObserver(probe))
//	f, _ := analysis.DominantFrequency(probe.Values, cfg.Dt)
//	want, _ := analysis.DiscreteModeFrequency(1, 1, cfg.Nx, cfg.Ny, cfg.Lx, cfg.Ly, cfg.Rigidity, cfg.Dt)
package analysis
