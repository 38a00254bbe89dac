// Package viz renders plate fields in the terminal.
//
//   - [Heatmap]: colored glyph map of a displacement field
//   - [NodalLines], [PlateWireframe]: Braille [Canvas] views of the zero set and of the
//     displaced surface
//   - [LiveModel]: Bubble Tea view that steps a solver and plots energy as it goes
//   - [Menu]: preset picker that launches a LiveModel
//
// # Key Bindings
//
//	Space - Pause/Resume
//	N     - Single step while paused
//	+/-   - Steps per frame
//	V     - Cycle heatmap, surface and nodal views
//	T     - Cycle color themes
//	?     - Show help overlay
package viz
