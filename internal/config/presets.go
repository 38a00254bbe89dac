package config

import (
	"fmt"
	"sort"
	"strings"
)

// Presets are grouped by edge condition.
var Presets = map[string]map[string]*Config{
	"clamped": {
		"scenario": {
			Grid: GridConfig{Nx: 11, Ny: 11, Lx: 1, Ly: 1}, Rigidity: 1, Dt: 1e-4, Duration: 0.01,
			Boundary: "clamped", Bootstrap: "first_order",
			Initial:     InitialConfig{Kind: "gaussian", Amplitude: 1, X0: 0.5, Y0: 0.5, Sigma: 0.1},
			Diagnostics: DiagnosticsConfig{Energy: true, Every: 1, ValidateState: true},
			Output:      OutputConfig{FrameEvery: 10},
		},
		"energy": {
			Grid: GridConfig{Nx: 21, Ny: 21, Lx: 1, Ly: 1}, Rigidity: 1, Dt: 6.25e-5, Duration: 50 * 6.25e-5,
			Boundary: "clamped", Bootstrap: "first_order",
			Initial:     InitialConfig{Kind: "gaussian", Amplitude: 1, X0: 0.5, Y0: 0.5, Sigma: 0.1},
			Diagnostics: DiagnosticsConfig{Energy: true, Every: 1, ValidateState: true},
			Output:      OutputConfig{FrameEvery: 5},
		},
		"fine": {
			Grid: GridConfig{Nx: 41, Ny: 41, Lx: 1, Ly: 1}, Rigidity: 1, Duration: 0.02,
			Boundary: "clamped", Bootstrap: "second_order",
			Initial:     InitialConfig{Kind: "gaussian", Amplitude: 1, X0: 0.35, Y0: 0.5, Sigma: 0.08},
			Diagnostics: DiagnosticsConfig{Energy: true, Every: 10, ValidateState: true},
			Output:      OutputConfig{FrameEvery: 50},
		},
	},
	"simply_supported": {
		"mode": {
			Grid: GridConfig{Nx: 21, Ny: 21, Lx: 1, Ly: 1}, Rigidity: 1, Duration: 0.1,
			Boundary: "simply_supported", Bootstrap: "second_order",
			Initial:     InitialConfig{Kind: "mode", Amplitude: 1, M: 1, N: 1},
			Diagnostics: DiagnosticsConfig{Energy: true, Every: 1, ValidateState: true},
			Output:      OutputConfig{FrameEvery: 20},
		},
		"energy": {
			Grid: GridConfig{Nx: 21, Ny: 21, Lx: 1, Ly: 1}, Rigidity: 1, Dt: 6.25e-5, Duration: 50 * 6.25e-5,
			Boundary: "simply_supported", Bootstrap: "first_order",
			Initial:     InitialConfig{Kind: "gaussian", Amplitude: 1, X0: 0.5, Y0: 0.5, Sigma: 0.1},
			Diagnostics: DiagnosticsConfig{Energy: true, Every: 1, ValidateState: true},
			Output:      OutputConfig{FrameEvery: 5},
		},
		"rectangle": {
			Grid: GridConfig{Nx: 31, Ny: 16, Lx: 2, Ly: 1}, Rigidity: 0.5, Duration: 0.05,
			Boundary: "simply_supported", Bootstrap: "first_order",
			Initial:     InitialConfig{Kind: "gaussian", Amplitude: 0.5, X0: 0.6, Y0: 0.5, Sigma: 0.12},
			Diagnostics: DiagnosticsConfig{Energy: true, Every: 5, ValidateState: true},
			Output:      OutputConfig{FrameEvery: 25},
		},
	},
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(group, preset string) *Config {
	groupPresets, ok := Presets[group]
	if !ok {
		return nil
	}
	cfg, ok := groupPresets[preset]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

// ResolvePreset returns a copy of the preset named by a group/name reference.
func ResolvePreset(ref string) (*Config, error) {
	group, name, ok := strings.Cut(ref, "/")
	if !ok {
		return nil, fmt.Errorf("preset must be group/name, got %q", ref)
	}
	cfg := GetPreset(group, name)
	if cfg == nil {
		return nil, fmt.Errorf("unknown preset: %s (available in %s: %v)", ref, group, ListPresets(group))
	}
	return cfg, nil
}

func ListPresets(group string) []string {
	groupPresets, ok := Presets[group]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(groupPresets))
	for name := range groupPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func ListGroups() []string {
	groups := make([]string, 0, len(Presets))
	for g := range Presets {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups
}
