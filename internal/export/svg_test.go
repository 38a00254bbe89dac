package export

import (
	"math"
	"strings"
	"testing"

	"github.com/san-kum/platesim/internal/dynamo"
	"github.com/san-kum/platesim/internal/viz"
)

func TestFieldToSVG(t *testing.T) {
	f := dynamo.NewField(4, 3)
	f.Set(0, 0, -2)
	f.Set(3, 2, 2)

	svg := FieldToSVG(f, 5, viz.ThemeCyberpunk)
	if !strings.HasPrefix(svg, "<?xml") || !strings.HasSuffix(svg, "</svg>") {
		t.Fatal("not an svg document")
	}
	if n := strings.Count(svg, "<rect "); n != 12 {
		t.Errorf("expected 12 cells, got %d", n)
	}
	if !strings.Contains(svg, `width="20" height="15"`) {
		t.Error("expected a 20x15 image")
	}
	// node (0, 0) sits at the bottom left, node (3, 2) at the top right
	if !strings.Contains(svg, `<rect x="0" y="10" width="5" height="5" fill="#00ffff"/>`) {
		t.Error("negative corner drawn in the wrong place or color")
	}
	if !strings.Contains(svg, `<rect x="15" y="0" width="5" height="5" fill="#ff00ff"/>`) {
		t.Error("positive corner drawn in the wrong place or color")
	}
}

func TestFieldToSVGEmpty(t *testing.T) {
	if svg := FieldToSVG(dynamo.Field{}, 4, viz.ThemeMinimal); svg != "" {
		t.Errorf("expected empty output, got %q", svg)
	}
}

func TestEnergyToSVG(t *testing.T) {
	samples := []dynamo.EnergySample{{Step: 0, Total: 1}, {Step: 10, Total: 1.01}, {Step: 20, Total: 0.99}}
	svg := EnergyToSVG(samples, 200, 100)
	if !strings.Contains(svg, "<path") {
		t.Fatal("expected a path")
	}
	if n := strings.Count(svg, " L"); n != 2 {
		t.Errorf("expected 2 line segments, got %d", n)
	}
	if EnergyToSVG(samples[:1], 200, 100) != "" {
		t.Error("a single sample should not produce a plot")
	}
}

func TestCanvasToSVG(t *testing.T) {
	c := viz.NewCanvas(4, 2)
	c.Set(0, 0)
	c.Set(7, 7)
	svg := CanvasToSVG(c, 2, viz.ThemeCyberpunk)
	if n := strings.Count(svg, "<circle"); n != 2 {
		t.Errorf("expected 2 dots, got %d", n)
	}
	if !strings.Contains(svg, `<circle cx="1.0" cy="1.0" r="0.8"/>`) || !strings.Contains(svg, `<circle cx="15.0" cy="15.0" r="0.8"/>`) {
		t.Errorf("dots misplaced:\n%s", svg)
	}
	if !strings.Contains(svg, `width="16" height="16"`) {
		t.Error("expected a 16x16 image")
	}
	if !strings.Contains(svg, `fill="#0a0a0a"`) || !strings.Contains(svg, `<g fill="#ffff00">`) {
		t.Error("theme colors not applied")
	}
	if CanvasToSVG(nil, 2, viz.ThemeCyberpunk) != "" || CanvasToSVG(c, 0, viz.ThemeCyberpunk) != "" {
		t.Error("nil canvas or zero scale should give empty output")
	}
}

func TestNodalToSVG(t *testing.T) {
	g, err := dynamo.NewGrid(21, 11, 2, 1)
	if err != nil {
		t.Fatal(err)
	}
	// the (2,1) mode has one nodal line down the middle of the plate
	f := g.Sample(func(x, y float64) float64 { return math.Sin(math.Pi*x) * math.Sin(math.Pi*y) })

	svg := NodalToSVG(f, 20, 10, 3, viz.ThemeMinimal)
	frame := (2*20 + 4*10 - 2) * 2
	if n := strings.Count(svg, "<circle"); n <= frame {
		t.Errorf("expected the outline plus a nodal line, got %d dots", n)
	}
	if NodalToSVG(f, 0, 10, 3, viz.ThemeMinimal) != "" {
		t.Error("empty canvas should give empty output")
	}
}
