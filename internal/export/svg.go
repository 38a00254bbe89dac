package export

import (
	"fmt"
	"math"
	"strings"

	"github.com/san-kum/platesim/internal/dynamo"
	"github.com/san-kum/platesim/internal/viz"
)

// CanvasToSVG draws every lit sub-pixel of a Braille canvas (nodal lines,
// surface wireframe) as a dot of radius 0.4*scale in theme.Accent on
// theme.Background. Sub-pixel (x, y) is centred at ((x+0.5)*scale,
// (y+0.5)*scale).
func CanvasToSVG(canvas *viz.Canvas, scale float64, theme viz.Theme) string {
	if canvas == nil || !(scale > 0) {
		return ""
	}
	pw, ph := canvas.Width*2, canvas.Height*4

	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%.0f" height="%.0f" viewBox="0 0 %.0f %.0f">
<rect width="100%%" height="100%%" fill="%s"/>
<g fill="%s">
`, float64(pw)*scale, float64(ph)*scale, float64(pw)*scale, float64(ph)*scale, theme.Background, theme.Accent)

	r := 0.4 * scale
	for y := 0; y < ph; y++ {
		for x := 0; x < pw; x++ {
			if canvas.Lit(x, y) {
				fmt.Fprintf(&sb, "<circle cx=\"%.1f\" cy=\"%.1f\" r=\"%.1f\"/>\n", (float64(x)+0.5)*scale, (float64(y)+0.5)*scale, r)
			}
		}
	}

	sb.WriteString("</g>\n</svg>")
	return sb.String()
}

// NodalToSVG renders the zero set of f, framed by the plate outline, on a
// width by height character canvas.
func NodalToSVG(f dynamo.Field, width, height int, scale float64, theme viz.Theme) string {
	if width < 1 || height < 1 {
		return ""
	}
	c := viz.NewCanvas(width, height)
	viz.NodalLines(c, f)
	return CanvasToSVG(c, scale, theme)
}

// TrajectoryToSVG draws points as one polyline, e.g. a probe's phase portrait.
func TrajectoryToSVG(points []struct{ X, Y float64 }, width, height int, strokeColor string) string {
	if len(points) < 2 {
		return ""
	}

	minX, maxX := points[0].X, points[0].X
	minY, maxY := points[0].Y, points[0].Y
	for _, p := range points {
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}

	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minX -= rangeX * 0.1
	maxX += rangeX * 0.1
	minY -= rangeY * 0.1
	maxY += rangeY * 0.1
	rangeX = maxX - minX
	rangeY = maxY - minY

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
<path fill="none" stroke="%s" stroke-width="1.5" d="M`,
		width, height, width, height, strokeColor))

	for i, p := range points {
		x := (p.X - minX) / rangeX * float64(width)
		y := float64(height) - (p.Y-minY)/rangeY*float64(height)

		if i == 0 {
			sb.WriteString(fmt.Sprintf("%.1f,%.1f", x, y))
		} else {
			sb.WriteString(fmt.Sprintf(" L%.1f,%.1f", x, y))
		}
	}

	sb.WriteString(`"/>
</svg>`)
	return sb.String()
}

// EnergyToSVG plots total energy against step.
func EnergyToSVG(samples []dynamo.EnergySample, width, height int) string {
	points := make([]struct{ X, Y float64 }, 0, len(samples))
	for _, s := range samples {
		points = append(points, struct{ X, Y float64 }{X: float64(s.Step), Y: s.Total})
	}
	return TrajectoryToSVG(points, width, height, "#00ccff")
}

// FieldToSVG renders f as a grid of cellSize squares on a diverging scale:
// negative displacement in theme.Negative, positive in theme.Positive, zero
// in theme.Background. Row i of the field is drawn as column i (x to the
// right, y up).
func FieldToSVG(f dynamo.Field, cellSize int, theme viz.Theme) string {
	if f.Nx == 0 || f.Ny == 0 || len(f.Data) != f.Nx*f.Ny {
		return ""
	}
	if cellSize < 1 {
		cellSize = 1
	}

	scale := f.MaxAbs()
	if scale == 0 || math.IsInf(scale, 0) || math.IsNaN(scale) {
		scale = 1
	}
	width := f.Nx * cellSize
	height := f.Ny * cellSize

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d" shape-rendering="crispEdges">
`, width, height, width, height))

	for i := 0; i < f.Nx; i++ {
		for j := 0; j < f.Ny; j++ {
			fill := viz.DivergingHex(f.At(i, j)/scale, theme)
			x := i * cellSize
			y := (f.Ny - 1 - j) * cellSize
			sb.WriteString(fmt.Sprintf(`<rect x="%d" y="%d" width="%d" height="%d" fill="%s"/>
`, x, y, cellSize, cellSize, fill))
		}
	}

	sb.WriteString("</svg>")
	return sb.String()
}
