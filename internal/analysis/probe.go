package analysis

import (
	"fmt"
	"strings"

	"github.com/san-kum/platesim/internal/dynamo"
)

// Probe records the displacement of one node at every snapshot it sees.
// It implements dynamo.Observer.
type Probe struct {
	I, J   int
	Times  []float64
	Values []float64
}

func NewProbe(i, j int) *Probe {
	return &Probe{I: i, J: j}
}

// CenterProbe watches the node nearest the middle of an nx-by-ny grid.
func CenterProbe(nx, ny int) *Probe {
	return NewProbe(nx/2, ny/2)
}

func (p *Probe) OnStep(s dynamo.Snapshot) {
	if p.I < 0 || p.J < 0 || p.I >= s.Field.Nx || p.J >= s.Field.Ny {
		return
	}
	p.Times = append(p.Times, s.Time)
	p.Values = append(p.Values, s.Field.At(p.I, p.J))
}

func (p *Probe) Len() int { return len(p.Values) }

func (p *Probe) String() string {
	return fmt.Sprintf("probe(%d,%d) %d samples", p.I, p.J, len(p.Values))
}

// PhasePortrait2D pairs displacement with velocity at a probed node.
type PhasePortrait2D struct {
	Points []struct{ X, Y float64 }
}

// GeneratePhasePortrait builds (u, du/dt) points from a probe trace using
// central differences. It needs samples at a fixed spacing dt.
func GeneratePhasePortrait(p *Probe, dt float64) *PhasePortrait2D {
	if p == nil || len(p.Values) < 3 || dt <= 0 {
		return nil
	}
	portrait := &PhasePortrait2D{
		Points: make([]struct{ X, Y float64 }, 0, len(p.Values)-2),
	}
	for k := 1; k < len(p.Values)-1; k++ {
		portrait.Points = append(portrait.Points, struct{ X, Y float64 }{
			X: p.Values[k],
			Y: (p.Values[k+1] - p.Values[k-1]) / (2 * dt),
		})
	}
	return portrait
}

// PhasePortraitToASCII plots displacement against velocity on a width x
// height character canvas, with axes drawn where they cross the view.
func PhasePortraitToASCII(portrait *PhasePortrait2D, width, height int) string {
	if portrait == nil || len(portrait.Points) == 0 || width < 2 || height < 2 {
		return ""
	}

	minX, maxX := portrait.Points[0].X, portrait.Points[0].X
	minY, maxY := portrait.Points[0].Y, portrait.Points[0].Y

	for _, p := range portrait.Points {
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

	canvas := make([][]rune, height)
	for i := range canvas {
		canvas[i] = make([]rune, width)
		for j := range canvas[i] {
			canvas[i][j] = ' '
		}
	}

	for _, p := range portrait.Points {
		col := int((p.X - minX) / rangeX * float64(width-1))
		row := height - 1 - int((p.Y-minY)/rangeY*float64(height-1))

		if row >= 0 && row < height && col >= 0 && col < width {
			canvas[row][col] = '•'
		}
	}

	if minX <= 0 && maxX >= 0 {
		col := int((0 - minX) / rangeX * float64(width-1))
		for row := 0; row < height; row++ {
			if col >= 0 && col < width && canvas[row][col] == ' ' {
				canvas[row][col] = '│'
			}
		}
	}
	if minY <= 0 && maxY >= 0 {
		row := height - 1 - int((0-minY)/rangeY*float64(height-1))
		for col := 0; col < width; col++ {
			if row >= 0 && row < height && canvas[row][col] == ' ' {
				canvas[row][col] = '─'
			}
		}
	}

	var sb strings.Builder
	for _, row := range canvas {
		sb.WriteString(string(row))
		sb.WriteRune('\n')
	}
	return sb.String()
}
