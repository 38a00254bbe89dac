package viz

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/platesim/internal/dynamo"
)

// magnitude ramp, index 0 for |u| = 0
var ramp = []rune(" .:-=+*#%@")

// DivergingHex maps t in [-1, 1] onto the theme's displacement scale.
// Values outside the range are clamped; NaN maps to the error color.
func DivergingHex(t float64, theme Theme) string {
	if math.IsNaN(t) {
		return string(theme.Error)
	}
	t = math.Max(-1, math.Min(1, t))
	if t < 0 {
		return blendHex(string(theme.Background), string(theme.Negative), -t)
	}
	return blendHex(string(theme.Background), string(theme.Positive), t)
}

// Glyph returns the ramp character for t in [-1, 1] by magnitude.
func Glyph(t float64) rune {
	if math.IsNaN(t) || math.IsInf(t, 0) {
		return '!'
	}
	a := math.Min(1, math.Abs(t))
	return ramp[int(math.Round(a*float64(len(ramp)-1)))]
}

// Heatmap renders f on a width x height character grid, x to the right and
// y up. The glyph encodes |u| and the color its sign, both relative to the
// field's peak magnitude.
func Heatmap(f dynamo.Field, width, height int, theme Theme) string {
	if f.Nx == 0 || f.Ny == 0 || width < 1 || height < 1 {
		return ""
	}
	scale := f.MaxAbs()
	if scale == 0 || math.IsInf(scale, 0) || math.IsNaN(scale) {
		scale = 1
	}

	var sb strings.Builder
	for row := 0; row < height; row++ {
		fy := 1 - float64(row)/math.Max(1, float64(height-1))
		for col := 0; col < width; col++ {
			fx := float64(col) / math.Max(1, float64(width-1))
			t := sampleBilinear(f, fx, fy) / scale
			style := lipgloss.NewStyle().Foreground(lipgloss.Color(DivergingHex(t, theme)))
			sb.WriteString(style.Render(string(Glyph(t))))
		}
		if row < height-1 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// sampleBilinear evaluates f at fractional position (fx, fy) in [0, 1]^2 of
// the plate.
func sampleBilinear(f dynamo.Field, fx, fy float64) float64 {
	x := fx * float64(f.Nx-1)
	y := fy * float64(f.Ny-1)
	i := int(math.Floor(x))
	j := int(math.Floor(y))
	if i >= f.Nx-1 {
		i = f.Nx - 2
	}
	if j >= f.Ny-1 {
		j = f.Ny - 2
	}
	if i < 0 {
		i = 0
	}
	if j < 0 {
		j = 0
	}
	tx := x - float64(i)
	ty := y - float64(j)
	return (1-tx)*(1-ty)*f.At(i, j) +
		tx*(1-ty)*f.At(i+1, j) +
		(1-tx)*ty*f.At(i, j+1) +
		tx*ty*f.At(i+1, j+1)
}

// NodalLines draws the zero set of f onto c: a sub-pixel is set where the
// interpolated displacement changes sign towards its right or lower
// neighbour. The plate outline is drawn as a frame.
func NodalLines(c *Canvas, f dynamo.Field) {
	if c == nil || f.Nx < 2 || f.Ny < 2 {
		return
	}
	c.Clear()
	pw, ph := c.Width*2, c.Height*4
	if pw < 2 || ph < 2 {
		return
	}

	values := make([][]float64, ph)
	for y := 0; y < ph; y++ {
		values[y] = make([]float64, pw)
		fy := 1 - float64(y)/float64(ph-1)
		for x := 0; x < pw; x++ {
			values[y][x] = sampleBilinear(f, float64(x)/float64(pw-1), fy)
		}
	}

	for y := 0; y < ph; y++ {
		for x := 0; x < pw; x++ {
			v := values[y][x]
			if x+1 < pw && v*values[y][x+1] < 0 {
				c.Set(x, y)
			}
			if y+1 < ph && v*values[y+1][x] < 0 {
				c.Set(x, y)
			}
		}
	}

	c.DrawLine(0, 0, pw-1, 0)
	c.DrawLine(0, ph-1, pw-1, ph-1)
	c.DrawLine(0, 0, 0, ph-1)
	c.DrawLine(pw-1, 0, pw-1, ph-1)
}
