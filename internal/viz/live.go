package viz

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/platesim/internal/dynamo"
	"github.com/san-kum/platesim/internal/sim"
)

const (
	viewWidth       = 56
	viewHeight      = 22
	historyCapacity = 600
	frameRate       = 30
)

var (
	canvasStyle = lipgloss.NewStyle().Padding(1, 2)
	statsStyle  = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), false, false, false, true).BorderForeground(lipgloss.Color("240")).Padding(1, 2).Width(46)
	graphStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("49")).Padding(1, 0)
)

type TickMsg time.Time

// ViewMode selects how the plate is drawn.
type ViewMode int

const (
	ViewHeatmap ViewMode = iota
	ViewSurface
	ViewNodal
)

func (v ViewMode) String() string {
	switch v {
	case ViewHeatmap:
		return "heatmap"
	case ViewSurface:
		return "surface"
	case ViewNodal:
		return "nodal lines"
	default:
		return fmt.Sprintf("view(%d)", int(v))
	}
}

// LiveModel drives a seeded solver from a bubbletea program, pulling a few
// snapshots per frame from its step sequence.
type LiveModel struct {
	title string
	nt    int

	next func() (dynamo.Snapshot, error, bool)
	stop func()

	current dynamo.Snapshot
	energy  []float64
	peaks   []float64
	e0      float64

	theme        Theme
	view         ViewMode
	camera       *Camera
	canvas       *Canvas
	running      bool
	done         bool
	err          error
	stepsPerTick int
	showHelp     bool
}

// NewLiveModel takes ownership of a seeded solver's step sequence.
func NewLiveModel(ctx context.Context, solver *sim.Solver, title string) *LiveModel {
	next, stop := iter.Pull2(solver.Steps(ctx))
	m := &LiveModel{
		title:        title,
		nt:           solver.Clock().Nt,
		next:         next,
		stop:         stop,
		theme:        ThemeCyberpunk,
		camera:       NewCamera(),
		canvas:       NewCanvas(viewWidth, viewHeight),
		running:      true,
		stepsPerTick: 1,
		energy:       make([]float64, 0, historyCapacity),
		peaks:        make([]float64, 0, historyCapacity),
	}
	m.advance(1)
	return m
}

func (m *LiveModel) Err() error     { return m.err }
func (m *LiveModel) Done() bool     { return m.done }
func (m *LiveModel) Step() int      { return m.current.Step }
func (m *LiveModel) View() string   { return m.render() }
func (m *LiveModel) Mode() ViewMode { return m.view }

func (m *LiveModel) SetTheme(t Theme) { m.theme = t }

func tick() tea.Cmd {
	return tea.Tick(time.Second/frameRate, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m *LiveModel) Init() tea.Cmd {
	return tick()
}

func (m *LiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.stop()
			return m, tea.Quit
		case " ":
			m.running = !m.running
		case "n":
			if !m.running {
				m.advance(1)
			}
		case "+", "=":
			if m.stepsPerTick < 1024 {
				m.stepsPerTick *= 2
			}
		case "-", "_":
			if m.stepsPerTick > 1 {
				m.stepsPerTick /= 2
			}
		case "v":
			m.view = (m.view + 1) % 3
		case "t":
			m.theme = NextTheme(m.theme)
		case "x":
			m.camera.RotateX(0.1)
		case "X":
			m.camera.RotateX(-0.1)
		case "y":
			m.camera.RotateY(0.1)
		case "Y":
			m.camera.RotateY(-0.1)
		case "z":
			m.camera.ZoomIn()
		case "Z":
			m.camera.ZoomOut()
		case "?":
			m.showHelp = !m.showHelp
		}
	case TickMsg:
		if m.running {
			m.advance(m.stepsPerTick)
		}
		return m, tick()
	}
	return m, nil
}

// advance pulls up to n snapshots. The last one stays as a view until the
// next pull, which is the only thing that mutates the solver's buffers.
func (m *LiveModel) advance(n int) {
	for k := 0; k < n && !m.done; k++ {
		snap, err, ok := m.next()
		if !ok {
			m.finish(nil)
			return
		}
		if err != nil {
			m.finish(err)
			return
		}
		m.current = snap
		m.record(snap)
	}
}

func (m *LiveModel) finish(err error) {
	m.done = true
	m.running = false
	m.err = err
	m.stop()
}

func (m *LiveModel) record(s dynamo.Snapshot) {
	if s.Energy != nil {
		if len(m.energy) == 0 {
			m.e0 = s.Energy.Total
		}
		m.energy = appendCapped(m.energy, s.Energy.Total)
	}
	m.peaks = appendCapped(m.peaks, s.Field.MaxAbs())
}

func appendCapped(xs []float64, v float64) []float64 {
	if len(xs) >= historyCapacity {
		copy(xs, xs[1:])
		xs = xs[:len(xs)-1]
	}
	return append(xs, v)
}

func (m *LiveModel) drawPlate() string {
	switch m.view {
	case ViewSurface:
		m.canvas.Clear()
		stride := 1
		if n := max(m.current.Field.Nx, m.current.Field.Ny); n > 41 {
			stride = n / 40
		}
		Render3D(m.canvas, PlateWireframe(m.current.Field, 0.5, stride), m.camera)
		return m.canvas.String()
	case ViewNodal:
		NodalLines(m.canvas, m.current.Field)
		return m.canvas.String()
	default:
		return Heatmap(m.current.Field, viewWidth, viewHeight, m.theme)
	}
}

func (m *LiveModel) status() string {
	switch {
	case m.err != nil:
		return StatusFailed.Render("FAILED")
	case m.done:
		return StatusRunning.Render("FINISHED")
	case !m.running:
		return StatusPaused.Render("PAUSED")
	default:
		return StatusRunning.Render(fmt.Sprintf("RUNNING x%d", m.stepsPerTick))
	}
}

func (m *LiveModel) render() string {
	plate := canvasStyle.Render(m.drawPlate())

	var s strings.Builder
	s.WriteString(HeaderStyle.Render(strings.ToUpper(m.title)) + "\n")
	s.WriteString(m.status() + "  " + Subtle.Render(m.view.String()) + "\n\n")

	progress := 1.0
	if m.nt > 0 {
		progress = float64(m.current.Step) / float64(m.nt)
	}
	s.WriteString(ProgressBar(progress, 30) + "\n")
	s.WriteString(MetricLabel.Render("Step") + MetricValue.Render(fmt.Sprintf("%d / %d", m.current.Step, m.nt)) + "\n")
	s.WriteString(MetricLabel.Render("Time") + MetricValue.Render(fmt.Sprintf("%.6gs", m.current.Time)) + "\n")
	s.WriteString(MetricLabel.Render("Peak |u|") + MetricValue.Render(fmt.Sprintf("%.4g", m.current.Field.MaxAbs())) + "\n")
	if n := len(m.energy); n > 0 {
		s.WriteString(MetricLabel.Render("Energy") + MetricValue.Render(fmt.Sprintf("%.6g", m.energy[n-1])) + "\n")
		if m.e0 != 0 {
			s.WriteString(MetricLabel.Render("Drift") + MetricValue.Render(fmt.Sprintf("%+.3f%%", 100*(m.energy[n-1]-m.e0)/m.e0)) + "\n")
		}
	}
	if m.err != nil {
		s.WriteString(StatusFailed.Render(m.err.Error()) + "\n")
	}

	s.WriteString("\n" + MetricLabel.Render("Peak") + SparklineChart(m.peaks, 30) + "\n")
	if len(m.energy) > 1 {
		chart := asciigraph.Plot(m.energy, asciigraph.Height(5), asciigraph.Width(30), asciigraph.Caption("Energy"))
		s.WriteString(graphStyle.Render(chart) + "\n")
	}
	s.WriteString(KeyHint.Render("\nSP:Pause N:Step +/-:Speed V:View\nT:Theme XYZ:Camera ?:Help Q:Quit"))

	main := lipgloss.JoinHorizontal(lipgloss.Top, plate, statsStyle.Render(s.String()))
	if m.showHelp {
		return BoxWithTitle("Keys", strings.Join([]string{
			"Space  pause or resume",
			"N      single step while paused",
			"+ / -  double or halve steps per frame",
			"V      heatmap, surface, nodal lines",
			"T      cycle color themes",
			"x/X y/Y rotate the surface, z/Z zoom",
			"Q      quit",
		}, "\n"), 44) + "\n\n" + main
	}
	return main
}

// RunLive shows a seeded solver until the user quits or the run ends and
// the user quits. It returns the run error, if any.
func RunLive(ctx context.Context, solver *sim.Solver, title string, theme Theme) error {
	m := NewLiveModel(ctx, solver, title)
	m.SetTheme(theme)
	final, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	if err != nil {
		return err
	}
	if m, ok := final.(*LiveModel); ok {
		return m.Err()
	}
	return nil
}
