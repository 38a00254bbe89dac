package viz

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/platesim/internal/sim"
)

var (
	menuTitle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#00cccc")).Bold(true)
	menuSub      = lipgloss.NewStyle().Foreground(lipgloss.Color("#666688"))
	menuCursor   = lipgloss.NewStyle().Foreground(lipgloss.Color("#00ffff")).Bold(true)
	menuSelected = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffffff")).Bold(true)
	menuDesc     = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff88ff"))
	menuIdle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#555566"))
	menuIdleDesc = lipgloss.NewStyle().Foreground(lipgloss.Color("#444455"))
	menuKey      = lipgloss.NewStyle().Foreground(lipgloss.Color("#00aaaa")).Bold(true)
)

// MenuEntry is one runnable configuration. Build returns a seeded solver.
type MenuEntry struct {
	Group   string
	Name    string
	Summary string
	Build   func() (*sim.Solver, error)
}

func (e MenuEntry) Title() string { return e.Group + "/" + e.Name }

// Menu lists entries and hands the chosen one to a LiveModel.
type Menu struct {
	ctx     context.Context
	entries []MenuEntry
	cursor  int
	theme   Theme
	live    *LiveModel
	err     error
}

func NewMenu(ctx context.Context, entries []MenuEntry, theme Theme) *Menu {
	return &Menu{ctx: ctx, entries: entries, theme: theme}
}

func (m *Menu) Init() tea.Cmd { return nil }

// Live returns the running view, or nil while the menu is shown.
func (m *Menu) Live() *LiveModel { return m.live }

func (m *Menu) Err() error {
	if m.err != nil {
		return m.err
	}
	if m.live != nil {
		return m.live.Err()
	}
	return nil
}

func (m *Menu) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.live != nil {
		_, cmd := m.live.Update(msg)
		return m, cmd
	}

	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.entries)-1 {
			m.cursor++
		}
	case "enter", " ":
		if len(m.entries) == 0 {
			return m, nil
		}
		entry := m.entries[m.cursor]
		solver, err := entry.Build()
		if err != nil {
			m.err = fmt.Errorf("%s: %w", entry.Title(), err)
			return m, nil
		}
		m.err = nil
		m.live = NewLiveModel(m.ctx, solver, entry.Title())
		m.live.SetTheme(m.theme)
		return m, m.live.Init()
	}
	return m, nil
}

func (m *Menu) View() string {
	if m.live != nil {
		return m.live.View()
	}

	var b strings.Builder
	b.WriteString("\n\n    " + menuTitle.Render("PLATESIM") + "\n    " + menuSub.Render("biharmonic plate waves") + "\n    " + menuSub.Render("─────────────────────────") + "\n\n")
	for i, e := range m.entries {
		desc := e.Summary
		if len(desc) > 40 {
			desc = desc[:37] + "..."
		}
		if i == m.cursor {
			b.WriteString(fmt.Sprintf("    %s %s  %s\n", menuCursor.Render("▸"), menuSelected.Render(fmt.Sprintf("%-28s", e.Title())), menuDesc.Render(desc)))
		} else {
			b.WriteString(fmt.Sprintf("    %s  %s\n", menuIdle.Render(fmt.Sprintf("  %-28s", e.Title())), menuIdleDesc.Render(desc)))
		}
	}
	if m.err != nil {
		b.WriteString("\n    " + StatusFailed.Render(m.err.Error()) + "\n")
	}
	b.WriteString("\n    " + menuKey.Render("j/k") + menuIdle.Render(" navigate  ") + menuKey.Render("enter") + menuIdle.Render(" run  ") + menuKey.Render("q") + menuIdle.Render(" quit") + "\n")
	return b.String()
}

// RunMenu shows the preset picker and then the live view of the chosen run.
func RunMenu(ctx context.Context, entries []MenuEntry, theme Theme) error {
	final, err := tea.NewProgram(NewMenu(ctx, entries, theme), tea.WithAltScreen()).Run()
	if err != nil {
		return err
	}
	if m, ok := final.(*Menu); ok {
		return m.Err()
	}
	return nil
}
