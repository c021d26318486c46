package viz

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/vmech/internal/dynamo"
	"github.com/san-kum/vmech/internal/manager"
	"github.com/san-kum/vmech/internal/sim"
)

const (
	plotCols        = 40
	plotRows        = 16
	barWidth        = 24
	historyCapacity = 600
	trailCapacity   = 400
)

type TickMsg time.Time

type named interface{ Name() string }
type faded interface{ Fade() float64 }

// Model drives a simulator from the Bubble Tea event loop.
type Model struct {
	sim           *sim.Simulator
	dt            float64
	stepsPerFrame int
	frame         time.Duration
	initialState  dynamo.State
	title         string

	running  bool
	active   bool
	err      error
	weights  []float64
	forces   []float64
	trail    [][2]float64
	plane    *Plane
	quitting bool
}

// NewModel prepares a live view. Each frame advances the simulator by
// frame/dt ticks so that simulated time tracks wall time.
func NewModel(s *sim.Simulator, x0 dynamo.State, dt float64, fps int, title string) Model {
	if fps <= 0 {
		fps = 30
	}
	frame := time.Second / time.Duration(fps)
	steps := int(frame.Seconds()/dt + 0.5)
	if steps < 1 {
		steps = 1
	}
	return Model{
		sim:           s,
		dt:            dt,
		stepsPerFrame: steps,
		frame:         frame,
		initialState:  x0.Clone(),
		title:         title,
		running:       true,
		forces:        make([]float64, 0, historyCapacity),
		trail:         make([][2]float64, 0, trailCapacity),
		plane:         NewPlane(plotCols, plotRows, -0.1, 1.1, -0.1, 1.1),
	}
}

// Run starts the view full screen and blocks until the user quits.
func Run(s *sim.Simulator, x0 dynamo.State, dt float64, fps int, title string) error {
	if err := s.Reset(x0); err != nil {
		return err
	}
	_, err := tea.NewProgram(NewModel(s, x0, dt, fps, title), tea.WithAltScreen()).Run()
	return err
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.frame, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return m.tick()
}

// Update handles input events and steps the simulation.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "p", " ":
			m.running = !m.running
		case "m":
			if m.sim.Mode() == manager.Hard {
				m.sim.SetMode(manager.Soft)
			} else {
				m.sim.SetMode(manager.Hard)
			}
		case "a":
			m.active = !m.active
			m.sim.Manager().SetAllActive(m.active)
		case "r":
			m.err = m.sim.Reset(m.initialState)
			m.trail = m.trail[:0]
			m.forces = m.forces[:0]
		}
	case TickMsg:
		if m.running && m.err == nil {
			m.advance()
		}
		return m, m.tick()
	}
	return m, nil
}

func (m *Model) advance() {
	for i := 0; i < m.stepsPerFrame; i++ {
		if err := m.sim.Step(m.dt); err != nil {
			m.err = err
			m.running = false
			break
		}
	}
	x := m.sim.State()
	m.trail = appendBounded(m.trail, [2]float64{x[0], x[1]}, trailCapacity)
	m.forces = appendBounded(m.forces, dynamo.State(m.sim.Guidance()).Norm(), historyCapacity)

	mgr := m.sim.Manager()
	if cap(m.weights) < mgr.Len() {
		m.weights = make([]float64, mgr.Len())
	}
	m.weights = m.weights[:mgr.Len()]
	mgr.Weights(m.weights)
}

func appendBounded[T any](s []T, v T, limit int) []T {
	if len(s) == limit {
		copy(s, s[1:])
		s = s[:limit-1]
	}
	return append(s, v)
}

func (m Model) leader() int {
	lead := -1
	for i, w := range m.weights {
		if lead < 0 || w > m.weights[lead] {
			lead = i
		}
	}
	return lead
}

func bar(fraction float64) string {
	filled := int(dynamo.Clamp(fraction, 0, 1) * barWidth)
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled) + "]"
}

func (m Model) drawPlane() string {
	mgr := m.sim.Manager()
	m.plane.Clear()
	for _, p := range m.trail {
		m.plane.Fit(p[0], p[1])
	}
	start, end := make([]float64, 3), make([]float64, 3)
	for i := 0; i < mgr.Len(); i++ {
		vm, err := mgr.At(i)
		if err != nil {
			continue
		}
		vm.InitialState(start)
		vm.FinalState(end)
		m.plane.Fit(start[0], start[1])
		m.plane.Fit(end[0], end[1])
		m.plane.Segment(start[0], start[1], end[0], end[1])
	}
	for i := 1; i < len(m.trail); i++ {
		a, b := m.trail[i-1], m.trail[i]
		m.plane.Segment(a[0], a[1], b[0], b[1])
	}
	return m.plane.String()
}

// View renders the plot next to the per-mechanism table.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	mgr := m.sim.Manager()
	var s strings.Builder

	s.WriteString(headerStyle.Render(strings.ToUpper(m.title)) + "\n")
	status := statusRunning.Render("RUNNING")
	if !m.running {
		status = statusPaused.Render("PAUSED")
	}
	s.WriteString(fmt.Sprintf("%s  mode=%s  t=%.2fs\n\n", status, m.sim.Mode(), m.sim.Time()))

	lead := m.leader()
	for i := 0; i < mgr.Len(); i++ {
		vm, err := mgr.At(i)
		if err != nil {
			continue
		}
		name := fmt.Sprintf("vm%d", i)
		if n, ok := vm.(named); ok && n.Name() != "" {
			name = n.Name()
		}
		w := 0.0
		if i < len(m.weights) {
			w = m.weights[i]
		}
		line := fmt.Sprintf("%-8s %s %.3f  w=%.2f", name, bar(vm.Phase()), vm.Phase(), w)
		if f, ok := vm.(faded); ok {
			line += fmt.Sprintf(" fade=%.2f", f.Fade())
		}
		if i == lead {
			s.WriteString(leadStyle.Render("> "+line) + "\n")
		} else {
			s.WriteString("  " + line + "\n")
		}
	}
	if mgr.Len() == 0 {
		s.WriteString(labelStyle.Render("  (no mechanisms)") + "\n")
	}

	x := m.sim.State()
	s.WriteString("\n" + labelStyle.Render("Robot") + valueStyle.Render(fmt.Sprintf("%.3f %.3f %.3f", x[0], x[1], x[2])) + "\n")
	g := m.sim.Guidance()
	s.WriteString(labelStyle.Render("Force") + valueStyle.Render(fmt.Sprintf("%.2f %.2f %.2f", g[0], g[1], g[2])) + "\n")

	if len(m.forces) > 1 {
		chart := asciigraph.Plot(m.forces, asciigraph.Height(5), asciigraph.Width(40), asciigraph.Caption("|guidance force|"))
		s.WriteString(graphStyle.Render(chart) + "\n")
	}
	if m.err != nil {
		s.WriteString(errorStyle.Render(m.err.Error()) + "\n")
	}
	s.WriteString(helpStyle.Render("p:Pause m:Mode a:Activate r:Reset q:Quit"))

	plot := plotStyle.Render(m.drawPlane())
	return lipgloss.JoinHorizontal(lipgloss.Top, plot, statsStyle.Render(s.String()))
}
