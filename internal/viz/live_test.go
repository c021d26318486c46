package viz

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/san-kum/vmech/internal/config"
	"github.com/san-kum/vmech/internal/manager"
	"github.com/san-kum/vmech/internal/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestModel(t *testing.T) Model {
	t.Helper()
	cfg := config.GetPreset("fork", "soft")
	s, err := sim.FromConfig(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, s.Reset(cfg.InitState()))
	return NewModel(s, cfg.InitState(), cfg.Dt, 50, "fork/soft")
}

func press(m Model, key string) Model {
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)})
	return next.(Model)
}

func TestTickAdvancesSimulation(t *testing.T) {
	m := newTestModel(t)
	assert.Equal(t, 20, m.stepsPerFrame)

	next, cmd := m.Update(TickMsg(time.Now()))
	m = next.(Model)
	assert.NotNil(t, cmd, "ticks reschedule themselves")
	assert.InDelta(t, 0.02, m.sim.Time(), 1e-9)
	assert.Len(t, m.weights, 2)
	assert.InDelta(t, 1, m.weights[0]+m.weights[1], 1e-9)
	assert.Len(t, m.trail, 1)
}

func TestPauseStopsStepping(t *testing.T) {
	m := press(newTestModel(t), "p")
	assert.False(t, m.running)

	next, _ := m.Update(TickMsg(time.Now()))
	m = next.(Model)
	assert.Zero(t, m.sim.Time())
}

func TestModeToggle(t *testing.T) {
	m := newTestModel(t)
	require.Equal(t, manager.Soft, m.sim.Mode())
	m = press(m, "m")
	assert.Equal(t, manager.Hard, m.sim.Mode())
	assert.Contains(t, m.View(), "mode=hard")
	m = press(m, "m")
	assert.Equal(t, manager.Soft, m.sim.Mode())
}

func TestResetRewindsClock(t *testing.T) {
	m := newTestModel(t)
	next, _ := m.Update(TickMsg(time.Now()))
	m = press(next.(Model), "r")
	assert.Zero(t, m.sim.Time())
	assert.Empty(t, m.trail)
}

func TestViewListsMechanisms(t *testing.T) {
	m := newTestModel(t)
	next, _ := m.Update(TickMsg(time.Now()))
	m = next.(Model)
	view := m.View()
	assert.Contains(t, view, "left")
	assert.Contains(t, view, "right")
	assert.Contains(t, view, "FORK/SOFT")
}

func TestQuit(t *testing.T) {
	m := newTestModel(t)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Empty(t, next.(Model).View())
}

func TestPlaneSegment(t *testing.T) {
	p := NewPlane(4, 2, 0, 1, 0, 1)
	p.Segment(0, 0, 1, 1)
	out := p.String()
	assert.Equal(t, 2, strings.Count(out, "\n"))
	assert.NotEqual(t, strings.Repeat(string(rune(brailleBlank)), 4)+"\n"+strings.Repeat(string(rune(brailleBlank)), 4)+"\n", out)

	p.Clear()
	p.Point(-5, -5)
	assert.Equal(t, strings.Repeat(string(rune(brailleBlank)), 4)+"\n"+strings.Repeat(string(rune(brailleBlank)), 4)+"\n", p.String())
}
