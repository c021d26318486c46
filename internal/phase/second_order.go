package phase

import (
	"github.com/san-kum/vmech/internal/dynamo"
	"github.com/san-kum/vmech/internal/integrators"
)

type secondOrder struct {
	core
	rk4    *integrators.RK4
	state  dynamo.State
	input  dynamo.Control
	torque float64
	jxjt   float64
}

func newSecondOrder(c core) *secondOrder {
	s := &secondOrder{
		core:  c,
		rk4:   integrators.NewRK4(),
		state: make(dynamo.State, 2),
		input: make(dynamo.Control, 1),
	}
	// Size the stage buffers up front so the first tick does not allocate.
	s.rk4.StepTo(s, s.state, s.state, s.input, 0, 0)
	s.kf = c.kf
	return s
}

func (s *secondOrder) Order() Order  { return SecondOrder }
func (s *secondOrder) StateDim() int { return 2 }

// DeriveTo evaluates (phase-dot, phase-ddot) at an intermediate RK stage.
// The attractor stiffness is recomputed from the stage's own phase.
func (s *secondOrder) DeriveTo(dst, x dynamo.State, u dynamo.Control, t float64) {
	p := &s.params
	target := s.direction.Target()
	s.kf = s.gain.ComputeGain(target - x[0])
	dst[0] = x[1]
	dst[1] = 10 * (-p.B*s.jxjt*x[1] - u[0] + s.fade*(-p.Bf*x[1]+s.kf*(target-x[0])))
}

func (s *secondOrder) Advance(torque, jxjt, dt float64) {
	s.torque, s.jxjt = torque, jxjt
	s.input[0] = torque

	s.stepFade(dt)

	s.state[0], s.state[1] = s.phase, s.phaseDot
	s.rk4.StepTo(s, s.state, s.state, s.input, 0, dt)

	s.phase, s.phaseDot = s.state[0], s.state[1]
	s.phaseDDot = s.rk4.LastStage()[1]
}

// Saturate clamps the phase and stops the phase velocity at either bound.
func (s *secondOrder) Saturate() {
	if s.phase > 1 {
		s.phase = 1
		s.phaseDot = 0
	} else if s.phase < 0 {
		s.phase = 0
		s.phaseDot = 0
	}
}
