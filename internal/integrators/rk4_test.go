package integrators

import (
	"math"
	"testing"

	"github.com/san-kum/vmech/internal/dynamo"
)

type simpleDynamics struct{}

func (s *simpleDynamics) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	return dynamo.State{x[1], -x[0]}
}

func (s *simpleDynamics) DeriveTo(dst, x dynamo.State, u dynamo.Control, t float64) {
	dst[0], dst[1] = x[1], -x[0]
}

func (s *simpleDynamics) StateDim() int   { return 2 }
func (s *simpleDynamics) ControlDim() int { return 0 }

func TestRK4Accuracy(t *testing.T) {
	dyn := &simpleDynamics{}
	integ := NewRK4()

	x := dynamo.State{1.0, 0.0}
	dt := 0.01
	steps := 100

	for i := 0; i < steps; i++ {
		x = integ.Step(dyn, x, nil, float64(i)*dt, dt)
	}

	expectedX := math.Cos(float64(steps) * dt)
	expectedV := -math.Sin(float64(steps) * dt)

	if math.Abs(x[0]-expectedX) > 1e-4 {
		t.Errorf("position error too large: got %.6f, expected %.6f", x[0], expectedX)
	}
	if math.Abs(x[1]-expectedV) > 1e-4 {
		t.Errorf("velocity error too large: got %.6f, expected %.6f", x[1], expectedV)
	}
}

func TestRK4StepToMatchesStep(t *testing.T) {
	dyn := &simpleDynamics{}
	a, b := NewRK4(), NewRK4()

	x := dynamo.State{0.3, -0.7}
	y := x.Clone()
	for i := 0; i < 50; i++ {
		x = a.Step(dyn, x, nil, 0, 0.02)
		b.StepTo(dyn, y, y, nil, 0, 0.02)
	}

	if math.Abs(x[0]-y[0]) > 1e-15 || math.Abs(x[1]-y[1]) > 1e-15 {
		t.Errorf("StepTo diverged from Step: %v vs %v", y, x)
	}
}

func TestRK4StepToDoesNotAllocate(t *testing.T) {
	dyn := &simpleDynamics{}
	integ := NewRK4()
	x := dynamo.State{1, 0}
	integ.StepTo(dyn, x, x, nil, 0, 0.001)

	allocs := testing.AllocsPerRun(100, func() {
		integ.StepTo(dyn, x, x, nil, 0, 0.001)
	})
	if allocs != 0 {
		t.Errorf("expected no allocations, got %v", allocs)
	}
}

type stageRecorder struct {
	seen []float64
}

func (s *stageRecorder) DeriveTo(dst, x dynamo.State, u dynamo.Control, t float64) {
	s.seen = append(s.seen, x[0])
	dst[0] = 1
}

func (s *stageRecorder) StateDim() int { return 1 }

func TestRK4StepToEvaluatesIntermediateStates(t *testing.T) {
	rec := &stageRecorder{}
	integ := NewRK4()
	x := dynamo.State{0}
	integ.StepTo(rec, x, x, nil, 0, 0.1)

	want := []float64{0, 0.05, 0.05, 0.1}
	if len(rec.seen) != len(want) {
		t.Fatalf("expected %d stage evaluations, got %d", len(want), len(rec.seen))
	}
	for i := range want {
		if math.Abs(rec.seen[i]-want[i]) > 1e-12 {
			t.Errorf("stage %d evaluated at %v, want %v", i+1, rec.seen[i], want[i])
		}
	}
	if math.Abs(x[0]-0.1) > 1e-12 {
		t.Errorf("expected x=0.1 after one step, got %v", x[0])
	}
}

func TestByName(t *testing.T) {
	for _, name := range Names() {
		if _, err := ByName(name); err != nil {
			t.Errorf("ByName(%q): %v", name, err)
		}
	}
	if _, err := ByName("verlet"); err == nil {
		t.Error("expected error for unknown integrator")
	}
}
