package sim

import (
	"github.com/san-kum/vmech/internal/dynamo"
)

type Config struct {
	Dt       float64
	Duration float64
}

// Result records one closed-loop run. Forces holds the guidance force of
// each tick; Phases holds the phase of every mechanism live at that tick.
type Result struct {
	Times      []float64
	States     []dynamo.State
	Forces     []dynamo.Control
	Phases     [][]float64
	Metrics    map[string]float64
	Errors     []error
	StepsTaken int
}

func newResult(steps int) *Result {
	return &Result{
		Times:   make([]float64, 0, steps+1),
		States:  make([]dynamo.State, 0, steps+1),
		Forces:  make([]dynamo.Control, 0, steps+1),
		Phases:  make([][]float64, 0, steps+1),
		Metrics: make(map[string]float64),
		Errors:  make([]error, 0),
	}
}

// FinalState is the last recorded plant state, or nil.
func (r *Result) FinalState() dynamo.State {
	if len(r.States) == 0 {
		return nil
	}
	return r.States[len(r.States)-1]
}

// PhaseSeries is the phase history of mechanism i. Ticks where i did not
// exist are skipped.
func (r *Result) PhaseSeries(i int) []float64 {
	out := make([]float64, 0, len(r.Phases))
	for _, ph := range r.Phases {
		if i < len(ph) {
			out = append(out, ph[i])
		}
	}
	return out
}

// ForceNorms is the Euclidean norm of the guidance force per tick.
func (r *Result) ForceNorms() []float64 {
	out := make([]float64, len(r.Forces))
	for i, f := range r.Forces {
		out[i] = dynamo.State(f).Norm()
	}
	return out
}
