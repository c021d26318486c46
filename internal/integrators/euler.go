package integrators

import "github.com/san-kum/vmech/internal/dynamo"

type Euler struct {
	dx dynamo.State
}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, t float64, dt float64) dynamo.State {
	dx := dyn.Derive(x, u, t)
	result := make(dynamo.State, len(x))
	for i := range x {
		result[i] = x[i] + dt*dx[i]
	}
	return result
}

// StepTo writes x + dt*f(x) into dst. dst may alias x.
func (e *Euler) StepTo(dyn dynamo.InPlaceSystem, dst, x dynamo.State, u dynamo.Control, t, dt float64) {
	if len(e.dx) != len(x) {
		e.dx = make(dynamo.State, len(x))
	}
	dyn.DeriveTo(e.dx, x, u, t)
	for i := range x {
		dst[i] = x[i] + dt*e.dx[i]
	}
}
