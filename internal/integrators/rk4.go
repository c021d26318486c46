package integrators

import "github.com/san-kum/vmech/internal/dynamo"

// RK4 is the classic four stage Runge-Kutta integrator. Stage buffers are
// kept between calls, so StepTo does not allocate once the dimension is
// stable. An RK4 value must not be shared between goroutines.
type RK4 struct {
	k1, k2, k3, k4 dynamo.State
	scratch        dynamo.State
}

func NewRK4() *RK4 {
	return &RK4{}
}

func (r *RK4) ensureScratch(n int) {
	if len(r.k1) != n {
		r.k1 = make(dynamo.State, n)
		r.k2 = make(dynamo.State, n)
		r.k3 = make(dynamo.State, n)
		r.k4 = make(dynamo.State, n)
		r.scratch = make(dynamo.State, n)
	}
}

func (r *RK4) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) dynamo.State {
	n := len(x)
	r.ensureScratch(n)

	copy(r.k1, dyn.Derive(x, u, t))

	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*0.5*r.k1[i]
	}
	copy(r.k2, dyn.Derive(r.scratch, u, t+dt*0.5))

	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*0.5*r.k2[i]
	}
	copy(r.k3, dyn.Derive(r.scratch, u, t+dt*0.5))

	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*r.k3[i]
	}
	copy(r.k4, dyn.Derive(r.scratch, u, t+dt))

	result := make(dynamo.State, n)
	r.combine(result, x, dt)
	return result
}

// StepTo integrates one step of an in-place system into dst. dst may alias x.
// Every stage evaluates dyn at its own intermediate state.
func (r *RK4) StepTo(dyn dynamo.InPlaceSystem, dst, x dynamo.State, u dynamo.Control, t, dt float64) {
	n := len(x)
	r.ensureScratch(n)

	dyn.DeriveTo(r.k1, x, u, t)

	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*0.5*r.k1[i]
	}
	dyn.DeriveTo(r.k2, r.scratch, u, t+dt*0.5)

	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*0.5*r.k2[i]
	}
	dyn.DeriveTo(r.k3, r.scratch, u, t+dt*0.5)

	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*r.k3[i]
	}
	dyn.DeriveTo(r.k4, r.scratch, u, t+dt)

	r.combine(dst, x, dt)
}

// LastStage returns the derivative evaluated in the fourth stage of the
// most recent step. The slice is owned by the integrator.
func (r *RK4) LastStage() dynamo.State {
	return r.k4
}

func (r *RK4) combine(dst, x dynamo.State, dt float64) {
	dt6 := dt / 6.0
	for i := range x {
		dst[i] = x[i] + dt6*(r.k1[i]+2*r.k2[i]+2*r.k3[i]+r.k4[i])
	}
}
