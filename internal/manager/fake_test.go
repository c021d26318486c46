package manager_test

import (
	"github.com/san-kum/vmech/internal/manager"
)

// fakeMechanism reports fixed distance and probability and pushes with a unit
// force along x scaled by the arbitration weight.
type fakeMechanism struct {
	distance    float64
	probability float64
	position    [3]float64

	updates int
	scale   float64
	phase   float64
	active  bool
	back    bool
}

var _ manager.Mechanism = (*fakeMechanism)(nil)

func (f *fakeMechanism) Update(pos, vel []float64, dt, scale float64) error {
	f.updates++
	f.scale = scale
	f.phase += dt
	return nil
}

func (f *fakeMechanism) Distance(pos []float64) float64    { return f.distance }
func (f *fakeMechanism) Probability(pos []float64) float64 { return f.probability }
func (f *fakeMechanism) Force(out []float64)               { out[0], out[1], out[2] = f.scale, 0, 0 }
func (f *fakeMechanism) Position(out []float64)            { copy(out, f.position[:]) }
func (f *fakeMechanism) Velocity(out []float64)            { out[0], out[1], out[2] = 0, 0, 0 }
func (f *fakeMechanism) InitialState(out []float64)        { copy(out, f.position[:]) }
func (f *fakeMechanism) FinalState(out []float64)          { copy(out, f.position[:]) }
func (f *fakeMechanism) Phase() float64                    { return f.phase }
func (f *fakeMechanism) SetActive(active bool)             { f.active = active }
func (f *fakeMechanism) MoveForward()                      { f.back = false }
func (f *fakeMechanism) MoveBackward()                     { f.back = true }
