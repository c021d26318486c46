package plant

import (
	"github.com/san-kum/vmech/internal/dynamo"
)

const (
	DefaultMass    = 1.0
	DefaultDamping = 2.0
)

type PointMass struct {
	Mass    float64
	Damping float64
}

func NewPointMass(mass, damping float64) *PointMass {
	if mass <= 0 {
		mass = DefaultMass
	}
	if damping < 0 {
		damping = DefaultDamping
	}
	return &PointMass{Mass: mass, Damping: damping}
}

func (p *PointMass) StateDim() int   { return 2 * dynamo.PositionDim }
func (p *PointMass) ControlDim() int { return dynamo.PositionDim }

func (p *PointMass) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	dx := make(dynamo.State, p.StateDim())
	p.DeriveTo(dx, x, u, t)
	return dx
}

func (p *PointMass) DeriveTo(dst, x dynamo.State, u dynamo.Control, t float64) {
	n := dynamo.PositionDim
	for i := 0; i < n; i++ {
		vel := x[n+i]
		force := 0.0
		if i < len(u) {
			force = u[i]
		}
		dst[i] = vel
		dst[n+i] = (force - p.Damping*vel) / p.Mass
	}
}

// Energy is the kinetic energy of the mass.
func (p *PointMass) Energy(x dynamo.State) float64 {
	n := dynamo.PositionDim
	energy := 0.0
	for i := 0; i < n; i++ {
		v := x[n+i]
		energy += 0.5 * p.Mass * v * v
	}
	return energy
}

// Position and Velocity view the halves of a plant state without copying.
func Position(x dynamo.State) []float64 { return x[:dynamo.PositionDim] }
func Velocity(x dynamo.State) []float64 { return x[dynamo.PositionDim : 2*dynamo.PositionDim] }
