package operator

import (
	"fmt"

	"github.com/san-kum/vmech/internal/dynamo"
)

type Operator interface {
	Force(pos, vel []float64, t float64, out []float64)
	Reset()
}

type None struct{}

func NewNone() *None { return &None{} }

func (n *None) Force(pos, vel []float64, t float64, out []float64) {
	for i := range out {
		out[i] = 0
	}
}

func (n *None) Reset() {}

// New builds the operator named kind ("none" or "pid").
func New(kind string, goal []float64, kp, ki, kd float64) (Operator, error) {
	switch kind {
	case "", "none":
		return NewNone(), nil
	case "pid":
		if len(goal) != dynamo.PositionDim {
			return nil, fmt.Errorf("%w: pid goal has %d entries", dynamo.ErrDimensionMismatch, len(goal))
		}
		return NewPID(kp, ki, kd, goal), nil
	}
	return nil, fmt.Errorf("%w: unknown operator %q", dynamo.ErrParameterBounds, kind)
}
