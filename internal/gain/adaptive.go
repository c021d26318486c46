// Package gain computes the phase-dependent feedback stiffness that pulls a
// virtual mechanism toward the end of its trajectory.
package gain

import (
	"fmt"
	"math"

	"github.com/san-kum/vmech/internal/dynamo"
)

// Adaptive maps the remaining phase distance to a stiffness in [Min, Max].
// The stiffness is Min at both phase bounds and rises smoothly to Max at
// mid-trajectory; Rate sets how quickly it saturates.
type Adaptive struct {
	Max  float64
	Min  float64
	Rate float64

	norm float64
}

func New(max, min, rate float64) (Adaptive, error) {
	if min <= 0 || max < min || rate <= 0 {
		return Adaptive{}, fmt.Errorf("%w: adaptive gain max=%g min=%g rate=%g", dynamo.ErrParameterBounds, max, min, rate)
	}
	return Adaptive{Max: max, Min: min, Rate: rate, norm: 1 - math.Exp(-1/rate)}, nil
}

// ForStiffness returns the default adapter for a feedback stiffness kf:
// full stiffness mid-way, half of it at the bounds.
func ForStiffness(kf float64) (Adaptive, error) {
	return New(kf, kf/2, 0.1)
}

// ComputeGain is pure and safe to call from any integration stage. A
// non-positive Rate is the instant-saturation limit: Min exactly at the
// bounds, Max everywhere else.
func (a Adaptive) ComputeGain(remaining float64) float64 {
	s := dynamo.Clamp(math.Abs(remaining), 0, 1)
	bump := 4 * s * (1 - s)
	if !(a.Rate > 0) {
		if bump == 0 {
			return a.Min
		}
		return a.Max
	}
	norm := a.norm
	if norm == 0 {
		norm = 1 - math.Exp(-1/a.Rate)
	}
	return a.Min + (a.Max-a.Min)*(1-math.Exp(-bump/a.Rate))/norm
}
