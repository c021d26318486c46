package metrics

import (
	"math"

	"github.com/san-kum/vmech/internal/dynamo"
)

// Source is the read side of a mechanism pool.
type Source interface {
	Len() int
	Weights(out []float64)
	GetVmPosition(index int, out []float64) error
	Phase(index int) (float64, error)
}

// ControlEffort is the mean Euclidean norm of the guidance force. Peak keeps
// the largest norm seen.
type ControlEffort struct {
	name    string
	sum     float64
	peak    float64
	samples int
}

func NewControlEffort() *ControlEffort {
	return &ControlEffort{name: "control_effort"}
}

func (c *ControlEffort) Name() string { return c.name }

func (c *ControlEffort) Observe(x dynamo.State, u dynamo.Control, t float64) {
	norm := math.Sqrt(dynamo.Dot(u, u))
	c.sum += norm
	c.peak = math.Max(c.peak, norm)
	c.samples++
}

func (c *ControlEffort) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return c.sum / float64(c.samples)
}

func (c *ControlEffort) Peak() float64 { return c.peak }

func (c *ControlEffort) Reset() {
	c.sum = 0
	c.peak = 0
	c.samples = 0
}

// TrackingError is the mean distance between the robot and the expected
// position of the mechanism holding the largest weight.
type TrackingError struct {
	name    string
	src     Source
	weights []float64
	pos     [dynamo.PositionDim]float64
	sum     float64
	samples int
}

func NewTrackingError(src Source) *TrackingError {
	return &TrackingError{name: "tracking_error", src: src}
}

func (m *TrackingError) Name() string { return m.name }

func (m *TrackingError) Observe(x dynamo.State, u dynamo.Control, t float64) {
	n := m.src.Len()
	if n == 0 || len(x) < dynamo.PositionDim {
		return
	}
	if cap(m.weights) < n {
		m.weights = make([]float64, n)
	}
	m.weights = m.weights[:n]
	m.src.Weights(m.weights)

	lead := 0
	for i, w := range m.weights {
		if w > m.weights[lead] {
			lead = i
		}
	}
	if err := m.src.GetVmPosition(lead, m.pos[:]); err != nil {
		return
	}
	d2 := 0.0
	for i := 0; i < dynamo.PositionDim; i++ {
		e := x[i] - m.pos[i]
		d2 += e * e
	}
	m.sum += math.Sqrt(d2)
	m.samples++
}

func (m *TrackingError) Value() float64 {
	if m.samples == 0 {
		return 0
	}
	return m.sum / float64(m.samples)
}

func (m *TrackingError) Reset() {
	m.sum = 0
	m.samples = 0
}

// Progress is the latest phase of one mechanism.
type Progress struct {
	name  string
	src   Source
	index int
	phase float64
}

func NewProgress(src Source, index int) *Progress {
	return &Progress{name: "progress", src: src, index: index}
}

func (p *Progress) Name() string { return p.name }

func (p *Progress) Observe(x dynamo.State, u dynamo.Control, t float64) {
	if ph, err := p.src.Phase(p.index); err == nil {
		p.phase = ph
	}
}

func (p *Progress) Value() float64 { return p.phase }
func (p *Progress) Reset()         { p.phase = 0 }

// KineticEnergy is the mean kinetic energy of the robot.
type KineticEnergy struct {
	name    string
	mass    float64
	total   float64
	samples int
}

func NewKineticEnergy(mass float64) *KineticEnergy {
	return &KineticEnergy{name: "kinetic_energy", mass: mass}
}

func (e *KineticEnergy) Name() string { return e.name }

func (e *KineticEnergy) Observe(x dynamo.State, u dynamo.Control, t float64) {
	if len(x) < 2*dynamo.PositionDim {
		return
	}
	v := x[dynamo.PositionDim : 2*dynamo.PositionDim]
	e.total += 0.5 * e.mass * dynamo.Dot(v, v)
	e.samples++
}

func (e *KineticEnergy) Value() float64 {
	if e.samples == 0 {
		return 0
	}
	return e.total / float64(e.samples)
}

func (e *KineticEnergy) Reset() {
	e.total = 0
	e.samples = 0
}
