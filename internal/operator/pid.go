package operator

import "github.com/san-kum/vmech/internal/dynamo"

const dim = dynamo.PositionDim

type PID struct {
	Kp   float64
	Ki   float64
	Kd   float64
	Goal [dim]float64

	integral [dim]float64
	prevErr  [dim]float64
	prevT    float64
	first    bool
}

func NewPID(kp, ki, kd float64, goal []float64) *PID {
	p := &PID{
		Kp:    kp,
		Ki:    ki,
		Kd:    kd,
		first: true,
	}
	copy(p.Goal[:], goal)
	return p
}

func (p *PID) Force(pos, vel []float64, t float64, out []float64) {
	if p.first {
		for i := 0; i < dim; i++ {
			err := p.Goal[i] - pos[i]
			p.prevErr[i] = err
			out[i] = p.Kp * err
		}
		p.prevT = t
		p.first = false
		return
	}

	dt := t - p.prevT
	for i := 0; i < dim; i++ {
		err := p.Goal[i] - pos[i]
		if dt <= 0 {
			out[i] = p.Kp * err
			continue
		}
		p.integral[i] += err * dt
		derivative := (err - p.prevErr[i]) / dt
		out[i] = p.Kp*err + p.Ki*p.integral[i] + p.Kd*derivative
		p.prevErr[i] = err
	}
	if dt > 0 {
		p.prevT = t
	}
}

// Reset clears integral and derivative state
func (p *PID) Reset() {
	p.integral = [dim]float64{}
	p.prevErr = [dim]float64{}
	p.first = true
}

// GetParams returns tunable parameters for live adjustment
func (p *PID) GetParams() map[string]float64 {
	return map[string]float64{
		"Kp": p.Kp,
		"Ki": p.Ki,
		"Kd": p.Kd,
	}
}

// SetParam adjusts a PID gain
func (p *PID) SetParam(name string, value float64) {
	switch name {
	case "Kp":
		p.Kp = value
	case "Ki":
		p.Ki = value
	case "Kd":
		p.Kd = value
	}
}
