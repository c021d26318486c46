package phase

import "math"

type firstOrder struct {
	core
}

func (f *firstOrder) Order() Order { return FirstOrder }

func (f *firstOrder) Advance(torque, jxjt, dt float64) {
	prev := f.phase
	p := &f.params

	bd := math.Exp(-4/p.Epsilon*jxjt) * p.BdMax
	det := p.B*jxjt + bd*bd

	f.stepFade(dt)

	target := f.direction.Target()
	f.kf = f.gain.ComputeGain(target - prev)
	f.phaseDot = (1-f.fade)*(-1/det)*torque + f.fade*f.kf*(target-prev)
	f.phase = prev + f.phaseDot*dt
}

// Saturate clamps the phase only; the phase velocity keeps its computed
// value.
func (f *firstOrder) Saturate() {
	if f.phase > 1 {
		f.phase = 1
	} else if f.phase < 0 {
		f.phase = 0
	}
}
