package phase

import (
	"fmt"

	"github.com/san-kum/vmech/internal/dynamo"
	"github.com/san-kum/vmech/internal/gain"
)

type Order int

const (
	FirstOrder Order = iota + 1
	SecondOrder
)

func (o Order) String() string {
	switch o {
	case FirstOrder:
		return "first"
	case SecondOrder:
		return "second"
	}
	return fmt.Sprintf("order(%d)", int(o))
}

func ParseOrder(s string) (Order, error) {
	switch s {
	case "first", "1":
		return FirstOrder, nil
	case "second", "2":
		return SecondOrder, nil
	}
	return 0, fmt.Errorf("unknown phase order: %q", s)
}

type Direction int

const (
	Forward Direction = iota
	Backward
)

// Target is the phase bound the attractor pulls toward.
func (d Direction) Target() float64 {
	if d == Backward {
		return 0
	}
	return 1
}

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

func ParseDirection(s string) (Direction, error) {
	switch s {
	case "", "forward":
		return Forward, nil
	case "backward":
		return Backward, nil
	}
	return Forward, fmt.Errorf("unknown direction: %q", s)
}

type Status int

const (
	Idle Status = iota
	Active
	Completed
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Active:
		return "active"
	case Completed:
		return "completed"
	}
	return "unknown"
}

// Params holds the gains of the phase law. B is the Cartesian damping of the
// owning mechanism; Bf is only used by the second order law and BdMax,
// Epsilon only by the first order law.
type Params struct {
	B       float64
	Kf      float64
	Bf      float64
	BdMax   float64
	Epsilon float64
}

func (p Params) Validate(order Order) error {
	if p.B <= 0 || p.Kf <= 0 {
		return fmt.Errorf("%w: B=%g Kf=%g", dynamo.ErrParameterBounds, p.B, p.Kf)
	}
	switch order {
	case FirstOrder:
		if p.BdMax <= 0 || p.Epsilon <= 0.1 {
			return fmt.Errorf("%w: BdMax=%g Epsilon=%g", dynamo.ErrParameterBounds, p.BdMax, p.Epsilon)
		}
	case SecondOrder:
		if p.Bf <= 0 {
			return fmt.Errorf("%w: Bf=%g", dynamo.ErrParameterBounds, p.Bf)
		}
	default:
		return fmt.Errorf("%w: %v", dynamo.ErrParameterBounds, order)
	}
	return nil
}

type Dynamics interface {
	// Advance integrates one tick given the generalized torque Jᵗf and the
	// squared Jacobian norm JᵗJ, both evaluated at the current phase.
	Advance(torque, jxjt, dt float64)
	Saturate()

	Phase() float64
	PhaseDot() float64
	PhaseDDot() float64
	Fade() float64
	Gain() float64
	Status() Status
	Order() Order

	SetActive(active bool)
	Active() bool
	SetDirection(d Direction)
	Direction() Direction
	// SetDamping replaces B, the Cartesian damping shared with the owner.
	SetDamping(b float64)
	Reset()
}

func New(order Order, p Params) (Dynamics, error) {
	if err := p.Validate(order); err != nil {
		return nil, err
	}
	g, err := gain.ForStiffness(p.Kf)
	if err != nil {
		return nil, err
	}
	base := core{params: p, gain: g, kf: p.Kf}
	switch order {
	case FirstOrder:
		return &firstOrder{core: base}, nil
	default:
		return newSecondOrder(base), nil
	}
}

// core is the state shared by both strategies.
type core struct {
	params    Params
	gain      gain.Adaptive
	phase     float64
	phaseDot  float64
	phaseDDot float64
	fade      float64
	kf        float64
	active    bool
	direction Direction
}

func (c *core) Phase() float64       { return c.phase }
func (c *core) PhaseDot() float64    { return c.phaseDot }
func (c *core) PhaseDDot() float64   { return c.phaseDDot }
func (c *core) Fade() float64        { return c.fade }
func (c *core) Gain() float64        { return c.kf }
func (c *core) Active() bool         { return c.active }
func (c *core) Direction() Direction { return c.direction }

func (c *core) SetActive(active bool)    { c.active = active }
func (c *core) SetDirection(d Direction) { c.direction = d }
func (c *core) SetDamping(b float64)     { c.params.B = b }

func (c *core) Status() Status {
	if c.phase == c.direction.Target() {
		return Completed
	}
	if c.phase == 0 && c.phaseDot == 0 {
		return Idle
	}
	return Active
}

func (c *core) Reset() {
	c.phase, c.phaseDot, c.phaseDDot, c.fade = 0, 0, 0, 0
	c.kf = c.params.Kf
}

// stepFade moves the fade governor toward 1 when active, toward 0 otherwise,
// with a 0.1s time constant.
func (c *core) stepFade(dt float64) {
	target := 0.0
	if c.active {
		target = 1
	}
	c.fade += 10 * (target - c.fade) * dt
}
