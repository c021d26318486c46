// Package mechanism implements the virtual mechanism: a trajectory attractor
// that couples a phase integrator, a trajectory model and a Cartesian
// spring-damper.
package mechanism

import (
	"fmt"

	"github.com/san-kum/vmech/internal/dynamo"
	"github.com/san-kum/vmech/internal/phase"
	"github.com/san-kum/vmech/internal/trajectory"
)

type Gains struct {
	K       float64 `yaml:"k"`
	B       float64 `yaml:"b"`
	Kf      float64 `yaml:"kf"`
	Bf      float64 `yaml:"bf"`
	BdMax   float64 `yaml:"bd_max"`
	Epsilon float64 `yaml:"epsilon"`
}

// DefaultGains returns the stock gains for each phase order. The Cartesian
// pair K=700, B=2·sqrt(700) gives a critically damped unit mass.
func DefaultGains(order phase.Order) Gains {
	g := Gains{K: 700, B: 52.91502622129181, BdMax: 1, Epsilon: 10}
	if order == phase.SecondOrder {
		g.Kf = 20
		g.Bf = 8.94427190999916
	} else {
		g.Kf = 1
		g.Bf = 8.94427190999916
	}
	return g
}

// Validate checks the Cartesian stiffness and the phase law gains.
func (g Gains) Validate(order phase.Order) error {
	if !(g.K > 0) {
		return fmt.Errorf("%w: K=%g", dynamo.ErrParameterBounds, g.K)
	}
	return g.phaseParams().Validate(order)
}

func (g Gains) phaseParams() phase.Params {
	return phase.Params{B: g.B, Kf: g.Kf, Bf: g.Bf, BdMax: g.BdMax, Epsilon: g.Epsilon}
}

type Config struct {
	Name             string
	Order            phase.Order
	Gains            Gains
	WeightedDistance bool
	Direction        phase.Direction
	Active           bool
}

func DefaultConfig() Config {
	return Config{Order: phase.FirstOrder, Gains: DefaultGains(phase.FirstOrder)}
}

// VirtualMechanism owns its phase dynamics and trajectory model. It is not
// safe for concurrent use.
type VirtualMechanism struct {
	name  string
	dyn   phase.Dynamics
	model *trajectory.Model
	k, b  float64

	position    []float64
	positionDot []float64
	jacobian    []float64
	force       []float64
	torque      float64

	initial []float64
	final   []float64
}

func New(model *trajectory.Model, cfg Config) (*VirtualMechanism, error) {
	if model.Dim() != dynamo.PositionDim {
		return nil, fmt.Errorf("%w: model output dim %d, want %d", dynamo.ErrDimensionMismatch, model.Dim(), dynamo.PositionDim)
	}
	if err := cfg.Gains.Validate(cfg.Order); err != nil {
		return nil, err
	}
	dyn, err := phase.New(cfg.Order, cfg.Gains.phaseParams())
	if err != nil {
		return nil, err
	}
	dyn.SetDirection(cfg.Direction)
	dyn.SetActive(cfg.Active)
	model.SetWeightedDistance(cfg.WeightedDistance)

	vm := &VirtualMechanism{
		name:        cfg.Name,
		dyn:         dyn,
		model:       model,
		k:           cfg.Gains.K,
		b:           cfg.Gains.B,
		position:    make([]float64, dynamo.PositionDim),
		positionDot: make([]float64, dynamo.PositionDim),
		jacobian:    make([]float64, dynamo.PositionDim),
		force:       make([]float64, dynamo.PositionDim),
		initial:     make([]float64, dynamo.PositionDim),
		final:       make([]float64, dynamo.PositionDim),
	}
	vm.computeInitialState()
	vm.computeFinalState()

	model.SetPhase(dyn.Phase())
	model.Position(vm.position)
	model.Jacobian(vm.jacobian)
	return vm, nil
}

func (vm *VirtualMechanism) computeInitialState() {
	vm.model.ComputeStateGivenPhase(0, vm.initial, nil)
}

func (vm *VirtualMechanism) computeFinalState() {
	vm.model.ComputeStateGivenPhase(1, vm.final, nil)
}

// Update computes the spring-damper force K·(expected-pos) - B·vel, scales it
// and advances the mechanism. It must not allocate, block or log.
func (vm *VirtualMechanism) Update(pos, vel []float64, dt, scale float64) error {
	if len(pos) < dynamo.PositionDim || len(vel) < dynamo.PositionDim {
		return dynamo.ErrDimensionMismatch
	}
	if !(dt > 0) {
		return dynamo.ErrInvalidTimestep
	}
	for i := 0; i < dynamo.PositionDim; i++ {
		vm.force[i] = scale * (vm.k*(vm.position[i]-pos[i]) - vm.b*vel[i])
	}
	return vm.advance(dt)
}

// UpdateForce advances the mechanism under an externally computed Cartesian
// force.
func (vm *VirtualMechanism) UpdateForce(force []float64, dt float64) error {
	if len(force) != dynamo.PositionDim {
		return dynamo.ErrDimensionMismatch
	}
	if !(dt > 0) {
		return dynamo.ErrInvalidTimestep
	}
	copy(vm.force, force)
	return vm.advance(dt)
}

// advance runs one tick: Jacobian, phase update, saturation, expected
// position, expected velocity, in that order.
func (vm *VirtualMechanism) advance(dt float64) error {
	vm.model.SetPhase(vm.dyn.Phase())
	vm.model.Jacobian(vm.jacobian)

	jxjt := dynamo.Dot(vm.jacobian, vm.jacobian)
	vm.torque = dynamo.Dot(vm.jacobian, vm.force)

	vm.dyn.Advance(vm.torque, jxjt, dt)
	vm.dyn.Saturate()

	vm.model.SetPhase(vm.dyn.Phase())
	vm.model.Position(vm.position)

	phaseDot := vm.dyn.PhaseDot()
	for i := range vm.positionDot {
		vm.positionDot[i] = vm.jacobian[i] * phaseDot
	}
	return nil
}

func (vm *VirtualMechanism) Distance(pos []float64) float64 {
	return vm.model.Distance(pos)
}

func (vm *VirtualMechanism) Probability(pos []float64) float64 {
	return vm.model.Probability(pos)
}

func (vm *VirtualMechanism) LocalKernel(mean, variance []float64) error {
	return vm.model.LocalKernel(mean, variance)
}

func (vm *VirtualMechanism) Position(out []float64)     { copy(out, vm.position) }
func (vm *VirtualMechanism) Velocity(out []float64)     { copy(out, vm.positionDot) }
func (vm *VirtualMechanism) Force(out []float64)        { copy(out, vm.force) }
func (vm *VirtualMechanism) InitialState(out []float64) { copy(out, vm.initial) }
func (vm *VirtualMechanism) FinalState(out []float64)   { copy(out, vm.final) }

func (vm *VirtualMechanism) Name() string         { return vm.name }
func (vm *VirtualMechanism) Phase() float64       { return vm.dyn.Phase() }
func (vm *VirtualMechanism) PhaseDot() float64    { return vm.dyn.PhaseDot() }
func (vm *VirtualMechanism) Fade() float64        { return vm.dyn.Fade() }
func (vm *VirtualMechanism) Torque() float64      { return vm.torque }
func (vm *VirtualMechanism) Status() phase.Status { return vm.dyn.Status() }
func (vm *VirtualMechanism) Order() phase.Order   { return vm.dyn.Order() }
func (vm *VirtualMechanism) K() float64           { return vm.k }
func (vm *VirtualMechanism) B() float64           { return vm.b }

func (vm *VirtualMechanism) SetK(k float64) error {
	if !(k > 0) {
		return dynamo.ErrParameterBounds
	}
	vm.k = k
	return nil
}

func (vm *VirtualMechanism) SetB(b float64) error {
	if !(b > 0) {
		return dynamo.ErrParameterBounds
	}
	vm.b = b
	vm.dyn.SetDamping(b)
	return nil
}

func (vm *VirtualMechanism) SetActive(active bool) { vm.dyn.SetActive(active) }
func (vm *VirtualMechanism) Active() bool          { return vm.dyn.Active() }
func (vm *VirtualMechanism) MoveForward()          { vm.dyn.SetDirection(phase.Forward) }
func (vm *VirtualMechanism) MoveBackward()         { vm.dyn.SetDirection(phase.Backward) }
