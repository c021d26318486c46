package manager

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/san-kum/vmech/internal/dynamo"
	"github.com/san-kum/vmech/internal/logging"
	"github.com/san-kum/vmech/internal/mechanism"
	"github.com/san-kum/vmech/internal/phase"
	"github.com/san-kum/vmech/internal/trajectory"
	"go.uber.org/zap"
)

// uniformThreshold is the probability mass below which soft arbitration
// falls back to uniform weights.
const uniformThreshold = 1e-12

type Mode int

const (
	Soft Mode = iota
	Hard
)

func (m Mode) String() string {
	switch m {
	case Hard:
		return "hard"
	case Soft:
		return "soft"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "soft":
		return Soft, nil
	case "hard":
		return Hard, nil
	}
	return Soft, fmt.Errorf("%w: unknown arbitration mode %q", dynamo.ErrParameterBounds, s)
}

// Mechanism is what the pool needs from a guidance primitive.
type Mechanism interface {
	Update(pos, vel []float64, dt, scale float64) error
	Distance(pos []float64) float64
	Probability(pos []float64) float64
	Force(out []float64)
	Position(out []float64)
	Velocity(out []float64)
	InitialState(out []float64)
	FinalState(out []float64)
	Phase() float64
	SetActive(active bool)
	MoveForward()
	MoveBackward()
}

var _ Mechanism = (*mechanism.VirtualMechanism)(nil)

// Loader turns a model artifact path into a trajectory model.
type Loader func(path string) (*trajectory.Model, error)

type Option func(*Manager)

func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = logging.OrNop(l) }
}

// WithMechanismConfig sets the gains and flags given to mechanisms built by
// InsertVM.
func WithMechanismConfig(cfg mechanism.Config) Option {
	return func(m *Manager) { m.cfg = cfg }
}

func WithLoader(load Loader) Option {
	return func(m *Manager) { m.load = load }
}

type Manager struct {
	logger *zap.Logger
	cfg    mechanism.Config
	load   Loader

	pool      []Mechanism
	distances []float64
	probs     []float64
	weights   []float64
	force     [dynamo.PositionDim]float64
	sum       [dynamo.PositionDim]float64
}

func New(opts ...Option) *Manager {
	m := &Manager{
		logger: zap.NewNop(),
		cfg:    mechanism.DefaultConfig(),
		load:   trajectory.LoadModel,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// InsertVM loads the model artifact at path and appends a mechanism built
// with the configured gains. The pool is unchanged on error.
func (m *Manager) InsertVM(path string) error {
	model, err := m.load(path)
	if err != nil {
		m.logger.Warn("model load failed", zap.String("path", path), zap.Error(err))
		return err
	}
	cfg := m.cfg
	if cfg.Name == "" {
		cfg.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	vm, err := mechanism.New(model, cfg)
	if err != nil {
		m.logger.Warn("mechanism rejected", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("%w: %s: %w", dynamo.ErrModelLoad, path, err)
	}
	m.Insert(vm)
	m.logger.Info("mechanism inserted",
		zap.String("name", cfg.Name),
		zap.String("path", path),
		zap.Int("index", len(m.pool)-1),
		zap.Stringer("order", cfg.Order),
	)
	return nil
}

// Insert appends a mechanism and grows the arbitration buffers.
func (m *Manager) Insert(vm Mechanism) {
	m.pool = append(m.pool, vm)
	m.distances = append(m.distances, 0)
	m.probs = append(m.probs, 0)
	m.weights = append(m.weights, 0)
}

// DeleteVM removes the mechanism at index; later mechanisms shift down by one.
func (m *Manager) DeleteVM(index int) error {
	if err := m.checkIndex(index); err != nil {
		return err
	}
	last := len(m.pool) - 1
	copy(m.pool[index:], m.pool[index+1:])
	m.pool[last] = nil
	m.pool = m.pool[:last]
	for _, buf := range []*[]float64{&m.distances, &m.probs, &m.weights} {
		b := *buf
		copy(b[index:], b[index+1:])
		*buf = b[:last]
	}
	m.logger.Info("mechanism deleted", zap.Int("index", index), zap.Int("remaining", last))
	return nil
}

func (m *Manager) checkIndex(index int) error {
	if index < 0 || index >= len(m.pool) {
		return dynamo.ErrIndexOutOfRange
	}
	return nil
}

func (m *Manager) Len() int { return len(m.pool) }

// At returns the mechanism at index.
func (m *Manager) At(index int) (Mechanism, error) {
	if err := m.checkIndex(index); err != nil {
		return nil, err
	}
	return m.pool[index], nil
}

// Update arbitrates the pool against the robot state and writes the summed
// guidance force to out. pos holds xyz or xyz plus a quaternion; the
// orientation is ignored. vel holds at least the linear velocity. out holds
// a force or a wrench; the torque part is zeroed. An empty pool yields a zero
// force.
func (m *Manager) Update(pos, vel []float64, dt float64, out []float64, mode Mode) error {
	if len(pos) != dynamo.PositionDim && len(pos) != dynamo.PoseDim {
		return dynamo.ErrDimensionMismatch
	}
	if len(vel) < dynamo.PositionDim {
		return dynamo.ErrDimensionMismatch
	}
	if len(out) != dynamo.PositionDim && len(out) != dynamo.WrenchDim {
		return dynamo.ErrDimensionMismatch
	}
	if !(dt > 0) {
		return dynamo.ErrInvalidTimestep
	}
	for i := range out {
		out[i] = 0
	}
	if len(m.pool) == 0 {
		return nil
	}

	p := pos[:dynamo.PositionDim]
	v := vel[:dynamo.PositionDim]
	m.measure(p, mode)
	m.arbitrate(mode)

	m.sum = [dynamo.PositionDim]float64{}
	for i, vm := range m.pool {
		w := m.weights[i]
		if w == 0 {
			continue
		}
		if err := vm.Update(p, v, dt, w); err != nil {
			return err
		}
		vm.Force(m.force[:])
		for j := range m.sum {
			m.sum[j] += m.force[j]
		}
	}
	copy(out, m.sum[:])
	return nil
}

// UpdateArray is Update over fixed-size arrays.
func (m *Manager) UpdateArray(pos, vel [3]float64, dt float64, mode Mode) ([3]float64, error) {
	var out [3]float64
	err := m.Update(pos[:], vel[:], dt, out[:], mode)
	return out, err
}

func (m *Manager) measure(pos []float64, mode Mode) {
	for i, vm := range m.pool {
		if mode == Hard {
			m.distances[i] = vm.Distance(pos)
		} else {
			m.probs[i] = vm.Probability(pos)
		}
	}
}

func (m *Manager) arbitrate(mode Mode) {
	if mode == Hard {
		hardWeights(m.distances, m.weights)
		return
	}
	softWeights(m.probs, m.weights)
}

// hardWeights assigns 1 to the first minimum of distances.
func hardWeights(distances, weights []float64) {
	best := 0
	for i := 1; i < len(distances); i++ {
		if distances[i] < distances[best] {
			best = i
		}
	}
	for i := range weights {
		weights[i] = 0
	}
	weights[best] = 1
}

func softWeights(probs, weights []float64) {
	total := 0.0
	for _, p := range probs {
		total += p
	}
	if !(total >= uniformThreshold) {
		u := 1 / float64(len(probs))
		for i := range weights {
			weights[i] = u
		}
		return
	}
	for i, p := range probs {
		weights[i] = p / total
	}
}

// Weights copies the weights computed by the last Update.
func (m *Manager) Weights(out []float64) { copy(out, m.weights) }

func (m *Manager) GetVmPosition(index int, out []float64) error {
	if err := m.checkIndex(index); err != nil {
		return err
	}
	if len(out) < dynamo.PositionDim {
		return dynamo.ErrDimensionMismatch
	}
	m.pool[index].Position(out)
	return nil
}

func (m *Manager) GetVmVelocity(index int, out []float64) error {
	if err := m.checkIndex(index); err != nil {
		return err
	}
	if len(out) < dynamo.PositionDim {
		return dynamo.ErrDimensionMismatch
	}
	m.pool[index].Velocity(out)
	return nil
}

func (m *Manager) GetPositionDim() int { return dynamo.PositionDim }

func (m *Manager) Phase(index int) (float64, error) {
	if err := m.checkIndex(index); err != nil {
		return 0, err
	}
	return m.pool[index].Phase(), nil
}

func (m *Manager) SetActive(index int, active bool) error {
	if err := m.checkIndex(index); err != nil {
		return err
	}
	m.pool[index].SetActive(active)
	return nil
}

func (m *Manager) SetDirection(index int, d phase.Direction) error {
	if err := m.checkIndex(index); err != nil {
		return err
	}
	if d == phase.Backward {
		m.pool[index].MoveBackward()
	} else {
		m.pool[index].MoveForward()
	}
	return nil
}

// SetAllActive toggles activation across the pool.
func (m *Manager) SetAllActive(active bool) {
	for _, vm := range m.pool {
		vm.SetActive(active)
	}
}
