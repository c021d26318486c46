package sim

import (
	"context"
	"fmt"

	"github.com/san-kum/vmech/internal/dynamo"
	"github.com/san-kum/vmech/internal/manager"
	"github.com/san-kum/vmech/internal/operator"
	"go.uber.org/zap"
)

// Simulator closes the loop between a mechanism pool, a simulated operator
// and the robot plant. Each tick the pool computes the guidance force from
// the robot state, the operator adds its own force and the plant integrates
// the sum.
type Simulator struct {
	plant      dynamo.System
	integrator dynamo.Integrator
	manager    *manager.Manager
	operator   operator.Operator
	mode       manager.Mode
	logger     *zap.Logger
	metrics    []dynamo.Metric
	observers  []dynamo.Observer
	feed       <-chan string

	x        dynamo.State
	t        float64
	step     int
	guidance dynamo.Control
	human    dynamo.Control
	total    dynamo.Control
}

type Option func(*Simulator)

func WithMode(m manager.Mode) Option { return func(s *Simulator) { s.mode = m } }

func WithLogger(l *zap.Logger) Option {
	return func(s *Simulator) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithModelFeed makes the simulator insert every artifact path received on
// feed into the pool. Paths are drained between ticks.
func WithModelFeed(feed <-chan string) Option { return func(s *Simulator) { s.feed = feed } }

func New(plant dynamo.System, integrator dynamo.Integrator, mgr *manager.Manager, op operator.Operator, opts ...Option) *Simulator {
	if op == nil {
		op = operator.NewNone()
	}
	s := &Simulator{
		plant:      plant,
		integrator: integrator,
		manager:    mgr,
		operator:   op,
		mode:       manager.Soft,
		logger:     zap.NewNop(),
		metrics:    make([]dynamo.Metric, 0),
		observers:  make([]dynamo.Observer, 0),
		x:          make(dynamo.State, plant.StateDim()),
		guidance:   make(dynamo.Control, dynamo.PositionDim),
		human:      make(dynamo.Control, dynamo.PositionDim),
		total:      make(dynamo.Control, dynamo.PositionDim),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Simulator) AddMetric(m ...dynamo.Metric)  { s.metrics = append(s.metrics, m...) }
func (s *Simulator) AddObserver(o dynamo.Observer) { s.observers = append(s.observers, o) }

func (s *Simulator) Manager() *manager.Manager { return s.manager }
func (s *Simulator) Mode() manager.Mode        { return s.mode }
func (s *Simulator) SetMode(m manager.Mode)    { s.mode = m }
func (s *Simulator) Time() float64             { return s.t }
func (s *Simulator) State() dynamo.State       { return s.x }
func (s *Simulator) Guidance() dynamo.Control  { return s.guidance }

// Reset places the robot at x0 and rewinds the clock. Mechanism phases are
// not touched.
func (s *Simulator) Reset(x0 dynamo.State) error {
	if len(x0) != s.plant.StateDim() {
		return fmt.Errorf("%w: initial state has %d entries, want %d", dynamo.ErrDimensionMismatch, len(x0), s.plant.StateDim())
	}
	copy(s.x, x0)
	s.t = 0
	s.step = 0
	s.operator.Reset()
	for _, m := range s.metrics {
		m.Reset()
	}
	return nil
}

// drainFeed inserts every queued artifact. A bad artifact is logged and
// skipped.
func (s *Simulator) drainFeed() {
	if s.feed == nil {
		return
	}
	for {
		select {
		case path, ok := <-s.feed:
			if !ok {
				s.feed = nil
				return
			}
			if err := s.manager.InsertVM(path); err != nil {
				s.logger.Warn("skipping model", zap.String("path", path), zap.Error(err))
			}
		default:
			return
		}
	}
}

// Step advances the loop by one tick.
func (s *Simulator) Step(dt float64) error {
	s.drainFeed()

	pos := s.x[:dynamo.PositionDim]
	vel := s.x[dynamo.PositionDim : 2*dynamo.PositionDim]
	if err := s.manager.Update(pos, vel, dt, s.guidance, s.mode); err != nil {
		return s.fail(err)
	}
	s.operator.Force(pos, vel, s.t, s.human)
	for i := range s.total {
		s.total[i] = s.guidance[i] + s.human[i]
	}

	for _, m := range s.metrics {
		m.Observe(s.x, s.guidance, s.t)
	}
	for _, obs := range s.observers {
		obs.OnStep(s.x, s.guidance, s.t)
	}

	next := s.integrator.Step(s.plant, s.x, s.total, s.t, dt)
	if !next.IsValid() {
		return s.fail(dynamo.ErrInvalidState)
	}
	copy(s.x, next)
	s.t += dt
	s.step++
	return nil
}

func (s *Simulator) fail(err error) error {
	return &dynamo.SimulationError{Step: s.step, Time: s.t, State: s.x.Clone(), Wrapped: err}
}

// Run resets the robot to x0 and steps for cfg.Duration, recording every
// tick. On cancellation the partial result is returned with the context
// error.
func (s *Simulator) Run(ctx context.Context, x0 dynamo.State, cfg Config) (*Result, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if err := s.Reset(x0); err != nil {
		return nil, err
	}

	steps := int(cfg.Duration/cfg.Dt + 0.5)
	result := newResult(steps)
	s.logger.Info("run started",
		zap.Int("steps", steps),
		zap.Float64("dt", cfg.Dt),
		zap.Stringer("mode", s.mode),
		zap.Int("mechanisms", s.manager.Len()),
	)

	s.record(result)
	for i := 0; i < steps; i++ {
		select {
		case <-ctx.Done():
			return result, fmt.Errorf("%w: %w", dynamo.ErrContextCanceled, ctx.Err())
		default:
		}

		if err := s.Step(cfg.Dt); err != nil {
			result.Errors = append(result.Errors, err)
			s.logger.Error("run aborted", zap.Int("step", i), zap.Error(err))
			break
		}
		result.StepsTaken++
		s.record(result)
	}

	for _, m := range s.metrics {
		result.Metrics[m.Name()] = m.Value()
	}
	s.logger.Info("run finished", zap.Int("steps", result.StepsTaken), zap.Any("metrics", result.Metrics))
	return result, nil
}

func (s *Simulator) record(r *Result) {
	r.Times = append(r.Times, s.t)
	r.States = append(r.States, s.x.Clone())
	r.Forces = append(r.Forces, append(dynamo.Control(nil), s.guidance...))
	phases := make([]float64, s.manager.Len())
	for i := range phases {
		phases[i], _ = s.manager.Phase(i)
	}
	r.Phases = append(r.Phases, phases)
}

func validateConfig(cfg Config) error {
	if !(cfg.Dt > 0) {
		return fmt.Errorf("%w: dt=%g", dynamo.ErrInvalidTimestep, cfg.Dt)
	}
	if !(cfg.Duration > 0) {
		return fmt.Errorf("%w: duration must be positive, got %g", dynamo.ErrParameterBounds, cfg.Duration)
	}
	return nil
}
