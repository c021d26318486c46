package sim

import (
	"context"
	"fmt"
	"runtime"

	"github.com/san-kum/vmech/internal/config"
	"github.com/san-kum/vmech/internal/integrators"
	"github.com/san-kum/vmech/internal/manager"
	"github.com/san-kum/vmech/internal/mechanism"
	"github.com/san-kum/vmech/internal/operator"
	"github.com/san-kum/vmech/internal/plant"
	"github.com/san-kum/vmech/internal/trajectory"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// FromConfig builds a simulator, its mechanism pool and its operator from a
// validated run configuration. Default metrics are attached.
func FromConfig(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	mc, err := cfg.MechanismConfig()
	if err != nil {
		return nil, err
	}
	mgr := manager.New(manager.WithLogger(logger), manager.WithMechanismConfig(mc))
	for i, m := range cfg.Models {
		if err := insertModel(mgr, mc, m, i); err != nil {
			return nil, err
		}
	}

	integ, err := integrators.ByName(cfg.Integrator)
	if err != nil {
		return nil, err
	}
	op, err := operator.New(cfg.Operator.Kind, cfg.Operator.Goal, cfg.Operator.Kp, cfg.Operator.Ki, cfg.Operator.Kd)
	if err != nil {
		return nil, err
	}
	robot := plant.NewPointMass(cfg.Robot.Mass, cfg.Robot.Damping)

	opts = append([]Option{WithMode(cfg.ModeValue()), WithLogger(logger)}, opts...)
	s := New(robot, integ, mgr, op, opts...)
	s.AddMetric(newDefaultMetrics(mgr, robot.Mass)...)
	return s, nil
}

func insertModel(mgr *manager.Manager, mc mechanism.Config, m config.ModelConfig, i int) error {
	if m.Path != "" {
		return mgr.InsertVM(m.Path)
	}
	variance := m.Variance
	if variance == 0 {
		variance = config.DefaultVariance
	}
	g, err := trajectory.NewLinearGMR(m.From, m.To, 11, variance)
	if err != nil {
		return fmt.Errorf("models[%d]: %w", i, err)
	}
	mc.Name = m.Name
	if mc.Name == "" {
		mc.Name = fmt.Sprintf("line%d", i)
	}
	vm, err := mechanism.New(trajectory.NewModel(g), mc)
	if err != nil {
		return fmt.Errorf("models[%d]: %w", i, err)
	}
	mgr.Insert(vm)
	return nil
}

// Scenario is one entry of a batch.
type Scenario struct {
	Name   string
	Config *config.Config
}

// Batch runs every scenario on its own simulator and pool, at most
// runtime.NumCPU at a time. Results keep the order of scenarios. The first
// failure cancels the remaining runs.
func Batch(ctx context.Context, scenarios []Scenario, logger *zap.Logger) ([]*Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	results := make([]*Result, len(scenarios))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	for i, sc := range scenarios {
		i, sc := i, sc
		g.Go(func() error {
			log := logger.With(zap.String("scenario", sc.Name))
			s, err := FromConfig(sc.Config, log)
			if err != nil {
				return fmt.Errorf("%s: %w", sc.Name, err)
			}
			res, err := s.Run(ctx, sc.Config.InitState(), Config{Dt: sc.Config.Dt, Duration: sc.Config.Duration})
			if err != nil {
				return fmt.Errorf("%s: %w", sc.Name, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
