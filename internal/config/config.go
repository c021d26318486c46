package config

import (
	"fmt"
	"os"

	"github.com/san-kum/vmech/internal/dynamo"
	"github.com/san-kum/vmech/internal/integrators"
	"github.com/san-kum/vmech/internal/manager"
	"github.com/san-kum/vmech/internal/mechanism"
	"github.com/san-kum/vmech/internal/phase"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDt       = 0.001
	DefaultDuration = 5.0
	DefaultMass     = 1.0
	DefaultDamping  = 2.0
	DefaultVariance = 0.01
	DefaultKp       = 40.0
	DefaultKi       = 0.0
	DefaultKd       = 8.0
)

type Config struct {
	Dt         float64         `yaml:"dt"`
	Duration   float64         `yaml:"duration"`
	Mode       string          `yaml:"mode"`
	Order      string          `yaml:"order"`
	Integrator string          `yaml:"integrator"`
	Models     []ModelConfig   `yaml:"models"`
	Mechanism  MechanismParams `yaml:"mechanism"`
	Robot      RobotConfig     `yaml:"robot"`
	Operator   OperatorConfig  `yaml:"operator"`
}

// ModelConfig names a trajectory artifact on disk, or a straight line from
// From to To when Path is empty.
type ModelConfig struct {
	Name     string    `yaml:"name,omitempty"`
	Path     string    `yaml:"path,omitempty"`
	From     []float64 `yaml:"from,omitempty,flow"`
	To       []float64 `yaml:"to,omitempty,flow"`
	Variance float64   `yaml:"variance,omitempty"`
}

// MechanismParams holds the gains shared by every mechanism of a run. Zero
// gains are filled from the defaults of the configured order.
type MechanismParams struct {
	mechanism.Gains  `yaml:",inline"`
	WeightedDistance bool   `yaml:"weighted_distance"`
	Active           bool   `yaml:"active"`
	Direction        string `yaml:"direction"`
}

type RobotConfig struct {
	Mass    float64   `yaml:"mass"`
	Damping float64   `yaml:"damping"`
	InitPos []float64 `yaml:"init_pos,flow"`
	InitVel []float64 `yaml:"init_vel,flow"`
}

type OperatorConfig struct {
	Kind string    `yaml:"kind"`
	Goal []float64 `yaml:"goal,omitempty,flow"`
	Kp   float64   `yaml:"kp"`
	Ki   float64   `yaml:"ki"`
	Kd   float64   `yaml:"kd"`
}

func DefaultConfig() *Config {
	return &Config{
		Dt:         DefaultDt,
		Duration:   DefaultDuration,
		Mode:       manager.Soft.String(),
		Order:      phase.FirstOrder.String(),
		Integrator: "rk4",
		Mechanism: MechanismParams{
			Direction: phase.Forward.String(),
		},
		Robot: RobotConfig{
			Mass:    DefaultMass,
			Damping: DefaultDamping,
			InitPos: []float64{0, 0, 0},
			InitVel: []float64{0, 0, 0},
		},
		Operator: OperatorConfig{
			Kind: "none",
			Kp:   DefaultKp,
			Ki:   DefaultKi,
			Kd:   DefaultKd,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate reports the first field that cannot drive a run.
func (c *Config) Validate() error {
	if !(c.Dt > 0) {
		return fmt.Errorf("%w: dt=%g", dynamo.ErrInvalidTimestep, c.Dt)
	}
	if c.Duration < c.Dt {
		return fmt.Errorf("%w: duration %g shorter than dt", dynamo.ErrParameterBounds, c.Duration)
	}
	if _, err := manager.ParseMode(c.Mode); err != nil {
		return err
	}
	if _, err := integrators.ByName(c.Integrator); err != nil {
		return err
	}
	mc, err := c.MechanismConfig()
	if err != nil {
		return err
	}
	if err := mc.Gains.Validate(mc.Order); err != nil {
		return err
	}
	for i, m := range c.Models {
		if err := m.validate(); err != nil {
			return fmt.Errorf("models[%d]: %w", i, err)
		}
	}
	if !(c.Robot.Mass > 0) || c.Robot.Damping < 0 {
		return fmt.Errorf("%w: robot mass=%g damping=%g", dynamo.ErrParameterBounds, c.Robot.Mass, c.Robot.Damping)
	}
	if err := checkVec("robot.init_pos", c.Robot.InitPos, true); err != nil {
		return err
	}
	if err := checkVec("robot.init_vel", c.Robot.InitVel, true); err != nil {
		return err
	}
	switch c.Operator.Kind {
	case "", "none":
	case "pid":
		if err := checkVec("operator.goal", c.Operator.Goal, false); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown operator %q", dynamo.ErrParameterBounds, c.Operator.Kind)
	}
	return nil
}

func (m ModelConfig) validate() error {
	if m.Path != "" {
		return nil
	}
	if err := checkVec("from", m.From, false); err != nil {
		return err
	}
	if err := checkVec("to", m.To, false); err != nil {
		return err
	}
	if m.Variance < 0 {
		return fmt.Errorf("%w: variance=%g", dynamo.ErrParameterBounds, m.Variance)
	}
	return nil
}

func checkVec(name string, v []float64, optional bool) error {
	if optional && len(v) == 0 {
		return nil
	}
	if len(v) != dynamo.PositionDim {
		return fmt.Errorf("%w: %s has %d entries, want %d", dynamo.ErrDimensionMismatch, name, len(v), dynamo.PositionDim)
	}
	return nil
}

// MechanismConfig resolves the order, direction and gains into the
// configuration used for every inserted mechanism.
func (c *Config) MechanismConfig() (mechanism.Config, error) {
	order, err := phase.ParseOrder(c.Order)
	if err != nil {
		return mechanism.Config{}, err
	}
	dir, err := phase.ParseDirection(c.Mechanism.Direction)
	if err != nil {
		return mechanism.Config{}, err
	}
	return mechanism.Config{
		Order:            order,
		Gains:            fillGains(c.Mechanism.Gains, mechanism.DefaultGains(order)),
		WeightedDistance: c.Mechanism.WeightedDistance,
		Direction:        dir,
		Active:           c.Mechanism.Active,
	}, nil
}

func fillGains(g, d mechanism.Gains) mechanism.Gains {
	pick := func(v, def float64) float64 {
		if v == 0 {
			return def
		}
		return v
	}
	return mechanism.Gains{
		K:       pick(g.K, d.K),
		B:       pick(g.B, d.B),
		Kf:      pick(g.Kf, d.Kf),
		Bf:      pick(g.Bf, d.Bf),
		BdMax:   pick(g.BdMax, d.BdMax),
		Epsilon: pick(g.Epsilon, d.Epsilon),
	}
}

// ModeValue parses Mode; call Validate first.
func (c *Config) ModeValue() manager.Mode {
	m, _ := manager.ParseMode(c.Mode)
	return m
}

// Steps is the number of ticks covered by Duration.
func (c *Config) Steps() int {
	return int(c.Duration/c.Dt + 0.5)
}

// InitState returns the plant state [x y z vx vy vz].
func (c *Config) InitState() dynamo.State {
	s := make(dynamo.State, 2*dynamo.PositionDim)
	copy(s, c.Robot.InitPos)
	copy(s[dynamo.PositionDim:], c.Robot.InitVel)
	return s
}
