// Package optim tunes scenario parameters by exhaustive grid search over
// closed-loop runs.
package optim

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/san-kum/vmech/internal/config"
	"github.com/san-kum/vmech/internal/dynamo"
	"github.com/san-kum/vmech/internal/sim"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var setters = map[string]func(*config.Config, float64){
	"k":       func(c *config.Config, v float64) { c.Mechanism.K = v },
	"b":       func(c *config.Config, v float64) { c.Mechanism.B = v },
	"kf":      func(c *config.Config, v float64) { c.Mechanism.Kf = v },
	"bf":      func(c *config.Config, v float64) { c.Mechanism.Bf = v },
	"bd_max":  func(c *config.Config, v float64) { c.Mechanism.BdMax = v },
	"epsilon": func(c *config.Config, v float64) { c.Mechanism.Epsilon = v },
	"mass":    func(c *config.Config, v float64) { c.Robot.Mass = v },
	"damping": func(c *config.Config, v float64) { c.Robot.Damping = v },
	"kp":      func(c *config.Config, v float64) { c.Operator.Kp = v },
	"kd":      func(c *config.Config, v float64) { c.Operator.Kd = v },
}

// ParamNames lists the tunable parameters.
func ParamNames() []string {
	names := make([]string, 0, len(setters))
	for n := range setters {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type Param struct {
	Name   string
	Values []float64
}

// ParseParam reads "name=v1,v2,...".
func ParseParam(s string) (Param, error) {
	name, list, ok := strings.Cut(s, "=")
	if !ok || name == "" || list == "" {
		return Param{}, fmt.Errorf("%w: param %q, want name=v1,v2", dynamo.ErrParameterBounds, s)
	}
	p := Param{Name: strings.TrimSpace(name)}
	for _, field := range strings.Split(list, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return Param{}, fmt.Errorf("%w: param %s: %w", dynamo.ErrParameterBounds, p.Name, err)
		}
		p.Values = append(p.Values, v)
	}
	return p, nil
}

// Candidate is one grid point. Err is set when the point could not be
// configured or its run failed.
type Candidate struct {
	Params map[string]float64
	Value  float64
	Err    error
}

type GridSearch struct {
	params []Param
	metric string
	logger *zap.Logger
}

func NewGridSearch(metric string, logger *zap.Logger, params ...Param) (*GridSearch, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("%w: no parameters to search", dynamo.ErrParameterBounds)
	}
	for _, p := range params {
		if _, ok := setters[p.Name]; !ok {
			return nil, fmt.Errorf("%w: unknown parameter %q", dynamo.ErrParameterBounds, p.Name)
		}
		if len(p.Values) == 0 {
			return nil, fmt.Errorf("%w: parameter %q has no values", dynamo.ErrParameterBounds, p.Name)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GridSearch{params: params, metric: metric, logger: logger}, nil
}

// Size is the number of grid points.
func (g *GridSearch) Size() int {
	n := 1
	for _, p := range g.params {
		n *= len(p.Values)
	}
	return n
}

// Search runs every grid point against a copy of base and returns the point
// with the lowest metric value, plus every candidate in grid order. It fails
// only when no point produced the metric.
func (g *GridSearch) Search(ctx context.Context, base *config.Config) (Candidate, []Candidate, error) {
	var points []map[string]float64
	g.enumerate(0, map[string]float64{}, &points)

	candidates := make([]Candidate, len(points))
	grp, ctx := errgroup.WithContext(ctx)
	grp.SetLimit(runtime.NumCPU())
	for i, params := range points {
		i, params := i, params
		candidates[i].Params = params
		grp.Go(func() error {
			v, err := g.evaluate(ctx, base, params)
			candidates[i].Value, candidates[i].Err = v, err
			if err != nil {
				g.logger.Debug("grid point failed", zap.Any("params", params), zap.Error(err))
			}
			return nil
		})
	}
	_ = grp.Wait()

	best := Candidate{Value: math.Inf(1)}
	found := false
	for _, c := range candidates {
		if c.Err == nil && c.Value < best.Value {
			best, found = c, true
		}
	}
	if !found {
		if len(candidates) > 0 && candidates[0].Err != nil {
			return Candidate{}, candidates, fmt.Errorf("optim: no grid point succeeded: %w", candidates[0].Err)
		}
		return Candidate{}, candidates, fmt.Errorf("optim: no grid point succeeded")
	}
	g.logger.Info("grid search finished",
		zap.Int("points", len(candidates)),
		zap.String("metric", g.metric),
		zap.Float64("best", best.Value),
		zap.Any("params", best.Params),
	)
	return best, candidates, nil
}

func (g *GridSearch) enumerate(depth int, current map[string]float64, out *[]map[string]float64) {
	if depth == len(g.params) {
		point := make(map[string]float64, len(current))
		for k, v := range current {
			point[k] = v
		}
		*out = append(*out, point)
		return
	}
	p := g.params[depth]
	for _, v := range p.Values {
		current[p.Name] = v
		g.enumerate(depth+1, current, out)
	}
	delete(current, p.Name)
}

func (g *GridSearch) evaluate(ctx context.Context, base *config.Config, params map[string]float64) (float64, error) {
	cfg := base.Clone()
	for name, v := range params {
		setters[name](cfg, v)
	}
	if err := cfg.Validate(); err != nil {
		return 0, err
	}
	s, err := sim.FromConfig(cfg, nil)
	if err != nil {
		return 0, err
	}
	res, err := s.Run(ctx, cfg.InitState(), sim.Config{Dt: cfg.Dt, Duration: cfg.Duration})
	if err != nil {
		return 0, err
	}
	if len(res.Errors) > 0 {
		return 0, res.Errors[0]
	}
	v, ok := res.Metrics[g.metric]
	if !ok {
		return 0, fmt.Errorf("%w: unknown metric %q", dynamo.ErrParameterBounds, g.metric)
	}
	return v, nil
}
