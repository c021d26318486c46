package config

import "sort"

func preset(edit func(*Config)) *Config {
	cfg := DefaultConfig()
	edit(cfg)
	return cfg
}

func line(name string, from, to []float64) ModelConfig {
	return ModelConfig{Name: name, From: from, To: to, Variance: DefaultVariance}
}

var diagonal = line("diagonal", []float64{0, 0, 0}, []float64{1, 1, 1})

var Presets = map[string]map[string]*Config{
	"reach": {
		"passive": preset(func(c *Config) {
			c.Models = []ModelConfig{diagonal}
			c.Operator = OperatorConfig{Kind: "pid", Goal: []float64{1, 1, 1}, Kp: DefaultKp, Kd: DefaultKd}
		}),
		"assisted": preset(func(c *Config) {
			c.Models = []ModelConfig{diagonal}
			c.Mechanism.Active = true
		}),
		"offset": preset(func(c *Config) {
			c.Models = []ModelConfig{diagonal}
			c.Mechanism.Active = true
			c.Robot.InitPos = []float64{0.3, -0.2, 0.1}
		}),
		"second_order": preset(func(c *Config) {
			c.Order = "second"
			c.Models = []ModelConfig{diagonal}
			c.Mechanism.Active = true
		}),
	},
	"fork": {
		"soft": preset(func(c *Config) {
			c.Models = []ModelConfig{
				line("left", []float64{0, 0, 0}, []float64{1, 0.5, 0}),
				line("right", []float64{0, 0, 0}, []float64{1, -0.5, 0}),
			}
			c.Mechanism.WeightedDistance = true
			c.Operator = OperatorConfig{Kind: "pid", Goal: []float64{1, 0.4, 0}, Kp: DefaultKp, Kd: DefaultKd}
		}),
		"hard": preset(func(c *Config) {
			c.Mode = "hard"
			c.Models = []ModelConfig{
				line("left", []float64{0, 0, 0}, []float64{1, 0.5, 0}),
				line("right", []float64{0, 0, 0}, []float64{1, -0.5, 0}),
			}
			c.Mechanism.WeightedDistance = true
			c.Operator = OperatorConfig{Kind: "pid", Goal: []float64{1, 0.4, 0}, Kp: DefaultKp, Kd: DefaultKd}
		}),
	},
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(scenario, name string) *Config {
	scenarioPresets, ok := Presets[scenario]
	if !ok {
		return nil
	}
	cfg, ok := scenarioPresets[name]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

func ListPresets(scenario string) []string {
	scenarioPresets, ok := Presets[scenario]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(scenarioPresets))
	for name := range scenarioPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func ListScenarios() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Config) Clone() *Config {
	out := *c
	if c.Models != nil {
		out.Models = make([]ModelConfig, len(c.Models))
	}
	for i, m := range c.Models {
		m.From = append([]float64(nil), m.From...)
		m.To = append([]float64(nil), m.To...)
		out.Models[i] = m
	}
	out.Robot.InitPos = append([]float64(nil), c.Robot.InitPos...)
	out.Robot.InitVel = append([]float64(nil), c.Robot.InitVel...)
	out.Operator.Goal = append([]float64(nil), c.Operator.Goal...)
	return &out
}
