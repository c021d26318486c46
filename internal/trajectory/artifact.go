package trajectory

import (
	"fmt"
	"os"

	"github.com/san-kum/vmech/internal/dynamo"
	"gopkg.in/yaml.v3"
)

const KindGMR = "gmr"

type artifact struct {
	Kind       string              `yaml:"kind"`
	Dim        int                 `yaml:"dim"`
	Components []artifactComponent `yaml:"components"`
}

type artifactComponent struct {
	Prior      float64     `yaml:"prior"`
	Mean       []float64   `yaml:"mean,flow"`
	Covariance [][]float64 `yaml:"covariance"`
}

// Load reads a regression artifact. All failures wrap dynamo.ErrModelLoad.
func Load(path string) (*GMR, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dynamo.ErrModelLoad, err)
	}
	var a artifact
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", dynamo.ErrModelLoad, path, err)
	}
	if a.Kind != KindGMR {
		return nil, fmt.Errorf("%w: %s: unsupported kind %q", dynamo.ErrModelLoad, path, a.Kind)
	}
	g, err := newGMR(a.Dim, a.Components)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", dynamo.ErrModelLoad, path, err)
	}
	return g, nil
}

func Save(path string, g *GMR) error {
	data, err := yaml.Marshal(artifact{Kind: KindGMR, Dim: g.dim, Components: g.raw})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadModel reads an artifact and wraps it in a Model at phase 0.
func LoadModel(path string) (*Model, error) {
	g, err := Load(path)
	if err != nil {
		return nil, err
	}
	return NewModel(g), nil
}
