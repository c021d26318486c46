package trajectory

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/vmech/internal/dynamo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

var (
	lineFrom = []float64{0, 0, 0}
	lineTo   = []float64{1, 2, -1}
)

func newLine(t *testing.T, variance float64) *GMR {
	t.Helper()
	g, err := NewLinearGMR(lineFrom, lineTo, 11, variance)
	require.NoError(t, err)
	return g
}

func TestLinearGMRPredict(t *testing.T) {
	g := newLine(t, 0.04)
	mean := make([]float64, 3)
	deriv := make([]float64, 3)
	cov := mat.NewSymDense(3, nil)

	for _, p := range []float64{0, 0.13, 0.5, 0.77, 1} {
		g.Predict(p, mean, deriv, cov)
		for i := 0; i < 3; i++ {
			assert.InDelta(t, lineFrom[i]+p*(lineTo[i]-lineFrom[i]), mean[i], 1e-9, "mean[%d] at phase %v", i, p)
			assert.InDelta(t, lineTo[i]-lineFrom[i], deriv[i], 1e-9, "deriv[%d] at phase %v", i, p)
			for j := 0; j < 3; j++ {
				want := 0.0
				if i == j {
					want = 0.04
				}
				assert.InDelta(t, want, cov.At(i, j), 1e-9)
			}
		}
	}
}

func TestNewLinearGMRValidation(t *testing.T) {
	_, err := NewLinearGMR([]float64{0, 0}, []float64{1, 1, 1}, 5, 0.1)
	assert.True(t, errors.Is(err, dynamo.ErrDimensionMismatch))

	_, err = NewLinearGMR(lineFrom, lineTo, 1, 0.1)
	assert.True(t, errors.Is(err, dynamo.ErrParameterBounds))

	_, err = NewLinearGMR(lineFrom, lineTo, 4, 0)
	assert.True(t, errors.Is(err, dynamo.ErrParameterBounds))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "line.yaml")
	g := newLine(t, 0.01)
	require.NoError(t, Save(path, g))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Dim())
	assert.Equal(t, 11, loaded.Components())

	a, b := make([]float64, 3), make([]float64, 3)
	for _, p := range []float64{0, 0.3, 1} {
		g.Predict(p, a, nil, nil)
		loaded.Predict(p, b, nil, nil)
		assert.InDeltaSlice(t, a, b, 1e-12)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0644))
		return p
	}

	tests := []struct {
		name string
		path string
	}{
		{"missing file", filepath.Join(dir, "nope.yaml")},
		{"not yaml", write("garbage.yaml", "kind: [gmr\n")},
		{"wrong kind", write("spline.yaml", "kind: spline\ndim: 3\n")},
		{"no components", write("empty.yaml", "kind: gmr\ndim: 3\ncomponents: []\n")},
		{"bad mean", write("mean.yaml", "kind: gmr\ndim: 1\ncomponents:\n  - prior: 1\n    mean: [0]\n    covariance: [[1, 0], [0, 1]]\n")},
		{"zero prior", write("prior.yaml", "kind: gmr\ndim: 1\ncomponents:\n  - prior: 0\n    mean: [0, 0]\n    covariance: [[1, 0], [0, 1]]\n")},
		{"asymmetric", write("asym.yaml", "kind: gmr\ndim: 1\ncomponents:\n  - prior: 1\n    mean: [0, 0]\n    covariance: [[1, 0.5], [0, 1]]\n")},
		{"ragged covariance", write("ragged.yaml", "kind: gmr\ndim: 1\ncomponents:\n  - prior: 1\n    mean: [0, 0]\n    covariance: [[1, 0], []]\n")},
		{"not positive definite", write("npd.yaml", "kind: gmr\ndim: 1\ncomponents:\n  - prior: 1\n    mean: [0, 0]\n    covariance: [[1, 2], [2, 1]]\n")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.path)
			require.Error(t, err)
			assert.True(t, errors.Is(err, dynamo.ErrModelLoad), "got %v", err)
		})
	}
}

func TestModelDistanceModes(t *testing.T) {
	m := NewModel(newLine(t, 0.04))
	m.SetPhase(0.5)

	pos := []float64{0.5 + 0.2, 1, -0.5}
	assert.InDelta(t, 0.2, m.Distance(pos), 1e-9, "euclidean")

	m.SetWeightedDistance(true)
	assert.InDelta(t, 1.0, m.Distance(pos), 1e-6, "mahalanobis with sigma 0.2")
	assert.InDelta(t, math.Exp(-0.5), m.Probability(pos), 1e-6)

	center := []float64{0.5, 1, -0.5}
	assert.InDelta(t, 1.0, m.Probability(center), 1e-9)
	assert.InDelta(t, 0.0, m.Distance(center), 1e-6)
}

func TestModelQueriesAreIdempotent(t *testing.T) {
	m := NewModel(newLine(t, 0.02))
	m.SetWeightedDistance(true)
	m.SetPhase(0.3)
	pos := []float64{0.1, 0.9, 0.2}

	d1, p1 := m.Distance(pos), m.Probability(pos)
	d2, p2 := m.Distance(pos), m.Probability(pos)
	assert.Equal(t, d1, d2)
	assert.Equal(t, p1, p2)
	assert.Equal(t, 0.3, m.Phase())
	assert.Greater(t, p1, 0.0)
	assert.LessOrEqual(t, p1, 1.0)
}

func TestInverseCovarianceIsLazy(t *testing.T) {
	m := NewModel(newLine(t, 0.02))
	m.SetWeightedDistance(true)
	require.True(t, m.invStale)

	m.Distance([]float64{0, 0, 0})
	assert.False(t, m.invStale)

	m.SetPhase(0)
	assert.False(t, m.invStale, "same phase keeps the cached inverse")

	m.SetPhase(0.4)
	assert.True(t, m.invStale)
	m.Probability([]float64{0, 0, 0})
	assert.False(t, m.invStale)
}

func TestComputeStateGivenPhaseIsPure(t *testing.T) {
	m := NewModel(newLine(t, 0.02))
	m.SetPhase(0.25)
	before := make([]float64, 3)
	m.Position(before)

	pos, deriv := make([]float64, 3), make([]float64, 3)
	m.ComputeStateGivenPhase(1, pos, deriv)
	assert.InDeltaSlice(t, lineTo, pos, 1e-9)
	assert.InDeltaSlice(t, []float64{1, 2, -1}, deriv, 1e-9)

	after := make([]float64, 3)
	m.Position(after)
	assert.Equal(t, before, after)
	assert.Equal(t, 0.25, m.Phase())
}

func TestLocalKernel(t *testing.T) {
	m := NewModel(newLine(t, 0.03))
	m.SetPhase(1)
	mean, variance := make([]float64, 3), make([]float64, 3)
	require.NoError(t, m.LocalKernel(mean, variance))
	assert.InDeltaSlice(t, lineTo, mean, 1e-9)
	assert.InDeltaSlice(t, []float64{0.03, 0.03, 0.03}, variance, 1e-9)

	assert.ErrorIs(t, m.LocalKernel(make([]float64, 2), variance), dynamo.ErrDimensionMismatch)
}

// flatRegressor reports a fixed covariance scale, zero for a singular kernel.
type flatRegressor struct {
	scale float64
}

func (f flatRegressor) Dim() int { return 3 }

func (f flatRegressor) Predict(phase float64, mean, deriv []float64, cov *mat.SymDense) {
	for i := range mean {
		mean[i] = phase
		if deriv != nil {
			deriv[i] = 1
		}
	}
	if cov != nil {
		for i := 0; i < 3; i++ {
			cov.SetSym(i, i, f.scale)
		}
	}
}

func TestDegenerateCovarianceUsesSentinels(t *testing.T) {
	for _, scale := range []float64{0, 1e-120, math.NaN()} {
		m := NewModel(flatRegressor{scale: scale})
		m.SetWeightedDistance(true)
		pos := []float64{0.1, 0.1, 0.1}

		assert.Equal(t, MaxDistance, m.Distance(pos), "scale %v", scale)
		assert.Equal(t, MinProbability, m.Probability(pos), "scale %v", scale)
	}
}

func TestProbabilityFloor(t *testing.T) {
	m := NewModel(flatRegressor{scale: 1e-4})
	far := []float64{1e3, 1e3, 1e3}
	assert.Equal(t, MinProbability, m.Probability(far))
	assert.Greater(t, m.Probability(far), 0.0)
}

func TestQueriesDoNotAllocate(t *testing.T) {
	m := NewModel(newLine(t, 0.02))
	m.SetWeightedDistance(true)
	q := []float64{0.1, 0.2, 0.3}
	phase := 0.0
	allocs := testing.AllocsPerRun(100, func() {
		phase += 0.001
		m.SetPhase(phase)
		_ = m.Distance(q)
		_ = m.Probability(q)
	})
	assert.Zero(t, allocs)
}
