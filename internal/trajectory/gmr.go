package trajectory

import (
	"fmt"
	"math"

	"github.com/san-kum/vmech/internal/dynamo"
	"gonum.org/v1/gonum/mat"
)

// Regressor is a phase→state regression. Predict writes the expected output
// and its derivative with respect to phase; deriv and cov may be nil.
type Regressor interface {
	Dim() int
	Predict(phase float64, mean, deriv []float64, cov *mat.SymDense)
}

type gaussian struct {
	logNorm float64
	muIn    float64
	varIn   float64
	muOut   []float64
	slope   []float64
	condCov *mat.SymDense
}

// GMR is a Gaussian mixture regression with a scalar phase input. A GMR
// keeps scratch buffers and must not be used from several goroutines.
type GMR struct {
	dim   int
	comps []gaussian
	raw   []artifactComponent

	logw []float64
	h    []float64
	dlog []float64
	dx   []float64
}

func newGMR(dim int, raw []artifactComponent) (*GMR, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("gmr: invalid output dim %d", dim)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("gmr: no components")
	}

	g := &GMR{
		dim:   dim,
		comps: make([]gaussian, len(raw)),
		raw:   raw,
		logw:  make([]float64, len(raw)),
		h:     make([]float64, len(raw)),
		dlog:  make([]float64, len(raw)),
		dx:    make([]float64, len(raw)),
	}

	n := dim + 1
	for k, c := range raw {
		if !(c.Prior > 0) {
			return nil, fmt.Errorf("gmr: component %d: prior must be positive, got %g", k, c.Prior)
		}
		if len(c.Mean) != n {
			return nil, fmt.Errorf("gmr: component %d: mean has %d entries, want %d", k, len(c.Mean), n)
		}
		if len(c.Covariance) != n {
			return nil, fmt.Errorf("gmr: component %d: covariance has %d rows, want %d", k, len(c.Covariance), n)
		}

		for i, row := range c.Covariance {
			if len(row) != n {
				return nil, fmt.Errorf("gmr: component %d: covariance row %d has %d entries, want %d", k, i, len(row), n)
			}
		}

		full := mat.NewSymDense(n, nil)
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				a, b := c.Covariance[i][j], c.Covariance[j][i]
				if math.Abs(a-b) > 1e-9*math.Max(1, math.Abs(a)) {
					return nil, fmt.Errorf("gmr: component %d: covariance is not symmetric at (%d,%d)", k, i, j)
				}
				full.SetSym(i, j, a)
			}
		}
		var chol mat.Cholesky
		if ok := chol.Factorize(full); !ok {
			return nil, fmt.Errorf("gmr: component %d: covariance is not positive definite", k)
		}

		varIn := full.At(0, 0)
		gc := gaussian{
			logNorm: math.Log(c.Prior) - 0.5*math.Log(2*math.Pi*varIn),
			muIn:    c.Mean[0],
			varIn:   varIn,
			muOut:   make([]float64, dim),
			slope:   make([]float64, dim),
			condCov: mat.NewSymDense(dim, nil),
		}
		for i := 0; i < dim; i++ {
			gc.muOut[i] = c.Mean[i+1]
			gc.slope[i] = full.At(i+1, 0) / varIn
		}
		for i := 0; i < dim; i++ {
			for j := i; j < dim; j++ {
				gc.condCov.SetSym(i, j, full.At(i+1, j+1)-gc.slope[i]*gc.slope[j]*varIn)
			}
		}
		g.comps[k] = gc
	}
	return g, nil
}

func (g *GMR) Dim() int { return g.dim }

func (g *GMR) Components() int { return len(g.comps) }

func (g *GMR) Predict(phase float64, mean, deriv []float64, cov *mat.SymDense) {
	maxLog := math.Inf(-1)
	for k := range g.comps {
		c := &g.comps[k]
		d := phase - c.muIn
		g.dx[k] = d
		g.dlog[k] = -d / c.varIn
		g.logw[k] = c.logNorm - 0.5*d*d/c.varIn
		if g.logw[k] > maxLog {
			maxLog = g.logw[k]
		}
	}

	sum := 0.0
	for k := range g.comps {
		g.h[k] = math.Exp(g.logw[k] - maxLog)
		sum += g.h[k]
	}
	dbar := 0.0
	for k := range g.comps {
		g.h[k] /= sum
		dbar += g.h[k] * g.dlog[k]
	}

	for i := 0; i < g.dim; i++ {
		m, dm := 0.0, 0.0
		for k := range g.comps {
			c := &g.comps[k]
			local := c.muOut[i] + c.slope[i]*g.dx[k]
			m += g.h[k] * local
			dm += g.h[k]*(g.dlog[k]-dbar)*local + g.h[k]*c.slope[i]
		}
		mean[i] = m
		if deriv != nil {
			deriv[i] = dm
		}
	}

	if cov == nil {
		return
	}
	// Law of total covariance: mixture of the conditional covariances plus
	// the spread of the local means around the blended mean.
	for i := 0; i < g.dim; i++ {
		for j := i; j < g.dim; j++ {
			v := 0.0
			for k := range g.comps {
				c := &g.comps[k]
				li := c.muOut[i] + c.slope[i]*g.dx[k]
				lj := c.muOut[j] + c.slope[j]*g.dx[k]
				v += g.h[k] * (c.condCov.At(i, j) + li*lj)
			}
			cov.SetSym(i, j, v-mean[i]*mean[j])
		}
	}
}

// NewLinearGMR builds an artifact whose expected position moves on the
// straight line from→to as phase goes 0→1, with isotropic local variance.
// Useful for tests and for bootstrapping a mechanism without training data.
func NewLinearGMR(from, to []float64, n int, variance float64) (*GMR, error) {
	if len(from) != len(to) || len(from) == 0 {
		return nil, fmt.Errorf("%w: from has %d entries, to has %d", dynamo.ErrDimensionMismatch, len(from), len(to))
	}
	if n < 2 || variance <= 0 {
		return nil, fmt.Errorf("%w: components=%d variance=%g", dynamo.ErrParameterBounds, n, variance)
	}

	dim := len(from)
	spacing := 1 / float64(n-1)
	s := spacing * spacing
	slope := make([]float64, dim)
	for i := range slope {
		slope[i] = to[i] - from[i]
	}

	raw := make([]artifactComponent, n)
	for k := 0; k < n; k++ {
		c := float64(k) * spacing
		mean := make([]float64, dim+1)
		mean[0] = c
		for i := 0; i < dim; i++ {
			mean[i+1] = from[i] + slope[i]*c
		}

		cov := make([][]float64, dim+1)
		for i := range cov {
			cov[i] = make([]float64, dim+1)
		}
		cov[0][0] = s
		for i := 0; i < dim; i++ {
			cov[0][i+1] = s * slope[i]
			cov[i+1][0] = s * slope[i]
			for j := 0; j < dim; j++ {
				cov[i+1][j+1] = s * slope[i] * slope[j]
			}
			cov[i+1][i+1] += variance
		}
		raw[k] = artifactComponent{Prior: 1 / float64(n), Mean: mean, Covariance: cov}
	}
	return newGMR(dim, raw)
}
