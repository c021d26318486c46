package trajectory

import (
	"math"

	"github.com/san-kum/vmech/internal/dynamo"
	"gonum.org/v1/gonum/lapack/lapack64"
	"gonum.org/v1/gonum/mat"
)

const (
	MaxDistance    = 1e300
	MinProbability = 1e-300
)

// minLogDet is the log-determinant below which the covariance is treated as
// singular.
var minLogDet = math.Log(1e-300)

// Model caches the regressor output at one phase. Queries are evaluated at
// that phase; the inverse covariance is refreshed lazily after the phase
// changes. A Model is not safe for concurrent use.
type Model struct {
	reg Regressor
	dim int

	phase float64
	ready bool
	mean  []float64
	deriv []float64
	cov   *mat.SymDense

	covInv     *mat.SymDense
	invStale   bool
	degenerate bool
	weighted   bool

	errBuf []float64
	errVec *mat.VecDense
}

func NewModel(reg Regressor) *Model {
	dim := reg.Dim()
	errBuf := make([]float64, dim)
	m := &Model{
		reg:    reg,
		dim:    dim,
		mean:   make([]float64, dim),
		deriv:  make([]float64, dim),
		cov:    mat.NewSymDense(dim, nil),
		covInv: mat.NewSymDense(dim, nil),
		errBuf: errBuf,
		errVec: mat.NewVecDense(dim, errBuf),
	}
	m.SetPhase(0)
	return m
}

func (m *Model) Dim() int       { return m.dim }
func (m *Model) Phase() float64 { return m.phase }

func (m *Model) SetWeightedDistance(on bool) { m.weighted = on }
func (m *Model) WeightedDistance() bool      { return m.weighted }

// SetPhase moves the cached kernel to phase. It is a no-op when the phase
// is unchanged.
func (m *Model) SetPhase(phase float64) {
	if m.ready && phase == m.phase {
		return
	}
	m.reg.Predict(phase, m.mean, m.deriv, m.cov)
	m.phase = phase
	m.ready = true
	m.invStale = true
}

// ComputeStateGivenPhase evaluates the regression at an arbitrary phase
// without touching the cached kernel. deriv may be nil.
func (m *Model) ComputeStateGivenPhase(phase float64, pos, deriv []float64) {
	m.reg.Predict(phase, pos, deriv, nil)
}

// Position copies the expected position at the cached phase into out.
func (m *Model) Position(out []float64) { copy(out, m.mean) }

// Jacobian copies d(position)/d(phase) at the cached phase into out.
func (m *Model) Jacobian(out []float64) { copy(out, m.deriv) }

func (m *Model) updateInvCov() {
	if !m.invStale {
		return
	}
	m.invStale = false
	m.degenerate = true

	// Factorize and invert in place in covInv's storage; the lapack
	// kernels work on the upper triangle without scratch for these sizes.
	m.covInv.CopySym(m.cov)
	raw := m.covInv.RawSymmetric()
	t, ok := lapack64.Potrf(raw)
	if !ok {
		return
	}
	logDet := 0.0
	for i := 0; i < t.N; i++ {
		logDet += 2 * math.Log(t.Data[i*t.Stride+i])
	}
	if math.IsNaN(logDet) || logDet < minLogDet {
		return
	}
	if _, ok := lapack64.Potri(t); !ok {
		return
	}
	m.degenerate = false
}

func (m *Model) residual(pos []float64) {
	for i := 0; i < m.dim; i++ {
		m.errBuf[i] = pos[i] - m.mean[i]
	}
}

func (m *Model) mahalanobis2() float64 {
	d2 := mat.Inner(m.errVec, m.covInv, m.errVec)
	if d2 < 0 {
		d2 = 0
	}
	return d2
}

// Distance is the Mahalanobis distance of pos from the expected position in
// weighted mode, the Euclidean distance otherwise. pos must hold at least
// Dim() entries.
func (m *Model) Distance(pos []float64) float64 {
	m.residual(pos)
	if !m.weighted {
		return math.Sqrt(dynamo.Dot(m.errBuf, m.errBuf))
	}
	m.updateInvCov()
	if m.degenerate {
		return MaxDistance
	}
	d := math.Sqrt(m.mahalanobis2())
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return MaxDistance
	}
	return d
}

// Probability is the Gaussian kernel of the local covariance evaluated at
// pos, normalised by its peak so the result lies in (0,1].
func (m *Model) Probability(pos []float64) float64 {
	m.residual(pos)
	m.updateInvCov()
	if m.degenerate {
		return MinProbability
	}
	p := math.Exp(-0.5 * m.mahalanobis2())
	if math.IsNaN(p) || p < MinProbability {
		return MinProbability
	}
	return p
}

// LocalKernel copies the expected position and the per-axis variance at the
// cached phase.
func (m *Model) LocalKernel(mean, variance []float64) error {
	if len(mean) != m.dim || len(variance) != m.dim {
		return dynamo.ErrDimensionMismatch
	}
	copy(mean, m.mean)
	for i := 0; i < m.dim; i++ {
		variance[i] = m.cov.At(i, i)
	}
	return nil
}
