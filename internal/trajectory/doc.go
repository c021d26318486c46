// Package trajectory maps a mechanism's phase to its expected Cartesian
// state.
//
// A [Regressor] is the externally trained phase→position regression. The
// only artifact kind shipped here is a Gaussian mixture regression ([GMR])
// stored as YAML; [Model] wraps a regressor, caches the expected state at the
// current phase and answers distance and probability queries against it.
//
// # Artifact format
//
//	kind: gmr
//	dim: 3
//	components:
//	  - prior: 0.5
//	    mean: [phase, x, y, z]
//	    covariance:
//	      - [s_pp, s_px, s_py, s_pz]
//	      - ...
//
// # Degeneracy
//
// When the local covariance is not positive definite or its determinant
// underflows, [Model.Distance] returns [MaxDistance] and
// [Model.Probability] returns [MinProbability] instead of NaN.
package trajectory
