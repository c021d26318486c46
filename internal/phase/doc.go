// Package phase integrates the progress variable of a virtual mechanism.
//
// A mechanism's phase lives in [0,1] and is driven by the generalized torque
// obtained by projecting the Cartesian tracking force onto the trajectory
// tangent. Two strategies are available, selected with [Order]:
//
//   - [FirstOrder]: admittance law integrated with explicit Euler
//   - [SecondOrder]: mass-damper law on (phase, phase-dot) integrated with RK4
//
// Both blend the human-driven term with an attractor toward the target bound
// through a fade governor that ramps up while the mechanism is active.
//
// # Saturation
//
// First order saturation clamps only the phase; second order saturation also
// zeroes the phase velocity. The asymmetry is deliberate and pinned by tests.
//
// # Real-time contract
//
// Advance and Saturate never allocate, block or fail. Inputs are validated by
// the caller before the call.
package phase
