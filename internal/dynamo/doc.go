// Package dynamo provides the shared primitives of the virtual mechanism
// stack.
//
// The package defines the vector and interface vocabulary used by every
// other package:
//
//   - [State]: dense vector of float64 (robot state, phase state)
//   - [System]: interface for ODE systems (dX/dt = f(X, u, t))
//   - [InPlaceSystem]: allocation-free variant used on the control path
//   - [Integrator]: numerical integrator interface
//   - [Metric] and [Observer]: hooks called once per control tick
//
// # Dimensions
//
// Cartesian quantities are always [PositionDim] long. Callers may pass a
// pose with an appended quaternion ([PoseDim]) and a wrench buffer
// ([WrenchDim]); only the translational part is used.
//
// # Errors
//
// Precondition failures are reported with the sentinel errors declared in
// errors.go. Functions on the real-time path return the bare sentinels so
// that reporting a failure never allocates.
package dynamo
