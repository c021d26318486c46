// Package operator simulates the human side of shared control.
//
// An [Operator] turns the robot state into the force the human applies on
// top of the guidance force:
//
//   - [None]: hands off, zero force
//   - [PID]: per-axis PID pull toward a goal point
//
// Operators keep their own integral and derivative memory and must be
// [Operator.Reset] between runs.
package operator
