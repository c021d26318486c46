// Package plant models the robot end-effector driven by the guidance force.
//
// [PointMass] is a damped 3-D mass. Its state is [x y z vx vy vz] and its
// control is the Cartesian force [fx fy fz]. It implements both
// [dynamo.System] and [dynamo.InPlaceSystem], so it can be stepped by any
// integrator in the integrators package:
//
//	robot := plant.NewPointMass(1, 2)
//	x = rk4.Step(robot, x, force, t, dt)
package plant
