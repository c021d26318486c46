// Package viz renders a running closed loop in the terminal.
//
// The live view steps a [sim.Simulator] on a Bubble Tea ticker and shows,
// per mechanism, a phase bar, the fade level and the arbitration weight,
// next to a top-down braille plot of the robot trail and the expected
// positions.
//
// # Key Bindings
//
//	p, Space - Pause/Resume
//	m        - Toggle hard/soft arbitration
//	a        - Toggle activation of every mechanism
//	r        - Put the robot back at its start
//	q        - Quit
package viz
