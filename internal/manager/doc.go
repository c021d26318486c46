/*
Package manager arbitrates a pool of virtual mechanisms.

Every tick the manager measures the robot position against each mechanism,
turns the measurements into weights and sums the weighted guidance forces.

# Arbitration

Hard mode selects the single mechanism closest to the robot; equal distances
resolve to the lowest index. Soft mode weights each mechanism by its share of
the summed probabilities and falls back to uniform weights when every
probability has vanished.

Mechanisms with zero weight are not updated: their phase is held until they
are selected again.

# Indices

DeleteVM compacts the pool. The mechanism previously at index i+1 is found at
i afterwards.

# Real-time contract

Update, UpdateArray and the getters do not allocate, log or block once the
pool is built. A Manager is not safe for concurrent use.
*/
package manager
