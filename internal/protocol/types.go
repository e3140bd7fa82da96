package protocol

// Vec3 is a 3-component float vector, used for positions, directions, and
// rotations throughout the game-flow packet bodies.
type Vec3 struct {
	X, Y, Z float32
}
