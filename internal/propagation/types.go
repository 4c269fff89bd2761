package propagation

import "time"

// Keyframe holds the positions of all bodies at a single point in time.
type Keyframe struct {
	Timestamp time.Time
	JD        float64
	Bodies    []BodyPosition
}

// BodyPosition holds a single body's heliocentric position at a keyframe time.
type BodyPosition struct {
	ID       string
	Position [3]float64 // AU (X, Y, Z in the heliocentric ecliptic frame)
}

// PropConfig holds propagation configuration loaded from environment variables.
type PropConfig struct {
	Workers int           // Worker pool size (default: runtime.NumCPU())
	Step    time.Duration // Keyframe interval (default: 1h)
	Horizon time.Duration // Propagation horizon (default: 72h)
}
