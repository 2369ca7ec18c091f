package trajectory

import "math"

// Jitter models platform vibration as a smooth oscillation of the camera
// attitude. The amplitude for each axis comes from the horizontal ground
// uncertainty at nadir: tan(amplitude) = uncertainty / elevation.
type Jitter struct {
	Frequency   float64    // Hz
	Velocity    float64    // platform speed, m/s
	Uncertainty [3]float64 // ground meters, for roll, pitch, yaw
}

// Fixed phase offsets per axis so the three oscillations do not move in
// lockstep. Constants, not randomized: identical inputs reproduce identical
// output.
var jitterPhases = [3]float64{0, 2 * math.Pi / 3, 4 * math.Pi / 3}

// Angles returns the roll, pitch, and yaw perturbations in degrees for a
// camera that has traveled the given distance (meters) along the path and
// sits at the given elevation above the datum. The magnitude of each
// perturbation never exceeds atan(uncertainty/elevation).
func (j *Jitter) Angles(distance, elevation float64) (roll, pitch, yaw float64) {
	t := distance / j.Velocity
	phase := 2 * math.Pi * j.Frequency * t

	var out [3]float64
	for axis := 0; axis < 3; axis++ {
		amp := math.Atan(j.Uncertainty[axis]/elevation) * 180 / math.Pi
		out[axis] = amp * math.Sin(phase+jitterPhases[axis])
	}
	return out[0], out[1], out[2]
}
