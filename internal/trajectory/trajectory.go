// Package trajectory computes the sequence of camera positions and
// camera-to-world orientations along a straight path over the DEM, with an
// optional deterministic jitter perturbation on the attitude.
package trajectory

import (
	"fmt"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/geosynth/satsim/internal/frames"
	"github.com/geosynth/satsim/internal/raster"
)

// DegenerateTrajectoryError reports a path whose tangent direction is
// undefined (first and last positions coincide).
type DegenerateTrajectoryError struct {
	First, Last r3.Vector
}

func (e *DegenerateTrajectoryError) Error() string {
	return fmt.Sprintf("trajectory: first and last positions coincide (%v, %v), tangent is undefined",
		e.First, e.Last)
}

// OrientationSpec selects how camera orientations are derived. Exactly one
// variant applies per run, resolved once before the trajectory is built.
type OrientationSpec interface {
	orientationSpec()
}

// FixedAngles orients every camera with the same roll/pitch/yaw (degrees)
// relative to the along-track/cross-track/down basis.
type FixedAngles struct {
	Roll, Pitch, Yaw float64
}

// GroundTargets points each camera's boresight at a ground footprint
// interpolated between the first and last targets (DEM pixel coordinates).
type GroundTargets struct {
	First, Last r2.Point
}

// Nadir points every camera straight down. The default when no orientation
// is requested.
type Nadir struct{}

func (FixedAngles) orientationSpec()   {}
func (GroundTargets) orientationSpec() {}
func (Nadir) orientationSpec()         {}

// Params configures trajectory generation. First and Last hold the DEM pixel
// column and row in X and Y and the height above the datum in Z.
type Params struct {
	First, Last r3.Vector
	Num         int
	Orient      OrientationSpec
	Jitter      *Jitter
}

// Entry is one camera's position (map-local frame: map x/y, height z) and
// camera-to-world rotation.
type Entry struct {
	Position  r3.Vector
	Cam2World *mat.Dense
}

// Compute generates p.Num entries uniformly spaced, in projected coordinates,
// along the segment from First to Last. Heights interpolate linearly between
// the endpoint heights.
func Compute(p Params, dem *raster.Grid) ([]Entry, error) {
	if p.Num < 2 {
		return nil, fmt.Errorf("trajectory: need at least 2 cameras, got %d", p.Num)
	}
	if p.Orient == nil {
		p.Orient = Nadir{}
	}

	fx, fy := dem.PixelToMap(p.First.X, p.First.Y)
	lx, ly := dem.PixelToMap(p.Last.X, p.Last.Y)
	first := r3.Vector{X: fx, Y: fy, Z: p.First.Z}
	last := r3.Vector{X: lx, Y: ly, Z: p.Last.Z}

	// Trajectory tangent in ground meters. For projected DEMs map units are
	// already meters; for geographic DEMs scale by the local degree size at
	// the path midpoint.
	tangent := metricDelta(dem.GeoRef, first, last)
	if tangent.X == 0 && tangent.Y == 0 && tangent.Z == 0 {
		return nil, &DegenerateTrajectoryError{First: p.First, Last: p.Last}
	}
	pathLen := tangent.Norm()

	var targets []r3.Vector
	if gt, ok := p.Orient.(GroundTargets); ok {
		var err error
		targets, err = interpolateTargets(gt, p.Num, dem)
		if err != nil {
			return nil, err
		}
	}

	entries := make([]Entry, p.Num)
	for i := 0; i < p.Num; i++ {
		a := float64(i) / float64(p.Num-1)
		pos := r3.Vector{
			X: first.X + a*(last.X-first.X),
			Y: first.Y + a*(last.Y-first.Y),
			Z: first.Z + a*(last.Z-first.Z),
		}

		var roll, pitch, yaw float64
		var along, cross, bore r3.Vector
		var err error
		switch spec := p.Orient.(type) {
		case FixedAngles:
			roll, pitch, yaw = spec.Roll, spec.Pitch, spec.Yaw
			along, cross, bore, err = frames.NadirBasis(tangent)
		case GroundTargets:
			along, cross, bore, err = frames.LookAtBasis(pos, targets[i], tangent)
		case Nadir:
			along, cross, bore, err = frames.NadirBasis(tangent)
		default:
			return nil, fmt.Errorf("trajectory: unknown orientation spec %T", p.Orient)
		}
		if err != nil {
			return nil, &DegenerateTrajectoryError{First: p.First, Last: p.Last}
		}

		if p.Jitter != nil {
			dr, dp, dy := p.Jitter.Angles(a*pathLen, pos.Z)
			roll += dr
			pitch += dp
			yaw += dy
		}

		basis := frames.FromColumns(along, cross, bore)
		rot := basis
		if roll != 0 || pitch != 0 || yaw != 0 {
			rot = frames.Mul(basis, frames.RollPitchYaw(roll, pitch, yaw))
		}
		entries[i] = Entry{Position: pos, Cam2World: rot}
	}
	return entries, nil
}

// interpolateTargets resolves the per-camera ground look-targets: map
// position interpolated between the endpoints, height sampled from the DEM.
func interpolateTargets(gt GroundTargets, num int, dem *raster.Grid) ([]r3.Vector, error) {
	fx, fy := dem.PixelToMap(gt.First.X, gt.First.Y)
	lx, ly := dem.PixelToMap(gt.Last.X, gt.Last.Y)

	targets := make([]r3.Vector, num)
	for i := 0; i < num; i++ {
		a := float64(i) / float64(num-1)
		x := fx + a*(lx-fx)
		y := fy + a*(ly-fy)
		h, ok := dem.SampleMap(x, y)
		if !ok {
			return nil, fmt.Errorf("trajectory: ground target %d at (%g, %g) has no DEM coverage", i, x, y)
		}
		targets[i] = r3.Vector{X: x, Y: y, Z: h}
	}
	return targets, nil
}

// metricDelta converts the map-space delta between two positions to ground
// meters.
func metricDelta(g raster.GeoRef, a, b r3.Vector) r3.Vector {
	d := b.Sub(a)
	if g.Kind == raster.Geographic {
		midY := (a.Y + b.Y) / 2
		lonM, latM := g.Datum.MetersPerDegree(midY)
		d.X *= lonM
		d.Y *= latM
	}
	return d
}
