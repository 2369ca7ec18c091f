// Package orbit derives camera trajectories from a two-line element set
// instead of explicit first/last positions. Positions come from SGP4
// propagation, rotated into ECEF and converted to geodetic coordinates, so
// this mode requires a geographic (longitude/latitude) DEM.
package orbit

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/golang/geo/r3"
	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/geosynth/satsim/internal/frames"
	"github.com/geosynth/satsim/internal/trajectory"
)

// earthRotationRate is the WGS84 rotation rate in rad/s, used to convert
// inertial velocity to ground-relative velocity.
const earthRotationRate = 7.2921159e-5

// TLE is one two-line element record.
type TLE struct {
	Name  string
	Line1 string
	Line2 string
}

// ReadTLEFile reads the first TLE record from a file. Records may carry an
// optional name line before the two element lines.
func ReadTLEFile(path string) (TLE, error) {
	f, err := os.Open(path)
	if err != nil {
		return TLE{}, fmt.Errorf("opening TLE file: %w", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r\n ")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) == 3 {
			break
		}
	}
	if err := sc.Err(); err != nil {
		return TLE{}, fmt.Errorf("reading TLE file: %w", err)
	}

	var tle TLE
	switch {
	case len(lines) >= 2 && strings.HasPrefix(lines[0], "1 "):
		tle = TLE{Line1: lines[0], Line2: lines[1]}
	case len(lines) >= 3:
		tle = TLE{Name: strings.TrimSpace(lines[0]), Line1: lines[1], Line2: lines[2]}
	default:
		return TLE{}, fmt.Errorf("TLE file %s holds no complete record", path)
	}
	if err := validateTLE(tle); err != nil {
		return TLE{}, fmt.Errorf("invalid TLE in %s: %w", path, err)
	}
	return tle, nil
}

// validateTLE checks basic line format before handing the record to the SGP4
// library, which aborts the process on malformed input.
func validateTLE(t TLE) error {
	if len(t.Line1) != 69 {
		return fmt.Errorf("line1 length %d, expected 69", len(t.Line1))
	}
	if len(t.Line2) != 69 {
		return fmt.Errorf("line2 length %d, expected 69", len(t.Line2))
	}
	if t.Line1[0] != '1' {
		return fmt.Errorf("line1 must start with '1', got %q", t.Line1[0])
	}
	if t.Line2[0] != '2' {
		return fmt.Errorf("line2 must start with '2', got %q", t.Line2[0])
	}
	return nil
}

// Propagator wraps an initialized SGP4 model for one satellite.
type Propagator struct {
	sat satellite.Satellite
}

// NewPropagator initializes the SGP4 model from a TLE.
func NewPropagator(t TLE) (*Propagator, error) {
	if err := validateTLE(t); err != nil {
		return nil, err
	}
	sat := satellite.TLEToSat(t.Line1, t.Line2, satellite.GravityWGS84)
	if sat.Error != 0 {
		return nil, fmt.Errorf("sgp4 init failed: code=%d %s", sat.Error, sat.ErrorStr)
	}
	return &Propagator{sat: sat}, nil
}

// StateTEME propagates to the given time and returns position and velocity in
// the TEME frame (km, km/s). Propagation failures surface as NaN output from
// the library, so the result is checked rather than an error code.
func (p *Propagator) StateTEME(t time.Time) (pos, vel r3.Vector, err error) {
	t = t.UTC()
	gpos, gvel := satellite.Propagate(p.sat, t.Year(), int(t.Month()), t.Day(),
		t.Hour(), t.Minute(), t.Second())

	pos = r3.Vector{X: gpos.X, Y: gpos.Y, Z: gpos.Z}
	vel = r3.Vector{X: gvel.X, Y: gvel.Y, Z: gvel.Z}

	if !finite(pos) || !finite(vel) {
		return r3.Vector{}, r3.Vector{}, fmt.Errorf("sgp4 propagation at %s produced NaN/Inf", t.Format(time.RFC3339))
	}
	mag := pos.Norm()
	if mag < 6200 || mag > 50000 {
		return r3.Vector{}, r3.Vector{}, fmt.Errorf("sgp4 propagation at %s gave unreasonable radius %.1f km", t.Format(time.RFC3339), mag)
	}
	return pos, vel, nil
}

func finite(v r3.Vector) bool {
	return !math.IsNaN(v.X) && !math.IsInf(v.X, 0) &&
		!math.IsNaN(v.Y) && !math.IsInf(v.Y, 0) &&
		!math.IsNaN(v.Z) && !math.IsInf(v.Z, 0)
}

// Params configures an orbit-derived trajectory.
type Params struct {
	TLE      TLE
	Start    time.Time
	Duration time.Duration
	Num      int
	Orient   trajectory.OrientationSpec
	Jitter   *trajectory.Jitter
}

// Compute samples Num camera states uniformly over [Start, Start+Duration].
// Positions are geodetic (x longitude deg, y latitude deg, z height m above
// the ellipsoid). Orientations are derived in the local east/north/up frame
// with the camera x axis along the ground track: nadir by default, or with
// fixed roll/pitch/yaw applied to that basis, optionally perturbed by jitter.
// Ground look-targets need a straight-path trajectory and are rejected here.
func Compute(p Params) ([]trajectory.Entry, error) {
	if p.Num < 2 {
		return nil, fmt.Errorf("orbit: need at least 2 cameras, got %d", p.Num)
	}
	if p.Duration <= 0 {
		return nil, fmt.Errorf("orbit: duration must be positive, got %s", p.Duration)
	}

	var baseRoll, basePitch, baseYaw float64
	switch spec := p.Orient.(type) {
	case nil, trajectory.Nadir:
	case trajectory.FixedAngles:
		baseRoll, basePitch, baseYaw = spec.Roll, spec.Pitch, spec.Yaw
	case trajectory.GroundTargets:
		return nil, fmt.Errorf("orbit: ground look-targets cannot be combined with an orbit trajectory")
	default:
		return nil, fmt.Errorf("orbit: unknown orientation spec %T", p.Orient)
	}

	prop, err := NewPropagator(p.TLE)
	if err != nil {
		return nil, fmt.Errorf("orbit: %w", err)
	}
	ell := frames.WGS84()

	entries := make([]trajectory.Entry, p.Num)
	var pathDist float64
	var prevECEF r3.Vector
	for i := 0; i < p.Num; i++ {
		a := float64(i) / float64(p.Num-1)
		t := p.Start.Add(time.Duration(a * float64(p.Duration)))

		temePos, temeVel, err := prop.StateTEME(t)
		if err != nil {
			return nil, fmt.Errorf("orbit: camera %d: %w", i, err)
		}
		ecef := frames.TEMEToECEF(temePos, t)
		// Same rotation applies to velocity, minus the Earth rotation
		// term to get a ground-relative direction.
		velECEF := frames.TEMEToECEF(temeVel, t)
		velECEF.X += earthRotationRate * ecef.Y
		velECEF.Y -= earthRotationRate * ecef.X

		lat, lon, alt := ell.ECEFToGeodetic(ecef)
		tangent := enuVector(velECEF, lat, lon)
		if tangent.Norm() == 0 {
			return nil, fmt.Errorf("orbit: camera %d has zero ground velocity", i)
		}

		along, cross, bore, err := frames.NadirBasis(tangent)
		if err != nil {
			return nil, fmt.Errorf("orbit: camera %d: %w", i, err)
		}

		if i > 0 {
			pathDist += ecef.Sub(prevECEF).Norm()
		}
		prevECEF = ecef

		roll, pitch, yaw := baseRoll, basePitch, baseYaw
		if p.Jitter != nil {
			dr, dp, dy := p.Jitter.Angles(pathDist, alt)
			roll += dr
			pitch += dp
			yaw += dy
		}

		rot := frames.FromColumns(along, cross, bore)
		if roll != 0 || pitch != 0 || yaw != 0 {
			rot = frames.Mul(rot, frames.RollPitchYaw(roll, pitch, yaw))
		}
		entries[i] = trajectory.Entry{
			Position:  r3.Vector{X: lon, Y: lat, Z: alt},
			Cam2World: rot,
		}
	}
	return entries, nil
}

// enuVector rotates an ECEF vector into the local east/north/up frame at the
// given geodetic location.
func enuVector(v r3.Vector, latDeg, lonDeg float64) r3.Vector {
	lat := latDeg * math.Pi / 180
	lon := lonDeg * math.Pi / 180
	sinLat, cosLat := math.Sincos(lat)
	sinLon, cosLon := math.Sincos(lon)
	return r3.Vector{
		X: -sinLon*v.X + cosLon*v.Y,
		Y: -sinLat*cosLon*v.X - sinLat*sinLon*v.Y + cosLat*v.Z,
		Z: cosLat*cosLon*v.X + cosLat*sinLon*v.Y + sinLat*v.Z,
	}
}
