package frames

import (
	"math"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	satellite "github.com/joshuaferrara/go-satellite"
	"gonum.org/v1/gonum/mat"
)

func timeUTC(y, m, d, h int) time.Time {
	return time.Date(y, time.Month(m), d, h, 0, 0, 0, time.UTC)
}

func vecClose(a, b r3.Vector, tol float64) bool {
	return a.Sub(b).Norm() <= tol
}

func TestNadirBasis(t *testing.T) {
	tests := []struct {
		name    string
		tangent r3.Vector
	}{
		{"east", r3.Vector{X: 1}},
		{"north", r3.Vector{Y: 1}},
		{"diagonal unnormalized", r3.Vector{X: 3, Y: 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			along, cross, down, err := NadirBasis(tt.tangent)
			if err != nil {
				t.Fatalf("NadirBasis: %v", err)
			}
			if !vecClose(down, Down, 1e-12) {
				t.Errorf("down = %v, want %v", down, Down)
			}
			if !vecClose(along, tt.tangent.Normalize(), 1e-12) {
				t.Errorf("along = %v, want normalized tangent", along)
			}
			// Right-handed unit-determinant triad.
			if !vecClose(along.Cross(cross), down, 1e-12) {
				t.Errorf("triad is not right-handed: along x cross = %v", along.Cross(cross))
			}
			rot := FromColumns(along, cross, down)
			if d := mat.Det(rot); math.Abs(d-1) > 1e-12 {
				t.Errorf("det = %.15f, want 1", d)
			}
		})
	}
}

func TestNadirBasisDegenerate(t *testing.T) {
	if _, _, _, err := NadirBasis(r3.Vector{}); err == nil {
		t.Fatal("expected error for zero tangent")
	}
	// A vertical tangent leaves the cross-track direction undefined.
	if _, _, _, err := NadirBasis(r3.Vector{Z: 1}); err == nil {
		t.Fatal("expected error for vertical tangent")
	}
}

func TestLookAtBasisMatchesNadirForStraightDown(t *testing.T) {
	pos := r3.Vector{X: 100, Y: 200, Z: 500}
	target := r3.Vector{X: 100, Y: 200, Z: 0}
	tangent := r3.Vector{X: 1}

	along, cross, bore, err := LookAtBasis(pos, target, tangent)
	if err != nil {
		t.Fatalf("LookAtBasis: %v", err)
	}
	na, nc, nd, _ := NadirBasis(tangent)
	if !vecClose(along, na, 1e-12) || !vecClose(cross, nc, 1e-12) || !vecClose(bore, nd, 1e-12) {
		t.Errorf("look-at straight down differs from nadir basis:\n got (%v, %v, %v)\nwant (%v, %v, %v)",
			along, cross, bore, na, nc, nd)
	}
}

func TestLookAtBasisBoresight(t *testing.T) {
	pos := r3.Vector{X: 0, Y: 0, Z: 500}
	target := r3.Vector{X: 300, Y: -100, Z: 0}
	along, cross, bore, err := LookAtBasis(pos, target, r3.Vector{X: 1})
	if err != nil {
		t.Fatalf("LookAtBasis: %v", err)
	}
	want := target.Sub(pos).Normalize()
	if !vecClose(bore, want, 1e-12) {
		t.Errorf("boresight = %v, want %v", bore, want)
	}
	if math.Abs(along.Dot(cross)) > 1e-12 || math.Abs(along.Dot(bore)) > 1e-12 || math.Abs(cross.Dot(bore)) > 1e-12 {
		t.Error("axes are not orthogonal")
	}
}

func TestRollPitchYawIdentity(t *testing.T) {
	rot := RollPitchYaw(0, 0, 0)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			if math.Abs(rot.At(i, j)-want) > 1e-15 {
				t.Fatalf("RollPitchYaw(0,0,0)[%d][%d] = %g", i, j, rot.At(i, j))
			}
		}
	}
}

func TestRollPitchYawRotatesBoresight(t *testing.T) {
	// A pure pitch tilts the boresight in the x-z plane of the camera frame.
	rot := RollPitchYaw(0, 10, 0)
	bore := Apply(rot, r3.Vector{Z: 1})
	wantAngle := 10 * math.Pi / 180
	got := math.Acos(bore.Z)
	if math.Abs(got-wantAngle) > 1e-12 {
		t.Errorf("pitch tilt = %g rad, want %g", got, wantAngle)
	}
	// A pure yaw leaves the boresight unchanged.
	rot = RollPitchYaw(0, 0, 35)
	bore = Apply(rot, r3.Vector{Z: 1})
	if !vecClose(bore, r3.Vector{Z: 1}, 1e-12) {
		t.Errorf("yaw moved the boresight: %v", bore)
	}
}

func TestQuatRoundTrip(t *testing.T) {
	tests := []struct {
		name             string
		roll, pitch, yaw float64
	}{
		{"identity", 0, 0, 0},
		{"small angles", 1.5, -2.25, 0.75},
		{"large yaw", 0, 0, 170},
		{"mixed", 45, -30, 120},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rot := RollPitchYaw(tt.roll, tt.pitch, tt.yaw)
			q := RotToQuat(rot)
			norm := math.Sqrt(q.W*q.W + q.X*q.X + q.Y*q.Y + q.Z*q.Z)
			if math.Abs(norm-1) > 1e-12 {
				t.Fatalf("quaternion norm = %.15f", norm)
			}
			back := QuatToRot(q)
			for i := 0; i < 3; i++ {
				for j := 0; j < 3; j++ {
					if math.Abs(rot.At(i, j)-back.At(i, j)) > 1e-12 {
						t.Fatalf("round trip differs at [%d][%d]: %g vs %g",
							i, j, rot.At(i, j), back.At(i, j))
					}
				}
			}
		})
	}
}

func TestGeodeticECEFRoundTrip(t *testing.T) {
	e := WGS84()

	tests := []struct {
		name          string
		lat, lon, alt float64
	}{
		{"equator prime meridian", 0, 0, 0},
		{"mid latitude", 37.4, -122.1, 450000},
		{"southern hemisphere", -33.9, 151.2, 500},
		{"high latitude", 78.2, 15.6, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := e.GeodeticToECEF(tt.lat, tt.lon, tt.alt)
			lat, lon, alt := e.ECEFToGeodetic(p)
			if math.Abs(lat-tt.lat) > 1e-9 || math.Abs(lon-tt.lon) > 1e-9 {
				t.Errorf("lat/lon round trip: (%g, %g) -> (%g, %g)", tt.lat, tt.lon, lat, lon)
			}
			if math.Abs(alt-tt.alt) > 1e-4 {
				t.Errorf("alt round trip: %g -> %g", tt.alt, alt)
			}
		})
	}
}

func TestMetersPerDegree(t *testing.T) {
	e := WGS84()

	tests := []struct {
		name      string
		latDeg    float64
		wantLon   float64 // meters, approximate
		wantLat   float64
		tolerance float64
	}{
		{"equator", 0, 111319.5, 110574.3, 5.0},
		{"mid latitude", 45, 78846.8, 111131.7, 5.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lonM, latM := e.MetersPerDegree(tt.latDeg)
			if math.Abs(lonM-tt.wantLon) > tt.tolerance {
				t.Errorf("lon meters/deg = %.1f, want %.1f", lonM, tt.wantLon)
			}
			if math.Abs(latM-tt.wantLat) > tt.tolerance {
				t.Errorf("lat meters/deg = %.1f, want %.1f", latM, tt.wantLat)
			}
		})
	}
}

func TestJulianDate(t *testing.T) {
	tests := []struct {
		name     string
		y, m, d  int
		h        int
		expected float64
	}{
		{"J2000.0 epoch", 2000, 1, 1, 12, 2451545.0},
		{"Unix epoch", 1970, 1, 1, 0, 2440587.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := JulianDate(timeUTC(tt.y, tt.m, tt.d, tt.h))
			if math.Abs(got-tt.expected) > 1e-6 {
				t.Errorf("JulianDate = %.10f, want %.10f", got, tt.expected)
			}
		})
	}
}

// TestGMST validates the GMST calculation against the go-satellite library's
// GSTimeFromDate function, which uses the same IAU-82 model.
func TestGMST(t *testing.T) {
	tests := []struct {
		name string
		time time.Time
	}{
		{"J2000.0 epoch", time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC)},
		{"Vallado example date", time.Date(2004, 4, 6, 7, 51, 28, 0, time.UTC)},
		{"recent date", time.Date(2026, 8, 30, 4, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			our := GMST(tt.time)
			ref := satellite.GSTimeFromDate(
				tt.time.Year(), int(tt.time.Month()), tt.time.Day(),
				tt.time.Hour(), tt.time.Minute(), tt.time.Second(),
			)
			if diff := math.Abs(our - ref); diff > 1e-8 {
				t.Errorf("GMST(%v) = %.12f rad, go-satellite = %.12f rad (diff=%.2e)",
					tt.time, our, ref, diff)
			}
		})
	}
}

func TestTEMEToECEFEquatorial(t *testing.T) {
	// A point on the TEME x axis lands at longitude -GMST (mod 360) in ECEF.
	when := time.Date(2026, 2, 6, 12, 0, 0, 0, time.UTC)
	teme := r3.Vector{X: 6778.0}
	ecef := TEMEToECEF(teme, when)

	if got := ecef.Norm(); math.Abs(got-6778000.0) > 1e-3 {
		t.Errorf("rotation changed the radius: %g", got)
	}
	wantLon := -GMST(when)
	gotLon := math.Atan2(ecef.Y, ecef.X)
	diff := math.Mod(gotLon-wantLon, 2*math.Pi)
	if diff > math.Pi {
		diff -= 2 * math.Pi
	}
	if diff < -math.Pi {
		diff += 2 * math.Pi
	}
	if math.Abs(diff) > 1e-10 {
		t.Errorf("longitude = %g rad, want %g", gotLon, wantLon)
	}
}
