package orbit

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/geosynth/satsim/internal/trajectory"
)

// Real ISS orbital elements; epoch 2024 but they propagate reasonably for
// nearby times.
const (
	issLine1 = "1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9005"
	issLine2 = "2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    09"
)

func issTLE() TLE {
	return TLE{Name: "ISS (ZARYA)", Line1: issLine1, Line2: issLine2}
}

func TestReadTLEFile(t *testing.T) {
	dir := t.TempDir()

	named := filepath.Join(dir, "named.tle")
	if err := os.WriteFile(named, []byte("ISS (ZARYA)\n"+issLine1+"\n"+issLine2+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := ReadTLEFile(named)
	if err != nil {
		t.Fatalf("ReadTLEFile: %v", err)
	}
	if got.Name != "ISS (ZARYA)" || got.Line1 != issLine1 || got.Line2 != issLine2 {
		t.Errorf("unexpected record: %+v", got)
	}

	bare := filepath.Join(dir, "bare.tle")
	if err := os.WriteFile(bare, []byte(issLine1+"\n"+issLine2+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err = ReadTLEFile(bare)
	if err != nil {
		t.Fatalf("ReadTLEFile without name line: %v", err)
	}
	if got.Name != "" || got.Line1 != issLine1 {
		t.Errorf("unexpected record: %+v", got)
	}

	junk := filepath.Join(dir, "junk.tle")
	if err := os.WriteFile(junk, []byte("not a tle\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadTLEFile(junk); err == nil {
		t.Error("expected an error for a malformed file")
	}
}

func TestPropagatorState(t *testing.T) {
	prop, err := NewPropagator(issTLE())
	if err != nil {
		t.Fatalf("NewPropagator: %v", err)
	}

	pos, vel, err := prop.StateTEME(time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("StateTEME: %v", err)
	}
	// ISS orbital radius is about 6791 km, speed about 7.7 km/s.
	if mag := pos.Norm(); mag < 6500 || mag > 7000 {
		t.Errorf("position magnitude = %.1f km, want ~6791", mag)
	}
	if speed := vel.Norm(); speed < 7 || speed > 8.5 {
		t.Errorf("speed = %.2f km/s, want ~7.7", speed)
	}
}

func TestPropagatorRejectsBadTLE(t *testing.T) {
	_, err := NewPropagator(TLE{Line1: "garbage", Line2: "garbage"})
	if err == nil {
		t.Fatal("expected an error for a malformed TLE")
	}
}

func TestComputeTrajectory(t *testing.T) {
	entries, err := Compute(Params{
		TLE:      issTLE(),
		Start:    time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC),
		Duration: 2 * time.Minute,
		Num:      5,
	})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("got %d entries, want 5", len(entries))
	}

	for i, e := range entries {
		lon, lat, alt := e.Position.X, e.Position.Y, e.Position.Z
		if lat < -52 || lat > 52 {
			t.Errorf("entry %d: latitude %.2f outside the ISS inclination band", i, lat)
		}
		if lon < -180 || lon > 180 {
			t.Errorf("entry %d: longitude %.2f out of range", i, lon)
		}
		if alt < 300e3 || alt > 500e3 {
			t.Errorf("entry %d: altitude %.0f m, want roughly 420 km", i, alt)
		}

		// Nadir orientation: the boresight column points down in the
		// local frame. The orbit is nearly circular so the ground-track
		// tangent is nearly horizontal.
		boreZ := e.Cam2World.At(2, 2)
		if math.Abs(boreZ-(-1)) > 1e-3 {
			t.Errorf("entry %d: boresight z = %v, want -1", i, boreZ)
		}
	}

	// Two minutes of ISS ground track covers several degrees.
	first, last := entries[0].Position, entries[4].Position
	if math.Abs(first.X-last.X) < 0.5 && math.Abs(first.Y-last.Y) < 0.5 {
		t.Errorf("trajectory barely moved: %v to %v", first, last)
	}
}

func TestComputeJitterPerturbsOrientation(t *testing.T) {
	params := Params{
		TLE:      issTLE(),
		Start:    time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC),
		Duration: 2 * time.Minute,
		Num:      4,
	}
	plain, err := Compute(params)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	params.Jitter = &trajectory.Jitter{
		Frequency:   5,
		Velocity:    7600,
		Uncertainty: [3]float64{2, 2, 2},
	}
	jittered, err := Compute(params)
	if err != nil {
		t.Fatalf("Compute with jitter: %v", err)
	}

	var moved bool
	for i := range plain {
		if plain[i].Position != jittered[i].Position {
			t.Fatalf("entry %d: jitter changed the position", i)
		}
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				if math.Abs(plain[i].Cam2World.At(r, c)-jittered[i].Cam2World.At(r, c)) > 1e-12 {
					moved = true
				}
			}
		}
	}
	if !moved {
		t.Error("jitter left every orientation unchanged")
	}
}

func TestComputeFixedAngles(t *testing.T) {
	base := Params{
		TLE:      issTLE(),
		Start:    time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC),
		Duration: time.Minute,
		Num:      3,
	}
	nadir, err := Compute(base)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	base.Orient = trajectory.FixedAngles{Pitch: 20}
	pitched, err := Compute(base)
	if err != nil {
		t.Fatalf("Compute with fixed angles: %v", err)
	}

	for i := range nadir {
		// A 20 degree pitch tilts the boresight that far off the nadir
		// boresight.
		dot := 0.0
		for r := 0; r < 3; r++ {
			dot += nadir[i].Cam2World.At(r, 2) * pitched[i].Cam2World.At(r, 2)
		}
		off := math.Acos(dot) * 180 / math.Pi
		if math.Abs(off-20) > 1e-6 {
			t.Errorf("entry %d: boresight off-nadir angle = %g, want 20", i, off)
		}
	}
}

func TestComputeRejectsGroundTargets(t *testing.T) {
	_, err := Compute(Params{
		TLE:      issTLE(),
		Start:    time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC),
		Duration: time.Minute,
		Num:      3,
		Orient:   trajectory.GroundTargets{},
	})
	if err == nil {
		t.Fatal("expected an error for ground targets with an orbit")
	}
}

func TestComputeValidation(t *testing.T) {
	base := Params{
		TLE:      issTLE(),
		Start:    time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC),
		Duration: time.Minute,
		Num:      3,
	}

	p := base
	p.Num = 1
	if _, err := Compute(p); err == nil {
		t.Error("expected an error for fewer than 2 cameras")
	}

	p = base
	p.Duration = 0
	if _, err := Compute(p); err == nil {
		t.Error("expected an error for a non-positive duration")
	}
}
