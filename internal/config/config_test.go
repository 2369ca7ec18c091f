package config

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func fptr(v float64) *float64 { return &v }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// validOptions returns a minimal passing configuration for the
// first/last trajectory mode.
func validOptions() *Options {
	return &Options{
		DEM:           "dem.asc",
		Ortho:         "ortho.asc",
		OutputPrefix:  "run/out",
		ImageSize:     []int{100, 100},
		First:         []float64{0, 0, 500},
		Last:          []float64{50, 0, 500},
		Num:           3,
		FocalLength:   1000,
		OpticalCenter: []float64{50, 50},
	}
}

func TestValidateAccepts(t *testing.T) {
	if err := validOptions().Validate(discardLogger()); err != nil {
		t.Fatalf("valid options rejected: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"missing dem", func(o *Options) { o.DEM = "" }},
		{"missing ortho", func(o *Options) { o.Ortho = "" }},
		{"missing output prefix", func(o *Options) { o.OutputPrefix = "" }},
		{"missing image size", func(o *Options) { o.ImageSize = nil }},
		{"non-positive image size", func(o *Options) { o.ImageSize = []int{100, 0} }},
		{"missing last", func(o *Options) { o.Last = nil }},
		{"short first", func(o *Options) { o.First = []float64{0, 0} }},
		{"too few cameras", func(o *Options) { o.Num = 1 }},
		{"missing focal length", func(o *Options) { o.FocalLength = 0 }},
		{"missing optical center", func(o *Options) { o.OpticalCenter = nil }},
		{"roll alone", func(o *Options) { o.Roll = fptr(1) }},
		{"roll and pitch without yaw", func(o *Options) {
			o.Roll, o.Pitch = fptr(1), fptr(2)
		}},
		{"jitter frequency alone", func(o *Options) { o.JitterFrequency = fptr(5) }},
		{"jitter without velocity", func(o *Options) {
			o.JitterFrequency = fptr(5)
			o.HorizontalUncertainty = []float64{1, 1, 1}
		}},
		{"jitter without roll pitch yaw", func(o *Options) {
			o.JitterFrequency = fptr(5)
			o.Velocity = fptr(7000)
			o.HorizontalUncertainty = []float64{1, 1, 1}
		}},
		{"non-positive jitter frequency", func(o *Options) {
			o.Roll, o.Pitch, o.Yaw = fptr(0), fptr(0), fptr(0)
			o.JitterFrequency = fptr(0)
			o.Velocity = fptr(7000)
			o.HorizontalUncertainty = []float64{1, 1, 1}
		}},
		{"non-positive velocity", func(o *Options) {
			o.Roll, o.Pitch, o.Yaw = fptr(0), fptr(0), fptr(0)
			o.JitterFrequency = fptr(5)
			o.Velocity = fptr(-1)
			o.HorizontalUncertainty = []float64{1, 1, 1}
		}},
		{"negative uncertainty", func(o *Options) {
			o.Roll, o.Pitch, o.Yaw = fptr(0), fptr(0), fptr(0)
			o.JitterFrequency = fptr(5)
			o.Velocity = fptr(7000)
			o.HorizontalUncertainty = []float64{1, -1, 1}
		}},
		{"two uncertainty values", func(o *Options) {
			o.Roll, o.Pitch, o.Yaw = fptr(0), fptr(0), fptr(0)
			o.JitterFrequency = fptr(5)
			o.Velocity = fptr(7000)
			o.HorizontalUncertainty = []float64{1, 1}
		}},
		{"first ground pos alone", func(o *Options) {
			o.FirstGroundPos = []float64{10, 10}
		}},
		{"short ground pos", func(o *Options) {
			o.FirstGroundPos = []float64{10}
			o.LastGroundPos = []float64{20, 20}
		}},
		{"camera list with first and last", func(o *Options) { o.CameraList = "cams.txt" }},
		{"camera list with num", func(o *Options) {
			o.CameraList = "cams.txt"
			o.First, o.Last = nil, nil
		}},
		{"camera list with intrinsics", func(o *Options) {
			o.CameraList = "cams.txt"
			o.First, o.Last = nil, nil
			o.Num = 0
		}},
		{"camera list with no images", func(o *Options) {
			o.CameraList = "cams.txt"
			o.First, o.Last = nil, nil
			o.Num = 0
			o.FocalLength = 0
			o.OpticalCenter = nil
			o.NoImages = true
		}},
		{"camera list with roll pitch yaw", func(o *Options) {
			o.CameraList = "cams.txt"
			o.First, o.Last = nil, nil
			o.Num = 0
			o.FocalLength = 0
			o.OpticalCenter = nil
			o.Roll, o.Pitch, o.Yaw = fptr(0), fptr(0), fptr(0)
		}},
		{"tle with first and last", func(o *Options) {
			o.TLE = "iss.tle"
			o.OrbitStart = "2024-04-10T12:00:00Z"
			o.OrbitWindow = "2m"
		}},
		{"tle without start", func(o *Options) {
			o.TLE = "iss.tle"
			o.First, o.Last = nil, nil
			o.OrbitWindow = "2m"
		}},
		{"tle with ground positions", func(o *Options) {
			o.TLE = "iss.tle"
			o.First, o.Last = nil, nil
			o.OrbitStart = "2024-04-10T12:00:00Z"
			o.OrbitWindow = "2m"
			o.FirstGroundPos = []float64{10, 10}
			o.LastGroundPos = []float64{20, 20}
		}},
		{"tle with bad start", func(o *Options) {
			o.TLE = "iss.tle"
			o.First, o.Last = nil, nil
			o.OrbitStart = "yesterday"
			o.OrbitWindow = "2m"
		}},
		{"negative height tolerance", func(o *Options) { o.DEMHeightErrorTol = -1 }},
		{"unknown sensor type", func(o *Options) { o.SensorType = "pushbroom" }},
		{"negative workers", func(o *Options) { o.Workers = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := validOptions()
			tt.mutate(opts)
			err := opts.Validate(discardLogger())
			if err == nil {
				t.Fatal("expected an error")
			}
			var argErr *ArgumentError
			if !errors.As(err, &argErr) {
				t.Fatalf("error is %T, want *ArgumentError: %v", err, err)
			}
		})
	}
}

func TestValidateHeightMismatchWarns(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	opts := validOptions()
	opts.Last[2] = 600
	if err := opts.Validate(logger); err != nil {
		t.Fatalf("height mismatch should warn, not fail: %v", err)
	}
	if !strings.Contains(buf.String(), "heights differ") {
		t.Errorf("expected a warning about differing heights, got %q", buf.String())
	}
}

func TestValidateTLEMode(t *testing.T) {
	opts := validOptions()
	opts.First, opts.Last = nil, nil
	opts.TLE = "iss.tle"
	opts.Num = 4
	opts.OrbitStart = "2024-04-10T12:00:00Z"
	opts.OrbitWindow = "90s"
	if err := opts.Validate(discardLogger()); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	want := time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC)
	if !opts.OrbitStartTime().Equal(want) {
		t.Errorf("orbit start = %v, want %v", opts.OrbitStartTime(), want)
	}
	if opts.OrbitWindowDuration() != 90*time.Second {
		t.Errorf("orbit window = %v, want 90s", opts.OrbitWindowDuration())
	}
}

func TestLoadScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scene.yaml")
	scenario := `
dem: dem.asc
ortho: ortho.asc
output_prefix: run/out
image_size: [640, 480]
first: [0, 0, 500]
last: [100, 0, 500]
num: 5
focal_length: 1000
optical_center: [320, 240]
roll: 0
pitch: 0
yaw: 0
jitter_frequency: 5
velocity: 7000
horizontal_uncertainty: [2, 2, 2]
dem_height_error_tol: 0.001
save_preview: true
`
	if err := os.WriteFile(path, []byte(scenario), 0o644); err != nil {
		t.Fatal(err)
	}

	opts, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := opts.Validate(discardLogger()); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if opts.Num != 5 || opts.FocalLength != 1000 {
		t.Errorf("unexpected options: %+v", opts)
	}
	if !opts.HasJitter() {
		t.Error("jitter group should be detected as set")
	}
	if opts.ImageSize[0] != 640 || opts.ImageSize[1] != 480 {
		t.Errorf("image size = %v, want [640 480]", opts.ImageSize)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scene.yaml")
	if err := os.WriteFile(path, []byte("dem: dem.asc\nfocal_lenght: 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for an unknown key")
	}
}
