// Package config holds the run options for the simulator, loadable from a
// YAML scenario file and/or command-line flags, and validates the mutual
// constraints between them before anything is loaded or rendered.
package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Sensor model kinds understood by the camera factory.
const (
	SensorPinhole = "pinhole"
	SensorFrame   = "frame-sensor"
)

// ArgumentError reports an invalid or inconsistent option combination.
// Configuration errors are fatal; nothing is loaded before they are resolved.
type ArgumentError struct {
	Reason string
}

func (e *ArgumentError) Error() string {
	return "invalid arguments: " + e.Reason
}

func argErrf(format string, args ...any) *ArgumentError {
	return &ArgumentError{Reason: fmt.Sprintf(format, args...)}
}

// Options are the full run options. Optional numeric settings whose presence
// matters are pointers so an explicit zero is distinguishable from unset.
type Options struct {
	DEM          string `yaml:"dem"`
	Ortho        string `yaml:"ortho"`
	OutputPrefix string `yaml:"output_prefix"`
	ImageSize    []int  `yaml:"image_size"`

	// Trajectory endpoints: DEM pixel column, row and height in meters.
	First []float64 `yaml:"first"`
	Last  []float64 `yaml:"last"`
	Num   int       `yaml:"num"`

	FocalLength   float64   `yaml:"focal_length"`
	OpticalCenter []float64 `yaml:"optical_center"`

	CameraList string `yaml:"camera_list"`

	FirstGroundPos []float64 `yaml:"first_ground_pos"`
	LastGroundPos  []float64 `yaml:"last_ground_pos"`

	Roll  *float64 `yaml:"roll"`
	Pitch *float64 `yaml:"pitch"`
	Yaw   *float64 `yaml:"yaw"`

	JitterFrequency       *float64  `yaml:"jitter_frequency"`
	Velocity              *float64  `yaml:"velocity"`
	HorizontalUncertainty []float64 `yaml:"horizontal_uncertainty"`

	TLE         string `yaml:"tle"`
	OrbitStart  string `yaml:"orbit_start"`
	OrbitWindow string `yaml:"orbit_window"`

	NoImages          bool    `yaml:"no_images"`
	SavePreview       bool    `yaml:"save_preview"`
	DEMHeightErrorTol float64 `yaml:"dem_height_error_tol"`
	SensorType        string  `yaml:"sensor_type"`

	Workers     int    `yaml:"workers"`
	MetricsAddr string `yaml:"metrics_addr"`

	orbitStart  time.Time
	orbitWindow time.Duration
}

// Load reads options from a YAML scenario file. Unknown keys are rejected so
// a typo does not silently fall back to a default.
func Load(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario file: %w", err)
	}
	var opts Options
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&opts); err != nil {
		return nil, fmt.Errorf("parsing scenario file %s: %w", path, err)
	}
	return &opts, nil
}

// Validate checks every option and every cross-option constraint. Returns an
// ArgumentError on the first violation. The logger carries non-fatal
// warnings.
func (o *Options) Validate(logger *slog.Logger) error {
	if o.DEM == "" {
		return argErrf("missing the input DEM")
	}
	if o.Ortho == "" {
		return argErrf("missing the input orthoimage")
	}
	if o.OutputPrefix == "" {
		return argErrf("missing the output prefix")
	}
	if len(o.ImageSize) != 2 || o.ImageSize[0] <= 0 || o.ImageSize[1] <= 0 {
		return argErrf("the image size must be two positive values")
	}

	rpySet := o.Roll != nil || o.Pitch != nil || o.Yaw != nil
	rpyFull := o.Roll != nil && o.Pitch != nil && o.Yaw != nil
	if rpySet && !rpyFull {
		return argErrf("roll, pitch and yaw must be set together")
	}

	jitterCount := 0
	if o.JitterFrequency != nil {
		jitterCount++
	}
	if o.Velocity != nil {
		jitterCount++
	}
	if o.HorizontalUncertainty != nil {
		jitterCount++
	}
	jitterSet := jitterCount == 3
	if jitterCount != 0 && !jitterSet {
		return argErrf("the jitter frequency, velocity and horizontal uncertainty must be set together")
	}
	if jitterSet {
		if !rpyFull {
			return argErrf("modeling jitter requires roll, pitch and yaw")
		}
		if *o.JitterFrequency <= 0 {
			return argErrf("the jitter frequency must be positive")
		}
		if *o.Velocity <= 0 {
			return argErrf("the velocity must be positive")
		}
		if len(o.HorizontalUncertainty) != 3 {
			return argErrf("the horizontal uncertainty must have three values (roll, pitch, yaw)")
		}
		for _, u := range o.HorizontalUncertainty {
			if u < 0 {
				return argErrf("the horizontal uncertainty must be non-negative")
			}
		}
	}

	groundFirst := o.FirstGroundPos != nil
	groundLast := o.LastGroundPos != nil
	if groundFirst != groundLast {
		return argErrf("the first and last ground positions must be set together")
	}
	if groundFirst && (len(o.FirstGroundPos) != 2 || len(o.LastGroundPos) != 2) {
		return argErrf("the ground positions must have two values (column, row)")
	}

	switch {
	case o.CameraList != "":
		if o.First != nil || o.Last != nil {
			return argErrf("with a camera list the first and last positions must not be set")
		}
		if o.Num != 0 {
			return argErrf("with a camera list the number of cameras must not be set")
		}
		if o.FocalLength != 0 || o.OpticalCenter != nil {
			return argErrf("with a camera list the focal length and optical center must not be set")
		}
		if o.NoImages {
			return argErrf("with a camera list producing images is the only job, so no_images must not be set")
		}
		if rpySet {
			return argErrf("with a camera list the roll, pitch and yaw must not be set")
		}
		if jitterSet {
			return argErrf("with a camera list jitter must not be modeled")
		}
		if o.TLE != "" {
			return argErrf("with a camera list a TLE must not be set")
		}

	case o.TLE != "":
		if o.First != nil || o.Last != nil {
			return argErrf("with a TLE the first and last positions must not be set")
		}
		if groundFirst {
			return argErrf("with a TLE the ground positions must not be set")
		}
		if err := o.validateIntrinsics(); err != nil {
			return err
		}
		if o.OrbitStart == "" || o.OrbitWindow == "" {
			return argErrf("a TLE requires the orbit start time and window")
		}
		start, err := time.Parse(time.RFC3339, o.OrbitStart)
		if err != nil {
			return argErrf("cannot parse the orbit start time %q: %v", o.OrbitStart, err)
		}
		window, err := time.ParseDuration(o.OrbitWindow)
		if err != nil {
			return argErrf("cannot parse the orbit window %q: %v", o.OrbitWindow, err)
		}
		if window <= 0 {
			return argErrf("the orbit window must be positive")
		}
		o.orbitStart = start
		o.orbitWindow = window

	default:
		if len(o.First) != 3 || len(o.Last) != 3 {
			return argErrf("the first and last positions must each have three values (column, row, height)")
		}
		if o.Num < 2 {
			return argErrf("the number of cameras must be at least 2")
		}
		if err := o.validateIntrinsics(); err != nil {
			return err
		}
		if o.First[2] != o.Last[2] {
			logger.Warn("the first and last camera heights differ; the height will be interpolated along the path",
				"first_height", o.First[2],
				"last_height", o.Last[2],
			)
		}
	}

	if o.DEMHeightErrorTol < 0 {
		return argErrf("the DEM height error tolerance must be non-negative")
	}
	switch o.SensorType {
	case "", SensorPinhole, SensorFrame:
	default:
		return argErrf("unknown sensor type %q", o.SensorType)
	}
	if o.Workers < 0 {
		return argErrf("the worker count must be non-negative")
	}
	return nil
}

func (o *Options) validateIntrinsics() error {
	if o.FocalLength <= 0 {
		return argErrf("the focal length must be positive")
	}
	if len(o.OpticalCenter) != 2 {
		return argErrf("the optical center must have two values")
	}
	return nil
}

// HasJitter reports whether the full jitter parameter group is present.
func (o *Options) HasJitter() bool {
	return o.JitterFrequency != nil && o.Velocity != nil && o.HorizontalUncertainty != nil
}

// OrbitStartTime returns the parsed orbit start; valid after Validate.
func (o *Options) OrbitStartTime() time.Time { return o.orbitStart }

// OrbitWindowDuration returns the parsed orbit window; valid after Validate.
func (o *Options) OrbitWindowDuration() time.Duration { return o.orbitWindow }
