// Command satsim generates synthetic satellite cameras and images: it builds
// a camera trajectory over a DEM, optionally perturbs the attitude with a
// deterministic jitter model, and renders one image per camera by
// intersecting every pixel ray with the terrain and sampling an orthoimage.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"github.com/geosynth/satsim/internal/camera"
	"github.com/geosynth/satsim/internal/config"
	"github.com/geosynth/satsim/internal/frames"
	"github.com/geosynth/satsim/internal/metrics"
	"github.com/geosynth/satsim/internal/orbit"
	"github.com/geosynth/satsim/internal/raster"
	"github.com/geosynth/satsim/internal/synth"
	"github.com/geosynth/satsim/internal/trajectory"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	opts, err := parseFlags(args)
	if err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		logger.Error("cannot parse flags", "error", err)
		return 2
	}
	if err := opts.Validate(logger); err != nil {
		logger.Error("invalid configuration", "error", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if opts.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			logger.Info("serving metrics", "addr", opts.MetricsAddr)
			if err := http.ListenAndServe(opts.MetricsAddr, mux); err != nil {
				logger.Warn("metrics server stopped", "error", err)
			}
		}()
	}

	if err := runPipeline(ctx, opts, logger); err != nil {
		logger.Error("simulation failed", "error", err)
		return 1
	}
	logger.Info("simulation finished")
	return 0
}

func runPipeline(ctx context.Context, opts *config.Options, logger *slog.Logger) error {
	dem, err := raster.ReadASCIIGridFile(opts.DEM, raster.WGS84())
	if err != nil {
		return fmt.Errorf("loading DEM: %w", err)
	}
	ortho, err := raster.ReadASCIIGridFile(opts.Ortho, raster.WGS84())
	if err != nil {
		return fmt.Errorf("loading orthoimage: %w", err)
	}
	logger.Info("inputs loaded", "dem", dem.String(), "ortho", ortho.String())
	if !footprintsOverlap(dem, ortho) {
		logger.Warn("the DEM and orthoimage footprints do not overlap; every output pixel will be no-data")
	}

	names, models, err := buildCameras(opts, dem, logger)
	if err != nil {
		return err
	}

	if opts.CameraList == "" {
		if err := camera.SaveModels(opts.OutputPrefix, names, models); err != nil {
			return err
		}
		logger.Info("cameras written", "count", len(models), "prefix", opts.OutputPrefix)
	}

	if opts.NoImages {
		return nil
	}
	s := synth.New(dem, ortho, synth.Options{
		HeightTol:    opts.DEMHeightErrorTol,
		Workers:      opts.Workers,
		OutputPrefix: opts.OutputPrefix,
		SavePreview:  opts.SavePreview,
	}, logger)
	return s.RenderAll(ctx, names, models)
}

// footprintsOverlap reports whether two grids share any map-coordinate extent.
func footprintsOverlap(a, b *raster.Grid) bool {
	aMinX, aMinY, aMaxX, aMaxY := a.Bounds()
	bMinX, bMinY, bMaxX, bMaxY := b.Bounds()
	return aMinX <= bMaxX && bMinX <= aMaxX && aMinY <= bMaxY && bMinY <= aMaxY
}

// buildCameras resolves the camera source: an external list, an orbit derived
// from a TLE, or a straight path between the first and last positions.
func buildCameras(opts *config.Options, dem *raster.Grid, logger *slog.Logger) ([]string, []camera.Model, error) {
	if opts.CameraList != "" {
		names, models, err := camera.ReadCameraList(opts.CameraList)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("camera list loaded", "count", len(models))
		return names, models, nil
	}

	var entries []trajectory.Entry
	var err error
	if opts.TLE != "" {
		if dem.Kind != raster.Geographic {
			return nil, nil, fmt.Errorf("an orbit trajectory requires a geographic (longitude/latitude) DEM")
		}
		tle, err := orbit.ReadTLEFile(opts.TLE)
		if err != nil {
			return nil, nil, err
		}
		entries, err = orbit.Compute(orbit.Params{
			TLE:      tle,
			Start:    opts.OrbitStartTime(),
			Duration: opts.OrbitWindowDuration(),
			Num:      opts.Num,
			Orient:   orientation(opts),
			Jitter:   jitterModel(opts),
		})
		if err != nil {
			return nil, nil, err
		}
	} else {
		entries, err = trajectory.Compute(trajectory.Params{
			First:  r3.Vector{X: opts.First[0], Y: opts.First[1], Z: opts.First[2]},
			Last:   r3.Vector{X: opts.Last[0], Y: opts.Last[1], Z: opts.Last[2]},
			Num:    opts.Num,
			Orient: orientation(opts),
			Jitter: jitterModel(opts),
		}, dem)
		if err != nil {
			return nil, nil, err
		}
	}
	logger.Info("trajectory computed", "cameras", len(entries), "jitter", jitterModel(opts) != nil)

	kind := camera.KindPinhole
	if opts.SensorType == config.SensorFrame {
		kind = camera.KindFrameSensor
	}
	return camera.BuildModels(entries, camera.FactoryParams{
		Focal:     opts.FocalLength,
		CX:        opts.OpticalCenter[0],
		CY:        opts.OpticalCenter[1],
		Cols:      opts.ImageSize[0],
		Rows:      opts.ImageSize[1],
		Kind:      kind,
		Ellipsoid: frames.WGS84(),
	})
}

// orientation selects the attitude source, in priority order: nonzero fixed
// roll/pitch/yaw, then ground look-targets, then nadir. An all-zero
// roll/pitch/yaw only gates jitter and leaves the look-target or nadir
// orientation in charge.
func orientation(opts *config.Options) trajectory.OrientationSpec {
	if opts.Roll != nil && (*opts.Roll != 0 || *opts.Pitch != 0 || *opts.Yaw != 0) {
		return trajectory.FixedAngles{Roll: *opts.Roll, Pitch: *opts.Pitch, Yaw: *opts.Yaw}
	}
	if opts.FirstGroundPos != nil {
		return trajectory.GroundTargets{
			First: r2.Point{X: opts.FirstGroundPos[0], Y: opts.FirstGroundPos[1]},
			Last:  r2.Point{X: opts.LastGroundPos[0], Y: opts.LastGroundPos[1]},
		}
	}
	return trajectory.Nadir{}
}

func jitterModel(opts *config.Options) *trajectory.Jitter {
	if !opts.HasJitter() {
		return nil
	}
	return &trajectory.Jitter{
		Frequency: *opts.JitterFrequency,
		Velocity:  *opts.Velocity,
		Uncertainty: [3]float64{
			opts.HorizontalUncertainty[0],
			opts.HorizontalUncertainty[1],
			opts.HorizontalUncertainty[2],
		},
	}
}

// parseFlags reads the command line, optionally on top of a YAML scenario
// file. Flags given explicitly override scenario values.
func parseFlags(args []string) (*config.Options, error) {
	fs := flag.NewFlagSet("satsim", flag.ContinueOnError)

	scenario := fs.String("scenario", "", "YAML scenario file with run options")

	dem := fs.String("dem", "", "input DEM (ESRI ASCII grid)")
	ortho := fs.String("ortho", "", "input orthoimage (ESRI ASCII grid)")
	outputPrefix := fs.String("output-prefix", "", "prefix for all output files")
	imageSize := fs.String("image-size", "", "output image size as \"cols rows\"")

	first := fs.String("first", "", "first camera position as \"col row height\" (DEM pixels, meters)")
	last := fs.String("last", "", "last camera position as \"col row height\" (DEM pixels, meters)")
	num := fs.Int("num", 0, "number of cameras along the trajectory")
	focalLength := fs.Float64("focal-length", 0, "focal length in pixels")
	opticalCenter := fs.String("optical-center", "", "optical center as \"x y\" (pixels)")
	cameraList := fs.String("camera-list", "", "file with one camera path per line; renders these instead of building cameras")

	firstGround := fs.String("first-ground-pos", "", "ground footprint of the first camera as \"col row\" (DEM pixels)")
	lastGround := fs.String("last-ground-pos", "", "ground footprint of the last camera as \"col row\" (DEM pixels)")
	roll := fs.Float64("roll", 0, "camera roll in degrees")
	pitch := fs.Float64("pitch", 0, "camera pitch in degrees")
	yaw := fs.Float64("yaw", 0, "camera yaw in degrees")

	jitterFrequency := fs.Float64("jitter-frequency", 0, "jitter frequency in Hz")
	velocity := fs.Float64("velocity", 0, "platform velocity in m/s (for jitter)")
	horizontalUncertainty := fs.String("horizontal-uncertainty", "", "per-axis horizontal uncertainty as \"roll pitch yaw\" (meters)")

	tle := fs.String("tle", "", "two-line element file; derives the trajectory from an orbit")
	orbitStart := fs.String("orbit-start", "", "orbit sampling start time (RFC 3339)")
	orbitWindow := fs.String("orbit-window", "", "orbit sampling window (Go duration, e.g. 90s)")

	noImages := fs.Bool("no-images", false, "write only cameras, no images")
	savePreview := fs.Bool("save-preview", false, "also write an 8-bit TIFF preview per image")
	demHeightErrorTol := fs.Float64("dem-height-error-tol", 0, "terrain intersection tolerance in meters (default 0.001)")
	sensorType := fs.String("sensor-type", "", "camera model to produce: pinhole or frame-sensor")

	workers := fs.Int("workers", 0, "render worker count (default: all CPUs)")
	metricsAddr := fs.String("metrics-addr", "", "serve Prometheus metrics on this address while running")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	opts := &config.Options{}
	if *scenario != "" {
		loaded, err := config.Load(*scenario)
		if err != nil {
			return nil, err
		}
		opts = loaded
	}

	var parseErr error
	fs.Visit(func(f *flag.Flag) {
		if parseErr != nil {
			return
		}
		switch f.Name {
		case "scenario":
		case "dem":
			opts.DEM = *dem
		case "ortho":
			opts.Ortho = *ortho
		case "output-prefix":
			opts.OutputPrefix = *outputPrefix
		case "image-size":
			opts.ImageSize, parseErr = parseInts(f.Name, *imageSize, 2)
		case "first":
			opts.First, parseErr = parseFloats(f.Name, *first, 3)
		case "last":
			opts.Last, parseErr = parseFloats(f.Name, *last, 3)
		case "num":
			opts.Num = *num
		case "focal-length":
			opts.FocalLength = *focalLength
		case "optical-center":
			opts.OpticalCenter, parseErr = parseFloats(f.Name, *opticalCenter, 2)
		case "camera-list":
			opts.CameraList = *cameraList
		case "first-ground-pos":
			opts.FirstGroundPos, parseErr = parseFloats(f.Name, *firstGround, 2)
		case "last-ground-pos":
			opts.LastGroundPos, parseErr = parseFloats(f.Name, *lastGround, 2)
		case "roll":
			opts.Roll = roll
		case "pitch":
			opts.Pitch = pitch
		case "yaw":
			opts.Yaw = yaw
		case "jitter-frequency":
			opts.JitterFrequency = jitterFrequency
		case "velocity":
			opts.Velocity = velocity
		case "horizontal-uncertainty":
			opts.HorizontalUncertainty, parseErr = parseFloats(f.Name, *horizontalUncertainty, 3)
		case "tle":
			opts.TLE = *tle
		case "orbit-start":
			opts.OrbitStart = *orbitStart
		case "orbit-window":
			opts.OrbitWindow = *orbitWindow
		case "no-images":
			opts.NoImages = *noImages
		case "save-preview":
			opts.SavePreview = *savePreview
		case "dem-height-error-tol":
			opts.DEMHeightErrorTol = *demHeightErrorTol
		case "sensor-type":
			opts.SensorType = *sensorType
		case "workers":
			opts.Workers = *workers
		case "metrics-addr":
			opts.MetricsAddr = *metricsAddr
		}
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return opts, nil
}

func parseFloats(name, s string, n int) ([]float64, error) {
	fields := strings.Fields(s)
	if len(fields) != n {
		return nil, fmt.Errorf("flag -%s needs %d values, got %q", name, n, s)
	}
	out := make([]float64, n)
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("flag -%s: cannot parse %q: %w", name, f, err)
		}
		out[i] = v
	}
	return out, nil
}

func parseInts(name, s string, n int) ([]int, error) {
	fields := strings.Fields(s)
	if len(fields) != n {
		return nil, fmt.Errorf("flag -%s needs %d values, got %q", name, n, s)
	}
	out := make([]int, n)
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("flag -%s: cannot parse %q: %w", name, f, err)
		}
		out[i] = v
	}
	return out, nil
}
