package synth

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/golang/geo/r2"

	"github.com/geosynth/satsim/internal/camera"
	"github.com/geosynth/satsim/internal/metrics"
	"github.com/geosynth/satsim/internal/raster"
)

// Options control image synthesis.
type Options struct {
	// HeightTol is the terrain intersection tolerance in meters.
	// Zero selects DefaultHeightTol.
	HeightTol float64
	// Workers is the number of render goroutines. Zero selects GOMAXPROCS.
	Workers int
	// OutputPrefix is prepended (with a dash) to every written file.
	OutputPrefix string
	// SavePreview also writes an 8-bit TIFF preview next to each image.
	SavePreview bool
}

// Stats summarizes one rendered image.
type Stats struct {
	Rendered     int
	MissedDEM    int
	OutsideOrtho int
}

// Synthesizer renders images for a set of cameras against one DEM and
// orthoimage pair.
type Synthesizer struct {
	dem   *raster.Grid
	ortho *raster.Grid
	ix    *Intersector
	opts  Options

	logger *slog.Logger
}

// New creates a synthesizer. The DEM supplies terrain heights and the
// orthoimage supplies ground texture; both keep their own georeference.
func New(dem, ortho *raster.Grid, opts Options, logger *slog.Logger) *Synthesizer {
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	return &Synthesizer{
		dem:    dem,
		ortho:  ortho,
		ix:     NewIntersector(dem, opts.HeightTol),
		opts:   opts,
		logger: logger,
	}
}

// rowJob is a unit of work for the render pool: one output image row.
type rowJob struct {
	row int
}

// rowResult carries the per-row sample counts back to the collector. Pixels
// are written into the shared output raster directly; rows never overlap.
type rowResult struct {
	stats Stats
	err   error
}

// RenderImage renders the full image for one camera. Every pixel is computed
// independently, so the output does not depend on the worker count.
func (s *Synthesizer) RenderImage(ctx context.Context, cam camera.Model) (*raster.Raster, Stats, error) {
	cols, rows := cam.ImageSize()
	if cols <= 0 || rows <= 0 {
		return nil, Stats{}, fmt.Errorf("camera reports empty image size %dx%d", cols, rows)
	}
	out := raster.New(cols, rows, s.ortho.NoData)

	jobs := make(chan rowJob, s.opts.Workers*2)
	results := make(chan rowResult, s.opts.Workers*2)

	var wg sync.WaitGroup
	for i := 0; i < s.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				result := s.renderRow(cam, out, job.row)
				select {
				case results <- result:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for row := 0; row < rows; row++ {
			select {
			case jobs <- rowJob{row: row}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var stats Stats
	var firstErr error
	for result := range results {
		if result.err != nil && firstErr == nil {
			firstErr = result.err
		}
		stats.Rendered += result.stats.Rendered
		stats.MissedDEM += result.stats.MissedDEM
		stats.OutsideOrtho += result.stats.OutsideOrtho
	}
	if firstErr != nil {
		return nil, Stats{}, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, Stats{}, err
	}
	return out, stats, nil
}

// renderRow casts one ray per pixel of a single row. Per-pixel failures
// (ray misses the terrain, ground point outside the orthoimage) leave the
// pixel at no-data and are only counted.
func (s *Synthesizer) renderRow(cam camera.Model, out *raster.Raster, row int) rowResult {
	var stats Stats
	for col := 0; col < out.Cols; col++ {
		pix := r2.Point{X: float64(col), Y: float64(row)}

		origin, err := cam.CameraCenter(pix)
		if err != nil {
			return rowResult{err: fmt.Errorf("camera center for pixel (%d, %d): %w", col, row, err)}
		}
		dir, err := cam.PixelToVector(pix)
		if err != nil {
			return rowResult{err: fmt.Errorf("ray for pixel (%d, %d): %w", col, row, err)}
		}

		ground, ok := s.ix.Intersect(origin, dir)
		if !ok {
			stats.MissedDEM++
			continue
		}

		v, ok := s.ortho.SampleMap(ground.X, ground.Y)
		if !ok {
			stats.OutsideOrtho++
			continue
		}
		out.Set(col, row, v)
		stats.Rendered++
	}
	return rowResult{stats: stats}
}

// RenderAll renders and writes one image per camera. A failure for one
// camera is logged and counted but does not stop the others; an error is
// returned only when no camera succeeds.
func (s *Synthesizer) RenderAll(ctx context.Context, names []string, cams []camera.Model) error {
	if len(names) != len(cams) {
		return fmt.Errorf("got %d camera names for %d cameras", len(names), len(cams))
	}

	var failed int
	for i, cam := range cams {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := time.Now()
		img, stats, err := s.RenderImage(ctx, cam)
		if err != nil {
			failed++
			metrics.RecordCameraFailure()
			s.logger.Error("image synthesis failed",
				"camera", names[i],
				"error", err,
			)
			continue
		}

		if err := s.writeImage(names[i], img); err != nil {
			failed++
			metrics.RecordCameraFailure()
			s.logger.Error("writing image failed",
				"camera", names[i],
				"error", err,
			)
			continue
		}

		elapsed := time.Since(start)
		metrics.RecordCamera(elapsed, stats.Rendered, stats.MissedDEM, stats.OutsideOrtho)
		s.logger.Info("image synthesized",
			"camera", names[i],
			"rendered", stats.Rendered,
			"missed_dem", stats.MissedDEM,
			"outside_ortho", stats.OutsideOrtho,
			"duration", elapsed,
		)
	}

	if failed == len(cams) && len(cams) > 0 {
		return fmt.Errorf("all %d cameras failed to synthesize", len(cams))
	}
	return nil
}

// writeImage stores the image as an ASCII grid, preserving no-data, and
// optionally an 8-bit TIFF preview. Synthesized images live in pixel space,
// so they are written with a unit georeference.
func (s *Synthesizer) writeImage(name string, img *raster.Raster) error {
	grid := &raster.Grid{
		GeoRef: raster.GeoRef{
			OriginX: 0,
			OriginY: float64(img.Rows - 1),
			DX:      1,
			DY:      -1,
			Kind:    raster.Projected,
		},
		Raster: img,
	}

	base := fmt.Sprintf("%s-%s", s.opts.OutputPrefix, name)
	if err := raster.WriteASCIIGridFile(base+".asc", grid); err != nil {
		return fmt.Errorf("writing %s.asc: %w", base, err)
	}
	if s.opts.SavePreview {
		if err := raster.WritePreviewTIFF(base+".tif", img); err != nil {
			return fmt.Errorf("writing %s.tif: %w", base, err)
		}
	}
	return nil
}
