// Package raster provides georeferenced float rasters for the DEM, the
// orthoimage, and the synthesized output images.
//
// A raster is a dense grid of float64 samples with a no-data sentinel. The
// georeference is a simple affine pixel<->map mapping (north-up, no rotation),
// which covers both projected rasters (map units are meters) and geographic
// rasters (map units are degrees, with ground scale derived from the datum).
package raster

import (
	"fmt"
	"math"

	"github.com/geosynth/satsim/internal/frames"
)

// Datum is the reference ellipsoid attached to a georeference. It aliases
// frames.Ellipsoid so the semi-axis constants have a single definition.
type Datum = frames.Ellipsoid

// WGS84 returns the WGS-84 ellipsoid.
func WGS84() Datum {
	return frames.WGS84()
}

// CRSKind distinguishes projected (meters) from geographic (degrees) rasters.
type CRSKind int

const (
	Projected CRSKind = iota
	Geographic
)

// GeoRef is an affine mapping between pixel and map coordinates.
// OriginX/OriginY is the map coordinate of the center of pixel (0,0).
// DY is negative for north-up rasters.
type GeoRef struct {
	OriginX, OriginY float64
	DX, DY           float64
	Kind             CRSKind
	Datum            Datum
}

// PixelToMap converts a (possibly fractional) pixel location to map coordinates.
func (g GeoRef) PixelToMap(col, row float64) (x, y float64) {
	return g.OriginX + col*g.DX, g.OriginY + row*g.DY
}

// MapToPixel converts map coordinates to a fractional pixel location.
func (g GeoRef) MapToPixel(x, y float64) (col, row float64) {
	return (x - g.OriginX) / g.DX, (y - g.OriginY) / g.DY
}

// GroundScale returns the ground size, in meters, of one pixel step in
// column and row at the given map y coordinate. For projected rasters this is
// just the cell size; for geographic rasters it depends on latitude.
func (g GeoRef) GroundScale(y float64) (sx, sy float64) {
	if g.Kind == Projected {
		return math.Abs(g.DX), math.Abs(g.DY)
	}
	lonM, latM := g.Datum.MetersPerDegree(y)
	return math.Abs(g.DX) * lonM, math.Abs(g.DY) * latM
}

// MetersToMapUnits converts a metric east/north offset to map units at the
// map y coordinate. Identity for projected rasters.
func (g GeoRef) MetersToMapUnits(eastM, northM, y float64) (dx, dy float64) {
	if g.Kind == Projected {
		return eastM, northM
	}
	lonM, latM := g.Datum.MetersPerDegree(y)
	return eastM / lonM, northM / latM
}

// Raster is a dense float64 sample grid with a no-data sentinel.
type Raster struct {
	Cols, Rows int
	NoData     float64
	data       []float64
}

// New creates a raster with every sample set to the no-data value.
func New(cols, rows int, noData float64) *Raster {
	r := &Raster{
		Cols:   cols,
		Rows:   rows,
		NoData: noData,
		data:   make([]float64, cols*rows),
	}
	for i := range r.data {
		r.data[i] = noData
	}
	return r
}

// At returns the sample at (col, row). Panics if out of bounds.
func (r *Raster) At(col, row int) float64 {
	return r.data[row*r.Cols+col]
}

// Set writes the sample at (col, row). Panics if out of bounds.
func (r *Raster) Set(col, row int, v float64) {
	r.data[row*r.Cols+col] = v
}

// InBounds reports whether the integer pixel is inside the grid.
func (r *Raster) InBounds(col, row int) bool {
	return col >= 0 && col < r.Cols && row >= 0 && row < r.Rows
}

// Valid reports whether the sample at (col, row) holds data.
func (r *Raster) Valid(col, row int) bool {
	return r.InBounds(col, row) && r.At(col, row) != r.NoData
}

// Sample bilinearly interpolates the raster at a fractional pixel location.
// Returns false if the location is outside the grid or any of the four
// neighbors is no-data.
func (r *Raster) Sample(col, row float64) (float64, bool) {
	c0 := int(math.Floor(col))
	r0 := int(math.Floor(row))
	c1 := c0 + 1
	r1 := r0 + 1

	// Allow sampling exactly on the last row/column.
	if c1 == r.Cols && col == float64(c0) {
		c1 = c0
	}
	if r1 == r.Rows && row == float64(r0) {
		r1 = r0
	}

	if c0 < 0 || r0 < 0 || c1 >= r.Cols || r1 >= r.Rows {
		return 0, false
	}
	if !r.Valid(c0, r0) || !r.Valid(c1, r0) || !r.Valid(c0, r1) || !r.Valid(c1, r1) {
		return 0, false
	}

	fc := col - float64(c0)
	fr := row - float64(r0)

	top := r.At(c0, r0)*(1-fc) + r.At(c1, r0)*fc
	bot := r.At(c0, r1)*(1-fc) + r.At(c1, r1)*fc
	return top*(1-fr) + bot*fr, true
}

// Range returns the minimum and maximum valid samples. ok is false when the
// raster holds no data at all.
func (r *Raster) Range() (min, max float64, ok bool) {
	for _, v := range r.data {
		if v == r.NoData {
			continue
		}
		if !ok || v < min {
			min = v
		}
		if !ok || v > max {
			max = v
		}
		ok = true
	}
	return min, max, ok
}

// Grid is a raster together with its georeference.
type Grid struct {
	GeoRef
	*Raster
}

// SampleMap bilinearly interpolates the grid at a map coordinate.
func (g *Grid) SampleMap(x, y float64) (float64, bool) {
	col, row := g.MapToPixel(x, y)
	return g.Sample(col, row)
}

// Bounds returns the map-coordinate extent of the grid (pixel centers).
func (g *Grid) Bounds() (minX, minY, maxX, maxY float64) {
	x0, y0 := g.PixelToMap(0, 0)
	x1, y1 := g.PixelToMap(float64(g.Cols-1), float64(g.Rows-1))
	return math.Min(x0, x1), math.Min(y0, y1), math.Max(x0, x1), math.Max(y0, y1)
}

func (g *Grid) String() string {
	return fmt.Sprintf("grid %dx%d origin (%g, %g) cell (%g, %g)",
		g.Cols, g.Rows, g.OriginX, g.OriginY, g.DX, g.DY)
}
