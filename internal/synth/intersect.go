// Package synth renders synthetic camera images by casting a ray through
// every pixel, intersecting it with a terrain model and sampling an
// orthoimage at the ground point.
package synth

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/geosynth/satsim/internal/raster"
)

// DefaultHeightTol is the terrain height error, in meters, at which the ray
// solver stops refining an intersection.
const DefaultHeightTol = 0.001

const maxBisect = 64

// Intersector casts rays against a DEM. Positions are map coordinates with z
// as height above the datum; directions are unit vectors in the local metric
// frame (x east, y north, z up).
type Intersector struct {
	dem       *raster.Grid
	heightTol float64

	stepM    float64
	maxDistM float64
	minH     float64
	maxH     float64
}

// NewIntersector prepares a solver for the given DEM. heightTol <= 0 selects
// DefaultHeightTol.
func NewIntersector(dem *raster.Grid, heightTol float64) *Intersector {
	if heightTol <= 0 {
		heightTol = DefaultHeightTol
	}

	_, midY := dem.PixelToMap(float64(dem.Cols)/2, float64(dem.Rows)/2)
	sx, sy := dem.GroundScale(midY)
	step := math.Min(sx, sy)
	diag := math.Hypot(sx*float64(dem.Cols), sy*float64(dem.Rows))

	minH, maxH, ok := dem.Range()
	if !ok {
		minH, maxH = 0, 0
	}

	return &Intersector{
		dem:       dem,
		heightTol: heightTol,
		stepM:     step,
		maxDistM:  diag + (maxH - minH),
		minH:      minH,
		maxH:      maxH,
	}
}

// Intersect finds the first point along the ray whose height matches the
// terrain within the solver tolerance. The ray is marched in DEM-resolution
// steps until it crosses the surface from above, then the bracket is
// bisected. A ray that enters DEM coverage below the terrain only intersects
// at a later top-down crossing; until then it keeps marching. Returns false
// when the ray leaves the DEM, never reaches the surface, or the refinement
// does not converge.
func (ix *Intersector) Intersect(origin, dir r3.Vector) (r3.Vector, bool) {
	// A ray pointing up from above the highest terrain can never descend
	// to the surface.
	if dir.Z >= 0 && origin.Z > ix.maxH {
		return r3.Vector{}, false
	}

	maxDist := ix.maxDistM
	if dir.Z < 0 {
		maxDist += (origin.Z - ix.minH) / -dir.Z
	}

	pos := origin
	prev := origin
	prevDiff := 0.0
	prevValid := false

	if h, ok := ix.dem.SampleMap(pos.X, pos.Y); ok {
		prevDiff = pos.Z - h
		prevValid = true
		if prevDiff < 0 {
			// Camera below the terrain; nothing sensible to hit.
			return r3.Vector{}, false
		}
	}

	entered := prevValid
	for dist := ix.stepM; dist <= maxDist; dist += ix.stepM {
		dx, dy := ix.dem.MetersToMapUnits(dir.X*ix.stepM, dir.Y*ix.stepM, pos.Y)
		pos.X += dx
		pos.Y += dy
		pos.Z += dir.Z * ix.stepM

		h, ok := ix.dem.SampleMap(pos.X, pos.Y)
		if !ok {
			if entered {
				// Walked off the far edge of the terrain.
				return r3.Vector{}, false
			}
			continue
		}
		entered = true

		// Only a crossing from above brackets the surface. A ray still under
		// the terrain after an underground entry has no intersection here.
		diff := pos.Z - h
		if prevValid && prevDiff > 0 && diff <= 0 {
			return ix.refine(prev, pos, prevDiff, diff)
		}
		prev = pos
		prevDiff = diff
		prevValid = true
	}
	return r3.Vector{}, false
}

// refine bisects the bracketing segment [above, below] until the midpoint
// height error drops under the tolerance. The above endpoint must not start
// under the terrain; that is not a bracket.
func (ix *Intersector) refine(above, below r3.Vector, diffAbove, diffBelow float64) (r3.Vector, bool) {
	if diffAbove < 0 {
		return r3.Vector{}, false
	}
	if math.Abs(diffBelow) <= ix.heightTol {
		return r3.Vector{X: below.X, Y: below.Y, Z: below.Z - diffBelow}, true
	}
	if diffAbove <= ix.heightTol {
		return r3.Vector{X: above.X, Y: above.Y, Z: above.Z - diffAbove}, true
	}

	for i := 0; i < maxBisect; i++ {
		mid := r3.Vector{
			X: (above.X + below.X) / 2,
			Y: (above.Y + below.Y) / 2,
			Z: (above.Z + below.Z) / 2,
		}
		h, ok := ix.dem.SampleMap(mid.X, mid.Y)
		if !ok {
			return r3.Vector{}, false
		}
		diff := mid.Z - h
		if math.Abs(diff) <= ix.heightTol {
			return r3.Vector{X: mid.X, Y: mid.Y, Z: h}, true
		}
		if diff > 0 {
			above = mid
		} else {
			below = mid
		}
	}
	return r3.Vector{}, false
}
