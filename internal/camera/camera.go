// Package camera provides the camera-model abstraction used by the image
// synthesizer: a closed-form pinhole model and an opaque frame-sensor model
// loaded through a provider registry, both exposing the same capability set.
package camera

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/geosynth/satsim/internal/frames"
)

// ErrNotInitialized is returned when a model is used before it is constructed
// or loaded.
var ErrNotInitialized = errors.New("camera: model is not initialized")

// ErrPoseNotAvailable is returned by models that cannot expose their
// orientation as a quaternion.
var ErrPoseNotAvailable = errors.New("camera: pose is not available for this model")

// ProjectionError reports a point or pixel outside the model's valid domain.
type ProjectionError struct {
	Op     string
	Reason string
}

func (e *ProjectionError) Error() string {
	return fmt.Sprintf("camera: %s: %s", e.Op, e.Reason)
}

// Model is the capability set shared by all camera variants.
//
// PointToPixel and PixelToVector fail with ErrNotInitialized on an
// unconstructed model and with *ProjectionError outside the valid domain.
// CameraCenter takes a pixel because some sensor geometries move the
// projection center across the image; for frame cameras it is constant.
type Model interface {
	// PointToPixel projects a ground point (map-local frame) to a pixel.
	PointToPixel(p r3.Vector) (r2.Point, error)

	// PixelToVector returns the unit ray direction through a pixel, in the
	// world frame. The ray origin is CameraCenter.
	PixelToVector(pix r2.Point) (r3.Vector, error)

	// CameraCenter returns the projection center for the given pixel.
	CameraCenter(pix r2.Point) (r3.Vector, error)

	// Pose returns the camera-to-world orientation at the given pixel, or
	// ErrPoseNotAvailable.
	Pose(pix r2.Point) (frames.Quaternion, error)

	// ImageSize returns the declared image dimensions in pixels.
	ImageSize() (cols, rows int)

	// SaveState serializes the model's parameterization to a file.
	SaveState(path string) error

	// ApplyTransform composes a 4x4 rigid or uniform-similarity transform
	// into the model's pose without changing intrinsics.
	ApplyTransform(t *mat.Dense) error

	// SaveTransformedState applies the transform to a copy of the model and
	// saves it, leaving the live model untouched.
	SaveTransformedState(path string, t *mat.Dense) error
}

// splitTransform decomposes a 4x4 similarity transform into its 3x3 linear
// part (rotation times uniform scale), the pure rotation, and the
// translation.
func splitTransform(t *mat.Dense) (linear, rot *mat.Dense, trans r3.Vector, err error) {
	r, c := t.Dims()
	if r != 4 || c != 4 {
		return nil, nil, r3.Vector{}, fmt.Errorf("camera: transform must be 4x4, got %dx%d", r, c)
	}

	linear = mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			linear.Set(i, j, t.At(i, j))
		}
	}
	det := mat.Det(linear)
	if det <= 0 {
		return nil, nil, r3.Vector{}, fmt.Errorf("camera: transform is not orientation-preserving (det=%g)", det)
	}
	scale := math.Cbrt(det)

	rot = mat.NewDense(3, 3, nil)
	rot.Scale(1/scale, linear)

	trans = r3.Vector{X: t.At(0, 3), Y: t.At(1, 3), Z: t.At(2, 3)}
	return linear, rot, trans, nil
}
