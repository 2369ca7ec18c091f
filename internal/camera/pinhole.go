package camera

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/geosynth/satsim/internal/frames"
)

// Pinhole is a closed-form frame camera: focal length and optical center in
// pixels, pixel pitch 1, zero distortion.
type Pinhole struct {
	Focal      float64
	CX, CY     float64
	Cols, Rows int
	Center     r3.Vector
	Rot        *mat.Dense // camera-to-world
}

// NewPinhole constructs an initialized pinhole camera.
func NewPinhole(focal, cx, cy float64, cols, rows int, center r3.Vector, rot *mat.Dense) *Pinhole {
	return &Pinhole{
		Focal:  focal,
		CX:     cx,
		CY:     cy,
		Cols:   cols,
		Rows:   rows,
		Center: center,
		Rot:    rot,
	}
}

func (p *Pinhole) initialized() bool {
	return p != nil && p.Rot != nil && p.Focal > 0
}

// PointToPixel projects a world point into the image.
func (p *Pinhole) PointToPixel(pt r3.Vector) (r2.Point, error) {
	if !p.initialized() {
		return r2.Point{}, ErrNotInitialized
	}
	// Rotate into the camera frame: d = R^T (pt - C).
	rel := pt.Sub(p.Center)
	d := r3.Vector{
		X: p.Rot.At(0, 0)*rel.X + p.Rot.At(1, 0)*rel.Y + p.Rot.At(2, 0)*rel.Z,
		Y: p.Rot.At(0, 1)*rel.X + p.Rot.At(1, 1)*rel.Y + p.Rot.At(2, 1)*rel.Z,
		Z: p.Rot.At(0, 2)*rel.X + p.Rot.At(1, 2)*rel.Y + p.Rot.At(2, 2)*rel.Z,
	}
	if d.Z <= 0 {
		return r2.Point{}, &ProjectionError{Op: "PointToPixel", Reason: "point is behind the camera"}
	}
	return r2.Point{
		X: p.Focal*d.X/d.Z + p.CX,
		Y: p.Focal*d.Y/d.Z + p.CY,
	}, nil
}

// PixelToVector returns the unit world-frame ray direction through a pixel.
func (p *Pinhole) PixelToVector(pix r2.Point) (r3.Vector, error) {
	if !p.initialized() {
		return r3.Vector{}, ErrNotInitialized
	}
	cam := r3.Vector{
		X: (pix.X - p.CX) / p.Focal,
		Y: (pix.Y - p.CY) / p.Focal,
		Z: 1,
	}.Normalize()
	return frames.Apply(p.Rot, cam), nil
}

// CameraCenter returns the projection center; constant for a frame camera.
func (p *Pinhole) CameraCenter(r2.Point) (r3.Vector, error) {
	if !p.initialized() {
		return r3.Vector{}, ErrNotInitialized
	}
	return p.Center, nil
}

// Pose returns the camera-to-world orientation.
func (p *Pinhole) Pose(r2.Point) (frames.Quaternion, error) {
	if !p.initialized() {
		return frames.Quaternion{}, ErrNotInitialized
	}
	return frames.RotToQuat(p.Rot), nil
}

// ImageSize returns the declared image dimensions.
func (p *Pinhole) ImageSize() (cols, rows int) { return p.Cols, p.Rows }

// ApplyTransform composes a 4x4 similarity transform into the camera pose.
// The center moves by the full transform; the rotation composes with the
// rotational part only, so intrinsics and scale stay out of the orientation.
func (p *Pinhole) ApplyTransform(t *mat.Dense) error {
	if !p.initialized() {
		return ErrNotInitialized
	}
	linear, rot, trans, err := splitTransform(t)
	if err != nil {
		return err
	}
	p.Center = frames.Apply(linear, p.Center).Add(trans)
	p.Rot = frames.Mul(rot, p.Rot)
	return nil
}

// clone returns a deep copy of the camera.
func (p *Pinhole) clone() *Pinhole {
	cp := *p
	if p.Rot != nil {
		cp.Rot = mat.DenseCopyOf(p.Rot)
	}
	return &cp
}

// SaveTransformedState writes the transformed camera without mutating p.
func (p *Pinhole) SaveTransformedState(path string, t *mat.Dense) error {
	cp := p.clone()
	if err := cp.ApplyTransform(t); err != nil {
		return err
	}
	return cp.SaveState(path)
}

// SaveState writes the camera in the plain-text pinhole format:
// intrinsics, center, then the camera-to-world rotation in row-major order.
func (p *Pinhole) SaveState(path string) error {
	if !p.initialized() {
		return ErrNotInitialized
	}
	var b strings.Builder
	fmt.Fprintf(&b, "VERSION_4\n")
	fmt.Fprintf(&b, "PINHOLE\n")
	fmt.Fprintf(&b, "fu = %.17g\n", p.Focal)
	fmt.Fprintf(&b, "fv = %.17g\n", p.Focal)
	fmt.Fprintf(&b, "cu = %.17g\n", p.CX)
	fmt.Fprintf(&b, "cv = %.17g\n", p.CY)
	fmt.Fprintf(&b, "u_direction = 1 0 0\n")
	fmt.Fprintf(&b, "v_direction = 0 1 0\n")
	fmt.Fprintf(&b, "w_direction = 0 0 1\n")
	fmt.Fprintf(&b, "C = %.17g %.17g %.17g\n", p.Center.X, p.Center.Y, p.Center.Z)
	fmt.Fprintf(&b, "R = %.17g %.17g %.17g %.17g %.17g %.17g %.17g %.17g %.17g\n",
		p.Rot.At(0, 0), p.Rot.At(0, 1), p.Rot.At(0, 2),
		p.Rot.At(1, 0), p.Rot.At(1, 1), p.Rot.At(1, 2),
		p.Rot.At(2, 0), p.Rot.At(2, 1), p.Rot.At(2, 2))
	fmt.Fprintf(&b, "image_size = %d %d\n", p.Cols, p.Rows)
	fmt.Fprintf(&b, "pitch = 1\n")
	fmt.Fprintf(&b, "NULL\n")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("saving pinhole camera: %w", err)
	}
	return nil
}

// LoadPinhole reads a camera written by SaveState.
func LoadPinhole(path string) (*Pinhole, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening camera file: %w", err)
	}
	defer f.Close()

	p := &Pinhole{}
	var rotVals []float64
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line == "VERSION_4" || line == "PINHOLE" || line == "NULL" {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		fields := strings.Fields(strings.TrimSpace(val))

		parse := func(i int) (float64, error) {
			if i >= len(fields) {
				return 0, fmt.Errorf("missing value %d for %q", i, key)
			}
			return strconv.ParseFloat(fields[i], 64)
		}

		switch key {
		case "fu":
			p.Focal, err = parse(0)
		case "fv", "pitch", "u_direction", "v_direction", "w_direction":
			// fv mirrors fu; direction vectors and pitch are fixed.
		case "cu":
			p.CX, err = parse(0)
		case "cv":
			p.CY, err = parse(0)
		case "C":
			var x, y, z float64
			if x, err = parse(0); err == nil {
				if y, err = parse(1); err == nil {
					z, err = parse(2)
				}
			}
			p.Center = r3.Vector{X: x, Y: y, Z: z}
		case "R":
			rotVals = make([]float64, 9)
			for i := range rotVals {
				if rotVals[i], err = parse(i); err != nil {
					break
				}
			}
		case "image_size":
			var c, r float64
			if c, err = parse(0); err == nil {
				r, err = parse(1)
			}
			p.Cols, p.Rows = int(c), int(r)
		default:
			return nil, fmt.Errorf("%s: unknown camera field %q", path, key)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: parsing %q: %w", path, key, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading camera file: %w", err)
	}
	if rotVals == nil || p.Focal <= 0 {
		return nil, fmt.Errorf("%s: incomplete pinhole camera", path)
	}
	p.Rot = mat.NewDense(3, 3, rotVals)
	return p, nil
}
