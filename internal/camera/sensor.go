package camera

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/geosynth/satsim/internal/frames"
)

// DefaultPrecision is the desired numerical precision for sensor-model
// computations. Do not go below this; the underlying solvers return junk.
const DefaultPrecision = 1e-8

// frameSensorName identifies the frame-sensor state format in saved blobs.
const frameSensorName = "FRAME_SENSOR"

// Provider instantiates sensor models from saved state blobs. Vendors
// register one provider per model family.
type Provider interface {
	Name() string
	FromState(state []byte) (Model, error)
}

var registry struct {
	once      sync.Once
	providers map[string]Provider
}

// initProviders performs the one-time provider discovery. Redundant calls are
// no-ops; the registry is never reinitialized.
func initProviders() {
	registry.once.Do(func() {
		registry.providers = map[string]Provider{
			frameSensorName: frameProvider{},
		}
	})
}

// RegisterProvider adds an external provider. Must be called after init; a
// duplicate name replaces the previous provider.
func RegisterProvider(p Provider) {
	initProviders()
	registry.providers[p.Name()] = p
}

// sensorState is the persisted parameterization of a frame-sensor model.
type sensorState struct {
	ModelName   string     `json:"model_name"`
	Cols        int        `json:"image_cols"`
	Rows        int        `json:"image_rows"`
	Focal       float64    `json:"focal_length_pixels"`
	CX          float64    `json:"optical_center_col"`
	CY          float64    `json:"optical_center_row"`
	Center      [3]float64 `json:"camera_center"`
	Rotation    [9]float64 `json:"camera_to_world"` // row-major
	SemiMajor   float64    `json:"semi_major_axis"`
	SemiMinor   float64    `json:"semi_minor_axis"`
	SunPosition [3]float64 `json:"sun_position"`
}

// Sensor wraps an opaque sensor-model state behind the Model interface. Each
// Sensor owns exactly one state; states are never shared across instances.
// The datum semi-axes and sun position are cached from the state. Orientation
// is not exposed (Pose refuses), matching generic sensor models whose
// parameterization does not carry a frame-camera rotation.
type Sensor struct {
	state     *sensorState
	precision float64
	eval      *Pinhole // projection core rebuilt from state
}

// CreateFrameModel builds a frame-sensor model from explicit parameters.
// Focal length and optical center are in pixels; pixel pitch is 1 and there
// is no distortion. The sun is placed at the local vertical above the camera,
// at one astronomical unit.
func CreateFrameModel(cols, rows int, cx, cy, focal float64,
	semiMajor, semiMinor float64, center r3.Vector, rot *mat.Dense) (*Sensor, error) {
	if cols <= 0 || rows <= 0 || focal <= 0 {
		return nil, fmt.Errorf("camera: invalid frame model parameters (size %dx%d, focal %g)", cols, rows, focal)
	}
	initProviders()

	const au = 1.495978707e11
	up := r3.Vector{Z: 1}
	sun := center.Add(up.Mul(au))

	st := &sensorState{
		ModelName:   frameSensorName,
		Cols:        cols,
		Rows:        rows,
		Focal:       focal,
		CX:          cx,
		CY:          cy,
		Center:      [3]float64{center.X, center.Y, center.Z},
		SemiMajor:   semiMajor,
		SemiMinor:   semiMinor,
		SunPosition: [3]float64{sun.X, sun.Y, sun.Z},
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			st.Rotation[i*3+j] = rot.At(i, j)
		}
	}

	s := &Sensor{state: st, precision: DefaultPrecision}
	s.rebuild()
	return s, nil
}

// rebuild refreshes the evaluation core after the state changes.
func (s *Sensor) rebuild() {
	st := s.state
	rot := mat.NewDense(3, 3, append([]float64(nil), st.Rotation[:]...))
	s.eval = NewPinhole(st.Focal, st.CX, st.CY, st.Cols, st.Rows,
		r3.Vector{X: st.Center[0], Y: st.Center[1], Z: st.Center[2]}, rot)
}

// SetDesiredPrecision selects the numerical precision for model evaluation.
// Values below DefaultPrecision are clamped up to it. Iterative-refinement
// callers that need faster, less exact Jacobians may pass a looser value.
func (s *Sensor) SetDesiredPrecision(p float64) {
	if p < DefaultPrecision {
		p = DefaultPrecision
	}
	s.precision = p
}

// DesiredPrecision returns the configured numerical precision.
func (s *Sensor) DesiredPrecision() float64 {
	if s == nil || s.precision == 0 {
		return DefaultPrecision
	}
	return s.precision
}

// TargetRadii returns the cached datum semi-axes (semi-major, semi-major,
// semi-minor), in meters.
func (s *Sensor) TargetRadii() (r3.Vector, error) {
	if s == nil || s.state == nil {
		return r3.Vector{}, ErrNotInitialized
	}
	return r3.Vector{X: s.state.SemiMajor, Y: s.state.SemiMajor, Z: s.state.SemiMinor}, nil
}

// SunPosition returns the cached sun position.
func (s *Sensor) SunPosition() (r3.Vector, error) {
	if s == nil || s.state == nil {
		return r3.Vector{}, ErrNotInitialized
	}
	p := s.state.SunPosition
	return r3.Vector{X: p[0], Y: p[1], Z: p[2]}, nil
}

func (s *Sensor) PointToPixel(p r3.Vector) (r2.Point, error) {
	if s == nil || s.eval == nil {
		return r2.Point{}, ErrNotInitialized
	}
	return s.eval.PointToPixel(p)
}

func (s *Sensor) PixelToVector(pix r2.Point) (r3.Vector, error) {
	if s == nil || s.eval == nil {
		return r3.Vector{}, ErrNotInitialized
	}
	return s.eval.PixelToVector(pix)
}

func (s *Sensor) CameraCenter(pix r2.Point) (r3.Vector, error) {
	if s == nil || s.eval == nil {
		return r3.Vector{}, ErrNotInitialized
	}
	return s.eval.CameraCenter(pix)
}

// Pose always refuses: the opaque state does not expose an orientation.
func (s *Sensor) Pose(r2.Point) (frames.Quaternion, error) {
	return frames.Quaternion{}, ErrPoseNotAvailable
}

func (s *Sensor) ImageSize() (cols, rows int) {
	if s == nil || s.state == nil {
		return 0, 0
	}
	return s.state.Cols, s.state.Rows
}

// ApplyTransform rewrites the persisted state's pose by the given 4x4
// similarity transform. Intrinsics are untouched.
func (s *Sensor) ApplyTransform(t *mat.Dense) error {
	if s == nil || s.state == nil {
		return ErrNotInitialized
	}
	linear, rot, trans, err := splitTransform(t)
	if err != nil {
		return err
	}
	st := s.state

	c := r3.Vector{X: st.Center[0], Y: st.Center[1], Z: st.Center[2]}
	c = frames.Apply(linear, c).Add(trans)
	st.Center = [3]float64{c.X, c.Y, c.Z}

	oldRot := mat.NewDense(3, 3, append([]float64(nil), st.Rotation[:]...))
	newRot := frames.Mul(rot, oldRot)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			st.Rotation[i*3+j] = newRot.At(i, j)
		}
	}

	sun := r3.Vector{X: st.SunPosition[0], Y: st.SunPosition[1], Z: st.SunPosition[2]}
	sun = frames.Apply(linear, sun).Add(trans)
	st.SunPosition = [3]float64{sun.X, sun.Y, sun.Z}

	s.rebuild()
	return nil
}

// SaveState writes the model state as JSON.
func (s *Sensor) SaveState(path string) error {
	if s == nil || s.state == nil {
		return ErrNotInitialized
	}
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding sensor state: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("saving sensor state: %w", err)
	}
	return nil
}

// SaveTransformedState applies the transform to a copy and saves it; the live
// model is unchanged.
func (s *Sensor) SaveTransformedState(path string, t *mat.Dense) error {
	if s == nil || s.state == nil {
		return ErrNotInitialized
	}
	st := *s.state
	cp := &Sensor{state: &st, precision: s.precision}
	cp.rebuild()
	if err := cp.ApplyTransform(t); err != nil {
		return err
	}
	return cp.SaveState(path)
}

// frameProvider is the built-in provider for frame-sensor states.
type frameProvider struct{}

func (frameProvider) Name() string { return frameSensorName }

func (frameProvider) FromState(state []byte) (Model, error) {
	var st sensorState
	if err := json.Unmarshal(state, &st); err != nil {
		return nil, fmt.Errorf("decoding sensor state: %w", err)
	}
	if st.ModelName != frameSensorName {
		return nil, fmt.Errorf("camera: state is for model %q, not %q", st.ModelName, frameSensorName)
	}
	if st.Cols <= 0 || st.Rows <= 0 || st.Focal <= 0 {
		return nil, fmt.Errorf("camera: invalid sensor state (size %dx%d, focal %g)", st.Cols, st.Rows, st.Focal)
	}
	s := &Sensor{state: &st, precision: DefaultPrecision}
	s.rebuild()
	return s, nil
}

// LoadState loads a sensor model from a state file written by SaveState,
// dispatching to the provider named inside the blob. Reloading a saved state
// reproduces the original model's projections to within DefaultPrecision.
func LoadState(path string) (Model, error) {
	initProviders()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading sensor state: %w", err)
	}
	var probe struct {
		ModelName string `json:"model_name"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%s: not a sensor state file: %w", path, err)
	}
	p, ok := registry.providers[probe.ModelName]
	if !ok {
		return nil, fmt.Errorf("%s: no provider for model %q", path, probe.ModelName)
	}
	m, err := p.FromState(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}
