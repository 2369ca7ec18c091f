package camera

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/geosynth/satsim/internal/frames"
	"github.com/geosynth/satsim/internal/trajectory"
)

// Kind selects which camera model the factory produces.
type Kind int

const (
	// KindPinhole produces closed-form pinhole models.
	KindPinhole Kind = iota
	// KindFrameSensor produces opaque frame-sensor models with a JSON state.
	KindFrameSensor
)

// FactoryParams are the shared intrinsics for a batch of cameras.
type FactoryParams struct {
	Focal     float64
	CX, CY    float64
	Cols      int
	Rows      int
	Kind      Kind
	Ellipsoid frames.Ellipsoid
}

// BuildModels turns trajectory entries into camera models. Each camera gets a
// zero-padded sequence number as its name, so files sort in acquisition
// order.
func BuildModels(entries []trajectory.Entry, p FactoryParams) (names []string, models []Model, err error) {
	if len(entries) == 0 {
		return nil, nil, fmt.Errorf("camera: no trajectory entries to build models from")
	}
	if p.Focal <= 0 {
		return nil, nil, fmt.Errorf("camera: the focal length must be positive, got %g", p.Focal)
	}
	if p.Cols <= 0 || p.Rows <= 0 {
		return nil, nil, fmt.Errorf("camera: invalid image size %dx%d", p.Cols, p.Rows)
	}

	names = make([]string, len(entries))
	models = make([]Model, len(entries))
	for i, e := range entries {
		names[i] = fmt.Sprintf("%05d", i)
		switch p.Kind {
		case KindPinhole:
			models[i] = NewPinhole(p.Focal, p.CX, p.CY, p.Cols, p.Rows, e.Position, cloneRot(e.Cam2World))
		case KindFrameSensor:
			m, err := CreateFrameModel(p.Cols, p.Rows, p.CX, p.CY, p.Focal,
				p.Ellipsoid.SemiMajor, p.Ellipsoid.SemiMinor, e.Position, e.Cam2World)
			if err != nil {
				return nil, nil, fmt.Errorf("camera %s: %w", names[i], err)
			}
			models[i] = m
		default:
			return nil, nil, fmt.Errorf("camera: unknown model kind %d", p.Kind)
		}
	}
	return names, models, nil
}

// SaveModels writes every model next to the output prefix. Pinhole models get
// a .tsai file, sensor models a .json state file.
func SaveModels(prefix string, names []string, models []Model) error {
	for i, m := range models {
		path := fmt.Sprintf("%s-%s%s", prefix, names[i], modelExt(m))
		if err := m.SaveState(path); err != nil {
			return fmt.Errorf("saving camera %s: %w", names[i], err)
		}
	}
	return nil
}

func modelExt(m Model) string {
	if _, ok := m.(*Sensor); ok {
		return ".json"
	}
	return ".tsai"
}

func cloneRot(r *mat.Dense) *mat.Dense {
	var out mat.Dense
	out.CloneFrom(r)
	return &out
}
