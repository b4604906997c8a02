// Package calib holds the camera calibration needed to move depth samples
// between the depth and color camera views.
package calib

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrNoCalibration is returned when calibration data is missing or unusable.
var ErrNoCalibration = errors.New("camera calibration is not available")

// Intrinsics are the pinhole parameters of one camera, in pixels.
type Intrinsics struct {
	Width  int     `json:"width_px"`
	Height int     `json:"height_px"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
}

// CheckValid checks that the parameters describe a usable camera.
func (in *Intrinsics) CheckValid() error {
	if in == nil {
		return errors.Wrap(ErrNoCalibration, "intrinsics do not exist")
	}
	if in.Width <= 0 || in.Height <= 0 {
		return errors.Wrapf(ErrNoCalibration, "invalid size (%d, %d)", in.Width, in.Height)
	}
	if in.Fx <= 0 || in.Fy <= 0 {
		return errors.Wrapf(ErrNoCalibration, "invalid focal length (%v, %v)", in.Fx, in.Fy)
	}
	if in.Ppx < 0 || in.Ppy < 0 {
		return errors.Wrapf(ErrNoCalibration, "invalid principal point (%v, %v)", in.Ppx, in.Ppy)
	}
	return nil
}

// PixelToPoint deprojects image coordinates at depth z into the camera frame.
func (in *Intrinsics) PixelToPoint(x, y, z float64) r3.Vector {
	return r3.Vector{
		X: (x - in.Ppx) / in.Fx * z,
		Y: (y - in.Ppy) / in.Fy * z,
		Z: z,
	}
}

// PointToPixel projects a camera-frame point onto the image plane. ok is
// false for points on or behind the camera.
func (in *Intrinsics) PointToPixel(p r3.Vector) (x, y float64, ok bool) {
	if p.Z <= 0 {
		return -1, -1, false
	}
	return p.X/p.Z*in.Fx + in.Ppx, p.Y/p.Z*in.Fy + in.Ppy, true
}

// FromFieldOfView builds intrinsics for an ideal camera centered on its
// image, given horizontal and vertical field of view in degrees.
func FromFieldOfView(width, height int, hfov, vfov float64) Intrinsics {
	rad := math.Pi / 180
	return Intrinsics{
		Width:  width,
		Height: height,
		Fx:     float64(width) / 2 / math.Tan(hfov*rad/2),
		Fy:     float64(height) / 2 / math.Tan(vfov*rad/2),
		Ppx:    float64(width-1) / 2,
		Ppy:    float64(height-1) / 2,
	}
}

// Extrinsics is the rigid transform from one camera frame to another.
// Rotation is row major; Translation is in millimeters.
type Extrinsics struct {
	Rotation    [9]float64 `json:"rotation"`
	Translation [3]float64 `json:"translation_mm"`
}

// Identity returns the transform that leaves points unchanged.
func Identity() Extrinsics {
	return Extrinsics{Rotation: [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}}
}

// Apply maps p from the source frame into the target frame.
func (e *Extrinsics) Apply(p r3.Vector) r3.Vector {
	r := &e.Rotation
	return r3.Vector{
		X: r[0]*p.X + r[1]*p.Y + r[2]*p.Z + e.Translation[0],
		Y: r[3]*p.X + r[4]*p.Y + r[5]*p.Z + e.Translation[1],
		Z: r[6]*p.X + r[7]*p.Y + r[8]*p.Z + e.Translation[2],
	}
}

const rotationTolerance = 1e-3

// CheckValid checks that Rotation is a proper rotation matrix.
func (e *Extrinsics) CheckValid() error {
	r := mat.NewDense(3, 3, e.Rotation[:])
	if d := mat.Det(r); math.Abs(d-1) > rotationTolerance {
		return errors.Wrapf(ErrNoCalibration, "rotation determinant %v, expected 1", d)
	}
	var rtr mat.Dense
	rtr.Mul(r.T(), r)
	if !mat.EqualApprox(&rtr, eye3(), rotationTolerance) {
		return errors.Wrapf(ErrNoCalibration, "rotation is not orthonormal:\n%v", mat.Formatted(r))
	}
	return nil
}

func eye3() *mat.Dense {
	return mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
}

// Calibration is derived once from the device and is immutable for the
// session.
type Calibration struct {
	Depth        Intrinsics `json:"depth"`
	Color        Intrinsics `json:"color"`
	DepthToColor Extrinsics `json:"depth_to_color"`
}

// CheckValid validates every part of the calibration.
func (c *Calibration) CheckValid() error {
	if c == nil {
		return ErrNoCalibration
	}
	if err := c.Depth.CheckValid(); err != nil {
		return errors.Wrap(err, "depth camera")
	}
	if err := c.Color.CheckValid(); err != nil {
		return errors.Wrap(err, "color camera")
	}
	if err := c.DepthToColor.CheckValid(); err != nil {
		return errors.Wrap(err, "depth to color")
	}
	return nil
}

func (c *Calibration) String() string {
	return fmt.Sprintf("depth %dx%d f=(%.1f,%.1f) color %dx%d f=(%.1f,%.1f) t=%v",
		c.Depth.Width, c.Depth.Height, c.Depth.Fx, c.Depth.Fy,
		c.Color.Width, c.Color.Height, c.Color.Fx, c.Color.Fy,
		c.DepthToColor.Translation)
}

// FromJSONFile reads and validates a calibration stored as JSON.
func FromJSONFile(path string) (*Calibration, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "error opening calibration file")
	}
	defer f.Close()
	c := &Calibration{}
	if err := json.NewDecoder(f).Decode(c); err != nil {
		return nil, errors.Wrap(err, "error parsing calibration")
	}
	if err := c.CheckValid(); err != nil {
		return nil, err
	}
	return c, nil
}
