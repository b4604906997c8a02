package process

import (
	"math"

	"github.com/golang/geo/r3"

	"depthcam/video/calib"
	"depthcam/video/source"
)

// Reprojector maps depth images into the color camera's pixel grid.
type Reprojector struct {
	cal *calib.Calibration

	// corners holds the unit-depth ray through every pixel corner of the
	// depth image, (Width+1)*(Height+1) entries, row major.
	corners []r3.Vector
}

// NewReprojector validates the calibration and precomputes the depth
// camera's corner rays.
func NewReprojector(cal *calib.Calibration) (*Reprojector, error) {
	if cal == nil {
		return nil, transformError("reprojector: missing calibration")
	}
	if err := cal.CheckValid(); err != nil {
		return nil, transformError("reprojector: %v", err)
	}
	dw, dh := cal.Depth.Width, cal.Depth.Height
	corners := make([]r3.Vector, (dw+1)*(dh+1))
	for v := 0; v <= dh; v++ {
		for u := 0; u <= dw; u++ {
			corners[v*(dw+1)+u] = cal.Depth.PixelToPoint(float64(u)-0.5, float64(v)-0.5, 1)
		}
	}
	return &Reprojector{cal: cal, corners: corners}, nil
}

// Reproject writes into out, a Depth16 image at the color resolution, the
// depth of the surface seen by each color pixel. Color pixels no depth sample
// lands on are 0. Where several samples land on one pixel the nearest wins.
func (r *Reprojector) Reproject(depth, out *source.Image) error {
	if r == nil || r.cal == nil {
		return transformError("reproject: missing calibration")
	}
	dcam, ccam := &r.cal.Depth, &r.cal.Color
	if err := depth.CheckShape(source.FormatDepth16, dcam.Width, dcam.Height); err != nil {
		return transformError("reproject: depth: %v", err)
	}
	if err := out.CheckShape(source.FormatDepth16, ccam.Width, ccam.Height); err != nil {
		return transformError("reproject: output: %v", err)
	}

	out.Clear()
	ext := &r.cal.DepthToColor
	stride := dcam.Width + 1
	for v := 0; v < dcam.Height; v++ {
		for u := 0; u < dcam.Width; u++ {
			d := depth.Depth(u, v)
			if d == 0 {
				continue
			}
			z := float64(d)
			minX, minY := math.Inf(1), math.Inf(1)
			maxX, maxY := math.Inf(-1), math.Inf(-1)
			var zc float64
			visible := true
			for _, k := range [4]int{v*stride + u, v*stride + u + 1, (v+1)*stride + u, (v+1)*stride + u + 1} {
				p := ext.Apply(r.corners[k].Mul(z))
				x, y, ok := ccam.PointToPixel(p)
				if !ok {
					visible = false
					break
				}
				zc += p.Z
				minX, maxX = math.Min(minX, x), math.Max(maxX, x)
				minY, maxY = math.Min(minY, y), math.Max(maxY, y)
			}
			if !visible {
				continue
			}
			splat(out, depthSample(zc/4), minX, minY, maxX, maxY)
		}
	}
	return nil
}

// splat fills the color pixels whose centers fall inside the projected
// footprint, keeping the nearest depth.
func splat(out *source.Image, d uint16, minX, minY, maxX, maxY float64) {
	x0 := max(int(math.Ceil(minX)), 0)
	y0 := max(int(math.Ceil(minY)), 0)
	x1 := min(int(math.Ceil(maxX))-1, out.Width-1)
	y1 := min(int(math.Ceil(maxY))-1, out.Height-1)
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			if cur := out.Depth(x, y); cur == 0 || d < cur {
				out.SetDepth(x, y, d)
			}
		}
	}
}

func depthSample(z float64) uint16 {
	switch {
	case z < 1:
		return 1
	case z >= math.MaxUint16:
		return math.MaxUint16
	}
	return uint16(math.Round(z))
}
