package render

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// baseViewAngle is the vertical field of view before zoom, in degrees
const baseViewAngle = 30.0

// camera is a perspective camera looking at the centre of a bounding sphere
type camera struct {
	eye, forward, right, up r3.Vec
	focal                   float64
}

// fitCamera places the camera at the given azimuth and elevation (degrees)
// around the sphere so that the whole sphere fits the vertical field of view.
// The slice axis (z) is up.
func fitCamera(center r3.Vec, radius, azimuth, elevation, zoom float64) camera {
	if zoom <= 0 {
		zoom = 1
	}
	az := azimuth * math.Pi / 180
	el := elevation * math.Pi / 180
	dir := r3.Vec{
		X: math.Cos(el) * math.Cos(az),
		Y: math.Cos(el) * math.Sin(az),
		Z: math.Sin(el),
	}

	half := baseViewAngle / 2 * math.Pi / 180
	dist := radius / math.Sin(half)
	eye := r3.Add(center, r3.Scale(dist, dir))

	forward := r3.Scale(-1, dir)
	worldUp := r3.Vec{Z: 1}
	if math.Abs(r3.Dot(forward, worldUp)) > 0.999 {
		worldUp = r3.Vec{Y: 1}
	}
	right := r3.Unit(r3.Cross(forward, worldUp))
	up := r3.Cross(right, forward)

	return camera{
		eye:     eye,
		forward: forward,
		right:   right,
		up:      up,
		focal:   zoom / math.Tan(half),
	}
}

// project maps a world point to pixel coordinates and view depth for a
// width x height raster. Points behind the camera report ok=false.
func (c camera) project(p r3.Vec, width, height int) (x, y, depth float64, ok bool) {
	d := r3.Sub(p, c.eye)
	depth = r3.Dot(d, c.forward)
	if depth <= 1e-9 {
		return 0, 0, 0, false
	}
	scale := c.focal * float64(height) / 2 / depth
	x = float64(width)/2 + r3.Dot(d, c.right)*scale
	y = float64(height)/2 - r3.Dot(d, c.up)*scale
	return x, y, depth, true
}
