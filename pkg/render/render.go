// Package render produces the off-screen PNG preview of a surface mesh and
// the fallback images shown when a preview or a whole conversion fails.
package render

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"golang.org/x/image/draw"
	"gonum.org/v1/gonum/spatial/r3"

	"aortec/internal/logger"
	"aortec/pkg/mesh"
)

// RenderError reports a failed preview. The placeholder image has been
// written in its place, so callers treat it as a warning.
type RenderError struct {
	Path string
	Err  error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("preview rendering failed for %s: %v", e.Path, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// Light is a directional light shining from Position towards the origin
type Light struct {
	Position  r3.Vec
	Intensity float64
}

// Options controls RenderPreview
type Options struct {
	Width, Height int

	// Supersample renders at this multiple of the output size before downscaling
	Supersample int

	Azimuth   float64
	Elevation float64
	Zoom      float64

	Color      [3]float64
	Background [3]float64

	Lights        []Light
	Ambient       float64
	Specular      float64
	SpecularPower float64

	Logger logger.ILogger
}

// DefaultOptions returns an 800x600 preview with a red surface lit by a key
// and a fill light
func DefaultOptions() Options {
	return Options{
		Width:       800,
		Height:      600,
		Supersample: 2,
		Azimuth:     45,
		Elevation:   30,
		Zoom:        1.2,
		Color:       [3]float64{0.8, 0.2, 0.2},
		Background:  [3]float64{0, 0, 0},
		Lights: []Light{
			{Position: r3.Vec{X: 1, Y: 1, Z: 1}, Intensity: 0.8},
			{Position: r3.Vec{X: -1, Y: -1, Z: -1}, Intensity: 0.5},
		},
		Ambient:       0.1,
		Specular:      0.3,
		SpecularPower: 20,
	}
}

func (o *Options) fill() {
	d := DefaultOptions()
	if o.Width <= 0 || o.Height <= 0 {
		o.Width, o.Height = d.Width, d.Height
	}
	if o.Supersample < 1 {
		o.Supersample = 1
	}
	if o.Zoom <= 0 {
		o.Zoom = d.Zoom
	}
	if len(o.Lights) == 0 {
		o.Lights = d.Lights
	}
	if o.SpecularPower <= 0 {
		o.SpecularPower = d.SpecularPower
	}
}

func to8(v float64) uint8 {
	switch {
	case v <= 0 || math.IsNaN(v):
		return 0
	case v >= 1:
		return 255
	}
	return uint8(v*255 + 0.5)
}

// Render rasterises the mesh with a z-buffer and Gouraud shading
func Render(m *mesh.Mesh, opts Options) (image.Image, error) {
	opts.fill()
	if m.IsEmpty() {
		return nil, errors.New("mesh has no faces")
	}

	box := m.Bounds()
	center := r3.Scale(0.5, r3.Add(box.Min, box.Max))
	radius := r3.Norm(r3.Sub(box.Max, box.Min)) / 2
	if radius <= 0 || math.IsNaN(radius) || math.IsInf(radius, 0) {
		return nil, errors.Errorf("degenerate mesh bounds %v", box)
	}

	if len(m.Normals) != len(m.Vertices) {
		m = mesh.ComputeNormals(m)
	}

	w, h := opts.Width*opts.Supersample, opts.Height*opts.Supersample
	cam := fitCamera(center, radius, opts.Azimuth, opts.Elevation, opts.Zoom)

	r := &rasterizer{
		img:   image.NewNRGBA(image.Rect(0, 0, w, h)),
		depth: make([]float64, w*h),
		cam:   cam,
		opts:  opts,
	}
	for i := range r.depth {
		r.depth[i] = math.Inf(1)
	}
	bg := color.NRGBA{to8(opts.Background[0]), to8(opts.Background[1]), to8(opts.Background[2]), 255}
	draw.Draw(r.img, r.img.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)

	type projected struct {
		x, y, z float64
		ok      bool
	}
	proj := make([]projected, len(m.Vertices))
	for i, v := range m.Vertices {
		x, y, z, ok := cam.project(v, w, h)
		proj[i] = projected{x, y, z, ok}
	}

	drawn := 0
	for _, f := range m.Faces {
		a, b, c := proj[f[0]], proj[f[1]], proj[f[2]]
		if !a.ok || !b.ok || !c.ok {
			continue
		}
		r.triangle(
			[3][3]float64{{a.x, a.y, a.z}, {b.x, b.y, b.z}, {c.x, c.y, c.z}},
			[3]r3.Vec{m.Normals[f[0]], m.Normals[f[1]], m.Normals[f[2]]},
			[3]r3.Vec{m.Vertices[f[0]], m.Vertices[f[1]], m.Vertices[f[2]]},
		)
		drawn++
	}
	if drawn == 0 {
		return nil, errors.New("no face is in front of the camera")
	}

	if opts.Supersample == 1 {
		return r.img, nil
	}
	out := image.NewNRGBA(image.Rect(0, 0, opts.Width, opts.Height))
	draw.CatmullRom.Scale(out, out.Bounds(), r.img, r.img.Bounds(), draw.Src, nil)
	return out, nil
}

// RenderPreview renders the mesh and saves it as a PNG at path. When
// rendering fails a placeholder is saved instead and a *RenderError is
// returned; any other error means nothing usable was written.
func RenderPreview(m *mesh.Mesh, path string, opts Options) error {
	log := logger.OrNull(opts.Logger)

	img, err := renderSafely(m, opts)
	if err == nil {
		if err := imaging.Save(img, path); err != nil {
			return errors.Wrapf(err, "failed to save preview %s", path)
		}
		return nil
	}

	log.Errorf("Preview rendering failed, writing placeholder: %v", err)
	if perr := imaging.Save(Placeholder(), path); perr != nil {
		return errors.Wrapf(perr, "failed to save placeholder %s", path)
	}
	return &RenderError{Path: path, Err: err}
}

// renderSafely converts a panic inside the rasteriser into an error
func renderSafely(m *mesh.Mesh, opts Options) (img image.Image, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			img, err = nil, errors.Errorf("renderer panic: %v", rec)
		}
	}()
	return Render(m, opts)
}
