package render

import (
	"image"
	"image/color"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

type rasterizer struct {
	img   *image.NRGBA
	depth []float64
	cam   camera
	opts  Options
}

func edge(ax, ay, bx, by, px, py float64) float64 {
	return (bx-ax)*(py-ay) - (by-ay)*(px-ax)
}

// triangle fills one face. Screen points carry (x, y, view depth); normals and
// world positions are interpolated perspective-correctly and shaded per pixel.
func (r *rasterizer) triangle(s [3][3]float64, n [3]r3.Vec, p [3]r3.Vec) {
	area := edge(s[0][0], s[0][1], s[1][0], s[1][1], s[2][0], s[2][1])
	if area == 0 || math.IsNaN(area) {
		return
	}

	b := r.img.Bounds()
	minX := int(math.Max(math.Floor(math.Min(s[0][0], math.Min(s[1][0], s[2][0]))), float64(b.Min.X)))
	maxX := int(math.Min(math.Ceil(math.Max(s[0][0], math.Max(s[1][0], s[2][0]))), float64(b.Max.X-1)))
	minY := int(math.Max(math.Floor(math.Min(s[0][1], math.Min(s[1][1], s[2][1]))), float64(b.Min.Y)))
	maxY := int(math.Min(math.Ceil(math.Max(s[0][1], math.Max(s[1][1], s[2][1]))), float64(b.Max.Y-1)))

	invZ := [3]float64{1 / s[0][2], 1 / s[1][2], 1 / s[2][2]}
	width := b.Dx()

	for y := minY; y <= maxY; y++ {
		py := float64(y) + 0.5
		for x := minX; x <= maxX; x++ {
			px := float64(x) + 0.5
			w0 := edge(s[1][0], s[1][1], s[2][0], s[2][1], px, py) / area
			w1 := edge(s[2][0], s[2][1], s[0][0], s[0][1], px, py) / area
			w2 := 1 - w0 - w1
			if w0 < 0 || w1 < 0 || w2 < 0 {
				continue
			}

			iz := w0*invZ[0] + w1*invZ[1] + w2*invZ[2]
			z := 1 / iz
			idx := (y-b.Min.Y)*width + (x - b.Min.X)
			if z >= r.depth[idx] {
				continue
			}
			r.depth[idx] = z

			c0, c1, c2 := w0*invZ[0]*z, w1*invZ[1]*z, w2*invZ[2]*z
			normal := r3.Add(r3.Add(r3.Scale(c0, n[0]), r3.Scale(c1, n[1])), r3.Scale(c2, n[2]))
			pos := r3.Add(r3.Add(r3.Scale(c0, p[0]), r3.Scale(c1, p[1])), r3.Scale(c2, p[2]))
			r.img.SetNRGBA(x, y, r.shade(normal, pos))
		}
	}
}

// shade applies two-sided Blinn-Phong lighting
func (r *rasterizer) shade(normal, pos r3.Vec) color.NRGBA {
	o := r.opts
	if r3.Norm2(normal) == 0 {
		normal = r3.Scale(-1, r.cam.forward)
	}
	normal = r3.Unit(normal)
	view := r3.Unit(r3.Sub(r.cam.eye, pos))
	if r3.Dot(normal, view) < 0 {
		normal = r3.Scale(-1, normal)
	}

	diffuse, specular := o.Ambient, 0.0
	for _, l := range o.Lights {
		if r3.Norm2(l.Position) == 0 {
			continue
		}
		dir := r3.Unit(l.Position)
		ndl := r3.Dot(normal, dir)
		if ndl <= 0 {
			continue
		}
		diffuse += l.Intensity * ndl
		half := r3.Unit(r3.Add(dir, view))
		if ndh := r3.Dot(normal, half); ndh > 0 {
			specular += l.Intensity * o.Specular * math.Pow(ndh, o.SpecularPower)
		}
	}

	return color.NRGBA{
		R: to8(o.Color[0]*diffuse + specular),
		G: to8(o.Color[1]*diffuse + specular),
		B: to8(o.Color[2]*diffuse + specular),
		A: 255,
	}
}
