package surface

import (
	"gonum.org/v1/gonum/spatial/r3"

	"aortec/internal/models"
	"aortec/pkg/mesh"
)

// Sampler returns the scalar value at grid point (d, r, c). It is called for
// points one step outside the grid on every side and must return a value
// below the iso-value there so that surfaces touching the border are closed.
type Sampler func(d, r, c int) float64

// MarchingCubes extracts an iso-surface from a scalar grid
type MarchingCubes struct {
	sample            Sampler
	depth, rows, cols int
	iso               float64
	spacing           models.Spacing
}

// NewMarchingCubes creates an extractor over a depth x rows x cols grid
func NewMarchingCubes(sample Sampler, depth, rows, cols int, iso float64) *MarchingCubes {
	return &MarchingCubes{
		sample:  sample,
		depth:   depth,
		rows:    rows,
		cols:    cols,
		iso:     iso,
		spacing: models.Spacing{Row: 1, Col: 1, Slice: 1},
	}
}

// SetSpacing sets the physical size of a voxel
func (mc *MarchingCubes) SetSpacing(sp models.Spacing) {
	mc.spacing = sp
}

// MaskSampler reads a binary mask as 0/1, with zero outside its bounds
func MaskSampler(m *models.Mask) Sampler {
	return func(d, r, c int) float64 {
		if m.At(d, r, c) {
			return 1
		}
		return 0
	}
}

// VolumeSampler reads intensities, with outside the value given
func VolumeSampler(v *models.Volume, outside float64) Sampler {
	return func(d, r, c int) float64 {
		if d < 0 || r < 0 || c < 0 || d >= v.Depth || r >= v.Rows || c >= v.Cols {
			return outside
		}
		return v.At(d, r, c)
	}
}

// Generate runs the extraction. Vertices on shared cube edges are emitted once.
// A point is inside the surface when its value is above the iso-value.
// Vertex coordinates are x = col*colSpacing, y = row*rowSpacing, z = depth*sliceSpacing.
func (mc *MarchingCubes) Generate() *mesh.Mesh {
	out := &mesh.Mesh{}
	cache := map[int64]int{}

	// grid points span -1..n so the one voxel border is included
	pr, pc := int64(mc.rows+2), int64(mc.cols+2)
	pointID := func(d, r, c int) int64 {
		return ((int64(d+1)*pr)+int64(r+1))*pc + int64(c+1)
	}

	vertex := func(d, r, c, e int, vals *[8]float64) int {
		a, b := edgeCorners[e][0], edgeCorners[e][1]
		oa, ob := cornerOffsets[a], cornerOffsets[b]
		ida := pointID(d+oa[2], r+oa[1], c+oa[0])
		idb := pointID(d+ob[2], r+ob[1], c+ob[0])
		if ida > idb {
			ida, idb = idb, ida
			a, b = b, a
			oa, ob = ob, oa
		}
		// an edge is identified by its lower end and its axis
		axis := int64(0)
		switch {
		case oa[1] != ob[1]:
			axis = 1
		case oa[2] != ob[2]:
			axis = 2
		}
		key := ida*3 + axis
		if id, ok := cache[key]; ok {
			return id
		}

		va, vb := vals[a], vals[b]
		t := 0.5
		if vb != va {
			t = (mc.iso - va) / (vb - va)
		}
		x := float64(c+oa[0]) + t*float64(ob[0]-oa[0])
		y := float64(r+oa[1]) + t*float64(ob[1]-oa[1])
		z := float64(d+oa[2]) + t*float64(ob[2]-oa[2])

		id := len(out.Vertices)
		out.Vertices = append(out.Vertices, r3.Vec{
			X: x * mc.spacing.Col,
			Y: y * mc.spacing.Row,
			Z: z * mc.spacing.Slice,
		})
		cache[key] = id
		return id
	}

	var vals [8]float64
	for d := -1; d < mc.depth; d++ {
		for r := -1; r < mc.rows; r++ {
			for c := -1; c < mc.cols; c++ {
				cfg := 0
				for k, o := range cornerOffsets {
					vals[k] = mc.sample(d+o[2], r+o[1], c+o[0])
					if vals[k] > mc.iso {
						cfg |= 1 << uint(k)
					}
				}
				if edgeTable[cfg] == 0 {
					continue
				}
				for _, tri := range triTable[cfg] {
					out.Faces = append(out.Faces, [3]int{
						vertex(d, r, c, tri[0], &vals),
						vertex(d, r, c, tri[1], &vals),
						vertex(d, r, c, tri[2], &vals),
					})
				}
			}
		}
	}
	return out
}
