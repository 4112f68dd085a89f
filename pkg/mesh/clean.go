package mesh

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"
)

// Clean merges coincident vertices, removes degenerate and duplicate faces,
// and drops unreferenced vertices. Vertices rounding to the same point of a
// lattice with spacing tol (mm) are merged; tol <= 0 merges exact duplicates only.
func Clean(m *Mesh, tol float64) *Mesh {
	if m.IsEmpty() {
		return m
	}

	index := make(map[[3]int64]int, len(m.Vertices))
	remap := make([]int, len(m.Vertices))
	var verts []r3.Vec
	exact := make(map[r3.Vec]int)
	for i, v := range m.Vertices {
		if tol > 0 {
			key := [3]int64{
				int64(math.Round(v.X / tol)),
				int64(math.Round(v.Y / tol)),
				int64(math.Round(v.Z / tol)),
			}
			if j, ok := index[key]; ok {
				remap[i] = j
				continue
			}
			index[key] = len(verts)
		} else {
			if j, ok := exact[v]; ok {
				remap[i] = j
				continue
			}
			exact[v] = len(verts)
		}
		remap[i] = len(verts)
		verts = append(verts, v)
	}

	seen := make(map[[3]int]struct{}, len(m.Faces))
	var faces [][3]int
	for _, f := range m.Faces {
		g := [3]int{remap[f[0]], remap[f[1]], remap[f[2]]}
		if g[0] == g[1] || g[1] == g[2] || g[0] == g[2] {
			continue
		}
		a, b, c := verts[g[0]], verts[g[1]], verts[g[2]]
		if r3.Norm2(r3.Cross(r3.Sub(b, a), r3.Sub(c, a))) == 0 {
			continue
		}
		key := g
		sort.Ints(key[:])
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		faces = append(faces, g)
	}

	verts, faces = compact(verts, faces)
	return &Mesh{Vertices: verts, Faces: faces}
}
