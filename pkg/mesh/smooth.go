package mesh

import "gonum.org/v1/gonum/spatial/r3"

// Smooth applies Laplacian smoothing: every iteration moves each vertex
// toward the mean of its edge neighbours by the relaxation factor.
// Topology is never changed.
func Smooth(m *Mesh, iterations int, relaxation float64) *Mesh {
	if m.IsEmpty() || iterations <= 0 || relaxation == 0 {
		return m
	}

	nbrs := vertexNeighbours(len(m.Vertices), m.Faces)
	cur := append([]r3.Vec(nil), m.Vertices...)
	next := make([]r3.Vec, len(cur))

	for it := 0; it < iterations; it++ {
		for i, p := range cur {
			if len(nbrs[i]) == 0 {
				next[i] = p
				continue
			}
			var mean r3.Vec
			for _, j := range nbrs[i] {
				mean = r3.Add(mean, cur[j])
			}
			mean = r3.Scale(1/float64(len(nbrs[i])), mean)
			next[i] = r3.Add(p, r3.Scale(relaxation, r3.Sub(mean, p)))
		}
		cur, next = next, cur
	}

	return &Mesh{Vertices: cur, Faces: append([][3]int(nil), m.Faces...)}
}
