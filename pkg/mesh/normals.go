package mesh

import "gonum.org/v1/gonum/spatial/r3"

// OrientFaces makes face winding consistent across shared edges and then
// flips any closed component whose signed volume is negative, so normals
// point outward.
func OrientFaces(m *Mesh) *Mesh {
	if m.IsEmpty() {
		return m
	}

	faces := append([][3]int(nil), m.Faces...)
	type edge struct{ a, b int }
	byEdge := map[edge][]int{}
	key := func(a, b int) edge {
		if a > b {
			a, b = b, a
		}
		return edge{a, b}
	}
	for f, tri := range faces {
		for i := 0; i < 3; i++ {
			k := key(tri[i], tri[(i+1)%3])
			byEdge[k] = append(byEdge[k], f)
		}
	}

	hasDirected := func(tri [3]int, a, b int) bool {
		for i := 0; i < 3; i++ {
			if tri[i] == a && tri[(i+1)%3] == b {
				return true
			}
		}
		return false
	}

	visited := make([]bool, len(faces))
	component := make([]int, len(faces))
	nComp := 0
	for seed := range faces {
		if visited[seed] {
			continue
		}
		visited[seed] = true
		component[seed] = nComp
		queue := []int{seed}
		for len(queue) > 0 {
			f := queue[0]
			queue = queue[1:]
			tri := faces[f]
			for i := 0; i < 3; i++ {
				a, b := tri[i], tri[(i+1)%3]
				shared := byEdge[key(a, b)]
				if len(shared) != 2 {
					continue
				}
				for _, g := range shared {
					if g == f || visited[g] {
						continue
					}
					// a consistent neighbour traverses the shared edge as b->a
					if hasDirected(faces[g], a, b) {
						faces[g][1], faces[g][2] = faces[g][2], faces[g][1]
					}
					visited[g] = true
					component[g] = nComp
					queue = append(queue, g)
				}
			}
		}
		nComp++
	}

	volume := make([]float64, nComp)
	for f, tri := range faces {
		volume[component[f]] += r3.Dot(m.Vertices[tri[0]], r3.Cross(m.Vertices[tri[1]], m.Vertices[tri[2]]))
	}
	for f := range faces {
		if volume[component[f]] < 0 {
			faces[f][1], faces[f][2] = faces[f][2], faces[f][1]
		}
	}

	return &Mesh{Vertices: append([]r3.Vec(nil), m.Vertices...), Faces: faces}
}

// ComputeNormals fills unit face normals and area weighted unit vertex normals
func ComputeNormals(m *Mesh) *Mesh {
	if m.IsEmpty() {
		return m
	}
	out := &Mesh{
		Vertices:    append([]r3.Vec(nil), m.Vertices...),
		Faces:       append([][3]int(nil), m.Faces...),
		Normals:     make([]r3.Vec, len(m.Vertices)),
		FaceNormals: make([]r3.Vec, len(m.Faces)),
	}
	for f, tri := range out.Faces {
		n := out.FaceNormal(f)
		for _, v := range tri {
			out.Normals[v] = r3.Add(out.Normals[v], n)
		}
		if r3.Norm2(n) > 0 {
			n = r3.Unit(n)
		}
		out.FaceNormals[f] = n
	}
	for i, n := range out.Normals {
		if r3.Norm2(n) > 0 {
			out.Normals[i] = r3.Unit(n)
		}
	}
	return out
}
