package mesh

// unionFind over vertex indices
type unionFind struct {
	parent []int
	size   []int
}

func newUnionFind(n int) *unionFind {
	u := &unionFind{parent: make([]int, n), size: make([]int, n)}
	for i := range u.parent {
		u.parent[i] = i
		u.size[i] = 1
	}
	return u
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if u.size[ra] < u.size[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	u.size[ra] += u.size[rb]
}

// Components labels every face with its connected component, where faces
// sharing a vertex are connected. Labels are dense, ordered by first face.
func Components(m *Mesh) ([]int, int) {
	u := newUnionFind(len(m.Vertices))
	for _, f := range m.Faces {
		u.union(f[0], f[1])
		u.union(f[1], f[2])
	}
	labels := make([]int, len(m.Faces))
	ids := map[int]int{}
	for i, f := range m.Faces {
		root := u.find(f[0])
		id, ok := ids[root]
		if !ok {
			id = len(ids)
			ids[root] = id
		}
		labels[i] = id
	}
	return labels, len(ids)
}

// LargestComponent keeps only the connected component with the most faces.
// Ties go to the component containing the lowest numbered face.
func LargestComponent(m *Mesh) *Mesh {
	if m.IsEmpty() {
		return m
	}
	labels, n := Components(m)
	if n == 1 {
		return m
	}

	counts := make([]int, n)
	for _, l := range labels {
		counts[l]++
	}
	best := 0
	for i, c := range counts {
		if c > counts[best] {
			best = i
		}
	}

	faces := make([][3]int, 0, counts[best])
	for i, f := range m.Faces {
		if labels[i] == best {
			faces = append(faces, f)
		}
	}
	verts, faces := compact(m.Vertices, faces)
	return &Mesh{Vertices: verts, Faces: faces}
}
