package mesh

import (
	"container/heap"

	"gonum.org/v1/gonum/spatial/r3"
)

type edgeItem struct {
	u, v   int
	length float64
	stampU int
	stampV int
}

type edgeHeap []edgeItem

func (h edgeHeap) Len() int { return len(h) }
func (h edgeHeap) Less(i, j int) bool {
	if h[i].length != h[j].length {
		return h[i].length < h[j].length
	}
	if h[i].u != h[j].u {
		return h[i].u < h[j].u
	}
	return h[i].v < h[j].v
}
func (h edgeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *edgeHeap) Push(x interface{}) { *h = append(*h, x.(edgeItem)) }
func (h *edgeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

type decimator struct {
	pos    []r3.Vec
	faces  [][3]int
	alive  []bool
	vfaces []map[int]struct{}
	stamp  []int
	live   int
	queue  edgeHeap
}

// Decimate collapses the shortest edges until the face count has dropped by
// reduction (0.5 halves it) or no collapse is valid. A collapse is refused
// when it would make the surface non-manifold or flip a neighbouring face.
func Decimate(m *Mesh, reduction float64) *Mesh {
	if m.IsEmpty() || reduction <= 0 {
		return m
	}
	if reduction >= 1 {
		reduction = 0.99
	}

	d := &decimator{
		pos:    append([]r3.Vec(nil), m.Vertices...),
		faces:  append([][3]int(nil), m.Faces...),
		alive:  make([]bool, len(m.Faces)),
		vfaces: make([]map[int]struct{}, len(m.Vertices)),
		stamp:  make([]int, len(m.Vertices)),
		live:   len(m.Faces),
	}
	for i := range d.vfaces {
		d.vfaces[i] = map[int]struct{}{}
	}
	for f, tri := range d.faces {
		d.alive[f] = true
		for _, v := range tri {
			d.vfaces[v][f] = struct{}{}
		}
	}
	for f := range d.faces {
		for i := 0; i < 3; i++ {
			a, b := d.faces[f][i], d.faces[f][(i+1)%3]
			if a < b {
				d.push(a, b)
			}
		}
	}

	target := int(float64(len(m.Faces)) * (1 - reduction))
	if target < 4 {
		target = 4
	}
	for d.live > target && d.queue.Len() > 0 {
		it := heap.Pop(&d.queue).(edgeItem)
		if it.stampU != d.stamp[it.u] || it.stampV != d.stamp[it.v] {
			continue
		}
		d.collapse(it.u, it.v)
	}

	var faces [][3]int
	for f, ok := range d.alive {
		if ok {
			faces = append(faces, d.faces[f])
		}
	}
	verts, faces := compact(d.pos, faces)
	return &Mesh{Vertices: verts, Faces: faces}
}

func (d *decimator) push(a, b int) {
	heap.Push(&d.queue, edgeItem{
		u: a, v: b,
		length: r3.Norm(r3.Sub(d.pos[a], d.pos[b])),
		stampU: d.stamp[a],
		stampV: d.stamp[b],
	})
}

func (d *decimator) neighbours(v int) map[int]struct{} {
	out := map[int]struct{}{}
	for f := range d.vfaces[v] {
		for _, w := range d.faces[f] {
			if w != v {
				out[w] = struct{}{}
			}
		}
	}
	return out
}

// collapse merges v into u at the edge midpoint when the result stays valid
func (d *decimator) collapse(u, v int) {
	var shared []int
	for f := range d.vfaces[u] {
		if _, ok := d.vfaces[v][f]; ok {
			shared = append(shared, f)
		}
	}
	if len(shared) == 0 || len(shared) > 2 {
		return
	}

	// link condition: common neighbours are exactly the apexes of the shared faces
	apex := map[int]struct{}{}
	for _, f := range shared {
		for _, w := range d.faces[f] {
			if w != u && w != v {
				apex[w] = struct{}{}
			}
		}
	}
	nu, nv := d.neighbours(u), d.neighbours(v)
	common := 0
	for w := range nu {
		if _, ok := nv[w]; ok {
			if _, isApex := apex[w]; !isApex {
				return
			}
			common++
		}
	}
	if common != len(apex) {
		return
	}

	mid := r3.Scale(0.5, r3.Add(d.pos[u], d.pos[v]))

	isShared := func(f int) bool {
		for _, s := range shared {
			if s == f {
				return true
			}
		}
		return false
	}
	for _, w := range []int{u, v} {
		for f := range d.vfaces[w] {
			if isShared(f) {
				continue
			}
			tri := d.faces[f]
			var moved [3]r3.Vec
			for k, x := range tri {
				if x == u || x == v {
					moved[k] = mid
				} else {
					moved[k] = d.pos[x]
				}
			}
			before := r3.Cross(r3.Sub(d.pos[tri[1]], d.pos[tri[0]]), r3.Sub(d.pos[tri[2]], d.pos[tri[0]]))
			after := r3.Cross(r3.Sub(moved[1], moved[0]), r3.Sub(moved[2], moved[0]))
			if r3.Norm2(after) == 0 || r3.Dot(before, after) <= 0 {
				return
			}
		}
	}

	for _, f := range shared {
		d.alive[f] = false
		d.live--
		for _, w := range d.faces[f] {
			delete(d.vfaces[w], f)
		}
	}
	for f := range d.vfaces[v] {
		for k := range d.faces[f] {
			if d.faces[f][k] == v {
				d.faces[f][k] = u
			}
		}
		d.vfaces[u][f] = struct{}{}
	}
	d.vfaces[v] = map[int]struct{}{}
	d.pos[u] = mid
	d.stamp[u]++
	d.stamp[v]++

	for w := range d.neighbours(u) {
		if u < w {
			d.push(u, w)
		} else {
			d.push(w, u)
		}
	}
}
