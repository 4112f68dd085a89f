package surface

import "gonum.org/v1/gonum/spatial/r3"

// Cube corners as (x, y, z) offsets, where x follows columns, y rows and z depth
var cornerOffsets = [8][3]int{
	{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0},
	{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1},
}

// Cube edges as corner pairs
var edgeCorners = [12][2]int{
	{0, 1}, {1, 2}, {2, 3}, {3, 0},
	{4, 5}, {5, 6}, {6, 7}, {7, 4},
	{0, 4}, {1, 5}, {2, 6}, {3, 7},
}

// Cube faces as cyclic corner lists
var cubeFaces = [6][4]int{
	{0, 1, 2, 3}, {4, 5, 6, 7},
	{0, 1, 5, 4}, {1, 2, 6, 5},
	{2, 3, 7, 6}, {3, 0, 4, 7},
}

// edgeTable holds, per corner configuration, the bitmask of edges the surface crosses.
// triTable holds the triangles of each configuration as edge index triples,
// wound counter-clockwise seen from outside the solid.
var (
	edgeTable [256]uint16
	triTable  [256][][3]int
)

func init() {
	for cfg := 0; cfg < 256; cfg++ {
		edgeTable[cfg], triTable[cfg] = buildCase(cfg)
	}
}

func edgeBetween(a, b int) int {
	for i, e := range edgeCorners {
		if (e[0] == a && e[1] == b) || (e[0] == b && e[1] == a) {
			return i
		}
	}
	return -1
}

func cornerVec(c int) r3.Vec {
	o := cornerOffsets[c]
	return r3.Vec{X: float64(o[0]), Y: float64(o[1]), Z: float64(o[2])}
}

func edgeMidpoint(e int) r3.Vec {
	return r3.Scale(0.5, r3.Add(cornerVec(edgeCorners[e][0]), cornerVec(edgeCorners[e][1])))
}

// buildCase derives the triangulation of one configuration. The contour is
// traced on each cube face, joining crossed edges into closed loops. On a face
// with four crossings the inside corners are cut off separately; neighbouring
// cubes see the same face corners and so make the same choice, which keeps
// the surface closed.
func buildCase(cfg int) (uint16, [][3]int) {
	inside := func(c int) bool { return cfg&(1<<uint(c)) != 0 }

	var mask uint16
	for i, e := range edgeCorners {
		if inside(e[0]) != inside(e[1]) {
			mask |= 1 << uint(i)
		}
	}
	if mask == 0 {
		return 0, nil
	}

	var adj [12][]int
	link := func(a, b int) {
		adj[a] = append(adj[a], b)
		adj[b] = append(adj[b], a)
	}
	for _, f := range cubeFaces {
		var edges [4]int
		var crossing []int
		for k := 0; k < 4; k++ {
			edges[k] = edgeBetween(f[k], f[(k+1)%4])
			if mask&(1<<uint(edges[k])) != 0 {
				crossing = append(crossing, k)
			}
		}
		switch len(crossing) {
		case 2:
			link(edges[crossing[0]], edges[crossing[1]])
		case 4:
			for k := 0; k < 4; k++ {
				if inside(f[k]) {
					link(edges[(k+3)%4], edges[k])
				}
			}
		}
	}

	var visited [12]bool
	var tris [][3]int
	for start := 0; start < 12; start++ {
		if mask&(1<<uint(start)) == 0 || visited[start] {
			continue
		}
		loop := []int{start}
		visited[start] = true
		prev, cur := -1, start
		for {
			next := -1
			for _, n := range adj[cur] {
				if n != prev && !visited[n] {
					next = n
					break
				}
			}
			if next < 0 {
				break
			}
			visited[next] = true
			loop = append(loop, next)
			prev, cur = cur, next
		}

		if !loopFacesOutward(loop, inside) {
			for i, j := 1, len(loop)-1; i < j; i, j = i+1, j-1 {
				loop[i], loop[j] = loop[j], loop[i]
			}
		}
		tris = append(tris, triangulateLoop(loop)...)
	}
	return mask, tris
}

// loopFacesOutward reports whether the loop's vector area points away from
// the inside corners of the edges it crosses
func loopFacesOutward(loop []int, inside func(int) bool) bool {
	var area, in r3.Vec
	for i, e := range loop {
		area = r3.Add(area, r3.Cross(edgeMidpoint(e), edgeMidpoint(loop[(i+1)%len(loop)])))

		a, b := edgeCorners[e][0], edgeCorners[e][1]
		if inside(b) {
			a, b = b, a
		}
		in = r3.Add(in, r3.Sub(cornerVec(a), cornerVec(b)))
	}
	return r3.Dot(area, in) < 0
}

// sharesFace reports whether two cube edges lie on a common face
func sharesFace(a, b int) bool {
	for _, f := range cubeFaces {
		onA, onB := false, false
		for k := 0; k < 4; k++ {
			e := edgeBetween(f[k], f[(k+1)%4])
			onA = onA || e == a
			onB = onB || e == b
		}
		if onA && onB {
			return true
		}
	}
	return false
}

// triangulateLoop splits a loop into triangles keeping its winding. Diagonals
// between two vertices on the same cube face are avoided: the neighbouring
// cube could emit the same edge and the surface would stop being manifold.
func triangulateLoop(loop []int) [][3]int {
	n := len(loop)
	allowed := func(i, j int) bool {
		if d := (j - i + n) % n; d == 1 || d == n-1 {
			return true
		}
		return !sharesFace(loop[i], loop[j])
	}

	memo := map[[2]int][][3]int{}
	failed := map[[2]int]bool{}
	var solve func(i, j int) ([][3]int, bool)
	solve = func(i, j int) ([][3]int, bool) {
		if j-i < 2 {
			return nil, true
		}
		key := [2]int{i, j}
		if tris, ok := memo[key]; ok {
			return tris, true
		}
		if failed[key] {
			return nil, false
		}
		for k := i + 1; k < j; k++ {
			if !allowed(i, k) || !allowed(k, j) {
				continue
			}
			left, ok := solve(i, k)
			if !ok {
				continue
			}
			right, ok := solve(k, j)
			if !ok {
				continue
			}
			tris := append(append(append([][3]int(nil), left...), right...), [3]int{loop[i], loop[k], loop[j]})
			memo[key] = tris
			return tris, true
		}
		failed[key] = true
		return nil, false
	}

	if tris, ok := solve(0, n-1); ok {
		return tris
	}
	// no face-safe split exists; fall back to a fan
	var fan [][3]int
	for i := 1; i+1 < n; i++ {
		fan = append(fan, [3]int{loop[0], loop[i], loop[i+1]})
	}
	return fan
}
