// Package mesh holds the triangle mesh produced by surface extraction and the
// post-processing passes applied to it before export.
//
// Every pass accepts a mesh with no faces and returns it unchanged.
package mesh

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Mesh is an indexed triangle mesh in physical (mm) coordinates
type Mesh struct {
	Vertices []r3.Vec
	Faces    [][3]int

	// Normals holds one unit normal per vertex once ComputeNormals has run
	Normals []r3.Vec

	// FaceNormals holds one unit normal per face once ComputeNormals has run
	FaceNormals []r3.Vec
}

// IsEmpty reports whether the mesh has no faces
func (m *Mesh) IsEmpty() bool {
	return m == nil || len(m.Faces) == 0
}

// Clone returns a deep copy
func (m *Mesh) Clone() *Mesh {
	out := &Mesh{
		Vertices: append([]r3.Vec(nil), m.Vertices...),
		Faces:    append([][3]int(nil), m.Faces...),
	}
	if m.Normals != nil {
		out.Normals = append([]r3.Vec(nil), m.Normals...)
	}
	if m.FaceNormals != nil {
		out.FaceNormals = append([]r3.Vec(nil), m.FaceNormals...)
	}
	return out
}

// Bounds returns the axis aligned bounding box of the referenced vertices
func (m *Mesh) Bounds() r3.Box {
	if len(m.Vertices) == 0 {
		return r3.Box{}
	}
	inf := math.Inf(1)
	box := r3.Box{Min: r3.Vec{X: inf, Y: inf, Z: inf}, Max: r3.Vec{X: -inf, Y: -inf, Z: -inf}}
	for _, v := range m.Vertices {
		box.Min.X = math.Min(box.Min.X, v.X)
		box.Min.Y = math.Min(box.Min.Y, v.Y)
		box.Min.Z = math.Min(box.Min.Z, v.Z)
		box.Max.X = math.Max(box.Max.X, v.X)
		box.Max.Y = math.Max(box.Max.Y, v.Y)
		box.Max.Z = math.Max(box.Max.Z, v.Z)
	}
	return box
}

// Centroid returns the mean vertex position
func (m *Mesh) Centroid() r3.Vec {
	var c r3.Vec
	if len(m.Vertices) == 0 {
		return c
	}
	for _, v := range m.Vertices {
		c = r3.Add(c, v)
	}
	return r3.Scale(1/float64(len(m.Vertices)), c)
}

// FaceNormal returns the unnormalised normal of face f; its length is twice the face area
func (m *Mesh) FaceNormal(f int) r3.Vec {
	a, b, c := m.Vertices[m.Faces[f][0]], m.Vertices[m.Faces[f][1]], m.Vertices[m.Faces[f][2]]
	return r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
}

// SurfaceArea returns the total face area in mm^2
func (m *Mesh) SurfaceArea() float64 {
	area := 0.0
	for f := range m.Faces {
		area += r3.Norm(m.FaceNormal(f)) / 2
	}
	return area
}

// SignedVolume returns the enclosed volume in mm^3, positive when faces wind
// counter-clockwise seen from outside
func (m *Mesh) SignedVolume() float64 {
	return signedVolume(m.Vertices, m.Faces)
}

func signedVolume(verts []r3.Vec, faces [][3]int) float64 {
	vol := 0.0
	for _, f := range faces {
		vol += r3.Dot(verts[f[0]], r3.Cross(verts[f[1]], verts[f[2]]))
	}
	return vol / 6
}

// vertexNeighbours returns the distinct edge neighbours of every vertex
func vertexNeighbours(n int, faces [][3]int) [][]int {
	seen := make([]map[int]struct{}, n)
	out := make([][]int, n)
	add := func(a, b int) {
		if seen[a] == nil {
			seen[a] = map[int]struct{}{}
		}
		if _, ok := seen[a][b]; ok {
			return
		}
		seen[a][b] = struct{}{}
		out[a] = append(out[a], b)
	}
	for _, f := range faces {
		for i := 0; i < 3; i++ {
			a, b := f[i], f[(i+1)%3]
			add(a, b)
			add(b, a)
		}
	}
	return out
}

// compact drops vertices no face references and renumbers the faces
func compact(verts []r3.Vec, faces [][3]int) ([]r3.Vec, [][3]int) {
	remap := make([]int, len(verts))
	for i := range remap {
		remap[i] = -1
	}
	var outVerts []r3.Vec
	outFaces := make([][3]int, len(faces))
	for i, f := range faces {
		for k, v := range f {
			if remap[v] < 0 {
				remap[v] = len(outVerts)
				outVerts = append(outVerts, verts[v])
			}
			outFaces[i][k] = remap[v]
		}
	}
	return outVerts, outFaces
}

// OpenEdges counts directed edges whose reverse is missing. A closed,
// consistently wound mesh has none.
func (m *Mesh) OpenEdges() int {
	edges := make(map[[2]int]struct{}, 3*len(m.Faces))
	for _, f := range m.Faces {
		for k := 0; k < 3; k++ {
			edges[[2]int{f[k], f[(k+1)%3]}] = struct{}{}
		}
	}
	open := 0
	for e := range edges {
		if _, ok := edges[[2]int{e[1], e[0]}]; !ok {
			open++
		}
	}
	return open
}
