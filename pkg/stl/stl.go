// Package stl reads and writes binary STL surface meshes.
//
// Layout: an 80 byte header, a little-endian uint32 triangle count, then
// 50 bytes per triangle (normal, three vertices as float32 triples, and a
// uint16 attribute count that is always written as zero).
package stl

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"os"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"

	"aortec/pkg/mesh"
)

const (
	headerSize   = 80
	triangleSize = 50
)

// DefaultHeader is written when no header text is supplied
const DefaultHeader = "aortec binary STL"

// Triangle is one STL facet in file precision
type Triangle struct {
	Normal  [3]float32
	Vertex1 [3]float32
	Vertex2 [3]float32
	Vertex3 [3]float32
}

func toF32(v r3.Vec) [3]float32 {
	return [3]float32{float32(v.X), float32(v.Y), float32(v.Z)}
}

func toVec(v [3]float32) r3.Vec {
	return r3.Vec{X: float64(v[0]), Y: float64(v[1]), Z: float64(v[2])}
}

// Triangles flattens a mesh into facets. Face normals are taken from
// m.FaceNormals when present, otherwise computed from the winding.
func Triangles(m *mesh.Mesh) []Triangle {
	tris := make([]Triangle, len(m.Faces))
	haveNormals := len(m.FaceNormals) == len(m.Faces)
	for i, f := range m.Faces {
		var n r3.Vec
		if haveNormals {
			n = m.FaceNormals[i]
		} else if n = m.FaceNormal(i); r3.Norm2(n) > 0 {
			n = r3.Unit(n)
		}
		tris[i] = Triangle{
			Normal:  toF32(n),
			Vertex1: toF32(m.Vertices[f[0]]),
			Vertex2: toF32(m.Vertices[f[1]]),
			Vertex3: toF32(m.Vertices[f[2]]),
		}
	}
	return tris
}

// Encode writes triangles in binary STL form
func Encode(w io.Writer, header string, tris []Triangle) error {
	if uint64(len(tris)) > math.MaxUint32 {
		return errors.Errorf("too many triangles for STL: %d", len(tris))
	}
	bw := bufio.NewWriter(w)

	var head [headerSize]byte
	copy(head[:], header)
	if _, err := bw.Write(head[:]); err != nil {
		return errors.Wrap(err, "failed to write STL header")
	}

	var buf [triangleSize]byte
	binary.LittleEndian.PutUint32(buf[:4], uint32(len(tris)))
	if _, err := bw.Write(buf[:4]); err != nil {
		return errors.Wrap(err, "failed to write triangle count")
	}

	for _, t := range tris {
		off := 0
		for _, v := range [4][3]float32{t.Normal, t.Vertex1, t.Vertex2, t.Vertex3} {
			for _, c := range v {
				binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(c))
				off += 4
			}
		}
		buf[48], buf[49] = 0, 0
		if _, err := bw.Write(buf[:]); err != nil {
			return errors.Wrap(err, "failed to write triangle")
		}
	}
	return bw.Flush()
}

// SaveToSTL writes triangles to a binary STL file
func SaveToSTL(path string, tris []Triangle) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create STL file %s", path)
	}
	if err := Encode(f, DefaultHeader, tris); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Write saves a mesh as binary STL. An empty mesh is refused rather than
// written as a zero-triangle file.
func Write(path string, m *mesh.Mesh) error {
	if m == nil || m.IsEmpty() {
		return errors.Errorf("refusing to write empty mesh to %s", path)
	}
	return SaveToSTL(path, Triangles(m))
}

// maxPrealloc bounds the capacity reserved from the untrusted triangle count
const maxPrealloc = 1 << 16

// streamSize returns the bytes left in r when it can seek
func streamSize(r io.Reader) (int64, bool) {
	s, ok := r.(io.Seeker)
	if !ok {
		return 0, false
	}
	cur, err := s.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, false
	}
	end, err := s.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, false
	}
	if _, err := s.Seek(cur, io.SeekStart); err != nil {
		return 0, false
	}
	return end - cur, true
}

// Decode reads a binary STL stream. When r can seek, a triangle count that
// needs more bytes than remain is rejected before any triangle is read.
func Decode(r io.Reader) (string, []Triangle, error) {
	size, sized := streamSize(r)
	br := bufio.NewReader(r)

	var head [headerSize]byte
	if _, err := io.ReadFull(br, head[:]); err != nil {
		return "", nil, errors.Wrap(err, "failed to read STL header")
	}
	var cnt [4]byte
	if _, err := io.ReadFull(br, cnt[:]); err != nil {
		return "", nil, errors.Wrap(err, "failed to read triangle count")
	}
	n := binary.LittleEndian.Uint32(cnt[:])
	if need := int64(headerSize+4) + int64(triangleSize)*int64(n); sized && need > size {
		return "", nil, errors.Wrapf(io.ErrUnexpectedEOF, "STL declares %d triangles (%d bytes) but holds %d bytes", n, need, size)
	}

	tris := make([]Triangle, 0, min(n, maxPrealloc))
	var buf [triangleSize]byte
	for i := uint32(0); i < n; i++ {
		if _, err := io.ReadFull(br, buf[:]); err != nil {
			return "", nil, errors.Wrapf(err, "failed to read triangle %d of %d", i, n)
		}
		var vs [4][3]float32
		off := 0
		for k := range vs {
			for c := 0; c < 3; c++ {
				vs[k][c] = math.Float32frombits(binary.LittleEndian.Uint32(buf[off:]))
				off += 4
			}
		}
		tris = append(tris, Triangle{Normal: vs[0], Vertex1: vs[1], Vertex2: vs[2], Vertex3: vs[3]})
	}

	header := string(head[:])
	for len(header) > 0 && header[len(header)-1] == 0 {
		header = header[:len(header)-1]
	}
	return header, tris, nil
}

// FromTriangles rebuilds an indexed mesh, merging vertices with identical
// float32 coordinates
func FromTriangles(tris []Triangle) *mesh.Mesh {
	m := &mesh.Mesh{
		Faces:       make([][3]int, 0, len(tris)),
		FaceNormals: make([]r3.Vec, 0, len(tris)),
	}
	index := map[[3]float32]int{}
	id := func(v [3]float32) int {
		if i, ok := index[v]; ok {
			return i
		}
		i := len(m.Vertices)
		index[v] = i
		m.Vertices = append(m.Vertices, toVec(v))
		return i
	}
	for _, t := range tris {
		m.Faces = append(m.Faces, [3]int{id(t.Vertex1), id(t.Vertex2), id(t.Vertex3)})
		m.FaceNormals = append(m.FaceNormals, toVec(t.Normal))
	}
	return m
}

// Read loads a binary STL file as an indexed mesh
func Read(path string) (*mesh.Mesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open STL file %s", path)
	}
	defer f.Close()

	_, tris, err := Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}
	return FromTriangles(tris), nil
}
