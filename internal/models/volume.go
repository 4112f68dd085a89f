package models

import "math"

// Spacing is the physical size of a voxel in mm along each axis.
type Spacing struct {
	Row, Col, Slice float64
}

// VoxelVolume returns the volume of one voxel in mm^3.
func (s Spacing) VoxelVolume() float64 {
	return s.Row * s.Col * s.Slice
}

// Volume is a stack of slices addressed as (depth, row, column).
type Volume struct {
	// Data holds Depth*Rows*Cols intensities, index (d*Rows+r)*Cols+c
	Data []float64

	Depth, Rows, Cols int

	Spacing Spacing

	// Origin is the ImagePositionPatient of the first slice, zero when undeclared
	Origin [3]float64

	// Filenames lists the source file of every depth index
	Filenames []string

	Modality string
}

// NewVolume allocates a zero-filled volume.
func NewVolume(depth, rows, cols int) *Volume {
	return &Volume{
		Data:    make([]float64, depth*rows*cols),
		Depth:   depth,
		Rows:    rows,
		Cols:    cols,
		Spacing: Spacing{Row: 1, Col: 1, Slice: 1},
	}
}

// Index returns the flat offset of voxel (d, r, c).
func (v *Volume) Index(d, r, c int) int {
	return (d*v.Rows+r)*v.Cols + c
}

// At returns the intensity at (d, r, c).
func (v *Volume) At(d, r, c int) float64 {
	return v.Data[v.Index(d, r, c)]
}

// Set stores the intensity at (d, r, c).
func (v *Volume) Set(d, r, c int, val float64) {
	v.Data[v.Index(d, r, c)] = val
}

// Plane returns a view of depth index d.
func (v *Volume) Plane(d int) []float64 {
	n := v.Rows * v.Cols
	return v.Data[d*n : (d+1)*n]
}

// MinMax returns the smallest and largest intensity. An empty volume yields (0, 0).
func (v *Volume) MinMax() (float64, float64) {
	if len(v.Data) == 0 {
		return 0, 0
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, x := range v.Data {
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
	}
	return lo, hi
}

// Mask is a binary volume with the same shape as the Volume it was derived from.
type Mask struct {
	Data []bool

	Depth, Rows, Cols int
}

// NewMask allocates an all-false mask.
func NewMask(depth, rows, cols int) *Mask {
	return &Mask{
		Data:  make([]bool, depth*rows*cols),
		Depth: depth,
		Rows:  rows,
		Cols:  cols,
	}
}

// Index returns the flat offset of voxel (d, r, c).
func (m *Mask) Index(d, r, c int) int {
	return (d*m.Rows+r)*m.Cols + c
}

// At reports whether (d, r, c) is set. Out-of-range coordinates read as false.
func (m *Mask) At(d, r, c int) bool {
	if d < 0 || r < 0 || c < 0 || d >= m.Depth || r >= m.Rows || c >= m.Cols {
		return false
	}
	return m.Data[m.Index(d, r, c)]
}

// Count returns the number of set voxels.
func (m *Mask) Count() int {
	n := 0
	for _, b := range m.Data {
		if b {
			n++
		}
	}
	return n
}

// ThresholdPair is an inclusive intensity window.
type ThresholdPair struct {
	Lower, Upper float64
}

// Contains reports whether lower <= v <= upper.
func (p ThresholdPair) Contains(v float64) bool {
	return v >= p.Lower && v <= p.Upper
}
