// Package surface converts binary masks and scalar volumes into triangle
// meshes with marching cubes.
package surface

import (
	"fmt"

	"aortec/internal/logger"
	"aortec/internal/models"
	"aortec/pkg/mesh"
)

// EmptySurfaceError is returned when no iso-value produced any geometry
type EmptySurfaceError struct {
	IsoValues  []float64
	MaskVoxels int
}

func (e *EmptySurfaceError) Error() string {
	return fmt.Sprintf("surface extraction produced no geometry (iso values %v, %d mask voxels)", e.IsoValues, e.MaskVoxels)
}

// Options controls Extract
type Options struct {
	IsoValue      float64
	RetryIsoValue float64

	Logger logger.ILogger
}

// DefaultOptions tries 0.5 and then 0.1
func DefaultOptions() Options {
	return Options{IsoValue: 0.5, RetryIsoValue: 0.1}
}

// Extract runs marching cubes on the mask, first at IsoValue and, if that
// yields no vertices, once more at RetryIsoValue. The iso-value that produced
// the mesh is returned alongside it.
func Extract(mask *models.Mask, spacing models.Spacing, opts Options) (*mesh.Mesh, float64, error) {
	log := logger.OrNull(opts.Logger)
	if opts.IsoValue == 0 && opts.RetryIsoValue == 0 {
		opts = DefaultOptions()
	}

	isos := []float64{opts.IsoValue}
	if opts.RetryIsoValue != opts.IsoValue {
		isos = append(isos, opts.RetryIsoValue)
	}

	for i, iso := range isos {
		mc := NewMarchingCubes(MaskSampler(mask), mask.Depth, mask.Rows, mask.Cols, iso)
		mc.SetSpacing(spacing)
		m := mc.Generate()
		if len(m.Vertices) > 0 {
			log.Infof("Marching cubes at iso %.2f: %d vertices, %d faces", iso, len(m.Vertices), len(m.Faces))
			return m, iso, nil
		}
		if i+1 < len(isos) {
			log.Infof("No surface at iso %.2f, retrying at %.2f", iso, isos[i+1])
		}
	}
	return nil, 0, &EmptySurfaceError{IsoValues: isos, MaskVoxels: mask.Count()}
}
