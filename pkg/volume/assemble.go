// Package volume stacks ordered slices into a 3D intensity volume with
// physical spacing, and optionally resamples it along the slice axis.
package volume

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"aortec/internal/logger"
	"aortec/internal/models"
)

// InconsistentGeometryError is returned when fewer than two slices share a shape.
type InconsistentGeometryError struct {
	// Shapes counts the slices seen for every (rows, cols) shape
	Shapes map[[2]int]int

	Conforming int
}

func (e *InconsistentGeometryError) Error() string {
	return fmt.Sprintf("slices do not stack into a volume: %d conforming slices across %d shapes", e.Conforming, len(e.Shapes))
}

// SpacingSource describes where the inter-slice spacing came from
type SpacingSource string

const (
	SpacingFromPosition      SpacingSource = "patient position"
	SpacingFromSliceLocation SpacingSource = "slice location"
	SpacingFromThickness     SpacingSource = "slice thickness"
	SpacingDefault           SpacingSource = "default"
)

// Options controls assembly
type Options struct {
	// DefaultSpacing is used on every axis lacking metadata, in mm
	DefaultSpacing float64

	Logger logger.ILogger
}

// Assembler builds volumes from slices
type Assembler struct {
	defaultSpacing float64
	log            logger.ILogger
}

// NewAssembler creates an assembler. A non-positive default spacing becomes 1mm.
func NewAssembler(opts Options) *Assembler {
	if opts.DefaultSpacing <= 0 {
		opts.DefaultSpacing = 1.0
	}
	return &Assembler{defaultSpacing: opts.DefaultSpacing, log: logger.OrNull(opts.Logger)}
}

// MajorityShape returns the most common (rows, cols) shape. Ties go to the shape
// seen first, so the result follows slice order.
func MajorityShape(slices []models.Slice) ([2]int, map[[2]int]int) {
	counts := map[[2]int]int{}
	var best [2]int
	bestCount := 0
	for i := range slices {
		sh := slices[i].Shape()
		counts[sh]++
		if counts[sh] > bestCount {
			best, bestCount = sh, counts[sh]
		}
	}
	return best, counts
}

// Assemble stacks the slices, which must already be ordered, into a Volume.
// Slices whose shape differs from the majority shape are dropped.
func (a *Assembler) Assemble(slices []models.Slice) (*models.Volume, error) {
	shape, counts := MajorityShape(slices)

	var kept []*models.Slice
	for i := range slices {
		if slices[i].Shape() == shape {
			kept = append(kept, &slices[i])
		} else {
			a.log.Infof("Dropping %s: shape %v does not match majority shape %v",
				slices[i].Filename, slices[i].Shape(), shape)
		}
	}
	if len(kept) < 2 {
		return nil, &InconsistentGeometryError{Shapes: counts, Conforming: len(kept)}
	}

	rows, cols := shape[0], shape[1]
	vol := models.NewVolume(len(kept), rows, cols)
	vol.Filenames = make([]string, len(kept))
	vol.Modality = kept[0].Modality

	for d, s := range kept {
		plane := vol.Plane(d)
		spp := s.SamplesPerPixel
		if spp <= 1 {
			copy(plane, s.Pixels)
		} else {
			// Segmentation only needs relative intensity, so colour collapses to the channel mean
			for i := range plane {
				sum := 0.0
				for ch := 0; ch < spp; ch++ {
					sum += s.Pixels[i*spp+ch]
				}
				plane[i] = sum / float64(spp)
			}
		}
		vol.Filenames[d] = s.Filename
	}

	if p := kept[0].Position; p != nil {
		vol.Origin = *p
	}

	vol.Spacing = a.spacing(kept)
	return vol, nil
}

func (a *Assembler) spacing(kept []*models.Slice) models.Spacing {
	sp := models.Spacing{Row: a.defaultSpacing, Col: a.defaultSpacing, Slice: a.defaultSpacing}

	first := kept[0]
	if first.PixelSpacing[0] > 0 && first.PixelSpacing[1] > 0 {
		sp.Row, sp.Col = first.PixelSpacing[0], first.PixelSpacing[1]
	} else {
		a.log.Infof("No pixel spacing declared, using default %.3fmm in-plane", a.defaultSpacing)
	}

	slice, source := a.sliceSpacing(kept)
	sp.Slice = slice
	if source == SpacingDefault {
		a.log.Infof("No inter-slice spacing metadata, using default %.3fmm", slice)
	} else {
		a.log.Debugf("Inter-slice spacing %.3fmm from %s", slice, source)
	}
	return sp
}

// sliceSpacing derives the inter-slice distance from positional ordering keys
// when every slice has one, then slice thickness, then the default
func (a *Assembler) sliceSpacing(kept []*models.Slice) (float64, SpacingSource) {
	positions := make([]float64, 0, len(kept))
	for _, s := range kept {
		if s.PositionZ == nil {
			break
		}
		positions = append(positions, *s.PositionZ)
	}
	if len(positions) == len(kept) {
		if d, ok := medianDelta(positions); ok {
			return d, SpacingFromPosition
		}
	}

	positions = positions[:0]
	for _, s := range kept {
		if s.SliceLocation == nil {
			break
		}
		positions = append(positions, *s.SliceLocation)
	}
	if len(positions) == len(kept) {
		if d, ok := medianDelta(positions); ok {
			return d, SpacingFromSliceLocation
		}
	}

	if kept[0].SliceThickness > 0 {
		return kept[0].SliceThickness, SpacingFromThickness
	}
	return a.defaultSpacing, SpacingDefault
}

// medianDelta returns the median non-zero gap between consecutive positions
func medianDelta(positions []float64) (float64, bool) {
	var deltas []float64
	for i := 1; i < len(positions); i++ {
		d := math.Abs(positions[i] - positions[i-1])
		if d > 1e-6 {
			deltas = append(deltas, d)
		}
	}
	if len(deltas) == 0 {
		return 0, false
	}
	sort.Float64s(deltas)
	return stat.Quantile(0.5, stat.Empirical, deltas, nil), true
}
