// Package measure derives aneurysm size figures from a segmentation mask:
// the largest in-plane diameter, the axial slice it occurs on and the
// segmented volume.
package measure

import (
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"aortec/internal/models"
)

// Measurement summarises a mask
type Measurement struct {
	// MaxDiameter is the largest caliper width, in mm, of the largest
	// connected region on any axial slice
	MaxDiameter float64

	// MaxDiameterSlice is the axial index of MaxDiameter, -1 for an empty mask
	MaxDiameterSlice int

	// MajorAxis and MinorAxis are the equivalent-ellipse axis lengths (mm)
	// of the region on MaxDiameterSlice
	MajorAxis float64
	MinorAxis float64

	// Volume is mask voxels times voxel volume, in mm^3
	Volume float64
	Voxels int

	// Areas holds the area (mm^2) of the largest region on every axial slice
	Areas []float64
}

type point struct{ x, y float64 }

// Measure computes the measurement for mask with the given voxel spacing
func Measure(mask *models.Mask, spacing models.Spacing) Measurement {
	m := Measurement{
		MaxDiameterSlice: -1,
		Voxels:           mask.Count(),
		Areas:            make([]float64, mask.Depth),
	}
	m.Volume = float64(m.Voxels) * spacing.VoxelVolume()

	var best []point
	for d := 0; d < mask.Depth; d++ {
		region := largestRegion(mask, d)
		if len(region) == 0 {
			continue
		}
		pts := make([]point, len(region))
		for i, p := range region {
			pts[i] = point{x: float64(p[1]) * spacing.Col, y: float64(p[0]) * spacing.Row}
		}
		m.Areas[d] = float64(len(region)) * spacing.Row * spacing.Col

		if dia := caliper(convexHull(pts)); dia > m.MaxDiameter || m.MaxDiameterSlice < 0 {
			m.MaxDiameter = dia
			m.MaxDiameterSlice = d
			best = pts
		}
	}
	if len(best) > 1 {
		m.MajorAxis, m.MinorAxis = principalAxes(best)
	}
	return m
}

// largestRegion returns the (row, col) pixels of the biggest 8-connected
// region on plane d; ties go to the region found first in raster order
func largestRegion(mask *models.Mask, d int) [][2]int {
	rows, cols := mask.Rows, mask.Cols
	seen := make([]bool, rows*cols)
	var best, stack [][2]int

	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if seen[r*cols+c] || !mask.At(d, r, c) {
				continue
			}
			var region [][2]int
			seen[r*cols+c] = true
			stack = append(stack[:0], [2]int{r, c})
			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				region = append(region, p)
				for dr := -1; dr <= 1; dr++ {
					for dc := -1; dc <= 1; dc++ {
						nr, nc := p[0]+dr, p[1]+dc
						if nr < 0 || nc < 0 || nr >= rows || nc >= cols || seen[nr*cols+nc] {
							continue
						}
						if mask.At(d, nr, nc) {
							seen[nr*cols+nc] = true
							stack = append(stack, [2]int{nr, nc})
						}
					}
				}
			}
			if len(region) > len(best) {
				best = region
			}
		}
	}
	return best
}

func cross(o, a, b point) float64 {
	return (a.x-o.x)*(b.y-o.y) - (a.y-o.y)*(b.x-o.x)
}

// convexHull returns the hull of pts with the monotone chain algorithm
func convexHull(pts []point) []point {
	if len(pts) < 3 {
		return pts
	}
	sorted := append([]point(nil), pts...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].x != sorted[j].x {
			return sorted[i].x < sorted[j].x
		}
		return sorted[i].y < sorted[j].y
	})

	hull := make([]point, 0, 2*len(sorted))
	for _, p := range sorted {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(sorted) - 2; i >= 0; i-- {
		p := sorted[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

// caliper returns the largest distance between two hull points
func caliper(hull []point) float64 {
	best := 0.0
	for i := range hull {
		for j := i + 1; j < len(hull); j++ {
			if d := math.Hypot(hull[i].x-hull[j].x, hull[i].y-hull[j].y); d > best {
				best = d
			}
		}
	}
	return best
}

// principalAxes returns the full axis lengths of the ellipse with the same
// second moments as pts
func principalAxes(pts []point) (float64, float64) {
	n := float64(len(pts))
	var mx, my float64
	for _, p := range pts {
		mx += p.x
		my += p.y
	}
	mx /= n
	my /= n

	var sxx, syy, sxy float64
	for _, p := range pts {
		dx, dy := p.x-mx, p.y-my
		sxx += dx * dx
		syy += dy * dy
		sxy += dx * dy
	}
	cov := mat.NewSymDense(2, []float64{sxx / n, sxy / n, sxy / n, syy / n})

	var eig mat.EigenSym
	if !eig.Factorize(cov, false) {
		return 0, 0
	}
	vals := eig.Values(nil)
	sort.Float64s(vals)
	axis := func(l float64) float64 {
		if l <= 0 {
			return 0
		}
		return 4 * math.Sqrt(l)
	}
	return axis(vals[1]), axis(vals[0])
}

// WriteReport saves the measurement as a short text report
func WriteReport(path string, m Measurement) error {
	report := fmt.Sprintf("Maximum Diameter: %.2f mm\nMaximum Diameter Slice: %d\nVolume: %.2f mm^3\nMajor Axis: %.2f mm\nMinor Axis: %.2f mm\n",
		m.MaxDiameter, m.MaxDiameterSlice, m.Volume, m.MajorAxis, m.MinorAxis)
	if err := os.WriteFile(path, []byte(report), 0644); err != nil {
		return errors.Wrapf(err, "failed to write measurement report %s", path)
	}
	return nil
}
