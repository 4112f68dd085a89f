package measure

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"aortec/internal/models"
)

// discMask puts a disc of the given pixel radius on each slice, centred
func discMask(depth, size int, radii []float64) *models.Mask {
	m := models.NewMask(depth, size, size)
	c := float64(size-1) / 2
	for d := 0; d < depth; d++ {
		for r := 0; r < size; r++ {
			for col := 0; col < size; col++ {
				dx, dy := float64(col)-c, float64(r)-c
				if dx*dx+dy*dy <= radii[d]*radii[d] {
					m.Data[m.Index(d, r, col)] = true
				}
			}
		}
	}
	return m
}

func TestMeasureDiameterAndSlice(t *testing.T) {
	mask := discMask(5, 41, []float64{5, 8, 14, 8, 5})
	sp := models.Spacing{Row: 0.5, Col: 0.5, Slice: 2}

	m := Measure(mask, sp)
	if m.MaxDiameterSlice != 2 {
		t.Errorf("Expected max diameter on slice 2, got %d", m.MaxDiameterSlice)
	}
	// pixel centres of a radius 14 disc span 28 pixels
	if math.Abs(m.MaxDiameter-14) > 0.5 {
		t.Errorf("Expected diameter about 14 mm, got %.2f", m.MaxDiameter)
	}
	if want := float64(mask.Count()) * sp.VoxelVolume(); math.Abs(m.Volume-want) > 1e-9 {
		t.Errorf("Expected volume %.2f, got %.2f", want, m.Volume)
	}
	if m.Areas[0] >= m.Areas[2] {
		t.Errorf("Expected the middle slice to have the largest area: %v", m.Areas)
	}
	// a disc is its own equivalent ellipse
	if math.Abs(m.MajorAxis-m.MinorAxis) > 0.2 || math.Abs(m.MajorAxis-14) > 1 {
		t.Errorf("Unexpected axes %.2f / %.2f", m.MajorAxis, m.MinorAxis)
	}
}

func TestMeasureIgnoresSmallIslands(t *testing.T) {
	mask := discMask(1, 40, []float64{4})
	// a distant two pixel island would widen the caliper if it counted
	mask.Data[mask.Index(0, 0, 0)] = true
	mask.Data[mask.Index(0, 0, 1)] = true

	m := Measure(mask, models.Spacing{Row: 1, Col: 1, Slice: 1})
	if m.MaxDiameter > 9 {
		t.Errorf("Island leaked into the diameter: %.2f", m.MaxDiameter)
	}
	if m.Voxels != mask.Count() {
		t.Errorf("Volume must count every mask voxel")
	}
}

func TestMeasureEmptyMask(t *testing.T) {
	m := Measure(models.NewMask(3, 8, 8), models.Spacing{Row: 1, Col: 1, Slice: 1})
	if m.MaxDiameterSlice != -1 || m.MaxDiameter != 0 || m.Volume != 0 {
		t.Errorf("Unexpected measurement for empty mask: %+v", m)
	}
}

func TestConvexHullSquare(t *testing.T) {
	var pts []point
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			pts = append(pts, point{float64(x), float64(y)})
		}
	}
	hull := convexHull(pts)
	if len(hull) != 4 {
		t.Fatalf("Expected 4 hull corners, got %d: %v", len(hull), hull)
	}
	if d := caliper(hull); math.Abs(d-3*math.Sqrt2) > 1e-9 {
		t.Errorf("Expected diagonal %.4f, got %.4f", 3*math.Sqrt2, d)
	}
}

func TestPrincipalAxesElongated(t *testing.T) {
	var pts []point
	for x := 0; x < 40; x++ {
		for y := 0; y < 4; y++ {
			pts = append(pts, point{float64(x), float64(y)})
		}
	}
	major, minor := principalAxes(pts)
	if major <= 5*minor {
		t.Errorf("Expected a long thin ellipse, got %.2f x %.2f", major, minor)
	}
}

func TestWriteReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aaa_measurements.txt")
	if err := WriteReport(path, Measurement{MaxDiameter: 52.345, Volume: 1000, MaxDiameterSlice: 7}); err != nil {
		t.Fatalf("WriteReport failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read report: %v", err)
	}
	if !strings.Contains(string(data), "Maximum Diameter: 52.35 mm") {
		t.Errorf("Unexpected report:\n%s", data)
	}
}
