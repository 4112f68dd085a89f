package phantom

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestRadiusAtPeaksMidSeries(t *testing.T) {
	o := DefaultOptions()
	o.Slices = 41

	if r := o.RadiusAt(20); math.Abs(r-o.AneurysmRadius) > 1e-9 {
		t.Errorf("Expected peak radius %v at mid depth, got %v", o.AneurysmRadius, r)
	}
	if r := o.RadiusAt(0); r < o.VesselRadius || r > o.VesselRadius+0.2 {
		t.Errorf("Expected near healthy radius at the ends, got %v", r)
	}
	if o.RadiusAt(10) != o.RadiusAt(30) {
		t.Errorf("Expected a symmetric bulge")
	}
}

func TestGenerate(t *testing.T) {
	o := DefaultOptions()
	o.Rows, o.Cols, o.Slices = 8, 8, 3
	dir := filepath.Join(t.TempDir(), "series")

	paths, err := Generate(dir, o)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(paths) != o.Slices {
		t.Fatalf("Expected %d files, got %d", o.Slices, len(paths))
	}
	for _, p := range paths {
		if info, err := os.Stat(p); err != nil || info.Size() == 0 {
			t.Errorf("Expected a non-empty file at %s", p)
		}
	}
}

func TestGenerateRejectsEmptySize(t *testing.T) {
	o := DefaultOptions()
	o.Slices = 0
	if _, err := Generate(t.TempDir(), o); err == nil {
		t.Errorf("Expected an error for zero slices")
	}
}

func TestWriteSliceValidatesPixels(t *testing.T) {
	err := WriteSlice(filepath.Join(t.TempDir(), "x.dcm"), SliceSpec{Rows: 2, Cols: 2, Pixels: []uint16{1, 2, 3}})
	if err == nil {
		t.Errorf("Expected an error for a short pixel buffer")
	}
}
