package visualization

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"

	"aortec/internal/models"
)

func gradientVolume(depth, rows, cols int) *models.Volume {
	vol := models.NewVolume(depth, rows, cols)
	for d := 0; d < depth; d++ {
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				vol.Set(d, r, c, float64(d*100+r*10+c))
			}
		}
	}
	return vol
}

// TestExtractSlice verifies plane shapes and orientation along each axis
func TestExtractSlice(t *testing.T) {
	depth, rows, cols := 5, 8, 10
	viewer := NewViewer(gradientVolume(depth, rows, cols))

	for d := 0; d < depth; d++ {
		img, err := viewer.ExtractSlice(Axial, d)
		if err != nil {
			t.Fatalf("Failed to extract axial slice %d: %v", d, err)
		}
		if b := img.Bounds(); b.Dx() != cols || b.Dy() != rows {
			t.Errorf("Expected axial dimensions %dx%d, got %dx%d", cols, rows, b.Dx(), b.Dy())
		}
	}

	// deeper slices are brighter everywhere
	first, _ := viewer.ExtractSlice(Axial, 0)
	last, _ := viewer.ExtractSlice(Axial, depth-1)
	if first.GrayAt(0, 0).Y != 0 {
		t.Errorf("Expected the volume minimum at 0, got %d", first.GrayAt(0, 0).Y)
	}
	if last.GrayAt(cols-1, rows-1).Y != 255 {
		t.Errorf("Expected the volume maximum at 255, got %d", last.GrayAt(cols-1, rows-1).Y)
	}

	cor, err := viewer.ExtractSlice(Coronal, rows/2)
	if err != nil {
		t.Fatalf("Failed to extract coronal slice: %v", err)
	}
	if b := cor.Bounds(); b.Dx() != cols || b.Dy() != depth {
		t.Errorf("Expected coronal dimensions %dx%d, got %dx%d", cols, depth, b.Dx(), b.Dy())
	}
	if cor.GrayAt(0, 0).Y >= cor.GrayAt(0, depth-1).Y {
		t.Errorf("Expected first slice at the top of the coronal plane")
	}

	sag, err := viewer.ExtractSlice(Sagittal, cols/2)
	if err != nil {
		t.Fatalf("Failed to extract sagittal slice: %v", err)
	}
	if b := sag.Bounds(); b.Dx() != rows || b.Dy() != depth {
		t.Errorf("Expected sagittal dimensions %dx%d, got %dx%d", rows, depth, b.Dx(), b.Dy())
	}

	if _, err := viewer.ExtractSlice(Axis("oblique"), 0); err == nil {
		t.Error("Expected error for invalid axis, got nil")
	}
	if _, err := viewer.ExtractSlice(Axial, depth); err == nil {
		t.Error("Expected error for out of bounds position, got nil")
	}
	if _, err := viewer.ExtractSlice(Axial, -1); err == nil {
		t.Error("Expected error for negative position, got nil")
	}
}

func TestParseAxis(t *testing.T) {
	for in, want := range map[string]Axis{"z": Axial, "Coronal": Coronal, "x": Sagittal, "axial": Axial, "Y": Coronal} {
		got, err := ParseAxis(in)
		if err != nil || got != want {
			t.Errorf("ParseAxis(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseAxis("w"); err == nil {
		t.Error("Expected error for unknown axis")
	}
}

// TestSaveSliceAspect verifies reformatted planes are stretched by the slice spacing
func TestSaveSliceAspect(t *testing.T) {
	vol := gradientVolume(10, 20, 20)
	vol.Spacing = models.Spacing{Row: 0.5, Col: 0.5, Slice: 2}
	viewer := NewViewer(vol)

	path := filepath.Join(t.TempDir(), "coronal.png")
	if err := viewer.SaveSlice(Coronal, 5, path, DefaultSaveOptions()); err != nil {
		t.Fatalf("Failed to save slice: %v", err)
	}
	img, err := imaging.Open(path)
	if err != nil {
		t.Fatalf("Failed to open saved slice: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 20 || b.Dy() != 40 {
		t.Errorf("Expected 20x40 after aspect correction, got %dx%d", b.Dx(), b.Dy())
	}
}

// TestSaveSliceSequence verifies that a sequence of slices can be saved
func TestSaveSliceSequence(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}

	tempDir, err := os.MkdirTemp("", "viewer-sequence-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	depth := 3
	viewer := NewViewer(gradientVolume(depth, 5, 5))

	outputDir := filepath.Join(tempDir, "slices")
	files, err := viewer.SaveSliceSequence(Axial, outputDir, "jpg", DefaultSaveOptions())
	if err != nil {
		t.Fatalf("Failed to save slice sequence: %v", err)
	}
	if len(files) != depth {
		t.Errorf("Expected %d files, got %d", depth, len(files))
	}

	for z := 0; z < depth; z++ {
		filename := filepath.Join(outputDir, fmt.Sprintf("slice_axial_%03d.jpg", z))
		if _, err := os.Stat(filename); os.IsNotExist(err) {
			t.Errorf("Expected slice file does not exist: %s", filename)
		}
	}

	if _, err := viewer.SaveSliceSequence(Axis("invalid"), outputDir, "jpg", DefaultSaveOptions()); err == nil {
		t.Error("Expected error for invalid axis, got nil")
	}
}
