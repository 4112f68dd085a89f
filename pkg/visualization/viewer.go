// Package visualization renders 2D views of slices and assembled volumes:
// multi-planar reformats, single-slice conversions and threshold overlays.
package visualization

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"aortec/internal/models"
)

// Axis selects the plane a slice is cut along
type Axis string

const (
	// Axial planes are the acquired slices, indexed by depth
	Axial Axis = "axial"
	// Coronal planes are indexed by row
	Coronal Axis = "coronal"
	// Sagittal planes are indexed by column
	Sagittal Axis = "sagittal"
)

// ParseAxis accepts the plane names and the x/y/z aliases
func ParseAxis(s string) (Axis, error) {
	switch strings.ToLower(s) {
	case "axial", "z":
		return Axial, nil
	case "coronal", "y":
		return Coronal, nil
	case "sagittal", "x":
		return Sagittal, nil
	}
	return "", fmt.Errorf("invalid axis: %s (must be axial, coronal, sagittal or x, y, z)", s)
}

// Viewer cuts 2D planes out of an assembled volume. Intensities are
// windowed to 8 bits using the volume-wide minimum and maximum, so every
// plane of a sequence shares one grey scale.
type Viewer struct {
	vol      *models.Volume
	min, max float64
}

// NewViewer creates a viewer over vol
func NewViewer(vol *models.Volume) *Viewer {
	lo, hi := vol.MinMax()
	return &Viewer{vol: vol, min: lo, max: hi}
}

// Extent returns the number of planes along axis
func (v *Viewer) Extent(axis Axis) int {
	switch axis {
	case Coronal:
		return v.vol.Rows
	case Sagittal:
		return v.vol.Cols
	}
	return v.vol.Depth
}

// ExtractSlice cuts plane position along axis. Coronal and sagittal planes
// put depth on the vertical axis with the first slice at the top.
func (v *Viewer) ExtractSlice(axis Axis, position int) (*image.Gray, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}
	if n := v.Extent(axis); position >= n {
		return nil, fmt.Errorf("position %d exceeds %s extent %d", position, axis, n)
	}

	vol := v.vol
	var img *image.Gray
	switch axis {
	case Axial:
		img = image.NewGray(image.Rect(0, 0, vol.Cols, vol.Rows))
		for r := 0; r < vol.Rows; r++ {
			for c := 0; c < vol.Cols; c++ {
				img.Pix[r*img.Stride+c] = window(vol.At(position, r, c), v.min, v.max)
			}
		}
	case Coronal:
		img = image.NewGray(image.Rect(0, 0, vol.Cols, vol.Depth))
		for d := 0; d < vol.Depth; d++ {
			for c := 0; c < vol.Cols; c++ {
				img.Pix[d*img.Stride+c] = window(vol.At(d, position, c), v.min, v.max)
			}
		}
	case Sagittal:
		img = image.NewGray(image.Rect(0, 0, vol.Rows, vol.Depth))
		for d := 0; d < vol.Depth; d++ {
			for r := 0; r < vol.Rows; r++ {
				img.Pix[d*img.Stride+r] = window(vol.At(d, r, position), v.min, v.max)
			}
		}
	default:
		return nil, fmt.Errorf("invalid axis: %s", axis)
	}
	return img, nil
}

// physicalSize returns the pixel size of a plane once stretched to the
// volume's spacing, keeping the horizontal resolution
func (v *Viewer) physicalSize(axis Axis, img image.Image) (int, int) {
	b := img.Bounds()
	sp := v.vol.Spacing
	var hs, vs float64
	switch axis {
	case Coronal:
		hs, vs = sp.Col, sp.Slice
	case Sagittal:
		hs, vs = sp.Row, sp.Slice
	default:
		hs, vs = sp.Col, sp.Row
	}
	if hs <= 0 || vs <= 0 {
		return b.Dx(), b.Dy()
	}
	h := int(float64(b.Dy())*vs/hs + 0.5)
	if h < 1 {
		h = 1
	}
	return b.Dx(), h
}

// SaveSlice extracts a plane, corrects its aspect ratio for the voxel
// spacing and saves it; the format follows the file extension
func (v *Viewer) SaveSlice(axis Axis, position int, filename string, opts SaveOptions) error {
	img, err := v.ExtractSlice(axis, position)
	if err != nil {
		return err
	}
	w, h := v.physicalSize(axis, img)
	var out image.Image = img
	if h != img.Bounds().Dy() {
		out = imaging.Resize(img, w, h, imaging.Linear)
	}
	return SaveImage(out, filename, opts)
}

// SaveSliceSequence saves every plane along axis as slice_<axis>_NNN.<ext>
func (v *Viewer) SaveSliceSequence(axis Axis, outputDir, ext string, opts SaveOptions) ([]string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, err
	}
	if _, err := ParseAxis(string(axis)); err != nil {
		return nil, err
	}
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "png"
	}

	n := v.Extent(axis)
	files := make([]string, 0, n)
	for pos := 0; pos < n; pos++ {
		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.%s", axis, pos, ext))
		if err := v.SaveSlice(axis, pos, filename, opts); err != nil {
			return files, err
		}
		files = append(files, filename)
	}
	return files, nil
}
