package visualization

import (
	"fmt"
	"image"
	"path/filepath"

	"github.com/pkg/errors"

	"aortec/internal/models"
)

// OverlayFilePattern names the per-slice overlay files
const OverlayFilePattern = "segmented_slice_%03d.png"

// SegmentationOverlay normalises a plane to 8 bits and paints red every
// pixel whose normalised value lies strictly between lower and upper.
// The bounds are on the 0..255 display scale.
func SegmentationOverlay(plane []float64, rows, cols int, lower, upper float64) (*image.NRGBA, int) {
	gray := Normalize(plane)
	img := image.NewNRGBA(image.Rect(0, 0, cols, rows))
	painted := 0
	for i, g := range gray {
		p := img.Pix[i*4 : i*4+4]
		v := float64(g)
		if v > lower && v < upper {
			p[0], p[1], p[2] = 255, 0, 0
			painted++
		} else {
			p[0], p[1], p[2] = g, g, g
		}
		p[3] = 255
	}
	return img, painted
}

// SegmentVolume writes one overlay per axial slice into outputDir and
// returns the file names in slice order
func SegmentVolume(vol *models.Volume, outputDir string, lower, upper float64) ([]string, error) {
	files := make([]string, 0, vol.Depth)
	for d := 0; d < vol.Depth; d++ {
		img, _ := SegmentationOverlay(vol.Plane(d), vol.Rows, vol.Cols, lower, upper)
		path := filepath.Join(outputDir, fmt.Sprintf(OverlayFilePattern, d))
		if err := SaveImage(img, path, DefaultSaveOptions()); err != nil {
			return files, errors.Wrapf(err, "failed to save overlay %d", d)
		}
		files = append(files, path)
	}
	return files, nil
}

// MaskOverlay draws axial plane d of vol in grey, windowed to [lo, hi],
// with mask voxels painted red. Callers drawing every plane pass the volume
// range so the planes share one window.
func MaskOverlay(vol *models.Volume, mask *models.Mask, d int, lo, hi float64) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, vol.Cols, vol.Rows))
	for r := 0; r < vol.Rows; r++ {
		for c := 0; c < vol.Cols; c++ {
			p := img.Pix[r*img.Stride+c*4 : r*img.Stride+c*4+4]
			if mask.At(d, r, c) {
				p[0], p[1], p[2] = 255, 0, 0
			} else {
				g := window(vol.At(d, r, c), lo, hi)
				p[0], p[1], p[2] = g, g, g
			}
			p[3] = 255
		}
	}
	return img
}
