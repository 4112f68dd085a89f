package visualization

import (
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	"aortec/internal/models"
)

// SaveOptions controls raster encoding
type SaveOptions struct {
	// Width and Height resize the image when either is positive; a zero
	// dimension keeps the aspect ratio
	Width, Height int

	// Quality applies to JPEG and lossy WebP
	Quality int

	// Lossless selects lossless WebP
	Lossless bool
}

// DefaultSaveOptions keeps the native size at quality 90
func DefaultSaveOptions() SaveOptions {
	return SaveOptions{Quality: 90}
}

// window maps v from [lo, hi] onto 0..255
func window(v, lo, hi float64) uint8 {
	if hi <= lo {
		return 0
	}
	t := (v - lo) / (hi - lo) * 255
	switch {
	case t <= 0:
		return 0
	case t >= 255:
		return 255
	}
	return uint8(t)
}

// Normalize rescales a plane to 8 bits by its own minimum and maximum. A
// plane with no contrast maps to zero.
func Normalize(plane []float64) []uint8 {
	out := make([]uint8, len(plane))
	if len(plane) == 0 {
		return out
	}
	lo, hi := plane[0], plane[0]
	for _, v := range plane {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	for i, v := range plane {
		out[i] = window(v, lo, hi)
	}
	return out
}

// GrayImage wraps 8-bit samples as an image
func GrayImage(pix []uint8, rows, cols int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, cols, rows))
	copy(img.Pix, pix)
	return img
}

// ConvertPlane normalises a rows x cols plane to a grey image
func ConvertPlane(plane []float64, rows, cols int) *image.Gray {
	return GrayImage(Normalize(plane), rows, cols)
}

// ConvertSlice normalises a slice to a grey image; colour slices use the
// channel mean
func ConvertSlice(s *models.Slice) *image.Gray {
	plane := s.Pixels
	if s.SamplesPerPixel > 1 {
		n := s.Rows * s.Cols
		plane = make([]float64, n)
		for ch := 0; ch < s.SamplesPerPixel; ch++ {
			for i, v := range s.Channel(ch) {
				plane[i] += v / float64(s.SamplesPerPixel)
			}
		}
	}
	return ConvertPlane(plane, s.Rows, s.Cols)
}

// encodeAndClose runs encode on wc and closes it, reporting the first error
func encodeAndClose(wc io.WriteCloser, path string, encode func(io.Writer) error) error {
	if err := encode(wc); err != nil {
		wc.Close()
		return errors.Wrapf(err, "failed to encode %s", path)
	}
	if err := wc.Close(); err != nil {
		return errors.Wrapf(err, "failed to close %s", path)
	}
	return nil
}

// SaveImage encodes img at path. The format follows the extension: .webp
// uses the WebP encoder, everything else goes through imaging (png, jpg,
// gif, tif, bmp).
func SaveImage(img image.Image, path string, opts SaveOptions) error {
	if opts.Width > 0 || opts.Height > 0 {
		img = imaging.Resize(img, opts.Width, opts.Height, imaging.Lanczos)
	}
	if opts.Quality <= 0 {
		opts.Quality = DefaultSaveOptions().Quality
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, "failed to create %s", dir)
		}
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".webp":
		f, err := os.Create(path)
		if err != nil {
			return errors.Wrapf(err, "failed to create %s", path)
		}
		return encodeAndClose(f, path, func(w io.Writer) error {
			return webp.Encode(w, img, &webp.Options{Lossless: opts.Lossless, Quality: float32(opts.Quality)})
		})
	case ".jpg", ".jpeg":
		return imaging.Save(img, path, imaging.JPEGQuality(opts.Quality))
	default:
		return imaging.Save(img, path)
	}
}
