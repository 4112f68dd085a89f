package reconstruction

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"aortec/internal/models"
	"aortec/pkg/measure"
	"aortec/pkg/series"
	"aortec/pkg/threshold"
	"aortec/pkg/visualization"
)

// Besides STL conversion the tool supports the simpler conversions of the
// web service it grew out of. Each records its outcome in the conversion
// metrics under its own mode label.

// withVolume stages input and hands its assembled volume to fn
func (r *Reconstructor) withVolume(input string, fn func(vol *models.Volume) error) error {
	dir, cleanup, err := series.NewLoader(seriesOptions(r.cfg, r.log)).Stage(input)
	if err != nil {
		return err
	}
	defer cleanup()

	vol, _, err := r.LoadVolume(dir)
	if err != nil {
		return err
	}
	return fn(vol)
}

// ConvertRaster writes input as a windowed greyscale raster. A single DICOM
// file is converted directly; for a series the middle axial plane is used.
// The format follows the extension of output.
func (r *Reconstructor) ConvertRaster(input, output string, opts visualization.SaveOptions) error {
	err := r.convertRaster(input, output, opts)
	r.metrics.Conversion("raster", Outcome(err))
	return err
}

func (r *Reconstructor) convertRaster(input, output string, opts visualization.SaveOptions) error {
	info, err := os.Stat(input)
	if err != nil {
		return errors.Wrap(err, "error reading input")
	}

	var img image.Image
	if !info.IsDir() && !strings.EqualFold(filepath.Ext(input), ".zip") {
		s, err := series.ReadFile(input)
		if err != nil {
			return errors.Wrapf(err, "failed to read %s", input)
		}
		img = visualization.ConvertSlice(s)
	} else {
		err = r.withVolume(input, func(vol *models.Volume) error {
			mid := vol.Depth / 2
			img = visualization.ConvertPlane(vol.Plane(mid), vol.Rows, vol.Cols)
			return nil
		})
		if err != nil {
			return err
		}
	}

	r.log.Infof("Writing %dx%d raster to %s", img.Bounds().Dx(), img.Bounds().Dy(), output)
	return visualization.SaveImage(img, output, opts)
}

// Segment writes one overlay per axial plane into outputDir, painting the
// pixels whose display value lies strictly between lower and upper (0..255)
func (r *Reconstructor) Segment(input, outputDir string, lower, upper float64) ([]string, error) {
	var files []string
	err := r.withVolume(input, func(vol *models.Volume) error {
		var err error
		files, err = visualization.SegmentVolume(vol, outputDir, lower, upper)
		return err
	})
	r.metrics.Conversion("segment", Outcome(err))
	if err == nil {
		r.log.Infof("Wrote %d segmentation overlays to %s", len(files), outputDir)
	}
	return files, err
}

// Measure thresholds the series like the STL conversion does and measures
// the maximum axial diameter of the result. The report is written when
// reportPath is not empty.
func (r *Reconstructor) Measure(input, reportPath string, lower, upper *string) (measure.Measurement, error) {
	var m measure.Measurement
	err := r.withVolume(input, func(vol *models.Volume) error {
		_, mask := r.segment(vol, lower, upper)
		if mask.Count() == 0 {
			return errors.New("threshold selected no voxels to measure")
		}
		stop := r.metrics.Time("measure")
		m = measure.Measure(mask, vol.Spacing)
		stop()
		r.log.Infof("Maximum diameter %.2f mm on slice %d, volume %.1f mm^3", m.MaxDiameter, m.MaxDiameterSlice, m.Volume)

		if reportPath == "" {
			return nil
		}
		return measure.WriteReport(reportPath, m)
	})
	r.metrics.Conversion("measure", Outcome(err))
	return m, err
}

// Reformat writes planes of the series along axis into outputDir. A negative
// position writes every plane, otherwise only the one at position.
func (r *Reconstructor) Reformat(input, outputDir string, axis visualization.Axis, position int, ext string) ([]string, error) {
	if ext == "" {
		ext = "png"
	}
	ext = strings.TrimPrefix(ext, ".")

	var files []string
	err := r.withVolume(input, func(vol *models.Volume) error {
		viewer := visualization.NewViewer(vol)
		opts := visualization.DefaultSaveOptions()
		if position < 0 {
			var err error
			files, err = viewer.SaveSliceSequence(axis, outputDir, ext, opts)
			return err
		}
		name := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.%s", axis, position, ext))
		if err := viewer.SaveSlice(axis, position, name, opts); err != nil {
			return err
		}
		files = []string{name}
		return nil
	})
	r.metrics.Conversion("reformat", Outcome(err))
	return files, err
}

// Inspect reports the header and pixel data of a single DICOM file through
// the logger. A file whose pixels cannot be decoded is still reported and
// is not an error.
func (r *Reconstructor) Inspect(path string) (*series.Inspection, error) {
	in, err := series.Inspect(path)
	r.metrics.Conversion("inspect", Outcome(err))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to inspect %s", path)
	}
	in.Log(r.log)
	return in, nil
}

// ThresholdOnly resolves the threshold window of a series without meshing it
func (r *Reconstructor) ThresholdOnly(input string, lower, upper *string) (threshold.Result, error) {
	var res threshold.Result
	err := r.withVolume(input, func(vol *models.Volume) error {
		res, _ = r.segment(vol, lower, upper)
		return nil
	})
	return res, err
}
