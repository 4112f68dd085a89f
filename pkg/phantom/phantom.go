// Package phantom writes synthetic DICOM series: single slices with chosen
// metadata, and a tubular vessel phantom with a fusiform aneurysm bulge.
package phantom

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"
)

const (
	ctImageStorage = "1.2.840.10008.5.1.4.1.1.2"
	explicitVRLE   = "1.2.840.10008.1.2.1"
)

// SliceSpec describes one file to write
type SliceSpec struct {
	Rows, Cols int

	// Pixels holds Rows*Cols values, or Rows*Cols*3 when RGB is set
	Pixels []uint16

	// RGB writes an 8-bit three sample image
	RGB bool

	InstanceNumber *int
	SliceLocation  *float64
	PositionZ      *float64

	// PixelSpacing is (row, col) in mm; omitted when zero
	PixelSpacing   [2]float64
	SliceThickness float64

	RescaleSlope     float64
	RescaleIntercept float64

	Modality  string
	SeriesUID string
}

func mustNewElement(t tag.Tag, data interface{}) *dicom.Element {
	el, err := dicom.NewElement(t, data)
	if err != nil {
		panic(fmt.Sprintf("creating element %v: %v", t, err))
	}
	return el
}

func ds(v float64) []string {
	return []string{fmt.Sprintf("%.6f", v)}
}

// WriteSlice writes spec as a single-frame DICOM file at path
func WriteSlice(path string, spec SliceSpec) error {
	if spec.Rows <= 0 || spec.Cols <= 0 {
		return errors.Errorf("invalid slice size %dx%d", spec.Rows, spec.Cols)
	}
	spp := 1
	if spec.RGB {
		spp = 3
	}
	n := spec.Rows * spec.Cols
	if len(spec.Pixels) != n*spp {
		return errors.Errorf("expected %d pixel values, got %d", n*spp, len(spec.Pixels))
	}
	modality := spec.Modality
	if modality == "" {
		modality = "CT"
	}
	seriesUID := spec.SeriesUID
	if seriesUID == "" {
		seriesUID = "2.25.1"
	}
	sopUID := "2.25." + fmt.Sprint(uuid.New().ID())

	elements := []*dicom.Element{
		mustNewElement(tag.TransferSyntaxUID, []string{explicitVRLE}),
		mustNewElement(tag.MediaStorageSOPClassUID, []string{ctImageStorage}),
		mustNewElement(tag.MediaStorageSOPInstanceUID, []string{sopUID}),
		mustNewElement(tag.SOPClassUID, []string{ctImageStorage}),
		mustNewElement(tag.SOPInstanceUID, []string{sopUID}),
		mustNewElement(tag.Modality, []string{modality}),
		mustNewElement(tag.PatientID, []string{"PHANTOM"}),
		mustNewElement(tag.StudyInstanceUID, []string{"2.25.0"}),
		mustNewElement(tag.SeriesInstanceUID, []string{seriesUID}),
		mustNewElement(tag.Rows, []int{spec.Rows}),
		mustNewElement(tag.Columns, []int{spec.Cols}),
	}
	if spec.InstanceNumber != nil {
		elements = append(elements, mustNewElement(tag.InstanceNumber, []string{fmt.Sprint(*spec.InstanceNumber)}))
	}
	if spec.SliceLocation != nil {
		elements = append(elements, mustNewElement(tag.SliceLocation, ds(*spec.SliceLocation)))
	}
	if spec.PositionZ != nil {
		elements = append(elements, mustNewElement(tag.ImagePositionPatient, []string{"0.000000", "0.000000", ds(*spec.PositionZ)[0]}))
	}
	if spec.PixelSpacing[0] > 0 && spec.PixelSpacing[1] > 0 {
		elements = append(elements, mustNewElement(tag.PixelSpacing, []string{ds(spec.PixelSpacing[0])[0], ds(spec.PixelSpacing[1])[0]}))
	}
	if spec.SliceThickness > 0 {
		elements = append(elements, mustNewElement(tag.SliceThickness, ds(spec.SliceThickness)))
	}
	if spec.RescaleSlope != 0 {
		elements = append(elements,
			mustNewElement(tag.RescaleSlope, ds(spec.RescaleSlope)),
			mustNewElement(tag.RescaleIntercept, ds(spec.RescaleIntercept)))
	}

	var fr *frame.Frame
	if spec.RGB {
		nf := frame.NewNativeFrame[uint8](8, spec.Rows, spec.Cols, n, 3)
		for i, v := range spec.Pixels {
			nf.RawData[i] = uint8(v)
		}
		fr = &frame.Frame{Encapsulated: false, NativeData: nf}
		elements = append(elements,
			mustNewElement(tag.BitsAllocated, []int{8}),
			mustNewElement(tag.BitsStored, []int{8}),
			mustNewElement(tag.HighBit, []int{7}),
			mustNewElement(tag.PixelRepresentation, []int{0}),
			mustNewElement(tag.SamplesPerPixel, []int{3}),
			mustNewElement(tag.PlanarConfiguration, []int{0}),
			mustNewElement(tag.PhotometricInterpretation, []string{"RGB"}))
	} else {
		nf := frame.NewNativeFrame[uint16](16, spec.Rows, spec.Cols, n, 1)
		copy(nf.RawData, spec.Pixels)
		fr = &frame.Frame{Encapsulated: false, NativeData: nf}
		elements = append(elements,
			mustNewElement(tag.BitsAllocated, []int{16}),
			mustNewElement(tag.BitsStored, []int{16}),
			mustNewElement(tag.HighBit, []int{15}),
			mustNewElement(tag.PixelRepresentation, []int{0}),
			mustNewElement(tag.SamplesPerPixel, []int{1}),
			mustNewElement(tag.PhotometricInterpretation, []string{"MONOCHROME2"}))
	}
	elements = append(elements, mustNewElement(tag.PixelData, dicom.PixelDataInfo{
		Frames: []*frame.Frame{fr},
	}))

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "error creating DICOM file")
	}
	defer f.Close()

	if err := dicom.Write(f, dicom.Dataset{Elements: elements}); err != nil {
		return errors.Wrap(err, "error writing DICOM file")
	}
	return nil
}

// Options describes the vessel phantom
type Options struct {
	Rows, Cols, Slices int

	// PixelSpacing and SliceSpacing are in mm
	PixelSpacing float64
	SliceSpacing float64

	// VesselRadius is the healthy lumen radius in mm
	VesselRadius float64

	// AneurysmRadius is the peak radius of the bulge in mm, at mid depth
	AneurysmRadius float64

	// Intensities, before the CT rescale of -1024 is applied on read
	Background, Tissue, Lumen uint16

	// Noise is the amplitude of uniform noise added to tissue and lumen
	Noise float64

	Seed int64
}

// DefaultOptions returns a small abdominal phantom
func DefaultOptions() Options {
	return Options{
		Rows:           64,
		Cols:           64,
		Slices:         40,
		PixelSpacing:   0.8,
		SliceSpacing:   1.5,
		VesselRadius:   6,
		AneurysmRadius: 14,
		Background:     24,
		Tissue:         1064,
		Lumen:          1324,
		Noise:          10,
		Seed:           1,
	}
}

// RadiusAt returns the vessel radius in mm at depth index z
func (o Options) RadiusAt(z int) float64 {
	mid := float64(o.Slices-1) / 2
	sigma := float64(o.Slices) / 6
	d := (float64(z) - mid) / sigma
	return o.VesselRadius + (o.AneurysmRadius-o.VesselRadius)*math.Exp(-d*d/2)
}

// Generate writes the phantom as IMG%04d.dcm files into dir and returns their paths.
// Files are written in reverse instance order so that readers must sort.
func Generate(dir string, o Options) ([]string, error) {
	if o.Rows <= 0 || o.Cols <= 0 || o.Slices <= 0 {
		return nil, errors.Errorf("invalid phantom size %dx%dx%d", o.Rows, o.Cols, o.Slices)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "error creating phantom directory")
	}

	rng := rand.New(rand.NewSource(o.Seed))
	cr, cc := float64(o.Rows-1)/2, float64(o.Cols-1)/2
	body := 0.45 * math.Min(float64(o.Rows), float64(o.Cols)) * o.PixelSpacing
	seriesUID := "2.25." + fmt.Sprint(uuid.New().ID())

	var paths []string
	for z := o.Slices - 1; z >= 0; z-- {
		radius := o.RadiusAt(z)
		pixels := make([]uint16, o.Rows*o.Cols)
		for r := 0; r < o.Rows; r++ {
			for c := 0; c < o.Cols; c++ {
				dy := (float64(r) - cr) * o.PixelSpacing
				dx := (float64(c) - cc) * o.PixelSpacing
				dist := math.Hypot(dx, dy)

				v := float64(o.Background)
				switch {
				case dist < radius:
					v = float64(o.Lumen) + (rng.Float64()-0.5)*o.Noise
				case dist < body:
					v = float64(o.Tissue) + (rng.Float64()-0.5)*o.Noise
				}
				pixels[r*o.Cols+c] = uint16(math.Max(0, math.Min(65535, v)))
			}
		}

		instance := z + 1
		loc := float64(z) * o.SliceSpacing
		posZ := loc
		path := filepath.Join(dir, fmt.Sprintf("IMG%04d.dcm", o.Slices-z))
		err := WriteSlice(path, SliceSpec{
			Rows:             o.Rows,
			Cols:             o.Cols,
			Pixels:           pixels,
			InstanceNumber:   &instance,
			SliceLocation:    &loc,
			PositionZ:        &posZ,
			PixelSpacing:     [2]float64{o.PixelSpacing, o.PixelSpacing},
			SliceThickness:   o.SliceSpacing,
			RescaleSlope:     1,
			RescaleIntercept: -1024,
			SeriesUID:        seriesUID,
		})
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
