package series

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"aortec/internal/logger"
	"aortec/internal/models"
)

// Inspection describes one DICOM file for troubleshooting. Header fields are
// filled even when the pixel data cannot be decoded; DecodeError then holds
// the reason and Slice is nil.
type Inspection struct {
	Filename       string
	TransferSyntax string

	HasPixelData    bool
	Encapsulated    bool
	Frames          int
	PixelDataLength int

	// SampleType is the Go element type of a native frame buffer, or
	// "encapsulated" for compressed frames
	SampleType string

	Rows, Cols                int
	SamplesPerPixel           int
	BitsAllocated             int
	BitsStored                int
	PixelRepresentation       int
	PhotometricInterpretation string

	Modality          string
	PatientID         string
	StudyInstanceUID  string
	SeriesInstanceUID string

	// Min and Max are over the rescaled pixel values of the first frame
	Min, Max float64

	Slice       *models.Slice
	DecodeError string
}

// Inspect parses path and reports its header and pixel data. Only a file
// that is not DICOM at all is an error.
func Inspect(path string) (*Inspection, error) {
	ds, err := dicom.ParseFile(path, nil)
	if err != nil {
		return nil, errors.Wrap(err, "not a readable DICOM file")
	}

	in := &Inspection{
		Filename:                  filepath.Base(path),
		TransferSyntax:            firstString(ds, tag.TransferSyntaxUID),
		PhotometricInterpretation: firstString(ds, tag.PhotometricInterpretation),
		Modality:                  firstString(ds, tag.Modality),
		PatientID:                 firstString(ds, tag.PatientID),
		StudyInstanceUID:          firstString(ds, tag.StudyInstanceUID),
		SeriesInstanceUID:         firstString(ds, tag.SeriesInstanceUID),
	}
	in.Rows, _ = firstInt(ds, tag.Rows)
	in.Cols, _ = firstInt(ds, tag.Columns)
	in.SamplesPerPixel, _ = firstInt(ds, tag.SamplesPerPixel)
	in.BitsAllocated, _ = firstInt(ds, tag.BitsAllocated)
	in.BitsStored, _ = firstInt(ds, tag.BitsStored)
	in.PixelRepresentation, _ = firstInt(ds, tag.PixelRepresentation)

	if info, ok := findValue(ds, tag.PixelData).(dicom.PixelDataInfo); ok && len(info.Frames) > 0 {
		in.HasPixelData = true
		in.Frames = len(info.Frames)
		if fr := info.Frames[0]; fr != nil {
			if fr.Encapsulated {
				in.Encapsulated = true
				in.SampleType = "encapsulated"
				in.PixelDataLength = len(fr.EncapsulatedData.Data)
			} else if nf := fr.NativeData; nf != nil {
				in.SampleType = strings.TrimPrefix(fmt.Sprintf("%T", nf.RawDataSlice()), "[]")
				in.PixelDataLength = nf.Rows() * nf.Cols() * nf.SamplesPerPixel() * ((nf.BitsPerSample() + 7) / 8)
			}
		}
	}

	s, err := SliceFromDataset(ds, in.Filename)
	if err != nil {
		in.DecodeError = err.Error()
		return in, nil
	}
	in.Slice = s
	in.Rows, in.Cols, in.SamplesPerPixel = s.Rows, s.Cols, s.SamplesPerPixel
	if len(s.Pixels) > 0 {
		in.Min, in.Max = s.Pixels[0], s.Pixels[0]
		for _, v := range s.Pixels[1:] {
			if v < in.Min {
				in.Min = v
			}
			if v > in.Max {
				in.Max = v
			}
		}
	}
	return in, nil
}

// Log writes the inspection report at info level
func (in *Inspection) Log(log logger.ILogger) {
	log = logger.OrNull(log)
	log.Infof("File: %s", in.Filename)
	log.Infof("Transfer syntax: %s", in.TransferSyntax)
	log.Infof("Modality: %s, PatientID: %s", in.Modality, in.PatientID)
	log.Infof("Study: %s, Series: %s", in.StudyInstanceUID, in.SeriesInstanceUID)
	log.Infof("Photometric interpretation: %s", in.PhotometricInterpretation)
	log.Infof("Rows: %d, Columns: %d, Samples per pixel: %d", in.Rows, in.Cols, in.SamplesPerPixel)
	log.Infof("Bits allocated: %d, Bits stored: %d, Pixel representation: %d", in.BitsAllocated, in.BitsStored, in.PixelRepresentation)
	if !in.HasPixelData {
		log.Infof("Pixel data: absent")
	} else {
		log.Infof("Pixel data: %d frame(s), %d bytes, %s", in.Frames, in.PixelDataLength, in.SampleType)
	}
	if in.DecodeError != "" {
		log.Errorf("Pixel data could not be decoded: %s", in.DecodeError)
		return
	}
	log.Infof("Array shape: (%d, %d, %d), range [%.2f, %.2f]", in.Rows, in.Cols, in.SamplesPerPixel, in.Min, in.Max)
}
