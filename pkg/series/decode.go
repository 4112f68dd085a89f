package series

import (
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"
	"golang.org/x/exp/constraints"

	"aortec/internal/models"
)

// ReadFile parses a single DICOM file into a Slice
func ReadFile(path string) (*models.Slice, error) {
	ds, err := dicom.ParseFile(path, nil)
	if err != nil {
		return nil, errors.Wrap(err, "not a readable DICOM file")
	}
	return SliceFromDataset(ds, filepath.Base(path))
}

// SliceFromDataset extracts pixels and ordering metadata from a parsed dataset
func SliceFromDataset(ds dicom.Dataset, name string) (*models.Slice, error) {
	el, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return nil, errors.New("no pixel data")
	}
	info, ok := el.Value.GetValue().(dicom.PixelDataInfo)
	if !ok || len(info.Frames) == 0 || info.Frames[0] == nil {
		return nil, errors.New("pixel data holds no frames")
	}

	s := &models.Slice{
		Filename:          name,
		SamplesPerPixel:   1,
		Modality:          firstString(ds, tag.Modality),
		PatientID:         firstString(ds, tag.PatientID),
		StudyInstanceUID:  firstString(ds, tag.StudyInstanceUID),
		SeriesInstanceUID: firstString(ds, tag.SeriesInstanceUID),
	}

	rows, hasRows := firstInt(ds, tag.Rows)
	cols, hasCols := firstInt(ds, tag.Columns)
	if spp, ok := firstInt(ds, tag.SamplesPerPixel); ok && spp > 0 {
		s.SamplesPerPixel = spp
	}
	signed := false
	if rep, ok := firstInt(ds, tag.PixelRepresentation); ok && rep == 1 {
		signed = true
	}
	bitsStored, _ := firstInt(ds, tag.BitsStored)

	fr := info.Frames[0]
	var samples []float64
	if fr.Encapsulated {
		s.Encapsulated = true
		ts := firstString(ds, tag.TransferSyntaxUID)
		var dr, dc, dspp int
		samples, dr, dc, dspp, err = decodeEncapsulated(ts, fr.EncapsulatedData.Data, signed)
		if err != nil {
			return nil, err
		}
		if !hasRows || !hasCols {
			rows, cols = dr, dc
		}
		s.SamplesPerPixel = dspp
	} else {
		if fr.NativeData == nil {
			return nil, errors.New("native frame is empty")
		}
		if !hasRows || !hasCols {
			rows, cols = fr.NativeData.Rows(), fr.NativeData.Cols()
		}
		if n := fr.NativeData.SamplesPerPixel(); n > 0 {
			s.SamplesPerPixel = n
		}
		samples, err = nativeSamples(fr.NativeData, signed, bitsStored)
		if err != nil {
			return nil, err
		}
	}

	if rows <= 0 || cols <= 0 {
		return nil, errors.Errorf("invalid image size %dx%d", rows, cols)
	}
	if len(samples) < rows*cols*s.SamplesPerPixel {
		return nil, errors.Errorf("pixel data too short: got %d samples, want %d", len(samples), rows*cols*s.SamplesPerPixel)
	}
	s.Rows, s.Cols = rows, cols
	s.Pixels = samples[:rows*cols*s.SamplesPerPixel]

	slope, intercept := 1.0, 0.0
	if v, ok := firstFloat(ds, tag.RescaleSlope); ok && v != 0 {
		slope = v
	}
	if v, ok := firstFloat(ds, tag.RescaleIntercept); ok {
		intercept = v
	}
	if slope != 1 || intercept != 0 {
		for i, v := range s.Pixels {
			s.Pixels[i] = v*slope + intercept
		}
	}

	if sp := floats(ds, tag.PixelSpacing); len(sp) >= 2 && sp[0] > 0 && sp[1] > 0 {
		s.PixelSpacing = [2]float64{sp[0], sp[1]}
	}
	if v, ok := firstFloat(ds, tag.SliceThickness); ok && v > 0 {
		s.SliceThickness = v
	}
	if v, ok := firstInt(ds, tag.InstanceNumber); ok {
		s.InstanceNumber = &v
	}
	if v, ok := firstFloat(ds, tag.SliceLocation); ok {
		s.SliceLocation = &v
	}
	if pos := floats(ds, tag.ImagePositionPatient); len(pos) >= 3 {
		p := [3]float64{pos[0], pos[1], pos[2]}
		s.Position = &p
		z := pos[2]
		s.PositionZ = &z
	}

	return s, nil
}

// nativeSamples widens the raw frame buffer to float64. Unsigned buffers are
// reinterpreted as two's complement when PixelRepresentation says so.
func nativeSamples(nf frame.INativeFrame, signed bool, bitsStored int) ([]float64, error) {
	if bitsStored <= 0 {
		bitsStored = nf.BitsPerSample()
	}
	switch raw := nf.RawDataSlice().(type) {
	case []uint8:
		return unsignedSamples(raw, signed, bitsStored), nil
	case []uint16:
		return unsignedSamples(raw, signed, bitsStored), nil
	case []uint32:
		return unsignedSamples(raw, signed, bitsStored), nil
	case []int8:
		return toFloat(raw), nil
	case []int16:
		return toFloat(raw), nil
	case []int32:
		return toFloat(raw), nil
	case []int:
		return toFloat(raw), nil
	case []float32:
		return toFloat(raw), nil
	case []float64:
		return toFloat(raw), nil
	}
	return nil, errors.Errorf("unsupported native pixel buffer %T", nf.RawDataSlice())
}

func toFloat[T constraints.Integer | constraints.Float](raw []T) []float64 {
	out := make([]float64, len(raw))
	for i, v := range raw {
		out[i] = float64(v)
	}
	return out
}

func unsignedSamples[T constraints.Unsigned](raw []T, signed bool, bits int) []float64 {
	if !signed || bits <= 0 || bits >= 64 {
		return toFloat(raw)
	}
	mask := uint64(1)<<uint(bits) - 1
	sign := uint64(1) << uint(bits-1)
	out := make([]float64, len(raw))
	for i, v := range raw {
		x := uint64(v) & mask
		if x&sign != 0 {
			out[i] = float64(int64(x) - int64(mask) - 1)
		} else {
			out[i] = float64(x)
		}
	}
	return out
}

func findValue(ds dicom.Dataset, t tag.Tag) interface{} {
	el, err := ds.FindElementByTag(t)
	if err != nil || el.Value == nil {
		return nil
	}
	return el.Value.GetValue()
}

func strs(ds dicom.Dataset, t tag.Tag) []string {
	switch v := findValue(ds, t).(type) {
	case []string:
		return v
	case []int:
		out := make([]string, len(v))
		for i, x := range v {
			out[i] = strconv.Itoa(x)
		}
		return out
	case []float64:
		out := make([]string, len(v))
		for i, x := range v {
			out[i] = strconv.FormatFloat(x, 'g', -1, 64)
		}
		return out
	}
	return nil
}

func firstString(ds dicom.Dataset, t tag.Tag) string {
	v := strs(ds, t)
	if len(v) == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimSpace(v[0]), "\x00")
}

// floats parses numeric element values, including DS/IS strings, and drops
// anything that is not finite
func floats(ds dicom.Dataset, t tag.Tag) []float64 {
	var out []float64
	for _, s := range strs(ds, t) {
		for _, part := range strings.Split(s, `\`) {
			part = strings.TrimRight(strings.TrimSpace(part), "\x00")
			if part == "" {
				continue
			}
			f, err := strconv.ParseFloat(part, 64)
			if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
				continue
			}
			out = append(out, f)
		}
	}
	return out
}

func firstFloat(ds dicom.Dataset, t tag.Tag) (float64, bool) {
	v := floats(ds, t)
	if len(v) == 0 {
		return 0, false
	}
	return v[0], true
}

func firstInt(ds dicom.Dataset, t tag.Tag) (int, bool) {
	f, ok := firstFloat(ds, t)
	if !ok {
		return 0, false
	}
	return int(math.Round(f)), true
}
