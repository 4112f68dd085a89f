package series

import (
	"github.com/cocosip/go-dicom-codec/jpeg/baseline"
	"github.com/cocosip/go-dicom-codec/jpeg/extended"
	"github.com/cocosip/go-dicom-codec/jpeg/lossless"
	"github.com/cocosip/go-dicom-codec/jpeg/lossless14sv1"
	"github.com/cocosip/go-dicom-codec/jpeg2000"
	jlslossless "github.com/cocosip/go-dicom-codec/jpegls/lossless"
	"github.com/cocosip/go-dicom-codec/jpegls/nearlossless"
	"github.com/pkg/errors"
)

// Transfer syntaxes with compressed pixel data that can be decoded
const (
	TransferJPEGBaseline       = "1.2.840.10008.1.2.4.50"
	TransferJPEGExtended       = "1.2.840.10008.1.2.4.51"
	TransferJPEGLossless       = "1.2.840.10008.1.2.4.57"
	TransferJPEGLosslessSV1    = "1.2.840.10008.1.2.4.70"
	TransferJPEGLSLossless     = "1.2.840.10008.1.2.4.80"
	TransferJPEGLSNearLossless = "1.2.840.10008.1.2.4.81"
	TransferJPEG2000Lossless   = "1.2.840.10008.1.2.4.90"
	TransferJPEG2000           = "1.2.840.10008.1.2.4.91"
)

// decodeEncapsulated decompresses one frame and returns its samples,
// rows, cols and samples per pixel
func decodeEncapsulated(ts string, data []byte, signed bool) ([]float64, int, int, int, error) {
	if len(data) == 0 {
		return nil, 0, 0, 0, errors.New("encapsulated frame is empty")
	}

	var (
		pix                  []byte
		width, height, comps int
		bitDepth             = 8
		err                  error
	)

	switch ts {
	case TransferJPEGBaseline:
		pix, width, height, comps, err = baseline.Decode(data)
	case TransferJPEGExtended:
		pix, width, height, comps, bitDepth, err = extended.Decode(data)
	case TransferJPEGLossless:
		pix, width, height, comps, bitDepth, err = lossless.Decode(data)
	case TransferJPEGLosslessSV1:
		pix, width, height, comps, bitDepth, err = lossless14sv1.Decode(data)
	case TransferJPEGLSLossless:
		pix, width, height, comps, bitDepth, err = jlslossless.Decode(data)
	case TransferJPEGLSNearLossless:
		pix, width, height, comps, bitDepth, _, err = nearlossless.Decode(data)
	case TransferJPEG2000Lossless, TransferJPEG2000:
		return decodeJPEG2000(data)
	default:
		return nil, 0, 0, 0, errors.Errorf("unsupported transfer syntax %q", ts)
	}
	if err != nil {
		return nil, 0, 0, 0, errors.Wrapf(err, "decoding %s frame", ts)
	}
	if comps <= 0 {
		comps = 1
	}

	n := width * height * comps
	out := make([]float64, n)
	if bitDepth > 8 {
		if len(pix) < 2*n {
			return nil, 0, 0, 0, errors.Errorf("decoded frame too short: %d bytes for %d samples", len(pix), n)
		}
		for i := 0; i < n; i++ {
			v := uint16(pix[2*i]) | uint16(pix[2*i+1])<<8
			if signed {
				out[i] = float64(int16(v))
			} else {
				out[i] = float64(v)
			}
		}
	} else {
		if len(pix) < n {
			return nil, 0, 0, 0, errors.Errorf("decoded frame too short: %d bytes for %d samples", len(pix), n)
		}
		for i := 0; i < n; i++ {
			if signed {
				out[i] = float64(int8(pix[i]))
			} else {
				out[i] = float64(pix[i])
			}
		}
	}
	return out, height, width, comps, nil
}

func decodeJPEG2000(data []byte) ([]float64, int, int, int, error) {
	dec := jpeg2000.NewDecoder()
	if err := dec.Decode(data); err != nil {
		return nil, 0, 0, 0, errors.Wrap(err, "decoding JPEG 2000 frame")
	}

	width, height, comps := dec.Width(), dec.Height(), dec.Components()
	if comps <= 0 {
		comps = 1
	}
	planes := make([][]int32, comps)
	for c := 0; c < comps; c++ {
		plane, err := dec.GetComponentData(c)
		if err != nil {
			return nil, 0, 0, 0, errors.Wrap(err, "reading JPEG 2000 component")
		}
		if len(plane) < width*height {
			return nil, 0, 0, 0, errors.Errorf("JPEG 2000 component %d too short", c)
		}
		planes[c] = plane
	}

	out := make([]float64, width*height*comps)
	for i := 0; i < width*height; i++ {
		for c := 0; c < comps; c++ {
			out[i*comps+c] = float64(planes[c][i])
		}
	}
	return out, height, width, comps, nil
}
