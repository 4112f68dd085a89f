package models

// Slice represents a single decoded DICOM image with the metadata needed
// to order it within a series and place it in physical space.
// A Slice is never modified after the loader returns it.
type Slice struct {
	// Filename is the base name of the source file
	Filename string

	// Rows and Cols are the 2D pixel dimensions
	Rows, Cols int

	// SamplesPerPixel is 1 for grayscale, 3 for RGB
	SamplesPerPixel int

	// Pixels holds Rows*Cols*SamplesPerPixel intensities, row-major and
	// sample-interleaved, with RescaleSlope/RescaleIntercept already applied
	Pixels []float64

	// PixelSpacing is (row spacing, column spacing) in mm; zero when undeclared
	PixelSpacing [2]float64

	// SliceThickness is the declared thickness in mm; zero when undeclared
	SliceThickness float64

	// Ordering attributes, nil when absent from the file
	InstanceNumber *int
	SliceLocation  *float64
	PositionZ      *float64

	// Position is ImagePositionPatient when declared
	Position *[3]float64

	// Display-only acquisition attributes
	Modality          string
	PatientID         string
	StudyInstanceUID  string
	SeriesInstanceUID string

	// Encapsulated is true when the pixel data was compressed in the file
	Encapsulated bool
}

// Shape returns the 2D shape of the slice.
func (s *Slice) Shape() [2]int {
	return [2]int{s.Rows, s.Cols}
}

// Channel returns the given sample channel as a Rows*Cols plane.
func (s *Slice) Channel(ch int) []float64 {
	spp := s.SamplesPerPixel
	if spp <= 1 {
		return s.Pixels
	}
	out := make([]float64, s.Rows*s.Cols)
	for i := range out {
		out[i] = s.Pixels[i*spp+ch]
	}
	return out
}
