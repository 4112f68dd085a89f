package mesh

import "aortec/internal/logger"

// Options controls PostProcess
type Options struct {
	// WeldTolerance is the lattice spacing for merging vertices, in mm
	WeldTolerance float64

	SmoothingIterations int
	Relaxation          float64

	Decimate        bool
	TargetReduction float64

	Logger logger.ILogger
}

// DefaultOptions returns 10 iterations of relaxation 0.1 with decimation off
func DefaultOptions() Options {
	return Options{
		WeldTolerance:       1e-6,
		SmoothingIterations: 10,
		Relaxation:          0.1,
		Decimate:            false,
		TargetReduction:     0.5,
	}
}

// PostProcess runs clean, largest component, smoothing, optional decimation
// and normal computation, in that order
func PostProcess(m *Mesh, opts Options) *Mesh {
	log := logger.OrNull(opts.Logger)
	if m.IsEmpty() {
		log.Infof("Mesh is empty, skipping post-processing")
		return m
	}

	before := len(m.Faces)
	m = Clean(m, opts.WeldTolerance)
	log.Debugf("Clean: %d -> %d faces, %d vertices", before, len(m.Faces), len(m.Vertices))

	if _, n := Components(m); n > 1 {
		before = len(m.Faces)
		m = LargestComponent(m)
		log.Infof("Kept largest of %d components (%d of %d faces)", n, len(m.Faces), before)
	}

	m = Smooth(m, opts.SmoothingIterations, opts.Relaxation)

	if opts.Decimate {
		before = len(m.Faces)
		m = Decimate(m, opts.TargetReduction)
		log.Infof("Decimated %d -> %d faces", before, len(m.Faces))
	}

	m = OrientFaces(m)
	return ComputeNormals(m)
}
