// Package reconstruction drives the conversion of a DICOM series into a
// surface model of the aorta.
//
// The pipeline consists of several steps:
//  1. Loading and ordering the slices of the series
//  2. Assembling them into a spaced volume, optionally interpolated
//  3. Selecting an intensity window and building the binary mask
//  4. Extracting the surface with marching cubes
//  5. Cleaning, smoothing and orienting the mesh
//  6. Writing the binary STL and its PNG preview
package reconstruction

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"aortec/internal/logger"
	"aortec/internal/models"
	"aortec/pkg/config"
	"aortec/pkg/measure"
	"aortec/pkg/mesh"
	"aortec/pkg/metrics"
	"aortec/pkg/render"
	"aortec/pkg/series"
	"aortec/pkg/stl"
	"aortec/pkg/storage"
	"aortec/pkg/surface"
	"aortec/pkg/threshold"
	"aortec/pkg/visualization"
	"aortec/pkg/volume"
)

// Params holds the reconstruction configuration
type Params struct {
	// Config holds the per-stage settings; nil means config.DefaultConfig()
	Config *config.Config

	// SaveIntermediaryResults writes axial slices and mask overlays to
	// IntermediaryDir while the pipeline runs
	SaveIntermediaryResults bool
	IntermediaryDir         string

	Logger  logger.ILogger
	Metrics *metrics.Metrics

	// Publisher, when set, receives the STL and preview of every Process call
	Publisher *storage.Publisher
}

// Quality summarises how faithfully the mesh represents the mask
type Quality struct {
	// MaskVolume is the voxel count times the voxel volume, in mm^3
	MaskVolume float64

	// MeshVolume is the signed volume enclosed by the mesh, in mm^3
	MeshVolume float64

	// VolumeError is |MeshVolume - MaskVolume| / MaskVolume
	VolumeError float64

	SurfaceArea float64

	// OpenEdges counts half-edges with no opposite; zero for a closed surface
	OpenEdges int
}

// Closed reports whether the mesh has no boundary
func (q Quality) Closed() bool {
	return q.OpenEdges == 0
}

// MeshHandle is the in-memory result of AssembleAndExtract
type MeshHandle struct {
	JobID     string
	Mesh      *mesh.Mesh
	Volume    *models.Volume
	Mask      *models.Mask
	Threshold threshold.Result
	IsoValue  float64
	Strategy  series.Strategy
	SortKey   series.KeyKind
	Skipped   []string
	Quality   Quality
}

// Result describes the artifacts written by Process
type Result struct {
	Handle      *MeshHandle
	STLPath     string
	PreviewPath string

	// PreviewDegraded is set when the preview is a placeholder image
	PreviewDegraded bool

	// Published lists the object keys written by the Publisher
	Published []string
}

// Reconstructor runs the conversion pipeline
type Reconstructor struct {
	params  *Params
	cfg     *config.Config
	log     logger.ILogger
	metrics *metrics.Metrics
}

// NewReconstructor creates a new reconstructor instance with the provided parameters
func NewReconstructor(params *Params) *Reconstructor {
	if params == nil {
		params = &Params{}
	}
	cfg := params.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Reconstructor{
		params:  params,
		cfg:     cfg,
		log:     logger.OrNull(params.Logger),
		metrics: params.Metrics,
	}
}

// PreviewPath returns the preview image path that belongs to an STL path
func PreviewPath(stlPath string) string {
	return strings.TrimSuffix(stlPath, filepath.Ext(stlPath)) + "_preview.png"
}

// LoadVolume loads the series in dir and assembles it into a volume
func (r *Reconstructor) LoadVolume(dir string) (*models.Volume, *series.Series, error) {
	r.log.Infof("Step 1: Loading DICOM slices from %s", dir)
	stop := r.metrics.Time("load")
	s, err := series.NewLoader(seriesOptions(r.cfg, r.log)).Load(dir)
	stop()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to load series")
	}
	r.metrics.Slices(len(s.Slices), len(s.Skipped))
	r.log.Infof("Loaded %d slices (%s pixel data, ordered by %s), skipped %d", len(s.Slices), s.Strategy, s.Key, len(s.Skipped))

	r.log.Infof("Step 2: Assembling volume")
	stop = r.metrics.Time("assemble")
	vol, err := volume.NewAssembler(volumeOptions(r.cfg, r.log)).Assemble(s.Slices)
	stop()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to assemble volume")
	}

	if f := r.cfg.Volume.InterpolationFactor; f > 1 {
		stop = r.metrics.Time("interpolate")
		vol = volume.Resample(vol, f)
		stop()
		r.log.Infof("Interpolated to %d planes (factor %d), slice spacing %.3f mm", vol.Depth, f, vol.Spacing.Slice)
	}

	lo, hi := vol.MinMax()
	r.log.Infof("Volume %dx%dx%d, spacing %.3f/%.3f/%.3f mm, range [%.1f, %.1f]",
		vol.Cols, vol.Rows, vol.Depth, vol.Spacing.Col, vol.Spacing.Row, vol.Spacing.Slice, lo, hi)
	return vol, s, nil
}

// segment selects the intensity window for vol and applies it
func (r *Reconstructor) segment(vol *models.Volume, lower, upper *string) (threshold.Result, *models.Mask) {
	r.log.Infof("Step 3: Selecting threshold")
	stop := r.metrics.Time("threshold")
	defer stop()

	res := threshold.NewSelector(thresholdOptions(r.cfg, r.log)).Select(vol, lower, upper)
	r.metrics.ThresholdStage(string(res.Stage))
	if res.Exhausted {
		r.log.Errorf("Warning: no threshold reached %d voxels, using [%.1f, %.1f] with %d voxels",
			r.cfg.Threshold.MinVoxels, res.Pair.Lower, res.Pair.Upper, res.MaskCount)
	} else {
		r.log.Infof("Threshold [%.1f, %.1f] (%s) selects %d voxels", res.Pair.Lower, res.Pair.Upper, res.Stage, res.MaskCount)
	}
	return res, threshold.Apply(vol, res.Pair)
}

// AssembleAndExtract loads the series in dir and returns the post-processed
// mesh. lower and upper are optional threshold bounds as typed by a user.
func (r *Reconstructor) AssembleAndExtract(dir string, lower, upper *string) (*MeshHandle, error) {
	vol, s, err := r.LoadVolume(dir)
	if err != nil {
		return nil, err
	}

	res, mask := r.segment(vol, lower, upper)

	r.log.Infof("Step 4: Extracting surface")
	stop := r.metrics.Time("surface")
	raw, iso, err := surface.Extract(mask, vol.Spacing, surfaceOptions(r.cfg, r.log))
	stop()
	if err != nil {
		return nil, err
	}

	r.log.Infof("Step 5: Post-processing mesh")
	stop = r.metrics.Time("postprocess")
	m := mesh.PostProcess(raw, meshOptions(r.cfg, r.log))
	stop()
	if m.IsEmpty() {
		return nil, &surface.EmptySurfaceError{IsoValues: []float64{iso}, MaskVoxels: res.MaskCount}
	}
	r.metrics.MeshSize(len(m.Vertices), len(m.Faces))

	h := &MeshHandle{
		JobID:     newJobID(),
		Mesh:      m,
		Volume:    vol,
		Mask:      mask,
		Threshold: res,
		IsoValue:  iso,
		Strategy:  s.Strategy,
		SortKey:   s.Key,
		Skipped:   s.Skipped,
	}
	h.Quality = assess(m, res.MaskCount, vol.Spacing)
	r.log.Infof("Mesh: %d vertices, %d faces, volume %.1f mm^3 (mask %.1f mm^3, error %.1f%%), %d open edges",
		len(m.Vertices), len(m.Faces), h.Quality.MeshVolume, h.Quality.MaskVolume, 100*h.Quality.VolumeError, h.Quality.OpenEdges)

	if r.params.SaveIntermediaryResults {
		if err := r.saveIntermediaryResults(h); err != nil {
			r.log.Errorf("Warning: failed to save intermediary results: %v", err)
		}
	}
	return h, nil
}

func assess(m *mesh.Mesh, maskVoxels int, spacing models.Spacing) Quality {
	q := Quality{
		MaskVolume:  float64(maskVoxels) * spacing.VoxelVolume(),
		MeshVolume:  m.SignedVolume(),
		SurfaceArea: m.SurfaceArea(),
		OpenEdges:   m.OpenEdges(),
	}
	if q.MaskVolume > 0 {
		q.VolumeError = math.Abs(q.MeshVolume-q.MaskVolume) / q.MaskVolume
	}
	return q
}

// Export writes the mesh of h as a binary STL and returns the path written
func (r *Reconstructor) Export(h *MeshHandle, path string) (string, error) {
	if h == nil || h.Mesh.IsEmpty() {
		return "", &surface.EmptySurfaceError{}
	}
	r.log.Infof("Step 6: Writing STL to %s", path)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", errors.Wrap(err, "failed to create output directory")
	}
	stop := r.metrics.Time("export")
	defer stop()
	if err := stl.Write(path, h.Mesh); err != nil {
		return "", err
	}
	return path, nil
}

// Preview renders the preview image of h. A *render.RenderError means a
// placeholder was written in its place.
func (r *Reconstructor) Preview(h *MeshHandle, path string) error {
	stop := r.metrics.Time("render")
	defer stop()
	var m *mesh.Mesh
	if h != nil {
		m = h.Mesh
	}
	if m == nil {
		m = &mesh.Mesh{}
	}
	return render.RenderPreview(m, path, renderOptions(r.cfg, r.log))
}

// Process converts input (a series directory or a .zip archive) into an STL
// at outputFile and a preview next to it. On failure an error image is
// written at the preview path.
func (r *Reconstructor) Process(input, outputFile string, lower, upper *string) (*Result, error) {
	result := &Result{STLPath: outputFile, PreviewPath: PreviewPath(outputFile)}

	h, err := r.process(input, outputFile, lower, upper, result)
	result.Handle = h
	if err != nil {
		r.metrics.Conversion("stl", Outcome(err))
		r.writeErrorImage(result.PreviewPath, err)
		return result, err
	}
	r.metrics.Conversion("stl", Outcome(nil))

	if p := r.params.Publisher; p != nil {
		files := []string{result.STLPath, result.PreviewPath}
		keys, err := p.Publish(h.JobID, files...)
		result.Published = keys
		if err != nil {
			return result, errors.Wrap(err, "failed to publish artifacts")
		}
	}
	return result, nil
}

func (r *Reconstructor) process(input, outputFile string, lower, upper *string, result *Result) (*MeshHandle, error) {
	dir, cleanup, err := series.NewLoader(seriesOptions(r.cfg, r.log)).Stage(input)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	h, err := r.AssembleAndExtract(dir, lower, upper)
	if err != nil {
		return nil, err
	}
	if _, err := r.Export(h, outputFile); err != nil {
		return h, err
	}

	r.log.Infof("Step 7: Rendering preview to %s", result.PreviewPath)
	if err := r.Preview(h, result.PreviewPath); err != nil {
		var rerr *render.RenderError
		if !errors.As(err, &rerr) {
			return h, err
		}
		r.log.Errorf("Warning: preview degraded to placeholder: %v", rerr.Err)
		result.PreviewDegraded = true
	}
	return h, nil
}

func (r *Reconstructor) writeErrorImage(path string, cause error) {
	title := "STL Conversion Error"
	hints := []string{
		"Possible causes: missing or corrupted DICOM files,",
		"unsupported compression, or no structure in the threshold range.",
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		r.log.Errorf("Failed to create directory for error image: %v", err)
		return
	}
	if err := render.SaveErrorImage(path, title, cause, hints...); err != nil {
		r.log.Errorf("Failed to write error image %s: %v", path, err)
	}
}

// saveIntermediaryResults writes the axial slices of the volume and the
// mask overlay of every plane
func (r *Reconstructor) saveIntermediaryResults(h *MeshHandle) error {
	root := r.params.IntermediaryDir
	if root == "" {
		root = "intermediary"
	}

	r.log.Infof("Saving intermediary results to %s", root)
	viewer := visualization.NewViewer(h.Volume)
	if _, err := viewer.SaveSliceSequence(visualization.Axial, filepath.Join(root, "01_slices"), "png", visualization.DefaultSaveOptions()); err != nil {
		return err
	}

	maskDir := filepath.Join(root, "02_mask")
	lo, hi := h.Volume.MinMax()
	for d := 0; d < h.Volume.Depth; d++ {
		img := visualization.MaskOverlay(h.Volume, h.Mask, d, lo, hi)
		path := filepath.Join(maskDir, fmt.Sprintf("mask_%03d.png", d))
		if err := visualization.SaveImage(img, path, visualization.DefaultSaveOptions()); err != nil {
			return err
		}
	}

	preview := filepath.Join(root, "03_mesh.png")
	if err := r.Preview(h, preview); err != nil {
		r.log.Errorf("Warning: failed to render intermediary preview: %v", err)
	}
	return nil
}

// Outcome maps a pipeline error to the label used in conversion metrics
func Outcome(err error) string {
	var (
		empty   *series.EmptySeriesError
		geom    *volume.InconsistentGeometryError
		surf    *surface.EmptySurfaceError
		rendErr *render.RenderError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &empty):
		return "empty_series"
	case errors.As(err, &geom):
		return "inconsistent_geometry"
	case errors.As(err, &surf):
		return "empty_surface"
	case errors.As(err, &rendErr):
		return "render"
	}
	return "error"
}

// MeasureHandle computes the diameter measurement of the mask behind h
func MeasureHandle(h *MeshHandle) measure.Measurement {
	return measure.Measure(h.Mask, h.Volume.Spacing)
}
