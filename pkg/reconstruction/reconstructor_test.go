package reconstruction

import (
	"image/color"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gonum.org/v1/gonum/spatial/r3"

	"aortec/internal/models"
	"aortec/pkg/mesh"
	"aortec/pkg/metrics"
	"aortec/pkg/phantom"
	"aortec/pkg/render"
	"aortec/pkg/series"
	"aortec/pkg/stl"
	"aortec/pkg/storage"
	"aortec/pkg/surface"
	"aortec/pkg/threshold"
	"aortec/pkg/visualization"
	"aortec/pkg/volume"
)

func strPtr(s string) *string {
	return &s
}

// smallPhantom is quick enough to run in short mode
func smallPhantom() phantom.Options {
	o := phantom.DefaultOptions()
	o.Rows, o.Cols, o.Slices = 24, 24, 8
	o.PixelSpacing = 1
	o.SliceSpacing = 2
	o.VesselRadius = 3
	o.AneurysmRadius = 5
	return o
}

// writePhantom generates a series and returns its directory
func writePhantom(t *testing.T, o phantom.Options) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "series")
	if _, err := phantom.Generate(dir, o); err != nil {
		t.Fatalf("Failed to generate phantom: %v", err)
	}
	return dir
}

// TestProcessPhantom runs the complete pipeline on the aneurysm phantom
func TestProcessPhantom(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	o := phantom.DefaultOptions()
	dir := writePhantom(t, o)
	out := filepath.Join(t.TempDir(), "out", "aorta.stl")

	m := metrics.New()
	rec := NewReconstructor(&Params{Metrics: m})
	res, err := rec.Process(dir, out, strPtr("200"), strPtr("400"))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	h := res.Handle
	if h.Threshold.Stage != threshold.StageManual {
		t.Errorf("Expected manual threshold, got %s", h.Threshold.Stage)
	}
	if h.Threshold.Pair.Lower != 200 {
		t.Errorf("Expected lower bound 200, got %v", h.Threshold.Pair.Lower)
	}
	if h.Volume.Depth != o.Slices || h.Volume.Rows != o.Rows || h.Volume.Cols != o.Cols {
		t.Errorf("Unexpected volume shape %dx%dx%d", h.Volume.Depth, h.Volume.Rows, h.Volume.Cols)
	}
	if math.Abs(h.Volume.Spacing.Slice-o.SliceSpacing) > 1e-6 {
		t.Errorf("Expected slice spacing %v, got %v", o.SliceSpacing, h.Volume.Spacing.Slice)
	}

	if !h.Quality.Closed() {
		t.Errorf("Expected a closed surface, got %d open edges", h.Quality.OpenEdges)
	}
	if h.Quality.MeshVolume <= 0 {
		t.Errorf("Expected outward orientation, got volume %v", h.Quality.MeshVolume)
	}
	if h.Quality.VolumeError > 0.2 {
		t.Errorf("Mesh volume %.1f too far from mask volume %.1f", h.Quality.MeshVolume, h.Quality.MaskVolume)
	}

	// The lumen spans the full depth and is widest mid series
	box := h.Mesh.Bounds()
	if width := box.Max.X - box.Min.X; width < 24 || width > 31 {
		t.Errorf("Expected a lumen about 28 mm across, got %.2f", width)
	}

	back, err := stl.Read(res.STLPath)
	if err != nil {
		t.Fatalf("Failed to read STL back: %v", err)
	}
	if len(back.Faces) != len(h.Mesh.Faces) {
		t.Errorf("STL has %d faces, mesh has %d", len(back.Faces), len(h.Mesh.Faces))
	}

	if res.PreviewDegraded {
		t.Errorf("Expected a rendered preview")
	}
	img, err := imaging.Open(res.PreviewPath)
	if err != nil {
		t.Fatalf("Failed to open preview: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 800 || b.Dy() != 600 {
		t.Errorf("Expected an 800x600 preview, got %dx%d", b.Dx(), b.Dy())
	}

	n, err := testutil.GatherAndCount(m.Registry(), "aortec_conversions_total")
	if err != nil || n != 1 {
		t.Errorf("Expected one conversion series, got %d (%v)", n, err)
	}

	mm := MeasureHandle(h)
	if math.Abs(mm.MaxDiameter-2*o.AneurysmRadius) > 3 {
		t.Errorf("Expected a maximum diameter near %v mm, got %.2f", 2*o.AneurysmRadius, mm.MaxDiameter)
	}
}

func TestProcessPublishes(t *testing.T) {
	dir := writePhantom(t, smallPhantom())
	out := filepath.Join(t.TempDir(), "aorta.stl")
	bucket := t.TempDir()

	rec := NewReconstructor(&Params{
		Publisher: storage.NewPublisher(&storage.FSAccess{}, bucket, "jobs", nil),
	})
	res, err := rec.Process(dir, out, strPtr("200"), strPtr("400"))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(res.Published) != 2 {
		t.Fatalf("Expected STL and preview to be published, got %v", res.Published)
	}
	for _, key := range res.Published {
		if _, err := os.Stat(filepath.Join(bucket, key)); err != nil {
			t.Errorf("Published object %s missing: %v", key, err)
		}
	}
	if want := filepath.ToSlash(filepath.Join("jobs", res.Handle.JobID, "aorta.stl")); res.Published[0] != want {
		t.Errorf("Expected key %s, got %s", want, res.Published[0])
	}
	if _, err := os.Stat(filepath.Join(bucket, "jobs", "latest", "aorta_preview.png")); err != nil {
		t.Errorf("Expected the latest alias to hold the preview: %v", err)
	}
}

func TestAutomaticThresholdFindsStructure(t *testing.T) {
	dir := writePhantom(t, smallPhantom())

	rec := NewReconstructor(nil)
	h, err := rec.AssembleAndExtract(dir, nil, nil)
	if err != nil {
		t.Fatalf("AssembleAndExtract failed: %v", err)
	}
	if h.Threshold.Stage == threshold.StageManual {
		t.Errorf("Expected an automatic threshold stage")
	}
	if h.Mesh.IsEmpty() {
		t.Errorf("Expected a non-empty mesh")
	}
	if h.JobID == "" {
		t.Errorf("Expected a job ID")
	}
}

func TestEmptySeries(t *testing.T) {
	rec := NewReconstructor(nil)
	_, err := rec.AssembleAndExtract(t.TempDir(), nil, nil)

	var empty *series.EmptySeriesError
	if !errors.As(err, &empty) {
		t.Fatalf("Expected EmptySeriesError, got %v", err)
	}
	if Outcome(err) != "empty_series" {
		t.Errorf("Expected empty_series outcome, got %s", Outcome(err))
	}
}

func TestEmptySurfaceWritesErrorImage(t *testing.T) {
	o := smallPhantom()
	o.Tissue, o.Lumen, o.Noise = o.Background, o.Background, 0
	dir := writePhantom(t, o)
	out := filepath.Join(t.TempDir(), "aorta.stl")

	rec := NewReconstructor(nil)
	res, err := rec.Process(dir, out, nil, nil)

	var surf *surface.EmptySurfaceError
	if !errors.As(err, &surf) {
		t.Fatalf("Expected EmptySurfaceError, got %v", err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("Expected no STL to be written")
	}

	img, err := imaging.Open(res.PreviewPath)
	if err != nil {
		t.Fatalf("Expected an error image: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 800 || b.Dy() != 600 {
		t.Errorf("Expected an 800x600 error image, got %dx%d", b.Dx(), b.Dy())
	}
	r, g, b, _ := img.At(0, 0).RGBA()
	want := color.RGBA{255, 240, 240, 255}
	if uint8(r>>8) != want.R || uint8(g>>8) != want.G || uint8(b>>8) != want.B {
		t.Errorf("Unexpected error image background %v", img.At(0, 0))
	}
}

func TestPreviewFallsBackToPlaceholder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "preview.png")
	rec := NewReconstructor(nil)

	err := rec.Preview(&MeshHandle{Mesh: &mesh.Mesh{}}, path)
	var rerr *render.RenderError
	if !errors.As(err, &rerr) {
		t.Fatalf("Expected RenderError, got %v", err)
	}

	img, err := imaging.Open(path)
	if err != nil {
		t.Fatalf("Expected a placeholder image: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 400 || b.Dy() != 300 {
		t.Errorf("Expected a 400x300 placeholder, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestExportRefusesEmptyMesh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.stl")
	rec := NewReconstructor(nil)
	if _, err := rec.Export(&MeshHandle{Mesh: &mesh.Mesh{}}, path); err == nil {
		t.Fatalf("Expected an error for an empty mesh")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("Expected no file to be written")
	}
}

func TestIntermediaryResults(t *testing.T) {
	o := smallPhantom()
	dir := writePhantom(t, o)
	inter := filepath.Join(t.TempDir(), "inter")

	rec := NewReconstructor(&Params{SaveIntermediaryResults: true, IntermediaryDir: inter})
	if _, err := rec.AssembleAndExtract(dir, strPtr("200"), strPtr("400")); err != nil {
		t.Fatalf("AssembleAndExtract failed: %v", err)
	}

	for _, name := range []string{
		"01_slices/slice_axial_000.png",
		"02_mask/mask_000.png",
		"03_mesh.png",
	} {
		if _, err := os.Stat(filepath.Join(inter, name)); err != nil {
			t.Errorf("Missing intermediary result %s: %v", name, err)
		}
	}
	files, _ := filepath.Glob(filepath.Join(inter, "02_mask", "*.png"))
	if len(files) != o.Slices {
		t.Errorf("Expected %d mask overlays, got %d", o.Slices, len(files))
	}
}

func TestInterpolationFactor(t *testing.T) {
	o := smallPhantom()
	dir := writePhantom(t, o)

	rec := NewReconstructor(nil)
	rec.cfg.Volume.InterpolationFactor = 2
	vol, _, err := rec.LoadVolume(dir)
	if err != nil {
		t.Fatalf("LoadVolume failed: %v", err)
	}
	if want := 2*(o.Slices-1) + 1; vol.Depth != want {
		t.Errorf("Expected %d planes, got %d", want, vol.Depth)
	}
	if math.Abs(vol.Spacing.Slice-o.SliceSpacing/2) > 1e-6 {
		t.Errorf("Expected slice spacing %v, got %v", o.SliceSpacing/2, vol.Spacing.Slice)
	}
}

func TestModes(t *testing.T) {
	o := smallPhantom()
	dir := writePhantom(t, o)
	out := t.TempDir()
	rec := NewReconstructor(nil)

	t.Run("raster series", func(t *testing.T) {
		path := filepath.Join(out, "middle.png")
		if err := rec.ConvertRaster(dir, path, visualization.DefaultSaveOptions()); err != nil {
			t.Fatalf("ConvertRaster failed: %v", err)
		}
		img, err := imaging.Open(path)
		if err != nil {
			t.Fatalf("Failed to open raster: %v", err)
		}
		if b := img.Bounds(); b.Dx() != o.Cols || b.Dy() != o.Rows {
			t.Errorf("Expected %dx%d, got %dx%d", o.Cols, o.Rows, b.Dx(), b.Dy())
		}
	})

	t.Run("raster file", func(t *testing.T) {
		files, _ := filepath.Glob(filepath.Join(dir, "*.dcm"))
		if len(files) == 0 {
			t.Fatalf("No phantom files found")
		}
		path := filepath.Join(out, "single.jpg")
		if err := rec.ConvertRaster(files[0], path, visualization.DefaultSaveOptions()); err != nil {
			t.Fatalf("ConvertRaster failed: %v", err)
		}
		if _, err := os.Stat(path); err != nil {
			t.Errorf("Expected %s: %v", path, err)
		}
	})

	t.Run("segment", func(t *testing.T) {
		files, err := rec.Segment(dir, filepath.Join(out, "seg"), 100, 255)
		if err != nil {
			t.Fatalf("Segment failed: %v", err)
		}
		if len(files) != o.Slices {
			t.Errorf("Expected %d overlays, got %d", o.Slices, len(files))
		}
	})

	t.Run("reformat", func(t *testing.T) {
		files, err := rec.Reformat(dir, filepath.Join(out, "coronal"), visualization.Coronal, -1, "png")
		if err != nil {
			t.Fatalf("Reformat failed: %v", err)
		}
		if len(files) != o.Rows {
			t.Errorf("Expected %d coronal planes, got %d", o.Rows, len(files))
		}

		files, err = rec.Reformat(dir, filepath.Join(out, "single"), visualization.Sagittal, 3, "")
		if err != nil {
			t.Fatalf("Reformat failed: %v", err)
		}
		if len(files) != 1 || filepath.Base(files[0]) != "slice_sagittal_003.png" {
			t.Errorf("Unexpected files %v", files)
		}
	})

	t.Run("measure", func(t *testing.T) {
		report := filepath.Join(out, "report.txt")
		m, err := rec.Measure(dir, report, strPtr("200"), strPtr("400"))
		if err != nil {
			t.Fatalf("Measure failed: %v", err)
		}
		if math.Abs(m.MaxDiameter-2*o.AneurysmRadius) > 2.5 {
			t.Errorf("Expected a diameter near %v mm, got %.2f", 2*o.AneurysmRadius, m.MaxDiameter)
		}
		if _, err := os.Stat(report); err != nil {
			t.Errorf("Expected a report: %v", err)
		}
	})

	t.Run("inspect", func(t *testing.T) {
		files, _ := filepath.Glob(filepath.Join(dir, "*.dcm"))
		if len(files) == 0 {
			t.Fatalf("No phantom files found")
		}
		in, err := rec.Inspect(files[0])
		if err != nil {
			t.Fatalf("Inspect failed: %v", err)
		}
		if in.Rows != o.Rows || in.Cols != o.Cols || !in.HasPixelData {
			t.Errorf("Unexpected inspection %+v", in)
		}
		if in.Min > in.Max {
			t.Errorf("Expected an ordered range, got [%v, %v]", in.Min, in.Max)
		}
		if _, err := rec.Inspect(filepath.Join(out, "missing.dcm")); err == nil {
			t.Errorf("Expected a missing file to fail")
		}
	})

	t.Run("threshold", func(t *testing.T) {
		res, err := rec.ThresholdOnly(dir, strPtr("400"), strPtr("200"))
		if err != nil {
			t.Fatalf("ThresholdOnly failed: %v", err)
		}
		if res.Pair.Lower > res.Pair.Upper {
			t.Errorf("Expected inverted bounds to be swapped, got %+v", res.Pair)
		}
	})
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{&series.EmptySeriesError{Dir: "x"}, "empty_series"},
		{errors.Wrap(&volume.InconsistentGeometryError{}, "failed"), "inconsistent_geometry"},
		{&surface.EmptySurfaceError{}, "empty_surface"},
		{&render.RenderError{Err: errors.New("boom")}, "render"},
		{errors.New("other"), "error"},
	}
	for _, tt := range tests {
		if got := Outcome(tt.err); got != tt.want {
			t.Errorf("Outcome(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestPreviewPath(t *testing.T) {
	if got := PreviewPath(filepath.Join("out", "aorta.stl")); got != filepath.Join("out", "aorta_preview.png") {
		t.Errorf("Unexpected preview path %s", got)
	}
}

func TestAssessUnitCube(t *testing.T) {
	m := &mesh.Mesh{
		Vertices: []r3.Vec{
			{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 1, Y: 1, Z: 0}, {X: 0, Y: 1, Z: 0},
			{X: 0, Y: 0, Z: 1}, {X: 1, Y: 0, Z: 1}, {X: 1, Y: 1, Z: 1}, {X: 0, Y: 1, Z: 1},
		},
		Faces: [][3]int{
			{0, 2, 1}, {0, 3, 2}, {4, 5, 6}, {4, 6, 7},
			{0, 1, 5}, {0, 5, 4}, {3, 7, 6}, {3, 6, 2},
			{0, 4, 7}, {0, 7, 3}, {1, 2, 6}, {1, 6, 5},
		},
	}

	q := assess(m, 1, models.Spacing{Col: 1, Row: 1, Slice: 1})
	if !q.Closed() {
		t.Errorf("Expected a closed cube, got %d open edges", q.OpenEdges)
	}
	if math.Abs(q.MeshVolume-1) > 1e-9 || q.VolumeError > 1e-9 {
		t.Errorf("Expected unit volume, got %+v", q)
	}
	if math.Abs(q.SurfaceArea-6) > 1e-9 {
		t.Errorf("Expected area 6, got %v", q.SurfaceArea)
	}

	m.Faces = m.Faces[:11]
	if q := assess(m, 2, models.Spacing{Col: 1, Row: 1, Slice: 1}); q.Closed() || q.VolumeError == 0 {
		t.Errorf("Expected an open mesh with volume error, got %+v", q)
	}
}
