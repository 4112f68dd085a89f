package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"

	"aortec/internal/logger"
	"aortec/pkg/config"
	"aortec/pkg/metrics"
	"aortec/pkg/phantom"
	"aortec/pkg/reconstruction"
	"aortec/pkg/render"
	"aortec/pkg/storage"
	"aortec/pkg/visualization"
)

const usageModes = "stl, raster, segment, measure, reformat, threshold, inspect or phantom"

func main() {
	// Parse command line arguments
	mode := flag.String("mode", "stl", "Conversion to run: "+usageModes)
	input := flag.String("input", "", "DICOM series directory, .zip archive, or single file (raster mode)")
	output := flag.String("output", "aorta.stl", "Output file, or directory for segment, reformat and phantom modes")
	configPath := flag.String("config", "aortec.yaml", "Path to YAML configuration file")
	lower := flag.String("lower", "", "Lower threshold in modality units; auto-detected when empty")
	upper := flag.String("upper", "", "Upper threshold in modality units; auto-detected when empty")
	segLower := flag.Float64("seg-lower", 100, "Lower display value (0-255) painted by segment mode")
	segUpper := flag.Float64("seg-upper", 300, "Upper display value (0-255) painted by segment mode")
	axisName := flag.String("axis", "axial", "Reformat axis: axial, coronal, sagittal (or z, y, x)")
	position := flag.Int("position", -1, "Reformat plane index; -1 writes every plane")
	format := flag.String("format", "png", "Image format for reformat mode: png, jpg or webp")
	width := flag.Int("width", 0, "Raster mode output width; 0 keeps the native size")
	height := flag.Int("height", 0, "Raster mode output height; 0 keeps the aspect ratio")
	interpolation := flag.Int("interpolation", 0, "Slice interpolation factor; overrides the config when > 0")
	saveIntermediary := flag.Bool("save-intermediary", false, "Save intermediary results during processing")
	intermediaryDir := flag.String("intermediary-dir", "intermediary_results", "Directory to save intermediary results")
	logLevel := flag.String("log-level", "", "Log level: debug, info or error; overrides the config")
	quiet := flag.Bool("quiet", false, "Suppress progress output")
	initConfig := flag.Bool("init-config", false, "Write the default configuration to -config and exit")
	flag.Parse()

	if *initConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to create config file: %v", err)
		}
		fmt.Printf("Default configuration written to: %s\n", *configPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *logLevel != "" {
		cfg.Output.LogLevel = *logLevel
	}
	if *interpolation > 0 {
		cfg.Volume.InterpolationFactor = *interpolation
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ourLogger := logger.New(logger.ParseLogLevel(cfg.Output.LogLevel), *quiet || !cfg.Output.Verbose)

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
		}); err != nil {
			ourLogger.Errorf("Sentry initialization failed: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	if *mode == "phantom" {
		files, err := phantom.Generate(*output, phantom.DefaultOptions())
		if err != nil {
			log.Fatalf("Failed to generate phantom: %v", err)
		}
		fmt.Printf("Wrote %d phantom slices to %s\n", len(files), *output)
		return
	}

	if *input == "" {
		flag.Usage()
		os.Exit(1)
	}

	m := metrics.New()
	params := &reconstruction.Params{
		Config:                  cfg,
		SaveIntermediaryResults: *saveIntermediary,
		IntermediaryDir:         *intermediaryDir,
		Logger:                  ourLogger,
		Metrics:                 m,
	}
	if cfg.Storage.Bucket != "" && *mode == "stl" {
		pub, err := storage.Open(cfg.Storage.Backend, cfg.Storage.Bucket, cfg.Storage.Prefix, cfg.Storage.Region, ourLogger)
		if err != nil {
			log.Fatalf("Failed to open storage: %v", err)
		}
		params.Publisher = pub
	}
	rec := reconstruction.NewReconstructor(params)

	startTime := time.Now()
	err = run(rec, *mode, *input, *output, runOptions{
		lower:    lower,
		upper:    upper,
		segLower: *segLower,
		segUpper: *segUpper,
		axis:     *axisName,
		position: *position,
		format:   *format,
		width:    *width,
		height:   *height,
	})

	if werr := m.WriteTextfile(cfg.Metrics.TextfilePath); werr != nil {
		ourLogger.Errorf("Failed to write metrics: %v", werr)
	}

	if err != nil {
		if cfg.Sentry.DSN != "" {
			sentry.CaptureException(err)
		}
		fmt.Fprintf(os.Stderr, "Conversion failed (%s): %v\n", reconstruction.Outcome(err), err)
		if cfg.Sentry.DSN != "" {
			sentry.Flush(2 * time.Second)
		}
		os.Exit(1)
	}
	fmt.Printf("\nCompleted %s conversion in %.2f seconds\n", *mode, time.Since(startTime).Seconds())
}

type runOptions struct {
	lower, upper       *string
	segLower, segUpper float64
	axis               string
	position           int
	format             string
	width, height      int
}

func run(rec *reconstruction.Reconstructor, mode, input, output string, o runOptions) error {
	switch mode {
	case "stl":
		res, err := rec.Process(input, output, o.lower, o.upper)
		if err != nil {
			fmt.Printf("Error image written to: %s\n", res.PreviewPath)
			return err
		}
		h := res.Handle
		fmt.Printf("\nSTL model saved to: %s\n", res.STLPath)
		fmt.Printf("Preview saved to: %s", res.PreviewPath)
		if res.PreviewDegraded {
			fmt.Printf(" (placeholder)")
		}
		fmt.Println()
		fmt.Printf("Threshold: [%.1f, %.1f] (%s), %d voxels\n", h.Threshold.Pair.Lower, h.Threshold.Pair.Upper, h.Threshold.Stage, h.Threshold.MaskCount)
		fmt.Printf("Mesh: %d vertices, %d faces, closed: %v\n", len(h.Mesh.Vertices), len(h.Mesh.Faces), h.Quality.Closed())
		fmt.Printf("Volume: %.1f mm^3 (mask %.1f mm^3)\n", h.Quality.MeshVolume, h.Quality.MaskVolume)
		for _, key := range res.Published {
			fmt.Printf("Published: %s\n", key)
		}
		return nil

	case "raster":
		opts := visualization.DefaultSaveOptions()
		opts.Width, opts.Height = o.width, o.height
		if err := rec.ConvertRaster(input, output, opts); err != nil {
			return err
		}
		fmt.Printf("Image saved to: %s\n", output)
		return nil

	case "segment":
		files, err := rec.Segment(input, outputDir(output), o.segLower, o.segUpper)
		if err != nil {
			return err
		}
		fmt.Printf("%d segmented slices saved to: %s\n", len(files), outputDir(output))
		return nil

	case "measure":
		m, err := rec.Measure(input, output, o.lower, o.upper)
		if err != nil {
			return err
		}
		fmt.Printf("Maximum Diameter: %.2f mm (slice %d)\n", m.MaxDiameter, m.MaxDiameterSlice)
		fmt.Printf("Major/Minor Axis: %.2f / %.2f mm\n", m.MajorAxis, m.MinorAxis)
		fmt.Printf("Report saved to: %s\n", output)
		return nil

	case "reformat":
		axis, err := visualization.ParseAxis(o.axis)
		if err != nil {
			return err
		}
		files, err := rec.Reformat(input, outputDir(output), axis, o.position, o.format)
		if err != nil {
			return err
		}
		fmt.Printf("%d %s slices saved to: %s\n", len(files), axis, outputDir(output))
		return nil

	case "threshold":
		res, err := rec.ThresholdOnly(input, o.lower, o.upper)
		if err != nil {
			return err
		}
		for _, a := range res.Attempts {
			fmt.Printf("%-20s [%.2f, %.2f] %d voxels\n", a.Stage, a.Pair.Lower, a.Pair.Upper, a.MaskCount)
		}
		fmt.Printf("Selected: [%.2f, %.2f] (%s)\n", res.Pair.Lower, res.Pair.Upper, res.Stage)
		return nil

	case "inspect":
		in, err := rec.Inspect(input)
		if err != nil {
			return err
		}
		if in.DecodeError != "" {
			fmt.Printf("%s: pixel data not decodable: %s\n", in.Filename, in.DecodeError)
			return nil
		}
		fmt.Printf("%s: %s %dx%dx%d %s, range [%.2f, %.2f]\n", in.Filename, in.TransferSyntax,
			in.Rows, in.Cols, in.SamplesPerPixel, in.SampleType, in.Min, in.Max)
		return nil
	}

	return writeUsageError(output, mode)
}

// outputDir drops a file extension so "out.stl" style defaults still give a directory
func outputDir(output string) string {
	if ext := filepath.Ext(output); ext != "" {
		return strings.TrimSuffix(output, ext)
	}
	return output
}

func writeUsageError(output, mode string) error {
	err := fmt.Errorf("unknown mode %q (expected %s)", mode, usageModes)
	if strings.EqualFold(filepath.Ext(output), ".png") {
		if werr := render.SaveErrorImage(output, "Unsupported Conversion", err); werr != nil {
			return werr
		}
	}
	return err
}
