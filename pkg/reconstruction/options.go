package reconstruction

import (
	"github.com/google/uuid"

	"aortec/internal/logger"
	"aortec/pkg/config"
	"aortec/pkg/mesh"
	"aortec/pkg/render"
	"aortec/pkg/series"
	"aortec/pkg/surface"
	"aortec/pkg/threshold"
	"aortec/pkg/volume"
)

// The helpers below translate the YAML configuration into the options of
// each pipeline stage, attaching the shared logger.

func seriesOptions(cfg *config.Config, log logger.ILogger) series.Options {
	opts := series.DefaultOptions()
	if len(cfg.Loader.Extensions) > 0 {
		opts.Extensions = cfg.Loader.Extensions
	}
	opts.AcceptExtensionless = cfg.Loader.AcceptExtensionless
	opts.Logger = log
	return opts
}

func volumeOptions(cfg *config.Config, log logger.ILogger) volume.Options {
	return volume.Options{DefaultSpacing: cfg.Volume.DefaultSpacing, Logger: log}
}

func thresholdOptions(cfg *config.Config, log logger.ILogger) threshold.Options {
	t := cfg.Threshold
	return threshold.Options{
		SampleCap:       t.SampleCap,
		LowerPercentile: t.LowerPercentile,
		UpperPercentile: t.UpperPercentile,
		WidenedLower:    t.WidenedLower,
		WidenedUpper:    t.WidenedUpper,
		MedianFactor:    t.MedianFactor,
		MinVoxels:       t.MinVoxels,
		FallbackLower:   t.FallbackLower,
		FallbackUpper:   t.FallbackUpper,
		Logger:          log,
	}
}

func surfaceOptions(cfg *config.Config, log logger.ILogger) surface.Options {
	return surface.Options{
		IsoValue:      cfg.Surface.IsoValue,
		RetryIsoValue: cfg.Surface.RetryIsoValue,
		Logger:        log,
	}
}

func meshOptions(cfg *config.Config, log logger.ILogger) mesh.Options {
	opts := mesh.DefaultOptions()
	opts.SmoothingIterations = cfg.Mesh.SmoothingIterations
	opts.Relaxation = cfg.Mesh.Relaxation
	opts.Decimate = cfg.Mesh.Decimate
	opts.TargetReduction = cfg.Mesh.TargetReduction
	opts.Logger = log
	return opts
}

func renderOptions(cfg *config.Config, log logger.ILogger) render.Options {
	opts := render.DefaultOptions()
	rc := cfg.Render
	opts.Width, opts.Height = rc.Width, rc.Height
	opts.Supersample = rc.Supersample
	opts.Azimuth, opts.Elevation, opts.Zoom = rc.Azimuth, rc.Elevation, rc.Zoom
	opts.Color = rc.Color
	opts.Background = rc.Background
	opts.Logger = log
	return opts
}

// newJobID names the artifacts of one conversion
func newJobID() string {
	return uuid.NewString()
}
