package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Render.Width != 800 || cfg.Render.Height != 600 {
		t.Errorf("expected 800x600 preview, got %dx%d", cfg.Render.Width, cfg.Render.Height)
	}
	if cfg.Mesh.SmoothingIterations != 10 {
		t.Errorf("expected 10 smoothing iterations, got %d", cfg.Mesh.SmoothingIterations)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "aortec.yaml")

	cfg := DefaultConfig()
	cfg.Threshold.MinVoxels = 250
	cfg.Mesh.Decimate = true
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if loaded.Threshold.MinVoxels != 250 {
		t.Errorf("expected minVoxels 250, got %d", loaded.Threshold.MinVoxels)
	}
	if !loaded.Mesh.Decimate {
		t.Errorf("expected decimate to survive round trip")
	}
}

func TestLoadConfigPartialOverridesKeepDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	if err := os.WriteFile(path, []byte("surface:\n  isoValue: 0.3\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Surface.IsoValue != 0.3 {
		t.Errorf("expected iso 0.3, got %v", cfg.Surface.IsoValue)
	}
	if cfg.Surface.RetryIsoValue != 0.1 {
		t.Errorf("expected default retry iso 0.1, got %v", cfg.Surface.RetryIsoValue)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Run("s3 without bucket", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Storage.Backend = "s3"
		if err := cfg.Validate(); err == nil {
			t.Errorf("expected error")
		}
	})
	t.Run("interpolation factor", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Volume.InterpolationFactor = 0
		if err := cfg.Validate(); err == nil {
			t.Errorf("expected error")
		}
	})
	t.Run("defaults valid", func(t *testing.T) {
		if err := DefaultConfig().Validate(); err != nil {
			t.Errorf("defaults rejected: %v", err)
		}
	})
}
