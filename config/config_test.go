package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("loading defaults: %v", err)
	}

	if cfg.Physics.Theta != 0.5 {
		t.Errorf("expected theta 0.5, got %g", cfg.Physics.Theta)
	}
	if cfg.Physics.DT != 1 {
		t.Errorf("expected dt 1, got %g", cfg.Physics.DT)
	}
	if math.Abs(cfg.Derived.MergeAngle-math.Pi/2) > 1e-12 {
		t.Errorf("expected merge angle π/2, got %g", cfg.Derived.MergeAngle)
	}
	if cfg.Derived.Extent != 8000 {
		t.Errorf("expected extent 8000, got %g", cfg.Derived.Extent)
	}
}

func TestLoadOverlaysUserFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("physics:\n  theta: 0.7\nscenario:\n  name: collide\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("loading %s: %v", path, err)
	}
	if cfg.Physics.Theta != 0.7 {
		t.Errorf("expected theta 0.7, got %g", cfg.Physics.Theta)
	}
	if cfg.Scenario.Name != "collide" {
		t.Errorf("expected scenario collide, got %q", cfg.Scenario.Name)
	}
	// Untouched keys keep their defaults
	if cfg.Physics.G != 0.001 {
		t.Errorf("expected default g 0.001, got %g", cfg.Physics.G)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"negative theta", "physics:\n  theta: -0.1\n"},
		{"zero dt", "physics:\n  dt: 0\n"},
		{"inverted bounds", "world:\n  min: [10, 0, 0]\n  max: [0, 1, 1]\n"},
		{"flat world", "world:\n  min: [-10, -4000, -4000]\n  max: [10, 4000, 4000]\n"},
		{"growth not above one", "tree:\n  growth_factor: 1\n"},
		{"restitution above one", "collision:\n  restitution: 1.5\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.yaml), 0644); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path)
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestWriteYAMLLoadsBack(t *testing.T) {
	cfg := Default()
	cfg.Physics.Theta = 0.35
	cfg.Scenario.Bodies = 123

	path := filepath.Join(t.TempDir(), "written.yaml")
	if err := cfg.WriteYAML(path); err != nil {
		t.Fatalf("writing: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("loading written config: %v", err)
	}
	if got.Physics.Theta != 0.35 || got.Scenario.Bodies != 123 {
		t.Errorf("written values not preserved: theta %g, bodies %d", got.Physics.Theta, got.Scenario.Bodies)
	}
}

func TestCfgPanicsBeforeInit(t *testing.T) {
	saved := global
	global = nil
	defer func() {
		global = saved
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	Cfg()
}
