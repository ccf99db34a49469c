package telemetry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/orrery/config"
)

func TestOutputManager_Disabled(t *testing.T) {
	om, err := NewOutputManager("")
	if err != nil || om != nil {
		t.Fatalf("expected nil manager and no error, got %v, %v", om, err)
	}

	// All methods are nil-safe
	if err := om.WriteTelemetry(WindowStats{}); err != nil {
		t.Error(err)
	}
	if err := om.WritePerf(PerfStats{}, 0); err != nil {
		t.Error(err)
	}
	if om.Dir() != "" {
		t.Error("expected empty dir")
	}
	if err := om.Close(); err != nil {
		t.Error(err)
	}
}

func TestOutputManager_WritesHeaderOnce(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run")
	om, err := NewOutputManager(dir)
	if err != nil {
		t.Fatalf("creating output manager: %v", err)
	}

	for tick := int64(60); tick <= 180; tick += 60 {
		if err := om.WriteTelemetry(WindowStats{WindowEndTick: tick, Bodies: int(tick)}); err != nil {
			t.Fatalf("writing telemetry: %v", err)
		}
		if err := om.WritePerf(PerfStats{}, tick); err != nil {
			t.Fatalf("writing perf: %v", err)
		}
	}
	if err := om.WriteConfig(config.Default()); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	if err := om.Close(); err != nil {
		t.Fatalf("closing: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "telemetry.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(data), "window_end"); n != 1 {
		t.Errorf("expected one header line, found %d", n)
	}

	var rows []WindowStats
	if err := gocsv.UnmarshalBytes(data, &rows); err != nil {
		t.Fatalf("reading back telemetry: %v", err)
	}
	if len(rows) != 3 || rows[2].WindowEndTick != 180 || rows[2].Bodies != 180 {
		t.Errorf("unexpected rows: %+v", rows)
	}

	perf, err := os.ReadFile(filepath.Join(dir, "perf.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if lines := strings.Count(strings.TrimSpace(string(perf)), "\n"); lines != 3 {
		t.Errorf("expected header plus 3 perf rows, got %d newlines", lines)
	}

	if _, err := os.Stat(filepath.Join(dir, "config.yaml")); err != nil {
		t.Errorf("expected config.yaml: %v", err)
	}
}
