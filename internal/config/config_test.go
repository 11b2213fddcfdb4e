package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/divotmaker/flighthook/internal/schema"
)

func TestFindConfig_Explicit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.toml")
	os.WriteFile(path, []byte("default_units = \"metric\"\n"), 0o600)

	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig(%q) error: %v", path, err)
	}
	if got != path {
		t.Errorf("FindConfig(%q) = %q, want %q", path, got, path)
	}
}

func TestFindConfig_ExplicitMissing(t *testing.T) {
	_, err := FindConfig("/nonexistent/flighthook.toml")
	if err == nil {
		t.Fatal("FindConfig with missing explicit path should error")
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	result, err := Load(filepath.Join(dir, "missing.toml"))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if result.Migrated {
		t.Error("missing file should not be reported as migrated")
	}
	if result.Config.DefaultUnits != schema.UnitsMetric {
		t.Errorf("default units = %q, want metric", result.Config.DefaultUnits)
	}
}

func TestSaveThenLoad_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	id := schema.ActorID("device.0")
	cfg := &schema.Config{
		DefaultUnits: schema.UnitsImperial,
		Webserver:    map[string]schema.WebserverSection{"0": {Name: "dashboard", Bind: ":8420"}},
		Device: map[string]schema.DeviceSection{
			"0": {Name: "bay-1", Address: "10.0.0.5:8888", BallType: "premium", TeeHeightM: 0.03},
		},
		MockDevice: map[string]schema.DeviceSection{},
		Simulator: map[string]schema.SimulatorSection{
			"0": {
				Name:          "e6",
				Address:       "127.0.0.1:921",
				Routing:       schema.Routing{Full: &id},
				PartialPolicy: schema.PartialChippingOnly,
			},
		},
		MockSimulator: map[string]schema.SimulatorSection{},
	}

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	result, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if result.Migrated {
		t.Error("fresh save should not trigger legacy migration")
	}

	got := result.Config
	if got.DefaultUnits != cfg.DefaultUnits {
		t.Errorf("default_units = %q, want %q", got.DefaultUnits, cfg.DefaultUnits)
	}
	if got.Device["0"].Address != "10.0.0.5:8888" {
		t.Errorf("device.0 address = %q, want %q", got.Device["0"].Address, "10.0.0.5:8888")
	}
	sim := got.Simulator["0"]
	if sim.Routing.Full == nil || *sim.Routing.Full != id {
		t.Errorf("simulator.0 routing.full = %v, want %v", sim.Routing.Full, id)
	}
	if sim.PartialPolicy != schema.PartialChippingOnly {
		t.Errorf("partial_policy = %q, want %q", sim.PartialPolicy, schema.PartialChippingOnly)
	}
}

func TestSave_RotatesBackups(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	for i := 0; i < 4; i++ {
		cfg := schema.Default()
		cfg.Webserver["0"] = schema.WebserverSection{Name: "dashboard", Bind: ":8420"}
		if err := Save(path, cfg); err != nil {
			t.Fatalf("Save #%d error: %v", i, err)
		}
	}

	for _, suffix := range []string{".back1", ".back2", ".back3"} {
		if _, err := os.Stat(path + suffix); err != nil {
			t.Errorf("expected backup %s to exist: %v", suffix, err)
		}
	}
}

func TestLoad_LegacyWebserverMigration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "legacy.toml")
	legacy := "default_units = \"metric\"\n\n[webserver]\nname = \"dashboard\"\nbind = \":8420\"\n"
	if err := os.WriteFile(path, []byte(legacy), 0o600); err != nil {
		t.Fatal(err)
	}

	result, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if !result.Migrated {
		t.Fatal("expected legacy webserver table to trigger migration")
	}
	ws, ok := result.Config.Webserver["0"]
	if !ok {
		t.Fatal("expected migrated webserver section under key \"0\"")
	}
	if ws.Bind != ":8420" {
		t.Errorf("bind = %q, want %q", ws.Bind, ":8420")
	}
}

func TestLoad_UnstructuredParseErrorDoesNotTouchFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.toml")
	original := "this is not valid toml [[[\n"
	if err := os.WriteFile(path, []byte(original), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected an error for unstructured parse failure")
	}

	after, readErr := os.ReadFile(path)
	if readErr != nil {
		t.Fatal(readErr)
	}
	if string(after) != original {
		t.Error("on-disk file must be left untouched after an unstructured parse failure")
	}
}
