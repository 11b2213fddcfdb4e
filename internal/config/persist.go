// Package config resolves and persists the on-disk TOML configuration file
// and carries the ambient logging-level helpers (logging.go).
//
// Persistence uses an atomic write-then-rename plus rotating backups
// (.back1/.back2/.back3) before every overwrite, encoding with
// github.com/pelletier/go-toml/v2.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/divotmaker/flighthook/internal/schema"
)

// DefaultSearchPaths returns the config file search order: an explicit path
// (from -config / FLIGHTHOOK_CONFIG) is checked first by FindConfig, then
// these, in order.
func DefaultSearchPaths() []string {
	paths := []string{"flighthook.toml"}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "flighthook", "config.toml"))
	}
	paths = append(paths, "/etc/flighthook/config.toml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty it must exist.
// Otherwise DefaultSearchPaths is searched in order; the first entry that
// exists is returned. If nothing exists, the first default search path is
// returned so callers can create it on first Save.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}
	paths := DefaultSearchPaths()
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return paths[0], nil
}

// LoadResult reports whether Load had to apply the legacy webserver
// migration, so the caller can decide whether to persist the migrated form.
type LoadResult struct {
	Config   *schema.Config
	Migrated bool
}

// Load reads and parses the TOML file at path. On a structured parse
// failure it falls back to the legacy single-webserver-table schema and
// migrates it in memory (Migrated=true); on an unstructured parse failure
// (the legacy fallback also fails) it returns defaults in memory together
// with the parse error, without ever touching the file: the on-disk file is
// overwritten only after a
// *successful* legacy parse, never after an outright parse failure.
func Load(path string) (LoadResult, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return LoadResult{Config: schema.Default()}, nil
	}
	if err != nil {
		return LoadResult{}, fmt.Errorf("read config: %w", err)
	}

	var cfg schema.Config
	parseErr := toml.Unmarshal(data, &cfg)
	if parseErr == nil {
		fillDefaults(&cfg)
		return LoadResult{Config: &cfg}, nil
	}

	var legacy schema.LegacyConfig
	if legacyErr := toml.Unmarshal(data, &legacy); legacyErr == nil {
		migrated := legacy.Migrate()
		fillDefaults(migrated)
		return LoadResult{Config: migrated, Migrated: true}, nil
	}

	return LoadResult{Config: schema.Default()}, fmt.Errorf("parse config %s: %w", path, parseErr)
}

func fillDefaults(cfg *schema.Config) {
	if cfg.Webserver == nil {
		cfg.Webserver = map[string]schema.WebserverSection{}
	}
	if cfg.Device == nil {
		cfg.Device = map[string]schema.DeviceSection{}
	}
	if cfg.MockDevice == nil {
		cfg.MockDevice = map[string]schema.DeviceSection{}
	}
	if cfg.Simulator == nil {
		cfg.Simulator = map[string]schema.SimulatorSection{}
	}
	if cfg.MockSimulator == nil {
		cfg.MockSimulator = map[string]schema.SimulatorSection{}
	}
	if cfg.DefaultUnits == "" {
		cfg.DefaultUnits = schema.UnitsMetric
	}
}

// Save atomically writes cfg to path: rotate up to 3 prior generations as
// path+".back1"/".back2"/".back3", marshal to a temp file in the same
// directory, then rename over path. The rename is atomic on the same
// filesystem, so readers never observe a partially written file.
func Save(path string, cfg *schema.Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := rotateBackups(path); err != nil {
		return fmt.Errorf("rotate backups: %w", err)
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".flighthook-config-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config into place: %w", err)
	}
	return nil
}

// rotateBackups rotates path.back2->back3, back1->back2, path->back1,
// discarding the oldest generation. A missing path or missing backups are
// not errors.
func rotateBackups(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	back1, back2, back3 := path+".back1", path+".back2", path+".back3"

	if err := os.Remove(back3); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if _, err := os.Stat(back2); err == nil {
		if err := os.Rename(back2, back3); err != nil {
			return err
		}
	}
	if _, err := os.Stat(back1); err == nil {
		if err := os.Rename(back1, back2); err != nil {
			return err
		}
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return os.WriteFile(back1, content, 0o644)
}
