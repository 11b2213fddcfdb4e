// Package state holds the two pieces of global mutable state shared across
// actors: the cached configuration and the single-writer game
// state, plus the Shared bundle actors receive at Start/Reconfigure time.
//
// Both stores follow the same (snapshot, update, replace) discipline:
// readers take a deep copy under RLock and never hold the lock across I/O;
// writers are serialized by the lock itself.
package state

import (
	"sync"

	"github.com/divotmaker/flighthook/internal/schema"
)

// ConfigStore caches the current configuration in memory. Persistence to
// disk is handled separately by config.Save (internal/config) so the store
// itself has no I/O dependency and is trivially testable.
type ConfigStore struct {
	mu  sync.RWMutex
	cfg *schema.Config
}

// NewConfigStore wraps the given configuration (or schema.Default() if nil).
func NewConfigStore(cfg *schema.Config) *ConfigStore {
	if cfg == nil {
		cfg = schema.Default()
	}
	return &ConfigStore{cfg: cfg}
}

// Snapshot returns a deep copy of the current configuration.
func (s *ConfigStore) Snapshot() *schema.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Clone()
}

// Replace installs an entirely new configuration.
func (s *ConfigStore) Replace(cfg *schema.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg.Clone()
}

// UpsertDevice inserts or replaces a device section.
func (s *ConfigStore) UpsertDevice(mock bool, index string, section schema.DeviceSection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mock {
		s.cfg.MockDevice[index] = section
	} else {
		s.cfg.Device[index] = section
	}
}

// UpsertSimulator inserts or replaces a simulator section.
func (s *ConfigStore) UpsertSimulator(mock bool, index string, section schema.SimulatorSection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mock {
		s.cfg.MockSimulator[index] = section
	} else {
		s.cfg.Simulator[index] = section
	}
}

// UpsertWebserver inserts or replaces a webserver section.
func (s *ConfigStore) UpsertWebserver(index string, section schema.WebserverSection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Webserver[index] = section
}

// Remove deletes the section named by (kind, index) from every map it could
// live in. Removing a non-existent id is a no-op.
func (s *ConfigStore) Remove(kind, index string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch kind {
	case "device":
		delete(s.cfg.Device, index)
	case "mock_device":
		delete(s.cfg.MockDevice, index)
	case "simulator":
		delete(s.cfg.Simulator, index)
	case "mock_simulator":
		delete(s.cfg.MockSimulator, index)
	case "webserver":
		delete(s.cfg.Webserver, index)
	}
}
