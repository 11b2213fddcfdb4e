package schema

// Routing maps a mode to the single device id whose shots a simulator
// accepts for that mode; a nil pointer means "accept any".
type Routing struct {
	Full     *ActorID `toml:"full,omitempty"`
	Chipping *ActorID `toml:"chipping,omitempty"`
	Putting  *ActorID `toml:"putting,omitempty"`
}

// PartialPolicy controls whether estimated (partial-flight) shots are
// forwarded to a simulator.
type PartialPolicy string

const (
	PartialNever        PartialPolicy = "never"
	PartialChippingOnly PartialPolicy = "chipping_only"
	PartialAlways       PartialPolicy = "always"
)

// WebserverSection configures the web actor.
type WebserverSection struct {
	Name string `toml:"name"`
	Bind string `toml:"bind"`
}

// DeviceSection configures a device actor (real or mock).
type DeviceSection struct {
	Name         string  `toml:"name"`
	Address      string  `toml:"address"`
	BallType     string  `toml:"ball_type"`
	TeeHeightM   float64 `toml:"tee_height_m"`
	TrackingPct  float64 `toml:"tracking_pct"`
	RadarRangeM  float64 `toml:"radar_range_m"`
	RadarHeightM float64 `toml:"radar_height_m"`
}

// SimulatorSection configures a simulator bridge actor (real or mock).
type SimulatorSection struct {
	Name          string        `toml:"name"`
	Address       string        `toml:"address"`
	Routing       Routing       `toml:"routing"`
	PartialPolicy PartialPolicy `toml:"partial_policy"`
}

// Config is the full, on-disk configuration record.
// Indices are opaque strings; the pair (kind, index) forms an ActorID.
type Config struct {
	DefaultUnits  DefaultUnits                `toml:"default_units"`
	Webserver     map[string]WebserverSection `toml:"webserver"`
	Device        map[string]DeviceSection    `toml:"device"`
	MockDevice    map[string]DeviceSection    `toml:"mock_device"`
	Simulator     map[string]SimulatorSection `toml:"simulator"`
	MockSimulator map[string]SimulatorSection `toml:"mock_simulator"`
}

// LegacyConfig mirrors the pre-migration on-disk schema where webserver was
// a single top-level table rather than an indexed map. Used only by
// config.Load's migration fallback.
type LegacyConfig struct {
	DefaultUnits  DefaultUnits                `toml:"default_units"`
	Webserver     WebserverSection            `toml:"webserver"`
	Device        map[string]DeviceSection    `toml:"device"`
	MockDevice    map[string]DeviceSection    `toml:"mock_device"`
	Simulator     map[string]SimulatorSection `toml:"simulator"`
	MockSimulator map[string]SimulatorSection `toml:"mock_simulator"`
}

// Migrate converts a legacy top-level webserver table into the indexed
// "0" entry of the current schema.
func (l LegacyConfig) Migrate() *Config {
	cfg := &Config{
		DefaultUnits:  l.DefaultUnits,
		Webserver:     map[string]WebserverSection{"0": l.Webserver},
		Device:        l.Device,
		MockDevice:    l.MockDevice,
		Simulator:     l.Simulator,
		MockSimulator: l.MockSimulator,
	}
	if cfg.Device == nil {
		cfg.Device = map[string]DeviceSection{}
	}
	if cfg.MockDevice == nil {
		cfg.MockDevice = map[string]DeviceSection{}
	}
	if cfg.Simulator == nil {
		cfg.Simulator = map[string]SimulatorSection{}
	}
	if cfg.MockSimulator == nil {
		cfg.MockSimulator = map[string]SimulatorSection{}
	}
	return cfg
}

// Clone returns a deep copy, used by the config store's snapshot semantics
// so callers never observe mutation of the live configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := &Config{
		DefaultUnits:  c.DefaultUnits,
		Webserver:     make(map[string]WebserverSection, len(c.Webserver)),
		Device:        make(map[string]DeviceSection, len(c.Device)),
		MockDevice:    make(map[string]DeviceSection, len(c.MockDevice)),
		Simulator:     make(map[string]SimulatorSection, len(c.Simulator)),
		MockSimulator: make(map[string]SimulatorSection, len(c.MockSimulator)),
	}
	for k, v := range c.Webserver {
		clone.Webserver[k] = v
	}
	for k, v := range c.Device {
		clone.Device[k] = v
	}
	for k, v := range c.MockDevice {
		clone.MockDevice[k] = v
	}
	for k, v := range c.Simulator {
		s := v
		if v.Routing.Full != nil {
			id := *v.Routing.Full
			s.Routing.Full = &id
		}
		if v.Routing.Chipping != nil {
			id := *v.Routing.Chipping
			s.Routing.Chipping = &id
		}
		if v.Routing.Putting != nil {
			id := *v.Routing.Putting
			s.Routing.Putting = &id
		}
		clone.Simulator[k] = s
	}
	for k, v := range c.MockSimulator {
		s := v
		if v.Routing.Full != nil {
			id := *v.Routing.Full
			s.Routing.Full = &id
		}
		if v.Routing.Chipping != nil {
			id := *v.Routing.Chipping
			s.Routing.Chipping = &id
		}
		if v.Routing.Putting != nil {
			id := *v.Routing.Putting
			s.Routing.Putting = &id
		}
		clone.MockSimulator[k] = s
	}
	return clone
}

// Default returns an empty configuration with sane top-level defaults.
func Default() *Config {
	return &Config{
		DefaultUnits:  UnitsMetric,
		Webserver:     map[string]WebserverSection{"0": {Name: "dashboard", Bind: ":8420"}},
		Device:        map[string]DeviceSection{},
		MockDevice:    map[string]DeviceSection{},
		Simulator:     map[string]SimulatorSection{},
		MockSimulator: map[string]SimulatorSection{},
	}
}
