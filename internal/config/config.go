// Package config loads the YAML plant configuration: reactor constants,
// coolant defaults, scheduling, notifiers and the reactors to build at startup.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/daniacca/graphitecore/internal/reactor"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds the whole plant configuration.
type Config struct {
	Reactor   reactor.Params   `yaml:"reactor"`
	Coolant   CoolantConfig    `yaml:"coolant"`
	Radiation RadiationConfig  `yaml:"radiation"`
	Scheduler SchedulerConfig  `yaml:"scheduler"`
	Telemetry TelemetryConfig  `yaml:"telemetry"`
	Notifiers []NotifierConfig `yaml:"notifiers"`
	Reactors  []ReactorConfig  `yaml:"reactors"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// CoolantConfig describes the coolant loop of a reactor. Between ticks the
// loop exchanges Conductance of its temperature gap with the ambient.
type CoolantConfig struct {
	Moles              float64 `yaml:"moles" json:"moles"`
	MolarHeatCapacity  float64 `yaml:"molar_heat_capacity" json:"molar_heat_capacity"` // J/(mol·K)
	Temperature        float64 `yaml:"temperature" json:"temperature"`                 // initial, K
	AmbientTemperature float64 `yaml:"ambient_temperature" json:"ambient_temperature"` // K
	Conductance        float64 `yaml:"conductance" json:"conductance"`                 // 0..1 per tick
}

// RadiationConfig couples the leak levels of reactors in the same plant.
type RadiationConfig struct {
	Coupling   float64 `yaml:"coupling"`
	Background float64 `yaml:"background"`
}

// SchedulerConfig sets the tick period of running reactors.
type SchedulerConfig struct {
	TickInterval time.Duration `yaml:"tick_interval"`
}

// TelemetryConfig controls per-tick CSV telemetry.
type TelemetryConfig struct {
	Every int    `yaml:"every"` // record every N ticks
	Path  string `yaml:"path"`  // empty disables the file
}

// NotifierConfig declares a notifier registered at startup.
type NotifierConfig struct {
	ID      string            `yaml:"id" json:"id"`
	Type    string            `yaml:"type" json:"type"` // webhook or websocket
	URL     string            `yaml:"url,omitempty" json:"url,omitempty"`
	Secret  string            `yaml:"secret,omitempty" json:"secret,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
}

// ReactorConfig declares a reactor built at startup.
type ReactorConfig struct {
	ID              string                     `yaml:"id" json:"id"`
	Seed            int64                      `yaml:"seed,omitempty" json:"seed,omitempty"`
	Position        reactor.Position           `yaml:"position" json:"position"`
	Coolant         *CoolantConfig             `yaml:"coolant,omitempty" json:"coolant,omitempty"`
	ControlRodDepth float64                    `yaml:"control_rod_depth,omitempty" json:"control_rod_depth,omitempty"`
	Consoles        []string                   `yaml:"consoles,omitempty" json:"consoles,omitempty"`
	Rods            []RodConfig                `yaml:"rods,omitempty" json:"rods,omitempty"`
	Pipe            string                     `yaml:"pipe,omitempty" json:"pipe,omitempty"`
	Autostart       bool                       `yaml:"autostart,omitempty" json:"autostart,omitempty"`
	Notifications   reactor.NotificationConfig `yaml:"notifications,omitempty" json:"notifications,omitempty"`
}

// RodConfig places one rod from the catalog. A nil Slot takes the first
// empty slot.
type RodConfig struct {
	Slot *int            `yaml:"slot,omitempty" json:"slot,omitempty"`
	Kind reactor.RodKind `yaml:"kind" json:"kind"`
	ID   string          `yaml:"id,omitempty" json:"id,omitempty"`
}

// DerivedConfig holds values computed from the loaded config.
type DerivedConfig struct {
	TicksPerSecond float64
	// RuptureTemperature is the default coolant temperature at which the
	// pipes give way.
	RuptureTemperature float64
	// MaxKFactor is k with every slot fueled and no control rods.
	MaxKFactor float64
}

// Default returns the embedded defaults.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults are invalid: %v", err))
	}
	return cfg
}

// Load loads configuration from a YAML file merged over the embedded
// defaults. If path is empty, only the defaults are used.
func Load(path string) (*Config, error) {
	if path == "" {
		return Parse(nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse merges data over the embedded defaults.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}
	if len(data) > 0 {
		// only overwrites fields present in data
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}
	cfg.computeDerived()
	return cfg, nil
}

func (c *Config) computeDerived() {
	if c.Scheduler.TickInterval > 0 {
		c.Derived.TicksPerSecond = float64(time.Second) / float64(c.Scheduler.TickInterval)
	}
	if c.Coolant.Moles > 0 {
		c.Derived.RuptureTemperature = c.Reactor.ReferenceTemperature + c.Reactor.MaxPressure/c.Coolant.Moles
	}
	c.Derived.MaxKFactor = c.Reactor.KConstant
}

// CoolantFor returns the reactor's own coolant or the plant default.
func (c *Config) CoolantFor(rc ReactorConfig) CoolantConfig {
	if rc.Coolant != nil {
		return *rc.Coolant
	}
	return c.Coolant
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
