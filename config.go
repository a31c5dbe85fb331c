package sagaflow

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flowmesh/sagaflow/service/messaging"
	"github.com/flowmesh/sagaflow/service/scheduler"
)

// Config is a serialisable representation of the engine configuration. The
// zero value is useful: every field falls back to its package default.
type Config struct {
	Queue     QueueConfig     `json:"queue" yaml:"queue"`
	Scheduler SchedulerConfig `json:"scheduler" yaml:"scheduler"`
	Tracing   TracingConfig   `json:"tracing" yaml:"tracing"`
}

// QueueConfig selects the completion-event transport.
type QueueConfig struct {
	Vendor string `json:"vendor" yaml:"vendor"`
}

// Duration decodes both "5ms" style strings and plain nanosecond counts.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var ns int64
	if err := node.Decode(&ns); err == nil {
		*d = Duration(ns)
		return nil
	}
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// SchedulerConfig tunes the timeout wheel.
type SchedulerConfig struct {
	Tick      Duration `json:"tick" yaml:"tick"`
	WheelSize int64    `json:"wheelSize" yaml:"wheelSize"`
}

// TracingConfig enables span export.
type TracingConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	ServiceName string `json:"serviceName" yaml:"serviceName"`
	Version     string `json:"version" yaml:"version"`
	OutputFile  string `json:"outputFile" yaml:"outputFile"`
}

// DefaultConfig returns a Config mirroring the constructors' defaults.
func DefaultConfig() *Config {
	return &Config{
		Queue:     QueueConfig{Vendor: string(messaging.VendorMemory)},
		Scheduler: SchedulerConfig{Tick: Duration(10 * time.Millisecond), WheelSize: 512},
	}
}

// ParseConfig decodes a YAML document into a Config.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("sagaflow: invalid config: %w", err)
	}
	return cfg, nil
}

// Options converts the config into constructor options.
func (c *Config) Options() []Option {
	var options []Option
	if c.Queue.Vendor != "" {
		options = append(options, WithQueueVendor(messaging.Vendor(c.Queue.Vendor)))
	}
	if c.Scheduler.Tick > 0 && c.Scheduler.WheelSize > 0 {
		// config-built schedulers belong to the service, Shutdown stops them
		options = append(options, func(s *Service) {
			s.scheduler = scheduler.New(time.Duration(c.Scheduler.Tick), c.Scheduler.WheelSize)
			s.ownedScheduler = true
		})
	}
	if c.Tracing.Enabled {
		options = append(options, WithTracing(c.Tracing.ServiceName, c.Tracing.Version, c.Tracing.OutputFile))
	}
	return options
}

// NewFromConfig assembles a service from a config, with extra options
// applied after the config-derived ones.
func NewFromConfig(cfg *Config, options ...Option) (*Service, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return New(append(cfg.Options(), options...)...)
}
