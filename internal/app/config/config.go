// Package config loads and validates the YAML configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/grillbaer/data-logger/internal/adapters/publish"
	"github.com/grillbaer/data-logger/internal/domain"
	"github.com/grillbaer/data-logger/internal/ports"
)

// Duration parses YAML scalars like "500ms" or "24h".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Driver kinds accepted in a source block.
const (
	KindDS18B20 = "ds18b20"
	KindTSIC    = "tsic"
	KindOPCUA   = "opcua"
	KindSim     = "sim"
)

type Config struct {
	Policy  PolicyConfig   `yaml:"policy"`
	History HistoryConfig  `yaml:"history"`
	Log     LogConfig      `yaml:"log"`
	MQTT    publish.Config `yaml:"mqtt"`
	Archive ArchiveConfig  `yaml:"archive"`
	Metrics MetricsConfig  `yaml:"metrics"`
	Sources []SourceConfig `yaml:"sources"`
}

// PolicyConfig is the YAML-facing shape of the scheduling policy.
type PolicyConfig struct {
	PollInterval Duration `yaml:"poll_interval"`
	ReadTimeout  Duration `yaml:"read_timeout"`
	QueueCap     int      `yaml:"queue_cap"`
	MaxBatchSize int      `yaml:"max_batch_size"`
	IdleSleep    Duration `yaml:"idle_sleep"`
	DrainGrace   Duration `yaml:"drain_grace"`
}

// Policy converts to the runtime policy.
func (p PolicyConfig) Policy() ports.Policy {
	return ports.Policy{
		PollInterval: p.PollInterval.Std(),
		ReadTimeout:  p.ReadTimeout.Std(),
		QueueCap:     p.QueueCap,
		MaxBatchSize: p.MaxBatchSize,
		IdleSleep:    p.IdleSleep.Std(),
		DrainGrace:   p.DrainGrace.Std(),
	}
}

// HistoryConfig bounds the in-memory per-source ring.
type HistoryConfig struct {
	Window     Duration `yaml:"window"`
	MaxSamples int      `yaml:"max_samples"`
}

// LogConfig controls the durable daily reading log.
type LogConfig struct {
	Dir           string `yaml:"dir"`
	RetentionDays int    `yaml:"retention_days"`
}

// Retention returns the log retention as a duration.
func (l LogConfig) Retention() time.Duration {
	return time.Duration(l.RetentionDays) * 24 * time.Hour
}

// ArchiveConfig enables the optional SQL archive sink. Empty conn_string
// disables it.
type ArchiveConfig struct {
	ConnString string `yaml:"conn_string"`
	Table      string `yaml:"table"`
}

func (a ArchiveConfig) Enabled() bool { return a.ConnString != "" }

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// SourceConfig is one configured signal source plus its driver binding.
// Which extra fields apply depends on kind.
type SourceConfig struct {
	ID         string   `yaml:"id"`
	Label      string   `yaml:"label"`
	Group      string   `yaml:"group"`
	Color      string   `yaml:"color"`
	Unit       string   `yaml:"unit"`
	Format     string   `yaml:"format"`
	CorrOffset float64  `yaml:"corr_offset"`
	StaleAfter Duration `yaml:"stale_after"`

	Kind string `yaml:"kind"`

	// ds18b20
	Address string `yaml:"address"`

	// tsic
	Chip string `yaml:"chip"`
	Line int    `yaml:"line"`

	// opcua
	Endpoint string `yaml:"endpoint"`
	NodeID   string `yaml:"node_id"`

	// sim
	Value  float64 `yaml:"value"`
	Jitter float64 `yaml:"jitter"`
}

// Source builds the immutable domain source from this block.
func (s SourceConfig) Source() domain.Source {
	return domain.Source{
		ID:         s.ID,
		Label:      s.Label,
		Group:      s.Group,
		Color:      s.Color,
		Unit:       s.Unit,
		Format:     s.Format,
		CorrOffset: s.CorrOffset,
		StaleAfter: s.StaleAfter.Std(),
	}
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) ApplyDefaults() {
	if c.Policy.PollInterval == 0 {
		c.Policy.PollInterval = Duration(2 * time.Second)
	}
	if c.Policy.ReadTimeout == 0 {
		c.Policy.ReadTimeout = Duration(1 * time.Second)
	}
	if c.Policy.QueueCap == 0 {
		c.Policy.QueueCap = 1024
	}
	if c.Policy.MaxBatchSize == 0 {
		c.Policy.MaxBatchSize = 256
	}
	if c.Policy.IdleSleep == 0 {
		c.Policy.IdleSleep = Duration(5 * time.Millisecond)
	}
	if c.Policy.DrainGrace == 0 {
		c.Policy.DrainGrace = Duration(3 * time.Second)
	}
	if c.History.Window == 0 {
		c.History.Window = Duration(24 * time.Hour)
	}
	if c.History.MaxSamples == 0 {
		c.History.MaxSamples = 5760
	}
	if c.Log.Dir == "" {
		c.Log.Dir = "./data/log"
	}
	if c.Log.RetentionDays == 0 {
		c.Log.RetentionDays = 32
	}
	if c.Archive.Table == "" {
		c.Archive.Table = "readings"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
	for i := range c.Sources {
		if c.Sources[i].Label == "" {
			c.Sources[i].Label = c.Sources[i].ID
		}
		if c.Sources[i].Unit == "" {
			c.Sources[i].Unit = "°C"
		}
	}
}

func (c *Config) Validate() error {
	if len(c.Sources) == 0 {
		return fmt.Errorf("at least one source is required")
	}

	seen := make(map[string]bool, len(c.Sources))
	for _, s := range c.Sources {
		if s.ID == "" {
			return fmt.Errorf("source without id")
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate source id %q", s.ID)
		}
		seen[s.ID] = true

		switch s.Kind {
		case KindDS18B20:
			if s.Address == "" {
				return fmt.Errorf("source %s: ds18b20 needs address", s.ID)
			}
		case KindTSIC:
			if s.Chip == "" {
				return fmt.Errorf("source %s: tsic needs chip", s.ID)
			}
		case KindOPCUA:
			if s.Endpoint == "" || s.NodeID == "" {
				return fmt.Errorf("source %s: opcua needs endpoint and node_id", s.ID)
			}
		case KindSim:
		default:
			return fmt.Errorf("source %s: unknown kind %q", s.ID, s.Kind)
		}
	}

	if c.MQTT.Enabled() && c.MQTT.Username != "" && c.MQTT.PasswordFile == "" {
		return fmt.Errorf("mqtt.password_file is required when mqtt.username is set")
	}
	if c.Log.RetentionDays < 1 {
		return fmt.Errorf("log.retention_days must be at least 1")
	}

	return nil
}
