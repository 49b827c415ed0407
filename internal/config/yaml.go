package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/szibis/sparkplug-edge/internal/node"
	"github.com/szibis/sparkplug-edge/internal/sparkplug"
)

// YAMLConfig represents the YAML configuration file structure.
type YAMLConfig struct {
	LogLevel string `yaml:"log_level"`

	Transport    TransportYAMLConfig    `yaml:"transport"`
	Sparkplug    SparkplugYAMLConfig    `yaml:"sparkplug"`
	Publish      PublishYAMLConfig      `yaml:"publish"`
	StoreForward StoreForwardYAMLConfig `yaml:"store_forward"`
	Stats        StatsYAMLConfig        `yaml:"stats"`
	Memory       MemoryYAMLConfig       `yaml:"memory"`
	Metrics      MetricsYAMLConfig      `yaml:"metrics"`
}

// TransportYAMLConfig holds the broker connection.
type TransportYAMLConfig struct {
	Kind           string              `yaml:"kind"`   // "mqtt" or "memory"
	Broker         string              `yaml:"broker"` // tcp://host:1883
	ClientID       string              `yaml:"client_id"`
	Username       string              `yaml:"username"`
	Password       string              `yaml:"password"`
	QoS            *int                `yaml:"qos"`
	ConnectTimeout Duration            `yaml:"connect_timeout"`
	KeepAlive      Duration            `yaml:"keep_alive"`
	TLS            TLSClientYAMLConfig `yaml:"tls"`
}

// TLSClientYAMLConfig holds broker TLS configuration.
type TLSClientYAMLConfig struct {
	CAFile             string `yaml:"ca_file"`
	CertFile           string `yaml:"cert_file"`
	KeyFile            string `yaml:"key_file"`
	ServerName         string `yaml:"server_name"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// SparkplugYAMLConfig holds the Sparkplug identity.
type SparkplugYAMLConfig struct {
	GroupID  string `yaml:"group_id"`
	NodeID   string `yaml:"node_id"`
	DeviceID string `yaml:"device_id"`
}

// PublishYAMLConfig holds publishing settings.
type PublishYAMLConfig struct {
	Interval       Duration `yaml:"interval"`
	BufferBytes    ByteSize `yaml:"buffer_bytes"`
	ReconnectDelay Duration `yaml:"reconnect_delay"`
}

// StoreForwardYAMLConfig bounds the offline DATA queue.
type StoreForwardYAMLConfig struct {
	MaxEntries int      `yaml:"max_entries"`
	MaxBytes   ByteSize `yaml:"max_bytes"`
}

// StatsYAMLConfig holds the /metrics server address.
type StatsYAMLConfig struct {
	Address *string `yaml:"address"` // empty disables
}

// MemoryYAMLConfig holds memory limit configuration.
type MemoryYAMLConfig struct {
	// LimitRatio is the ratio of container memory to use for GOMEMLIMIT (0.0-1.0)
	LimitRatio *float64 `yaml:"limit_ratio"`
}

// MetricsYAMLConfig lists the published tags.
type MetricsYAMLConfig struct {
	Tags []TagYAMLConfig `yaml:"tags"`
}

// TagYAMLConfig describes one tag.
type TagYAMLConfig struct {
	Name     string  `yaml:"name"`
	Alias    uint64  `yaml:"alias"`
	Datatype string  `yaml:"datatype"`
	Mode     string  `yaml:"mode"` // constant, counter, toggle
	Value    float64 `yaml:"value"`
	Step     float64 `yaml:"step"`
	Writable bool    `yaml:"writable"`
}

// Duration is a wrapper for time.Duration that supports YAML unmarshaling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	duration, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(duration)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// ByteSize is a wrapper for int64 that supports human-readable YAML values.
// Accepted formats: raw integer (bytes), or suffixed: Ki, Mi, Gi.
type ByteSize int64

// UnmarshalYAML implements yaml.Unmarshaler for ByteSize.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	var n int64
	if err := value.Decode(&n); err == nil {
		*b = ByteSize(n)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseByteSize(s)
	if err != nil {
		return err
	}
	*b = ByteSize(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for ByteSize.
func (b ByteSize) MarshalYAML() (interface{}, error) {
	return FormatByteSize(int64(b)), nil
}

var byteSuffixes = []struct {
	name string
	mult int64
}{
	{"Gi", 1 << 30},
	{"Mi", 1 << 20},
	{"Ki", 1 << 10},
}

// ParseByteSize parses a byte size such as "512", "64Ki" or "1.5Mi".
func ParseByteSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	for _, sf := range byteSuffixes {
		if strings.HasSuffix(s, sf.name) {
			numStr := strings.TrimSpace(strings.TrimSuffix(s, sf.name))
			var f float64
			if _, err := fmt.Sscanf(numStr, "%f", &f); err != nil {
				return 0, fmt.Errorf("invalid byte size: %q", s)
			}
			return int64(f * float64(sf.mult)), nil
		}
	}
	// reject "256MB" and similar
	var n int64
	var trail string
	if _, err := fmt.Sscanf(s, "%d%s", &n, &trail); err == nil && trail != "" {
		return 0, fmt.Errorf("invalid byte size: %q (use Ki, Mi or Gi suffixes)", s)
	}
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, fmt.Errorf("invalid byte size: %q", s)
	}
	return n, nil
}

// FormatByteSize formats bytes with the largest exact binary suffix.
func FormatByteSize(b int64) string {
	for _, sf := range byteSuffixes {
		if b >= sf.mult && b%sf.mult == 0 {
			return fmt.Sprintf("%d%s", b/sf.mult, sf.name)
		}
	}
	return fmt.Sprintf("%d", b)
}

// LoadYAML loads configuration from a YAML file.
func LoadYAML(path string) (*YAMLConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseYAML(data)
}

// ParseYAML parses YAML configuration from bytes. Unknown keys are errors.
func ParseYAML(data []byte) (*YAMLConfig, error) {
	cfg := &YAMLConfig{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults sets default values for unspecified fields.
func (y *YAMLConfig) ApplyDefaults() {
	def := DefaultConfig()

	if y.LogLevel == "" {
		y.LogLevel = def.LogLevel
	}
	if y.Transport.Kind == "" {
		y.Transport.Kind = def.TransportKind
	}
	if y.Transport.Broker == "" {
		y.Transport.Broker = def.Broker
	}
	if y.Transport.QoS == nil {
		q := def.QoS
		y.Transport.QoS = &q
	}
	if y.Transport.ConnectTimeout == 0 {
		y.Transport.ConnectTimeout = Duration(def.ConnectTimeout)
	}
	if y.Transport.KeepAlive == 0 {
		y.Transport.KeepAlive = Duration(def.KeepAlive)
	}

	if y.Sparkplug.GroupID == "" {
		y.Sparkplug.GroupID = def.GroupID
	}
	if y.Sparkplug.NodeID == "" {
		y.Sparkplug.NodeID = def.NodeID
	}

	if y.Publish.Interval == 0 {
		y.Publish.Interval = Duration(def.Interval)
	}
	if y.Publish.BufferBytes == 0 {
		y.Publish.BufferBytes = ByteSize(def.BufferBytes)
	}
	if y.Publish.ReconnectDelay == 0 {
		y.Publish.ReconnectDelay = Duration(def.ReconnectDelay)
	}

	if y.StoreForward.MaxEntries == 0 {
		y.StoreForward.MaxEntries = def.StoreForwardMaxEntries
	}
	if y.StoreForward.MaxBytes == 0 {
		y.StoreForward.MaxBytes = ByteSize(def.StoreForwardMaxBytes)
	}

	if y.Stats.Address == nil {
		a := def.StatsAddr
		y.Stats.Address = &a
	}
	if y.Memory.LimitRatio == nil {
		r := def.MemoryLimitRatio
		y.Memory.LimitRatio = &r
	}
}

// ToConfig converts YAMLConfig to the flat Config. Tag datatypes and modes
// are parsed here.
func (y *YAMLConfig) ToConfig() (*Config, error) {
	cfg := &Config{
		LogLevel: y.LogLevel,

		TransportKind:  y.Transport.Kind,
		Broker:         y.Transport.Broker,
		ClientID:       y.Transport.ClientID,
		Username:       y.Transport.Username,
		Password:       y.Transport.Password,
		ConnectTimeout: time.Duration(y.Transport.ConnectTimeout),
		KeepAlive:      time.Duration(y.Transport.KeepAlive),

		TLSCAFile:             y.Transport.TLS.CAFile,
		TLSCertFile:           y.Transport.TLS.CertFile,
		TLSKeyFile:            y.Transport.TLS.KeyFile,
		TLSServerName:         y.Transport.TLS.ServerName,
		TLSInsecureSkipVerify: y.Transport.TLS.InsecureSkipVerify,

		GroupID:  y.Sparkplug.GroupID,
		NodeID:   y.Sparkplug.NodeID,
		DeviceID: y.Sparkplug.DeviceID,

		Interval:       time.Duration(y.Publish.Interval),
		BufferBytes:    int(y.Publish.BufferBytes),
		ReconnectDelay: time.Duration(y.Publish.ReconnectDelay),

		StoreForwardMaxEntries: y.StoreForward.MaxEntries,
		StoreForwardMaxBytes:   int64(y.StoreForward.MaxBytes),
	}
	if y.Transport.QoS != nil {
		cfg.QoS = *y.Transport.QoS
	}
	if y.Stats.Address != nil {
		cfg.StatsAddr = *y.Stats.Address
	}
	if y.Memory.LimitRatio != nil {
		cfg.MemoryLimitRatio = *y.Memory.LimitRatio
	}

	for i, t := range y.Metrics.Tags {
		dt, err := sparkplug.ParseDataType(t.Datatype)
		if err != nil {
			return nil, fmt.Errorf("metrics.tags[%d] datatype: %w", i, err)
		}
		mode, err := node.ParseMode(t.Mode)
		if err != nil {
			return nil, fmt.Errorf("metrics.tags[%d] mode: %w", i, err)
		}
		cfg.Tags = append(cfg.Tags, node.TagConfig{
			Name:     t.Name,
			Alias:    t.Alias,
			Datatype: dt,
			Mode:     mode,
			Value:    t.Value,
			Step:     t.Step,
			Writable: t.Writable,
		})
	}
	return cfg, nil
}
