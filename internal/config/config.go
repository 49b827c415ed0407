package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/szibis/sparkplug-edge/internal/buffer"
	"github.com/szibis/sparkplug-edge/internal/logging"
	"github.com/szibis/sparkplug-edge/internal/node"
	"github.com/szibis/sparkplug-edge/internal/sparkplug"
	tlspkg "github.com/szibis/sparkplug-edge/internal/tls"
	"github.com/szibis/sparkplug-edge/internal/topic"
	"github.com/szibis/sparkplug-edge/internal/transport"
)

// version is set at build time via ldflags
var version = "dev"

// Transport kinds.
const (
	TransportMemory = "memory"
	TransportMQTT   = "mqtt"
)

// ErrInvalid reports a configuration that failed validation.
var ErrInvalid = errors.New("configuration validation failed")

// Config holds the spb-node configuration.
type Config struct {
	ConfigFile string
	LogLevel   string

	// Transport settings
	TransportKind  string
	Broker         string
	ClientID       string
	Username       string
	Password       string
	QoS            int
	ConnectTimeout time.Duration
	KeepAlive      time.Duration

	// Transport TLS settings
	TLSCAFile             string
	TLSCertFile           string
	TLSKeyFile            string
	TLSServerName         string
	TLSInsecureSkipVerify bool

	// Sparkplug identity
	GroupID  string
	NodeID   string
	DeviceID string

	// Publish settings
	Interval       time.Duration
	BufferBytes    int
	ReconnectDelay time.Duration

	// Store and forward settings
	StoreForwardMaxEntries int
	StoreForwardMaxBytes   int64

	// Stats server
	StatsAddr string

	// Memory limit settings
	MemoryLimitRatio float64

	Tags []node.TagConfig

	// Flags
	ShowHelp     bool
	ShowVersion  bool
	ValidateOnly bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	nodeDef := node.DefaultConfig()
	mqttDef := transport.DefaultMQTTConfig()
	sfDef := buffer.DefaultConfig()
	return &Config{
		LogLevel:               "info",
		TransportKind:          TransportMQTT,
		Broker:                 mqttDef.Broker,
		QoS:                    int(mqttDef.QoS),
		ConnectTimeout:         mqttDef.ConnectTimeout,
		KeepAlive:              mqttDef.KeepAlive,
		GroupID:                "sparkplug",
		NodeID:                 "edge-node",
		Interval:               nodeDef.Interval,
		BufferBytes:            nodeDef.BufferBytes,
		ReconnectDelay:         nodeDef.ReconnectDelay,
		StoreForwardMaxEntries: sfDef.MaxEntries,
		StoreForwardMaxBytes:   sfDef.MaxBytes,
		StatsAddr:              ":9090",
		MemoryLimitRatio:       0.9,
	}
}

// ParseFlags parses the command line and returns the configuration. A YAML
// file named by -config is loaded first; flags set explicitly override it.
func ParseFlags() (*Config, error) {
	flag.Usage = PrintUsage
	return Parse(flag.CommandLine, os.Args[1:])
}

// Parse parses args with fs.
func Parse(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := DefaultConfig()
	var tags tagFlags

	fs.StringVar(&cfg.ConfigFile, "config", "", "Path to YAML configuration file")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")

	fs.StringVar(&cfg.TransportKind, "transport", cfg.TransportKind, "Transport: mqtt or memory")
	fs.StringVar(&cfg.Broker, "broker", cfg.Broker, "MQTT broker URL")
	fs.StringVar(&cfg.ClientID, "client-id", "", "MQTT client id (default: <group>-<node>)")
	fs.StringVar(&cfg.Username, "username", "", "MQTT username")
	fs.StringVar(&cfg.Password, "password", "", "MQTT password")
	fs.IntVar(&cfg.QoS, "qos", cfg.QoS, "MQTT QoS for DATA messages")
	fs.DurationVar(&cfg.ConnectTimeout, "connect-timeout", cfg.ConnectTimeout, "MQTT connect timeout")
	fs.DurationVar(&cfg.KeepAlive, "keep-alive", cfg.KeepAlive, "MQTT keep alive")
	fs.StringVar(&cfg.TLSCAFile, "tls-ca", "", "CA bundle used to verify the broker")
	fs.StringVar(&cfg.TLSCertFile, "tls-cert", "", "Client certificate for mutual TLS")
	fs.StringVar(&cfg.TLSKeyFile, "tls-key", "", "Client key for mutual TLS")
	fs.StringVar(&cfg.TLSServerName, "tls-server-name", "", "Override the broker certificate name")
	fs.BoolVar(&cfg.TLSInsecureSkipVerify, "tls-insecure-skip-verify", false, "Skip broker certificate verification")

	fs.StringVar(&cfg.GroupID, "group-id", cfg.GroupID, "Sparkplug group id")
	fs.StringVar(&cfg.NodeID, "node-id", cfg.NodeID, "Sparkplug edge node id")
	fs.StringVar(&cfg.DeviceID, "device-id", "", "Sparkplug device id (empty publishes node metrics)")

	fs.DurationVar(&cfg.Interval, "interval", cfg.Interval, "DATA publish interval")
	fs.IntVar(&cfg.BufferBytes, "buffer-bytes", cfg.BufferBytes, "Encode buffer size in bytes")
	fs.DurationVar(&cfg.ReconnectDelay, "reconnect-delay", cfg.ReconnectDelay, "Delay before redialing a lost session")

	fs.IntVar(&cfg.StoreForwardMaxEntries, "store-forward-max-entries", cfg.StoreForwardMaxEntries, "Maximum DATA payloads held while offline")
	fs.Int64Var(&cfg.StoreForwardMaxBytes, "store-forward-max-bytes", cfg.StoreForwardMaxBytes, "Maximum DATA bytes held while offline")

	fs.StringVar(&cfg.StatsAddr, "stats-addr", cfg.StatsAddr, "Address for the /metrics endpoint (empty disables)")
	fs.Float64Var(&cfg.MemoryLimitRatio, "memory-limit-ratio", cfg.MemoryLimitRatio, "Ratio of container memory used for GOMEMLIMIT (0 disables)")

	fs.Var(&tags, "tag", "Tag as name:datatype[:mode[:value[:step]]] (repeatable)")

	fs.BoolVar(&cfg.ShowHelp, "help", false, "Show help message")
	fs.BoolVar(&cfg.ShowHelp, "h", false, "Show help message (shorthand)")
	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version")
	fs.BoolVar(&cfg.ShowVersion, "v", false, "Show version (shorthand)")
	fs.BoolVar(&cfg.ValidateOnly, "validate", false, "Validate the configuration and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.ConfigFile != "" {
		yamlCfg, err := LoadYAML(cfg.ConfigFile)
		if err != nil {
			return nil, fmt.Errorf("load config file %s: %w", cfg.ConfigFile, err)
		}
		fromFile, err := yamlCfg.ToConfig()
		if err != nil {
			return nil, fmt.Errorf("config file %s: %w", cfg.ConfigFile, err)
		}
		fromFile.ConfigFile = cfg.ConfigFile
		fromFile.ShowHelp, fromFile.ShowVersion, fromFile.ValidateOnly = cfg.ShowHelp, cfg.ShowVersion, cfg.ValidateOnly
		applyFlagOverrides(fs, fromFile)
		cfg = fromFile
	}
	if len(tags) > 0 {
		cfg.Tags = append(cfg.Tags, tags...)
	}
	assignAliases(cfg.Tags)
	return cfg, nil
}

// applyFlagOverrides applies flag values that were explicitly set on top of
// a file configuration.
func applyFlagOverrides(fs *flag.FlagSet, cfg *Config) {
	fs.Visit(func(f *flag.Flag) {
		v := f.Value.String()
		switch f.Name {
		case "log-level":
			cfg.LogLevel = v
		case "transport":
			cfg.TransportKind = v
		case "broker":
			cfg.Broker = v
		case "client-id":
			cfg.ClientID = v
		case "username":
			cfg.Username = v
		case "password":
			cfg.Password = v
		case "qos":
			if i, err := strconv.Atoi(v); err == nil {
				cfg.QoS = i
			}
		case "connect-timeout":
			if d, err := time.ParseDuration(v); err == nil {
				cfg.ConnectTimeout = d
			}
		case "keep-alive":
			if d, err := time.ParseDuration(v); err == nil {
				cfg.KeepAlive = d
			}
		case "tls-ca":
			cfg.TLSCAFile = v
		case "tls-cert":
			cfg.TLSCertFile = v
		case "tls-key":
			cfg.TLSKeyFile = v
		case "tls-server-name":
			cfg.TLSServerName = v
		case "tls-insecure-skip-verify":
			cfg.TLSInsecureSkipVerify = v == "true"
		case "group-id":
			cfg.GroupID = v
		case "node-id":
			cfg.NodeID = v
		case "device-id":
			cfg.DeviceID = v
		case "interval":
			if d, err := time.ParseDuration(v); err == nil {
				cfg.Interval = d
			}
		case "buffer-bytes":
			if i, err := strconv.Atoi(v); err == nil {
				cfg.BufferBytes = i
			}
		case "reconnect-delay":
			if d, err := time.ParseDuration(v); err == nil {
				cfg.ReconnectDelay = d
			}
		case "store-forward-max-entries":
			if i, err := strconv.Atoi(v); err == nil {
				cfg.StoreForwardMaxEntries = i
			}
		case "store-forward-max-bytes":
			if i, err := strconv.ParseInt(v, 10, 64); err == nil {
				cfg.StoreForwardMaxBytes = i
			}
		case "stats-addr":
			cfg.StatsAddr = v
		case "memory-limit-ratio":
			if r, err := strconv.ParseFloat(v, 64); err == nil {
				cfg.MemoryLimitRatio = r
			}
		}
	})
}

// tagFlags collects repeated -tag flags.
type tagFlags []node.TagConfig

func (t *tagFlags) String() string {
	names := make([]string, len(*t))
	for i, tc := range *t {
		names[i] = tc.Name
	}
	return strings.Join(names, ",")
}

func (t *tagFlags) Set(s string) error {
	tc, err := ParseTag(s)
	if err != nil {
		return err
	}
	*t = append(*t, tc)
	return nil
}

// ParseTag parses name:datatype[:mode[:value[:step]]]. A trailing "!" on the
// name marks the tag writable.
func ParseTag(s string) (node.TagConfig, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 5 {
		return node.TagConfig{}, fmt.Errorf("tag %q: want name:datatype[:mode[:value[:step]]]", s)
	}
	var tc node.TagConfig
	tc.Name = parts[0]
	if strings.HasSuffix(tc.Name, "!") {
		tc.Name = strings.TrimSuffix(tc.Name, "!")
		tc.Writable = true
	}
	dt, err := sparkplug.ParseDataType(parts[1])
	if err != nil {
		return node.TagConfig{}, fmt.Errorf("tag %q: %w", s, err)
	}
	tc.Datatype = dt
	if len(parts) > 2 {
		if tc.Mode, err = node.ParseMode(parts[2]); err != nil {
			return node.TagConfig{}, fmt.Errorf("tag %q: %w", s, err)
		}
	}
	if len(parts) > 3 {
		if tc.Value, err = strconv.ParseFloat(parts[3], 64); err != nil {
			return node.TagConfig{}, fmt.Errorf("tag %q value: %w", s, err)
		}
	}
	if len(parts) > 4 {
		if tc.Step, err = strconv.ParseFloat(parts[4], 64); err != nil {
			return node.TagConfig{}, fmt.Errorf("tag %q step: %w", s, err)
		}
	}
	return tc, nil
}

// assignAliases gives tags without an alias the next unused one.
func assignAliases(tags []node.TagConfig) {
	used := make(map[uint64]bool, len(tags))
	for _, tc := range tags {
		if tc.Alias != 0 {
			used[tc.Alias] = true
		}
	}
	next := uint64(1)
	for i := range tags {
		if tags[i].Alias != 0 {
			continue
		}
		for used[next] {
			next++
		}
		tags[i].Alias = next
		used[next] = true
	}
}

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	switch c.TransportKind {
	case TransportMemory, TransportMQTT:
	default:
		add("transport must be %q or %q, got %q", TransportMQTT, TransportMemory, c.TransportKind)
	}
	if c.TransportKind == TransportMQTT && c.Broker == "" {
		add("broker must be set for the mqtt transport")
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		add("tls-cert must be set together with tls-key")
	}
	if c.QoS < 0 || c.QoS > 2 {
		add("qos must be 0, 1 or 2, got %d", c.QoS)
	}
	if err := topic.ValidateID(c.GroupID); err != nil {
		add("group-id is invalid: %v", err)
	}
	if err := topic.ValidateID(c.NodeID); err != nil {
		add("node-id is invalid: %v", err)
	}
	if c.DeviceID != "" {
		if err := topic.ValidateID(c.DeviceID); err != nil {
			add("device-id is invalid: %v", err)
		}
	}
	if c.Interval <= 0 {
		add("interval must be positive, got %s", c.Interval)
	}
	if c.BufferBytes < 64 {
		add("buffer-bytes must be at least 64, got %d", c.BufferBytes)
	}
	if c.StoreForwardMaxEntries < 0 {
		add("store-forward-max-entries must not be negative, got %d", c.StoreForwardMaxEntries)
	}
	if c.StoreForwardMaxBytes < 0 {
		add("store-forward-max-bytes must not be negative, got %d", c.StoreForwardMaxBytes)
	}
	if c.MemoryLimitRatio < 0 || c.MemoryLimitRatio > 1 {
		add("memory-limit-ratio must be between 0.0 and 1.0, got %g", c.MemoryLimitRatio)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		add("log-level is invalid: %v", err)
	}
	if len(c.Tags) > sparkplug.MaxMetrics {
		add("tags must not exceed %d, got %d", sparkplug.MaxMetrics, len(c.Tags))
	}
	names := make(map[string]bool, len(c.Tags))
	for _, tc := range c.Tags {
		if tc.Name == "" {
			add("tags must have a name")
			continue
		}
		if names[tc.Name] {
			add("tags must have unique names, %q repeats", tc.Name)
		}
		names[tc.Name] = true
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalid, strings.Join(errs, "\n  - "))
	}
	return nil
}

// MQTTConfig returns the MQTT transport configuration.
func (c *Config) MQTTConfig() transport.MQTTConfig {
	return transport.MQTTConfig{
		Broker:         c.Broker,
		Username:       c.Username,
		Password:       c.Password,
		QoS:            byte(c.QoS),
		ConnectTimeout: c.ConnectTimeout,
		KeepAlive:      c.KeepAlive,
		TLS: tlspkg.Config{
			CAFile:             c.TLSCAFile,
			CertFile:           c.TLSCertFile,
			KeyFile:            c.TLSKeyFile,
			ServerName:         c.TLSServerName,
			InsecureSkipVerify: c.TLSInsecureSkipVerify,
		},
	}
}

// NodeConfig returns the edge node configuration.
func (c *Config) NodeConfig() node.Config {
	return node.Config{
		GroupID:        c.GroupID,
		NodeID:         c.NodeID,
		DeviceID:       c.DeviceID,
		ClientID:       c.ClientID,
		Interval:       c.Interval,
		BufferBytes:    c.BufferBytes,
		ReconnectDelay: c.ReconnectDelay,
		Tags:           append([]node.TagConfig(nil), c.Tags...),
	}
}

// StoreForwardConfig returns the store-and-forward queue bounds.
func (c *Config) StoreForwardConfig() buffer.Config {
	return buffer.Config{
		MaxEntries: c.StoreForwardMaxEntries,
		MaxBytes:   c.StoreForwardMaxBytes,
	}
}

// PrintUsage prints the help text to stderr.
func PrintUsage() {
	writeUsage(os.Stderr)
}

func writeUsage(w io.Writer) {
	fmt.Fprintf(w, `spb-node - Sparkplug B edge node

USAGE:
    spb-node [OPTIONS]

DESCRIPTION:
    Publishes NBIRTH/DBIRTH and periodic DATA messages for configured tags,
    answers rebirth and write commands, and holds DATA while the broker is
    unreachable.

OPTIONS:
    Configuration:
        -config <path>                   Path to YAML configuration file
        -validate                        Validate the configuration and exit
        -log-level <level>               debug, info, warn, error (default: info)

    Transport:
        -transport <kind>                mqtt or memory (default: mqtt)
        -broker <url>                    MQTT broker URL (default: tcp://localhost:1883)
        -client-id <id>                  MQTT client id
        -username <user>                 MQTT username
        -password <pass>                 MQTT password
        -qos <n>                         QoS for DATA messages (default: 1)
        -connect-timeout <dur>           Connect timeout (default: 10s)
        -keep-alive <dur>                Keep alive (default: 30s)
        -tls-ca <path>                   CA bundle for ssl:// brokers
        -tls-cert <path>                 Client certificate (mutual TLS)
        -tls-key <path>                  Client key (mutual TLS)
        -tls-server-name <name>          Override the verified broker name
        -tls-insecure-skip-verify        Skip broker certificate verification

    Sparkplug:
        -group-id <id>                   Group id (default: sparkplug)
        -node-id <id>                    Edge node id (default: edge-node)
        -device-id <id>                  Device id, empty for node metrics
        -tag <tag>                       name:datatype[:mode[:value[:step]]], "!" after the name marks it writable

    Publishing:
        -interval <dur>                  DATA interval (default: 1s)
        -buffer-bytes <n>                Encode buffer size (default: 4096)
        -reconnect-delay <dur>           Redial delay (default: 5s)
        -store-forward-max-entries <n>   Held DATA payloads (default: 1000)
        -store-forward-max-bytes <n>     Held DATA bytes (default: 4194304)

    Runtime:
        -stats-addr <addr>               /metrics listen address (default: :9090)
        -memory-limit-ratio <r>          GOMEMLIMIT ratio of the container limit (default: 0.9)

    Other:
        -h, -help                        Show this help
        -v, -version                     Show version

EXAMPLES:
    spb-node -broker tcp://mqtt:1883 -group-id plant -node-id line-1 \
        -device-id pump -tag speed:Double:counter:0:0.5 -tag 'led!:Boolean'

    spb-node -config /etc/spb-node/config.yaml -log-level debug
`)
}

// PrintVersion prints the version.
func PrintVersion() {
	fmt.Printf("spb-node version %s\n", version)
}
