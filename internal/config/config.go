// Package config loads ethersim scenario configuration using koanf/v2.
//
// Supports YAML files, environment variables, and the built-in defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// ScenarioConfig holds the complete ethersim run configuration: ambient
// logging/metrics plumbing plus the scenario's bus, nodes, sends, and
// trace policy (spec.md §6's node/topology/traffic-source construction
// input, which is external to the MAC and scheduler themselves).
type ScenarioConfig struct {
	Log      LogConfig      `koanf:"log"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Scenario ScenarioSpec   `koanf:"scenario"`
	Trace    TraceConfig    `koanf:"trace"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// ScenarioSpec describes the bus topology and traffic to run.
type ScenarioSpec struct {
	Bus      BusConfig    `koanf:"bus"`
	Nodes    []NodeConfig `koanf:"nodes"`
	Sends    []SendConfig `koanf:"sends"`
	Seed     uint64       `koanf:"seed"`
	RunUntil float64      `koanf:"run_until"`
}

// BusConfig describes the shared Ethernet medium (spec.md §3 "Link").
type BusConfig struct {
	// BandwidthBPS is the link bandwidth in bits/sec.
	BandwidthBPS float64 `koanf:"bandwidth_bps"`
	// Detail is "none", "partial", or "full" (spec.md §3).
	Detail string `koanf:"detail"`
	// LoopbackReceive sets rx_own_broadcast (spec.md §8 scenario E).
	LoopbackReceive bool `koanf:"loopback_receive"`
}

// NodeConfig describes one node's interface attachment.
type NodeConfig struct {
	UID int `koanf:"uid"`
	// LocationX/LocationY are loaded but not applied: simcontext.New
	// attaches every node at the bus's own placement, which on a "full"
	// bus is (0, attachment index).
	LocationX float64 `koanf:"location_x"`
	LocationY float64 `koanf:"location_y"`
}

// SendConfig schedules one higher-layer send at construction time.
type SendConfig struct {
	// At is the simulated time, in seconds, this send is scheduled at.
	At float64 `koanf:"at"`
	// FromUID identifies the sending node.
	FromUID int `koanf:"from_uid"`
	// ToUID identifies the destination node; ignored if Broadcast is set.
	ToUID int `koanf:"to_uid"`
	// Broadcast sends to the bus broadcast address instead of ToUID.
	Broadcast bool `koanf:"broadcast"`
	// SizeBytes is the packet size in bytes.
	SizeBytes int `koanf:"size_bytes"`
}

// TraceConfig configures the trace fabric's default policy (spec.md §4.3).
type TraceConfig struct {
	DefaultEnabled bool              `koanf:"default_enabled"`
	NodeStatus     map[string]string `koanf:"node_status"`
	ProtocolStatus map[string]string `koanf:"protocol_status"`
	LayerStatus    map[string]string `koanf:"layer_status"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a ScenarioConfig populated with sensible defaults:
// a single 10 Mb/s partial-detail bus with no nodes or sends configured,
// matching spec.md §4.2.8's "partial" detail as the common instantaneous-
// carrier-sense case.
func DefaultConfig() *ScenarioConfig {
	return &ScenarioConfig{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Scenario: ScenarioSpec{
			Bus: BusConfig{
				BandwidthBPS: 10_000_000,
				Detail:       "partial",
			},
			Seed: 1,
		},
		Trace: TraceConfig{
			DefaultEnabled: true,
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for ethersim configuration.
// Variables are named ETHERSIM_<section>_<key>, e.g., ETHERSIM_METRICS_ADDR.
const envPrefix = "ETHERSIM_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (ETHERSIM_ prefix), and merges on top of
// DefaultConfig(). Missing fields inherit defaults.
func Load(path string) (*ScenarioConfig, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &ScenarioConfig{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms ETHERSIM_METRICS_ADDR -> metrics.addr.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "_", ".")
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *ScenarioConfig) error {
	defaultMap := map[string]any{
		"log.level":                defaults.Log.Level,
		"log.format":               defaults.Log.Format,
		"metrics.addr":             defaults.Metrics.Addr,
		"metrics.path":             defaults.Metrics.Path,
		"scenario.bus.bandwidth_bps": defaults.Scenario.Bus.BandwidthBPS,
		"scenario.bus.detail":        defaults.Scenario.Bus.Detail,
		"scenario.seed":              defaults.Scenario.Seed,
		"trace.default_enabled":      defaults.Trace.DefaultEnabled,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrInvalidBandwidth indicates the bus bandwidth is not positive.
	ErrInvalidBandwidth = errors.New("scenario.bus.bandwidth_bps must be > 0")

	// ErrInvalidDetail indicates an unrecognized (and non-typo) detail value.
	ErrInvalidDetail = errors.New("scenario.bus.detail must be none, partial, or full")

	// ErrDuplicateNodeUID indicates two nodes share the same uid.
	ErrDuplicateNodeUID = errors.New("duplicate node uid")

	// ErrUnknownSendSource indicates a send references an unattached node.
	ErrUnknownSendSource = errors.New("send from_uid does not match any configured node")

	// ErrInvalidSendSize indicates a send's size_bytes is not positive.
	ErrInvalidSendSize = errors.New("send size_bytes must be > 0")
)

// validDetailValues accepts both the canonical spelling and the source's
// documented ":parial" typo (spec.md §9): any other value is rejected here
// rather than silently folded into "partial", since this is operator-
// supplied configuration, not the MAC's own internal defaulting (that
// folding still happens in ether.ParseDetail for unrecognized-at-runtime
// values; Validate exists to catch operator typos early instead).
var validDetailValues = map[string]bool{
	"none":    true,
	"partial": true,
	"full":    true,
	"parial":  true,
}

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *ScenarioConfig) error {
	if cfg.Scenario.Bus.BandwidthBPS <= 0 {
		return ErrInvalidBandwidth
	}

	if cfg.Scenario.Bus.Detail != "" && !validDetailValues[strings.ToLower(cfg.Scenario.Bus.Detail)] {
		return ErrInvalidDetail
	}

	if err := validateNodesAndSends(cfg.Scenario); err != nil {
		return err
	}

	return nil
}

func validateNodesAndSends(s ScenarioSpec) error {
	uids := make(map[int]struct{}, len(s.Nodes))
	for _, n := range s.Nodes {
		if _, dup := uids[n.UID]; dup {
			return fmt.Errorf("node uid %d: %w", n.UID, ErrDuplicateNodeUID)
		}
		uids[n.UID] = struct{}{}
	}

	for i, snd := range s.Sends {
		if _, ok := uids[snd.FromUID]; !ok {
			return fmt.Errorf("sends[%d] from_uid %d: %w", i, snd.FromUID, ErrUnknownSendSource)
		}
		if snd.SizeBytes <= 0 {
			return fmt.Errorf("sends[%d]: %w", i, ErrInvalidSendSize)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
