package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gobwas/glob"
)

// Config is the configuration of the jsonrpcd daemon.
type Config struct {
	Listen       ListenConfig       `toml:"listen" yaml:"listen" mapstructure:"listen"`
	SSE          SSEConfig          `toml:"sse" yaml:"sse" mapstructure:"sse"`
	Server       ServerConfig       `toml:"server" yaml:"server" mapstructure:"server"`
	Capabilities CapabilitiesConfig `toml:"capabilities" yaml:"capabilities" mapstructure:"capabilities"`
	Log          LogConfig          `toml:"log" yaml:"log" mapstructure:"log"`
	Metrics      MetricsConfig      `toml:"metrics" yaml:"metrics" mapstructure:"metrics"`
}

// ListenConfig selects the transport the daemon serves on.
type ListenConfig struct {
	// Network is one of stdio, tcp, unix or sse.
	Network string `toml:"network" yaml:"network" mapstructure:"network"`
	// Address is a host:port for tcp and sse, or a socket path for unix.
	Address string `toml:"address" yaml:"address" mapstructure:"address"`
}

// SSEConfig configures the HTTP endpoints of the sse network.
type SSEConfig struct {
	// BaseURL is the externally visible URL of the daemon. The message endpoint announced to
	// clients is built from it. When empty, it is derived from Listen.Address.
	BaseURL        string `toml:"base_url" yaml:"base_url" mapstructure:"base_url"`
	EventsPath     string `toml:"events_path" yaml:"events_path" mapstructure:"events_path"`
	MessagePath    string `toml:"message_path" yaml:"message_path" mapstructure:"message_path"`
	MaxMessageSize int64  `toml:"max_message_size" yaml:"max_message_size" mapstructure:"max_message_size"`
}

// ServerConfig tunes request processing.
type ServerConfig struct {
	// InvocationTimeout bounds each capability invocation. Zero disables the bound.
	InvocationTimeout time.Duration `toml:"invocation_timeout" yaml:"invocation_timeout" mapstructure:"invocation_timeout"`
	// ShutdownTimeout bounds the graceful shutdown after a termination signal.
	ShutdownTimeout time.Duration `toml:"shutdown_timeout" yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// CapabilitiesConfig selects the capability sets the daemon registers.
type CapabilitiesConfig struct {
	// Sets lists the enabled capability sets: everything, filesystem and memory.
	Sets []string `toml:"sets" yaml:"sets" mapstructure:"sets"`
	// Expose restricts the registered capabilities to names matching one of these globs.
	Expose     []string         `toml:"expose" yaml:"expose" mapstructure:"expose"`
	Filesystem FilesystemConfig `toml:"filesystem" yaml:"filesystem" mapstructure:"filesystem"`
	Memory     MemoryConfig     `toml:"memory" yaml:"memory" mapstructure:"memory"`
}

// FilesystemConfig configures the filesystem capability set.
type FilesystemConfig struct {
	Roots []string `toml:"roots" yaml:"roots" mapstructure:"roots"`
}

// MemoryConfig configures the memory capability set.
type MemoryConfig struct {
	File string `toml:"file" yaml:"file" mapstructure:"file"`
}

// LogConfig configures the daemon logger.
type LogConfig struct {
	Level  string `toml:"level" yaml:"level" mapstructure:"level"`
	Format string `toml:"format" yaml:"format" mapstructure:"format"`
}

// MetricsConfig configures the Prometheus endpoint. An empty Address disables it.
type MetricsConfig struct {
	Address string `toml:"address" yaml:"address" mapstructure:"address"`
	Path    string `toml:"path" yaml:"path" mapstructure:"path"`
}

// Networks accepted in ListenConfig.Network.
const (
	NetworkStdio = "stdio"
	NetworkTCP   = "tcp"
	NetworkUnix  = "unix"
	NetworkSSE   = "sse"
)

// Capability sets accepted in CapabilitiesConfig.Sets.
const (
	SetEverything = "everything"
	SetFilesystem = "filesystem"
	SetMemory     = "memory"
)

// Log formats accepted in LogConfig.Format.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Default returns the configuration used when nothing else is given.
func Default() Config {
	return Config{
		Listen: ListenConfig{
			Network: NetworkStdio,
		},
		SSE: SSEConfig{
			EventsPath:     "/sse",
			MessagePath:    "/message",
			MaxMessageSize: 4 << 20,
		},
		Server: ServerConfig{
			ShutdownTimeout: 10 * time.Second,
		},
		Capabilities: CapabilitiesConfig{
			Sets: []string{SetEverything},
		},
		Log: LogConfig{
			Level:  "info",
			Format: LogFormatText,
		},
		Metrics: MetricsConfig{
			Path: "/metrics",
		},
	}
}

// Validate checks the configuration and reports every problem found.
func (c Config) Validate() error {
	var errs []error

	switch c.Listen.Network {
	case NetworkStdio:
	case NetworkTCP, NetworkUnix, NetworkSSE:
		if strings.TrimSpace(c.Listen.Address) == "" {
			errs = append(errs, fmt.Errorf("listen.address is required for network %s", c.Listen.Network))
		}
	default:
		errs = append(errs, fmt.Errorf("listen.network %q must be one of stdio, tcp, unix, sse", c.Listen.Network))
	}

	if c.Listen.Network == NetworkSSE {
		errs = append(errs, c.SSE.validate()...)
	}

	if c.Server.InvocationTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.invocation_timeout must not be negative"))
	}
	if c.Server.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout must not be negative"))
	}

	errs = append(errs, c.Capabilities.validate()...)

	if _, err := c.Log.level(); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != LogFormatText && c.Log.Format != LogFormatJSON {
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}

	if c.Metrics.Address != "" && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("metrics.path %q must start with /", c.Metrics.Path))
	}

	return errors.Join(errs...)
}

func (c SSEConfig) validate() []error {
	var errs []error
	if !strings.HasPrefix(c.EventsPath, "/") {
		errs = append(errs, fmt.Errorf("sse.events_path %q must start with /", c.EventsPath))
	}
	if !strings.HasPrefix(c.MessagePath, "/") {
		errs = append(errs, fmt.Errorf("sse.message_path %q must start with /", c.MessagePath))
	}
	if c.EventsPath == c.MessagePath {
		errs = append(errs, fmt.Errorf("sse.events_path and sse.message_path must differ"))
	}
	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("sse.base_url %q must be an absolute URL", c.BaseURL))
		}
	}
	if c.MaxMessageSize <= 0 {
		errs = append(errs, fmt.Errorf("sse.max_message_size must be positive"))
	}
	return errs
}

func (c CapabilitiesConfig) validate() []error {
	var errs []error
	if len(c.Sets) == 0 {
		errs = append(errs, fmt.Errorf("capabilities.sets must enable at least one set"))
	}
	for _, set := range c.Sets {
		switch set {
		case SetEverything:
		case SetFilesystem:
			if len(c.Filesystem.Roots) == 0 {
				errs = append(errs, fmt.Errorf("capabilities.filesystem.roots is required by the filesystem set"))
			}
		case SetMemory:
			if strings.TrimSpace(c.Memory.File) == "" {
				errs = append(errs, fmt.Errorf("capabilities.memory.file is required by the memory set"))
			}
		default:
			errs = append(errs, fmt.Errorf("capabilities.sets: unknown set %q", set))
		}
	}
	for _, pattern := range c.Expose {
		if _, err := glob.Compile(pattern, '/'); err != nil {
			errs = append(errs, fmt.Errorf("capabilities.expose: invalid pattern %q: %w", pattern, err))
		}
	}
	return errs
}

// Enabled reports whether the capability set is enabled.
func (c CapabilitiesConfig) Enabled(set string) bool {
	return slices.Contains(c.Sets, set)
}

func (c LogConfig) level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return 0, fmt.Errorf("log.level %q: %w", c.Level, err)
	}
	return level, nil
}

// NewLogger builds a logger writing to w in the configured format and level.
func (c LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := c.level()
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: level}
	switch c.Format {
	case LogFormatJSON:
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case LogFormatText, "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("log.format %q must be text or json", c.Format)
	}
}
