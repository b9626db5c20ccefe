package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/goccy/go-yaml"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes the environment variables that override configuration keys. The key
// listen.address is read from JSONRPCD_LISTEN_ADDRESS.
const EnvPrefix = "JSONRPCD"

var envVarRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// NewViper returns a viper instance holding the defaults and reading JSONRPCD_* environment
// variables. Flags bound to it take precedence over the environment.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	d := Default()
	v.SetDefault("listen.network", d.Listen.Network)
	v.SetDefault("listen.address", d.Listen.Address)
	v.SetDefault("sse.base_url", d.SSE.BaseURL)
	v.SetDefault("sse.events_path", d.SSE.EventsPath)
	v.SetDefault("sse.message_path", d.SSE.MessagePath)
	v.SetDefault("sse.max_message_size", d.SSE.MaxMessageSize)
	v.SetDefault("server.invocation_timeout", d.Server.InvocationTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("capabilities.sets", d.Capabilities.Sets)
	v.SetDefault("capabilities.expose", []string{})
	v.SetDefault("capabilities.filesystem.roots", []string{})
	v.SetDefault("capabilities.memory.file", d.Capabilities.Memory.File)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("metrics.address", d.Metrics.Address)
	v.SetDefault("metrics.path", d.Metrics.Path)

	return v
}

// Load builds the configuration from, in increasing order of precedence, the defaults, the file at
// path (skipped when path is empty), JSONRPCD_* environment variables and the flags bound to v.
// The result is validated.
func Load(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		settings, err := ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := v.MergeConfigMap(settings); err != nil {
			return Config{}, fmt.Errorf("failed to merge config %s: %w", path, err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ReadFile parses a TOML (.toml) or YAML (.yaml, .yml) configuration file into a settings map.
// ${VAR} placeholders in string values are replaced by the environment variable; unset variables
// are left as they are.
func ReadFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	settings := make(map[string]any)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if err := toml.Unmarshal(data, &settings); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &settings); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension %q: use .toml, .yaml or .yml", ext)
	}

	expandMap(settings)
	return settings, nil
}

// Encode writes cfg to w as TOML, or as YAML when format is "yaml".
func Encode(w io.Writer, cfg Config, format string) error {
	switch format {
	case "toml", "":
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		_, err := w.Write(buf.Bytes())
		return err
	case "yaml":
		bs, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		_, err = w.Write(bs)
		return err
	default:
		return fmt.Errorf("unsupported config format %q", format)
	}
}

func expandMap(m map[string]any) {
	for k, v := range m {
		m[k] = expandValue(v)
	}
}

func expandValue(v any) any {
	switch val := v.(type) {
	case string:
		return expandEnvVars(val)
	case map[string]any:
		expandMap(val)
		return val
	case []any:
		for i := range val {
			val[i] = expandValue(val[i])
		}
		return val
	case []map[string]any:
		for _, m := range val {
			expandMap(m)
		}
		return val
	default:
		return v
	}
}

func expandEnvVars(s string) string {
	return envVarRe.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarRe.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
}
