package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config contains the options shared across the client flows and the
// time-event dispatcher. Per-run connection details (host, port,
// credentials) are supplied separately via CLI flags in cmd/ms2bot; this
// struct only carries the values that spec.md §9 says should be injected
// configuration rather than package-level globals (Session.VERSION,
// Session.FIELD_KEY), plus the ambient logging/timeout/dispatcher settings
// that accompany them.
type Config struct {
	// Minimum level of a log required to be written. debug, info, warn, error.
	LogLevel string `mapstructure:"log_level"`
	// Full path to a file logs should be written to. Blank writes to stderr.
	LogFilePath string `mapstructure:"log_file_path"`

	Protocol struct {
		// Version the client advertises in ResponseVersion and requires the
		// handshake's RequestVersion to match.
		Version uint32 `mapstructure:"version"`
		// Value echoed back in ResponseFieldEnter's fieldKey.
		FieldKey int32 `mapstructure:"field_key"`
		// Locale advertised in ResponseVersion.
		Locale uint32 `mapstructure:"locale"`
	} `mapstructure:"protocol"`

	Timeouts struct {
		DefaultWait string `mapstructure:"default_wait"`
		FieldWait   string `mapstructure:"field_wait"`
	} `mapstructure:"timeouts"`

	TimeEvent struct {
		// Address the dispatcher's gRPC server listens on.
		ListenAddress string `mapstructure:"listen_address"`
	} `mapstructure:"time_event"`
}

const envVarPrefix = "MS2BOT"

// DefaultConfig returns the configuration used when no file is supplied,
// carrying the wire constants the protocol requires.
func DefaultConfig() *Config {
	cfg := &Config{LogLevel: "info"}
	cfg.Protocol.Version = 12
	cfg.Protocol.FieldKey = 0x1234
	cfg.Protocol.Locale = 47
	cfg.Timeouts.DefaultWait = "10s"
	cfg.Timeouts.FieldWait = "30s"
	cfg.TimeEvent.ListenAddress = ":22100"
	return cfg
}

// LoadConfig overlays an optional YAML file and MS2BOT_-prefixed
// environment variables on top of the compiled-in defaults. An empty
// configPath skips the file and returns the defaults with only env
// overrides applied.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetEnvPrefix(envVarPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	// Unmarshal only sees keys viper already knows about, so each config key
	// is bound explicitly for its environment override to apply.
	for _, key := range []string{
		"log_level", "log_file_path",
		"protocol.version", "protocol.field_key", "protocol.locale",
		"timeouts.default_wait", "timeouts.field_wait",
		"time_event.listen_address",
	} {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config file %s: %w", configPath, err)
			}
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return cfg, nil
}
