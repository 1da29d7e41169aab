// Package config loads tool settings and anki-vibe.toml project files.
//
// Settings come from viper in increasing precedence: built-in defaults,
// an optional YAML settings file, ANKIVIBE_* environment variables and
// bound command-line flags. The resulting Settings value is passed
// explicitly to whatever needs it; there is no package-level state.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hieucao/anki-vibe/internal/schema"
)

// EnvPrefix prefixes environment overrides, e.g. ANKIVIBE_ANKI_CONNECT_URL.
const EnvPrefix = "ANKIVIBE"

// Setting keys.
const (
	KeyURL       = "anki_connect.url"
	KeyTimeout   = "anki_connect.timeout"
	KeyRateLimit = "anki_connect.rate_limit"
	KeyAPIKey    = "anki_connect.api_key"
	KeyDataDir   = "data_dir"
	KeyLogDir    = "log_dir"
	KeyLogLevel  = "log_level"
	KeyWorkers   = "pull.workers"
	KeyChunkSize = "sync.chunk_size"
)

// ErrSettings marks an unreadable or invalid settings file.
var ErrSettings = errors.New("invalid settings")

// AnkiConnect holds connection settings.
type AnkiConnect struct {
	URL       string        `mapstructure:"url" validate:"required,url"`
	Timeout   time.Duration `mapstructure:"timeout" validate:"gt=0"`
	RateLimit float64       `mapstructure:"rate_limit" validate:"gte=0"`
	APIKey    string        `mapstructure:"api_key"`
}

// Settings is the resolved tool configuration.
type Settings struct {
	AnkiConnect AnkiConnect `mapstructure:"anki_connect"`
	DataDir     string      `mapstructure:"data_dir" validate:"required"`
	LogDir      string      `mapstructure:"log_dir"`
	LogLevel    string      `mapstructure:"log_level" validate:"oneof=trace debug info warn error"`
	Pull        struct {
		Workers int `mapstructure:"workers" validate:"min=1,max=32"`
	} `mapstructure:"pull"`
	Sync struct {
		ChunkSize int `mapstructure:"chunk_size" validate:"min=2"`
	} `mapstructure:"sync"`

	// File is the settings file that was read, if any.
	File string `mapstructure:"-"`
}

// NewViper returns a viper instance with defaults and environment
// overrides registered. An empty configFile searches the user config
// directory for anki-vibe/config.yaml.
func NewViper(configFile string) *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyURL, "http://localhost:8765")
	v.SetDefault(KeyTimeout, 30*time.Second)
	v.SetDefault(KeyRateLimit, 50.0)
	v.SetDefault(KeyAPIKey, "")
	v.SetDefault(KeyDataDir, "data")
	v.SetDefault(KeyLogDir, "logs")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyWorkers, 5)
	v.SetDefault(KeyChunkSize, 500)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		return v
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, "anki-vibe"))
	}
	return v
}

// Load reads the settings file (if any) and decodes v into Settings.
func Load(v *viper.Viper) (*Settings, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: %w", ErrSettings, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSettings, err)
	}
	s.File = v.ConfigFileUsed()
	s.LogLevel = strings.ToLower(s.LogLevel)

	if err := schema.Validate(&s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSettings, err)
	}
	return &s, nil
}
