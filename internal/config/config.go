package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                 = "LOOM"
	defaultHTTPAddress        = "127.0.0.1:8750"
	defaultDatabasePath       = "loom.db"
	defaultLogLevel           = "info"
	defaultIPCTokenTTLMinutes = 720
	defaultMaxSnapshots       = 20
	defaultAutosaveSeconds    = 30
	defaultTriggerMode        = "character_count"
	defaultCharacterThreshold = 500
)

// AppConfig captures runtime configuration for the local content service.
type AppConfig struct {
	HTTPAddress        string
	DatabasePath       string
	LogLevel           string
	IPCSigningSecret   string
	IPCPairingSecret   string
	IPCTokenTTL        time.Duration
	MaxSnapshots       int
	AutosaveDelay      time.Duration
	TriggerMode        string
	CharacterThreshold int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("ipc.token_ttl_minutes", defaultIPCTokenTTLMinutes)
	configViper.SetDefault("retention.max_snapshots", defaultMaxSnapshots)
	configViper.SetDefault("autosave.delay_seconds", defaultAutosaveSeconds)
	configViper.SetDefault("snapshot.trigger_mode", defaultTriggerMode)
	configViper.SetDefault("snapshot.character_threshold", defaultCharacterThreshold)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:        configViper.GetString("http.address"),
		DatabasePath:       configViper.GetString("database.path"),
		LogLevel:           configViper.GetString("log.level"),
		IPCSigningSecret:   configViper.GetString("ipc.signing_secret"),
		IPCPairingSecret:   configViper.GetString("ipc.pairing_secret"),
		IPCTokenTTL:        time.Duration(configViper.GetInt("ipc.token_ttl_minutes")) * time.Minute,
		MaxSnapshots:       configViper.GetInt("retention.max_snapshots"),
		AutosaveDelay:      time.Duration(configViper.GetInt("autosave.delay_seconds")) * time.Second,
		TriggerMode:        configViper.GetString("snapshot.trigger_mode"),
		CharacterThreshold: configViper.GetInt("snapshot.character_threshold"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.IPCSigningSecret) == "" {
		return fmt.Errorf("ipc.signing_secret is required")
	}
	if strings.TrimSpace(c.IPCPairingSecret) == "" {
		return fmt.Errorf("ipc.pairing_secret is required")
	}
	if c.MaxSnapshots < 1 {
		return fmt.Errorf("retention.max_snapshots must be at least 1")
	}
	if c.CharacterThreshold < 1 {
		return fmt.Errorf("snapshot.character_threshold must be at least 1")
	}
	return nil
}
