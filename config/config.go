// Package config loads and stores chainq configuration.
package config

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

var AppFs = afero.NewOsFs()

// Config holds the application configuration.
type Config struct {
	App         string // application name, used in error reporting
	Namespace   string // entity namespace prefix, empty for none
	DatabaseURL string
	Provider    string // postgres, mysql or sqlite
	Debug       bool
	Entities    []EntitySpec
}

// EntityFieldSpec declares one entity field in the config file.
type EntityFieldSpec struct {
	Name string `mapstructure:"name"`
	Type string `mapstructure:"type"`
}

// AssocSpec declares an implicit association in the config file.
type AssocSpec struct {
	Target     string `mapstructure:"target"`
	ForeignKey string `mapstructure:"foreign_key"`
}

// EntitySpec declares an entity in the config file so the CLI can register
// it without code.
type EntitySpec struct {
	Name       string               `mapstructure:"name"`
	Table      string               `mapstructure:"table"`
	Fields     []EntityFieldSpec    `mapstructure:"fields"`
	PrimaryKey []string             `mapstructure:"primary_key"`
	Assocs     map[string]AssocSpec `mapstructure:"assocs"`
}

// Load reads configuration from config files, environment variables and
// .env files.
func Load() (*Config, error) {
	home, err := homedir.Dir()
	if err != nil {
		return nil, err
	}

	viper.SetConfigName(".chainq")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath(home)
	viper.AddConfigPath(filepath.Join(home, ".config", "chainq"))

	viper.SetEnvPrefix("CHAINQ")
	viper.AutomaticEnv()

	viper.SetDefault("provider", "postgres")
	viper.SetDefault("debug", false)

	// Missing config files are fine; env vars and defaults still apply.
	_ = viper.ReadInConfig()

	if _, err := AppFs.Stat(".env"); err == nil {
		_ = godotenv.Load()
	}
	if _, err := AppFs.Stat(".env.local"); err == nil {
		_ = godotenv.Overload(".env.local")
	}

	cfg := &Config{
		App:         viper.GetString("app"),
		Namespace:   viper.GetString("namespace"),
		DatabaseURL: viper.GetString("database_url"),
		Provider:    viper.GetString("provider"),
		Debug:       viper.GetBool("debug"),
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if err := viper.UnmarshalKey("entities", &cfg.Entities); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to the user's config directory.
func Save(cfg *Config) error {
	viper.Set("app", cfg.App)
	viper.Set("namespace", cfg.Namespace)
	viper.Set("database_url", cfg.DatabaseURL)
	viper.Set("provider", cfg.Provider)
	viper.Set("debug", cfg.Debug)

	home, err := homedir.Dir()
	if err != nil {
		return err
	}
	configPath := filepath.Join(home, ".config", "chainq")
	if err := AppFs.MkdirAll(configPath, 0o755); err != nil {
		return err
	}
	return viper.WriteConfigAs(filepath.Join(configPath, ".chainq.yaml"))
}

// store is the process-wide configuration. Callers that do not inject a
// config explicitly fall back to it; the last writer wins.
var (
	storeMu sync.RWMutex
	store   *Config
)

// Set replaces the process-wide configuration.
func Set(cfg *Config) {
	storeMu.Lock()
	store = cfg
	storeMu.Unlock()
}

// Current returns the process-wide configuration, or nil when none was set.
func Current() *Config {
	storeMu.RLock()
	defer storeMu.RUnlock()
	return store
}
