package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix              = "ANCHOR"
	defaultHTTPAddress     = "0.0.0.0:8080"
	defaultDatabasePath    = "anchor.db"
	defaultLogLevel        = "info"
	defaultCookieName      = "app_session"
	defaultIssuer          = "tauth"
	defaultGraphMaxNodes   = 200
	defaultTickIntervalMS  = 16
	defaultSuggestProvider = "none"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress     string
	TAuthSigningKey string
	TAuthCookieName string
	TAuthIssuer     string
	DatabasePath    string
	LogLevel        string
	Graph           GraphConfig
	Suggest         SuggestConfig
}

// GraphConfig tunes graph construction and the layout driver.
type GraphConfig struct {
	MaxNodes     int
	TickInterval time.Duration
}

// SuggestConfig selects the tag suggestion provider.
type SuggestConfig struct {
	Provider string
	APIKey   string
	Model    string
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
	configViper.SetDefault("tauth.cookie_name", defaultCookieName)
	configViper.SetDefault("tauth.issuer", defaultIssuer)
	configViper.SetDefault("graph.max_nodes", defaultGraphMaxNodes)
	configViper.SetDefault("graph.tick_interval_ms", defaultTickIntervalMS)
	configViper.SetDefault("suggest.provider", defaultSuggestProvider)
	configViper.SetDefault("suggest.api_key", "")
	configViper.SetDefault("suggest.model", "")
}

// Load parses the full server configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:     configViper.GetString("http.address"),
		TAuthSigningKey: configViper.GetString("tauth.signing_secret"),
		TAuthCookieName: configViper.GetString("tauth.cookie_name"),
		TAuthIssuer:     configViper.GetString("tauth.issuer"),
		DatabasePath:    configViper.GetString("database.path"),
		LogLevel:        configViper.GetString("log.level"),
		Graph:           loadGraph(configViper),
		Suggest: SuggestConfig{
			Provider: strings.ToLower(strings.TrimSpace(configViper.GetString("suggest.provider"))),
			APIKey:   configViper.GetString("suggest.api_key"),
			Model:    strings.TrimSpace(configViper.GetString("suggest.model")),
		},
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// LoadOffline parses the subset of configuration used by commands that only
// touch the database. The session secret is not required.
func LoadOffline(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		DatabasePath: configViper.GetString("database.path"),
		LogLevel:     configViper.GetString("log.level"),
		Graph:        loadGraph(configViper),
	}
	if strings.TrimSpace(cfg.DatabasePath) == "" {
		return AppConfig{}, fmt.Errorf("database.path is required")
	}
	if err := cfg.Graph.validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func loadGraph(configViper *viper.Viper) GraphConfig {
	return GraphConfig{
		MaxNodes:     configViper.GetInt("graph.max_nodes"),
		TickInterval: time.Duration(configViper.GetInt("graph.tick_interval_ms")) * time.Millisecond,
	}
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.TAuthSigningKey) == "" {
		return fmt.Errorf("tauth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.TAuthCookieName) == "" {
		return fmt.Errorf("tauth.cookie_name is required")
	}
	if strings.TrimSpace(c.TAuthIssuer) == "" {
		return fmt.Errorf("tauth.issuer is required")
	}
	if err := c.Graph.validate(); err != nil {
		return err
	}
	switch c.Suggest.Provider {
	case "", "none":
	case "openai", "anthropic":
		if strings.TrimSpace(c.Suggest.APIKey) == "" {
			return fmt.Errorf("suggest.api_key is required for provider %q", c.Suggest.Provider)
		}
	default:
		return fmt.Errorf("suggest.provider %q is not supported", c.Suggest.Provider)
	}
	return nil
}

func (g GraphConfig) validate() error {
	if g.MaxNodes <= 0 {
		return fmt.Errorf("graph.max_nodes must be positive, got %d", g.MaxNodes)
	}
	if g.TickInterval <= 0 {
		return fmt.Errorf("graph.tick_interval_ms must be positive")
	}
	return nil
}
