// Package config handles the gateway's static configuration: which venues
// are active, the credential resolver (CLI-then-env precedence, CEX vs DEX
// credential shape), the endpoint matrix (testnet/mainnet host selection),
// and the tuning knobs every adapter's reliability machinery exposes.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the complete static configuration for one gateway process.
type Config struct {
	App       AppConfig                `yaml:"app"`
	Venues    map[string]VenueConfig   `yaml:"venues"`
	Ingress   IngressConfig            `yaml:"ingress"`
	Egress    EgressConfig             `yaml:"egress"`
	System    SystemConfig             `yaml:"system"`
	Telemetry TelemetryConfig          `yaml:"telemetry"`
}

// AppConfig contains process-level settings.
type AppConfig struct {
	ActiveVenues []string `yaml:"active_venues"`
}

// VenueType distinguishes credential/signing shape.
type VenueType string

const (
	VenueTypeCEX VenueType = "cex"
	VenueTypeDEX VenueType = "dex"
)

// Environment selects which entry of a venue's endpoint matrix to dial.
type Environment string

const (
	EnvMainnet Environment = "mainnet"
	EnvTestnet Environment = "testnet"
	EnvDemo    Environment = "demo"
)

// EndpointSet is one environment's REST/WS host pair for a venue.
type EndpointSet struct {
	RESTBaseURL string `yaml:"rest_base_url"`
	WSURL       string `yaml:"ws_url"`
}

// VenueConfig configures one venue adapter: its type, credentials,
// endpoint matrix, and tuning overrides.
type VenueConfig struct {
	Type VenueType `yaml:"type" validate:"required,oneof=cex dex"`

	// CEX credentials. Populated by the credential resolver from
	// LATENTSPEED_<VENUE>_API_KEY / _API_SECRET when left blank in YAML.
	APIKey    Secret `yaml:"api_key"`
	APISecret Secret `yaml:"api_secret"`

	// DEX credentials. Populated from LATENTSPEED_<VENUE>_USER_ADDRESS /
	// _PRIVATE_KEY when left blank in YAML.
	UserAddress  string `yaml:"user_address"`
	PrivateKey   Secret `yaml:"private_key"`
	VaultAddress string `yaml:"vault_address"`
	ChainID      int64  `yaml:"chain_id"`

	UseTestnet bool `yaml:"use_testnet"`

	Endpoints map[Environment]EndpointSet `yaml:"endpoints"`

	Tuning VenueTuning `yaml:"tuning"`
}

// VenueTuning collects the reliability/throughput knobs the adapters read
// at construction time; zero values fall back to each package's own
// DefaultConfig().
type VenueTuning struct {
	RecvWindowMs       int64   `yaml:"recv_window_ms"`
	MaxRequestsPerWindow int   `yaml:"max_requests_per_window"`
	WindowSeconds      int     `yaml:"window_seconds"`
	BackoffBaseMs      int     `yaml:"backoff_base_ms"`
	BackoffCapMs       int     `yaml:"backoff_cap_ms"`
	ResubscribeQuietMs int     `yaml:"resubscribe_quiet_ms"`
	ReconnectQuietMs   int     `yaml:"reconnect_quiet_ms"`
	BatchIntervalMs    int     `yaml:"batch_interval_ms"`
	WSPostTimeoutMs    int     `yaml:"ws_post_timeout_ms"`
	DefaultSlippageBps float64 `yaml:"default_slippage_bps"`
	PriceDecimals      int     `yaml:"price_decimals"`
}

// IngressConfig configures the PULL-style order-intake listener.
type IngressConfig struct {
	ListenAddr string `yaml:"listen_addr" validate:"required"`
}

// EgressConfig configures the PUB-style report/fill broadcaster.
type EgressConfig struct {
	ListenAddr string `yaml:"listen_addr" validate:"required"`
}

// SystemConfig contains process-wide settings.
type SystemConfig struct {
	LogLevel string `yaml:"log_level" validate:"required,oneof=DEBUG INFO WARN ERROR FATAL"`
}

// TelemetryConfig contains telemetry settings.
type TelemetryConfig struct {
	MetricsPort   int  `yaml:"metrics_port"`
	EnableMetrics bool `yaml:"enable_metrics"`
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment
// variable expansion, then applies the credential resolver before
// validating.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ResolveCredentials()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// ResolveCredentials fills in any blank venue credential with its
// LATENTSPEED_<VENUE>_* environment variable, CLI-supplied values (via
// ApplyCLIOverride) taking precedence over both. Venue names are
// upper-cased for the env var lookup.
func (c *Config) ResolveCredentials() {
	for name, venue := range c.Venues {
		upper := strings.ToUpper(name)
		switch venue.Type {
		case VenueTypeDEX:
			if venue.UserAddress == "" {
				venue.UserAddress = os.Getenv(fmt.Sprintf("LATENTSPEED_%s_USER_ADDRESS", upper))
			}
			if venue.PrivateKey == "" {
				venue.PrivateKey = Secret(os.Getenv(fmt.Sprintf("LATENTSPEED_%s_PRIVATE_KEY", upper)))
			}
		default:
			if venue.APIKey == "" {
				venue.APIKey = Secret(os.Getenv(fmt.Sprintf("LATENTSPEED_%s_API_KEY", upper)))
			}
			if venue.APISecret == "" {
				venue.APISecret = Secret(os.Getenv(fmt.Sprintf("LATENTSPEED_%s_API_SECRET", upper)))
			}
		}
		if testnetStr := os.Getenv(fmt.Sprintf("LATENTSPEED_%s_USE_TESTNET", upper)); testnetStr != "" {
			venue.UseTestnet = strings.EqualFold(testnetStr, "true") || testnetStr == "1"
		}
		c.Venues[name] = venue
	}
}

// ApplyCLIOverride applies the --exchange/--api-key/--api-secret flags on
// top of whatever the YAML file and environment resolved, giving the CLI
// the highest precedence per the credential resolver's CLI-then-env order.
func (c *Config) ApplyCLIOverride(venueName, apiKey, apiSecret string) {
	if venueName == "" {
		return
	}
	venue := c.Venues[venueName]
	if apiKey != "" {
		venue.APIKey = Secret(apiKey)
	}
	if apiSecret != "" {
		venue.APISecret = Secret(apiSecret)
	}
	c.Venues[venueName] = venue
	if !contains(c.App.ActiveVenues, venueName) {
		c.App.ActiveVenues = append(c.App.ActiveVenues, venueName)
	}
}

// EndpointFor resolves the REST/WS host pair for a venue's currently
// selected environment (testnet when UseTestnet is set, mainnet
// otherwise).
func (v VenueConfig) EndpointFor() (EndpointSet, error) {
	env := EnvMainnet
	if v.UseTestnet {
		env = EnvTestnet
	}
	set, ok := v.Endpoints[env]
	if !ok {
		return EndpointSet{}, fmt.Errorf("no endpoint configured for environment %q", env)
	}
	return set, nil
}

// Validate performs comprehensive validation of the configuration.
func (c *Config) Validate() error {
	var errs []string

	if err := c.validateAppConfig(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateVenues(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateSystemConfig(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errs, "\n"))
	}
	return nil
}

func (c *Config) validateAppConfig() error {
	if len(c.App.ActiveVenues) == 0 {
		return ValidationError{
			Field:   "app.active_venues",
			Message: "at least one venue must be active",
		}
	}
	for _, name := range c.App.ActiveVenues {
		if _, exists := c.Venues[name]; !exists {
			return ValidationError{
				Field:   "app.active_venues",
				Value:   name,
				Message: "venue configuration not found in venues section",
			}
		}
	}
	return nil
}

func (c *Config) validateVenues() error {
	if len(c.Venues) == 0 {
		return ValidationError{
			Field:   "venues",
			Message: "at least one venue must be configured",
		}
	}
	for name, venue := range c.Venues {
		switch venue.Type {
		case VenueTypeCEX:
			if venue.APIKey == "" || venue.APISecret == "" {
				return ValidationError{
					Field:   fmt.Sprintf("venues.%s", name),
					Message: "api_key and api_secret are required for a cex venue",
				}
			}
		case VenueTypeDEX:
			if venue.UserAddress == "" || venue.PrivateKey == "" {
				return ValidationError{
					Field:   fmt.Sprintf("venues.%s", name),
					Message: "user_address and private_key are required for a dex venue",
				}
			}
		default:
			return ValidationError{
				Field:   fmt.Sprintf("venues.%s.type", name),
				Value:   venue.Type,
				Message: "must be one of: cex, dex",
			}
		}
		if _, err := venue.EndpointFor(); err != nil {
			return ValidationError{
				Field:   fmt.Sprintf("venues.%s.endpoints", name),
				Message: err.Error(),
			}
		}
	}
	return nil
}

func (c *Config) validateSystemConfig() error {
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		return ValidationError{
			Field:   "system.log_level",
			Value:   c.System.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}
	}
	return nil
}

// String returns a string representation of the configuration with
// credentials redacted (Secret already marshals as [REDACTED]).
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}

func expandEnvVars(s string) string {
	return os.Expand(s, func(key string) string {
		return os.Getenv(key)
	})
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// DefaultConfig returns a minimal configuration usable in tests.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{ActiveVenues: []string{"bybit"}},
		Venues: map[string]VenueConfig{
			"bybit": {
				Type:       VenueTypeCEX,
				APIKey:     "test_api_key",
				APISecret:  "test_api_secret",
				UseTestnet: true,
				Endpoints: map[Environment]EndpointSet{
					EnvTestnet: {
						RESTBaseURL: "https://api-testnet.bybit.com",
						WSURL:       "wss://stream-testnet.bybit.com/v5/private",
					},
				},
			},
		},
		Ingress: IngressConfig{ListenAddr: "127.0.0.1:5600"},
		Egress:  EgressConfig{ListenAddr: "127.0.0.1:5601"},
		System:  SystemConfig{LogLevel: "INFO"},
	}
}
