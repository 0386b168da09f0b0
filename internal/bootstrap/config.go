package bootstrap

import (
	"fmt"

	"latentspeed/internal/config"
)

// Config is an alias for the project's main configuration struct
type Config = config.Config

// LoadConfig delegates to the project's config loader
func LoadConfig(path string) (*Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	if err := checkPreFlight(cfg); err != nil {
		return nil, fmt.Errorf("pre-flight checks failed: %w", err)
	}

	return cfg, nil
}

// checkPreFlight performs environment checks beyond schema validation: every
// active venue must resolve a usable endpoint set for its configured
// environment before the gateway starts dialing it.
func checkPreFlight(cfg *Config) error {
	for _, name := range cfg.App.ActiveVenues {
		venue, ok := cfg.Venues[name]
		if !ok {
			return fmt.Errorf("active venue %q has no configuration entry", name)
		}
		set, err := venue.EndpointFor()
		if err != nil {
			return fmt.Errorf("venue %q: %w", name, err)
		}
		if set.RESTBaseURL == "" {
			return fmt.Errorf("venue %q: rest_base_url is empty for the selected environment", name)
		}
	}
	return nil
}
