package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the configuration file at configPath on top of the defaults.
// An empty path yields the defaults.
func Load(configPath string) (*Config, error) {
	config := Default()

	if configPath == "" {
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := validate(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func validate(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", config.Server.Port)
	}

	if config.Verify.MaxResolutions <= 0 {
		return fmt.Errorf("max_resolutions must be positive: %d", config.Verify.MaxResolutions)
	}

	if config.SMTP.GreylistDelay < 0 {
		return fmt.Errorf("greylist_delay cannot be negative: %s", config.SMTP.GreylistDelay)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[config.Logging.Level] {
		return fmt.Errorf("invalid log level: %q", config.Logging.Level)
	}

	return nil
}
