// Package config holds the mailprobed daemon configuration.
package config

import "time"

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Verify  VerifyConfig  `yaml:"verify"`
	SMTP    SMTPConfig    `yaml:"smtp"`
	Logging LoggingConfig `yaml:"logging"`
}

type ServerConfig struct {
	Bind           string        `yaml:"bind"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type VerifyConfig struct {
	SenderDomain   string        `yaml:"sender_domain"`
	SenderAddress  string        `yaml:"sender_address"`
	MaxResolutions int64         `yaml:"max_resolutions"`
	ResolveTimeout time.Duration `yaml:"resolve_timeout"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`
	Nameservers    []string      `yaml:"nameservers"`
}

type SMTPConfig struct {
	Port               string        `yaml:"port"`
	ConnectTimeout     time.Duration `yaml:"connect_timeout"`
	CommandTimeout     time.Duration `yaml:"command_timeout"`
	MaxSessionsPerHost int           `yaml:"max_sessions_per_host"`
	GreylistDelay      time.Duration `yaml:"greylist_delay"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Bind:           "127.0.0.1",
			Port:           8025,
			RequestTimeout: 2 * time.Minute,
		},
		Verify: VerifyConfig{
			MaxResolutions: 256,
			ResolveTimeout: 5 * time.Second,
			CacheTTL:       5 * time.Minute,
		},
		SMTP: SMTPConfig{
			Port:               "25",
			ConnectTimeout:     5 * time.Second,
			CommandTimeout:     10 * time.Second,
			MaxSessionsPerHost: 3,
			GreylistDelay:      15 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
