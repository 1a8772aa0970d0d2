package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DefaultPhabricatorURL is used when neither config file nor environment
// names an instance.
const DefaultPhabricatorURL = "https://phabricator.wikimedia.org"

// DefaultContextLines is the review-feedback context window when a tool
// call does not pass context_lines.
const DefaultContextLines = 7

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Phabricator PhabricatorConfig `yaml:"phabricator"`
	Review      ReviewConfig      `yaml:"review"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type PhabricatorConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
	// ArcrcPath points at an arcanist credential file used as the last
	// resort when no token is configured. Empty means ~/.arcrc.
	ArcrcPath string `yaml:"arcrc_path"`
}

// ReviewConfig tunes the comment correlation pipeline. The keyword lists
// are heuristics, not a contract; empty lists fall back to the package
// defaults in internal/review.
type ReviewConfig struct {
	ContextLines       int      `yaml:"context_lines"`
	IssueKeywords      []string `yaml:"issue_keywords"`
	SuggestionKeywords []string `yaml:"suggestion_keywords"`
	NitKeywords        []string `yaml:"nit_keywords"`
}

func Load(configPath string) (*Config, error) {
	// Try the file first.
	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		var config Config
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}

		// Sensitive values from the environment win over the file.
		config.loadFromEnv()
		config.applyDefaults()

		return &config, nil
	}

	// No file: build the config from the environment alone.
	config := loadFromEnv()
	config.applyDefaults()
	return config, nil
}

func (c *Config) loadFromEnv() {
	if url := os.Getenv("PHABRICATOR_URL"); url != "" {
		c.Phabricator.URL = url
	}
	if token := os.Getenv("PHABRICATOR_TOKEN"); token != "" {
		c.Phabricator.Token = token
	}
	if arcrc := os.Getenv("ARCRC_PATH"); arcrc != "" {
		c.Phabricator.ArcrcPath = arcrc
	}
	if portStr := os.Getenv("PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil {
			c.Server.Port = port
		}
	}
}

func loadFromEnv() *Config {
	port := 8932
	if portStr := os.Getenv("PORT"); portStr != "" {
		if p, err := strconv.Atoi(portStr); err == nil {
			port = p
		}
	}

	return &Config{
		Server: ServerConfig{
			Port: port,
		},
		Phabricator: PhabricatorConfig{
			URL:       getEnvOrDefault("PHABRICATOR_URL", DefaultPhabricatorURL),
			Token:     os.Getenv("PHABRICATOR_TOKEN"),
			ArcrcPath: os.Getenv("ARCRC_PATH"),
		},
	}
}

func (c *Config) applyDefaults() {
	if c.Phabricator.URL == "" {
		c.Phabricator.URL = DefaultPhabricatorURL
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8932
	}
	if c.Review.ContextLines <= 0 {
		c.Review.ContextLines = DefaultContextLines
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
