package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/wesm/gh-issues-stats/internal/issues"
)

const (
	// EnvGithubToken is the environment variable name for the GitHub API token
	EnvGithubToken = "GITHUB_TOKEN"

	// DefaultRefresh is the refresh interval used when none is configured
	DefaultRefresh = "24hours"

	// APIREST selects the GitHub REST API
	APIREST = "rest"
	// APIGraphQL selects the GitHub GraphQL API, which requires a token
	APIGraphQL = "graphql"

	appName = "gh-issues-stats"
)

// ErrInvalidConfig is returned for malformed configuration files and values
var ErrInvalidConfig = errors.New("invalid configuration")

var refreshPattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)(seconds?|minutes?|hours?|days?)$`)

// Config represents the application configuration
type Config struct {
	// GitHub API token for authentication (optional, can be set via GITHUB_TOKEN env var)
	GitHubToken string `json:"github_token" yaml:"github_token"`

	// API backend used to fetch issues, "rest" or "graphql"
	API string `json:"api" yaml:"api"`

	// Root directory of the per-repository issue stores
	CachePath string `json:"cache_path" yaml:"cache_path"`

	// Minimum time between two syncs, e.g. "30minutes", "2.5hours", "1day"
	Refresh string `json:"refresh" yaml:"refresh"`
}

// DefaultConfigPath returns ~/.config/gh-issues-stats.json
func DefaultConfigPath() string {
	return filepath.Join(homeDir(), ".config", appName+".json")
}

// DefaultCachePath returns ~/.cache/gh-issues-stats
func DefaultCachePath() string {
	return filepath.Join(homeDir(), ".cache", appName)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

// LoadConfig loads the configuration from a JSON or YAML file. A missing file
// yields the defaults. Variables from a .env file in the working directory
// are loaded first.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	var config Config

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := unmarshal(path, data, &config); err != nil {
			return nil, fmt.Errorf("%w: failed to parse config file '%s': %v", ErrInvalidConfig, path, err)
		}
	}

	// Check for GitHub token in environment variable
	if envToken := os.Getenv(EnvGithubToken); envToken != "" {
		config.GitHubToken = envToken
	}

	config.setDefaults()

	// Make cache path absolute if it's relative to the config file
	if !filepath.IsAbs(config.CachePath) {
		configDir := filepath.Dir(path)
		config.CachePath = filepath.Join(configDir, config.CachePath)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) setDefaults() {
	if c.API == "" {
		c.API = APIREST
	}
	if c.CachePath == "" {
		c.CachePath = DefaultCachePath()
	}
	if c.Refresh == "" {
		c.Refresh = DefaultRefresh
	}
}

// Validate checks the API backend and the refresh interval
func (c *Config) Validate() error {
	switch c.API {
	case APIREST, APIGraphQL:
	default:
		return fmt.Errorf("%w: unknown api '%s', expected '%s' or '%s'", ErrInvalidConfig, c.API, APIREST, APIGraphQL)
	}

	if _, err := ParseRefreshInterval(c.Refresh); err != nil {
		return err
	}

	return nil
}

// RefreshInterval returns the parsed refresh interval
func (c *Config) RefreshInterval() (time.Duration, error) {
	return ParseRefreshInterval(c.Refresh)
}

// Options builds the service options for a repository
func (c *Config) Options(repository string, logger *slog.Logger) (issues.Options, error) {
	refresh, err := c.RefreshInterval()
	if err != nil {
		return issues.Options{}, err
	}

	return issues.Options{
		Repository: repository,
		CachePath:  c.CachePath,
		Refresh:    refresh,
		Logger:     logger,
	}, nil
}

// ParseRefreshInterval turns strings like "30minutes", "2.5hours" or "1day"
// into a duration. An empty string yields DefaultRefresh, zero refreshes on
// every read.
func ParseRefreshInterval(interval string) (time.Duration, error) {
	if interval == "" {
		interval = DefaultRefresh
	}

	match := refreshPattern.FindStringSubmatch(interval)
	if match == nil {
		return 0, fmt.Errorf("%w: invalid refresh interval format: '%s', use a format like '30minutes', '2hours', '1day'", ErrInvalidConfig, interval)
	}

	value, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid refresh interval value: '%s'", ErrInvalidConfig, match[1])
	}

	var unit time.Duration
	switch strings.TrimSuffix(match[2], "s") {
	case "second":
		unit = time.Second
	case "minute":
		unit = time.Minute
	case "hour":
		unit = time.Hour
	case "day":
		unit = 24 * time.Hour
	}

	nanoseconds := value * float64(unit)
	if nanoseconds >= math.MaxInt64 {
		return 0, fmt.Errorf("%w: refresh interval '%s' is too long", ErrInvalidConfig, interval)
	}

	return time.Duration(nanoseconds), nil
}

// SaveConfig saves the configuration to a JSON or YAML file, chosen by extension
func SaveConfig(config *Config, path string) error {
	data, err := marshal(path, config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// CreateDefaultConfig creates a default configuration file if it doesn't
// exist. It reports whether a file was written.
func CreateDefaultConfig(path string) (bool, error) {
	// Check if the file already exists
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}

	config := &Config{
		GitHubToken: "",
		API:         APIREST,
		CachePath:   DefaultCachePath(),
		Refresh:     DefaultRefresh,
	}

	// Ensure the directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return false, fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := SaveConfig(config, path); err != nil {
		return false, err
	}
	return true, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func unmarshal(path string, data []byte, config *Config) error {
	if isYAML(path) {
		return yaml.Unmarshal(data, config)
	}
	return json.Unmarshal(data, config)
}

func marshal(path string, config *Config) ([]byte, error) {
	if isYAML(path) {
		return yaml.Marshal(config)
	}
	return json.MarshalIndent(config, "", "  ")
}
