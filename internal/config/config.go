package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds all configuration for the application
type Config struct {
	// Platform selection
	Platform string

	// GitLab related
	GitlabURL           string
	GitlabToken         string
	GitlabTargetFile    string
	GitlabTimeout       time.Duration
	GitlabSearch        string
	GitlabSearchInGroup string
	GitlabExclude       []string
	GitlabMRDescription string

	// GitHub related
	GithubToken   string
	GithubBaseURL string

	// Gitea related
	GiteaToken   string
	GiteaBaseURL string

	// Volatile behaviour
	TemplatePath string
	MergeRequest bool
	DryRun       bool

	// Prometheus related
	PrometheusPort    int
	PrometheusGateway string
	ScrapeWait        time.Duration

	// Interval between passes, zero means a single pass
	Interval time.Duration

	// Logging
	LogLevel  string
	LogFormat string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	config := &Config{
		// Platform selection (default to GitLab if not specified)
		Platform: strings.ToLower(getEnvWithDefault("PLATFORM", "gitlab")),

		// GitLab configuration
		GitlabURL:           os.Getenv("GITLAB_URL"),
		GitlabToken:         os.Getenv("GITLAB_PRIVATE_TOKEN"),
		GitlabTargetFile:    os.Getenv("GITLAB_TARGET_FILE"),
		GitlabSearch:        os.Getenv("GITLAB_SEARCH"),
		GitlabSearchInGroup: os.Getenv("GITLAB_SEARCH_IN_GROUP"),
		GitlabExclude:       splitAndTrim(os.Getenv("GITLAB_EXCLUDE"), ","),
		GitlabMRDescription: os.Getenv("GITLAB_MR_DESCRIPTION"),

		// GitHub configuration
		GithubToken:   os.Getenv("GITHUB_TOKEN"),
		GithubBaseURL: os.Getenv("GITHUB_BASE_URL"),

		// Gitea configuration
		GiteaToken:   os.Getenv("GITEA_TOKEN"),
		GiteaBaseURL: os.Getenv("GITEA_BASE_URL"),

		TemplatePath:      os.Getenv("VOLATILE_TEMPLATE_PATH"),
		PrometheusGateway: os.Getenv("VOLATILE_PROMETHEUS_GATEWAY"),

		LogLevel:  getEnvWithDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvWithDefault("LOG_FORMAT", "text"),
	}

	// Parse numeric and boolean values
	config.GitlabTimeout = time.Duration(getEnvIntWithDefault("GITLAB_TIMEOUT", 3)) * time.Second
	config.MergeRequest = parseBool(os.Getenv("VOLATILE_MERGE_REQUEST"), true)
	config.DryRun = parseBool(os.Getenv("VOLATILE_DRY_RUN"), true)
	config.PrometheusPort = getEnvIntWithDefault("VOLATILE_PROMETHEUS_PORT", 8000)
	config.ScrapeWait = parseDuration(os.Getenv("VOLATILE_SCRAPE_WAIT"), 240*time.Second)
	config.Interval = parseDuration(os.Getenv("VOLATILE_INTERVAL"), 0)

	return config
}

// Validate reports the first missing required variable
func (c *Config) Validate() error {
	switch c.Platform {
	case "gitlab":
		if c.GitlabURL == "" {
			return missing("GITLAB_URL")
		}
		if c.GitlabToken == "" {
			return missing("GITLAB_PRIVATE_TOKEN")
		}
	case "github":
		if c.GithubToken == "" {
			return missing("GITHUB_TOKEN")
		}
	case "gitea":
		if c.GiteaBaseURL == "" {
			return missing("GITEA_BASE_URL")
		}
		if c.GiteaToken == "" {
			return missing("GITEA_TOKEN")
		}
	default:
		return fmt.Errorf("unsupported platform: %s", c.Platform)
	}

	if c.GitlabTargetFile == "" {
		return missing("GITLAB_TARGET_FILE")
	}
	if c.TemplatePath == "" {
		return missing("VOLATILE_TEMPLATE_PATH")
	}
	if c.PrometheusPort <= 0 || c.PrometheusPort > 65535 {
		return fmt.Errorf("invalid VOLATILE_PROMETHEUS_PORT: %d", c.PrometheusPort)
	}
	if c.GitlabTimeout <= 0 {
		return errors.New("GITLAB_TIMEOUT must be positive")
	}

	return nil
}

// String renders the configuration without credentials
func (c *Config) String() string {
	return fmt.Sprintf(
		"platform=%s :: url=%s :: timeout=%s :: search=%s :: search_in_group=%s :: mr_description=%s :: dry_run=%t :: merge_request=%t :: volatile_template_path=%s :: exclude=%v",
		c.Platform, c.BaseURL(), c.GitlabTimeout, c.GitlabSearch, c.GitlabSearchInGroup,
		c.GitlabMRDescription, c.DryRun, c.MergeRequest, c.TemplatePath, c.GitlabExclude,
	)
}

// BaseURL returns the forge URL for the selected platform
func (c *Config) BaseURL() string {
	switch c.Platform {
	case "github":
		return c.GithubBaseURL
	case "gitea":
		return c.GiteaBaseURL
	default:
		return c.GitlabURL
	}
}

func missing(name string) error {
	return fmt.Errorf("missing variable %s", name)
}

// Helper functions
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func parseInt(value string, defaultValue int) int {
	if value == "" {
		return defaultValue
	}

	i, err := strconv.Atoi(value)
	if err != nil {
		logrus.Warnf("Failed to parse int value: %s, using default %d", value, defaultValue)
		return defaultValue
	}
	return i
}

func parseBool(value string, defaultValue bool) bool {
	if value == "" {
		return defaultValue
	}

	b, err := strconv.ParseBool(value)
	if err != nil {
		logrus.Warnf("Failed to parse bool value: %s, using default %t", value, defaultValue)
		return defaultValue
	}
	return b
}

// parseDuration accepts Go durations ("4m") or a bare number of seconds
func parseDuration(value string, defaultValue time.Duration) time.Duration {
	if value == "" {
		return defaultValue
	}

	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		logrus.Warnf("Failed to parse duration value: %s, using default %s", value, defaultValue)
		return defaultValue
	}
	return d
}

func getEnvIntWithDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	return parseInt(value, defaultValue)
}

func splitAndTrim(value, separator string) []string {
	if value == "" {
		return []string{}
	}

	parts := strings.Split(value, separator)
	result := make([]string, 0, len(parts))

	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
