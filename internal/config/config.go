package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPrimaryURL  = "https://tflite-service-630562712876.us-central1.run.app/predict"
	DefaultFallbackURL = "https://tflite-service-630562712876.us-central1.run.app/predict_json"
	DefaultGeminiModel = "gemini-2.5-flash"
)

// Config holds all application configuration
type Config struct {
	Server struct {
		Port      string `json:"port" yaml:"port"`
		StaticDir string `json:"static_dir" yaml:"static_dir"`
		Debug     bool   `json:"debug" yaml:"debug"`
	} `json:"server" yaml:"server"`

	Database struct {
		Driver string `json:"driver" yaml:"driver"` // "sqlite" or "postgres"
		Path   string `json:"path" yaml:"path"`     // sqlite file
		DSN    string `json:"dsn" yaml:"dsn"`       // postgres connection string
	} `json:"database" yaml:"database"`

	ML struct {
		// Transports lists the classification strategies in the order they
		// are tried: "multipart", "base64", "google".
		Transports     []string `json:"transports" yaml:"transports"`
		PrimaryURL     string   `json:"primary_url" yaml:"primary_url"`
		FallbackURL    string   `json:"fallback_url" yaml:"fallback_url"`
		TimeoutSeconds int      `json:"timeout_seconds" yaml:"timeout_seconds"`
	} `json:"ml" yaml:"ml"`

	Google struct {
		ProjectID       string `json:"project_id" yaml:"project_id"`
		Location        string `json:"location" yaml:"location"`
		CredentialsFile string `json:"credentials_file" yaml:"credentials_file"`
		Model           string `json:"model" yaml:"model"`
	} `json:"google" yaml:"google"`

	Capture struct {
		IntervalMillis int  `json:"interval_ms" yaml:"interval_ms"`
		Auto           bool `json:"auto" yaml:"auto"` // start capturing when a client focuses the scan screen
	} `json:"capture" yaml:"capture"`

	Assistant struct {
		Enabled      bool   `json:"enabled" yaml:"enabled"`
		ContactEmail string `json:"contact_email" yaml:"contact_email"`
	} `json:"assistant" yaml:"assistant"`
}

// LoadConfig loads configuration from a JSON or YAML file. The format is
// picked from the file extension.
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data, filepath.Ext(configPath))
}

// Parse decodes a configuration document, applies environment overrides and
// fills defaults.
func Parse(data []byte, ext string) (*Config, error) {
	var config Config
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.applyEnv()

	// Handle missing values
	if config.Server.Port == "" {
		return nil, fmt.Errorf("server port is not set in config file")
	}
	if err := config.applyDefaults(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Default returns the configuration used when no file exists: built-in
// values plus environment overrides, validated like a parsed file.
func Default() (*Config, error) {
	var config Config
	config.Server.Port = "8080"
	config.applyEnv()
	if err := config.applyDefaults(); err != nil {
		return nil, fmt.Errorf("invalid default config: %w", err)
	}
	return &config, nil
}

func (c *Config) applyDefaults() error {
	if c.Server.StaticDir == "" {
		c.Server.StaticDir = "./static"
	}

	switch c.Database.Driver {
	case "":
		c.Database.Driver = "sqlite"
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "avotex.db"
	}
	if c.Database.Driver == "postgres" && c.Database.DSN == "" {
		return fmt.Errorf("database dsn is required for postgres")
	}

	if len(c.ML.Transports) == 0 {
		c.ML.Transports = []string{"multipart", "base64"}
	}
	if c.ML.PrimaryURL == "" {
		c.ML.PrimaryURL = DefaultPrimaryURL
	}
	if c.ML.FallbackURL == "" {
		c.ML.FallbackURL = DefaultFallbackURL
	}
	if c.ML.TimeoutSeconds <= 0 {
		c.ML.TimeoutSeconds = 30
	}

	if c.Google.Location == "" {
		c.Google.Location = "us-central1"
	}
	if c.Google.Model == "" {
		c.Google.Model = DefaultGeminiModel
	}

	if c.Capture.IntervalMillis <= 0 {
		c.Capture.IntervalMillis = 1500
	}
	if c.Assistant.ContactEmail == "" {
		c.Assistant.ContactEmail = "vexmxoficial@gmail.com"
	}
	return nil
}

// Env vars override file values
func (c *Config) applyEnv() {
	envOverride(&c.Server.Port, "AVOTEX_PORT")
	envOverride(&c.Database.Driver, "AVOTEX_DB_DRIVER")
	envOverride(&c.Database.Path, "AVOTEX_DB_PATH")
	envOverride(&c.Database.DSN, "AVOTEX_DB_DSN")
	envOverride(&c.ML.PrimaryURL, "AVOTEX_PREDICT_URL")
	envOverride(&c.ML.FallbackURL, "AVOTEX_PREDICT_JSON_URL")
	envOverrideInt(&c.ML.TimeoutSeconds, "AVOTEX_PREDICT_TIMEOUT")
	envOverride(&c.Google.ProjectID, "GOOGLE_PROJECT_ID")
	envOverride(&c.Google.Location, "GOOGLE_LOCATION")
	envOverride(&c.Google.CredentialsFile, "GOOGLE_CREDENTIALS_FILE")
	envOverrideInt(&c.Capture.IntervalMillis, "AVOTEX_CAPTURE_INTERVAL_MS")
	if v := os.Getenv("AVOTEX_TRANSPORTS"); v != "" {
		var transports []string
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				transports = append(transports, t)
			}
		}
		c.ML.Transports = transports
	}
}

// Timeout is the per-request timeout for classification calls.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.ML.TimeoutSeconds) * time.Second
}

// CaptureInterval is the auto-capture period.
func (c *Config) CaptureInterval() time.Duration {
	return time.Duration(c.Capture.IntervalMillis) * time.Millisecond
}

// GetConfigPath returns the path to the configuration file
func GetConfigPath() string {
	// First try environment variable
	if path := os.Getenv("AVOTEX_CONFIG"); path != "" {
		return path
	}

	// Then try config directory
	configDir := "config"
	if _, err := os.Stat(configDir); err == nil {
		return filepath.Join(configDir, "config.json")
	}

	// Finally, try current directory
	return "config.json"
}

func envOverride(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envOverrideInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
