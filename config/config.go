package config

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Backend BackendConfig
	Session SessionConfig
	Logging LoggingConfig
}

// BackendConfig is the bootstrap blob identifying the hosted document store.
// Without a valid blob the application cannot start and routes to Setup.
type BackendConfig struct {
	APIKey          string `json:"api_key"`
	AppID           string `json:"app_id"`
	SenderID        string `json:"sender_id"`
	ProjectID       string `json:"project_id"`
	StorageBucket   string `json:"storage_bucket,omitempty"`
	CredentialsPath string `json:"credentials_path"`
	Tenant          string `json:"tenant"`
}

// SessionConfig controls the signed resume token issued on login.
type SessionConfig struct {
	Secret   string        `json:"secret"`
	TokenTTL time.Duration `json:"token_ttl"`
}

type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Load reads configuration from environment variables, falling back to the
// locally persisted settings file for any backend field the environment does
// not provide.
func Load() *Config {
	cfg := &Config{
		Backend: BackendConfig{
			APIKey:          os.Getenv("PLODTRACK_API_KEY"),
			AppID:           os.Getenv("PLODTRACK_APP_ID"),
			SenderID:        os.Getenv("PLODTRACK_SENDER_ID"),
			ProjectID:       os.Getenv("PLODTRACK_PROJECT_ID"),
			StorageBucket:   os.Getenv("PLODTRACK_STORAGE_BUCKET"),
			CredentialsPath: getEnv("PLODTRACK_CREDENTIALS_PATH", "./serviceAccountKey.json"),
			Tenant:          getEnv("PLODTRACK_TENANT", "default"),
		},
		Session: SessionConfig{
			Secret:   getEnv("PLODTRACK_SESSION_SECRET", ""),
			TokenTTL: parseDuration(getEnv("PLODTRACK_SESSION_TTL", "12h"), 12*time.Hour),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if saved, err := readSettings(); err == nil {
		cfg.Backend.merge(saved)
	}
	return cfg
}

// merge fills empty fields of b from saved settings. Environment always wins.
func (b *BackendConfig) merge(saved *BackendConfig) {
	if b.APIKey == "" {
		b.APIKey = saved.APIKey
	}
	if b.AppID == "" {
		b.AppID = saved.AppID
	}
	if b.SenderID == "" {
		b.SenderID = saved.SenderID
	}
	if b.ProjectID == "" {
		b.ProjectID = saved.ProjectID
	}
	if b.StorageBucket == "" {
		b.StorageBucket = saved.StorageBucket
	}
	if saved.CredentialsPath != "" && b.CredentialsPath == "./serviceAccountKey.json" {
		b.CredentialsPath = saved.CredentialsPath
	}
}

// Validate reports whether the bootstrap blob is complete enough to connect.
// A non-nil error routes the caller into the setup flow.
func (c *Config) Validate() error {
	if c.Backend.APIKey == "" {
		return fmt.Errorf("missing API key")
	}
	if c.Backend.AppID == "" {
		return fmt.Errorf("missing app ID")
	}
	if c.Backend.SenderID == "" {
		return fmt.Errorf("missing sender ID")
	}
	if c.Backend.ProjectID == "" {
		return fmt.Errorf("missing project ID")
	}
	return nil
}

// SettingsPath returns the location of the persisted settings file.
func SettingsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "plodtrack", "settings.json")
}

// TokenPath returns the location of the persisted session resume token.
func TokenPath() string {
	return filepath.Join(filepath.Dir(SettingsPath()), "session.token")
}

func readSettings() (*BackendConfig, error) {
	data, err := os.ReadFile(SettingsPath())
	if err != nil {
		return nil, err
	}
	var saved BackendConfig
	if err := json.Unmarshal(data, &saved); err != nil {
		return nil, fmt.Errorf("failed to parse settings file: %w", err)
	}
	return &saved, nil
}

// SaveSettings persists the backend blob so later starts can skip setup.
func SaveSettings(b *BackendConfig) error {
	path := SettingsPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	return nil
}

// Setup collects the backend blob interactively and persists it. It is the
// recovery path when Validate fails at startup.
func Setup(r io.Reader, w io.Writer) (*BackendConfig, error) {
	in := bufio.NewReader(r)
	b := &BackendConfig{Tenant: "default", CredentialsPath: "./serviceAccountKey.json"}

	prompts := []struct {
		label    string
		dst      *string
		optional bool
	}{
		{"API key", &b.APIKey, false},
		{"App ID", &b.AppID, false},
		{"Sender ID", &b.SenderID, false},
		{"Project ID", &b.ProjectID, false},
		{"Storage bucket (optional)", &b.StorageBucket, true},
	}
	for _, p := range prompts {
		fmt.Fprintf(w, "%s: ", p.label)
		line, err := in.ReadString('\n')
		if err != nil && line == "" {
			return nil, fmt.Errorf("setup aborted: %w", err)
		}
		v := strings.TrimSpace(line)
		if v == "" && !p.optional {
			return nil, fmt.Errorf("%s is required", p.label)
		}
		*p.dst = v
	}

	if err := SaveSettings(b); err != nil {
		return nil, err
	}
	return b, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(s string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return defaultValue
}
