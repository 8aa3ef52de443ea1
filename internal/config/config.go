package config

import (
	"crypto/subtle"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// User is one account allowed to call the API.
type User struct {
	ID    string `yaml:"id"`
	Token string `yaml:"token"`
}

type usersFile struct {
	Users []User `yaml:"users"`
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Environment string `envconfig:"ALIGN_ENV" default:"development"`
	LogLevel    string `envconfig:"ALIGN_LOG_LEVEL" default:"info"`
	Port        string `envconfig:"ALIGN_PORT" default:"8080"`

	DBPath      string `envconfig:"ALIGN_DB_PATH"`
	JournalPath string `envconfig:"ALIGN_JOURNAL_PATH"` // optional, journal disabled when empty

	OllamaURL        string `envconfig:"ALIGN_OLLAMA_URL" default:"http://localhost:11434"`
	OllamaModel      string `envconfig:"ALIGN_OLLAMA_MODEL" default:"qwen2.5:7b"`
	OllamaModelHeavy string `envconfig:"ALIGN_OLLAMA_MODEL_HEAVY" default:"qwen2.5:14b"`

	// Comma-separated "user:token" pairs
	Tokens    string `envconfig:"ALIGN_TOKENS"`
	UsersFile string `envconfig:"ALIGN_USERS_FILE"`

	Timezone        string        `envconfig:"ALIGN_TIMEZONE" default:"Asia/Shanghai"`
	InquiryInterval time.Duration `envconfig:"ALIGN_INQUIRY_INTERVAL" default:"1h"`
	RetentionDays   int           `envconfig:"ALIGN_RETENTION_DAYS" default:"90"`
	RateLimit       int           `envconfig:"ALIGN_RATE_LIMIT" default:"60"` // requests per minute per user

	Users []User `ignored:"true"`
}

// Load reads configuration from environment variables and the optional users file.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	users, err := parseTokens(cfg.Tokens)
	if err != nil {
		return nil, err
	}
	cfg.Users = users

	if cfg.UsersFile != "" {
		fileUsers, err := loadUsersFile(cfg.UsersFile)
		if err != nil {
			return nil, err
		}
		cfg.Users = append(cfg.Users, fileUsers...)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("ALIGN_DB_PATH is required")
	}
	if len(c.Users) == 0 {
		return fmt.Errorf("at least one user is required via ALIGN_TOKENS or ALIGN_USERS_FILE")
	}
	seen := make(map[string]bool, len(c.Users))
	for _, u := range c.Users {
		if seen[u.Token] {
			return fmt.Errorf("duplicate token for user %s", u.ID)
		}
		seen[u.Token] = true
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid ALIGN_TIMEZONE %q: %w", c.Timezone, err)
	}
	if c.InquiryInterval <= 0 {
		return fmt.Errorf("ALIGN_INQUIRY_INTERVAL must be positive")
	}
	return nil
}

// IsDevelopment reports whether the server runs in development mode.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}

// Location resolves the configured timezone. It falls back to UTC, though validate rejects
// unknown zones.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// UserFromToken resolves a bearer token to a user id.
func (c *Config) UserFromToken(token string) (string, bool) {
	if token == "" {
		return "", false
	}
	for _, u := range c.Users {
		if subtle.ConstantTimeCompare([]byte(u.Token), []byte(token)) == 1 {
			return u.ID, true
		}
	}
	return "", false
}

// UserIDs returns every configured user id in configuration order.
func (c *Config) UserIDs() []string {
	ids := make([]string, 0, len(c.Users))
	for _, u := range c.Users {
		ids = append(ids, u.ID)
	}
	return ids
}

// parseTokens parses "user:token,user:token".
func parseTokens(raw string) ([]User, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	users := make([]User, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, token, ok := strings.Cut(part, ":")
		id, token = strings.TrimSpace(id), strings.TrimSpace(token)
		if !ok || id == "" || token == "" {
			return nil, fmt.Errorf("invalid token entry %q, expected user:token", part)
		}
		users = append(users, User{ID: id, Token: token})
	}
	return users, nil
}

func loadUsersFile(path string) ([]User, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading users file: %w", err)
	}
	var f usersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing users file: %w", err)
	}
	for i, u := range f.Users {
		if u.ID == "" || u.Token == "" {
			return nil, fmt.Errorf("users file entry %d needs id and token", i)
		}
	}
	return f.Users, nil
}
