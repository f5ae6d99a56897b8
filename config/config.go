package config

import (
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables holding the model API credential, checked in order
var apiKeyEnv = []string{"GEMINI_API_KEY", "API_KEY"}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Gemini    GeminiConfig    `yaml:"gemini"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Chat      ChatConfig      `yaml:"chat"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Auth      AuthConfig      `yaml:"auth"`
	Log       LogConfig       `yaml:"log"`
	Store     StoreConfig     `yaml:"store"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Users     []User          `yaml:"users"`
}

type ServerConfig struct {
	Port      int    `yaml:"port"`
	StaticDir string `yaml:"static_dir"`
}

type GeminiConfig struct {
	APIURL         string `yaml:"api_url"`
	APIVersion     string `yaml:"api_version"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	ThinkingBudget int    `yaml:"thinking_budget"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type AnalysisConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

type ChatConfig struct {
	MaxDocumentChars  int `yaml:"max_document_chars"`
	HistoryCharBudget int `yaml:"history_char_budget"`
	MaxMessages       int `yaml:"max_messages"`
	TimeoutSeconds    int `yaml:"timeout_seconds"`
}

type IngestConfig struct {
	MaxBytes int64 `yaml:"max_bytes"`
}

type ArchiveConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type AuthConfig struct {
	JWTSecret        string `yaml:"jwt_secret"`
	TokenExpireHours int    `yaml:"token_expire_hours"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type StoreConfig struct {
	MaxSessions int `yaml:"max_sessions"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

type User struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Tenant   string `yaml:"tenant"`
}

// Load reads the YAML config at path, applies defaults and picks up the
// model API credential from the environment (.env included).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// .env is optional
	_ = godotenv.Load()
	for _, name := range apiKeyEnv {
		if key := os.Getenv(name); key != "" {
			cfg.Gemini.APIKey = key
			break
		}
	}

	cfg.setDefaults()
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Gemini.APIURL == "" {
		c.Gemini.APIURL = "https://generativelanguage.googleapis.com/"
	}
	if c.Gemini.APIVersion == "" {
		c.Gemini.APIVersion = "v1beta"
	}
	if c.Gemini.Model == "" {
		c.Gemini.Model = "gemini-3-pro-preview"
	}
	if c.Gemini.ThinkingBudget == 0 {
		c.Gemini.ThinkingBudget = 8000
	}
	if c.Gemini.TimeoutSeconds == 0 {
		c.Gemini.TimeoutSeconds = 180
	}
	if c.Analysis.TimeoutSeconds == 0 {
		c.Analysis.TimeoutSeconds = 120
	}
	if c.Chat.MaxDocumentChars == 0 {
		c.Chat.MaxDocumentChars = 40000
	}
	if c.Chat.HistoryCharBudget == 0 {
		c.Chat.HistoryCharBudget = 12000
	}
	if c.Chat.MaxMessages == 0 {
		c.Chat.MaxMessages = 200
	}
	if c.Chat.TimeoutSeconds == 0 {
		c.Chat.TimeoutSeconds = 60
	}
	if c.Ingest.MaxBytes == 0 {
		c.Ingest.MaxBytes = 10 << 20
	}
	if c.Archive.Bucket == "" {
		c.Archive.Bucket = "legalease-documents"
	}
	if c.Archive.Region == "" {
		c.Archive.Region = "us-east-1"
	}
	if c.Auth.TokenExpireHours == 0 {
		c.Auth.TokenExpireHours = 24
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Store.MaxSessions == 0 {
		c.Store.MaxSessions = 1000
	}
	if c.RateLimit.RequestsPerMinute == 0 {
		c.RateLimit.RequestsPerMinute = 100
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 20
	}
}

// FindUser finds a user by username
func (c *Config) FindUser(username string) *User {
	for i := range c.Users {
		if c.Users[i].Username == username {
			return &c.Users[i]
		}
	}
	return nil
}
