package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var bucketNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]*[a-z0-9]$`)

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Gemini.APIKey == "" {
		return errors.New("model API key is not set (GEMINI_API_KEY)")
	}
	if c.Gemini.APIURL == "" || c.Gemini.Model == "" {
		return errors.New("gemini api_url and model cannot be empty")
	}
	if c.Gemini.ThinkingBudget < 0 {
		return errors.New("gemini thinking_budget cannot be negative")
	}

	if c.Chat.MaxDocumentChars <= 0 {
		return errors.New("chat max_document_chars must be positive")
	}
	if c.Chat.HistoryCharBudget < 0 {
		return errors.New("chat history_char_budget cannot be negative")
	}
	if c.Chat.TimeoutSeconds <= 0 {
		return errors.New("chat timeout_seconds must be positive")
	}
	if c.Chat.MaxMessages < 2 {
		return errors.New("chat max_messages must allow at least one turn")
	}
	if c.Ingest.MaxBytes <= 0 {
		return errors.New("ingest max_bytes must be positive")
	}

	if c.Auth.JWTSecret == "" {
		return errors.New("auth jwt_secret cannot be empty")
	}

	if c.Archive.Enabled {
		if c.Archive.Endpoint == "" {
			return errors.New("archive endpoint cannot be empty when archive is enabled")
		}
		if c.Archive.AccessKey == "" || c.Archive.SecretKey == "" {
			return errors.New("archive credentials cannot be empty when archive is enabled")
		}
		if !isValidBucketName(c.Archive.Bucket) {
			return fmt.Errorf("invalid archive bucket name: %s", c.Archive.Bucket)
		}
	}

	return nil
}

// isValidBucketName checks a bucket name against the S3 naming rules
func isValidBucketName(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") {
		return false
	}
	return bucketNamePattern.MatchString(name)
}
