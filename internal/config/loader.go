package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses configuration from a file. If a .checksums manifest sits
// next to the file, the file must match its recorded BLAKE3 hash.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with -config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}

	if err := verifyConfigHash(absPath); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	return cfg, nil
}

// Parse interpolates ${VAR} references, decodes YAML, applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	interpolated := interpolateEnv(string(data))

	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(interpolated), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg = applyConfigDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func verifyConfigHash(path string) error {
	dir := filepath.Dir(path)
	checksums, err := LoadChecksums(dir)
	if err != nil {
		// If .checksums is missing, we skip verification.
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}

	basename := filepath.Base(path)
	expectedHash, ok := checksums.Hashes[basename]
	if !ok {
		return fmt.Errorf("config file %s has no hash in checksums at %s", basename, dir)
	}
	if err := VerifyFileHash(path, expectedHash); err != nil {
		return fmt.Errorf("config verification failed for %s: %w\n"+
			"This indicates tampering or unauthorized modification.", path, err)
	}
	return nil
}

// applyConfigDefaults fills fields that YAML explicitly blanked.
func applyConfigDefaults(cfg *Config) *Config {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	cfg.Service.LogLevel = strings.ToLower(cfg.Service.LogLevel)
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = defaults.Service.LogFormat
	}

	if cfg.State.ReceiptRetention == 0 {
		cfg.State.ReceiptRetention = defaults.State.ReceiptRetention
	}

	if cfg.Strike.BaseURL == "" {
		cfg.Strike.BaseURL = defaults.Strike.BaseURL
	}
	if cfg.Strike.Timeout == 0 {
		cfg.Strike.Timeout = defaults.Strike.Timeout
	}

	if cfg.Webhook.Listen == "" {
		cfg.Webhook.Listen = defaults.Webhook.Listen
	}
	if cfg.Webhook.Path == "" {
		cfg.Webhook.Path = defaults.Webhook.Path
	}
	if cfg.Webhook.SignatureHeader == "" {
		cfg.Webhook.SignatureHeader = defaults.Webhook.SignatureHeader
	}
	if cfg.Webhook.MaxBodySize == "" {
		cfg.Webhook.MaxBodySize = defaults.Webhook.MaxBodySize
	}
	if cfg.Webhook.SubmitTimeout == 0 {
		cfg.Webhook.SubmitTimeout = defaults.Webhook.SubmitTimeout
	}
	if cfg.Webhook.QueueSize == 0 {
		cfg.Webhook.QueueSize = defaults.Webhook.QueueSize
	}
	if cfg.Webhook.Metrics.Path == "" {
		cfg.Webhook.Metrics.Path = defaults.Webhook.Metrics.Path
	}

	return cfg
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		// If not found, leave the placeholder (will fail validation if required)
		return match
	})
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if cfg.Service.LogFormat != "json" && cfg.Service.LogFormat != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}

	if cfg.State.ReceiptRetention < 0 {
		return fmt.Errorf("state.receipt_retention must not be negative")
	}

	// Secrets must never reach the process as literal placeholders.
	if err := checkUnresolved("strike.api_key", cfg.Strike.APIKey); err != nil {
		return err
	}
	if err := checkUnresolved("webhook.secret", cfg.Webhook.Secret); err != nil {
		return err
	}

	if _, err := url.ParseRequestURI(cfg.Strike.BaseURL); err != nil {
		return fmt.Errorf("strike.base_url is not a valid URL: %w", err)
	}
	if cfg.Strike.Timeout < 0 {
		return fmt.Errorf("strike.timeout must not be negative")
	}

	if !strings.HasPrefix(cfg.Webhook.Path, "/") {
		return fmt.Errorf("webhook.path must start with / (got %q)", cfg.Webhook.Path)
	}
	if cfg.Webhook.Metrics.Enabled && cfg.Webhook.Metrics.Path == cfg.Webhook.Path {
		return fmt.Errorf("webhook.metrics.path must differ from webhook.path")
	}
	if _, err := ParseSize(cfg.Webhook.MaxBodySize); err != nil {
		return fmt.Errorf("webhook.max_body_size: %w", err)
	}
	if cfg.Webhook.SubmitTimeout < 0 {
		return fmt.Errorf("webhook.submit_timeout must not be negative")
	}
	if cfg.Webhook.QueueSize < 0 {
		return fmt.Errorf("webhook.queue_size must not be negative")
	}
	if cfg.Webhook.PublicURL != "" {
		u, err := url.Parse(cfg.Webhook.PublicURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("webhook.public_url must be an absolute URL (got %q)", cfg.Webhook.PublicURL)
		}
		if cfg.Strike.APIKey == "" {
			return fmt.Errorf("webhook.public_url requires strike.api_key for subscription registration")
		}
	}

	return nil
}

func checkUnresolved(field, value string) error {
	if matches := envVarPattern.FindStringSubmatch(value); len(matches) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, matches[1])
	}
	return nil
}

// ParseSize parses size strings like "1MB", "512KB", "2048576" to bytes.
func ParseSize(size string) (int64, error) {
	upper := strings.ToUpper(strings.TrimSpace(size))
	multiplier := int64(1)

	switch {
	case strings.HasSuffix(upper, "KB"):
		multiplier = 1024
		upper = strings.TrimSuffix(upper, "KB")
	case strings.HasSuffix(upper, "MB"):
		multiplier = 1024 * 1024
		upper = strings.TrimSuffix(upper, "MB")
	case strings.HasSuffix(upper, "GB"):
		multiplier = 1024 * 1024 * 1024
		upper = strings.TrimSuffix(upper, "GB")
	}

	value, err := strconv.ParseInt(strings.TrimSpace(upper), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value: %w", err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("size must be positive")
	}

	result := value * multiplier
	if result/multiplier != value {
		return 0, fmt.Errorf("size too large")
	}
	return result, nil
}
