package config

import "time"

// Config represents the complete strikegw configuration.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	State   StateConfig   `yaml:"state"`
	Strike  StrikeConfig  `yaml:"strike"`
	Webhook WebhookConfig `yaml:"webhook"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	// LogFile switches logging to a rotated file when set.
	LogFile string `yaml:"log_file,omitempty"`
}

// StateConfig defines state storage settings. An empty Path disables the receipt ledger.
type StateConfig struct {
	Path             string        `yaml:"path"`
	ReceiptRetention time.Duration `yaml:"receipt_retention"`
}

// StrikeConfig defines the outbound payments API client.
type StrikeConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// WebhookConfig defines the inbound webhook listener.
type WebhookConfig struct {
	Listen string `yaml:"listen"`
	Path   string `yaml:"path"`
	// Secret is generated at startup when empty.
	Secret          string        `yaml:"secret,omitempty"`
	SignatureHeader string        `yaml:"signature_header"`
	MaxBodySize     string        `yaml:"max_body_size"`
	SubmitTimeout   time.Duration `yaml:"submit_timeout"`
	QueueSize       int           `yaml:"queue_size"`
	// PublicURL is registered as a subscription at startup when set.
	PublicURL string        `yaml:"public_url,omitempty"`
	Metrics   MetricsConfig `yaml:"metrics"`
}

// MetricsConfig defines the Prometheus scrape endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// ChecksumManifest is the on-disk .checksums format.
type ChecksumManifest struct {
	Version     int               `yaml:"version"`
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "strikegw",
			LogLevel:  "info",
			LogFormat: "json",
		},
		State: StateConfig{
			ReceiptRetention: 7 * 24 * time.Hour,
		},
		Strike: StrikeConfig{
			BaseURL: "https://api.strike.me",
			Timeout: 30 * time.Second,
		},
		Webhook: WebhookConfig{
			Listen:          "127.0.0.1:8090",
			Path:            "/webhooks/strike",
			SignatureHeader: "X-Webhook-Signature",
			MaxBodySize:     "1MB",
			SubmitTimeout:   5 * time.Second,
			QueueSize:       64,
			Metrics: MetricsConfig{
				Path: "/metrics",
			},
		},
	}
}
