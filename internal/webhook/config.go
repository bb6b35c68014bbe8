package webhook

import (
	"fmt"

	"github.com/mattjoyce/strikegw/internal/config"
)

// FromGlobalConfig converts config.WebhookConfig to webhook.Config.
// Parses the max body size; the secret is resolved separately by the secret package.
func FromGlobalConfig(wc *config.WebhookConfig) (Config, error) {
	if wc == nil {
		return Config{}, fmt.Errorf("webhook config is nil")
	}

	maxBodySize := int64(DefaultMaxBodySize)
	if wc.MaxBodySize != "" {
		size, err := config.ParseSize(wc.MaxBodySize)
		if err != nil {
			return Config{}, fmt.Errorf("webhook %q: invalid max_body_size %q: %w", wc.Path, wc.MaxBodySize, err)
		}
		maxBodySize = size
	}

	return Config{
		Listen:          wc.Listen,
		Path:            wc.Path,
		SignatureHeader: wc.SignatureHeader,
		MaxBodySize:     maxBodySize,
		SubmitTimeout:   wc.SubmitTimeout,
		Metrics: MetricsConfig{
			Enabled: wc.Metrics.Enabled,
			Path:    wc.Metrics.Path,
		},
	}, nil
}
