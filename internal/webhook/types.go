package webhook

import (
	"context"
	"net/http"
	"time"

	"github.com/mattjoyce/strikegw/internal/receipt"
)

// Ledger records accepted deliveries so redelivered envelopes are not dispatched twice.
type Ledger interface {
	Record(ctx context.Context, r receipt.Receipt) (duplicate bool, err error)
	MarkDropped(ctx context.Context, envelopeID string) error
}

// Config holds webhook server configuration.
type Config struct {
	Listen string

	// Path is the URL path the remote service posts to (e.g., "/webhooks/strike")
	Path string

	// SignatureHeader carries the hex HMAC-SHA256 tag of the raw body
	SignatureHeader string

	// MaxBodySize is the maximum accepted request body size in bytes (default: 1MB)
	MaxBodySize int64

	// SubmitTimeout bounds how long a verified event may wait for the consumer channel
	SubmitTimeout time.Duration

	Metrics MetricsConfig
}

// MetricsConfig controls the Prometheus scrape endpoint on the webhook listener.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// Envelope is the JSON document the remote service posts for each event.
type Envelope struct {
	ID              string       `json:"id"`
	EventType       string       `json:"eventType"`
	WebhookVersion  string       `json:"webhookVersion"`
	Data            EnvelopeData `json:"data"`
	Created         string       `json:"created"`
	DeliverySuccess *bool        `json:"deliverySuccess,omitempty"`
}

// EnvelopeData identifies the entity that changed.
type EnvelopeData struct {
	EntityID string   `json:"entityId"`
	Changes  []string `json:"changes"`
}

// Reason explains why a request was rejected before dispatch.
type Reason string

const (
	ReasonMissingSignatureHeader   Reason = "missing_signature_header"
	ReasonMalformedSignatureHeader Reason = "malformed_signature_header"
	ReasonSignatureMismatch        Reason = "signature_mismatch"
	ReasonUnreadableBody           Reason = "unreadable_body"
	ReasonBodyTooLarge             Reason = "body_too_large"
)

// Outcome is the per-request verification result. The zero value is a rejection.
type Outcome struct {
	Verified bool
	Reason   Reason
}

func verified() Outcome {
	return Outcome{Verified: true}
}

func rejected(reason Reason) Outcome {
	return Outcome{Reason: reason}
}

// IsAuthFailure reports whether the rejection concerns the signature rather than the body.
func (o Outcome) IsAuthFailure() bool {
	switch o.Reason {
	case ReasonMissingSignatureHeader, ReasonMalformedSignatureHeader, ReasonSignatureMismatch:
		return true
	}
	return false
}

// Status maps a rejection to its HTTP status code. Verified outcomes map to 200.
func (o Outcome) Status() int {
	if o.Verified {
		return http.StatusOK
	}
	switch {
	case o.IsAuthFailure():
		return http.StatusUnauthorized
	case o.Reason == ReasonBodyTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusUnprocessableEntity
	}
}

// AcceptedResponse is the JSON response for accepted webhook deliveries.
type AcceptedResponse struct {
	Status string `json:"status"`
	ID     string `json:"id,omitempty"`
}

// ErrorResponse is the JSON response for webhook errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Default values
const (
	DefaultListen          = "127.0.0.1:8090"
	DefaultPath            = "/webhooks/strike"
	DefaultSignatureHeader = "X-Webhook-Signature"
	DefaultMaxBodySize     = 1048576 // 1 MB
	DefaultSubmitTimeout   = 5 * time.Second
	DefaultMetricsPath     = "/metrics"
)

const (
	statusAccepted  = "accepted"
	statusDuplicate = "duplicate"
)
