// Package subscription registers the gateway's public webhook URL with the
// payments API so invoice updates are pushed to it.
package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/mattjoyce/strikegw/internal/secret"
)

//go:generate mockgen -destination=mocks/mock_requester.go -package=mocks github.com/mattjoyce/strikegw/internal/subscription Requester

// Requester is the authenticated JSON transport. strike.Client satisfies it.
type Requester interface {
	Get(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, in, out any) error
	Patch(ctx context.Context, path string, in, out any) error
	Delete(ctx context.Context, path string) error
}

const (
	subscriptionsPath = "/v1/subscriptions"

	WebhookVersion     = "v1"
	EventInvoiceUpdate = "invoice.updated"
)

// Request is the body posted to create a subscription.
type Request struct {
	WebhookURL     string   `json:"webhookUrl"`
	WebhookVersion string   `json:"webhookVersion"`
	Secret         string   `json:"secret"`
	Enabled        bool     `json:"enabled"`
	EventTypes     []string `json:"eventTypes"`
}

// Subscription is a registered webhook as reported by the API.
type Subscription struct {
	ID             string   `json:"id"`
	WebhookURL     string   `json:"webhookUrl"`
	WebhookVersion string   `json:"webhookVersion"`
	Enabled        bool     `json:"enabled"`
	Created        string   `json:"created"`
	EventTypes     []string `json:"eventTypes"`
}

// Registrar manages webhook subscriptions. The secret it registers is the one
// the gateway verifies inbound signatures with.
type Registrar struct {
	requester Requester
	secret    secret.Secret
	logger    *slog.Logger
}

func NewRegistrar(requester Requester, sec secret.Secret, logger *slog.Logger) *Registrar {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registrar{requester: requester, secret: sec, logger: logger}
}

// Register subscribes webhookURL to invoice updates and returns the subscription id.
func (r *Registrar) Register(ctx context.Context, webhookURL string) (string, error) {
	if webhookURL == "" {
		return "", fmt.Errorf("register subscription: webhook url is empty")
	}
	if r.secret.IsZero() {
		return "", fmt.Errorf("register subscription: webhook secret is empty")
	}

	req := Request{
		WebhookURL:     webhookURL,
		WebhookVersion: WebhookVersion,
		Secret:         r.secret.Reveal(),
		Enabled:        true,
		EventTypes:     []string{EventInvoiceUpdate},
	}

	var sub Subscription
	if err := r.requester.Post(ctx, subscriptionsPath, req, &sub); err != nil {
		return "", fmt.Errorf("register subscription for %s: %w", webhookURL, err)
	}

	r.logger.Debug("webhook subscription registered", "id", sub.ID, "url", webhookURL)
	return sub.ID, nil
}

// List returns the account's subscriptions.
func (r *Registrar) List(ctx context.Context) ([]Subscription, error) {
	var subs []Subscription
	if err := r.requester.Get(ctx, subscriptionsPath, &subs); err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return subs, nil
}

// Delete removes the subscription with the given id.
func (r *Registrar) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("delete subscription: id is empty")
	}
	if err := r.requester.Delete(ctx, subscriptionsPath+"/"+url.PathEscape(id)); err != nil {
		return fmt.Errorf("delete subscription %s: %w", id, err)
	}
	return nil
}

// EnsureRegistered registers webhookURL unless an enabled subscription for it
// already exists. It returns the id of the matching subscription.
func (r *Registrar) EnsureRegistered(ctx context.Context, webhookURL string) (string, error) {
	subs, err := r.List(ctx)
	if err != nil {
		return "", err
	}
	for _, s := range subs {
		if s.WebhookURL == webhookURL && s.Enabled {
			r.logger.Info("webhook subscription already present", "id", s.ID, "url", webhookURL)
			return s.ID, nil
		}
	}
	return r.Register(ctx, webhookURL)
}
