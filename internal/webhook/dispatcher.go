package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mattjoyce/strikegw/internal/metrics"
	"github.com/mattjoyce/strikegw/internal/receipt"
)

// ErrInvalidEnvelope is returned when a verified body is not a usable event envelope.
var ErrInvalidEnvelope = errors.New("invalid webhook envelope")

// ParseEnvelope decodes an authenticated body. id, eventType and data.entityId
// are required.
func ParseEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if env.ID == "" {
		return nil, fmt.Errorf("%w: id is empty", ErrInvalidEnvelope)
	}
	if env.EventType == "" {
		return nil, fmt.Errorf("%w: eventType is empty", ErrInvalidEnvelope)
	}
	if env.Data.EntityID == "" {
		return nil, fmt.Errorf("%w: data.entityId is empty", ErrInvalidEnvelope)
	}
	return &env, nil
}

// Dispatcher parses verified envelopes and forwards entity identifiers to the
// consumer channel.
type Dispatcher struct {
	events  chan<- string
	timeout time.Duration
	ledger  Ledger
	logger  *slog.Logger
}

// NewDispatcher creates a Dispatcher sending on events. ledger may be nil.
func NewDispatcher(events chan<- string, timeout time.Duration, ledger Ledger, logger *slog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultSubmitTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		events:  events,
		timeout: timeout,
		ledger:  ledger,
		logger:  logger,
	}
}

// Submit offers entityID to the consumer channel, waiting at most the configured
// timeout. It reports whether the event was enqueued; false means it was dropped.
func (d *Dispatcher) Submit(ctx context.Context, entityID string) bool {
	start := time.Now()
	timer := time.NewTimer(d.timeout)
	defer timer.Stop()

	select {
	case d.events <- entityID:
		metrics.EnqueueWait.Observe(time.Since(start).Seconds())
		metrics.EventsEnqueued.Inc()
		return true
	case <-timer.C:
	case <-ctx.Done():
	}

	metrics.EnqueueWait.Observe(time.Since(start).Seconds())
	metrics.EventsDropped.Inc()
	return false
}

// ServeHTTP handles a request that has already passed the Authenticator.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, ok := VerifiedBody(ctx)
	if !ok {
		d.logger.Error("webhook dispatch reached without verification", "path", r.URL.Path)
		respondError(w, http.StatusUnauthorized, errorMessage(http.StatusUnauthorized))
		return
	}

	env, err := ParseEnvelope(body)
	if err != nil {
		metrics.WebhookRejections.WithLabelValues("invalid_envelope").Inc()
		d.logger.Warn("webhook envelope rejected", "path", r.URL.Path, "error", err)
		respondError(w, http.StatusUnprocessableEntity, errorMessage(http.StatusUnprocessableEntity))
		return
	}

	if d.ledger != nil {
		duplicate, err := d.ledger.Record(ctx, receipt.Receipt{
			EnvelopeID: env.ID,
			EntityID:   env.Data.EntityID,
			EventType:  env.EventType,
			BodyDigest: receipt.Digest(body),
		})
		if err != nil {
			d.logger.Warn("failed to record webhook receipt", "id", env.ID, "error", err)
		} else if duplicate {
			metrics.EventsDuplicate.Inc()
			d.logger.Info("duplicate webhook delivery ignored",
				"id", env.ID,
				"entity_id", env.Data.EntityID,
			)
			respondJSON(w, http.StatusOK, AcceptedResponse{Status: statusDuplicate, ID: env.ID})
			return
		}
	}

	d.logger.Debug("received webhook update",
		"id", env.ID,
		"event_type", env.EventType,
		"entity_id", env.Data.EntityID,
	)

	if !d.Submit(ctx, env.Data.EntityID) {
		d.logger.Warn("webhook event dropped",
			"id", env.ID,
			"entity_id", env.Data.EntityID,
			"timeout", d.timeout,
			"cancelled", ctx.Err() != nil,
		)
		if d.ledger != nil {
			// Detached so a cancelled request still records the drop.
			if err := d.ledger.MarkDropped(context.WithoutCancel(ctx), env.ID); err != nil {
				d.logger.Warn("failed to mark webhook receipt dropped", "id", env.ID, "error", err)
			}
		}
	}

	// Dropped events still answer 200.
	respondJSON(w, http.StatusOK, AcceptedResponse{Status: statusAccepted, ID: env.ID})
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends a JSON error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}
