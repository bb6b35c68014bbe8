package webhook

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/mattjoyce/strikegw/internal/metrics"
	"github.com/mattjoyce/strikegw/internal/secret"
	"github.com/mattjoyce/strikegw/internal/signature"
)

type contextKey int

const verifiedBodyKey contextKey = iota

// VerifiedBody returns the authenticated wire bytes attached by the Authenticator.
// ok is false for any request that did not pass verification.
func VerifiedBody(ctx context.Context) (body []byte, ok bool) {
	body, ok = ctx.Value(verifiedBodyKey).([]byte)
	return body, ok
}

// Authenticator verifies the HMAC signature of inbound request bodies.
type Authenticator struct {
	secret      secret.Secret
	header      string
	maxBodySize int64
	logger      *slog.Logger
}

// NewAuthenticator creates an Authenticator. Zero header and size fall back to defaults.
func NewAuthenticator(sec secret.Secret, header string, maxBodySize int64, logger *slog.Logger) *Authenticator {
	if header == "" {
		header = DefaultSignatureHeader
	}
	if maxBodySize <= 0 {
		maxBodySize = DefaultMaxBodySize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		secret:      sec,
		header:      header,
		maxBodySize: maxBodySize,
		logger:      logger,
	}
}

// Authenticate reads the request body and checks its signature. The returned
// body is exactly what was read from the wire and is only meaningful when the
// outcome is verified.
func (a *Authenticator) Authenticate(r *http.Request) ([]byte, Outcome) {
	if r.ContentLength > a.maxBodySize {
		return nil, rejected(ReasonBodyTooLarge)
	}

	var body []byte
	if r.Body != nil {
		b, err := io.ReadAll(io.LimitReader(r.Body, a.maxBodySize+1))
		if err != nil {
			return nil, rejected(ReasonUnreadableBody)
		}
		body = b
	}
	// A cancelled request may have delivered only part of its body.
	if r.Context().Err() != nil {
		return nil, rejected(ReasonUnreadableBody)
	}
	if int64(len(body)) > a.maxBodySize {
		return nil, rejected(ReasonBodyTooLarge)
	}

	values := r.Header.Values(a.header)
	if len(values) == 0 || values[0] == "" {
		return nil, rejected(ReasonMissingSignatureHeader)
	}
	if len(values) > 1 {
		return nil, rejected(ReasonMalformedSignatureHeader)
	}

	err := signature.VerifyHex(body, a.secret.Bytes(), values[0])
	switch {
	case errors.Is(err, signature.ErrMalformedSignature):
		return nil, rejected(ReasonMalformedSignatureHeader)
	case err != nil:
		return nil, rejected(ReasonSignatureMismatch)
	}

	return body, verified()
}

// Middleware rejects unverified requests and passes verified ones downstream
// with the received body bytes restored.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, outcome := a.Authenticate(r)
		if !outcome.Verified {
			metrics.WebhookRejections.WithLabelValues(string(outcome.Reason)).Inc()
			// Reason stays in the log; the response body is the same for every auth failure.
			a.logger.Warn("webhook rejected",
				"path", r.URL.Path,
				"reason", outcome.Reason,
				"remote_addr", r.RemoteAddr,
			)
			respondError(w, outcome.Status(), errorMessage(outcome.Status()))
			return
		}

		ctx := context.WithValue(r.Context(), verifiedBodyKey, body)
		r = r.WithContext(ctx)
		r.Body = io.NopCloser(bytes.NewReader(body))
		r.ContentLength = int64(len(body))
		r.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}

		next.ServeHTTP(w, r)
	})
}

func errorMessage(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusRequestEntityTooLarge:
		return "payload too large"
	case http.StatusUnprocessableEntity:
		return "unprocessable entity"
	default:
		return http.StatusText(status)
	}
}
