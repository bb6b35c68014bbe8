// Package webhook receives event notifications pushed by the payments API,
// authenticates them with HMAC-SHA256, and forwards entity identifiers to
// application code over a channel.
//
// # Security Model
//
// - HMAC-SHA256 computed over the exact body bytes read from the wire, never re-encoded JSON
// - Constant-time tag comparison (hmac.Equal)
// - Signature verified before the body is parsed
// - Body size capped before buffering (413 when exceeded)
// - Every auth failure answers the same generic 401; the reason is only logged
// - Request logging excludes payloads and the secret
//
// # Request Flow
//
//  1. HTTP POST arrives at the configured path
//  2. Authenticator buffers the body (bounded) and reads X-Webhook-Signature
//  3. Tag recomputed and compared; 401 on any mismatch
//  4. Request passed on with the received bytes restored
//  5. Dispatcher parses the envelope; 422 if it is not a valid event
//  6. data.entityId sent on the consumer channel, waiting at most SubmitTimeout
//  7. 200 returned, including when the event was dropped on timeout
//
// # Error Responses
//
// - 401 Unauthorized: missing, malformed or mismatched signature (no details)
// - 413 Payload Too Large: body exceeds MaxBodySize
// - 422 Unprocessable Entity: unreadable body or invalid envelope
//
// # Example Usage
//
//	events := make(chan string, 64)
//	sec, _, _ := secret.Resolve(os.Getenv("STRIKE_WEBHOOK_SECRET"))
//	server := webhook.New(webhook.Config{
//		Listen: "127.0.0.1:8090",
//		Path:   "/webhooks/strike",
//	}, sec, events, nil, logger)
//	go server.Start(ctx)
//	for id := range events {
//		// look up invoice id
//	}
package webhook
