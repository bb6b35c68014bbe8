// Package receipt keeps a SQLite ledger of accepted webhook deliveries, keyed by
// envelope id, so redelivered events are not forwarded twice.
package receipt

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

type Status string

const (
	StatusAccepted Status = "accepted"
	StatusDropped  Status = "dropped"
)

var ErrReceiptNotFound = errors.New("receipt not found")

type Receipt struct {
	ID         string
	EnvelopeID string
	EntityID   string
	EventType  string
	BodyDigest string
	Status     Status
	Deliveries int
	ReceivedAt time.Time
	UpdatedAt  time.Time
}

// Digest returns the hex BLAKE3 digest of a webhook body.
func Digest(body []byte) string {
	sum := blake3.Sum256(body)
	return hex.EncodeToString(sum[:])
}

type Ledger struct {
	db *sql.DB
}

func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// Record stores a receipt for r.EnvelopeID. It reports duplicate=true when the
// envelope was already accepted. A redelivery of a previously dropped envelope
// is re-armed and reported as new.
func (l *Ledger) Record(ctx context.Context, r Receipt) (bool, error) {
	if r.EnvelopeID == "" {
		return false, fmt.Errorf("envelope id is empty")
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339Nano)

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM webhook_receipt WHERE envelope_id = ?;`, r.EnvelopeID).Scan(&status)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx, `
INSERT INTO webhook_receipt(
  id, envelope_id, entity_id, event_type, body_digest, status, deliveries, received_at, updated_at
)
VALUES(?, ?, ?, ?, ?, ?, 1, ?, ?);
`, uuid.NewString(), r.EnvelopeID, r.EntityID, r.EventType, r.BodyDigest, StatusAccepted, now, now)
		if err != nil {
			return false, fmt.Errorf("insert receipt: %w", err)
		}
	case err != nil:
		return false, fmt.Errorf("load receipt: %w", err)
	default:
		_, err = tx.ExecContext(ctx, `
UPDATE webhook_receipt
SET status = ?, deliveries = deliveries + 1, updated_at = ?
WHERE envelope_id = ?;
`, StatusAccepted, now, r.EnvelopeID)
		if err != nil {
			return false, fmt.Errorf("update receipt: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}
	return status == string(StatusAccepted), nil
}

// MarkDropped flags an accepted receipt whose event never reached the consumer.
func (l *Ledger) MarkDropped(ctx context.Context, envelopeID string) error {
	res, err := l.db.ExecContext(ctx, `
UPDATE webhook_receipt
SET status = ?, updated_at = ?
WHERE envelope_id = ?;
`, StatusDropped, time.Now().UTC().Format(time.RFC3339Nano), envelopeID)
	if err != nil {
		return fmt.Errorf("mark receipt dropped: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark receipt dropped: %w", err)
	}
	if n == 0 {
		return ErrReceiptNotFound
	}
	return nil
}

// Get returns the receipt for envelopeID.
func (l *Ledger) Get(ctx context.Context, envelopeID string) (*Receipt, error) {
	var (
		r           Receipt
		statusS     string
		receivedAtS string
		updatedAtS  string
	)
	err := l.db.QueryRowContext(ctx, `
SELECT id, envelope_id, entity_id, event_type, body_digest, status, deliveries, received_at, updated_at
FROM webhook_receipt
WHERE envelope_id = ?;
`, envelopeID).Scan(&r.ID, &r.EnvelopeID, &r.EntityID, &r.EventType, &r.BodyDigest, &statusS, &r.Deliveries, &receivedAtS, &updatedAtS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReceiptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get receipt: %w", err)
	}

	r.Status = Status(statusS)
	if t, err := time.Parse(time.RFC3339Nano, receivedAtS); err == nil {
		r.ReceivedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAtS); err == nil {
		r.UpdatedAt = t
	}
	return &r, nil
}

// Count returns the number of stored receipts.
func (l *Ledger) Count(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM webhook_receipt;`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count receipts: %w", err)
	}
	return n, nil
}

// Prune deletes receipts received before cutoff and returns how many were removed.
func (l *Ledger) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := l.db.ExecContext(ctx, `DELETE FROM webhook_receipt WHERE received_at < ?;`,
		cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("prune receipts: %w", err)
	}
	return res.RowsAffected()
}
