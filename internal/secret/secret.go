// Package secret owns the shared webhook secret used to register subscriptions
// and to verify inbound signatures.
package secret

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
)

const (
	// MinLength is the shortest secret considered strong. Shorter operator
	// secrets are accepted but reported by Weak.
	MinLength = 15

	// GeneratedLength is the length of secrets created by Generate.
	GeneratedLength = 32

	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// Secret is an immutable webhook secret. The zero value is empty and never verifies.
type Secret struct {
	value string
}

// New wraps an operator-supplied secret.
func New(value string) (Secret, error) {
	if value == "" {
		return Secret{}, errors.New("webhook secret is empty")
	}
	return Secret{value: value}, nil
}

// Generate creates a random alphanumeric secret of GeneratedLength characters.
func Generate() (Secret, error) {
	v, err := randomAlphanumeric(GeneratedLength)
	if err != nil {
		return Secret{}, fmt.Errorf("generate webhook secret: %w", err)
	}
	return Secret{value: v}, nil
}

// Resolve returns the configured secret, or a freshly generated one when configured is empty.
// generated reports which branch was taken.
func Resolve(configured string) (s Secret, generated bool, err error) {
	if configured == "" {
		s, err = Generate()
		return s, true, err
	}
	s, err = New(configured)
	return s, false, err
}

// Bytes returns a copy of the secret bytes for HMAC keying.
func (s Secret) Bytes() []byte {
	return []byte(s.value)
}

// Reveal returns the raw secret for subscription registration.
func (s Secret) Reveal() string {
	return s.value
}

// Weak reports whether the secret is shorter than MinLength.
func (s Secret) Weak() bool {
	return len(s.value) < MinLength
}

// IsZero reports whether the secret is empty.
func (s Secret) IsZero() bool {
	return s.value == ""
}

// String redacts the secret so it cannot leak through logs or fmt verbs.
func (s Secret) String() string {
	if s.value == "" {
		return "<empty>"
	}
	return "<redacted>"
}

// LogValue keeps slog from printing the secret.
func (s Secret) LogValue() slog.Value {
	return slog.StringValue(s.String())
}

func randomAlphanumeric(n int) (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = alphabet[idx.Int64()]
	}
	return string(b), nil
}
