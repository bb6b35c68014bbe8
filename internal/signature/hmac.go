// Package signature computes and verifies HMAC-SHA256 tags over raw payload bytes.
//
// Tags travel as lowercase hex in the X-Webhook-Signature header. Verification
// always recomputes the tag over the exact bytes received and compares with
// hmac.Equal, so comparison time does not depend on where the tags differ.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"unicode/utf8"
)

// Size is the length in bytes of an HMAC-SHA256 tag.
const Size = sha256.Size

var (
	// ErrMalformedSignature is returned when the presented tag is not valid hex.
	ErrMalformedSignature = errors.New("malformed signature")

	// ErrSignatureMismatch is returned when the presented tag does not match the payload.
	ErrSignatureMismatch = errors.New("signature mismatch")
)

// Sign computes HMAC-SHA256(secret, payload).
func Sign(payload, secret []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return mac.Sum(nil)
}

// SignHex returns the hex encoding of Sign(payload, secret).
func SignHex(payload, secret []byte) string {
	return hex.EncodeToString(Sign(payload, secret))
}

// Verify reports whether presented is the HMAC-SHA256 tag of payload under secret.
// An empty secret never verifies.
func Verify(payload, secret, presented []byte) bool {
	if len(secret) == 0 {
		return false
	}
	return hmac.Equal(Sign(payload, secret), presented)
}

// VerifyHex decodes a hex tag taken from a request header and verifies it.
// Returns ErrMalformedSignature if the header cannot be decoded and
// ErrSignatureMismatch if it decodes but does not match.
func VerifyHex(payload, secret []byte, header string) error {
	presented, err := Decode(header)
	if err != nil {
		return err
	}
	if !Verify(payload, secret, presented) {
		return ErrSignatureMismatch
	}
	return nil
}

// Decode parses a hex-encoded tag. Surrounding whitespace is ignored.
func Decode(header string) ([]byte, error) {
	if !utf8.ValidString(header) {
		return nil, ErrMalformedSignature
	}
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, ErrMalformedSignature
	}
	tag, err := hex.DecodeString(header)
	if err != nil {
		return nil, ErrMalformedSignature
	}
	return tag, nil
}
