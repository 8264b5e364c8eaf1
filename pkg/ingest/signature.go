package ingest

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrMissingSignature is returned when a webhook request carries no
// recognized signature header at all.
var ErrMissingSignature = errors.New("ingest: missing webhook signature header")

// ErrInvalidSignature is returned when a signature header is present but
// does not match the computed HMAC.
var ErrInvalidSignature = errors.New("ingest: invalid webhook signature")

// VerifySignature checks a "sha256=<hex>" HMAC-SHA256 signature (the
// GitHub/GitLab webhook convention) against the raw request body, using a
// constant-time comparison to avoid leaking timing information about the
// secret (spec §9, "timing-safe").
func VerifySignature(header string, body, secret []byte) error {
	header = strings.TrimSpace(header)
	if header == "" {
		return ErrMissingSignature
	}
	const prefix = "sha256="
	if !strings.HasPrefix(header, prefix) {
		return ErrInvalidSignature
	}

	wantHex := strings.TrimPrefix(header, prefix)
	want, err := hex.DecodeString(wantHex)
	if err != nil {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	got := mac.Sum(nil)

	if !hmac.Equal(want, got) {
		return ErrInvalidSignature
	}
	return nil
}
