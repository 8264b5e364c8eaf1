package ingest

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignatureAcceptsValidHMAC(t *testing.T) {
	secret := []byte("shhh")
	body := []byte(`{"action":"completed"}`)
	assert.NoError(t, VerifySignature(sign(secret, body), body, secret))
}

func TestVerifySignatureRejectsTamperedBody(t *testing.T) {
	secret := []byte("shhh")
	header := sign(secret, []byte(`{"action":"completed"}`))
	err := VerifySignature(header, []byte(`{"action":"tampered"}`), secret)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifySignatureRejectsMissingHeader(t *testing.T) {
	err := VerifySignature("", []byte("body"), []byte("secret"))
	assert.ErrorIs(t, err, ErrMissingSignature)
}

func TestVerifySignatureRejectsWrongPrefix(t *testing.T) {
	err := VerifySignature("sha1=deadbeef", []byte("body"), []byte("secret"))
	assert.ErrorIs(t, err, ErrInvalidSignature)
}
