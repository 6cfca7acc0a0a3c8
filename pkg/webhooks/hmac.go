package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
)

const DefaultSignatureHeader = "X-Signature-256"

// HMACVerifier checks a "sha256=<hex>" signature of the raw body.
type HMACVerifier struct {
	secret []byte
	header string
}

func NewHMACVerifier(secret, header string) *HMACVerifier {
	if strings.TrimSpace(header) == "" {
		header = DefaultSignatureHeader
	}
	return &HMACVerifier{secret: []byte(secret), header: header}
}

func (v *HMACVerifier) Verify(_ context.Context, r *http.Request, body []byte) error {
	if len(v.secret) == 0 {
		return errors.New("webhook secret is not configured")
	}
	raw := strings.TrimSpace(r.Header.Get(v.header))
	if raw == "" {
		return errors.New("signature header is missing")
	}
	got, err := hex.DecodeString(strings.TrimPrefix(raw, "sha256="))
	if err != nil {
		return errors.New("signature is not hex")
	}
	if !hmac.Equal(got, Sign(v.secret, body)) {
		return errors.New("signature mismatch")
	}
	return nil
}

// Sign returns the raw HMAC-SHA256 of body.
func Sign(secret, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return mac.Sum(nil)
}

// SignatureHeaderValue formats body's signature the way HMACVerifier expects it.
func SignatureHeaderValue(secret string, body []byte) string {
	return "sha256=" + hex.EncodeToString(Sign([]byte(secret), body))
}
