package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"calendar-ai-billing/internal/domain"
)

// SignatureVerifier checks the X-Signature header on inbound webhooks.
type SignatureVerifier struct {
	secret []byte
}

func NewSignatureVerifier(secret string) *SignatureVerifier {
	return &SignatureVerifier{secret: []byte(secret)}
}

// Sign computes the lowercase hex HMAC-SHA256 digest of body.
func (v *SignatureVerifier) Sign(body []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify compares the presented signature against the expected digest in
// constant time. The body is never parsed before this passes.
func (v *SignatureVerifier) Verify(body []byte, signature string) error {
	if signature == "" {
		return domain.ErrInvalidSignature
	}
	presented, err := hex.DecodeString(signature)
	if err != nil {
		return domain.ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	if !hmac.Equal(presented, mac.Sum(nil)) {
		return domain.ErrInvalidSignature
	}
	return nil
}
