package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Verifier checks the signature the provider returns with a completed
// payment: hex(HMAC-SHA256(secret, orderID + "|" + paymentID)).
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Sign returns the signature the provider would attach.
func (v *Verifier) Sign(providerOrderID, providerPaymentID string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(providerOrderID + "|" + providerPaymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify compares in constant time.
func (v *Verifier) Verify(providerOrderID, providerPaymentID, signature string) bool {
	if len(v.secret) == 0 || providerOrderID == "" || providerPaymentID == "" || signature == "" {
		return false
	}
	expected := v.Sign(providerOrderID, providerPaymentID)
	return hmac.Equal([]byte(expected), []byte(signature))
}
