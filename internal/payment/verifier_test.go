package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifier_SignThenVerify(t *testing.T) {
	v := NewVerifier("test_secret")
	sig := v.Sign("order_9A33XWu170gUtm", "pay_29QQoUBi66xm2f")
	assert.Len(t, sig, 64)
	assert.True(t, v.Verify("order_9A33XWu170gUtm", "pay_29QQoUBi66xm2f", sig))
}

func TestVerifier_RejectsAnySingleByteChange(t *testing.T) {
	v := NewVerifier("test_secret")
	orderID, paymentID := "order_abc", "pay_xyz"
	sig := v.Sign(orderID, paymentID)

	flip := func(s string, i int) string {
		b := []byte(s)
		b[i] ^= 0x01
		return string(b)
	}

	for i := range sig {
		assert.False(t, v.Verify(orderID, paymentID, flip(sig, i)), "signature byte %d", i)
	}
	for i := range orderID {
		assert.False(t, v.Verify(flip(orderID, i), paymentID, sig), "order id byte %d", i)
	}
	for i := range paymentID {
		assert.False(t, v.Verify(orderID, flip(paymentID, i), sig), "payment id byte %d", i)
	}
}

func TestVerifier_RejectsEmptyAndWrongSecret(t *testing.T) {
	v := NewVerifier("test_secret")
	sig := v.Sign("order_abc", "pay_xyz")

	assert.False(t, v.Verify("order_abc", "pay_xyz", ""))
	assert.False(t, v.Verify("", "pay_xyz", sig))
	assert.False(t, NewVerifier("other").Verify("order_abc", "pay_xyz", sig))
	assert.False(t, NewVerifier("").Verify("order_abc", "pay_xyz", NewVerifier("").Sign("order_abc", "pay_xyz")))
	// the separator is part of the signed message
	assert.False(t, v.Verify("order_ab", "cpay_xyz", sig))
}
