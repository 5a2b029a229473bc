package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignatureVerify(t *testing.T) {
	v := NewSignatureVerifier("test-secret")
	body := []byte(`{"eventType":"SUCCESSFUL_TRANSACTION","eventData":{}}`)

	sig := v.Sign(body)
	assert.True(t, v.Verify(body, sig))

	// The check is over raw bytes: any mutation breaks it.
	tampered := []byte(`{"eventType":"SUCCESSFUL_TRANSACTION","eventData":{ }}`)
	assert.False(t, v.Verify(tampered, sig))
}

func TestSignatureVerifyCaseAndWhitespace(t *testing.T) {
	v := NewSignatureVerifier("test-secret")
	body := []byte(`{"eventType":"FAILED_TRANSACTION"}`)

	sig := v.Sign(body)
	assert.True(t, v.Verify(body, "  "+sig+"\n"))
	assert.True(t, v.Verify(body, upper(sig)))
}

func TestSignatureVerifyRejectsWrongSecret(t *testing.T) {
	body := []byte(`{"eventType":"SUCCESSFUL_TRANSACTION"}`)
	sig := NewSignatureVerifier("secret-a").Sign(body)

	assert.False(t, NewSignatureVerifier("secret-b").Verify(body, sig))
	assert.False(t, NewSignatureVerifier("secret-a").Verify(body, ""))
	assert.False(t, NewSignatureVerifier("secret-a").Verify(body, "not-hex"))
}

func upper(s string) string {
	out := []byte(s)
	for i, c := range out {
		if c >= 'a' && c <= 'f' {
			out[i] = c - 32
		}
	}
	return string(out)
}
