package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifySignature_RoundTrip(t *testing.T) {
	payloads := []string{
		"",
		`{"type":"wallet_linked","userId":"u1","walletAddress":"rABC"}`,
		"not json at all \x00\xff",
	}
	secrets := []string{"s", "shared-secret", "päss wörd"}

	for _, p := range payloads {
		for _, s := range secrets {
			sig := SignPayload([]byte(p), s)
			assert.True(t, VerifySignature([]byte(p), sig, s), "payload=%q secret=%q", p, s)
		}
	}
}

func TestVerifySignature_SingleByteMutation(t *testing.T) {
	payload := []byte(`{"type":"balance_update","userId":"u1"}`)
	sig := SignPayload(payload, "secret")

	for i := range payload {
		mutated := append([]byte(nil), payload...)
		mutated[i] ^= 0x01
		assert.False(t, VerifySignature(mutated, sig, "secret"), "byte %d", i)
	}
}

func TestVerifySignature_FailsClosed(t *testing.T) {
	payload := []byte("body")
	sig := SignPayload(payload, "secret")

	assert.False(t, VerifySignature(payload, sig, ""), "missing secret")
	assert.False(t, VerifySignature(payload, "", "secret"), "missing signature")
	assert.False(t, VerifySignature(payload, sig[:10], "secret"), "short signature")
	assert.False(t, VerifySignature(payload, sig+"00", "secret"), "long signature")
	assert.False(t, VerifySignature(payload, SignPayload(payload, "other"), "secret"), "wrong secret")
}

func TestSignPayload_KnownVector(t *testing.T) {
	// RFC 4231 test case 2
	got := SignPayload([]byte("what do ya want for nothing?"), "Jefe")
	assert.Equal(t, "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843", got)
}

func TestFirstSignature(t *testing.T) {
	assert.Equal(t, "", FirstSignature(nil))
	assert.Equal(t, "", FirstSignature([]string{}))
	assert.Equal(t, "abc", FirstSignature([]string{"abc", "def"}))
}
