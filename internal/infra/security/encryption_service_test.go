//go:build !integration

package security_test

import (
	"strings"
	"testing"

	"prompt-job-runner/internal/infra/security"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	svc, err := security.NewEncryptionService(testKey)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	for _, plain := range []string{
		"https://discord.com/api/webhooks/123/abc",
		"",
		`{"url":"https://example.com","method":"POST"}`,
		strings.Repeat("long secret ", 500),
	} {
		ct, err := svc.Encrypt(plain)
		if err != nil {
			t.Fatalf("encrypt: %v", err)
		}
		if ct == plain && plain != "" {
			t.Fatal("ciphertext equals plaintext")
		}
		got, err := svc.Decrypt(ct)
		if err != nil {
			t.Fatalf("decrypt: %v", err)
		}
		if got != plain {
			t.Fatalf("round trip mismatch: got %q", got)
		}
	}
}

func TestEncryptIsNonDeterministic(t *testing.T) {
	svc, _ := security.NewEncryptionService(testKey)
	a, _ := svc.Encrypt("same input")
	b, _ := svc.Encrypt("same input")
	if a == b {
		t.Fatal("two encryptions of the same input must differ (fresh nonce)")
	}
}

func TestNewEncryptionServiceRejectsBadKeyLengths(t *testing.T) {
	for _, key := range []string{"", "short", strings.Repeat("k", 17), strings.Repeat("k", 33)} {
		if _, err := security.NewEncryptionService(key); err == nil {
			t.Fatalf("key of %d bytes should be rejected", len(key))
		}
	}
	for _, n := range []int{16, 24, 32} {
		if _, err := security.NewEncryptionService(strings.Repeat("k", n)); err != nil {
			t.Fatalf("key of %d bytes should be accepted: %v", n, err)
		}
	}
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	svc, _ := security.NewEncryptionService(testKey)
	ct, _ := svc.Encrypt("payload")

	if _, err := svc.Decrypt("not base64!!"); err == nil {
		t.Fatal("garbage input must fail")
	}
	tampered := ct[:len(ct)-2] + "xx"
	if _, err := svc.Decrypt(tampered); err == nil {
		t.Fatal("tampered ciphertext must fail authentication")
	}
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	a, _ := security.NewEncryptionService(testKey)
	b, _ := security.NewEncryptionService("fedcba9876543210fedcba9876543210")
	ct, _ := a.Encrypt("payload")
	if _, err := b.Decrypt(ct); err == nil {
		t.Fatal("decrypting with another key must fail")
	}
}
