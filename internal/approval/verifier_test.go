package approval

import (
	"errors"
	"strings"
	"testing"
	"time"
)

const secret = "0123456789abcdef-test"

func TestIssueAndVerify(t *testing.T) {
	digest := PayloadDigest("canonical", "fact", "k", "the text")
	ref, err := Issue(secret, digest, time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !strings.HasPrefix(ref, "v1.") {
		t.Errorf("ref = %q, want v1. prefix", ref)
	}

	v, err := NewVerifier(secret)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	if err := v.Verify(ref, digest); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifySingleUse(t *testing.T) {
	digest := PayloadDigest("canonical", "fact", "k", "text")
	ref, err := Issue(secret, digest, time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	v, _ := NewVerifier(secret)
	if err := v.Verify(ref, digest); err != nil {
		t.Fatalf("first Verify: %v", err)
	}
	if err := v.Verify(ref, digest); !errors.Is(err, ErrAlreadyConsumed) {
		t.Fatalf("second Verify = %v, want ErrAlreadyConsumed", err)
	}
}

func TestVerifyWrongDigest(t *testing.T) {
	ref, err := Issue(secret, PayloadDigest("canonical", "fact", "k", "approved"), time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	v, _ := NewVerifier(secret)
	err = v.Verify(ref, PayloadDigest("canonical", "fact", "k", "tampered"))
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("Verify = %v, want ErrInvalidSignature", err)
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	digest := PayloadDigest("canonical", "fact", "k", "text")
	ref, err := Issue(secret, digest, time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	v, _ := NewVerifier("another-secret-entirely")
	if err := v.Verify(ref, digest); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("Verify = %v, want ErrInvalidSignature", err)
	}
}

func TestVerifyExpired(t *testing.T) {
	digest := PayloadDigest("canonical", "fact", "k", "text")
	ref, err := Issue(secret, digest, time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	v, _ := NewVerifier(secret)
	v.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if err := v.Verify(ref, digest); !errors.Is(err, ErrExpired) {
		t.Fatalf("Verify = %v, want ErrExpired", err)
	}
}

func TestVerifyMalformed(t *testing.T) {
	v, _ := NewVerifier(secret)
	digest := PayloadDigest("canonical", "fact", "k", "text")

	refs := []string{
		"",
		"not-a-reference",
		"v2.id.123.nonce.sig",
		"v1.id.notanumber.nonce.sig",
		"v1.id.123.nonce",
		"v1..123.nonce.sig",
	}
	for _, ref := range refs {
		if err := v.Verify(ref, digest); !errors.Is(err, ErrMalformedReference) {
			t.Errorf("Verify(%q) = %v, want ErrMalformedReference", ref, err)
		}
	}
}

func TestNewVerifierRejectsShortSecret(t *testing.T) {
	if _, err := NewVerifier("short"); err == nil {
		t.Fatal("NewVerifier accepted a short secret")
	}
	if _, err := Issue("short", "digest", time.Minute); err == nil {
		t.Fatal("Issue accepted a short secret")
	}
}

func TestPayloadDigestFieldBoundaries(t *testing.T) {
	// The separator keeps ("ab","c") and ("a","bc") from colliding.
	a := PayloadDigest("canonical", "ab", "c", "x")
	b := PayloadDigest("canonical", "a", "bc", "x")
	if a == b {
		t.Fatal("digest collides across field boundaries")
	}
}
