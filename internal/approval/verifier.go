// Package approval issues and verifies signed, single-use approval
// references for canonical-scope memory writes. A reference is authentic
// only if its HMAC-SHA256 signature over the payload digest checks out
// against the shared signing secret held by the approving authority.
package approval

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MinSecretLen is the minimum length of the signing secret.
const MinSecretLen = 16

// Verification failure modes. None are retried automatically: a forged or
// stale approval must never silently pass.
var (
	ErrMalformedReference = errors.New("malformed approval reference")
	ErrInvalidSignature   = errors.New("invalid approval signature")
	ErrExpired            = errors.New("approval expired")
	ErrAlreadyConsumed    = errors.New("approval already consumed")
)

const refVersion = "v1"

// PayloadDigest computes the canonical digest an approval signs. The field
// order is fixed; changing it invalidates every outstanding reference.
func PayloadDigest(scope, kind, key, text string) string {
	h := sha256.New()
	for _, part := range []string{scope, kind, key, text} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Issue mints a reference authorizing one canonical write of the payload
// identified by digest. Reference layout:
//
//	v1.<id>.<expires-unix>.<nonce>.<signature>
//
// where signature = base64url(HMAC-SHA256(secret, "v1|id|expires|nonce|digest")).
func Issue(secret, digest string, ttl time.Duration) (string, error) {
	if len(secret) < MinSecretLen {
		return "", fmt.Errorf("signing secret must be at least %d bytes", MinSecretLen)
	}
	if digest == "" {
		return "", errors.New("payload digest is required")
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	id := uuid.NewString()
	expires := time.Now().Add(ttl).Unix()
	nonce := newNonce()
	sig := sign(secret, id, expires, nonce, digest)
	return strings.Join([]string{refVersion, id, strconv.FormatInt(expires, 10), nonce, sig}, "."), nil
}

func newNonce() string {
	b := make([]byte, 18)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing means the process is in no state to
		// mint approvals at all.
		panic(fmt.Sprintf("approval nonce: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

func sign(secret, id string, expires int64, nonce, digest string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s|%s|%d|%s|%s", refVersion, id, expires, nonce, digest)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// Verifier validates approval references against the shared secret and
// tracks consumed ids. Each reference is single-use for a given canonical
// write; consumption happens on successful verification.
type Verifier struct {
	secret string
	now    func() time.Time

	mu       sync.Mutex
	consumed map[string]time.Time
}

// NewVerifier builds a verifier. The secret must be at least MinSecretLen
// bytes; anything shorter is a configuration error, not a soft degrade.
func NewVerifier(secret string) (*Verifier, error) {
	if len(secret) < MinSecretLen {
		return nil, fmt.Errorf("signing secret must be at least %d bytes", MinSecretLen)
	}
	return &Verifier{
		secret:   secret,
		now:      time.Now,
		consumed: make(map[string]time.Time),
	}, nil
}

// Verify checks ref against the payload digest. On success the reference
// is consumed and a second use fails with ErrAlreadyConsumed.
func (v *Verifier) Verify(ref, digest string) error {
	parts := strings.Split(ref, ".")
	if len(parts) != 5 || parts[0] != refVersion {
		return ErrMalformedReference
	}
	id, expiresStr, nonce, sig := parts[1], parts[2], parts[3], parts[4]

	expires, err := strconv.ParseInt(expiresStr, 10, 64)
	if err != nil || id == "" || nonce == "" || sig == "" {
		return ErrMalformedReference
	}

	expected := sign(v.secret, id, expires, nonce, digest)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return ErrInvalidSignature
	}

	now := v.now()
	if now.Unix() >= expires {
		return ErrExpired
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.consumed[id]; ok {
		return ErrAlreadyConsumed
	}
	v.consumed[id] = now

	// Drop ledger entries for long-expired references.
	if len(v.consumed) > 1024 {
		for cid, at := range v.consumed {
			if now.Sub(at) > 24*time.Hour {
				delete(v.consumed, cid)
			}
		}
	}
	return nil
}
