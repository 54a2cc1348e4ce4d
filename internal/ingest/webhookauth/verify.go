// Package webhookauth verifies signed provider webhooks. A signature is the
// hex-encoded HMAC-SHA256 of "<timestamp>.<body>" under a shared secret, and
// the timestamp must fall inside a replay window around the current time.
package webhookauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// Header names carrying the signature material.
const (
	TimestampHeader = "X-Signature-Timestamp"
	SignatureHeader = "X-Signature"
)

// DefaultWindow is the accepted clock skew in either direction.
const DefaultWindow = 5 * time.Minute

var (
	ErrInvalidTimestamp       = errors.New("invalid timestamp")
	ErrTimestampOutsideWindow = errors.New("timestamp outside allowed window")
	ErrInvalidSignature       = errors.New("invalid signature")
	ErrNoSecret               = errors.New("no webhook secret configured")
)

// Verifier checks signatures against one or more secrets. More than one
// secret lets a provider rotate keys without dropping deliveries.
type Verifier struct {
	secrets [][]byte
	window  time.Duration
	now     func() time.Time
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithWindow overrides DefaultWindow.
func WithWindow(d time.Duration) Option {
	return func(v *Verifier) { v.window = d }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

// NewVerifier returns a Verifier accepting any of secrets. Empty secrets are
// ignored.
func NewVerifier(secrets []string, opts ...Option) *Verifier {
	v := &Verifier{window: DefaultWindow, now: time.Now}
	for _, s := range secrets {
		if s = strings.TrimSpace(s); s != "" {
			v.secrets = append(v.secrets, []byte(s))
		}
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks the timestamp and signature header values for body.
func (v *Verifier) Verify(timestamp, signature string, body []byte) error {
	if len(v.secrets) == 0 {
		return ErrNoSecret
	}
	timestamp = strings.TrimSpace(timestamp)
	signature = strings.TrimSpace(signature)

	secs, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrInvalidTimestamp
	}
	ts := time.Unix(secs, 0).UTC()
	now := v.now().UTC()
	if ts.Before(now.Add(-v.window)) || ts.After(now.Add(v.window)) {
		return ErrTimestampOutsideWindow
	}

	provided, err := hex.DecodeString(signature)
	if err != nil {
		return ErrInvalidSignature
	}
	for _, secret := range v.secrets {
		if hmac.Equal(provided, sum(secret, timestamp, body)) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// Sign returns the hex signature a provider would send for body at ts. It
// backs tests and `mj webhook send`.
func Sign(secret string, ts time.Time, body []byte) (timestamp, signature string) {
	timestamp = strconv.FormatInt(ts.Unix(), 10)
	return timestamp, hex.EncodeToString(sum([]byte(secret), timestamp, body))
}

func sum(secret []byte, timestamp string, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write([]byte(timestamp))
	_, _ = mac.Write([]byte{'.'})
	_, _ = mac.Write(body)
	return mac.Sum(nil)
}
