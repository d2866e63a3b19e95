package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	HeaderID        = "webhook-id"
	HeaderTimestamp = "webhook-timestamp"
	HeaderSignature = "webhook-signature"

	SecretPrefix        = "whsec_"
	SignatureVersion    = "v1"
	DefaultReplayWindow = 180 * time.Second
)

var (
	// ErrSignatureRejected is the only error a caller sees for a bad delivery. The
	// reason stays in the wrapped error for logs.
	ErrSignatureRejected = errors.New("webhook signature rejected")
	ErrInvalidSecret     = errors.New("webhook secret must be whsec_<base64>")
)

// Delivery identifies an authenticated webhook delivery.
type Delivery struct {
	ID        string
	Timestamp time.Time
}

// Authenticator checks presence, freshness and HMAC-SHA256 signature of deliveries.
type Authenticator struct {
	key    []byte
	window time.Duration
	now    func() time.Time
}

// NewAuthenticator decodes secret once. A missing or undecodable secret is an error so
// verification can never be silently skipped.
func NewAuthenticator(secret string, window time.Duration) (*Authenticator, error) {
	key, err := DecodeSecret(secret)
	if err != nil {
		return nil, err
	}
	if window <= 0 {
		window = DefaultReplayWindow
	}
	return &Authenticator{key: key, window: window, now: time.Now}, nil
}

// DecodeSecret strips the whsec_ prefix and base64-decodes the rest.
func DecodeSecret(secret string) ([]byte, error) {
	secret = strings.TrimSpace(secret)
	encoded := strings.TrimPrefix(secret, SecretPrefix)
	if encoded == "" {
		return nil, ErrInvalidSecret
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}
	if len(key) == 0 {
		return nil, ErrInvalidSecret
	}
	return key, nil
}

// Verify authenticates body, which must be the unparsed request body.
func (a *Authenticator) Verify(h http.Header, body []byte) (*Delivery, error) {
	id := strings.TrimSpace(h.Get(HeaderID))
	rawTS := strings.TrimSpace(h.Get(HeaderTimestamp))
	sigHeader := strings.TrimSpace(h.Get(HeaderSignature))
	if id == "" || rawTS == "" || sigHeader == "" {
		return nil, reject("missing webhook headers")
	}

	unix, err := strconv.ParseInt(rawTS, 10, 64)
	if err != nil {
		return nil, reject("malformed timestamp")
	}
	// whole seconds as int64; time.Duration saturates for timestamps far from now
	window := int64(a.window / time.Second)
	skew := a.now().Unix() - unix
	if skew > window || skew < -window {
		return nil, reject("timestamp outside replay window")
	}
	ts := time.Unix(unix, 0)

	expected := sign(a.key, id, rawTS, body)
	matched := false
	for _, token := range strings.Fields(sigHeader) {
		version, sig, ok := strings.Cut(token, ",")
		if !ok || version != SignatureVersion {
			continue
		}
		candidate, err := base64.StdEncoding.DecodeString(sig)
		if err != nil {
			continue
		}
		// keep comparing after a match so timing does not reveal which candidate hit
		if hmac.Equal(candidate, expected) {
			matched = true
		}
	}
	if !matched {
		return nil, reject("no matching signature")
	}

	return &Delivery{ID: id, Timestamp: ts}, nil
}

func reject(reason string) error {
	return fmt.Errorf("%w: %s", ErrSignatureRejected, reason)
}

func sign(key []byte, id, timestamp string, body []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(id))
	mac.Write([]byte("."))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return mac.Sum(nil)
}

// Sign produces a webhook-signature header value for body. Used by tooling and tests to
// build deliveries the way the gateway does.
func Sign(secret, id string, timestamp time.Time, body []byte) (string, error) {
	key, err := DecodeSecret(secret)
	if err != nil {
		return "", err
	}
	ts := strconv.FormatInt(timestamp.Unix(), 10)
	return SignatureVersion + "," + base64.StdEncoding.EncodeToString(sign(key, id, ts, body)), nil
}

// Headers returns the three headers of a signed delivery.
func Headers(secret, id string, timestamp time.Time, body []byte) (http.Header, error) {
	sig, err := Sign(secret, id, timestamp, body)
	if err != nil {
		return nil, err
	}
	h := make(http.Header)
	h.Set(HeaderID, id)
	h.Set(HeaderTimestamp, strconv.FormatInt(timestamp.Unix(), 10))
	h.Set(HeaderSignature, sig)
	return h, nil
}
