package license

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/hkdf"
)

// CachedValidation is the device's proof of its last successful online
// validation. It is replaced on every online success and consulted only when
// the issuing server cannot be reached.
type CachedValidation struct {
	License           *License  `json:"license"`
	Fingerprint       string    `json:"fingerprint"`
	ValidatedAt       time.Time `json:"validatedAt"`
	OfflineValidUntil time.Time `json:"offlineValidUntil"`
	GracePeriodDays   int       `json:"gracePeriodDays"`
	Token             string    `json:"token,omitempty"`
}

// CreateCachedValidation snapshots license and fingerprint at now. The
// offline window ends gracePeriodDays whole days later.
func CreateCachedValidation(l *License, fingerprint string, gracePeriodDays int, now time.Time) *CachedValidation {
	return &CachedValidation{
		License:           l.Clone(),
		Fingerprint:       fingerprint,
		ValidatedAt:       now,
		OfflineValidUntil: now.Add(time.Duration(gracePeriodDays) * day),
		GracePeriodDays:   gracePeriodDays,
	}
}

// IsCacheValid reports whether the cache is younger than maxAge, meaning the
// network need not be asked again yet.
func IsCacheValid(c *CachedValidation, maxAge time.Duration, now time.Time) bool {
	if c == nil {
		return false
	}
	return now.Sub(c.ValidatedAt) < maxAge
}

// Clone returns a deep copy
func (c *CachedValidation) Clone() *CachedValidation {
	if c == nil {
		return nil
	}
	cp := *c
	cp.License = c.License.Clone()
	return &cp
}

const (
	cacheKeyInfo    = "licensegate cache v1"
	envelopeVersion = "v1"
)

var (
	// ErrCorrupt is returned when persisted license data cannot be parsed
	ErrCorrupt = errors.New("license data is corrupt")

	// ErrTampered is returned when persisted license data fails its signature check
	ErrTampered = errors.New("license data signature mismatch")
)

// CacheSigner seals persisted license data with an HMAC keyed to this device.
// The key is derived with HKDF from the application secret, salted with the
// device fingerprint, so a cache copied to another machine does not open.
type CacheSigner struct {
	key []byte
}

type sealedEnvelope struct {
	Version   string          `json:"version"`
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
}

// NewCacheSigner derives the signing key for fingerprint
func NewCacheSigner(secret []byte, fingerprint string) (*CacheSigner, error) {
	if len(secret) == 0 {
		return nil, errors.New("cache secret must not be empty")
	}
	key := make([]byte, sha256.Size)
	r := hkdf.New(sha256.New, secret, []byte(fingerprint), []byte(cacheKeyInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("failed to derive cache key: %w", err)
	}
	return &CacheSigner{key: key}, nil
}

// Seal serializes v and wraps it in a signed envelope
func (s *CacheSigner) Seal(v interface{}) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	env := sealedEnvelope{
		Version:   envelopeVersion,
		Payload:   payload,
		Signature: hex.EncodeToString(s.mac(payload)),
	}
	return json.MarshalIndent(env, "", "  ")
}

// Open verifies data and decodes its payload into v. Malformed input yields
// ErrCorrupt and a bad signature ErrTampered.
func (s *CacheSigner) Open(data []byte, v interface{}) error {
	var env sealedEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if env.Version != envelopeVersion || len(env.Payload) == 0 {
		return ErrCorrupt
	}

	var payload bytes.Buffer
	if err := json.Compact(&payload, env.Payload); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	sig, err := hex.DecodeString(env.Signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if !hmac.Equal(sig, s.mac(payload.Bytes())) {
		return ErrTampered
	}

	if err := json.Unmarshal(payload.Bytes(), v); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return nil
}

func (s *CacheSigner) mac(payload []byte) []byte {
	h := hmac.New(sha256.New, s.key)
	h.Write(payload)
	return h.Sum(nil)
}
