package token

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Algorithm names an HMAC signing algorithm
type Algorithm string

const (
	HS256 Algorithm = "HS256"
	HS384 Algorithm = "HS384"
	HS512 Algorithm = "HS512"
)

// ParseAlgorithm accepts any letter case
func ParseAlgorithm(s string) (Algorithm, bool) {
	a := Algorithm(strings.ToUpper(s))
	_, ok := a.method()
	return a, ok
}

func (a Algorithm) method() (*jwt.SigningMethodHMAC, bool) {
	switch a {
	case HS256:
		return jwt.SigningMethodHS256, true
	case HS384:
		return jwt.SigningMethodHS384, true
	case HS512:
		return jwt.SigningMethodHS512, true
	}
	return nil, false
}

// Header is the first token segment
type Header struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
}

// Claims carries the standard registered claims (iss, sub, aud, iat, nbf,
// exp, jti) plus the license snapshot taken at issuance.
type Claims struct {
	jwt.RegisteredClaims
	LicenseID          string   `json:"licenseId,omitempty"`
	LicenseType        string   `json:"licenseType,omitempty"`
	Fingerprint        string   `json:"fingerprint,omitempty"`
	Features           []string `json:"features,omitempty"`
	MaxActivations     int      `json:"maxActivations,omitempty"`
	CurrentActivations int      `json:"currentActivations,omitempty"`
}

// HasAudience reports whether aud is one of the token audiences
func (c *Claims) HasAudience(aud string) bool {
	for _, a := range c.Audience {
		if a == aud {
			return true
		}
	}
	return false
}

// Expiry returns the expiry instant, or the zero time when absent
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// ShouldRefresh reports whether the token expires within threshold of now.
// A token without an expiry always needs refreshing.
func ShouldRefresh(c *Claims, threshold time.Duration, now time.Time) bool {
	if c == nil || c.ExpiresAt == nil {
		return true
	}
	return c.ExpiresAt.Time.Sub(now) <= threshold
}

// NewDate truncates t to whole seconds, the resolution tokens carry
func NewDate(t time.Time) *jwt.NumericDate {
	return jwt.NewNumericDate(t.Truncate(time.Second))
}
