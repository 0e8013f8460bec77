package token

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	apperrors "licensegate/internal/errors"
)

// ErrInvalidClaims is returned by Encode when iat <= nbf <= exp does not hold
var ErrInvalidClaims = errors.New("claims time window is inconsistent")

var segmentEncoding = base64.RawURLEncoding.Strict()

// Codec signs and serializes claims with one shared secret and algorithm
type Codec struct {
	secret []byte
	alg    Algorithm
}

// NewCodec returns a codec for secret and alg. The secret must not be empty.
func NewCodec(secret []byte, alg Algorithm) (*Codec, error) {
	if len(secret) == 0 {
		return nil, errors.New("token secret must not be empty")
	}
	if _, ok := alg.method(); !ok {
		return nil, fmt.Errorf("unsupported token algorithm %q", alg)
	}
	return &Codec{secret: append([]byte(nil), secret...), alg: alg}, nil
}

// MustNewCodec is NewCodec for static configuration; it panics on error
func MustNewCodec(secret []byte, alg Algorithm) *Codec {
	c, err := NewCodec(secret, alg)
	if err != nil {
		panic(err)
	}
	return c
}

// Algorithm returns the configured signing algorithm
func (c *Codec) Algorithm() Algorithm {
	return c.alg
}

// Encode serializes and signs claims
func (c *Codec) Encode(claims Claims) (string, error) {
	if err := checkTimeOrder(&claims); err != nil {
		return "", err
	}

	header, err := json.Marshal(Header{Alg: string(c.alg), Typ: "JWT"})
	if err != nil {
		return "", fmt.Errorf("failed to marshal header: %w", err)
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("failed to marshal claims: %w", err)
	}

	signingInput := segmentEncoding.EncodeToString(header) + "." + segmentEncoding.EncodeToString(payload)
	sig, err := sign(signingInput, c.secret, c.alg)
	if err != nil {
		return "", err
	}
	return signingInput + "." + segmentEncoding.EncodeToString(sig), nil
}

func checkTimeOrder(c *Claims) error {
	iat, nbf, exp := c.IssuedAt, c.NotBefore, c.ExpiresAt
	if iat != nil && nbf != nil && nbf.Before(iat.Time) {
		return fmt.Errorf("%w: nbf before iat", ErrInvalidClaims)
	}
	if nbf != nil && exp != nil && exp.Before(nbf.Time) {
		return fmt.Errorf("%w: exp before nbf", ErrInvalidClaims)
	}
	if iat != nil && exp != nil && exp.Before(iat.Time) {
		return fmt.Errorf("%w: exp before iat", ErrInvalidClaims)
	}
	return nil
}

func sign(signingInput string, secret []byte, alg Algorithm) ([]byte, error) {
	method, ok := alg.method()
	if !ok {
		return nil, fmt.Errorf("unsupported token algorithm %q", alg)
	}
	sig, err := method.Sign(signingInput, secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return sig, nil
}

// Decoded is a parsed but unverified token
type Decoded struct {
	Header       Header
	Claims       Claims
	Signature    []byte
	SigningInput string
}

// splitToken returns the three segments or INVALID_FORMAT
func splitToken(token string) ([]string, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, apperrors.Newf(apperrors.CodeInvalidFormat, "token has %d segments, want 3", len(parts))
	}
	for _, p := range parts {
		if p == "" {
			return nil, apperrors.New(apperrors.CodeInvalidFormat, "token has an empty segment")
		}
	}
	return parts, nil
}

// Decode parses a token without checking its signature. Structural problems
// yield INVALID_FORMAT; malformed base64 or JSON yields DECODE_ERROR.
func Decode(token string) (*Decoded, error) {
	parts, err := splitToken(token)
	if err != nil {
		return nil, err
	}

	d := &Decoded{SigningInput: parts[0] + "." + parts[1]}
	if err := decodeJSONSegment(parts[0], &d.Header); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDecodeError, "malformed token header", err)
	}
	if err := decodeJSONSegment(parts[1], &d.Claims); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDecodeError, "malformed token claims", err)
	}
	if d.Signature, err = segmentEncoding.DecodeString(parts[2]); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDecodeError, "malformed token signature", err)
	}
	return d, nil
}

func decodeJSONSegment(seg string, v interface{}) error {
	raw, err := segmentEncoding.DecodeString(seg)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// VerifySignature recomputes the HMAC over the first two segments and
// compares it with the third in constant time.
func VerifySignature(token string, secret []byte, alg Algorithm) bool {
	method, ok := alg.method()
	if !ok || len(secret) == 0 {
		return false
	}
	parts, err := splitToken(token)
	if err != nil {
		return false
	}
	sig, err := segmentEncoding.DecodeString(parts[2])
	if err != nil {
		return false
	}
	return method.Verify(parts[0]+"."+parts[1], sig, secret) == nil
}
