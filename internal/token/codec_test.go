package token

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "licensegate/internal/errors"
)

var (
	testSecret = []byte("test-secret-0123456789abcdef")
	testNow    = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
)

func sampleClaims() Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "licensegate-issuer",
			Subject:   "TEST-1234-ABCD-5678",
			Audience:  jwt.ClaimStrings{"licensegate-desktop"},
			IssuedAt:  NewDate(testNow),
			NotBefore: NewDate(testNow),
			ExpiresAt: NewDate(testNow.Add(30 * 24 * time.Hour)),
			ID:        "0b7c2f3e-7d0c-4b8e-9a55-0d1f0a3b9c11",
		},
		LicenseID:          "lic-1",
		LicenseType:        "professional",
		Fingerprint:        "fp-abc",
		Features:           []string{"batch", "export"},
		MaxActivations:     2,
		CurrentActivations: 1,
	}
}

func TestCodecRoundTrip(t *testing.T) {
	for _, alg := range []Algorithm{HS256, HS384, HS512} {
		t.Run(string(alg), func(t *testing.T) {
			codec, err := NewCodec(testSecret, alg)
			require.NoError(t, err)

			claims := sampleClaims()
			tok, err := codec.Encode(claims)
			require.NoError(t, err)

			parts := strings.Split(tok, ".")
			require.Len(t, parts, 3)
			for _, p := range parts {
				assert.NotEmpty(t, p)
				assert.NotContains(t, p, "=")
			}

			decoded, err := Decode(tok)
			require.NoError(t, err)
			assert.Equal(t, Header{Alg: string(alg), Typ: "JWT"}, decoded.Header)
			assert.Equal(t, claims.Subject, decoded.Claims.Subject)
			assert.Equal(t, claims.Audience, decoded.Claims.Audience)
			assert.Equal(t, claims.ExpiresAt.Unix(), decoded.Claims.ExpiresAt.Unix())
			assert.Equal(t, claims.Features, decoded.Claims.Features)
			assert.Equal(t, claims.MaxActivations, decoded.Claims.MaxActivations)
			assert.Equal(t, parts[0]+"."+parts[1], decoded.SigningInput)

			assert.True(t, VerifySignature(tok, testSecret, alg))
		})
	}
}

func TestCodecClaimsJSONNames(t *testing.T) {
	codec := MustNewCodec(testSecret, HS256)
	tok, err := codec.Encode(sampleClaims())
	require.NoError(t, err)

	payload, err := base64.RawURLEncoding.DecodeString(strings.Split(tok, ".")[1])
	require.NoError(t, err)
	for _, key := range []string{`"iss"`, `"sub"`, `"aud"`, `"exp"`, `"nbf"`, `"iat"`, `"jti"`,
		`"licenseId"`, `"licenseType"`, `"fingerprint"`, `"features"`, `"maxActivations"`, `"currentActivations"`} {
		assert.Contains(t, string(payload), key)
	}
}

func TestVerifySignatureDetectsTampering(t *testing.T) {
	codec := MustNewCodec(testSecret, HS256)
	tok, err := codec.Encode(sampleClaims())
	require.NoError(t, err)

	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
	for i := 0; i < len(tok); i++ {
		if tok[i] == '.' {
			continue
		}
		replacement := alphabet[(strings.IndexByte(alphabet, tok[i])+1)%len(alphabet)]
		tampered := tok[:i] + string(replacement) + tok[i+1:]
		assert.False(t, VerifySignature(tampered, testSecret, HS256), "byte %d flipped", i)
	}
}

func TestVerifySignatureWrongKeyOrAlgorithm(t *testing.T) {
	tok, err := MustNewCodec(testSecret, HS256).Encode(sampleClaims())
	require.NoError(t, err)

	assert.False(t, VerifySignature(tok, []byte("another-secret-value"), HS256))
	assert.False(t, VerifySignature(tok, testSecret, HS512))
	assert.False(t, VerifySignature(tok, nil, HS256))
	assert.False(t, VerifySignature(tok, testSecret, Algorithm("none")))
	assert.False(t, VerifySignature("a.b", testSecret, HS256))
}

func TestDecodeErrors(t *testing.T) {
	validHeader := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	validPayload := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"X"}`))

	tests := []struct {
		name  string
		token string
		code  apperrors.Code
	}{
		{"empty", "", apperrors.CodeInvalidFormat},
		{"two segments", "a.b", apperrors.CodeInvalidFormat},
		{"four segments", "a.b.c.d", apperrors.CodeInvalidFormat},
		{"empty middle", "a..c", apperrors.CodeInvalidFormat},
		{"empty signature", validHeader + "." + validPayload + ".", apperrors.CodeInvalidFormat},
		{"bad header base64", "!!!." + validPayload + ".c2ln", apperrors.CodeDecodeError},
		{"header not json", base64.RawURLEncoding.EncodeToString([]byte("nope")) + "." + validPayload + ".c2ln", apperrors.CodeDecodeError},
		{"claims not json", validHeader + "." + base64.RawURLEncoding.EncodeToString([]byte("[1,")) + ".c2ln", apperrors.CodeDecodeError},
		{"padded segment", validHeader + "." + validPayload + "=" + ".c2ln", apperrors.CodeDecodeError},
		{"bad signature base64", validHeader + "." + validPayload + ".***", apperrors.CodeDecodeError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.token)
			require.Error(t, err)
			assert.Equal(t, tt.code, apperrors.CodeOf(err))
		})
	}
}

func TestEncodeRejectsInconsistentTimes(t *testing.T) {
	codec := MustNewCodec(testSecret, HS256)

	c := sampleClaims()
	c.NotBefore = NewDate(testNow.Add(-time.Hour))
	_, err := codec.Encode(c)
	assert.ErrorIs(t, err, ErrInvalidClaims)

	c = sampleClaims()
	c.ExpiresAt = NewDate(testNow.Add(-time.Minute))
	_, err = codec.Encode(c)
	assert.ErrorIs(t, err, ErrInvalidClaims)

	c = sampleClaims()
	c.NotBefore = nil
	c.ExpiresAt = NewDate(testNow.Add(-time.Minute))
	_, err = codec.Encode(c)
	assert.ErrorIs(t, err, ErrInvalidClaims)
}

func TestNewCodecValidation(t *testing.T) {
	_, err := NewCodec(nil, HS256)
	assert.Error(t, err)
	_, err = NewCodec(testSecret, Algorithm("RS256"))
	assert.Error(t, err)
	assert.Panics(t, func() { MustNewCodec(nil, HS256) })

	a, ok := ParseAlgorithm("hs384")
	assert.True(t, ok)
	assert.Equal(t, HS384, a)
	_, ok = ParseAlgorithm("none")
	assert.False(t, ok)
}
