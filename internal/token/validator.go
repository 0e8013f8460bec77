package token

import (
	"errors"
	"time"

	apperrors "licensegate/internal/errors"
	"licensegate/internal/infrastructure"
)

// ValidatorConfig configures the trust checks
type ValidatorConfig struct {
	Secret    []byte
	Algorithm Algorithm
	Issuer    string
	Audience  string
	Clock     infrastructure.Clock
}

// Validator applies the trust checks to tokens issued for this application
type Validator struct {
	cfg   ValidatorConfig
	clock infrastructure.Clock
}

// NewValidator returns a validator; the secret must be set and the
// algorithm supported.
func NewValidator(cfg ValidatorConfig) (*Validator, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("token secret must not be empty")
	}
	if _, ok := cfg.Algorithm.method(); !ok {
		return nil, errors.New("unsupported token algorithm " + string(cfg.Algorithm))
	}
	return &Validator{cfg: cfg, clock: infrastructure.OrSystem(cfg.Clock)}, nil
}

// Validate checks token in this order and stops at the first failure:
//
//  1. three non-empty segments          INVALID_FORMAT
//  2. header and claims decode           DECODE_ERROR
//  3. header alg and HMAC signature      INVALID_SIGNATURE
//  4. issuer                             INVALID_ISSUER
//  5. audience                           INVALID_AUDIENCE
//  6. now >= nbf                         TOKEN_NOT_YET_VALID
//  7. now < exp (missing exp is expired) TOKEN_EXPIRED
//  8. device fingerprint                 FINGERPRINT_MISMATCH
//
// An empty fingerprint never matches, so a token is only accepted for the
// device it was bound to.
func (v *Validator) Validate(token, fingerprint string) (*Claims, error) {
	decoded, err := Decode(token)
	if err != nil {
		return nil, err
	}

	if Algorithm(decoded.Header.Alg) != v.cfg.Algorithm {
		return nil, apperrors.Newf(apperrors.CodeInvalidSignature, "token algorithm %q not accepted", decoded.Header.Alg)
	}
	if !VerifySignature(token, v.cfg.Secret, v.cfg.Algorithm) {
		return nil, apperrors.ErrInvalidSignature
	}

	claims := &decoded.Claims
	if claims.Issuer != v.cfg.Issuer {
		return nil, apperrors.Newf(apperrors.CodeInvalidIssuer, "unexpected issuer %q", claims.Issuer)
	}
	if !claims.HasAudience(v.cfg.Audience) {
		return nil, apperrors.Newf(apperrors.CodeInvalidAudience, "token not issued for %q", v.cfg.Audience)
	}

	now := v.clock.Now()
	if claims.NotBefore != nil && now.Before(claims.NotBefore.Time) {
		return nil, apperrors.ErrTokenNotYetValid
	}
	if claims.ExpiresAt == nil || !now.Before(claims.ExpiresAt.Time) {
		return nil, apperrors.ErrTokenExpired
	}

	if fingerprint == "" || claims.Fingerprint != fingerprint {
		return nil, apperrors.ErrFingerprintMismatch
	}
	return claims, nil
}

// ShouldRefresh reports whether claims expire within threshold of now
func (v *Validator) ShouldRefresh(claims *Claims, threshold time.Duration) bool {
	return ShouldRefresh(claims, threshold, v.clock.Now())
}
