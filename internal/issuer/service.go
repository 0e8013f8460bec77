package issuer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	apperrors "licensegate/internal/errors"
	"licensegate/internal/infrastructure"
	"licensegate/internal/license"
	"licensegate/internal/token"
	apiv1 "licensegate/pkg/contracts/api/v1"
)

// DefaultTokenTTL is used when Config.TokenTTL is not set
const DefaultTokenTTL = 30 * 24 * time.Hour

// Config configures token issuance
type Config struct {
	Issuer    string
	Audience  string
	TokenTTL  time.Duration
	Secret    []byte
	Algorithm token.Algorithm
	Clock     infrastructure.Clock
	Logger    *slog.Logger
}

// Service applies the issuing server's activation rules
type Service struct {
	registry Registry
	codec    *token.Codec
	tokens   *token.Validator
	cfg      Config
	clock    infrastructure.Clock
	logger   *slog.Logger
}

// NewService creates a service over registry
func NewService(registry Registry, cfg Config) (*Service, error) {
	if registry == nil {
		return nil, errors.New("issuer registry is required")
	}
	codec, err := token.NewCodec(cfg.Secret, cfg.Algorithm)
	if err != nil {
		return nil, fmt.Errorf("failed to create token codec: %w", err)
	}
	clock := infrastructure.OrSystem(cfg.Clock)
	tokens, err := token.NewValidator(token.ValidatorConfig{
		Secret:    cfg.Secret,
		Algorithm: cfg.Algorithm,
		Issuer:    cfg.Issuer,
		Audience:  cfg.Audience,
		Clock:     clock,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create token validator: %w", err)
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		registry: registry,
		codec:    codec,
		tokens:   tokens,
		cfg:      cfg,
		clock:    clock,
		logger:   logger.With(slog.String("component", "issuer")),
	}, nil
}

// Activate binds the license to fingerprint and issues a token. A device that
// is already bound gets a fresh token without using another activation.
func (s *Service) Activate(ctx context.Context, keyInput, fingerprint string) (*license.ActivationResult, error) {
	key, err := license.ParseKey(keyInput)
	if err != nil {
		return nil, err
	}
	if fingerprint == "" {
		return nil, apperrors.NewAPIError(http.StatusBadRequest, "INVALID_REQUEST", "device fingerprint is required")
	}

	now := s.clock.Now()
	lic, err := s.registry.Update(ctx, key, func(l *license.License) error {
		if l.Status == license.StatusPending && license.CanTransition(l.Status, license.StatusActive) {
			l.Status = license.StatusActive
		}
		if err := license.CheckStatus(l, now); err != nil {
			return err
		}
		switch {
		case l.HardwareFingerprint == fingerprint:
		case l.HardwareFingerprint != "":
			return apperrors.ErrFingerprintMismatch
		case l.CurrentActivations >= l.MaxActivations:
			return apperrors.ErrMaxActivationsReached
		default:
			l.HardwareFingerprint = fingerprint
			l.CurrentActivations++
			l.ActivatedAt = &now
		}
		return nil
	})
	if err != nil {
		s.logger.WarnContext(ctx, "activation refused",
			slog.String("key", license.MaskKey(key)),
			slog.String("error_code", string(apperrors.CodeOf(err))))
		return nil, err
	}

	tok, exp, err := s.issue(lic, fingerprint, now)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "license activated",
		slog.String("key", license.MaskKey(key)),
		slog.String("license_type", string(lic.Type)),
		slog.Int("activations", lic.CurrentActivations),
		slog.Time("token_expires_at", exp))
	return &license.ActivationResult{License: lic, Token: tok, ExpiresAt: exp}, nil
}

// issue signs a token for lic that expires after the TTL or with the
// license, whichever comes first.
func (s *Service) issue(lic *license.License, fingerprint string, now time.Time) (string, time.Time, error) {
	exp := now.Add(s.cfg.TokenTTL)
	if lic.ExpiresAt != nil && lic.ExpiresAt.Before(exp) {
		exp = *lic.ExpiresAt
	}
	exp = exp.Truncate(time.Second)
	claims := token.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   lic.Key,
			Audience:  jwt.ClaimStrings{s.cfg.Audience},
			IssuedAt:  token.NewDate(now),
			NotBefore: token.NewDate(now),
			ExpiresAt: token.NewDate(exp),
			ID:        uuid.New().String(),
		},
		LicenseID:          lic.ID,
		LicenseType:        string(lic.Type),
		Fingerprint:        fingerprint,
		Features:           lic.Features,
		MaxActivations:     lic.MaxActivations,
		CurrentActivations: lic.CurrentActivations,
	}
	tok, err := s.codec.Encode(claims)
	if err != nil {
		return "", time.Time{}, apperrors.Wrap(apperrors.CodeServerError, "failed to sign token", err)
	}
	return tok, exp, nil
}

// Validate reports the server's verdict on key for fingerprint. Licensing
// failures are part of the response; only a malformed key is an error. The
// token, when given, must be valid and issued for this key.
func (s *Service) Validate(ctx context.Context, keyInput, fingerprint, tok string) (*apiv1.ValidateResponse, error) {
	key, err := license.ParseKey(keyInput)
	if err != nil {
		return nil, err
	}

	lic, err := s.registry.Get(ctx, key)
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.CodeLicenseNotFound {
			return refuse(&apiv1.ValidateResponse{}, err), nil
		}
		return nil, err
	}

	now := s.clock.Now()
	resp := &apiv1.ValidateResponse{
		License:       lic,
		RemainingDays: license.RemainingDays(lic.ExpiresAt, now),
	}
	if err := license.CheckStatus(lic, now); err != nil {
		return refuse(resp, err), nil
	}
	if fingerprint != "" && lic.HardwareFingerprint != "" && lic.HardwareFingerprint != fingerprint {
		return refuse(resp, apperrors.ErrFingerprintMismatch), nil
	}
	if tok != "" {
		if err := s.verifyToken(tok, key, fingerprint); err != nil {
			return refuse(resp, err), nil
		}
	}
	resp.Valid = true
	return resp, nil
}

// Deactivate releases the activation held by fingerprint. The token proves
// the caller owns that activation.
func (s *Service) Deactivate(ctx context.Context, keyInput, fingerprint, tok string) error {
	key, err := license.ParseKey(keyInput)
	if err != nil {
		return err
	}
	if err := s.verifyToken(tok, key, fingerprint); err != nil {
		return err
	}
	_, err = s.registry.Update(ctx, key, func(l *license.License) error {
		if l.HardwareFingerprint != fingerprint {
			return apperrors.ErrFingerprintMismatch
		}
		l.HardwareFingerprint = ""
		if l.CurrentActivations > 0 {
			l.CurrentActivations--
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "license deactivated", slog.String("key", license.MaskKey(key)))
	return nil
}

func (s *Service) verifyToken(tok, key, fingerprint string) error {
	claims, err := s.tokens.Validate(tok, fingerprint)
	if err != nil {
		return err
	}
	if claims.Subject != key {
		return apperrors.New(apperrors.CodeLicenseInvalid, "token was issued for another license")
	}
	return nil
}

// Suspend stops an active license until it is reinstated
func (s *Service) Suspend(ctx context.Context, keyInput string) (*license.License, error) {
	return s.transition(ctx, keyInput, license.StatusSuspended)
}

// Revoke permanently withdraws a license
func (s *Service) Revoke(ctx context.Context, keyInput string) (*license.License, error) {
	return s.transition(ctx, keyInput, license.StatusRevoked)
}

// Reinstate returns a suspended license to active. It is the only way out of
// suspension.
func (s *Service) Reinstate(ctx context.Context, keyInput string) (*license.License, error) {
	key, err := license.ParseKey(keyInput)
	if err != nil {
		return nil, err
	}
	lic, err := s.registry.Update(ctx, key, func(l *license.License) error {
		if l.Status != license.StatusSuspended {
			return apperrors.Newf(apperrors.CodeLicenseInvalid, "only suspended licenses can be reinstated, status is %s", l.Status)
		}
		l.Status = license.StatusActive
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "license reinstated", slog.String("key", license.MaskKey(key)))
	return lic, nil
}

func (s *Service) transition(ctx context.Context, keyInput string, to license.Status) (*license.License, error) {
	key, err := license.ParseKey(keyInput)
	if err != nil {
		return nil, err
	}
	lic, err := s.registry.Update(ctx, key, func(l *license.License) error {
		if !license.CanTransition(l.Status, to) {
			return apperrors.Newf(apperrors.CodeLicenseInvalid, "cannot change license status from %s to %s", l.Status, to)
		}
		l.Status = to
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "license status changed",
		slog.String("key", license.MaskKey(key)),
		slog.String("status", string(to)))
	return lic, nil
}

func refuse(resp *apiv1.ValidateResponse, err error) *apiv1.ValidateResponse {
	resp.Valid = false
	resp.ErrorCode = string(apperrors.CodeOf(err))
	resp.Error = err.Error()
	var le *apperrors.LicenseError
	if errors.As(err, &le) {
		resp.Error = le.Message
	}
	return resp
}
