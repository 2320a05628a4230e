package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"ForesightX/pkg/logger"
)

const (
	defaultAccessTTL = int64(24 * time.Hour / time.Second)
	bearerPrefix     = "bearer "
)

// Service issues and verifies HS256 access tokens.
type Service struct {
	enabled   bool
	secret    []byte
	issuer    string
	accessTTL time.Duration
	audit     *slog.Logger
	now       func() time.Time
}

// NewService builds the service. A disabled service lets every request through.
func NewService(cfg Config) (*Service, error) {
	svc := &Service{
		enabled: cfg.Enabled,
		issuer:  strings.TrimSpace(cfg.Issuer),
		audit:   logger.Audit(),
		now:     time.Now,
	}
	if !cfg.Enabled {
		return svc, nil
	}
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, ErrMissingSecret
	}
	svc.secret = []byte(cfg.Secret)
	ttl := cfg.AccessTTL
	if ttl <= 0 {
		ttl = defaultAccessTTL
	}
	svc.accessTTL = time.Duration(ttl) * time.Second
	return svc, nil
}

// Enabled reports whether requests must carry a token.
func (s *Service) Enabled() bool { return s != nil && s.enabled }

// Issue signs a token for subject. ttl<=0 uses the configured lifetime.
func (s *Service) Issue(subject *Subject, ttl time.Duration) (string, time.Time, error) {
	if s == nil || len(s.secret) == 0 {
		return "", time.Time{}, ErrMissingSecret
	}
	if subject == nil || strings.TrimSpace(subject.ID) == "" {
		return "", time.Time{}, errors.New("subject id is required")
	}
	if ttl <= 0 {
		ttl = s.accessTTL
	}
	now := s.now()
	expires := now.Add(ttl)
	perms := subject.Permissions
	if len(perms) == 0 {
		perms = DefaultPermissions
	}
	claims := Claims{
		Roles:       subject.Roles,
		Permissions: perms,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.ID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// Verify parses and validates a token and returns its subject.
func (s *Service) Verify(token string) (*Subject, error) {
	if s == nil || len(s.secret) == 0 {
		return nil, ErrMissingSecret
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	subject := &Subject{ID: claims.Subject, Roles: claims.Roles, Permissions: claims.Permissions}
	subject.normalise()
	return subject, nil
}

// AuthenticateRequest verifies the value of an Authorization header.
func (s *Service) AuthenticateRequest(authorization string) (*Subject, error) {
	authorization = strings.TrimSpace(authorization)
	if len(authorization) <= len(bearerPrefix) || !strings.EqualFold(authorization[:len(bearerPrefix)], bearerPrefix) {
		return nil, ErrMissingToken
	}
	return s.Verify(strings.TrimSpace(authorization[len(bearerPrefix):]))
}
