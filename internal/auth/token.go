package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/token-auth/internal/domain"
)

// TokenValidity is the fixed lifetime of every issued token.
const TokenValidity = 7200 * time.Second

// ErrSigningFailure wraps cryptographic failures while issuing a token.
var ErrSigningFailure = errors.New("token signing failed")

var signingMethod = jwt.SigningMethodHS256

// IdentityResolver maps a subject to its granted roles in a stable order.
// It must return an error matching domain.ErrIdentityNotFound for unknown subjects.
type IdentityResolver interface {
	Resolve(ctx context.Context, subject string) ([]domain.Role, error)
}

// ResolverFunc adapts a function to IdentityResolver.
type ResolverFunc func(ctx context.Context, subject string) ([]domain.Role, error)

func (f ResolverFunc) Resolve(ctx context.Context, subject string) ([]domain.Role, error) {
	return f(ctx, subject)
}

// MetricsRecorder receives issuance and validation outcomes.
type MetricsRecorder interface {
	TokenIssued(outcome string)
	TokenValidated(outcome string)
}

// Claims is the decoded content of a valid token.
type Claims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Role      domain.Role
}

// tokenClaims is the wire payload: jti carries the subject, role is a private claim.
type tokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Validate is invoked by the jwt parser after the registered claim checks.
func (c *tokenClaims) Validate() error {
	if c.ID == "" {
		return errors.New("missing jti claim")
	}
	if c.Role == "" {
		return errors.New("missing role claim")
	}
	if !domain.Role(c.Role).Known() {
		return fmt.Errorf("unknown role %q", c.Role)
	}
	if c.IssuedAt == nil || c.ExpiresAt == nil {
		return errors.New("missing iat or exp claim")
	}
	if !c.ExpiresAt.After(c.IssuedAt.Time) {
		return errors.New("exp not after iat")
	}
	return nil
}

// TokenService issues and validates HS256 compact tokens.
type TokenService struct {
	key      SigningKey
	resolver IdentityResolver
	now      func() time.Time
	logger   *zap.Logger
	metrics  MetricsRecorder
	parser   *jwt.Parser
}

// Option customises a TokenService.
type Option func(*TokenService)

// WithClock overrides the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *TokenService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger attaches a logger for operator-facing diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(s *TokenService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics attaches an outcome recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *TokenService) {
		s.metrics = m
	}
}

// NewTokenService builds a service around an immutable key and a resolver.
func NewTokenService(key SigningKey, resolver IdentityResolver, opts ...Option) (*TokenService, error) {
	if key.IsZero() {
		return nil, fmt.Errorf("%w: key not configured", ErrInvalidSigningKey)
	}
	if resolver == nil {
		return nil, errors.New("identity resolver is required")
	}

	s := &TokenService{
		key:      key,
		resolver: resolver,
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(s.now),
	)
	return s, nil
}

// Issue resolves the subject's roles and returns a signed token valid for TokenValidity.
// Resolver errors are returned unchanged.
func (s *TokenService) Issue(ctx context.Context, subject string) (string, error) {
	session, err := s.IssueSession(ctx, subject)
	if err != nil {
		return "", err
	}
	return session.Token, nil
}

// IssueSession is Issue returning the token together with the claims it carries.
func (s *TokenService) IssueSession(ctx context.Context, subject string) (*domain.Session, error) {
	if subject == "" {
		s.recordIssued("not_found")
		return nil, domain.ErrIdentityNotFound
	}

	roles, err := s.resolver.Resolve(ctx, subject)
	if err != nil {
		if errors.Is(err, domain.ErrIdentityNotFound) {
			s.recordIssued("not_found")
		} else {
			s.recordIssued("resolver_error")
		}
		return nil, err
	}

	role := PrimaryRole(roles)
	if skipped := unknownRoles(roles); len(skipped) > 0 {
		s.logger.Warn("ignoring unrecognised roles",
			zap.String("subject", subject),
			zap.Strings("roles", skipped),
			zap.String("embedded", role.String()),
		)
	}

	// NumericDate has second precision; truncate so the returned session matches the token.
	issuedAt := s.now().Truncate(time.Second)
	expiresAt := issuedAt.Add(TokenValidity)

	claims := &tokenClaims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        subject,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString(s.key.bytes())
	if err != nil {
		s.recordIssued("signing_error")
		s.logger.Error("token signing failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrSigningFailure, err)
	}

	s.recordIssued("success")
	s.logger.Debug("token issued", zap.String("subject", subject), zap.String("role", role.String()))

	return &domain.Session{
		Token:     signed,
		Subject:   subject,
		Role:      role,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

// Validate checks structure, algorithm, signature and expiry. Any failure yields
// (nil, false) without saying which check failed.
func (s *TokenService) Validate(token string) (*Claims, bool) {
	if token == "" {
		s.recordValidated("invalid")
		return nil, false
	}

	claims := &tokenClaims{}
	parsed, err := s.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method != signingMethod {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.key.bytes(), nil
	})
	if err != nil || !parsed.Valid {
		s.recordValidated("invalid")
		s.logger.Debug("token rejected", zap.String("reason", rejectReason(err)))
		return nil, false
	}

	s.recordValidated("success")
	return &Claims{
		Subject:   claims.ID,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
		Role:      domain.Role(claims.Role),
	}, true
}

// PrimaryRole picks the first recognised role, falling back to domain.DefaultRole.
// Unrecognised values are skipped so a token never carries a role the service does not define.
// Determinism depends on the resolver returning roles in a stable order.
func PrimaryRole(roles []domain.Role) domain.Role {
	for _, r := range roles {
		if r.Known() {
			return r
		}
	}
	return domain.DefaultRole
}

func unknownRoles(roles []domain.Role) []string {
	var out []string
	for _, r := range roles {
		if !r.Known() {
			out = append(out, r.String())
		}
	}
	return out
}

func rejectReason(err error) string {
	switch {
	case err == nil:
		return "invalid"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "signature"
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return "unverifiable"
	default:
		return "claims"
	}
}

func (s *TokenService) recordIssued(outcome string) {
	if s.metrics != nil {
		s.metrics.TokenIssued(outcome)
	}
}

func (s *TokenService) recordValidated(outcome string) {
	if s.metrics != nil {
		s.metrics.TokenValidated(outcome)
	}
}
