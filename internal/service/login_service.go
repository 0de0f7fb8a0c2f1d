package service

import (
	"context"
	"errors"

	"github.com/spec-kit/token-auth/internal/auth"
	"github.com/spec-kit/token-auth/internal/domain"
)

// ErrInvalidCredentials is returned for unknown emails and wrong passwords alike.
var ErrInvalidCredentials = errors.New("invalid credentials")

// CredentialStore loads the account whose password is checked at login.
type CredentialStore interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

// SessionIssuer is the token issuing side of auth.TokenService.
type SessionIssuer interface {
	IssueSession(ctx context.Context, subject string) (*domain.Session, error)
}

// LoginService checks credentials and, on success, asks the token service for a session.
type LoginService struct {
	users     CredentialStore
	tokens    SessionIssuer
	passwords *auth.PasswordHasher
}

// NewLoginService builds the service.
func NewLoginService(users CredentialStore, tokens SessionIssuer, passwords *auth.PasswordHasher) *LoginService {
	return &LoginService{users: users, tokens: tokens, passwords: passwords}
}

// Login verifies email and password and returns a freshly issued session.
func (s *LoginService) Login(ctx context.Context, email, password string) (*domain.Session, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrIdentityNotFound) {
			_ = s.passwords.VerifyAbsent(password)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	return s.tokens.IssueSession(ctx, user.Email)
}
