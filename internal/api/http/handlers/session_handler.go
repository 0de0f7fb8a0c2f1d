package handlers

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/token-auth/internal/api/dto"
	"github.com/spec-kit/token-auth/internal/auth"
	"github.com/spec-kit/token-auth/internal/service"
	apperrors "github.com/spec-kit/token-auth/pkg/util/errorutil"
)

// SessionHandler exposes login and token introspection endpoints.
type SessionHandler struct {
	login  *service.LoginService
	logger *zap.Logger
}

// NewSessionHandler constructs handler.
func NewSessionHandler(login *service.LoginService, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{login: login, logger: logger}
}

// Login handles POST /api/login.
func (h *SessionHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Email == "" || req.Password == "" {
		return apperrors.NewValidationError("email and password required", nil)
	}

	session, err := h.login.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			return apperrors.NewSessionRejected()
		}
		if errors.Is(err, auth.ErrSigningFailure) {
			h.logger.Error("cannot sign session token", zap.Error(err))
		}
		return apperrors.MapError(err)
	}

	return c.JSON(dto.LoginResponse{
		Token:     session.Token,
		Role:      session.Role.String(),
		ExpiresAt: session.ExpiresAt,
	})
}

// Me handles GET /api/auth/me and echoes the validated claims.
func (h *SessionHandler) Me(c *fiber.Ctx) error {
	claims, ok := auth.ClaimsFromContext(c)
	if !ok {
		return apperrors.NewUnauthenticated()
	}
	return c.JSON(fiber.Map{
		"data": dto.ClaimsResponse{
			Subject:   claims.Subject,
			Role:      claims.Role.String(),
			IssuedAt:  claims.IssuedAt,
			ExpiresAt: claims.ExpiresAt,
		},
	})
}

// Private handles GET /api/private, a resource reachable only with a valid token.
func (h *SessionHandler) Private(c *fiber.Ctx) error {
	claims, ok := auth.ClaimsFromContext(c)
	if !ok {
		return apperrors.NewUnauthenticated()
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"message": "private resource",
		"subject": claims.Subject,
	})
}
