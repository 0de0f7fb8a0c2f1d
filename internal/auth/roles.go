package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/token-auth/internal/domain"
	apperrors "github.com/spec-kit/token-auth/pkg/util/errorutil"
)

// RequireRole ensures the token's role is one of allowed. With no roles it only requires authentication.
func RequireRole(allowed ...domain.Role) fiber.Handler {
	allowedSet := make(map[domain.Role]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		claims, ok := ClaimsFromContext(c)
		if !ok {
			return apperrors.NewUnauthenticated()
		}
		if len(allowedSet) == 0 {
			return c.Next()
		}
		if _, exists := allowedSet[claims.Role]; !exists {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}
