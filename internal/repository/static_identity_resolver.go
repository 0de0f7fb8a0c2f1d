package repository

import (
	"context"

	"github.com/spec-kit/token-auth/internal/domain"
)

// StaticIdentityResolver serves a fixed subject to roles table.
type StaticIdentityResolver struct {
	identities map[string][]domain.Role
}

// NewStaticIdentityResolver copies identities so later changes to the map are not observed.
func NewStaticIdentityResolver(identities map[string][]domain.Role) *StaticIdentityResolver {
	copied := make(map[string][]domain.Role, len(identities))
	for subject, roles := range identities {
		copied[subject] = append([]domain.Role(nil), roles...)
	}
	return &StaticIdentityResolver{identities: copied}
}

// Resolve returns the configured roles in their given order.
func (s *StaticIdentityResolver) Resolve(_ context.Context, subject string) ([]domain.Role, error) {
	roles, ok := s.identities[subject]
	if !ok {
		return nil, domain.ErrIdentityNotFound
	}
	return append([]domain.Role(nil), roles...), nil
}
