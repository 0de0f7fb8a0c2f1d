package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/token-auth/internal/domain"
)

// RowQuerier is the part of *pgxpool.Pool the repository uses.
type RowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UserRepository loads accounts and resolves their granted roles.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Resolve(ctx context.Context, email string) ([]domain.Role, error)
}

type userRepository struct {
	db RowQuerier
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(db RowQuerier) UserRepository {
	return &userRepository{db: db}
}

// Roles come back ordered by their grant position, ties broken by role name.
const selectUserByEmail = `
        SELECT u.id, u.email, u.password_hash, u.created_at,
               COALESCE(array_agg(r.role ORDER BY r.position, r.role)
                        FILTER (WHERE r.role IS NOT NULL), '{}')
        FROM users u
        LEFT JOIN user_roles r ON r.user_id = u.id
        WHERE u.email = $1
        GROUP BY u.id`

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	if r.db == nil {
		return nil, errors.New("user repository: postgres not configured")
	}

	var (
		user  domain.User
		roles []string
	)
	if err := r.db.QueryRow(ctx, selectUserByEmail, email).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.CreatedAt,
		&roles,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrIdentityNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	user.Roles = make([]domain.Role, 0, len(roles))
	for _, role := range roles {
		user.Roles = append(user.Roles, domain.Role(role))
	}
	return &user, nil
}

// Resolve implements auth.IdentityResolver.
func (r *userRepository) Resolve(ctx context.Context, email string) ([]domain.Role, error) {
	user, err := r.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return user.Roles, nil
}
