// Command issuetoken prints a signed token for one subject using the service's key
// and identity store. With -role flags it skips the store and uses the given roles.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/token-auth/internal/auth"
	"github.com/spec-kit/token-auth/internal/config"
	"github.com/spec-kit/token-auth/internal/domain"
	"github.com/spec-kit/token-auth/internal/observability"
	"github.com/spec-kit/token-auth/internal/persistence"
	"github.com/spec-kit/token-auth/internal/repository"
)

type roleList []domain.Role

func (r *roleList) String() string {
	parts := make([]string, len(*r))
	for i, role := range *r {
		parts[i] = role.String()
	}
	return strings.Join(parts, ",")
}

func (r *roleList) Set(v string) error {
	*r = append(*r, domain.Role(v))
	return nil
}

func main() {
	var roles roleList
	subject := flag.String("subject", "", "subject (email) to issue the token for")
	flag.Var(&roles, "role", "role to embed instead of looking the subject up; repeatable, first wins")
	flag.Parse()

	if *subject == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := observability.NewLogger(cfg.App, cfg.Logger)
	defer logger.Sync() //nolint:errcheck

	ctx := context.Background()

	var resolver auth.IdentityResolver
	if len(roles) > 0 {
		resolver = repository.NewStaticIdentityResolver(map[string][]domain.Role{*subject: roles})
	} else {
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			logger.Fatal("failed to connect postgres", zap.Error(err))
		}
		defer pg.Close()
		if pg.PoolHandle() == nil {
			logger.Fatal("POSTGRES_DSN or -role is required")
		}
		resolver = repository.NewUserRepository(pg.PoolHandle())
	}

	tokens, err := auth.NewTokenService(cfg.Auth.SigningKey, resolver, auth.WithLogger(logger))
	if err != nil {
		logger.Fatal("failed to init token service", zap.Error(err))
	}

	session, err := tokens.IssueSession(ctx, *subject)
	if err != nil {
		logger.Fatal("cannot issue token", zap.String("subject", *subject), zap.Error(err))
	}

	fmt.Println(session.Token)
	logger.Info("token issued",
		zap.String("subject", session.Subject),
		zap.String("role", session.Role.String()),
		zap.Time("expires_at", session.ExpiresAt),
	)
}
