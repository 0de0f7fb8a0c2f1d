package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/token-auth/internal/domain"
)

var testEpoch = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type countingRecorder struct {
	mu        sync.Mutex
	issued    map[string]int
	validated map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{issued: map[string]int{}, validated: map[string]int{}}
}

func (r *countingRecorder) TokenIssued(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.issued[outcome]++
}

func (r *countingRecorder) TokenValidated(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validated[outcome]++
}

func newTestKey(t *testing.T, fill byte) SigningKey {
	t.Helper()
	key, err := NewSigningKey([]byte(strings.Repeat(string(fill), MinKeyBytes)))
	require.NoError(t, err)
	return key
}

func testResolver() ResolverFunc {
	identities := map[string][]domain.Role{
		"a@example.com":     {domain.RoleAdmin},
		"multi@example.com": {domain.RoleTherapist, domain.RoleAdmin, domain.RoleUser},
		"plain@example.com": {},
		"ldap@example.com":  {"ROLE_SUPERUSER_FROM_LDAP"},
		"mixed@example.com": {"X", domain.RoleAdmin},
	}
	return func(_ context.Context, subject string) ([]domain.Role, error) {
		roles, ok := identities[subject]
		if !ok {
			return nil, domain.ErrIdentityNotFound
		}
		return roles, nil
	}
}

func newTestService(t *testing.T, clock *fakeClock, opts ...Option) *TokenService {
	t.Helper()
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	svc, err := NewTokenService(newTestKey(t, 'k'), testResolver(), opts...)
	require.NoError(t, err)
	return svc
}

func TestNewTokenServiceRequiresKeyAndResolver(t *testing.T) {
	t.Parallel()

	_, err := NewTokenService(SigningKey{}, testResolver())
	assert.ErrorIs(t, err, ErrInvalidSigningKey)

	_, err = NewTokenService(newTestKey(t, 'k'), nil)
	assert.Error(t, err)
}

func TestIssueScenarioAdmin(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: testEpoch}
	svc := newTestService(t, clock)

	token, err := svc.Issue(context.Background(), "a@example.com")
	require.NoError(t, err)
	assert.Len(t, strings.Split(token, "."), 3)

	claims, ok := svc.Validate(token)
	require.True(t, ok)
	assert.Equal(t, "a@example.com", claims.Subject)
	assert.Equal(t, domain.RoleAdmin, claims.Role)
	assert.True(t, claims.IssuedAt.Equal(testEpoch))
	assert.True(t, claims.ExpiresAt.Equal(testEpoch.Add(TokenValidity)))
}

func TestIssueUnknownSubject(t *testing.T) {
	t.Parallel()

	rec := newCountingRecorder()
	svc := newTestService(t, &fakeClock{now: testEpoch}, WithMetrics(rec))

	token, err := svc.Issue(context.Background(), "ghost@example.com")
	assert.ErrorIs(t, err, domain.ErrIdentityNotFound)
	assert.Empty(t, token)

	_, err = svc.Issue(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrIdentityNotFound)

	assert.Equal(t, 2, rec.issued["not_found"])
}

func TestIssuePropagatesResolverErrorUnchanged(t *testing.T) {
	t.Parallel()

	boom := errors.New("lookup timed out")
	svc, err := NewTokenService(newTestKey(t, 'k'), ResolverFunc(func(context.Context, string) ([]domain.Role, error) {
		return nil, boom
	}))
	require.NoError(t, err)

	_, err = svc.Issue(context.Background(), "a@example.com")
	assert.Same(t, boom, err)
}

func TestIssuePrimaryRoleSelection(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, &fakeClock{now: testEpoch})

	cases := map[string]domain.Role{
		"a@example.com":     domain.RoleAdmin,
		"multi@example.com": domain.RoleTherapist,
		"plain@example.com": domain.RoleUser,
		"ldap@example.com":  domain.RoleUser,
		"mixed@example.com": domain.RoleAdmin,
	}
	for subject, want := range cases {
		session, err := svc.IssueSession(context.Background(), subject)
		require.NoError(t, err, subject)
		assert.Equal(t, want, session.Role, subject)

		claims, ok := svc.Validate(session.Token)
		require.True(t, ok, subject)
		assert.Equal(t, want, claims.Role, subject)
	}
}

func TestIssueLogsUnrecognisedRoles(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	svc := newTestService(t, &fakeClock{now: testEpoch}, WithLogger(zap.New(core)))

	session, err := svc.IssueSession(context.Background(), "ldap@example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, session.Role)

	entries := logs.FilterMessage("ignoring unrecognised roles").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "ldap@example.com", entries[0].ContextMap()["subject"])

	_, err = svc.IssueSession(context.Background(), "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, logs.Len())
}

func TestPrimaryRole(t *testing.T) {
	t.Parallel()

	assert.Equal(t, domain.RoleUser, PrimaryRole(nil))
	assert.Equal(t, domain.RoleUser, PrimaryRole([]domain.Role{}))
	assert.Equal(t, domain.RoleAdmin, PrimaryRole([]domain.Role{domain.RoleAdmin, domain.RoleUser}))
	assert.Equal(t, domain.RoleAdmin, PrimaryRole([]domain.Role{"", domain.RoleAdmin}))
	assert.Equal(t, domain.RoleUser, PrimaryRole([]domain.Role{"ROLE_SUPERUSER_FROM_LDAP"}))
	assert.Equal(t, domain.RoleAdmin, PrimaryRole([]domain.Role{"X", domain.RoleAdmin}))
	assert.Equal(t, domain.RoleTherapist, PrimaryRole([]domain.Role{"role_admin", domain.RoleTherapist}))
}

func TestTokenWireFormat(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, &fakeClock{now: testEpoch})
	token, err := svc.Issue(context.Background(), "a@example.com")
	require.NoError(t, err)

	// A standard parser with the same key must accept it.
	claims := jwt.MapClaims{}
	parsed, err := jwt.NewParser(jwt.WithTimeFunc(func() time.Time { return testEpoch })).
		ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
			return []byte(strings.Repeat("k", MinKeyBytes)), nil
		})
	require.NoError(t, err)

	assert.Equal(t, "HS256", parsed.Header["alg"])
	assert.Equal(t, "JWT", parsed.Header["typ"])
	assert.Equal(t, "a@example.com", claims["jti"])
	assert.Equal(t, "ROLE_ADMIN", claims["role"])
	assert.EqualValues(t, testEpoch.Unix(), claims["iat"])
	assert.EqualValues(t, testEpoch.Add(7200*time.Second).Unix(), claims["exp"])
}

func TestValidateRoundTrip(t *testing.T) {
	t.Parallel()

	rec := newCountingRecorder()
	svc, err := NewTokenService(newTestKey(t, 'k'), testResolver(), WithMetrics(rec))
	require.NoError(t, err)

	for _, subject := range []string{"a@example.com", "multi@example.com", "plain@example.com"} {
		token, err := svc.Issue(context.Background(), subject)
		require.NoError(t, err)

		claims, ok := svc.Validate(token)
		require.True(t, ok)
		assert.Equal(t, subject, claims.Subject)
	}
	assert.Equal(t, 3, rec.issued["success"])
	assert.Equal(t, 3, rec.validated["success"])
}

func TestValidateExpirationBoundary(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: testEpoch}
	svc := newTestService(t, clock)

	token, err := svc.Issue(context.Background(), "a@example.com")
	require.NoError(t, err)

	clock.Set(testEpoch.Add(TokenValidity - time.Second))
	_, ok := svc.Validate(token)
	assert.True(t, ok, "one second before expiry")

	clock.Set(testEpoch.Add(TokenValidity + time.Second))
	claims, ok := svc.Validate(token)
	assert.False(t, ok, "one second after expiry")
	assert.Nil(t, claims)
}

func TestValidateRejectsTokenFromTheFuture(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: testEpoch}
	svc := newTestService(t, clock)

	token, err := svc.Issue(context.Background(), "a@example.com")
	require.NoError(t, err)

	clock.Set(testEpoch.Add(-time.Minute))
	_, ok := svc.Validate(token)
	assert.False(t, ok)
}

func TestValidateTamperSensitivity(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, &fakeClock{now: testEpoch})
	token, err := svc.Issue(context.Background(), "a@example.com")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)

	for _, idx := range []int{1, 2} {
		decoded, err := base64.RawURLEncoding.DecodeString(parts[idx])
		require.NoError(t, err)

		for byteIdx := range decoded {
			for bit := 0; bit < 8; bit++ {
				mutated := append([]byte(nil), decoded...)
				mutated[byteIdx] ^= 1 << bit

				tampered := append([]string(nil), parts...)
				tampered[idx] = base64.RawURLEncoding.EncodeToString(mutated)

				_, ok := svc.Validate(strings.Join(tampered, "."))
				require.False(t, ok, "segment %d byte %d bit %d", idx, byteIdx, bit)
			}
		}
	}
}

func TestValidateRejectsNonCanonicalEncoding(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, &fakeClock{now: testEpoch})
	token, err := svc.Issue(context.Background(), "a@example.com")
	require.NoError(t, err)

	// The last character of a 32 byte signature carries 4 unused bits.
	sig := token[strings.LastIndex(token, ".")+1:]
	last := sig[len(sig)-1]
	alphabet := "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
	pos := strings.IndexByte(alphabet, last)
	require.GreaterOrEqual(t, pos, 0)

	altered := token[:len(token)-1] + string(alphabet[pos^1])
	_, ok := svc.Validate(altered)
	assert.False(t, ok)
}

func TestValidateKeyIndependence(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: testEpoch}
	k1, err := NewTokenService(newTestKey(t, '1'), testResolver(), WithClock(clock.Now))
	require.NoError(t, err)
	k2, err := NewTokenService(newTestKey(t, '2'), testResolver(), WithClock(clock.Now))
	require.NoError(t, err)

	token, err := k1.Issue(context.Background(), "a@example.com")
	require.NoError(t, err)

	_, ok := k1.Validate(token)
	assert.True(t, ok)
	_, ok = k2.Validate(token)
	assert.False(t, ok)
}

func TestIssueDeterminism(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: testEpoch}
	svc := newTestService(t, clock)

	first, err := svc.IssueSession(context.Background(), "multi@example.com")
	require.NoError(t, err)

	clock.Set(testEpoch.Add(90 * time.Second))
	second, err := svc.IssueSession(context.Background(), "multi@example.com")
	require.NoError(t, err)

	assert.NotEqual(t, first.Token, second.Token)
	assert.False(t, first.IssuedAt.Equal(second.IssuedAt))
	assert.False(t, first.ExpiresAt.Equal(second.ExpiresAt))
	assert.Equal(t, first.Role, second.Role)
}

func TestValidateRejectsForeignTokens(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: testEpoch}
	svc := newTestService(t, clock)
	secret := []byte(strings.Repeat("k", MinKeyBytes))

	sign := func(method jwt.SigningMethod, claims jwt.Claims, key interface{}) string {
		t.Helper()
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}
	valid := func() jwt.MapClaims {
		return jwt.MapClaims{
			"jti":  "a@example.com",
			"role": "ROLE_ADMIN",
			"iat":  testEpoch.Unix(),
			"exp":  testEpoch.Add(time.Hour).Unix(),
		}
	}
	without := func(field string) jwt.MapClaims {
		c := valid()
		delete(c, field)
		return c
	}

	// Sanity check: the hand-built baseline is accepted.
	_, ok := svc.Validate(sign(jwt.SigningMethodHS256, valid(), secret))
	require.True(t, ok)

	unknownRole := valid()
	unknownRole["role"] = "ROLE_ROOT"
	numericRole := valid()
	numericRole["role"] = 1

	inverted := valid()
	inverted["exp"] = testEpoch.Add(-time.Second).Unix()
	inverted["iat"] = testEpoch.Add(-time.Minute).Unix()

	cases := map[string]string{
		"empty":         "",
		"garbage":       "not-a-token",
		"two segments":  "a.b",
		"four segments": sign(jwt.SigningMethodHS256, valid(), secret) + ".x",
		"alg none":      sign(jwt.SigningMethodNone, valid(), jwt.UnsafeAllowNoneSignatureType),
		"hs512":         sign(jwt.SigningMethodHS512, valid(), secret),
		"missing jti":   sign(jwt.SigningMethodHS256, without("jti"), secret),
		"missing role":  sign(jwt.SigningMethodHS256, without("role"), secret),
		"missing exp":   sign(jwt.SigningMethodHS256, without("exp"), secret),
		"missing iat":   sign(jwt.SigningMethodHS256, without("iat"), secret),
		"expired":       sign(jwt.SigningMethodHS256, inverted, secret),
		"unknown role":  sign(jwt.SigningMethodHS256, unknownRole, secret),
		"numeric role":  sign(jwt.SigningMethodHS256, numericRole, secret),
	}
	for name, token := range cases {
		claims, ok := svc.Validate(token)
		assert.False(t, ok, name)
		assert.Nil(t, claims, name)
	}
}

func TestConcurrentIssueAndValidate(t *testing.T) {
	t.Parallel()

	svc, err := NewTokenService(newTestKey(t, 'k'), testResolver())
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := svc.Issue(context.Background(), "multi@example.com")
			if err != nil {
				errs <- err
				return
			}
			if claims, ok := svc.Validate(token); !ok || claims.Role != domain.RoleTherapist {
				errs <- errors.New("round trip failed")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
