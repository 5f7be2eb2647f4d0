package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memRepo struct {
	users  map[string]User
	nextID int64
}

func newMemRepo() *memRepo {
	return &memRepo{users: map[string]User{}}
}

func (m *memRepo) Insert(_ context.Context, _ string, u User) (int64, error) {
	if _, ok := m.users[u.Email]; ok {
		return 0, ErrDuplicateEmail
	}
	m.nextID++
	u.ID = m.nextID
	m.users[u.Email] = u
	return u.ID, nil
}

func (m *memRepo) GetByEmail(_ context.Context, _ string, email string) (User, error) {
	u, ok := m.users[email]
	if !ok {
		return User{}, shared.ErrNotFound
	}
	return u, nil
}

func (m *memRepo) Get(_ context.Context, _ string, id int64) (User, error) {
	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return User{}, shared.ErrNotFound
}

func tenantCtx() context.Context {
	return shared.ContextWithTenant(context.Background(), &shared.Tenant{Schema: "t_acme"})
}

func newTestService() (*Service, *memRepo) {
	repo := newMemRepo()
	return NewService(repo, []byte("test-secret"), time.Hour), repo
}

func TestRegisterAndLogin(t *testing.T) {
	svc, repo := newTestService()
	ctx := tenantCtx()

	u, err := svc.Register(ctx, RegisterInput{Email: "Jo@Example.com", Name: "Jo", Password: "correct-horse"})
	require.NoError(t, err)
	require.Equal(t, "jo@example.com", u.Email)
	require.Empty(t, u.PasswordHash)
	require.NotEmpty(t, repo.users["jo@example.com"].PasswordHash)

	token, got, err := svc.Login(ctx, "jo@example.com", "correct-horse")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.Equal(t, u.ID, got.ID)
	require.Empty(t, got.PasswordHash)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc, _ := newTestService()
	ctx := tenantCtx()

	_, err := svc.Register(ctx, RegisterInput{Email: "jo@example.com", Name: "Jo", Password: "correct-horse"})
	require.NoError(t, err)

	_, _, err = svc.Login(ctx, "jo@example.com", "wrong-horse")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.Login(ctx, "nobody@example.com", "correct-horse")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	svc, _ := newTestService()
	ctx := tenantCtx()

	_, err := svc.Register(ctx, RegisterInput{Email: "jo@example.com", Name: "Jo", Password: "correct-horse"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, RegisterInput{Email: "jo@example.com", Name: "Jo Again", Password: "another-pass"})
	require.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestVerifyBindsTokenToTenant(t *testing.T) {
	svc, _ := newTestService()
	ctx := tenantCtx()

	u, err := svc.Register(ctx, RegisterInput{Email: "jo@example.com", Name: "Jo", Password: "correct-horse"})
	require.NoError(t, err)

	token, _, err := svc.Login(ctx, "jo@example.com", "correct-horse")
	require.NoError(t, err)

	actor, err := svc.Verify(token, "t_acme")
	require.NoError(t, err)
	require.Equal(t, u.ID, actor.ID)
	require.Equal(t, "jo@example.com", actor.Email)

	// A token issued for one tenant must not work in another.
	_, err = svc.Verify(token, "t_other")
	require.ErrorIs(t, err, ErrTokenInvalid)

	_, err = svc.Verify("not-a-token", "t_acme")
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, []byte("test-secret"), -time.Minute)
	ctx := tenantCtx()

	_, err := svc.Register(ctx, RegisterInput{Email: "jo@example.com", Name: "Jo", Password: "correct-horse"})
	require.NoError(t, err)

	token, _, err := svc.Login(ctx, "jo@example.com", "correct-horse")
	require.NoError(t, err)

	_, err = svc.Verify(token, "t_acme")
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestMissingTenantContext(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Register(context.Background(), RegisterInput{Email: "jo@example.com", Name: "Jo", Password: "correct-horse"})
	require.ErrorIs(t, err, shared.ErrTenantMissing)

	_, _, err = svc.Login(context.Background(), "jo@example.com", "correct-horse")
	require.ErrorIs(t, err, shared.ErrTenantMissing)
}
