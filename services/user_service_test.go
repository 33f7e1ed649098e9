package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.pilab.hu/webstarter/domain"
	"go.pilab.hu/webstarter/internal/auth"
	"go.pilab.hu/webstarter/memdb"
	"go.pilab.hu/webstarter/services"
)

func newUserService() *services.UserService {
	// MinCost keeps bcrypt fast in tests.
	return services.NewUserService(memdb.NewUserRepository(), auth.NewBcryptPasswordHasher(4))
}

func TestRegisterAndAuthenticate(t *testing.T) {
	svc := newUserService()
	ctx := context.Background()

	user, err := svc.Register(ctx, "  Alice@Example.com ", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email, "email is normalized")
	assert.NotEqual(t, "s3cret-pass", user.PasswordHash)

	authed, err := svc.Authenticate(ctx, "alice@example.com", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, user.ID, authed.ID)
	assert.NotNil(t, authed.LastLoginAt)
}

func TestRegisterValidation(t *testing.T) {
	svc := newUserService()
	ctx := context.Background()

	_, err := svc.Register(ctx, "not-an-email", "s3cret-pass")
	assert.Error(t, err)

	_, err = svc.Register(ctx, "a@b.c", "short")
	assert.Error(t, err)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc := newUserService()
	ctx := context.Background()

	_, err := svc.Register(ctx, "bob@example.com", "s3cret-pass")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "BOB@example.com", "other-pass-123")
	assert.ErrorIs(t, err, domain.ErrDuplicateEmail)
}

func TestAuthenticateFailures(t *testing.T) {
	svc := newUserService()
	ctx := context.Background()

	_, err := svc.Register(ctx, "carol@example.com", "s3cret-pass")
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, "carol@example.com", "wrong-pass")
	assert.ErrorIs(t, err, services.ErrInvalidCredentials)

	// Unknown email yields the same error as a wrong password.
	_, err = svc.Authenticate(ctx, "nobody@example.com", "s3cret-pass")
	assert.ErrorIs(t, err, services.ErrInvalidCredentials)
}
