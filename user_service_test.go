package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/authomator/authomator-api"
)

const (
	testEmail    = "stefan@authomator.io"
	testPassword = "super-secret-1"
)

func TestRegister(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()

	t.Run("creates the user, the default context and signs in", func(t *testing.T) {
		reply, err := stack.users.Register(ctx, " Stefan@Authomator.IO ", testPassword)
		require.NoError(t, err)
		require.NotEmpty(t, reply.AccessToken)
		require.NotEmpty(t, reply.IdentityToken)
		require.NotEmpty(t, reply.RefreshToken)

		user, err := stack.repo.Users().GetByEmail(ctx, testEmail)
		require.NoError(t, err)
		assert.Equal(t, testEmail, user.Email)
		assert.NotEqual(t, testPassword, user.PasswordHash)

		record, err := stack.contexts.GetDefaultContext(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, testEmail, record.Name)
		assert.Equal(t, user.ID, record.OwnerID)
		assert.True(t, record.HasMember(user.ID.String()))
		assert.Contains(t, user.ContextIDs, record.ID.String())

		claims, err := stack.tokens.ValidateAccessToken(reply.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, user.ID.String(), claims.Subject)
		assert.Equal(t, record.ID.String(), claims.ContextID)
	})

	t.Run("registering the same email again conflicts", func(t *testing.T) {
		_, err := stack.users.Register(ctx, testEmail, "another-password")
		assert.ErrorIs(t, err, auth.ErrUserAlreadyExists)
	})

	t.Run("assigns configured default roles", func(t *testing.T) {
		roled := newTestStack(t, func(c *auth.Config) {
			c.DefaultRoles = []string{"member"}
		})

		reply, err := roled.users.Register(ctx, "roles@authomator.io", testPassword)
		require.NoError(t, err)

		claims, err := roled.tokens.ValidateAccessToken(reply.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, []string{"member"}, claims.Roles)
	})
}

func TestRegisterDisabled(t *testing.T) {
	stack := newTestStack(t, func(c *auth.Config) {
		c.RegistrationEnabled = false
	})

	_, err := stack.users.Register(context.Background(), testEmail, testPassword)
	assert.ErrorIs(t, err, auth.ErrRegistrationDisabled)
}

func TestSignIn(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()

	_, err := stack.users.Register(ctx, testEmail, testPassword)
	require.NoError(t, err)

	t.Run("valid credentials yield a triad", func(t *testing.T) {
		reply, err := stack.users.SignIn(ctx, testEmail, testPassword)
		require.NoError(t, err)
		assert.NotEmpty(t, reply.AccessToken)
		assert.NotEmpty(t, reply.IdentityToken)
		assert.NotEmpty(t, reply.RefreshToken)
	})

	t.Run("email lookup is normalized", func(t *testing.T) {
		_, err := stack.users.SignIn(ctx, "  STEFAN@AUTHOMATOR.IO ", testPassword)
		assert.NoError(t, err)
	})

	t.Run("wrong password fails", func(t *testing.T) {
		_, err := stack.users.SignIn(ctx, testEmail, "wrong-password")
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})

	t.Run("unknown email fails the same way", func(t *testing.T) {
		_, err := stack.users.SignIn(ctx, "nobody@authomator.io", testPassword)
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})
}

func TestRefresh(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()

	reply, err := stack.users.Register(ctx, testEmail, testPassword)
	require.NoError(t, err)

	t.Run("exchanges a refresh token for a new triad", func(t *testing.T) {
		next, err := stack.users.Refresh(ctx, reply.RefreshToken)
		require.NoError(t, err)
		assert.NotEmpty(t, next.AccessToken)
		assert.NotEmpty(t, next.RefreshToken)

		claims, err := stack.tokens.ValidateAccessToken(next.AccessToken)
		require.NoError(t, err)

		user, err := stack.repo.Users().GetByEmail(ctx, testEmail)
		require.NoError(t, err)
		assert.Equal(t, user.ID.String(), claims.Subject)
	})

	t.Run("garbage is rejected", func(t *testing.T) {
		_, err := stack.users.Refresh(ctx, "not-a-token")
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
	})

	t.Run("an access token is not a refresh token", func(t *testing.T) {
		_, err := stack.users.Refresh(ctx, reply.AccessToken)
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
	})

	t.Run("removed membership revokes the refresh token", func(t *testing.T) {
		user, err := stack.repo.Users().GetByEmail(ctx, testEmail)
		require.NoError(t, err)

		record, err := stack.contexts.GetDefaultContext(ctx, user)
		require.NoError(t, err)

		record.RemoveMember(user.ID.String())
		_, err = stack.repo.Contexts().Save(ctx, record)
		require.NoError(t, err)

		_, err = stack.users.Refresh(ctx, reply.RefreshToken)
		assert.ErrorIs(t, err, auth.ErrInvalidContext)

		// restoring the membership makes the same token usable again
		record.AddMember(user.ID.String())
		_, err = stack.repo.Contexts().Save(ctx, record)
		require.NoError(t, err)

		_, err = stack.users.Refresh(ctx, reply.RefreshToken)
		assert.NoError(t, err)
	})
}

func TestChangePassword(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()

	reply, err := stack.users.Register(ctx, testEmail, testPassword)
	require.NoError(t, err)

	claims, err := stack.tokens.ValidateAccessToken(reply.AccessToken)
	require.NoError(t, err)

	t.Run("wrong current password is rejected", func(t *testing.T) {
		_, err := stack.users.ChangePassword(ctx, claims, "wrong-password", "new-password-1")
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})

	t.Run("rotates the password and signs in again", func(t *testing.T) {
		next, err := stack.users.ChangePassword(ctx, claims, testPassword, "new-password-1")
		require.NoError(t, err)
		assert.NotEmpty(t, next.AccessToken)

		_, err = stack.users.SignIn(ctx, testEmail, "new-password-1")
		assert.NoError(t, err)

		_, err = stack.users.SignIn(ctx, testEmail, testPassword)
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})
}

func TestUpdatePassword(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()

	reply, err := stack.users.Register(ctx, testEmail, testPassword)
	require.NoError(t, err)

	claims, err := stack.tokens.ValidateAccessToken(reply.AccessToken)
	require.NoError(t, err)

	t.Run("re-checks the context membership", func(t *testing.T) {
		user, err := stack.repo.Users().GetByEmail(ctx, testEmail)
		require.NoError(t, err)

		record, err := stack.contexts.GetContext(ctx, claims.ContextID)
		require.NoError(t, err)

		record.RemoveMember(user.ID.String())
		_, err = stack.repo.Contexts().Save(ctx, record)
		require.NoError(t, err)

		_, err = stack.users.UpdatePassword(ctx, claims, testPassword, "new-password-2")
		assert.ErrorIs(t, err, auth.ErrInvalidContext)

		record.AddMember(user.ID.String())
		_, err = stack.repo.Contexts().Save(ctx, record)
		require.NoError(t, err)
	})

	t.Run("wrong current password is rejected", func(t *testing.T) {
		_, err := stack.users.UpdatePassword(ctx, claims, "wrong-password", "new-password-2")
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})

	t.Run("rotates the password", func(t *testing.T) {
		next, err := stack.users.UpdatePassword(ctx, claims, testPassword, "new-password-2")
		require.NoError(t, err)
		assert.NotEmpty(t, next.RefreshToken)

		_, err = stack.users.SignIn(ctx, testEmail, "new-password-2")
		assert.NoError(t, err)
	})
}

func TestResetPassword(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()

	_, err := stack.users.Register(ctx, testEmail, testPassword)
	require.NoError(t, err)

	user, err := stack.repo.Users().GetByEmail(ctx, testEmail)
	require.NoError(t, err)

	t.Run("a forgot token authorizes the reset", func(t *testing.T) {
		token, err := stack.tokens.ForgotPasswordToken(user)
		require.NoError(t, err)

		reply, err := stack.users.ResetPassword(ctx, token, "recovered-pass-1")
		require.NoError(t, err)
		assert.NotEmpty(t, reply.AccessToken)

		_, err = stack.users.SignIn(ctx, testEmail, "recovered-pass-1")
		assert.NoError(t, err)

		_, err = stack.users.SignIn(ctx, testEmail, testPassword)
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})

	t.Run("a refresh token does not authorize a reset", func(t *testing.T) {
		reply, err := stack.users.SignIn(ctx, testEmail, "recovered-pass-1")
		require.NoError(t, err)

		_, err = stack.users.ResetPassword(ctx, reply.RefreshToken, "sneaky-pass-1")
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
	})
}

func TestConfirmEmail(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()

	reply, err := stack.users.Register(ctx, testEmail, testPassword)
	require.NoError(t, err)

	user, err := stack.repo.Users().GetByEmail(ctx, testEmail)
	require.NoError(t, err)
	require.False(t, user.EmailVerified)

	t.Run("pre-confirmation access tokens carry ev false", func(t *testing.T) {
		claims, err := stack.tokens.ValidateAccessToken(reply.AccessToken)
		require.NoError(t, err)
		assert.False(t, claims.EmailVerified)
	})

	t.Run("confirms and signs in with ev true", func(t *testing.T) {
		token, err := stack.tokens.ConfirmEmailToken(user)
		require.NoError(t, err)

		next, err := stack.users.ConfirmEmail(ctx, token)
		require.NoError(t, err)

		claims, err := stack.tokens.ValidateAccessToken(next.AccessToken)
		require.NoError(t, err)
		assert.True(t, claims.EmailVerified)

		reloaded, err := stack.repo.Users().GetByEmail(ctx, testEmail)
		require.NoError(t, err)
		assert.True(t, reloaded.EmailVerified)
	})

	t.Run("confirming twice is a conflict", func(t *testing.T) {
		token, err := stack.tokens.ConfirmEmailToken(user)
		require.NoError(t, err)

		_, err = stack.users.ConfirmEmail(ctx, token)
		assert.ErrorIs(t, err, auth.ErrEmailAlreadyConfirmed)
	})

	t.Run("disabled feature rejects the flow", func(t *testing.T) {
		disabled := newTestStack(t, func(c *auth.Config) {
			c.EmailConfirmationEnabled = false
		})

		_, err := disabled.users.ConfirmEmail(ctx, "whatever")
		assert.ErrorIs(t, err, auth.ErrEmailConfirmationDisabled)
	})
}

func TestGetUserForEmailConfirmation(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()

	_, err := stack.users.Register(ctx, testEmail, testPassword)
	require.NoError(t, err)

	user, err := stack.repo.Users().GetByEmail(ctx, testEmail)
	require.NoError(t, err)

	t.Run("resolves an unverified user", func(t *testing.T) {
		found, err := stack.users.GetUserForEmailConfirmation(ctx, user.ID.String())
		require.NoError(t, err)
		assert.Equal(t, user.ID, found.ID)
	})

	t.Run("unknown subject", func(t *testing.T) {
		_, err := stack.users.GetUserForEmailConfirmation(ctx, "9b8d2af1-0000-0000-0000-000000000000")
		assert.ErrorIs(t, err, auth.ErrUserNotFound)
	})

	t.Run("already verified", func(t *testing.T) {
		require.NoError(t, stack.repo.Users().ConfirmEmail(ctx, user.ID))

		_, err := stack.users.GetUserForEmailConfirmation(ctx, user.ID.String())
		assert.ErrorIs(t, err, auth.ErrEmailAlreadyConfirmed)
	})

	t.Run("disabled feature", func(t *testing.T) {
		disabled := newTestStack(t, func(c *auth.Config) {
			c.EmailConfirmationEnabled = false
		})

		_, err := disabled.users.GetUserForEmailConfirmation(ctx, user.ID.String())
		assert.ErrorIs(t, err, auth.ErrEmailConfirmationDisabled)
	})
}

func TestFindUserByEmail(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()

	_, err := stack.users.Register(ctx, testEmail, testPassword)
	require.NoError(t, err)

	user, err := stack.users.FindUserByEmail(ctx, testEmail)
	require.NoError(t, err)
	assert.Equal(t, testEmail, user.Email)

	_, err = stack.users.FindUserByEmail(ctx, "nobody@authomator.io")
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}
