package users

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memtensor/usergrid/pkg/config"
	apperrors "github.com/memtensor/usergrid/pkg/errors"
	"github.com/memtensor/usergrid/pkg/tokens"
)

func TestNewManager_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.SecretKey = "short"

	_, err := NewManager(setupTestDB(t), cfg)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConfigInvalid))
}

func TestManager_CreateUser(t *testing.T) {
	ctx := context.Background()
	m, _ := setupTestManager(t)

	user, err := m.CreateUser(ctx, CreateUserParams{
		Username: "alice",
		Password: "password123",
		FullName: "Alice Liddell",
		Email:    StringPtr("Alice@Example.COM"),
		Phone:    StringPtr(""),
	})
	require.NoError(t, err)
	assert.NotZero(t, user.ID)
	assert.True(t, user.IsActive)
	assert.False(t, user.IsAdmin)
	assert.Equal(t, "alice@example.com", user.EmailAddress())
	assert.Nil(t, user.Phone)
	assert.True(t, m.Auth().VerifyPassword("password123", user.Password))

	t.Run("duplicate username", func(t *testing.T) {
		_, err := m.CreateUser(ctx, CreateUserParams{Username: "alice", Password: "password123"})
		require.Error(t, err)
		appErr := apperrors.GetAppError(err)
		require.NotNil(t, appErr)
		assert.Equal(t, apperrors.ErrCodeAlreadyExists, appErr.Code)
		assert.Equal(t, 400, appErr.HTTPStatus())
	})

	t.Run("duplicate email ignores case", func(t *testing.T) {
		_, err := m.CreateUser(ctx, CreateUserParams{
			Username: "alice2",
			Password: "password123",
			Email:    StringPtr("ALICE@example.com"),
		})
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeAlreadyExists))
	})

	t.Run("users without contact details", func(t *testing.T) {
		_, err := m.CreateUser(ctx, CreateUserParams{Username: "nobody1", Password: "password123"})
		require.NoError(t, err)
		_, err = m.CreateUser(ctx, CreateUserParams{Username: "nobody2", Password: "password123"})
		require.NoError(t, err)
	})

	t.Run("inactive", func(t *testing.T) {
		inactive := false
		u, err := m.CreateUser(ctx, CreateUserParams{Username: "dormant", Password: "password123", IsActive: &inactive})
		require.NoError(t, err)

		stored, err := m.GetUser(ctx, u.ID)
		require.NoError(t, err)
		assert.False(t, stored.IsActive)
	})

	t.Run("validation", func(t *testing.T) {
		_, err := m.CreateUser(ctx, CreateUserParams{Username: "ab", Password: "", Email: StringPtr("not-an-email")})
		require.Error(t, err)

		var list *apperrors.ErrorList
		require.True(t, errors.As(err, &list))
		assert.Len(t, list.Errors, 3)
		for _, e := range list.Errors {
			assert.Equal(t, 400, e.HTTPStatus())
		}
	})

	t.Run("weak password", func(t *testing.T) {
		_, err := m.CreateUser(ctx, CreateUserParams{Username: "weakling", Password: "short"})
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))
	})
}

func TestManager_GetAndDeleteUser(t *testing.T) {
	ctx := context.Background()
	m, _ := setupTestManager(t)
	user := createTestUser(t, m, "bob", "bob@example.com")

	got, err := m.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob", got.Username)

	deleted, err := m.DeleteUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, deleted.ID)

	_, err = m.GetUser(ctx, user.ID)
	require.Error(t, err)
	appErr := apperrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, MsgUserNotFound, appErr.Message)
	assert.Equal(t, 404, appErr.HTTPStatus())

	_, err = m.DeleteUser(ctx, user.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))
}

func TestManager_UpdateUser(t *testing.T) {
	ctx := context.Background()
	m, _ := setupTestManager(t)
	user := createTestUser(t, m, "carol", "carol@example.com")
	createTestUser(t, m, "dave", "dave@example.com")

	oldHash := user.Password
	admin := true
	updated, err := m.UpdateUser(ctx, user.ID, UpdateUserParams{
		FullName: StringPtr("Carol Danvers"),
		Password: StringPtr("newpassword456"),
		Phone:    StringPtr(" 555-0100 "),
		IsAdmin:  &admin,
	})
	require.NoError(t, err)
	assert.Equal(t, "Carol Danvers", updated.FullName)
	assert.Equal(t, "555-0100", updated.PhoneNumber())
	assert.True(t, updated.IsAdmin)
	assert.NotEqual(t, oldHash, updated.Password)
	assert.True(t, m.Auth().VerifyPassword("newpassword456", updated.Password))

	t.Run("clear email", func(t *testing.T) {
		empty := ""
		updated, err := m.UpdateUser(ctx, user.ID, UpdateUserParams{Email: &empty})
		require.NoError(t, err)
		assert.Nil(t, updated.Email)
	})

	t.Run("taken username", func(t *testing.T) {
		_, err := m.UpdateUser(ctx, user.ID, UpdateUserParams{Username: StringPtr("dave")})
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeAlreadyExists))
	})

	t.Run("missing user", func(t *testing.T) {
		_, err := m.UpdateUser(ctx, 4242, UpdateUserParams{FullName: StringPtr("x")})
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))
	})

	t.Run("empty update", func(t *testing.T) {
		same, err := m.UpdateUser(ctx, user.ID, UpdateUserParams{})
		require.NoError(t, err)
		assert.Equal(t, "Carol Danvers", same.FullName)
	})
}

func TestManager_UpdateMe(t *testing.T) {
	ctx := context.Background()
	m, _ := setupTestManager(t)
	user := createTestUser(t, m, "erin", "erin@example.com")

	updated, err := m.UpdateMe(ctx, user, UpdateMeParams{
		Email:    StringPtr("Erin.New@Example.com"),
		FullName: StringPtr("Erin"),
	})
	require.NoError(t, err)
	assert.Equal(t, "erin.new@example.com", updated.EmailAddress())
	assert.Equal(t, "Erin", updated.FullName)

	token, err := m.Authenticate(ctx, LoginCredentials{Username: "erin", Password: "password123"})
	require.NoError(t, err)
	assert.NotEmpty(t, token.AccessToken)
}

func TestManager_Authenticate(t *testing.T) {
	ctx := context.Background()
	m, _ := setupTestManager(t)
	createTestUser(t, m, "frank", "frank@example.com")

	token, err := m.Authenticate(ctx, LoginCredentials{Username: "frank", Password: "password123"})
	require.NoError(t, err)

	current, err := m.CurrentUser(ctx, token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "frank", current.Username)

	failures := []LoginCredentials{
		{Username: "frank", Password: "wrong-password"},
		{Username: "nobody", Password: "password123"},
	}
	for _, creds := range failures {
		_, err := m.Authenticate(ctx, creds)
		require.Error(t, err)
		appErr := apperrors.GetAppError(err)
		require.NotNil(t, appErr)
		assert.Equal(t, MsgIncorrectCredentials, appErr.Message)
		assert.Equal(t, 400, appErr.HTTPStatus())
	}

	t.Run("missing fields", func(t *testing.T) {
		_, err := m.Authenticate(ctx, LoginCredentials{})
		var list *apperrors.ErrorList
		require.True(t, errors.As(err, &list))
		assert.Len(t, list.Errors, 2)
	})
}

func TestManager_InactiveUser(t *testing.T) {
	ctx := context.Background()
	m, _ := setupTestManager(t)
	user := createTestUser(t, m, "grace", "grace@example.com")

	token, err := m.Authenticate(ctx, LoginCredentials{Username: "grace", Password: "password123"})
	require.NoError(t, err)

	inactive := false
	_, err = m.UpdateUser(ctx, user.ID, UpdateUserParams{IsActive: &inactive})
	require.NoError(t, err)

	_, err = m.CurrentUser(ctx, token.AccessToken)
	require.Error(t, err)
	assert.Equal(t, "Inactive user", apperrors.GetAppError(err).Message)
	assert.Equal(t, 400, apperrors.GetAppError(err).HTTPStatus())

	_, err = m.Authenticate(ctx, LoginCredentials{Username: "grace", Password: "password123"})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInactive))
}

func TestManager_RequireSuperuser(t *testing.T) {
	m, _ := setupTestManager(t)

	err := m.RequireSuperuser(&User{IsAdmin: false})
	require.Error(t, err)
	appErr := apperrors.GetAppError(err)
	assert.Equal(t, "The user doesn't have enough privileges", appErr.Message)
	assert.Equal(t, 400, appErr.HTTPStatus())

	assert.NoError(t, m.RequireSuperuser(&User{IsAdmin: true}))
	assert.Error(t, m.RequireSuperuser(nil))
}

var resetTokenPattern = regexp.MustCompile(`token=([A-Za-z0-9_\-.]+)`)

func resetTokenFrom(t *testing.T, mailer *capturingMailer) string {
	t.Helper()
	match := resetTokenPattern.FindStringSubmatch(mailer.last().HTML)
	require.Len(t, match, 2)
	return match[1]
}

func TestManager_PasswordRecovery(t *testing.T) {
	ctx := context.Background()
	m, mailer := setupTestManager(t)
	createTestUser(t, m, "heidi", "heidi@example.com")

	require.NoError(t, m.RecoverPassword(ctx, "Heidi@Example.com"))
	msg := mailer.last()
	assert.Equal(t, []string{"heidi@example.com"}, msg.To)
	assert.Equal(t, "noreply@example.com", msg.From)
	assert.Equal(t, "Usergrid - Password recovery for user heidi", msg.Subject)
	assert.Contains(t, msg.HTML, "https://app.example.com/reset-password?token=")
	assert.Contains(t, msg.Text, "48 hours")

	token := resetTokenFrom(t, mailer)

	t.Run("weak new password keeps the token", func(t *testing.T) {
		err := m.ResetPassword(ctx, ResetPasswordParams{Token: token, NewPassword: "short"})
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))
	})

	require.NoError(t, m.ResetPassword(ctx, ResetPasswordParams{Token: token, NewPassword: "brandnew789"}))

	_, err := m.Authenticate(ctx, LoginCredentials{Username: "heidi", Password: "password123"})
	assert.Error(t, err)
	_, err = m.Authenticate(ctx, LoginCredentials{Username: "heidi", Password: "brandnew789"})
	assert.NoError(t, err)

	t.Run("token reuse", func(t *testing.T) {
		err := m.ResetPassword(ctx, ResetPasswordParams{Token: token, NewPassword: "another1234"})
		require.Error(t, err)
		assert.Equal(t, "Invalid token", apperrors.GetAppError(err).Message)
	})

	t.Run("forged token", func(t *testing.T) {
		err := m.ResetPassword(ctx, ResetPasswordParams{Token: "abc.def.ghi", NewPassword: "another1234"})
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidToken))
	})

	t.Run("unknown email", func(t *testing.T) {
		err := m.RecoverPassword(ctx, "ghost@example.com")
		require.Error(t, err)
		appErr := apperrors.GetAppError(err)
		assert.Equal(t, MsgUnknownUser, appErr.Message)
		assert.Equal(t, 404, appErr.HTTPStatus())
	})

	t.Run("mail failure", func(t *testing.T) {
		mailer.err = apperrors.NewMailError("smtp down", errors.New("connection refused"))
		defer func() { mailer.err = nil }()

		err := m.RecoverPassword(ctx, "heidi@example.com")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeMailFailed))
	})
}

func TestManager_ResetPasswordInactive(t *testing.T) {
	ctx := context.Background()
	m, mailer := setupTestManager(t)
	user := createTestUser(t, m, "ivan", "ivan@example.com")

	require.NoError(t, m.RecoverPassword(ctx, "ivan@example.com"))
	token := resetTokenFrom(t, mailer)

	inactive := false
	_, err := m.UpdateUser(ctx, user.ID, UpdateUserParams{IsActive: &inactive})
	require.NoError(t, err)

	err = m.ResetPassword(ctx, ResetPasswordParams{Token: token, NewPassword: "brandnew789"})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInactive))
}

func TestManager_RedisTokenStore(t *testing.T) {
	ctx := context.Background()
	srv := miniredis.RunT(t)
	store := tokens.NewRedisStore(redis.NewClient(&redis.Options{Addr: srv.Addr()}))

	m, mailer := setupTestManager(t, WithTokenStore(store))
	createTestUser(t, m, "judy", "judy@example.com")

	require.NoError(t, m.RecoverPassword(ctx, "judy@example.com"))
	token := resetTokenFrom(t, mailer)

	require.NoError(t, m.ResetPassword(ctx, ResetPasswordParams{Token: token, NewPassword: "brandnew789"}))
	assert.Len(t, srv.Keys(), 1)

	err := m.ResetPassword(ctx, ResetPasswordParams{Token: token, NewPassword: "another1234"})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidToken))

	require.NoError(t, m.HealthCheck(ctx))
	srv.Close()
	assert.Error(t, m.HealthCheck(ctx))
}

func TestManager_SeedSuperuser(t *testing.T) {
	ctx := context.Background()
	m, _ := setupTestManager(t)
	su := config.SuperuserConfig{
		Username: "admin",
		Email:    "admin@example.com",
		Password: "changethis",
		FullName: "Administrator",
	}

	user, created, err := m.SeedSuperuser(ctx, su)
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, user.IsAdmin)

	again, created, err := m.SeedSuperuser(ctx, su)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, user.ID, again.ID)

	n, err := m.Repository().CountAdmins(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestManager_HealthCheck(t *testing.T) {
	m, _ := setupTestManager(t)
	assert.NoError(t, m.HealthCheck(context.Background()))
}
