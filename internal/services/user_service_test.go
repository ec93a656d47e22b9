package services

import (
	"context"
	"strings"
	"testing"

	"github.com/foodloop/foodloop/internal/models"
	"github.com/foodloop/foodloop/pkg/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRegisterInput() RegisterInput {
	return RegisterInput{
		Username: "wanjiku",
		Email:    "wanjiku@example.com",
		Password: "correct horse battery staple",
		Role:     models.RoleDonor,
		Location: "westlands",
	}
}

func TestRegisterUser(t *testing.T) {
	store := newFakeUserStore()
	mailer := &recordingMailer{}
	svc := NewUserService(store, mailer, "http://localhost:8080")
	ctx := context.Background()

	created, err := svc.RegisterUser(ctx, validRegisterInput())
	require.NoError(t, err)
	assert.False(t, created.ID.IsZero())
	assert.False(t, created.IsVerified)
	assert.True(t, created.IsActive)
	assert.NotEmpty(t, created.VerifyToken)
	assert.NotEqual(t, "correct horse battery staple", created.HashedPassword)

	mails := mailer.all()
	require.Len(t, mails, 1)
	assert.Equal(t, created.Email, mails[0].To)
	assert.Contains(t, mails[0].Body, created.VerifyToken)
}

func TestRegisterUserValidation(t *testing.T) {
	svc := NewUserService(newFakeUserStore(), nil, "http://localhost:8080")
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*RegisterInput)
	}{
		{"missing username", func(in *RegisterInput) { in.Username = "" }},
		{"missing password", func(in *RegisterInput) { in.Password = "" }},
		{"bad email", func(in *RegisterInput) { in.Email = "not-an-email" }},
		{"unknown role", func(in *RegisterInput) { in.Role = "admin" }},
		{"unknown location", func(in *RegisterInput) { in.Location = "narnia" }},
		{"bad phone", func(in *RegisterInput) { in.PhoneNumber = "call me maybe" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := validRegisterInput()
			tc.mutate(&input)

			_, err := svc.RegisterUser(ctx, input)
			require.Error(t, err)
			assert.Equal(t, apperrors.KindInvalidInput, apperrors.KindOf(err))
		})
	}
}

func TestRegisterUserDuplicateEmail(t *testing.T) {
	svc := NewUserService(newFakeUserStore(), nil, "http://localhost:8080")
	ctx := context.Background()

	_, err := svc.RegisterUser(ctx, validRegisterInput())
	require.NoError(t, err)

	second := validRegisterInput()
	second.Username = "impostor"
	_, err = svc.RegisterUser(ctx, second)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
}

func TestVerifyEmailAndLogin(t *testing.T) {
	store := newFakeUserStore()
	svc := NewUserService(store, nil, "http://localhost:8080")
	ctx := context.Background()

	created, err := svc.RegisterUser(ctx, validRegisterInput())
	require.NoError(t, err)

	// Unverified accounts cannot log in.
	_, err = svc.AuthenticateUser(ctx, created.Email, "correct horse battery staple")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindForbidden, apperrors.KindOf(err))

	require.Error(t, svc.VerifyEmail(ctx, "bogus-token"))
	require.NoError(t, svc.VerifyEmail(ctx, created.VerifyToken))

	user, err := svc.AuthenticateUser(ctx, created.Email, "correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, user.IsVerified)
	assert.Empty(t, user.VerifyToken)

	// Wrong password and unknown email both come back as the same kind.
	_, err = svc.AuthenticateUser(ctx, created.Email, "wrong")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindForbidden, apperrors.KindOf(err))

	_, err = svc.AuthenticateUser(ctx, "nobody@example.com", "whatever")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindForbidden, apperrors.KindOf(err))
}

func TestAuthenticateDeactivatedUser(t *testing.T) {
	store := newFakeUserStore()
	svc := NewUserService(store, nil, "http://localhost:8080")
	ctx := context.Background()

	created, err := svc.RegisterUser(ctx, validRegisterInput())
	require.NoError(t, err)
	require.NoError(t, svc.VerifyEmail(ctx, created.VerifyToken))

	store.mu.Lock()
	store.users[created.ID].IsActive = false
	store.mu.Unlock()

	_, err = svc.AuthenticateUser(ctx, created.Email, "correct horse battery staple")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindForbidden, apperrors.KindOf(err))
}

func TestUpdateProfile(t *testing.T) {
	store := newFakeUserStore()
	svc := NewUserService(store, nil, "http://localhost:8080")
	ctx := context.Background()

	created, err := svc.RegisterUser(ctx, validRegisterInput())
	require.NoError(t, err)

	updated, err := svc.UpdateProfile(ctx, created.ID, map[string]interface{}{
		"bio":      "I cook too much",
		"location": "karen",
		"role":     "admin", // not whitelisted, silently dropped
	})
	require.NoError(t, err)
	assert.Equal(t, "I cook too much", updated.Bio)
	assert.Equal(t, "karen", updated.Location)
	assert.Equal(t, models.RoleDonor, updated.Role)

	_, err = svc.UpdateProfile(ctx, created.ID, map[string]interface{}{"role": "admin"})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindInvalidInput, apperrors.KindOf(err))

	_, err = svc.UpdateProfile(ctx, created.ID, map[string]interface{}{"location": "narnia"})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindInvalidInput, apperrors.KindOf(err))

	badPhone := strings.Repeat("+", 20)
	_, err = svc.UpdateProfile(ctx, created.ID, map[string]interface{}{"phone_number": badPhone})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindInvalidInput, apperrors.KindOf(err))
}
