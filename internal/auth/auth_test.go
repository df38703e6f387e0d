package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"questlog/internal/store/memory"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	tokens, err := NewTokens("test-secret", time.Hour)
	require.NoError(t, err)
	return NewService(memory.New(), tokens, nil)
}

func TestSignupAndLogin(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	id, err := svc.Signup(ctx, SignupInput{Email: "DM@Example.com ", Password: "hunter2", Name: "Dee"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	t.Run("duplicate email", func(t *testing.T) {
		_, err := svc.Signup(ctx, SignupInput{Email: "dm@example.com", Password: "x", Name: "Other"})
		assert.ErrorIs(t, err, ErrEmailTaken)
	})

	t.Run("missing fields", func(t *testing.T) {
		_, err := svc.Signup(ctx, SignupInput{Email: "a@b.c", Password: "x"})
		assert.ErrorIs(t, err, ErrMissingFields)
	})

	t.Run("login", func(t *testing.T) {
		session, err := svc.Login(ctx, "dm@example.com", "hunter2")
		require.NoError(t, err)
		assert.Equal(t, id, session.User.ID)
		assert.Equal(t, "Dee", session.User.Name)

		claims, err := svc.Verify(session.Token)
		require.NoError(t, err)
		assert.Equal(t, session.User, claims)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.Login(ctx, "dm@example.com", "hunter3")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown email", func(t *testing.T) {
		_, err := svc.Login(ctx, "nobody@example.com", "hunter2")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)
	assert.True(t, CheckPassword(hash, "correct horse"))
	assert.False(t, CheckPassword(hash, "battery staple"))
}

func TestTokens(t *testing.T) {
	tokens, err := NewTokens("secret-a", time.Hour)
	require.NoError(t, err)

	raw, err := tokens.Issue(Claims{ID: "u1", Email: "a@b.c", Name: "A"})
	require.NoError(t, err)

	claims, err := tokens.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.ID)

	t.Run("wrong secret", func(t *testing.T) {
		other, err := NewTokens("secret-b", time.Hour)
		require.NoError(t, err)
		_, err = other.Verify(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		later, err := NewTokens("secret-a", time.Hour)
		require.NoError(t, err)
		later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err = later.Verify(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := tokens.Verify("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("configuration", func(t *testing.T) {
		_, err := NewTokens("", time.Hour)
		assert.Error(t, err)
		_, err = NewTokens("x", 0)
		assert.Error(t, err)
	})
}
