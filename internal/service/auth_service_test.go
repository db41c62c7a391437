package service

import (
	"context"
	"testing"
	"time"

	"supplychain-ledger/internal/model"
	"supplychain-ledger/internal/repository"
	"supplychain-ledger/internal/testdb"
	"supplychain-ledger/pkg/jwt"
	"supplychain-ledger/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuth(t *testing.T) (AuthService, *jwt.Manager) {
	t.Helper()
	db := testdb.New(t)
	tokens := jwt.NewManager("test-secret", 30*time.Minute, "ledger-test")
	return NewAuthService(repository.NewUserRepo(db), tokens, logger.Nop()), tokens
}

func TestRegisterLoginResolve(t *testing.T) {
	auth, _ := newAuth(t)
	ctx := context.Background()

	user, err := auth.Register(ctx, RegisterInput{Name: "Farm", Email: " Farm@Example.com ", Password: "correct-horse", Role: "Producer"})
	require.NoError(t, err)
	assert.Equal(t, "farm@example.com", user.Email)
	assert.Equal(t, model.RoleProducer, user.Role)

	login, err := auth.Login(ctx, "farm@example.com", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "bearer", login.TokenType)
	assert.Equal(t, 1800, login.ExpiresIn)

	principal, err := auth.Resolve(ctx, login.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, model.Principal{Identity: "farm@example.com", Role: model.RoleProducer}, principal)
}

func TestRegisterRejects(t *testing.T) {
	auth, _ := newAuth(t)
	ctx := context.Background()

	_, err := auth.Register(ctx, RegisterInput{Name: "A", Email: "a@example.com", Password: "long-enough", Role: "admin"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = auth.Register(ctx, RegisterInput{Name: "A", Email: "not-an-email", Password: "long-enough", Role: "consumer"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = auth.Register(ctx, RegisterInput{Name: "A", Email: "a@example.com", Password: "short", Role: "consumer"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = auth.Register(ctx, RegisterInput{Name: "A", Email: "a@example.com", Password: "long-enough", Role: "consumer"})
	require.NoError(t, err)
	_, err = auth.Register(ctx, RegisterInput{Name: "B", Email: "A@example.com", Password: "long-enough", Role: "retailer"})
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestLoginAndResolveFailures(t *testing.T) {
	auth, _ := newAuth(t)
	ctx := context.Background()
	_, err := auth.Register(ctx, RegisterInput{Name: "A", Email: "a@example.com", Password: "long-enough", Role: "consumer"})
	require.NoError(t, err)

	_, err = auth.Login(ctx, "a@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = auth.Login(ctx, "nobody@example.com", "long-enough")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = auth.Resolve(ctx, "")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = auth.Resolve(ctx, "garbage")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	// validly signed token for an identity that never registered
	other := jwt.NewManager("test-secret", time.Minute, "ledger-test")
	ghost, err := other.GenerateToken(uuid.New(), "ghost@example.com", "regulator")
	require.NoError(t, err)
	_, err = auth.Resolve(ctx, ghost)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}
