package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateKey(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore())

	raw, p, err := m.GenerateKey(ctx, RoleAgent, "agt_1", "portal login")
	require.NoError(t, err)
	assert.True(t, len(raw) > 10)
	assert.Equal(t, RoleAgent, p.Role)
	assert.Equal(t, "agt_1", p.AgentID)

	got, err := m.ValidateKey(ctx, "Bearer "+raw)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
}

func TestValidateKeyRejects(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore())

	_, err := m.ValidateKey(ctx, "")
	assert.ErrorIs(t, err, ErrNoAPIKey)

	_, err = m.ValidateKey(ctx, "sk_deadbeef")
	assert.ErrorIs(t, err, ErrInvalidAPIKey)
}

func TestRevokedKeyRejected(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore())

	raw, p, err := m.GenerateKey(ctx, RoleAgent, "agt_1", "k")
	require.NoError(t, err)

	require.NoError(t, m.RevokeKey(ctx, p.ID, "agt_1"))

	_, err = m.ValidateKey(ctx, raw)
	assert.ErrorIs(t, err, ErrInvalidAPIKey)
}

func TestExpiredKeyRejected(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	m := NewManager(store)

	raw, p, err := m.GenerateKey(ctx, RoleAdmin, "", "ops")
	require.NoError(t, err)

	past := time.Now().Add(-time.Hour)
	p.ExpiresAt = &past
	require.NoError(t, store.Update(ctx, p))

	_, err = m.ValidateKey(ctx, raw)
	assert.ErrorIs(t, err, ErrInvalidAPIKey)
}

func TestSeedKeyIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore())

	require.NoError(t, m.SeedKey(ctx, "sk_bootstrap", RoleAdmin, "", "bootstrap admin"))
	require.NoError(t, m.SeedKey(ctx, "sk_bootstrap", RoleAdmin, "", "bootstrap admin"))

	p, err := m.ValidateKey(ctx, "sk_bootstrap")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, p.Role)
}
