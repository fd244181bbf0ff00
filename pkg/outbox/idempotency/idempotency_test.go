package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	keys   map[string]time.Duration
	setErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{keys: map[string]time.Duration{}}
}

func (m *memoryStore) SetNX(_ context.Context, key string, _ any, ttl time.Duration) (bool, error) {
	if m.setErr != nil {
		return false, m.setErr
	}
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = ttl
	return true, nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.keys, key)
	}
	return nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "estore:idempotency:" + scope + ":" + id
}

func TestClaimIsGrantedOncePerConsumer(t *testing.T) {
	store := newMemoryStore()
	guard, err := NewGuard(store, 24*time.Hour)
	require.NoError(t, err)
	ctx := context.Background()
	eventID := uuid.New()

	first, err := guard.Claim(ctx, "shipping", eventID)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := guard.Claim(ctx, "shipping", eventID)
	require.NoError(t, err)
	assert.False(t, again)

	// a different consumer keeps its own claim
	other, err := guard.Claim(ctx, "notifications", eventID)
	require.NoError(t, err)
	assert.True(t, other)

	key := "estore:idempotency:consumer:shipping:" + eventID.String()
	assert.Equal(t, 24*time.Hour, store.keys[key])
}

func TestReleaseAllowsRetry(t *testing.T) {
	guard, err := NewGuard(newMemoryStore(), time.Hour)
	require.NoError(t, err)
	ctx := context.Background()
	eventID := uuid.New()

	_, err = guard.Claim(ctx, "analytics", eventID)
	require.NoError(t, err)
	require.NoError(t, guard.Release(ctx, "analytics", eventID))

	claimed, err := guard.Claim(ctx, "analytics", eventID)
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestClaimRejectsBadInput(t *testing.T) {
	store := newMemoryStore()
	guard, err := NewGuard(store, time.Hour)
	require.NoError(t, err)

	_, err = guard.Claim(context.Background(), "", uuid.New())
	assert.Error(t, err)
	_, err = guard.Claim(context.Background(), "shipping", uuid.Nil)
	assert.Error(t, err)

	store.setErr = errors.New("redis down")
	_, err = guard.Claim(context.Background(), "shipping", uuid.New())
	assert.ErrorContains(t, err, "redis down")
}

func TestNewGuardValidation(t *testing.T) {
	_, err := NewGuard(nil, time.Hour)
	assert.Error(t, err)
	_, err = NewGuard(newMemoryStore(), 0)
	assert.Error(t, err)
}
