package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountRegister(t *testing.T) {
	store := NewMockAccountStore()
	svc := NewAccountService(store, factoryFor(&MockTelegramClient{}), WithAccountLogger(testLogger()))
	ctx := context.Background()

	acc, err := svc.Register(ctx, "+79990000000", 12345, "abcdef")
	require.NoError(t, err)
	assert.NotZero(t, acc.ID)
	assert.False(t, acc.Authorized())

	got, err := store.GetByPhone(ctx, "+79990000000")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 12345, got.APIID)
}

func TestAccountRegisterValidation(t *testing.T) {
	svc := NewAccountService(NewMockAccountStore(), factoryFor(&MockTelegramClient{}), WithAccountLogger(testLogger()))
	ctx := context.Background()

	tests := []struct {
		name    string
		phone   string
		apiID   int
		apiHash string
	}{
		{"empty phone", "", 1, "hash"},
		{"no plus prefix", "79990000000", 1, "hash"},
		{"zero api id", "+79990000000", 0, "hash"},
		{"empty api hash", "+79990000000", 1, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.phone, tt.apiID, tt.apiHash)
			assert.ErrorIs(t, err, ErrInvalidAccount)
		})
	}
}

func TestAccountDelete(t *testing.T) {
	store := NewMockAccountStore()
	svc := NewAccountService(store, factoryFor(&MockTelegramClient{}), WithAccountLogger(testLogger()))
	ctx := context.Background()

	_, err := svc.Register(ctx, "+1555", 1, "hash")
	require.NoError(t, err)

	deleted, err := svc.Delete(ctx, "+1555")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = svc.Delete(ctx, "+1555")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestAccountCheck(t *testing.T) {
	ctx := context.Background()

	t.Run("no session blob", func(t *testing.T) {
		store := NewMockAccountStore()
		registerAccount(t, store, "+1555")
		svc := NewAccountService(store, factoryFor(&MockTelegramClient{}), WithAccountLogger(testLogger()))

		// Без блоба сессии подключение даже не выполняется.
		alive, err := svc.Check(ctx, "+1555")
		require.NoError(t, err)
		assert.False(t, alive)
	})

	t.Run("session alive", func(t *testing.T) {
		store := NewMockAccountStore()
		authorizedAccount(t, store, "+1555")
		client := &MockTelegramClient{
			IsAuthorizedFunc: func(context.Context) (bool, error) { return true, nil },
		}
		svc := NewAccountService(store, factoryFor(client), WithAccountLogger(testLogger()))

		alive, err := svc.Check(ctx, "+1555")
		require.NoError(t, err)
		assert.True(t, alive)
		assert.Equal(t, 1, client.CloseCalls())
	})

	t.Run("session revoked", func(t *testing.T) {
		// Блоб сохранён, но сервер сессию уже не признаёт.
		store := NewMockAccountStore()
		authorizedAccount(t, store, "+1555")
		client := &MockTelegramClient{
			IsAuthorizedFunc: func(context.Context) (bool, error) { return false, nil },
		}
		svc := NewAccountService(store, factoryFor(client), WithAccountLogger(testLogger()))

		alive, err := svc.Check(ctx, "+1555")
		require.NoError(t, err)
		assert.False(t, alive)
	})

	t.Run("unknown account", func(t *testing.T) {
		svc := NewAccountService(NewMockAccountStore(), factoryFor(&MockTelegramClient{}), WithAccountLogger(testLogger()))
		_, err := svc.Check(ctx, "+0000")
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})
}
