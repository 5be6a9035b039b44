package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telematrix/internal/domain"
)

func TestProxyUpsertAndGet(t *testing.T) {
	db := setupTestDB(t)
	accounts := NewAccountStore(db)
	proxies := NewProxyStore(db)
	ctx := context.Background()

	accID, err := accounts.Insert(ctx, &domain.Account{Phone: "+1", APIID: 1, APIHash: "h"})
	require.NoError(t, err)

	require.NoError(t, proxies.Upsert(ctx, &domain.ProxySettings{
		AccountID: accID,
		Type:      "socks5",
		Host:      "127.0.0.1",
		Port:      1080,
	}))

	p, err := proxies.GetByAccount(ctx, accID)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "socks5", p.Type)
	assert.Equal(t, "127.0.0.1:1080", p.Addr())

	// Повторный Upsert заменяет настройки, а не добавляет вторую запись.
	require.NoError(t, proxies.Upsert(ctx, &domain.ProxySettings{
		AccountID: accID,
		Type:      "http",
		Host:      "10.0.0.1",
		Port:      8080,
		Username:  "user",
	}))

	p, err = proxies.GetByAccount(ctx, accID)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "http", p.Type)
	assert.Equal(t, "user", p.Username)
}

func TestProxyGetMissing(t *testing.T) {
	proxies := NewProxyStore(setupTestDB(t))

	p, err := proxies.GetByAccount(context.Background(), 404)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestProxyDelete(t *testing.T) {
	db := setupTestDB(t)
	accounts := NewAccountStore(db)
	proxies := NewProxyStore(db)
	ctx := context.Background()

	accID, err := accounts.Insert(ctx, &domain.Account{Phone: "+2", APIID: 1, APIHash: "h"})
	require.NoError(t, err)
	require.NoError(t, proxies.Upsert(ctx, &domain.ProxySettings{AccountID: accID, Type: "http", Host: "h", Port: 1}))

	deleted, err := proxies.Delete(ctx, accID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = proxies.Delete(ctx, accID)
	require.NoError(t, err)
	assert.False(t, deleted)
}
