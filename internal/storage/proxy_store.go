package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"telematrix/internal/domain"
)

// ProxyStore — хранилище настроек прокси поверх таблицы proxy_settings.
// На один аккаунт приходится не более одной записи.
type ProxyStore struct {
	db *sql.DB
}

// NewProxyStore создает новый ProxyStore.
func NewProxyStore(db *sql.DB) *ProxyStore {
	return &ProxyStore{db: db}
}

// Upsert сохраняет настройки прокси аккаунта, заменяя прежние.
func (s *ProxyStore) Upsert(ctx context.Context, p *domain.ProxySettings) error {
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO proxy_settings (account_id, proxy_type, host, port, username, password, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (account_id) DO UPDATE SET
		   proxy_type = excluded.proxy_type,
		   host = excluded.host,
		   port = excluded.port,
		   username = excluded.username,
		   password = excluded.password`,
		p.AccountID, p.Type, p.Host, p.Port, nullString(p.Username), nullString(p.Password),
		createdAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert proxy settings: %w", err)
	}
	return nil
}

// GetByAccount возвращает настройки аккаунта или nil, если их нет.
func (s *ProxyStore) GetByAccount(ctx context.Context, accountID int64) (*domain.ProxySettings, error) {
	var (
		p         domain.ProxySettings
		username  sql.NullString
		password  sql.NullString
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, account_id, proxy_type, host, port, username, password, created_at
		 FROM proxy_settings WHERE account_id = ?`,
		accountID,
	).Scan(&p.ID, &p.AccountID, &p.Type, &p.Host, &p.Port, &username, &password, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get proxy settings: %w", err)
	}
	p.Username = username.String
	p.Password = password.String
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	p.CreatedAt = ts
	return &p, nil
}

// Delete удаляет настройки аккаунта. Возвращает false, если их не было.
func (s *ProxyStore) Delete(ctx context.Context, accountID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM proxy_settings WHERE account_id = ?`, accountID)
	if err != nil {
		return false, fmt.Errorf("delete proxy settings: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
