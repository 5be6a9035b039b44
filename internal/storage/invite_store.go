package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"telematrix/internal/domain"
)

// InviteStore — журнал исходов инвайтов поверх таблицы invites.
// Таблица только пополняется: по одной строке на обработанную цель.
type InviteStore struct {
	db *sql.DB
}

// NewInviteStore создает новый InviteStore.
func NewInviteStore(db *sql.DB) *InviteStore {
	return &InviteStore{db: db}
}

// Insert добавляет одну запись об исходе попытки.
func (s *InviteStore) Insert(ctx context.Context, rec *domain.InviteRecord) (int64, error) {
	invitedAt := rec.InvitedAt
	if invitedAt.IsZero() {
		invitedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO invites (account_id, user_id, chat_id, status, invited_at) VALUES (?, ?, ?, ?, ?)`,
		rec.AccountID, rec.UserID, rec.ChatID, rec.Status, invitedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("insert invite record: %w", err)
	}
	return res.LastInsertId()
}

// ListByAccount возвращает записи аккаунта в порядке добавления.
func (s *InviteStore) ListByAccount(ctx context.Context, accountID int64) ([]domain.InviteRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, account_id, user_id, chat_id, status, invited_at FROM invites WHERE account_id = ? ORDER BY id`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("list invites: %w", err)
	}
	defer rows.Close()

	var records []domain.InviteRecord
	for rows.Next() {
		var (
			rec       domain.InviteRecord
			invitedAt string
		)
		if err := rows.Scan(&rec.ID, &rec.AccountID, &rec.UserID, &rec.ChatID, &rec.Status, &invitedAt); err != nil {
			return nil, err
		}
		ts, err := time.Parse(time.RFC3339Nano, invitedAt)
		if err != nil {
			return nil, fmt.Errorf("parse invited_at: %w", err)
		}
		rec.InvitedAt = ts
		records = append(records, rec)
	}
	return records, rows.Err()
}
