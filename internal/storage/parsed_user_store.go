package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"telematrix/internal/domain"
)

// ParsedUserStore — хранилище распарсенных участников поверх таблицы parsed_users.
type ParsedUserStore struct {
	db *sql.DB
}

// NewParsedUserStore создает новый ParsedUserStore.
func NewParsedUserStore(db *sql.DB) *ParsedUserStore {
	return &ParsedUserStore{db: db}
}

// Upsert вставляет или обновляет запись одним запросом по ключу (user_id, chat_id).
// Условная запись атомарна: параллельные запуски по одному чату не дублируют строки.
func (s *ParsedUserStore) Upsert(ctx context.Context, u *domain.ParsedUser) error {
	parsedAt := u.ParsedAt
	if parsedAt.IsZero() {
		parsedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO parsed_users (user_id, chat_id, username, first_name, last_name, phone, parsed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, chat_id) DO UPDATE SET
		   username = excluded.username,
		   first_name = excluded.first_name,
		   last_name = excluded.last_name,
		   phone = excluded.phone,
		   parsed_at = excluded.parsed_at`,
		u.UserID, u.ChatID, nullString(u.Username), nullString(u.FirstName),
		nullString(u.LastName), nullString(u.Phone), parsedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert parsed user: %w", err)
	}
	return nil
}

// ListByChat возвращает участников, собранных из одного чата.
func (s *ParsedUserStore) ListByChat(ctx context.Context, chatID int64) ([]domain.ParsedUser, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, chat_id, username, first_name, last_name, phone, parsed_at
		 FROM parsed_users WHERE chat_id = ? ORDER BY user_id`,
		chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("list parsed users: %w", err)
	}
	defer rows.Close()

	var users []domain.ParsedUser
	for rows.Next() {
		var (
			u         domain.ParsedUser
			username  sql.NullString
			firstName sql.NullString
			lastName  sql.NullString
			phone     sql.NullString
			parsedAt  string
		)
		if err := rows.Scan(&u.UserID, &u.ChatID, &username, &firstName, &lastName, &phone, &parsedAt); err != nil {
			return nil, err
		}
		u.Username = username.String
		u.FirstName = firstName.String
		u.LastName = lastName.String
		u.Phone = phone.String
		ts, err := time.Parse(time.RFC3339Nano, parsedAt)
		if err != nil {
			return nil, fmt.Errorf("parse parsed_at: %w", err)
		}
		u.ParsedAt = ts
		users = append(users, u)
	}
	return users, rows.Err()
}

// Count возвращает число строк для пары (user_id, chat_id). Больше единицы
// быть не может: это контролируется первичным ключом.
func (s *ParsedUserStore) Count(ctx context.Context, userID, chatID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM parsed_users WHERE user_id = ? AND chat_id = ?`,
		userID, chatID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count parsed users: %w", err)
	}
	return count, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
