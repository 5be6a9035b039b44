package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"telematrix/internal/domain"
)

// ErrPhoneExists возвращается при попытке зарегистрировать уже существующий номер.
var ErrPhoneExists = errors.New("аккаунт с таким номером уже существует")

// AccountStore — хранилище аккаунтов поверх таблицы accounts.
type AccountStore struct {
	db *sql.DB
}

// NewAccountStore создает новый AccountStore.
func NewAccountStore(db *sql.DB) *AccountStore {
	return &AccountStore{db: db}
}

// GetByPhone возвращает аккаунт по номеру телефона или nil, если он не найден.
func (s *AccountStore) GetByPhone(ctx context.Context, phone string) (*domain.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, phone, api_id, api_hash, session_blob, created_at FROM accounts WHERE phone = ?`,
		phone,
	)
	acc, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account by phone: %w", err)
	}
	return acc, nil
}

// Insert регистрирует новый аккаунт. Уникальность номера гарантирует и само
// хранилище, но дубликат превращается в ErrPhoneExists до обращения к базе.
func (s *AccountStore) Insert(ctx context.Context, acc *domain.Account) (int64, error) {
	existing, err := s.GetByPhone(ctx, acc.Phone)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return 0, fmt.Errorf("%w: %s", ErrPhoneExists, acc.Phone)
	}

	createdAt := acc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (phone, api_id, api_hash, session_blob, created_at) VALUES (?, ?, ?, ?, ?)`,
		acc.Phone, acc.APIID, acc.APIHash, nullBytes(acc.SessionBlob), createdAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("insert account: %w", err)
	}
	return res.LastInsertId()
}

// UpdateBlob записывает новую сериализованную сессию аккаунта.
func (s *AccountStore) UpdateBlob(ctx context.Context, phone string, blob []byte) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET session_blob = ? WHERE phone = ?`,
		nullBytes(blob), phone,
	)
	if err != nil {
		return fmt.Errorf("update session blob: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("аккаунт не найден: %s", phone)
	}
	return nil
}

// Delete удаляет аккаунт по номеру. Возвращает false, если аккаунта не было.
func (s *AccountStore) Delete(ctx context.Context, phone string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE phone = ?`, phone)
	if err != nil {
		return false, fmt.Errorf("delete account: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// List возвращает все аккаунты, новые первыми.
func (s *AccountStore) List(ctx context.Context) ([]domain.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, phone, api_id, api_hash, session_blob, created_at FROM accounts ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *acc)
	}
	return accounts, rows.Err()
}

// rowScanner покрывает и *sql.Row, и *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var (
		acc       domain.Account
		blob      []byte
		createdAt string
	)
	if err := row.Scan(&acc.ID, &acc.Phone, &acc.APIID, &acc.APIHash, &blob, &createdAt); err != nil {
		return nil, err
	}
	acc.SessionBlob = blob
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	acc.CreatedAt = ts
	return &acc, nil
}

// nullBytes превращает пустой блоб в NULL, чтобы «нет сессии» было видно в базе.
func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
