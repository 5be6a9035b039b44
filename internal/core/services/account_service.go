package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"telematrix/internal/domain"
	"telematrix/internal/ports"
)

// ErrInvalidAccount возвращается при регистрации с некорректными данными.
var ErrInvalidAccount = errors.New("некорректные данные аккаунта")

// AccountOption — функциональная опция для настройки AccountService.
type AccountOption func(*AccountService)

// WithAccountLogger устанавливает логгер для сервиса.
func WithAccountLogger(l *slog.Logger) AccountOption {
	return func(s *AccountService) {
		if l != nil {
			s.log = l
		}
	}
}

// AccountService управляет реестром аккаунтов: регистрация, список, удаление
// и проверка состояния сессии.
type AccountService struct {
	accounts ports.AccountStore
	factory  ports.ClientFactory
	log      *slog.Logger
}

// NewAccountService создает новый AccountService.
func NewAccountService(accounts ports.AccountStore, factory ports.ClientFactory, opts ...AccountOption) *AccountService {
	s := &AccountService{
		accounts: accounts,
		factory:  factory,
		log:      slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Register регистрирует новый аккаунт. Номер — естественный ключ: на один
// номер не более одной записи, повторная регистрация возвращает ошибку
// хранилища.
func (s *AccountService) Register(ctx context.Context, phone string, apiID int, apiHash string) (*domain.Account, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" || !strings.HasPrefix(phone, "+") {
		return nil, fmt.Errorf("%w: номер должен начинаться с '+'", ErrInvalidAccount)
	}
	if apiID <= 0 || strings.TrimSpace(apiHash) == "" {
		return nil, fmt.Errorf("%w: требуются api_id и api_hash", ErrInvalidAccount)
	}

	acc := &domain.Account{
		Phone:   phone,
		APIID:   apiID,
		APIHash: apiHash,
	}
	id, err := s.accounts.Insert(ctx, acc)
	if err != nil {
		return nil, fmt.Errorf("регистрация аккаунта: %w", err)
	}
	acc.ID = id

	s.log.InfoContext(ctx, "Account registered", "phone", phone, "account_id", id)
	return acc, nil
}

// List возвращает все зарегистрированные аккаунты, новые первыми.
func (s *AccountService) List(ctx context.Context) ([]domain.Account, error) {
	return s.accounts.List(ctx)
}

// Delete удаляет аккаунт вместе с его сессией. Возвращает false, если
// аккаунта не было.
func (s *AccountService) Delete(ctx context.Context, phone string) (bool, error) {
	deleted, err := s.accounts.Delete(ctx, phone)
	if err != nil {
		return false, fmt.Errorf("удаление аккаунта: %w", err)
	}
	if deleted {
		s.log.InfoContext(ctx, "Account deleted", "phone", phone)
	}
	return deleted, nil
}

// Check подключается от имени аккаунта и сообщает, жива ли его сессия.
// Сохранённый блоб не гарантирует авторизацию: сессия могла быть отозвана
// с другого устройства.
func (s *AccountService) Check(ctx context.Context, phone string) (bool, error) {
	acc, err := s.accounts.GetByPhone(ctx, phone)
	if err != nil {
		return false, fmt.Errorf("чтение аккаунта: %w", err)
	}
	if acc == nil {
		return false, fmt.Errorf("%w: %s", ErrAccountNotFound, phone)
	}
	if !acc.Authorized() {
		return false, nil
	}

	client, err := s.factory.Client(acc)
	if err != nil {
		return false, fmt.Errorf("создание клиента: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		return false, fmt.Errorf("подключение: %w", err)
	}
	defer client.Close()

	authorized, err := client.IsAuthorized(ctx)
	if err != nil {
		return false, fmt.Errorf("проверка авторизации: %w", err)
	}
	return authorized, nil
}
