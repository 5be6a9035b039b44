package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"telematrix/internal/domain"
	"telematrix/internal/ports"
)

// ErrAccountNotFound возвращается, когда операция ссылается на
// незарегистрированный номер телефона.
var ErrAccountNotFound = errors.New("аккаунт не зарегистрирован")

// AuthOption — функциональная опция для настройки AuthService.
type AuthOption func(*AuthService)

// WithAuthLogger устанавливает логгер для сервиса.
func WithAuthLogger(l *slog.Logger) AuthOption {
	return func(s *AuthService) {
		if l != nil {
			s.log = l
			s.exec.log = l
		}
	}
}

// AuthService ведёт интерактивную авторизацию аккаунта: запрос кода,
// ввод кода, при необходимости — пароль второго фактора. Попытка живёт
// только в памяти на время вызова Authenticate; в хранилище попадает
// лишь итоговый блоб сессии.
type AuthService struct {
	accounts ports.AccountStore
	factory  ports.ClientFactory
	exec     *executor
	log      *slog.Logger
}

// NewAuthService создает новый AuthService.
func NewAuthService(accounts ports.AccountStore, factory ports.ClientFactory, opts ...AuthOption) *AuthService {
	s := &AuthService{
		accounts: accounts,
		factory:  factory,
		log:      slog.Default(),
	}
	s.exec = newExecutor(s.log)

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Authenticate доводит авторизацию аккаунта до терминального состояния.
// Возвращает true при успехе и false при ожидаемых неуспехах (неверный номер,
// отказ оператора от ввода, неверный или истёкший код); ошибкой завершаются
// только неожиданные сбои транспорта или хранилища. Транспорт закрывается
// перед возвратом на любом пути.
func (s *AuthService) Authenticate(ctx context.Context, phone string, code ports.CodeProvider, password ports.PasswordProvider) (bool, error) {
	acc, err := s.accounts.GetByPhone(ctx, phone)
	if err != nil {
		return false, fmt.Errorf("чтение аккаунта: %w", err)
	}
	if acc == nil {
		return false, fmt.Errorf("%w: %s", ErrAccountNotFound, phone)
	}

	client, err := s.factory.Client(acc)
	if err != nil {
		return false, fmt.Errorf("создание клиента: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		return false, fmt.Errorf("подключение: %w", err)
	}
	defer client.Close()

	state := domain.AuthDisconnected

	authorized, err := client.IsAuthorized(ctx)
	if err != nil {
		return false, fmt.Errorf("проверка авторизации: %w", err)
	}
	if authorized {
		// Сессия уже авторизована: повторный вход идемпотентен,
		// код не запрашивается.
		s.transition(ctx, phone, &state, domain.AuthAuthenticated)
		return s.persistSession(ctx, client, phone)
	}

	var codeHash string
	res := s.exec.Do(ctx, "SendCode", func(ctx context.Context) error {
		hash, sendErr := client.SendCode(ctx, phone)
		codeHash = hash
		return sendErr
	})
	switch {
	case res.outcome == outcomeSuccess:
		s.transition(ctx, phone, &state, domain.AuthCodeRequested)
	case res.code == "PHONE_NUMBER_INVALID":
		return s.fail(ctx, phone, &state, domain.FailInvalidPhone)
	case cancelled(res.err):
		// Отмена во время ожидания флуд-контроля — это отмена вызова,
		// а не неуспех авторизации.
		return false, res.err
	case res.code == "FLOOD_WAIT":
		return s.fail(ctx, phone, &state, domain.FailRateLimited)
	default:
		return false, fmt.Errorf("запрос кода: %w", res.err)
	}

	if code == nil {
		return s.fail(ctx, phone, &state, domain.FailNoCodeProvided)
	}
	codeValue, err := code(ctx, phone)
	if err != nil {
		return false, fmt.Errorf("получение кода от оператора: %w", err)
	}
	if codeValue == "" {
		// Оператор отказался от ввода.
		return s.fail(ctx, phone, &state, domain.FailNoCodeProvided)
	}
	s.transition(ctx, phone, &state, domain.AuthAwaitingCode)

	res = s.exec.Do(ctx, "SignIn", func(ctx context.Context) error {
		return client.SignIn(ctx, phone, codeValue, codeHash)
	})
	switch {
	case res.outcome == outcomeSuccess:
		s.transition(ctx, phone, &state, domain.AuthAuthenticated)
		return s.persistSession(ctx, client, phone)
	case errors.Is(res.err, ports.ErrPasswordNeeded):
		s.transition(ctx, phone, &state, domain.AuthAwaitingSecondFactor)
	case res.code == "PHONE_CODE_INVALID":
		// Ошибка ввода оператора: автоматический повтор не делается.
		return s.fail(ctx, phone, &state, domain.FailInvalidCode)
	case res.code == "PHONE_CODE_EXPIRED":
		return s.fail(ctx, phone, &state, domain.FailExpiredCode)
	case cancelled(res.err):
		return false, res.err
	case res.code == "FLOOD_WAIT":
		return s.fail(ctx, phone, &state, domain.FailRateLimited)
	default:
		return false, fmt.Errorf("отправка кода: %w", res.err)
	}

	if password == nil {
		return s.fail(ctx, phone, &state, domain.FailNoPasswordProvided)
	}
	passwordValue, err := password(ctx, phone)
	if err != nil {
		return false, fmt.Errorf("получение пароля от оператора: %w", err)
	}
	if passwordValue == "" {
		return s.fail(ctx, phone, &state, domain.FailNoPasswordProvided)
	}

	res = s.exec.Do(ctx, "SignInPassword", func(ctx context.Context) error {
		return client.SignInPassword(ctx, passwordValue)
	})
	switch {
	case res.outcome == outcomeSuccess:
		s.transition(ctx, phone, &state, domain.AuthAuthenticated)
		return s.persistSession(ctx, client, phone)
	case res.code == "PASSWORD_HASH_INVALID":
		return s.fail(ctx, phone, &state, domain.FailInvalidPassword)
	case cancelled(res.err):
		return false, res.err
	case res.code == "FLOOD_WAIT":
		return s.fail(ctx, phone, &state, domain.FailRateLimited)
	default:
		return false, fmt.Errorf("отправка пароля: %w", res.err)
	}
}

// persistSession сохраняет сериализованную сессию клиента в аккаунт.
func (s *AuthService) persistSession(ctx context.Context, client ports.TelegramClient, phone string) (bool, error) {
	blob, err := client.ExportSession(ctx)
	if err != nil {
		return false, fmt.Errorf("экспорт сессии: %w", err)
	}
	if err := s.accounts.UpdateBlob(ctx, phone, blob); err != nil {
		return false, fmt.Errorf("сохранение сессии: %w", err)
	}
	s.log.InfoContext(ctx, "Session persisted", "phone", phone)
	return true, nil
}

// transition переводит попытку в новое состояние с записью в лог.
func (s *AuthService) transition(ctx context.Context, phone string, state *domain.AuthState, next domain.AuthState) {
	s.log.DebugContext(ctx, "Auth state transition",
		"phone", phone,
		"from", state.String(),
		"to", next.String(),
	)
	*state = next
}

// fail переводит попытку в терминальное состояние Failed. Ожидаемые неуспехи
// авторизации не являются ошибками вызова: наружу уходит false без ошибки.
func (s *AuthService) fail(ctx context.Context, phone string, state *domain.AuthState, reason domain.FailReason) (bool, error) {
	s.transition(ctx, phone, state, domain.AuthFailed)
	s.log.WarnContext(ctx, "Authentication failed",
		"phone", phone,
		"reason", string(reason),
	)
	return false, nil
}
