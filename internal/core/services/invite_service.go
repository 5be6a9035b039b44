package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"telematrix/internal/domain"
	"telematrix/internal/ports"
)

// ErrAccountNotAuthorized возвращается, когда пайплайн запускается для
// аккаунта без сохранённой сессии.
var ErrAccountNotAuthorized = errors.New("аккаунт не авторизован")

// statusUnresolved — исход цели, которую не удалось разрешить в пользователя.
const statusUnresolved = "skipped: unresolved"

// InviteOption — функциональная опция для настройки InviteService.
type InviteOption func(*InviteService)

// WithInviteLogger устанавливает логгер для сервиса.
func WithInviteLogger(l *slog.Logger) InviteOption {
	return func(s *InviteService) {
		if l != nil {
			s.log = l
			s.exec.log = l
		}
	}
}

// InviteService добавляет пользователей в чат назначения от имени одного
// аккаунта. Цели обрабатываются строго последовательно с настраиваемой
// паузой между ними: пауза и есть механизм удержания под порогом
// флуд-контроля, параллелить элементы одного запуска нельзя.
type InviteService struct {
	accounts ports.AccountStore
	invites  ports.InviteStore
	factory  ports.ClientFactory
	exec     *executor
	log      *slog.Logger
}

// NewInviteService создает новый InviteService.
func NewInviteService(accounts ports.AccountStore, invites ports.InviteStore, factory ports.ClientFactory, opts ...InviteOption) *InviteService {
	s := &InviteService{
		accounts: accounts,
		invites:  invites,
		factory:  factory,
		log:      slog.Default(),
	}
	s.exec = newExecutor(s.log)

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Invite добавляет каждую цель из rawTargets в чат chatRef с паузой delay
// между целями. На каждую цель пишется ровно одна запись журнала в порядке
// входного списка; progress (если задан) вызывается после каждой цели.
// Ошибки отдельных целей не прерывают запуск: наружу уходит ошибка только
// при сбое до разрешения чата назначения. Отмена контекста останавливает
// запуск после текущей цели; накопленная статистика не теряется.
func (s *InviteService) Invite(ctx context.Context, phone, chatRef string, rawTargets []string, delay time.Duration, progress ports.ProgressFunc) (domain.StatsSnapshot, error) {
	stats := domain.NewStats()

	acc, err := s.accounts.GetByPhone(ctx, phone)
	if err != nil {
		return stats.Snapshot(), fmt.Errorf("чтение аккаунта: %w", err)
	}
	if acc == nil {
		return stats.Snapshot(), fmt.Errorf("%w: %s", ErrAccountNotFound, phone)
	}
	if !acc.Authorized() {
		return stats.Snapshot(), fmt.Errorf("%w: %s", ErrAccountNotAuthorized, phone)
	}

	targets := domain.ParseTargets(rawTargets)

	client, err := s.factory.Client(acc)
	if err != nil {
		return stats.Snapshot(), fmt.Errorf("создание клиента: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		return stats.Snapshot(), fmt.Errorf("подключение: %w", err)
	}
	defer client.Close()

	chat, err := client.ResolveChat(ctx, chatRef)
	if err != nil {
		// Без чата назначения делать нечего: единственный случай, когда
		// запуск прерывается целиком.
		return stats.Snapshot(), fmt.Errorf("разрешение чата %q: %w", chatRef, err)
	}

	s.log.InfoContext(ctx, "Invite run started",
		"phone", phone,
		"chat_id", chat.ID,
		"chat_title", chat.Title,
		"targets", len(targets),
		"delay", delay,
	)

	for i, target := range targets {
		if err := ctx.Err(); err != nil {
			s.log.InfoContext(ctx, "Invite run cancelled", "phone", phone, "processed", i)
			return stats.Snapshot(), err
		}

		resolved := s.processTarget(ctx, client, acc, chat, target, stats)
		if progress != nil {
			progress(stats.Snapshot())
		}

		// Пауза между целями обязательна даже после ожидания флуд-контроля
		// внутри вызова. Неразрешённая цель не трогала сервер, поэтому паузы
		// после неё нет; после последней цели тоже не ждём.
		if resolved && i < len(targets)-1 {
			if err := s.exec.sleep(ctx, delay); err != nil {
				s.log.InfoContext(ctx, "Invite run cancelled during delay", "phone", phone, "processed", i+1)
				return stats.Snapshot(), err
			}
		}
	}

	snapshot := stats.Snapshot()
	s.log.InfoContext(ctx, "Invite run finished",
		"phone", phone,
		"chat_id", chat.ID,
		"success", snapshot.Success,
		"error", snapshot.Error,
		"skipped", snapshot.Skipped,
	)
	return snapshot, nil
}

// processTarget обрабатывает одну цель: разрешение, инвайт, классификация,
// запись в журнал и счётчики. Любой сбой цели остаётся внутри её границы.
// Возвращает false, если цель не удалось разрешить в пользователя.
func (s *InviteService) processTarget(ctx context.Context, client ports.TelegramClient, acc *domain.Account, chat *domain.Chat, target domain.InviteTarget, stats *domain.Stats) bool {
	var userID int64
	res := s.exec.Do(ctx, "ResolveUser", func(ctx context.Context) error {
		id, resolveErr := client.ResolveUser(ctx, target)
		userID = id
		return resolveErr
	})
	if res.outcome != outcomeSuccess {
		// Неразрешённая цель пропускается до каких-либо изменяющих вызовов.
		s.log.WarnContext(ctx, "Invite target not resolved",
			"target", target.Raw,
			"error", res.err,
		)
		s.record(ctx, acc.ID, 0, chat.ID, statusUnresolved)
		stats.AddSkipped()
		return false
	}

	res = s.exec.Do(ctx, "InviteToChat", func(ctx context.Context) error {
		return client.InviteToChat(ctx, chat, userID)
	})
	status := res.status()
	s.record(ctx, acc.ID, userID, chat.ID, status)

	switch res.outcome {
	case outcomeSuccess:
		s.log.InfoContext(ctx, "User invited", "user_id", userID, "chat_id", chat.ID)
		stats.AddSuccess()
	case outcomeSkip:
		s.log.InfoContext(ctx, "Invite skipped", "user_id", userID, "chat_id", chat.ID, "status", status)
		stats.AddSkipped()
	default:
		s.log.WarnContext(ctx, "Invite failed",
			"user_id", userID,
			"chat_id", chat.ID,
			"status", status,
			"error", res.err,
		)
		stats.AddError()
	}
	return true
}

// record пишет одну запись журнала инвайтов. Сбой записи не прерывает запуск.
func (s *InviteService) record(ctx context.Context, accountID, userID, chatID int64, status string) {
	rec := &domain.InviteRecord{
		AccountID: accountID,
		UserID:    userID,
		ChatID:    chatID,
		Status:    status,
		InvitedAt: time.Now(),
	}
	if _, err := s.invites.Insert(ctx, rec); err != nil {
		s.log.ErrorContext(ctx, "Failed to persist invite record",
			"account_id", accountID,
			"user_id", userID,
			"error", err,
		)
	}
}
