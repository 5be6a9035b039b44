package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"telematrix/internal/domain"
	"telematrix/internal/ports"
)

// ParseOption — функциональная опция для настройки ParseService.
type ParseOption func(*ParseService)

// WithParseLogger устанавливает логгер для сервиса.
func WithParseLogger(l *slog.Logger) ParseOption {
	return func(s *ParseService) {
		if l != nil {
			s.log = l
			s.exec.log = l
		}
	}
}

// WithPageSize устанавливает размер страницы пагинации (не более 100:
// больше сервер за один запрос не отдаёт).
func WithPageSize(n int) ParseOption {
	return func(s *ParseService) {
		if n > 0 && n <= 100 {
			s.pageSize = n
		}
	}
}

// WithRecentWindow устанавливает окно «недавней активности» для фильтра
// OnlyRecentlyActive.
func WithRecentWindow(d time.Duration) ParseOption {
	return func(s *ParseService) {
		if d > 0 {
			s.recentWindow = d
		}
	}
}

// ParseService собирает участников чата-источника: постранично обходит
// список, получает профиль каждого участника, применяет фильтры и сохраняет
// принятых. Повторный парсинг того же чата обновляет записи, а не дублирует.
type ParseService struct {
	accounts     ports.AccountStore
	parsed       ports.ParsedUserStore
	factory      ports.ClientFactory
	exec         *executor
	pageSize     int
	recentWindow time.Duration
	log          *slog.Logger
}

// NewParseService создает новый ParseService.
func NewParseService(accounts ports.AccountStore, parsed ports.ParsedUserStore, factory ports.ClientFactory, opts ...ParseOption) *ParseService {
	s := &ParseService{
		accounts:     accounts,
		parsed:       parsed,
		factory:      factory,
		pageSize:     100,
		recentWindow: 7 * 24 * time.Hour,
		log:          slog.Default(),
	}
	s.exec = newExecutor(s.log)

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Scrape собирает участников чата chatRef до limit принятых (limit <= 0 —
// без ограничения). Страница, прерванная флуд-контролем, повторяется, а не
// пропускается. Ошибка профиля одного участника не прерывает запуск; наружу
// уходит ошибка только при сбое до разрешения чата или при невосстановимом
// сбое страницы. Отмена контекста возвращает собранное к этому моменту.
func (s *ParseService) Scrape(ctx context.Context, phone, chatRef string, limit int, filters domain.ParseFilters, progress ports.ProgressFunc) ([]domain.ParsedUser, error) {
	acc, err := s.accounts.GetByPhone(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("чтение аккаунта: %w", err)
	}
	if acc == nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, phone)
	}
	if !acc.Authorized() {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotAuthorized, phone)
	}

	client, err := s.factory.Client(acc)
	if err != nil {
		return nil, fmt.Errorf("создание клиента: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("подключение: %w", err)
	}
	defer client.Close()

	chat, err := client.ResolveChat(ctx, chatRef)
	if err != nil {
		return nil, fmt.Errorf("разрешение чата %q: %w", chatRef, err)
	}

	s.log.InfoContext(ctx, "Scrape run started",
		"phone", phone,
		"chat_id", chat.ID,
		"chat_title", chat.Title,
		"limit", limit,
	)

	stats := domain.NewStats()
	accepted := make([]domain.ParsedUser, 0)
	offset := 0

	for {
		if err := ctx.Err(); err != nil {
			s.log.InfoContext(ctx, "Scrape run cancelled", "phone", phone, "accepted", len(accepted))
			return accepted, err
		}
		// Лимит, выбранный ровно на границе страницы, не должен стоить
		// лишнего запроса следующей страницы.
		if limit > 0 && len(accepted) >= limit {
			break
		}

		var page []domain.UserInfo
		res := s.exec.Do(ctx, "Participants", func(ctx context.Context) error {
			batch, pageErr := client.Participants(ctx, chat, offset, s.pageSize)
			page = batch
			return pageErr
		})
		if res.outcome != outcomeSuccess {
			// Страницу нельзя молча пропустить: без неё список участников
			// неполный, поэтому невосстановимый сбой страницы прерывает запуск.
			return accepted, fmt.Errorf("получение участников (offset %d): %w", offset, res.err)
		}

		for i := range page {
			if err := ctx.Err(); err != nil {
				s.log.InfoContext(ctx, "Scrape run cancelled", "phone", phone, "accepted", len(accepted))
				return accepted, err
			}
			if limit > 0 && len(accepted) >= limit {
				s.logFinish(ctx, phone, chat.ID, stats)
				return accepted, nil
			}

			if user, ok := s.processMember(ctx, client, chat, page[i], filters, stats); ok {
				accepted = append(accepted, user)
			}
			if progress != nil {
				progress(stats.Snapshot())
			}
		}

		if len(page) < s.pageSize {
			// Неполная страница означает конец списка участников.
			break
		}
		offset += len(page)
	}

	s.logFinish(ctx, phone, chat.ID, stats)
	return accepted, nil
}

// processMember обрабатывает одного участника: профиль, фильтры, сохранение.
// Возвращает принятую запись и true, если участник прошёл фильтры и сохранён.
func (s *ParseService) processMember(ctx context.Context, client ports.TelegramClient, chat *domain.Chat, member domain.UserInfo, filters domain.ParseFilters, stats *domain.Stats) (domain.ParsedUser, bool) {
	var info *domain.UserInfo
	res := s.exec.Do(ctx, "GetUserInfo", func(ctx context.Context) error {
		detail, detailErr := client.GetUserInfo(ctx, member.ID)
		info = detail
		return detailErr
	})
	switch res.outcome {
	case outcomeSuccess:
	case outcomeSkip:
		// Приватность одного участника не фатальна для запуска.
		s.log.DebugContext(ctx, "Member profile restricted, skipping", "user_id", member.ID)
		stats.AddSkipped()
		return domain.ParsedUser{}, false
	default:
		s.log.WarnContext(ctx, "Failed to fetch member profile", "user_id", member.ID, "error", res.err)
		stats.AddError()
		return domain.ParsedUser{}, false
	}

	if !s.accept(info, filters) {
		stats.AddSkipped()
		return domain.ParsedUser{}, false
	}

	user := domain.ParsedUser{
		UserID:    info.ID,
		ChatID:    chat.ID,
		Username:  info.Username,
		FirstName: info.FirstName,
		LastName:  info.LastName,
		Phone:     info.Phone,
		ParsedAt:  time.Now(),
	}
	if err := s.parsed.Upsert(ctx, &user); err != nil {
		s.log.ErrorContext(ctx, "Failed to persist parsed user", "user_id", info.ID, "error", err)
		stats.AddError()
		return domain.ParsedUser{}, false
	}

	stats.AddSuccess()
	return user, true
}

// accept применяет фильтры по порядку: наличие юзернейма, боты, премиум,
// недавняя активность. Участник со скрытым статусом (LastSeen == nil)
// проходит фильтр активности: отсутствие данных не считается неактивностью.
func (s *ParseService) accept(u *domain.UserInfo, f domain.ParseFilters) bool {
	if f.OnlyWithUsername && u.Username == "" {
		return false
	}
	if f.ExcludeBots && u.Bot {
		return false
	}
	if f.ExcludePremium && u.Premium {
		return false
	}
	if f.OnlyRecentlyActive && u.LastSeen != nil && time.Since(*u.LastSeen) > s.recentWindow {
		return false
	}
	return true
}

func (s *ParseService) logFinish(ctx context.Context, phone string, chatID int64, stats *domain.Stats) {
	snapshot := stats.Snapshot()
	s.log.InfoContext(ctx, "Scrape run finished",
		"phone", phone,
		"chat_id", chatID,
		"success", snapshot.Success,
		"error", snapshot.Error,
		"skipped", snapshot.Skipped,
	)
}
