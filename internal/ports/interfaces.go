package ports

import (
	"context"

	"telematrix/internal/domain"
)

// AccountStore определяет интерфейс хранилища аккаунтов.
// Реализация на SQLite живёт в internal/storage.
type AccountStore interface {
	// GetByPhone возвращает аккаунт по номеру телефона или nil, если его нет.
	GetByPhone(ctx context.Context, phone string) (*domain.Account, error)
	// Insert регистрирует новый аккаунт и возвращает его идентификатор.
	Insert(ctx context.Context, acc *domain.Account) (int64, error)
	// UpdateBlob записывает новую сериализованную сессию аккаунта.
	UpdateBlob(ctx context.Context, phone string, blob []byte) error
	// Delete удаляет аккаунт. Возвращает false, если аккаунта не было.
	Delete(ctx context.Context, phone string) (bool, error)
	// List возвращает все аккаунты, новые первыми.
	List(ctx context.Context) ([]domain.Account, error)
}

// InviteStore определяет интерфейс журнала инвайтов.
type InviteStore interface {
	// Insert добавляет одну запись об исходе попытки.
	Insert(ctx context.Context, rec *domain.InviteRecord) (int64, error)
	// ListByAccount возвращает записи аккаунта в порядке добавления.
	ListByAccount(ctx context.Context, accountID int64) ([]domain.InviteRecord, error)
}

// ParsedUserStore определяет интерфейс хранилища распарсенных участников.
type ParsedUserStore interface {
	// Upsert атомарно вставляет или обновляет запись по ключу (user_id, chat_id).
	Upsert(ctx context.Context, u *domain.ParsedUser) error
	// ListByChat возвращает участников, собранных из одного чата.
	ListByChat(ctx context.Context, chatID int64) ([]domain.ParsedUser, error)
	// Count возвращает число записей для пары (user_id, chat_id).
	Count(ctx context.Context, userID, chatID int64) (int, error)
}

// ProxyStore определяет интерфейс хранилища настроек прокси.
type ProxyStore interface {
	// Upsert сохраняет настройки прокси аккаунта, заменяя прежние.
	Upsert(ctx context.Context, p *domain.ProxySettings) error
	// GetByAccount возвращает настройки аккаунта или nil, если их нет.
	GetByAccount(ctx context.Context, accountID int64) (*domain.ProxySettings, error)
	// Delete удаляет настройки аккаунта. Возвращает false, если их не было.
	Delete(ctx context.Context, accountID int64) (bool, error)
}

// CodeProvider выдаёт код подтверждения для номера. Пустая строка означает,
// что оператор отказался от ввода и попытку надо прервать.
type CodeProvider func(ctx context.Context, phone string) (string, error)

// PasswordProvider выдаёт пароль второго фактора для номера.
type PasswordProvider func(ctx context.Context, phone string) (string, error)

// ProgressFunc вызывается после обработки каждого элемента пайплайна.
// Реализация не должна блокировать: она исполняется в цикле запуска.
type ProgressFunc func(snapshot domain.StatsSnapshot)
