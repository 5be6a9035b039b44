package ports

import (
	"context"
	"errors"

	"telematrix/internal/domain"
)

// ErrPasswordNeeded возвращается из SignIn, когда аккаунт защищён вторым
// фактором и для входа требуется пароль.
var ErrPasswordNeeded = errors.New("требуется пароль второго фактора")

// TelegramClient определяет возможности протокольного клиента, которые нужны
// ядру. Реализация на базе gotd живёт в internal/telegram; тесты подставляют мок.
// Один клиент принадлежит ровно одному запуску и не разделяется между запусками.
type TelegramClient interface {
	// Connect устанавливает транспорт. Должен быть вызван до любых операций.
	Connect(ctx context.Context) error
	// Close разрывает транспорт. Безопасен при повторном вызове.
	Close() error

	// IsAuthorized сообщает, авторизована ли текущая сессия.
	IsAuthorized(ctx context.Context) (bool, error)
	// SendCode запрашивает код подтверждения на номер и возвращает хэш кода.
	SendCode(ctx context.Context, phone string) (codeHash string, err error)
	// SignIn отправляет код подтверждения. Требование второго фактора
	// сигнализируется ошибкой ErrPasswordNeeded.
	SignIn(ctx context.Context, phone, code, codeHash string) error
	// SignInPassword отправляет пароль второго фактора.
	SignInPassword(ctx context.Context, password string) error
	// ExportSession возвращает сериализованную сессию для сохранения.
	ExportSession(ctx context.Context) ([]byte, error)
	// Self возвращает профиль владельца сессии.
	Self(ctx context.Context) (*domain.UserInfo, error)

	// ResolveChat разрешает ссылку на чат (@username, t.me/...) в хэндл.
	ResolveChat(ctx context.Context, ref string) (*domain.Chat, error)
	// ResolveUser разрешает цель инвайта в числовой идентификатор пользователя.
	ResolveUser(ctx context.Context, target domain.InviteTarget) (int64, error)
	// GetUserInfo возвращает профиль пользователя по идентификатору.
	GetUserInfo(ctx context.Context, userID int64) (*domain.UserInfo, error)
	// InviteToChat добавляет пользователя в чат, выбирая примитив по виду чата.
	InviteToChat(ctx context.Context, chat *domain.Chat, userID int64) error
	// Participants возвращает страницу участников чата начиная с offset.
	Participants(ctx context.Context, chat *domain.Chat, offset, limit int) ([]domain.UserInfo, error)
}

// ClientFactory создаёт протокольный клиент, привязанный к учётным данным
// одного аккаунта. Сессия восстанавливается из блоба аккаунта, если он есть.
type ClientFactory interface {
	Client(account *domain.Account) (TelegramClient, error)
}
