// Package telegram реализует протокольный клиент поверх gotd.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"

	"telematrix/internal/domain"
	"telematrix/internal/ports"
)

// ErrNotConnected возвращается при вызове операции до установления транспорта.
var ErrNotConnected = errors.New("клиент не подключен")

// telegramAPI представляет необработанные методы API, которые мы используем.
// Интерфейс позволяет подставлять моки в тестах.
type telegramAPI interface {
	ContactsResolveUsername(ctx context.Context, req *tg.ContactsResolveUsernameRequest) (*tg.ContactsResolvedPeer, error)
	UsersGetUsers(ctx context.Context, request []tg.InputUserClass) ([]tg.UserClass, error)
	ChannelsInviteToChannel(ctx context.Context, req *tg.ChannelsInviteToChannelRequest) (*tg.MessagesInvitedUsers, error)
	MessagesAddChatUser(ctx context.Context, req *tg.MessagesAddChatUserRequest) (*tg.MessagesInvitedUsers, error)
	ChannelsGetParticipants(ctx context.Context, req *tg.ChannelsGetParticipantsRequest) (tg.ChannelsChannelParticipantsClass, error)
	MessagesGetFullChat(ctx context.Context, chatID int64) (*tg.MessagesChatFull, error)
}

// telegramAuth представляет клиент аутентификации gotd.
type telegramAuth interface {
	Status(ctx context.Context) (*auth.Status, error)
	SendCode(ctx context.Context, phone string, options auth.SendCodeOptions) (tg.AuthSentCodeClass, error)
	SignIn(ctx context.Context, phone, code, codeHash string) (*tg.AuthAuthorization, error)
	Password(ctx context.Context, password string) (*tg.AuthAuthorization, error)
}

// telegramRunner определяет зависимости от клиента gotd.
type telegramRunner interface {
	Run(ctx context.Context, f func(ctx context.Context) error) error
	API() telegramAPI
	Auth() telegramAuth
	Self(ctx context.Context) (*tg.User, error)
}

// prodRunner является оберткой вокруг реального *telegram.Client
// для удовлетворения интерфейса telegramRunner.
type prodRunner struct {
	*telegram.Client
}

func (p *prodRunner) API() telegramAPI {
	return p.Client.API()
}

func (p *prodRunner) Auth() telegramAuth {
	return p.Client.Auth()
}

// Client — протокольный клиент одного аккаунта. Транспорт живёт в фоновой
// горутине между Connect и Close; клиент принадлежит ровно одному запуску.
type Client struct {
	phone          string
	runner         telegramRunner
	storage        *blobStorage
	connectTimeout time.Duration
	log            *slog.Logger

	mu     sync.Mutex
	stop   context.CancelFunc
	done   chan struct{}
	runErr error

	hashMu     sync.Mutex
	userHashes map[int64]int64
}

var _ ports.TelegramClient = (*Client)(nil)

// Option определяет функциональную опцию для конфигурации клиента.
type Option func(*Client)

// WithLogger устанавливает логгер для клиента.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithConnectTimeout устанавливает время ожидания установления транспорта.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.connectTimeout = d
		}
	}
}

// NewClient создает клиент, привязанный к учётным данным одного аккаунта.
// Сессия восстанавливается из блоба аккаунта; если блоба нет, клиент
// стартует с чистой сессией в памяти.
func NewClient(acc *domain.Account, opts ...Option) (*Client, error) {
	return newClientWithZap(acc, nil, opts...)
}

func newClientWithZap(acc *domain.Account, zapLog *zap.Logger, opts ...Option) (*Client, error) {
	if acc.APIID == 0 || acc.APIHash == "" {
		return nil, fmt.Errorf("у аккаунта %s нет api_id/api_hash", acc.Phone)
	}

	storage := newBlobStorage(acc.SessionBlob)
	tgClient := telegram.NewClient(acc.APIID, acc.APIHash, telegram.Options{
		SessionStorage: storage,
		Logger:         zapLog,
	})

	c := &Client{
		phone:          acc.Phone,
		runner:         &prodRunner{Client: tgClient},
		storage:        storage,
		connectTimeout: 30 * time.Second,
		log:            slog.Default(),
		userHashes:     make(map[int64]int64),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Connect запускает фоновый процесс клиента и дожидается готовности транспорта.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.done != nil {
		c.mu.Unlock()
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	ready := make(chan struct{})

	c.stop = cancel
	c.done = done
	c.mu.Unlock()

	go func() {
		defer close(done)
		err := c.runner.Run(runCtx, func(runCtx context.Context) error {
			close(ready)
			// Держим соединение активным, пока не завершится контекст.
			<-runCtx.Done()
			return runCtx.Err()
		})

		if err != nil && !errors.Is(err, context.Canceled) {
			c.log.Warn("Telegram client runner exited with error", "phone", c.phone, "error", err)
		}

		c.mu.Lock()
		c.runErr = err
		c.mu.Unlock()
	}()

	select {
	case <-ready:
		c.log.Debug("Telegram client connected", "phone", c.phone)
		return nil
	case <-done:
		c.mu.Lock()
		err := c.runErr
		c.mu.Unlock()
		c.reset()
		if err == nil {
			err = errors.New("клиент завершился до готовности транспорта")
		}
		return fmt.Errorf("подключение не удалось: %w", err)
	case <-time.After(c.connectTimeout):
		c.reset()
		return fmt.Errorf("подключение не удалось: таймаут %s", c.connectTimeout)
	case <-ctx.Done():
		c.reset()
		return ctx.Err()
	}
}

// Close разрывает транспорт. Повторный вызов безопасен.
func (c *Client) Close() error {
	c.mu.Lock()
	stop, done := c.stop, c.done
	c.stop, c.done = nil, nil
	c.mu.Unlock()

	if stop == nil {
		return nil
	}
	stop()
	<-done
	c.log.Debug("Telegram client disconnected", "phone", c.phone)
	return nil
}

// reset останавливает фон после неудачного подключения.
func (c *Client) reset() {
	c.mu.Lock()
	stop, done := c.stop, c.done
	c.stop, c.done = nil, nil
	c.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}
}

// connected сообщает, установлен ли транспорт.
func (c *Client) connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done != nil
}

// IsAuthorized сообщает, авторизована ли текущая сессия.
func (c *Client) IsAuthorized(ctx context.Context) (bool, error) {
	if !c.connected() {
		return false, ErrNotConnected
	}
	status, err := c.runner.Auth().Status(ctx)
	if err != nil {
		return false, fmt.Errorf("auth status: %w", err)
	}
	return status.Authorized, nil
}

// SendCode запрашивает код подтверждения на номер и возвращает хэш кода.
func (c *Client) SendCode(ctx context.Context, phone string) (string, error) {
	if !c.connected() {
		return "", ErrNotConnected
	}
	sent, err := c.runner.Auth().SendCode(ctx, phone, auth.SendCodeOptions{})
	if err != nil {
		return "", err
	}
	code, ok := sent.(*tg.AuthSentCode)
	if !ok {
		return "", fmt.Errorf("неожиданный ответ на запрос кода: %T", sent)
	}
	return code.PhoneCodeHash, nil
}

// SignIn отправляет код подтверждения. Требование второго фактора
// транслируется в ports.ErrPasswordNeeded.
func (c *Client) SignIn(ctx context.Context, phone, code, codeHash string) error {
	if !c.connected() {
		return ErrNotConnected
	}
	_, err := c.runner.Auth().SignIn(ctx, phone, code, codeHash)
	if errors.Is(err, auth.ErrPasswordAuthNeeded) {
		return ports.ErrPasswordNeeded
	}
	return err
}

// SignInPassword отправляет пароль второго фактора.
func (c *Client) SignInPassword(ctx context.Context, password string) error {
	if !c.connected() {
		return ErrNotConnected
	}
	_, err := c.runner.Auth().Password(ctx, password)
	return err
}

// ExportSession возвращает последнюю сериализованную сессию.
func (c *Client) ExportSession(_ context.Context) ([]byte, error) {
	blob := c.storage.Bytes()
	if len(blob) == 0 {
		return nil, errors.New("сессия еще не сериализована")
	}
	return blob, nil
}

// Self возвращает профиль владельца сессии.
func (c *Client) Self(ctx context.Context) (*domain.UserInfo, error) {
	if !c.connected() {
		return nil, ErrNotConnected
	}
	me, err := c.runner.Self(ctx)
	if err != nil {
		return nil, fmt.Errorf("get self: %w", err)
	}
	info := mapUser(me)
	return &info, nil
}

// ResolveChat разрешает ссылку на чат (@username, t.me/...) в хэндл.
func (c *Client) ResolveChat(ctx context.Context, ref string) (*domain.Chat, error) {
	if !c.connected() {
		return nil, ErrNotConnected
	}

	username := cleanChatRef(ref)
	if username == "" {
		return nil, fmt.Errorf("пустая ссылка на чат: %q", ref)
	}

	resolved, err := c.runner.API().ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{
		Username: username,
	})
	if err != nil {
		return nil, err
	}

	for _, chat := range resolved.Chats {
		switch v := chat.(type) {
		case *tg.Channel:
			kind := domain.ChatMegagroup
			if v.Broadcast {
				kind = domain.ChatBroadcast
			}
			return &domain.Chat{ID: v.ID, AccessHash: v.AccessHash, Title: v.Title, Kind: kind}, nil
		case *tg.Chat:
			return &domain.Chat{ID: v.ID, Title: v.Title, Kind: domain.ChatBasicGroup}, nil
		}
	}

	return nil, fmt.Errorf("ссылка %q не является чатом или каналом", ref)
}

// ResolveUser разрешает цель инвайта в числовой идентификатор пользователя.
// Попутно запоминается access hash: он понадобится примитивам инвайта.
func (c *Client) ResolveUser(ctx context.Context, target domain.InviteTarget) (int64, error) {
	if !c.connected() {
		return 0, ErrNotConnected
	}

	if id, ok := target.UserID(); ok {
		// Числовой идентификатор: подтверждаем существование пользователя
		// и получаем его access hash.
		if _, err := c.fetchUser(ctx, &tg.InputUser{UserID: id}); err != nil {
			return 0, err
		}
		return id, nil
	}

	resolved, err := c.runner.API().ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{
		Username: target.Username(),
	})
	if err != nil {
		return 0, err
	}
	for _, u := range resolved.Users {
		if user, ok := u.(*tg.User); ok {
			c.rememberHash(user)
			return user.ID, nil
		}
	}
	return 0, fmt.Errorf("username %q не разрешается в пользователя", target.Raw)
}

// GetUserInfo возвращает профиль пользователя по идентификатору.
func (c *Client) GetUserInfo(ctx context.Context, userID int64) (*domain.UserInfo, error) {
	if !c.connected() {
		return nil, ErrNotConnected
	}
	user, err := c.fetchUser(ctx, c.inputUser(userID))
	if err != nil {
		return nil, err
	}
	info := mapUser(user)
	return &info, nil
}

// InviteToChat добавляет пользователя в чат, выбирая примитив по виду чата.
func (c *Client) InviteToChat(ctx context.Context, chat *domain.Chat, userID int64) error {
	if !c.connected() {
		return ErrNotConnected
	}

	switch chat.Kind {
	case domain.ChatBroadcast, domain.ChatMegagroup:
		_, err := c.runner.API().ChannelsInviteToChannel(ctx, &tg.ChannelsInviteToChannelRequest{
			Channel: &tg.InputChannel{ChannelID: chat.ID, AccessHash: chat.AccessHash},
			Users:   []tg.InputUserClass{c.inputUser(userID)},
		})
		return err
	default:
		_, err := c.runner.API().MessagesAddChatUser(ctx, &tg.MessagesAddChatUserRequest{
			ChatID:   chat.ID,
			UserID:   c.inputUser(userID),
			FwdLimit: 10,
		})
		return err
	}
}

// Participants возвращает страницу участников чата начиная с offset.
// Для обычных групп API отдаёт всех участников сразу, поэтому любой offset
// больше нуля означает конец списка.
func (c *Client) Participants(ctx context.Context, chat *domain.Chat, offset, limit int) ([]domain.UserInfo, error) {
	if !c.connected() {
		return nil, ErrNotConnected
	}

	if chat.Kind == domain.ChatBasicGroup {
		if offset > 0 {
			return nil, nil
		}
		full, err := c.runner.API().MessagesGetFullChat(ctx, chat.ID)
		if err != nil {
			return nil, err
		}
		return c.mapUsers(full.Users), nil
	}

	res, err := c.runner.API().ChannelsGetParticipants(ctx, &tg.ChannelsGetParticipantsRequest{
		Channel: &tg.InputChannel{ChannelID: chat.ID, AccessHash: chat.AccessHash},
		Filter:  &tg.ChannelParticipantsRecent{},
		Offset:  offset,
		Limit:   limit,
	})
	if err != nil {
		return nil, err
	}

	page, ok := res.(*tg.ChannelsChannelParticipants)
	if !ok {
		// ChannelsChannelParticipantsNotModified без хэша в запросе не приходит.
		return nil, fmt.Errorf("неожиданный ответ на запрос участников: %T", res)
	}
	return c.mapUsers(page.Users), nil
}

// fetchUser запрашивает пользователя и запоминает его access hash.
func (c *Client) fetchUser(ctx context.Context, input tg.InputUserClass) (*tg.User, error) {
	users, err := c.runner.API().UsersGetUsers(ctx, []tg.InputUserClass{input})
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if user, ok := u.(*tg.User); ok {
			c.rememberHash(user)
			return user, nil
		}
	}
	return nil, errors.New("пользователь не найден")
}

// inputUser строит InputUser с известным access hash, если он был запомнен.
func (c *Client) inputUser(userID int64) *tg.InputUser {
	c.hashMu.Lock()
	defer c.hashMu.Unlock()
	return &tg.InputUser{UserID: userID, AccessHash: c.userHashes[userID]}
}

func (c *Client) rememberHash(user *tg.User) {
	hash, ok := user.GetAccessHash()
	if !ok {
		return
	}
	c.hashMu.Lock()
	c.userHashes[user.ID] = hash
	c.hashMu.Unlock()
}

func (c *Client) mapUsers(users []tg.UserClass) []domain.UserInfo {
	infos := make([]domain.UserInfo, 0, len(users))
	for _, u := range users {
		user, ok := u.(*tg.User)
		if !ok {
			continue
		}
		c.rememberHash(user)
		infos = append(infos, mapUser(user))
	}
	return infos
}

// mapUser переводит tg.User во внутреннюю модель профиля.
func mapUser(u *tg.User) domain.UserInfo {
	info := domain.UserInfo{
		ID:        u.ID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Phone:     u.Phone,
		Bot:       u.Bot,
		Premium:   u.Premium,
	}

	switch status := u.Status.(type) {
	case *tg.UserStatusOnline:
		now := time.Now()
		info.LastSeen = &now
	case *tg.UserStatusOffline:
		ts := time.Unix(int64(status.WasOnline), 0)
		info.LastSeen = &ts
	}
	// Скрытые статусы (Recently, LastWeek, Empty и т.п.) не дают точного
	// времени: LastSeen остаётся nil, решение принимает фильтр парсера.

	return info
}

// cleanChatRef очищает ссылку на чат от префиксов @ и t.me.
func cleanChatRef(ref string) string {
	ref = strings.TrimSpace(ref)
	if idx := strings.Index(ref, "t.me/"); idx >= 0 {
		ref = ref[idx+len("t.me/"):]
	}
	ref = strings.TrimPrefix(ref, "@")
	return strings.TrimSuffix(ref, "/")
}
