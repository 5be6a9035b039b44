package integration

import (
	"context"
	"time"

	"telematrix/internal/domain"
	"telematrix/internal/ports"
)

// FakeTelegramClient — мок-реализация ports.TelegramClient для интеграционных
// тестов. Поведение по умолчанию имитирует небольшой чат с тремя участниками.
type FakeTelegramClient struct {
	connectFunc      func(ctx context.Context) error
	isAuthorizedFunc func(ctx context.Context) (bool, error)
	sendCodeFunc     func(ctx context.Context, phone string) (string, error)
	signInFunc       func(ctx context.Context, phone, code, codeHash string) error
	resolveChatFunc  func(ctx context.Context, ref string) (*domain.Chat, error)
	resolveUserFunc  func(ctx context.Context, target domain.InviteTarget) (int64, error)
	getUserInfoFunc  func(ctx context.Context, userID int64) (*domain.UserInfo, error)
	inviteFunc       func(ctx context.Context, chat *domain.Chat, userID int64) error
	participantsFunc func(ctx context.Context, chat *domain.Chat, offset, limit int) ([]domain.UserInfo, error)
}

func (f *FakeTelegramClient) Connect(ctx context.Context) error {
	if f.connectFunc != nil {
		return f.connectFunc(ctx)
	}
	return nil
}

func (f *FakeTelegramClient) Close() error { return nil }

func (f *FakeTelegramClient) IsAuthorized(ctx context.Context) (bool, error) {
	if f.isAuthorizedFunc != nil {
		return f.isAuthorizedFunc(ctx)
	}
	return false, nil
}

func (f *FakeTelegramClient) SendCode(ctx context.Context, phone string) (string, error) {
	if f.sendCodeFunc != nil {
		return f.sendCodeFunc(ctx, phone)
	}
	return "hash-1", nil
}

func (f *FakeTelegramClient) SignIn(ctx context.Context, phone, code, codeHash string) error {
	if f.signInFunc != nil {
		return f.signInFunc(ctx, phone, code, codeHash)
	}
	return nil
}

func (f *FakeTelegramClient) SignInPassword(ctx context.Context, password string) error {
	return nil
}

func (f *FakeTelegramClient) ExportSession(ctx context.Context) ([]byte, error) {
	return []byte("integration-session"), nil
}

func (f *FakeTelegramClient) Self(ctx context.Context) (*domain.UserInfo, error) {
	return &domain.UserInfo{ID: 1, Username: "self"}, nil
}

func (f *FakeTelegramClient) ResolveChat(ctx context.Context, ref string) (*domain.Chat, error) {
	if f.resolveChatFunc != nil {
		return f.resolveChatFunc(ctx, ref)
	}
	return &domain.Chat{ID: 200, AccessHash: 7, Title: "Test Chat", Kind: domain.ChatMegagroup}, nil
}

func (f *FakeTelegramClient) ResolveUser(ctx context.Context, target domain.InviteTarget) (int64, error) {
	if f.resolveUserFunc != nil {
		return f.resolveUserFunc(ctx, target)
	}
	if id, ok := target.UserID(); ok {
		return id, nil
	}
	return 100, nil
}

func (f *FakeTelegramClient) GetUserInfo(ctx context.Context, userID int64) (*domain.UserInfo, error) {
	if f.getUserInfoFunc != nil {
		return f.getUserInfoFunc(ctx, userID)
	}
	return &domain.UserInfo{ID: userID, Username: "user", FirstName: "Test"}, nil
}

func (f *FakeTelegramClient) InviteToChat(ctx context.Context, chat *domain.Chat, userID int64) error {
	if f.inviteFunc != nil {
		return f.inviteFunc(ctx, chat, userID)
	}
	return nil
}

func (f *FakeTelegramClient) Participants(ctx context.Context, chat *domain.Chat, offset, limit int) ([]domain.UserInfo, error) {
	if f.participantsFunc != nil {
		return f.participantsFunc(ctx, chat, offset, limit)
	}
	if offset > 0 {
		return nil, nil
	}
	now := time.Now()
	return []domain.UserInfo{
		{ID: 11, Username: "alice", FirstName: "Alice", LastSeen: &now},
		{ID: 12, Username: "bob", FirstName: "Bob", LastSeen: &now},
		{ID: 13, Username: "carol", FirstName: "Carol", LastSeen: &now},
	}, nil
}

// FakeFactory выдаёт один и тот же клиент для любого аккаунта.
type FakeFactory struct {
	client ports.TelegramClient
}

func (f *FakeFactory) Client(account *domain.Account) (ports.TelegramClient, error) {
	return f.client, nil
}
