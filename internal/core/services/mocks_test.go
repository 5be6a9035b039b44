package services

import (
	"context"
	"sync"

	"telematrix/internal/domain"
	"telematrix/internal/ports"
)

// MockTelegramClient - мок-реализация ports.TelegramClient для тестирования.
type MockTelegramClient struct {
	ConnectFunc        func(ctx context.Context) error
	CloseFunc          func() error
	IsAuthorizedFunc   func(ctx context.Context) (bool, error)
	SendCodeFunc       func(ctx context.Context, phone string) (string, error)
	SignInFunc         func(ctx context.Context, phone, code, codeHash string) error
	SignInPasswordFunc func(ctx context.Context, password string) error
	ExportSessionFunc  func(ctx context.Context) ([]byte, error)
	SelfFunc           func(ctx context.Context) (*domain.UserInfo, error)
	ResolveChatFunc    func(ctx context.Context, ref string) (*domain.Chat, error)
	ResolveUserFunc    func(ctx context.Context, target domain.InviteTarget) (int64, error)
	GetUserInfoFunc    func(ctx context.Context, userID int64) (*domain.UserInfo, error)
	InviteToChatFunc   func(ctx context.Context, chat *domain.Chat, userID int64) error
	ParticipantsFunc   func(ctx context.Context, chat *domain.Chat, offset, limit int) ([]domain.UserInfo, error)

	mu         sync.Mutex
	closeCalls int
}

func (m *MockTelegramClient) Connect(ctx context.Context) error {
	if m.ConnectFunc != nil {
		return m.ConnectFunc(ctx)
	}
	return nil
}

func (m *MockTelegramClient) Close() error {
	m.mu.Lock()
	m.closeCalls++
	m.mu.Unlock()
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// CloseCalls возвращает число вызовов Close: контракт требует закрывать
// транспорт на каждом пути выхода.
func (m *MockTelegramClient) CloseCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCalls
}

func (m *MockTelegramClient) IsAuthorized(ctx context.Context) (bool, error) {
	if m.IsAuthorizedFunc != nil {
		return m.IsAuthorizedFunc(ctx)
	}
	return false, nil
}

func (m *MockTelegramClient) SendCode(ctx context.Context, phone string) (string, error) {
	if m.SendCodeFunc != nil {
		return m.SendCodeFunc(ctx, phone)
	}
	return "hash", nil
}

func (m *MockTelegramClient) SignIn(ctx context.Context, phone, code, codeHash string) error {
	if m.SignInFunc != nil {
		return m.SignInFunc(ctx, phone, code, codeHash)
	}
	return nil
}

func (m *MockTelegramClient) SignInPassword(ctx context.Context, password string) error {
	if m.SignInPasswordFunc != nil {
		return m.SignInPasswordFunc(ctx, password)
	}
	return nil
}

func (m *MockTelegramClient) ExportSession(ctx context.Context) ([]byte, error) {
	if m.ExportSessionFunc != nil {
		return m.ExportSessionFunc(ctx)
	}
	return []byte("session"), nil
}

func (m *MockTelegramClient) Self(ctx context.Context) (*domain.UserInfo, error) {
	if m.SelfFunc != nil {
		return m.SelfFunc(ctx)
	}
	return &domain.UserInfo{ID: 1}, nil
}

func (m *MockTelegramClient) ResolveChat(ctx context.Context, ref string) (*domain.Chat, error) {
	if m.ResolveChatFunc != nil {
		return m.ResolveChatFunc(ctx, ref)
	}
	return &domain.Chat{ID: 100, Kind: domain.ChatMegagroup}, nil
}

func (m *MockTelegramClient) ResolveUser(ctx context.Context, target domain.InviteTarget) (int64, error) {
	if m.ResolveUserFunc != nil {
		return m.ResolveUserFunc(ctx, target)
	}
	if id, ok := target.UserID(); ok {
		return id, nil
	}
	return 1, nil
}

func (m *MockTelegramClient) GetUserInfo(ctx context.Context, userID int64) (*domain.UserInfo, error) {
	if m.GetUserInfoFunc != nil {
		return m.GetUserInfoFunc(ctx, userID)
	}
	return &domain.UserInfo{ID: userID}, nil
}

func (m *MockTelegramClient) InviteToChat(ctx context.Context, chat *domain.Chat, userID int64) error {
	if m.InviteToChatFunc != nil {
		return m.InviteToChatFunc(ctx, chat, userID)
	}
	return nil
}

func (m *MockTelegramClient) Participants(ctx context.Context, chat *domain.Chat, offset, limit int) ([]domain.UserInfo, error) {
	if m.ParticipantsFunc != nil {
		return m.ParticipantsFunc(ctx, chat, offset, limit)
	}
	return nil, nil
}

// MockClientFactory - мок-реализация ports.ClientFactory.
type MockClientFactory struct {
	ClientFunc func(account *domain.Account) (ports.TelegramClient, error)
}

func (m *MockClientFactory) Client(account *domain.Account) (ports.TelegramClient, error) {
	return m.ClientFunc(account)
}

// factoryFor строит фабрику, всегда возвращающую один и тот же клиент.
func factoryFor(client ports.TelegramClient) *MockClientFactory {
	return &MockClientFactory{
		ClientFunc: func(*domain.Account) (ports.TelegramClient, error) {
			return client, nil
		},
	}
}

// MockAccountStore - потокобезопасная in-memory реализация ports.AccountStore.
type MockAccountStore struct {
	mu       sync.Mutex
	nextID   int64
	accounts map[string]*domain.Account
}

func NewMockAccountStore() *MockAccountStore {
	return &MockAccountStore{accounts: make(map[string]*domain.Account)}
}

func (m *MockAccountStore) GetByPhone(_ context.Context, phone string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[phone]
	if !ok {
		return nil, nil
	}
	cp := *acc
	return &cp, nil
}

func (m *MockAccountStore) Insert(_ context.Context, acc *domain.Account) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	cp := *acc
	cp.ID = m.nextID
	m.accounts[acc.Phone] = &cp
	return cp.ID, nil
}

func (m *MockAccountStore) UpdateBlob(_ context.Context, phone string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if acc, ok := m.accounts[phone]; ok {
		acc.SessionBlob = append([]byte(nil), blob...)
	}
	return nil
}

func (m *MockAccountStore) Delete(_ context.Context, phone string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[phone]; !ok {
		return false, nil
	}
	delete(m.accounts, phone)
	return true, nil
}

func (m *MockAccountStore) List(_ context.Context) ([]domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Account, 0, len(m.accounts))
	for _, acc := range m.accounts {
		out = append(out, *acc)
	}
	return out, nil
}

// MockInviteStore - in-memory журнал инвайтов, сохраняющий порядок записей.
type MockInviteStore struct {
	mu      sync.Mutex
	nextID  int64
	Records []domain.InviteRecord
}

func (m *MockInviteStore) Insert(_ context.Context, rec *domain.InviteRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	cp := *rec
	cp.ID = m.nextID
	m.Records = append(m.Records, cp)
	return cp.ID, nil
}

func (m *MockInviteStore) ListByAccount(_ context.Context, accountID int64) ([]domain.InviteRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.InviteRecord, 0, len(m.Records))
	for _, rec := range m.Records {
		if rec.AccountID == accountID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// MockParsedUserStore - in-memory хранилище с ключом (user_id, chat_id).
type MockParsedUserStore struct {
	mu    sync.Mutex
	users map[[2]int64]domain.ParsedUser
}

func NewMockParsedUserStore() *MockParsedUserStore {
	return &MockParsedUserStore{users: make(map[[2]int64]domain.ParsedUser)}
}

func (m *MockParsedUserStore) Upsert(_ context.Context, u *domain.ParsedUser) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[[2]int64{u.UserID, u.ChatID}] = *u
	return nil
}

func (m *MockParsedUserStore) ListByChat(_ context.Context, chatID int64) ([]domain.ParsedUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.ParsedUser, 0, len(m.users))
	for key, u := range m.users {
		if key[1] == chatID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *MockParsedUserStore) Count(_ context.Context, userID, chatID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[[2]int64{userID, chatID}]; ok {
		return 1, nil
	}
	return 0, nil
}

// MockProxyStore - in-memory реализация ports.ProxyStore.
type MockProxyStore struct {
	mu      sync.Mutex
	proxies map[int64]domain.ProxySettings
}

func NewMockProxyStore() *MockProxyStore {
	return &MockProxyStore{proxies: make(map[int64]domain.ProxySettings)}
}

func (m *MockProxyStore) Upsert(_ context.Context, p *domain.ProxySettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.proxies[p.AccountID] = *p
	return nil
}

func (m *MockProxyStore) GetByAccount(_ context.Context, accountID int64) (*domain.ProxySettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.proxies[accountID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *MockProxyStore) Delete(_ context.Context, accountID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.proxies[accountID]; !ok {
		return false, nil
	}
	delete(m.proxies, accountID)
	return true, nil
}
