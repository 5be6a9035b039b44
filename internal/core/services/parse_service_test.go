package services

import (
	"context"
	"testing"
	"time"

	"github.com/gotd/td/tgerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telematrix/internal/domain"
)

// membersClient возвращает клиент, отдающий members постранично и профиль
// из той же выборки.
func membersClient(members []domain.UserInfo) *MockTelegramClient {
	byID := make(map[int64]domain.UserInfo, len(members))
	for _, m := range members {
		byID[m.ID] = m
	}
	return &MockTelegramClient{
		ResolveChatFunc: func(context.Context, string) (*domain.Chat, error) {
			return &domain.Chat{ID: 200, AccessHash: 1, Kind: domain.ChatMegagroup, Title: "Source"}, nil
		},
		ParticipantsFunc: func(_ context.Context, _ *domain.Chat, offset, limit int) ([]domain.UserInfo, error) {
			if offset >= len(members) {
				return nil, nil
			}
			end := offset + limit
			if end > len(members) {
				end = len(members)
			}
			return members[offset:end], nil
		},
		GetUserInfoFunc: func(_ context.Context, userID int64) (*domain.UserInfo, error) {
			info := byID[userID]
			return &info, nil
		},
	}
}

func newParseFixture(t *testing.T, client *MockTelegramClient, opts ...ParseOption) (*ParseService, *MockParsedUserStore) {
	t.Helper()
	store := NewMockAccountStore()
	authorizedAccount(t, store, "+1555")
	parsed := NewMockParsedUserStore()
	opts = append([]ParseOption{WithParseLogger(testLogger())}, opts...)
	svc := NewParseService(store, parsed, factoryFor(client), opts...)
	return svc, parsed
}

func TestScrapeSinglePage(t *testing.T) {
	members := []domain.UserInfo{
		{ID: 1, Username: "one"},
		{ID: 2, Username: "two"},
		{ID: 3, Username: "three"},
	}
	client := membersClient(members)

	pageRequests := 0
	inner := client.ParticipantsFunc
	client.ParticipantsFunc = func(ctx context.Context, chat *domain.Chat, offset, limit int) ([]domain.UserInfo, error) {
		pageRequests++
		return inner(ctx, chat, offset, limit)
	}

	svc, parsed := newParseFixture(t, client)

	users, err := svc.Scrape(context.Background(), "+1555", "@source", 5, domain.ParseFilters{}, nil)
	require.NoError(t, err)

	// Трое участников при лимите 5: одна неполная страница, вторая не запрашивается.
	assert.Len(t, users, 3)
	assert.Equal(t, 1, pageRequests)

	stored, err := parsed.ListByChat(context.Background(), 200)
	require.NoError(t, err)
	assert.Len(t, stored, 3)

	assert.Equal(t, 1, client.CloseCalls())
}

func TestScrapeRerunUpserts(t *testing.T) {
	members := []domain.UserInfo{{ID: 1, Username: "old"}}
	client := membersClient(members)
	svc, parsed := newParseFixture(t, client)
	ctx := context.Background()

	_, err := svc.Scrape(ctx, "+1555", "@source", 0, domain.ParseFilters{}, nil)
	require.NoError(t, err)

	// Повторный парсинг обновляет запись, а не дублирует её.
	members[0].Username = "new"
	client.GetUserInfoFunc = func(context.Context, int64) (*domain.UserInfo, error) {
		return &domain.UserInfo{ID: 1, Username: "new"}, nil
	}
	_, err = svc.Scrape(ctx, "+1555", "@source", 0, domain.ParseFilters{}, nil)
	require.NoError(t, err)

	count, err := parsed.Count(ctx, 1, 200)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	stored, err := parsed.ListByChat(ctx, 200)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "new", stored[0].Username)
}

func TestScrapePagination(t *testing.T) {
	members := []domain.UserInfo{
		{ID: 1, Username: "a"}, {ID: 2, Username: "b"},
		{ID: 3, Username: "c"}, {ID: 4, Username: "d"},
		{ID: 5, Username: "e"},
	}
	client := membersClient(members)

	var offsets []int
	inner := client.ParticipantsFunc
	client.ParticipantsFunc = func(ctx context.Context, chat *domain.Chat, offset, limit int) ([]domain.UserInfo, error) {
		offsets = append(offsets, offset)
		assert.LessOrEqual(t, limit, 2)
		return inner(ctx, chat, offset, limit)
	}

	svc, _ := newParseFixture(t, client, WithPageSize(2))

	users, err := svc.Scrape(context.Background(), "+1555", "@source", 0, domain.ParseFilters{}, nil)
	require.NoError(t, err)

	assert.Len(t, users, 5)
	// Смещение продвигается на размер возвращённой страницы; последняя
	// страница неполная и завершает обход.
	assert.Equal(t, []int{0, 2, 4}, offsets)
}

func TestScrapeLimitCutoff(t *testing.T) {
	members := []domain.UserInfo{
		{ID: 1, Username: "a"}, {ID: 2, Username: "b"},
		{ID: 3, Username: "c"}, {ID: 4, Username: "d"},
	}
	svc, parsed := newParseFixture(t, membersClient(members))

	users, err := svc.Scrape(context.Background(), "+1555", "@source", 2, domain.ParseFilters{}, nil)
	require.NoError(t, err)

	assert.Len(t, users, 2)
	stored, err := parsed.ListByChat(context.Background(), 200)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestScrapeLimitOnPageBoundary(t *testing.T) {
	members := []domain.UserInfo{
		{ID: 1, Username: "a"}, {ID: 2, Username: "b"},
		{ID: 3, Username: "c"}, {ID: 4, Username: "d"},
	}
	client := membersClient(members)

	pageRequests := 0
	inner := client.ParticipantsFunc
	client.ParticipantsFunc = func(ctx context.Context, chat *domain.Chat, offset, limit int) ([]domain.UserInfo, error) {
		pageRequests++
		return inner(ctx, chat, offset, limit)
	}

	svc, _ := newParseFixture(t, client, WithPageSize(2))

	users, err := svc.Scrape(context.Background(), "+1555", "@source", 2, domain.ParseFilters{}, nil)
	require.NoError(t, err)

	// Лимит выбран последним участником полной страницы: следующая страница
	// не запрашивается.
	assert.Len(t, users, 2)
	assert.Equal(t, 1, pageRequests)
}

func TestScrapeFilters(t *testing.T) {
	now := time.Now()
	recent := now.Add(-time.Hour)
	stale := now.Add(-30 * 24 * time.Hour)

	members := []domain.UserInfo{
		{ID: 1, Username: "named", LastSeen: &recent},
		{ID: 2, Username: ""},
		{ID: 3, Username: "bot", Bot: true},
		{ID: 4, Username: "prem", Premium: true},
		{ID: 5, Username: "stale", LastSeen: &stale},
		{ID: 6, Username: "hidden"}, // статус скрыт: LastSeen == nil
	}

	filters := domain.ParseFilters{
		OnlyWithUsername:   true,
		OnlyRecentlyActive: true,
		ExcludeBots:        true,
		ExcludePremium:     true,
	}

	svc, _ := newParseFixture(t, membersClient(members))

	users, err := svc.Scrape(context.Background(), "+1555", "@source", 0, filters, nil)
	require.NoError(t, err)

	// Проходят активный с юзернеймом и участник со скрытым статусом:
	// отсутствие данных об активности не считается неактивностью.
	require.Len(t, users, 2)
	assert.Equal(t, int64(1), users[0].UserID)
	assert.Equal(t, int64(6), users[1].UserID)
}

func TestScrapePrivacyRestrictedMemberSkipped(t *testing.T) {
	members := []domain.UserInfo{
		{ID: 1, Username: "open"},
		{ID: 2, Username: "private"},
	}
	client := membersClient(members)
	client.GetUserInfoFunc = func(_ context.Context, userID int64) (*domain.UserInfo, error) {
		if userID == 2 {
			return nil, tgerr.New(403, "USER_PRIVACY_RESTRICTED")
		}
		return &domain.UserInfo{ID: userID, Username: "open"}, nil
	}

	svc, parsed := newParseFixture(t, client)

	var last domain.StatsSnapshot
	users, err := svc.Scrape(context.Background(), "+1555", "@source", 0, domain.ParseFilters{},
		func(snapshot domain.StatsSnapshot) { last = snapshot })
	require.NoError(t, err)

	// Приватность одного участника не прерывает запуск.
	assert.Len(t, users, 1)
	assert.Equal(t, uint64(1), last.Success)
	assert.Equal(t, uint64(1), last.Skipped)

	count, err := parsed.Count(context.Background(), 2, 200)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestScrapePageFloodWaitRetried(t *testing.T) {
	members := []domain.UserInfo{{ID: 1, Username: "a"}}
	client := membersClient(members)

	pageCalls := 0
	inner := client.ParticipantsFunc
	client.ParticipantsFunc = func(ctx context.Context, chat *domain.Chat, offset, limit int) ([]domain.UserInfo, error) {
		pageCalls++
		if pageCalls == 1 {
			return nil, tgerr.New(420, "FLOOD_WAIT_10")
		}
		return inner(ctx, chat, offset, limit)
	}

	svc, _ := newParseFixture(t, client)
	var slept []time.Duration
	svc.exec.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	users, err := svc.Scrape(context.Background(), "+1555", "@source", 0, domain.ParseFilters{}, nil)
	require.NoError(t, err)

	// Та же страница повторяется после ожидания, а не пропускается.
	assert.Len(t, users, 1)
	assert.Equal(t, 2, pageCalls)
	assert.Equal(t, []time.Duration{10 * time.Second}, slept)
}

func TestScrapeCancelled(t *testing.T) {
	members := []domain.UserInfo{
		{ID: 1, Username: "a"}, {ID: 2, Username: "b"}, {ID: 3, Username: "c"},
	}
	client := membersClient(members)
	svc, _ := newParseFixture(t, client)

	ctx, cancel := context.WithCancel(context.Background())
	users, err := svc.Scrape(ctx, "+1555", "@source", 0, domain.ParseFilters{},
		func(snapshot domain.StatsSnapshot) {
			if snapshot.Total() == 1 {
				cancel()
			}
		})

	assert.ErrorIs(t, err, context.Canceled)
	// Собранное до отмены не теряется.
	assert.Len(t, users, 1)
	assert.Equal(t, 1, client.CloseCalls())
}

func TestScrapeRequiresAuthorizedAccount(t *testing.T) {
	store := NewMockAccountStore()
	registerAccount(t, store, "+1555")
	svc := NewParseService(store, NewMockParsedUserStore(), factoryFor(&MockTelegramClient{}), WithParseLogger(testLogger()))

	_, err := svc.Scrape(context.Background(), "+1555", "@source", 0, domain.ParseFilters{}, nil)
	assert.ErrorIs(t, err, ErrAccountNotAuthorized)
}
