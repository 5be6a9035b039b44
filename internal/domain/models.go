package domain

import (
	"strconv"
	"strings"
	"time"
)

// Account представляет один Telegram-аккаунт, от имени которого выполняются операции.
// Номер телефона является естественным ключом: на один номер — не более одной записи.
type Account struct {
	ID      int64
	Phone   string
	APIID   int
	APIHash string
	// SessionBlob — сериализованная сессия MTProto. Пустое значение означает,
	// что аккаунт ещё не авторизован.
	SessionBlob []byte
	CreatedAt   time.Time
}

// Authorized сообщает, есть ли у аккаунта сохранённая сессия.
func (a *Account) Authorized() bool {
	return len(a.SessionBlob) > 0
}

// AuthState описывает состояние одной попытки авторизации.
// Попытка существует только в памяти на время вызова Authenticate.
type AuthState int

const (
	AuthDisconnected AuthState = iota
	AuthCodeRequested
	AuthAwaitingCode
	AuthAwaitingSecondFactor
	AuthAuthenticated
	AuthFailed
)

// String возвращает человекочитаемое имя состояния.
func (s AuthState) String() string {
	switch s {
	case AuthDisconnected:
		return "disconnected"
	case AuthCodeRequested:
		return "code_requested"
	case AuthAwaitingCode:
		return "awaiting_code"
	case AuthAwaitingSecondFactor:
		return "awaiting_second_factor"
	case AuthAuthenticated:
		return "authenticated"
	case AuthFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// FailReason — причина завершения попытки авторизации неуспехом.
type FailReason string

const (
	FailNone               FailReason = ""
	FailInvalidPhone       FailReason = "invalid_phone"
	FailRateLimited        FailReason = "rate_limited"
	FailNoCodeProvided     FailReason = "no_code_provided"
	FailNoPasswordProvided FailReason = "no_password_provided"
	FailInvalidCode        FailReason = "invalid_code"
	FailExpiredCode        FailReason = "expired_code"
	FailInvalidPassword    FailReason = "invalid_password"
)

// TargetKind указывает, как трактовать идентификатор цели инвайта.
type TargetKind int

const (
	// TargetUsername — цель задана @username.
	TargetUsername TargetKind = iota
	// TargetNumericID — цель задана числовым идентификатором пользователя.
	TargetNumericID
)

// InviteTarget — один запрошенный оператором кандидат на добавление в чат.
type InviteTarget struct {
	Raw  string
	Kind TargetKind
}

// UserID возвращает числовой идентификатор для целей вида TargetNumericID.
func (t InviteTarget) UserID() (int64, bool) {
	if t.Kind != TargetNumericID {
		return 0, false
	}
	id, err := strconv.ParseInt(t.Raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Username возвращает имя пользователя без префикса '@'.
func (t InviteTarget) Username() string {
	return strings.TrimPrefix(t.Raw, "@")
}

// ParseTarget классифицирует сырой идентификатор, введённый оператором.
// Строка из одних цифр считается числовым ID, всё остальное — username.
func ParseTarget(raw string) InviteTarget {
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" && !strings.HasPrefix(trimmed, "@") {
		if _, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			return InviteTarget{Raw: trimmed, Kind: TargetNumericID}
		}
	}
	return InviteTarget{Raw: trimmed, Kind: TargetUsername}
}

// ParseTargets разбирает список сырых идентификаторов, отбрасывая пустые строки.
func ParseTargets(raw []string) []InviteTarget {
	targets := make([]InviteTarget, 0, len(raw))
	for _, r := range raw {
		if strings.TrimSpace(r) == "" {
			continue
		}
		targets = append(targets, ParseTarget(r))
	}
	return targets
}

// InviteRecord — один сохранённый исход попытки инвайта. Записи только добавляются:
// по одной строке на цель, в порядке входного списка.
type InviteRecord struct {
	ID        int64
	AccountID int64
	UserID    int64
	ChatID    int64
	Status    string
	InvitedAt time.Time
}

// ParsedUser — один участник, принятый парсером. Естественный ключ —
// пара (UserID, ChatID); повторный парсинг обновляет запись, а не дублирует её.
type ParsedUser struct {
	UserID    int64
	ChatID    int64
	Username  string
	FirstName string
	LastName  string
	Phone     string
	ParsedAt  time.Time
}

// ParseFilters — необязательные фильтры парсинга участников. Нулевое значение
// означает «фильтры выключены».
type ParseFilters struct {
	OnlyWithUsername   bool
	OnlyRecentlyActive bool
	ExcludeBots        bool
	ExcludePremium     bool
}

// UserInfo — профиль пользователя, полученный от Telegram API.
type UserInfo struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
	Phone     string
	Bot       bool
	Premium   bool
	// LastSeen — время последнего появления в сети, если статус пользователя
	// его раскрывает. nil, когда статус скрыт или отсутствует.
	LastSeen *time.Time
}

// ChatKind различает широковещательные каналы, супергруппы и обычные группы.
// От вида чата зависит, какой примитив инвайта и пагинации используется.
type ChatKind int

const (
	ChatBroadcast ChatKind = iota
	ChatMegagroup
	ChatBasicGroup
)

// Chat — разрешённый хэндл чата назначения или источника.
// AccessHash имеет смысл только для каналов и супергрупп.
type Chat struct {
	ID         int64
	AccessHash int64
	Title      string
	Kind       ChatKind
}

// Broadcast сообщает, является ли чат широковещательным каналом.
func (c *Chat) Broadcast() bool {
	return c.Kind == ChatBroadcast
}

// ProxySettings — настройки прокси для одного аккаунта.
type ProxySettings struct {
	ID        int64
	AccountID int64
	Type      string
	Host      string
	Port      int
	Username  string
	Password  string
	CreatedAt time.Time
}

// Addr возвращает адрес прокси в формате "host:port".
func (p *ProxySettings) Addr() string {
	return p.Host + ":" + strconv.Itoa(p.Port)
}
