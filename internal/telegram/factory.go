package telegram

import (
	"log/slog"
	"time"

	"go.uber.org/zap"

	"telematrix/internal/domain"
	"telematrix/internal/ports"
)

// Factory создаёт протокольные клиенты, привязанные к учётным данным
// аккаунтов. Каждый вызов Client даёт независимый клиент: один клиент
// обслуживает ровно один запуск пайплайна.
type Factory struct {
	log            *slog.Logger
	zapLog         *zap.Logger
	connectTimeout time.Duration
}

var _ ports.ClientFactory = (*Factory)(nil)

// FactoryOption определяет функциональную опцию для конфигурации фабрики.
type FactoryOption func(*Factory)

// WithFactoryLogger устанавливает логгер, передаваемый создаваемым клиентам.
func WithFactoryLogger(l *slog.Logger) FactoryOption {
	return func(f *Factory) {
		if l != nil {
			f.log = l
		}
	}
}

// WithZapLogger включает отладочное логирование gotd. Клиент gotd принимает
// именно zap, поэтому для его внутренностей логгер отдельный.
func WithZapLogger(l *zap.Logger) FactoryOption {
	return func(f *Factory) {
		f.zapLog = l
	}
}

// WithFactoryConnectTimeout устанавливает таймаут подключения клиентов.
func WithFactoryConnectTimeout(d time.Duration) FactoryOption {
	return func(f *Factory) {
		if d > 0 {
			f.connectTimeout = d
		}
	}
}

// NewFactory создает новую фабрику клиентов.
func NewFactory(opts ...FactoryOption) *Factory {
	f := &Factory{
		log:            slog.Default(),
		connectTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Client создает протокольный клиент для аккаунта.
// TODO: пробрасывать ProxySettings аккаунта в dcs.Resolver, чтобы транспорт
// ходил через настроенный прокси.
func (f *Factory) Client(acc *domain.Account) (ports.TelegramClient, error) {
	return newClientWithZap(acc, f.zapLog,
		WithLogger(f.log),
		WithConnectTimeout(f.connectTimeout),
	)
}
