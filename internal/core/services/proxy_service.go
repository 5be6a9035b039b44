package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"telematrix/internal/domain"
	"telematrix/internal/ports"
)

// ErrInvalidProxy возвращается при сохранении некорректных настроек прокси.
var ErrInvalidProxy = errors.New("некорректные настройки прокси")

// ErrProxyNotFound возвращается, когда у аккаунта нет настроек прокси.
var ErrProxyNotFound = errors.New("прокси не настроен")

// ProxyOption — функциональная опция для настройки ProxyService.
type ProxyOption func(*ProxyService)

// WithProxyLogger устанавливает логгер для сервиса.
func WithProxyLogger(l *slog.Logger) ProxyOption {
	return func(s *ProxyService) {
		if l != nil {
			s.log = l
		}
	}
}

// WithProbeURL устанавливает адрес, запрашиваемый при проверке прокси.
func WithProbeURL(u string) ProxyOption {
	return func(s *ProxyService) {
		if u != "" {
			s.probeURL = u
		}
	}
}

// WithProbeTimeout устанавливает таймаут проверочного запроса.
func WithProbeTimeout(d time.Duration) ProxyOption {
	return func(s *ProxyService) {
		if d > 0 {
			s.probeTimeout = d
		}
	}
}

// ProxyService хранит настройки прокси аккаунтов и проверяет их
// работоспособность одним HTTP-запросом через прокси.
type ProxyService struct {
	proxies      ports.ProxyStore
	probeURL     string
	probeTimeout time.Duration
	log          *slog.Logger
}

// NewProxyService создает новый ProxyService.
func NewProxyService(proxies ports.ProxyStore, opts ...ProxyOption) *ProxyService {
	s := &ProxyService{
		proxies:      proxies,
		probeURL:     "https://api.telegram.org",
		probeTimeout: 10 * time.Second,
		log:          slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Set сохраняет настройки прокси аккаунта, заменяя прежние.
func (s *ProxyService) Set(ctx context.Context, p *domain.ProxySettings) error {
	switch p.Type {
	case "socks5", "http", "https":
	default:
		return fmt.Errorf("%w: неизвестный тип %q", ErrInvalidProxy, p.Type)
	}
	if strings.TrimSpace(p.Host) == "" || p.Port <= 0 || p.Port > 65535 {
		return fmt.Errorf("%w: требуются хост и порт", ErrInvalidProxy)
	}

	if err := s.proxies.Upsert(ctx, p); err != nil {
		return fmt.Errorf("сохранение прокси: %w", err)
	}
	s.log.InfoContext(ctx, "Proxy settings saved",
		"account_id", p.AccountID,
		"type", p.Type,
		"addr", p.Addr(),
	)
	return nil
}

// Get возвращает настройки прокси аккаунта или nil, если их нет.
func (s *ProxyService) Get(ctx context.Context, accountID int64) (*domain.ProxySettings, error) {
	return s.proxies.GetByAccount(ctx, accountID)
}

// Delete удаляет настройки прокси аккаунта. Возвращает false, если их не было.
func (s *ProxyService) Delete(ctx context.Context, accountID int64) (bool, error) {
	deleted, err := s.proxies.Delete(ctx, accountID)
	if err != nil {
		return false, fmt.Errorf("удаление прокси: %w", err)
	}
	if deleted {
		s.log.InfoContext(ctx, "Proxy settings deleted", "account_id", accountID)
	}
	return deleted, nil
}

// Probe проверяет прокси аккаунта одним GET-запросом через него. Любой
// полученный ответ означает, что прокси пропускает трафик; важен факт
// соединения, а не статус ответа.
func (s *ProxyService) Probe(ctx context.Context, accountID int64) error {
	p, err := s.proxies.GetByAccount(ctx, accountID)
	if err != nil {
		return fmt.Errorf("чтение прокси: %w", err)
	}
	if p == nil {
		return fmt.Errorf("%w: аккаунт %d", ErrProxyNotFound, accountID)
	}

	proxyURL := &url.URL{
		Scheme: p.Type,
		Host:   p.Addr(),
	}
	if p.Username != "" {
		proxyURL.User = url.UserPassword(p.Username, p.Password)
	}

	client := &http.Client{
		Timeout: s.probeTimeout,
		Transport: &http.Transport{
			Proxy: http.ProxyURL(proxyURL),
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.probeURL, nil)
	if err != nil {
		return fmt.Errorf("формирование запроса: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		s.log.WarnContext(ctx, "Proxy probe failed",
			"account_id", accountID,
			"addr", p.Addr(),
			"error", err,
		)
		return fmt.Errorf("проверка прокси %s: %w", p.Addr(), err)
	}
	defer resp.Body.Close()

	s.log.InfoContext(ctx, "Proxy probe succeeded",
		"account_id", accountID,
		"addr", p.Addr(),
		"status", resp.StatusCode,
	)
	return nil
}
