// Package server предоставляет HTTP API для управления аккаунтами,
// запусками пайплайнов и настройками прокси.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"telematrix/internal/core/services"
	"telematrix/internal/domain"
	"telematrix/internal/export"
	"telematrix/internal/pkg/config"
	"telematrix/internal/ports"
)

// Authenticator доводит авторизацию аккаунта до терминального состояния.
type Authenticator interface {
	Authenticate(ctx context.Context, phone string, code ports.CodeProvider, password ports.PasswordProvider) (bool, error)
}

// Inviter выполняет запуск инвайтов.
type Inviter interface {
	Invite(ctx context.Context, phone, chatRef string, targets []string, delay time.Duration, progress ports.ProgressFunc) (domain.StatsSnapshot, error)
}

// Scraper выполняет запуск парсинга участников.
type Scraper interface {
	Scrape(ctx context.Context, phone, chatRef string, limit int, filters domain.ParseFilters, progress ports.ProgressFunc) ([]domain.ParsedUser, error)
}

// AccountManager управляет реестром аккаунтов.
type AccountManager interface {
	Register(ctx context.Context, phone string, apiID int, apiHash string) (*domain.Account, error)
	List(ctx context.Context) ([]domain.Account, error)
	Delete(ctx context.Context, phone string) (bool, error)
	Check(ctx context.Context, phone string) (bool, error)
}

// ProxyManager управляет настройками прокси аккаунтов.
type ProxyManager interface {
	Set(ctx context.Context, p *domain.ProxySettings) error
	Get(ctx context.Context, accountID int64) (*domain.ProxySettings, error)
	Delete(ctx context.Context, accountID int64) (bool, error)
	Probe(ctx context.Context, accountID int64) error
}

// Services собирает зависимости сервера.
type Services struct {
	Auth     Authenticator
	Invites  Inviter
	Scrapes  Scraper
	Accounts AccountManager
	Proxies  ProxyManager
}

// Server представляет HTTP-сервер
type Server struct {
	HTTPServer *http.Server
	cfg        *config.Config
	runStore   *RunStore
	services   Services
	log        *slog.Logger

	stopCleanup context.CancelFunc
}

// New создает новый экземпляр Server
func New(cfg *config.Config, services Services, runStore *RunStore, log *slog.Logger) (*Server, error) {
	if log == nil {
		log = slog.Default()
	}

	s := &Server{
		cfg:      cfg,
		runStore: runStore,
		services: services,
		log:      log,
	}

	chiRouter := chi.NewRouter()

	// Промежуточное ПО
	chiRouter.Use(middleware.Logger)
	chiRouter.Use(middleware.Recoverer)

	// Конечная точка для проверки работоспособности
	chiRouter.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Маршруты API
	chiRouter.Route("/api/v1", func(r chi.Router) {
		r.Route("/accounts", func(r chi.Router) {
			r.Post("/", s.handleRegisterAccount)
			r.Get("/", s.handleListAccounts)
			r.Delete("/{phone}", s.handleDeleteAccount)
			r.Get("/{phone}/status", s.handleAccountStatus)
			r.Post("/{phone}/auth", s.handleAuthenticate)
		})

		r.Post("/invites", s.handleStartInvite)
		r.Post("/scrapes", s.handleStartScrape)

		r.Route("/runs/{runID}", func(r chi.Router) {
			r.Get("/", s.handleGetRun)
			r.Post("/cancel", s.handleCancelRun)
			r.Get("/export", s.handleExportRun)
		})

		r.Route("/proxies", func(r chi.Router) {
			r.Post("/", s.handleSetProxy)
			r.Get("/{accountID}", s.handleGetProxy)
			r.Delete("/{accountID}", s.handleDeleteProxy)
			r.Post("/{accountID}/probe", s.handleProbeProxy)
		})
	})

	s.HTTPServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      chiRouter,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Тикер очистки просроченных запусков живёт до Shutdown.
	cleanupCtx, cancel := context.WithCancel(context.Background())
	s.stopCleanup = cancel
	s.runStore.StartCleanupTicker(cleanupCtx, 1*time.Hour)

	return s, nil
}

// ListenAndServe запускает HTTP-сервер
func (s *Server) ListenAndServe() error {
	return s.HTTPServer.ListenAndServe()
}

// Shutdown корректно завершает работу HTTP-сервера
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Завершение работы HTTP-сервера")
	s.stopCleanup()
	return s.HTTPServer.Shutdown(ctx)
}

// Router возвращает обработчик запросов сервера.
func (s *Server) Router() http.Handler {
	return s.HTTPServer.Handler
}

func (s *Server) handleRegisterAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone   string `json:"phone"`
		APIID   int    `json:"api_id"`
		APIHash string `json:"api_hash"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Не удалось декодировать тело запроса", http.StatusBadRequest)
		return
	}

	acc, err := s.services.Accounts.Register(r.Context(), req.Phone, req.APIID, req.APIHash)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusCreated, accountResponse(acc))
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.services.Accounts.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	out := make([]map[string]any, 0, len(accounts))
	for i := range accounts {
		out = append(out, accountResponse(&accounts[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": out})
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	phone := chi.URLParam(r, "phone")

	deleted, err := s.services.Accounts.Delete(r.Context(), phone)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !deleted {
		http.Error(w, "Аккаунт не найден", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAccountStatus(w http.ResponseWriter, r *http.Request) {
	phone := chi.URLParam(r, "phone")

	authorized, err := s.services.Accounts.Check(r.Context(), phone)
	if err != nil {
		status := http.StatusInternalServerError
		if isNotFound(err) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"phone":      phone,
		"authorized": authorized,
	})
}

// handleAuthenticate выполняет авторизацию с кодом и паролем из тела запроса:
// интерактивные колбэки здесь заменяются заранее известными значениями.
func (s *Server) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	phone := chi.URLParam(r, "phone")

	var req struct {
		Code     string `json:"code"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Не удалось декодировать тело запроса", http.StatusBadRequest)
		return
	}

	code := func(context.Context, string) (string, error) { return req.Code, nil }
	var password ports.PasswordProvider
	if req.Password != "" {
		password = func(context.Context, string) (string, error) { return req.Password, nil }
	}

	ok, err := s.services.Auth.Authenticate(r.Context(), phone, code, password)
	if err != nil {
		status := http.StatusInternalServerError
		if isNotFound(err) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"phone":      phone,
		"authorized": ok,
	})
}

func (s *Server) handleStartInvite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone        string   `json:"phone"`
		Chat         string   `json:"chat"`
		Targets      []string `json:"targets"`
		DelaySeconds *int     `json:"delay_seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Не удалось декодировать тело запроса", http.StatusBadRequest)
		return
	}
	if req.Phone == "" || req.Chat == "" || len(req.Targets) == 0 {
		http.Error(w, "Требуются phone, chat и targets", http.StatusBadRequest)
		return
	}

	delay := time.Duration(s.cfg.Jobs.InviteDelaySeconds) * time.Second
	if req.DelaySeconds != nil {
		delay = time.Duration(*req.DelaySeconds) * time.Second
	}

	// Запуск живёт дольше HTTP-запроса, поэтому контекст собственный.
	runCtx, cancel := context.WithCancel(context.Background())
	runID := s.runStore.CreateRun(RunKindInvite, req.Phone, s.runTTL(), cancel)

	go func() {
		defer cancel()
		s.runStore.UpdateStatus(runID, RunStatusRunning)

		stats, err := s.services.Invites.Invite(runCtx, req.Phone, req.Chat, req.Targets, delay,
			func(snapshot domain.StatsSnapshot) {
				s.runStore.UpdateStats(runID, snapshot)
			})
		switch {
		case err == nil:
			s.runStore.CompleteInvite(runID, stats)
		case errors.Is(err, context.Canceled):
			s.runStore.MarkCancelled(runID, stats, nil)
		default:
			s.log.Error("Invite run failed", "run_id", runID, "error", err)
			s.runStore.Fail(runID, err.Error())
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

func (s *Server) handleStartScrape(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone   string `json:"phone"`
		Chat    string `json:"chat"`
		Limit   int    `json:"limit"`
		Filters struct {
			OnlyWithUsername   bool `json:"only_with_username"`
			OnlyRecentlyActive bool `json:"only_recently_active"`
			ExcludeBots        bool `json:"exclude_bots"`
			ExcludePremium     bool `json:"exclude_premium"`
		} `json:"filters"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Не удалось декодировать тело запроса", http.StatusBadRequest)
		return
	}
	if req.Phone == "" || req.Chat == "" {
		http.Error(w, "Требуются phone и chat", http.StatusBadRequest)
		return
	}

	filters := domain.ParseFilters{
		OnlyWithUsername:   req.Filters.OnlyWithUsername,
		OnlyRecentlyActive: req.Filters.OnlyRecentlyActive,
		ExcludeBots:        req.Filters.ExcludeBots,
		ExcludePremium:     req.Filters.ExcludePremium,
	}

	runCtx, cancel := context.WithCancel(context.Background())
	runID := s.runStore.CreateRun(RunKindScrape, req.Phone, s.runTTL(), cancel)

	go func() {
		defer cancel()
		s.runStore.UpdateStatus(runID, RunStatusRunning)

		var last domain.StatsSnapshot
		users, err := s.services.Scrapes.Scrape(runCtx, req.Phone, req.Chat, req.Limit, filters,
			func(snapshot domain.StatsSnapshot) {
				last = snapshot
				s.runStore.UpdateStats(runID, snapshot)
			})
		switch {
		case err == nil:
			s.runStore.CompleteScrape(runID, users)
		case errors.Is(err, context.Canceled):
			// Собранное до отмены сохраняется в запуске.
			s.runStore.MarkCancelled(runID, last, users)
		default:
			s.log.Error("Scrape run failed", "run_id", runID, "error", err)
			s.runStore.Fail(runID, err.Error())
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	run, err := s.runStore.Get(runID)
	if err != nil {
		http.Error(w, "Запуск не найден", http.StatusNotFound)
		return
	}

	resp := map[string]any{
		"run_id":        run.ID,
		"kind":          run.Kind,
		"phone":         run.Phone,
		"status":        run.Status,
		"stats":         run.Stats,
		"error_message": run.ErrorMessage,
	}
	if run.Kind == RunKindScrape && (run.Status == RunStatusCompleted || run.Status == RunStatusCancelled) {
		resp["users"] = scrapedResponse(run.Users)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	if !s.runStore.Cancel(runID) {
		http.Error(w, "Запуск не найден или уже завершён", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

// handleExportRun отдаёт участников завершённого запуска парсинга XLSX-файлом.
func (s *Server) handleExportRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	run, err := s.runStore.Get(runID)
	if err != nil {
		http.Error(w, "Запуск не найден", http.StatusNotFound)
		return
	}
	if run.Kind != RunKindScrape {
		http.Error(w, "Выгрузка доступна только для запусков парсинга", http.StatusBadRequest)
		return
	}
	if run.Status != RunStatusCompleted && run.Status != RunStatusCancelled {
		http.Error(w, "Запуск не завершён", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename=\""+export.ExcelFileName(time.Now())+"\"")
	if err := export.WriteExcel(w, run.Users); err != nil {
		s.log.Error("Failed to write excel export", "run_id", runID, "error", err)
	}
}

func (s *Server) handleSetProxy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID int64  `json:"account_id"`
		Type      string `json:"type"`
		Host      string `json:"host"`
		Port      int    `json:"port"`
		Username  string `json:"username"`
		Password  string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Не удалось декодировать тело запроса", http.StatusBadRequest)
		return
	}

	p := &domain.ProxySettings{
		AccountID: req.AccountID,
		Type:      req.Type,
		Host:      req.Host,
		Port:      req.Port,
		Username:  req.Username,
		Password:  req.Password,
	}
	if err := s.services.Proxies.Set(r.Context(), p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetProxy(w http.ResponseWriter, r *http.Request) {
	accountID, err := parseAccountID(r)
	if err != nil {
		http.Error(w, "Недопустимый идентификатор аккаунта", http.StatusBadRequest)
		return
	}

	p, err := s.services.Proxies.Get(r.Context(), accountID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if p == nil {
		http.Error(w, "Прокси не настроен", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"account_id": p.AccountID,
		"type":       p.Type,
		"host":       p.Host,
		"port":       p.Port,
		"username":   p.Username,
	})
}

func (s *Server) handleDeleteProxy(w http.ResponseWriter, r *http.Request) {
	accountID, err := parseAccountID(r)
	if err != nil {
		http.Error(w, "Недопустимый идентификатор аккаунта", http.StatusBadRequest)
		return
	}

	deleted, err := s.services.Proxies.Delete(r.Context(), accountID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !deleted {
		http.Error(w, "Прокси не настроен", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProbeProxy(w http.ResponseWriter, r *http.Request) {
	accountID, err := parseAccountID(r)
	if err != nil {
		http.Error(w, "Недопустимый идентификатор аккаунта", http.StatusBadRequest)
		return
	}

	if err := s.services.Proxies.Probe(r.Context(), accountID); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"account_id": accountID,
			"reachable":  false,
			"error":      err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account_id": accountID,
		"reachable":  true,
	})
}

func (s *Server) runTTL() time.Duration {
	return time.Duration(s.cfg.Jobs.RunTTLHours) * time.Hour
}

func parseAccountID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "accountID"), 10, 64)
}

func accountResponse(acc *domain.Account) map[string]any {
	return map[string]any{
		"id":         acc.ID,
		"phone":      acc.Phone,
		"authorized": acc.Authorized(),
		"created_at": acc.CreatedAt,
	}
}

func scrapedResponse(users []domain.ParsedUser) []map[string]any {
	out := make([]map[string]any, 0, len(users))
	for _, u := range users {
		out = append(out, map[string]any{
			"user_id":    u.UserID,
			"chat_id":    u.ChatID,
			"username":   u.Username,
			"first_name": u.FirstName,
			"last_name":  u.LastName,
			"parsed_at":  u.ParsedAt,
		})
	}
	return out
}

// isNotFound сообщает, означает ли ошибка отсутствие аккаунта.
func isNotFound(err error) bool {
	return errors.Is(err, services.ErrAccountNotFound)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
