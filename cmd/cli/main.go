// Утилита командной строки для работы с аккаунтами и пайплайнами без
// HTTP-сервера: регистрация, интерактивный вход, инвайты и парсинг.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"telematrix/internal/core/services"
	"telematrix/internal/domain"
	"telematrix/internal/export"
	applog "telematrix/internal/log"
	"telematrix/internal/pkg/config"
	"telematrix/internal/pkg/term"
	"telematrix/internal/storage"
	"telematrix/internal/telegram"
)

const usage = `Usage: telematrix-cli <command> [flags]

Commands:
  accounts                       список аккаунтов
  add-account -phone -api-id -api-hash
                                 регистрация аккаунта
  delete-account -phone          удаление аккаунта
  login -phone                   интерактивная авторизация
  invite -phone -chat -targets   добавление пользователей в чат
  parse -phone -chat [-limit] [-out file.xlsx]
                                 сбор участников чата
`

// app связывает сервисы ядра с разобранной конфигурацией.
type app struct {
	cfg      *config.Config
	db       *sql.DB
	accounts *services.AccountService
	auth     *services.AuthService
	invites  *services.InviteService
	parses   *services.ParseService
	parsed   *storage.ParsedUserStore
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err := run(os.Args[1], os.Args[2:]); err != nil {
		slog.Error("command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func run(command string, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})
	logger := slog.New(handler)
	if cfg.Logging.MaskPhones {
		logger = applog.NewMaskedLogger(handler)
	}
	slog.SetDefault(logger)

	db, err := storage.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	accountStore := storage.NewAccountStore(db)
	parsedStore := storage.NewParsedUserStore(db)
	factory := telegram.NewFactory(
		telegram.WithFactoryLogger(logger),
		telegram.WithFactoryConnectTimeout(time.Duration(cfg.Telegram.ConnectTimeoutSeconds)*time.Second),
	)

	a := &app{
		cfg:      cfg,
		db:       db,
		accounts: services.NewAccountService(accountStore, factory, services.WithAccountLogger(logger)),
		auth:     services.NewAuthService(accountStore, factory, services.WithAuthLogger(logger)),
		invites:  services.NewInviteService(accountStore, storage.NewInviteStore(db), factory, services.WithInviteLogger(logger)),
		parsed:   parsedStore,
		parses: services.NewParseService(accountStore, parsedStore, factory,
			services.WithParseLogger(logger),
			services.WithPageSize(cfg.Jobs.ParsePageSize),
			services.WithRecentWindow(time.Duration(cfg.Jobs.RecentDays)*24*time.Hour),
		),
	}

	// Запущенный пайплайн останавливается по Ctrl+C с сохранением прогресса.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch command {
	case "accounts":
		return a.listAccounts(ctx)
	case "add-account":
		return a.addAccount(ctx, args)
	case "delete-account":
		return a.deleteAccount(ctx, args)
	case "login":
		return a.login(ctx, args)
	case "invite":
		return a.invite(ctx, args)
	case "parse":
		return a.parse(ctx, args)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func (a *app) listAccounts(ctx context.Context) error {
	accounts, err := a.accounts.List(ctx)
	if err != nil {
		return err
	}

	if len(accounts) == 0 {
		fmt.Println("Аккаунты не зарегистрированы.")
		return nil
	}
	for _, acc := range accounts {
		status := "не авторизован"
		if acc.Authorized() {
			status = "авторизован"
		}
		fmt.Printf("%s\t%s\t%s\n", acc.Phone, status, acc.CreatedAt.Format(time.RFC3339))
	}
	return nil
}

func (a *app) addAccount(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("add-account", flag.ExitOnError)
	phone := fs.String("phone", "", "номер телефона в формате +...")
	apiID := fs.Int("api-id", 0, "api_id приложения")
	apiHash := fs.String("api-hash", "", "api_hash приложения")
	fs.Parse(args)

	acc, err := a.accounts.Register(ctx, *phone, *apiID, *apiHash)
	if err != nil {
		return err
	}
	fmt.Printf("Аккаунт %s зарегистрирован (id %d). Выполните login для авторизации.\n", acc.Phone, acc.ID)
	return nil
}

func (a *app) deleteAccount(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("delete-account", flag.ExitOnError)
	phone := fs.String("phone", "", "номер телефона")
	fs.Parse(args)

	deleted, err := a.accounts.Delete(ctx, *phone)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("аккаунт %s не найден", *phone)
	}
	fmt.Printf("Аккаунт %s удалён.\n", *phone)
	return nil
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	phone := fs.String("phone", "", "номер телефона")
	fs.Parse(args)

	code, password := term.NewTerminal().Providers()
	ok, err := a.auth.Authenticate(ctx, *phone, code, password)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("авторизация %s не удалась", *phone)
	}
	fmt.Printf("Аккаунт %s авторизован.\n", *phone)
	return nil
}

func (a *app) invite(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("invite", flag.ExitOnError)
	phone := fs.String("phone", "", "номер телефона аккаунта")
	chat := fs.String("chat", "", "чат назначения (@username или t.me/...)")
	targets := fs.String("targets", "", "цели через запятую (@username или числовой ID)")
	delay := fs.Int("delay", a.cfg.Jobs.InviteDelaySeconds, "задержка между инвайтами, сек")
	fs.Parse(args)

	list := splitTargets(*targets)
	if len(list) == 0 {
		return fmt.Errorf("требуется хотя бы одна цель")
	}

	stats, err := a.invites.Invite(ctx, *phone, *chat, list, time.Duration(*delay)*time.Second,
		func(snapshot domain.StatsSnapshot) {
			fmt.Printf("\rОбработано %d из %d (успех %d, пропуск %d, ошибка %d)",
				snapshot.Total(), len(list), snapshot.Success, snapshot.Skipped, snapshot.Error)
		})
	fmt.Println()
	if err != nil {
		fmt.Printf("Запуск остановлен: успех %d, пропуск %d, ошибка %d\n",
			stats.Success, stats.Skipped, stats.Error)
		return err
	}

	fmt.Printf("Готово: успех %d, пропуск %d, ошибка %d\n", stats.Success, stats.Skipped, stats.Error)
	return nil
}

func (a *app) parse(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("parse", flag.ExitOnError)
	phone := fs.String("phone", "", "номер телефона аккаунта")
	chat := fs.String("chat", "", "чат-источник (@username или t.me/...)")
	limit := fs.Int("limit", 0, "максимум принятых участников (0 — без ограничения)")
	out := fs.String("out", "", "путь XLSX-файла для выгрузки")
	onlyUsername := fs.Bool("only-username", false, "только участники с юзернеймом")
	onlyRecent := fs.Bool("only-recent", false, "только недавно активные")
	noBots := fs.Bool("no-bots", false, "исключить ботов")
	noPremium := fs.Bool("no-premium", false, "исключить премиум-аккаунты")
	fs.Parse(args)

	filters := domain.ParseFilters{
		OnlyWithUsername:   *onlyUsername,
		OnlyRecentlyActive: *onlyRecent,
		ExcludeBots:        *noBots,
		ExcludePremium:     *noPremium,
	}

	users, err := a.parses.Scrape(ctx, *phone, *chat, *limit, filters,
		func(snapshot domain.StatsSnapshot) {
			fmt.Printf("\rПринято %d (пропуск %d, ошибка %d)",
				snapshot.Success, snapshot.Skipped, snapshot.Error)
		})
	fmt.Println()
	if err != nil {
		return err
	}

	fmt.Printf("Собрано участников: %d\n", len(users))

	if *out != "" {
		f, createErr := os.Create(*out)
		if createErr != nil {
			return fmt.Errorf("создание файла выгрузки: %w", createErr)
		}
		defer f.Close()
		if writeErr := export.WriteExcel(f, users); writeErr != nil {
			return writeErr
		}
		fmt.Printf("Выгрузка сохранена в %s\n", *out)
	}
	return nil
}

func splitTargets(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
