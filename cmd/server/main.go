package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sevlyar/go-daemon"
	"go.uber.org/zap"

	"telematrix/internal/core/services"
	applog "telematrix/internal/log"
	"telematrix/internal/pkg/config"
	"telematrix/internal/server"
	"telematrix/internal/storage"
	"telematrix/internal/telegram"
)

func main() {
	daemonize := flag.Bool("daemon", false, "запустить сервер в фоновом режиме")
	flag.Parse()

	if *daemonize {
		dctx := &daemon.Context{
			PidFileName: "telematrix.pid",
			PidFilePerm: 0644,
			LogFileName: "telematrix.log",
			LogFilePerm: 0640,
			Umask:       027,
		}

		child, err := dctx.Reborn()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to daemonize: %v\n", err)
			os.Exit(1)
		}
		if child != nil {
			// Родительский процесс завершается, сервер живёт в потомке.
			return
		}
		defer dctx.Release()
	}

	if err := run(); err != nil {
		slog.Error("application run failed", "error", err)
		os.Exit(1)
	}
}

// run инкапсулирует всю логику инициализации и запуска приложения.
func run() error {
	// 1. Загрузка и валидация конфигурации
	cfg, err := config.LoadConfig()
	if err != nil {
		// Логгер еще не инициализирован, выводим в stderr
		_, _ = fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Инициализация логгера
	var level slog.Level
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	var handler slog.Handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler)
	if cfg.Logging.MaskPhones {
		// Номера телефонов в логах маскируются.
		logger = applog.NewMaskedLogger(handler)
	}
	slog.SetDefault(logger)

	// 3. Валидация конфигурации (после инициализации логгера)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// 4. Открытие хранилища и применение миграций
	db, err := storage.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	accountStore := storage.NewAccountStore(db)
	inviteStore := storage.NewInviteStore(db)
	parsedStore := storage.NewParsedUserStore(db)
	proxyStore := storage.NewProxyStore(db)

	// 5. Фабрика протокольных клиентов
	factoryOpts := []telegram.FactoryOption{
		telegram.WithFactoryLogger(logger),
		telegram.WithFactoryConnectTimeout(time.Duration(cfg.Telegram.ConnectTimeoutSeconds) * time.Second),
	}
	if cfg.Telegram.DebugLogging {
		zapLog, zapErr := zap.NewDevelopment()
		if zapErr != nil {
			return fmt.Errorf("failed to create zap logger: %w", zapErr)
		}
		defer zapLog.Sync()
		factoryOpts = append(factoryOpts, telegram.WithZapLogger(zapLog))
	}
	factory := telegram.NewFactory(factoryOpts...)

	// 6. Сервисы ядра
	authSvc := services.NewAuthService(accountStore, factory, services.WithAuthLogger(logger))
	inviteSvc := services.NewInviteService(accountStore, inviteStore, factory, services.WithInviteLogger(logger))
	parseSvc := services.NewParseService(accountStore, parsedStore, factory,
		services.WithParseLogger(logger),
		services.WithPageSize(cfg.Jobs.ParsePageSize),
		services.WithRecentWindow(time.Duration(cfg.Jobs.RecentDays)*24*time.Hour),
	)
	accountSvc := services.NewAccountService(accountStore, factory, services.WithAccountLogger(logger))
	proxySvc := services.NewProxyService(proxyStore, services.WithProxyLogger(logger))

	// 7. Создание HTTP-сервера
	runStore := server.NewRunStore()
	srv, err := server.New(cfg, server.Services{
		Auth:     authSvc,
		Invites:  inviteSvc,
		Scrapes:  parseSvc,
		Accounts: accountSvc,
		Proxies:  proxySvc,
	}, runStore, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	// 8. Запуск сервера и graceful shutdown
	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		slog.Info("Starting server", "addr", cfg.Address())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Signal received, shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownTimeoutSeconds)*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	<-serverDone
	slog.Info("HTTP server stopped")

	return nil
}
