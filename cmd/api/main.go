// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"moneyflow/internal/config"
	"moneyflow/internal/debt"
	"moneyflow/internal/handler"
	"moneyflow/internal/jobs"
	"moneyflow/internal/middleware"
	"moneyflow/internal/notify"
	"moneyflow/internal/service"
	"moneyflow/internal/storage/postgres"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.MustLoad()

	// Настройка логгера
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.Connect(ctx, cfg.DBConn, cfg.DBRetries, cfg.DBRetryDelay)
	if err != nil {
		slog.Error("Не удалось подключиться к БД", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	slog.Info("Подключились к PostgreSQL")

	store := postgres.NewStorage(pool)

	var locker service.Locker
	switch cfg.LockMode {
	case config.LockModeMemory:
		locker = debt.NewKeyedMutex()
	default:
		locker = postgres.NewAdvisoryLocker(pool)
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.TelegramToken != "" {
		tg, err := notify.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			slog.Error("Не удалось инициализировать Telegram", "error", err)
			os.Exit(1)
		}
		notifier = tg
	}

	accounts := service.NewAccountService(store)
	transactions := service.NewTransactionService(store)
	debts := service.NewDebtService(store, locker, notifier)

	scheduler, err := jobs.NewScheduler(cfg.ReplaySchedule, cfg.ReplayTimeZone, cfg.ReplayTimeout, debts)
	if err != nil {
		slog.Error("Не удалось настроить планировщик", "error", err)
		os.Exit(1)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLog())

	router.GET("/health", func(c *gin.Context) {
		if err := pool.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	h := handler.NewHandler(accounts, transactions, debts)
	h.Register(router.Group("/api/v1"))

	srv := &http.Server{Addr: cfg.ServerPort, Handler: router}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Сервер запущен", "addr", cfg.ServerPort, "lock_mode", cfg.LockMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		scheduler.Start()
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		scheduler.Stop(shutdownCtx)
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("Сервер завершил работу с ошибкой", "error", err)
		os.Exit(1)
	}
	slog.Info("Сервер остановлен")
}
