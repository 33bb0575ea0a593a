// cmd/replay/main.go
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"moneyflow/internal/config"
	"moneyflow/internal/debt"
	"moneyflow/internal/notify"
	"moneyflow/internal/service"
	"moneyflow/internal/storage/postgres"

	"github.com/google/uuid"
)

// Заполняет распределение погашений, записанных без него, и выходит.
func main() {
	person := flag.String("person", "", "replay a single person (UUID); all people when empty")
	flag.Parse()

	cfg := config.MustLoad()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ReplayTimeout)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.DBConn, cfg.DBRetries, cfg.DBRetryDelay)
	if err != nil {
		slog.Error("Не удалось подключиться к БД", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	var locker service.Locker = postgres.NewAdvisoryLocker(pool)
	if cfg.LockMode == config.LockModeMemory {
		locker = debt.NewKeyedMutex()
	}
	debts := service.NewDebtService(postgres.NewStorage(pool), locker, notify.Nop{})

	if *person != "" {
		id, err := uuid.Parse(*person)
		if err != nil {
			slog.Error("Некорректный id", "person", *person, "error", err)
			os.Exit(2)
		}
		report, err := debts.Replay(ctx, id)
		if err != nil {
			slog.Error("Replay failed", "person", id, "error", err)
			os.Exit(1)
		}
		slog.Info("Replay done", "person", id, "updated", report.Updated, "outstanding", report.Outstanding)
		return
	}

	reports, err := debts.ReplayAll(ctx)
	updated := 0
	for _, r := range reports {
		updated += r.Updated
	}
	if err != nil {
		slog.Error("Replay finished with errors", "error", err, "people", len(reports), "updated", updated)
		os.Exit(1)
	}
	slog.Info("Replay done", "people", len(reports), "updated", updated)
}
