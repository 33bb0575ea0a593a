// Package jobs runs periodic maintenance on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"moneyflow/internal/service"

	"github.com/robfig/cron/v3"
)

// Replayer is the part of the debt service the replay job needs.
type Replayer interface {
	ReplayAll(ctx context.Context) ([]service.ReplayReport, error)
}

type Scheduler struct {
	cron    *cron.Cron
	timeout time.Duration
}

// NewScheduler registers the allocation replay job. An empty spec disables it.
func NewScheduler(spec, timeZone string, timeout time.Duration, replayer Replayer) (*Scheduler, error) {
	loc, err := time.LoadLocation(timeZone)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", timeZone, err)
	}

	s := &Scheduler{cron: cron.New(cron.WithLocation(loc)), timeout: timeout}
	if spec == "" {
		return s, nil
	}

	_, err = s.cron.AddFunc(spec, func() {
		s.runReplay(replayer)
	})
	if err != nil {
		return nil, fmt.Errorf("schedule replay %q: %w", spec, err)
	}
	slog.Info("replay job scheduled", "spec", spec, "tz", timeZone)
	return s, nil
}

func (s *Scheduler) runReplay(replayer Replayer) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	reports, err := replayer.ReplayAll(ctx)
	updated := 0
	for _, r := range reports {
		updated += r.Updated
	}
	if err != nil {
		slog.Error("replay job finished with errors", "error", err, "people", len(reports), "updated", updated)
		return
	}
	slog.Info("replay job finished", "people", len(reports), "updated", updated, "took", time.Since(start))
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for a running job until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
