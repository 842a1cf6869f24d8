package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type terminatedSweeper interface {
	ArchiveTerminated(olderThan time.Duration) int
}

// SessionArchiver periodically drops finished sessions from the in-memory registry.
type SessionArchiver struct {
	sessions  terminatedSweeper
	schedule  string
	retention time.Duration
	logger    *zap.Logger
}

// NewSessionArchiver builds an archiver for a standard five-field cron schedule.
func NewSessionArchiver(sessions terminatedSweeper, schedule string, retention time.Duration, logger *zap.Logger) *SessionArchiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if schedule == "" {
		schedule = "*/15 * * * *"
	}
	return &SessionArchiver{sessions: sessions, schedule: schedule, retention: retention, logger: logger}
}

// Sweep archives once and returns how many sessions were removed.
func (a *SessionArchiver) Sweep() int {
	removed := a.sessions.ArchiveTerminated(a.retention)
	if removed > 0 {
		a.logger.Info("finished sessions archived", zap.Int("count", removed), zap.Duration("retention", a.retention))
	}
	return removed
}

// Run schedules the sweep and blocks until ctx is done.
func (a *SessionArchiver) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(a.schedule, func() { a.Sweep() }); err != nil {
		return fmt.Errorf("schedule session archiver %q: %w", a.schedule, err)
	}
	c.Start()
	a.logger.Info("session archiver started", zap.String("schedule", a.schedule), zap.Duration("retention", a.retention))

	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	a.logger.Info("session archiver stopped")
	return nil
}
