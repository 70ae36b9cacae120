// Package scheduler corre jobs periódicos del ledger sobre robfig/cron.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"custody-ledger/internal/platform/logger"

	"github.com/robfig/cron/v3"
)

const DefaultSweepTimeout = time.Minute

// Sweeper es lo que el job de expiración necesita del service.
type Sweeper interface {
	ExpireStaleTransfers(ctx context.Context) (int, error)
}

type Scheduler struct {
	cron     *cron.Cron
	sweeper  Sweeper
	schedule string
	timeout  time.Duration
	log      logger.Logger
}

func New(sweeper Sweeper, schedule string, log logger.Logger) (*Scheduler, error) {
	if log == nil {
		log = logger.Discard()
	}
	s := &Scheduler{
		cron:     cron.New(cron.WithChain(cron.Recover(cronLogger{log: log}))),
		sweeper:  sweeper,
		schedule: schedule,
		timeout:  DefaultSweepTimeout,
		log:      log,
	}
	if _, err := s.cron.AddFunc(schedule, s.sweep); err != nil {
		return nil, fmt.Errorf("scheduler: invalid schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.log.Info("expiry sweep scheduled", map[string]any{"schedule": s.schedule})
	s.cron.Start()
}

// Stop devuelve un context que se cierra cuando terminan los jobs en curso.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// RunOnce ejecuta un barrido fuera del calendario.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.sweeper.ExpireStaleTransfers(ctx)
}

func (s *Scheduler) sweep() {
	start := time.Now()
	n, err := s.RunOnce(context.Background())
	if err != nil {
		s.log.Error("expiry sweep failed", map[string]any{"error": err.Error()})
		return
	}
	if n > 0 {
		s.log.Info("expired stale transfers", map[string]any{
			"count":       n,
			"duration_ms": time.Since(start).Milliseconds(),
		})
	}
}

// cronLogger adapta logger.Logger a cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, kv(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	fields := kv(keysAndValues)
	fields["error"] = fmt.Sprint(err)
	l.log.Error(msg, fields)
}

func kv(pairs []any) map[string]any {
	out := make(map[string]any, len(pairs)/2+1)
	for i := 0; i+1 < len(pairs); i += 2 {
		out[fmt.Sprint(pairs[i])] = pairs[i+1]
	}
	return out
}
