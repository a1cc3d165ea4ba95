/**
 * @description
 * Cron-driven expiry sweep for payment orders. Lazy expiry on read keeps a
 * single order honest; the sweep keeps the whole table honest so expired
 * orders do not linger as matcher candidates.
 */

package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper runs the periodic order expiry job.
type Sweeper struct {
	cron     *cron.Cron
	service  *Service
	logger   *slog.Logger
	schedule string
}

// NewSweeper creates a sweeper on the given cron schedule.
func NewSweeper(service *Service, logger *slog.Logger, schedule string) *Sweeper {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Sweeper{
		cron:     c,
		service:  service,
		logger:   logger,
		schedule: schedule,
	}
}

// Start registers the sweep and starts the cron scheduler.
func (s *Sweeper) Start() {
	if _, err := s.cron.AddFunc(s.schedule, s.SweepExpiredOrders); err != nil {
		s.logger.Error("failed to schedule order expiry sweep", "error", err)
	} else {
		s.logger.Info("scheduled order expiry sweep", "schedule", s.schedule)
	}

	s.cron.Start()
}

// Stop gracefully stops the cron scheduler.
func (s *Sweeper) Stop() context.Context {
	return s.cron.Stop()
}

// SweepExpiredOrders expires every pending order past its deadline.
func (s *Sweeper) SweepExpiredOrders() {
	s.logger.Info("starting order expiry sweep")
	ctx := context.Background()

	expired, err := s.service.ExpireOverdueOrders(ctx, time.Now())
	if err != nil {
		s.logger.Error("order expiry sweep failed", "error", err)
		return
	}

	s.logger.Info("order expiry sweep finished", "expired", expired)
}
