package jobs

import (
	"context"
	"log"

	"github.com/robfig/cron/v3"

	"github.com/docquery/docquery/internal/pkg/env"
)

// Scheduler owns the in-process cron jobs.
type Scheduler struct {
	cron  *cron.Cron
	reset *UsageResetJob
}

// NewScheduler wires the periodic jobs onto a cron runner. The reset
// schedule defaults to hourly and can be overridden via USAGE_RESET_SCHEDULE.
func NewScheduler(reset *UsageResetJob) (*Scheduler, error) {
	c := cron.New()
	schedule := env.GetEnv("USAGE_RESET_SCHEDULE", "@hourly")

	_, err := c.AddFunc(schedule, func() {
		result, err := reset.Run(context.Background())
		if err != nil {
			log.Printf("jobs: usage reset sweep failed: %v", err)
			return
		}
		if result.Scanned > 0 {
			log.Printf("jobs: usage reset sweep scanned=%d reset=%d skipped=%d failed=%d",
				result.Scanned, result.Reset, result.Skipped, result.Failed)
		}
	})
	if err != nil {
		return nil, err
	}

	return &Scheduler{cron: c, reset: reset}, nil
}

// Start launches the cron runner in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the cron runner and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
