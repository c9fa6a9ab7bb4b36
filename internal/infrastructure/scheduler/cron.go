package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"BountyScanner/internal/ports"
)

// CronScheduler runs registered jobs on standard cron expressions.
type CronScheduler struct {
	cron *cron.Cron
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// NewCronScheduler builds a scheduler evaluating expressions in loc.
func NewCronScheduler(loc *time.Location) *CronScheduler {
	return &CronScheduler{cron: cron.New(cron.WithLocation(loc))}
}

// Schedule registers a job; returns an error for invalid expressions.
func (c *CronScheduler) Schedule(spec string, job func(time.Time)) error {
	_, err := c.cron.AddFunc(spec, func() {
		job(time.Now())
	})
	return err
}

// Start begins scheduling in a background goroutine.
func (c *CronScheduler) Start() {
	c.cron.Start()
}

// Stop halts scheduling and waits for running jobs, bounded by ctx.
func (c *CronScheduler) Stop(ctx context.Context) error {
	select {
	case <-c.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
