package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog/log"

	"github.com/i474232898/retail-price-tracker/internal/prices"
)

const defaultInterval = 24 * time.Hour

// Collector runs one collection.
type Collector interface {
	Collect(ctx context.Context) (prices.CollectResult, error)
}

// Scheduler periodically collects prices for the configured groups.
type Scheduler struct {
	scheduler *gocron.Scheduler
	collector Collector
	interval  time.Duration
	timeout   time.Duration
}

// New creates a new Scheduler. Each run is bounded by timeout; zero means
// half the interval.
func New(interval, timeout time.Duration, collector Collector) *Scheduler {
	if interval <= 0 {
		interval = defaultInterval
	}
	if timeout <= 0 {
		timeout = interval / 2
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		collector: collector,
		interval:  interval,
		timeout:   timeout,
	}
}

// Start schedules the periodic job, which also runs once immediately.
func (s *Scheduler) Start() error {
	_, err := s.scheduler.Every(s.interval).Do(s.run)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	log.Info().Dur("interval", s.interval).Msg("scheduler started")
	return nil
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	log.Info().Msg("scheduler: running price collection")
	result, err := s.collector.Collect(ctx)
	if err != nil {
		log.Error().Err(err).Str("run_id", result.RunID).Msg("scheduler: collection failed")
		return
	}
	log.Info().
		Str("run_id", result.RunID).
		Int("priced", result.Priced).
		Int("fetched", result.Fetched).
		Int("total_rows", result.TotalRows).
		Msg("scheduler: collection completed")
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
